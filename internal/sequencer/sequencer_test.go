package sequencer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hammamikhairi/glowroutine/internal/domain"
	"github.com/hammamikhairi/glowroutine/internal/logger"
	"github.com/hammamikhairi/glowroutine/internal/timer"
)

// fakeTimer records starts and lets the test fire callbacks by hand.
type fakeTimer struct {
	mu     sync.Mutex
	starts []int
	stops  int
	onTick func(int)
	onDone func()
}

func (f *fakeTimer) Start(_ context.Context, seconds int, onTick func(int), onDone func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts = append(f.starts, seconds)
	f.onTick = onTick
	f.onDone = onDone
}

func (f *fakeTimer) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
}

func (f *fakeTimer) callbacks() (func(int), func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.onTick, f.onDone
}

func (f *fakeTimer) startCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.starts)
}

type stepMark struct {
	id string
	xp int
}

type fakeTracker struct {
	mu       sync.Mutex
	steps    []stepMark
	sessions [][]string
	err      error
}

func (t *fakeTracker) MarkStepComplete(_ context.Context, id string, xp int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.steps = append(t.steps, stepMark{id, xp})
	return t.err
}

func (t *fakeTracker) MarkSessionComplete(_ context.Context, _ domain.SectionName, ids []string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessions = append(t.sessions, ids)
	return t.err
}

type fakeRewards struct {
	mu    sync.Mutex
	xp    []domain.XPEvent
	skips []domain.SkipEvent
	err   error
}

func (r *fakeRewards) XPEarned(_ context.Context, ev domain.XPEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.xp = append(r.xp, ev)
	return r.err
}

func (r *fakeRewards) SkipTracked(_ context.Context, ev domain.SkipEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.skips = append(r.skips, ev)
	return r.err
}

func (r *fakeRewards) amounts() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int, 0, len(r.xp))
	for _, ev := range r.xp {
		out = append(out, ev.Amount)
	}
	return out
}

func step(id string, wait int) domain.RoutineStep {
	return domain.RoutineStep{
		ID:          id,
		Type:        domain.StepIngredient,
		DisplayName: id,
		Session:     domain.SessionAction{Action: "apply", WaitAfterSeconds: wait},
	}
}

func exercise(id string, sets, wait int) domain.RoutineStep {
	return domain.RoutineStep{
		ID:          id,
		Type:        domain.StepExercise,
		DisplayName: id,
		Session:     domain.SessionAction{Action: "exercise", WaitAfterSeconds: wait},
		Exercise:    &domain.ExercisePayload{DefaultSets: sets},
	}
}

func section(steps ...domain.RoutineStep) domain.RoutineSection {
	return domain.RoutineSection{Name: domain.SectionMorning, Steps: steps}
}

type harness struct {
	seq     *Sequencer
	timer   *fakeTimer
	tracker *fakeTracker
	rewards *fakeRewards
}

func newHarness(t *testing.T, sec domain.RoutineSection, completed []string, opts ...Option) *harness {
	t.Helper()
	h := &harness{timer: &fakeTimer{}, tracker: &fakeTracker{}, rewards: &fakeRewards{}}
	opts = append([]Option{WithTimer(h.timer), WithTracker(h.tracker), WithRewards(h.rewards), WithUserID("u1")}, opts...)
	seq, err := New(context.Background(), sec, completed, logger.Nop(), opts...)
	require.NoError(t, err)
	h.seq = seq
	return h
}

func TestNewRejectsEmptySection(t *testing.T) {
	_, err := New(context.Background(), section(), nil, logger.Nop())
	assert.ErrorIs(t, err, domain.ErrEmptySection)
}

func TestExerciseSetsAwardPerSet(t *testing.T) {
	h := newHarness(t, section(exercise("jaw_clench", 4, 0)), nil)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		snap, err := h.seq.MarkDone(ctx)
		require.NoError(t, err)
		assert.Equal(t, StateIdle, snap.State)
		assert.Equal(t, i+1, snap.CurrentSet)
		assert.Equal(t, 0, snap.StepIndex)
	}
	snap, err := h.seq.MarkDone(ctx)
	require.NoError(t, err)

	assert.Equal(t, StateComplete, snap.State)
	assert.Equal(t, 16, snap.XPEarned)
	assert.Equal(t, []int{4, 4, 4, 4}, h.rewards.amounts())
	for i, ev := range h.rewards.xp {
		assert.Equal(t, i+1, ev.Set)
		assert.Equal(t, "u1", ev.UserID)
	}
	assert.Equal(t, []stepMark{{"jaw_clench", 16}}, h.tracker.steps)
	assert.Equal(t, [][]string{{"jaw_clench"}}, h.tracker.sessions)
}

func TestSingleSetExerciseAwardsFullXP(t *testing.T) {
	h := newHarness(t, section(exercise("chin_tuck", 1, 0)), nil)

	snap, err := h.seq.MarkDone(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 15, snap.XPEarned)
	assert.Equal(t, StateComplete, snap.State)
}

func TestSetlessExerciseAwardsFlatXP(t *testing.T) {
	h := newHarness(t, section(exercise("mewing", 0, 0)), nil)

	snap, err := h.seq.MarkDone(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, snap.XPEarned)
	assert.Equal(t, 0, snap.TotalSets)
	assert.Equal(t, 10, snap.TotalXP)
}

func TestWaitThenNext(t *testing.T) {
	h := newHarness(t, section(step("wash_face", 0), step("vitamin_c", 60), step("moisturizer", 0)), nil)
	ctx := context.Background()

	snap, err := h.seq.MarkDone(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.StepIndex)
	assert.Equal(t, StateIdle, snap.State)

	snap, err = h.seq.MarkDone(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateWaiting, snap.State)
	assert.Equal(t, 60, snap.WaitRemaining)
	assert.Equal(t, []int{60}, h.timer.starts)

	onTick, onDone := h.timer.callbacks()
	onTick(59)
	snap = h.seq.Snapshot()
	assert.Equal(t, 59, snap.WaitRemaining)
	assert.Equal(t, 1, snap.StepIndex)

	onDone()
	snap = h.seq.Snapshot()
	assert.Equal(t, StateIdle, snap.State)
	assert.Equal(t, 2, snap.StepIndex)

	snap, err = h.seq.MarkDone(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateComplete, snap.State)
	assert.Equal(t, 30, snap.XPEarned)
	assert.Equal(t, [][]string{{"wash_face", "vitamin_c", "moisturizer"}}, h.tracker.sessions)
}

func TestLastStepSkipsWait(t *testing.T) {
	h := newHarness(t, section(step("wash_face", 0), step("retinol", 120)), nil)
	ctx := context.Background()

	_, _ = h.seq.MarkDone(ctx)
	snap, err := h.seq.MarkDone(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateComplete, snap.State)
	assert.Zero(t, h.timer.startCount())
}

func TestGhostStepAdvancesWithoutXP(t *testing.T) {
	ghost := step("retinol", 120)
	ghost.IsPending = true
	h := newHarness(t, section(step("wash_face", 0), ghost, step("moisturizer", 0)), nil)
	ctx := context.Background()

	_, _ = h.seq.MarkDone(ctx)
	snap, err := h.seq.MarkDone(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, snap.StepIndex)
	assert.Equal(t, StateIdle, snap.State)
	assert.Equal(t, 10, snap.XPEarned)
	assert.NotContains(t, snap.CompletedStepIDs, "retinol")
	assert.Zero(t, h.timer.startCount())

	snap, err = h.seq.MarkDone(ctx)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"wash_face", "moisturizer"}}, h.tracker.sessions)
	assert.Equal(t, 20, snap.TotalXP)
}

func TestSkipWaitPenaltyOnFirstPass(t *testing.T) {
	h := newHarness(t, section(step("vitamin_c", 60), step("moisturizer", 0)), nil)
	ctx := context.Background()

	_, _ = h.seq.MarkDone(ctx)
	onTick, _ := h.timer.callbacks()
	onTick(42)

	snap, err := h.seq.SkipWait(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.StepIndex)
	assert.Equal(t, StateIdle, snap.State)
	assert.Equal(t, 5, snap.XPEarned)
	assert.Equal(t, []int{10, -5}, h.rewards.amounts())

	require.Len(t, h.rewards.skips, 1)
	assert.Equal(t, domain.SkipWait, h.rewards.skips[0].Kind)
	assert.Equal(t, 42, h.rewards.skips[0].RemainingSeconds)
	assert.Equal(t, "vitamin_c", h.rewards.skips[0].StepID)
}

func TestSkipWaitNoPenaltyOnRedo(t *testing.T) {
	h := newHarness(t, section(step("vitamin_c", 60), step("moisturizer", 0)), []string{"vitamin_c", "moisturizer"})
	ctx := context.Background()

	assert.True(t, h.seq.Snapshot().Redo)
	_, _ = h.seq.MarkDone(ctx)
	snap, err := h.seq.SkipWait(ctx)
	require.NoError(t, err)

	assert.Zero(t, snap.XPEarned)
	assert.Empty(t, h.rewards.amounts())
	assert.Empty(t, h.rewards.skips)
	assert.Equal(t, 1, snap.StepIndex)
}

func TestGhostOnlySectionIsNotRedo(t *testing.T) {
	ghost := step("retinol", 0)
	ghost.IsPending = true
	h := newHarness(t, section(ghost), nil)
	assert.False(t, h.seq.Snapshot().Redo)
}

func TestPartialCompletionIsNotRedo(t *testing.T) {
	h := newHarness(t, section(step("vitamin_c", 60), step("moisturizer", 0)), []string{"vitamin_c"})
	assert.False(t, h.seq.Snapshot().Redo)
}

func TestCompletedStepAwardsNoXP(t *testing.T) {
	h := newHarness(t, section(step("wash_face", 0), exercise("jaw_clench", 2, 0), step("moisturizer", 0)),
		[]string{"wash_face", "jaw_clench"})
	ctx := context.Background()

	_, _ = h.seq.MarkDone(ctx) // wash_face, already done
	_, _ = h.seq.MarkDone(ctx) // set 1
	_, _ = h.seq.MarkDone(ctx) // set 2
	snap, err := h.seq.MarkDone(ctx)
	require.NoError(t, err)

	assert.Equal(t, 10, snap.XPEarned)
	assert.Equal(t, []int{10}, h.rewards.amounts())
	assert.Equal(t, []stepMark{{"wash_face", 0}, {"jaw_clench", 0}, {"moisturizer", 10}}, h.tracker.steps)
}

func TestSkipStepAwardsNothing(t *testing.T) {
	h := newHarness(t, section(step("wash_face", 0), step("moisturizer", 0)), nil)

	snap, err := h.seq.SkipStep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, snap.StepIndex)
	assert.Zero(t, snap.XPEarned)
	assert.Empty(t, snap.CompletedStepIDs)
	assert.Empty(t, h.tracker.steps)
	require.Len(t, h.rewards.skips, 1)
	assert.Equal(t, domain.SkipStep, h.rewards.skips[0].Kind)
}

func TestSkipStepDuringWaitAdvances(t *testing.T) {
	h := newHarness(t, section(step("vitamin_c", 60), step("moisturizer", 0)), nil)
	ctx := context.Background()

	_, _ = h.seq.MarkDone(ctx)
	require.Equal(t, StateWaiting, h.seq.Snapshot().State)

	snap, err := h.seq.SkipStep(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateIdle, snap.State)
	assert.Equal(t, 1, snap.StepIndex)
	assert.Equal(t, 10, snap.XPEarned, "no penalty")
	assert.Empty(t, h.rewards.skips)
	assert.Equal(t, 1, h.timer.stops)
}

func TestNextAwardsNothing(t *testing.T) {
	h := newHarness(t, section(step("wash_face", 0), step("moisturizer", 0)), nil)

	snap, err := h.seq.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, snap.StepIndex)
	assert.Zero(t, snap.XPEarned)
	assert.Empty(t, h.rewards.skips)
}

func TestStaleWaitCallbackIgnored(t *testing.T) {
	h := newHarness(t, section(step("vitamin_c", 60), step("niacinamide", 30), step("moisturizer", 0)), nil)
	ctx := context.Background()

	_, _ = h.seq.MarkDone(ctx)
	staleTick, staleDone := h.timer.callbacks()

	// User moves on before the timer fires.
	_, err := h.seq.Next(ctx)
	require.NoError(t, err)
	_, _ = h.seq.MarkDone(ctx)
	snap := h.seq.Snapshot()
	require.Equal(t, StateWaiting, snap.State)
	require.Equal(t, 1, snap.StepIndex)

	staleTick(5)
	staleDone()
	snap = h.seq.Snapshot()
	assert.Equal(t, StateWaiting, snap.State, "stale completion must not advance")
	assert.Equal(t, 1, snap.StepIndex)
	assert.Equal(t, 30, snap.WaitRemaining)

	_, liveDone := h.timer.callbacks()
	liveDone()
	liveDone()
	snap = h.seq.Snapshot()
	assert.Equal(t, 2, snap.StepIndex, "a wait advances exactly once")
	assert.Equal(t, StateIdle, snap.State)
}

func TestInvalidTransitions(t *testing.T) {
	h := newHarness(t, section(step("vitamin_c", 60), step("moisturizer", 0)), nil)
	ctx := context.Background()

	_, err := h.seq.SkipWait(ctx)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, _ = h.seq.MarkDone(ctx)
	_, err = h.seq.MarkDone(ctx)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, _ = h.seq.Next(ctx)
	_, _ = h.seq.MarkDone(ctx)
	_, err = h.seq.MarkDone(ctx)
	assert.ErrorIs(t, err, domain.ErrSessionComplete)

	h.seq.Close(ctx)
	_, err = h.seq.Next(ctx)
	assert.ErrorIs(t, err, domain.ErrSessionClosed)
	h.seq.Close(ctx) // idempotent
}

func TestCloseStopsWait(t *testing.T) {
	h := newHarness(t, section(step("vitamin_c", 60), step("moisturizer", 0)), nil)
	ctx := context.Background()

	_, _ = h.seq.MarkDone(ctx)
	_, onDone := h.timer.callbacks()
	h.seq.Close(ctx)

	assert.Equal(t, StateClosed, h.seq.Snapshot().State)
	assert.Equal(t, 1, h.timer.stops)

	onDone()
	assert.Equal(t, 0, h.seq.Snapshot().StepIndex)
}

func TestCollaboratorFailuresDoNotBlock(t *testing.T) {
	h := newHarness(t, section(step("wash_face", 0), step("moisturizer", 0)), nil)
	h.tracker.err = errors.New("offline")
	h.rewards.err = errors.New("offline")
	ctx := context.Background()

	_, err := h.seq.MarkDone(ctx)
	require.NoError(t, err)
	snap, err := h.seq.MarkDone(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateComplete, snap.State)
	assert.Equal(t, 20, snap.XPEarned)
}

func TestListenerSeesTicks(t *testing.T) {
	var mu sync.Mutex
	var seen []int
	listener := func(s Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, s.WaitRemaining)
	}
	h := newHarness(t, section(step("vitamin_c", 3), step("moisturizer", 0)), nil, WithListener(listener))

	_, _ = h.seq.MarkDone(context.Background())
	onTick, _ := h.timer.callbacks()
	onTick(2)
	onTick(1)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{3, 2, 1}, seen)
}

func TestRealCountdownAdvances(t *testing.T) {
	countdown := timer.New(logger.Nop(), timer.WithTickInterval(5*time.Millisecond))
	seq, err := New(context.Background(), section(step("vitamin_c", 3), step("moisturizer", 0)), nil, logger.Nop(),
		WithTimer(countdown))
	require.NoError(t, err)

	_, err = seq.MarkDone(context.Background())
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return seq.Snapshot().StepIndex == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, StateIdle, seq.Snapshot().State)
}

func TestTotalXP(t *testing.T) {
	ghost := step("retinol", 0)
	ghost.IsPending = true
	sec := section(step("wash_face", 0), ghost, exercise("jaw_clench", 4, 0), exercise("chin_tuck", 1, 0), exercise("mewing", 0, 0))

	assert.Equal(t, 10+16+15+10, TotalXP(sec))
}

func TestParseEventType(t *testing.T) {
	cases := map[string]EventType{
		"mark_done": EventMarkDone,
		"Done":      EventMarkDone,
		"next":      EventNext,
		"skip_step": EventSkipStep,
		"skip_wait": EventSkipWait,
		"close":     EventClose,
	}
	for in, want := range cases {
		got, err := ParseEventType(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseEventType("tick")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}
