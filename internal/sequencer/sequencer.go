// Package sequencer runs one routine section: it walks the steps, counts
// exercise sets, holds the wait between steps and awards XP.
package sequencer

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hammamikhairi/glowroutine/internal/domain"
	"github.com/hammamikhairi/glowroutine/internal/logger"
	"github.com/hammamikhairi/glowroutine/internal/timer"
)

// State is the sequencer's lifecycle state.
type State int

const (
	StateIdle State = iota
	StateWaiting
	StateComplete
	StateClosed
)

var stateNames = map[State]string{
	StateIdle:     "idle",
	StateWaiting:  "waiting",
	StateComplete: "complete",
	StateClosed:   "closed",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// MarshalText renders the state name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// EventType names an input to the state machine.
type EventType int

const (
	EventMarkDone EventType = iota
	EventNext
	EventSkipStep
	EventSkipWait
	EventTick
	EventWaitDone
	EventClose
)

var eventNames = map[EventType]string{
	EventMarkDone: "mark_done",
	EventNext:     "next",
	EventSkipStep: "skip_step",
	EventSkipWait: "skip_wait",
	EventTick:     "tick",
	EventWaitDone: "wait_done",
	EventClose:    "close",
}

func (e EventType) String() string {
	if n, ok := eventNames[e]; ok {
		return n
	}
	return fmt.Sprintf("EventType(%d)", int(e))
}

// ParseEventType maps a user-facing event name to its type. Timer events
// are internal and cannot be parsed.
func ParseEventType(s string) (EventType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mark_done", "done":
		return EventMarkDone, nil
	case "next":
		return EventNext, nil
	case "skip_step":
		return EventSkipStep, nil
	case "skip_wait":
		return EventSkipWait, nil
	case "close":
		return EventClose, nil
	default:
		return 0, fmt.Errorf("%w: unknown event %q", domain.ErrInvalidTransition, s)
	}
}

// Event is one input to Dispatch. Remaining and the wait generation are
// only set by the wait timer.
type Event struct {
	Type      EventType
	Remaining int
	gen       uint64
}

// WaitTimer runs the countdown between steps. *timer.Countdown satisfies it.
type WaitTimer interface {
	Start(ctx context.Context, seconds int, onTick func(remaining int), onDone func())
	Stop()
}

// Snapshot is a read-only view of a running sequencer.
type Snapshot struct {
	Section          domain.SectionName  `json:"section"`
	State            State               `json:"state"`
	StepIndex        int                 `json:"step_index"`
	StepCount        int                 `json:"step_count"`
	Step             *domain.RoutineStep `json:"step,omitempty"`
	CurrentSet       int                 `json:"current_set"` // 1-based, 0 outside exercises
	TotalSets        int                 `json:"total_sets"`
	WaitRemaining    int                 `json:"wait_remaining"`
	XPEarned         int                 `json:"xp_earned"`
	TotalXP          int                 `json:"total_xp"`
	Redo             bool                `json:"redo"`
	CompletedStepIDs []string            `json:"completed_step_ids"`
}

// Option configures a sequencer.
type Option func(*Sequencer)

// WithTracker sets the completion tracker.
func WithTracker(t domain.CompletionTracker) Option {
	return func(s *Sequencer) { s.tracker = t }
}

// WithRewards sets the XP and skip sink.
func WithRewards(r domain.RewardSink) Option {
	return func(s *Sequencer) { s.rewards = r }
}

// WithTimer replaces the wait timer.
func WithTimer(t WaitTimer) Option {
	return func(s *Sequencer) { s.timer = t }
}

// WithUserID stamps reward events with the user.
func WithUserID(id string) Option {
	return func(s *Sequencer) { s.userID = id }
}

// WithClock replaces time.Now for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Sequencer) { s.now = now }
}

// WithListener is called with a fresh snapshot after every accepted event,
// timer ticks included.
func WithListener(fn func(Snapshot)) Option {
	return func(s *Sequencer) { s.listener = fn }
}

// Sequencer drives a single section run. All methods are safe for
// concurrent use; collaborator calls happen outside the lock.
type Sequencer struct {
	section  domain.RoutineSection
	log      *logger.Logger
	tracker  domain.CompletionTracker
	rewards  domain.RewardSink
	timer    WaitTimer
	userID   string
	now      func() time.Time
	listener func(Snapshot)
	baseCtx  context.Context
	totalXP  int

	mu            sync.Mutex
	state         State
	index         int
	set           int // 0-based
	waitRemaining int
	waitGen       uint64
	completed     map[string]bool
	awarded       map[string]map[int]bool
	redo          bool
	xpEarned      int
}

// New creates a sequencer positioned on the first step. completedStepIDs
// are the steps already completed today; when they cover every active
// step the run is a redo and skip-wait penalties are waived.
//
// ctx bounds timer-driven work; cancelling it stops the wait timer.
func New(ctx context.Context, section domain.RoutineSection, completedStepIDs []string, log *logger.Logger, opts ...Option) (*Sequencer, error) {
	if len(section.Steps) == 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrEmptySection, section.Name)
	}

	s := &Sequencer{
		section:   section,
		log:       log,
		now:       time.Now,
		baseCtx:   ctx,
		totalXP:   TotalXP(section),
		completed: make(map[string]bool, len(completedStepIDs)),
		awarded:   make(map[string]map[int]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.timer == nil {
		s.timer = timer.New(log)
	}

	for _, id := range completedStepIDs {
		s.completed[id] = true
	}
	active := section.ActiveStepIDs()
	s.redo = len(active) > 0
	for _, id := range active {
		if !s.completed[id] {
			s.redo = false
			break
		}
	}

	s.log.Debug("sequencer: %s ready (%d steps, redo=%t, total_xp=%d)", section.Name, len(section.Steps), s.redo, s.totalXP)
	return s, nil
}

// Dispatch applies one event and returns the resulting snapshot.
// Collaborator failures are logged, never returned.
func (s *Sequencer) Dispatch(ctx context.Context, ev Event) (Snapshot, error) {
	s.mu.Lock()
	effects, accepted, err := s.apply(ev)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.run(ctx, effects)
	if accepted && s.listener != nil {
		s.listener(snap)
	}
	return snap, err
}

// MarkDone completes the current step or exercise set.
func (s *Sequencer) MarkDone(ctx context.Context) (Snapshot, error) {
	return s.Dispatch(ctx, Event{Type: EventMarkDone})
}

// Next advances without awarding XP.
func (s *Sequencer) Next(ctx context.Context) (Snapshot, error) {
	return s.Dispatch(ctx, Event{Type: EventNext})
}

// SkipStep skips the current step without completing it.
func (s *Sequencer) SkipStep(ctx context.Context) (Snapshot, error) {
	return s.Dispatch(ctx, Event{Type: EventSkipStep})
}

// SkipWait ends the current wait early.
func (s *Sequencer) SkipWait(ctx context.Context) (Snapshot, error) {
	return s.Dispatch(ctx, Event{Type: EventSkipWait})
}

// Close stops the wait timer and ends the session. Idempotent.
func (s *Sequencer) Close(ctx context.Context) {
	_, _ = s.Dispatch(ctx, Event{Type: EventClose})
}

// Snapshot returns the current view.
func (s *Sequencer) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Section returns the section being run.
func (s *Sequencer) Section() domain.RoutineSection {
	return s.section
}

// apply mutates state for ev. accepted is false for ignored timer events.
func (s *Sequencer) apply(ev Event) (effects []effect, accepted bool, err error) {
	switch s.state {
	case StateClosed:
		if ev.Type == EventClose {
			return nil, false, nil
		}
		if ev.Type == EventTick || ev.Type == EventWaitDone {
			return nil, false, nil
		}
		return nil, false, domain.ErrSessionClosed
	case StateComplete:
		switch ev.Type {
		case EventClose:
			s.closeLocked()
			return nil, true, nil
		case EventTick, EventWaitDone:
			return nil, false, nil
		default:
			return nil, false, domain.ErrSessionComplete
		}
	}

	waiting := s.state == StateWaiting
	switch ev.Type {
	case EventMarkDone:
		if waiting {
			return nil, false, s.invalid(ev)
		}
		return s.markDone(), true, nil
	case EventNext:
		return s.advance(), true, nil
	case EventSkipStep:
		if waiting {
			// The step behind the wait is already done; just move on.
			return s.advance(), true, nil
		}
		return s.skipStep(), true, nil
	case EventSkipWait:
		if !waiting {
			return nil, false, s.invalid(ev)
		}
		return s.skipWait(), true, nil
	case EventTick:
		if !waiting || ev.gen != s.waitGen {
			s.log.Debug("sequencer: dropping stale tick (gen=%d, live=%d)", ev.gen, s.waitGen)
			return nil, false, nil
		}
		s.waitRemaining = ev.Remaining
		return nil, true, nil
	case EventWaitDone:
		if !waiting || ev.gen != s.waitGen {
			s.log.Debug("sequencer: dropping stale wait completion (gen=%d, live=%d)", ev.gen, s.waitGen)
			return nil, false, nil
		}
		s.waitRemaining = 0
		return s.advance(), true, nil
	case EventClose:
		s.closeLocked()
		return nil, true, nil
	default:
		return nil, false, s.invalid(ev)
	}
}

func (s *Sequencer) invalid(ev Event) error {
	return fmt.Errorf("%w: %s while %s", domain.ErrInvalidTransition, ev.Type, s.state)
}

func (s *Sequencer) current() domain.RoutineStep {
	return s.section.Steps[s.index]
}

func (s *Sequencer) markDone() []effect {
	step := s.current()
	if step.IsPending {
		return s.advance()
	}

	already := s.completed[step.ID]
	var effects []effect

	if sets := step.Sets(); step.Type == domain.StepExercise && sets > 0 {
		per := XPPerSet(sets)
		if !already && !s.awarded[step.ID][s.set] {
			if s.awarded[step.ID] == nil {
				s.awarded[step.ID] = make(map[int]bool, sets)
			}
			s.awarded[step.ID][s.set] = true
			s.xpEarned += per
			effects = append(effects, s.xpEffect(step.ID, per, s.set+1))
		}
		if s.set < sets-1 {
			s.set++
			return effects
		}
		xp := per * len(s.awarded[step.ID])
		if already {
			xp = 0
		}
		s.completed[step.ID] = true
		effects = append(effects, s.stepCompleteEffect(step.ID, xp))
		return append(effects, s.afterStep(step)...)
	}

	xp := 0
	if !already {
		xp = XPForStep(step)
		s.xpEarned += xp
		effects = append(effects, s.xpEffect(step.ID, xp, 0))
	}
	s.completed[step.ID] = true
	effects = append(effects, s.stepCompleteEffect(step.ID, xp))
	return append(effects, s.afterStep(step)...)
}

// afterStep starts the wait after a completed step, or moves on.
func (s *Sequencer) afterStep(step domain.RoutineStep) []effect {
	wait := step.Session.WaitAfterSeconds
	if wait <= 0 || s.index == len(s.section.Steps)-1 {
		return s.advance()
	}
	s.startWaitLocked(wait)
	return nil
}

func (s *Sequencer) skipStep() []effect {
	step := s.current()
	ev := domain.SkipEvent{
		UserID:  s.userID,
		Section: s.section.Name,
		Kind:    domain.SkipStep,
		StepID:  step.ID,
		At:      s.now(),
	}
	effects := []effect{s.skipEffect(ev)}
	return append(effects, s.advance()...)
}

func (s *Sequencer) skipWait() []effect {
	step := s.current()
	if s.redo {
		return s.advance()
	}
	s.xpEarned += SkipWaitPenalty
	effects := []effect{
		s.xpEffect(step.ID, SkipWaitPenalty, 0),
		s.skipEffect(domain.SkipEvent{
			UserID:           s.userID,
			Section:          s.section.Name,
			Kind:             domain.SkipWait,
			StepID:           step.ID,
			RemainingSeconds: s.waitRemaining,
			At:               s.now(),
		}),
	}
	return append(effects, s.advance()...)
}

// advance moves to the next step, or completes the section on the last.
func (s *Sequencer) advance() []effect {
	s.stopWaitLocked()
	s.set = 0

	if s.index >= len(s.section.Steps)-1 {
		s.state = StateComplete
		ids := s.section.ActiveStepIDs()
		s.log.Info("sequencer: %s complete (xp=%d)", s.section.Name, s.xpEarned)
		return []effect{s.sessionCompleteEffect(ids)}
	}

	s.index++
	s.state = StateIdle
	s.log.Debug("sequencer: %s step %d/%d %s", s.section.Name, s.index+1, len(s.section.Steps), s.current().ID)
	return nil
}

func (s *Sequencer) startWaitLocked(seconds int) {
	s.state = StateWaiting
	s.waitRemaining = seconds
	s.waitGen++
	gen := s.waitGen
	ctx := s.baseCtx

	s.timer.Start(ctx, seconds,
		func(remaining int) {
			_, _ = s.Dispatch(ctx, Event{Type: EventTick, Remaining: remaining, gen: gen})
		},
		func() {
			if _, err := s.Dispatch(ctx, Event{Type: EventWaitDone, gen: gen}); err != nil {
				s.log.Warn("sequencer: wait completion: %v", err)
			}
		},
	)
	s.log.Debug("sequencer: waiting %ds after %s (gen=%d)", seconds, s.current().ID, gen)
}

func (s *Sequencer) stopWaitLocked() {
	if s.state != StateWaiting {
		return
	}
	s.timer.Stop()
	s.waitRemaining = 0
}

func (s *Sequencer) closeLocked() {
	s.stopWaitLocked()
	s.state = StateClosed
	s.log.Debug("sequencer: %s closed", s.section.Name)
}

func (s *Sequencer) snapshotLocked() Snapshot {
	step := s.current()
	snap := Snapshot{
		Section:       s.section.Name,
		State:         s.state,
		StepIndex:     s.index,
		StepCount:     len(s.section.Steps),
		Step:          &step,
		WaitRemaining: s.waitRemaining,
		XPEarned:      s.xpEarned,
		TotalXP:       s.totalXP,
		Redo:          s.redo,
	}
	if sets := step.Sets(); sets > 0 {
		snap.TotalSets = sets
		snap.CurrentSet = s.set + 1
	}
	for id := range s.completed {
		snap.CompletedStepIDs = append(snap.CompletedStepIDs, id)
	}
	sort.Strings(snap.CompletedStepIDs)
	return snap
}

// effect is a collaborator call made after the lock is released.
type effect struct {
	name string
	fn   func(ctx context.Context) error
}

func (s *Sequencer) run(ctx context.Context, effects []effect) {
	for _, e := range effects {
		if e.fn == nil {
			continue
		}
		if err := e.fn(ctx); err != nil {
			s.log.Warn("sequencer: %s failed: %v", e.name, err)
		}
	}
}

func (s *Sequencer) xpEffect(stepID string, amount, set int) effect {
	ev := domain.XPEvent{
		UserID:  s.userID,
		Section: s.section.Name,
		StepID:  stepID,
		Amount:  amount,
		Set:     set,
		At:      s.now(),
	}
	if s.rewards == nil {
		return effect{name: "xp"}
	}
	return effect{name: "xp " + stepID, fn: func(ctx context.Context) error {
		return s.rewards.XPEarned(ctx, ev)
	}}
}

func (s *Sequencer) skipEffect(ev domain.SkipEvent) effect {
	if s.rewards == nil {
		return effect{name: "skip"}
	}
	return effect{name: "skip " + ev.StepID, fn: func(ctx context.Context) error {
		return s.rewards.SkipTracked(ctx, ev)
	}}
}

func (s *Sequencer) stepCompleteEffect(stepID string, xp int) effect {
	if s.tracker == nil {
		return effect{name: "step complete"}
	}
	return effect{name: "step complete " + stepID, fn: func(ctx context.Context) error {
		return s.tracker.MarkStepComplete(ctx, stepID, xp)
	}}
}

func (s *Sequencer) sessionCompleteEffect(ids []string) effect {
	if s.tracker == nil {
		return effect{name: "session complete"}
	}
	section := s.section.Name
	return effect{name: "session complete", fn: func(ctx context.Context) error {
		return s.tracker.MarkSessionComplete(ctx, section, ids)
	}}
}
