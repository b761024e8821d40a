// Package engine ties routine building, session sequencing and the pending
// product prompt to the stores. It is the entry point for the HTTP API and
// the terminal player.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hammamikhairi/glowroutine/internal/builder"
	"github.com/hammamikhairi/glowroutine/internal/domain"
	"github.com/hammamikhairi/glowroutine/internal/logger"
	"github.com/hammamikhairi/glowroutine/internal/metrics"
	"github.com/hammamikhairi/glowroutine/internal/pending"
	"github.com/hammamikhairi/glowroutine/internal/sequencer"
	"github.com/hammamikhairi/glowroutine/internal/timer"
)

// Option configures the engine.
type Option func(*Engine)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithRewards sets the XP and skip sink handed to every session.
func WithRewards(r domain.RewardSink) Option {
	return func(e *Engine) {
		e.rewards = r
	}
}

// WithTimerFactory replaces the wait timer each session gets.
func WithTimerFactory(f func() sequencer.WaitTimer) Option {
	return func(e *Engine) {
		e.newTimer = f
	}
}

// WithTickInterval sets the length of one countdown second for the
// default timer factory.
func WithTickInterval(d time.Duration) Option {
	return func(e *Engine) {
		e.tickInterval = d
	}
}

// WithListener receives every session snapshot, timer ticks included.
func WithListener(fn func(sessionID string, snap sequencer.Snapshot)) Option {
	return func(e *Engine) {
		e.listener = fn
	}
}

// WithoutPendingSteps builds sections without ghost steps.
func WithoutPendingSteps() Option {
	return func(e *Engine) {
		e.buildOpts = append(e.buildOpts, builder.WithoutPending())
	}
}

// Session is a running section for one user.
type Session struct {
	ID        string
	UserID    string
	Section   domain.SectionName
	StartedAt time.Time

	seq    *sequencer.Sequencer
	cancel context.CancelFunc
}

// SessionInfo is the public view of a session.
type SessionInfo struct {
	ID        string             `json:"id"`
	UserID    string             `json:"user_id"`
	Section   domain.SectionName `json:"section"`
	StartedAt time.Time          `json:"started_at"`
	Snapshot  sequencer.Snapshot `json:"snapshot"`
}

// Engine manages routine sessions. It depends only on interfaces and is
// fully testable with fakes.
type Engine struct {
	catalog      domain.CatalogProvider
	store        domain.SelectionStore
	completions  domain.CompletionLog
	rewards      domain.RewardSink
	log          *logger.Logger
	now          func() time.Time
	newTimer     func() sequencer.WaitTimer
	tickInterval time.Duration
	listener     func(string, sequencer.Snapshot)
	buildOpts    []builder.Option

	mu       sync.RWMutex
	sessions map[string]*Session
}

// New creates an engine with the given dependencies and options.
func New(catalog domain.CatalogProvider, store domain.SelectionStore, completions domain.CompletionLog, log *logger.Logger, opts ...Option) *Engine {
	e := &Engine{
		catalog:      catalog,
		store:        store,
		completions:  completions,
		log:          log,
		now:          time.Now,
		tickInterval: time.Second,
		sessions:     make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.newTimer == nil {
		e.newTimer = func() sequencer.WaitTimer {
			return timer.New(e.log, timer.WithTickInterval(e.tickInterval))
		}
	}
	return e
}

// loadData returns the user's selections. Unknown users get an empty
// record so first-time users still see their base steps.
func (e *Engine) loadData(ctx context.Context, userID string) (*domain.UserRoutineData, error) {
	data, err := e.store.Load(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return &domain.UserRoutineData{UserID: userID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading selections for %s: %w", userID, err)
	}
	return data, nil
}

// Sections builds the user's morning and evening sections.
func (e *Engine) Sections(ctx context.Context, userID string) ([]domain.RoutineSection, error) {
	data, err := e.loadData(ctx, userID)
	if err != nil {
		return nil, err
	}
	return builder.BuildSections(data, e.catalog.Catalog(), e.buildOpts...), nil
}

// ExerciseHub builds the user's exercise section. ok is false when the
// user has no exercises.
func (e *Engine) ExerciseHub(ctx context.Context, userID string) (domain.RoutineSection, bool, error) {
	data, err := e.loadData(ctx, userID)
	if err != nil {
		return domain.RoutineSection{}, false, err
	}
	hub, ok := builder.BuildExerciseHub(data, e.catalog.Catalog(), e.now())
	return hub, ok, nil
}

// Section builds a single section by name.
func (e *Engine) Section(ctx context.Context, userID string, name domain.SectionName) (domain.RoutineSection, error) {
	if name == domain.SectionExercises {
		hub, ok, err := e.ExerciseHub(ctx, userID)
		if err != nil {
			return domain.RoutineSection{}, err
		}
		if !ok {
			return domain.RoutineSection{}, fmt.Errorf("%w: %s", domain.ErrEmptySection, name)
		}
		return hub, nil
	}

	sections, err := e.Sections(ctx, userID)
	if err != nil {
		return domain.RoutineSection{}, err
	}
	sec, ok := builder.FindSection(sections, name)
	if !ok {
		return domain.RoutineSection{}, fmt.Errorf("%w: %s", domain.ErrEmptySection, name)
	}
	return sec, nil
}

// StartSession builds the section and starts a sequencer on it. Today's
// completions decide whether the run is a redo.
func (e *Engine) StartSession(ctx context.Context, userID string, name domain.SectionName) (*SessionInfo, error) {
	sec, err := e.Section(ctx, userID, name)
	if err != nil {
		return nil, err
	}

	completed, err := e.completions.CompletedSteps(ctx, userID, name, e.now())
	if err != nil {
		// A missing history only costs the redo waiver.
		e.log.Warn("loading today's completions for %s: %v", userID, err)
		metrics.IncCollaboratorError("completed_steps")
		completed = nil
	}

	id := generateID()
	sessCtx, cancel := context.WithCancel(context.Background())

	opts := []sequencer.Option{
		sequencer.WithTracker(&userTracker{userID: userID, section: name, log: e.completions, now: e.now}),
		sequencer.WithTimer(e.newTimer()),
		sequencer.WithUserID(userID),
		sequencer.WithClock(e.now),
	}
	if e.rewards != nil {
		opts = append(opts, sequencer.WithRewards(e.rewards))
	}
	listener := e.listener
	opts = append(opts, sequencer.WithListener(func(s sequencer.Snapshot) {
		if listener != nil {
			listener(id, s)
		}
		if s.State == sequencer.StateComplete {
			e.retire(id)
		}
	}))

	seq, err := sequencer.New(sessCtx, sec, completed, e.log, opts...)
	if err != nil {
		cancel()
		return nil, err
	}

	sess := &Session{
		ID:        id,
		UserID:    userID,
		Section:   name,
		StartedAt: e.now(),
		seq:       seq,
		cancel:    cancel,
	}

	e.mu.Lock()
	e.sessions[id] = sess
	e.mu.Unlock()

	metrics.IncSessionStarted(string(name))
	e.log.Info("started %s session %s for %s (%d steps, %d xp available)", name, id, userID, len(sec.Steps), sequencer.TotalXP(sec))

	info := sess.info()
	return &info, nil
}

func (s *Session) info() SessionInfo {
	return SessionInfo{
		ID:        s.ID,
		UserID:    s.UserID,
		Section:   s.Section,
		StartedAt: s.StartedAt,
		Snapshot:  s.seq.Snapshot(),
	}
}

func (e *Engine) session(id string) (*Session, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	sess, ok := e.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, domain.ErrNotFound)
	}
	return sess, nil
}

// Dispatch sends a user event to a session.
func (e *Engine) Dispatch(ctx context.Context, sessionID string, ev sequencer.EventType) (sequencer.Snapshot, error) {
	sess, err := e.session(sessionID)
	if err != nil {
		return sequencer.Snapshot{}, err
	}
	if ev == sequencer.EventClose {
		return sequencer.Snapshot{}, e.CloseSession(ctx, sessionID)
	}

	snap, err := sess.seq.Dispatch(ctx, sequencer.Event{Type: ev})
	if err != nil {
		e.log.Debug("session %s rejected %s: %v", sessionID, ev, err)
		return snap, err
	}
	return snap, nil
}

// Status returns a session's current view.
func (e *Engine) Status(sessionID string) (SessionInfo, error) {
	sess, err := e.session(sessionID)
	if err != nil {
		return SessionInfo{}, err
	}
	return sess.info(), nil
}

// ActiveSessions lists open sessions, oldest first.
func (e *Engine) ActiveSessions() []SessionInfo {
	e.mu.RLock()
	out := make([]SessionInfo, 0, len(e.sessions))
	for _, s := range e.sessions {
		out = append(out, s.info())
	}
	e.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// CloseSession stops the session's timer and forgets it.
func (e *Engine) CloseSession(ctx context.Context, sessionID string) error {
	sess, ok := e.remove(sessionID)
	if !ok {
		return fmt.Errorf("session %s: %w", sessionID, domain.ErrNotFound)
	}

	sess.seq.Close(ctx)
	e.log.Info("closed session %s", sessionID)
	return nil
}

// retire forgets a session that ran to completion. Its final snapshot has
// already gone to the listener and back to the caller of Dispatch.
func (e *Engine) retire(sessionID string) {
	if _, ok := e.remove(sessionID); ok {
		e.log.Info("session %s complete", sessionID)
	}
}

func (e *Engine) remove(sessionID string) (*Session, bool) {
	e.mu.Lock()
	sess, ok := e.sessions[sessionID]
	if ok {
		delete(e.sessions, sessionID)
	}
	e.mu.Unlock()
	if !ok {
		return nil, false
	}
	sess.cancel()
	metrics.DecActiveSessions()
	return sess, true
}

// Shutdown closes every open session.
func (e *Engine) Shutdown(ctx context.Context) {
	e.mu.RLock()
	ids := make([]string, 0, len(e.sessions))
	for id := range e.sessions {
		ids = append(ids, id)
	}
	e.mu.RUnlock()

	for _, id := range ids {
		_ = e.CloseSession(ctx, id)
	}
}

// ResolvePending records the user's answer for a pending product.
func (e *Engine) ResolvePending(ctx context.Context, userID, ingredientID string, out pending.Outcome) (domain.IngredientSelection, error) {
	if _, ok := e.catalog.Catalog().Ingredient(ingredientID); !ok {
		return domain.IngredientSelection{}, fmt.Errorf("ingredient %s: %w", ingredientID, domain.ErrNotFound)
	}
	sel, err := pending.Apply(ctx, e.store, userID, ingredientID, out, e.now())
	if err != nil {
		return domain.IngredientSelection{}, err
	}
	e.log.Info("resolved pending %s for %s: %s", ingredientID, userID, out.Kind)
	return sel, nil
}

// NewPendingFlow starts an interactive prompt for a pending product.
func (e *Engine) NewPendingFlow(userID, ingredientID string) *pending.Flow {
	return pending.NewFlow(e.store, userID, ingredientID, e.log, pending.WithClock(e.now))
}

// Subscribe forwards selection changes for a user.
func (e *Engine) Subscribe(ctx context.Context, userID string, fn func(*domain.UserRoutineData)) (func(), error) {
	return e.store.Subscribe(ctx, userID, fn)
}
