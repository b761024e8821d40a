// Package pending implements the prompt shown for a product the user has
// selected but not confirmed: do you have it, will it arrive later, or
// should it be dropped.
package pending

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hammamikhairi/glowroutine/internal/domain"
	"github.com/hammamikhairi/glowroutine/internal/logger"
)

// State is a step of the prompt.
type State int

const (
	StateInitial State = iota
	StateHave
	StateDontHave
	StateDefer
	StateSkip
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateInitial:
		return "initial"
	case StateHave:
		return "have"
	case StateDontHave:
		return "dont_have"
	case StateDefer:
		return "defer"
	case StateSkip:
		return "skip"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ValidDeferDays are the deferral lengths offered to the user.
var ValidDeferDays = []int{1, 3, 7}

// Kind is the result a closed prompt writes back.
type Kind string

const (
	KindAdded    Kind = "added"
	KindDeferred Kind = "deferred"
	KindSkipped  Kind = "skipped"
)

// Outcome is what the user decided.
type Outcome struct {
	Kind        Kind
	ProductName string // KindAdded
	Days        int    // KindDeferred
}

// Validate checks the outcome's payload.
func (o Outcome) Validate() error {
	switch o.Kind {
	case KindAdded:
		if strings.TrimSpace(o.ProductName) == "" {
			return domain.ErrEmptyProductName
		}
	case KindDeferred:
		if !validDays(o.Days) {
			return fmt.Errorf("%w: got %d", domain.ErrInvalidDeferral, o.Days)
		}
	case KindSkipped:
	default:
		return fmt.Errorf("%w: unknown outcome %q", domain.ErrInvalidTransition, o.Kind)
	}
	return nil
}

func validDays(days int) bool {
	for _, d := range ValidDeferDays {
		if d == days {
			return true
		}
	}
	return false
}

// Apply writes an outcome for one ingredient straight to the store.
func Apply(ctx context.Context, store domain.SelectionStore, userID, ingredientID string, out Outcome, now time.Time) (domain.IngredientSelection, error) {
	if err := out.Validate(); err != nil {
		return domain.IngredientSelection{}, err
	}

	sel := domain.IngredientSelection{ID: ingredientID, UpdatedAt: now}
	switch out.Kind {
	case KindAdded:
		sel.State = domain.SelectionAdded
		sel.ProductName = strings.TrimSpace(out.ProductName)
	case KindDeferred:
		until := now.AddDate(0, 0, out.Days)
		sel.State = domain.SelectionDeferred
		sel.DeferUntil = &until
	case KindSkipped:
		sel.State = domain.SelectionSkipped
	}

	patch := domain.SelectionPatch{Ingredients: []domain.IngredientSelection{sel}}
	if err := store.Update(ctx, userID, patch); err != nil {
		return domain.IngredientSelection{}, fmt.Errorf("saving %s for %s: %w", ingredientID, userID, err)
	}
	return sel, nil
}

// Option configures a flow.
type Option func(*Flow)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(f *Flow) { f.now = now }
}

// Flow is one run of the prompt for a single ingredient.
type Flow struct {
	store        domain.SelectionStore
	userID       string
	ingredientID string
	log          *logger.Logger
	now          func() time.Time

	mu      sync.Mutex
	state   State
	outcome *Outcome
}

// NewFlow starts a prompt in the initial state.
func NewFlow(store domain.SelectionStore, userID, ingredientID string, log *logger.Logger, opts ...Option) *Flow {
	f := &Flow{
		store:        store,
		userID:       userID,
		ingredientID: ingredientID,
		log:          log,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// State returns the current state.
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Outcome returns the saved outcome, nil while open or after Cancel.
func (f *Flow) Outcome() *Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.outcome == nil {
		return nil
	}
	out := *f.outcome
	return &out
}

// IngredientID returns the ingredient the prompt is about.
func (f *Flow) IngredientID() string { return f.ingredientID }

// ChooseHave moves to the product name entry.
func (f *Flow) ChooseHave() error { return f.move(StateInitial, StateHave) }

// ChooseDontHave moves to the defer-or-skip choice.
func (f *Flow) ChooseDontHave() error { return f.move(StateInitial, StateDontHave) }

// ChooseDefer moves to the deferral length choice.
func (f *Flow) ChooseDefer() error { return f.move(StateDontHave, StateDefer) }

// ChooseSkip moves to the skip confirmation.
func (f *Flow) ChooseSkip() error { return f.move(StateDontHave, StateSkip) }

// Submit records the product the user has.
func (f *Flow) Submit(ctx context.Context, productName string) error {
	return f.finish(ctx, StateHave, Outcome{Kind: KindAdded, ProductName: productName})
}

// DeferFor pushes the prompt back by days.
func (f *Flow) DeferFor(ctx context.Context, days int) error {
	return f.finish(ctx, StateDefer, Outcome{Kind: KindDeferred, Days: days})
}

// ConfirmSkip drops the ingredient from the routine.
func (f *Flow) ConfirmSkip(ctx context.Context) error {
	return f.finish(ctx, StateSkip, Outcome{Kind: KindSkipped})
}

// Cancel closes the prompt without writing. Only the name entry and the
// deferral choice can be cancelled; the other states need an answer.
func (f *Flow) Cancel() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != StateHave && f.state != StateDefer {
		return f.invalid("cancel")
	}
	f.log.Debug("pending: %s/%s cancelled from %s", f.userID, f.ingredientID, f.state)
	f.state = StateClosed
	return nil
}

func (f *Flow) move(from, to State) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != from {
		return f.invalid(to.String())
	}
	f.state = to
	return nil
}

// finish validates and saves the outcome. On any error the flow stays in
// its current state so the user can retry.
func (f *Flow) finish(ctx context.Context, from State, out Outcome) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != from {
		return f.invalid(string(out.Kind))
	}

	if _, err := Apply(ctx, f.store, f.userID, f.ingredientID, out, f.now()); err != nil {
		f.log.Warn("pending: %s/%s: %v", f.userID, f.ingredientID, err)
		return err
	}

	f.state = StateClosed
	f.outcome = &out
	f.log.Info("pending: %s/%s -> %s", f.userID, f.ingredientID, out.Kind)
	return nil
}

func (f *Flow) invalid(action string) error {
	return fmt.Errorf("%w: %s from %s", domain.ErrInvalidTransition, action, f.state)
}
