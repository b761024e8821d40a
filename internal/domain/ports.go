package domain

import (
	"context"
	"time"
)

// SelectionStore persists a user's routine selections. Implementations can
// be in-memory or Postgres. Writes are whole-record last-writer-wins.
type SelectionStore interface {
	Load(ctx context.Context, userID string) (*UserRoutineData, error)
	Update(ctx context.Context, userID string, patch SelectionPatch) error
	// Subscribe pushes the full record to fn after every change until the
	// returned unsubscribe function is called or ctx is cancelled.
	Subscribe(ctx context.Context, userID string, fn func(*UserRoutineData)) (unsubscribe func(), err error)
}

// DeferredLister finds deferred selections whose defer date has passed.
type DeferredLister interface {
	DueDeferred(ctx context.Context, now time.Time) ([]DueSelection, error)
}

// DueSelection is a deferred ingredient that is ready to be re-prompted.
type DueSelection struct {
	UserID       string
	IngredientID string
	DeferUntil   time.Time
}

// CompletionTracker receives completion events from a running session.
// It is already bound to a user, a section and a day.
type CompletionTracker interface {
	MarkStepComplete(ctx context.Context, stepID string, xp int) error
	MarkSessionComplete(ctx context.Context, section SectionName, stepIDs []string) error
}

// CompletionLog stores completions per user, section and day. A step that
// appears in both sections is tracked separately for each.
type CompletionLog interface {
	RecordStep(ctx context.Context, rec CompletionRecord) error
	RecordSession(ctx context.Context, rec SessionRecord) error
	CompletedSteps(ctx context.Context, userID string, section SectionName, day time.Time) ([]string, error)
}

// CompletionRecord is one completed step.
type CompletionRecord struct {
	UserID      string
	Section     SectionName
	StepID      string
	XP          int
	CompletedAt time.Time
}

// SessionRecord is one completed section run.
type SessionRecord struct {
	UserID      string
	Section     SectionName
	StepIDs     []string
	CompletedAt time.Time
}

// CatalogProvider serves the current content catalog.
type CatalogProvider interface {
	Catalog() *Catalog
}

// RewardSink receives gamification and analytics events. Failures are
// never allowed to block a session.
type RewardSink interface {
	XPEarned(ctx context.Context, ev XPEvent) error
	SkipTracked(ctx context.Context, ev SkipEvent) error
}

// XPEvent is an XP award or penalty.
type XPEvent struct {
	UserID  string      `json:"user_id,omitempty"`
	Section SectionName `json:"section"`
	StepID  string      `json:"step_id"`
	Amount  int         `json:"amount"`
	Set     int         `json:"set,omitempty"` // 1-based set number for exercise sets
	At      time.Time   `json:"at"`
}

// SkipKind classifies what the user skipped.
type SkipKind string

const (
	SkipWait SkipKind = "wait"
	SkipStep SkipKind = "step"
)

// SkipEvent records a skipped wait or step.
type SkipEvent struct {
	UserID           string      `json:"user_id,omitempty"`
	Section          SectionName `json:"section"`
	Kind             SkipKind    `json:"kind"`
	StepID           string      `json:"step_id"`
	RemainingSeconds int         `json:"remaining_seconds,omitempty"`
	At               time.Time   `json:"at"`
}

// IntentParser converts raw user input into structured intents.
type IntentParser interface {
	Parse(ctx context.Context, input string) (*Intent, error)
}

// Notifier delivers messages to the user. Implementations can write to
// stdout or publish to the event bus.
type Notifier interface {
	Notify(ctx context.Context, message string) error
	NotifyUrgent(ctx context.Context, message string) error
}
