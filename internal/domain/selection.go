package domain

import (
	"fmt"
	"time"
)

// UserRoutineData is everything the persistence layer holds about a
// user's routine: product and exercise selections plus profile flags.
type UserRoutineData struct {
	UserID            string                `yaml:"user_id" json:"user_id"`
	Ingredients       []IngredientSelection `yaml:"ingredients" json:"ingredients"`
	Exercises         []ExerciseSelection   `yaml:"exercises" json:"exercises"`
	Concerns          []string              `yaml:"concerns" json:"concerns"`
	ExcludedBaseSteps []string              `yaml:"excluded_base_steps" json:"excluded_base_steps"`
	Premium           bool                  `yaml:"premium" json:"premium"`
	UpdatedAt         time.Time             `yaml:"-" json:"updated_at"`
}

// Ingredient returns the selection for an ingredient id.
func (d *UserRoutineData) Ingredient(id string) (IngredientSelection, bool) {
	for _, sel := range d.Ingredients {
		if sel.ID == id {
			return sel, true
		}
	}
	return IngredientSelection{}, false
}

// Excludes reports whether the user opted out of a base step.
func (d *UserRoutineData) Excludes(baseStepID string) bool {
	for _, id := range d.ExcludedBaseSteps {
		if id == baseStepID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers can hand data across goroutines.
func (d *UserRoutineData) Clone() *UserRoutineData {
	out := *d
	out.Ingredients = append([]IngredientSelection(nil), d.Ingredients...)
	for i, sel := range out.Ingredients {
		if sel.DeferUntil != nil {
			t := *sel.DeferUntil
			out.Ingredients[i].DeferUntil = &t
		}
	}
	out.Exercises = append([]ExerciseSelection(nil), d.Exercises...)
	out.Concerns = append([]string(nil), d.Concerns...)
	out.ExcludedBaseSteps = append([]string(nil), d.ExcludedBaseSteps...)
	return &out
}

// IngredientSelection is the user's relationship to one catalog ingredient.
type IngredientSelection struct {
	ID          string         `yaml:"id" json:"id"`
	State       SelectionState `yaml:"state" json:"state"`
	ProductName string         `yaml:"product_name,omitempty" json:"product_name,omitempty"`
	DeferUntil  *time.Time     `yaml:"defer_until,omitempty" json:"defer_until,omitempty"`
	UpdatedAt   time.Time      `yaml:"-" json:"updated_at"`
}

// WaitingForDelivery reports whether the user deferred the product while
// waiting for it to arrive.
func (s IngredientSelection) WaitingForDelivery() bool {
	return s.State == SelectionDeferred
}

// ExerciseSelection is the user's relationship to one catalog exercise.
type ExerciseSelection struct {
	ID    string         `yaml:"id" json:"id"`
	State SelectionState `yaml:"state" json:"state"`
}

// SelectionPatch is a partial update: selections are merged by id.
type SelectionPatch struct {
	Ingredients []IngredientSelection
	Exercises   []ExerciseSelection
}

// SelectionState is the resolved state of a selection.
type SelectionState int

const (
	SelectionPending SelectionState = iota
	SelectionAdded
	SelectionSkipped
	SelectionDeferred
)

// String returns the canonical state name.
func (s SelectionState) String() string {
	switch s {
	case SelectionPending:
		return "pending"
	case SelectionAdded:
		return "added"
	case SelectionSkipped:
		return "skipped"
	case SelectionDeferred:
		return "deferred"
	default:
		return "unknown"
	}
}

// Legacy state written by older clients. Resolved by ResolveSelectionState.
const legacyNotReceived = "not_received"

// ResolveSelectionState maps a stored state string to a SelectionState.
// The legacy "not_received" value becomes deferred when the user was
// waiting for delivery, pending otherwise.
func ResolveSelectionState(raw string, waitingForDelivery bool) (SelectionState, error) {
	switch raw {
	case "pending", "":
		return SelectionPending, nil
	case "added":
		return SelectionAdded, nil
	case "skipped":
		return SelectionSkipped, nil
	case "deferred":
		return SelectionDeferred, nil
	case legacyNotReceived:
		if waitingForDelivery {
			return SelectionDeferred, nil
		}
		return SelectionPending, nil
	default:
		return SelectionPending, fmt.Errorf("unknown selection state %q", raw)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s SelectionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. The legacy
// "not_received" value decodes as pending here; stores that persist the
// waiting flag call ResolveSelectionState directly.
func (s *SelectionState) UnmarshalText(b []byte) error {
	st, err := ResolveSelectionState(string(b), false)
	if err != nil {
		return err
	}
	*s = st
	return nil
}
