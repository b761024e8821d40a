// Package domain defines the core types and interfaces for the routine engine.
// All other packages depend on domain; domain depends on nothing.
package domain

import "fmt"

// SectionName identifies a time-of-day routine section.
type SectionName string

const (
	SectionMorning SectionName = "morning"
	SectionEvening SectionName = "evening"
	// SectionExercises is the exercise hub. It is built separately from
	// the time-of-day sections.
	SectionExercises SectionName = "exercises"
)

// ParseSectionName validates a section name from user input.
func ParseSectionName(s string) (SectionName, error) {
	switch SectionName(s) {
	case SectionMorning, SectionEvening, SectionExercises:
		return SectionName(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownSection, s)
	}
}

// StepType tags the variant of a routine step.
type StepType string

const (
	StepBase       StepType = "base_step"
	StepIngredient StepType = "ingredient"
	StepExercise   StepType = "exercise"
)

// DefaultRoutineOrder is used when a catalog entry declares no routine order.
const DefaultRoutineOrder = 999

// WashFaceID is the base step that always leads a section.
const WashFaceID = "wash_face"

// RoutineStep is one actionable unit in a session. Steps are rebuilt from
// selections and the catalog; they are never mutated in place.
type RoutineStep struct {
	ID           string           `json:"id"`
	Type         StepType         `json:"type"`
	DisplayName  string           `json:"display_name"`
	StepCategory string           `json:"step_category,omitempty"`
	RoutineOrder *int             `json:"routine_order,omitempty"`
	Session      SessionAction    `json:"session"`
	IsPending    bool             `json:"is_pending"`             // ghost step: the product is not confirmed yet
	ProductName  string           `json:"product_name,omitempty"` // user-supplied label for the actual product
	Exercise     *ExercisePayload `json:"exercise,omitempty"`
}

// Order returns the routine order, or DefaultRoutineOrder when unset.
func (s RoutineStep) Order() int {
	if s.RoutineOrder == nil {
		return DefaultRoutineOrder
	}
	return *s.RoutineOrder
}

// Sets returns the exercise's default set count, 0 for non-exercise steps.
func (s RoutineStep) Sets() int {
	if s.Type != StepExercise || s.Exercise == nil {
		return 0
	}
	return s.Exercise.DefaultSets
}

// Label is the name shown to the user: the product name when known.
func (s RoutineStep) Label() string {
	if s.ProductName != "" {
		return fmt.Sprintf("%s (%s)", s.DisplayName, s.ProductName)
	}
	return s.DisplayName
}

// SessionAction is the embedded action descriptor of a step.
type SessionAction struct {
	Action           string  `yaml:"action" json:"action"`
	DurationSeconds  *int    `yaml:"duration_seconds" json:"duration_seconds"` // nil = no fixed duration
	WaitAfterSeconds int     `yaml:"wait_after_seconds" json:"wait_after_seconds"`
	Tip              *string `yaml:"tip" json:"tip,omitempty"`
	IsContinuous     bool    `yaml:"is_continuous" json:"is_continuous"`
}

// Duration returns the fixed duration in seconds, 0 when unset.
func (a SessionAction) Duration() int {
	if a.DurationSeconds == nil {
		return 0
	}
	return *a.DurationSeconds
}

// ExercisePayload carries set and variation data for exercise steps.
type ExercisePayload struct {
	DefaultSets    int        `json:"default_sets"`
	TodayVariation *Variation `json:"today_variation,omitempty"`
}

// Variation is the hold/release cadence of a cyclic exercise.
type Variation struct {
	HoldSeconds    int `yaml:"hold_seconds" json:"hold_seconds"`
	ReleaseSeconds int `yaml:"release_seconds" json:"release_seconds"`
}

// RoutineSection is an ordered sequence of steps for one time of day.
type RoutineSection struct {
	Name              SectionName   `json:"name"`
	Steps             []RoutineStep `json:"steps"`
	EstimatedDuration int           `json:"estimated_duration"` // seconds
}

// ActiveStepIDs returns the ids of all non-pending steps, in order.
func (s RoutineSection) ActiveStepIDs() []string {
	ids := make([]string, 0, len(s.Steps))
	for _, st := range s.Steps {
		if !st.IsPending {
			ids = append(ids, st.ID)
		}
	}
	return ids
}
