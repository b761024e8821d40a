package sequencer

import "github.com/hammamikhairi/glowroutine/internal/domain"

// XP values.
const (
	StepXP          = 10
	ExerciseXP      = 15
	SkipWaitPenalty = -5
)

// XPPerSet is the XP for one exercise set, rounded up. The sum over all
// sets can exceed ExerciseXP (4 sets -> 16); product copy depends on that
// total, so it is kept as is.
func XPPerSet(sets int) int {
	if sets <= 0 {
		return ExerciseXP
	}
	return (ExerciseXP + sets - 1) / sets
}

// XPForStep is the XP a full first-pass completion of step awards. An
// exercise without sets counts as a plain step.
func XPForStep(step domain.RoutineStep) int {
	switch {
	case step.IsPending:
		return 0
	case step.Type != domain.StepExercise:
		return StepXP
	case step.Sets() > 0:
		return step.Sets() * XPPerSet(step.Sets())
	default:
		return StepXP
	}
}

// TotalXP is the XP available in a section, computable before running it.
func TotalXP(section domain.RoutineSection) int {
	total := 0
	for _, st := range section.Steps {
		total += XPForStep(st)
	}
	return total
}
