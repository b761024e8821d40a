// Package builder turns a user's selections and the static catalog into
// ordered routine sections. Everything here is pure: no I/O, no clocks
// other than the one passed in.
package builder

import (
	"sort"
	"time"

	"github.com/hammamikhairi/glowroutine/internal/domain"
)

// Option configures a build.
type Option func(*options)

type options struct {
	includePending bool
}

// WithoutPending leaves pending and deferred products out instead of
// emitting them as ghost steps.
func WithoutPending() Option {
	return func(o *options) { o.includePending = false }
}

// BuildSections produces the morning and evening sections. Sections without
// steps are omitted.
func BuildSections(data *domain.UserRoutineData, cat *domain.Catalog, opts ...Option) []domain.RoutineSection {
	o := options{includePending: true}
	for _, opt := range opts {
		opt(&o)
	}

	var morning, evening, flexible []domain.RoutineStep
	seen := make(map[string]bool, len(data.Ingredients))

	for _, sel := range data.Ingredients {
		if seen[sel.ID] {
			continue
		}

		var pending bool
		switch sel.State {
		case domain.SelectionAdded:
		case domain.SelectionPending, domain.SelectionDeferred:
			if !o.includePending {
				continue
			}
			pending = true
		default:
			continue
		}

		entry, ok := cat.Ingredient(sel.ID)
		if !ok {
			continue
		}
		// Premium items the user already added stay in the routine after
		// the subscription lapses; new premium ghosts do not appear.
		if entry.Premium && !data.Premium && pending {
			continue
		}
		seen[sel.ID] = true

		step := ingredientStep(entry, sel, pending)
		switch entry.Timing() {
		case domain.TimingMorning:
			morning = append(morning, step)
		case domain.TimingEvening:
			evening = append(evening, step)
		default:
			flexible = append(flexible, step)
		}
	}

	// Balance in a fixed order so the same input always lands the same way.
	sortSteps(cat, flexible)
	for _, step := range flexible {
		if len(morning) <= len(evening) {
			morning = append(morning, step)
		} else {
			evening = append(evening, step)
		}
	}

	var out []domain.RoutineSection
	for _, part := range []struct {
		name  domain.SectionName
		steps []domain.RoutineStep
	}{
		{domain.SectionMorning, morning},
		{domain.SectionEvening, evening},
	} {
		sec := assemble(part.name, part.steps, data, cat)
		if len(sec.Steps) > 0 {
			out = append(out, sec)
		}
	}
	return out
}

// BuildExerciseHub produces the exercises hub from added exercise
// selections. The variation shown today rotates with the ISO week.
func BuildExerciseHub(data *domain.UserRoutineData, cat *domain.Catalog, now time.Time) (domain.RoutineSection, bool) {
	_, week := now.ISOWeek()

	var steps []domain.RoutineStep
	seen := make(map[string]bool, len(data.Exercises))
	for _, sel := range data.Exercises {
		if sel.State != domain.SelectionAdded || seen[sel.ID] {
			continue
		}
		entry, ok := cat.Exercise(sel.ID)
		if !ok {
			continue
		}
		seen[sel.ID] = true
		steps = append(steps, exerciseStep(entry, week))
	}
	if len(steps) == 0 {
		return domain.RoutineSection{}, false
	}

	sort.SliceStable(steps, func(i, j int) bool {
		return steps[i].Order() < steps[j].Order()
	})
	return domain.RoutineSection{
		Name:              domain.SectionExercises,
		Steps:             steps,
		EstimatedDuration: EstimatedDuration(steps),
	}, true
}

// WeekNumber returns the 1-based program week that now falls in, counting
// calendar days from start. Days before start are week 1.
func WeekNumber(start, now time.Time) int {
	y1, m1, d1 := start.Date()
	y2, m2, d2 := now.In(start.Location()).Date()
	days := int(time.Date(y2, m2, d2, 0, 0, 0, 0, time.UTC).Sub(time.Date(y1, m1, d1, 0, 0, 0, 0, time.UTC)).Hours() / 24)
	if days < 0 {
		return 1
	}
	return days/7 + 1
}

// FindSection returns the named section from a build.
func FindSection(sections []domain.RoutineSection, name domain.SectionName) (domain.RoutineSection, bool) {
	for _, s := range sections {
		if s.Name == name {
			return s, true
		}
	}
	return domain.RoutineSection{}, false
}

// EstimatedDuration sums each step's fixed duration and its post-step wait.
func EstimatedDuration(steps []domain.RoutineStep) int {
	total := 0
	for _, s := range steps {
		total += s.Session.Duration() + s.Session.WaitAfterSeconds
	}
	return total
}

// assemble puts wash_face first and sorts everything else.
func assemble(name domain.SectionName, ingredients []domain.RoutineStep, data *domain.UserRoutineData, cat *domain.Catalog) domain.RoutineSection {
	var lead []domain.RoutineStep
	rest := make([]domain.RoutineStep, 0, len(ingredients)+len(cat.BaseSteps))

	for i := range cat.BaseSteps {
		base := &cat.BaseSteps[i]
		if !base.HasTiming(name) || data.Excludes(base.ID) {
			continue
		}
		if base.ID == domain.WashFaceID {
			lead = append(lead, baseStep(base))
			continue
		}
		rest = append(rest, baseStep(base))
	}
	rest = append(rest, ingredients...)
	sortSteps(cat, rest)

	steps := append(lead, rest...)
	return domain.RoutineSection{
		Name:              name,
		Steps:             steps,
		EstimatedDuration: EstimatedDuration(steps),
	}
}

// sortSteps orders by category index, then routine order. Stable, so
// equal keys keep their selection order.
func sortSteps(cat *domain.Catalog, steps []domain.RoutineStep) {
	sort.SliceStable(steps, func(i, j int) bool {
		ci, cj := cat.CategoryIndex(steps[i].StepCategory), cat.CategoryIndex(steps[j].StepCategory)
		if ci != cj {
			return ci < cj
		}
		return steps[i].Order() < steps[j].Order()
	})
}

func baseStep(b *domain.BaseStepEntry) domain.RoutineStep {
	return domain.RoutineStep{
		ID:           b.ID,
		Type:         domain.StepBase,
		DisplayName:  b.DisplayName,
		StepCategory: b.StepCategory,
		RoutineOrder: b.RoutineOrder,
		Session:      b.Session,
	}
}

func ingredientStep(e *domain.IngredientEntry, sel domain.IngredientSelection, pending bool) domain.RoutineStep {
	return domain.RoutineStep{
		ID:           e.ID,
		Type:         domain.StepIngredient,
		DisplayName:  e.DisplayName,
		StepCategory: e.StepCategory,
		RoutineOrder: e.RoutineOrder,
		Session:      e.Session,
		IsPending:    pending,
		ProductName:  sel.ProductName,
	}
}

func exerciseStep(e *domain.ExerciseEntry, week int) domain.RoutineStep {
	payload := &domain.ExercisePayload{DefaultSets: e.DefaultSets}
	if n := len(e.Variations); n > 0 {
		v := e.Variations[week%n]
		payload.TodayVariation = &v
	}
	return domain.RoutineStep{
		ID:           e.ID,
		Type:         domain.StepExercise,
		DisplayName:  e.DisplayName,
		StepCategory: e.StepCategory,
		RoutineOrder: e.RoutineOrder,
		Session:      e.Session,
		Exercise:     payload,
	}
}
