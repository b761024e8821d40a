package domain

// Catalog is the static, read-only content bundle: base steps, ingredients
// and exercises keyed by id, plus the category order used for sorting.
type Catalog struct {
	Version           int               `yaml:"version"`
	StepCategoryOrder []string          `yaml:"step_category_order"`
	BaseSteps         []BaseStepEntry   `yaml:"base_steps"`
	Ingredients       []IngredientEntry `yaml:"ingredients"`
	Exercises         []ExerciseEntry   `yaml:"exercises"`
}

// CategoryIndex returns the sort index for a category. Unknown categories
// sort after every known one.
func (c *Catalog) CategoryIndex(category string) int {
	for i, name := range c.StepCategoryOrder {
		if name == category {
			return i
		}
	}
	return len(c.StepCategoryOrder)
}

// BaseStep looks up a base step by id.
func (c *Catalog) BaseStep(id string) (*BaseStepEntry, bool) {
	for i := range c.BaseSteps {
		if c.BaseSteps[i].ID == id {
			return &c.BaseSteps[i], true
		}
	}
	return nil, false
}

// Ingredient looks up an ingredient by id.
func (c *Catalog) Ingredient(id string) (*IngredientEntry, bool) {
	for i := range c.Ingredients {
		if c.Ingredients[i].ID == id {
			return &c.Ingredients[i], true
		}
	}
	return nil, false
}

// Exercise looks up an exercise by id.
func (c *Catalog) Exercise(id string) (*ExerciseEntry, bool) {
	for i := range c.Exercises {
		if c.Exercises[i].ID == id {
			return &c.Exercises[i], true
		}
	}
	return nil, false
}

// BaseStepEntry is a catalog step that needs no product (e.g. wash face).
type BaseStepEntry struct {
	ID            string        `yaml:"id"`
	DisplayName   string        `yaml:"display_name"`
	StepCategory  string        `yaml:"step_category"`
	RoutineOrder  *int          `yaml:"routine_order"`
	TimingOptions []SectionName `yaml:"timing_options"`
	Session       SessionAction `yaml:"session"`
}

// HasTiming reports whether the entry declares the given section.
func (b *BaseStepEntry) HasTiming(name SectionName) bool {
	return hasTiming(b.TimingOptions, name)
}

// IngredientEntry is a catalog product ingredient.
type IngredientEntry struct {
	ID             string        `yaml:"id"`
	DisplayName    string        `yaml:"display_name"`
	StepCategory   string        `yaml:"step_category"`
	RoutineOrder   *int          `yaml:"routine_order"`
	TimingOptions  []SectionName `yaml:"timing_options"`
	TimingFlexible bool          `yaml:"timing_flexible"`
	Premium        bool          `yaml:"premium"`
	Session        SessionAction `yaml:"session"`
}

// Timing classifies an ingredient for section assignment.
type Timing int

const (
	TimingFlexible Timing = iota
	TimingMorning
	TimingEvening
)

// Timing resolves the declared timing options. Explicitly flexible,
// ambiguous (both) and undeclared timings are all flexible.
func (e *IngredientEntry) Timing() Timing {
	if e.TimingFlexible {
		return TimingFlexible
	}
	morning := hasTiming(e.TimingOptions, SectionMorning)
	evening := hasTiming(e.TimingOptions, SectionEvening)
	switch {
	case morning && !evening:
		return TimingMorning
	case evening && !morning:
		return TimingEvening
	default:
		return TimingFlexible
	}
}

// ExerciseEntry is a catalog facial exercise.
type ExerciseEntry struct {
	ID           string        `yaml:"id"`
	DisplayName  string        `yaml:"display_name"`
	StepCategory string        `yaml:"step_category"`
	RoutineOrder *int          `yaml:"routine_order"`
	DefaultSets  int           `yaml:"default_sets"`
	Variations   []Variation   `yaml:"variations"`
	Premium      bool          `yaml:"premium"`
	Session      SessionAction `yaml:"session"`
}

func hasTiming(opts []SectionName, name SectionName) bool {
	for _, o := range opts {
		if o == name {
			return true
		}
	}
	return false
}
