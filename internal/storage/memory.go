// Package storage provides selection and completion persistence.
package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hammamikhairi/glowroutine/internal/domain"
	"github.com/hammamikhairi/glowroutine/internal/logger"
)

// Compile-time interface checks.
var (
	_ domain.SelectionStore = (*MemoryStore)(nil)
	_ domain.CompletionLog  = (*MemoryStore)(nil)
	_ domain.DeferredLister = (*MemoryStore)(nil)
)

// dayKey buckets completions by calendar day in the timestamp's location.
func dayKey(t time.Time) string {
	return t.Format("2006-01-02")
}

func completionKey(section domain.SectionName, day time.Time) string {
	return dayKey(day) + "/" + string(section)
}

type subscriber struct {
	userID string
	fn     func(*domain.UserRoutineData)
}

// MemoryStore keeps selections and completions in memory. Safe for
// concurrent access.
type MemoryStore struct {
	mu       sync.RWMutex
	users    map[string]*domain.UserRoutineData
	steps    map[string]map[string][]string // user -> day/section -> step ids
	sessions map[string][]domain.SessionRecord
	subs     map[int]subscriber
	nextSub  int
	now      func() time.Time
	log      *logger.Logger
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(log *logger.Logger) *MemoryStore {
	return &MemoryStore{
		users:    make(map[string]*domain.UserRoutineData),
		steps:    make(map[string]map[string][]string),
		sessions: make(map[string][]domain.SessionRecord),
		subs:     make(map[int]subscriber),
		now:      time.Now,
		log:      log,
	}
}

// Seed replaces a user's record wholesale.
func (s *MemoryStore) Seed(data *domain.UserRoutineData) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.log.Debug("seeding user %s (%d ingredients, %d exercises)", data.UserID, len(data.Ingredients), len(data.Exercises))
	s.users[data.UserID] = data.Clone()
}

// Users returns the ids of all known users, sorted.
func (s *MemoryStore) Users() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.users))
	for id := range s.users {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Load returns a copy of the user's record.
func (s *MemoryStore) Load(ctx context.Context, userID string) (*domain.UserRoutineData, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.users[userID]
	if !ok {
		s.log.Debug("user not found: %s", userID)
		return nil, domain.ErrNotFound
	}
	return data.Clone(), nil
}

// Update merges the patch into the user's record by selection id and
// notifies subscribers. Unknown users are created.
func (s *MemoryStore) Update(ctx context.Context, userID string, patch domain.SelectionPatch) error {
	s.mu.Lock()
	data, ok := s.users[userID]
	if !ok {
		data = &domain.UserRoutineData{UserID: userID}
		s.users[userID] = data
	}
	data.Ingredients = mergeIngredients(data.Ingredients, patch.Ingredients)
	data.Exercises = mergeExercises(data.Exercises, patch.Exercises)
	data.UpdatedAt = s.now()

	snapshot := data.Clone()
	var fns []func(*domain.UserRoutineData)
	for _, sub := range s.subs {
		if sub.userID == userID {
			fns = append(fns, sub.fn)
		}
	}
	s.mu.Unlock()

	s.log.Debug("updated user %s (%d ingredient, %d exercise changes, %d subscribers)",
		userID, len(patch.Ingredients), len(patch.Exercises), len(fns))
	for _, fn := range fns {
		fn(snapshot.Clone())
	}
	return nil
}

// Subscribe calls fn with the full record after every Update for userID.
func (s *MemoryStore) Subscribe(ctx context.Context, userID string, fn func(*domain.UserRoutineData)) (func(), error) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = subscriber{userID: userID, fn: fn}
	s.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
	go func() {
		<-ctx.Done()
		unsubscribe()
	}()
	return unsubscribe, nil
}

// RecordStep stores a completed step. Repeats in the same section on the
// same day are ignored.
func (s *MemoryStore) RecordStep(ctx context.Context, rec domain.CompletionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	days, ok := s.steps[rec.UserID]
	if !ok {
		days = make(map[string][]string)
		s.steps[rec.UserID] = days
	}
	key := completionKey(rec.Section, rec.CompletedAt)
	for _, id := range days[key] {
		if id == rec.StepID {
			return nil
		}
	}
	days[key] = append(days[key], rec.StepID)
	s.log.Debug("recorded step %s for %s on %s (xp=%d)", rec.StepID, rec.UserID, key, rec.XP)
	return nil
}

// RecordSession stores a completed section run.
func (s *MemoryStore) RecordSession(ctx context.Context, rec domain.SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec.StepIDs = append([]string(nil), rec.StepIDs...)
	s.sessions[rec.UserID] = append(s.sessions[rec.UserID], rec)
	s.log.Debug("recorded %s session for %s (%d steps)", rec.Section, rec.UserID, len(rec.StepIDs))
	return nil
}

// CompletedSteps returns the steps the user completed in section on day's
// date.
func (s *MemoryStore) CompletedSteps(ctx context.Context, userID string, section domain.SectionName, day time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]string(nil), s.steps[userID][completionKey(section, day)]...), nil
}

// Sessions returns the user's completed section runs, oldest first.
func (s *MemoryStore) Sessions(userID string) []domain.SessionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]domain.SessionRecord(nil), s.sessions[userID]...)
}

// DueDeferred lists deferred ingredients whose defer date is not after now.
func (s *MemoryStore) DueDeferred(ctx context.Context, now time.Time) ([]domain.DueSelection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.DueSelection
	for userID, data := range s.users {
		for _, sel := range data.Ingredients {
			if sel.State != domain.SelectionDeferred || sel.DeferUntil == nil || sel.DeferUntil.After(now) {
				continue
			}
			out = append(out, domain.DueSelection{UserID: userID, IngredientID: sel.ID, DeferUntil: *sel.DeferUntil})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UserID != out[j].UserID {
			return out[i].UserID < out[j].UserID
		}
		return out[i].IngredientID < out[j].IngredientID
	})
	return out, nil
}

func mergeIngredients(current, patch []domain.IngredientSelection) []domain.IngredientSelection {
	for _, p := range patch {
		replaced := false
		for i := range current {
			if current[i].ID == p.ID {
				current[i] = p
				replaced = true
				break
			}
		}
		if !replaced {
			current = append(current, p)
		}
	}
	return current
}

func mergeExercises(current, patch []domain.ExerciseSelection) []domain.ExerciseSelection {
	for _, p := range patch {
		replaced := false
		for i := range current {
			if current[i].ID == p.ID {
				current[i] = p
				replaced = true
				break
			}
		}
		if !replaced {
			current = append(current, p)
		}
	}
	return current
}
