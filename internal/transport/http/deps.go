package httptransport

import (
	"context"

	"github.com/hammamikhairi/glowroutine/internal/domain"
	"github.com/hammamikhairi/glowroutine/internal/engine"
	"github.com/hammamikhairi/glowroutine/internal/pending"
	"github.com/hammamikhairi/glowroutine/internal/sequencer"
)

var _ RoutineService = (*engine.Engine)(nil)

// RoutineService is the part of the engine the API serves.
type RoutineService interface {
	Sections(ctx context.Context, userID string) ([]domain.RoutineSection, error)
	ExerciseHub(ctx context.Context, userID string) (domain.RoutineSection, bool, error)
	StartSession(ctx context.Context, userID string, name domain.SectionName) (*engine.SessionInfo, error)
	Status(sessionID string) (engine.SessionInfo, error)
	ActiveSessions() []engine.SessionInfo
	Dispatch(ctx context.Context, sessionID string, ev sequencer.EventType) (sequencer.Snapshot, error)
	CloseSession(ctx context.Context, sessionID string) error
	ResolvePending(ctx context.Context, userID, ingredientID string, out pending.Outcome) (domain.IngredientSelection, error)
}

// HealthChecker reports whether backing stores are ready.
type HealthChecker interface {
	Check(ctx context.Context) error
}
