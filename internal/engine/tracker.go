package engine

import (
	"context"
	"time"

	"github.com/hammamikhairi/glowroutine/internal/domain"
	"github.com/hammamikhairi/glowroutine/internal/metrics"
)

var _ domain.CompletionTracker = (*userTracker)(nil)

// userTracker binds a CompletionLog to one user and section for one session.
type userTracker struct {
	userID  string
	section domain.SectionName
	log     domain.CompletionLog
	now     func() time.Time
}

func (t *userTracker) MarkStepComplete(ctx context.Context, stepID string, xp int) error {
	err := t.log.RecordStep(ctx, domain.CompletionRecord{
		UserID:      t.userID,
		Section:     t.section,
		StepID:      stepID,
		XP:          xp,
		CompletedAt: t.now(),
	})
	if err != nil {
		metrics.IncCollaboratorError("record_step")
		return err
	}
	metrics.IncStepCompleted()
	return nil
}

func (t *userTracker) MarkSessionComplete(ctx context.Context, section domain.SectionName, stepIDs []string) error {
	err := t.log.RecordSession(ctx, domain.SessionRecord{
		UserID:      t.userID,
		Section:     section,
		StepIDs:     stepIDs,
		CompletedAt: t.now(),
	})
	if err != nil {
		metrics.IncCollaboratorError("record_session")
		return err
	}
	metrics.IncSessionCompleted(string(section))
	return nil
}
