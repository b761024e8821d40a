// Package events fans XP, skip and reminder events out to logs, metrics
// and the message bus.
package events

import (
	"context"
	"errors"

	"github.com/hammamikhairi/glowroutine/internal/domain"
	"github.com/hammamikhairi/glowroutine/internal/logger"
	"github.com/hammamikhairi/glowroutine/internal/metrics"
)

// Compile-time interface checks.
var (
	_ domain.RewardSink = (*LogSink)(nil)
	_ domain.RewardSink = (*MetricsSink)(nil)
	_ domain.RewardSink = Fanout(nil)
	_ domain.Notifier   = MultiNotifier(nil)
)

// LogSink writes reward events to the logger.
type LogSink struct {
	log *logger.Logger
}

// NewLogSink creates a sink that logs every event at info level.
func NewLogSink(log *logger.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) XPEarned(_ context.Context, ev domain.XPEvent) error {
	if ev.Set > 0 {
		s.log.Info("xp %+d for %s set %d (%s, user=%s)", ev.Amount, ev.StepID, ev.Set, ev.Section, ev.UserID)
		return nil
	}
	s.log.Info("xp %+d for %s (%s, user=%s)", ev.Amount, ev.StepID, ev.Section, ev.UserID)
	return nil
}

func (s *LogSink) SkipTracked(_ context.Context, ev domain.SkipEvent) error {
	s.log.Info("skipped %s on %s (%s, remaining=%ds, user=%s)", ev.Kind, ev.StepID, ev.Section, ev.RemainingSeconds, ev.UserID)
	return nil
}

// MetricsSink counts reward events in Prometheus.
type MetricsSink struct{}

func (MetricsSink) XPEarned(_ context.Context, ev domain.XPEvent) error {
	metrics.AddXP(ev.Amount)
	return nil
}

func (MetricsSink) SkipTracked(_ context.Context, ev domain.SkipEvent) error {
	metrics.IncSkip(string(ev.Kind))
	return nil
}

// Fanout delivers each event to every sink and joins their errors.
type Fanout []domain.RewardSink

func (f Fanout) XPEarned(ctx context.Context, ev domain.XPEvent) error {
	var errs []error
	for _, s := range f {
		if err := s.XPEarned(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f Fanout) SkipTracked(ctx context.Context, ev domain.SkipEvent) error {
	var errs []error
	for _, s := range f {
		if err := s.SkipTracked(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MultiNotifier sends every message to each notifier.
type MultiNotifier []domain.Notifier

func (m MultiNotifier) Notify(ctx context.Context, msg string) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m MultiNotifier) NotifyUrgent(ctx context.Context, msg string) error {
	var errs []error
	for _, n := range m {
		if err := n.NotifyUrgent(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
