package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/hammamikhairi/glowroutine/internal/domain"
	"github.com/hammamikhairi/glowroutine/internal/logger"
)

// DefaultSubjectPrefix is used when none is configured.
const DefaultSubjectPrefix = "glowroutine"

// Publisher is the part of *nats.Conn the sink uses.
type Publisher interface {
	Publish(subject string, data []byte) error
}

var (
	_ Publisher         = (*nats.Conn)(nil)
	_ domain.RewardSink = (*NATSSink)(nil)
	_ domain.Notifier   = (*NATSSink)(nil)
)

// Reminder is the payload published for notifications.
type Reminder struct {
	Message string    `json:"message"`
	Urgent  bool      `json:"urgent"`
	At      time.Time `json:"at"`
}

// NATSSink publishes events as JSON on <prefix>.xp, <prefix>.skip and
// <prefix>.reminder.
type NATSSink struct {
	pub    Publisher
	prefix string
	now    func() time.Time
}

// NewNATSSink creates a sink on pub. An empty prefix uses the default.
func NewNATSSink(pub Publisher, prefix string) *NATSSink {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSSink{pub: pub, prefix: prefix, now: time.Now}
}

// Subject returns the full subject for a suffix.
func (s *NATSSink) Subject(suffix string) string {
	return s.prefix + "." + suffix
}

func (s *NATSSink) XPEarned(ctx context.Context, ev domain.XPEvent) error {
	return s.publish(ctx, "xp", ev)
}

func (s *NATSSink) SkipTracked(ctx context.Context, ev domain.SkipEvent) error {
	return s.publish(ctx, "skip", ev)
}

func (s *NATSSink) Notify(ctx context.Context, msg string) error {
	return s.publish(ctx, "reminder", Reminder{Message: msg, At: s.now()})
}

func (s *NATSSink) NotifyUrgent(ctx context.Context, msg string) error {
	return s.publish(ctx, "reminder", Reminder{Message: msg, Urgent: true, At: s.now()})
}

// NATS Publish does not take a context; it is checked before publishing.
func (s *NATSSink) publish(ctx context.Context, suffix string, v any) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled before publish: %w", err)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", suffix, err)
	}
	subject := s.Subject(suffix)
	if err := s.pub.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Connect dials NATS with reconnect handling that reports through log.
func Connect(url, name string, log *logger.Logger) (*nats.Conn, error) {
	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("nats reconnected to %s", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", url, err)
	}
	log.Info("connected to NATS at %s", conn.ConnectedUrl())
	return conn, nil
}
