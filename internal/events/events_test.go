package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hammamikhairi/glowroutine/internal/domain"
	"github.com/hammamikhairi/glowroutine/internal/logger"
)

type published struct {
	subject string
	data    []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (p *fakePublisher) Publish(subject string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, published{subject, data})
	return nil
}

func TestNATSSinkSubjects(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewNATSSink(pub, "")
	ctx := context.Background()
	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	require.NoError(t, sink.XPEarned(ctx, domain.XPEvent{UserID: "u1", Section: domain.SectionMorning, StepID: "jaw_clench", Amount: 4, Set: 2, At: at}))
	require.NoError(t, sink.SkipTracked(ctx, domain.SkipEvent{Kind: domain.SkipWait, StepID: "vitamin_c", RemainingSeconds: 30, At: at}))
	require.NoError(t, sink.Notify(ctx, "hello"))
	require.NoError(t, sink.NotifyUrgent(ctx, "now"))

	require.Len(t, pub.msgs, 4)
	assert.Equal(t, "glowroutine.xp", pub.msgs[0].subject)
	assert.Equal(t, "glowroutine.skip", pub.msgs[1].subject)
	assert.Equal(t, "glowroutine.reminder", pub.msgs[2].subject)

	var xp domain.XPEvent
	require.NoError(t, json.Unmarshal(pub.msgs[0].data, &xp))
	assert.Equal(t, 4, xp.Amount)
	assert.Equal(t, 2, xp.Set)

	var skip map[string]any
	require.NoError(t, json.Unmarshal(pub.msgs[1].data, &skip))
	assert.Equal(t, "wait", skip["kind"])

	var rem Reminder
	require.NoError(t, json.Unmarshal(pub.msgs[3].data, &rem))
	assert.True(t, rem.Urgent)
	assert.Equal(t, "now", rem.Message)
}

func TestNATSSinkErrors(t *testing.T) {
	pub := &fakePublisher{err: errors.New("no responders")}
	sink := NewNATSSink(pub, "custom")
	assert.Equal(t, "custom.xp", sink.Subject("xp"))

	err := sink.XPEarned(context.Background(), domain.XPEvent{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "custom.xp")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	pub.err = nil
	assert.ErrorIs(t, sink.Notify(ctx, "x"), context.Canceled)
	assert.Empty(t, pub.msgs)
}

type failingSink struct{}

func (failingSink) XPEarned(context.Context, domain.XPEvent) error { return errors.New("xp down") }
func (failingSink) SkipTracked(context.Context, domain.SkipEvent) error {
	return errors.New("skip down")
}

func TestFanoutDeliversToAll(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(logger.LevelNormal, &buf)
	pub := &fakePublisher{}

	f := Fanout{failingSink{}, NewLogSink(log), NewNATSSink(pub, ""), MetricsSink{}}
	err := f.XPEarned(context.Background(), domain.XPEvent{StepID: "wash_face", Amount: 10})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "xp down")
	assert.Len(t, pub.msgs, 1, "later sinks still run after a failure")
	assert.Contains(t, buf.String(), "xp +10 for wash_face")

	require.Error(t, f.SkipTracked(context.Background(), domain.SkipEvent{Kind: domain.SkipStep}))
	assert.Len(t, pub.msgs, 2)
}

type recordingNotifier struct {
	msgs []string
}

func (r *recordingNotifier) Notify(_ context.Context, m string) error {
	r.msgs = append(r.msgs, m)
	return nil
}

func (r *recordingNotifier) NotifyUrgent(_ context.Context, m string) error {
	r.msgs = append(r.msgs, strings.ToUpper(m))
	return nil
}

func TestMultiNotifier(t *testing.T) {
	a, b := &recordingNotifier{}, &recordingNotifier{}
	m := MultiNotifier{a, b}

	require.NoError(t, m.Notify(context.Background(), "hi"))
	require.NoError(t, m.NotifyUrgent(context.Background(), "go"))

	assert.Equal(t, []string{"hi", "GO"}, a.msgs)
	assert.Equal(t, a.msgs, b.msgs)
}
