package timer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/hammamikhairi/glowroutine/internal/logger"
)

// manualTicker lets a test deliver ticks one at a time.
type manualTicker struct {
	ch      chan time.Time
	stopped chan struct{}
	once    sync.Once
}

func newManualTicker() *manualTicker {
	return &manualTicker{ch: make(chan time.Time), stopped: make(chan struct{})}
}

func (m *manualTicker) C() <-chan time.Time { return m.ch }
func (m *manualTicker) Stop()               { m.once.Do(func() { close(m.stopped) }) }

// tick blocks until the countdown loop receives the tick.
func (m *manualTicker) tick(t *testing.T) {
	t.Helper()
	select {
	case m.ch <- time.Now():
	case <-time.After(time.Second):
		t.Fatal("countdown loop did not receive tick")
	}
}

// tickerFactory hands out manual tickers in order.
type tickerFactory struct {
	mu      sync.Mutex
	tickers []*manualTicker
	created chan *manualTicker
}

func newTickerFactory() *tickerFactory {
	return &tickerFactory{created: make(chan *manualTicker, 8)}
}

func (f *tickerFactory) New(time.Duration) Ticker {
	t := newManualTicker()
	f.mu.Lock()
	f.tickers = append(f.tickers, t)
	f.mu.Unlock()
	f.created <- t
	return t
}

func (f *tickerFactory) next(t *testing.T) *manualTicker {
	t.Helper()
	select {
	case mt := <-f.created:
		return mt
	case <-time.After(time.Second):
		t.Fatal("no ticker created")
		return nil
	}
}

type recorder struct {
	mu    sync.Mutex
	ticks []int
	done  int
	doneC chan struct{}
}

func newRecorder() *recorder { return &recorder{doneC: make(chan struct{}, 4)} }

func (r *recorder) onTick(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ticks = append(r.ticks, n)
}

func (r *recorder) onDone() {
	r.mu.Lock()
	r.done++
	r.mu.Unlock()
	r.doneC <- struct{}{}
}

func (r *recorder) doneCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

func TestCountdownRunsToZero(t *testing.T) {
	factory := newTickerFactory()
	c := New(logger.Nop(), WithTicker(factory.New))
	rec := newRecorder()

	c.Start(context.Background(), 3, rec.onTick, rec.onDone)
	mt := factory.next(t)
	mt.tick(t)
	mt.tick(t)
	mt.tick(t)

	select {
	case <-rec.doneC:
	case <-time.After(time.Second):
		t.Fatal("onDone not called")
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.ticks) != 2 || rec.ticks[0] != 2 || rec.ticks[1] != 1 {
		t.Fatalf("expected ticks [2 1], got %v", rec.ticks)
	}
	if rec.done != 1 {
		t.Fatalf("expected one onDone, got %d", rec.done)
	}
	if c.Running() {
		t.Fatal("countdown still running after reaching zero")
	}
}

func TestCountdownStartCancelsPrevious(t *testing.T) {
	factory := newTickerFactory()
	c := New(logger.Nop(), WithTicker(factory.New))
	first := newRecorder()
	second := newRecorder()

	c.Start(context.Background(), 1, first.onTick, first.onDone)
	firstTicker := factory.next(t)

	c.Start(context.Background(), 1, second.onTick, second.onDone)
	secondTicker := factory.next(t)

	// The first loop must exit and stop its ticker without firing.
	select {
	case <-firstTicker.stopped:
	case <-time.After(time.Second):
		t.Fatal("first countdown was not cancelled")
	}

	secondTicker.tick(t)
	select {
	case <-second.doneC:
	case <-time.After(time.Second):
		t.Fatal("second countdown did not finish")
	}

	if first.doneCount() != 0 {
		t.Fatalf("cancelled countdown fired %d times", first.doneCount())
	}
	if second.doneCount() != 1 {
		t.Fatalf("expected exactly one completion, got %d", second.doneCount())
	}
}

func TestCountdownStop(t *testing.T) {
	factory := newTickerFactory()
	c := New(logger.Nop(), WithTicker(factory.New))
	rec := newRecorder()

	c.Start(context.Background(), 5, rec.onTick, rec.onDone)
	mt := factory.next(t)
	mt.tick(t)

	c.Stop()
	c.Stop() // idempotent

	select {
	case <-mt.stopped:
	case <-time.After(time.Second):
		t.Fatal("ticker not stopped after Stop")
	}
	if rec.doneCount() != 0 {
		t.Fatal("stopped countdown fired onDone")
	}
	if c.Running() {
		t.Fatal("Running() true after Stop")
	}
}

func TestCountdownRealTicker(t *testing.T) {
	c := New(logger.Nop(), WithTickInterval(10*time.Millisecond))
	rec := newRecorder()

	c.Start(context.Background(), 3, rec.onTick, rec.onDone)
	select {
	case <-rec.doneC:
	case <-time.After(2 * time.Second):
		t.Fatal("real countdown did not finish")
	}

	time.Sleep(50 * time.Millisecond)
	if rec.doneCount() != 1 {
		t.Fatalf("expected one completion, got %d", rec.doneCount())
	}
}

func TestCountdownContextCancel(t *testing.T) {
	factory := newTickerFactory()
	c := New(logger.Nop(), WithTicker(factory.New))
	rec := newRecorder()
	ctx, cancel := context.WithCancel(context.Background())

	c.Start(ctx, 2, rec.onTick, rec.onDone)
	mt := factory.next(t)
	cancel()

	select {
	case <-mt.stopped:
	case <-time.After(time.Second):
		t.Fatal("ticker not stopped after parent cancel")
	}
	if rec.doneCount() != 0 {
		t.Fatal("cancelled countdown fired")
	}
}
