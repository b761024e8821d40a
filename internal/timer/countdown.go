// Package timer implements the rest-period countdown that runs between
// routine steps, and a background watcher for deferred products.
package timer

import (
	"context"
	"sync"
	"time"

	"github.com/hammamikhairi/glowroutine/internal/logger"
)

// Ticker abstracts time.Ticker so tests can drive ticks by hand.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type realTicker struct {
	t *time.Ticker
}

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// NewRealTicker wraps time.NewTicker.
func NewRealTicker(d time.Duration) Ticker {
	return realTicker{t: time.NewTicker(d)}
}

// Option configures the countdown.
type Option func(*Countdown)

// WithTickInterval sets how long one countdown "second" lasts.
func WithTickInterval(d time.Duration) Option {
	return func(c *Countdown) {
		c.tickInterval = d
	}
}

// WithTicker replaces the ticker factory.
func WithTicker(f func(time.Duration) Ticker) Option {
	return func(c *Countdown) {
		c.newTicker = f
	}
}

// Countdown runs at most one countdown at a time. Starting a new one
// cancels whatever was running.
type Countdown struct {
	log          *logger.Logger
	tickInterval time.Duration
	newTicker    func(time.Duration) Ticker

	mu      sync.Mutex
	gen     uint64
	running bool
	cancel  context.CancelFunc
}

// New creates a countdown with the given options.
func New(log *logger.Logger, opts ...Option) *Countdown {
	c := &Countdown{
		log:          log,
		tickInterval: 1 * time.Second,
		newTicker:    NewRealTicker,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start counts down from seconds. onTick receives the remaining seconds
// after every tick but the last; onDone runs once when zero is reached.
// Non-blocking.
//
// Stop does not wait for an in-flight callback, so callers that react to
// stale callbacks must guard with their own token.
func (c *Countdown) Start(ctx context.Context, seconds int, onTick func(remaining int), onDone func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		c.log.Debug("countdown: cancelling previous countdown (gen=%d)", c.gen)
		c.cancel()
	}

	c.gen++
	gen := c.gen
	childCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.running = true

	go c.loop(childCtx, gen, seconds, onTick, onDone)
	c.log.Debug("countdown: started %ds (gen=%d, tick=%s)", seconds, gen, c.tickInterval)
}

// Stop cancels the running countdown, if any. Safe to call repeatedly.
func (c *Countdown) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return
	}
	c.cancel()
	c.running = false
	c.log.Debug("countdown: stopped (gen=%d)", c.gen)
}

// Running reports whether a countdown is in progress.
func (c *Countdown) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *Countdown) loop(ctx context.Context, gen uint64, remaining int, onTick func(int), onDone func()) {
	ticker := c.newTicker(c.tickInterval)
	defer ticker.Stop()

	for remaining > 0 {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			remaining--
			if remaining > 0 && c.current(gen) {
				onTick(remaining)
			}
		}
	}

	if !c.finish(gen) {
		return
	}
	onDone()
}

// current reports whether gen is still the live countdown.
func (c *Countdown) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running && c.gen == gen
}

// finish marks the countdown done if gen is still live.
func (c *Countdown) finish(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running || c.gen != gen {
		return false
	}
	c.running = false
	c.cancel()
	return true
}
