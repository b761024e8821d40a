package timer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hammamikhairi/glowroutine/internal/domain"
	"github.com/hammamikhairi/glowroutine/internal/logger"
)

// WatcherOption configures the watcher.
type WatcherOption func(*Watcher)

// WithWatchInterval sets how often the watcher checks deferred products.
func WithWatchInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.interval = d
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) WatcherOption {
	return func(w *Watcher) {
		w.now = now
	}
}

// Watcher periodically looks for deferred products whose defer date has
// passed and asks the user once whether the product arrived. Runs on a
// slow cycle (default: 1 minute).
type Watcher struct {
	lister   domain.DeferredLister
	catalog  domain.CatalogProvider
	notifier domain.Notifier
	log      *logger.Logger
	interval time.Duration
	now      func() time.Time

	mu       sync.Mutex
	notified map[string]bool
}

// NewWatcher creates a watcher with the given dependencies.
func NewWatcher(lister domain.DeferredLister, catalog domain.CatalogProvider, notifier domain.Notifier, log *logger.Logger, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		lister:   lister,
		catalog:  catalog,
		notifier: notifier,
		log:      log,
		interval: 1 * time.Minute,
		now:      time.Now,
		notified: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run starts the watcher loop. Blocks until ctx is cancelled.
// Intended to be called as a goroutine.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.log.Info("deferral watcher started (interval=%s)", w.interval)

	for {
		select {
		case <-ctx.Done():
			w.log.Info("deferral watcher stopped")
			return
		case <-ticker.C:
			w.Check(ctx)
		}
	}
}

// Check runs one watcher cycle and returns how many reminders went out.
func (w *Watcher) Check(ctx context.Context) int {
	due, err := w.lister.DueDeferred(ctx, w.now())
	if err != nil {
		w.log.Error("watcher: listing deferred selections: %v", err)
		return 0
	}

	sent := 0
	for _, d := range due {
		// Keyed on the defer date so a fresh deferral is reminded again.
		key := fmt.Sprintf("%s/%s/%d", d.UserID, d.IngredientID, d.DeferUntil.Unix())

		w.mu.Lock()
		seen := w.notified[key]
		w.mu.Unlock()
		if seen {
			continue
		}

		msg := fmt.Sprintf("[Reminder] Did your %s arrive? Open your routine to add it or push it back.", w.displayName(d.IngredientID))
		if err := w.notifier.Notify(ctx, msg); err != nil {
			w.log.Error("watcher: notify %s/%s: %v", d.UserID, d.IngredientID, err)
			continue
		}

		w.mu.Lock()
		w.notified[key] = true
		w.mu.Unlock()
		w.log.Debug("watcher: reminded %s about %s (deferred until %s)", d.UserID, d.IngredientID, d.DeferUntil.Format(time.RFC3339))
		sent++
	}
	return sent
}

func (w *Watcher) displayName(id string) string {
	if w.catalog == nil {
		return id
	}
	if entry, ok := w.catalog.Catalog().Ingredient(id); ok && entry.DisplayName != "" {
		return entry.DisplayName
	}
	return id
}
