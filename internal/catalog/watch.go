package catalog

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long Watch waits for writes to settle.
const DefaultDebounce = 250 * time.Millisecond

// Watch reloads the catalog whenever its file changes. It watches the
// parent directory so editors that replace the file via rename are
// caught too. Blocks until ctx is cancelled. A no-op for the bundled
// catalog.
func (s *Source) Watch(ctx context.Context, debounce time.Duration) error {
	if s.path == "" {
		<-ctx.Done()
		return nil
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	target, err := filepath.Abs(s.path)
	if err != nil {
		return err
	}
	if err := fsw.Add(filepath.Dir(target)); err != nil {
		return err
	}
	s.log.Info("watching catalog %s", target)

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			if err := s.Reload(); err != nil {
				s.log.Error("catalog reload failed, keeping previous version: %v", err)
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			s.log.Warn("catalog watcher: %v", err)
		}
	}
}
