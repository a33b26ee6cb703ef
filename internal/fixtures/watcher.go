package fixtures

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/dastan/internal/prompt"
)

// ReloadCallback is called with the tasks whose fixture changed after a reload.
type ReloadCallback func(changed []prompt.Task)

const reloadDebounce = 200 * time.Millisecond

// Watch reloads the override directory whenever a .yaml file in it changes,
// until ctx is cancelled. Bursts of events are coalesced into one reload.
func (s *Store) Watch(ctx context.Context, cb ReloadCallback) error {
	if s.dir == "" {
		<-ctx.Done()
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(s.dir); err != nil {
		return err
	}
	s.logger.Info("fixtures watcher: started", slog.String("dir", s.dir))

	var timer *time.Timer
	var timerC <-chan time.Time

	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(reloadDebounce)
			timerC = timer.C
		} else {
			timer.Reset(reloadDebounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			s.logger.Info("fixtures watcher: stopped")
			return nil

		case <-timerC:
			changed, err := s.Reload()
			if err != nil {
				s.logger.Warn("fixtures watcher: reload failed", slog.String("error", err.Error()))
				continue
			}
			if len(changed) > 0 && cb != nil {
				cb(changed)
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !strings.HasSuffix(ev.Name, ".yaml") {
				continue
			}
			if _, known := prompt.ParseTask(strings.TrimSuffix(filepath.Base(ev.Name), ".yaml")); !known {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				schedule()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.logger.Error("fixtures watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}
