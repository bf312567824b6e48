package policy

import (
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce coalesces the burst of events editors emit on save.
const reloadDebounce = 250 * time.Millisecond

// Watch starts watching the policy file and reloads it on change. A
// failed reload keeps the previous snapshot active and is logged, never
// fatal. The returned stop function releases the watcher. When the store
// uses embedded defaults (no path), Watch is a no-op.
func (s *Store) Watch(logger *slog.Logger) (func(), error) {
	if s.path == "" {
		return func() {}, nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Watch the directory, not the file: editors replace files via
	// rename, which drops a watch on the file itself.
	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, err
	}

	target := filepath.Clean(s.path)
	done := make(chan struct{})

	go func() {
		var timer *time.Timer
		var timerCh <-chan time.Time

		for {
			select {
			case <-done:
				if timer != nil {
					timer.Stop()
				}
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				if timer == nil {
					timer = time.NewTimer(reloadDebounce)
					timerCh = timer.C
				} else {
					timer.Reset(reloadDebounce)
				}

			case <-timerCh:
				timer = nil
				timerCh = nil
				if err := s.Reload(); err != nil {
					logger.Warn("policy_reload_failed",
						slog.String("path", s.path),
						slog.String("error", err.Error()))
				} else {
					logger.Info("policy_reloaded", slog.String("path", s.path))
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("policy_watch_error", slog.String("error", err.Error()))
			}
		}
	}()

	return func() {
		close(done)
		_ = watcher.Close()
	}, nil
}
