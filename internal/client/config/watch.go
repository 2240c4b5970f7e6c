package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/dmitrijs2005/tasksync/internal/logging"
	"github.com/fsnotify/fsnotify"
)

// reloadDelay lets an editor finish writing before the file is read.
const reloadDelay = 100 * time.Millisecond

// Watch calls onChange with a freshly loaded Config whenever the file at
// path changes, until ctx is cancelled. The parent directory is watched so
// that editors which replace the file by rename are noticed. Files that
// fail to parse are logged and skipped.
func Watch(ctx context.Context, path string, l logging.Logger, onChange func(*Config)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	path = filepath.Clean(path)
	if err := w.Add(filepath.Dir(path)); err != nil {
		_ = w.Close()
		return err
	}

	go func() {
		defer w.Close()

		var timer <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return

			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != path {
					continue
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
					timer = time.After(reloadDelay)
				}

			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				l.Warn(ctx, "config watcher error", "error", err)

			case <-timer:
				timer = nil
				cfg, err := Reload(path)
				if err != nil {
					l.Warn(ctx, "config reload failed", "path", path, "error", err)
					continue
				}
				l.Info(ctx, "config reloaded", "path", path)
				onChange(cfg)
			}
		}
	}()

	return nil
}
