package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Reloader receives freshly parsed configurations from a Watcher.
type Reloader interface {
	Reload(cfg *Config)
}

// debounceDelay coalesces the bursts of write events editors produce when
// saving a file.
const debounceDelay = 500 * time.Millisecond

// Watcher reloads the configuration file whenever it changes on disk and
// hands the result to a Reloader. It watches the parent directory rather
// than the file itself so atomic-rename saves keep working.
type Watcher struct {
	path     string
	reloader Reloader
	log      *zap.SugaredLogger
	fs       *fsnotify.Watcher
}

// NewWatcher returns an unstarted Watcher for the config file at path.
func NewWatcher(path string, reloader Reloader, log *zap.SugaredLogger) *Watcher {
	return &Watcher{path: path, reloader: reloader, log: log}
}

// InitializeDaemon starts watching the config file's directory.
func (w *Watcher) InitializeDaemon() error {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fs.Add(filepath.Dir(w.path)); err != nil {
		fs.Close()
		return err
	}
	w.fs = fs
	return nil
}

// Serve delivers debounced reloads until ctx is cancelled.
func (w *Watcher) Serve(ctx context.Context) {
	var timer *time.Timer
	var pending <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounceDelay)
				pending = timer.C
			} else {
				timer.Reset(debounceDelay)
			}

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.log.Warnw("config watch error", "error", err)

		case <-pending:
			timer = nil
			pending = nil
			w.reload()
		}
	}
}

// TerminateDaemon stops the filesystem watch.
func (w *Watcher) TerminateDaemon() error {
	if w.fs == nil {
		return nil
	}
	return w.fs.Close()
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.log.Warnw("config reload failed, keeping previous", "path", w.path, "error", err)
		return
	}
	w.log.Infow("config reloaded", "path", w.path)
	w.reloader.Reload(cfg)
}
