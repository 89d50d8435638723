// Package watch re-runs a compile when package manifests or settings change.
package watch

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/assetcompiler/internal/foundation/errors"
	"git.home.luguber.info/inful/assetcompiler/internal/logfields"
)

// DefaultDebounce is the quiet period after the last change before a run starts.
const DefaultDebounce = 500 * time.Millisecond

// TriggerFunc runs when watched files changed. Errors are logged; watching continues.
type TriggerFunc func(ctx context.Context) error

// Watcher watches files with the given base names in a set of directories. Directories are
// watched instead of the files themselves so that editors replacing a file by rename are
// noticed.
type Watcher struct {
	dirs     []string
	names    map[string]bool
	debounce time.Duration
	trigger  TriggerFunc
}

func New(dirs, names []string, trigger TriggerFunc) *Watcher {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return &Watcher{dirs: dirs, names: set, debounce: DefaultDebounce, trigger: trigger}
}

// WithDebounce overrides the quiet period.
func (w *Watcher) WithDebounce(d time.Duration) *Watcher {
	w.debounce = d
	return w
}

// Run blocks until ctx is cancelled. Triggers never overlap: changes seen while a trigger runs
// schedule one more run afterwards.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.FileSystemError("failed to create file watcher").WithCause(err).Build()
	}
	defer func() { _ = fsw.Close() }()

	for _, dir := range w.dirs {
		if err := fsw.Add(dir); err != nil {
			return errors.FileSystemError("failed to watch directory").
				WithCause(err).
				WithContext("path", dir).
				Build()
		}
	}
	slog.Info("Watching for changes", slog.Int("directories", len(w.dirs)))

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			slog.Debug("Change detected", logfields.Path(event.Name), slog.String("op", event.Op.String()))
			timer.Reset(w.debounce)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			slog.Error("File watcher error", logfields.Error(err))
		case <-timer.C:
			if err := w.trigger(ctx); err != nil {
				slog.Error("Run after change failed", logfields.Error(err))
			}
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !w.names[filepath.Base(event.Name)] {
		return false
	}
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename)
}
