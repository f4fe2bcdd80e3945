package treestore

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/mind/internal/selector"
	"github.com/starford/mind/internal/storage"
)

// EventCallback is called after the watched tree file changed on disk.
// kind is one of "updated", "deleted".
type EventCallback func(kind string, path string)

// debounce coalesces the event bursts of an atomic replace.
const debounce = 100 * time.Millisecond

// Watch observes the selected tree file until ctx is cancelled. The parent
// directory is watched rather than the file itself because atomic saves
// replace the file.
func Watch(ctx context.Context, sel selector.Selection, logger *slog.Logger, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	dir := sel.Root()
	if err := w.Add(dir); err != nil {
		return err
	}
	target := filepath.Clean(sel.Path)
	logger.Info("watcher: started", slog.String("path", target))

	var timer *time.Timer
	var timerCh <-chan time.Time
	pending := ""

	schedule := func(kind string) {
		pending = kind
		if timer == nil {
			timer = time.NewTimer(debounce)
			timerCh = timer.C
		} else {
			timer.Reset(debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-timerCh:
			logger.Debug("watcher: tree changed", slog.String("path", target), slog.String("op", pending))
			if cb != nil {
				cb(pending, target)
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if storage.IsTemp(ev.Name) || filepath.Clean(ev.Name) != target {
				continue
			}
			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				schedule("updated")
			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				schedule("deleted")
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}
