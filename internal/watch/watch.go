// Package watch reports external edits of the project file.
package watch

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/annotree/internal/checksum"
	"github.com/starford/annotree/internal/storage"
)

// DefaultDebounce is used when Watch gets a non-positive debounce.
const DefaultDebounce = 200 * time.Millisecond

// Watch watches the directory holding file (relative to the store root)
// until ctx is cancelled, and calls onChange once writes to file have
// settled for debounce and its content differs from the last seen one.
//
// The directory is watched rather than the file so editors that replace
// the file by renaming a temporary one are still seen.
func Watch(ctx context.Context, store storage.Provider, file string, debounce time.Duration, logger *slog.Logger, onChange func()) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	abs, err := store.Abs(file)
	if err != nil {
		return err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(abs)); err != nil {
		return err
	}

	var last string
	if data, err := store.Read(file); err == nil {
		last = checksum.Sum(data)
	}

	logger.Info("watcher: started", slog.String("file", abs))

	var timer *time.Timer
	var fire <-chan time.Time
	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(debounce)
			fire = timer.C
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

		case <-fire:
			data, readErr := store.Read(file)
			if readErr != nil {
				logger.Warn("watcher: read failed", slog.String("file", file), slog.String("error", readErr.Error()))
				continue
			}
			sum := checksum.Sum(data)
			if sum == last {
				logger.Debug("watcher: content unchanged", slog.String("file", file))
				continue
			}
			last = sum
			logger.Info("watcher: project changed",
				slog.String("file", file), slog.String("checksum", checksum.Short(sum)))
			onChange()

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) != 0 {
				schedule()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}
