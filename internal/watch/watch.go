// Package watch re-runs an action when files below a directory change.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultDelay is the quiet period after the last change before the action runs.
const DefaultDelay = 500 * time.Millisecond

// Watch calls fn every time files below dir change, once the changes have
// been quiet for delay. Bursts of events collapse into a single call, and
// calls never overlap. Watch blocks until ctx is done.
func Watch(ctx context.Context, dir string, delay time.Duration, logger zerolog.Logger, fn func(context.Context)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := addTree(watcher, dir); err != nil {
		return err
	}
	logger.Info().Str("path", dir).Msg("Watching for changes")

	timer := time.NewTimer(delay)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if hidden(event.Name) || event.Op == fsnotify.Chmod {
				continue
			}
			// New directories are not watched automatically.
			if event.Op.Has(fsnotify.Create) {
				_ = addTree(watcher, event.Name)
			}
			logger.Debug().Str("file", event.Name).Str("op", event.Op.String()).Msg("Definition changed")
			timer.Reset(delay)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn().Err(err).Msg("Watcher error")

		case <-timer.C:
			fn(ctx)
		}
	}
}

func addTree(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && hidden(path) {
			return filepath.SkipDir
		}
		if err := watcher.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}

func hidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}
