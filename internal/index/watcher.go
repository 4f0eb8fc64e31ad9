package index

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// EventCallback is called after a watcher-driven index change.
// kind is currently always "pruned".
type EventCallback func(kind string, soundID string)

// sweepDelay debounces the full missing-file sweep after rename bursts.
const sweepDelay = 200 * time.Millisecond

// Watch starts an fsnotify watcher on the cache directory and prunes entries
// whose file is removed or renamed away by something outside the process
// (OS storage pressure, a user emptying the folder). It runs until ctx is
// cancelled and calls cb (if non-nil) after each pruned entry.
func Watch(ctx context.Context, db *DB, logger *slog.Logger, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	root := db.store.Root()
	if err := w.Add(root); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", root))

	var sweepTimer *time.Timer
	var sweepCh <-chan time.Time

	scheduleSweep := func() {
		if sweepTimer == nil {
			sweepTimer = time.NewTimer(sweepDelay)
			sweepCh = sweepTimer.C
		} else {
			sweepTimer.Reset(sweepDelay)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if sweepTimer != nil {
				sweepTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-sweepCh:
			sweepMissing(ctx, db, logger, cb)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			rel, relErr := filepath.Rel(root, ev.Name)
			if relErr != nil {
				continue
			}
			id, found := soundIDForPath(ctx, db, filepath.ToSlash(rel))
			if !found {
				continue
			}
			pruned, pruneErr := db.pruneIfMissing(ctx, id)
			if pruneErr != nil {
				logger.Warn("watcher: prune failed", slog.String("sound_id", id), slog.String("error", pruneErr.Error()))
				continue
			}
			if pruned {
				logger.Debug("watcher: pruned", slog.String("sound_id", id), slog.String("path", rel))
				if cb != nil {
					cb("pruned", id)
				}
			}
			if ev.Op&fsnotify.Rename != 0 {
				scheduleSweep()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// sweepMissing prunes every entry whose file is no longer on disk.
func sweepMissing(ctx context.Context, db *DB, logger *slog.Logger, cb EventCallback) {
	entries, err := db.GetAll(ctx)
	if err != nil {
		logger.Warn("sweep: load failed", slog.String("error", err.Error()))
		return
	}
	for id := range entries {
		pruned, err := db.pruneIfMissing(ctx, id)
		if err != nil || !pruned {
			continue
		}
		logger.Debug("sweep: pruned", slog.String("sound_id", id))
		if cb != nil {
			cb("pruned", id)
		}
	}
}

func soundIDForPath(ctx context.Context, db *DB, rel string) (string, bool) {
	entries, err := db.GetAll(ctx)
	if err != nil {
		return "", false
	}
	for id, e := range entries {
		if p, err := db.relPath(e.LocalPath); err == nil && p == rel {
			return id, true
		}
	}
	return "", false
}
