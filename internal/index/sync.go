package index

import (
	"context"
	"log/slog"
	"strings"

	"github.com/starford/lockchime/internal/storage"
)

// thumbnailDir holds thumbnails, which are cached but never indexed.
const thumbnailDir = "thumbnails/"

// ReconcileReport summarises what Reconcile changed.
type ReconcileReport struct {
	Pruned       []string // entries whose file was missing
	RemovedFiles []string // partial, tombstoned or unindexed files
}

// Reconcile brings the index and the cache directory back in agreement after
// a restart:
//   - entries whose file is missing are pruned
//   - partial downloads and tombstones left by an interrupted process are deleted
//   - audio files that no entry references are deleted
//
// It must run before any download starts; it would otherwise race the
// part files of in-flight transfers.
func Reconcile(ctx context.Context, db *DB, logger *slog.Logger) (ReconcileReport, error) {
	var report ReconcileReport

	files, err := db.store.List("")
	if err != nil {
		return report, err
	}
	entries, err := db.GetAll(ctx)
	if err != nil {
		return report, err
	}

	referenced := make(map[string]struct{}, len(entries))
	for id, e := range entries {
		rel, relErr := db.relPath(e.LocalPath)
		if relErr == nil && db.store.Exists(rel) {
			referenced[rel] = struct{}{}
			continue
		}
		if err := db.Prune(ctx, id); err != nil {
			logger.Warn("reconcile: prune failed", slog.String("sound_id", id), slog.String("error", err.Error()))
			continue
		}
		logger.Debug("reconcile: pruned stale entry", slog.String("sound_id", id))
		report.Pruned = append(report.Pruned, id)
	}

	for _, f := range files {
		if strings.HasPrefix(f.Path, thumbnailDir) {
			continue
		}
		if _, ok := referenced[f.Path]; ok {
			continue
		}
		if !strings.HasSuffix(f.Path, storage.PartialSuffix) && !strings.HasSuffix(f.Path, tombstoneSuffix) {
			logger.Debug("reconcile: unindexed file", slog.String("path", f.Path))
		}
		if err := db.store.Delete(f.Path); err != nil {
			logger.Warn("reconcile: delete failed", slog.String("path", f.Path), slog.String("error", err.Error()))
			continue
		}
		report.RemovedFiles = append(report.RemovedFiles, f.Path)
	}

	return report, nil
}
