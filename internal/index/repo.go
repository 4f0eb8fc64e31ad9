package index

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"path/filepath"
	"strings"
	"time"

	"github.com/starford/lockchime/internal/apperr"
	"github.com/starford/lockchime/internal/models"
)

// tombstoneSuffix marks a cache file that is being removed.
const tombstoneSuffix = ".deleting"

// loadLocked reads all entries from SQLite once. Caller holds db.mu for writing.
func (db *DB) loadLocked(ctx context.Context) error {
	if db.loaded {
		return nil
	}
	rows, err := db.conn.QueryContext(ctx, `
		SELECT sound_id, local_path, downloaded_at, file_size, status, checksum
		FROM cache_entries
	`)
	if err != nil {
		return &apperr.CacheIOError{Op: "load", Err: err}
	}
	defer rows.Close()

	out := make(map[string]models.CacheEntry)
	for rows.Next() {
		var e models.CacheEntry
		var status string
		if err := rows.Scan(&e.SoundID, &e.LocalPath, &e.DownloadedAt, &e.FileSize, &status, &e.Checksum); err != nil {
			return &apperr.CacheIOError{Op: "load", Err: err}
		}
		e.Status = models.CacheStatus(status)
		out[e.SoundID] = e
	}
	if err := rows.Err(); err != nil {
		return &apperr.CacheIOError{Op: "load", Err: err}
	}
	db.entries = out
	db.loaded = true
	return nil
}

// GetAll returns a copy of the full sound id to entry mapping.
func (db *DB) GetAll(ctx context.Context) (map[string]models.CacheEntry, error) {
	db.mu.RLock()
	if db.loaded {
		out := maps.Clone(db.entries)
		db.mu.RUnlock()
		return out, nil
	}
	db.mu.RUnlock()

	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.loadLocked(ctx); err != nil {
		return nil, err
	}
	return maps.Clone(db.entries), nil
}

// Get returns the entry for soundID, if any.
func (db *DB) Get(ctx context.Context, soundID string) (models.CacheEntry, bool, error) {
	all, err := db.GetAll(ctx)
	if err != nil {
		return models.CacheEntry{}, false, err
	}
	e, ok := all[soundID]
	return e, ok, nil
}

// Lookup returns a cached entry only when its backing file is present.
// An entry whose file has disappeared is pruned and reported as absent.
func (db *DB) Lookup(ctx context.Context, soundID string) (models.CacheEntry, bool) {
	e, ok, err := db.Get(ctx, soundID)
	if err != nil || !ok || e.Status != models.StatusCached {
		return models.CacheEntry{}, false
	}
	if rel, relErr := db.relPath(e.LocalPath); relErr == nil && db.store.Exists(rel) {
		return e, true
	}
	_, _ = db.pruneIfMissing(ctx, soundID)
	return models.CacheEntry{}, false
}

// Put upserts an entry. The row is committed before the call returns.
func (db *DB) Put(ctx context.Context, e models.CacheEntry) error {
	if e.SoundID == "" {
		return fmt.Errorf("index: put: empty sound id")
	}
	if e.Status == "" {
		e.Status = models.StatusCached
	}
	if e.DownloadedAt.IsZero() {
		e.DownloadedAt = time.Now()
	}
	e.DownloadedAt = e.DownloadedAt.UTC()

	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.loadLocked(ctx); err != nil {
		return err
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return &apperr.CacheIOError{Op: "put", Err: err}
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	_, err = tx.ExecContext(ctx, `
		INSERT INTO cache_entries (sound_id, local_path, downloaded_at, file_size, status, checksum)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(sound_id) DO UPDATE SET
			local_path    = excluded.local_path,
			downloaded_at = excluded.downloaded_at,
			file_size     = excluded.file_size,
			status        = excluded.status,
			checksum      = excluded.checksum
	`, e.SoundID, e.LocalPath, e.DownloadedAt, e.FileSize, string(e.Status), e.Checksum)
	if err != nil {
		return &apperr.CacheIOError{Op: "put", Err: err}
	}
	if err := tx.Commit(); err != nil {
		return &apperr.CacheIOError{Op: "put", Err: err}
	}

	db.entries[e.SoundID] = e
	return nil
}

// Remove deletes the entry and its file. The file is moved aside first and
// restored if the row cannot be deleted, so either both disappear or
// neither visibly changes.
func (db *DB) Remove(ctx context.Context, soundID string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.loadLocked(ctx); err != nil {
		return err
	}
	e, ok := db.entries[soundID]
	if !ok {
		return fmt.Errorf("index: remove %s: %w", soundID, apperr.ErrNotFound)
	}

	rel, err := db.relPath(e.LocalPath)
	if err != nil {
		return &apperr.CacheIOError{Op: "remove", Err: err}
	}
	tomb := rel + tombstoneSuffix
	moved := false
	if db.store.Exists(rel) {
		if err := db.store.Move(rel, tomb); err != nil {
			return &apperr.CacheIOError{Op: "remove", Err: err}
		}
		moved = true
	}

	if _, err := db.conn.ExecContext(ctx, `DELETE FROM cache_entries WHERE sound_id = ?`, soundID); err != nil {
		if moved {
			_ = db.store.Move(tomb, rel)
		}
		return &apperr.CacheIOError{Op: "remove", Err: err}
	}
	delete(db.entries, soundID)

	// A leftover tombstone is swept by Reconcile.
	if moved {
		_ = db.store.Delete(tomb)
	}
	return nil
}

// Prune drops an entry without touching files.
func (db *DB) Prune(ctx context.Context, soundID string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.loadLocked(ctx); err != nil {
		return err
	}
	return db.pruneLocked(ctx, soundID)
}

func (db *DB) pruneLocked(ctx context.Context, soundID string) error {
	if _, ok := db.entries[soundID]; !ok {
		return nil
	}
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM cache_entries WHERE sound_id = ?`, soundID); err != nil {
		return &apperr.CacheIOError{Op: "prune", Err: err}
	}
	delete(db.entries, soundID)
	return nil
}

// pruneIfMissing drops the entry only if its file is gone at the time of the
// check. It reports whether an entry was removed.
func (db *DB) pruneIfMissing(ctx context.Context, soundID string) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.loadLocked(ctx); err != nil {
		return false, err
	}
	e, ok := db.entries[soundID]
	if !ok {
		return false, nil
	}
	if rel, err := db.relPath(e.LocalPath); err == nil && db.store.Exists(rel) {
		return false, nil
	}
	if err := db.pruneLocked(ctx, soundID); err != nil {
		return false, err
	}
	return true, nil
}

// Clear removes every entry and every file in the cache directory. Rows go
// first so that no surviving entry ever points at a deleted file.
func (db *DB) Clear(ctx context.Context) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, err := db.conn.ExecContext(ctx, `DELETE FROM cache_entries`); err != nil {
		return &apperr.CacheIOError{Op: "clear", Err: err}
	}
	db.entries = make(map[string]models.CacheEntry)
	db.loaded = true

	if err := db.store.Purge(); err != nil {
		return &apperr.CacheIOError{Op: "clear", Err: err}
	}
	return nil
}

// TotalSize sums FileSize over entries whose file is present. Entries whose
// file has vanished count as zero and are pruned.
func (db *DB) TotalSize(ctx context.Context) (int64, error) {
	all, err := db.GetAll(ctx)
	if err != nil {
		return 0, err
	}
	var total int64
	for id, e := range all {
		rel, relErr := db.relPath(e.LocalPath)
		if relErr == nil && db.store.Exists(rel) {
			total += e.FileSize
			continue
		}
		if _, err := db.pruneIfMissing(ctx, id); err != nil {
			return total, err
		}
	}
	return total, nil
}

// relPath converts an absolute entry path into a cache-relative one.
func (db *DB) relPath(localPath string) (string, error) {
	rel, err := filepath.Rel(db.store.Root(), localPath)
	if err != nil {
		return "", err
	}
	if rel == "." || strings.HasPrefix(rel, "..") {
		return "", errors.New("path outside cache root: " + localPath)
	}
	return filepath.ToSlash(rel), nil
}
