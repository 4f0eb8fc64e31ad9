// Package index provides the SQLite-backed cache index: a durable mapping from
// sound id to the locally cached audio file.
package index

import (
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/lockchime/internal/models"
	"github.com/starford/lockchime/internal/storage"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS cache_entries (
	sound_id      TEXT PRIMARY KEY,
	local_path    TEXT NOT NULL,
	downloaded_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	file_size     INTEGER NOT NULL DEFAULT 0,
	status        TEXT NOT NULL DEFAULT 'cached',
	checksum      TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_cache_entries_status ON cache_entries(status);
`

// DB wraps a sql.DB and the cache directory it describes.
//
// Entries are read from SQLite on first access and then served from memory.
// Every mutation commits to SQLite before the in-memory map changes, so a
// failed write leaves prior state intact.
type DB struct {
	conn  *sql.DB
	store storage.Provider

	mu      sync.RWMutex
	loaded  bool
	entries map[string]models.CacheEntry
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string, store storage.Provider) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=FULL")
	if err != nil {
		return nil, fmt.Errorf("index: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply schema: %w", err)
	}
	return &DB{conn: conn, store: store}, nil
}

// Store returns the file provider backing this index.
func (db *DB) Store() storage.Provider {
	return db.store
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
