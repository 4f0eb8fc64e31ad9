// Package testutil provides shared test helpers for setting up caches and catalogs.
package testutil

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/starford/lockchime/internal/catalog"
	"github.com/starford/lockchime/internal/index"
	"github.com/starford/lockchime/internal/storage"
)

// WAVBody is a minimal payload that passes the downloader's audio sniffing.
var WAVBody = "RIFF" + strings.Repeat("\x00", 60)

// QuietLogger discards everything.
func QuietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestCache creates a temporary audio directory and SQLite index that are
// automatically cleaned up.
func TestCache(t *testing.T) (*index.DB, *storage.FS) {
	t.Helper()
	store, err := storage.NewFS(filepath.Join(t.TempDir(), "sounds"))
	if err != nil {
		t.Fatal(err)
	}
	dbFile, err := os.CreateTemp("", "lockchime-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := index.Open(dbFile.Name(), store)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db, store
}

// Origin is a fake sound host. Every path serves WAVBody except /missing/*.
type Origin struct {
	URL  string
	hits atomic.Int64
}

// Hits returns the number of audio requests served.
func (o *Origin) Hits() int64 { return o.hits.Load() }

// NewOrigin starts a fake sound host.
func NewOrigin(t *testing.T) *Origin {
	t.Helper()
	o := &Origin{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		o.hits.Add(1)
		if strings.HasPrefix(r.URL.Path, "/missing/") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = io.WriteString(w, WAVBody)
	}))
	t.Cleanup(srv.Close)
	o.URL = srv.URL
	return o
}

// TestCatalog builds a two-source catalog whose audio URLs point at origin:
//
//	chime-a  (alerts, featured)  served, with a thumbnail
//	chime-b  (alerts)            served
//	horn-c   (vehicles)          404
//	legacy-d (alerts, disabled source) served
func TestCatalog(t *testing.T, origin *Origin) *catalog.Store {
	t.Helper()
	sound := func(id, source, category, path string, featured bool, popularity int) map[string]any {
		return map[string]any{
			"id":              id,
			"name":            strings.ToUpper(id[:1]) + id[1:],
			"sourceId":        source,
			"category":        category,
			"tags":            []string{category},
			"audioUrl":        origin.URL + path,
			"audioFormat":     "wav",
			"duration":        "0:01",
			"teslaCompatible": true,
			"needsConversion": false,
			"featured":        featured,
			"popularity":      popularity,
		}
	}
	doc := map[string]any{
		"version":     "1.0.0",
		"lastUpdated": "2026-01-01",
		"sources": []map[string]any{
			{"id": "main", "name": "Main", "shortName": "M", "websiteUrl": "https://example.com", "lastUpdated": "2026-01-01", "enabled": true},
			{"id": "old", "name": "Old", "shortName": "O", "websiteUrl": "https://example.org", "lastUpdated": "2020-01-01", "enabled": false},
		},
		"sounds": []map[string]any{
			sound("chime-a", "main", "alerts", "/a.wav", true, 90),
			sound("chime-b", "main", "alerts", "/b.wav", false, 10),
			sound("horn-c", "main", "vehicles", "/missing/c.wav", false, 50),
			sound("legacy-d", "old", "alerts", "/d.wav", false, 0),
		},
	}
	doc["sounds"].([]map[string]any)[0]["thumbnailUrl"] = origin.URL + "/thumb/a.jpg"
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatal(err)
	}
	return catalog.NewStore(catalog.BytesSource("test-catalog.json", data), QuietLogger())
}
