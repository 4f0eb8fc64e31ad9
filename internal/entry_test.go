package internal

import (
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/starford/lockchime/internal/models"
)

func testConfig(t *testing.T) *Config {
	t.Helper()
	cfg := NewDefaultConfig()
	cfg.Cache.Dir = t.TempDir()
	cfg.Cache.SQLitePath = filepath.Join(cfg.Cache.Dir, "index.db")
	cfg.Cache.Watch = false
	return cfg
}

func TestOpen_WiresEmbeddedCatalog(t *testing.T) {
	app, err := Open(context.Background(), WithConfig(testConfig(t)), WithLogOutput(io.Discard))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer app.Close()

	items := app.Service.ListSounds(context.Background(), models.SoundFilter{})
	if len(items) != 15 {
		t.Errorf("sounds = %d, want 15", len(items))
	}
	sum, err := app.Service.CacheStatus(context.Background())
	if err != nil {
		t.Fatalf("CacheStatus: %v", err)
	}
	if sum.Count != 0 {
		t.Errorf("fresh cache count = %d", sum.Count)
	}
}

func TestOpen_BrokenCatalogFileStillServesBundled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Catalog.Path = filepath.Join(t.TempDir(), "missing.json")

	app, err := Open(context.Background(), WithConfig(cfg), WithLogOutput(io.Discard))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer app.Close()

	if app.Service.Catalog().Err() == nil {
		t.Error("expected catalog load error")
	}
	if n := len(app.Service.ListSounds(context.Background(), models.SoundFilter{})); n != 10 {
		t.Errorf("sounds = %d, want 10 bundled", n)
	}
}

func TestOpen_RequiresConfig(t *testing.T) {
	if _, err := Open(context.Background()); err == nil {
		t.Error("expected error without config")
	}
}

func TestOpenCatalog(t *testing.T) {
	store, err := OpenCatalog(WithConfig(testConfig(t)), WithLogOutput(io.Discard))
	if err != nil {
		t.Fatalf("OpenCatalog: %v", err)
	}
	if issues := store.Validate(context.Background()); len(issues) != 0 {
		t.Errorf("issues = %v", issues)
	}
}
