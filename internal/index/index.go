package index

import (
	"context"

	"github.com/starford/lockchime/internal/models"
)

// CacheIndex defines the interface for cache index operations.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with mocks.
type CacheIndex interface {
	GetAll(ctx context.Context) (map[string]models.CacheEntry, error)
	Get(ctx context.Context, soundID string) (models.CacheEntry, bool, error)
	Lookup(ctx context.Context, soundID string) (models.CacheEntry, bool)
	Put(ctx context.Context, entry models.CacheEntry) error
	Remove(ctx context.Context, soundID string) error
	Prune(ctx context.Context, soundID string) error
	Clear(ctx context.Context) error
	TotalSize(ctx context.Context) (int64, error)
	Close() error
}

// Verify *DB satisfies CacheIndex at compile time.
var _ CacheIndex = (*DB)(nil)
