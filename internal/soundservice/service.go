// Package soundservice ties the catalog, the unified view and the download
// cache together for the HTTP, MCP and CLI surfaces.
package soundservice

import (
	"context"
	"fmt"
	"sort"

	"github.com/dustin/go-humanize"

	"github.com/starford/lockchime/internal/apperr"
	"github.com/starford/lockchime/internal/catalog"
	"github.com/starford/lockchime/internal/downloader"
	"github.com/starford/lockchime/internal/index"
	"github.com/starford/lockchime/internal/library"
	"github.com/starford/lockchime/internal/models"
)

// CacheSummary describes the download cache contents.
type CacheSummary struct {
	Entries        []models.CacheEntry `json:"entries"`
	Count          int                 `json:"count"`
	TotalSize      int64               `json:"totalSize"`
	TotalSizeHuman string              `json:"totalSizeHuman"`
}

// Service coordinates catalog, view and cache operations.
type Service struct {
	catalog   *catalog.Store
	view      *library.View
	downloads *downloader.Manager
	idx       index.CacheIndex
}

// NewService creates a new sound service.
func NewService(store *catalog.Store, view *library.View, downloads *downloader.Manager, idx index.CacheIndex) *Service {
	return &Service{catalog: store, view: view, downloads: downloads, idx: idx}
}

// Catalog returns the underlying catalog store.
func (s *Service) Catalog() *catalog.Store {
	return s.catalog
}

// ListSounds returns bundled and external sounds matching f with their
// cache state.
func (s *Service) ListSounds(ctx context.Context, f models.SoundFilter) []library.Item {
	return s.view.ListWithStatus(ctx, f)
}

// GetSound returns a single sound with its cache state.
func (s *Service) GetSound(ctx context.Context, id string) (library.Item, error) {
	return s.view.Item(ctx, id)
}

// Playback resolves a playable URI, downloading an external sound first when
// it is not cached.
func (s *Service) Playback(ctx context.Context, id string) (library.PlaybackSource, error) {
	return s.view.ResolvePlaybackSource(ctx, id)
}

// Download fetches an external sound into the cache and returns its updated
// state. Bundled sounds are always ready and are returned unchanged.
func (s *Service) Download(ctx context.Context, id string) (library.Item, error) {
	snd, err := s.view.Get(ctx, id)
	if err != nil {
		return library.Item{}, err
	}
	if snd.Kind == models.KindExternal {
		if _, err := s.downloads.Download(ctx, *snd.External); err != nil {
			return library.Item{}, err
		}
	}
	return s.view.Item(ctx, id)
}

// CancelDownload aborts an in-flight download. It reports whether one existed.
func (s *Service) CancelDownload(id string) bool {
	return s.downloads.Cancel(id)
}

// CancelAllDownloads aborts every in-flight download and waits for each
// transfer to clean up.
func (s *Service) CancelAllDownloads() {
	for _, done := range s.downloads.CancelAll() {
		<-done
	}
}

// ActiveDownloads returns progress snapshots for in-flight transfers.
func (s *Service) ActiveDownloads() []models.DownloadProgress {
	return s.downloads.Active()
}

// PrefetchTargets resolves ids to external sounds. An empty list selects the
// whole catalog. Bundled ids are skipped since they never need a download.
func (s *Service) PrefetchTargets(ids []string) ([]models.ExternalSound, error) {
	if len(ids) == 0 {
		return s.catalog.AllSounds(), nil
	}
	out := make([]models.ExternalSound, 0, len(ids))
	for _, id := range ids {
		if snd, ok := s.catalog.Sound(id); ok {
			out = append(out, snd)
			continue
		}
		if _, err := s.view.Get(context.Background(), id); err != nil {
			return nil, fmt.Errorf("soundservice: prefetch %s: %w", id, err)
		}
	}
	return out, nil
}

// Prefetch downloads sounds concurrently and returns the local paths of the
// ones that succeeded. onDone is called once per sound.
func (s *Service) Prefetch(ctx context.Context, sounds []models.ExternalSound, onDone downloader.BatchProgress) map[string]string {
	return s.downloads.DownloadBatchWithProgress(ctx, sounds, onDone)
}

// CacheStatus lists the cached files ordered by sound id with their total size.
func (s *Service) CacheStatus(ctx context.Context) (*CacheSummary, error) {
	total, err := s.idx.TotalSize(ctx)
	if err != nil {
		return nil, err
	}
	all, err := s.idx.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	entries := make([]models.CacheEntry, 0, len(all))
	for _, e := range all {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].SoundID < entries[j].SoundID })

	return &CacheSummary{
		Entries:        entries,
		Count:          len(entries),
		TotalSize:      total,
		TotalSizeHuman: humanize.IBytes(uint64(total)),
	}, nil
}

// RemoveCached deletes one cached sound, cancelling its download if needed.
func (s *Service) RemoveCached(ctx context.Context, id string) error {
	return s.downloads.Remove(ctx, id)
}

// ClearCache cancels every download and empties the cache.
func (s *Service) ClearCache(ctx context.Context) error {
	return s.downloads.ClearCache(ctx)
}

// Thumbnail returns the local path of an external sound's artwork,
// downloading it on first use.
func (s *Service) Thumbnail(ctx context.Context, id string) (string, error) {
	snd, ok := s.catalog.Sound(id)
	if !ok || snd.ThumbnailURL == "" {
		return "", fmt.Errorf("soundservice: thumbnail %s: %w", id, apperr.ErrNotFound)
	}
	if path, ok := s.downloads.CachedThumbnail(id); ok {
		return path, nil
	}
	return s.downloads.DownloadThumbnail(ctx, id, snd.ThumbnailURL)
}
