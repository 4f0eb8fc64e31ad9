package downloader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const thumbnailDir = "thumbnails/"

func thumbnailRel(id string) string {
	return thumbnailDir + id + ".jpg"
}

// CachedThumbnail returns the local thumbnail for id if one was downloaded.
// Thumbnails are not tracked by the cache index.
func (m *Manager) CachedThumbnail(id string) (string, bool) {
	rel := thumbnailRel(id)
	if !m.store.Exists(rel) {
		return "", false
	}
	abs, err := m.store.Path(rel)
	if err != nil {
		return "", false
	}
	return abs, true
}

// DownloadThumbnail fetches url into the thumbnail cache and returns the
// local path. Concurrent calls for the same id share one request.
func (m *Manager) DownloadThumbnail(ctx context.Context, id, url string) (string, error) {
	if id == "" || url == "" {
		return "", errors.New("downloader: thumbnail: id and url are required")
	}
	if p, ok := m.CachedThumbnail(id); ok {
		return p, nil
	}

	ch := m.group.DoChan("thumbnail:"+id, func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.thumbnailTimeout())
		defer cancel()

		body, _, err := m.fetch(ctx, url)
		if err != nil {
			return "", err
		}
		defer body.Close()

		rel := thumbnailRel(id)
		if _, _, err := m.store.WriteStream(rel, body); err != nil {
			return "", err
		}
		return m.store.Path(rel)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			m.logger.Warn("thumbnail: download failed",
				slog.String("sound_id", id),
				slog.String("error", res.Err.Error()))
			return "", fmt.Errorf("downloader: thumbnail %s: %w", id, res.Err)
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (m *Manager) thumbnailTimeout() time.Duration {
	if m.timeout > 0 {
		return m.timeout
	}
	return defaultTimeout
}
