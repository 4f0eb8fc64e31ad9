package downloader

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/starford/lockchime/internal/models"
)

// BatchProgress is called after each sound in a batch settles.
type BatchProgress func(soundID string, err error)

// DownloadBatch downloads every sound in sounds and returns the local paths
// of those that succeeded, including ones already cached. Individual
// failures are logged and skipped.
func (m *Manager) DownloadBatch(ctx context.Context, sounds []models.ExternalSound) map[string]string {
	return m.DownloadBatchWithProgress(ctx, sounds, nil)
}

// DownloadBatchWithProgress is DownloadBatch with a per-sound callback.
func (m *Manager) DownloadBatchWithProgress(ctx context.Context, sounds []models.ExternalSound, onDone BatchProgress) map[string]string {
	var (
		mu      sync.Mutex
		results = make(map[string]string, len(sounds))
	)
	settle := func(id, path string, err error) {
		mu.Lock()
		if err == nil {
			results[id] = path
		}
		mu.Unlock()
		if onDone != nil {
			onDone(id, err)
		}
	}

	limit := rate.Inf
	if m.rps > 0 {
		limit = rate.Limit(m.rps)
	}
	limiter := rate.NewLimiter(limit, 1)

	var g errgroup.Group
	g.SetLimit(m.concurrency)

	for _, snd := range sounds {
		if path, ok := m.CachedPath(ctx, snd.ID); ok {
			settle(snd.ID, path, nil)
			continue
		}
		g.Go(func() error {
			if err := limiter.Wait(ctx); err != nil {
				m.logger.Warn("batch: skipped",
					slog.String("sound_id", snd.ID),
					slog.String("error", err.Error()))
				settle(snd.ID, "", err)
				return nil
			}
			path, err := m.Download(ctx, snd)
			if err != nil {
				m.logger.Warn("batch: download failed",
					slog.String("sound_id", snd.ID),
					slog.String("error", err.Error()))
			}
			settle(snd.ID, path, err)
			return nil
		})
	}
	_ = g.Wait()

	m.logger.Info("batch: finished",
		slog.Int("requested", len(sounds)),
		slog.Int("succeeded", len(results)))
	return results
}
