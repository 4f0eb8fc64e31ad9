// Package downloader fetches external sounds into the local cache and
// publishes them to the cache index.
//
// At most one transfer per sound id is in flight at any time; concurrent
// callers share its result. A cache entry is published only after the file
// is fully written and renamed into place, and a cancelled or failed
// transfer leaves neither an entry nor a file behind.
package downloader

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/starford/lockchime/internal/apperr"
	"github.com/starford/lockchime/internal/index"
	"github.com/starford/lockchime/internal/models"
	"github.com/starford/lockchime/internal/storage"
)

const (
	defaultTimeout     = 2 * time.Minute
	defaultConcurrency = 3
	defaultUserAgent   = "lockchime/1.0"
)

// Manager orchestrates downloads into the cache.
type Manager struct {
	idx   index.CacheIndex
	store storage.Provider

	client      *http.Client
	timeout     time.Duration
	logger      *slog.Logger
	onEvent     EventHandler
	concurrency int
	rps         float64
	userAgent   string

	group singleflight.Group

	mu       sync.Mutex
	tasks    map[string]*task
	failures map[string]string // last failure per sound, cleared on retry

	// gate serialises publishing against ClearCache. Publishers hold the
	// read side; ClearCache holds the write side and bumps gen so that any
	// transfer started before the clear refuses to publish.
	gate sync.RWMutex
	gen  uint64
}

// task is the in-memory record of one active transfer.
type task struct {
	id          string
	soundID     string
	ctx         context.Context
	cancel      context.CancelFunc
	done        chan struct{}
	started     time.Time
	downloading atomic.Bool
	received    atomic.Int64
	total       atomic.Int64
}

func (t *task) snapshot() models.DownloadProgress {
	p := models.DownloadProgress{
		SoundID:   t.soundID,
		TaskID:    t.id,
		Received:  t.received.Load(),
		Total:     t.total.Load(),
		State:     models.TaskPending,
		StartedAt: t.started,
	}
	if t.downloading.Load() {
		p.State = models.TaskDownloading
	}
	if p.Total > 0 {
		p.Progress = min(float64(p.Received)/float64(p.Total), 1)
	}
	return p
}

// NewManager creates a Manager writing into store and publishing to idx.
func NewManager(idx index.CacheIndex, store storage.Provider, opts ...Option) *Manager {
	m := &Manager{
		idx:         idx,
		store:       store,
		client:      http.DefaultClient,
		timeout:     defaultTimeout,
		logger:      slog.Default(),
		concurrency: defaultConcurrency,
		userAgent:   defaultUserAgent,
		tasks:       make(map[string]*task),
		failures:    make(map[string]string),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Download returns the local path of snd, fetching it if it is not cached.
// Concurrent calls for the same id share one transfer. If ctx ends first the
// caller stops waiting but the shared transfer continues; use Cancel to stop it.
func (m *Manager) Download(ctx context.Context, snd models.ExternalSound) (string, error) {
	if snd.ID == "" {
		return "", &apperr.DownloadError{Err: errors.New("empty sound id")}
	}
	if e, ok := m.idx.Lookup(ctx, snd.ID); ok {
		return e.LocalPath, nil
	}

	// The task is registered before the flight starts so Cancel and
	// ClearCache see it at once. A task exists exactly while its flight key
	// is held; finishTask releases both together.
	m.mu.Lock()
	t, ok := m.tasks[snd.ID]
	if !ok {
		t = m.newTask(snd.ID)
		m.tasks[snd.ID] = t
	}
	ch := m.group.DoChan(snd.ID, func() (interface{}, error) {
		return m.run(t, snd)
	})
	m.mu.Unlock()

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", &apperr.DownloadError{SoundID: snd.ID, Cancelled: true, Err: ctx.Err()}
	}
}

// run executes the transfer owned by t.
func (m *Manager) run(t *task, snd models.ExternalSound) (string, error) {
	defer m.finishTask(t)

	// Another flight may have published while this caller was queued.
	if e, ok := m.idx.Lookup(context.Background(), snd.ID); ok {
		return e.LocalPath, nil
	}

	m.mu.Lock()
	delete(m.failures, snd.ID)
	m.mu.Unlock()
	m.logger.Debug("download: started", slog.String("sound_id", snd.ID), slog.String("task_id", t.id))
	m.emit(Event{Type: EventDownloadStarted, SoundID: snd.ID, TaskID: t.id})

	m.gate.RLock()
	gen := m.gen
	m.gate.RUnlock()

	path, size, err := m.transfer(t.ctx, t, snd, gen)
	if err != nil {
		return "", m.fail(t.ctx, t, err)
	}

	m.logger.Info("download: completed",
		slog.String("sound_id", snd.ID),
		slog.String("path", path),
		slog.Int64("size", size),
		slog.Duration("elapsed", time.Since(t.started)))
	m.emit(Event{Type: EventDownloadCompleted, SoundID: snd.ID, TaskID: t.id, Path: path, Size: size})
	return path, nil
}

// transfer streams the sound into the store and publishes its entry.
func (m *Manager) transfer(ctx context.Context, t *task, snd models.ExternalSound, gen uint64) (string, int64, error) {
	body, length, err := m.fetch(ctx, snd.AudioURL)
	if err != nil {
		return "", 0, err
	}
	defer body.Close()

	switch {
	case length > 0:
		t.total.Store(length)
	case snd.FileSize != nil:
		t.total.Store(*snd.FileSize)
	}
	t.downloading.Store(true)

	br := bufio.NewReader(&progressReader{r: body, t: t})
	if err := sniffAudio(br, snd.AudioFormat); err != nil {
		return "", 0, err
	}

	rel := snd.FileName()
	n, sum, err := m.store.WriteStream(rel, br)
	if err != nil {
		return "", 0, err
	}
	if n == 0 {
		_ = m.store.Delete(rel)
		return "", 0, errEmptyBody
	}
	abs, err := m.store.Path(rel)
	if err != nil {
		_ = m.store.Delete(rel)
		return "", 0, err
	}

	m.gate.RLock()
	defer m.gate.RUnlock()

	// The file is in place; refuse to publish if the task was cancelled or
	// the cache was cleared meanwhile.
	if err := ctx.Err(); err != nil || m.gen != gen {
		_ = m.store.Delete(rel)
		if err == nil {
			err = context.Canceled
		}
		return "", 0, err
	}

	entry := models.CacheEntry{
		SoundID:      snd.ID,
		LocalPath:    abs,
		DownloadedAt: time.Now().UTC(),
		FileSize:     n,
		Status:       models.StatusCached,
		Checksum:     sum,
	}
	if err := m.idx.Put(context.WithoutCancel(ctx), entry); err != nil {
		_ = m.store.Delete(rel)
		return "", 0, err
	}
	return abs, n, nil
}

// fail converts err into a DownloadError, logs it and emits the matching event.
func (m *Manager) fail(ctx context.Context, t *task, err error) error {
	cancelled := errors.Is(ctx.Err(), context.Canceled)
	dlErr := &apperr.DownloadError{SoundID: t.soundID, Cancelled: cancelled, Err: err}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		dlErr.Err = fmt.Errorf("timed out after %s: %w", m.timeout, err)
	}

	if cancelled {
		m.logger.Info("download: cancelled", slog.String("sound_id", t.soundID))
		m.emit(Event{Type: EventDownloadCancelled, SoundID: t.soundID, TaskID: t.id})
		return dlErr
	}
	m.mu.Lock()
	m.failures[t.soundID] = dlErr.Error()
	m.mu.Unlock()
	m.logger.Warn("download: failed",
		slog.String("sound_id", t.soundID),
		slog.String("error", dlErr.Error()))
	m.emit(Event{Type: EventDownloadFailed, SoundID: t.soundID, TaskID: t.id, Error: dlErr.Error()})
	return dlErr
}

// newTask builds the record for a transfer of soundID. Its context is owned
// by the manager, not by any caller.
func (m *Manager) newTask(soundID string) *task {
	t := &task{
		id:      uuid.NewString(),
		soundID: soundID,
		done:    make(chan struct{}),
		started: time.Now().UTC(),
	}
	if m.timeout > 0 {
		t.ctx, t.cancel = context.WithTimeout(context.Background(), m.timeout)
	} else {
		t.ctx, t.cancel = context.WithCancel(context.Background())
	}
	return t
}

func (m *Manager) finishTask(t *task) {
	m.mu.Lock()
	if m.tasks[t.soundID] == t {
		delete(m.tasks, t.soundID)
		m.group.Forget(t.soundID)
	}
	m.mu.Unlock()
	t.cancel()
	close(t.done)
}

// Cancel stops the in-flight transfer for id. It reports whether one existed.
func (m *Manager) Cancel(id string) bool {
	m.mu.Lock()
	t, ok := m.tasks[id]
	m.mu.Unlock()
	if ok {
		t.cancel()
	}
	return ok
}

// CancelAll stops every in-flight transfer and returns channels that close
// when each one has exited.
func (m *Manager) CancelAll() []<-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	done := make([]<-chan struct{}, 0, len(m.tasks))
	for _, t := range m.tasks {
		t.cancel()
		done = append(done, t.done)
	}
	return done
}

// IsDownloading reports whether a transfer for id is in flight.
func (m *Manager) IsDownloading(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.tasks[id]
	return ok
}

// LastError returns the failure message of the most recent attempt for id,
// if that attempt failed. Cancellations are not recorded.
func (m *Manager) LastError(id string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.failures[id]
	return msg, ok
}

// Progress returns a snapshot of the in-flight transfer for id.
func (m *Manager) Progress(id string) (models.DownloadProgress, bool) {
	m.mu.Lock()
	t, ok := m.tasks[id]
	m.mu.Unlock()
	if !ok {
		return models.DownloadProgress{}, false
	}
	return t.snapshot(), true
}

// Active returns snapshots of every in-flight transfer, oldest first.
func (m *Manager) Active() []models.DownloadProgress {
	m.mu.Lock()
	out := make([]models.DownloadProgress, 0, len(m.tasks))
	for _, t := range m.tasks {
		out = append(out, t.snapshot())
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].SoundID < out[j].SoundID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

// CachedPath returns the local file of a cached sound. A stale entry whose
// file has vanished is pruned and reported as not cached.
func (m *Manager) CachedPath(ctx context.Context, id string) (string, bool) {
	e, ok := m.idx.Lookup(ctx, id)
	if !ok {
		return "", false
	}
	return e.LocalPath, true
}

// Remove cancels any transfer for id and deletes its cached file and entry.
func (m *Manager) Remove(ctx context.Context, id string) error {
	m.mu.Lock()
	t, ok := m.tasks[id]
	m.mu.Unlock()
	if ok {
		t.cancel()
		select {
		case <-t.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	m.mu.Lock()
	delete(m.failures, id)
	m.mu.Unlock()

	if err := m.idx.Remove(ctx, id); err != nil {
		// Cancelling a transfer that never published is a successful removal.
		if ok && errors.Is(err, apperr.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("downloader: remove %s: %w", id, err)
	}
	m.logger.Info("cache: removed", slog.String("sound_id", id))
	m.emit(Event{Type: EventCacheRemoved, SoundID: id})
	return nil
}

// ClearCache cancels every in-flight transfer, waits for each to exit, then
// deletes all cached files and entries. No transfer can publish while the
// clear runs or afterwards unless it started after the clear.
func (m *Manager) ClearCache(ctx context.Context) error {
	for _, done := range m.CancelAll() {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	m.gate.Lock()
	defer m.gate.Unlock()
	m.gen++

	m.mu.Lock()
	clear(m.failures)
	m.mu.Unlock()

	if err := m.idx.Clear(ctx); err != nil {
		return fmt.Errorf("downloader: clear cache: %w", err)
	}
	m.logger.Info("cache: cleared")
	m.emit(Event{Type: EventCacheCleared})
	return nil
}
