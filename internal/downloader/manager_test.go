package downloader

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/lockchime/internal/apperr"
	"github.com/starford/lockchime/internal/index"
	"github.com/starford/lockchime/internal/models"
	"github.com/starford/lockchime/internal/storage"
)

// origin is a fake sound host that counts GETs per path.
type origin struct {
	srv     *httptest.Server
	hits    sync.Map // path -> *atomic.Int64
	release chan struct{}

	mu     sync.Mutex
	routes map[string]http.HandlerFunc
}

func newOrigin(t *testing.T) *origin {
	t.Helper()
	o := &origin{release: make(chan struct{}), routes: map[string]http.HandlerFunc{}}
	o.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, _ := o.hits.LoadOrStore(r.URL.Path, new(atomic.Int64))
		c.(*atomic.Int64).Add(1)
		o.mu.Lock()
		h, ok := o.routes[r.URL.Path]
		o.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		h(w, r)
	}))
	t.Cleanup(o.srv.Close)
	t.Cleanup(func() {
		select {
		case <-o.release:
		default:
			close(o.release)
		}
	})
	return o
}

func (o *origin) handle(path string, h http.HandlerFunc) string {
	o.mu.Lock()
	o.routes[path] = h
	o.mu.Unlock()
	return o.srv.URL + path
}

// serve registers a static body at path.
func (o *origin) serve(path, body string) string {
	return o.handle(path, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, body)
	})
}

// gated serves body only after release is closed.
func (o *origin) gated(path, body string) string {
	return o.handle(path, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-o.release:
			_, _ = io.WriteString(w, body)
		case <-r.Context().Done():
		}
	})
}

// stalled sends a partial body then hangs until the client goes away.
func (o *origin) stalled(path string, head int) string {
	return o.handle(path, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1000000")
		_, _ = io.WriteString(w, "RIFF"+strings.Repeat("x", head))
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	})
}

func (o *origin) count(path string) int64 {
	c, ok := o.hits.Load(path)
	if !ok {
		return 0
	}
	return c.(*atomic.Int64).Load()
}

type fixture struct {
	mgr    *Manager
	idx    *index.DB
	store  *storage.FS
	origin *origin

	mu     sync.Mutex
	events []Event
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	store, err := storage.NewFS(filepath.Join(t.TempDir(), "sounds"))
	require.NoError(t, err)
	idx, err := index.Open(filepath.Join(t.TempDir(), "index.db"), store)
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })

	f := &fixture{idx: idx, store: store, origin: newOrigin(t)}
	base := []Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithEventHandler(func(ev Event) {
			f.mu.Lock()
			f.events = append(f.events, ev)
			f.mu.Unlock()
		}),
	}
	f.mgr = NewManager(idx, store, append(base, opts...)...)
	return f
}

func (f *fixture) eventTypes(soundID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, ev := range f.events {
		if ev.SoundID == soundID {
			out = append(out, ev.Type)
		}
	}
	return out
}

func (f *fixture) files(t *testing.T) []string {
	t.Helper()
	infos, err := f.store.List("")
	require.NoError(t, err)
	out := make([]string, len(infos))
	for i, fi := range infos {
		out[i] = fi.Path
	}
	return out
}

func sound(id string, format models.AudioFormat, url string) models.ExternalSound {
	return models.ExternalSound{ID: id, Name: id, SourceID: "src", AudioURL: url, AudioFormat: format}
}

func eventually(t *testing.T, fn func() bool, msg string) {
	t.Helper()
	require.Eventually(t, fn, 5*time.Second, 10*time.Millisecond, msg)
}

func TestDownload_PublishesAfterWrite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	body := "ID3" + strings.Repeat("a", 997)
	snd := sound("s1", models.FormatMP3, f.origin.serve("/s1.mp3", body))

	path, err := f.mgr.Download(ctx, snd)
	require.NoError(t, err)
	assert.Equal(t, "s1.mp3", filepath.Base(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.EqualValues(t, 1000, info.Size())

	all, err := f.idx.GetAll(ctx)
	require.NoError(t, err)
	require.Contains(t, all, "s1")
	e := all["s1"]
	assert.Equal(t, models.StatusCached, e.Status)
	assert.Equal(t, path, e.LocalPath)
	assert.EqualValues(t, 1000, e.FileSize)
	assert.Len(t, e.Checksum, 64)

	assert.Equal(t, []string{EventDownloadStarted, EventDownloadCompleted}, f.eventTypes("s1"))
	assert.False(t, f.mgr.IsDownloading("s1"))
}

func TestDownload_CacheHitSkipsNetwork(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	snd := sound("s1", models.FormatWAV, f.origin.serve("/s1.wav", "RIFFdata"))

	p1, err := f.mgr.Download(ctx, snd)
	require.NoError(t, err)
	p2, err := f.mgr.Download(ctx, snd)
	require.NoError(t, err)

	assert.Equal(t, p1, p2)
	assert.EqualValues(t, 1, f.origin.count("/s1.wav"))
}

func TestDownload_ConcurrentCallsShareOneFetch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	snd := sound("s1", models.FormatWAV, f.origin.gated("/s1.wav", "RIFFshared"))

	var wg sync.WaitGroup
	paths := make([]string, 2)
	errs := make([]error, 2)
	for i := range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			paths[i], errs[i] = f.mgr.Download(ctx, snd)
		}()
	}

	eventually(t, func() bool { return f.origin.count("/s1.wav") == 1 }, "first request never arrived")
	time.Sleep(50 * time.Millisecond)
	close(f.origin.release)
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, paths[0], paths[1])
	assert.EqualValues(t, 1, f.origin.count("/s1.wav"))
}

func TestDownload_CancelLeavesNoTrace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	prior := sound("keep", models.FormatWAV, f.origin.serve("/keep.wav", "RIFFkeep"))
	_, err := f.mgr.Download(ctx, prior)
	require.NoError(t, err)
	before, _ := f.idx.GetAll(ctx)

	snd := sound("s2", models.FormatWAV, f.origin.stalled("/s2.wav", 4096))
	errc := make(chan error, 1)
	go func() {
		_, err := f.mgr.Download(ctx, snd)
		errc <- err
	}()

	eventually(t, func() bool {
		p, ok := f.mgr.Progress("s2")
		return ok && p.State == models.TaskDownloading && p.Received >= 4096
	}, "transfer never started streaming")

	p, _ := f.mgr.Progress("s2")
	assert.NotEmpty(t, p.TaskID)
	assert.Greater(t, p.Progress, 0.0)
	assert.Len(t, f.mgr.Active(), 1)

	require.True(t, f.mgr.Cancel("s2"))

	select {
	case err = <-errc:
	case <-time.After(5 * time.Second):
		t.Fatal("cancel did not terminate the transfer")
	}
	assert.True(t, errors.Is(err, apperr.ErrCancelled), "err = %v", err)
	var dlErr *apperr.DownloadError
	require.True(t, errors.As(err, &dlErr))
	assert.True(t, dlErr.Cancelled)

	after, _ := f.idx.GetAll(ctx)
	assert.Equal(t, before, after)
	assert.Equal(t, []string{"keep.wav"}, f.files(t))
	assert.False(t, f.mgr.IsDownloading("s2"))
	assert.Contains(t, f.eventTypes("s2"), EventDownloadCancelled)
	_, failed := f.mgr.LastError("s2")
	assert.False(t, failed, "cancellation is not a failure")
}

func TestCancel_NoTask(t *testing.T) {
	f := newFixture(t)
	assert.False(t, f.mgr.Cancel("nope"))
}

func TestDownload_FailuresPublishNothing(t *testing.T) {
	cases := map[string]func(o *origin) string{
		"not found": func(o *origin) string { return o.srv.URL + "/missing.wav" },
		"server error": func(o *origin) string {
			return o.handle("/boom.wav", func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			})
		},
		"html page": func(o *origin) string {
			return o.serve("/page.wav", "<!DOCTYPE html><html><body>moved</body></html>")
		},
		"empty body": func(o *origin) string { return o.serve("/empty.wav", "") },
	}
	for name, url := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			_, err := f.mgr.Download(ctx, sound("s1", models.FormatWAV, url(f.origin)))

			var dlErr *apperr.DownloadError
			require.True(t, errors.As(err, &dlErr), "err = %v", err)
			assert.False(t, dlErr.Cancelled)
			assert.False(t, errors.Is(err, apperr.ErrCancelled))

			all, _ := f.idx.GetAll(ctx)
			assert.Empty(t, all)
			assert.Empty(t, f.files(t))
			assert.Contains(t, f.eventTypes("s1"), EventDownloadFailed)
			msg, failed := f.mgr.LastError("s1")
			assert.True(t, failed)
			assert.NotEmpty(t, msg)
		})
	}
}

func TestDownload_Timeout(t *testing.T) {
	f := newFixture(t, WithTimeout(100*time.Millisecond))
	snd := sound("slow", models.FormatWAV, f.origin.stalled("/slow.wav", 16))

	_, err := f.mgr.Download(context.Background(), snd)
	var dlErr *apperr.DownloadError
	require.True(t, errors.As(err, &dlErr), "err = %v", err)
	assert.False(t, dlErr.Cancelled, "a timeout is a failure, not a cancellation")
	assert.Contains(t, err.Error(), "timed out")
	assert.Empty(t, f.files(t))
}

func TestDownload_CallerAbandonDoesNotCancelTransfer(t *testing.T) {
	f := newFixture(t)
	snd := sound("s1", models.FormatWAV, f.origin.gated("/s1.wav", "RIFFlate"))

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := f.mgr.Download(ctx, snd)
		errc <- err
	}()
	eventually(t, func() bool { return f.mgr.IsDownloading("s1") }, "task not registered")
	cancel()
	assert.True(t, errors.Is(<-errc, apperr.ErrCancelled))

	close(f.origin.release)
	path, err := f.mgr.Download(context.Background(), snd)
	require.NoError(t, err)
	assert.FileExists(t, path)
	assert.EqualValues(t, 1, f.origin.count("/s1.wav"))
}

func TestCancel_SeesTaskAsSoonAsDownloadIsCalled(t *testing.T) {
	f := newFixture(t)
	snd := sound("s1", models.FormatWAV, f.origin.gated("/s1.wav", "RIFFearly"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.mgr.Download(ctx, snd)
	require.True(t, errors.Is(err, apperr.ErrCancelled), "err = %v", err)

	// The caller gave up at once, yet the transfer it started is already
	// registered and cancellable.
	require.True(t, f.mgr.IsDownloading("s1"))
	require.True(t, f.mgr.Cancel("s1"))
	eventually(t, func() bool { return !f.mgr.IsDownloading("s1") }, "cancelled task never exited")

	all, _ := f.idx.GetAll(context.Background())
	assert.Empty(t, all)
	assert.Empty(t, f.files(t))
	assert.NotContains(t, f.eventTypes("s1"), EventDownloadCompleted)

	close(f.origin.release)
	path, err := f.mgr.Download(context.Background(), snd)
	require.NoError(t, err, "a new flight starts after the cancelled one")
	assert.FileExists(t, path)
}

func TestDownload_EmptyID(t *testing.T) {
	f := newFixture(t)
	_, err := f.mgr.Download(context.Background(), models.ExternalSound{})
	var dlErr *apperr.DownloadError
	assert.True(t, errors.As(err, &dlErr))
}

func TestCachedPath_StaleEntrySelfHeals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	snd := sound("s1", models.FormatWAV, f.origin.serve("/s1.wav", "RIFFheal"))

	path, err := f.mgr.Download(ctx, snd)
	require.NoError(t, err)
	got, ok := f.mgr.CachedPath(ctx, "s1")
	require.True(t, ok)
	assert.Equal(t, path, got)

	require.NoError(t, os.Remove(path))

	_, ok = f.mgr.CachedPath(ctx, "s1")
	assert.False(t, ok)
	_, ok, _ = f.idx.Get(ctx, "s1")
	assert.False(t, ok, "stale entry should be pruned")

	_, err = f.mgr.Download(ctx, snd)
	require.NoError(t, err)
	assert.EqualValues(t, 2, f.origin.count("/s1.wav"))
}

func TestRemove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	snd := sound("s1", models.FormatWAV, f.origin.serve("/s1.wav", "RIFFbye"))
	path, err := f.mgr.Download(ctx, snd)
	require.NoError(t, err)

	require.NoError(t, f.mgr.Remove(ctx, "s1"))
	assert.NoFileExists(t, path)
	_, ok := f.mgr.CachedPath(ctx, "s1")
	assert.False(t, ok)
	assert.Contains(t, f.eventTypes("s1"), EventCacheRemoved)

	err = f.mgr.Remove(ctx, "s1")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestRemove_CancelsInFlight(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	snd := sound("s1", models.FormatWAV, f.origin.stalled("/s1.wav", 16))

	errc := make(chan error, 1)
	go func() {
		_, err := f.mgr.Download(ctx, snd)
		errc <- err
	}()
	eventually(t, func() bool { return f.mgr.IsDownloading("s1") }, "task not registered")

	require.NoError(t, f.mgr.Remove(ctx, "s1"))
	assert.True(t, errors.Is(<-errc, apperr.ErrCancelled))
	assert.Empty(t, f.files(t))
}

func TestClearCache_CancelsInFlightThenDeletes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		_, err := f.mgr.Download(ctx, sound(id, models.FormatWAV, f.origin.serve("/"+id+".wav", "RIFF"+id)))
		require.NoError(t, err)
	}
	_, err := f.mgr.DownloadThumbnail(ctx, "a", f.origin.serve("/a.jpg", "jpeg"))
	require.NoError(t, err)

	errc := make(chan error, 1)
	go func() {
		_, err := f.mgr.Download(ctx, sound("c", models.FormatWAV, f.origin.stalled("/c.wav", 2048)))
		errc <- err
	}()
	eventually(t, func() bool {
		p, ok := f.mgr.Progress("c")
		return ok && p.Received > 0
	}, "transfer never started")

	require.NoError(t, f.mgr.ClearCache(ctx))

	assert.True(t, errors.Is(<-errc, apperr.ErrCancelled))
	all, _ := f.idx.GetAll(ctx)
	assert.Empty(t, all)
	assert.Empty(t, f.files(t))
	assert.Empty(t, f.mgr.Active())

	f.mu.Lock()
	last := f.events[len(f.events)-1]
	f.mu.Unlock()
	assert.Equal(t, EventCacheCleared, last.Type)

	// The cache is usable again after a clear.
	_, err = f.mgr.Download(ctx, sound("a", models.FormatWAV, f.origin.srv.URL+"/a.wav"))
	require.NoError(t, err)
	assert.EqualValues(t, 2, f.origin.count("/a.wav"))
}

func TestDownloadBatch_PartialSuccess(t *testing.T) {
	f := newFixture(t, WithConcurrency(2), WithRateLimit(100))
	ctx := context.Background()

	cached := sound("cached", models.FormatWAV, f.origin.serve("/cached.wav", "RIFFc"))
	_, err := f.mgr.Download(ctx, cached)
	require.NoError(t, err)

	sounds := []models.ExternalSound{
		cached,
		sound("ok1", models.FormatWAV, f.origin.serve("/ok1.wav", "RIFF1")),
		sound("bad", models.FormatWAV, f.origin.srv.URL+"/missing.wav"),
		sound("ok2", models.FormatMP3, f.origin.serve("/ok2.mp3", "ID3two")),
	}

	var settled atomic.Int64
	got := f.mgr.DownloadBatchWithProgress(ctx, sounds, func(string, error) { settled.Add(1) })

	assert.Len(t, got, 3)
	assert.Contains(t, got, "cached")
	assert.Contains(t, got, "ok1")
	assert.Contains(t, got, "ok2")
	assert.NotContains(t, got, "bad")
	assert.EqualValues(t, 4, settled.Load())
	assert.EqualValues(t, 1, f.origin.count("/cached.wav"), "cached sounds are not refetched")
}

func TestDownloadBatch_Empty(t *testing.T) {
	f := newFixture(t)
	assert.Empty(t, f.mgr.DownloadBatch(context.Background(), nil))
}

func TestThumbnail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, ok := f.mgr.CachedThumbnail("s1")
	assert.False(t, ok)

	url := f.origin.serve("/thumb/s1.jpg", "jpeg-bytes")
	p, err := f.mgr.DownloadThumbnail(ctx, "s1", url)
	require.NoError(t, err)
	assert.Equal(t, "s1.jpg", filepath.Base(p))

	again, err := f.mgr.DownloadThumbnail(ctx, "s1", url)
	require.NoError(t, err)
	assert.Equal(t, p, again)
	assert.EqualValues(t, 1, f.origin.count("/thumb/s1.jpg"))

	all, _ := f.idx.GetAll(ctx)
	assert.Empty(t, all, "thumbnails are not indexed")

	_, err = f.mgr.DownloadThumbnail(ctx, "s2", f.origin.srv.URL+"/thumb/none.jpg")
	assert.Error(t, err)
}

func TestSniffAudio(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		format models.AudioFormat
		ok     bool
	}{
		{"wav", "RIFF....WAVE", models.FormatWAV, true},
		{"id3", "ID3\x03", models.FormatMP3, true},
		{"mp3 frame", "\xff\xfb\x90\x00", models.FormatMP3, true},
		{"html", "<html><body>", models.FormatMP3, false},
		{"doctype", "<!doctype html>", models.FormatWAV, false},
		{"wav without riff", "OggS....", models.FormatWAV, false},
		{"unknown mp3", "????", models.FormatMP3, true},
		{"empty", "", models.FormatWAV, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := sniffAudio(bufioReader(tc.body), tc.format)
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func bufioReader(s string) *bufio.Reader {
	return bufio.NewReader(strings.NewReader(s))
}
