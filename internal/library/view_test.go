package library

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/lockchime/internal/apperr"
	"github.com/starford/lockchime/internal/catalog"
	"github.com/starford/lockchime/internal/models"
)

type fakeDownloads struct {
	mu        sync.Mutex
	cached    map[string]string
	active    map[string]models.DownloadProgress
	failed    map[string]string
	downloads []string
	err       error
}

func newFakeDownloads() *fakeDownloads {
	return &fakeDownloads{
		cached: map[string]string{},
		active: map[string]models.DownloadProgress{},
		failed: map[string]string{},
	}
}

func (f *fakeDownloads) CachedPath(_ context.Context, id string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.cached[id]
	return p, ok
}

func (f *fakeDownloads) Download(_ context.Context, snd models.ExternalSound) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloads = append(f.downloads, snd.ID)
	if f.err != nil {
		return "", f.err
	}
	p := "/cache/" + snd.FileName()
	f.cached[snd.ID] = p
	return p, nil
}

func (f *fakeDownloads) Progress(id string) (models.DownloadProgress, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.active[id]
	return p, ok
}

func (f *fakeDownloads) LastError(id string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg, ok := f.failed[id]
	return msg, ok
}

func newView(t *testing.T) (*View, *fakeDownloads) {
	t.Helper()
	store := catalog.NewStore(catalog.EmbeddedSource(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	dl := newFakeDownloads()
	return NewView(store, dl, Bundled()), dl
}

func soundIDs(sounds []models.Sound) []string {
	out := make([]string, len(sounds))
	for i, s := range sounds {
		out[i] = s.ID()
	}
	return out
}

func TestBundled(t *testing.T) {
	b := Bundled()
	require.Len(t, b, 10)
	assert.Equal(t, "1", b[0].ID)
	assert.Equal(t, "Digital Chime", b[0].Name)
	for _, s := range b {
		assert.True(t, s.IsBuiltIn())
		assert.NotEmpty(t, s.AudioRef)
	}

	b[0].Name = "mutated"
	assert.Equal(t, "Digital Chime", Bundled()[0].Name)
}

func TestList_BundledFirst(t *testing.T) {
	v, _ := newView(t)
	got := v.List(context.Background(), models.SoundFilter{})
	require.Len(t, got, 15)
	for i := range 10 {
		assert.Equal(t, models.KindBundled, got[i].Kind)
	}
	assert.Equal(t, "nta-jarvis-defense", got[10].ID())
}

func TestList_CategoryAppliesToBoth(t *testing.T) {
	v, _ := newView(t)
	got := v.List(context.Background(), models.SoundFilter{Category: "sci-fi"})
	assert.Equal(t, []string{"2", "4", "9", "nta-lightsaber", "td-warp-drive"}, soundIDs(got))
	for _, s := range got {
		assert.Equal(t, "sci-fi", s.Category())
	}
}

func TestList_SearchMatchesBundledNamesOnly(t *testing.T) {
	v, _ := newView(t)
	got := v.List(context.Background(), models.SoundFilter{Query: "bell"})
	assert.Equal(t, []string{"3"}, soundIDs(got))

	got = v.List(context.Background(), models.SoundFilter{Query: "jarvis"})
	assert.Equal(t, []string{"nta-jarvis-defense"}, soundIDs(got))
}

func TestList_ExternalCriteriaKeepBundled(t *testing.T) {
	v, _ := newView(t)
	ctx := context.Background()
	for name, tc := range map[string]struct {
		filter   models.SoundFilter
		external []string
	}{
		"source": {
			models.SoundFilter{SourceID: "notateslaapp"},
			[]string{"nta-jarvis-defense", "nta-lightsaber", "nta-delorean", "nta-mario-coin"},
		},
		"tags": {
			models.SoundFilter{Tags: []string{"retro"}},
			[]string{"nta-mario-coin"},
		},
	} {
		t.Run(name, func(t *testing.T) {
			got := v.List(ctx, tc.filter)
			require.Len(t, got, 10+len(tc.external))
			for i := range 10 {
				assert.Equal(t, models.KindBundled, got[i].Kind)
			}
			assert.Equal(t, tc.external, soundIDs(got[10:]))
		})
	}

	t.Run("featured", func(t *testing.T) {
		got := v.List(ctx, models.SoundFilter{FeaturedOnly: true})
		require.Greater(t, len(got), 10)
		for i, s := range got {
			if i < 10 {
				assert.Equal(t, models.KindBundled, s.Kind)
			} else {
				assert.Equal(t, models.KindExternal, s.Kind)
			}
		}
	})

	t.Run("category with source", func(t *testing.T) {
		got := v.List(ctx, models.SoundFilter{Category: "sci-fi", SourceID: "notateslaapp"})
		assert.Equal(t, []string{"2", "4", "9", "nta-lightsaber"}, soundIDs(got))
	})
}

func TestGet(t *testing.T) {
	v, _ := newView(t)
	ctx := context.Background()

	s, err := v.Get(ctx, "7")
	require.NoError(t, err)
	assert.Equal(t, models.KindBundled, s.Kind)
	assert.Equal(t, "Retro Game", s.Name())

	s, err = v.Get(ctx, "nta-lightsaber")
	require.NoError(t, err)
	assert.Equal(t, models.KindExternal, s.Kind)
	assert.Equal(t, "0:02", s.Duration())

	_, err = v.Get(ctx, "missing")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestResolvePlaybackSource(t *testing.T) {
	v, dl := newView(t)
	ctx := context.Background()

	t.Run("bundled returns asset without download", func(t *testing.T) {
		src, err := v.ResolvePlaybackSource(ctx, "1")
		require.NoError(t, err)
		assert.Equal(t, PlaybackSource{Kind: PlaybackAsset, URI: "assets/sounds/digital-chime.wav"}, src)
		assert.Empty(t, dl.downloads)
	})

	t.Run("external downloads once then hits cache", func(t *testing.T) {
		src, err := v.ResolvePlaybackSource(ctx, "nta-delorean")
		require.NoError(t, err)
		assert.Equal(t, PlaybackSource{Kind: PlaybackFile, URI: "file:///cache/nta-delorean.mp3"}, src)

		_, err = v.ResolvePlaybackSource(ctx, "nta-delorean")
		require.NoError(t, err)
		assert.Equal(t, []string{"nta-delorean"}, dl.downloads)
	})

	t.Run("download error surfaces", func(t *testing.T) {
		dl.err = &apperr.DownloadError{SoundID: "nta-lightsaber", Err: errors.New("offline")}
		_, err := v.ResolvePlaybackSource(ctx, "nta-lightsaber")
		var dlErr *apperr.DownloadError
		assert.True(t, errors.As(err, &dlErr))
		dl.err = nil
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := v.ResolvePlaybackSource(ctx, "nope")
		assert.True(t, errors.Is(err, apperr.ErrNotFound))
	})
}

func TestStatus(t *testing.T) {
	v, dl := newView(t)
	ctx := context.Background()

	dl.cached["nta-jarvis-defense"] = "/cache/nta-jarvis-defense.wav"
	dl.active["nta-lightsaber"] = models.DownloadProgress{SoundID: "nta-lightsaber", Progress: 0.5}
	dl.failed["nta-delorean"] = "download nta-delorean: unexpected status: 404"

	cases := map[string]SoundStatus{
		"1":                  StatusReady,
		"nta-jarvis-defense": StatusReady,
		"nta-lightsaber":     StatusDownloading,
		"nta-delorean":       StatusFailed,
		"nta-mario-coin":     StatusNotCached,
	}
	for id, want := range cases {
		got, err := v.Status(ctx, id)
		require.NoError(t, err, id)
		assert.Equal(t, want, got, id)
	}

	_, err := v.Status(ctx, "nope")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestListWithStatus(t *testing.T) {
	v, dl := newView(t)
	ctx := context.Background()
	dl.cached["nta-lightsaber"] = "/cache/nta-lightsaber.wav"

	items := v.ListWithStatus(ctx, models.SoundFilter{Category: "sci-fi"})
	require.Len(t, items, 5)

	byID := map[string]Item{}
	for _, it := range items {
		byID[it.ID()] = it
	}
	assert.Equal(t, StatusReady, byID["2"].Status)
	assert.Equal(t, StatusReady, byID["nta-lightsaber"].Status)
	assert.Equal(t, "/cache/nta-lightsaber.wav", byID["nta-lightsaber"].LocalPath)
	assert.Equal(t, StatusNotCached, byID["td-warp-drive"].Status)
}

func TestListDegradesWhenCatalogUnavailable(t *testing.T) {
	store := catalog.NewStore(catalog.BytesSource("bad.json", []byte("{")), slog.New(slog.NewTextHandler(io.Discard, nil)))
	v := NewView(store, newFakeDownloads(), Bundled())

	got := v.List(context.Background(), models.SoundFilter{})
	assert.Len(t, got, 10, "bundled sounds survive a broken catalog")

	src, err := v.ResolvePlaybackSource(context.Background(), "5")
	require.NoError(t, err)
	assert.Equal(t, PlaybackAsset, src.Kind)
}
