package library

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/starford/lockchime/internal/apperr"
	"github.com/starford/lockchime/internal/models"
)

// Catalog is the read side of the external catalog used by the view.
type Catalog interface {
	Sound(id string) (models.ExternalSound, bool)
	Filter(f models.SoundFilter) []models.ExternalSound
}

// Downloads is the part of the download manager the view depends on.
type Downloads interface {
	CachedPath(ctx context.Context, id string) (string, bool)
	Download(ctx context.Context, snd models.ExternalSound) (string, error)
	Progress(id string) (models.DownloadProgress, bool)
	LastError(id string) (string, bool)
}

// PlaybackKind tells the playback collaborator how to open a URI.
type PlaybackKind string

const (
	PlaybackAsset PlaybackKind = "asset"
	PlaybackFile  PlaybackKind = "file"
)

// PlaybackSource is what a player needs to start a sound.
type PlaybackSource struct {
	Kind PlaybackKind `json:"kind"`
	URI  string       `json:"uri"`
}

// SoundStatus is the presentation state of a sound.
type SoundStatus string

const (
	StatusReady       SoundStatus = "ready"
	StatusDownloading SoundStatus = "downloading"
	StatusNotCached   SoundStatus = "not_cached"
	StatusFailed      SoundStatus = "failed"
)

// Item is a sound together with its cache state.
type Item struct {
	models.Sound
	Status    SoundStatus              `json:"status"`
	LocalPath string                   `json:"localPath,omitempty"`
	Progress  *models.DownloadProgress `json:"progress,omitempty"`
	Error     string                   `json:"error,omitempty"`
}

// View is the unified sound collection. It reads the cache but never
// mutates it except by requesting downloads.
type View struct {
	catalog   Catalog
	downloads Downloads
	bundled   []models.BundledSound
	byID      map[string]int
}

// NewView composes bundled sounds with the external catalog.
func NewView(catalog Catalog, downloads Downloads, bundled []models.BundledSound) *View {
	v := &View{
		catalog:   catalog,
		downloads: downloads,
		bundled:   bundled,
		byID:      make(map[string]int, len(bundled)),
	}
	for i, b := range bundled {
		v.byID[b.ID] = i
	}
	return v
}

// List returns bundled matches first, then external matches, each in its own
// order. Bundled sounds are filtered by category and name search only; the
// remaining criteria apply to external sounds.
func (v *View) List(_ context.Context, f models.SoundFilter) []models.Sound {
	var out []models.Sound
	q := strings.ToLower(f.Query)
	for _, b := range v.bundled {
		if f.Category != "" && b.Category != f.Category {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(b.Name), q) {
			continue
		}
		out = append(out, models.FromBundled(b))
	}
	for _, e := range v.catalog.Filter(f) {
		out = append(out, models.FromExternal(e))
	}
	return out
}

// Get resolves id to a bundled or external sound.
func (v *View) Get(_ context.Context, id string) (models.Sound, error) {
	if i, ok := v.byID[id]; ok {
		return models.FromBundled(v.bundled[i]), nil
	}
	if e, ok := v.catalog.Sound(id); ok {
		return models.FromExternal(e), nil
	}
	return models.Sound{}, fmt.Errorf("sound %q: %w", id, apperr.ErrNotFound)
}

// ResolvePlaybackSource returns a playable source for id. External sounds
// that are not cached are downloaded first, so this may block on the network.
func (v *View) ResolvePlaybackSource(ctx context.Context, id string) (PlaybackSource, error) {
	snd, err := v.Get(ctx, id)
	if err != nil {
		return PlaybackSource{}, err
	}
	if snd.Kind == models.KindBundled {
		return PlaybackSource{Kind: PlaybackAsset, URI: snd.Bundled.AudioRef}, nil
	}

	path, ok := v.downloads.CachedPath(ctx, id)
	if !ok {
		path, err = v.downloads.Download(ctx, *snd.External)
		if err != nil {
			return PlaybackSource{}, err
		}
	}
	return PlaybackSource{Kind: PlaybackFile, URI: fileURI(path)}, nil
}

// Status reports the cache state of id.
func (v *View) Status(ctx context.Context, id string) (SoundStatus, error) {
	snd, err := v.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return v.item(ctx, snd).Status, nil
}

// ListWithStatus is List with each sound's cache state attached.
func (v *View) ListWithStatus(ctx context.Context, f models.SoundFilter) []Item {
	sounds := v.List(ctx, f)
	out := make([]Item, len(sounds))
	for i, snd := range sounds {
		out[i] = v.item(ctx, snd)
	}
	return out
}

// Item returns one sound with its cache state.
func (v *View) Item(ctx context.Context, id string) (Item, error) {
	snd, err := v.Get(ctx, id)
	if err != nil {
		return Item{}, err
	}
	return v.item(ctx, snd), nil
}

func (v *View) item(ctx context.Context, snd models.Sound) Item {
	it := Item{Sound: snd}
	if snd.Kind == models.KindBundled {
		it.Status = StatusReady
		return it
	}
	id := snd.ID()
	if p, ok := v.downloads.Progress(id); ok {
		it.Status = StatusDownloading
		it.Progress = &p
		return it
	}
	if path, ok := v.downloads.CachedPath(ctx, id); ok {
		it.Status = StatusReady
		it.LocalPath = path
		return it
	}
	if msg, ok := v.downloads.LastError(id); ok {
		it.Status = StatusFailed
		it.Error = msg
		return it
	}
	it.Status = StatusNotCached
	return it
}

func fileURI(path string) string {
	return (&url.URL{Scheme: "file", Path: path}).String()
}
