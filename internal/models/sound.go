// Package models defines the domain types for lockchime.
package models

// AudioFormat is the container format of a remote sound file.
type AudioFormat string

const (
	FormatWAV AudioFormat = "wav"
	FormatMP3 AudioFormat = "mp3"
)

// Valid reports whether f is one of the accepted catalog formats.
func (f AudioFormat) Valid() bool {
	return f == FormatWAV || f == FormatMP3
}

// SoundSource is a community origin that external sounds are attributed to.
type SoundSource struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	ShortName   string `json:"shortName" yaml:"shortName"`
	Description string `json:"description" yaml:"description"`
	WebsiteURL  string `json:"websiteUrl" yaml:"websiteUrl"`
	IconURL     string `json:"iconUrl,omitempty" yaml:"iconUrl,omitempty"`
	LastUpdated string `json:"lastUpdated" yaml:"lastUpdated"`
	Enabled     bool   `json:"enabled" yaml:"enabled"`
}

// ExternalSound is a remotely hosted sound described by the catalog.
type ExternalSound struct {
	ID         string `json:"id" yaml:"id"`
	Name       string `json:"name" yaml:"name"`
	SourceID   string `json:"sourceId" yaml:"sourceId"`
	SourceName string `json:"sourceName,omitempty" yaml:"sourceName,omitempty"`

	Category    string   `json:"category" yaml:"category"`
	Subcategory string   `json:"subcategory,omitempty" yaml:"subcategory,omitempty"`
	Tags        []string `json:"tags,omitempty" yaml:"tags,omitempty"`

	AudioURL    string      `json:"audioUrl" yaml:"audioUrl"`
	AudioFormat AudioFormat `json:"audioFormat" yaml:"audioFormat"`
	Duration    string      `json:"duration" yaml:"duration"`
	DurationMs  *int64      `json:"durationMs,omitempty" yaml:"durationMs,omitempty"`
	FileSize    *int64      `json:"fileSize,omitempty" yaml:"fileSize,omitempty"`

	ThumbnailURL   string `json:"thumbnailUrl,omitempty" yaml:"thumbnailUrl,omitempty"`
	ThumbnailRatio string `json:"thumbnailRatio,omitempty" yaml:"thumbnailRatio,omitempty"`

	Description    string `json:"description,omitempty" yaml:"description,omitempty"`
	OriginalSource string `json:"originalSource,omitempty" yaml:"originalSource,omitempty"`
	License        string `json:"license,omitempty" yaml:"license,omitempty"`

	TeslaCompatible bool `json:"teslaCompatible" yaml:"teslaCompatible"`
	NeedsConversion bool `json:"needsConversion" yaml:"needsConversion"`
	Featured        bool `json:"featured,omitempty" yaml:"featured,omitempty"`
	Popularity      int  `json:"popularity,omitempty" yaml:"popularity,omitempty"`
}

// FileName returns the deterministic cache file name, {id}.{format}.
func (s *ExternalSound) FileName() string {
	format := s.AudioFormat
	if !format.Valid() {
		format = FormatWAV
	}
	return s.ID + "." + string(format)
}

// PlayableInCar reports whether the file can be copied to the USB drive as-is.
func (s *ExternalSound) PlayableInCar() bool {
	return s.TeslaCompatible && !s.NeedsConversion
}

// Catalog is the root of the external sound catalog document.
type Catalog struct {
	Version     string          `json:"version" yaml:"version"`
	LastUpdated string          `json:"lastUpdated" yaml:"lastUpdated"`
	Sources     []SoundSource   `json:"sources" yaml:"sources"`
	Sounds      []ExternalSound `json:"sounds" yaml:"sounds"`
}

// BundledSound is shipped inside the application and always locally resident.
type BundledSound struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Duration string `json:"duration"`
	Category string `json:"category"`
	AudioRef string `json:"audioRef"` // packaged asset handle
}

// IsBuiltIn is always true; bundled sounds never touch the cache.
func (b *BundledSound) IsBuiltIn() bool { return true }

// SoundKind discriminates the Sound variant.
type SoundKind string

const (
	KindBundled  SoundKind = "bundled"
	KindExternal SoundKind = "external"
)

// Sound is either a bundled or an external sound. Exactly one of Bundled and
// External is set, matching Kind.
type Sound struct {
	Kind     SoundKind      `json:"kind"`
	Bundled  *BundledSound  `json:"bundled,omitempty"`
	External *ExternalSound `json:"external,omitempty"`
}

// FromBundled wraps a bundled sound.
func FromBundled(b BundledSound) Sound {
	return Sound{Kind: KindBundled, Bundled: &b}
}

// FromExternal wraps an external sound.
func FromExternal(e ExternalSound) Sound {
	return Sound{Kind: KindExternal, External: &e}
}

func (s Sound) ID() string {
	if s.Kind == KindBundled {
		return s.Bundled.ID
	}
	return s.External.ID
}

func (s Sound) Name() string {
	if s.Kind == KindBundled {
		return s.Bundled.Name
	}
	return s.External.Name
}

func (s Sound) Category() string {
	if s.Kind == KindBundled {
		return s.Bundled.Category
	}
	return s.External.Category
}

func (s Sound) Duration() string {
	if s.Kind == KindBundled {
		return s.Bundled.Duration
	}
	return s.External.Duration
}

// SoundFilter combines optional criteria conjunctively. Zero values are ignored.
type SoundFilter struct {
	Query               string   `json:"query,omitempty"`
	SourceID            string   `json:"sourceId,omitempty"`
	Category            string   `json:"category,omitempty"`
	Tags                []string `json:"tags,omitempty"` // any of
	TeslaCompatibleOnly bool     `json:"teslaCompatibleOnly,omitempty"`
	FeaturedOnly        bool     `json:"featuredOnly,omitempty"`
}

// Statistics aggregates the catalog.
type Statistics struct {
	TotalSounds      int            `json:"totalSounds"`
	TotalSources     int            `json:"totalSources"`
	EnabledSources   int            `json:"enabledSources"`
	SoundsByCategory map[string]int `json:"soundsByCategory"`
	SoundsBySource   map[string]int `json:"soundsBySource"`
}
