// Package catalog loads the external sound catalog document and answers
// read-only queries over it.
//
// Raw read paths (AllSounds, FeaturedSounds, Filter, Search) are
// source-agnostic: sounds attributed to a disabled source are included.
// Only Sources lists enabled sources exclusively.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/starford/lockchime/internal/apperr"
	"github.com/starford/lockchime/internal/models"
)

// Store holds one catalog for the lifetime of the process.
type Store struct {
	src    Source
	logger *slog.Logger

	once    sync.Once
	catalog *models.Catalog
	err     error
	byID    map[string]int
	sources map[string]models.SoundSource
}

// NewStore creates a store reading from src. Nothing is read until the first
// Load or query.
func NewStore(src Source, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{src: src, logger: logger}
}

// document mirrors Catalog with pointers so that missing top-level fields can
// be told apart from empty ones.
type document struct {
	Version     *string                 `json:"version" yaml:"version"`
	LastUpdated string                  `json:"lastUpdated" yaml:"lastUpdated"`
	Sources     *[]models.SoundSource   `json:"sources" yaml:"sources"`
	Sounds      *[]models.ExternalSound `json:"sounds" yaml:"sounds"`
}

// Load parses the document on the first call and returns the cached result
// afterwards. A failed load is also remembered: every query then behaves as an
// empty catalog.
func (s *Store) Load(ctx context.Context) (*models.Catalog, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.ensure()
}

func (s *Store) ensure() (*models.Catalog, error) {
	s.once.Do(func() {
		s.catalog, s.err = s.load()
		if s.err != nil {
			s.logger.Error("catalog: load failed",
				slog.String("source", s.src.Name()),
				slog.String("error", s.err.Error()))
			return
		}
		s.logger.Info("catalog: loaded",
			slog.String("source", s.src.Name()),
			slog.String("version", s.catalog.Version),
			slog.Int("sources", len(s.catalog.Sources)),
			slog.Int("sounds", len(s.catalog.Sounds)))
	})
	return s.catalog, s.err
}

// Err returns the load error, if any.
func (s *Store) Err() error {
	_, err := s.ensure()
	return err
}

func (s *Store) load() (*models.Catalog, error) {
	data, err := s.src.Read()
	if err != nil {
		return nil, &apperr.CatalogLoadError{Reason: "read document", Err: err}
	}
	doc, err := decode(s.src.Name(), data)
	if err != nil {
		return nil, &apperr.CatalogLoadError{Reason: "decode document", Err: err}
	}
	switch {
	case doc.Version == nil || *doc.Version == "":
		return nil, &apperr.CatalogLoadError{Reason: "missing version"}
	case doc.Sources == nil:
		return nil, &apperr.CatalogLoadError{Reason: "sources must be an array"}
	case doc.Sounds == nil:
		return nil, &apperr.CatalogLoadError{Reason: "sounds must be an array"}
	}

	c := &models.Catalog{
		Version:     *doc.Version,
		LastUpdated: doc.LastUpdated,
		Sources:     *doc.Sources,
		Sounds:      *doc.Sounds,
	}

	s.sources = make(map[string]models.SoundSource, len(c.Sources))
	for _, src := range c.Sources {
		if _, dup := s.sources[src.ID]; !dup {
			s.sources[src.ID] = src
		}
	}
	s.byID = make(map[string]int, len(c.Sounds))
	for i := range c.Sounds {
		snd := &c.Sounds[i]
		if snd.SourceName == "" {
			snd.SourceName = s.sources[snd.SourceID].Name
		}
		// First occurrence wins; duplicates are reported by Validate.
		if _, dup := s.byID[snd.ID]; !dup {
			s.byID[snd.ID] = i
		}
	}
	return c, nil
}

func decode(name string, data []byte) (*document, error) {
	var doc document
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		if err := dec.Decode(&doc); err != nil {
			return nil, err
		}
	}
	return &doc, nil
}

// sounds returns the loaded sounds, or nil when the catalog is unavailable.
func (s *Store) sounds() []models.ExternalSound {
	c, err := s.ensure()
	if err != nil {
		return nil
	}
	return c.Sounds
}

// AllSounds returns every sound in catalog order.
func (s *Store) AllSounds() []models.ExternalSound {
	return slices.Clone(s.sounds())
}

// Sound returns one sound by id.
func (s *Store) Sound(id string) (models.ExternalSound, bool) {
	snds := s.sounds()
	i, ok := s.byID[id]
	if snds == nil || !ok {
		return models.ExternalSound{}, false
	}
	return snds[i], true
}

// Sources returns the enabled sources in catalog order.
func (s *Store) Sources() []models.SoundSource {
	c, err := s.ensure()
	if err != nil {
		return nil
	}
	out := make([]models.SoundSource, 0, len(c.Sources))
	for _, src := range c.Sources {
		if src.Enabled {
			out = append(out, src)
		}
	}
	return out
}

// AllSources returns every source, enabled or not.
func (s *Store) AllSources() []models.SoundSource {
	c, err := s.ensure()
	if err != nil {
		return nil
	}
	return slices.Clone(c.Sources)
}

// Source returns one source by id regardless of its enabled flag.
func (s *Store) Source(id string) (models.SoundSource, bool) {
	if _, err := s.ensure(); err != nil {
		return models.SoundSource{}, false
	}
	src, ok := s.sources[id]
	return src, ok
}

// SoundsBySource returns the sounds attributed to sourceID.
func (s *Store) SoundsBySource(sourceID string) []models.ExternalSound {
	return s.Filter(models.SoundFilter{SourceID: sourceID})
}

// SoundsByCategory returns the sounds whose category equals category.
func (s *Store) SoundsByCategory(category string) []models.ExternalSound {
	return s.Filter(models.SoundFilter{Category: category})
}

// FeaturedSounds returns featured sounds by descending popularity; ties keep
// catalog order.
func (s *Store) FeaturedSounds() []models.ExternalSound {
	out := s.Filter(models.SoundFilter{FeaturedOnly: true})
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Popularity > out[j].Popularity
	})
	return out
}

// Categories returns the distinct categories, sorted.
func (s *Store) Categories() []string {
	seen := make(map[string]struct{})
	for _, snd := range s.sounds() {
		if snd.Category != "" {
			seen[snd.Category] = struct{}{}
		}
	}
	return sortedKeys(seen)
}

// AllTags returns the distinct tags, sorted.
func (s *Store) AllTags() []string {
	seen := make(map[string]struct{})
	for _, snd := range s.sounds() {
		for _, tag := range snd.Tags {
			seen[tag] = struct{}{}
		}
	}
	return sortedKeys(seen)
}

// Search matches query case-insensitively against name, description, tags
// and original-source attribution.
func (s *Store) Search(query string) []models.ExternalSound {
	return s.Filter(models.SoundFilter{Query: query})
}

// Filter applies every set criterion of f (logical AND) and keeps catalog order.
func (s *Store) Filter(f models.SoundFilter) []models.ExternalSound {
	snds := s.sounds()
	out := make([]models.ExternalSound, 0, len(snds))
	for _, snd := range snds {
		if Matches(&snd, f) {
			out = append(out, snd)
		}
	}
	return out
}

// Statistics aggregates counts over the catalog.
func (s *Store) Statistics() models.Statistics {
	st := models.Statistics{
		SoundsByCategory: make(map[string]int),
		SoundsBySource:   make(map[string]int),
	}
	c, err := s.ensure()
	if err != nil {
		return st
	}
	st.TotalSounds = len(c.Sounds)
	st.TotalSources = len(c.Sources)
	for _, src := range c.Sources {
		if src.Enabled {
			st.EnabledSources++
		}
	}
	for _, snd := range c.Sounds {
		st.SoundsByCategory[snd.Category]++
		st.SoundsBySource[snd.SourceID]++
	}
	return st
}

// Matches reports whether snd satisfies every set criterion of f.
func Matches(snd *models.ExternalSound, f models.SoundFilter) bool {
	if f.SourceID != "" && snd.SourceID != f.SourceID {
		return false
	}
	if f.Category != "" && snd.Category != f.Category {
		return false
	}
	if f.TeslaCompatibleOnly && !snd.PlayableInCar() {
		return false
	}
	if f.FeaturedOnly && !snd.Featured {
		return false
	}
	if len(f.Tags) > 0 && !hasAnyTag(snd.Tags, f.Tags) {
		return false
	}
	if f.Query != "" && !MatchesQuery(snd, f.Query) {
		return false
	}
	return true
}

// MatchesQuery is the free-text predicate used by Search.
func MatchesQuery(snd *models.ExternalSound, query string) bool {
	q := strings.ToLower(query)
	if contains(snd.Name, q) || contains(snd.Description, q) || contains(snd.OriginalSource, q) {
		return true
	}
	for _, tag := range snd.Tags {
		if contains(tag, q) {
			return true
		}
	}
	return false
}

func contains(field, lowerQuery string) bool {
	return strings.Contains(strings.ToLower(field), lowerQuery)
}

func hasAnyTag(have, want []string) bool {
	for _, w := range want {
		for _, h := range have {
			if h == w {
				return true
			}
		}
	}
	return false
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// IsUnavailable reports whether err means the catalog could not be loaded.
func IsUnavailable(err error) bool {
	return errors.Is(err, apperr.ErrCatalogUnavailable)
}
