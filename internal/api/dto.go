package api

import (
	"github.com/starford/lockchime/internal/apperr"
	"github.com/starford/lockchime/internal/library"
	"github.com/starford/lockchime/internal/models"
	"github.com/starford/lockchime/internal/soundservice"
)

// SoundItem is a sound with its cache state (aliased from the domain layer).
type SoundItem = library.Item

// PlaybackSource tells a player how to open a sound (aliased from the domain layer).
type PlaybackSource = library.PlaybackSource

// CacheSummary describes the download cache (aliased from the domain layer).
type CacheSummary = soundservice.CacheSummary

// SoundListResponse wraps sound listings.
type SoundListResponse struct {
	Sounds []SoundItem `json:"sounds" validate:"required"`
	Total  int         `json:"total" example:"15" validate:"required"`
}

// ExternalSoundsResponse wraps raw catalog entries.
type ExternalSoundsResponse struct {
	Sounds []models.ExternalSound `json:"sounds" validate:"required"`
}

// CategoriesResponse lists distinct catalog categories.
type CategoriesResponse struct {
	Categories []string `json:"categories" validate:"required"`
}

// TagsResponse lists distinct catalog tags.
type TagsResponse struct {
	Tags []string `json:"tags" validate:"required"`
}

// SourcesResponse lists catalog sources.
type SourcesResponse struct {
	Sources []models.SoundSource `json:"sources" validate:"required"`
}

// StatsResponse aggregates the catalog.
type StatsResponse struct {
	Version     string `json:"version" example:"1.0.0"`
	LastUpdated string `json:"lastUpdated" example:"2026-01-01"`
	models.Statistics
}

// ValidationResponse reports catalog schema issues.
type ValidationResponse struct {
	Valid  bool                     `json:"valid"`
	Issues []apperr.ValidationIssue `json:"issues" validate:"required"`
}

// DownloadsResponse lists in-flight transfers.
type DownloadsResponse struct {
	Downloads []models.DownloadProgress `json:"downloads" validate:"required"`
}
