package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/lockchime/internal/apperr"
	"github.com/starford/lockchime/internal/models"
	"github.com/starford/lockchime/internal/soundservice"
)

// Handler holds API route handlers.
type Handler struct {
	svc *soundservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *soundservice.Service) *Handler {
	return &Handler{svc: svc}
}

// soundFilter reads filter criteria from the query string. Tags may be
// repeated or comma-separated.
func soundFilter(r *http.Request) models.SoundFilter {
	q := r.URL.Query()
	f := models.SoundFilter{
		Query:    strings.TrimSpace(q.Get("q")),
		SourceID: q.Get("source"),
		Category: q.Get("category"),
	}
	for _, raw := range q["tag"] {
		for _, tag := range strings.Split(raw, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				f.Tags = append(f.Tags, tag)
			}
		}
	}
	f.TeslaCompatibleOnly, _ = strconv.ParseBool(q.Get("tesla"))
	f.FeaturedOnly, _ = strconv.ParseBool(q.Get("featured"))
	return f
}

// catalogReady writes 503 and returns false when the catalog failed to load.
func (h *Handler) catalogReady(w http.ResponseWriter) bool {
	if err := h.svc.Catalog().Err(); err != nil {
		writeError(w, "catalog", err)
		return false
	}
	return true
}

// ListSounds handles GET /api/sounds.
//
//	@Summary		List bundled and external sounds with cache status
//	@Tags			sounds
//	@Produce		json
//	@Param			q			query		string	false	"Text search"
//	@Param			source		query		string	false	"Source id"
//	@Param			category	query		string	false	"Category"
//	@Param			tag			query		string	false	"Tag (any of, repeatable)"
//	@Param			tesla		query		bool	false	"Only sounds playable without conversion"
//	@Param			featured	query		bool	false	"Only featured sounds"
//	@Success		200			{object}	SoundListResponse
//	@Security		BearerAuth
//	@Router			/sounds [get]
func (h *Handler) ListSounds(w http.ResponseWriter, r *http.Request) {
	items := h.svc.ListSounds(r.Context(), soundFilter(r))
	if items == nil {
		items = []SoundItem{}
	}
	writeJSON(w, http.StatusOK, SoundListResponse{Sounds: items, Total: len(items)})
}

// GetSound handles GET /api/sounds/{id}.
//
//	@Summary		Get a single sound with cache status
//	@Tags			sounds
//	@Produce		json
//	@Param			id	path		string	true	"Sound id"
//	@Success		200	{object}	SoundItem
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sounds/{id} [get]
func (h *Handler) GetSound(w http.ResponseWriter, r *http.Request) {
	item, err := h.svc.GetSound(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get sound", err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// Playback handles GET /api/sounds/{id}/playback.
//
//	@Summary		Resolve a playable URI, downloading the sound if needed
//	@Tags			sounds
//	@Produce		json
//	@Param			id	path		string	true	"Sound id"
//	@Success		200	{object}	PlaybackSource
//	@Failure		404	{object}	errResponse
//	@Failure		502	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sounds/{id}/playback [get]
func (h *Handler) Playback(w http.ResponseWriter, r *http.Request) {
	src, err := h.svc.Playback(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "playback", err)
		return
	}
	writeJSON(w, http.StatusOK, src)
}

// Thumbnail handles GET /api/sounds/{id}/thumbnail.
//
//	@Summary		Serve a sound's artwork
//	@Tags			sounds
//	@Produce		image/jpeg
//	@Param			id	path	string	true	"Sound id"
//	@Success		200
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sounds/{id}/thumbnail [get]
func (h *Handler) Thumbnail(w http.ResponseWriter, r *http.Request) {
	path, err := h.svc.Thumbnail(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "thumbnail", err)
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=86400")
	http.ServeFile(w, r, path)
}

// StartDownload handles POST /api/sounds/{id}/download.
//
//	@Summary		Download a sound into the cache and wait for it
//	@Tags			downloads
//	@Produce		json
//	@Param			id	path		string	true	"Sound id"
//	@Success		200	{object}	SoundItem
//	@Failure		404	{object}	errResponse
//	@Failure		409	{object}	errResponse
//	@Failure		502	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sounds/{id}/download [post]
func (h *Handler) StartDownload(w http.ResponseWriter, r *http.Request) {
	item, err := h.svc.Download(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "download", err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// CancelDownload handles DELETE /api/sounds/{id}/download.
//
//	@Summary		Cancel an in-flight download
//	@Tags			downloads
//	@Param			id	path	string	true	"Sound id"
//	@Success		204
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sounds/{id}/download [delete]
func (h *Handler) CancelDownload(w http.ResponseWriter, r *http.Request) {
	if !h.svc.CancelDownload(chi.URLParam(r, "id")) {
		writeJSON(w, http.StatusNotFound, errorBody("no active download"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ActiveDownloads handles GET /api/downloads.
//
//	@Summary		List in-flight downloads with progress
//	@Tags			downloads
//	@Produce		json
//	@Success		200	{object}	DownloadsResponse
//	@Security		BearerAuth
//	@Router			/downloads [get]
func (h *Handler) ActiveDownloads(w http.ResponseWriter, r *http.Request) {
	active := h.svc.ActiveDownloads()
	if active == nil {
		active = []models.DownloadProgress{}
	}
	writeJSON(w, http.StatusOK, DownloadsResponse{Downloads: active})
}

// Categories handles GET /api/catalog/categories.
//
//	@Summary		Distinct catalog categories
//	@Tags			catalog
//	@Produce		json
//	@Success		200	{object}	CategoriesResponse
//	@Failure		503	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/catalog/categories [get]
func (h *Handler) Categories(w http.ResponseWriter, r *http.Request) {
	if !h.catalogReady(w) {
		return
	}
	writeJSON(w, http.StatusOK, CategoriesResponse{Categories: h.svc.Catalog().Categories()})
}

// Tags handles GET /api/catalog/tags.
//
//	@Summary		Distinct catalog tags
//	@Tags			catalog
//	@Produce		json
//	@Success		200	{object}	TagsResponse
//	@Failure		503	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/catalog/tags [get]
func (h *Handler) Tags(w http.ResponseWriter, r *http.Request) {
	if !h.catalogReady(w) {
		return
	}
	writeJSON(w, http.StatusOK, TagsResponse{Tags: h.svc.Catalog().AllTags()})
}

// Featured handles GET /api/catalog/featured.
//
//	@Summary		Featured sounds by descending popularity
//	@Tags			catalog
//	@Produce		json
//	@Success		200	{object}	ExternalSoundsResponse
//	@Failure		503	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/catalog/featured [get]
func (h *Handler) Featured(w http.ResponseWriter, r *http.Request) {
	if !h.catalogReady(w) {
		return
	}
	writeJSON(w, http.StatusOK, ExternalSoundsResponse{Sounds: h.svc.Catalog().FeaturedSounds()})
}

// Sources handles GET /api/catalog/sources.
//
//	@Summary		Catalog sources
//	@Tags			catalog
//	@Produce		json
//	@Param			all	query		bool	false	"Include disabled sources"
//	@Success		200	{object}	SourcesResponse
//	@Failure		503	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/catalog/sources [get]
func (h *Handler) Sources(w http.ResponseWriter, r *http.Request) {
	if !h.catalogReady(w) {
		return
	}
	sources := h.svc.Catalog().Sources()
	if all, _ := strconv.ParseBool(r.URL.Query().Get("all")); all {
		sources = h.svc.Catalog().AllSources()
	}
	writeJSON(w, http.StatusOK, SourcesResponse{Sources: sources})
}

// Stats handles GET /api/catalog/stats.
//
//	@Summary		Catalog statistics
//	@Tags			catalog
//	@Produce		json
//	@Success		200	{object}	StatsResponse
//	@Failure		503	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/catalog/stats [get]
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.Catalog().Load(r.Context())
	if err != nil {
		writeError(w, "catalog stats", err)
		return
	}
	writeJSON(w, http.StatusOK, StatsResponse{
		Version:     c.Version,
		LastUpdated: c.LastUpdated,
		Statistics:  h.svc.Catalog().Statistics(),
	})
}

// Validation handles GET /api/catalog/validation.
//
//	@Summary		Validate the catalog document
//	@Tags			catalog
//	@Produce		json
//	@Success		200	{object}	ValidationResponse
//	@Security		BearerAuth
//	@Router			/catalog/validation [get]
func (h *Handler) Validation(w http.ResponseWriter, r *http.Request) {
	issues := h.svc.Catalog().Validate(r.Context())
	if issues == nil {
		issues = []apperr.ValidationIssue{}
	}
	writeJSON(w, http.StatusOK, ValidationResponse{Valid: len(issues) == 0, Issues: issues})
}

// CacheStatus handles GET /api/cache.
//
//	@Summary		List cached sounds and total size
//	@Tags			cache
//	@Produce		json
//	@Success		200	{object}	CacheSummary
//	@Security		BearerAuth
//	@Router			/cache [get]
func (h *Handler) CacheStatus(w http.ResponseWriter, r *http.Request) {
	sum, err := h.svc.CacheStatus(r.Context())
	if err != nil {
		writeError(w, "cache status", err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// ClearCache handles DELETE /api/cache.
//
//	@Summary		Cancel all downloads and empty the cache
//	@Tags			cache
//	@Success		204
//	@Security		BearerAuth
//	@Router			/cache [delete]
func (h *Handler) ClearCache(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.ClearCache(r.Context()); err != nil {
		writeError(w, "clear cache", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemoveCached handles DELETE /api/cache/{id}.
//
//	@Summary		Remove one cached sound
//	@Tags			cache
//	@Param			id	path	string	true	"Sound id"
//	@Success		204
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/cache/{id} [delete]
func (h *Handler) RemoveCached(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.RemoveCached(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, "remove cached", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
