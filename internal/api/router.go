package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/lockchime/internal/soundservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *soundservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Unified sound collection.
	r.Get("/sounds", h.ListSounds)
	r.Get("/sounds/{id}", h.GetSound)
	r.Get("/sounds/{id}/playback", h.Playback)
	r.Get("/sounds/{id}/thumbnail", h.Thumbnail)
	r.Post("/sounds/{id}/download", h.StartDownload)
	r.Delete("/sounds/{id}/download", h.CancelDownload)

	// Catalog queries.
	r.Route("/catalog", func(r chi.Router) {
		r.Get("/categories", h.Categories)
		r.Get("/tags", h.Tags)
		r.Get("/featured", h.Featured)
		r.Get("/sources", h.Sources)
		r.Get("/stats", h.Stats)
		r.Get("/validation", h.Validation)
	})

	// Download cache.
	r.Get("/downloads", h.ActiveDownloads)
	r.Get("/cache", h.CacheStatus)
	r.Delete("/cache", h.ClearCache)
	r.Delete("/cache/{id}", h.RemoveCached)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
