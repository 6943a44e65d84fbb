package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// sseHandler, if non-nil, is mounted at GET /events inside the auth
// group.
func NewRouter(h *Handler, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Entities.
	r.Post("/entities", h.Upsert)
	r.Post("/entities/batch", h.BatchUpsert)
	r.Get("/entities", h.Query)
	r.Get("/entities/{id}", h.GetEntity)
	r.Delete("/entities/{id}", h.DeleteEntity)
	r.Get("/entities/{id}/at", h.GetAtTime)
	r.Get("/entities/{id}/history", h.History)
	r.Get("/entities/{id}/changelog", h.Changelog)
	r.Get("/entities/{id}/diff", h.Diff)
	r.Get("/entities/{id}/audit", h.Audit)
	r.Get("/entities/{id}/relationships", h.Relationships)

	// Relationships.
	r.Post("/relationships", h.Relate)
	r.Delete("/relationships", h.Unrelate)

	// Temporal queries.
	r.Post("/search", h.Search)
	r.Get("/snapshot", h.Snapshot)
	r.Get("/changes", h.ChangesSince)

	// Reconciliation and scanning.
	r.Post("/sync", h.Sync)
	r.Post("/scan", h.Scan)

	// Schema.
	r.Post("/validate", h.Validate)
	r.Get("/schema", h.Schema)

	// SSE endpoint (protected by the same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
