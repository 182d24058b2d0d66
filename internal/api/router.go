package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/ansuz/internal/sse"
	"github.com/starford/ansuz/internal/zettel"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// broker, if non-nil, is mounted at GET /events inside the auth group
// and receives note lifecycle events from the mutating handlers.
func NewRouter(svc *zettel.Service, authEnabled bool, token string, broker *sse.Broker, def Defaults) chi.Router {
	h := NewHandler(svc, broker, def)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Notes CRUD.
	r.Get("/notes", h.ListNotes)
	r.Post("/notes", h.CreateNote)
	r.Get("/notes/{id}", h.GetNote)
	r.Put("/notes/{id}", h.UpdateNote)
	r.Delete("/notes/{id}", h.DeleteNote)
	r.Post("/notes/{id}/tags", h.AddTags)
	r.Get("/notes/{id}/links", h.LinkedNotes)
	r.Get("/notes/{id}/similar", h.Similar)
	r.Get("/recent", h.Recent)

	// Links.
	r.Post("/links", h.CreateLink)
	r.Delete("/links", h.RemoveLink)

	// Search and tags.
	r.Get("/search", h.Search)
	r.Get("/tags", h.Tags)

	// Graph and analytics.
	r.Get("/graph", h.Graph)
	r.Get("/analytics/central", h.Central)
	r.Get("/analytics/orphans", h.Orphans)

	// Index maintenance.
	r.Post("/index/rebuild", h.RebuildIndex)
	r.Get("/index/health", h.IndexHealth)

	// Export.
	r.Post("/export", h.Export)

	// SSE endpoint (protected by same auth middleware).
	if broker != nil {
		r.Method(http.MethodGet, "/events", broker)
	}

	return r
}
