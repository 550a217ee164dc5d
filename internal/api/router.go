package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"

	"github.com/starford/kiln/internal/noteservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
// queryLimiter, if non-nil, throttles POST /query.
func NewRouter(svc *noteservice.Service, authEnabled bool, token string, sseHandler http.Handler, queryLimiter *rate.Limiter) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Notes CRUD.
	r.Get("/notes", h.ListNotes)
	r.Post("/notes", h.CreateNote)
	r.Get("/notes/*", h.GetNote)
	r.Put("/notes/*", h.UpdateNote)
	r.Delete("/notes/*", h.DeleteNote)

	r.Get("/blocks/*", h.Blocks)
	r.Get("/outlinks/*", h.Outlinks)
	r.Get("/backlinks/*", h.Backlinks)
	r.Get("/tags", h.Tags)

	r.With(RateLimit(queryLimiter)).Post("/query", h.Query)

	r.Get("/search", h.Search)
	r.Get("/graph", h.Graph)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
