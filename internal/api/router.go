package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/folio/internal/noteservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *noteservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Notes (read-only).
	r.Get("/notes", h.ListNotes)
	r.Get("/notes/*", h.GetNote)
	r.Get("/search", h.Search)

	// Raw vault files, PDFs included.
	r.Get("/files/*", h.ServeFile)

	// Render sessions.
	r.Route("/render", func(r chi.Router) {
		r.Get("/notes/*", h.RenderNote)
		r.Route("/sessions/{session}", func(r chi.Router) {
			r.Delete("/", h.CloseSession)
			r.Post("/resize", h.Resize)
			r.Get("/thumbnails/{element}", h.Thumbnail)
		})
	})

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
