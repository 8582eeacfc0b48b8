package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/gitnotes/internal/noteservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *noteservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)
	rh := NewResourceHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Get("/notes", h.ListNotes)
	r.Post("/notes", h.CreateNote)
	r.Get("/notes/*", h.GetNote)
	r.Put("/notes/*", h.UpdateNote)
	r.Delete("/notes/*", h.DeleteNote)

	r.Post("/move", h.Move)
	r.Post("/undo", h.Undo)
	r.Post("/run/*", h.Run)

	r.Get("/tree", h.Tree)
	r.Get("/search", h.Search)
	r.Get("/log", h.Log)

	r.Get("/resources", rh.List)
	r.Post("/resources", rh.Upload)
	r.Get("/resources/*", rh.ServeFile)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
