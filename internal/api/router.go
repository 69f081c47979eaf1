package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Cartooli/math-boredgames-sub001/internal/problemservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *problemservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))
	r.Use(ProfileMiddleware)

	// Catalogue and rotation.
	r.Get("/problems", h.ListProblems)
	r.Get("/problems/today", h.Today)
	r.Get("/problems/{id}", h.GetProblem)
	r.Get("/problems/{id}/image", h.Image)

	// Annotations.
	r.Get("/problems/{id}/annotations", h.GetAnnotations)
	r.Post("/problems/{id}/ratings", h.Rate)
	r.Put("/problems/{id}/note", h.SaveNote)
	r.Post("/problems/{id}/vote", h.Vote)
	r.Post("/problems/{id}/verification", h.Verify)
	r.Get("/votes", h.ListVotes)
	r.Get("/verified", h.ListVerified)

	// Streak and profiles.
	r.Get("/streak", h.Streak)
	r.Post("/streak/views", h.RecordView)
	r.Post("/profiles", h.CreateProfile)

	r.Post("/catalogue/refresh", h.RefreshCatalogue)
	r.Delete("/catalogue", h.InvalidateCatalogue)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
