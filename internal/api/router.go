package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/lectio/lectio-api/internal/api/middleware"
)

// NewRouter assembles the HTTP API: public auth routes plus the
// token-protected job, transcript, and note routes.
func NewRouter(authHandler *AuthHandler, jobHandler *JobHandler, authMW *middleware.AuthMiddleware) chi.Router {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		RespondWithJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		// Auth endpoints (public)
		r.Post("/auth/token", authHandler.Token)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(authMW.Authenticate)

			r.Post("/jobs", jobHandler.CreateJob)
			r.Get("/jobs", jobHandler.ListJobs)
			r.Get("/jobs/{id}", jobHandler.GetJob)
			r.Post("/jobs/{id}/note", jobHandler.RegenerateNote)

			r.Get("/transcripts/{id}", jobHandler.GetTranscript)
			r.Get("/notes/{id}", jobHandler.GetNote)
		})
	})

	return r
}
