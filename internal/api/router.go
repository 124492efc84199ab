package api

import (
	"github.com/go-chi/chi/v5"

	"github.com/starford/kbsync/internal/kbservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
func NewRouter(svc *kbservice.Service, authEnabled bool, token string) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Post("/documents", h.UploadDocument)
	r.Post("/notes", h.SaveNote)

	r.Get("/catalog", h.Catalog)
	r.Delete("/artifacts/{bucket}/{folder}/{name}", h.DeleteArtifact)

	r.Get("/jobs", h.ListJobs)
	r.Post("/jobs", h.StartJob)
	r.Get("/jobs/{id}", h.GetJob)
	r.Delete("/jobs/{id}", h.CancelJob)

	r.Get("/search", h.Search)

	r.Post("/index/reset", h.ResetIndex)
	r.Post("/index/rebuild", h.RebuildIndex)

	return r
}
