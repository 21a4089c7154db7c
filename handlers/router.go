// handlers/router.go
package handlers

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter wires the admin endpoints. There are no package listing routes;
// the public API lives elsewhere.
func NewRouter(h *AdminHandler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)

		r.Route("/admin", func(r chi.Router) {
			r.Get("/incomplete-months", h.IncompleteMonths)
			r.Get("/import-runs", h.ImportRuns)
			r.Post("/import-downloads/{month}", h.ImportMonth)
		})
	})

	return r
}
