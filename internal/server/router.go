package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// buildRouter constructs the chi mux with all routes wired.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	// Public.
	r.Get("/health", s.handleHealth())
	r.Handle("/metrics", promhttp.HandlerFor(s.config.Gatherer, promhttp.HandlerOpts{}))

	// Command API. Open when no bearer token is configured.
	r.Route("/v1", func(r chi.Router) {
		if s.config.BearerToken != "" {
			r.Use(authMiddleware(s.config.BearerToken, s.logger))
		}
		r.Post("/commands", s.handleCommand())
		r.Get("/history", s.handleHistory())
	})

	return r
}
