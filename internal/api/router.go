package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/ready", s.handleReady)
		r.Get("/system", s.handleSystem)
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

		r.Route("/slowcontrol", func(r chi.Router) {
			r.Get("/", s.handleListVariables)
			r.Get("/{name}", s.handleGetVariable)
			r.Put("/{name}", s.handleSetVariable)
		})

		r.Post("/alerts/{name}", s.handleSendAlert)

		r.Get("/ws", s.handleWebSocket)
	})

	return r
}
