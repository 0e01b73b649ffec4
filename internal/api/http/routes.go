package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates a new HTTP router with configured routes, middleware,
// and handlers: batch submission, mirror management, health check, and the
// Prometheus metrics endpoint.
func NewRouter(batchService BatchServiceI, mirrorService MirrorServiceI, logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)

	handler := NewBatchHandler(batchService, mirrorService, logger)

	r.Route("/batches", func(r chi.Router) {
		r.Post("/", handler.CreateBatch)
		r.Get("/{batchID}", handler.GetBatch)
	})

	r.Route("/mirrors", func(r chi.Router) {
		r.Get("/", handler.ListMirrors)
		r.Post("/", handler.AddMirror)
		r.Post("/deactivate", handler.DeactivateMirror)
		r.Post("/check", handler.CheckMirrors)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
