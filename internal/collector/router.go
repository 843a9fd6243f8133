package collector

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/gosight/gosight/carttracker/internal/config"
)

// NewRouter mounts the metrics endpoint and health check.
func NewRouter(cfg config.CollectorConfig, h *HTTPHandler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(CORSMiddleware(cfg.AllowedOrigin))

	r.Get("/health", HealthCheck)
	r.Post(cfg.Path, h.HandleCartEvent)

	return r
}
