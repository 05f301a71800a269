package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/pkg/middleware"
)

// NewRouter wires the API, health checks, and (when m is non-nil) the
// Prometheus endpoint behind the common middleware chain.
func NewRouter(h *Handler, checker *health.Checker, m *metrics.Metrics, timeout time.Duration) http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.Metrics(m))
	if timeout > 0 {
		r.Use(middleware.Timeout(timeout))
	}

	h.Routes(r)
	if checker != nil {
		r.Get("/health/live", checker.LiveHandler())
		r.Get("/health/ready", checker.ReadyHandler())
	}
	if m != nil {
		r.Handle("/metrics", metrics.Handler())
	}
	return r
}
