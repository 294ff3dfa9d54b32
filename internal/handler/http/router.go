package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RouterOptions configures the optional parts of the router.
type RouterOptions struct {
	Logger *slog.Logger

	// Limiter guards link creation; nil disables rate limiting.
	Limiter RateLimiter

	// Metrics serves /metrics when set (usually promhttp.Handler()).
	Metrics http.Handler
}

// NewRouter wires the handlers and middleware into a chi router.
//
// Middleware runs outside-in: recovery, request id, logging, metrics, CORS.
func NewRouter(h *Handler, opts RouterOptions) chi.Router {
	log := opts.Logger
	if log == nil {
		log = h.logger
	}

	r := chi.NewRouter()
	r.Use(
		RecoveryMiddleware(log),
		RequestIDMiddleware,
		LoggingMiddleware(log),
		MetricsMiddleware,
		CORSMiddleware,
	)

	r.Get("/health/live", h.HealthCheck)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	r.Route("/api/v1/urls", func(r chi.Router) {
		if opts.Limiter != nil {
			r.With(RateLimitMiddleware(opts.Limiter, log)).Post("/", h.CreateLink)
		} else {
			r.Post("/", h.CreateLink)
		}
		r.Get("/{id}", h.LinkDetails)
	})

	r.Get("/{id}", h.Redirect)

	return r
}
