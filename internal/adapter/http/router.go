package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/iho/clinicalledger/internal/adapter/http/handler"
	"github.com/iho/clinicalledger/internal/adapter/http/middleware"
	"github.com/iho/clinicalledger/internal/infrastructure/metrics"
	"github.com/iho/clinicalledger/internal/usecase"
)

// RouterConfig holds dependencies for the router.
type RouterConfig struct {
	EntryHandler   *handler.EntryHandler
	HistoryHandler *handler.HistoryHandler
	ExportHandler  *handler.ExportHandler
	HealthHandler  *handler.HealthHandler

	Logger zerolog.Logger
	// Metrics and MetricsHandler are optional.
	Metrics        *metrics.Metrics
	MetricsHandler http.Handler

	// ActorMiddleware defaults to the X-Actor-ID header.
	ActorMiddleware  *middleware.ActorMiddleware
	IdempotencyStore usecase.IdempotencyStore
	IdempotencyTTL   time.Duration
	RateLimiter      *middleware.RateLimiter
}

// NewRouter creates a new HTTP router.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.NewLoggingMiddleware(cfg.Logger).Wrap)
	r.Use(middleware.Recovery)
	if cfg.Metrics != nil {
		r.Use(middleware.NewMetricsMiddleware(cfg.Metrics).Wrap)
	}
	if cfg.RateLimiter != nil {
		r.Use(cfg.RateLimiter.Limit)
	}

	// Health endpoints
	r.Get("/health", cfg.HealthHandler.Liveness)
	r.Get("/ready", cfg.HealthHandler.Readiness)
	if cfg.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", cfg.MetricsHandler)
	}

	actor := cfg.ActorMiddleware
	if actor == nil {
		actor = middleware.NewActorMiddleware(nil, cfg.Metrics)
	}

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(actor.Wrap)

		// Idempotency middleware for mutating requests
		if cfg.IdempotencyStore != nil {
			r.Use(middleware.NewIdempotencyMiddleware(cfg.IdempotencyStore, cfg.IdempotencyTTL).Wrap)
		}

		r.Get("/therapy-methods", cfg.EntryHandler.TherapyMethods)

		r.Route("/patients/{patientID}", func(r chi.Router) {
			r.Get("/export", cfg.ExportHandler.Export)

			r.Route("/entries", func(r chi.Router) {
				r.Post("/", cfg.EntryHandler.Create)
				r.Get("/", cfg.EntryHandler.Timeline)

				r.Route("/{entryID}", func(r chi.Router) {
					r.Get("/", cfg.EntryHandler.Get)
					r.Post("/amendments", cfg.EntryHandler.Amend)
					r.Get("/history", cfg.HistoryHandler.History)
					r.Get("/versions/{version}", cfg.HistoryHandler.Version)
				})
			})
		})
	})

	return r
}
