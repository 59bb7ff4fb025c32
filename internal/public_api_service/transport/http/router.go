package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/famline/notifications/internal/platform/ratelimit"
	"github.com/famline/notifications/internal/public_api_service/middleware"
)

// RouterConfig wires the operator API router.
type RouterConfig struct {
	JWTAccessSecret string
	Limiter         *ratelimit.Limiter
	JobHandler      *JobHandler
	DigestHandler   *DigestHandler
	Logger          *slog.Logger
}

// NewRouter builds the chi router for the operator API. Every /api/v1
// route requires a valid access token; mutating job routes carry the
// tighter enqueue rate limit.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(PrometheusMetricsMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(middleware.AuthMiddleware(cfg.JWTAccessSecret, cfg.Logger))
		api.Use(middleware.RateLimitMiddleware(cfg.Limiter, "api_default", cfg.Logger))

		api.Route("/jobs", func(jobs chi.Router) {
			jobs.Group(func(mutating chi.Router) {
				mutating.Use(middleware.RateLimitMiddleware(cfg.Limiter, "enqueue", cfg.Logger))
				mutating.Post("/", cfg.JobHandler.EnqueueJob)
			})
			jobs.Get("/", cfg.JobHandler.ListJobs)
			jobs.Get("/{id}", cfg.JobHandler.GetJob)
			jobs.Post("/{id}/cancel", cfg.JobHandler.CancelJob)
			jobs.Post("/{id}/retry", cfg.JobHandler.RetryJob)
		})

		api.Get("/metrics/queue-health", cfg.JobHandler.QueueHealth)

		api.Route("/digest-schedules", cfg.DigestHandler.RegisterScheduleRoutes)
		api.Route("/digests", cfg.DigestHandler.RegisterDigestRoutes)
	})

	return r
}
