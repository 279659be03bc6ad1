package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/skyfay/dbackup/internal/apikey"
	"github.com/skyfay/dbackup/internal/metrics"
	"github.com/skyfay/dbackup/internal/ratelimit"
	"github.com/skyfay/dbackup/internal/repositories"
	"github.com/skyfay/dbackup/internal/scheduler"
)

// RouterConfig holds all dependencies needed to build the HTTP router.
type RouterConfig struct {
	Keys       *apikey.Manager
	Limiter    *ratelimit.Limiter
	Scheduler  *scheduler.Scheduler
	Executions repositories.ExecutionRepository
	Logger     *zap.Logger
}

// NewRouter builds the Job Trigger API's Chi router (spec §6): a trigger
// endpoint gated by the "jobs:execute" capability under the api-mutate rate
// class, and a poll endpoint gated by "jobs:read" under api-read. Prometheus
// scrapes /metrics, left unauthenticated like most operational endpoints
// meant only for a cluster-internal scraper.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)

	jobHandler := NewJobHandler(cfg.Executions, cfg.Scheduler, cfg.Logger)

	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(Authenticate(cfg.Keys, apikey.CapJobsExecute))
			r.Use(ratelimit.Middleware(cfg.Limiter, ratelimit.ClassAPIMutate))
			r.Post("/jobs/{jobId}/run", jobHandler.TriggerRun)
		})

		r.Group(func(r chi.Router) {
			r.Use(Authenticate(cfg.Keys, apikey.CapJobsRead))
			r.Use(ratelimit.Middleware(cfg.Limiter, ratelimit.ClassAPIRead))
			r.Get("/executions/{executionId}", jobHandler.GetExecution)
		})
	})

	return r
}
