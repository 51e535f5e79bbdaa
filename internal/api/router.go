// Package api wires the HTTP surface of each service: routes, middleware
// chain and operational endpoints.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/velesbank/moneymove/internal/api/handler"
	"github.com/velesbank/moneymove/internal/api/middleware"
	"github.com/velesbank/moneymove/internal/api/spec"
	"github.com/velesbank/moneymove/internal/idempotency"
	"github.com/velesbank/moneymove/internal/ledger"
	"github.com/velesbank/moneymove/internal/orchestrator"
	"github.com/velesbank/moneymove/internal/risk"
)

// LedgerRouter builds the balance-ledger service's routes.
func LedgerRouter(svc *ledger.Service, db *pgxpool.Pool, logger *zap.Logger) chi.Router {
	r := base(logger)

	holderHandler := handler.NewHolderHandler(svc)
	healthHandler := handler.NewHealthHandler(db, nil)

	r.Get("/healthz", healthHandler.Live)
	r.Get("/readyz", healthHandler.Ready)

	r.Route("/api/holders", func(r chi.Router) {
		r.Post("/", holderHandler.Register)
		r.Get("/{login}", holderHandler.Details)
		r.Post("/{login}/adjust", holderHandler.Adjust)
	})

	return r
}

// OrchestratorRouter builds the cash/transfer service's routes. Mutating
// routes sit behind the rate limiter and the idempotency response cache.
func OrchestratorRouter(svc *orchestrator.Service, idem *idempotency.Store, db *pgxpool.Pool, rdb redis.Cmdable, rateLimit int, logger *zap.Logger) chi.Router {
	r := base(logger)

	opsHandler := handler.NewOperationsHandler(svc, logger)
	healthHandler := handler.NewHealthHandler(db, rdb)

	r.Get("/healthz", healthHandler.Live)
	r.Get("/readyz", healthHandler.Ready)

	r.Group(func(r chi.Router) {
		r.Use(middleware.PublicRateLimiter(rateLimit))
		r.Use(middleware.IdempotencyMiddleware(idem, logger))

		r.Post("/api/cash", opsHandler.Cash)
		r.Post("/api/transfer", opsHandler.Transfer)
	})

	return r
}

// BlockerRouter builds the risk-gate service's routes.
func BlockerRouter(decider risk.Decider, logger *zap.Logger) chi.Router {
	r := base(logger)

	blockerHandler := handler.NewBlockerHandler(decider)
	healthHandler := handler.NewHealthHandler(nil, nil)

	r.Get("/healthz", healthHandler.Live)
	r.Get("/readyz", healthHandler.Ready)
	r.Post("/api/check", blockerHandler.Check)

	return r
}

func base(logger *zap.Logger) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.TraceMiddleware)
	r.Use(middleware.LoggingMiddleware(logger))
	r.Use(middleware.RecoverMiddleware(logger))
	r.Use(middleware.MetricsMiddleware)

	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Get("/openapi.yaml", spec.OpenAPIHandler())

	return r
}
