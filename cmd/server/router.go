package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kevin07696/subscription-service/internal/config"
	"github.com/kevin07696/subscription-service/internal/domain/ports"
	adminHandler "github.com/kevin07696/subscription-service/internal/handlers/admin"
	cronHandler "github.com/kevin07696/subscription-service/internal/handlers/cron"
	webhookHandler "github.com/kevin07696/subscription-service/internal/handlers/webhook"
	"github.com/kevin07696/subscription-service/pkg/middleware"
	"github.com/kevin07696/subscription-service/pkg/observability"
	"github.com/kevin07696/subscription-service/pkg/resilience"
)

func newRouter(
	cfg *config.Config,
	logger *zap.Logger,
	processor webhookHandler.Processor,
	svc ports.SubscriptionService,
	retrier provisioningRetrier,
) (http.Handler, *middleware.RateLimiter) {
	timeouts := resilience.DefaultTimeoutConfig()

	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(observability.HTTPMetrics(routePattern))
	r.Use(chimiddleware.Timeout(timeouts.HTTPHandler))

	limiter := middleware.NewRateLimiter(cfg.Server.WebhookRateLimit, cfg.Server.WebhookBurst)
	r.Group(func(r chi.Router) {
		r.Use(limiter.Middleware)
		webhookHandler.NewHandler(processor, logger).RegisterRoutes(r)
	})

	if cfg.Server.AdminToken == "" {
		logger.Warn("ADMIN_TOKEN not set, admin API rejects every request")
	}
	adminHandler.NewHandler(svc, cfg.Server.AdminToken, logger).RegisterRoutes(r)

	// a nil retrier keeps /cron/retry-provisioning answering 503
	cronHandler.NewLifecycleHandler(svc, retrier, logger, cfg.Server.CronSecret).RegisterRoutes(r)

	return r, limiter
}

// routePattern labels metrics with the matched chi pattern, never the raw path
func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}
