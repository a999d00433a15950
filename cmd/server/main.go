package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/kevin07696/subscription-service/internal/config"
	"github.com/kevin07696/subscription-service/internal/services/lifecycle"
	"github.com/kevin07696/subscription-service/internal/services/subscription"
	webhookService "github.com/kevin07696/subscription-service/internal/services/webhook"
	"github.com/kevin07696/subscription-service/pkg/observability"
	"github.com/kevin07696/subscription-service/pkg/resilience"
	"github.com/kevin07696/subscription-service/pkg/resourcemgmt"
	"github.com/kevin07696/subscription-service/pkg/security"
	"github.com/kevin07696/subscription-service/pkg/shutdown"
)

const version = "0.1.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := security.NewLogger(cfg.Logger.Level, cfg.Logger.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Subscription service stopped with error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info("Starting subscription service",
		zap.String("version", version),
		zap.String("environment", cfg.Environment),
	)

	shutdownMgr := shutdown.NewManager(logger, cfg.Server.ShutdownTimeout)
	health := observability.NewHealthChecker()

	settings, err := initSettings(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("init settings provider: %w", err)
	}
	if err := cfg.ApplySettings(ctx, settings); err != nil {
		return fmt.Errorf("resolve settings: %w", err)
	}

	store, err := initStore(ctx, cfg, logger, shutdownMgr, health)
	if err != nil {
		return err
	}

	cache, err := initCheckoutCache(ctx, cfg, logger, shutdownMgr, health)
	if err != nil {
		return err
	}

	svcLogger := security.NewZapLogger(logger)
	gateways, decoders := initGateways(cfg, svcLogger)

	notifier, retrier := initNotifier(cfg, store, svcLogger)

	publisher, err := initPublisher(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("init lifecycle publisher: %w", err)
	}

	timeouts := resilience.DefaultTimeoutConfig()
	subscriptionSvc := subscription.NewService(
		store.db,
		store.subscriptions,
		cache,
		gateways,
		notifier,
		publisher,
		subscription.Config{
			Policy: lifecycle.Policy{
				RetryThreshold: cfg.Lifecycle.RetryThreshold,
				RetryWindow:    cfg.Lifecycle.RetryWindow,
				GraceWindow:    cfg.Lifecycle.GraceWindow,
			},
			CheckoutTTL:    cfg.Lifecycle.CheckoutTTL,
			ReturnURL:      cfg.Lifecycle.ReturnURL,
			CancelURL:      cfg.Lifecycle.CancelURL,
			SweepBatchSize: cfg.Lifecycle.SweepBatchSize,
			Timeouts:       timeouts,
		},
		svcLogger,
	)
	processor := webhookService.NewProcessor(subscriptionSvc, svcLogger, decoders...)

	jobs := resourcemgmt.NewJobRunner(logger)
	shutdownMgr.Register("background jobs", jobs.Stop)
	if err := scheduleJobs(jobs, cfg, subscriptionSvc, retrier, timeouts); err != nil {
		return err
	}

	metricsServer := observability.StartMetricsServer(cfg.Server.MetricsPort, health, logger)
	shutdownMgr.Register("metrics server", func(ctx context.Context) error {
		return observability.ShutdownMetricsServer(ctx, metricsServer)
	})

	router, limiter := newRouter(cfg, logger, processor, subscriptionSvc, retrier)
	shutdownMgr.RegisterNoErr("rate limiter", limiter.Shutdown)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      timeouts.HTTPHandler + 5*time.Second,
		IdleTimeout:       120 * time.Second,
	}
	shutdownMgr.Register("http server", httpServer.Shutdown)

	waitCtx, stopWaiting := context.WithCancel(ctx)
	defer stopWaiting()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening",
			zap.String("port", cfg.Server.Port),
			zap.Strings("gateways", enabledGateways(cfg)),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", zap.Error(err))
			serveErr <- err
			stopWaiting()
		}
	}()

	shutdownErr := shutdownMgr.WaitForShutdown(waitCtx)
	select {
	case err := <-serveErr:
		return errors.Join(fmt.Errorf("http server: %w", err), shutdownErr)
	default:
		return shutdownErr
	}
}

// scheduleJobs starts the in-process sweep and provisioning retry loops. The
// cron endpoints run the same work on demand.
func scheduleJobs(jobs *resourcemgmt.JobRunner, cfg *config.Config, svc *subscription.Service, retrier provisioningRetrier, timeouts *resilience.TimeoutConfig) error {
	err := jobs.Every(resourcemgmt.JobConfig{
		Name:       "sweep_expired",
		Interval:   cfg.Lifecycle.SweepInterval,
		Timeout:    timeouts.CronJob,
		RunAtStart: true,
	}, func(ctx context.Context) error {
		_, err := svc.SweepExpired(ctx, time.Now())
		return err
	})
	if err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}

	if retrier == nil {
		return nil
	}
	err = jobs.Every(resourcemgmt.JobConfig{
		Name:     "retry_provisioning",
		Interval: cfg.Provisioning.RetryEvery,
		Timeout:  timeouts.CronJob,
	}, func(ctx context.Context) error {
		_, err := retrier.RetryFailedDeliveries(ctx, 100)
		return err
	})
	if err != nil {
		return fmt.Errorf("schedule provisioning retry: %w", err)
	}
	return nil
}

func enabledGateways(cfg *config.Config) []string {
	var names []string
	if cfg.PayPal.Enabled {
		names = append(names, "paypal")
	}
	if cfg.North.Enabled {
		names = append(names, "north")
	}
	return names
}
