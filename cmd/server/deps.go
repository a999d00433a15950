package main

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"go.uber.org/zap"

	"github.com/kevin07696/subscription-service/internal/adapters/memory"
	"github.com/kevin07696/subscription-service/internal/adapters/north"
	"github.com/kevin07696/subscription-service/internal/adapters/paypal"
	"github.com/kevin07696/subscription-service/internal/adapters/postgres"
	"github.com/kevin07696/subscription-service/internal/adapters/queue"
	redisAdapter "github.com/kevin07696/subscription-service/internal/adapters/redis"
	"github.com/kevin07696/subscription-service/internal/adapters/secrets"
	"github.com/kevin07696/subscription-service/internal/config"
	"github.com/kevin07696/subscription-service/internal/domain/ports"
	cronHandler "github.com/kevin07696/subscription-service/internal/handlers/cron"
	"github.com/kevin07696/subscription-service/internal/services/provisioning"
	pkghttp "github.com/kevin07696/subscription-service/pkg/http"
	"github.com/kevin07696/subscription-service/pkg/observability"
	"github.com/kevin07696/subscription-service/pkg/resilience"
	"github.com/kevin07696/subscription-service/pkg/shutdown"
)

type provisioningRetrier = cronHandler.DeliveryRetrier

// storeDeps is the persistence layer chosen at startup
type storeDeps struct {
	db            ports.DBPort
	subscriptions ports.SubscriptionRepository
	deliveries    ports.ProvisioningDeliveryRepository
}

// initSettings builds the settings chain: the selected secret backend first,
// then the environment, behind a TTL cache
func initSettings(ctx context.Context, cfg *config.Config, logger *zap.Logger) (ports.SettingsProvider, error) {
	env := secrets.NewEnvProvider("")

	var backend ports.SettingsProvider
	switch cfg.Secrets.Backend {
	case "aws":
		sm, err := secrets.NewAWSSecretsManager(ctx, secrets.AWSSecretsManagerConfig{
			Region:   cfg.Notifications.AWSRegion,
			Endpoint: cfg.Notifications.AWSEndpoint,
			Prefix:   cfg.Secrets.Prefix,
		}, logger)
		if err != nil {
			return nil, err
		}
		backend = sm
	case "vault":
		vcfg := secrets.DefaultVaultConfig(cfg.Secrets.VaultAddress, cfg.Secrets.VaultPath)
		vcfg.Token = cfg.Secrets.VaultToken
		if cfg.Secrets.VaultRoleID != "" {
			vcfg.AuthMethod = "approle"
			vcfg.RoleID = cfg.Secrets.VaultRoleID
			vcfg.SecretID = cfg.Secrets.VaultSecret
		}
		v, err := secrets.NewVault(ctx, vcfg, logger)
		if err != nil {
			return nil, err
		}
		backend = v
	case "file":
		backend = secrets.NewLocalFiles(cfg.Secrets.FilesPath, logger)
	default:
		logger.Info("Settings resolved from environment only")
		return env, nil
	}

	logger.Info("Settings provider initialized", zap.String("backend", cfg.Secrets.Backend))
	return secrets.NewCachedProvider(secrets.ChainProvider{backend, env}, cfg.Secrets.CacheTTL, logger), nil
}

// initStore connects PostgreSQL and applies migrations, or falls back to the
// in-memory store when DATABASE_URL is empty
func initStore(ctx context.Context, cfg *config.Config, logger *zap.Logger, sm *shutdown.Manager, health *observability.HealthChecker) (*storeDeps, error) {
	if cfg.Database.URL == "" {
		if cfg.IsProduction() {
			return nil, fmt.Errorf("DATABASE_URL is required in production")
		}
		logger.Warn("DATABASE_URL not set, using in-memory store; data is lost on restart")
		return &storeDeps{
			db:            memory.NewDB(),
			subscriptions: memory.NewSubscriptionRepository(),
			deliveries:    memory.NewDeliveryRepository(),
		}, nil
	}

	dbCfg := postgres.DefaultConfig(cfg.Database.URL)
	dbCfg.MaxConns = cfg.Database.MaxConns
	dbCfg.MinConns = cfg.Database.MinConns
	dbCfg.MaxConnLifetime = cfg.Database.MaxConnLifetime
	dbCfg.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

	db, err := postgres.Connect(ctx, dbCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	sm.RegisterNoErr("database", db.Close)
	health.Register("database", db)

	if cfg.Database.AutoMigrate {
		if err := postgres.Migrate(ctx, db.Pool(), logger); err != nil {
			return nil, err
		}
	}

	monitorCtx, stopMonitor := context.WithCancel(context.Background())
	sm.RegisterNoErr("database pool monitor", stopMonitor)
	db.StartPoolMonitoring(monitorCtx, 30*time.Second)

	return &storeDeps{
		db:            db,
		subscriptions: postgres.NewSubscriptionRepository(db),
		deliveries:    postgres.NewDeliveryRepository(db),
	}, nil
}

// initCheckoutCache connects Redis, or falls back to the process-local cache
// when REDIS_URL is empty
func initCheckoutCache(ctx context.Context, cfg *config.Config, logger *zap.Logger, sm *shutdown.Manager, health *observability.HealthChecker) (ports.CheckoutCache, error) {
	if cfg.Redis.URL == "" {
		logger.Warn("REDIS_URL not set, checkout intents are kept in process memory")
		cache := memory.NewCheckoutCache(logger, time.Minute)
		sm.RegisterCloser("checkout cache", cache)
		return cache, nil
	}

	client, err := redisAdapter.Connect(ctx, redisAdapter.Config{
		URL:           cfg.Redis.URL,
		RetryAttempts: cfg.Redis.RetryAttempts,
		RetryInterval: cfg.Redis.RetryInterval,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	sm.RegisterCloser("redis", client)
	health.Register("redis", observability.PingFunc(redisAdapter.Healthcheck(client)))

	return redisAdapter.NewCheckoutCache(client), nil
}

// initGateways builds an adapter and a webhook decoder per enabled provider.
// Each provider gets its own pooled transport and circuit breaker.
func initGateways(cfg *config.Config, logger ports.Logger) ([]ports.Gateway, []ports.WebhookDecoder) {
	var (
		gateways []ports.Gateway
		decoders []ports.WebhookDecoder
	)
	timeouts := resilience.DefaultTimeoutConfig()

	if cfg.PayPal.Enabled {
		client := pkghttp.NewResilientClient(
			pkghttp.NewHTTPClient(pkghttp.ProviderClientConfig(), timeouts.SingleRetry),
			"paypal",
		)
		gw := paypal.NewGateway(paypal.Config{
			ClientID:     cfg.PayPal.ClientID,
			ClientSecret: cfg.PayPal.ClientSecret,
			BaseURL:      cfg.PayPal.BaseURL,
			WebhookID:    cfg.PayPal.WebhookID,
			BrandName:    cfg.PayPal.BrandName,
		}, client, logger)
		gateways = append(gateways, gw)
		decoders = append(decoders, gw)
	}

	if cfg.North.Enabled {
		auth := north.AuthConfig{EPIId: cfg.North.EPIId, EPIKey: cfg.North.EPIKey}
		client := pkghttp.NewResilientClient(
			pkghttp.NewHTTPClient(pkghttp.ProviderClientConfig(), timeouts.SingleRetry),
			"north",
		)
		gateways = append(gateways, north.NewGateway(auth, cfg.North.BaseURL, client, logger))
		decoders = append(decoders, north.NewWebhookDecoder(auth))
	}

	return gateways, decoders
}

// initNotifier returns nil interfaces when no provisioning endpoint is set
func initNotifier(cfg *config.Config, store *storeDeps, logger ports.Logger) (ports.ProvisioningNotifier, provisioningRetrier) {
	if cfg.Provisioning.URL == "" {
		logger.Warn("PROVISIONING_URL not set, provisioning notifications are disabled")
		return nil, nil
	}

	client := pkghttp.NewResilientClient(
		pkghttp.NewHTTPClient(pkghttp.NotifierClientConfig(), resilience.DefaultTimeoutConfig().Provisioning),
		"provisioning",
		pkghttp.WithMaxRetries(1),
	)
	n := provisioning.NewNotifier(client, store.db, store.deliveries, provisioning.Config{
		URL:         cfg.Provisioning.URL,
		Secret:      cfg.Provisioning.Secret,
		MaxAttempts: cfg.Provisioning.MaxAttempts,
	}, logger)
	return n, n
}

// initPublisher sends lifecycle events to SQS when a queue is configured and
// logs them otherwise
func initPublisher(ctx context.Context, cfg *config.Config, logger *zap.Logger) (ports.EventPublisher, error) {
	if cfg.Notifications.QueueURL == "" {
		return queue.NewLogPublisher(logger), nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Notifications.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var opts []func(*sqs.Options)
	if cfg.Notifications.AWSEndpoint != "" {
		opts = append(opts, func(o *sqs.Options) {
			o.BaseEndpoint = aws.String(cfg.Notifications.AWSEndpoint)
		})
	}

	return queue.NewSQSPublisher(sqs.NewFromConfig(awsCfg, opts...), cfg.Notifications.QueueURL, logger), nil
}
