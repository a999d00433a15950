// Package config loads the service configuration from the environment
package config

import (
	"time"
)

// Config is populated once at startup and handed to constructors
type Config struct {
	Environment string `envconfig:"APP_ENV" default:"local" validate:"oneof=local dev staging prod"`

	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	PayPal        PayPalConfig
	North         NorthConfig
	Lifecycle     LifecycleConfig
	Provisioning  ProvisioningConfig
	Notifications NotificationsConfig
	Secrets       SecretsConfig
	Logger        LoggerConfig
}

// ServerConfig holds the listener ports and shared secrets of the HTTP surface
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8080" validate:"required,numeric"`
	MetricsPort     string        `envconfig:"METRICS_PORT" default:"9090" validate:"required,numeric"`
	AdminToken      string        `envconfig:"ADMIN_TOKEN"`
	CronSecret      string        `envconfig:"CRON_SECRET"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`

	// per-IP limit on the webhook endpoint
	WebhookRateLimit float64 `envconfig:"WEBHOOK_RATE_LIMIT" default:"20" validate:"gt=0"`
	WebhookBurst     int     `envconfig:"WEBHOOK_RATE_BURST" default:"40" validate:"gt=0"`
}

// DatabaseConfig configures the pgx pool. An empty URL selects the
// in-memory store.
type DatabaseConfig struct {
	URL             string        `envconfig:"DATABASE_URL"`
	MaxConns        int32         `envconfig:"DB_MAX_CONNS" default:"25" validate:"gte=1"`
	MinConns        int32         `envconfig:"DB_MIN_CONNS" default:"5" validate:"gte=0"`
	MaxConnLifetime time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `envconfig:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
	AutoMigrate     bool          `envconfig:"DB_AUTO_MIGRATE" default:"true"`
}

// RedisConfig configures the checkout cache. An empty URL selects the
// in-memory cache.
type RedisConfig struct {
	URL           string        `envconfig:"REDIS_URL"`
	RetryAttempts int           `envconfig:"REDIS_RETRY_ATTEMPTS" default:"3" validate:"gte=1"`
	RetryInterval time.Duration `envconfig:"REDIS_RETRY_INTERVAL" default:"1s"`
}

// PayPalConfig holds the PayPal REST credentials
type PayPalConfig struct {
	Enabled      bool   `envconfig:"PAYPAL_ENABLED" default:"false"`
	ClientID     string `envconfig:"PAYPAL_CLIENT_ID" validate:"required_if=Enabled true"`
	ClientSecret string `envconfig:"PAYPAL_CLIENT_SECRET" validate:"required_if=Enabled true"`
	BaseURL      string `envconfig:"PAYPAL_BASE_URL" default:"https://api-m.sandbox.paypal.com" validate:"url"`
	WebhookID    string `envconfig:"PAYPAL_WEBHOOK_ID"`
	BrandName    string `envconfig:"PAYPAL_BRAND_NAME"`
}

// NorthConfig holds the North recurring billing credentials
type NorthConfig struct {
	Enabled bool   `envconfig:"NORTH_ENABLED" default:"false"`
	BaseURL string `envconfig:"NORTH_BASE_URL" default:"https://billing.epxuap.com" validate:"url"`
	EPIId   string `envconfig:"NORTH_EPI_ID" validate:"required_if=Enabled true"`
	EPIKey  string `envconfig:"NORTH_EPI_KEY" validate:"required_if=Enabled true"`
}

// LifecycleConfig tunes retry and grace windows, checkout intents and the sweep
type LifecycleConfig struct {
	RetryThreshold int           `envconfig:"RETRY_THRESHOLD" default:"3" validate:"gte=1"`
	RetryWindow    time.Duration `envconfig:"RETRY_WINDOW" default:"72h"`
	GraceWindow    time.Duration `envconfig:"GRACE_WINDOW" default:"168h"`
	CheckoutTTL    time.Duration `envconfig:"CHECKOUT_TTL" default:"1h"`
	ReturnURL      string        `envconfig:"CHECKOUT_RETURN_URL" validate:"omitempty,url"`
	CancelURL      string        `envconfig:"CHECKOUT_CANCEL_URL" validate:"omitempty,url"`
	SweepInterval  time.Duration `envconfig:"SWEEP_INTERVAL" default:"15m"`
	SweepBatchSize int           `envconfig:"SWEEP_BATCH_SIZE" default:"500" validate:"gte=1,lte=10000"`
}

// ProvisioningConfig points at the downstream provisioning endpoint. An
// empty URL disables notifications.
type ProvisioningConfig struct {
	URL         string        `envconfig:"PROVISIONING_URL" validate:"omitempty,url"`
	Secret      string        `envconfig:"PROVISIONING_SECRET" validate:"required_with=URL"`
	MaxAttempts int           `envconfig:"PROVISIONING_MAX_ATTEMPTS" default:"8" validate:"gte=1"`
	RetryEvery  time.Duration `envconfig:"PROVISIONING_RETRY_INTERVAL" default:"1m"`
}

// NotificationsConfig selects the lifecycle event publisher. An empty queue
// URL logs events instead of sending them.
type NotificationsConfig struct {
	QueueURL    string `envconfig:"NOTIFICATIONS_QUEUE_URL" validate:"omitempty,url"`
	AWSRegion   string `envconfig:"AWS_REGION" default:"us-east-1"`
	AWSEndpoint string `envconfig:"AWS_ENDPOINT_URL"`
}

// SecretsConfig selects where gateway credentials are resolved
type SecretsConfig struct {
	Backend  string        `envconfig:"SECRETS_BACKEND" default:"env" validate:"oneof=env aws vault file"`
	Prefix   string        `envconfig:"SECRETS_PREFIX" default:"subscription-service/"`
	CacheTTL time.Duration `envconfig:"SECRETS_CACHE_TTL" default:"5m"`

	VaultAddress string `envconfig:"VAULT_ADDR" validate:"required_if=Backend vault"`
	VaultToken   string `envconfig:"VAULT_TOKEN"`
	VaultRoleID  string `envconfig:"VAULT_ROLE_ID"`
	VaultSecret  string `envconfig:"VAULT_SECRET_ID"`
	VaultPath    string `envconfig:"VAULT_SECRET_PATH" default:"subscription-service"`

	FilesPath string `envconfig:"SECRETS_FILES_PATH" default:"./secrets" validate:"required_if=Backend file"`
}

// LoggerConfig configures zap
type LoggerConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	Development bool   `envconfig:"LOG_DEVELOPMENT" default:"false"`
}

// IsProduction reports whether the service runs in production
func (c *Config) IsProduction() bool {
	return c.Environment == "prod"
}
