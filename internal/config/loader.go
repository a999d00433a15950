package config

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/kevin07696/subscription-service/internal/adapters/secrets"
	"github.com/kevin07696/subscription-service/internal/domain/ports"
)

// Settings keys resolved through the SettingsProvider. They override the
// matching environment values when present.
const (
	KeyPayPalClientID     = "paypal.client_id"
	KeyPayPalClientSecret = "paypal.client_secret"
	KeyPayPalWebhookID    = "paypal.webhook_id"
	KeyNorthEPIId         = "north.epi_id"
	KeyNorthEPIKey        = "north.epi_key"
	KeyProvisioningSecret = "provisioning.secret"
	KeyAdminToken         = "admin.token"
	KeyCronSecret         = "cron.secret"
)

// Load reads an optional .env file, fills Config from the environment and
// validates it. Variables already set in the environment win over .env.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks struct tags
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// ApplySettings overlays credentials from p and validates the result. Keys
// the provider does not know keep their environment value.
func (c *Config) ApplySettings(ctx context.Context, p ports.SettingsProvider) error {
	overlays := []struct {
		key    string
		target *string
	}{
		{KeyPayPalClientID, &c.PayPal.ClientID},
		{KeyPayPalClientSecret, &c.PayPal.ClientSecret},
		{KeyPayPalWebhookID, &c.PayPal.WebhookID},
		{KeyNorthEPIId, &c.North.EPIId},
		{KeyNorthEPIKey, &c.North.EPIKey},
		{KeyProvisioningSecret, &c.Provisioning.Secret},
		{KeyAdminToken, &c.Server.AdminToken},
		{KeyCronSecret, &c.Server.CronSecret},
	}

	for _, o := range overlays {
		v, err := secrets.Lookup(ctx, p, o.key, *o.target)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", o.key, err)
		}
		*o.target = v
	}
	return c.Validate()
}
