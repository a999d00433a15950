package config

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kevin07696/subscription-service/internal/adapters/secrets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapSettings map[string]string

func (m mapSettings) Get(_ context.Context, key string) (string, error) {
	if v, ok := m[key]; ok {
		return v, nil
	}
	return "", secrets.ErrNotFound
}

type failingSettings struct{}

func (failingSettings) Get(context.Context, string) (string, error) {
	return "", errors.New("vault sealed")
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("APP_ENV", "local")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "9090", cfg.Server.MetricsPort)
	assert.Equal(t, 3, cfg.Lifecycle.RetryThreshold)
	assert.Equal(t, 72*time.Hour, cfg.Lifecycle.RetryWindow)
	assert.Equal(t, 168*time.Hour, cfg.Lifecycle.GraceWindow)
	assert.Equal(t, time.Hour, cfg.Lifecycle.CheckoutTTL)
	assert.Equal(t, 15*time.Minute, cfg.Lifecycle.SweepInterval)
	assert.Equal(t, "env", cfg.Secrets.Backend)
	assert.Equal(t, "info", cfg.Logger.Level)
	assert.False(t, cfg.PayPal.Enabled)
	assert.False(t, cfg.North.Enabled)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	t.Setenv("RETRY_THRESHOLD", "5")
	t.Setenv("GRACE_WINDOW", "48h")
	t.Setenv("PAYPAL_ENABLED", "true")
	t.Setenv("PAYPAL_CLIENT_ID", "client")
	t.Setenv("PAYPAL_CLIENT_SECRET", "secret")
	t.Setenv("PAYPAL_BASE_URL", "https://api-m.paypal.com")
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost:5432/subs")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, 5, cfg.Lifecycle.RetryThreshold)
	assert.Equal(t, 48*time.Hour, cfg.Lifecycle.GraceWindow)
	assert.Equal(t, "https://api-m.paypal.com", cfg.PayPal.BaseURL)
	assert.Equal(t, "postgres://u:p@localhost:5432/subs", cfg.Database.URL)
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown environment", map[string]string{"APP_ENV": "qa"}},
		{"paypal enabled without credentials", map[string]string{"PAYPAL_ENABLED": "true"}},
		{"north enabled without key", map[string]string{"NORTH_ENABLED": "true", "NORTH_EPI_ID": "7000-1"}},
		{"provisioning url without secret", map[string]string{"PROVISIONING_URL": "https://provision.test/hook"}},
		{"unknown secrets backend", map[string]string{"SECRETS_BACKEND": "gcp"}},
		{"vault backend without address", map[string]string{"SECRETS_BACKEND": "vault"}},
		{"zero retry threshold", map[string]string{"RETRY_THRESHOLD": "0"}},
		{"bad log level", map[string]string{"LOG_LEVEL": "trace"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("APP_ENV", "local")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoad_UnparsableDuration(t *testing.T) {
	t.Setenv("APP_ENV", "local")
	t.Setenv("RETRY_WINDOW", "three days")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "process environment")
}

func TestApplySettings(t *testing.T) {
	t.Setenv("APP_ENV", "local")
	t.Setenv("PAYPAL_CLIENT_ID", "from-env")
	t.Setenv("ADMIN_TOKEN", "env-token")

	cfg, err := Load()
	require.NoError(t, err)

	err = cfg.ApplySettings(context.Background(), mapSettings{
		KeyPayPalClientSecret: "from-vault",
		KeyNorthEPIKey:        "north-key",
		KeyAdminToken:         "vault-token",
	})
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.PayPal.ClientID, "missing key keeps the environment value")
	assert.Equal(t, "from-vault", cfg.PayPal.ClientSecret)
	assert.Equal(t, "north-key", cfg.North.EPIKey)
	assert.Equal(t, "vault-token", cfg.Server.AdminToken)
}

func TestApplySettings_ProviderError(t *testing.T) {
	t.Setenv("APP_ENV", "local")

	cfg, err := Load()
	require.NoError(t, err)

	err = cfg.ApplySettings(context.Background(), failingSettings{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), KeyPayPalClientID)
}

func TestApplySettings_Revalidates(t *testing.T) {
	t.Setenv("APP_ENV", "local")
	t.Setenv("NORTH_ENABLED", "true")
	t.Setenv("NORTH_EPI_ID", "7000-700010-1-1")
	t.Setenv("NORTH_EPI_KEY", "key")

	cfg, err := Load()
	require.NoError(t, err)

	err = cfg.ApplySettings(context.Background(), mapSettings{KeyNorthEPIKey: ""})
	assert.Error(t, err, "an empty key from the provider must fail validation")
}
