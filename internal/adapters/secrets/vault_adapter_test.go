package secrets

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestVault_Get(t *testing.T) {
	var reads atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "vault-token", r.Header.Get("X-Vault-Token"))
		if r.URL.Path != "/v1/secret/data/subscription-service" {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"errors":[]}`))
			return
		}
		reads.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"data":{"paypal.client_secret":"EFk0u2","north.failed_limit":3},"metadata":{"version":4}}}`))
	}))
	defer server.Close()

	cfg := DefaultVaultConfig(server.URL, "subscription-service")
	cfg.Token = "vault-token"
	v, err := NewVault(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)

	ctx := context.Background()
	value, err := v.Get(ctx, "paypal.client_secret")
	require.NoError(t, err)
	assert.Equal(t, "EFk0u2", value)

	_, err = v.Get(ctx, "north.epi_key")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = v.Get(ctx, "north.failed_limit")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)

	assert.Equal(t, int32(1), reads.Load(), "fields are served from one read")
}

func TestVault_SecretMissing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"errors":[]}`))
	}))
	defer server.Close()

	cfg := DefaultVaultConfig(server.URL, "missing")
	cfg.Token = "vault-token"
	v, err := NewVault(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)

	_, err = v.Get(context.Background(), "paypal.client_secret")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNewVault_RequiresCredentials(t *testing.T) {
	_, err := NewVault(context.Background(), DefaultVaultConfig("http://127.0.0.1:8200", "x"), zap.NewNop())
	require.Error(t, err)

	cfg := DefaultVaultConfig("http://127.0.0.1:8200", "x")
	cfg.AuthMethod = "kerberos"
	cfg.Token = "t"
	_, err = NewVault(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
}
