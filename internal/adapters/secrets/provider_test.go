package secrets

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kevin07696/subscription-service/pkg/timeutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingProvider struct {
	values map[string]string
	calls  int
}

func (p *countingProvider) Get(ctx context.Context, key string) (string, error) {
	p.calls++
	if v, ok := p.values[key]; ok {
		return v, nil
	}
	return "", ErrNotFound
}

type failingProvider struct{}

func (failingProvider) Get(ctx context.Context, key string) (string, error) {
	return "", errors.New("connection refused")
}

func TestEnvName(t *testing.T) {
	assert.Equal(t, "PAYPAL_CLIENT_SECRET", EnvName("", "paypal.client_secret"))
	assert.Equal(t, "SUBS_NORTH_EPI_KEY", EnvName("subs", "north.epi-key"))
	assert.Equal(t, "SUBS_PROVISIONING_SECRET", EnvName("SUBS", "provisioning/secret"))
}

func TestEnvProvider(t *testing.T) {
	p := NewEnvProvider("SUBS")
	p.lookup = func(name string) (string, bool) {
		env := map[string]string{"SUBS_PAYPAL_WEBHOOK_ID": "WH-1", "SUBS_EMPTY": ""}
		v, ok := env[name]
		return v, ok
	}

	v, err := p.Get(context.Background(), "paypal.webhook_id")
	require.NoError(t, err)
	assert.Equal(t, "WH-1", v)

	_, err = p.Get(context.Background(), "empty")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = p.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestChainProvider(t *testing.T) {
	first := &countingProvider{values: map[string]string{"a": "from-first"}}
	second := &countingProvider{values: map[string]string{"a": "from-second", "b": "from-second"}}
	chain := ChainProvider{first, second}

	v, err := chain.Get(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, "from-first", v)

	v, err = chain.Get(context.Background(), "b")
	require.NoError(t, err)
	assert.Equal(t, "from-second", v)

	_, err = chain.Get(context.Background(), "c")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = ChainProvider{failingProvider{}, second}.Get(context.Background(), "b")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestCachedProvider(t *testing.T) {
	inner := &countingProvider{values: map[string]string{"north.epi_key": "k1"}}
	clock := &timeutil.FixedClock{T: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}
	cached := NewCachedProvider(inner, time.Minute, zap.NewNop()).WithClock(clock)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		v, err := cached.Get(ctx, "north.epi_key")
		require.NoError(t, err)
		assert.Equal(t, "k1", v)
	}
	assert.Equal(t, 1, inner.calls)

	inner.values["north.epi_key"] = "k2"
	clock.T = clock.T.Add(2 * time.Minute)
	v, err := cached.Get(ctx, "north.epi_key")
	require.NoError(t, err)
	assert.Equal(t, "k2", v)
	assert.Equal(t, 2, inner.calls)

	inner.values["north.epi_key"] = "k3"
	cached.Invalidate("north.epi_key")
	v, err = cached.Get(ctx, "north.epi_key")
	require.NoError(t, err)
	assert.Equal(t, "k3", v)

	_, err = cached.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, _ = cached.Get(ctx, "missing")
	assert.Equal(t, 5, inner.calls, "misses are not cached")
}

func TestLookup(t *testing.T) {
	p := &countingProvider{values: map[string]string{"paypal.base_url": "https://api-m.paypal.com"}}

	v, err := Lookup(context.Background(), p, "paypal.base_url", "sandbox")
	require.NoError(t, err)
	assert.Equal(t, "https://api-m.paypal.com", v)

	v, err = Lookup(context.Background(), p, "paypal.brand", "Acme")
	require.NoError(t, err)
	assert.Equal(t, "Acme", v)

	_, err = Lookup(context.Background(), failingProvider{}, "paypal.brand", "Acme")
	assert.Error(t, err)
}

func TestLocalFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "plain"), []byte("s3cret\n"), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wrapped"), []byte(`{"value":"wrapped-secret","tags":{"env":"dev"}}`), 0600))

	p := NewLocalFiles(dir, zap.NewNop())
	ctx := context.Background()

	v, err := p.Get(ctx, "plain")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", v)

	v, err = p.Get(ctx, "wrapped")
	require.NoError(t, err)
	assert.Equal(t, "wrapped-secret", v)

	_, err = p.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = p.Get(ctx, "../etc/passwd")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}
