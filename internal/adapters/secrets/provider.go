// Package secrets resolves settings such as gateway credentials from the
// environment or a secret store
package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/kevin07696/subscription-service/internal/domain/ports"
	"github.com/kevin07696/subscription-service/pkg/timeutil"
	"go.uber.org/zap"
)

// ErrNotFound is returned when a provider has no value for a key
var ErrNotFound = errors.New("setting not found")

// EnvProvider reads settings from environment variables. The key
// "paypal.client_secret" with prefix "SUBS" is read from SUBS_PAYPAL_CLIENT_SECRET.
type EnvProvider struct {
	prefix string
	lookup func(string) (string, bool)
}

// NewEnvProvider creates an environment-backed provider
func NewEnvProvider(prefix string) *EnvProvider {
	return &EnvProvider{prefix: prefix, lookup: os.LookupEnv}
}

// Get returns the variable for key, or ErrNotFound if it is unset or empty
func (p *EnvProvider) Get(ctx context.Context, key string) (string, error) {
	name := EnvName(p.prefix, key)
	if v, ok := p.lookup(name); ok && v != "" {
		return v, nil
	}
	return "", fmt.Errorf("%s: %w", name, ErrNotFound)
}

// EnvName converts a dotted setting key into an environment variable name
func EnvName(prefix, key string) string {
	name := strings.ToUpper(strings.NewReplacer(".", "_", "-", "_", "/", "_").Replace(key))
	if prefix == "" {
		return name
	}
	return strings.ToUpper(prefix) + "_" + name
}

// ChainProvider asks each provider in order and returns the first value found
type ChainProvider []ports.SettingsProvider

func (c ChainProvider) Get(ctx context.Context, key string) (string, error) {
	for _, p := range c {
		v, err := p.Get(ctx, key)
		if err == nil {
			return v, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return "", err
		}
	}
	return "", fmt.Errorf("%s: %w", key, ErrNotFound)
}

// CachedProvider memoizes another provider's values for a TTL. Misses and
// errors are not cached.
type CachedProvider struct {
	inner  ports.SettingsProvider
	ttl    time.Duration
	clock  timeutil.Clock
	logger *zap.Logger

	mu      sync.RWMutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	value     string
	expiresAt time.Time
}

// NewCachedProvider wraps inner with a TTL cache
func NewCachedProvider(inner ports.SettingsProvider, ttl time.Duration, logger *zap.Logger) *CachedProvider {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedProvider{
		inner:   inner,
		ttl:     ttl,
		clock:   timeutil.SystemClock{},
		logger:  logger,
		entries: make(map[string]cacheEntry),
	}
}

// WithClock replaces the wall clock, for tests
func (c *CachedProvider) WithClock(clock timeutil.Clock) *CachedProvider {
	c.clock = clock
	return c
}

func (c *CachedProvider) Get(ctx context.Context, key string) (string, error) {
	now := c.clock.Now()

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && now.Before(entry.expiresAt) {
		return entry.value, nil
	}

	v, err := c.inner.Get(ctx, key)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.entries[key] = cacheEntry{value: v, expiresAt: now.Add(c.ttl)}
	c.mu.Unlock()

	c.logger.Debug("setting cached", zap.String("key", key), zap.Duration("ttl", c.ttl))
	return v, nil
}

// Invalidate drops key from the cache
func (c *CachedProvider) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Lookup returns the value for key or fallback when it is not set. Errors
// other than not-found are returned.
func Lookup(ctx context.Context, p ports.SettingsProvider, key, fallback string) (string, error) {
	v, err := p.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return fallback, nil
	}
	return v, err
}

var (
	_ ports.SettingsProvider = (*EnvProvider)(nil)
	_ ports.SettingsProvider = ChainProvider(nil)
	_ ports.SettingsProvider = (*CachedProvider)(nil)
)
