package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kevin07696/subscription-service/internal/domain"
	"github.com/kevin07696/subscription-service/internal/domain/models"
	"github.com/kevin07696/subscription-service/internal/domain/ports"
	"github.com/kevin07696/subscription-service/pkg/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var checkoutCacheSize = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "checkout_cache_memory_entries",
	Help: "Current number of pending checkouts held in memory",
})

type cachedIntent struct {
	intent    models.CheckoutIntent
	expiresAt time.Time
}

// CheckoutCache holds pending checkout intents in a sync.Map with per-entry
// expiry. Reads never remove entries; a janitor drops expired ones.
type CheckoutCache struct {
	entries sync.Map // map[string]*cachedIntent
	logger  *zap.Logger
	now     func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// NewCheckoutCache creates a cache and starts its janitor, which runs every
// sweepEvery until Close is called
func NewCheckoutCache(logger *zap.Logger, sweepEvery time.Duration) *CheckoutCache {
	c := &CheckoutCache{
		logger: logger,
		now:    time.Now,
		stop:   make(chan struct{}),
	}
	if sweepEvery > 0 {
		go c.janitor(sweepEvery)
	}
	return c
}

// Put stores intent under sessionKey, replacing any previous intent
func (c *CheckoutCache) Put(ctx context.Context, sessionKey string, intent *models.CheckoutIntent, ttl time.Duration) error {
	if sessionKey == "" {
		return domain.NewDomainError(domain.ErrorCodeValidationMissingField, "session key is required")
	}
	c.entries.Store(sessionKey, &cachedIntent{
		intent:    *intent,
		expiresAt: c.now().Add(ttl),
	})
	c.updateSize()
	return nil
}

// Take returns the intent without removing it
func (c *CheckoutCache) Take(ctx context.Context, sessionKey string) (*models.CheckoutIntent, error) {
	val, ok := c.entries.Load(sessionKey)
	if !ok {
		observability.RecordCacheLookup("memory", "miss")
		return nil, fmt.Errorf("session %s: %w", redact(sessionKey), domain.ErrCheckoutNotFound)
	}

	cached := val.(*cachedIntent)
	if !c.now().Before(cached.expiresAt) {
		observability.RecordCacheLookup("memory", "miss")
		c.entries.CompareAndDelete(sessionKey, val)
		c.updateSize()
		return nil, fmt.Errorf("session %s expired: %w", redact(sessionKey), domain.ErrCheckoutNotFound)
	}

	observability.RecordCacheLookup("memory", "hit")
	intent := cached.intent
	return &intent, nil
}

// Delete removes the intent; deleting a missing key is not an error
func (c *CheckoutCache) Delete(ctx context.Context, sessionKey string) error {
	c.entries.Delete(sessionKey)
	c.updateSize()
	return nil
}

// Close stops the janitor
func (c *CheckoutCache) Close() error {
	c.stopOnce.Do(func() { close(c.stop) })
	return nil
}

func (c *CheckoutCache) janitor(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			if n := c.evictExpired(); n > 0 {
				c.logger.Debug("evicted expired checkout intents", zap.Int("count", n))
			}
		}
	}
}

func (c *CheckoutCache) evictExpired() int {
	now := c.now()
	evicted := 0
	c.entries.Range(func(key, value interface{}) bool {
		if !now.Before(value.(*cachedIntent).expiresAt) {
			if c.entries.CompareAndDelete(key, value) {
				evicted++
			}
		}
		return true
	})
	if evicted > 0 {
		c.updateSize()
	}
	return evicted
}

func (c *CheckoutCache) updateSize() {
	size := 0
	c.entries.Range(func(key, value interface{}) bool {
		size++
		return true
	})
	checkoutCacheSize.Set(float64(size))
}

// redact keeps session keys out of error strings that reach logs
func redact(key string) string {
	if len(key) <= 8 {
		return "***"
	}
	return key[:8] + "..."
}

var _ ports.CheckoutCache = (*CheckoutCache)(nil)
