package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kevin07696/subscription-service/internal/domain"
	"github.com/kevin07696/subscription-service/internal/domain/models"
	"github.com/kevin07696/subscription-service/internal/domain/ports"
	"github.com/kevin07696/subscription-service/pkg/observability"
	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces checkout intents
const DefaultKeyPrefix = "checkout:"

// CheckoutCache stores checkout intents as JSON with a Redis TTL, so every
// host sees the same intents
type CheckoutCache struct {
	client redis.UniversalClient
	prefix string
}

// NewCheckoutCache creates a cache using DefaultKeyPrefix
func NewCheckoutCache(client redis.UniversalClient) *CheckoutCache {
	return &CheckoutCache{client: client, prefix: DefaultKeyPrefix}
}

// WithPrefix overrides the key prefix
func (c *CheckoutCache) WithPrefix(prefix string) *CheckoutCache {
	c.prefix = prefix
	return c
}

func (c *CheckoutCache) key(sessionKey string) string {
	return c.prefix + sessionKey
}

// Put stores intent under sessionKey, replacing any previous value
func (c *CheckoutCache) Put(ctx context.Context, sessionKey string, intent *models.CheckoutIntent, ttl time.Duration) error {
	payload, err := json.Marshal(intent)
	if err != nil {
		return fmt.Errorf("marshal checkout intent: %w", err)
	}
	if err := c.client.Set(ctx, c.key(sessionKey), payload, ttl).Err(); err != nil {
		return fmt.Errorf("store checkout intent: %w", err)
	}
	return nil
}

// Take reads the intent without removing it
func (c *CheckoutCache) Take(ctx context.Context, sessionKey string) (*models.CheckoutIntent, error) {
	payload, err := c.client.Get(ctx, c.key(sessionKey)).Bytes()
	if errors.Is(err, redis.Nil) {
		observability.RecordCacheLookup("redis", "miss")
		return nil, fmt.Errorf("session %s: %w", redact(sessionKey), domain.ErrCheckoutNotFound)
	}
	if err != nil {
		observability.RecordCacheLookup("redis", "error")
		return nil, fmt.Errorf("read checkout intent: %w", err)
	}

	var intent models.CheckoutIntent
	if err := json.Unmarshal(payload, &intent); err != nil {
		return nil, fmt.Errorf("unmarshal checkout intent: %w", err)
	}
	observability.RecordCacheLookup("redis", "hit")
	return &intent, nil
}

// Delete removes the intent; a missing key is not an error
func (c *CheckoutCache) Delete(ctx context.Context, sessionKey string) error {
	if err := c.client.Del(ctx, c.key(sessionKey)).Err(); err != nil {
		return fmt.Errorf("delete checkout intent: %w", err)
	}
	return nil
}

func redact(key string) string {
	if len(key) <= 8 {
		return "***"
	}
	return key[:8] + "***"
}

var _ ports.CheckoutCache = (*CheckoutCache)(nil)
