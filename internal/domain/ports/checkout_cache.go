package ports

import (
	"context"
	"time"

	"github.com/kevin07696/subscription-service/internal/domain/models"
)

// CheckoutCache holds pending checkout intents until the provider confirms.
// Take is non-destructive so a browser redirect and a webhook can both
// resolve the same intent; Delete runs once a subscription is durably created.
type CheckoutCache interface {
	Put(ctx context.Context, sessionKey string, intent *models.CheckoutIntent, ttl time.Duration) error
	Take(ctx context.Context, sessionKey string) (*models.CheckoutIntent, error)
	Delete(ctx context.Context, sessionKey string) error
}
