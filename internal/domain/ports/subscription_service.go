package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/kevin07696/subscription-service/internal/domain/models"
	"github.com/shopspring/decimal"
)

// SubscriptionService is the lifecycle API consumed by the HTTP handlers
type SubscriptionService interface {
	// CreateSubscription starts a checkout at the provider and stores the
	// pending intent; no subscription exists until the provider confirms
	CreateSubscription(ctx context.Context, req ServiceCreateSubscriptionRequest) (*CheckoutResponse, error)

	// ConfirmCheckout materializes the subscription for a redirect that
	// returned from the provider's approval page
	ConfirmCheckout(ctx context.Context, sessionKey string) (*models.Subscription, error)

	// GetSubscription retrieves a subscription by ID
	GetSubscription(ctx context.Context, id uuid.UUID) (*models.Subscription, error)

	// Stats counts subscriptions per status
	Stats(ctx context.Context) (map[models.SubscriptionStatus]int64, error)

	Cancel(ctx context.Context, id uuid.UUID) (*ActionResult, error)
	ForceCancel(ctx context.Context, id uuid.UUID) (*ActionResult, error)
	Resume(ctx context.Context, id uuid.UUID) (*ActionResult, error)
	Activate(ctx context.Context, id uuid.UUID) (*ActionResult, error)
	Delete(ctx context.Context, id uuid.UUID) (*ActionResult, error)

	// SweepExpired cancels every subscription whose grace or paid period
	// ended before now and returns their ids
	SweepExpired(ctx context.Context, now time.Time) ([]uuid.UUID, error)
}

// ServiceCreateSubscriptionRequest represents a request to begin checkout
type ServiceCreateSubscriptionRequest struct {
	UserID        string               `json:"user_id" validate:"required"`
	ApplicationID string               `json:"application_id" validate:"required"`
	PaymentMethod models.PaymentMethod `json:"payment_method" validate:"required,oneof=paypal north"`
	Plan          models.Plan          `json:"plan" validate:"required"`
	Customer      models.CustomerData  `json:"customer" validate:"required"`
	TaxAmount     decimal.Decimal      `json:"tax_amount"`
}

// CheckoutResponse is where the buyer must go to approve the subscription
type CheckoutResponse struct {
	CheckoutURL          string `json:"checkout_url"`
	RemoteSubscriptionID string `json:"remote_subscription_id"`
	SessionKey           string `json:"session_key"`
}

// ActionResult is the outcome of an admin lifecycle action. RemoteErr
// carries a failed provider follow-up; the local change is kept regardless.
type ActionResult struct {
	Success      bool
	Message      string
	Subscription *models.Subscription
	RemoteErr    error
}
