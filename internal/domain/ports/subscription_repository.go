package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/kevin07696/subscription-service/internal/domain/models"
)

// SubscriptionRepository defines the interface for subscription persistence.
// Lookups return a domain error with ErrorCodeSubscriptionNotFound when no
// row matches; Create returns ErrorCodeSubscriptionDuplicate when the
// (payment_method, payment_id) pair is taken.
type SubscriptionRepository interface {
	// Create inserts a new subscription
	Create(ctx context.Context, tx DBTX, subscription *models.Subscription) error

	// GetByID retrieves a subscription by its ID
	GetByID(ctx context.Context, db DBTX, id uuid.UUID) (*models.Subscription, error)

	// GetByIDForUpdate retrieves a subscription and locks the row until tx ends
	GetByIDForUpdate(ctx context.Context, tx DBTX, id uuid.UUID) (*models.Subscription, error)

	// GetByPaymentID retrieves a subscription by its provider-side identifier
	GetByPaymentID(ctx context.Context, db DBTX, method models.PaymentMethod, paymentID string) (*models.Subscription, error)

	// Update persists every mutable lifecycle field of the subscription
	Update(ctx context.Context, tx DBTX, subscription *models.Subscription) error

	// Delete physically removes a subscription
	Delete(ctx context.Context, tx DBTX, id uuid.UUID) error

	// CountByStatus aggregates subscription counts per status
	CountByStatus(ctx context.Context, db DBTX) (map[models.SubscriptionStatus]int64, error)

	// ListSweepCandidates lists expired subscriptions whose grace period ended
	// and pending cancellations whose paid period ended, as of asOf
	ListSweepCandidates(ctx context.Context, db DBTX, asOf time.Time, limit int) ([]*models.Subscription, error)
}

// ProvisioningDeliveryRepository stores provisioning notifications awaiting retry
type ProvisioningDeliveryRepository interface {
	Create(ctx context.Context, db DBTX, delivery *models.ProvisioningDelivery) error
	Update(ctx context.Context, db DBTX, delivery *models.ProvisioningDelivery) error
	ListDue(ctx context.Context, db DBTX, asOf time.Time, limit int) ([]*models.ProvisioningDelivery, error)
}
