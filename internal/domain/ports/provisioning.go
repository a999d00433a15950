package ports

import (
	"context"

	"github.com/kevin07696/subscription-service/internal/domain/models"
)

// ProvisioningNotifier grants or revokes the purchased capability in the
// downstream provisioning system. Failures never roll back the local
// transition that triggered the call.
type ProvisioningNotifier interface {
	Notify(ctx context.Context, action models.ProvisioningAction, sub *models.Subscription) error
}

// EventPublisher emits notify(status, subscription) events for the
// notification (email) pipeline
type EventPublisher interface {
	Publish(ctx context.Context, status models.SubscriptionStatus, sub *models.Subscription) error
}
