package models

import (
	"time"

	"github.com/google/uuid"
)

// ProvisioningAction is the instruction sent to the provisioning system
type ProvisioningAction string

const (
	ProvisioningActivate   ProvisioningAction = "activate"
	ProvisioningDeactivate ProvisioningAction = "deactivate"
)

// DeliveryStatus tracks a provisioning notification in the outbox
type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
)

// ProvisioningDelivery is a notification that failed at least once and is
// waiting to be retried
type ProvisioningDelivery struct {
	ID             uuid.UUID
	SubscriptionID uuid.UUID
	Action         ProvisioningAction
	Payload        []byte
	Status         DeliveryStatus
	Attempts       int
	LastError      string
	NextRetryAt    *time.Time
	DeliveredAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
