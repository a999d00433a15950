package ports

import (
	"context"
	"net/http"
	"time"

	"github.com/kevin07696/subscription-service/internal/domain/models"
)

// RemoteStatus is the provider's view of a remote subscription
type RemoteStatus string

const (
	RemoteStatusApprovalPending RemoteStatus = "approval_pending"
	RemoteStatusActive          RemoteStatus = "active"
	RemoteStatusSuspended       RemoteStatus = "suspended"
	RemoteStatusCancelled       RemoteStatus = "cancelled"
	RemoteStatusExpired         RemoteStatus = "expired"
	RemoteStatusUnknown         RemoteStatus = "unknown"
)

// RemoteSubscriptionRequest carries what a provider needs to open a remote
// subscription and send the buyer to its approval page
type RemoteSubscriptionRequest struct {
	Plan          models.Plan
	Customer      models.CustomerData
	TotalAmount   string
	SuccessURL    string
	CancelURL     string
	CorrelationID string // echoed back by the provider as custom_id
}

// RemoteSubscription is the provider's answer to a create request
type RemoteSubscription struct {
	RemoteID    string
	ApprovalURL string
	Status      RemoteStatus
}

// Gateway is implemented once per payment provider. Calls are pure boundary
// calls: safe to retry and never mutate local state. Failures are returned as
// *errors.GatewayError.
type Gateway interface {
	Method() models.PaymentMethod
	CreateRemoteSubscription(ctx context.Context, req RemoteSubscriptionRequest) (*RemoteSubscription, error)
	CancelRemote(ctx context.Context, remoteID, reason string) error
	SuspendRemote(ctx context.Context, remoteID, reason string) error
	ReactivateRemote(ctx context.Context, remoteID, reason string) error
	FetchRemoteStatus(ctx context.Context, remoteID string) (RemoteStatus, error)
}

// EventKind classifies a provider webhook into a lifecycle event
type EventKind string

const (
	EventProviderActivated        EventKind = "provider_activated"
	EventProviderStatusActive     EventKind = "provider_status_active"
	EventProviderStatusSuspended  EventKind = "provider_status_suspended"
	EventProviderStatusCancelled  EventKind = "provider_status_cancelled"
	EventProviderPaymentFailed    EventKind = "provider_payment_failed"
	EventProviderPaymentSucceeded EventKind = "provider_payment_succeeded"
	EventProviderRefunded         EventKind = "provider_refunded"
	EventIgnored                  EventKind = "ignored"
)

// WebhookEvent is a provider callback decoded into provider-neutral terms
type WebhookEvent struct {
	ID              string
	ProviderType    string // raw provider event type, for logs
	Kind            EventKind
	RemoteID        string
	CorrelationID   string
	RemoteStatus    RemoteStatus
	NextBillingTime *time.Time
	PaymentTime     *time.Time
	FailedPayments  int
}

// WebhookDecoder verifies and decodes a provider's inbound callbacks
type WebhookDecoder interface {
	Method() models.PaymentMethod
	// VerifyWebhook returns domain.ErrInvalidSignature-coded errors for
	// unauthenticated payloads and other errors when verification could not run
	VerifyWebhook(ctx context.Context, headers http.Header, body []byte) error
	// DecodeWebhook returns a WEBHOOK_MALFORMED domain error for unusable payloads
	DecodeWebhook(body []byte) (*WebhookEvent, error)
}
