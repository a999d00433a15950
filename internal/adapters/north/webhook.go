package north

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/kevin07696/subscription-service/internal/domain"
	"github.com/kevin07696/subscription-service/internal/domain/models"
	"github.com/kevin07696/subscription-service/internal/domain/ports"
	"github.com/kevin07696/subscription-service/pkg/timeutil"
)

// WebhookPath is the endpoint string signed into webhook signatures
const WebhookPath = "/webhook/north"

// WebhookEnvelope is the body North posts for recurring billing events
type WebhookEnvelope struct {
	EventID      string `json:"eventId"`
	EventType    string `json:"eventType"`
	CreatedAt    string `json:"createdAt"`
	Subscription struct {
		ID              json.Number `json:"id"`
		Status          string      `json:"status"`
		ReferenceID     string      `json:"referenceId"`
		NextBillingDate string      `json:"nextBillingDate"`
		FailedPayments  int         `json:"failedPayments"`
	} `json:"subscription"`
	Payment *struct {
		ID           string `json:"id"`
		Date         string `json:"date"`
		Response     string `json:"response"`
		ResponseText string `json:"responseText"`
	} `json:"payment,omitempty"`
}

// WebhookDecoder verifies and decodes North callbacks
type WebhookDecoder struct {
	config AuthConfig
}

// NewWebhookDecoder creates a decoder keyed by the merchant's EPI key
func NewWebhookDecoder(config AuthConfig) *WebhookDecoder {
	return &WebhookDecoder{config: config}
}

func (d *WebhookDecoder) Method() models.PaymentMethod {
	return models.PaymentMethodNorth
}

// VerifyWebhook checks X-North-Signature against the HMAC of the raw body
func (d *WebhookDecoder) VerifyWebhook(ctx context.Context, headers http.Header, body []byte) error {
	if !ValidateSignature(d.config.EPIKey, WebhookPath, body, headers.Get(HeaderWebhookSignature)) {
		return domain.ErrInvalidSignature
	}
	return nil
}

// DecodeWebhook maps a North event to a provider-neutral event
func (d *WebhookDecoder) DecodeWebhook(body []byte) (*ports.WebhookEvent, error) {
	var env WebhookEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, domain.WrapError(domain.ErrorCodeWebhookMalformed, "invalid webhook body", err)
	}
	if env.EventType == "" {
		return nil, domain.NewDomainError(domain.ErrorCodeWebhookMalformed, "webhook has no eventType")
	}

	ev := &ports.WebhookEvent{
		ID:             env.EventID,
		ProviderType:   env.EventType,
		RemoteID:       env.Subscription.ID.String(),
		CorrelationID:  env.Subscription.ReferenceID,
		RemoteStatus:   mapStatusFromAPI(env.Subscription.Status),
		FailedPayments: env.Subscription.FailedPayments,
	}
	ev.NextBillingTime = parseTime(env.Subscription.NextBillingDate)
	if env.Payment != nil {
		ev.PaymentTime = parseTime(env.Payment.Date)
	}
	if ev.PaymentTime == nil {
		ev.PaymentTime = parseTime(env.CreatedAt)
	}

	switch env.EventType {
	case "subscription.activated", "subscription.resumed":
		ev.Kind = ports.EventProviderActivated
	case "subscription.paused":
		ev.Kind = ports.EventProviderStatusSuspended
	case "subscription.cancelled", "subscription.expired":
		ev.Kind = ports.EventProviderStatusCancelled
	case "payment.succeeded":
		ev.Kind = ports.EventProviderPaymentSucceeded
	case "payment.failed":
		ev.Kind = ports.EventProviderPaymentFailed
	case "payment.refunded", "payment.chargeback":
		ev.Kind = ports.EventProviderRefunded
	default:
		ev.Kind = ports.EventIgnored
	}
	return ev, nil
}

// parseTime accepts RFC3339 timestamps and bare dates; anything else is nil
func parseTime(value string) *time.Time {
	if t, err := timeutil.ParseTimestamp(value); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return &t
	}
	return nil
}

var _ ports.WebhookDecoder = (*WebhookDecoder)(nil)
