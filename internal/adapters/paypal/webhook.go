package paypal

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/kevin07696/subscription-service/internal/domain"
	"github.com/kevin07696/subscription-service/internal/domain/ports"
	"github.com/kevin07696/subscription-service/pkg/timeutil"
)

// Transmission headers PayPal attaches to every webhook delivery
const (
	HeaderAuthAlgo         = "PAYPAL-AUTH-ALGO"
	HeaderCertURL          = "PAYPAL-CERT-URL"
	HeaderTransmissionID   = "PAYPAL-TRANSMISSION-ID"
	HeaderTransmissionSig  = "PAYPAL-TRANSMISSION-SIG"
	HeaderTransmissionTime = "PAYPAL-TRANSMISSION-TIME"
)

const verifyPath = "/v1/notifications/verify-webhook-signature"

type verifyRequest struct {
	AuthAlgo         string          `json:"auth_algo"`
	CertURL          string          `json:"cert_url"`
	TransmissionID   string          `json:"transmission_id"`
	TransmissionSig  string          `json:"transmission_sig"`
	TransmissionTime string          `json:"transmission_time"`
	WebhookID        string          `json:"webhook_id"`
	WebhookEvent     json.RawMessage `json:"webhook_event"`
}

type verifyResponse struct {
	VerificationStatus string `json:"verification_status"`
}

// VerifyWebhook asks PayPal to verify the transmission signature. Missing
// headers and a FAILURE verdict are invalid signatures; a verification call
// that could not complete is returned as a gateway error.
func (g *Gateway) VerifyWebhook(ctx context.Context, headers http.Header, body []byte) error {
	if g.cfg.WebhookID == "" {
		return domain.NewDomainError(domain.ErrorCodeGatewayError, "paypal webhook id is not configured")
	}

	req := verifyRequest{
		AuthAlgo:         headers.Get(HeaderAuthAlgo),
		CertURL:          headers.Get(HeaderCertURL),
		TransmissionID:   headers.Get(HeaderTransmissionID),
		TransmissionSig:  headers.Get(HeaderTransmissionSig),
		TransmissionTime: headers.Get(HeaderTransmissionTime),
		WebhookID:        g.cfg.WebhookID,
	}
	if req.AuthAlgo == "" || req.CertURL == "" || req.TransmissionID == "" || req.TransmissionSig == "" || req.TransmissionTime == "" {
		return domain.ErrInvalidSignature
	}
	if !json.Valid(body) {
		return domain.NewDomainError(domain.ErrorCodeWebhookMalformed, "webhook body is not JSON")
	}
	req.WebhookEvent = body

	var resp verifyResponse
	if err := g.do(ctx, http.MethodPost, verifyPath, nil, req, &resp); err != nil {
		return domain.WrapError(domain.ErrorCodeGatewayError, "webhook verification unavailable", err)
	}
	if resp.VerificationStatus != "SUCCESS" {
		g.logger.Warn("paypal webhook signature rejected",
			ports.String("transmission_id", req.TransmissionID),
			ports.String("verification_status", resp.VerificationStatus))
		return domain.ErrInvalidSignature
	}
	return nil
}

// webhookEnvelope is the outer shape of every PayPal webhook
type webhookEnvelope struct {
	ID           string          `json:"id"`
	EventType    string          `json:"event_type"`
	ResourceType string          `json:"resource_type"`
	CreateTime   string          `json:"create_time"`
	Resource     json.RawMessage `json:"resource"`
}

// saleResource is the resource of PAYMENT.SALE.* events
type saleResource struct {
	ID                 string `json:"id"`
	State              string `json:"state"`
	BillingAgreementID string `json:"billing_agreement_id"`
	CreateTime         string `json:"create_time"`
	UpdateTime         string `json:"update_time"`
	Custom             string `json:"custom"`
}

// DecodeWebhook maps a PayPal event to a provider-neutral event. Event
// types outside billing subscriptions and sales are returned as ignored.
func (g *Gateway) DecodeWebhook(body []byte) (*ports.WebhookEvent, error) {
	var env webhookEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, domain.WrapError(domain.ErrorCodeWebhookMalformed, "invalid webhook body", err)
	}
	if env.EventType == "" {
		return nil, domain.NewDomainError(domain.ErrorCodeWebhookMalformed, "webhook has no event_type")
	}

	ev := &ports.WebhookEvent{
		ID:           env.ID,
		ProviderType: env.EventType,
		Kind:         ports.EventIgnored,
	}

	switch env.EventType {
	case "BILLING.SUBSCRIPTION.ACTIVATED",
		"BILLING.SUBSCRIPTION.RE-ACTIVATED",
		"BILLING.SUBSCRIPTION.UPDATED",
		"BILLING.SUBSCRIPTION.SUSPENDED",
		"BILLING.SUBSCRIPTION.CANCELLED",
		"BILLING.SUBSCRIPTION.EXPIRED",
		"BILLING.SUBSCRIPTION.PAYMENT.FAILED":
		var res SubscriptionResource
		if err := json.Unmarshal(env.Resource, &res); err != nil {
			return nil, domain.WrapError(domain.ErrorCodeWebhookMalformed, "invalid subscription resource", err)
		}
		decodeSubscription(ev, env.EventType, res)

	case "PAYMENT.SALE.COMPLETED", "PAYMENT.SALE.REFUNDED", "PAYMENT.SALE.REVERSED":
		var res saleResource
		if err := json.Unmarshal(env.Resource, &res); err != nil {
			return nil, domain.WrapError(domain.ErrorCodeWebhookMalformed, "invalid sale resource", err)
		}
		ev.RemoteID = res.BillingAgreementID
		ev.PaymentTime = parseTime(res.CreateTime)
		if env.EventType == "PAYMENT.SALE.COMPLETED" {
			ev.Kind = ports.EventProviderPaymentSucceeded
		} else {
			ev.Kind = ports.EventProviderRefunded
		}
	}

	if ev.PaymentTime == nil && ev.Kind != ports.EventIgnored {
		ev.PaymentTime = parseTime(env.CreateTime)
	}
	return ev, nil
}

func decodeSubscription(ev *ports.WebhookEvent, eventType string, res SubscriptionResource) {
	ev.RemoteID = res.ID
	ev.CorrelationID = res.CustomID
	ev.RemoteStatus = mapStatus(res.Status)
	if res.BillingInfo != nil {
		ev.NextBillingTime = parseTime(res.BillingInfo.NextBillingTime)
		ev.FailedPayments = res.BillingInfo.FailedPaymentsCount
	}

	switch eventType {
	case "BILLING.SUBSCRIPTION.ACTIVATED", "BILLING.SUBSCRIPTION.RE-ACTIVATED":
		ev.Kind = ports.EventProviderActivated
	case "BILLING.SUBSCRIPTION.SUSPENDED":
		ev.Kind = ports.EventProviderStatusSuspended
	case "BILLING.SUBSCRIPTION.CANCELLED", "BILLING.SUBSCRIPTION.EXPIRED":
		ev.Kind = ports.EventProviderStatusCancelled
	case "BILLING.SUBSCRIPTION.PAYMENT.FAILED":
		ev.Kind = ports.EventProviderPaymentFailed
		if res.BillingInfo != nil && res.BillingInfo.LastFailedPayment != nil {
			ev.PaymentTime = parseTime(res.BillingInfo.LastFailedPayment.Time)
		}
	case "BILLING.SUBSCRIPTION.UPDATED":
		switch ev.RemoteStatus {
		case ports.RemoteStatusActive:
			ev.Kind = ports.EventProviderStatusActive
		case ports.RemoteStatusSuspended:
			ev.Kind = ports.EventProviderStatusSuspended
		case ports.RemoteStatusCancelled, ports.RemoteStatusExpired:
			ev.Kind = ports.EventProviderStatusCancelled
		}
	}
}

func parseTime(value string) *time.Time {
	t, err := timeutil.ParseTimestamp(value)
	if err != nil {
		return nil
	}
	return t
}

var _ ports.WebhookDecoder = (*Gateway)(nil)
