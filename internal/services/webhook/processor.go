// Package webhook turns verified provider callbacks into lifecycle events
package webhook

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/kevin07696/subscription-service/internal/domain"
	"github.com/kevin07696/subscription-service/internal/domain/models"
	"github.com/kevin07696/subscription-service/internal/domain/ports"
	"github.com/kevin07696/subscription-service/internal/services/lifecycle"
	"github.com/kevin07696/subscription-service/pkg/observability"
)

// Outcome labels what a delivery did, for logs and the webhook counter
type Outcome string

const (
	OutcomeIgnored          Outcome = "ignored"
	OutcomeUnmatched        Outcome = "unmatched"
	OutcomeCreated          Outcome = "created"
	OutcomeApplied          Outcome = "applied"
	OutcomeNoOp             Outcome = "noop"
	OutcomeRejected         Outcome = "rejected"
	OutcomeDisabled         Outcome = "disabled"
	OutcomeInvalidSignature Outcome = "invalid_signature"
	OutcomeMalformed        Outcome = "malformed"
	OutcomeError            Outcome = "error"
)

// Subscriptions is the part of the subscription service the processor drives
type Subscriptions interface {
	FindByPaymentID(ctx context.Context, method models.PaymentMethod, paymentID string) (*models.Subscription, error)
	Materialize(ctx context.Context, method models.PaymentMethod, remoteID, sessionKey string) (*models.Subscription, bool, error)
	ApplyEvent(ctx context.Context, id uuid.UUID, ev lifecycle.Event) (lifecycle.Decision, error)
}

// Result describes a handled delivery
type Result struct {
	Outcome        Outcome
	Event          *ports.WebhookEvent
	SubscriptionID uuid.UUID
}

// Processor verifies, decodes and applies provider webhooks. Only gateways
// with a registered decoder are enabled.
type Processor struct {
	decoders map[models.PaymentMethod]ports.WebhookDecoder
	subs     Subscriptions
	logger   ports.Logger
}

// NewProcessor creates a processor for the given enabled gateways
func NewProcessor(subs Subscriptions, logger ports.Logger, decoders ...ports.WebhookDecoder) *Processor {
	byMethod := make(map[models.PaymentMethod]ports.WebhookDecoder, len(decoders))
	for _, d := range decoders {
		byMethod[d.Method()] = d
	}
	return &Processor{decoders: byMethod, subs: subs, logger: logger}
}

// Enabled reports whether webhooks are accepted for gateway
func (p *Processor) Enabled(gateway string) bool {
	_, ok := p.decoders[models.PaymentMethod(gateway)]
	return ok
}

// Handle processes one raw delivery. A nil error means the delivery should be
// acknowledged, including deliveries that matched nothing. Errors carry
// domain codes: GATEWAY_DISABLED, WEBHOOK_INVALID_SIGNATURE and
// WEBHOOK_MALFORMED for rejected input, anything else for internal failures.
func (p *Processor) Handle(ctx context.Context, gateway string, headers http.Header, body []byte) (*Result, error) {
	res, err := p.handle(ctx, gateway, headers, body)

	event := "unknown"
	if res.Event != nil {
		event = string(res.Event.Kind)
	}
	observability.RecordWebhookEvent(gateway, event, string(res.Outcome))

	return res, err
}

func (p *Processor) handle(ctx context.Context, gateway string, headers http.Header, body []byte) (*Result, error) {
	method := models.PaymentMethod(gateway)
	decoder, ok := p.decoders[method]
	if !ok {
		p.logger.Warn("webhook for disabled gateway", ports.String("gateway", gateway))
		return &Result{Outcome: OutcomeDisabled}, domain.ErrGatewayDisabled
	}

	if err := decoder.VerifyWebhook(ctx, headers, body); err != nil {
		p.logger.Warn("webhook signature rejected",
			ports.String("gateway", gateway),
			ports.Err(err))
		if domain.IsDomainError(err, domain.ErrorCodeWebhookInvalidSignature) {
			return &Result{Outcome: OutcomeInvalidSignature}, err
		}
		return &Result{Outcome: OutcomeError}, fmt.Errorf("verify webhook: %w", err)
	}

	ev, err := decoder.DecodeWebhook(body)
	if err != nil {
		p.logger.Warn("webhook payload rejected",
			ports.String("gateway", gateway),
			ports.Err(err))
		return &Result{Outcome: OutcomeMalformed}, err
	}

	res := &Result{Event: ev}
	fields := []ports.Field{
		ports.String("gateway", gateway),
		ports.String("event_id", ev.ID),
		ports.String("event_type", ev.ProviderType),
		ports.String("remote_id", ev.RemoteID),
	}

	eventType, ok := lifecycle.FromWebhook(ev.Kind)
	if !ok || ev.RemoteID == "" {
		p.logger.Debug("webhook event acknowledged without action", fields...)
		res.Outcome = OutcomeIgnored
		return res, nil
	}

	sub, err := p.subs.FindByPaymentID(ctx, method, ev.RemoteID)
	switch {
	case err == nil:
	case domain.IsNotFoundError(err):
		if eventType == lifecycle.EventProviderActivated {
			return p.materialize(ctx, method, ev, res, fields)
		}
		p.logger.Info("webhook for unknown subscription", fields...)
		res.Outcome = OutcomeUnmatched
		return res, nil
	default:
		res.Outcome = OutcomeError
		return res, fmt.Errorf("lookup subscription: %w", err)
	}

	res.SubscriptionID = sub.ID
	d, err := p.subs.ApplyEvent(ctx, sub.ID, lifecycle.Event{
		Type:            eventType,
		NextBillingTime: ev.NextBillingTime,
		PaymentTime:     ev.PaymentTime,
		FailedPayments:  ev.FailedPayments,
		RemoteStatus:    ev.RemoteStatus,
	})
	if err != nil {
		if domain.IsNotFoundError(err) {
			// deleted between lookup and lock
			res.Outcome = OutcomeUnmatched
			return res, nil
		}
		res.Outcome = OutcomeError
		return res, fmt.Errorf("apply %s: %w", eventType, err)
	}

	res.Outcome = Outcome(d.Outcome())
	p.logger.Info("webhook processed", append(fields,
		ports.String("subscription_id", sub.ID.String()),
		ports.String("outcome", d.Outcome()))...)
	return res, nil
}

func (p *Processor) materialize(ctx context.Context, method models.PaymentMethod, ev *ports.WebhookEvent, res *Result, fields []ports.Field) (*Result, error) {
	sub, created, err := p.subs.Materialize(ctx, method, ev.RemoteID, ev.CorrelationID)
	if err != nil {
		if domain.IsNotFoundError(err) || domain.IsValidationError(err) {
			// the intent expired or belongs to another checkout; nothing to create
			p.logger.Warn("activation without a matching checkout", append(fields,
				ports.String("session_key", redact(ev.CorrelationID)),
				ports.Err(err))...)
			res.Outcome = OutcomeUnmatched
			return res, nil
		}
		res.Outcome = OutcomeError
		return res, fmt.Errorf("materialize subscription: %w", err)
	}

	res.SubscriptionID = sub.ID
	res.Outcome = OutcomeNoOp
	if created {
		res.Outcome = OutcomeCreated
	}
	p.logger.Info("webhook processed", append(fields,
		ports.String("subscription_id", sub.ID.String()),
		ports.String("outcome", string(res.Outcome)))...)
	return res, nil
}

func redact(key string) string {
	if len(key) <= 8 {
		return "***"
	}
	return key[:8] + "***"
}
