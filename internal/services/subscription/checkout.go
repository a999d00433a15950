package subscription

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kevin07696/subscription-service/internal/domain"
	"github.com/kevin07696/subscription-service/internal/domain/models"
	"github.com/kevin07696/subscription-service/internal/domain/ports"
	"github.com/kevin07696/subscription-service/pkg/observability"
)

// CreateSubscription opens a remote subscription at the provider and stores
// the pending intent keyed by a fresh session key. The subscription record
// is created later, when the provider confirms.
func (s *Service) CreateSubscription(ctx context.Context, req ports.ServiceCreateSubscriptionRequest) (*ports.CheckoutResponse, error) {
	if !req.PaymentMethod.Valid() || req.PaymentMethod == models.PaymentMethodManual {
		return nil, domain.NewDomainError(domain.ErrorCodeValidationFailed,
			fmt.Sprintf("payment method %q does not support checkout", req.PaymentMethod))
	}
	if !req.Plan.BillingFrequency.Valid() {
		return nil, domain.NewDomainError(domain.ErrorCodeValidationFailed,
			fmt.Sprintf("unsupported billing frequency %q", req.Plan.BillingFrequency))
	}
	if !req.Plan.Amount.IsPositive() {
		return nil, domain.NewDomainError(domain.ErrorCodeValidationFailed, "plan amount must be positive")
	}

	gateway, err := s.gatewayFor(req.PaymentMethod)
	if err != nil {
		return nil, err
	}

	sessionKey, err := newSessionKey()
	if err != nil {
		return nil, fmt.Errorf("generate session key: %w", err)
	}

	total := req.Plan.Amount.Add(req.TaxAmount)

	providerCtx, cancel := s.cfg.Timeouts.ProviderContext(ctx)
	defer cancel()

	started := time.Now()
	remote, err := gateway.CreateRemoteSubscription(providerCtx, ports.RemoteSubscriptionRequest{
		Plan:          req.Plan,
		Customer:      req.Customer,
		TotalAmount:   total.StringFixed(2),
		SuccessURL:    withSession(s.cfg.ReturnURL, sessionKey),
		CancelURL:     s.cfg.CancelURL,
		CorrelationID: sessionKey,
	})
	observability.ObserveGatewayCall(string(req.PaymentMethod), "create", started, err)
	if err != nil {
		s.logger.Error("remote subscription creation failed",
			ports.String("user_id", req.UserID),
			ports.String("payment_method", string(req.PaymentMethod)),
			ports.Err(err))
		return nil, fmt.Errorf("create remote subscription: %w", err)
	}

	intent := &models.CheckoutIntent{
		SessionKey:    sessionKey,
		UserID:        req.UserID,
		ApplicationID: req.ApplicationID,
		PaymentMethod: req.PaymentMethod,
		RemoteID:      remote.RemoteID,
		Plan:          req.Plan,
		Customer:      req.Customer,
		TaxAmount:     req.TaxAmount,
		TotalAmount:   total,
		CreatedAt:     s.clock.Now(),
	}
	if err := s.cache.Put(ctx, sessionKey, intent, s.cfg.CheckoutTTL); err != nil {
		return nil, fmt.Errorf("store checkout intent: %w", err)
	}

	s.logger.Info("checkout started",
		ports.String("user_id", req.UserID),
		ports.String("payment_method", string(req.PaymentMethod)),
		ports.String("remote_id", remote.RemoteID))

	return &ports.CheckoutResponse{
		CheckoutURL:          remote.ApprovalURL,
		RemoteSubscriptionID: remote.RemoteID,
		SessionKey:           sessionKey,
	}, nil
}

// ConfirmCheckout handles the buyer's return from the approval page. The
// subscription is only created once the provider reports it active.
func (s *Service) ConfirmCheckout(ctx context.Context, sessionKey string) (*models.Subscription, error) {
	intent, err := s.cache.Take(ctx, sessionKey)
	if err != nil {
		return nil, err
	}

	// the webhook may have won the race
	if existing, err := s.FindByPaymentID(ctx, intent.PaymentMethod, intent.RemoteID); err == nil {
		return existing, nil
	} else if !domain.IsNotFoundError(err) {
		return nil, err
	}

	gateway, err := s.gatewayFor(intent.PaymentMethod)
	if err != nil {
		return nil, err
	}

	providerCtx, cancel := s.cfg.Timeouts.ProviderContext(ctx)
	started := time.Now()
	status, err := gateway.FetchRemoteStatus(providerCtx, intent.RemoteID)
	cancel()
	observability.ObserveGatewayCall(string(intent.PaymentMethod), "fetch_status", started, err)
	if err != nil {
		return nil, fmt.Errorf("fetch remote status: %w", err)
	}
	if status != ports.RemoteStatusActive {
		return nil, domain.NewDomainError(domain.ErrorCodeValidationFailed,
			fmt.Sprintf("remote subscription is %s", status)).
			WithDetail("remote_id", intent.RemoteID)
	}

	sub, _, err := s.Materialize(ctx, intent.PaymentMethod, intent.RemoteID, sessionKey)
	return sub, err
}

// Materialize creates the subscription for a confirmed remote subscription
// from its pending checkout intent. Concurrent calls for the same remote id
// share one execution; the store's unique index covers other hosts. It
// reports whether this call created the record.
//
// The shared execution is detached from the caller's cancellation and bounded
// by its own timeout, so a dropped redirect cannot fail a joined webhook.
func (s *Service) Materialize(ctx context.Context, method models.PaymentMethod, remoteID, sessionKey string) (*models.Subscription, bool, error) {
	type result struct {
		sub     *models.Subscription
		created bool
	}

	v, err, _ := s.create.Do(string(method)+":"+remoteID, func() (interface{}, error) {
		sharedCtx, cancel := s.cfg.Timeouts.ProviderContext(context.WithoutCancel(ctx))
		defer cancel()

		sub, created, err := s.materialize(sharedCtx, method, remoteID, sessionKey)
		return result{sub: sub, created: created}, err
	})
	if err != nil {
		return nil, false, err
	}
	r := v.(result)
	return r.sub, r.created, nil
}

func (s *Service) materialize(ctx context.Context, method models.PaymentMethod, remoteID, sessionKey string) (*models.Subscription, bool, error) {
	if existing, err := s.FindByPaymentID(ctx, method, remoteID); err == nil {
		return existing, false, nil
	} else if !domain.IsNotFoundError(err) {
		return nil, false, err
	}

	intent, err := s.cache.Take(ctx, sessionKey)
	if err != nil {
		return nil, false, err
	}
	if intent.PaymentMethod != method || (intent.RemoteID != "" && intent.RemoteID != remoteID) {
		return nil, false, domain.NewDomainError(domain.ErrorCodeValidationFailed,
			"checkout intent does not match the confirmed remote subscription").
			WithDetail("remote_id", remoteID)
	}

	sub := newFromIntent(intent, remoteID, s.clock.Now())

	created := true
	err = s.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		err := s.subRepo.Create(ctx, tx, sub)
		if errors.Is(err, domain.ErrSubscriptionDuplicate) || domain.IsDomainError(err, domain.ErrorCodeSubscriptionDuplicate) {
			created = false
			return nil
		}
		return err
	})
	if err != nil {
		return nil, false, fmt.Errorf("create subscription: %w", err)
	}

	if !created {
		existing, err := s.FindByPaymentID(ctx, method, remoteID)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}

	if err := s.cache.Delete(ctx, sessionKey); err != nil {
		s.logger.Warn("checkout intent not deleted",
			ports.String("subscription_id", sub.ID.String()),
			ports.Err(err))
	}

	observability.RecordTransition("provider_activated", "", string(sub.Status), "created")
	s.logger.Info("subscription created",
		ports.String("subscription_id", sub.ID.String()),
		ports.String("payment_method", string(method)),
		ports.String("payment_id", remoteID),
		ports.String("user_id", sub.UserID))

	s.notify(ctx, models.ProvisioningActivate, sub)
	s.publish(ctx, sub)

	return sub, true, nil
}

func newFromIntent(intent *models.CheckoutIntent, remoteID string, now time.Time) *models.Subscription {
	end := models.CalculateEndDate(now, intent.Plan.BillingFrequency)
	return &models.Subscription{
		ID:                 uuid.New(),
		UserID:             intent.UserID,
		ApplicationID:      intent.ApplicationID,
		PlanID:             intent.Plan.ID,
		ExternalPlanID:     intent.Plan.ExternalPlanID,
		PaymentMethod:      intent.PaymentMethod,
		PaymentID:          remoteID,
		Status:             models.SubStatusActive,
		CancellationSource: models.CancellationSourceNone,
		PaymentStatus:      models.PaymentStatusPaid,
		StartDate:          now,
		EndDate:            &end,
		NextBillingDate:    &end,
		Amount:             intent.Plan.Amount,
		TaxAmount:          intent.TaxAmount,
		TotalAmount:        intent.TotalAmount,
		Currency:           intent.Plan.Currency,
		BillingFrequency:   intent.Plan.BillingFrequency,
		CustomerData:       intent.Customer,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

func newSessionKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func withSession(base, sessionKey string) string {
	if base == "" {
		return ""
	}
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	q := u.Query()
	q.Set("session", sessionKey)
	u.RawQuery = q.Encode()
	return u.String()
}
