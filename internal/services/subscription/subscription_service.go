package subscription

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kevin07696/subscription-service/internal/domain"
	"github.com/kevin07696/subscription-service/internal/domain/models"
	"github.com/kevin07696/subscription-service/internal/domain/ports"
	"github.com/kevin07696/subscription-service/internal/services/lifecycle"
	"github.com/kevin07696/subscription-service/pkg/keylock"
	"github.com/kevin07696/subscription-service/pkg/observability"
	"github.com/kevin07696/subscription-service/pkg/resilience"
	"github.com/kevin07696/subscription-service/pkg/timeutil"
	"golang.org/x/sync/singleflight"
)

// Config tunes the subscription service
type Config struct {
	Policy         lifecycle.Policy
	CheckoutTTL    time.Duration
	ReturnURL      string // buyer lands here after approving; ?session=<key> is appended
	CancelURL      string
	SweepBatchSize int
	Timeouts       *resilience.TimeoutConfig
}

// DefaultConfig returns production defaults
func DefaultConfig() Config {
	return Config{
		Policy:         lifecycle.DefaultPolicy(),
		CheckoutTTL:    time.Hour,
		SweepBatchSize: 500,
		Timeouts:       resilience.DefaultTimeoutConfig(),
	}
}

// Service implements ports.SubscriptionService. Every status change goes
// through lifecycle.Transition while the per-subscription lock and the row
// lock are held; gateway and provisioning follow-ups run after both are
// released.
type Service struct {
	db        ports.DBPort
	subRepo   ports.SubscriptionRepository
	cache     ports.CheckoutCache
	gateways  map[models.PaymentMethod]ports.Gateway
	notifier  ports.ProvisioningNotifier
	publisher ports.EventPublisher
	logger    ports.Logger

	cfg    Config
	clock  timeutil.Clock
	locks  *keylock.KeyLock
	create singleflight.Group
}

// NewService creates a new subscription service
func NewService(
	db ports.DBPort,
	subRepo ports.SubscriptionRepository,
	cache ports.CheckoutCache,
	gateways []ports.Gateway,
	notifier ports.ProvisioningNotifier,
	publisher ports.EventPublisher,
	cfg Config,
	logger ports.Logger,
) *Service {
	if cfg.Timeouts == nil {
		cfg.Timeouts = resilience.DefaultTimeoutConfig()
	}
	if cfg.SweepBatchSize <= 0 {
		cfg.SweepBatchSize = 500
	}
	if cfg.CheckoutTTL <= 0 {
		cfg.CheckoutTTL = time.Hour
	}

	byMethod := make(map[models.PaymentMethod]ports.Gateway, len(gateways))
	for _, g := range gateways {
		byMethod[g.Method()] = g
	}

	return &Service{
		db:        db,
		subRepo:   subRepo,
		cache:     cache,
		gateways:  byMethod,
		notifier:  notifier,
		publisher: publisher,
		logger:    logger,
		cfg:       cfg,
		clock:     timeutil.SystemClock{},
		locks:     keylock.New(),
	}
}

// WithClock replaces the wall clock, for tests
func (s *Service) WithClock(c timeutil.Clock) *Service {
	s.clock = c
	return s
}

// GetSubscription retrieves a subscription by ID
func (s *Service) GetSubscription(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	return s.subRepo.GetByID(ctx, s.db.Executor(), id)
}

// FindByPaymentID looks a subscription up by its provider-side id
func (s *Service) FindByPaymentID(ctx context.Context, method models.PaymentMethod, paymentID string) (*models.Subscription, error) {
	return s.subRepo.GetByPaymentID(ctx, s.db.Executor(), method, paymentID)
}

// Stats counts subscriptions per status and refreshes the status gauge
func (s *Service) Stats(ctx context.Context) (map[models.SubscriptionStatus]int64, error) {
	counts, err := s.subRepo.CountByStatus(ctx, s.db.Executor())
	if err != nil {
		return nil, fmt.Errorf("count subscriptions: %w", err)
	}
	for _, status := range models.AllStatuses {
		observability.SetStatusCount(string(status), counts[status])
	}
	return counts, nil
}

// ApplyEvent runs a provider event through the state machine for the
// subscription with the given id
func (s *Service) ApplyEvent(ctx context.Context, id uuid.UUID, ev lifecycle.Event) (lifecycle.Decision, error) {
	d, sub, err := s.apply(ctx, id, ev, s.clock.Now())
	if err != nil {
		return d, err
	}
	// the provider already committed; a failed follow-up is only logged
	_ = s.followUp(ctx, d, sub, fmt.Sprintf("provider event %s", ev.Type))
	return d, nil
}

// apply is the single read-transition-write path. It returns the record as
// persisted after the decision.
func (s *Service) apply(ctx context.Context, id uuid.UUID, ev lifecycle.Event, now time.Time) (lifecycle.Decision, *models.Subscription, error) {
	var (
		decision lifecycle.Decision
		current  *models.Subscription
	)

	unlock := s.locks.Lock(id.String())
	err := s.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		sub, err := s.subRepo.GetByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}

		decision = lifecycle.Transition(sub, ev, s.cfg.Policy, now)
		if decision.Next == nil {
			current = sub
			return nil
		}

		if err := s.subRepo.Update(ctx, tx, decision.Next); err != nil {
			return fmt.Errorf("persist %s: %w", ev.Type, err)
		}
		current = decision.Next
		return nil
	})
	unlock()

	if err != nil {
		return decision, nil, err
	}

	observability.RecordTransition(string(ev.Type), string(decision.From), string(decision.To), decision.Outcome())

	fields := []ports.Field{
		ports.String("subscription_id", id.String()),
		ports.String("event", string(ev.Type)),
		ports.String("from", string(decision.From)),
		ports.String("to", string(decision.To)),
	}
	switch {
	case decision.Rejected:
		s.logger.Warn("transition rejected", append(fields, ports.String("reason", decision.Reason))...)
		return decision, current, nil
	case decision.NoOp:
		s.logger.Debug("transition is a no-op", append(fields, ports.String("reason", decision.Reason))...)
		return decision, current, nil
	}
	s.logger.Info("subscription transitioned", fields...)

	return decision, current, nil
}

// followUp performs the side effects of an applied decision. Failures are
// logged and never undo the persisted transition; a failed remote call is
// returned so admin callers can surface it.
func (s *Service) followUp(ctx context.Context, d lifecycle.Decision, sub *models.Subscription, reason string) error {
	if d.Next == nil {
		return nil
	}

	if d.Effects.ActivateProvisioning {
		s.notify(ctx, models.ProvisioningActivate, sub)
	}
	if d.Effects.DeactivateProvisioning {
		s.notify(ctx, models.ProvisioningDeactivate, sub)
	}

	var remoteErr error
	if d.Effects.CancelRemote {
		remoteErr = s.cancelRemote(ctx, sub, reason)
	}

	if d.From != d.To {
		s.publish(ctx, sub)
	}
	return remoteErr
}

func (s *Service) notify(ctx context.Context, action models.ProvisioningAction, sub *models.Subscription) {
	if s.notifier == nil {
		return
	}
	ctx, cancel := s.cfg.Timeouts.ProvisioningContext(ctx)
	defer cancel()

	if err := s.notifier.Notify(ctx, action, sub); err != nil {
		s.logger.Error("provisioning notification failed",
			ports.String("subscription_id", sub.ID.String()),
			ports.String("action", string(action)),
			ports.Err(err))
	}
}

func (s *Service) publish(ctx context.Context, sub *models.Subscription) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, sub.Status, sub); err != nil {
		s.logger.Warn("lifecycle notification failed",
			ports.String("subscription_id", sub.ID.String()),
			ports.String("status", string(sub.Status)),
			ports.Err(err))
	}
}

func (s *Service) cancelRemote(ctx context.Context, sub *models.Subscription, reason string) error {
	if !sub.IsRemote() {
		return nil
	}
	gateway, err := s.gatewayFor(sub.PaymentMethod)
	if err != nil {
		s.logger.Warn("remote cancellation skipped",
			ports.String("subscription_id", sub.ID.String()),
			ports.Err(err))
		return err
	}

	ctx, cancel := s.cfg.Timeouts.ProviderContext(ctx)
	defer cancel()

	started := time.Now()
	err = gateway.CancelRemote(ctx, sub.PaymentID, reason)
	observability.ObserveGatewayCall(string(sub.PaymentMethod), "cancel", started, err)
	if err != nil {
		s.logger.Error("remote cancellation failed",
			ports.String("subscription_id", sub.ID.String()),
			ports.String("payment_id", sub.PaymentID),
			ports.Err(err))
		return fmt.Errorf("cancel remote subscription: %w", err)
	}

	s.logger.Info("remote subscription cancelled",
		ports.String("subscription_id", sub.ID.String()),
		ports.String("payment_id", sub.PaymentID))
	return nil
}

func (s *Service) gatewayFor(method models.PaymentMethod) (ports.Gateway, error) {
	g, ok := s.gateways[method]
	if !ok {
		return nil, domain.NewDomainError(domain.ErrorCodeGatewayUnsupported,
			fmt.Sprintf("no gateway configured for payment method %q", method))
	}
	return g, nil
}

var _ ports.SubscriptionService = (*Service)(nil)
