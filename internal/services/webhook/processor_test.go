package webhook

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kevin07696/subscription-service/internal/adapters/memory"
	"github.com/kevin07696/subscription-service/internal/domain"
	"github.com/kevin07696/subscription-service/internal/domain/models"
	"github.com/kevin07696/subscription-service/internal/domain/ports"
	"github.com/kevin07696/subscription-service/internal/services/lifecycle"
	"github.com/kevin07696/subscription-service/internal/services/subscription"
	"github.com/kevin07696/subscription-service/internal/testutil/fixtures"
	"github.com/kevin07696/subscription-service/pkg/resilience"
	"github.com/kevin07696/subscription-service/pkg/timeutil"
	"github.com/kevin07696/subscription-service/test/mocks"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type env struct {
	proc     *Processor
	svc      *subscription.Service
	repo     *memory.SubscriptionRepository
	decoder  *mocks.MockWebhookDecoder
	notifier *mocks.MockNotifier
	gateway  *mocks.MockGateway
}

func newEnv(t *testing.T) *env {
	t.Helper()

	cache := memory.NewCheckoutCache(zap.NewNop(), 0)
	t.Cleanup(func() { _ = cache.Close() })

	e := &env{
		repo:     memory.NewSubscriptionRepository(),
		decoder:  mocks.NewMockWebhookDecoder(models.PaymentMethodPayPal),
		notifier: &mocks.MockNotifier{},
		gateway:  mocks.NewMockGateway(models.PaymentMethodPayPal),
	}

	cfg := subscription.DefaultConfig()
	cfg.Timeouts = resilience.TestTimeoutConfig()
	e.svc = subscription.NewService(memory.NewDB(), e.repo, cache, []ports.Gateway{e.gateway},
		e.notifier, nil, cfg, mocks.NewMockLogger()).
		WithClock(timeutil.FixedClock{T: fixtures.Clock})
	e.proc = NewProcessor(e.svc, mocks.NewMockLogger(), e.decoder)
	return e
}

func (e *env) seed(t *testing.T, sub *models.Subscription) {
	t.Helper()
	require.NoError(t, e.repo.Create(context.Background(), nil, sub))
}

func (e *env) deliver(t *testing.T, ev ports.WebhookEvent) (*Result, error) {
	t.Helper()
	return e.proc.Handle(context.Background(), "paypal", http.Header{}, mocks.EncodeWebhook(ev))
}

func TestHandle_RejectsInput(t *testing.T) {
	t.Run("disabled gateway", func(t *testing.T) {
		e := newEnv(t)
		res, err := e.proc.Handle(context.Background(), "north", http.Header{}, []byte(`{}`))
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrGatewayDisabled))
		assert.Equal(t, OutcomeDisabled, res.Outcome)
		assert.False(t, e.proc.Enabled("north"))
		assert.True(t, e.proc.Enabled("paypal"))
	})

	t.Run("bad signature", func(t *testing.T) {
		e := newEnv(t)
		e.decoder.VerifyErr = domain.ErrInvalidSignature
		res, err := e.deliver(t, ports.WebhookEvent{Kind: ports.EventProviderRefunded, RemoteID: "I-1"})
		require.Error(t, err)
		assert.True(t, domain.IsDomainError(err, domain.ErrorCodeWebhookInvalidSignature))
		assert.Equal(t, OutcomeInvalidSignature, res.Outcome)
	})

	t.Run("verification unavailable", func(t *testing.T) {
		e := newEnv(t)
		e.decoder.VerifyErr = errors.New("provider unreachable")
		res, err := e.deliver(t, ports.WebhookEvent{Kind: ports.EventProviderRefunded, RemoteID: "I-1"})
		require.Error(t, err)
		assert.Equal(t, OutcomeError, res.Outcome)
	})

	t.Run("malformed body", func(t *testing.T) {
		e := newEnv(t)
		res, err := e.proc.Handle(context.Background(), "paypal", http.Header{}, []byte(`not json`))
		require.Error(t, err)
		assert.True(t, domain.IsValidationError(err))
		assert.Equal(t, OutcomeMalformed, res.Outcome)
	})
}

func TestHandle_AcknowledgesWithoutAction(t *testing.T) {
	e := newEnv(t)

	res, err := e.deliver(t, ports.WebhookEvent{Kind: ports.EventIgnored, ProviderType: "CUSTOMER.DISPUTE.CREATED", RemoteID: "I-1"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, res.Outcome)

	res, err = e.deliver(t, ports.WebhookEvent{Kind: ports.EventProviderPaymentFailed, RemoteID: "I-UNKNOWN"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnmatched, res.Outcome)
	assert.Empty(t, e.notifier.Calls)
}

func TestHandle_ActivationMaterializesCheckout(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	resp, err := e.svc.CreateSubscription(ctx, ports.ServiceCreateSubscriptionRequest{
		UserID:        "user-1",
		ApplicationID: "app-1",
		PaymentMethod: models.PaymentMethodPayPal,
		Plan:          fixtures.NewPlan(),
		Customer:      models.CustomerData{FirstName: "Ada", Email: "ada@example.com"},
		TaxAmount:     decimal.Zero,
	})
	require.NoError(t, err)

	activated := ports.WebhookEvent{
		ID:            "WH-1",
		Kind:          ports.EventProviderActivated,
		RemoteID:      resp.RemoteSubscriptionID,
		CorrelationID: resp.SessionKey,
		RemoteStatus:  ports.RemoteStatusActive,
	}

	res, err := e.deliver(t, activated)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, res.Outcome)
	require.NotEqual(t, uuid.Nil, res.SubscriptionID)

	sub, err := e.svc.GetSubscription(ctx, res.SubscriptionID)
	require.NoError(t, err)
	assert.Equal(t, models.SubStatusActive, sub.Status)
	assert.True(t, sub.Amount.Equal(decimal.NewFromInt(10)))

	// redelivery finds the record and changes nothing
	res, err = e.deliver(t, activated)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoOp, res.Outcome)
	assert.Len(t, e.notifier.Calls, 1)
}

func TestHandle_ActivationWithoutCheckout(t *testing.T) {
	e := newEnv(t)

	res, err := e.deliver(t, ports.WebhookEvent{
		Kind:          ports.EventProviderActivated,
		RemoteID:      "I-ORPHAN",
		CorrelationID: "expired-session-key",
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnmatched, res.Outcome)
	assert.Empty(t, e.notifier.Calls)
}

func TestHandle_PaymentFailedIsIdempotent(t *testing.T) {
	e := newEnv(t)
	sub := fixtures.NewSubscription().Build()
	e.seed(t, sub)

	failedAt := fixtures.Clock.Add(-time.Hour)
	ev := ports.WebhookEvent{
		Kind:           ports.EventProviderPaymentFailed,
		RemoteID:       sub.PaymentID,
		PaymentTime:    &failedAt,
		FailedPayments: 1,
	}

	res, err := e.deliver(t, ev)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)
	assert.Equal(t, sub.ID, res.SubscriptionID)

	res, err = e.deliver(t, ev)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoOp, res.Outcome)

	stored, err := e.svc.GetSubscription(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.RetryCount)
	assert.Equal(t, models.PaymentStatusFailed, stored.PaymentStatus)
	assert.Equal(t, models.SubStatusActive, stored.Status)
}

func TestHandle_ProviderCancellationCapturesBillingDate(t *testing.T) {
	e := newEnv(t)
	sub := fixtures.NewSubscription().Build()
	e.seed(t, sub)

	until := fixtures.Clock.AddDate(0, 0, 20)
	res, err := e.deliver(t, ports.WebhookEvent{
		Kind:            ports.EventProviderStatusCancelled,
		RemoteID:        sub.PaymentID,
		RemoteStatus:    ports.RemoteStatusCancelled,
		NextBillingTime: &until,
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)

	stored, err := e.svc.GetSubscription(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubStatusPendingCancellation, stored.Status)
	assert.Equal(t, models.CancellationSourceProvider, stored.CancellationSource)
	require.NotNil(t, stored.NextBillingDate)
	assert.True(t, until.Equal(*stored.NextBillingDate))
	assert.Empty(t, e.notifier.Calls)
}

func TestHandle_RefundOnCancelledIsIgnored(t *testing.T) {
	e := newEnv(t)
	sub := fixtures.NewSubscription().WithStatus(models.SubStatusCancelled).Build()
	e.seed(t, sub)

	res, err := e.deliver(t, ports.WebhookEvent{Kind: ports.EventProviderRefunded, RemoteID: sub.PaymentID})
	require.NoError(t, err)
	assert.NotEqual(t, OutcomeApplied, res.Outcome)
	assert.Zero(t, e.gateway.CancelCount())
}

type failingSubscriptions struct {
	err error
}

func (f failingSubscriptions) FindByPaymentID(context.Context, models.PaymentMethod, string) (*models.Subscription, error) {
	return nil, f.err
}

func (f failingSubscriptions) Materialize(context.Context, models.PaymentMethod, string, string) (*models.Subscription, bool, error) {
	return nil, false, f.err
}

func (f failingSubscriptions) ApplyEvent(context.Context, uuid.UUID, lifecycle.Event) (lifecycle.Decision, error) {
	return lifecycle.Decision{}, f.err
}

func TestHandle_StoreFailureIsAnError(t *testing.T) {
	decoder := mocks.NewMockWebhookDecoder(models.PaymentMethodPayPal)
	proc := NewProcessor(failingSubscriptions{err: errors.New("connection refused")}, mocks.NewMockLogger(), decoder)

	res, err := proc.Handle(context.Background(), "paypal", http.Header{},
		mocks.EncodeWebhook(ports.WebhookEvent{Kind: ports.EventProviderPaymentSucceeded, RemoteID: "I-1"}))
	require.Error(t, err)
	assert.Equal(t, OutcomeError, res.Outcome)
	assert.False(t, domain.IsValidationError(err))
}
