package fixtures

import (
	"time"

	"github.com/google/uuid"
	"github.com/kevin07696/subscription-service/internal/domain/models"
	"github.com/shopspring/decimal"
)

// Clock is the fixed instant fixtures are built around
var Clock = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// SubscriptionBuilder provides fluent API for building test subscriptions.
type SubscriptionBuilder struct {
	subscription *models.Subscription
}

// NewSubscription creates an active monthly PayPal subscription paid at Clock.
func NewSubscription() *SubscriptionBuilder {
	end := Clock.AddDate(0, 1, 0)
	return &SubscriptionBuilder{
		subscription: &models.Subscription{
			ID:                 uuid.New(),
			UserID:             "user-1",
			ApplicationID:      "app-1",
			PlanID:             "plan-basic",
			ExternalPlanID:     "P-BASIC",
			PaymentMethod:      models.PaymentMethodPayPal,
			PaymentID:          "I-" + uuid.NewString()[:12],
			Status:             models.SubStatusActive,
			CancellationSource: models.CancellationSourceNone,
			PaymentStatus:      models.PaymentStatusPaid,
			StartDate:          Clock,
			EndDate:            TimePtr(end),
			NextBillingDate:    TimePtr(end),
			LastPaymentDate:    TimePtr(Clock),
			Amount:             decimal.NewFromInt(10),
			TaxAmount:          decimal.Zero,
			TotalAmount:        decimal.NewFromInt(10),
			Currency:           "USD",
			BillingFrequency:   models.FrequencyMonthly,
			CustomerData: models.CustomerData{
				FirstName: "Ada",
				LastName:  "Lovelace",
				Email:     "ada@example.com",
			},
			CreatedAt: Clock,
			UpdatedAt: Clock,
		},
	}
}

func (b *SubscriptionBuilder) WithID(id uuid.UUID) *SubscriptionBuilder {
	b.subscription.ID = id
	return b
}

func (b *SubscriptionBuilder) WithPayment(method models.PaymentMethod, paymentID string) *SubscriptionBuilder {
	b.subscription.PaymentMethod = method
	b.subscription.PaymentID = paymentID
	return b
}

func (b *SubscriptionBuilder) WithStatus(status models.SubscriptionStatus) *SubscriptionBuilder {
	b.subscription.Status = status
	return b
}

// PendingCancellation marks the subscription cancelled by source, paid through until
func (b *SubscriptionBuilder) PendingCancellation(source models.CancellationSource, until time.Time) *SubscriptionBuilder {
	b.subscription.Status = models.SubStatusPendingCancellation
	b.subscription.CancellationSource = source
	b.subscription.NextBillingDate = TimePtr(until)
	return b
}

// Expired marks the subscription expired with a grace period ending at graceEnd
func (b *SubscriptionBuilder) Expired(graceEnd time.Time) *SubscriptionBuilder {
	b.subscription.Status = models.SubStatusExpired
	b.subscription.GracePeriodEnd = TimePtr(graceEnd)
	return b
}

// Failing records retries failed charges
func (b *SubscriptionBuilder) Failing(retries int, lastFailure time.Time) *SubscriptionBuilder {
	b.subscription.PaymentStatus = models.PaymentStatusFailed
	b.subscription.RetryCount = retries
	b.subscription.LastFailedPaymentDate = TimePtr(lastFailure)
	b.subscription.RetryPeriodEnd = TimePtr(lastFailure.Add(72 * time.Hour))
	return b
}

func (b *SubscriptionBuilder) WithUpdatedAt(t time.Time) *SubscriptionBuilder {
	b.subscription.UpdatedAt = t
	return b
}

func (b *SubscriptionBuilder) Build() *models.Subscription {
	return b.subscription
}

// NewPlan returns a monthly plan priced at 10 USD
func NewPlan() models.Plan {
	return models.Plan{
		ID:               "plan-basic",
		ExternalPlanID:   "P-BASIC",
		GatewayPlanID:    "P-5ML4271244454362WXNWU5NQ",
		Name:             "Basic",
		Amount:           decimal.NewFromInt(10),
		Currency:         "USD",
		BillingFrequency: models.FrequencyMonthly,
	}
}
