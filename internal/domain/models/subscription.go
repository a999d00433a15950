package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BillingFrequency represents how often a subscription is billed
type BillingFrequency string

const (
	FrequencyWeekly    BillingFrequency = "weekly"
	FrequencyMonthly   BillingFrequency = "monthly"
	FrequencyQuarterly BillingFrequency = "quarterly"
	FrequencyYearly    BillingFrequency = "yearly"
)

// Valid reports whether f is a supported billing frequency
func (f BillingFrequency) Valid() bool {
	switch f {
	case FrequencyWeekly, FrequencyMonthly, FrequencyQuarterly, FrequencyYearly:
		return true
	}
	return false
}

// SubscriptionStatus represents the current state of a subscription
type SubscriptionStatus string

const (
	SubStatusActive              SubscriptionStatus = "active"
	SubStatusPendingCancellation SubscriptionStatus = "pending_cancellation"
	SubStatusCancelled           SubscriptionStatus = "cancelled"
	SubStatusExpired             SubscriptionStatus = "expired"
)

// AllStatuses lists every persisted status, in display order
var AllStatuses = []SubscriptionStatus{
	SubStatusActive,
	SubStatusPendingCancellation,
	SubStatusExpired,
	SubStatusCancelled,
}

// CancellationSource records who initiated a pending cancellation
type CancellationSource string

const (
	CancellationSourceNone     CancellationSource = "none"
	CancellationSourceFrontend CancellationSource = "frontend"
	CancellationSourceProvider CancellationSource = "provider"
)

// PaymentStatus is the result of the last billing attempt
type PaymentStatus string

const (
	PaymentStatusPaid   PaymentStatus = "paid"
	PaymentStatusFailed PaymentStatus = "failed"
)

// PaymentMethod selects the gateway that owns a subscription
type PaymentMethod string

const (
	PaymentMethodManual PaymentMethod = "manual"
	PaymentMethodPayPal PaymentMethod = "paypal"
	PaymentMethodNorth  PaymentMethod = "north"
)

// Valid reports whether m is a known payment method
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodManual, PaymentMethodPayPal, PaymentMethodNorth:
		return true
	}
	return false
}

// CustomerData is the purchaser's billing identity captured at checkout
type CustomerData struct {
	FirstName   string `json:"first_name" validate:"required"`
	LastName    string `json:"last_name" validate:"required"`
	Email       string `json:"email" validate:"required,email"`
	Company     string `json:"company,omitempty"`
	Address     string `json:"address,omitempty"`
	City        string `json:"city,omitempty"`
	PostalCode  string `json:"postal_code,omitempty"`
	CountryCode string `json:"country_code,omitempty" validate:"omitempty,len=2"`
	TaxID       string `json:"tax_id,omitempty"`
}

// FullName joins first and last name
func (c CustomerData) FullName() string {
	if c.LastName == "" {
		return c.FirstName
	}
	return c.FirstName + " " + c.LastName
}

// Subscription is the local record of a paid subscription mirrored from a
// payment provider
type Subscription struct {
	ID             uuid.UUID
	UserID         string
	ApplicationID  string
	PlanID         string
	ExternalPlanID string

	PaymentMethod PaymentMethod
	PaymentID     string

	Status             SubscriptionStatus
	CancellationSource CancellationSource
	PaymentStatus      PaymentStatus
	RetryCount         int

	RetryPeriodEnd  *time.Time
	GracePeriodEnd  *time.Time
	NextBillingDate *time.Time

	StartDate             time.Time
	EndDate               *time.Time
	LastPaymentDate       *time.Time
	LastFailedPaymentDate *time.Time

	// Monetary snapshot, fixed at creation
	Amount           decimal.Decimal
	TaxAmount        decimal.Decimal
	TotalAmount      decimal.Decimal
	Currency         string
	BillingFrequency BillingFrequency

	CustomerData CustomerData

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Clone returns a deep copy so callers can compare before/after a transition
func (s *Subscription) Clone() *Subscription {
	if s == nil {
		return nil
	}
	c := *s
	c.RetryPeriodEnd = cloneTime(s.RetryPeriodEnd)
	c.GracePeriodEnd = cloneTime(s.GracePeriodEnd)
	c.NextBillingDate = cloneTime(s.NextBillingDate)
	c.EndDate = cloneTime(s.EndDate)
	c.LastPaymentDate = cloneTime(s.LastPaymentDate)
	c.LastFailedPaymentDate = cloneTime(s.LastFailedPaymentDate)
	return &c
}

// IsRemote reports whether a gateway owns the subscription remotely
func (s *Subscription) IsRemote() bool {
	return s.PaymentMethod != PaymentMethodManual && s.PaymentID != ""
}

// IsDeletable reports whether the record may be physically removed
func (s *Subscription) IsDeletable() bool {
	return s.Status == SubStatusCancelled || s.Status == SubStatusExpired
}

// CalculateEndDate returns the end of the billing period that starts at from
func CalculateEndDate(from time.Time, frequency BillingFrequency) time.Time {
	switch frequency {
	case FrequencyWeekly:
		return from.AddDate(0, 0, 7)
	case FrequencyQuarterly:
		return from.AddDate(0, 3, 0)
	case FrequencyYearly:
		return from.AddDate(1, 0, 0)
	default:
		return from.AddDate(0, 1, 0)
	}
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
