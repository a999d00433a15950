package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Plan is the catalog snapshot a checkout is started for
type Plan struct {
	ID               string           `json:"id" validate:"required"`
	ExternalPlanID   string           `json:"external_plan_id"`
	GatewayPlanID    string           `json:"gateway_plan_id"`
	Name             string           `json:"name" validate:"required"`
	Amount           decimal.Decimal  `json:"amount"`
	Currency         string           `json:"currency" validate:"required,len=3"`
	BillingFrequency BillingFrequency `json:"billing_frequency" validate:"required"`
}

// CheckoutIntent is a purchase that has been started but not yet confirmed
// by the provider. It never becomes a Subscription unless the provider
// reports the remote subscription as activated.
type CheckoutIntent struct {
	SessionKey    string          `json:"session_key"`
	UserID        string          `json:"user_id"`
	ApplicationID string          `json:"application_id"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	RemoteID      string          `json:"remote_id,omitempty"`
	Plan          Plan            `json:"plan"`
	Customer      CustomerData    `json:"customer"`
	TaxAmount     decimal.Decimal `json:"tax_amount"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	CreatedAt     time.Time       `json:"created_at"`
}
