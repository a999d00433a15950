package lifecycle

import (
	"time"

	"github.com/kevin07696/subscription-service/internal/domain/models"
)

const (
	DefaultRetryThreshold = 3
	DefaultRetryWindow    = 72 * time.Hour
	DefaultGraceWindow    = 7 * 24 * time.Hour
)

// Policy holds the configurable dunning parameters
type Policy struct {
	RetryThreshold int
	RetryWindow    time.Duration
	GraceWindow    time.Duration
}

// DefaultPolicy returns a Policy with a 3 failure threshold, a 72h retry
// window and a 7 day grace window
func DefaultPolicy() Policy {
	return Policy{
		RetryThreshold: DefaultRetryThreshold,
		RetryWindow:    DefaultRetryWindow,
		GraceWindow:    DefaultGraceWindow,
	}
}

// IsInRetryWindow reports whether the provider is still retrying a failed charge
func IsInRetryWindow(sub *models.Subscription, now time.Time) bool {
	return sub.PaymentStatus == models.PaymentStatusFailed &&
		sub.RetryPeriodEnd != nil &&
		now.Before(*sub.RetryPeriodEnd)
}

// IsInGraceWindow reports whether an expired subscription still keeps its
// provisioning
func IsInGraceWindow(sub *models.Subscription, now time.Time) bool {
	return sub.Status == models.SubStatusExpired &&
		sub.GracePeriodEnd != nil &&
		now.Before(*sub.GracePeriodEnd)
}

// PaidThrough is the end of the period the customer already paid for
func PaidThrough(sub *models.Subscription) *time.Time {
	if sub.NextBillingDate != nil {
		return sub.NextBillingDate
	}
	return sub.EndDate
}

// IsSweepDue reports whether the sweep should move sub to cancelled
func IsSweepDue(sub *models.Subscription, now time.Time) bool {
	switch sub.Status {
	case models.SubStatusExpired:
		return sub.GracePeriodEnd != nil && !now.Before(*sub.GracePeriodEnd)
	case models.SubStatusPendingCancellation:
		end := PaidThrough(sub)
		return end != nil && !now.Before(*end)
	}
	return false
}

// HasAccess reports whether provisioning should currently be granted
func HasAccess(sub *models.Subscription, now time.Time) bool {
	switch sub.Status {
	case models.SubStatusActive, models.SubStatusPendingCancellation:
		return true
	case models.SubStatusExpired:
		return IsInGraceWindow(sub, now)
	}
	return false
}
