// Package lifecycle holds the subscription state machine and the retry/grace
// window rules. Everything here is pure: callers load the persisted record,
// ask for a Decision, persist Decision.Next and then perform the effects.
package lifecycle

import (
	"fmt"
	"time"

	"github.com/kevin07696/subscription-service/internal/domain"
	"github.com/kevin07696/subscription-service/internal/domain/models"
	"github.com/kevin07696/subscription-service/internal/domain/ports"
)

// EventType names something that can happen to a subscription
type EventType string

const (
	EventProviderActivated        EventType = "provider_activated"
	EventProviderStatusActive     EventType = "provider_status_active"
	EventProviderStatusSuspended  EventType = "provider_status_suspended"
	EventProviderStatusCancelled  EventType = "provider_status_cancelled"
	EventProviderPaymentFailed    EventType = "provider_payment_failed"
	EventProviderPaymentSucceeded EventType = "provider_payment_succeeded"
	EventProviderRefunded         EventType = "provider_refunded"
	EventAdminCancel              EventType = "admin_cancel"
	EventAdminForceCancel         EventType = "admin_force_cancel"
	EventAdminResume              EventType = "admin_resume"
	EventAdminActivate            EventType = "admin_activate"
	EventGracePeriodSweep         EventType = "grace_period_sweep"
)

// IsAdmin reports whether the event is a synchronous admin/user request.
// Rejected admin events are errors; rejected provider events are ignored.
func (e EventType) IsAdmin() bool {
	switch e {
	case EventAdminCancel, EventAdminForceCancel, EventAdminResume, EventAdminActivate:
		return true
	}
	return false
}

// Action is the error_cannot_<action> suffix for admin events
func (e EventType) Action() string {
	switch e {
	case EventAdminCancel:
		return "cancel"
	case EventAdminForceCancel:
		return "force_cancel"
	case EventAdminResume:
		return "resume"
	case EventAdminActivate:
		return "activate"
	}
	return string(e)
}

// FromWebhook maps a decoded provider event kind to a lifecycle event
func FromWebhook(kind ports.EventKind) (EventType, bool) {
	switch kind {
	case ports.EventProviderActivated:
		return EventProviderActivated, true
	case ports.EventProviderStatusActive:
		return EventProviderStatusActive, true
	case ports.EventProviderStatusSuspended:
		return EventProviderStatusSuspended, true
	case ports.EventProviderStatusCancelled:
		return EventProviderStatusCancelled, true
	case ports.EventProviderPaymentFailed:
		return EventProviderPaymentFailed, true
	case ports.EventProviderPaymentSucceeded:
		return EventProviderPaymentSucceeded, true
	case ports.EventProviderRefunded:
		return EventProviderRefunded, true
	}
	return "", false
}

// Event is an EventType plus the payload fields transitions read
type Event struct {
	Type            EventType
	NextBillingTime *time.Time
	PaymentTime     *time.Time
	FailedPayments  int
	// RemoteStatus is the provider status fetched before AdminResume
	RemoteStatus ports.RemoteStatus
}

// Effects are the side effects a transition requires once persisted
type Effects struct {
	ActivateProvisioning   bool
	DeactivateProvisioning bool
	CancelRemote           bool
}

// Decision is the outcome of applying an event to a subscription
type Decision struct {
	Event    EventType
	From     models.SubscriptionStatus
	To       models.SubscriptionStatus
	NoOp     bool
	Rejected bool
	Reason   string
	Effects  Effects
	// Next is the updated record; nil for no-ops and rejections
	Next *models.Subscription
}

// Outcome labels the decision for logs and metrics
func (d Decision) Outcome() string {
	switch {
	case d.Rejected:
		return "rejected"
	case d.NoOp:
		return "noop"
	default:
		return "applied"
	}
}

// Err returns the error_cannot_<action> error for rejected admin events and
// nil otherwise
func (d Decision) Err() error {
	if !d.Rejected || !d.Event.IsAdmin() {
		return nil
	}
	return domain.NewCannotError(d.Event.Action(), d.Reason)
}

// validFrom lists the statuses each event may leave from. Events landing on
// the status they start from are no-ops and handled before this table.
var validFrom = map[EventType][]models.SubscriptionStatus{
	EventProviderActivated:        {models.SubStatusPendingCancellation, models.SubStatusExpired, models.SubStatusCancelled},
	EventProviderStatusActive:     {},
	EventProviderStatusSuspended:  {models.SubStatusActive},
	EventProviderStatusCancelled:  {models.SubStatusActive, models.SubStatusPendingCancellation},
	EventProviderPaymentFailed:    {models.SubStatusActive, models.SubStatusPendingCancellation, models.SubStatusExpired},
	EventProviderPaymentSucceeded: {models.SubStatusActive, models.SubStatusPendingCancellation, models.SubStatusExpired},
	EventProviderRefunded:         {models.SubStatusActive, models.SubStatusPendingCancellation, models.SubStatusExpired},
	EventAdminCancel:              {models.SubStatusActive},
	EventAdminForceCancel:         {models.SubStatusPendingCancellation},
	EventAdminResume:              {models.SubStatusPendingCancellation},
	EventAdminActivate:            {models.SubStatusExpired},
	EventGracePeriodSweep:         {models.SubStatusExpired, models.SubStatusPendingCancellation},
}

// targetStatus is where an event leads when it is not a no-op. Events whose
// target depends on the payload are resolved in their apply function.
var targetStatus = map[EventType]models.SubscriptionStatus{
	EventProviderActivated:        models.SubStatusActive,
	EventProviderStatusActive:     models.SubStatusActive,
	EventProviderStatusSuspended:  models.SubStatusExpired,
	EventProviderStatusCancelled:  models.SubStatusPendingCancellation,
	EventProviderPaymentSucceeded: models.SubStatusActive,
	EventProviderRefunded:         models.SubStatusCancelled,
	EventAdminCancel:              models.SubStatusPendingCancellation,
	EventAdminForceCancel:         models.SubStatusCancelled,
	EventAdminResume:              models.SubStatusActive,
	EventAdminActivate:            models.SubStatusActive,
	EventGracePeriodSweep:         models.SubStatusCancelled,
}

// CanTransition reports whether ev may move a subscription out of from
func CanTransition(from models.SubscriptionStatus, ev EventType) bool {
	for _, s := range validFrom[ev] {
		if s == from {
			return true
		}
	}
	return false
}

// Transition computes the next state of sub for ev. It only reads the
// persisted record and the event payload, never remembered prior state, so
// out-of-order and repeated deliveries resolve deterministically.
func Transition(sub *models.Subscription, ev Event, policy Policy, now time.Time) Decision {
	d := Decision{Event: ev.Type, From: sub.Status, To: sub.Status}

	if to, ok := targetStatus[ev.Type]; ok && to == sub.Status && !statusPreservingUpdate(ev.Type) {
		return noOp(d, fmt.Sprintf("subscription already %s", sub.Status))
	}

	switch ev.Type {
	case EventProviderPaymentFailed, EventProviderPaymentSucceeded, EventProviderStatusCancelled, EventProviderStatusSuspended:
		// payload-dependent; validated inside
	default:
		if !CanTransition(sub.Status, ev.Type) {
			return reject(d, fmt.Sprintf("subscription is %s", sub.Status))
		}
	}

	next := sub.Clone()
	next.UpdatedAt = now
	d.Next = next

	switch ev.Type {
	case EventProviderActivated:
		return applyActivation(d, policy, now)
	case EventProviderStatusSuspended:
		return applySuspended(d, sub, policy, now)
	case EventProviderStatusCancelled:
		return applyProviderCancelled(d, sub, ev)
	case EventProviderPaymentFailed:
		return applyPaymentFailed(d, sub, ev, policy, now)
	case EventProviderPaymentSucceeded:
		return applyPaymentSucceeded(d, sub, ev, now)
	case EventProviderRefunded:
		next.Status = models.SubStatusCancelled
		next.EndDate = &now
		d.To = next.Status
		d.Effects = Effects{DeactivateProvisioning: true, CancelRemote: true}
		return d
	case EventAdminCancel:
		next.Status = models.SubStatusPendingCancellation
		next.CancellationSource = models.CancellationSourceFrontend
		if next.NextBillingDate == nil {
			next.NextBillingDate = next.EndDate
		}
		d.To = next.Status
		return d
	case EventAdminForceCancel:
		next.Status = models.SubStatusCancelled
		next.EndDate = &now
		d.To = next.Status
		d.Effects = Effects{
			DeactivateProvisioning: true,
			CancelRemote:           sub.CancellationSource != models.CancellationSourceProvider,
		}
		return d
	case EventAdminResume:
		return applyResume(d, sub, ev)
	case EventAdminActivate:
		return applyActivation(d, policy, now)
	case EventGracePeriodSweep:
		return applySweep(d, sub, now)
	}

	return reject(d, fmt.Sprintf("unsupported event %s", ev.Type))
}

// statusPreservingUpdate marks events that may legitimately keep the status
// while still updating bookkeeping fields
func statusPreservingUpdate(ev EventType) bool {
	switch ev {
	case EventProviderPaymentSucceeded, EventProviderStatusCancelled:
		return true
	}
	return false
}

func applyActivation(d Decision, policy Policy, now time.Time) Decision {
	next := d.Next
	next.Status = models.SubStatusActive
	next.CancellationSource = models.CancellationSourceNone
	next.GracePeriodEnd = nil
	next.RetryPeriodEnd = nil
	next.RetryCount = 0
	if next.EndDate == nil || !next.EndDate.After(now) {
		end := models.CalculateEndDate(now, next.BillingFrequency)
		next.EndDate = &end
		next.NextBillingDate = &end
	}
	d.To = next.Status
	d.Effects.ActivateProvisioning = true
	return d
}

func applySuspended(d Decision, sub *models.Subscription, policy Policy, now time.Time) Decision {
	if sub.Status == models.SubStatusExpired {
		return noOp(d, "subscription already expired")
	}
	if sub.Status != models.SubStatusActive {
		return reject(d, fmt.Sprintf("suspension ignored for %s subscription", sub.Status))
	}
	next := d.Next
	next.Status = models.SubStatusExpired
	grace := now.Add(policy.GraceWindow)
	next.GracePeriodEnd = &grace
	d.To = next.Status
	return d
}

func applyProviderCancelled(d Decision, sub *models.Subscription, ev Event) Decision {
	if !CanTransition(sub.Status, ev.Type) {
		return reject(d, fmt.Sprintf("provider cancellation ignored for %s subscription", sub.Status))
	}
	nbd := ev.NextBillingTime
	if nbd == nil {
		nbd = sub.NextBillingDate
	}
	if nbd == nil {
		nbd = sub.EndDate
	}
	if sub.Status == models.SubStatusPendingCancellation &&
		sub.CancellationSource == models.CancellationSourceProvider &&
		sameTime(sub.NextBillingDate, nbd) {
		return noOp(d, "provider cancellation already recorded")
	}

	next := d.Next
	next.Status = models.SubStatusPendingCancellation
	next.CancellationSource = models.CancellationSourceProvider
	next.NextBillingDate = cloneTime(nbd)
	d.To = next.Status
	return d
}

func applyPaymentFailed(d Decision, sub *models.Subscription, ev Event, policy Policy, now time.Time) Decision {
	if !CanTransition(sub.Status, ev.Type) {
		return reject(d, fmt.Sprintf("payment failure ignored for %s subscription", sub.Status))
	}
	if ev.PaymentTime != nil && sub.LastFailedPaymentDate != nil && !ev.PaymentTime.After(*sub.LastFailedPaymentDate) {
		return noOp(d, "payment failure already recorded")
	}

	count := sub.RetryCount + 1
	if ev.FailedPayments > 0 {
		if sub.PaymentStatus == models.PaymentStatusFailed && ev.FailedPayments <= sub.RetryCount {
			return noOp(d, "payment failure already counted")
		}
		count = ev.FailedPayments
		if count < sub.RetryCount {
			count = sub.RetryCount
		}
	}

	next := d.Next
	next.PaymentStatus = models.PaymentStatusFailed
	next.RetryCount = count
	failedAt := now
	if ev.PaymentTime != nil {
		failedAt = *ev.PaymentTime
	}
	next.LastFailedPaymentDate = &failedAt
	if next.RetryPeriodEnd == nil || !next.RetryPeriodEnd.After(now) {
		end := now.Add(policy.RetryWindow)
		next.RetryPeriodEnd = &end
	}

	if count >= policy.RetryThreshold && sub.Status != models.SubStatusExpired {
		next.Status = models.SubStatusExpired
		grace := now.Add(policy.GraceWindow)
		next.GracePeriodEnd = &grace
		d.Effects.CancelRemote = true
	}
	d.To = next.Status
	return d
}

func applyPaymentSucceeded(d Decision, sub *models.Subscription, ev Event, now time.Time) Decision {
	if !CanTransition(sub.Status, ev.Type) {
		return reject(d, fmt.Sprintf("payment ignored for %s subscription", sub.Status))
	}
	if ev.PaymentTime != nil && sub.LastPaymentDate != nil && !ev.PaymentTime.After(*sub.LastPaymentDate) {
		return noOp(d, "payment already recorded")
	}

	paidAt := now
	if ev.PaymentTime != nil {
		paidAt = *ev.PaymentTime
	}

	next := d.Next
	next.PaymentStatus = models.PaymentStatusPaid
	next.RetryCount = 0
	next.RetryPeriodEnd = nil
	next.LastPaymentDate = &paidAt
	end := models.CalculateEndDate(paidAt, next.BillingFrequency)
	next.EndDate = &end

	switch sub.Status {
	case models.SubStatusExpired:
		next.Status = models.SubStatusActive
		next.GracePeriodEnd = nil
		next.CancellationSource = models.CancellationSourceNone
		next.NextBillingDate = &end
		d.Effects.ActivateProvisioning = true
	case models.SubStatusActive, models.SubStatusPendingCancellation:
		// a renewal charged during a pending cancellation extends the paid period
		next.NextBillingDate = &end
	}
	d.To = next.Status
	return d
}

func applyResume(d Decision, sub *models.Subscription, ev Event) Decision {
	if sub.CancellationSource != models.CancellationSourceFrontend {
		return reject(d, "cancellation was initiated by the payment provider")
	}
	if ev.RemoteStatus != ports.RemoteStatusActive {
		return reject(d, fmt.Sprintf("remote subscription is %s", ev.RemoteStatus))
	}
	next := d.Next
	next.Status = models.SubStatusActive
	next.CancellationSource = models.CancellationSourceNone
	d.To = next.Status
	return d
}

func applySweep(d Decision, sub *models.Subscription, now time.Time) Decision {
	if !IsSweepDue(sub, now) {
		d.Next = nil
		return noOp(d, "not due for sweep")
	}
	next := d.Next
	next.Status = models.SubStatusCancelled
	d.To = next.Status
	d.Effects.DeactivateProvisioning = true
	if sub.Status == models.SubStatusPendingCancellation && sub.CancellationSource == models.CancellationSourceFrontend {
		d.Effects.CancelRemote = true
	}
	return d
}

func noOp(d Decision, reason string) Decision {
	d.NoOp = true
	d.Reason = reason
	d.To = d.From
	d.Next = nil
	d.Effects = Effects{}
	return d
}

func reject(d Decision, reason string) Decision {
	d.Rejected = true
	d.Reason = reason
	d.To = d.From
	d.Next = nil
	d.Effects = Effects{}
	return d
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
