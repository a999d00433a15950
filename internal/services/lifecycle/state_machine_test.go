package lifecycle

import (
	"testing"
	"time"

	"github.com/kevin07696/subscription-service/internal/domain"
	"github.com/kevin07696/subscription-service/internal/domain/models"
	"github.com/kevin07696/subscription-service/internal/domain/ports"
	"github.com/kevin07696/subscription-service/internal/testutil/fixtures"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = fixtures.Clock.Add(10 * 24 * time.Hour)

func TestTransition_StatusMatrix(t *testing.T) {
	policy := DefaultPolicy()
	nbd := now.Add(20 * 24 * time.Hour)

	tests := []struct {
		name     string
		sub      *models.Subscription
		event    Event
		wantTo   models.SubscriptionStatus
		noOp     bool
		rejected bool
		effects  Effects
	}{
		{
			name:   "activated revives cancelled",
			sub:    fixtures.NewSubscription().WithStatus(models.SubStatusCancelled).Build(),
			event:  Event{Type: EventProviderActivated},
			wantTo: models.SubStatusActive,
			effects: Effects{
				ActivateProvisioning: true,
			},
		},
		{
			name:   "activated on active is no-op",
			sub:    fixtures.NewSubscription().Build(),
			event:  Event{Type: EventProviderActivated},
			wantTo: models.SubStatusActive,
			noOp:   true,
		},
		{
			name:   "status active on active is no-op",
			sub:    fixtures.NewSubscription().Build(),
			event:  Event{Type: EventProviderStatusActive},
			wantTo: models.SubStatusActive,
			noOp:   true,
		},
		{
			name:     "status active on expired is ignored",
			sub:      fixtures.NewSubscription().Expired(now.Add(time.Hour)).Build(),
			event:    Event{Type: EventProviderStatusActive},
			wantTo:   models.SubStatusExpired,
			rejected: true,
		},
		{
			name:   "suspended expires active",
			sub:    fixtures.NewSubscription().Build(),
			event:  Event{Type: EventProviderStatusSuspended},
			wantTo: models.SubStatusExpired,
		},
		{
			name:   "suspended on expired is no-op",
			sub:    fixtures.NewSubscription().Expired(now.Add(time.Hour)).Build(),
			event:  Event{Type: EventProviderStatusSuspended},
			wantTo: models.SubStatusExpired,
			noOp:   true,
		},
		{
			name:   "provider cancel from active",
			sub:    fixtures.NewSubscription().Build(),
			event:  Event{Type: EventProviderStatusCancelled, NextBillingTime: &nbd},
			wantTo: models.SubStatusPendingCancellation,
		},
		{
			name:     "provider cancel on cancelled is ignored",
			sub:      fixtures.NewSubscription().WithStatus(models.SubStatusCancelled).Build(),
			event:    Event{Type: EventProviderStatusCancelled},
			wantTo:   models.SubStatusCancelled,
			rejected: true,
		},
		{
			name:   "refund cancels active",
			sub:    fixtures.NewSubscription().Build(),
			event:  Event{Type: EventProviderRefunded},
			wantTo: models.SubStatusCancelled,
			effects: Effects{
				DeactivateProvisioning: true,
				CancelRemote:           true,
			},
		},
		{
			name:   "refund cancels provider pending cancellation",
			sub:    fixtures.NewSubscription().PendingCancellation(models.CancellationSourceProvider, nbd).Build(),
			event:  Event{Type: EventProviderRefunded},
			wantTo: models.SubStatusCancelled,
			effects: Effects{
				DeactivateProvisioning: true,
				CancelRemote:           true,
			},
		},
		{
			name:   "refund on cancelled is no-op",
			sub:    fixtures.NewSubscription().WithStatus(models.SubStatusCancelled).Build(),
			event:  Event{Type: EventProviderRefunded},
			wantTo: models.SubStatusCancelled,
			noOp:   true,
		},
		{
			name:   "admin cancel from active",
			sub:    fixtures.NewSubscription().Build(),
			event:  Event{Type: EventAdminCancel},
			wantTo: models.SubStatusPendingCancellation,
		},
		{
			name:   "admin cancel on pending is no-op",
			sub:    fixtures.NewSubscription().PendingCancellation(models.CancellationSourceFrontend, nbd).Build(),
			event:  Event{Type: EventAdminCancel},
			wantTo: models.SubStatusPendingCancellation,
			noOp:   true,
		},
		{
			name:     "admin cancel on expired is rejected",
			sub:      fixtures.NewSubscription().Expired(now.Add(time.Hour)).Build(),
			event:    Event{Type: EventAdminCancel},
			wantTo:   models.SubStatusExpired,
			rejected: true,
		},
		{
			name:   "force cancel frontend pending cancels remote",
			sub:    fixtures.NewSubscription().PendingCancellation(models.CancellationSourceFrontend, nbd).Build(),
			event:  Event{Type: EventAdminForceCancel},
			wantTo: models.SubStatusCancelled,
			effects: Effects{
				DeactivateProvisioning: true,
				CancelRemote:           true,
			},
		},
		{
			name:   "force cancel provider pending skips remote",
			sub:    fixtures.NewSubscription().PendingCancellation(models.CancellationSourceProvider, nbd).Build(),
			event:  Event{Type: EventAdminForceCancel},
			wantTo: models.SubStatusCancelled,
			effects: Effects{
				DeactivateProvisioning: true,
			},
		},
		{
			name:     "force cancel on active is rejected",
			sub:      fixtures.NewSubscription().Build(),
			event:    Event{Type: EventAdminForceCancel},
			wantTo:   models.SubStatusActive,
			rejected: true,
		},
		{
			name:   "admin activate expired",
			sub:    fixtures.NewSubscription().Expired(now.Add(time.Hour)).Build(),
			event:  Event{Type: EventAdminActivate},
			wantTo: models.SubStatusActive,
			effects: Effects{
				ActivateProvisioning: true,
			},
		},
		{
			name:     "admin activate cancelled is rejected",
			sub:      fixtures.NewSubscription().WithStatus(models.SubStatusCancelled).Build(),
			event:    Event{Type: EventAdminActivate},
			wantTo:   models.SubStatusCancelled,
			rejected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Transition(tt.sub, tt.event, policy, now)

			assert.Equal(t, tt.sub.Status, d.From)
			assert.Equal(t, tt.wantTo, d.To)
			assert.Equal(t, tt.noOp, d.NoOp)
			assert.Equal(t, tt.rejected, d.Rejected)
			assert.Equal(t, tt.effects, d.Effects)
			if tt.noOp || tt.rejected {
				assert.Nil(t, d.Next)
				assert.NotEmpty(t, d.Reason)
			} else {
				require.NotNil(t, d.Next)
				assert.Equal(t, tt.wantTo, d.Next.Status)
				assert.Equal(t, now, d.Next.UpdatedAt)
			}
		})
	}
}

func TestTransition_DoesNotMutateInput(t *testing.T) {
	sub := fixtures.NewSubscription().Build()
	before := sub.Clone()

	d := Transition(sub, Event{Type: EventProviderStatusSuspended}, DefaultPolicy(), now)

	require.NotNil(t, d.Next)
	assert.Equal(t, before, sub)
	assert.Equal(t, models.SubStatusExpired, d.Next.Status)
}

func TestTransition_SameStatusNeverErrors(t *testing.T) {
	for _, status := range models.AllStatuses {
		sub := fixtures.NewSubscription().WithStatus(status).Build()
		if status == models.SubStatusPendingCancellation {
			sub.CancellationSource = models.CancellationSourceFrontend
		}
		for ev, to := range targetStatus {
			if to != status || statusPreservingUpdate(ev) || ev == EventGracePeriodSweep {
				continue
			}
			d := Transition(sub, Event{Type: ev, RemoteStatus: ports.RemoteStatusActive}, DefaultPolicy(), now)
			assert.True(t, d.NoOp, "%s on %s", ev, status)
			assert.NoError(t, d.Err(), "%s on %s", ev, status)
		}
	}
}

func TestTransition_ProviderCancelled(t *testing.T) {
	nbd := now.Add(20 * 24 * time.Hour)

	t.Run("captures next billing date and source", func(t *testing.T) {
		sub := fixtures.NewSubscription().Build()
		d := Transition(sub, Event{Type: EventProviderStatusCancelled, NextBillingTime: &nbd}, DefaultPolicy(), now)

		require.NotNil(t, d.Next)
		assert.Equal(t, models.SubStatusPendingCancellation, d.Next.Status)
		assert.Equal(t, models.CancellationSourceProvider, d.Next.CancellationSource)
		require.NotNil(t, d.Next.NextBillingDate)
		assert.True(t, nbd.Equal(*d.Next.NextBillingDate))
		assert.False(t, d.Effects.DeactivateProvisioning)
	})

	t.Run("falls back to stored next billing date", func(t *testing.T) {
		sub := fixtures.NewSubscription().Build()
		d := Transition(sub, Event{Type: EventProviderStatusCancelled}, DefaultPolicy(), now)

		require.NotNil(t, d.Next)
		assert.Equal(t, sub.NextBillingDate, d.Next.NextBillingDate)
	})

	t.Run("overrides frontend source", func(t *testing.T) {
		sub := fixtures.NewSubscription().PendingCancellation(models.CancellationSourceFrontend, nbd).Build()
		d := Transition(sub, Event{Type: EventProviderStatusCancelled, NextBillingTime: &nbd}, DefaultPolicy(), now)

		require.NotNil(t, d.Next)
		assert.Equal(t, models.CancellationSourceProvider, d.Next.CancellationSource)
	})

	t.Run("repeat delivery is no-op", func(t *testing.T) {
		sub := fixtures.NewSubscription().PendingCancellation(models.CancellationSourceProvider, nbd).Build()
		d := Transition(sub, Event{Type: EventProviderStatusCancelled, NextBillingTime: &nbd}, DefaultPolicy(), now)

		assert.True(t, d.NoOp)
	})
}

func TestTransition_Resume(t *testing.T) {
	nbd := now.Add(20 * 24 * time.Hour)

	tests := []struct {
		name   string
		source models.CancellationSource
		remote ports.RemoteStatus
		ok     bool
	}{
		{"frontend with active remote", models.CancellationSourceFrontend, ports.RemoteStatusActive, true},
		{"provider cancellation", models.CancellationSourceProvider, ports.RemoteStatusActive, false},
		{"remote suspended", models.CancellationSourceFrontend, ports.RemoteStatusSuspended, false},
		{"remote cancelled", models.CancellationSourceFrontend, ports.RemoteStatusCancelled, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := fixtures.NewSubscription().PendingCancellation(tt.source, nbd).Build()
			d := Transition(sub, Event{Type: EventAdminResume, RemoteStatus: tt.remote}, DefaultPolicy(), now)

			if tt.ok {
				require.NotNil(t, d.Next)
				assert.Equal(t, models.SubStatusActive, d.Next.Status)
				assert.Equal(t, models.CancellationSourceNone, d.Next.CancellationSource)
				assert.NoError(t, d.Err())
				return
			}
			assert.True(t, d.Rejected)
			err := d.Err()
			require.Error(t, err)
			assert.True(t, domain.IsTransitionError(err))
			assert.Contains(t, err.Error(), "error_cannot_resume")
			assert.Equal(t, models.SubStatusPendingCancellation, sub.Status)
		})
	}
}

func TestTransition_RetryThreshold(t *testing.T) {
	policy := DefaultPolicy()
	sub := fixtures.NewSubscription().Build()

	for i := 1; i <= 3; i++ {
		failedAt := now.Add(time.Duration(i) * 24 * time.Hour)
		d := Transition(sub, Event{Type: EventProviderPaymentFailed, PaymentTime: &failedAt}, policy, failedAt)
		require.NotNil(t, d.Next, "failure %d", i)
		sub = d.Next

		assert.Equal(t, i, sub.RetryCount)
		assert.Equal(t, models.PaymentStatusFailed, sub.PaymentStatus)
		require.NotNil(t, sub.RetryPeriodEnd)
		if i < 3 {
			assert.Equal(t, models.SubStatusActive, sub.Status)
			assert.False(t, d.Effects.CancelRemote)
		} else {
			assert.Equal(t, models.SubStatusExpired, sub.Status)
			require.NotNil(t, sub.GracePeriodEnd)
			assert.True(t, failedAt.Add(policy.GraceWindow).Equal(*sub.GracePeriodEnd))
			assert.True(t, d.Effects.CancelRemote)
		}
	}

	paidAt := now.Add(5 * 24 * time.Hour)
	d := Transition(sub, Event{Type: EventProviderPaymentSucceeded, PaymentTime: &paidAt}, policy, paidAt)
	require.NotNil(t, d.Next)
	assert.Equal(t, models.SubStatusActive, d.Next.Status)
	assert.Equal(t, 0, d.Next.RetryCount)
	assert.Equal(t, models.PaymentStatusPaid, d.Next.PaymentStatus)
	assert.Nil(t, d.Next.GracePeriodEnd)
	assert.Nil(t, d.Next.RetryPeriodEnd)
	assert.True(t, d.Effects.ActivateProvisioning)
	require.NotNil(t, d.Next.EndDate)
	assert.True(t, paidAt.AddDate(0, 1, 0).Equal(*d.Next.EndDate))
}

func TestTransition_PaymentFailedIdempotency(t *testing.T) {
	failedAt := now.Add(-time.Hour)

	t.Run("replayed failure timestamp", func(t *testing.T) {
		sub := fixtures.NewSubscription().Failing(1, failedAt).Build()
		d := Transition(sub, Event{Type: EventProviderPaymentFailed, PaymentTime: &failedAt}, DefaultPolicy(), now)
		assert.True(t, d.NoOp)
	})

	t.Run("provider counter already applied", func(t *testing.T) {
		sub := fixtures.NewSubscription().Failing(2, failedAt).Build()
		d := Transition(sub, Event{Type: EventProviderPaymentFailed, FailedPayments: 2}, DefaultPolicy(), now)
		assert.True(t, d.NoOp)
	})

	t.Run("provider counter jumps ahead", func(t *testing.T) {
		sub := fixtures.NewSubscription().Failing(1, failedAt).Build()
		d := Transition(sub, Event{Type: EventProviderPaymentFailed, FailedPayments: 3}, DefaultPolicy(), now)
		require.NotNil(t, d.Next)
		assert.Equal(t, 3, d.Next.RetryCount)
		assert.Equal(t, models.SubStatusExpired, d.Next.Status)
	})

	t.Run("failure on cancelled is ignored", func(t *testing.T) {
		sub := fixtures.NewSubscription().WithStatus(models.SubStatusCancelled).Build()
		d := Transition(sub, Event{Type: EventProviderPaymentFailed}, DefaultPolicy(), now)
		assert.True(t, d.Rejected)
		assert.NoError(t, d.Err())
	})

	t.Run("open retry window is kept", func(t *testing.T) {
		sub := fixtures.NewSubscription().Failing(1, failedAt).Build()
		windowEnd := *sub.RetryPeriodEnd
		later := now.Add(time.Minute)
		d := Transition(sub, Event{Type: EventProviderPaymentFailed, PaymentTime: &later}, DefaultPolicy(), later)
		require.NotNil(t, d.Next)
		assert.True(t, windowEnd.Equal(*d.Next.RetryPeriodEnd))
	})
}

func TestTransition_PaymentSucceededIdempotency(t *testing.T) {
	sub := fixtures.NewSubscription().Build()
	paidAt := *sub.LastPaymentDate

	d := Transition(sub, Event{Type: EventProviderPaymentSucceeded, PaymentTime: &paidAt}, DefaultPolicy(), now)
	assert.True(t, d.NoOp)

	later := paidAt.AddDate(0, 1, 0)
	d = Transition(sub, Event{Type: EventProviderPaymentSucceeded, PaymentTime: &later}, DefaultPolicy(), later)
	require.NotNil(t, d.Next)
	assert.Equal(t, models.SubStatusActive, d.Next.Status)
	assert.True(t, later.Equal(*d.Next.LastPaymentDate))
	assert.True(t, later.AddDate(0, 1, 0).Equal(*d.Next.NextBillingDate))
	assert.False(t, d.Effects.ActivateProvisioning)
}

func TestTransition_GracePeriodSweep(t *testing.T) {
	tests := []struct {
		name    string
		sub     *models.Subscription
		due     bool
		effects Effects
	}{
		{
			name:    "expired past grace",
			sub:     fixtures.NewSubscription().Expired(now.Add(-time.Second)).Build(),
			due:     true,
			effects: Effects{DeactivateProvisioning: true},
		},
		{
			name: "expired inside grace",
			sub:  fixtures.NewSubscription().Expired(now.Add(time.Hour)).Build(),
		},
		{
			name:    "frontend pending past paid period",
			sub:     fixtures.NewSubscription().PendingCancellation(models.CancellationSourceFrontend, now.Add(-time.Hour)).Build(),
			due:     true,
			effects: Effects{DeactivateProvisioning: true, CancelRemote: true},
		},
		{
			name:    "provider pending past paid period",
			sub:     fixtures.NewSubscription().PendingCancellation(models.CancellationSourceProvider, now).Build(),
			due:     true,
			effects: Effects{DeactivateProvisioning: true},
		},
		{
			name: "provider pending before paid period ends",
			sub:  fixtures.NewSubscription().PendingCancellation(models.CancellationSourceProvider, now.Add(time.Hour)).Build(),
		},
		{
			name: "active",
			sub:  fixtures.NewSubscription().Build(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Transition(tt.sub, Event{Type: EventGracePeriodSweep}, DefaultPolicy(), now)
			if !tt.due {
				assert.Nil(t, d.Next)
				assert.False(t, d.Effects.DeactivateProvisioning)
				return
			}
			require.NotNil(t, d.Next)
			assert.Equal(t, models.SubStatusCancelled, d.Next.Status)
			assert.Equal(t, tt.effects, d.Effects)
		})
	}
}

func TestDecision_Err(t *testing.T) {
	sub := fixtures.NewSubscription().WithStatus(models.SubStatusCancelled).Build()

	d := Transition(sub, Event{Type: EventAdminForceCancel}, DefaultPolicy(), now)
	assert.True(t, d.NoOp)
	assert.NoError(t, d.Err())

	d = Transition(sub, Event{Type: EventAdminCancel}, DefaultPolicy(), now)
	err := d.Err()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error_cannot_cancel")
	assert.Equal(t, "subscription is cancelled", domain.Reason(err))
	assert.Equal(t, "rejected", d.Outcome())
}

func TestFromWebhook(t *testing.T) {
	ev, ok := FromWebhook(ports.EventProviderRefunded)
	assert.True(t, ok)
	assert.Equal(t, EventProviderRefunded, ev)

	_, ok = FromWebhook(ports.EventIgnored)
	assert.False(t, ok)
}

func TestTransition_RenewalDuringPendingCancellation(t *testing.T) {
	policy := DefaultPolicy()
	renewal := fixtures.Clock.AddDate(0, 1, 0)
	sub := fixtures.NewSubscription().PendingCancellation(models.CancellationSourceFrontend, renewal).Build()

	paid := Transition(sub, Event{Type: EventProviderPaymentSucceeded, PaymentTime: &renewal}, policy, renewal)
	require.NotNil(t, paid.Next)
	assert.Equal(t, models.SubStatusPendingCancellation, paid.Next.Status)

	periodEnd := models.CalculateEndDate(renewal, sub.BillingFrequency)
	require.NotNil(t, paid.Next.NextBillingDate)
	assert.True(t, paid.Next.NextBillingDate.Equal(periodEnd))
	assert.True(t, PaidThrough(paid.Next).Equal(periodEnd))

	swept := Transition(paid.Next, Event{Type: EventGracePeriodSweep}, policy, renewal.Add(time.Hour))
	assert.True(t, swept.NoOp)
	assert.Nil(t, swept.Next)
	assert.Equal(t, Effects{}, swept.Effects)

	swept = Transition(paid.Next, Event{Type: EventGracePeriodSweep}, policy, periodEnd)
	require.NotNil(t, swept.Next)
	assert.Equal(t, models.SubStatusCancelled, swept.Next.Status)
	assert.True(t, swept.Effects.CancelRemote)
}
