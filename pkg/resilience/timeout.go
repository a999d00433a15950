package resilience

import (
	"context"
	"time"
)

// TimeoutConfig defines the timeout hierarchy, outermost first:
//
//	HTTP handler (60s)
//	  provider call (45s)
//	    single provider attempt (15s)
//	  provisioning delivery (10s)
//	  database statement (5s)
//
// Each layer completes before its parent times out.
type TimeoutConfig struct {
	HTTPHandler  time.Duration
	CronJob      time.Duration
	ProviderCall time.Duration
	SingleRetry  time.Duration
	Provisioning time.Duration
	Database     time.Duration
}

// DefaultTimeoutConfig returns production timeout values
func DefaultTimeoutConfig() *TimeoutConfig {
	return &TimeoutConfig{
		HTTPHandler:  60 * time.Second,
		CronJob:      5 * time.Minute,
		ProviderCall: 45 * time.Second,
		SingleRetry:  15 * time.Second,
		Provisioning: 10 * time.Second,
		Database:     5 * time.Second,
	}
}

// TestTimeoutConfig returns shorter timeouts for testing
func TestTimeoutConfig() *TimeoutConfig {
	return &TimeoutConfig{
		HTTPHandler:  5 * time.Second,
		CronJob:      30 * time.Second,
		ProviderCall: 3 * time.Second,
		SingleRetry:  1 * time.Second,
		Provisioning: 1 * time.Second,
		Database:     1 * time.Second,
	}
}

// HandlerContext creates a context with timeout for HTTP handlers
func (tc *TimeoutConfig) HandlerContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.HTTPHandler)
}

// CronContext creates a context with timeout for cron jobs
func (tc *TimeoutConfig) CronContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.CronJob)
}

// ProviderContext creates a context for a payment provider call, retries included
func (tc *TimeoutConfig) ProviderContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.ProviderCall)
}

// RetryAttemptContext creates a context for a single retry attempt
func (tc *TimeoutConfig) RetryAttemptContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.SingleRetry)
}

// ProvisioningContext creates a context for one provisioning delivery
func (tc *TimeoutConfig) ProvisioningContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.Provisioning)
}

// DatabaseContext creates a context for a single database statement
func (tc *TimeoutConfig) DatabaseContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.Database)
}
