package resilience

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExponentialBackoff_NextDelay(t *testing.T) {
	backoff := &ExponentialBackoff{
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   10 * time.Second,
		Multiplier: 2.0,
		Jitter:     0.0,
	}

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{-1, 100 * time.Millisecond},
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{2, 400 * time.Millisecond},
		{6, 6400 * time.Millisecond},
		{7, 10 * time.Second},
		{20, 10 * time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, backoff.NextDelay(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestExponentialBackoff_JitterStaysInBounds(t *testing.T) {
	backoff := ProviderBackoff()

	for i := 0; i < 200; i++ {
		d := backoff.NextDelay(1)
		assert.GreaterOrEqual(t, d, 450*time.Millisecond)
		assert.LessOrEqual(t, d, 550*time.Millisecond)
	}
}

func TestProvisioningBackoff_Capped(t *testing.T) {
	backoff := ProvisioningBackoff()
	assert.LessOrEqual(t, backoff.NextDelay(30), 6*time.Hour+36*time.Minute)
}

func TestFixedBackoff(t *testing.T) {
	fb := &FixedBackoff{Delay: time.Second}
	assert.Equal(t, time.Second, fb.NextDelay(0))
	assert.Equal(t, time.Second, fb.NextDelay(9))
}
