package timeutil

import "time"

// Now returns the current time in UTC
// Always use this instead of time.Now() to ensure timezone consistency
func Now() time.Time {
	return time.Now().UTC()
}

// Clock supplies the current time; services take one so tests can pin it
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC
type SystemClock struct{}

// Now implements Clock
func (SystemClock) Now() time.Time {
	return Now()
}

// FixedClock always returns the same instant
type FixedClock struct {
	T time.Time
}

// Now implements Clock
func (c FixedClock) Now() time.Time {
	return c.T
}

// ParseTimestamp parses an RFC3339 timestamp as sent by payment providers and
// returns it in UTC. Empty input yields nil.
func ParseTimestamp(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, err
	}
	t = t.UTC()
	return &t, nil
}

// Ptr returns a pointer to a UTC copy of t
func Ptr(t time.Time) *time.Time {
	u := t.UTC()
	return &u
}

// StartOfDay returns the start of the day (midnight) in UTC
func StartOfDay(t time.Time) time.Time {
	year, month, day := t.UTC().Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
