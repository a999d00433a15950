package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	pkgerrors "github.com/kevin07696/subscription-service/pkg/errors"
	"github.com/kevin07696/subscription-service/pkg/resilience"
	"github.com/sony/gobreaker/v2"
)

// Doer is the subset of *http.Client used by ResilientClient
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ResilientClient wraps a Doer with a circuit breaker and bounded retries on
// network errors, 429 and 5xx. Request bodies are replayed on each attempt.
type ResilientClient struct {
	client     Doer
	breaker    *gobreaker.CircuitBreaker[*http.Response]
	backoff    resilience.BackoffStrategy
	maxRetries int
	sleep      func(ctx context.Context, d time.Duration) error
}

// ResilientOption customizes a ResilientClient
type ResilientOption func(*ResilientClient)

// WithBackoff overrides the retry backoff strategy
func WithBackoff(b resilience.BackoffStrategy) ResilientOption {
	return func(c *ResilientClient) { c.backoff = b }
}

// WithMaxRetries overrides the number of retries after the first attempt
func WithMaxRetries(n int) ResilientOption {
	return func(c *ResilientClient) { c.maxRetries = n }
}

// WithBreaker supplies a caller-built breaker, e.g. one shared between clients
func WithBreaker(cb *gobreaker.CircuitBreaker[*http.Response]) ResilientOption {
	return func(c *ResilientClient) { c.breaker = cb }
}

// NewResilientClient creates a client whose breaker trips after five
// consecutive failures and half-opens after 30s
func NewResilientClient(client Doer, name string, opts ...ResilientOption) *ResilientClient {
	rc := &ResilientClient{
		client:     client,
		backoff:    resilience.ProviderBackoff(),
		maxRetries: 2,
		sleep:      sleepCtx,
		breaker: gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
			Name:        name,
			MaxRequests: 1,
			Interval:    60 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
	for _, opt := range opts {
		opt(rc)
	}
	return rc
}

// State exposes the breaker state for health reporting
func (c *ResilientClient) State() string {
	return c.breaker.State().String()
}

// Do executes req. Non-retryable responses (2xx-4xx except 429) are returned
// as-is; the caller closes the body. Exhausted retries, transport failures
// and an open breaker are reported as *errors.GatewayError.
func (c *ResilientClient) Do(req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil {
		var err error
		body, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, pkgerrors.NewGatewayError(pkgerrors.CodeRequestError, "read request body", pkgerrors.CategoryInvalidRequest, false).WithCause(err)
		}
		req.Body.Close()
	}

	var lastErr error
	var lastStatus int
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if body != nil {
			req.Body = io.NopCloser(bytes.NewReader(body))
			req.ContentLength = int64(len(body))
		}

		resp, err := c.breaker.Execute(func() (*http.Response, error) {
			r, doErr := c.client.Do(req)
			if doErr != nil {
				return nil, doErr
			}
			if r.StatusCode >= 500 || r.StatusCode == http.StatusTooManyRequests {
				return r, fmt.Errorf("upstream returned %d", r.StatusCode)
			}
			return r, nil
		})
		if err == nil {
			return resp, nil
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, pkgerrors.NewGatewayError(pkgerrors.CodeCircuitOpen, "provider circuit breaker is open", pkgerrors.CategoryUnavailable, true).WithCause(err)
		}

		lastErr = err
		lastStatus = 0
		if resp != nil {
			lastStatus = resp.StatusCode
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}

		if req.Context().Err() != nil {
			break
		}
		if attempt < c.maxRetries {
			if sleepErr := c.sleep(req.Context(), c.backoff.NextDelay(attempt)); sleepErr != nil {
				lastErr = sleepErr
				break
			}
		}
	}

	if lastStatus > 0 {
		ge := pkgerrors.FromStatus(lastStatus, "")
		ge.Message = fmt.Sprintf("%s after %d attempts", ge.Message, c.maxRetries+1)
		return nil, ge.WithCause(lastErr)
	}
	return nil, pkgerrors.NewGatewayError(pkgerrors.CodeNetworkError, "provider unreachable", pkgerrors.CategoryNetworkError, true).WithCause(lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
