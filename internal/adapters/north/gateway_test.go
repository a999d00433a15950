package north

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kevin07696/subscription-service/internal/domain/models"
	"github.com/kevin07696/subscription-service/internal/domain/ports"
	"github.com/kevin07696/subscription-service/internal/testutil/fixtures"
	pkgerrors "github.com/kevin07696/subscription-service/pkg/errors"
	"github.com/kevin07696/subscription-service/test/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testAuth = AuthConfig{
	EPIId:  "7000-700010-1-1",
	EPIKey: "test-secret-key",
}

func setupGatewayTest(t *testing.T, handler http.HandlerFunc) *Gateway {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewGateway(testAuth, server.URL, &http.Client{}, mocks.NewMockLogger())
}

// verifySigned asserts the request carries a valid EPI signature and returns its body
func verifySigned(t *testing.T, r *http.Request) []byte {
	t.Helper()
	body, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	assert.Equal(t, testAuth.EPIId, r.Header.Get(HeaderEPIId))
	assert.True(t, ValidateSignature(testAuth.EPIKey, r.URL.Path, body, r.Header.Get(HeaderSignature)))
	return body
}

func TestGateway_CreateRemoteSubscription(t *testing.T) {
	g := setupGatewayTest(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/subscription/checkout", r.URL.Path)

		var req CheckoutRequest
		require.NoError(t, json.Unmarshal(verifySigned(t, r), &req))
		assert.Equal(t, "session-key", req.ReferenceID)
		assert.Equal(t, "11.90", req.SubscriptionData.Amount)
		assert.Equal(t, "Monthly", req.SubscriptionData.Frequency)
		assert.Equal(t, "grace@example.com", req.CustomerData.Email)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":48213,"status":"Pending","checkoutUrl":"https://pay.north.example/c/48213","response":"00"}`))
	})

	remote, err := g.CreateRemoteSubscription(context.Background(), ports.RemoteSubscriptionRequest{
		Plan:          fixtures.NewPlan(),
		Customer:      models.CustomerData{FirstName: "Grace", LastName: "Hopper", Email: "grace@example.com"},
		TotalAmount:   "11.90",
		SuccessURL:    "https://app.example/return?session=session-key",
		CorrelationID: "session-key",
	})
	require.NoError(t, err)
	assert.Equal(t, "48213", remote.RemoteID)
	assert.Equal(t, "https://pay.north.example/c/48213", remote.ApprovalURL)
	assert.Equal(t, ports.RemoteStatusApprovalPending, remote.Status)
}

func TestGateway_CreateDeclined(t *testing.T) {
	g := setupGatewayTest(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":1,"response":"05","responseText":"DO NOT HONOR"}`))
	})

	_, err := g.CreateRemoteSubscription(context.Background(), ports.RemoteSubscriptionRequest{Plan: fixtures.NewPlan()})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsGatewayError(err))
	assert.False(t, pkgerrors.IsRetriable(err))
}

func TestGateway_Actions(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
		call     func(g *Gateway) error
	}{
		{"cancel", "/subscription/cancel", func(g *Gateway) error { return g.CancelRemote(context.Background(), "48213", "refund") }},
		{"suspend", "/subscription/pause", func(g *Gateway) error { return g.SuspendRemote(context.Background(), "48213", "dunning") }},
		{"reactivate", "/subscription/resume", func(g *Gateway) error { return g.ReactivateRemote(context.Background(), "48213", "admin") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := setupGatewayTest(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, tt.endpoint, r.URL.Path)
				var body map[string]interface{}
				require.NoError(t, json.Unmarshal(verifySigned(t, r), &body))
				assert.Equal(t, "48213", body["subscriptionId"])
				w.Write([]byte(`{"id":48213,"response":"00"}`))
			})
			require.NoError(t, tt.call(g))
		})
	}
}

func TestGateway_FetchRemoteStatus(t *testing.T) {
	g := setupGatewayTest(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/subscription/48213", r.URL.Path)
		verifySigned(t, r)
		w.Write([]byte(`{"id":48213,"status":"Paused"}`))
	})

	status, err := g.FetchRemoteStatus(context.Background(), "48213")
	require.NoError(t, err)
	assert.Equal(t, ports.RemoteStatusSuspended, status)
}

func TestGateway_HTTPErrors(t *testing.T) {
	tests := []struct {
		status    int
		code      string
		retriable bool
	}{
		{http.StatusBadRequest, pkgerrors.CodeRequestError, false},
		{http.StatusUnauthorized, pkgerrors.CodeAuthError, false},
		{http.StatusBadGateway, pkgerrors.CodeGatewayError, true},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			g := setupGatewayTest(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})
			_, err := g.FetchRemoteStatus(context.Background(), "48213")
			require.Error(t, err)

			var ge *pkgerrors.GatewayError
			require.ErrorAs(t, err, &ge)
			assert.Equal(t, tt.code, ge.Code)
			assert.Equal(t, tt.retriable, ge.IsRetriable)
		})
	}
}

func TestGateway_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	g := NewGateway(testAuth, url, &http.Client{}, mocks.NewMockLogger())
	err := g.CancelRemote(context.Background(), "48213", "test")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsRetriable(err))
}

func TestCalculateSignature(t *testing.T) {
	sig := CalculateSignature(testAuth.EPIKey, "/subscription", []byte(`{"amount":"10.00"}`))
	assert.Regexp(t, "^[0-9a-f]{64}$", sig)
	assert.Equal(t, sig, CalculateSignature(testAuth.EPIKey, "/subscription", []byte(`{"amount":"10.00"}`)))
	assert.NotEqual(t, sig, CalculateSignature(testAuth.EPIKey, "/subscription", []byte(`{"amount":"20.00"}`)))
	assert.NotEqual(t, sig, CalculateSignature("other-key", "/subscription", []byte(`{"amount":"10.00"}`)))

	assert.True(t, ValidateSignature(testAuth.EPIKey, "/subscription", []byte(`{"amount":"10.00"}`), sig))
	assert.False(t, ValidateSignature(testAuth.EPIKey, "/subscription", []byte(`{"amount":"10.00"}`), ""))
}
