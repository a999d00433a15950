// Package paypal implements the gateway for PayPal Billing Subscriptions
package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/kevin07696/subscription-service/internal/domain/models"
	"github.com/kevin07696/subscription-service/internal/domain/ports"
	pkgerrors "github.com/kevin07696/subscription-service/pkg/errors"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	SandboxBaseURL = "https://api-m.sandbox.paypal.com"
	LiveBaseURL    = "https://api-m.paypal.com"
)

// Config holds PayPal REST credentials
type Config struct {
	ClientID     string
	ClientSecret string
	BaseURL      string
	WebhookID    string // id of the webhook registered for this app, used by verify-webhook-signature
	BrandName    string
}

// Gateway implements ports.Gateway and ports.WebhookDecoder for PayPal
type Gateway struct {
	cfg        Config
	httpClient ports.HTTPClient
	logger     ports.Logger

	mu     sync.Mutex
	tokens oauth2.TokenSource
}

// NewGateway creates a PayPal gateway. Access tokens are fetched with the
// client credentials grant and cached until they expire.
func NewGateway(cfg Config, httpClient ports.HTTPClient, logger ports.Logger) *Gateway {
	if cfg.BaseURL == "" {
		cfg.BaseURL = SandboxBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	g := &Gateway{
		cfg:        cfg,
		httpClient: httpClient,
		logger:     logger,
	}
	g.tokens = g.newTokenSource()
	return g
}

func (g *Gateway) Method() models.PaymentMethod {
	return models.PaymentMethodPayPal
}

func (g *Gateway) newTokenSource() oauth2.TokenSource {
	cc := &clientcredentials.Config{
		ClientID:     g.cfg.ClientID,
		ClientSecret: g.cfg.ClientSecret,
		TokenURL:     g.cfg.BaseURL + "/v1/oauth2/token",
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, tokenHTTPClient(g.httpClient))
	return cc.TokenSource(ctx)
}

// resetToken drops the cached token so the next call fetches a fresh one
func (g *Gateway) resetToken() {
	g.mu.Lock()
	g.tokens = g.newTokenSource()
	g.mu.Unlock()
}

func (g *Gateway) accessToken() (string, error) {
	g.mu.Lock()
	ts := g.tokens
	g.mu.Unlock()

	tok, err := ts.Token()
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil && re.Response.StatusCode >= 500 {
			return "", pkgerrors.NewGatewayError(pkgerrors.CodeGatewayError, "token endpoint unavailable", pkgerrors.CategoryUnavailable, true).WithCause(err)
		}
		if errors.As(err, &re) {
			return "", pkgerrors.NewGatewayError(pkgerrors.CodeAuthError, "failed to obtain access token", pkgerrors.CategoryAuthError, false).WithCause(err)
		}
		return "", pkgerrors.NewGatewayError(pkgerrors.CodeNetworkError, "failed to obtain access token", pkgerrors.CategoryNetworkError, true).WithCause(err)
	}
	return tok.AccessToken, nil
}

// apiError is the body PayPal returns for 4xx and 5xx responses
type apiError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Details []struct {
		Issue       string `json:"issue"`
		Description string `json:"description"`
	} `json:"details"`
}

func (e apiError) hasIssue(issue string) bool {
	for _, d := range e.Details {
		if d.Issue == issue {
			return true
		}
	}
	return false
}

// statusError is a non-2xx answer with its decoded body
type statusError struct {
	*pkgerrors.GatewayError
	body apiError
}

// do sends an authenticated JSON request. A 401 invalidates the cached token
// and the request is retried once with a fresh one.
func (g *Gateway) do(ctx context.Context, method, path string, headers map[string]string, request, response interface{}) error {
	var payload []byte
	if request != nil {
		var err error
		payload, err = json.Marshal(request)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	err := g.send(ctx, method, path, headers, payload, response)
	var se *statusError
	if errors.As(err, &se) && se.StatusCode == http.StatusUnauthorized {
		g.logger.Warn("paypal rejected access token, refreshing",
			ports.String("path", path))
		g.resetToken()
		err = g.send(ctx, method, path, headers, payload, response)
	}
	return err
}

func (g *Gateway) send(ctx context.Context, method, path string, headers map[string]string, payload []byte, response interface{}) error {
	token, err := g.accessToken()
	if err != nil {
		return err
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, g.cfg.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	g.logger.Debug("making request to PayPal",
		ports.String("method", method),
		ports.String("path", path))

	resp, err := g.httpClient.Do(req)
	if err != nil {
		if pkgerrors.IsGatewayError(err) {
			return err
		}
		return pkgerrors.NewGatewayError(pkgerrors.CodeNetworkError, "failed to connect to PayPal", pkgerrors.CategoryNetworkError, true).WithCause(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return pkgerrors.NewGatewayError(pkgerrors.CodeNetworkError, "failed to read response body", pkgerrors.CategoryNetworkError, true).WithCause(err)
	}

	if resp.StatusCode >= 400 {
		se := &statusError{GatewayError: pkgerrors.FromStatus(resp.StatusCode, string(raw))}
		if json.Unmarshal(raw, &se.body) == nil && se.body.Name != "" {
			se.GatewayMessage = se.body.Name + ": " + se.body.Message
		}
		return se
	}

	if response != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, response); err != nil {
			return pkgerrors.NewGatewayError(pkgerrors.CodeDecodeError, "failed to decode PayPal response", pkgerrors.CategoryProviderError, false).WithCause(err)
		}
	}
	return nil
}

// Unwrap exposes the gateway error to errors.As
func (e *statusError) Unwrap() error {
	return e.GatewayError
}

// tokenHTTPClient adapts the configured client for the oauth2 package,
// which only accepts *http.Client
func tokenHTTPClient(c ports.HTTPClient) *http.Client {
	if hc, ok := c.(*http.Client); ok {
		return hc
	}
	return &http.Client{Transport: doerTransport{c}}
}

type doerTransport struct {
	client ports.HTTPClient
}

func (t doerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.client.Do(req)
}
