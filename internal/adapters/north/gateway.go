// Package north implements the gateway for North recurring billing
package north

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/kevin07696/subscription-service/internal/domain/models"
	"github.com/kevin07696/subscription-service/internal/domain/ports"
	pkgerrors "github.com/kevin07696/subscription-service/pkg/errors"
)

// Gateway implements ports.Gateway for the North recurring billing API
type Gateway struct {
	config     AuthConfig
	baseURL    string
	httpClient ports.HTTPClient
	logger     ports.Logger
}

// NewGateway creates a North gateway with explicit configuration
func NewGateway(config AuthConfig, baseURL string, httpClient ports.HTTPClient, logger ports.Logger) *Gateway {
	return &Gateway{
		config:     config,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
}

// CheckoutRequest opens a hosted recurring checkout
type CheckoutRequest struct {
	CustomerData struct {
		FirstName string `json:"firstName"`
		LastName  string `json:"lastName"`
		Email     string `json:"email"`
		Company   string `json:"company,omitempty"`
	} `json:"customerData"`
	SubscriptionData struct {
		PlanID    string `json:"planId,omitempty"`
		Amount    string `json:"amount"`
		Currency  string `json:"currency"`
		Frequency string `json:"frequency"`
	} `json:"subscriptionData"`
	ReferenceID string `json:"referenceId"`
	ReturnURL   string `json:"returnUrl"`
	CancelURL   string `json:"cancelUrl"`
}

// SubscriptionResponse is North's view of a recurring subscription
type SubscriptionResponse struct {
	ID              json.Number `json:"id"`
	Status          string      `json:"status"`
	CheckoutURL     string      `json:"checkoutUrl,omitempty"`
	NextBillingDate string      `json:"nextBillingDate,omitempty"`
	Response        string      `json:"response,omitempty"`
	ResponseText    string      `json:"responseText,omitempty"`
}

func (g *Gateway) Method() models.PaymentMethod {
	return models.PaymentMethodNorth
}

// CreateRemoteSubscription opens a hosted checkout for a new subscription
func (g *Gateway) CreateRemoteSubscription(ctx context.Context, req ports.RemoteSubscriptionRequest) (*ports.RemoteSubscription, error) {
	apiReq := CheckoutRequest{
		ReferenceID: req.CorrelationID,
		ReturnURL:   req.SuccessURL,
		CancelURL:   req.CancelURL,
	}
	apiReq.CustomerData.FirstName = req.Customer.FirstName
	apiReq.CustomerData.LastName = req.Customer.LastName
	apiReq.CustomerData.Email = req.Customer.Email
	apiReq.CustomerData.Company = req.Customer.Company
	apiReq.SubscriptionData.PlanID = req.Plan.GatewayPlanID
	apiReq.SubscriptionData.Amount = req.TotalAmount
	apiReq.SubscriptionData.Currency = req.Plan.Currency
	apiReq.SubscriptionData.Frequency = mapFrequencyToAPI(req.Plan.BillingFrequency)

	var resp SubscriptionResponse
	if err := g.makeRequest(ctx, http.MethodPost, "/subscription/checkout", apiReq, &resp); err != nil {
		return nil, err
	}
	if !Approved(resp.Response) {
		return nil, GetResponseCode(resp.Response).ToGatewayError(resp.ResponseText)
	}
	if resp.ID.String() == "" || resp.CheckoutURL == "" {
		return nil, pkgerrors.NewGatewayError(pkgerrors.CodeDecodeError, "checkout response missing id or url", pkgerrors.CategoryProviderError, false)
	}

	return &ports.RemoteSubscription{
		RemoteID:    resp.ID.String(),
		ApprovalURL: resp.CheckoutURL,
		Status:      mapStatusFromAPI(resp.Status),
	}, nil
}

// CancelRemote cancels immediately; cancelling twice is not an error
func (g *Gateway) CancelRemote(ctx context.Context, remoteID, reason string) error {
	return g.action(ctx, "/subscription/cancel", remoteID, reason)
}

// SuspendRemote pauses billing
func (g *Gateway) SuspendRemote(ctx context.Context, remoteID, reason string) error {
	return g.action(ctx, "/subscription/pause", remoteID, reason)
}

// ReactivateRemote resumes a paused subscription
func (g *Gateway) ReactivateRemote(ctx context.Context, remoteID, reason string) error {
	return g.action(ctx, "/subscription/resume", remoteID, reason)
}

// FetchRemoteStatus reads the provider status
func (g *Gateway) FetchRemoteStatus(ctx context.Context, remoteID string) (ports.RemoteStatus, error) {
	var resp SubscriptionResponse
	if err := g.makeRequest(ctx, http.MethodGet, "/subscription/"+remoteID, nil, &resp); err != nil {
		return ports.RemoteStatusUnknown, err
	}
	return mapStatusFromAPI(resp.Status), nil
}

func (g *Gateway) action(ctx context.Context, endpoint, remoteID, reason string) error {
	apiReq := map[string]interface{}{
		"subscriptionId": remoteID,
		"immediate":      true,
		"reason":         reason,
	}
	var resp SubscriptionResponse
	if err := g.makeRequest(ctx, http.MethodPost, endpoint, apiReq, &resp); err != nil {
		return err
	}
	if !Approved(resp.Response) {
		return GetResponseCode(resp.Response).ToGatewayError(resp.ResponseText)
	}
	return nil
}

// makeRequest sends an HMAC-signed JSON request and decodes the response
func (g *Gateway) makeRequest(ctx context.Context, method, endpoint string, request, response interface{}) error {
	payload := []byte{}
	if request != nil {
		var err error
		payload, err = json.Marshal(request)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, g.baseURL+endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	g.config.sign(httpReq, endpoint, payload)

	g.logger.Debug("making request to North recurring billing",
		ports.String("method", method),
		ports.String("endpoint", endpoint))

	httpResp, err := g.httpClient.Do(httpReq)
	if err != nil {
		if pkgerrors.IsGatewayError(err) {
			return err
		}
		return pkgerrors.NewGatewayError(pkgerrors.CodeNetworkError, "failed to connect to payment gateway", pkgerrors.CategoryNetworkError, true).WithCause(err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return pkgerrors.NewGatewayError(pkgerrors.CodeNetworkError, "failed to read response body", pkgerrors.CategoryNetworkError, true).WithCause(err)
	}

	if httpResp.StatusCode >= 400 {
		return pkgerrors.FromStatus(httpResp.StatusCode, string(body))
	}

	if response != nil && len(body) > 0 {
		if err := json.Unmarshal(body, response); err != nil {
			return pkgerrors.NewGatewayError(pkgerrors.CodeDecodeError, "failed to decode response", pkgerrors.CategoryProviderError, false).WithCause(err)
		}
	}
	return nil
}

func mapFrequencyToAPI(freq models.BillingFrequency) string {
	switch freq {
	case models.FrequencyWeekly:
		return "Weekly"
	case models.FrequencyQuarterly:
		return "Quarterly"
	case models.FrequencyYearly:
		return "Yearly"
	default:
		return "Monthly"
	}
}

func mapStatusFromAPI(status string) ports.RemoteStatus {
	switch strings.ToLower(status) {
	case "pending":
		return ports.RemoteStatusApprovalPending
	case "active":
		return ports.RemoteStatusActive
	case "paused":
		return ports.RemoteStatusSuspended
	case "cancelled", "canceled":
		return ports.RemoteStatusCancelled
	case "expired":
		return ports.RemoteStatusExpired
	default:
		return ports.RemoteStatusUnknown
	}
}

var _ ports.Gateway = (*Gateway)(nil)
