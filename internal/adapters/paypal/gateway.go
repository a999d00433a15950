package paypal

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/kevin07696/subscription-service/internal/domain/ports"
	pkgerrors "github.com/kevin07696/subscription-service/pkg/errors"
)

const subscriptionsPath = "/v1/billing/subscriptions"

// maxReasonLength is PayPal's limit on the reason field of status changes
const maxReasonLength = 128

type name struct {
	GivenName string `json:"given_name,omitempty"`
	Surname   string `json:"surname,omitempty"`
}

type money struct {
	Value        string `json:"value"`
	CurrencyCode string `json:"currency_code"`
}

type billingCycle struct {
	Sequence      int `json:"sequence"`
	TotalCycles   int `json:"total_cycles"`
	PricingScheme struct {
		FixedPrice money `json:"fixed_price"`
	} `json:"pricing_scheme"`
}

// CreateSubscriptionRequest is the body of POST /v1/billing/subscriptions
type CreateSubscriptionRequest struct {
	PlanID     string `json:"plan_id"`
	CustomID   string `json:"custom_id,omitempty"`
	Subscriber struct {
		Name         name   `json:"name"`
		EmailAddress string `json:"email_address,omitempty"`
	} `json:"subscriber"`
	ApplicationContext struct {
		BrandName          string `json:"brand_name,omitempty"`
		ShippingPreference string `json:"shipping_preference"`
		UserAction         string `json:"user_action"`
		ReturnURL          string `json:"return_url"`
		CancelURL          string `json:"cancel_url"`
	} `json:"application_context"`
	Plan *struct {
		BillingCycles []billingCycle `json:"billing_cycles"`
	} `json:"plan,omitempty"`
}

type link struct {
	Href   string `json:"href"`
	Rel    string `json:"rel"`
	Method string `json:"method"`
}

// SubscriptionResource is PayPal's subscription object, shared by the REST
// API and the BILLING.SUBSCRIPTION.* webhooks
type SubscriptionResource struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	PlanID      string `json:"plan_id"`
	CustomID    string `json:"custom_id"`
	BillingInfo *struct {
		NextBillingTime     string `json:"next_billing_time"`
		FailedPaymentsCount int    `json:"failed_payments_count"`
		LastPayment         *struct {
			Time string `json:"time"`
		} `json:"last_payment"`
		LastFailedPayment *struct {
			Time string `json:"time"`
		} `json:"last_failed_payment"`
	} `json:"billing_info"`
	Links []link `json:"links"`
}

func (r SubscriptionResource) approveLink() string {
	for _, l := range r.Links {
		if l.Rel == "approve" {
			return l.Href
		}
	}
	return ""
}

// CreateRemoteSubscription creates an APPROVAL_PENDING subscription and
// returns the link the buyer must follow to approve it. The plan's price is
// overridden with the tax-inclusive total.
func (g *Gateway) CreateRemoteSubscription(ctx context.Context, req ports.RemoteSubscriptionRequest) (*ports.RemoteSubscription, error) {
	body := CreateSubscriptionRequest{
		PlanID:   req.Plan.GatewayPlanID,
		CustomID: req.CorrelationID,
	}
	body.Subscriber.Name = name{GivenName: req.Customer.FirstName, Surname: req.Customer.LastName}
	body.Subscriber.EmailAddress = req.Customer.Email
	body.ApplicationContext.BrandName = g.cfg.BrandName
	body.ApplicationContext.ShippingPreference = "NO_SHIPPING"
	body.ApplicationContext.UserAction = "SUBSCRIBE_NOW"
	body.ApplicationContext.ReturnURL = req.SuccessURL
	body.ApplicationContext.CancelURL = req.CancelURL

	if req.TotalAmount != "" {
		cycle := billingCycle{Sequence: 1}
		cycle.PricingScheme.FixedPrice = money{Value: req.TotalAmount, CurrencyCode: req.Plan.Currency}
		body.Plan = &struct {
			BillingCycles []billingCycle `json:"billing_cycles"`
		}{BillingCycles: []billingCycle{cycle}}
	}

	headers := map[string]string{"Prefer": "return=representation"}
	if req.CorrelationID != "" {
		headers["PayPal-Request-Id"] = req.CorrelationID
	}

	var resp SubscriptionResource
	if err := g.do(ctx, http.MethodPost, subscriptionsPath, headers, body, &resp); err != nil {
		return nil, err
	}

	approval := resp.approveLink()
	if resp.ID == "" || approval == "" {
		return nil, pkgerrors.NewGatewayError(pkgerrors.CodeDecodeError, "subscription response missing id or approve link", pkgerrors.CategoryProviderError, false)
	}

	return &ports.RemoteSubscription{
		RemoteID:    resp.ID,
		ApprovalURL: approval,
		Status:      mapStatus(resp.Status),
	}, nil
}

// CancelRemote cancels the subscription. A subscription PayPal already
// considers cancelled or expired is not an error.
func (g *Gateway) CancelRemote(ctx context.Context, remoteID, reason string) error {
	err := g.statusChange(ctx, remoteID, "cancel", reason)
	var se *statusError
	if errors.As(err, &se) && se.StatusCode == http.StatusUnprocessableEntity && se.body.hasIssue("SUBSCRIPTION_STATUS_INVALID") {
		g.logger.Info("paypal subscription already inactive",
			ports.String("payment_id", remoteID))
		return nil
	}
	return err
}

// SuspendRemote suspends billing
func (g *Gateway) SuspendRemote(ctx context.Context, remoteID, reason string) error {
	return g.statusChange(ctx, remoteID, "suspend", reason)
}

// ReactivateRemote activates a suspended subscription
func (g *Gateway) ReactivateRemote(ctx context.Context, remoteID, reason string) error {
	return g.statusChange(ctx, remoteID, "activate", reason)
}

// FetchRemoteStatus reads the subscription status
func (g *Gateway) FetchRemoteStatus(ctx context.Context, remoteID string) (ports.RemoteStatus, error) {
	var resp SubscriptionResource
	if err := g.do(ctx, http.MethodGet, subscriptionsPath+"/"+url.PathEscape(remoteID), nil, nil, &resp); err != nil {
		return ports.RemoteStatusUnknown, err
	}
	return mapStatus(resp.Status), nil
}

func (g *Gateway) statusChange(ctx context.Context, remoteID, action, reason string) error {
	if len(reason) > maxReasonLength {
		reason = reason[:maxReasonLength]
	}
	if reason == "" {
		reason = action
	}
	path := subscriptionsPath + "/" + url.PathEscape(remoteID) + "/" + action
	return g.do(ctx, http.MethodPost, path, nil, map[string]string{"reason": reason}, nil)
}

func mapStatus(status string) ports.RemoteStatus {
	switch status {
	case "APPROVAL_PENDING", "APPROVED":
		return ports.RemoteStatusApprovalPending
	case "ACTIVE":
		return ports.RemoteStatusActive
	case "SUSPENDED":
		return ports.RemoteStatusSuspended
	case "CANCELLED":
		return ports.RemoteStatusCancelled
	case "EXPIRED":
		return ports.RemoteStatusExpired
	default:
		return ports.RemoteStatusUnknown
	}
}

var _ ports.Gateway = (*Gateway)(nil)
