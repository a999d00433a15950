// Package admin serves the checkout and subscription administration API
package admin

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/kevin07696/subscription-service/internal/domain"
	"github.com/kevin07696/subscription-service/internal/domain/models"
	"github.com/kevin07696/subscription-service/internal/domain/ports"
	"github.com/kevin07696/subscription-service/internal/services/lifecycle"
	pkgerrors "github.com/kevin07696/subscription-service/pkg/errors"
	"github.com/kevin07696/subscription-service/pkg/timeutil"
	"go.uber.org/zap"
)

// HeaderAdminToken carries the shared admin API token
const HeaderAdminToken = "X-Admin-Token"

const maxRequestBodySize = 1 << 20

// Handler exposes ports.SubscriptionService over JSON
type Handler struct {
	service  ports.SubscriptionService
	token    string
	validate *validator.Validate
	clock    timeutil.Clock
	logger   *zap.Logger
}

// NewHandler creates the admin handler. Requests must present token in
// X-Admin-Token.
func NewHandler(service ports.SubscriptionService, token string, logger *zap.Logger) *Handler {
	return &Handler{
		service:  service,
		token:    token,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		clock:    timeutil.SystemClock{},
		logger:   logger,
	}
}

// WithClock replaces the wall clock used for derived window flags
func (h *Handler) WithClock(c timeutil.Clock) *Handler {
	h.clock = c
	return h
}

// RegisterRoutes mounts the admin API under /api/v1
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(h.requireToken)

		r.Post("/checkout", h.CreateCheckout)
		r.Post("/checkout/{sessionKey}/confirm", h.ConfirmCheckout)

		r.Get("/subscriptions/stats", h.Stats)
		r.Get("/subscriptions/{id}", h.GetSubscription)
		r.Delete("/subscriptions/{id}", h.action("delete", h.service.Delete))
		r.Post("/subscriptions/{id}/cancel", h.action("cancel", h.service.Cancel))
		r.Post("/subscriptions/{id}/force-cancel", h.action("force_cancel", h.service.ForceCancel))
		r.Post("/subscriptions/{id}/resume", h.action("resume", h.service.Resume))
		r.Post("/subscriptions/{id}/activate", h.action("activate", h.service.Activate))
	})
}

func (h *Handler) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get(HeaderAdminToken)
		if h.token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(h.token)) != 1 {
			h.logger.Warn("unauthorized admin request",
				zap.String("path", r.URL.Path),
				zap.String("remote_addr", r.RemoteAddr))
			respondError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// SubscriptionView is the JSON shape of a subscription
type SubscriptionView struct {
	ID                    string              `json:"id"`
	UserID                string              `json:"user_id"`
	ApplicationID         string              `json:"application_id"`
	PlanID                string              `json:"plan_id"`
	ExternalPlanID        string              `json:"external_plan_id,omitempty"`
	PaymentMethod         string              `json:"payment_method"`
	PaymentID             string              `json:"payment_id,omitempty"`
	Status                string              `json:"status"`
	CancellationSource    string              `json:"cancellation_source"`
	PaymentStatus         string              `json:"payment_status"`
	RetryCount            int                 `json:"retry_count"`
	RetryPeriodEnd        *time.Time          `json:"retry_period_end,omitempty"`
	GracePeriodEnd        *time.Time          `json:"grace_period_end,omitempty"`
	NextBillingDate       *time.Time          `json:"next_billing_date,omitempty"`
	StartDate             time.Time           `json:"start_date"`
	EndDate               *time.Time          `json:"end_date,omitempty"`
	LastPaymentDate       *time.Time          `json:"last_payment_date,omitempty"`
	LastFailedPaymentDate *time.Time          `json:"last_failed_payment_date,omitempty"`
	Amount                string              `json:"amount"`
	TaxAmount             string              `json:"tax_amount"`
	TotalAmount           string              `json:"total_amount"`
	Currency              string              `json:"currency"`
	BillingFrequency      string              `json:"billing_frequency"`
	Customer              models.CustomerData `json:"customer"`
	InRetryWindow         bool                `json:"in_retry_window"`
	InGraceWindow         bool                `json:"in_grace_window"`
	CreatedAt             time.Time           `json:"created_at"`
	UpdatedAt             time.Time           `json:"updated_at"`
}

func (h *Handler) view(sub *models.Subscription) SubscriptionView {
	now := h.clock.Now()
	return SubscriptionView{
		ID:                    sub.ID.String(),
		UserID:                sub.UserID,
		ApplicationID:         sub.ApplicationID,
		PlanID:                sub.PlanID,
		ExternalPlanID:        sub.ExternalPlanID,
		PaymentMethod:         string(sub.PaymentMethod),
		PaymentID:             sub.PaymentID,
		Status:                string(sub.Status),
		CancellationSource:    string(sub.CancellationSource),
		PaymentStatus:         string(sub.PaymentStatus),
		RetryCount:            sub.RetryCount,
		RetryPeriodEnd:        sub.RetryPeriodEnd,
		GracePeriodEnd:        sub.GracePeriodEnd,
		NextBillingDate:       sub.NextBillingDate,
		StartDate:             sub.StartDate,
		EndDate:               sub.EndDate,
		LastPaymentDate:       sub.LastPaymentDate,
		LastFailedPaymentDate: sub.LastFailedPaymentDate,
		Amount:                sub.Amount.StringFixed(2),
		TaxAmount:             sub.TaxAmount.StringFixed(2),
		TotalAmount:           sub.TotalAmount.StringFixed(2),
		Currency:              sub.Currency,
		BillingFrequency:      string(sub.BillingFrequency),
		Customer:              sub.CustomerData,
		InRetryWindow:         lifecycle.IsInRetryWindow(sub, now),
		InGraceWindow:         lifecycle.IsInGraceWindow(sub, now),
		CreatedAt:             sub.CreatedAt,
		UpdatedAt:             sub.UpdatedAt,
	}
}

// CreateCheckout handles POST /api/v1/checkout
func (h *Handler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	var req ports.ServiceCreateSubscriptionRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, formatValidationErrors(err))
		return
	}

	resp, err := h.service.CreateSubscription(r.Context(), req)
	if err != nil {
		h.handleError(w, "create checkout", err)
		return
	}
	respondJSON(w, http.StatusCreated, resp)
}

// ConfirmCheckout handles POST /api/v1/checkout/{sessionKey}/confirm
func (h *Handler) ConfirmCheckout(w http.ResponseWriter, r *http.Request) {
	sessionKey := chi.URLParam(r, "sessionKey")
	sub, err := h.service.ConfirmCheckout(r.Context(), sessionKey)
	if err != nil {
		h.handleError(w, "confirm checkout", err)
		return
	}
	respondJSON(w, http.StatusOK, h.view(sub))
}

// GetSubscription handles GET /api/v1/subscriptions/{id}
func (h *Handler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	sub, err := h.service.GetSubscription(r.Context(), id)
	if err != nil {
		h.handleError(w, "get subscription", err)
		return
	}
	respondJSON(w, http.StatusOK, h.view(sub))
}

// Stats handles GET /api/v1/subscriptions/stats
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.service.Stats(r.Context())
	if err != nil {
		h.handleError(w, "stats", err)
		return
	}

	out := make(map[string]int64, len(models.AllStatuses)+1)
	var total int64
	for _, status := range models.AllStatuses {
		out[string(status)] = counts[status]
		total += counts[status]
	}
	out["total"] = total
	respondJSON(w, http.StatusOK, out)
}

// actionResponse is the body of every lifecycle action
type actionResponse struct {
	Success      bool              `json:"success"`
	Message      string            `json:"message"`
	Warning      string            `json:"warning,omitempty"`
	Subscription *SubscriptionView `json:"subscription,omitempty"`
}

func (h *Handler) action(name string, fn func(ctx context.Context, id uuid.UUID) (*ports.ActionResult, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(w, r)
		if !ok {
			return
		}

		result, err := fn(r.Context(), id)
		if err != nil {
			h.handleError(w, name, err)
			return
		}

		resp := actionResponse{Success: result.Success, Message: result.Message}
		if result.Subscription != nil && name != "delete" {
			v := h.view(result.Subscription)
			resp.Subscription = &v
		}
		if result.RemoteErr != nil {
			resp.Warning = "provider update failed: " + publicGatewayMessage(result.RemoteErr)
		}

		h.logger.Info("admin action completed",
			zap.String("action", name),
			zap.String("subscription_id", id.String()),
			zap.String("message", result.Message))
		respondJSON(w, http.StatusOK, resp)
	}
}

func (h *Handler) handleError(w http.ResponseWriter, op string, err error) {
	switch {
	case domain.IsNotFoundError(err):
		respondError(w, http.StatusNotFound, err.Error())
	case domain.IsValidationError(err):
		respondError(w, http.StatusBadRequest, err.Error())
	case domain.IsTransitionError(err):
		var de *domain.DomainError
		errors.As(err, &de)
		respondJSON(w, http.StatusConflict, map[string]interface{}{
			"success": false,
			"error":   de.Message,
			"reason":  domain.Reason(err),
		})
	case domain.IsDomainError(err, domain.ErrorCodeGatewayUnsupported):
		respondError(w, http.StatusBadRequest, err.Error())
	case pkgerrors.IsGatewayError(err):
		h.logger.Error("gateway call failed", zap.String("operation", op), zap.Error(err))
		respondError(w, http.StatusBadGateway, "payment provider error: "+publicGatewayMessage(err))
	default:
		h.logger.Error("admin request failed", zap.String("operation", op), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func publicGatewayMessage(err error) string {
	var ge *pkgerrors.GatewayError
	if errors.As(err, &ge) {
		return ge.Message
	}
	return "unavailable"
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid subscription id")
		return uuid.Nil, false
	}
	return id, true
}

func formatValidationErrors(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "invalid request"
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed on %s", fe.Namespace(), fe.Tag()))
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

func respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]interface{}{"success": false, "error": message})
}
