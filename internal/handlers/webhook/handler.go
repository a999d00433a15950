// Package webhook serves the inbound provider webhook endpoint
package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kevin07696/subscription-service/internal/domain"
	webhooksvc "github.com/kevin07696/subscription-service/internal/services/webhook"
	"go.uber.org/zap"
)

// maxWebhookBodySize is the largest payload accepted from a provider
const maxWebhookBodySize = 64 * 1024

// Processor handles one raw provider delivery
type Processor interface {
	Handle(ctx context.Context, gateway string, headers http.Header, body []byte) (*webhooksvc.Result, error)
}

// Handler acknowledges provider webhooks. Anything the provider should
// redeliver is answered with 400; a disabled gateway with 403.
type Handler struct {
	processor Processor
	logger    *zap.Logger
}

func NewHandler(processor Processor, logger *zap.Logger) *Handler {
	return &Handler{processor: processor, logger: logger}
}

// RegisterRoutes mounts POST /webhook/{gateway} and POST /webhook?gateway=
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/webhook/{gateway}", h.Handle)
	r.Post("/webhook", h.Handle)
}

func (h *Handler) Handle(w http.ResponseWriter, r *http.Request) {
	gateway := chi.URLParam(r, "gateway")
	if gateway == "" {
		gateway = r.URL.Query().Get("gateway")
	}
	if gateway == "" {
		respondError(w, http.StatusBadRequest, "gateway is required")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodySize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.Warn("failed to read webhook body",
			zap.String("gateway", gateway),
			zap.Error(err))
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.processor.Handle(r.Context(), gateway, r.Header, body)
	if err != nil {
		if domain.IsDomainError(err, domain.ErrorCodeGatewayDisabled) {
			respondError(w, http.StatusForbidden, "gateway disabled")
			return
		}

		msg := "webhook processing failed"
		switch {
		case domain.IsDomainError(err, domain.ErrorCodeWebhookInvalidSignature):
			msg = "invalid signature"
		case domain.IsDomainError(err, domain.ErrorCodeWebhookMalformed):
			msg = "malformed payload"
		default:
			h.logger.Error("webhook processing failed",
				zap.String("gateway", gateway),
				zap.Error(err))
		}
		respondError(w, http.StatusBadRequest, msg)
		return
	}

	h.logger.Debug("webhook acknowledged",
		zap.String("gateway", gateway),
		zap.String("outcome", string(result.Outcome)))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"success":true}`))
}

func respondError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
