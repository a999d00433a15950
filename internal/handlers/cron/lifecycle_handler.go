// Package cron serves the scheduler-triggered maintenance endpoints
package cron

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kevin07696/subscription-service/internal/services/provisioning"
	"github.com/kevin07696/subscription-service/pkg/timeutil"
	"go.uber.org/zap"
)

// Sweeper cancels subscriptions whose grace or paid period has ended
type Sweeper interface {
	SweepExpired(ctx context.Context, now time.Time) ([]uuid.UUID, error)
}

// DeliveryRetrier redelivers failed provisioning notifications
type DeliveryRetrier interface {
	RetryFailedDeliveries(ctx context.Context, limit int) (*provisioning.RetryReport, error)
}

// LifecycleHandler handles cron endpoints for subscription maintenance
type LifecycleHandler struct {
	sweeper    Sweeper
	retrier    DeliveryRetrier
	logger     *zap.Logger
	cronSecret string // Secret token for authenticating cron requests
}

// NewLifecycleHandler creates a new lifecycle cron handler
func NewLifecycleHandler(sweeper Sweeper, retrier DeliveryRetrier, logger *zap.Logger, cronSecret string) *LifecycleHandler {
	return &LifecycleHandler{
		sweeper:    sweeper,
		retrier:    retrier,
		logger:     logger,
		cronSecret: cronSecret,
	}
}

// RegisterRoutes mounts the /cron endpoints
func (h *LifecycleHandler) RegisterRoutes(r chi.Router) {
	r.Route("/cron", func(r chi.Router) {
		r.Get("/health", h.HealthCheck)
		r.Group(func(r chi.Router) {
			r.Use(h.authenticate)
			r.Post("/sweep-expired", h.SweepExpired)
			r.Post("/retry-provisioning", h.RetryProvisioning)
		})
	})
}

// SweepRequest represents the optional body of POST /cron/sweep-expired
type SweepRequest struct {
	AsOf *string `json:"as_of"` // Optional: RFC3339 timestamp, defaults to now
}

// SweepResponse represents the response from a sweep
type SweepResponse struct {
	Success     bool     `json:"success"`
	Cancelled   []string `json:"cancelled"`
	Error       string   `json:"error,omitempty"`
	ProcessedAt string   `json:"processed_at"`
}

// SweepExpired handles POST /cron/sweep-expired
func (h *LifecycleHandler) SweepExpired(w http.ResponseWriter, r *http.Request) {
	var req SweepRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	asOf := timeutil.Now()
	if req.AsOf != nil {
		parsed, err := time.Parse(time.RFC3339, *req.AsOf)
		if err != nil {
			h.respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid as_of format: %v", err))
			return
		}
		asOf = parsed
	}

	h.logger.Info("sweep cron job triggered", zap.Time("as_of", asOf))

	cancelled, err := h.sweeper.SweepExpired(r.Context(), asOf)
	resp := SweepResponse{
		Success:     err == nil,
		Cancelled:   make([]string, 0, len(cancelled)),
		ProcessedAt: time.Now().Format(time.RFC3339),
	}
	for _, id := range cancelled {
		resp.Cancelled = append(resp.Cancelled, id.String())
	}

	status := http.StatusOK
	if err != nil {
		h.logger.Error("sweep finished with errors", zap.Error(err))
		resp.Error = "some subscriptions could not be swept"
		status = http.StatusPartialContent // 206 indicates partial success
		if len(cancelled) == 0 {
			status = http.StatusInternalServerError
		}
	}
	h.respond(w, status, resp)
}

// RetryRequest represents the optional body of POST /cron/retry-provisioning
type RetryRequest struct {
	BatchSize *int `json:"batch_size"` // Optional: defaults to 100
}

// RetryProvisioning handles POST /cron/retry-provisioning
func (h *LifecycleHandler) RetryProvisioning(w http.ResponseWriter, r *http.Request) {
	if h.retrier == nil {
		h.respondError(w, http.StatusServiceUnavailable, "provisioning is not configured")
		return
	}

	var req RetryRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	batchSize := 100
	if req.BatchSize != nil {
		if *req.BatchSize < 1 || *req.BatchSize > 1000 {
			h.respondError(w, http.StatusBadRequest, "batch_size must be between 1 and 1000")
			return
		}
		batchSize = *req.BatchSize
	}

	report, err := h.retrier.RetryFailedDeliveries(r.Context(), batchSize)
	if err != nil {
		h.logger.Error("provisioning retry failed", zap.Error(err))
		h.respondError(w, http.StatusInternalServerError, "provisioning retry failed")
		return
	}

	h.logger.Info("provisioning retry completed",
		zap.Int("attempted", report.Attempted),
		zap.Int("delivered", report.Delivered),
		zap.Int("abandoned", report.Abandoned),
		zap.Int("pending", report.Pending))

	h.respond(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"report":  report,
	})
}

// HealthCheck handles GET /cron/health for monitoring
func (h *LifecycleHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.respond(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// authenticate accepts X-Cron-Secret or a bearer token equal to the secret
func (h *LifecycleHandler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.cronSecret == "" || !(h.matches(r.Header.Get("X-Cron-Secret")) || h.matches(bearer(r))) {
			h.logger.Warn("unauthorized cron request",
				zap.String("path", r.URL.Path),
				zap.String("remote_addr", r.RemoteAddr))
			h.respondError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *LifecycleHandler) matches(got string) bool {
	return got != "" && subtle.ConstantTimeCompare([]byte(got), []byte(h.cronSecret)) == 1
}

func bearer(r *http.Request) string {
	const prefix = "Bearer "
	auth := r.Header.Get("Authorization")
	if len(auth) > len(prefix) && auth[:len(prefix)] == prefix {
		return auth[len(prefix):]
	}
	return ""
}

func (h *LifecycleHandler) respond(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// respondError sends an error response
func (h *LifecycleHandler) respondError(w http.ResponseWriter, status int, message string) {
	h.respond(w, status, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}
