// Package provisioning tells the downstream provisioning system when a
// subscription's capability must be granted or revoked
package provisioning

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/kevin07696/subscription-service/internal/domain/models"
	"github.com/kevin07696/subscription-service/internal/domain/ports"
	"github.com/kevin07696/subscription-service/pkg/observability"
	"github.com/kevin07696/subscription-service/pkg/resilience"
	"github.com/kevin07696/subscription-service/pkg/timeutil"
)

const (
	HeaderSignature = "X-Provisioning-Signature"
	HeaderAction    = "X-Provisioning-Action"
	HeaderTimestamp = "X-Provisioning-Timestamp"
)

// Config configures the notifier
type Config struct {
	URL         string
	Secret      string
	MaxAttempts int
	Backoff     resilience.BackoffStrategy
}

// Payload is the JSON body posted to the provisioning endpoint
type Payload struct {
	Action         models.ProvisioningAction `json:"action"`
	SubscriptionID uuid.UUID                 `json:"subscription_id"`
	UserID         string                    `json:"user_id"`
	ApplicationID  string                    `json:"application_id"`
	PlanID         string                    `json:"plan_id"`
	ExternalPlanID string                    `json:"external_plan_id,omitempty"`
	Status         models.SubscriptionStatus `json:"status"`
	PaymentMethod  models.PaymentMethod      `json:"payment_method"`
	EndDate        *time.Time                `json:"end_date,omitempty"`
	GracePeriodEnd *time.Time                `json:"grace_period_end,omitempty"`
	Timestamp      time.Time                 `json:"timestamp"`
}

// RetryReport summarizes one RetryFailedDeliveries run
type RetryReport struct {
	Attempted int `json:"attempted"`
	Delivered int `json:"delivered"`
	Abandoned int `json:"abandoned"`
	Pending   int `json:"pending"`
}

// Notifier posts HMAC-signed notifications. A delivery that fails is stored
// in the outbox and retried later by RetryFailedDeliveries.
type Notifier struct {
	client     ports.HTTPClient
	db         ports.DBPort
	deliveries ports.ProvisioningDeliveryRepository
	cfg        Config
	logger     ports.Logger
	clock      timeutil.Clock
}

// NewNotifier creates a provisioning notifier
func NewNotifier(client ports.HTTPClient, db ports.DBPort, deliveries ports.ProvisioningDeliveryRepository, cfg Config, logger ports.Logger) *Notifier {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 8
	}
	if cfg.Backoff == nil {
		cfg.Backoff = resilience.ProvisioningBackoff()
	}
	return &Notifier{
		client:     client,
		db:         db,
		deliveries: deliveries,
		cfg:        cfg,
		logger:     logger,
		clock:      timeutil.SystemClock{},
	}
}

// WithClock replaces the wall clock, for tests
func (n *Notifier) WithClock(c timeutil.Clock) *Notifier {
	n.clock = c
	return n
}

// Notify sends action for sub. On failure the notification is queued for
// retry and the delivery error is returned.
func (n *Notifier) Notify(ctx context.Context, action models.ProvisioningAction, sub *models.Subscription) error {
	now := n.clock.Now()
	payload, err := json.Marshal(Payload{
		Action:         action,
		SubscriptionID: sub.ID,
		UserID:         sub.UserID,
		ApplicationID:  sub.ApplicationID,
		PlanID:         sub.PlanID,
		ExternalPlanID: sub.ExternalPlanID,
		Status:         sub.Status,
		PaymentMethod:  sub.PaymentMethod,
		EndDate:        sub.EndDate,
		GracePeriodEnd: sub.GracePeriodEnd,
		Timestamp:      now,
	})
	if err != nil {
		return fmt.Errorf("marshal provisioning payload: %w", err)
	}

	sendErr := n.send(ctx, action, payload, now)
	if sendErr == nil {
		observability.RecordProvisioningDelivery(string(action), "delivered")
		n.logger.Info("provisioning notified",
			ports.String("subscription_id", sub.ID.String()),
			ports.String("action", string(action)))
		return nil
	}

	observability.RecordProvisioningDelivery(string(action), "queued")
	next := now.Add(n.cfg.Backoff.NextDelay(0))
	delivery := &models.ProvisioningDelivery{
		SubscriptionID: sub.ID,
		Action:         action,
		Payload:        payload,
		Status:         models.DeliveryPending,
		Attempts:       1,
		LastError:      sendErr.Error(),
		NextRetryAt:    &next,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := n.deliveries.Create(ctx, n.db.Executor(), delivery); err != nil {
		n.logger.Error("failed to queue provisioning delivery",
			ports.String("subscription_id", sub.ID.String()),
			ports.String("action", string(action)),
			ports.Err(err))
	}

	return fmt.Errorf("notify provisioning: %w", sendErr)
}

// RetryFailedDeliveries resends up to limit due deliveries from the outbox.
// A delivery is abandoned after MaxAttempts.
func (n *Notifier) RetryFailedDeliveries(ctx context.Context, limit int) (*RetryReport, error) {
	now := n.clock.Now()
	due, err := n.deliveries.ListDue(ctx, n.db.Executor(), now, limit)
	if err != nil {
		return nil, fmt.Errorf("list due deliveries: %w", err)
	}

	report := &RetryReport{}
	for _, d := range due {
		if ctx.Err() != nil {
			break
		}
		report.Attempted++

		sendErr := n.send(ctx, d.Action, d.Payload, now)
		d.Attempts++
		d.UpdatedAt = now

		switch {
		case sendErr == nil:
			d.Status = models.DeliveryDelivered
			d.DeliveredAt = &now
			d.NextRetryAt = nil
			d.LastError = ""
			report.Delivered++
			observability.RecordProvisioningDelivery(string(d.Action), "delivered")
		case d.Attempts >= n.cfg.MaxAttempts:
			d.Status = models.DeliveryFailed
			d.LastError = sendErr.Error()
			d.NextRetryAt = nil
			report.Abandoned++
			observability.RecordProvisioningDelivery(string(d.Action), "abandoned")
			n.logger.Error("provisioning delivery abandoned",
				ports.String("delivery_id", d.ID.String()),
				ports.String("subscription_id", d.SubscriptionID.String()),
				ports.Int("attempts", d.Attempts),
				ports.Err(sendErr))
		default:
			next := now.Add(n.cfg.Backoff.NextDelay(d.Attempts - 1))
			d.LastError = sendErr.Error()
			d.NextRetryAt = &next
			report.Pending++
			observability.RecordProvisioningDelivery(string(d.Action), "retry_failed")
		}

		if err := n.deliveries.Update(ctx, n.db.Executor(), d); err != nil {
			return report, fmt.Errorf("update delivery %s: %w", d.ID, err)
		}
	}

	n.logger.Info("provisioning retry completed",
		ports.Int("attempted", report.Attempted),
		ports.Int("delivered", report.Delivered),
		ports.Int("abandoned", report.Abandoned))
	return report, nil
}

func (n *Notifier) send(ctx context.Context, action models.ProvisioningAction, payload []byte, now time.Time) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	timestamp := strconv.FormatInt(now.Unix(), 10)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderAction, string(action))
	req.Header.Set(HeaderTimestamp, timestamp)
	req.Header.Set(HeaderSignature, Sign(n.cfg.Secret, timestamp, payload))

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// Sign computes the hex HMAC-SHA256 of "<timestamp>.<payload>"
func Sign(secret, timestamp string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

var _ ports.ProvisioningNotifier = (*Notifier)(nil)
