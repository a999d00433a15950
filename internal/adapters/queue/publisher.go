// Package queue publishes subscription lifecycle events for the
// notification pipeline
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"
	"github.com/kevin07696/subscription-service/internal/domain/models"
	"github.com/kevin07696/subscription-service/internal/domain/ports"
	"go.uber.org/zap"
)

// LifecycleMessage is the JSON body of a lifecycle event
type LifecycleMessage struct {
	EventID        string     `json:"event_id"`
	Status         string     `json:"status"`
	SubscriptionID string     `json:"subscription_id"`
	UserID         string     `json:"user_id"`
	ApplicationID  string     `json:"application_id"`
	PlanID         string     `json:"plan_id"`
	PaymentMethod  string     `json:"payment_method"`
	Email          string     `json:"email,omitempty"`
	EndDate        *time.Time `json:"end_date,omitempty"`
	GracePeriodEnd *time.Time `json:"grace_period_end,omitempty"`
	OccurredAt     time.Time  `json:"occurred_at"`
}

// NewLifecycleMessage snapshots sub for publication
func NewLifecycleMessage(status models.SubscriptionStatus, sub *models.Subscription, now time.Time) LifecycleMessage {
	return LifecycleMessage{
		EventID:        uuid.NewString(),
		Status:         string(status),
		SubscriptionID: sub.ID.String(),
		UserID:         sub.UserID,
		ApplicationID:  sub.ApplicationID,
		PlanID:         sub.PlanID,
		PaymentMethod:  string(sub.PaymentMethod),
		Email:          sub.CustomerData.Email,
		EndDate:        sub.EndDate,
		GracePeriodEnd: sub.GracePeriodEnd,
		OccurredAt:     now.UTC(),
	}
}

// SQSSender abstracts the SQS SendMessage operation for testability
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSPublisher sends lifecycle events to an SQS queue. On a FIFO queue,
// events of one subscription share a message group so consumers see them in
// order.
type SQSPublisher struct {
	client   SQSSender
	queueURL string
	fifo     bool
	logger   *zap.Logger
}

// NewSQSPublisher creates a publisher targeting queueURL
func NewSQSPublisher(client SQSSender, queueURL string, logger *zap.Logger) *SQSPublisher {
	return &SQSPublisher{
		client:   client,
		queueURL: queueURL,
		fifo:     strings.HasSuffix(queueURL, ".fifo"),
		logger:   logger,
	}
}

func (p *SQSPublisher) Publish(ctx context.Context, status models.SubscriptionStatus, sub *models.Subscription) error {
	msg := NewLifecycleMessage(status, sub, time.Now())
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("lifecycle publisher: failed to marshal message: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqstypes.MessageAttributeValue{
			"status": {DataType: aws.String("String"), StringValue: aws.String(msg.Status)},
		},
	}
	if p.fifo {
		input.MessageGroupId = aws.String(msg.SubscriptionID)
		input.MessageDeduplicationId = aws.String(msg.EventID)
	}

	out, err := p.client.SendMessage(ctx, input)
	if err != nil {
		return fmt.Errorf("lifecycle publisher: failed to send message to %s: %w", p.queueURL, err)
	}

	p.logger.Info("lifecycle event published",
		zap.String("subscription_id", msg.SubscriptionID),
		zap.String("status", msg.Status),
		zap.String("message_id", aws.ToString(out.MessageId)))
	return nil
}

// LogPublisher only logs lifecycle events, for deployments without a queue
type LogPublisher struct {
	logger *zap.Logger
}

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, status models.SubscriptionStatus, sub *models.Subscription) error {
	p.logger.Info("lifecycle event",
		zap.String("subscription_id", sub.ID.String()),
		zap.String("user_id", sub.UserID),
		zap.String("status", string(status)))
	return nil
}

var (
	_ ports.EventPublisher = (*SQSPublisher)(nil)
	_ ports.EventPublisher = (*LogPublisher)(nil)
)
