package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/kevin07696/subscription-service/internal/domain/models"
	"github.com/kevin07696/subscription-service/internal/testutil/fixtures"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockSQSSender struct {
	calls     []*sqs.SendMessageInput
	returnErr error
}

func (m *mockSQSSender) SendMessage(_ context.Context, params *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	m.calls = append(m.calls, params)
	if m.returnErr != nil {
		return nil, m.returnErr
	}
	return &sqs.SendMessageOutput{MessageId: aws.String("msg-1")}, nil
}

func TestSQSPublisher_Publish(t *testing.T) {
	sender := &mockSQSSender{}
	pub := NewSQSPublisher(sender, "https://sqs.us-east-1.amazonaws.com/123/lifecycle", zap.NewNop())
	sub := fixtures.NewSubscription().Build()

	require.NoError(t, pub.Publish(context.Background(), models.SubStatusCancelled, sub))
	require.Len(t, sender.calls, 1)

	in := sender.calls[0]
	assert.Equal(t, "https://sqs.us-east-1.amazonaws.com/123/lifecycle", aws.ToString(in.QueueUrl))
	assert.Nil(t, in.MessageGroupId)
	assert.Equal(t, "cancelled", aws.ToString(in.MessageAttributes["status"].StringValue))

	var msg LifecycleMessage
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(in.MessageBody)), &msg))
	assert.Equal(t, sub.ID.String(), msg.SubscriptionID)
	assert.Equal(t, "cancelled", msg.Status)
	assert.Equal(t, sub.UserID, msg.UserID)
	assert.Equal(t, "ada@example.com", msg.Email)
	assert.NotEmpty(t, msg.EventID)
}

func TestSQSPublisher_FIFOGroupsBySubscription(t *testing.T) {
	sender := &mockSQSSender{}
	pub := NewSQSPublisher(sender, "https://sqs.us-east-1.amazonaws.com/123/lifecycle.fifo", zap.NewNop())
	sub := fixtures.NewSubscription().Build()

	require.NoError(t, pub.Publish(context.Background(), models.SubStatusExpired, sub))
	require.NoError(t, pub.Publish(context.Background(), models.SubStatusActive, sub))
	require.Len(t, sender.calls, 2)

	for _, in := range sender.calls {
		assert.Equal(t, sub.ID.String(), aws.ToString(in.MessageGroupId))
	}
	assert.NotEqual(t, aws.ToString(sender.calls[0].MessageDeduplicationId), aws.ToString(sender.calls[1].MessageDeduplicationId))
}

func TestSQSPublisher_SendFailure(t *testing.T) {
	sender := &mockSQSSender{returnErr: errors.New("throttled")}
	pub := NewSQSPublisher(sender, "https://sqs.us-east-1.amazonaws.com/123/lifecycle", zap.NewNop())

	err := pub.Publish(context.Background(), models.SubStatusActive, fixtures.NewSubscription().Build())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttled")
}

func TestLogPublisher(t *testing.T) {
	pub := NewLogPublisher(zap.NewNop())
	assert.NoError(t, pub.Publish(context.Background(), models.SubStatusActive, fixtures.NewSubscription().Build()))
}
