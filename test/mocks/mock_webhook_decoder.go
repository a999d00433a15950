package mocks

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/kevin07696/subscription-service/internal/domain"
	"github.com/kevin07696/subscription-service/internal/domain/models"
	"github.com/kevin07696/subscription-service/internal/domain/ports"
)

// MockWebhookDecoder accepts any payload unless VerifyErr is set and decodes
// bodies that are JSON-encoded ports.WebhookEvent values
type MockWebhookDecoder struct {
	method    models.PaymentMethod
	VerifyErr error
}

// NewMockWebhookDecoder creates a decoder for method
func NewMockWebhookDecoder(method models.PaymentMethod) *MockWebhookDecoder {
	return &MockWebhookDecoder{method: method}
}

func (m *MockWebhookDecoder) Method() models.PaymentMethod {
	return m.method
}

func (m *MockWebhookDecoder) VerifyWebhook(ctx context.Context, headers http.Header, body []byte) error {
	return m.VerifyErr
}

func (m *MockWebhookDecoder) DecodeWebhook(body []byte) (*ports.WebhookEvent, error) {
	var ev ports.WebhookEvent
	if err := json.Unmarshal(body, &ev); err != nil || ev.Kind == "" {
		return nil, domain.NewDomainError(domain.ErrorCodeWebhookMalformed, "unreadable webhook payload")
	}
	return &ev, nil
}

// EncodeWebhook is the inverse of DecodeWebhook, for building test bodies
func EncodeWebhook(ev ports.WebhookEvent) []byte {
	b, _ := json.Marshal(ev)
	return b
}
