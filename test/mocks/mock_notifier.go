package mocks

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/kevin07696/subscription-service/internal/domain/models"
	"github.com/kevin07696/subscription-service/internal/domain/ports"
)

// Notification is a captured provisioning call
type Notification struct {
	Action         models.ProvisioningAction
	SubscriptionID uuid.UUID
	Status         models.SubscriptionStatus
}

// MockNotifier records provisioning notifications
type MockNotifier struct {
	mu    sync.Mutex
	Err   error
	Calls []Notification
}

func (m *MockNotifier) Notify(ctx context.Context, action models.ProvisioningAction, sub *models.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, Notification{Action: action, SubscriptionID: sub.ID, Status: sub.Status})
	return m.Err
}

// Actions returns the captured actions in order
func (m *MockNotifier) Actions() []models.ProvisioningAction {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.ProvisioningAction, 0, len(m.Calls))
	for _, c := range m.Calls {
		out = append(out, c.Action)
	}
	return out
}

// MockPublisher records lifecycle notifications
type MockPublisher struct {
	mu       sync.Mutex
	Err      error
	Statuses []models.SubscriptionStatus
}

func (m *MockPublisher) Publish(ctx context.Context, status models.SubscriptionStatus, sub *models.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Statuses = append(m.Statuses, status)
	return m.Err
}

// Published returns the captured statuses in order
func (m *MockPublisher) Published() []models.SubscriptionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.SubscriptionStatus(nil), m.Statuses...)
}

var (
	_ ports.ProvisioningNotifier = (*MockNotifier)(nil)
	_ ports.EventPublisher       = (*MockPublisher)(nil)
)
