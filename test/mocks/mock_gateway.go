package mocks

import (
	"context"
	"sync"

	"github.com/kevin07696/subscription-service/internal/domain/models"
	"github.com/kevin07696/subscription-service/internal/domain/ports"
)

// MockGateway is a mock implementation of ports.Gateway for testing
type MockGateway struct {
	mu sync.Mutex

	method models.PaymentMethod

	// Responses to return
	CreateResponse *ports.RemoteSubscription
	CreateError    error
	CancelError    error
	SuspendError   error
	ReactivateErr  error
	RemoteStatus   ports.RemoteStatus
	StatusError    error

	// Call tracking
	CreateCalls     []ports.RemoteSubscriptionRequest
	CancelCalls     []string
	SuspendCalls    []string
	ReactivateCalls []string
	StatusCalls     []string
}

// NewMockGateway creates a gateway that reports every remote subscription active
func NewMockGateway(method models.PaymentMethod) *MockGateway {
	return &MockGateway{
		method:       method,
		RemoteStatus: ports.RemoteStatusActive,
		CreateResponse: &ports.RemoteSubscription{
			RemoteID:    "I-MOCK0001",
			ApprovalURL: "https://provider.example/approve?token=I-MOCK0001",
			Status:      ports.RemoteStatusApprovalPending,
		},
	}
}

func (m *MockGateway) Method() models.PaymentMethod {
	return m.method
}

func (m *MockGateway) CreateRemoteSubscription(ctx context.Context, req ports.RemoteSubscriptionRequest) (*ports.RemoteSubscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CreateCalls = append(m.CreateCalls, req)
	if m.CreateError != nil {
		return nil, m.CreateError
	}
	resp := *m.CreateResponse
	return &resp, nil
}

func (m *MockGateway) CancelRemote(ctx context.Context, remoteID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CancelCalls = append(m.CancelCalls, remoteID)
	return m.CancelError
}

func (m *MockGateway) SuspendRemote(ctx context.Context, remoteID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SuspendCalls = append(m.SuspendCalls, remoteID)
	return m.SuspendError
}

func (m *MockGateway) ReactivateRemote(ctx context.Context, remoteID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReactivateCalls = append(m.ReactivateCalls, remoteID)
	return m.ReactivateErr
}

func (m *MockGateway) FetchRemoteStatus(ctx context.Context, remoteID string) (ports.RemoteStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.StatusCalls = append(m.StatusCalls, remoteID)
	if m.StatusError != nil {
		return "", m.StatusError
	}
	return m.RemoteStatus, nil
}

// CancelCount returns how many CancelRemote calls were made
func (m *MockGateway) CancelCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.CancelCalls)
}

var _ ports.Gateway = (*MockGateway)(nil)
