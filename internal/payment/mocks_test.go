package payment

import (
	"context"
	"errors"
	"sync"
)

var ErrMockFailure = errors.New("mock failure")

// MockGateway is a mock implementation of Gateway
type MockGateway struct {
	mu           sync.Mutex
	requests     []*CheckoutRequest
	Event        *WebhookEvent
	ShouldFail   bool
	FailureError error
}

func (m *MockGateway) CreateCheckoutSession(ctx context.Context, req *CheckoutRequest) (*CheckoutSession, error) {
	if m.ShouldFail {
		if m.FailureError != nil {
			return nil, m.FailureError
		}
		return nil, ErrMockFailure
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	return &CheckoutSession{ID: "cs_mock_1", URL: "https://checkout.example/cs_mock_1"}, nil
}

func (m *MockGateway) ParseWebhook(payload []byte, signature string) (*WebhookEvent, error) {
	if signature != "valid" {
		return nil, ErrInvalidSignature
	}
	return m.Event, nil
}

func (m *MockGateway) Name() string {
	return "mock"
}

func (m *MockGateway) Requests() []*CheckoutRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*CheckoutRequest, len(m.requests))
	copy(out, m.requests)
	return out
}
