package onboarding

import (
	"context"
	"errors"
	"sync"

	"github.com/prohmpiriya/safeguard-membership/internal/domain"
	"github.com/prohmpiriya/safeguard-membership/internal/payment"
	"github.com/prohmpiriya/safeguard-membership/internal/provisioning"
)

var ErrMockFailure = errors.New("mock failure")

// MockPaymentService is a mock implementation of payment.Service
type MockPaymentService struct {
	mu         sync.Mutex
	checkouts  []string
	ShouldFail bool
}

func (m *MockPaymentService) CreateCheckout(ctx context.Context, user *domain.User, tier string) (*payment.CheckoutSession, error) {
	if m.ShouldFail {
		return nil, ErrMockFailure
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkouts = append(m.checkouts, user.ID+":"+tier)
	return &payment.CheckoutSession{ID: "cs_1", URL: "https://checkout.example/cs_1"}, nil
}

func (m *MockPaymentService) HandleWebhook(ctx context.Context, payload []byte, signature string) (*payment.WebhookResult, error) {
	return &payment.WebhookResult{}, nil
}

func (m *MockPaymentService) Checkouts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.checkouts...)
}

// MockProvisioner records provisioning requests
type MockProvisioner struct {
	mu       sync.Mutex
	requests []*provisioning.Request
}

func (m *MockProvisioner) Execute(ctx context.Context, req *provisioning.Request) *provisioning.Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	redirect := "/dashboard"
	if req.Trigger == provisioning.TriggerPaymentReturn {
		redirect += "?payment=success"
	}
	return &provisioning.Result{RunID: "run-1", RedirectURL: redirect}
}

func (m *MockProvisioner) Requests() []*provisioning.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*provisioning.Request(nil), m.requests...)
}
