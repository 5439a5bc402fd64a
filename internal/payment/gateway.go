package payment

import (
	"context"
	"errors"
)

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrInvalidPayload   = errors.New("invalid webhook payload")
)

// Gateway defines the hosted checkout provider
type Gateway interface {
	// CreateCheckoutSession creates a hosted subscription checkout
	CreateCheckoutSession(ctx context.Context, req *CheckoutRequest) (*CheckoutSession, error)

	// ParseWebhook verifies the signature and decodes the event
	ParseWebhook(payload []byte, signature string) (*WebhookEvent, error)

	// Name returns the gateway name
	Name() string
}

// CheckoutRequest represents a hosted checkout request
type CheckoutRequest struct {
	PriceID           string
	ClientReferenceID string
	CustomerEmail     string
	SuccessURL        string
	CancelURL         string
	Metadata          map[string]string
}

// CheckoutSession is a created hosted checkout
type CheckoutSession struct {
	ID  string
	URL string
}

// Webhook event types handled by the service
const (
	EventCheckoutSessionCompleted = "checkout.session.completed"
)

// WebhookEvent is a verified gateway event
type WebhookEvent struct {
	ID   string
	Type string
	// Checkout is set for checkout.session.* events
	Checkout *CheckoutCompletion
}

// CheckoutCompletion carries the fields of a completed checkout session
type CheckoutCompletion struct {
	SessionID         string
	ClientReferenceID string
	CustomerID        string
	CustomerEmail     string
	PaymentStatus     string
	Metadata          map[string]string
}

// GatewayConfig holds common gateway configuration
type GatewayConfig struct {
	SecretKey     string
	WebhookSecret string
	// APIURL overrides the provider endpoint
	APIURL string
}
