package dto

// CreateCheckoutRequest starts a hosted checkout for a paid tier
type CreateCheckoutRequest struct {
	Tier string `json:"tier"`
}

// CheckoutResponse points the browser at the hosted checkout page
type CheckoutResponse struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

// WebhookResponse acknowledges a payment webhook
type WebhookResponse struct {
	Received  bool   `json:"received"`
	EventType string `json:"event_type"`
	Handled   bool   `json:"handled"`
	UserID    string `json:"user_id,omitempty"`
}
