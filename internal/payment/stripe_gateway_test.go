package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

const testWebhookSecret = "whsec_test_secret"

func TestStripeGateway_CreateCheckoutSession(t *testing.T) {
	var form map[string][]string
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		assert.NoError(t, r.ParseForm())
		form = r.PostForm
		auth = r.Header.Get("Authorization")

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cs_test_123","object":"checkout.session","url":"https://checkout.stripe.com/c/pay/cs_test_123"}`))
	}))
	defer srv.Close()

	gw := NewStripeGateway(&GatewayConfig{SecretKey: "sk_test_123", APIURL: srv.URL})
	cs, err := gw.CreateCheckoutSession(context.Background(), &CheckoutRequest{
		PriceID:           "price_full",
		ClientReferenceID: "user-1",
		CustomerEmail:     "member@example.org",
		SuccessURL:        SuccessURL("https://members.example.org"),
		CancelURL:         CancelURL("https://members.example.org"),
		Metadata:          map[string]string{MetadataUserID: "user-1", MetadataTier: "full"},
	})

	require.NoError(t, err)
	assert.Equal(t, "cs_test_123", cs.ID)
	assert.Equal(t, "https://checkout.stripe.com/c/pay/cs_test_123", cs.URL)
	assert.Equal(t, "Bearer sk_test_123", auth)
	assert.Equal(t, "subscription", form["mode"][0])
	assert.Equal(t, "price_full", form["line_items[0][price]"][0])
	assert.Equal(t, "1", form["line_items[0][quantity]"][0])
	assert.Equal(t, "user-1", form["client_reference_id"][0])
	assert.Equal(t, "member@example.org", form["customer_email"][0])
	assert.Equal(t, "full", form["metadata[tier]"][0])
	assert.Equal(t, "user-1", form["subscription_data[metadata][user_id]"][0])
	assert.Contains(t, form["success_url"][0], "session_id={CHECKOUT_SESSION_ID}")
}

func TestStripeGateway_CreateCheckoutSessionError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"No such price: 'price_missing'"}}`))
	}))
	defer srv.Close()

	gw := NewStripeGateway(&GatewayConfig{SecretKey: "sk_test_123", APIURL: srv.URL})
	_, err := gw.CreateCheckoutSession(context.Background(), &CheckoutRequest{PriceID: "price_missing"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create checkout session")
}

func signedPayload(t *testing.T, event map[string]interface{}, secret string) ([]byte, string) {
	t.Helper()
	payload, err := json.Marshal(event)
	require.NoError(t, err)
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: payload, Secret: secret})
	return payload, signed.Header
}

func checkoutCompletedEvent() map[string]interface{} {
	return map[string]interface{}{
		"id":          "evt_123",
		"object":      "event",
		"type":        "checkout.session.completed",
		"api_version": stripe.APIVersion,
		"data": map[string]interface{}{
			"object": map[string]interface{}{
				"id":                  "cs_test_123",
				"object":              "checkout.session",
				"client_reference_id": "user-1",
				"customer":            "cus_123",
				"customer_email":      "member@example.org",
				"payment_status":      "paid",
				"metadata":            map[string]string{"user_id": "user-1", "tier": "fellow"},
			},
		},
	}
}

func TestStripeGateway_ParseWebhook(t *testing.T) {
	gw := NewStripeGateway(&GatewayConfig{WebhookSecret: testWebhookSecret})

	t.Run("checkout completed", func(t *testing.T) {
		payload, header := signedPayload(t, checkoutCompletedEvent(), testWebhookSecret)

		evt, err := gw.ParseWebhook(payload, header)

		require.NoError(t, err)
		assert.Equal(t, "evt_123", evt.ID)
		assert.Equal(t, EventCheckoutSessionCompleted, evt.Type)
		require.NotNil(t, evt.Checkout)
		assert.Equal(t, "cs_test_123", evt.Checkout.SessionID)
		assert.Equal(t, "user-1", evt.Checkout.ClientReferenceID)
		assert.Equal(t, "cus_123", evt.Checkout.CustomerID)
		assert.Equal(t, "paid", evt.Checkout.PaymentStatus)
		assert.Equal(t, "fellow", evt.Checkout.Metadata["tier"])
	})

	t.Run("other event type", func(t *testing.T) {
		event := checkoutCompletedEvent()
		event["type"] = "customer.created"
		payload, header := signedPayload(t, event, testWebhookSecret)

		evt, err := gw.ParseWebhook(payload, header)

		require.NoError(t, err)
		assert.Equal(t, "customer.created", evt.Type)
		assert.Nil(t, evt.Checkout)
	})

	t.Run("wrong secret", func(t *testing.T) {
		payload, header := signedPayload(t, checkoutCompletedEvent(), "whsec_other")
		_, err := gw.ParseWebhook(payload, header)
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("missing header", func(t *testing.T) {
		payload, _ := signedPayload(t, checkoutCompletedEvent(), testWebhookSecret)
		_, err := gw.ParseWebhook(payload, "")
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})
}

func TestStripeGateway_Name(t *testing.T) {
	assert.Equal(t, "stripe", NewStripeGateway(&GatewayConfig{}).Name())
}
