package payment

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/prohmpiriya/safeguard-membership/internal/backend"
	"github.com/prohmpiriya/safeguard-membership/internal/domain"
	"github.com/prohmpiriya/safeguard-membership/pkg/logger"
	"github.com/prohmpiriya/safeguard-membership/pkg/telemetry"
)

// PaymentService errors
var (
	ErrTierNotPurchasable   = errors.New("membership tier does not require payment")
	ErrPriceNotConfigured   = errors.New("no price configured for membership tier")
	ErrMissingUserReference = errors.New("checkout session has no user reference")
)

// Checkout metadata keys
const (
	MetadataUserID = "user_id"
	MetadataTier   = "tier"
)

// checkoutSessionPlaceholder is expanded by the provider on redirect
const checkoutSessionPlaceholder = "{CHECKOUT_SESSION_ID}"

// Service handles hosted checkout and payment webhooks
type Service interface {
	// CreateCheckout starts a hosted checkout for a paid tier
	CreateCheckout(ctx context.Context, user *domain.User, tier string) (*CheckoutSession, error)

	// HandleWebhook verifies and applies a provider webhook
	HandleWebhook(ctx context.Context, payload []byte, signature string) (*WebhookResult, error)
}

// WebhookResult describes what a webhook did
type WebhookResult struct {
	EventID   string
	EventType string
	Handled   bool
	UserID    string
}

// ServiceConfig holds the payment service configuration
type ServiceConfig struct {
	Gateway Gateway
	Backend backend.Client
	Logger  *logger.Logger
	// PublicURL is the browser-facing base URL used for redirects
	PublicURL string
	// Prices maps paid tiers to provider price ids
	Prices map[string]string
}

type paymentService struct {
	gateway   Gateway
	backend   backend.Client
	log       *logger.Logger
	publicURL string
	prices    map[string]string
}

// NewPaymentService creates a new payment Service
func NewPaymentService(cfg *ServiceConfig) Service {
	log := cfg.Logger
	if log == nil {
		log = logger.NewNop()
	}
	return &paymentService{
		gateway:   cfg.Gateway,
		backend:   cfg.Backend,
		log:       log,
		publicURL: strings.TrimRight(cfg.PublicURL, "/"),
		prices:    cfg.Prices,
	}
}

// SuccessURL is where the provider sends the member after paying
func SuccessURL(publicURL string) string {
	return publicURL + "/onboarding/processing?payment=success&session_id=" + checkoutSessionPlaceholder
}

// CancelURL is where the provider sends the member after abandoning checkout
func CancelURL(publicURL string) string {
	return publicURL + "/onboarding?" + url.Values{"payment": {"cancelled"}}.Encode()
}

// CreateCheckout creates a subscription checkout for the tier's price
func (s *paymentService) CreateCheckout(ctx context.Context, user *domain.User, tier string) (*CheckoutSession, error) {
	ctx, span := telemetry.StartSpan(ctx, "payment.create_checkout")
	defer span.End()
	span.SetAttributes(telemetry.UserIDAttr(user.ID), telemetry.MembershipTierAttr(tier))

	if !domain.IsPaidTier(tier) {
		span.SetStatus(codes.Error, "tier not purchasable")
		return nil, ErrTierNotPurchasable
	}
	priceID := s.prices[tier]
	if priceID == "" {
		span.SetStatus(codes.Error, "price not configured")
		return nil, fmt.Errorf("%w: %s", ErrPriceNotConfigured, tier)
	}

	cs, err := s.gateway.CreateCheckoutSession(ctx, &CheckoutRequest{
		PriceID:           priceID,
		ClientReferenceID: user.ID,
		CustomerEmail:     user.Email,
		SuccessURL:        SuccessURL(s.publicURL),
		CancelURL:         CancelURL(s.publicURL),
		Metadata: map[string]string{
			MetadataUserID: user.ID,
			MetadataTier:   tier,
		},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "checkout failed")
		return nil, err
	}

	s.log.WithContext(ctx).Info("checkout session created",
		zap.String("user_id", user.ID),
		zap.String("tier", tier),
		zap.String("session_id", cs.ID),
		zap.String("gateway", s.gateway.Name()),
	)
	return cs, nil
}

// HandleWebhook activates the membership on checkout.session.completed.
// Other event types are acknowledged and ignored.
func (s *paymentService) HandleWebhook(ctx context.Context, payload []byte, signature string) (*WebhookResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "payment.webhook")
	defer span.End()

	event, err := s.gateway.ParseWebhook(payload, signature)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid webhook")
		return nil, err
	}
	span.SetAttributes(attribute.String("payment.event_type", event.Type))

	result := &WebhookResult{EventID: event.ID, EventType: event.Type}
	log := s.log.WithContext(ctx).WithFields(zap.String("event_id", event.ID), zap.String("event_type", event.Type))

	if event.Type != EventCheckoutSessionCompleted || event.Checkout == nil {
		log.Debug("ignoring payment webhook")
		return result, nil
	}

	completion := event.Checkout
	userID := completion.Metadata[MetadataUserID]
	if userID == "" {
		userID = completion.ClientReferenceID
	}
	if userID == "" {
		span.SetStatus(codes.Error, "missing user reference")
		return nil, ErrMissingUserReference
	}

	fields := map[string]interface{}{
		"membership_status": domain.MembershipStatusActive,
	}
	if tier := completion.Metadata[MetadataTier]; domain.IsValidTier(tier) {
		fields["membership_tier"] = tier
	}
	if completion.CustomerID != "" {
		fields["stripe_customer_id"] = completion.CustomerID
	}

	if err := s.backend.Update(ctx, backend.EntityUser, userID, fields, nil); err != nil {
		log.Error("failed to activate membership", zap.String("user_id", userID), zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "activation failed")
		return nil, fmt.Errorf("failed to activate membership: %w", err)
	}

	log.Info("membership activated", zap.String("user_id", userID), zap.Any("tier", fields["membership_tier"]))
	result.Handled = true
	result.UserID = userID
	span.SetAttributes(telemetry.UserIDAttr(userID))
	return result, nil
}
