package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/prohmpiriya/safeguard-membership/internal/domain"
	"github.com/prohmpiriya/safeguard-membership/internal/dto"
	"github.com/prohmpiriya/safeguard-membership/internal/payment"
	"github.com/prohmpiriya/safeguard-membership/pkg/middleware"
	"github.com/prohmpiriya/safeguard-membership/pkg/response"
	"github.com/prohmpiriya/safeguard-membership/pkg/telemetry"
)

// maxWebhookBodySize caps webhook payloads
const maxWebhookBodySize = 64 << 10

// PaymentHandler handles checkout and payment webhook HTTP requests
type PaymentHandler struct {
	paymentService payment.Service
}

// NewPaymentHandler creates a new PaymentHandler
func NewPaymentHandler(paymentService payment.Service) *PaymentHandler {
	return &PaymentHandler{paymentService: paymentService}
}

// CreateCheckout handles POST /payments/checkout
func (h *PaymentHandler) CreateCheckout(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.payment.checkout")
	defer span.End()

	userID, ok := middleware.GetUserID(c)
	if !ok || userID == "" {
		span.SetStatus(codes.Error, "unauthorized")
		c.JSON(http.StatusUnauthorized, response.Unauthorized("User ID not found in token"))
		return
	}
	email, _ := middleware.GetEmail(c)

	var req dto.CreateCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		c.JSON(http.StatusBadRequest, response.BadRequest("Invalid request body"))
		return
	}
	span.SetAttributes(telemetry.UserIDAttr(userID), telemetry.MembershipTierAttr(req.Tier))

	session, err := h.paymentService.CreateCheckout(ctx, &domain.User{ID: userID, Email: email}, req.Tier)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "checkout failed")
		switch {
		case errors.Is(err, payment.ErrTierNotPurchasable):
			c.JSON(http.StatusBadRequest, response.BadRequest("Membership tier does not require payment"))
		case errors.Is(err, payment.ErrPriceNotConfigured):
			c.JSON(http.StatusServiceUnavailable, response.ServiceUnavailable("Checkout is not available for this tier"))
		default:
			c.JSON(http.StatusBadGateway, response.Error(response.ErrCodePaymentFailed, "Failed to start checkout"))
		}
		return
	}

	c.JSON(http.StatusCreated, response.Success(&dto.CheckoutResponse{SessionID: session.ID, URL: session.URL}))
}

// Webhook handles POST /payments/webhook
func (h *PaymentHandler) Webhook(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.payment.webhook")
	defer span.End()

	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBodySize))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "read body failed")
		c.JSON(http.StatusBadRequest, response.BadRequest("Failed to read request body"))
		return
	}

	result, err := h.paymentService.HandleWebhook(ctx, payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "webhook failed")
		switch {
		case errors.Is(err, payment.ErrInvalidSignature):
			c.JSON(http.StatusBadRequest, response.Error(response.ErrCodeInvalidSignature, "Invalid webhook signature"))
		case errors.Is(err, payment.ErrInvalidPayload), errors.Is(err, payment.ErrMissingUserReference):
			c.JSON(http.StatusBadRequest, response.BadRequest(err.Error()))
		default:
			// Non-2xx makes the provider retry delivery
			c.JSON(http.StatusInternalServerError, response.InternalError("Failed to process webhook"))
		}
		return
	}
	span.SetAttributes(
		attribute.String("event_type", result.EventType),
		attribute.Bool("handled", result.Handled),
	)

	c.JSON(http.StatusOK, response.Success(&dto.WebhookResponse{
		Received:  true,
		EventType: result.EventType,
		Handled:   result.Handled,
		UserID:    result.UserID,
	}))
}
