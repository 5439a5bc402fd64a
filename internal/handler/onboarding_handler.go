package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/prohmpiriya/safeguard-membership/internal/dto"
	"github.com/prohmpiriya/safeguard-membership/internal/onboarding"
	"github.com/prohmpiriya/safeguard-membership/internal/payment"
	"github.com/prohmpiriya/safeguard-membership/pkg/middleware"
	"github.com/prohmpiriya/safeguard-membership/pkg/response"
	"github.com/prohmpiriya/safeguard-membership/pkg/telemetry"
)

// OnboardingHandler handles the onboarding wizard HTTP requests
type OnboardingHandler struct {
	onboardingService onboarding.Service
}

// NewOnboardingHandler creates a new OnboardingHandler
func NewOnboardingHandler(onboardingService onboarding.Service) *OnboardingHandler {
	return &OnboardingHandler{onboardingService: onboardingService}
}

// ValidateStep handles POST /onboarding/steps/:step/validate
func (h *OnboardingHandler) ValidateStep(c *gin.Context) {
	step, err := strconv.Atoi(c.Param("step"))
	if err != nil || step < 1 || step > dto.OnboardingSteps {
		c.JSON(http.StatusBadRequest, response.BadRequest("Step must be between 1 and 5"))
		return
	}

	var form dto.OnboardingForm
	if err := c.ShouldBindJSON(&form); err != nil {
		c.JSON(http.StatusBadRequest, response.BadRequest("Invalid request body"))
		return
	}

	c.JSON(http.StatusOK, response.Success(h.onboardingService.ValidateStep(step, &form)))
}

// Submit handles POST /onboarding/submit
func (h *OnboardingHandler) Submit(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.onboarding.submit")
	defer span.End()

	userID, ok := middleware.GetUserID(c)
	if !ok || userID == "" {
		span.SetStatus(codes.Error, "unauthorized")
		c.JSON(http.StatusUnauthorized, response.Unauthorized("User ID not found in token"))
		return
	}
	sessionID, _ := middleware.GetSessionID(c)

	var form dto.OnboardingForm
	if err := c.ShouldBindJSON(&form); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		c.JSON(http.StatusBadRequest, response.BadRequest("Invalid request body"))
		return
	}
	span.SetAttributes(telemetry.UserIDAttr(userID), telemetry.MembershipTierAttr(form.MembershipTier))

	result, err := h.onboardingService.Submit(ctx, userID, sessionID, &form)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "submit failed")

		var ve *onboarding.ValidationError
		switch {
		case errors.As(err, &ve):
			c.JSON(http.StatusBadRequest, response.StepIncomplete(ve.Step, missingDetails(form.MissingFields(ve.Step), ve.Message)))
		case errors.Is(err, payment.ErrTierNotPurchasable), errors.Is(err, payment.ErrPriceNotConfigured):
			c.JSON(http.StatusUnprocessableEntity, response.Error(response.ErrCodePaymentFailed, err.Error()))
		case errors.Is(err, onboarding.ErrProfileUpdateFailed):
			c.JSON(http.StatusBadGateway, response.UpstreamFailed("Failed to save your profile"))
		default:
			c.JSON(http.StatusBadGateway, response.Error(response.ErrCodePaymentFailed, "Failed to start checkout"))
		}
		return
	}

	c.JSON(http.StatusOK, response.Success(result))
}

// Complete handles POST /onboarding/complete, the return from hosted checkout
func (h *OnboardingHandler) Complete(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.onboarding.complete")
	defer span.End()

	userID, ok := middleware.GetUserID(c)
	if !ok || userID == "" {
		span.SetStatus(codes.Error, "unauthorized")
		c.JSON(http.StatusUnauthorized, response.Unauthorized("User ID not found in token"))
		return
	}
	sessionID, _ := middleware.GetSessionID(c)

	var req dto.CompleteProvisioningRequest
	if err := c.ShouldBind(&req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		c.JSON(http.StatusBadRequest, response.BadRequest("Invalid request body"))
		return
	}
	span.SetAttributes(
		telemetry.UserIDAttr(userID),
		attribute.String("payment", req.Payment),
		attribute.String("checkout_session_id", req.SessionID),
	)

	result, err := h.onboardingService.CompleteAfterPayment(ctx, userID, sessionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "complete failed")
		c.JSON(http.StatusInternalServerError, response.InternalError("Failed to complete onboarding"))
		return
	}

	c.JSON(http.StatusOK, response.Success(result))
}

// SaveSessionFlags handles POST /onboarding/session
func (h *OnboardingHandler) SaveSessionFlags(c *gin.Context) {
	sessionID, ok := middleware.GetSessionID(c)
	if !ok || sessionID == "" {
		c.JSON(http.StatusUnauthorized, response.Unauthorized("Session not found in token"))
		return
	}

	var req dto.SessionFlagsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.BadRequest("Invalid request body"))
		return
	}

	if err := h.onboardingService.SaveSessionFlags(c.Request.Context(), sessionID, &req); err != nil {
		var ve *onboarding.ValidationError
		if errors.As(err, &ve) {
			c.JSON(http.StatusBadRequest, response.BadRequest(ve.Message))
			return
		}
		c.JSON(http.StatusInternalServerError, response.InternalError("Failed to save session"))
		return
	}

	c.JSON(http.StatusOK, response.Success(gin.H{"saved": true}))
}

func missingDetails(fields []string, message string) map[string]string {
	details := make(map[string]string, len(fields)+1)
	for _, f := range fields {
		details[f] = "required"
	}
	if len(details) == 0 {
		details["message"] = message
	}
	return details
}
