package onboarding

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/prohmpiriya/safeguard-membership/internal/backend"
	"github.com/prohmpiriya/safeguard-membership/internal/domain"
	"github.com/prohmpiriya/safeguard-membership/internal/dto"
	"github.com/prohmpiriya/safeguard-membership/internal/payment"
	"github.com/prohmpiriya/safeguard-membership/internal/provisioning"
	"github.com/prohmpiriya/safeguard-membership/internal/session"
	"github.com/prohmpiriya/safeguard-membership/pkg/logger"
	"github.com/prohmpiriya/safeguard-membership/pkg/telemetry"
)

// OnboardingService errors
var (
	ErrInvalidForm         = errors.New("onboarding form is invalid")
	ErrProfileUpdateFailed = errors.New("failed to save onboarding profile")
	ErrMissingSession      = errors.New("session id is required")
)

// ValidationError reports the first wizard step that failed validation
type ValidationError struct {
	Step    int
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("step %d: %s", e.Step, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidForm
}

// Provisioner runs the account provisioning workflow
type Provisioner interface {
	Execute(ctx context.Context, req *provisioning.Request) *provisioning.Result
}

// Service handles the onboarding wizard
type Service interface {
	// ValidateStep checks one wizard step before moving forward
	ValidateStep(step int, form *dto.OnboardingForm) *dto.ValidateStepResponse

	// Submit validates the whole form, saves the profile and branches on tier
	Submit(ctx context.Context, userID, sessionID string, form *dto.OnboardingForm) (*dto.SubmitOnboardingResponse, error)

	// CompleteAfterPayment runs provisioning when the member returns from checkout
	CompleteAfterPayment(ctx context.Context, userID, sessionID string) (*provisioning.Result, error)

	// SaveSessionFlags records where the member came from before onboarding
	SaveSessionFlags(ctx context.Context, sessionID string, req *dto.SessionFlagsRequest) error
}

type onboardingService struct {
	backend     backend.Client
	payments    payment.Service
	provisioner Provisioner
	sessions    session.Store
	log         *logger.Logger
}

// NewOnboardingService creates a new onboarding Service
func NewOnboardingService(
	client backend.Client,
	payments payment.Service,
	provisioner Provisioner,
	sessions session.Store,
	log *logger.Logger,
) Service {
	if log == nil {
		log = logger.NewNop()
	}
	return &onboardingService{
		backend:     client,
		payments:    payments,
		provisioner: provisioner,
		sessions:    sessions,
		log:         log,
	}
}

// ValidateStep checks one wizard step
func (s *onboardingService) ValidateStep(step int, form *dto.OnboardingForm) *dto.ValidateStepResponse {
	resp := &dto.ValidateStepResponse{Step: step}
	ok, msg := form.ValidateStep(step)
	if !ok {
		resp.Message = msg
		resp.MissingFields = form.MissingFields(step)
		return resp
	}
	resp.Valid = true
	if step < dto.OnboardingSteps {
		resp.NextStep = step + 1
	}
	return resp
}

// Submit saves the profile then sends paid tiers to checkout and provisions the rest
func (s *onboardingService) Submit(ctx context.Context, userID, sessionID string, form *dto.OnboardingForm) (*dto.SubmitOnboardingResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "onboarding.submit")
	defer span.End()
	span.SetAttributes(telemetry.UserIDAttr(userID), telemetry.MembershipTierAttr(form.MembershipTier))

	if step, msg := form.Validate(); step != 0 {
		span.SetStatus(codes.Error, "invalid form")
		return nil, &ValidationError{Step: step, Message: msg}
	}

	log := s.log.WithContext(ctx).WithFields(zap.String("user_id", userID), zap.String("tier", form.MembershipTier))

	var current *domain.User
	var stored domain.User
	if err := s.backend.Get(ctx, backend.EntityUser, userID, &stored); err != nil {
		log.Warn("failed to read profile before onboarding update", zap.Error(err))
	} else {
		current = &stored
	}

	if err := s.backend.UpdateMe(ctx, userID, form.ProfileFields(current)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "profile update failed")
		log.Error("failed to save onboarding profile", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrProfileUpdateFailed, err)
	}

	if domain.IsPaidTier(form.MembershipTier) {
		user := &domain.User{ID: userID, Email: form.Email, FirstName: form.FirstName, LastName: form.LastName}
		cs, err := s.payments.CreateCheckout(ctx, user, form.MembershipTier)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "checkout failed")
			return nil, err
		}
		log.Info("onboarding submitted, redirecting to checkout", zap.String("session_id", cs.ID))
		return &dto.SubmitOnboardingResponse{RedirectURL: cs.URL, CheckoutSessionID: cs.ID}, nil
	}

	result := s.provisioner.Execute(ctx, &provisioning.Request{
		UserID:    userID,
		SessionID: sessionID,
		Trigger:   provisioning.TriggerOnboarding,
	})
	log.Info("onboarding submitted, provisioning finished", zap.String("run_id", result.RunID))
	return &dto.SubmitOnboardingResponse{RedirectURL: result.RedirectURL, RunID: result.RunID}, nil
}

// CompleteAfterPayment provisions a member returning from the hosted checkout
func (s *onboardingService) CompleteAfterPayment(ctx context.Context, userID, sessionID string) (*provisioning.Result, error) {
	ctx, span := telemetry.StartSpan(ctx, "onboarding.complete_after_payment")
	defer span.End()
	span.SetAttributes(telemetry.UserIDAttr(userID))

	return s.provisioner.Execute(ctx, &provisioning.Request{
		UserID:    userID,
		SessionID: sessionID,
		Trigger:   provisioning.TriggerPaymentReturn,
	}), nil
}

// SaveSessionFlags stores the event signup redirect and invite id for provisioning
func (s *onboardingService) SaveSessionFlags(ctx context.Context, sessionID string, req *dto.SessionFlagsRequest) error {
	if sessionID == "" {
		return ErrMissingSession
	}
	if ok, msg := req.Validate(); !ok {
		return &ValidationError{Message: msg}
	}

	if req.EventRedirectURL != "" {
		if err := s.sessions.Set(ctx, sessionID, session.KeyEventRedirectURL, req.EventRedirectURL); err != nil {
			return fmt.Errorf("failed to store event redirect: %w", err)
		}
	}
	if req.InviteID != "" {
		if err := s.sessions.Set(ctx, sessionID, session.KeyInviteID, req.InviteID); err != nil {
			return fmt.Errorf("failed to store invite id: %w", err)
		}
	}
	return nil
}
