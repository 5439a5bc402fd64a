package admin

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/prohmpiriya/safeguard-membership/internal/backend"
	"github.com/prohmpiriya/safeguard-membership/internal/domain"
	"github.com/prohmpiriya/safeguard-membership/internal/dto"
	"github.com/prohmpiriya/safeguard-membership/pkg/logger"
	"github.com/prohmpiriya/safeguard-membership/pkg/telemetry"
)

// AdminService errors
var (
	ErrInvalidRequest          = errors.New("invalid request")
	ErrOrganisationNotFound    = errors.New("organisation not found")
	ErrInviteNotFound          = errors.New("invite not found")
	ErrInviteAlreadyPending    = errors.New("a pending invite already exists for this email")
	ErrInviteNotRevocable      = errors.New("only pending invites can be revoked")
	ErrApplicationNotFound     = errors.New("fellowship application not found")
	ErrNewsNotFound            = errors.New("news item not found")
	ErrOrganisationVerified    = errors.New("organisation is already verified")
	ErrNewsAlreadyPublished    = errors.New("news item is already published")
	ErrApplicationAlreadyFinal = errors.New("fellowship application has already been decided")
)

// Email templates rendered by the sendEmail function
const (
	TemplateOrgInvite            = "org_invite"
	TemplateOrganisationVerified = "organisation_verified"
)

// Service handles the administrative flows
type Service interface {
	CreateInvite(ctx context.Context, req *dto.CreateInviteRequest) (*domain.OrgInvite, error)
	RevokeInvite(ctx context.Context, inviteID string) (*domain.OrgInvite, error)
	ListInvites(ctx context.Context, organisationID string) ([]*domain.OrgInvite, error)
	VerifyOrganisation(ctx context.Context, organisationID string) (*domain.Organisation, error)
	ListApplications(ctx context.Context, filter *dto.ApplicationListFilter) ([]*domain.FellowshipApplication, error)
	SetApplicationStatus(ctx context.Context, applicationID string, req *dto.UpdateApplicationStatusRequest) (*domain.FellowshipApplication, error)
	CreateNews(ctx context.Context, req *dto.CreateNewsRequest) (*domain.NewsItem, error)
	PublishNews(ctx context.Context, newsID string) (*domain.NewsItem, error)
}

type adminService struct {
	backend   backend.Client
	publicURL string
	log       *logger.Logger
	now       func() time.Time
}

// NewAdminService creates a new admin Service. publicURL is used to build invite links.
func NewAdminService(client backend.Client, publicURL string, log *logger.Logger) Service {
	if log == nil {
		log = logger.NewNop()
	}
	return &adminService{
		backend:   client,
		publicURL: strings.TrimRight(publicURL, "/"),
		log:       log,
		now:       time.Now,
	}
}

// InviteURL is the link an invited member follows to start onboarding
func InviteURL(publicURL, inviteID string) string {
	return strings.TrimRight(publicURL, "/") + "/onboarding?invite=" + url.QueryEscape(inviteID)
}

// CreateInvite stores a pending invite and emails it. The email is best-effort.
func (s *adminService) CreateInvite(ctx context.Context, req *dto.CreateInviteRequest) (*domain.OrgInvite, error) {
	ctx, span := telemetry.StartSpan(ctx, "admin.create_invite")
	defer span.End()

	if valid, msg := req.Validate(); !valid {
		span.SetStatus(codes.Error, "invalid request")
		return nil, fmt.Errorf("%w: %s", ErrInvalidRequest, msg)
	}
	span.SetAttributes(attribute.String("organisation_id", req.OrganisationID))

	org, err := s.organisation(ctx, req.OrganisationID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "organisation lookup failed")
		return nil, err
	}

	var existing []*domain.OrgInvite
	err = s.backend.List(ctx, backend.EntityOrgInvite, &backend.ListParams{
		Filter: map[string]interface{}{
			"organisation_id": req.OrganisationID,
			"email":           req.Email,
			"status":          domain.InviteStatusPending,
		},
		Limit: 1,
	}, &existing)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to check existing invites: %w", err)
	}
	if len(existing) > 0 {
		return nil, ErrInviteAlreadyPending
	}

	var invite domain.OrgInvite
	err = s.backend.Create(ctx, backend.EntityOrgInvite, &domain.OrgInvite{
		OrganisationID: req.OrganisationID,
		Email:          req.Email,
		Status:         domain.InviteStatusPending,
		InvitedBy:      req.InvitedBy,
		CreatedDate:    s.now().UTC(),
	}, &invite)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create invite failed")
		return nil, fmt.Errorf("failed to create invite: %w", err)
	}

	log := s.log.WithContext(ctx).WithFields(
		zap.String("invite_id", invite.ID),
		zap.String("organisation_id", org.ID),
	)

	err = s.backend.Invoke(ctx, backend.FunctionSendEmail, map[string]interface{}{
		"to":       invite.Email,
		"template": TemplateOrgInvite,
		"data": map[string]interface{}{
			"organisation_name": org.Name,
			"invite_url":        InviteURL(s.publicURL, invite.ID),
		},
	}, nil)
	if err != nil {
		log.Warn("failed to send invite email", zap.Error(err))
	}

	log.Info("organisation invite created")
	return &invite, nil
}

// RevokeInvite marks a pending invite as revoked
func (s *adminService) RevokeInvite(ctx context.Context, inviteID string) (*domain.OrgInvite, error) {
	var invite domain.OrgInvite
	if err := s.backend.Get(ctx, backend.EntityOrgInvite, inviteID, &invite); err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			return nil, ErrInviteNotFound
		}
		return nil, fmt.Errorf("failed to load invite: %w", err)
	}
	if invite.Status != domain.InviteStatusPending {
		return nil, ErrInviteNotRevocable
	}

	var updated domain.OrgInvite
	err := s.backend.Update(ctx, backend.EntityOrgInvite, inviteID, map[string]interface{}{
		"status": domain.InviteStatusRevoked,
	}, &updated)
	if err != nil {
		return nil, fmt.Errorf("failed to revoke invite: %w", err)
	}

	s.log.WithContext(ctx).Info("organisation invite revoked", zap.String("invite_id", inviteID))
	return &updated, nil
}

// ListInvites returns an organisation's invites, newest first
func (s *adminService) ListInvites(ctx context.Context, organisationID string) ([]*domain.OrgInvite, error) {
	params := &backend.ListParams{Sort: "-created_date"}
	if organisationID != "" {
		params.Filter = map[string]interface{}{"organisation_id": organisationID}
	}

	invites := []*domain.OrgInvite{}
	if err := s.backend.List(ctx, backend.EntityOrgInvite, params, &invites); err != nil {
		return nil, fmt.Errorf("failed to list invites: %w", err)
	}
	return invites, nil
}

// VerifyOrganisation marks an organisation verified, flags its members and
// notifies the organisation contact. Only the organisation update is required.
func (s *adminService) VerifyOrganisation(ctx context.Context, organisationID string) (*domain.Organisation, error) {
	ctx, span := telemetry.StartSpan(ctx, "admin.verify_organisation")
	defer span.End()
	span.SetAttributes(attribute.String("organisation_id", organisationID))

	org, err := s.organisation(ctx, organisationID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "organisation lookup failed")
		return nil, err
	}
	if org.Verified {
		return nil, ErrOrganisationVerified
	}

	var updated domain.Organisation
	err = s.backend.Update(ctx, backend.EntityOrganisation, organisationID, map[string]interface{}{
		"verified": true,
	}, &updated)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "verify failed")
		return nil, fmt.Errorf("failed to verify organisation: %w", err)
	}

	log := s.log.WithContext(ctx).WithFields(zap.String("organisation_id", organisationID))

	var members []*domain.User
	err = s.backend.List(ctx, backend.EntityUser, &backend.ListParams{
		Filter: map[string]interface{}{"organisation_id": organisationID},
	}, &members)
	if err != nil {
		log.Warn("failed to list organisation members", zap.Error(err))
	}
	flagged := 0
	for _, m := range members {
		err := s.backend.Update(ctx, backend.EntityUser, m.ID, map[string]interface{}{
			"organisation_verified": true,
		}, nil)
		if err != nil {
			log.Warn("failed to flag member organisation as verified", zap.String("user_id", m.ID), zap.Error(err))
			continue
		}
		flagged++
	}

	if updated.ContactEmail != "" {
		err := s.backend.Invoke(ctx, backend.FunctionSendEmail, map[string]interface{}{
			"to":       updated.ContactEmail,
			"template": TemplateOrganisationVerified,
			"data":     map[string]interface{}{"organisation_name": updated.Name},
		}, nil)
		if err != nil {
			log.Warn("failed to notify organisation contact", zap.Error(err))
		}
	}

	log.Info("organisation verified", zap.Int("members_flagged", flagged))
	return &updated, nil
}

// ListApplications returns fellowship applications, optionally by status
func (s *adminService) ListApplications(ctx context.Context, filter *dto.ApplicationListFilter) ([]*domain.FellowshipApplication, error) {
	filter.SetDefaults()
	if filter.Status != "" && !domain.IsValidApplicationStatus(filter.Status) {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidRequest, filter.Status)
	}

	params := &backend.ListParams{Sort: "-created_date", Limit: filter.Limit}
	if filter.Status != "" {
		params.Filter = map[string]interface{}{"status": filter.Status}
	}

	apps := []*domain.FellowshipApplication{}
	if err := s.backend.List(ctx, backend.EntityFellowshipApplication, params, &apps); err != nil {
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}
	return apps, nil
}

// SetApplicationStatus records a review decision. Approved or rejected
// applications are final.
func (s *adminService) SetApplicationStatus(ctx context.Context, applicationID string, req *dto.UpdateApplicationStatusRequest) (*domain.FellowshipApplication, error) {
	if valid, msg := req.Validate(); !valid {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRequest, msg)
	}

	var app domain.FellowshipApplication
	if err := s.backend.Get(ctx, backend.EntityFellowshipApplication, applicationID, &app); err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			return nil, ErrApplicationNotFound
		}
		return nil, fmt.Errorf("failed to load application: %w", err)
	}
	if app.Status == domain.ApplicationStatusApproved || app.Status == domain.ApplicationStatusRejected {
		return nil, ErrApplicationAlreadyFinal
	}

	fields := map[string]interface{}{"status": req.Status}
	if req.ReviewNotes != "" {
		fields["review_notes"] = req.ReviewNotes
	}

	var updated domain.FellowshipApplication
	if err := s.backend.Update(ctx, backend.EntityFellowshipApplication, applicationID, fields, &updated); err != nil {
		return nil, fmt.Errorf("failed to update application: %w", err)
	}

	s.log.WithContext(ctx).Info("fellowship application reviewed",
		zap.String("application_id", applicationID),
		zap.String("status", req.Status),
	)
	return &updated, nil
}

// CreateNews stores an unpublished news item
func (s *adminService) CreateNews(ctx context.Context, req *dto.CreateNewsRequest) (*domain.NewsItem, error) {
	if valid, msg := req.Validate(); !valid {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRequest, msg)
	}

	var item domain.NewsItem
	err := s.backend.Create(ctx, backend.EntityNewsItem, &domain.NewsItem{
		Title:    strings.TrimSpace(req.Title),
		Summary:  req.Summary,
		Body:     req.Body,
		Category: strings.ToLower(strings.TrimSpace(req.Category)),
		Featured: req.Featured,
	}, &item)
	if err != nil {
		return nil, fmt.Errorf("failed to create news item: %w", err)
	}
	return &item, nil
}

// PublishNews makes a news item visible in the hub, dated now
func (s *adminService) PublishNews(ctx context.Context, newsID string) (*domain.NewsItem, error) {
	var item domain.NewsItem
	if err := s.backend.Get(ctx, backend.EntityNewsItem, newsID, &item); err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			return nil, ErrNewsNotFound
		}
		return nil, fmt.Errorf("failed to load news item: %w", err)
	}
	if item.Published {
		return nil, ErrNewsAlreadyPublished
	}

	var updated domain.NewsItem
	err := s.backend.Update(ctx, backend.EntityNewsItem, newsID, map[string]interface{}{
		"published":      true,
		"published_date": s.now().UTC(),
	}, &updated)
	if err != nil {
		return nil, fmt.Errorf("failed to publish news item: %w", err)
	}

	s.log.WithContext(ctx).Info("news item published", zap.String("news_id", newsID))
	return &updated, nil
}

func (s *adminService) organisation(ctx context.Context, id string) (*domain.Organisation, error) {
	var org domain.Organisation
	if err := s.backend.Get(ctx, backend.EntityOrganisation, id, &org); err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			return nil, ErrOrganisationNotFound
		}
		return nil, fmt.Errorf("failed to load organisation: %w", err)
	}
	return &org, nil
}
