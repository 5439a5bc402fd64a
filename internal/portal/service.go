package portal

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/prohmpiriya/safeguard-membership/internal/backend"
	"github.com/prohmpiriya/safeguard-membership/internal/domain"
	"github.com/prohmpiriya/safeguard-membership/internal/dto"
	"github.com/prohmpiriya/safeguard-membership/pkg/logger"
)

// PortalService errors
var (
	ErrSurveyNotFound  = errors.New("survey not found")
	ErrProfileNotFound = errors.New("profile not found")
	ErrInvalidRequest  = errors.New("invalid request")
)

// dashboardNewsItems is how many news items the dashboard shows
const dashboardNewsItems = 3

// Dashboard is the member's landing page
type Dashboard struct {
	Profile        *domain.User              `json:"profile"`
	CPDHours       float64                   `json:"cpd_hours"`
	Credential     *domain.DigitalCredential `json:"credential,omitempty"`
	UpcomingEvents []*UpcomingEvent          `json:"upcoming_events"`
	LatestNews     []*domain.NewsItem        `json:"latest_news"`
}

// UpcomingEvent pairs a signup with its event
type UpcomingEvent struct {
	Signup *domain.EventSignup `json:"signup"`
	Event  *domain.Event       `json:"event"`
}

// Service serves the marketing and member portal read models
type Service interface {
	Tiers() []TierInfo
	LatestJobs(ctx context.Context, filter *dto.JobsFilter) ([]*domain.JobListing, error)
	SubmitFellowshipApplication(ctx context.Context, req *dto.FellowshipApplicationRequest) (*domain.FellowshipApplication, error)
	ListNews(ctx context.Context, filter *dto.NewsFilter) ([]*domain.NewsItem, int64, error)
	ListInvoices(ctx context.Context, userID string) (*dto.InvoiceListResponse, error)
	SurveyAnalytics(ctx context.Context, surveyID string) (*SurveyAnalytics, error)
	Dashboard(ctx context.Context, userID string) (*Dashboard, error)
}

type portalService struct {
	backend backend.Client
	log     *logger.Logger
	now     func() time.Time
}

// NewPortalService creates a new portal Service
func NewPortalService(client backend.Client, log *logger.Logger) Service {
	if log == nil {
		log = logger.NewNop()
	}
	return &portalService{backend: client, log: log, now: time.Now}
}

// Tiers returns the membership comparison catalogue
func (s *portalService) Tiers() []TierInfo {
	return Tiers()
}

// LatestJobs returns the newest job listings for the jobs-board teaser
func (s *portalService) LatestJobs(ctx context.Context, filter *dto.JobsFilter) ([]*domain.JobListing, error) {
	filter.SetDefaults()

	var jobs []*domain.JobListing
	err := s.backend.List(ctx, backend.EntityJobListing, &backend.ListParams{
		Sort:  "-posted_date",
		Limit: filter.Limit,
	}, &jobs)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return jobs, nil
}

// SubmitFellowshipApplication validates and stores a fellowship application
func (s *portalService) SubmitFellowshipApplication(ctx context.Context, req *dto.FellowshipApplicationRequest) (*domain.FellowshipApplication, error) {
	if valid, msg := req.Validate(); !valid {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRequest, msg)
	}

	app := &domain.FellowshipApplication{
		UserID:              req.UserID,
		FullName:            req.FullName,
		Email:               req.Email,
		CurrentRole:         req.CurrentRole,
		YearsExperience:     req.YearsExperience,
		Qualifications:      req.Qualifications,
		Contribution:        req.Contribution,
		SupportingStatement: req.SupportingStatement,
		Status:              domain.ApplicationStatusSubmitted,
		CreatedDate:         s.now().UTC(),
	}

	var created domain.FellowshipApplication
	if err := s.backend.Create(ctx, backend.EntityFellowshipApplication, app, &created); err != nil {
		return nil, fmt.Errorf("failed to create fellowship application: %w", err)
	}

	s.log.WithContext(ctx).Info("fellowship application submitted",
		zap.String("application_id", created.ID),
		zap.String("user_id", req.UserID),
	)
	return &created, nil
}

// ListNews returns one page of published news matching the filter and the
// number of matching items
func (s *portalService) ListNews(ctx context.Context, filter *dto.NewsFilter) ([]*domain.NewsItem, int64, error) {
	filter.SetDefaults()

	var items []*domain.NewsItem
	err := s.backend.List(ctx, backend.EntityNewsItem, &backend.ListParams{
		Filter: map[string]interface{}{"published": true},
		Sort:   "-published_date",
	}, &items)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list news: %w", err)
	}

	matched := FilterNews(items, filter)
	return pageOf(matched, filter), int64(len(matched)), nil
}

// ListInvoices returns the member's course bookings grouped into invoices
func (s *portalService) ListInvoices(ctx context.Context, userID string) (*dto.InvoiceListResponse, error) {
	var bookings []*domain.CourseBooking
	err := s.backend.List(ctx, backend.EntityCourseBooking, &backend.ListParams{
		Filter: map[string]interface{}{"user_id": userID},
		Sort:   "-booked_date",
	}, &bookings)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}

	invoices := GroupInvoices(bookings)
	return &dto.InvoiceListResponse{Invoices: invoices, Total: len(invoices)}, nil
}

// SurveyAnalytics summarises all responses to a survey
func (s *portalService) SurveyAnalytics(ctx context.Context, surveyID string) (*SurveyAnalytics, error) {
	var survey domain.Survey
	if err := s.backend.Get(ctx, backend.EntitySurvey, surveyID, &survey); err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			return nil, ErrSurveyNotFound
		}
		return nil, fmt.Errorf("failed to load survey: %w", err)
	}

	var responses []*domain.SurveyResponse
	err := s.backend.List(ctx, backend.EntitySurveyResponse, &backend.ListParams{
		Filter: map[string]interface{}{"survey_id": surveyID},
	}, &responses)
	if err != nil {
		return nil, fmt.Errorf("failed to list survey responses: %w", err)
	}

	return AnalyseSurvey(&survey, responses), nil
}

// Dashboard builds the member landing page. Only the profile is required;
// the other panels degrade to empty when their lookups fail.
func (s *portalService) Dashboard(ctx context.Context, userID string) (*Dashboard, error) {
	log := s.log.WithContext(ctx).WithMember(userID)

	var user domain.User
	if err := s.backend.Get(ctx, backend.EntityUser, userID, &user); err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}

	d := &Dashboard{
		Profile:        &user,
		CPDHours:       user.CPDHours,
		UpcomingEvents: []*UpcomingEvent{},
		LatestNews:     []*domain.NewsItem{},
	}

	var creds []*domain.DigitalCredential
	err := s.backend.List(ctx, backend.EntityDigitalCredential, &backend.ListParams{
		Filter: map[string]interface{}{"user_id": userID},
		Sort:   "-issued_at",
		Limit:  1,
	}, &creds)
	if err != nil {
		log.Warn("failed to load credential", zap.Error(err))
	} else if len(creds) > 0 {
		d.Credential = creds[0]
	}

	if upcoming, err := s.upcomingEvents(ctx, userID); err != nil {
		log.Warn("failed to load upcoming events", zap.Error(err))
	} else {
		d.UpcomingEvents = upcoming
	}

	if news, _, err := s.ListNews(ctx, &dto.NewsFilter{PerPage: dashboardNewsItems}); err != nil {
		log.Warn("failed to load latest news", zap.Error(err))
	} else {
		d.LatestNews = news
	}

	return d, nil
}

func (s *portalService) upcomingEvents(ctx context.Context, userID string) ([]*UpcomingEvent, error) {
	var signups []*domain.EventSignup
	err := s.backend.List(ctx, backend.EntityEventSignup, &backend.ListParams{
		Filter: map[string]interface{}{"user_id": userID, "status": domain.SignupStatusRegistered},
	}, &signups)
	if err != nil {
		return nil, err
	}

	now := s.now()
	out := make([]*UpcomingEvent, 0, len(signups))
	for _, signup := range signups {
		var event domain.Event
		if err := s.backend.Get(ctx, backend.EntityEvent, signup.EventID, &event); err != nil {
			s.log.WithContext(ctx).Debug("skipping signup with unavailable event",
				zap.String("event_id", signup.EventID), zap.Error(err))
			continue
		}
		if event.StartsAt.Before(now) {
			continue
		}
		out = append(out, &UpcomingEvent{Signup: signup, Event: &event})
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Event.StartsAt.Before(out[j].Event.StartsAt)
	})
	return out, nil
}
