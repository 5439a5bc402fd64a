package provisioning

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/prohmpiriya/safeguard-membership/internal/backend"
	"github.com/prohmpiriya/safeguard-membership/internal/domain"
	"github.com/prohmpiriya/safeguard-membership/internal/session"
)

// Email templates rendered by the sendEmail function
const (
	TemplateWelcome           = "welcome"
	TemplateEventConfirmation = "event_confirmation"
)

// functionResult is the common shape of serverless function replies
type functionResult struct {
	Success *bool  `json:"success"`
	Error   string `json:"error,omitempty"`
	JoinURL string `json:"join_url,omitempty"`
}

func (r *functionResult) err(function string) error {
	if r.Success != nil && !*r.Success {
		if r.Error != "" {
			return fmt.Errorf("%s reported failure: %s", function, r.Error)
		}
		return fmt.Errorf("%s reported failure", function)
	}
	return nil
}

func (w *Workflow) invoke(ctx context.Context, function string, payload interface{}) (*functionResult, error) {
	var res functionResult
	if err := w.config.Backend.Invoke(ctx, function, payload, &res); err != nil {
		return nil, fmt.Errorf("%s failed: %w", function, err)
	}
	return &res, res.err(function)
}

func (w *Workflow) getUser(ctx context.Context, userID string) (*domain.User, error) {
	var u domain.User
	if err := w.config.Backend.Get(ctx, backend.EntityUser, userID, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// updateProfile writes fields through the auth endpoint, falling back to a direct entity write.
// It returns which path succeeded.
func (w *Workflow) updateProfile(ctx context.Context, userID string, fields map[string]interface{}) (string, error) {
	primaryErr := w.config.Backend.UpdateMe(ctx, userID, fields)
	if primaryErr == nil {
		return "primary", nil
	}
	if err := w.config.Backend.Update(ctx, backend.EntityUser, userID, fields, nil); err != nil {
		return "", fmt.Errorf("profile update failed (primary: %v): %w", primaryErr, err)
	}
	return "fallback", nil
}

func (w *Workflow) markOnboardingComplete(ctx context.Context, userID string) (string, error) {
	return w.updateProfile(ctx, userID, map[string]interface{}{"onboarding_completed": true})
}

func (e *execution) requireUser() error {
	if e.user == nil {
		return skip("profile unavailable")
	}
	return nil
}

// pollMembership loads the profile, waiting for activation on payment return
func (e *execution) pollMembership(ctx context.Context) {
	wait := e.req.Trigger == TriggerPaymentReturn
	attempts := 1
	if wait {
		attempts = e.w.config.PollAttempts
	}

	e.step(ctx, StepPollMembership, 0, func(ctx context.Context) (string, error) {
		var lastErr error
		for i := 1; i <= attempts; i++ {
			e.run.PollAttempts = i

			u, err := e.w.getUser(ctx, e.req.UserID)
			if err != nil {
				lastErr = err
			} else {
				e.user = u
				lastErr = nil
				if !wait {
					return "profile loaded", nil
				}
				if u.IsPaidMember() {
					return fmt.Sprintf("membership active after %d attempt(s)", i), nil
				}
			}

			if i == attempts {
				break
			}

			timer := time.NewTimer(e.w.config.PollInterval)
			select {
			case <-ctx.Done():
				timer.Stop()
				return "", fmt.Errorf("poll interrupted after %d attempt(s): %w", i, ctx.Err())
			case <-timer.C:
			}
		}

		if e.user == nil {
			return "", fmt.Errorf("%w: %v", ErrProfileUnavailable, lastErr)
		}
		return "", fmt.Errorf("%w after %d attempt(s)", ErrMembershipNotActive, attempts)
	})
}

// syncCRM is fire-and-forget: the redirect never waits for the CRM
func (e *execution) syncCRM(ctx context.Context) {
	if e.user == nil {
		e.skipStep(StepCRMSync, "profile unavailable")
		return
	}
	u := e.user
	payload := map[string]interface{}{
		"user_id":           u.ID,
		"email":             u.Email,
		"first_name":        u.FirstName,
		"last_name":         u.LastName,
		"full_name":         u.DisplayName(),
		"organisation_name": u.OrganisationName,
		"job_title":         u.JobTitle,
		"membership_tier":   u.MembershipTier,
		"membership_status": u.MembershipStatus,
	}
	w := e.w
	e.dispatch(ctx, StepCRMSync, func(ctx context.Context) (string, error) {
		_, err := w.invoke(ctx, backend.FunctionSyncToCRM, payload)
		return "", err
	})
}

// mailingListGroup maps a tier to its mailing list group
func mailingListGroup(tier string) string {
	switch tier {
	case domain.TierFellow:
		return "fellows"
	case domain.TierFull:
		return "full-members"
	case domain.TierAssociate:
		return "associate-members"
	}
	return "members"
}

// assignMailingList is fire-and-forget like syncCRM
func (e *execution) assignMailingList(ctx context.Context) {
	if e.user == nil {
		e.skipStep(StepMailingList, "profile unavailable")
		return
	}
	group := mailingListGroup(e.user.MembershipTier)
	payload := map[string]interface{}{
		"email":      e.user.Email,
		"first_name": e.user.FirstName,
		"last_name":  e.user.LastName,
		"group":      group,
	}
	w := e.w
	e.dispatch(ctx, StepMailingList, func(ctx context.Context) (string, error) {
		_, err := w.invoke(ctx, backend.FunctionAddToMailingListGroup, payload)
		return "group " + group, err
	})
}

func (e *execution) syncMirror(ctx context.Context) {
	e.step(ctx, StepMemberMirror, e.w.config.StepTimeout, func(ctx context.Context) (string, error) {
		if err := e.requireUser(); err != nil {
			return "", err
		}
		return "", e.w.config.Mirror.UpsertMember(ctx, e.user)
	})
}

func (e *execution) issueCredential(ctx context.Context) {
	e.step(ctx, StepCredential, e.w.config.StepTimeout, func(ctx context.Context) (string, error) {
		if err := e.requireUser(); err != nil {
			return "", err
		}

		var existing []domain.DigitalCredential
		err := e.w.config.Backend.List(ctx, backend.EntityDigitalCredential, &backend.ListParams{
			Filter: map[string]interface{}{"user_id": e.user.ID},
			Limit:  1,
		}, &existing)
		if err != nil {
			return "", fmt.Errorf("failed to look up credentials: %w", err)
		}
		if len(existing) > 0 {
			return "", skip("credential " + existing[0].CredentialNumber + " already issued")
		}

		cred := domain.NewDigitalCredential(e.user, e.w.now().UTC())
		if err := e.w.config.Backend.Create(ctx, backend.EntityDigitalCredential, cred, nil); err != nil {
			return "", fmt.Errorf("failed to create credential: %w", err)
		}
		return cred.CredentialNumber, nil
	})
}

// eventIDFromRedirect extracts event_id (or eventId) from a stored signup redirect
func eventIDFromRedirect(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	q := u.Query()
	if id := q.Get("event_id"); id != "" {
		return id
	}
	return q.Get("eventId")
}

// registerForEvent completes a signup started from an event link
func (e *execution) registerForEvent(ctx context.Context) {
	eventID := eventIDFromRedirect(e.sess.EventRedirectURL)
	if eventID == "" {
		e.log.Warn("event redirect has no event id", zap.String("redirect", e.sess.EventRedirectURL))
		e.clearEventRedirect(ctx)
		return
	}
	if e.user == nil {
		// keep the redirect so the next run can finish the signup
		e.skipStep(StepEventSignup, "profile unavailable")
		return
	}

	var event *domain.Event
	e.step(ctx, StepEventLookup, e.w.config.StepTimeout, func(ctx context.Context) (string, error) {
		var ev domain.Event
		if err := e.w.config.Backend.Get(ctx, backend.EntityEvent, eventID, &ev); err != nil {
			return "", fmt.Errorf("failed to load event %s: %w", eventID, err)
		}
		event = &ev
		return ev.Title, nil
	})

	var joinURL *string
	e.step(ctx, StepEventRegistration, e.w.config.StepTimeout, func(ctx context.Context) (string, error) {
		if event == nil {
			return "", skip("event unavailable")
		}
		if !event.IsOnline() {
			return "", skip("event has no meeting")
		}
		res, err := e.w.invoke(ctx, backend.FunctionRegisterZoomAttendee, map[string]interface{}{
			"webinar_id": event.MeetingProviderID,
			"email":      e.user.Email,
			"first_name": e.user.FirstName,
			"last_name":  e.user.LastName,
		})
		if err != nil {
			return "", err
		}
		if res.JoinURL != "" {
			u := res.JoinURL
			joinURL = &u
		}
		return res.JoinURL, nil
	})

	e.step(ctx, StepEventSignup, e.w.config.StepTimeout, func(ctx context.Context) (string, error) {
		signup := &domain.EventSignup{
			EventID:     eventID,
			UserID:      e.user.ID,
			Email:       e.user.Email,
			Name:        e.user.DisplayName(),
			JoinURL:     joinURL,
			Status:      domain.SignupStatusRegistered,
			CreatedDate: e.w.now().UTC(),
		}
		var created domain.EventSignup
		if err := e.w.config.Backend.Create(ctx, backend.EntityEventSignup, signup, &created); err != nil {
			return "", fmt.Errorf("failed to create signup: %w", err)
		}
		return created.ID, nil
	})

	e.step(ctx, StepEventConfirmation, e.w.config.StepTimeout, func(ctx context.Context) (string, error) {
		if event == nil {
			return "", skip("event unavailable")
		}
		data := map[string]interface{}{
			"name":        e.user.DisplayName(),
			"event_title": event.Title,
			"starts_at":   event.StartsAt,
			"location":    event.Location,
		}
		if joinURL != nil {
			data["join_url"] = *joinURL
		}
		_, err := e.w.invoke(ctx, backend.FunctionSendEmail, map[string]interface{}{
			"to":       e.user.Email,
			"template": TemplateEventConfirmation,
			"data":     data,
		})
		return "", err
	})

	e.clearEventRedirect(ctx)
}

func (e *execution) clearEventRedirect(ctx context.Context) {
	if err := e.w.config.Sessions.Delete(ctx, e.req.SessionID, session.KeyEventRedirectURL); err != nil {
		e.log.Warn("failed to clear event redirect", zap.Error(err))
	}
	e.sess.EventRedirectURL = ""
}

// sendWelcomeEmail sends the welcome email at most once per user
func (e *execution) sendWelcomeEmail(ctx context.Context) {
	e.step(ctx, StepWelcomeEmail, e.w.config.StepTimeout, func(ctx context.Context) (string, error) {
		if err := e.requireUser(); err != nil {
			return "", err
		}
		if e.user.WelcomeEmailSent {
			return "", skip("already sent (profile)")
		}
		if e.sess.WelcomeEmailSent {
			return "", skip("already sent (session)")
		}
		if !e.w.inflight.acquire(e.user.ID) {
			return "", skip("send already in flight")
		}
		defer e.w.inflight.release(e.user.ID)

		// a run that finished since this one loaded its copies may have sent it
		sent, err := e.welcomeAlreadySent(ctx)
		if err != nil {
			return "", err
		}
		if sent != "" {
			return "", skip("already sent (" + sent + ")")
		}

		_, err = e.w.invoke(ctx, backend.FunctionSendEmail, map[string]interface{}{
			"to":       e.user.Email,
			"template": TemplateWelcome,
			"data": map[string]interface{}{
				"name":            e.user.DisplayName(),
				"membership_tier": e.user.MembershipTier,
			},
		})
		if err != nil {
			return "", err
		}

		e.sess.WelcomeEmailSent = true
		if e.req.SessionID != "" {
			if err := e.w.config.Sessions.Set(ctx, e.req.SessionID, session.KeyWelcomeEmailSent, "true"); err != nil {
				e.log.Warn("failed to set welcome session flag", zap.Error(err))
			}
		}
		if _, err := e.w.updateProfile(ctx, e.user.ID, map[string]interface{}{"welcome_email_sent": true}); err != nil {
			e.log.Warn("failed to persist welcome flag", zap.Error(err))
			return "sent, profile flag not persisted", nil
		}
		e.user.WelcomeEmailSent = true
		return "sent", nil
	})
}

// welcomeAlreadySent re-reads both flags and names the one that is set
func (e *execution) welcomeAlreadySent(ctx context.Context) (string, error) {
	latest, err := e.w.getUser(ctx, e.user.ID)
	if err != nil {
		return "", fmt.Errorf("failed to confirm welcome flag: %w", err)
	}
	e.user = latest
	if latest.WelcomeEmailSent {
		return "profile", nil
	}

	if e.req.SessionID == "" {
		return "", nil
	}
	state, err := e.w.config.Sessions.Get(ctx, e.req.SessionID)
	if err != nil {
		e.log.Warn("failed to re-read session flags", zap.Error(err))
		return "", nil
	}
	if state != nil && state.WelcomeEmailSent {
		e.sess.WelcomeEmailSent = true
		return "session", nil
	}
	return "", nil
}

// refreshProfile re-reads the profile to log organisation state
func (e *execution) refreshProfile(ctx context.Context) {
	e.step(ctx, StepProfileRefresh, e.w.config.StepTimeout, func(ctx context.Context) (string, error) {
		u, err := e.w.getUser(ctx, e.req.UserID)
		if err != nil {
			return "", fmt.Errorf("failed to refresh profile: %w", err)
		}
		e.user = u
		e.log.Info("profile refreshed",
			zap.String("organisation_id", u.OrganisationID),
			zap.Bool("organisation_verified", u.OrganisationVerified),
			zap.String("membership_status", u.MembershipStatus),
		)
		return fmt.Sprintf("organisation=%q verified=%t", u.OrganisationID, u.OrganisationVerified), nil
	})
}

// finalize marks onboarding complete even when the request context is gone
func (e *execution) finalize(ctx context.Context) {
	e.step(context.WithoutCancel(ctx), StepFinalize, finalizeTimeout, func(ctx context.Context) (string, error) {
		path, err := e.w.markOnboardingComplete(ctx, e.req.UserID)
		if err != nil {
			return "", err
		}
		return "via " + path, nil
	})
}
