package onboarding

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prohmpiriya/safeguard-membership/internal/backend"
	"github.com/prohmpiriya/safeguard-membership/internal/domain"
	"github.com/prohmpiriya/safeguard-membership/internal/dto"
	"github.com/prohmpiriya/safeguard-membership/internal/provisioning"
	"github.com/prohmpiriya/safeguard-membership/internal/session"
)

func completeForm(tier string) *dto.OnboardingForm {
	return &dto.OnboardingForm{
		FirstName:              "Grace",
		LastName:               "Hopper",
		Email:                  "grace@example.org",
		OrganisationName:       "Northside Academy",
		OrganisationType:       "school",
		Sector:                 "education",
		JobTitle:               "Designated Safeguarding Lead",
		Role:                   "dsl",
		SafeguardingExperience: "5-10 years",
		MembershipTier:         tier,
		AcceptCodeOfConduct:    true,
		AcceptPrivacyPolicy:    true,
	}
}

type testDeps struct {
	client      *backend.MemoryClient
	payments    *MockPaymentService
	provisioner *MockProvisioner
	sessions    *session.MemoryStore
	svc         Service
}

func newTestDeps(t *testing.T) *testDeps {
	t.Helper()
	d := &testDeps{
		client:      backend.NewMemoryClient(),
		payments:    &MockPaymentService{},
		provisioner: &MockProvisioner{},
		sessions:    session.NewMemoryStore(time.Hour),
	}
	_, err := d.client.Seed(backend.EntityUser, &domain.User{ID: "user-1", Email: "grace@example.org"})
	require.NoError(t, err)
	d.svc = NewOnboardingService(d.client, d.payments, d.provisioner, d.sessions, nil)
	return d
}

func TestValidateStep(t *testing.T) {
	d := newTestDeps(t)

	form := completeForm(domain.TierAssociate)
	form.OrganisationType = dto.OtherOption

	resp := d.svc.ValidateStep(2, form)
	assert.False(t, resp.Valid)
	assert.Equal(t, []string{"organisation_type_other"}, resp.MissingFields)
	assert.Zero(t, resp.NextStep)

	form.OrganisationTypeOther = "Community group"
	resp = d.svc.ValidateStep(2, form)
	assert.True(t, resp.Valid)
	assert.Equal(t, 3, resp.NextStep)

	resp = d.svc.ValidateStep(5, form)
	assert.True(t, resp.Valid)
	assert.Zero(t, resp.NextStep)
}

func TestSubmit_AssociateRunsProvisioning(t *testing.T) {
	d := newTestDeps(t)

	resp, err := d.svc.Submit(context.Background(), "user-1", "sess-1", completeForm(domain.TierAssociate))

	require.NoError(t, err)
	assert.Equal(t, "/dashboard", resp.RedirectURL)
	assert.Equal(t, "run-1", resp.RunID)
	assert.Empty(t, d.payments.Checkouts())

	reqs := d.provisioner.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, provisioning.TriggerOnboarding, reqs[0].Trigger)
	assert.Equal(t, "sess-1", reqs[0].SessionID)

	var u domain.User
	require.NoError(t, d.client.Record(backend.EntityUser, "user-1", &u))
	assert.Equal(t, "Northside Academy", u.OrganisationName)
	assert.Equal(t, "Grace Hopper", u.FullName)
	assert.Equal(t, domain.MembershipStatusActive, u.MembershipStatus)
}

func TestSubmit_PaidTierCreatesCheckout(t *testing.T) {
	for _, tier := range []string{domain.TierFull, domain.TierFellow} {
		t.Run(tier, func(t *testing.T) {
			d := newTestDeps(t)

			resp, err := d.svc.Submit(context.Background(), "user-1", "sess-1", completeForm(tier))

			require.NoError(t, err)
			assert.Equal(t, "https://checkout.example/cs_1", resp.RedirectURL)
			assert.Equal(t, "cs_1", resp.CheckoutSessionID)
			assert.Equal(t, []string{"user-1:" + tier}, d.payments.Checkouts())
			assert.Empty(t, d.provisioner.Requests())

			var u domain.User
			require.NoError(t, d.client.Record(backend.EntityUser, "user-1", &u))
			assert.Equal(t, domain.MembershipStatusPending, u.MembershipStatus)
			assert.Equal(t, tier, u.MembershipTier)
		})
	}
}

func TestSubmit_PaidTierKeepsActiveMembership(t *testing.T) {
	d := newTestDeps(t)
	require.NoError(t, d.client.Update(context.Background(), backend.EntityUser, "user-1", map[string]interface{}{
		"membership_tier":   domain.TierFull,
		"membership_status": domain.MembershipStatusActive,
	}, nil))

	resp, err := d.svc.Submit(context.Background(), "user-1", "sess-1", completeForm(domain.TierFellow))

	require.NoError(t, err)
	assert.Equal(t, "cs_1", resp.CheckoutSessionID)
	assert.Equal(t, []string{"user-1:" + domain.TierFellow}, d.payments.Checkouts())

	var u domain.User
	require.NoError(t, d.client.Record(backend.EntityUser, "user-1", &u))
	assert.Equal(t, domain.MembershipStatusActive, u.MembershipStatus)
	assert.Equal(t, domain.TierFull, u.MembershipTier)
	assert.Equal(t, "Northside Academy", u.OrganisationName)
}

func TestSubmit_ProfileReadFailureLeavesMembershipToWebhook(t *testing.T) {
	d := newTestDeps(t)
	d.client.FailOn(backend.OpGet, backend.EntityUser, ErrMockFailure)

	_, err := d.svc.Submit(context.Background(), "user-1", "sess-1", completeForm(domain.TierFull))

	require.NoError(t, err)
	var u domain.User
	require.NoError(t, d.client.Record(backend.EntityUser, "user-1", &u))
	assert.Empty(t, u.MembershipStatus)
	assert.Empty(t, u.MembershipTier)
	assert.Equal(t, "Grace Hopper", u.FullName)
}

func TestSubmit_Errors(t *testing.T) {
	t.Run("invalid form reports step", func(t *testing.T) {
		d := newTestDeps(t)
		form := completeForm(domain.TierFull)
		form.AcceptPrivacyPolicy = false

		_, err := d.svc.Submit(context.Background(), "user-1", "sess-1", form)

		require.ErrorIs(t, err, ErrInvalidForm)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, 5, verr.Step)
		assert.Empty(t, d.payments.Checkouts())
	})

	t.Run("profile update fails", func(t *testing.T) {
		d := newTestDeps(t)
		d.client.FailOn(backend.OpUpdateMe, backend.EntityUser, ErrMockFailure)

		_, err := d.svc.Submit(context.Background(), "user-1", "sess-1", completeForm(domain.TierAssociate))

		assert.ErrorIs(t, err, ErrProfileUpdateFailed)
		assert.Empty(t, d.provisioner.Requests())
	})

	t.Run("checkout fails", func(t *testing.T) {
		d := newTestDeps(t)
		d.payments.ShouldFail = true

		_, err := d.svc.Submit(context.Background(), "user-1", "sess-1", completeForm(domain.TierFull))

		assert.ErrorIs(t, err, ErrMockFailure)
	})
}

func TestCompleteAfterPayment(t *testing.T) {
	d := newTestDeps(t)

	res, err := d.svc.CompleteAfterPayment(context.Background(), "user-1", "sess-1")

	require.NoError(t, err)
	assert.Equal(t, "/dashboard?payment=success", res.RedirectURL)
	reqs := d.provisioner.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, provisioning.TriggerPaymentReturn, reqs[0].Trigger)
}

func TestSaveSessionFlags(t *testing.T) {
	ctx := context.Background()
	d := newTestDeps(t)

	err := d.svc.SaveSessionFlags(ctx, "sess-1", &dto.SessionFlagsRequest{
		EventRedirectURL: "/events/register?event_id=ev-1",
		InviteID:         "inv-9",
	})
	require.NoError(t, err)

	state, err := d.sessions.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "/events/register?event_id=ev-1", state.EventRedirectURL)
	assert.Equal(t, "inv-9", state.InviteID)

	assert.ErrorIs(t, d.svc.SaveSessionFlags(ctx, "", &dto.SessionFlagsRequest{InviteID: "x"}), ErrMissingSession)
	assert.ErrorIs(t, d.svc.SaveSessionFlags(ctx, "sess-1", &dto.SessionFlagsRequest{}), ErrInvalidForm)
}

func TestSubmit_AssociateEndToEnd(t *testing.T) {
	client := backend.NewMemoryClient()
	_, err := client.Seed(backend.EntityUser, &domain.User{ID: "user-1", Email: "grace@example.org"})
	require.NoError(t, err)
	sessions := session.NewMemoryStore(time.Hour)
	require.NoError(t, sessions.Set(context.Background(), "sess-1", session.KeyInviteID, "inv-3"))

	workflow := provisioning.NewWorkflow(&provisioning.WorkflowConfig{
		Backend:      client,
		Sessions:     sessions,
		PollInterval: time.Millisecond,
	})
	svc := NewOnboardingService(client, &MockPaymentService{}, workflow, sessions, nil)

	resp, err := svc.Submit(context.Background(), "user-1", "sess-1", completeForm(domain.TierAssociate))

	require.NoError(t, err)
	assert.Equal(t, "/dashboard?invite=inv-3", resp.RedirectURL)
	var u domain.User
	require.NoError(t, client.Record(backend.EntityUser, "user-1", &u))
	assert.True(t, u.OnboardingCompleted)
	assert.True(t, u.WelcomeEmailSent)

	groups := client.Calls(backend.FunctionAddToMailingListGroup)
	require.Len(t, groups, 1)
	assert.Equal(t, "associate-members", groups[0].Payload["group"])
}
