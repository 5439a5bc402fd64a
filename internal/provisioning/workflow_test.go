package provisioning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prohmpiriya/safeguard-membership/internal/backend"
	"github.com/prohmpiriya/safeguard-membership/internal/domain"
	"github.com/prohmpiriya/safeguard-membership/internal/session"
)

const (
	testUserID    = "user-0001"
	testSessionID = "sess-1"
)

type testEnv struct {
	client   *backend.MemoryClient
	sessions *session.MemoryStore
	mirror   *MockMemberMirror
	producer *MockProducer
	runs     *MemoryRunStore
	workflow *Workflow
}

func newTestEnv(t *testing.T, user *domain.User) *testEnv {
	t.Helper()
	env := &testEnv{
		client:   backend.NewMemoryClient(),
		sessions: session.NewMemoryStore(time.Hour),
		mirror:   NewMockMemberMirror(),
		producer: &MockProducer{},
		runs:     NewMemoryRunStore(),
	}
	if user != nil {
		_, err := env.client.Seed(backend.EntityUser, user)
		require.NoError(t, err)
	}
	env.workflow = NewWorkflow(&WorkflowConfig{
		Backend:      env.client,
		Sessions:     env.sessions,
		Mirror:       env.mirror,
		Producer:     env.producer,
		Runs:         env.runs,
		PollAttempts: 3,
		PollInterval: time.Millisecond,
		Topic:        "member.provisioned",
	})
	return env
}

func testUser() *domain.User {
	return &domain.User{
		ID:               testUserID,
		Email:            "member@example.org",
		FirstName:        "Ada",
		LastName:         "Lovelace",
		MembershipTier:   domain.TierAssociate,
		MembershipStatus: domain.MembershipStatusActive,
	}
}

func (env *testEnv) user(t *testing.T) *domain.User {
	t.Helper()
	var u domain.User
	require.NoError(t, env.client.Record(backend.EntityUser, testUserID, &u))
	return &u
}

func (env *testEnv) emailsWithTemplate(template string) int {
	n := 0
	for _, c := range env.client.Calls(backend.FunctionSendEmail) {
		if c.Payload["template"] == template {
			n++
		}
	}
	return n
}

func (env *testEnv) run(t *testing.T, req *Request) *Result {
	t.Helper()
	if req.SessionID == "" {
		req.SessionID = testSessionID
	}
	if req.UserID == "" {
		req.UserID = testUserID
	}
	res := env.workflow.Execute(context.Background(), req)
	env.wait(t)
	return res
}

// wait blocks until every dispatched step has settled
func (env *testEnv) wait(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, env.workflow.Wait(ctx))
}

// stored returns the run as persisted once dispatched steps have settled
func (env *testEnv) stored(t *testing.T, res *Result) *Run {
	t.Helper()
	run, err := env.runs.GetRun(context.Background(), res.RunID)
	require.NoError(t, err)
	return run
}

func outcome(t *testing.T, r *Run, step string) StepResult {
	t.Helper()
	res, ok := r.Step(step)
	require.True(t, ok, "step %s did not run", step)
	return res
}

func TestExecute_HappyPath(t *testing.T) {
	env := newTestEnv(t, testUser())

	res := env.run(t, &Request{Trigger: TriggerOnboarding})

	assert.Equal(t, "/dashboard", res.RedirectURL)
	assert.Equal(t, RunStateCompleted, res.Run.State)
	assert.Empty(t, res.Run.FailedSteps())
	assert.Equal(t, 1, res.Run.PollAttempts)

	u := env.user(t)
	assert.True(t, u.OnboardingCompleted)
	assert.True(t, u.WelcomeEmailSent)

	assert.Len(t, env.client.Calls(backend.FunctionSyncToCRM), 1)
	mailing := env.client.Calls(backend.FunctionAddToMailingListGroup)
	require.Len(t, mailing, 1)
	assert.Equal(t, "associate-members", mailing[0].Payload["group"])
	assert.Equal(t, 1, env.emailsWithTemplate(TemplateWelcome))

	var creds []domain.DigitalCredential
	require.NoError(t, env.client.Records(backend.EntityDigitalCredential, &creds))
	require.Len(t, creds, 1)
	assert.Equal(t, fmt.Sprintf("SG-%d-USER0001", time.Now().UTC().Year()), creds[0].CredentialNumber)

	assert.NotNil(t, env.mirror.Member(testUserID))

	msgs := env.producer.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "member.provisioned", msgs[0].Topic)
	assert.Equal(t, testUserID, msgs[0].Key)
	evt, ok := msgs[0].Value.(*MemberProvisionedEvent)
	require.True(t, ok)
	assert.Equal(t, "member@example.org", evt.Email)
	assert.Equal(t, RunStateCompleted, evt.State)

	stored, err := env.runs.GetRun(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Equal(t, RunStateCompleted, stored.State)
	assert.NotNil(t, stored.CompletedAt)
	assert.Equal(t, "/dashboard", stored.RedirectURL)

	_, eventBranch := res.Run.Step(StepEventLookup)
	assert.False(t, eventBranch)
}

func TestExecute_RedirectReachedForEveryEnrichmentFailure(t *testing.T) {
	failures := []struct {
		name  string
		apply func(env *testEnv)
	}{
		{StepCRMSync, func(env *testEnv) { env.client.FailFunction(backend.FunctionSyncToCRM, ErrMockFailure) }},
		{StepMailingList, func(env *testEnv) { env.client.FailFunction(backend.FunctionAddToMailingListGroup, ErrMockFailure) }},
		{StepMemberMirror, func(env *testEnv) { env.mirror.ShouldFail = true }},
		{StepCredential, func(env *testEnv) {
			env.client.FailOn(backend.OpCreate, backend.EntityDigitalCredential, ErrMockFailure)
		}},
		{StepWelcomeEmail, func(env *testEnv) { env.client.FailFunction(backend.FunctionSendEmail, ErrMockFailure) }},
	}

	for mask := 0; mask < 1<<len(failures); mask++ {
		var expected []string
		for i, f := range failures {
			if mask&(1<<i) != 0 {
				expected = append(expected, f.name)
			}
		}

		t.Run(fmt.Sprintf("failing=%v", expected), func(t *testing.T) {
			env := newTestEnv(t, testUser())
			for i, f := range failures {
				if mask&(1<<i) != 0 {
					f.apply(env)
				}
			}
			env.producer.ShouldFail = mask%2 == 1

			res := env.run(t, &Request{Trigger: TriggerOnboarding})

			assert.Equal(t, "/dashboard", res.RedirectURL)
			assert.Equal(t, RunStateCompleted, res.Run.State)
			assert.True(t, env.user(t).OnboardingCompleted)
			assert.ElementsMatch(t, expected, env.stored(t, res).FailedSteps())
		})
	}
}

func TestExecute_WelcomeEmailSentAtMostOnce(t *testing.T) {
	t.Run("profile flag from a previous run", func(t *testing.T) {
		env := newTestEnv(t, testUser())

		env.run(t, &Request{Trigger: TriggerOnboarding})
		require.Equal(t, 1, env.emailsWithTemplate(TemplateWelcome))

		res := env.run(t, &Request{Trigger: TriggerOnboarding, SessionID: "another-session"})

		assert.Equal(t, 1, env.emailsWithTemplate(TemplateWelcome))
		assert.Equal(t, OutcomeSkipped, outcome(t, res.Run, StepWelcomeEmail).Outcome)
	})

	t.Run("session flag only", func(t *testing.T) {
		env := newTestEnv(t, testUser())
		require.NoError(t, env.sessions.Set(context.Background(), testSessionID, session.KeyWelcomeEmailSent, "true"))

		res := env.run(t, &Request{Trigger: TriggerOnboarding})

		assert.Zero(t, len(env.client.Calls(backend.FunctionSendEmail)))
		assert.Equal(t, "already sent (session)", outcome(t, res.Run, StepWelcomeEmail).Detail)
	})

	t.Run("send already in flight", func(t *testing.T) {
		env := newTestEnv(t, testUser())
		require.True(t, env.workflow.inflight.acquire(testUserID))

		res := env.run(t, &Request{Trigger: TriggerOnboarding})

		assert.Zero(t, env.emailsWithTemplate(TemplateWelcome))
		assert.Equal(t, OutcomeSkipped, outcome(t, res.Run, StepWelcomeEmail).Outcome)
		env.workflow.inflight.release(testUserID)
	})

	t.Run("concurrent runs", func(t *testing.T) {
		env := newTestEnv(t, testUser())
		started := make(chan struct{})
		release := make(chan struct{})
		var once sync.Once
		env.client.HandleFunction(backend.FunctionSendEmail, func(payload map[string]interface{}) (interface{}, error) {
			if payload["template"] == TemplateWelcome {
				once.Do(func() { close(started) })
				<-release
			}
			return map[string]interface{}{"success": true}, nil
		})

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			env.workflow.Execute(context.Background(), &Request{UserID: testUserID, SessionID: "a", Trigger: TriggerOnboarding})
		}()
		<-started

		// the first run is blocked inside the send
		res := env.run(t, &Request{Trigger: TriggerOnboarding, SessionID: "b"})
		close(release)
		wg.Wait()
		env.wait(t)

		assert.Equal(t, "send already in flight", outcome(t, res.Run, StepWelcomeEmail).Detail)
		assert.Equal(t, 1, env.emailsWithTemplate(TemplateWelcome))
	})

	t.Run("profile flag written after this run loaded it", func(t *testing.T) {
		env := newTestEnv(t, testUser())
		held := make(chan struct{})
		release := make(chan struct{})
		var upserts int32
		env.mirror.OnUpsert = func() {
			if atomic.AddInt32(&upserts, 1) == 1 {
				close(held)
				<-release
			}
		}

		done := make(chan *Result, 1)
		go func() {
			done <- env.workflow.Execute(context.Background(), &Request{UserID: testUserID, SessionID: "a", Trigger: TriggerOnboarding})
		}()
		<-held

		// the first run loaded the profile before this one sent the email
		other := env.run(t, &Request{Trigger: TriggerOnboarding, SessionID: "b"})
		require.Equal(t, "sent", outcome(t, other.Run, StepWelcomeEmail).Detail)
		close(release)

		var res *Result
		select {
		case res = <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("held run did not finish")
		}
		env.wait(t)

		welcome := outcome(t, res.Run, StepWelcomeEmail)
		assert.Equal(t, OutcomeSkipped, welcome.Outcome)
		assert.Equal(t, "already sent (profile)", welcome.Detail)
		assert.Equal(t, 1, env.emailsWithTemplate(TemplateWelcome))
	})

	t.Run("session flag written after this run loaded it", func(t *testing.T) {
		env := newTestEnv(t, testUser())
		env.mirror.OnUpsert = func() {
			require.NoError(t, env.sessions.Set(context.Background(), testSessionID, session.KeyWelcomeEmailSent, "true"))
		}

		res := env.run(t, &Request{Trigger: TriggerOnboarding})

		assert.Zero(t, env.emailsWithTemplate(TemplateWelcome))
		assert.Equal(t, "already sent (session)", outcome(t, res.Run, StepWelcomeEmail).Detail)
	})

	t.Run("profile unreadable at send time", func(t *testing.T) {
		env := newTestEnv(t, testUser())
		env.mirror.OnUpsert = func() {
			env.client.FailOn(backend.OpGet, backend.EntityUser, ErrMockFailure)
		}

		res := env.run(t, &Request{Trigger: TriggerOnboarding})

		welcome := outcome(t, res.Run, StepWelcomeEmail)
		assert.Equal(t, OutcomeFailed, welcome.Outcome)
		assert.Contains(t, welcome.Detail, "failed to confirm welcome flag")
		assert.Zero(t, env.emailsWithTemplate(TemplateWelcome))
	})
}

func TestExecute_CRMAndMailingListDoNotHoldRedirect(t *testing.T) {
	env := newTestEnv(t, testUser())
	release := make(chan struct{})
	blocking := func(map[string]interface{}) (interface{}, error) {
		<-release
		return map[string]interface{}{"success": true}, nil
	}
	env.client.HandleFunction(backend.FunctionSyncToCRM, blocking)
	env.client.HandleFunction(backend.FunctionAddToMailingListGroup, blocking)

	done := make(chan *Result, 1)
	go func() {
		done <- env.workflow.Execute(context.Background(), &Request{UserID: testUserID, SessionID: testSessionID, Trigger: TriggerOnboarding})
	}()

	var res *Result
	select {
	case res = <-done:
	case <-time.After(5 * time.Second):
		close(release)
		t.Fatal("redirect waited for the CRM and mailing list calls")
	}

	assert.Equal(t, "/dashboard", res.RedirectURL)
	assert.Equal(t, OutcomeDispatched, outcome(t, res.Run, StepCRMSync).Outcome)
	assert.Equal(t, OutcomeDispatched, outcome(t, res.Run, StepMailingList).Outcome)
	assert.Equal(t, OutcomeSucceeded, outcome(t, res.Run, StepWelcomeEmail).Outcome)
	assert.True(t, env.user(t).OnboardingCompleted)

	close(release)
	env.wait(t)

	stored := env.stored(t, res)
	assert.Equal(t, OutcomeSucceeded, outcome(t, stored, StepCRMSync).Outcome)
	mailing := outcome(t, stored, StepMailingList)
	assert.Equal(t, OutcomeSucceeded, mailing.Outcome)
	assert.Equal(t, "group associate-members", mailing.Detail)
	assert.Equal(t, RunStateCompleted, stored.State)
	assert.Equal(t, OutcomeDispatched, outcome(t, res.Run, StepCRMSync).Outcome)
}

func TestExecute_DispatchedStepsOutliveRequestContext(t *testing.T) {
	env := newTestEnv(t, testUser())
	ctx, cancel := context.WithCancel(context.Background())
	env.client.HandleFunction(backend.FunctionSyncToCRM, func(map[string]interface{}) (interface{}, error) {
		cancel()
		return map[string]interface{}{"success": true}, nil
	})

	res := env.workflow.Execute(ctx, &Request{UserID: testUserID, SessionID: testSessionID, Trigger: TriggerOnboarding})
	env.wait(t)

	stored := env.stored(t, res)
	assert.Equal(t, OutcomeSucceeded, outcome(t, stored, StepCRMSync).Outcome)
	assert.Equal(t, OutcomeSucceeded, outcome(t, stored, StepMailingList).Outcome)
	assert.Len(t, env.client.Calls(backend.FunctionAddToMailingListGroup), 1)
}

func TestExecute_PollExhaustionProceeds(t *testing.T) {
	u := testUser()
	u.MembershipStatus = domain.MembershipStatusPending
	env := newTestEnv(t, u)

	res := env.run(t, &Request{Trigger: TriggerPaymentReturn})

	assert.Equal(t, 3, res.Run.PollAttempts)
	poll := outcome(t, res.Run, StepPollMembership)
	assert.Equal(t, OutcomeFailed, poll.Outcome)
	assert.Contains(t, poll.Detail, ErrMembershipNotActive.Error())

	assert.Equal(t, OutcomeSucceeded, outcome(t, env.stored(t, res), StepCRMSync).Outcome)
	assert.Equal(t, "/dashboard?payment=success", res.RedirectURL)
	assert.True(t, env.user(t).OnboardingCompleted)
}

func TestExecute_PollSeesWebhookActivation(t *testing.T) {
	u := testUser()
	u.MembershipStatus = domain.MembershipStatusPending
	env := newTestEnv(t, u)
	env.client.BeforeGet = func(entity, id string, previous int) {
		if entity == backend.EntityUser && previous == 1 {
			_ = env.client.Update(context.Background(), entity, id, map[string]interface{}{"membership_status": "active"}, nil)
		}
	}

	res := env.run(t, &Request{Trigger: TriggerPaymentReturn})

	assert.Equal(t, 2, res.Run.PollAttempts)
	assert.Equal(t, OutcomeSucceeded, outcome(t, res.Run, StepPollMembership).Outcome)
}

func TestExecute_PollHonoursCancellation(t *testing.T) {
	u := testUser()
	u.MembershipStatus = domain.MembershipStatusPending
	env := newTestEnv(t, u)
	env.workflow.config.PollInterval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan *Result, 1)
	go func() {
		done <- env.workflow.Execute(ctx, &Request{UserID: testUserID, SessionID: testSessionID, Trigger: TriggerPaymentReturn})
	}()

	select {
	case res := <-done:
		assert.Equal(t, 1, res.Run.PollAttempts)
		assert.Contains(t, outcome(t, res.Run, StepPollMembership).Detail, context.Canceled.Error())
		assert.Equal(t, "/dashboard?payment=success", res.RedirectURL)
		assert.True(t, env.user(t).OnboardingCompleted)
	case <-time.After(5 * time.Second):
		t.Fatal("workflow did not stop polling after cancellation")
	}
}

func TestExecute_FinalizeFallback(t *testing.T) {
	env := newTestEnv(t, testUser())
	env.client.FailOn(backend.OpUpdateMe, backend.EntityUser, ErrMockFailure)

	res := env.run(t, &Request{Trigger: TriggerOnboarding})

	finalize := outcome(t, res.Run, StepFinalize)
	assert.Equal(t, OutcomeSucceeded, finalize.Outcome)
	assert.Equal(t, "via fallback", finalize.Detail)
	u := env.user(t)
	assert.True(t, u.OnboardingCompleted)
	assert.True(t, u.WelcomeEmailSent)
}

func TestExecute_TotalBackendFailureStillRedirects(t *testing.T) {
	env := newTestEnv(t, testUser())
	for _, op := range []string{backend.OpGet, backend.OpList, backend.OpCreate, backend.OpUpdate, backend.OpUpdateMe} {
		env.client.FailOn(op, backend.EntityUser, ErrMockFailure)
	}

	res := env.run(t, &Request{Trigger: TriggerPaymentReturn})

	assert.Equal(t, "/dashboard?payment=success", res.RedirectURL)
	assert.Equal(t, RunStateCompleted, res.Run.State)
	assert.Equal(t, OutcomeSkipped, outcome(t, res.Run, StepCRMSync).Outcome)
	assert.Equal(t, OutcomeSkipped, outcome(t, res.Run, StepWelcomeEmail).Outcome)
	assert.Equal(t, OutcomeFailed, outcome(t, res.Run, StepFinalize).Outcome)
	assert.Empty(t, env.client.Calls(""))
}

func TestExecute_CatchAllForcesCompletion(t *testing.T) {
	env := newTestEnv(t, testUser())
	env.workflow.config.Sessions = panickingSessionStore{}

	var res *Result
	require.NotPanics(t, func() {
		res = env.run(t, &Request{Trigger: TriggerOnboarding})
	})

	assert.Equal(t, RunStateRecovered, res.Run.State)
	assert.Equal(t, "/dashboard", res.RedirectURL)
	assert.Contains(t, res.Run.ErrorMessage, "session backend exploded")
	assert.Equal(t, "forced via primary", outcome(t, res.Run, StepFinalize).Detail)
	assert.True(t, env.user(t).OnboardingCompleted)

	stored, err := env.runs.GetRun(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Equal(t, RunStateRecovered, stored.State)
}

func seedEvent(t *testing.T, env *testEnv, meetingID string) {
	t.Helper()
	_, err := env.client.Seed(backend.EntityEvent, &domain.Event{
		ID:                "ev-1",
		Title:             "Safer Recruitment Briefing",
		StartsAt:          time.Date(2026, 11, 3, 10, 0, 0, 0, time.UTC),
		MeetingProviderID: meetingID,
	})
	require.NoError(t, err)
	require.NoError(t, env.sessions.Set(context.Background(), testSessionID, session.KeyEventRedirectURL, "/events/register?event_id=ev-1"))
}

func (env *testEnv) signups(t *testing.T) []domain.EventSignup {
	t.Helper()
	var signups []domain.EventSignup
	require.NoError(t, env.client.Records(backend.EntityEventSignup, &signups))
	return signups
}

func TestExecute_EventSignupCarriesJoinURL(t *testing.T) {
	env := newTestEnv(t, testUser())
	seedEvent(t, env, "web-123")
	env.client.HandleFunction(backend.FunctionRegisterZoomAttendee, func(payload map[string]interface{}) (interface{}, error) {
		assert.Equal(t, "web-123", payload["webinar_id"])
		assert.Equal(t, "member@example.org", payload["email"])
		return map[string]interface{}{"success": true, "join_url": "https://zoom.example/j/123"}, nil
	})

	res := env.run(t, &Request{Trigger: TriggerOnboarding})

	signups := env.signups(t)
	require.Len(t, signups, 1)
	require.NotNil(t, signups[0].JoinURL)
	assert.Equal(t, "https://zoom.example/j/123", *signups[0].JoinURL)
	assert.Equal(t, "ev-1", signups[0].EventID)
	assert.Equal(t, testUserID, signups[0].UserID)

	require.Equal(t, 1, env.emailsWithTemplate(TemplateEventConfirmation))
	for _, c := range env.client.Calls(backend.FunctionSendEmail) {
		if c.Payload["template"] == TemplateEventConfirmation {
			data := c.Payload["data"].(map[string]interface{})
			assert.Equal(t, "https://zoom.example/j/123", data["join_url"])
		}
	}

	state, err := env.sessions.Get(context.Background(), testSessionID)
	require.NoError(t, err)
	assert.Empty(t, state.EventRedirectURL)
	assert.Equal(t, "/dashboard", res.RedirectURL)
}

func TestExecute_EventRegistrationFailureContinues(t *testing.T) {
	tests := []struct {
		name    string
		handler backend.FunctionHandler
	}{
		{"success flag false", func(map[string]interface{}) (interface{}, error) {
			return map[string]interface{}{"success": false, "error": "webinar full"}, nil
		}},
		{"call error", func(map[string]interface{}) (interface{}, error) {
			return nil, errors.New("provider timeout")
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, testUser())
			seedEvent(t, env, "web-123")
			env.client.HandleFunction(backend.FunctionRegisterZoomAttendee, tt.handler)

			res := env.run(t, &Request{Trigger: TriggerOnboarding})

			assert.Equal(t, OutcomeFailed, outcome(t, res.Run, StepEventRegistration).Outcome)
			signups := env.signups(t)
			require.Len(t, signups, 1)
			assert.Nil(t, signups[0].JoinURL)
			assert.Equal(t, OutcomeSucceeded, outcome(t, res.Run, StepEventConfirmation).Outcome)
			assert.Equal(t, 1, env.emailsWithTemplate(TemplateEventConfirmation))
			assert.True(t, env.user(t).OnboardingCompleted)
		})
	}
}

func TestExecute_InPersonEventSkipsRegistration(t *testing.T) {
	env := newTestEnv(t, testUser())
	seedEvent(t, env, "")

	res := env.run(t, &Request{Trigger: TriggerOnboarding})

	assert.Equal(t, OutcomeSkipped, outcome(t, res.Run, StepEventRegistration).Outcome)
	assert.Empty(t, env.client.Calls(backend.FunctionRegisterZoomAttendee))
	require.Len(t, env.signups(t), 1)
}

func TestExecute_MissingEventStillCreatesSignup(t *testing.T) {
	env := newTestEnv(t, testUser())
	require.NoError(t, env.sessions.Set(context.Background(), testSessionID, session.KeyEventRedirectURL, "/events?eventId=ghost"))

	res := env.run(t, &Request{Trigger: TriggerOnboarding})

	assert.Equal(t, OutcomeFailed, outcome(t, res.Run, StepEventLookup).Outcome)
	assert.Equal(t, OutcomeSkipped, outcome(t, res.Run, StepEventConfirmation).Outcome)
	signups := env.signups(t)
	require.Len(t, signups, 1)
	assert.Equal(t, "ghost", signups[0].EventID)
}

func TestExecute_InviteAndPaymentCarriedToRedirect(t *testing.T) {
	env := newTestEnv(t, testUser())
	require.NoError(t, env.sessions.Set(context.Background(), testSessionID, session.KeyInviteID, "inv-42"))

	res := env.run(t, &Request{Trigger: TriggerPaymentReturn})

	assert.Equal(t, "/dashboard?invite=inv-42&payment=success", res.RedirectURL)
}

func TestExecute_CredentialIssuedOnce(t *testing.T) {
	env := newTestEnv(t, testUser())

	env.run(t, &Request{Trigger: TriggerOnboarding})
	res := env.run(t, &Request{Trigger: TriggerOnboarding})

	assert.Equal(t, OutcomeSkipped, outcome(t, res.Run, StepCredential).Outcome)
	var creds []domain.DigitalCredential
	require.NoError(t, env.client.Records(backend.EntityDigitalCredential, &creds))
	assert.Len(t, creds, 1)

	runs, total, err := env.workflow.ListRuns(context.Background(), testUserID, 10, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
	assert.Equal(t, int64(2), total)
}

func TestExecute_EventPayloadEncodes(t *testing.T) {
	env := newTestEnv(t, testUser())
	env.run(t, &Request{Trigger: TriggerOnboarding})

	raw, err := json.Marshal(env.producer.Messages()[0].Value)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"event_type":"member.provisioned"`)
	assert.Contains(t, string(raw), `"failed_steps":[]`)
}

func TestBuildRedirect(t *testing.T) {
	tests := []struct {
		name     string
		next     string
		invite   string
		payment  bool
		expected string
	}{
		{"plain", "/dashboard", "", false, "/dashboard"},
		{"invite", "/dashboard", "inv-1", false, "/dashboard?invite=inv-1"},
		{"payment", "/dashboard", "", true, "/dashboard?payment=success"},
		{"both", "/dashboard", "inv-1", true, "/dashboard?invite=inv-1&payment=success"},
		{"existing query kept", "/welcome?tour=1", "", true, "/welcome?payment=success&tour=1"},
		{"empty next page", "", "", false, "/dashboard"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, buildRedirect(tt.next, tt.invite, tt.payment))
		})
	}
}

func TestEventIDFromRedirect(t *testing.T) {
	assert.Equal(t, "e1", eventIDFromRedirect("/events/register?event_id=e1"))
	assert.Equal(t, "e2", eventIDFromRedirect("https://app.example.org/events?eventId=e2"))
	assert.Equal(t, "e3", eventIDFromRedirect("/x?event_id=e3&eventId=other"))
	assert.Empty(t, eventIDFromRedirect("/events"))
	assert.Empty(t, eventIDFromRedirect("%zz"))
}

func TestMailingListGroup(t *testing.T) {
	assert.Equal(t, "fellows", mailingListGroup(domain.TierFellow))
	assert.Equal(t, "full-members", mailingListGroup(domain.TierFull))
	assert.Equal(t, "associate-members", mailingListGroup(domain.TierAssociate))
	assert.Equal(t, "members", mailingListGroup(""))
}
