package provisioning

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/prohmpiriya/safeguard-membership/internal/backend"
	"github.com/prohmpiriya/safeguard-membership/internal/domain"
	"github.com/prohmpiriya/safeguard-membership/internal/session"
	"github.com/prohmpiriya/safeguard-membership/pkg/kafka"
	"github.com/prohmpiriya/safeguard-membership/pkg/logger"
	"github.com/prohmpiriya/safeguard-membership/pkg/telemetry"
)

const (
	// DefaultNextPage is where users land once provisioning finishes
	DefaultNextPage = "/dashboard"

	defaultPollAttempts = 10
	defaultPollInterval = 2 * time.Second
	defaultStepTimeout  = 15 * time.Second
	finalizeTimeout     = 10 * time.Second
)

var (
	ErrMembershipNotActive = errors.New("membership not active")
	ErrProfileUnavailable  = errors.New("profile unavailable")
)

// WorkflowConfig holds the collaborators and settings of the workflow
type WorkflowConfig struct {
	Backend  backend.Client
	Sessions session.Store
	Mirror   MemberMirror
	Producer kafka.Producer
	Runs     RunStore
	Logger   *logger.Logger

	// PollAttempts bounds the wait for the payment webhook (default: 10)
	PollAttempts int
	// PollInterval is the delay between profile polls (default: 2 seconds)
	PollInterval time.Duration
	// NextPage is the redirect target (default: /dashboard)
	NextPage string
	// StepTimeout bounds each remote step (default: 15 seconds)
	StepTimeout time.Duration
	// Topic receives member.provisioned events; empty uses the producer default
	Topic string
}

// Workflow runs the post-onboarding account provisioning sequence
type Workflow struct {
	config   *WorkflowConfig
	inflight *inflightGuard
	metrics  *workflowMetrics
	tasks    *tracker
	now      func() time.Time
}

// NewWorkflow creates a workflow, filling unset collaborators with in-memory or no-op ones
func NewWorkflow(config *WorkflowConfig) *Workflow {
	if config.PollAttempts <= 0 {
		config.PollAttempts = defaultPollAttempts
	}
	if config.PollInterval <= 0 {
		config.PollInterval = defaultPollInterval
	}
	if config.NextPage == "" {
		config.NextPage = DefaultNextPage
	}
	if config.StepTimeout <= 0 {
		config.StepTimeout = defaultStepTimeout
	}
	if config.Sessions == nil {
		config.Sessions = session.NewMemoryStore(24 * time.Hour)
	}
	if config.Mirror == nil {
		config.Mirror = NoopMemberMirror{}
	}
	if config.Producer == nil {
		config.Producer = kafka.NewNoopProducer()
	}
	if config.Runs == nil {
		config.Runs = NewMemoryRunStore()
	}
	if config.Logger == nil {
		config.Logger = logger.NewNop()
	}

	return &Workflow{
		config:   config,
		inflight: newInflightGuard(),
		metrics:  newWorkflowMetrics(),
		tasks:    newTracker(),
		now:      time.Now,
	}
}

// Request starts one provisioning run
type Request struct {
	UserID    string
	SessionID string
	Trigger   Trigger
}

// Result is what the caller needs to move the user on
type Result struct {
	RunID       string `json:"run_id"`
	RedirectURL string `json:"redirect_url"`
	Run         *Run   `json:"run"`
}

// Execute runs every step and always returns a redirect, whatever the backend does
func (w *Workflow) Execute(ctx context.Context, req *Request) (result *Result) {
	ctx, span := telemetry.StartSpan(ctx, "provisioning.execute")
	defer span.End()
	span.SetAttributes(telemetry.UserIDAttr(req.UserID), telemetry.TriggerAttr(string(req.Trigger)))

	e := &execution{
		w:     w,
		req:   req,
		run:   newRun(req.UserID, req.SessionID, req.Trigger),
		sess:  &session.State{},
		start: time.Now(),
	}
	e.log = w.config.Logger.WithContext(ctx).WithMember(req.UserID).WithFields(
		zap.String("run_id", e.run.ID),
		zap.String("trigger", string(req.Trigger)),
	)

	if err := w.config.Runs.SaveRun(context.WithoutCancel(ctx), e.run); err != nil {
		e.log.Warn("failed to save provisioning run", zap.Error(err))
	}

	defer func() {
		if r := recover(); r != nil {
			e.log.Error("provisioning sequence panicked, forcing completion", zap.Any("panic", r))
			e.run.ErrorMessage = fmt.Sprint(r)
			e.forceComplete(ctx)
			result = e.finish(ctx, RunStateRecovered)
		}
	}()

	e.pollMembership(ctx)
	e.loadSession(ctx)
	e.syncCRM(ctx)
	e.assignMailingList(ctx)
	e.syncMirror(ctx)
	e.issueCredential(ctx)
	if e.sess.EventRedirectURL != "" {
		e.registerForEvent(ctx)
	}
	e.sendWelcomeEmail(ctx)
	e.refreshProfile(ctx)
	e.finalize(ctx)

	return e.finish(ctx, RunStateCompleted)
}

// GetRun returns a stored run
func (w *Workflow) GetRun(ctx context.Context, id string) (*Run, error) {
	return w.config.Runs.GetRun(ctx, id)
}

// ListRuns returns one page of a user's runs, newest first, with the user's total
func (w *Workflow) ListRuns(ctx context.Context, userID string, limit, offset int) ([]*Run, int64, error) {
	return w.config.Runs.ListRunsByUser(ctx, userID, limit, offset)
}

// Wait blocks until dispatched steps have finished and their outcomes are stored
func (w *Workflow) Wait(ctx context.Context) error {
	return w.tasks.wait(ctx)
}

// execution carries the state of a single run through its steps
type execution struct {
	w     *Workflow
	req   *Request
	run   *Run
	log   *logger.Logger
	user  *domain.User
	sess  *session.State
	start time.Time

	dispatched []chan StepResult
}

type skipError struct{ reason string }

func (e *skipError) Error() string { return e.reason }

func skip(reason string) error { return &skipError{reason: reason} }

// step runs fn in isolation: errors and panics are recorded and logged, never propagated
func (e *execution) step(ctx context.Context, name string, timeout time.Duration, fn func(ctx context.Context) (string, error)) StepOutcome {
	result := e.w.runStep(ctx, e.log, name, timeout, fn)
	e.run.record(result)
	return result.Outcome
}

// skipStep records name as skipped without running anything
func (e *execution) skipStep(name, reason string) {
	e.run.record(StepResult{Name: name, Outcome: OutcomeSkipped, Detail: reason})
}

func (w *Workflow) runStep(ctx context.Context, log *logger.Logger, name string, timeout time.Duration, fn func(ctx context.Context) (string, error)) StepResult {
	stepCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	stepCtx, span := telemetry.StartSpan(stepCtx, "provisioning."+name)
	span.SetAttributes(telemetry.StepAttr(name))

	started := time.Now()
	var detail string
	var err error

	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		detail, err = fn(stepCtx)
	}()

	result := StepResult{Name: name, Outcome: OutcomeSucceeded, Detail: detail, Duration: time.Since(started)}
	var skipped *skipError
	switch {
	case errors.As(err, &skipped):
		result.Outcome = OutcomeSkipped
		result.Detail = skipped.reason
		telemetry.EndSpan(span, nil)
	case err != nil:
		result.Outcome = OutcomeFailed
		result.Detail = err.Error()
		log.Warn("provisioning step failed", zap.String("step", name), zap.Error(err))
		w.metrics.stepFailed(ctx, name)
		telemetry.EndSpan(span, err)
	default:
		telemetry.EndSpan(span, nil)
	}
	return result
}

func (e *execution) loadSession(ctx context.Context) {
	if e.req.SessionID == "" {
		return
	}
	state, err := e.w.config.Sessions.Get(ctx, e.req.SessionID)
	if err != nil {
		e.log.Warn("failed to load session flags", zap.Error(err))
		return
	}
	if state != nil {
		e.sess = state
	}
}

// forceComplete is the catch-all write of onboarding_completed
func (e *execution) forceComplete(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("forced completion panicked", zap.Any("panic", r))
		}
	}()

	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	path, err := e.w.markOnboardingComplete(fctx, e.req.UserID)
	result := StepResult{Name: StepFinalize, Outcome: OutcomeSucceeded, Detail: "forced via " + path}
	if err != nil {
		result.Outcome = OutcomeFailed
		result.Detail = err.Error()
		e.log.Error("forced onboarding completion failed", zap.Error(err))
	}
	e.run.record(result)
}

func (e *execution) finish(ctx context.Context, state RunState) *Result {
	ctx = context.WithoutCancel(ctx)

	inviteID := ""
	if e.sess != nil {
		inviteID = e.sess.InviteID
	}
	e.run.RedirectURL = buildRedirect(e.w.config.NextPage, inviteID, e.req.Trigger == TriggerPaymentReturn)

	if err := e.run.transitionTo(state); err != nil {
		e.log.Warn("unexpected run state", zap.Error(err))
	}

	e.publish(ctx)
	e.w.metrics.runFinished(ctx, e.run, time.Since(e.start))

	if err := e.w.config.Runs.UpdateRun(ctx, e.run); err != nil {
		e.log.Warn("failed to update provisioning run", zap.Error(err))
	}

	e.log.Info("provisioning finished",
		zap.String("state", string(e.run.State)),
		zap.Strings("failed_steps", e.run.FailedSteps()),
		zap.Int("dispatched_steps", len(e.dispatched)),
		zap.String("redirect", e.run.RedirectURL),
	)

	result := &Result{RunID: e.run.ID, RedirectURL: e.run.RedirectURL, Run: copyRun(e.run)}
	if len(e.dispatched) > 0 {
		e.w.tasks.Go(func() { e.settle(ctx) })
	}
	return result
}

func (e *execution) publish(ctx context.Context) {
	evt := &MemberProvisionedEvent{
		EventType:   EventTypeMemberProvisioned,
		RunID:       e.run.ID,
		UserID:      e.run.UserID,
		Trigger:     e.run.Trigger,
		State:       e.run.State,
		FailedSteps: e.run.FailedSteps(),
		RedirectURL: e.run.RedirectURL,
		OccurredAt:  e.w.now().UTC(),
	}
	if evt.FailedSteps == nil {
		evt.FailedSteps = []string{}
	}
	if e.user != nil {
		evt.Email = e.user.Email
		evt.MembershipTier = e.user.MembershipTier
	}

	err := e.w.config.Producer.Publish(ctx, &kafka.Message{
		Topic:   e.w.config.Topic,
		Key:     e.run.UserID,
		Value:   evt,
		Headers: map[string]string{"event_type": EventTypeMemberProvisioned},
	})
	if err != nil {
		e.log.Warn("failed to publish member provisioned event", zap.Error(err))
	}
}

// buildRedirect appends invite and payment markers to the next page
func buildRedirect(nextPage, inviteID string, paymentSuccess bool) string {
	u, err := url.Parse(nextPage)
	if err != nil || nextPage == "" {
		u = &url.URL{Path: DefaultNextPage}
	}

	q := u.Query()
	if inviteID != "" {
		q.Set("invite", inviteID)
	}
	if paymentSuccess {
		q.Set("payment", "success")
	}
	u.RawQuery = q.Encode()
	return u.String()
}
