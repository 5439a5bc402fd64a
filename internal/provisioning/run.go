package provisioning

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RunState is the lifecycle state of a provisioning run
type RunState string

const (
	RunStateRunning   RunState = "RUNNING"
	RunStateCompleted RunState = "COMPLETED"
	// RunStateRecovered means the sequence panicked and the catch-all forced completion
	RunStateRecovered RunState = "RECOVERED"
)

var (
	ErrInvalidRunTransition = errors.New("invalid run state transition")
	ErrRunNotFound          = errors.New("provisioning run not found")
	ErrRunExists            = errors.New("provisioning run already exists")
)

var validRunTransitions = map[RunState][]RunState{
	RunStateRunning:   {RunStateCompleted, RunStateRecovered},
	RunStateCompleted: {},
	RunStateRecovered: {},
}

// IsTerminal returns true if no further transitions are allowed
func (s RunState) IsTerminal() bool {
	return s == RunStateCompleted || s == RunStateRecovered
}

// CanTransitionTo returns true if moving to target is allowed
func (s RunState) CanTransitionTo(target RunState) bool {
	for _, allowed := range validRunTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// Trigger identifies what started a run
type Trigger string

const (
	TriggerOnboarding    Trigger = "onboarding"
	TriggerPaymentReturn Trigger = "payment_return"
)

// StepOutcome is the result of one best-effort step
type StepOutcome string

const (
	OutcomeSucceeded StepOutcome = "succeeded"
	OutcomeFailed    StepOutcome = "failed"
	OutcomeSkipped   StepOutcome = "skipped"
	// OutcomeDispatched marks a fire-and-forget step still running when the redirect was returned
	OutcomeDispatched StepOutcome = "dispatched"
)

// Step names, in execution order
const (
	StepPollMembership    = "poll_membership"
	StepCRMSync           = "crm_sync"
	StepMailingList       = "mailing_list"
	StepMemberMirror      = "member_mirror"
	StepCredential        = "digital_credential"
	StepEventLookup       = "event_lookup"
	StepEventRegistration = "event_registration"
	StepEventSignup       = "event_signup"
	StepEventConfirmation = "event_confirmation_email"
	StepWelcomeEmail      = "welcome_email"
	StepProfileRefresh    = "profile_refresh"
	StepFinalize          = "finalize"
)

// StepResult records the outcome of one step
type StepResult struct {
	Name     string        `json:"name"`
	Outcome  StepOutcome   `json:"outcome"`
	Detail   string        `json:"detail,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Run is the local record of one workflow execution
type Run struct {
	ID           string       `json:"id"`
	UserID       string       `json:"user_id"`
	SessionID    string       `json:"session_id"`
	Trigger      Trigger      `json:"trigger"`
	State        RunState     `json:"state"`
	Steps        []StepResult `json:"steps"`
	PollAttempts int          `json:"poll_attempts"`
	RedirectURL  string       `json:"redirect_url,omitempty"`
	ErrorMessage string       `json:"error_message,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
	CompletedAt  *time.Time   `json:"completed_at,omitempty"`
}

func newRun(userID, sessionID string, trigger Trigger) *Run {
	now := time.Now()
	return &Run{
		ID:        uuid.New().String(),
		UserID:    userID,
		SessionID: sessionID,
		Trigger:   trigger,
		State:     RunStateRunning,
		Steps:     make([]StepResult, 0, 12),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Step returns the recorded result of a step, if it ran
func (r *Run) Step(name string) (StepResult, bool) {
	for _, s := range r.Steps {
		if s.Name == name {
			return s, true
		}
	}
	return StepResult{}, false
}

// FailedSteps returns the names of steps that failed
func (r *Run) FailedSteps() []string {
	var failed []string
	for _, s := range r.Steps {
		if s.Outcome == OutcomeFailed {
			failed = append(failed, s.Name)
		}
	}
	return failed
}

func (r *Run) record(result StepResult) {
	r.Steps = append(r.Steps, result)
	r.UpdatedAt = time.Now()
}

// resolve replaces the dispatched entry for result.Name with its final outcome
func (r *Run) resolve(result StepResult) {
	for i := range r.Steps {
		if r.Steps[i].Name == result.Name && r.Steps[i].Outcome == OutcomeDispatched {
			r.Steps[i] = result
			r.UpdatedAt = time.Now()
			return
		}
	}
	r.record(result)
}

func (r *Run) transitionTo(state RunState) error {
	if !r.State.CanTransitionTo(state) {
		return fmt.Errorf("%w: cannot transition from %s to %s", ErrInvalidRunTransition, r.State, state)
	}
	now := time.Now()
	r.State = state
	r.UpdatedAt = now
	if state.IsTerminal() {
		r.CompletedAt = &now
	}
	return nil
}

// RunStore persists provisioning runs
type RunStore interface {
	// SaveRun persists a new run
	SaveRun(ctx context.Context, run *Run) error
	// UpdateRun replaces an existing run
	UpdateRun(ctx context.Context, run *Run) error
	// GetRun retrieves a run by id
	GetRun(ctx context.Context, id string) (*Run, error)
	// ListRunsByUser returns up to limit of a user's runs after offset, newest
	// first, and how many runs the user has in total
	ListRunsByUser(ctx context.Context, userID string, limit, offset int) ([]*Run, int64, error)
}
