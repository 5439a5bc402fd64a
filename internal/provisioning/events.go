package provisioning

import "time"

// EventTypeMemberProvisioned is published once per finished run
const EventTypeMemberProvisioned = "member.provisioned"

// MemberProvisionedEvent is the Kafka payload announcing a finished run
type MemberProvisionedEvent struct {
	EventType      string    `json:"event_type"`
	RunID          string    `json:"run_id"`
	UserID         string    `json:"user_id"`
	Email          string    `json:"email,omitempty"`
	MembershipTier string    `json:"membership_tier,omitempty"`
	Trigger        Trigger   `json:"trigger"`
	State          RunState  `json:"state"`
	FailedSteps    []string  `json:"failed_steps"`
	RedirectURL    string    `json:"redirect_url"`
	OccurredAt     time.Time `json:"occurred_at"`
}
