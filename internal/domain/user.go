package domain

import "time"

// User is the member profile held by the backend platform
type User struct {
	ID                     string    `json:"id"`
	Email                  string    `json:"email"`
	FullName               string    `json:"full_name"`
	FirstName              string    `json:"first_name"`
	LastName               string    `json:"last_name"`
	Phone                  string    `json:"phone,omitempty"`
	JobTitle               string    `json:"job_title,omitempty"`
	OrganisationID         string    `json:"organisation_id,omitempty"`
	OrganisationName       string    `json:"organisation_name,omitempty"`
	OrganisationType       string    `json:"organisation_type,omitempty"`
	Sector                 string    `json:"sector,omitempty"`
	Role                   string    `json:"role,omitempty"`
	SafeguardingExperience string    `json:"safeguarding_experience,omitempty"`
	MembershipTier         string    `json:"membership_tier"`   // associate, full, fellow
	MembershipStatus       string    `json:"membership_status"` // pending, active, cancelled
	OnboardingCompleted    bool      `json:"onboarding_completed"`
	WelcomeEmailSent       bool      `json:"welcome_email_sent"`
	OrganisationVerified   bool      `json:"organisation_verified"`
	StripeCustomerID       string    `json:"stripe_customer_id,omitempty"`
	CPDHours               float64   `json:"cpd_hours"`
	CreatedDate            time.Time `json:"created_date"`
}

// Membership tiers
const (
	TierAssociate = "associate"
	TierFull      = "full"
	TierFellow    = "fellow"
)

// Membership statuses
const (
	MembershipStatusPending   = "pending"
	MembershipStatusActive    = "active"
	MembershipStatusCancelled = "cancelled"
)

// IsPaidTier reports whether the tier requires a checkout
func IsPaidTier(tier string) bool {
	return tier == TierFull || tier == TierFellow
}

// IsValidTier reports whether tier is a known membership tier
func IsValidTier(tier string) bool {
	switch tier {
	case TierAssociate, TierFull, TierFellow:
		return true
	}
	return false
}

// DisplayName returns the best available name for greetings
func (u *User) DisplayName() string {
	if u.FullName != "" {
		return u.FullName
	}
	if u.FirstName != "" || u.LastName != "" {
		if u.LastName == "" {
			return u.FirstName
		}
		if u.FirstName == "" {
			return u.LastName
		}
		return u.FirstName + " " + u.LastName
	}
	return u.Email
}

// IsPaidMember reports whether the payment webhook has activated the account
func (u *User) IsPaidMember() bool {
	return u.MembershipStatus == MembershipStatusActive
}

// Organisation is a member organisation
type Organisation struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Domain       string    `json:"domain,omitempty"`
	ContactEmail string    `json:"contact_email,omitempty"`
	Verified     bool      `json:"verified"`
	MemberCount  int       `json:"member_count"`
	CreatedDate  time.Time `json:"created_date"`
}

// OrgInvite invites an email address to join an organisation
type OrgInvite struct {
	ID             string    `json:"id"`
	OrganisationID string    `json:"organisation_id"`
	Email          string    `json:"email"`
	Status         string    `json:"status"` // pending, accepted, revoked
	InvitedBy      string    `json:"invited_by,omitempty"`
	CreatedDate    time.Time `json:"created_date"`
}

// Invite statuses
const (
	InviteStatusPending  = "pending"
	InviteStatusAccepted = "accepted"
	InviteStatusRevoked  = "revoked"
)
