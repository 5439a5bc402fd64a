package dto

import (
	"fmt"
	"strings"

	"github.com/prohmpiriya/safeguard-membership/internal/domain"
)

// OnboardingSteps is the number of wizard steps
const OnboardingSteps = 5

// OtherOption is the sentinel that makes the matching free-text field required
const OtherOption = "other"

// OnboardingForm is the flat state of the five-step onboarding wizard
type OnboardingForm struct {
	// Step 1: personal details
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone,omitempty"`

	// Step 2: organisation
	OrganisationName      string `json:"organisation_name"`
	OrganisationType      string `json:"organisation_type"`
	OrganisationTypeOther string `json:"organisation_type_other,omitempty"`
	Sector                string `json:"sector"`

	// Step 3: role
	JobTitle  string `json:"job_title"`
	Role      string `json:"role"`
	RoleOther string `json:"role_other,omitempty"`

	// Step 4: safeguarding background
	SafeguardingExperience string `json:"safeguarding_experience"`
	Qualifications         string `json:"qualifications,omitempty"`

	// Step 5: membership and policy acceptance
	MembershipTier      string `json:"membership_tier"`
	AcceptCodeOfConduct bool   `json:"accept_code_of_conduct"`
	AcceptPrivacyPolicy bool   `json:"accept_privacy_policy"`
}

type requiredField struct {
	name  string
	label string
	value string
}

func (f *OnboardingForm) requiredFields(step int) []requiredField {
	switch step {
	case 1:
		return []requiredField{
			{"first_name", "First name", f.FirstName},
			{"last_name", "Last name", f.LastName},
			{"email", "Email", f.Email},
		}
	case 2:
		fields := []requiredField{
			{"organisation_name", "Organisation name", f.OrganisationName},
			{"organisation_type", "Organisation type", f.OrganisationType},
			{"sector", "Sector", f.Sector},
		}
		if f.OrganisationType == OtherOption {
			fields = append(fields, requiredField{"organisation_type_other", "Organisation type (other)", f.OrganisationTypeOther})
		}
		return fields
	case 3:
		fields := []requiredField{
			{"job_title", "Job title", f.JobTitle},
			{"role", "Role", f.Role},
		}
		if f.Role == OtherOption {
			fields = append(fields, requiredField{"role_other", "Role (other)", f.RoleOther})
		}
		return fields
	case 4:
		return []requiredField{
			{"safeguarding_experience", "Safeguarding experience", f.SafeguardingExperience},
		}
	case 5:
		return []requiredField{
			{"membership_tier", "Membership tier", f.MembershipTier},
		}
	}
	return nil
}

// MissingFields returns the names of required fields left empty on a step
func (f *OnboardingForm) MissingFields(step int) []string {
	var missing []string
	for _, field := range f.requiredFields(step) {
		if strings.TrimSpace(field.value) == "" {
			missing = append(missing, field.name)
		}
	}
	if step == 5 {
		if !f.AcceptCodeOfConduct {
			missing = append(missing, "accept_code_of_conduct")
		}
		if !f.AcceptPrivacyPolicy {
			missing = append(missing, "accept_privacy_policy")
		}
	}
	return missing
}

// ValidateStep gates forward navigation from one step
func (f *OnboardingForm) ValidateStep(step int) (bool, string) {
	if step < 1 || step > OnboardingSteps {
		return false, fmt.Sprintf("Step must be between 1 and %d", OnboardingSteps)
	}

	for _, field := range f.requiredFields(step) {
		if strings.TrimSpace(field.value) == "" {
			return false, field.label + " is required"
		}
	}

	switch step {
	case 1:
		if !strings.Contains(f.Email, "@") {
			return false, "Email is invalid"
		}
	case 5:
		if !domain.IsValidTier(f.MembershipTier) {
			return false, "Membership tier is invalid"
		}
		if !f.AcceptCodeOfConduct {
			return false, "You must accept the code of conduct"
		}
		if !f.AcceptPrivacyPolicy {
			return false, "You must accept the privacy policy"
		}
	}
	return true, ""
}

// Validate checks every step and reports the first invalid one
func (f *OnboardingForm) Validate() (int, string) {
	for step := 1; step <= OnboardingSteps; step++ {
		if ok, msg := f.ValidateStep(step); !ok {
			return step, msg
		}
	}
	return 0, ""
}

// ProfileFields returns the profile fields persisted on submission. current is
// the stored profile, or nil when it could not be read. A paid tier only marks
// the membership pending for a member known not to be active; otherwise tier
// and status are left for the payment webhook so an active member is never
// downgraded by re-submitting.
func (f *OnboardingForm) ProfileFields(current *domain.User) map[string]interface{} {
	orgType := f.OrganisationType
	if orgType == OtherOption && f.OrganisationTypeOther != "" {
		orgType = f.OrganisationTypeOther
	}
	role := f.Role
	if role == OtherOption && f.RoleOther != "" {
		role = f.RoleOther
	}

	fields := map[string]interface{}{
		"first_name":              strings.TrimSpace(f.FirstName),
		"last_name":               strings.TrimSpace(f.LastName),
		"full_name":               strings.TrimSpace(f.FirstName + " " + f.LastName),
		"organisation_name":       f.OrganisationName,
		"organisation_type":       orgType,
		"sector":                  f.Sector,
		"job_title":               f.JobTitle,
		"role":                    role,
		"safeguarding_experience": f.SafeguardingExperience,
	}
	if f.Phone != "" {
		fields["phone"] = f.Phone
	}

	switch {
	case !domain.IsPaidTier(f.MembershipTier):
		fields["membership_tier"] = f.MembershipTier
		fields["membership_status"] = domain.MembershipStatusActive
	case current != nil && current.MembershipStatus != domain.MembershipStatusActive:
		fields["membership_tier"] = f.MembershipTier
		fields["membership_status"] = domain.MembershipStatusPending
	}
	return fields
}

// ValidateStepResponse reports the outcome of a single-step check
type ValidateStepResponse struct {
	Step          int      `json:"step"`
	Valid         bool     `json:"valid"`
	Message       string   `json:"message,omitempty"`
	MissingFields []string `json:"missing_fields,omitempty"`
	NextStep      int      `json:"next_step,omitempty"`
}

// SubmitOnboardingResponse tells the browser where to go after submission
type SubmitOnboardingResponse struct {
	// RedirectURL is either the hosted checkout page or the provisioning redirect
	RedirectURL string `json:"redirect_url"`
	// CheckoutSessionID is set for paid tiers
	CheckoutSessionID string `json:"checkout_session_id,omitempty"`
	// RunID is set when provisioning ran directly
	RunID string `json:"run_id,omitempty"`
}

// CompleteProvisioningRequest starts provisioning on return from checkout
type CompleteProvisioningRequest struct {
	Payment   string `json:"payment" form:"payment"`
	SessionID string `json:"session_id" form:"session_id"`
}

// SessionFlagsRequest stores the session values read by provisioning
type SessionFlagsRequest struct {
	EventRedirectURL string `json:"event_redirect_url,omitempty"`
	InviteID         string `json:"invite_id,omitempty"`
}

// Validate validates the SessionFlagsRequest
func (r *SessionFlagsRequest) Validate() (bool, string) {
	if r.EventRedirectURL == "" && r.InviteID == "" {
		return false, "At least one of event_redirect_url or invite_id is required"
	}
	return true, ""
}
