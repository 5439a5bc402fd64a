package dto

import (
	"strings"

	"github.com/prohmpiriya/safeguard-membership/internal/domain"
)

// CreateInviteRequest invites an email address to an organisation
type CreateInviteRequest struct {
	OrganisationID string `json:"organisation_id"`
	Email          string `json:"email"`
	InvitedBy      string `json:"-"` // Set from context
}

// Validate validates the CreateInviteRequest
func (r *CreateInviteRequest) Validate() (bool, string) {
	if r.OrganisationID == "" {
		return false, "Organisation ID is required"
	}
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	if r.Email == "" {
		return false, "Email is required"
	}
	if !strings.Contains(r.Email, "@") {
		return false, "Email is invalid"
	}
	return true, ""
}

// UpdateApplicationStatusRequest sets the review status of a fellowship application
type UpdateApplicationStatusRequest struct {
	Status      string `json:"status"`
	ReviewNotes string `json:"review_notes,omitempty"`
}

// Validate validates the UpdateApplicationStatusRequest
func (r *UpdateApplicationStatusRequest) Validate() (bool, string) {
	if r.Status == "" {
		return false, "Status is required"
	}
	if !domain.IsValidApplicationStatus(r.Status) {
		return false, "Status must be one of submitted, under_review, approved, rejected"
	}
	return true, ""
}

// ApplicationListFilter represents filters for listing fellowship applications
type ApplicationListFilter struct {
	Status string `form:"status"`
	Limit  int    `form:"limit"`
}

// SetDefaults sets default values for pagination
func (f *ApplicationListFilter) SetDefaults() {
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
}

// CreateNewsRequest drafts a news item
type CreateNewsRequest struct {
	Title    string `json:"title"`
	Summary  string `json:"summary"`
	Body     string `json:"body"`
	Category string `json:"category"`
	Featured bool   `json:"featured"`
}

// Validate validates the CreateNewsRequest
func (r *CreateNewsRequest) Validate() (bool, string) {
	if strings.TrimSpace(r.Title) == "" {
		return false, "Title is required"
	}
	if strings.TrimSpace(r.Category) == "" {
		return false, "Category is required"
	}
	return true, ""
}
