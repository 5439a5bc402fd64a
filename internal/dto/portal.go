package dto

import (
	"strings"
	"time"
)

// NewsFilter represents filters for the news hub
type NewsFilter struct {
	Category string `form:"category"`
	Query    string `form:"q"`
	Page     int    `form:"page"`
	PerPage  int    `form:"per_page"`
}

// SetDefaults sets default values for pagination
func (f *NewsFilter) SetDefaults() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PerPage <= 0 {
		f.PerPage = 20
	}
	if f.PerPage > 100 {
		f.PerPage = 100
	}
	f.Category = strings.TrimSpace(f.Category)
	f.Query = strings.TrimSpace(f.Query)
}

// Offset is the number of items before the requested page
func (f *NewsFilter) Offset() int {
	return (f.Page - 1) * f.PerPage
}

// JobsFilter limits the jobs-board teaser
type JobsFilter struct {
	Limit int `form:"limit"`
}

// SetDefaults sets default values for pagination
func (f *JobsFilter) SetDefaults() {
	if f.Limit <= 0 || f.Limit > 50 {
		f.Limit = 3
	}
}

// FellowshipApplicationRequest represents a fellowship application submission
type FellowshipApplicationRequest struct {
	FullName            string `json:"full_name"`
	Email               string `json:"email"`
	CurrentRole         string `json:"current_role"`
	YearsExperience     int    `json:"years_experience"`
	Qualifications      string `json:"qualifications"`
	Contribution        string `json:"contribution"`
	SupportingStatement string `json:"supporting_statement"`
	UserID              string `json:"-"` // Set from context
}

// MinFellowshipExperience is the minimum years of practice for a fellowship
const MinFellowshipExperience = 5

// Validate validates the FellowshipApplicationRequest
func (r *FellowshipApplicationRequest) Validate() (bool, string) {
	if strings.TrimSpace(r.FullName) == "" {
		return false, "Full name is required"
	}
	if !strings.Contains(r.Email, "@") {
		return false, "A valid email is required"
	}
	if strings.TrimSpace(r.CurrentRole) == "" {
		return false, "Current role is required"
	}
	if r.YearsExperience < MinFellowshipExperience {
		return false, "Fellowship requires at least 5 years of safeguarding experience"
	}
	if strings.TrimSpace(r.SupportingStatement) == "" {
		return false, "Supporting statement is required"
	}
	return true, ""
}

// InvoiceLine is one booking within an invoice
type InvoiceLine struct {
	BookingID   string    `json:"booking_id"`
	CourseTitle string    `json:"course_title"`
	Amount      float64   `json:"amount"`
	Status      string    `json:"status"`
	BookedDate  time.Time `json:"booked_date"`
}

// InvoiceResponse groups the bookings billed together
type InvoiceResponse struct {
	InvoiceID string        `json:"invoice_id"`
	Total     float64       `json:"total"`
	Currency  string        `json:"currency"`
	Date      time.Time     `json:"date"`
	Lines     []InvoiceLine `json:"lines"`
}

// InvoiceListResponse represents a member's invoices
type InvoiceListResponse struct {
	Invoices []*InvoiceResponse `json:"invoices"`
	Total    int                `json:"total"`
}
