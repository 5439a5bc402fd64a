package domain

import "time"

// CourseBooking is a paid training course booking
type CourseBooking struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	CourseTitle string    `json:"course_title"`
	InvoiceID   string    `json:"invoice_id,omitempty"`
	Amount      float64   `json:"amount"`
	Currency    string    `json:"currency"`
	Status      string    `json:"status"`
	BookedDate  time.Time `json:"booked_date"`
}

// FellowshipApplication is a request to join the fellow tier
type FellowshipApplication struct {
	ID                  string    `json:"id"`
	UserID              string    `json:"user_id"`
	FullName            string    `json:"full_name"`
	Email               string    `json:"email"`
	CurrentRole         string    `json:"current_role"`
	YearsExperience     int       `json:"years_experience"`
	Qualifications      string    `json:"qualifications"`
	Contribution        string    `json:"contribution"`
	SupportingStatement string    `json:"supporting_statement"`
	Status              string    `json:"status"` // submitted, under_review, approved, rejected
	ReviewNotes         string    `json:"review_notes,omitempty"`
	CreatedDate         time.Time `json:"created_date"`
}

// Fellowship application statuses
const (
	ApplicationStatusSubmitted   = "submitted"
	ApplicationStatusUnderReview = "under_review"
	ApplicationStatusApproved    = "approved"
	ApplicationStatusRejected    = "rejected"
)

// IsValidApplicationStatus reports whether status is a known application status
func IsValidApplicationStatus(status string) bool {
	switch status {
	case ApplicationStatusSubmitted, ApplicationStatusUnderReview, ApplicationStatusApproved, ApplicationStatusRejected:
		return true
	}
	return false
}
