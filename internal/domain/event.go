package domain

import "time"

// Event is a members' event, optionally hosted on a video meeting provider
type Event struct {
	ID                string    `json:"id"`
	Title             string    `json:"title"`
	Description       string    `json:"description,omitempty"`
	StartsAt          time.Time `json:"starts_at"`
	Location          string    `json:"location,omitempty"`
	MeetingProviderID string    `json:"zoom_webinar_id,omitempty"`
	Capacity          int       `json:"capacity"`
}

// IsOnline reports whether attendees must be registered with the meeting provider
func (e *Event) IsOnline() bool {
	return e.MeetingProviderID != ""
}

// EventSignup records a user's registration for an event
type EventSignup struct {
	ID          string    `json:"id"`
	EventID     string    `json:"event_id"`
	UserID      string    `json:"user_id"`
	Email       string    `json:"email"`
	Name        string    `json:"name"`
	JoinURL     *string   `json:"join_url"`
	Status      string    `json:"status"`
	CreatedDate time.Time `json:"created_date"`
}

// Event signup statuses
const (
	SignupStatusRegistered = "registered"
	SignupStatusCancelled  = "cancelled"
	SignupStatusAttended   = "attended"
)
