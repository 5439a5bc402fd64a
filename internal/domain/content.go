package domain

import "time"

// NewsItem is an article in the news hub
type NewsItem struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Summary       string     `json:"summary"`
	Body          string     `json:"body,omitempty"`
	Category      string     `json:"category"`
	Published     bool       `json:"published"`
	PublishedDate *time.Time `json:"published_date,omitempty"`
	Featured      bool       `json:"featured"`
}

// JobListing is a vacancy shown on the jobs board
type JobListing struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Organisation string    `json:"organisation"`
	Location     string    `json:"location,omitempty"`
	Salary       string    `json:"salary,omitempty"`
	URL          string    `json:"url,omitempty"`
	PostedDate   time.Time `json:"posted_date"`
}

// Survey question types
const (
	QuestionTypeRating      = "rating"
	QuestionTypeChoice      = "choice"
	QuestionTypeMultiChoice = "multi_choice"
	QuestionTypeText        = "text"
	QuestionTypeYesNo       = "yes_no"
)

// SurveyQuestion is one typed question of a survey
type SurveyQuestion struct {
	ID      string   `json:"id"`
	Text    string   `json:"text"`
	Type    string   `json:"type"`
	Options []string `json:"options,omitempty"`
}

// Survey is a member survey
type Survey struct {
	ID          string           `json:"id"`
	Title       string           `json:"title"`
	Description string           `json:"description,omitempty"`
	Questions   []SurveyQuestion `json:"questions"`
	Active      bool             `json:"active"`
}

// SurveyResponse holds one member's answers keyed by question id.
// Answers are strings, numbers, booleans or string lists depending on type.
type SurveyResponse struct {
	ID          string                 `json:"id"`
	SurveyID    string                 `json:"survey_id"`
	UserID      string                 `json:"user_id,omitempty"`
	Answers     map[string]interface{} `json:"answers"`
	CreatedDate time.Time              `json:"created_date"`
}
