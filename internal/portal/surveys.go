package portal

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/prohmpiriya/safeguard-membership/internal/domain"
)

// Rating bounds for rating questions
const (
	MinRating = 1
	MaxRating = 5
)

// QuestionSummary is the bar-chart view of one question's answers
type QuestionSummary struct {
	QuestionID string         `json:"question_id"`
	Text       string         `json:"text"`
	Type       string         `json:"type"`
	Responses  int            `json:"responses"`
	Counts     map[string]int `json:"counts,omitempty"`
	Average    *float64       `json:"average,omitempty"`
	Answers    []string       `json:"answers,omitempty"`
}

// SurveyAnalytics summarises every response to a survey
type SurveyAnalytics struct {
	SurveyID       string            `json:"survey_id"`
	Title          string            `json:"title"`
	TotalResponses int               `json:"total_responses"`
	Questions      []QuestionSummary `json:"questions"`
}

// AnalyseSurvey buckets answers per question according to its type
func AnalyseSurvey(survey *domain.Survey, responses []*domain.SurveyResponse) *SurveyAnalytics {
	result := &SurveyAnalytics{
		SurveyID:       survey.ID,
		Title:          survey.Title,
		TotalResponses: len(responses),
		Questions:      make([]QuestionSummary, 0, len(survey.Questions)),
	}

	for _, q := range survey.Questions {
		summary := QuestionSummary{QuestionID: q.ID, Text: q.Text, Type: q.Type}
		switch q.Type {
		case domain.QuestionTypeChoice, domain.QuestionTypeMultiChoice:
			summary.Counts = make(map[string]int, len(q.Options))
			for _, opt := range q.Options {
				summary.Counts[opt] = 0
			}
		case domain.QuestionTypeYesNo:
			summary.Counts = map[string]int{"yes": 0, "no": 0}
		case domain.QuestionTypeRating:
			summary.Counts = make(map[string]int, MaxRating)
			for r := MinRating; r <= MaxRating; r++ {
				summary.Counts[strconv.Itoa(r)] = 0
			}
		}

		var ratingSum, ratingCount int
		for _, resp := range responses {
			answer, ok := resp.Answers[q.ID]
			if !ok || answer == nil {
				continue
			}

			counted := false
			switch q.Type {
			case domain.QuestionTypeChoice:
				if s, ok := answer.(string); ok && s != "" {
					summary.Counts[s]++
					counted = true
				}
			case domain.QuestionTypeMultiChoice:
				for _, s := range stringList(answer) {
					summary.Counts[s]++
					counted = true
				}
			case domain.QuestionTypeYesNo:
				if v, ok := yesNo(answer); ok {
					summary.Counts[v]++
					counted = true
				}
			case domain.QuestionTypeRating:
				if r, ok := rating(answer); ok {
					summary.Counts[strconv.Itoa(r)]++
					ratingSum += r
					ratingCount++
					counted = true
				}
			case domain.QuestionTypeText:
				if s := strings.TrimSpace(fmt.Sprint(answer)); s != "" {
					summary.Answers = append(summary.Answers, s)
					counted = true
				}
			}
			if counted {
				summary.Responses++
			}
		}

		if ratingCount > 0 {
			avg := math.Round(float64(ratingSum)/float64(ratingCount)*100) / 100
			summary.Average = &avg
		}
		result.Questions = append(result.Questions, summary)
	}

	return result
}

func stringList(v interface{}) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []interface{}:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if list != "" {
			return []string{list}
		}
	}
	return nil
}

func yesNo(v interface{}) (string, bool) {
	switch a := v.(type) {
	case bool:
		if a {
			return "yes", true
		}
		return "no", true
	case string:
		switch strings.ToLower(strings.TrimSpace(a)) {
		case "yes", "true", "y":
			return "yes", true
		case "no", "false", "n":
			return "no", true
		}
	}
	return "", false
}

func rating(v interface{}) (int, bool) {
	var r int
	switch a := v.(type) {
	case float64:
		r = int(math.Round(a))
	case int:
		r = a
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(a))
		if err != nil {
			return 0, false
		}
		r = n
	default:
		return 0, false
	}
	if r < MinRating || r > MaxRating {
		return 0, false
	}
	return r, true
}
