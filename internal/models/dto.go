package models

import (
	"time"

	"gorm.io/datatypes"
)

type AssessmentCreateRequest struct {
	Title           string                     `json:"title" validate:"required,assessment_title"`
	Instructions    *string                    `json:"instructions" validate:"omitempty,max=5000"`
	Type            AssessmentType             `json:"type" validate:"omitempty,assessment_type"`
	DurationMinutes int                        `json:"duration_minutes" validate:"required,assessment_duration"`
	MaxAttempts     int                        `json:"max_attempts" validate:"required,max_attempts"`
	PassingScore    float64                    `json:"passing_score" validate:"passing_score"`
	AvailableFrom   *time.Time                 `json:"available_from"`
	AvailableUntil  *time.Time                 `json:"available_until"`
	Settings        *AssessmentSettingsRequest `json:"settings"`
	Questions       []QuestionRequest          `json:"questions" validate:"omitempty,dive"`
}

type AssessmentUpdateRequest struct {
	Title           *string                    `json:"title" validate:"omitempty,assessment_title"`
	Instructions    *string                    `json:"instructions" validate:"omitempty,max=5000"`
	Type            *AssessmentType            `json:"type" validate:"omitempty,assessment_type"`
	DurationMinutes *int                       `json:"duration_minutes" validate:"omitempty,assessment_duration"`
	MaxAttempts     *int                       `json:"max_attempts" validate:"omitempty,max_attempts"`
	PassingScore    *float64                   `json:"passing_score" validate:"omitempty,passing_score"`
	AvailableFrom   *time.Time                 `json:"available_from"`
	AvailableUntil  *time.Time                 `json:"available_until"`
	Settings        *AssessmentSettingsRequest `json:"settings"`
}

// AssessmentSettingsRequest carries optional overrides; nil fields keep the current value.
type AssessmentSettingsRequest struct {
	ShuffleQuestions       *bool `json:"shuffle_questions"`
	ShuffleOptions         *bool `json:"shuffle_options"`
	ShowResultsImmediately *bool `json:"show_results_immediately"`
	ShowCorrectAnswers     *bool `json:"show_correct_answers"`
	AllowBacktrack         *bool `json:"allow_backtrack"`
	QuestionPerPage        *int  `json:"question_per_page" validate:"omitempty,min=1,max=100"`
}

func (r *AssessmentSettingsRequest) ApplyTo(s *AssessmentSettings) {
	if r == nil {
		return
	}
	if r.ShuffleQuestions != nil {
		s.ShuffleQuestions = *r.ShuffleQuestions
	}
	if r.ShuffleOptions != nil {
		s.ShuffleOptions = *r.ShuffleOptions
	}
	if r.ShowResultsImmediately != nil {
		s.ShowResultsImmediately = *r.ShowResultsImmediately
	}
	if r.ShowCorrectAnswers != nil {
		s.ShowCorrectAnswers = *r.ShowCorrectAnswers
	}
	if r.AllowBacktrack != nil {
		s.AllowBacktrack = *r.AllowBacktrack
	}
	if r.QuestionPerPage != nil {
		s.QuestionPerPage = *r.QuestionPerPage
	}
}

type QuestionRequest struct {
	Type             QuestionType     `json:"type" validate:"required,question_type"`
	Text             string           `json:"text" validate:"required,max=5000"`
	Points           float64          `json:"points" validate:"required,gt=0,max=1000"`
	TimeLimitSeconds *int             `json:"time_limit_seconds" validate:"omitempty,min=5,max=86400"`
	Explanation      *string          `json:"explanation" validate:"omitempty,max=5000"`
	Options          []QuestionOption `json:"options"`
	MaxWords         *int             `json:"max_words"`
	ExpectedKeywords []string         `json:"expected_keywords" validate:"omitempty,dive,max=200"`
	CaseSensitive    bool             `json:"case_sensitive"`
}

func (r *QuestionRequest) ToModel() Question {
	return Question{
		Type:             r.Type,
		Text:             r.Text,
		Points:           r.Points,
		TimeLimitSeconds: r.TimeLimitSeconds,
		Explanation:      r.Explanation,
		Options:          datatypes.JSONSlice[QuestionOption](r.Options),
		MaxWords:         r.MaxWords,
		ExpectedKeywords: datatypes.JSONSlice[string](r.ExpectedKeywords),
		CaseSensitive:    r.CaseSensitive,
	}
}

// KeywordsUpdateRequest amends the accepted keywords of a short answer question.
type KeywordsUpdateRequest struct {
	ExpectedKeywords []string `json:"expected_keywords" validate:"required,min=1,dive,required,max=200"`
	CaseSensitive    *bool    `json:"case_sensitive"`
}

type AnswerRequest struct {
	Selected []int   `json:"selected" validate:"omitempty,dive,min=0"`
	Text     *string `json:"text" validate:"omitempty,max=50000"`
}

func (r *AnswerRequest) ToValue() AnswerValue {
	return AnswerValue{Selected: r.Selected, Text: r.Text}
}

type ManualScoreRequest struct {
	Points   float64 `json:"points" validate:"min=0"`
	Feedback *string `json:"feedback" validate:"omitempty,max=2000"`
}
