package models

import (
	"time"

	"gorm.io/datatypes"
)

type QuestionType string

const (
	MultipleChoice QuestionType = "mcq"
	TrueFalse      QuestionType = "true_false"
	Essay          QuestionType = "essay"
	ShortAnswer    QuestionType = "short_answer"
)

// MinEssayWords is the smallest max_words an essay question may declare.
const MinEssayWords = 50

// IsChoice reports whether answers to this type are a set of option indices.
func (t QuestionType) IsChoice() bool {
	return t == MultipleChoice || t == TrueFalse
}

type QuestionOption struct {
	Text      string `json:"text"`
	IsCorrect bool   `json:"is_correct"`
}

type Question struct {
	ID           uint         `json:"id" gorm:"primaryKey"`
	AssessmentID uint         `json:"assessment_id" gorm:"not null;index"`
	Type         QuestionType `json:"type" gorm:"not null;size:20"`
	Text         string       `json:"text" gorm:"type:text;not null"`
	Points       float64      `json:"points" gorm:"not null"`
	Order        int          `json:"order" gorm:"not null;default:0"`

	TimeLimitSeconds *int    `json:"time_limit_seconds,omitempty"`
	Explanation      *string `json:"explanation,omitempty" gorm:"type:text"`

	// mcq / true_false
	Options datatypes.JSONSlice[QuestionOption] `json:"options,omitempty" gorm:"type:jsonb"`

	// essay
	MaxWords *int `json:"max_words,omitempty"`

	// short_answer
	ExpectedKeywords datatypes.JSONSlice[string] `json:"expected_keywords,omitempty" gorm:"type:jsonb"`
	CaseSensitive    bool                        `json:"case_sensitive"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CorrectAnswers returns the indices of the options flagged as correct, ascending.
func (q *Question) CorrectAnswers() []int {
	var correct []int
	for i, opt := range q.Options {
		if opt.IsCorrect {
			correct = append(correct, i)
		}
	}
	return correct
}

func (Question) TableName() string {
	return "questions"
}
