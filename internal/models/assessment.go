package models

import (
	"errors"
	"time"
)

type AssessmentType string

const (
	TypeExam AssessmentType = "exam"
	TypeQuiz AssessmentType = "quiz"
	TypeCAT  AssessmentType = "cat"
)

type AssessmentStatus string

const (
	StatusActive   AssessmentStatus = "active"
	StatusInactive AssessmentStatus = "inactive"
)

var ErrQuestionNotInAssessment = errors.New("question does not belong to assessment")

type Assessment struct {
	ID              uint             `json:"id" gorm:"primaryKey"`
	Title           string           `json:"title" gorm:"not null;size:200;index"`
	Instructions    *string          `json:"instructions,omitempty" gorm:"type:text"`
	Type            AssessmentType   `json:"type" gorm:"not null;size:20;default:quiz"`
	Status          AssessmentStatus `json:"status" gorm:"not null;size:20;default:active;index"`
	DurationMinutes int              `json:"duration_minutes" gorm:"not null"`
	MaxAttempts     int              `json:"max_attempts" gorm:"not null;default:1"`
	PassingScore    float64          `json:"passing_score" gorm:"not null"`
	AvailableFrom   *time.Time       `json:"available_from,omitempty"`
	AvailableUntil  *time.Time       `json:"available_until,omitempty"`

	Settings AssessmentSettings `json:"settings" gorm:"embedded;embeddedPrefix:setting_"`

	// Metadata
	CreatedBy     string     `json:"created_by" gorm:"not null;index;size:255"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	DeactivatedAt *time.Time `json:"deactivated_at,omitempty"`

	// Version control
	Version int `json:"version" gorm:"not null;default:1"`

	// Relations
	Questions []Question `json:"questions" gorm:"foreignKey:AssessmentID;constraint:OnDelete:CASCADE"`

	// Computed fields (not stored)
	TotalPoints float64 `json:"total_points" gorm:"-"`
}

// AssessmentSettings controls presentation and feedback for an assessment.
// DefaultAssessmentSettings documents the value of every field when the author omits it.
// Boolean columns must not declare a gorm default, or an explicit false is
// inserted as the default.
type AssessmentSettings struct {
	ShuffleQuestions       bool `json:"shuffle_questions" gorm:"not null"`
	ShuffleOptions         bool `json:"shuffle_options" gorm:"not null"`
	ShowResultsImmediately bool `json:"show_results_immediately" gorm:"not null"`
	ShowCorrectAnswers     bool `json:"show_correct_answers" gorm:"not null"`
	AllowBacktrack         bool `json:"allow_backtrack" gorm:"not null"`
	QuestionPerPage        int  `json:"question_per_page" gorm:"not null;default:1"`
}

func DefaultAssessmentSettings() AssessmentSettings {
	return AssessmentSettings{
		ShuffleQuestions:       false,
		ShuffleOptions:         false,
		ShowResultsImmediately: true,
		ShowCorrectAnswers:     false,
		AllowBacktrack:         true,
		QuestionPerPage:        1,
	}
}

// PageOf returns the zero-based page holding the question at the given presentation position.
func (s AssessmentSettings) PageOf(position int) int {
	perPage := s.QuestionPerPage
	if perPage < 1 {
		perPage = 1
	}
	return position / perPage
}

// RecomputeTotalPoints derives TotalPoints from the current question list.
func (a *Assessment) RecomputeTotalPoints() {
	var total float64
	for _, q := range a.Questions {
		total += q.Points
	}
	a.TotalPoints = total
}

// IsAvailableAt reports whether students may start or resume at the given instant.
// The window bounds are inclusive.
func (a *Assessment) IsAvailableAt(now time.Time) bool {
	if a.Status != StatusActive {
		return false
	}
	if a.AvailableFrom != nil && now.Before(*a.AvailableFrom) {
		return false
	}
	if a.AvailableUntil != nil && now.After(*a.AvailableUntil) {
		return false
	}
	return true
}

func (a *Assessment) Duration() time.Duration {
	return time.Duration(a.DurationMinutes) * time.Minute
}

// FindQuestion returns the question with the given id and its index in Questions.
func (a *Assessment) FindQuestion(id uint) (*Question, int) {
	for i := range a.Questions {
		if a.Questions[i].ID == id {
			return &a.Questions[i], i
		}
	}
	return nil, -1
}

// AddQuestion appends q after the last question and returns the stored copy.
func (a *Assessment) AddQuestion(q Question) *Question {
	q.AssessmentID = a.ID
	q.Order = len(a.Questions) + 1
	a.Questions = append(a.Questions, q)
	a.RecomputeTotalPoints()
	return &a.Questions[len(a.Questions)-1]
}

// UpdateQuestion replaces the content of an existing question, keeping its identity and position.
func (a *Assessment) UpdateQuestion(q Question) (*Question, error) {
	existing, _ := a.FindQuestion(q.ID)
	if existing == nil {
		return nil, ErrQuestionNotInAssessment
	}
	q.AssessmentID = a.ID
	q.Order = existing.Order
	q.CreatedAt = existing.CreatedAt
	*existing = q
	a.RecomputeTotalPoints()
	return existing, nil
}

// RemoveQuestion drops a question and closes the gap in ordering.
func (a *Assessment) RemoveQuestion(id uint) error {
	_, idx := a.FindQuestion(id)
	if idx < 0 {
		return ErrQuestionNotInAssessment
	}
	a.Questions = append(a.Questions[:idx], a.Questions[idx+1:]...)
	for i := range a.Questions {
		a.Questions[i].Order = i + 1
	}
	a.RecomputeTotalPoints()
	return nil
}

func (Assessment) TableName() string {
	return "assessments"
}
