package models

import (
	"time"

	"gorm.io/datatypes"
)

type AttemptStatus string

const (
	AttemptInProgress AttemptStatus = "in_progress"
	AttemptExpired    AttemptStatus = "expired"
	AttemptSubmitted  AttemptStatus = "submitted"
	AttemptGraded     AttemptStatus = "graded"
)

// CanTransitionTo reports whether the attempt state machine allows moving from s to next.
func (s AttemptStatus) CanTransitionTo(next AttemptStatus) bool {
	switch s {
	case AttemptInProgress:
		return next == AttemptExpired || next == AttemptSubmitted
	case AttemptExpired, AttemptSubmitted:
		return next == AttemptGraded
	}
	return false
}

// IsFinished is true once the attempt no longer accepts answers.
func (s AttemptStatus) IsFinished() bool {
	return s != AttemptInProgress
}

type Attempt struct {
	ID            uint          `json:"id" gorm:"primaryKey"`
	AssessmentID  uint          `json:"assessment_id" gorm:"not null;index:idx_attempt_active,unique,where:status = 'in_progress';uniqueIndex:idx_attempt_number"`
	StudentID     string        `json:"student_id" gorm:"not null;size:255;index:idx_attempt_active,unique,where:status = 'in_progress';uniqueIndex:idx_attempt_number"`
	AttemptNumber int           `json:"attempt_number" gorm:"not null;uniqueIndex:idx_attempt_number"`
	Status        AttemptStatus `json:"status" gorm:"not null;size:20;default:in_progress;index"`

	// Timing
	StartedAt   time.Time  `json:"started_at" gorm:"not null"`
	ExpiresAt   time.Time  `json:"expires_at" gorm:"not null"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
	GradedAt    *time.Time `json:"graded_at,omitempty"`

	// Progress tracking
	FurthestPage int `json:"furthest_page" gorm:"not null;default:0"`

	// Scoring
	Score           float64                             `json:"score"`
	TotalPoints     float64                             `json:"total_points"`
	Percentage      float64                             `json:"percentage"`
	Passed          bool                                `json:"passed"`
	GradingComplete bool                                `json:"grading_complete"`
	Results         datatypes.JSONSlice[QuestionResult] `json:"results,omitempty" gorm:"type:jsonb"`

	// Optimistic concurrency
	Version int `json:"version" gorm:"not null;default:1"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Answers      []Answer      `json:"answers,omitempty" gorm:"foreignKey:AttemptID"`
	ManualScores []ManualScore `json:"manual_scores,omitempty" gorm:"foreignKey:AttemptID"`
}

// IsPastDeadline reports whether now has reached the attempt's expiry instant.
func (a *Attempt) IsPastDeadline(now time.Time) bool {
	return !now.Before(a.ExpiresAt)
}

// AnswerFor returns the saved value for a question, if any.
func (a *Attempt) AnswerFor(questionID uint) (AnswerValue, bool) {
	for _, ans := range a.Answers {
		if ans.QuestionID == questionID {
			return ans.Value.Data(), true
		}
	}
	return AnswerValue{}, false
}

// ManualScoreFor returns the staff-recorded score for a question, if any.
func (a *Attempt) ManualScoreFor(questionID uint) (*ManualScore, bool) {
	for i := range a.ManualScores {
		if a.ManualScores[i].QuestionID == questionID {
			return &a.ManualScores[i], true
		}
	}
	return nil, false
}

// AnswerValue is the submitted value for one question: option indices for
// choice questions, free text for essay and short answer questions.
type AnswerValue struct {
	Selected []int   `json:"selected,omitempty"`
	Text     *string `json:"text,omitempty"`
}

// Answer is keyed by (attempt_id, question_id) so every save is a single-row upsert.
type Answer struct {
	AttemptID  uint                            `json:"attempt_id" gorm:"primaryKey"`
	QuestionID uint                            `json:"question_id" gorm:"primaryKey"`
	Value      datatypes.JSONType[AnswerValue] `json:"value" gorm:"type:jsonb"`
	SavedAt    time.Time                       `json:"saved_at"`
}

type ManualScore struct {
	AttemptID  uint      `json:"attempt_id" gorm:"primaryKey"`
	QuestionID uint      `json:"question_id" gorm:"primaryKey"`
	Points     float64   `json:"points" gorm:"not null"`
	GradedBy   string    `json:"graded_by" gorm:"not null;size:255"`
	GradedAt   time.Time `json:"graded_at"`
	Feedback   *string   `json:"feedback,omitempty" gorm:"type:text"`
}

type GradeStatus string

const (
	GradeCorrect            GradeStatus = "correct"
	GradeIncorrect          GradeStatus = "incorrect"
	GradeUnanswered         GradeStatus = "unanswered"
	GradePendingManualGrade GradeStatus = "pending_manual_grade"
	GradeManuallyGraded     GradeStatus = "manually_graded"
)

// QuestionResult is the per-question outcome of grading an attempt.
type QuestionResult struct {
	QuestionID    uint         `json:"question_id"`
	Type          QuestionType `json:"type"`
	Status        GradeStatus  `json:"status"`
	AwardedPoints float64      `json:"awarded_points"`
	MaxPoints     float64      `json:"max_points"`
	IsCorrect     *bool        `json:"is_correct,omitempty"`
	Feedback      *string      `json:"feedback,omitempty"`
}

func (Attempt) TableName() string {
	return "attempts"
}

func (Answer) TableName() string {
	return "attempt_answers"
}

func (ManualScore) TableName() string {
	return "attempt_manual_scores"
}
