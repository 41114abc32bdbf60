// Package events publishes attempt lifecycle and grading events.
package events

import (
	"context"
	"time"
)

const (
	EventSource  = "assessment-engine"
	EventVersion = "1.0"
)

// Event types
const (
	AttemptStarted      = "attempt.started"
	AttemptExpired      = "attempt.expired"
	AttemptSubmitted    = "attempt.submitted"
	AttemptGraded       = "attempt.graded"
	AttemptManualScored = "attempt.manual_scored"
	AssessmentRegraded  = "assessment.regraded"
)

// Event is the envelope written to the broker.
type Event struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Source    string      `json:"source"`
	Version   string      `json:"version"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

type AttemptEvent struct {
	AttemptID     uint      `json:"attempt_id"`
	AssessmentID  uint      `json:"assessment_id"`
	StudentID     string    `json:"student_id"`
	AttemptNumber int       `json:"attempt_number"`
	Status        string    `json:"status"`
	OccurredAt    time.Time `json:"occurred_at"`
}

type GradeEvent struct {
	AttemptEvent
	Score           float64 `json:"score"`
	TotalPoints     float64 `json:"total_points"`
	Percentage      float64 `json:"percentage"`
	Passed          bool    `json:"passed"`
	GradingComplete bool    `json:"grading_complete"`
}

type ManualScoreEvent struct {
	AttemptID  uint    `json:"attempt_id"`
	QuestionID uint    `json:"question_id"`
	Points     float64 `json:"points"`
	GradedBy   string  `json:"graded_by"`
}

type RegradeEvent struct {
	AssessmentID uint   `json:"assessment_id"`
	Regraded     int    `json:"regraded"`
	TriggeredBy  string `json:"triggered_by"`
}

// EventPublisher publishes events. Implementations must be safe for concurrent use.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, data interface{}) error
	Close() error
}
