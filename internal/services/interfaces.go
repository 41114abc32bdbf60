package services

import (
	"context"
	"time"

	"github.com/SAP-F-2025/assessment-engine/internal/models"
	"github.com/SAP-F-2025/assessment-engine/internal/repositories"
)

// Actor is the authenticated caller of a service operation.
type Actor struct {
	ID   string
	Role models.UserRole
}

func (a Actor) IsStaff() bool {
	return a.Role.IsGradingStaff()
}

// ===== ASSESSMENT DTOs =====

type AssessmentResponse struct {
	*models.Assessment
	QuestionCount int  `json:"question_count"`
	Locked        bool `json:"locked"`
	CanEdit       bool `json:"can_edit"`
	CanTake       bool `json:"can_take"`
}

type AssessmentListResponse struct {
	Assessments []*AssessmentResponse `json:"assessments"`
	Total       int64                 `json:"total"`
	Limit       int                   `json:"limit"`
	Offset      int                   `json:"offset"`
}

// ===== ATTEMPT DTOs =====

// PresentedOption keeps the authored index so answers are stable under shuffling.
type PresentedOption struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

// PresentedQuestion is a question as one attempt shows it: no correctness data.
type PresentedQuestion struct {
	ID               uint                `json:"id"`
	Type             models.QuestionType `json:"type"`
	Text             string              `json:"text"`
	Points           float64             `json:"points"`
	Position         int                 `json:"position"`
	Page             int                 `json:"page"`
	TimeLimitSeconds *int                `json:"time_limit_seconds,omitempty"`
	MaxWords         *int                `json:"max_words,omitempty"`
	Options          []PresentedOption   `json:"options,omitempty"`
}

type AttemptResponse struct {
	ID               uint                 `json:"id"`
	AssessmentID     uint                 `json:"assessment_id"`
	StudentID        string               `json:"student_id"`
	AttemptNumber    int                  `json:"attempt_number"`
	Status           models.AttemptStatus `json:"status"`
	StartedAt        time.Time            `json:"started_at"`
	ExpiresAt        time.Time            `json:"expires_at"`
	SubmittedAt      *time.Time           `json:"submitted_at,omitempty"`
	RemainingSeconds int                  `json:"remaining_seconds"`
	FurthestPage     int                  `json:"furthest_page"`
	AllowBacktrack   bool                 `json:"allow_backtrack"`
	Version          int                  `json:"version"`
	Resumed          bool                 `json:"resumed"`

	Questions []PresentedQuestion         `json:"questions,omitempty"`
	Answers   map[uint]models.AnswerValue `json:"answers,omitempty"`
	Result    *AttemptResult              `json:"result,omitempty"`
}

// QuestionResultView adds the answer key when the assessment reveals it.
type QuestionResultView struct {
	models.QuestionResult
	Answer           *models.AnswerValue `json:"answer,omitempty"`
	CorrectAnswers   []int               `json:"correct_answers,omitempty"`
	ExpectedKeywords []string            `json:"expected_keywords,omitempty"`
	Explanation      *string             `json:"explanation,omitempty"`
}

// AttemptResult is what a caller may see of a finished attempt. Score fields are
// nil when withheld from a student.
type AttemptResult struct {
	AttemptID       uint                 `json:"attempt_id"`
	AssessmentID    uint                 `json:"assessment_id"`
	StudentID       string               `json:"student_id"`
	AttemptNumber   int                  `json:"attempt_number"`
	Status          models.AttemptStatus `json:"status"`
	SubmittedAt     *time.Time           `json:"submitted_at,omitempty"`
	GradedAt        *time.Time           `json:"graded_at,omitempty"`
	GradingComplete bool                 `json:"grading_complete"`
	Provisional     bool                 `json:"provisional"`

	Score       *float64 `json:"score,omitempty"`
	TotalPoints float64  `json:"total_points"`
	Percentage  *float64 `json:"percentage,omitempty"`
	Passed      *bool    `json:"passed,omitempty"`

	PendingQuestions []uint               `json:"pending_questions,omitempty"`
	Questions        []QuestionResultView `json:"questions,omitempty"`
}

type AttemptListResponse struct {
	Attempts []*AttemptSummary `json:"attempts"`
	Total    int64             `json:"total"`
	Limit    int               `json:"limit"`
	Offset   int               `json:"offset"`
}

type AttemptSummary struct {
	ID              uint                 `json:"id"`
	StudentID       string               `json:"student_id"`
	AttemptNumber   int                  `json:"attempt_number"`
	Status          models.AttemptStatus `json:"status"`
	StartedAt       time.Time            `json:"started_at"`
	ExpiresAt       time.Time            `json:"expires_at"`
	SubmittedAt     *time.Time           `json:"submitted_at,omitempty"`
	Score           float64              `json:"score"`
	TotalPoints     float64              `json:"total_points"`
	Percentage      float64              `json:"percentage"`
	Passed          bool                 `json:"passed"`
	GradingComplete bool                 `json:"grading_complete"`
}

// AnswerAck acknowledges a saved answer.
type AnswerAck struct {
	AttemptID        uint      `json:"attempt_id"`
	QuestionID       uint      `json:"question_id"`
	SavedAt          time.Time `json:"saved_at"`
	Unchanged        bool      `json:"unchanged"`
	FurthestPage     int       `json:"furthest_page"`
	RemainingSeconds int       `json:"remaining_seconds"`
	Version          int       `json:"version"`
}

// ===== GRADING DTOs =====

type ManualScoreResponse struct {
	AttemptID       uint                 `json:"attempt_id"`
	QuestionID      uint                 `json:"question_id"`
	Points          float64              `json:"points"`
	Status          models.AttemptStatus `json:"status"`
	GradingComplete bool                 `json:"grading_complete"`
	Score           float64              `json:"score"`
	Passed          bool                 `json:"passed"`
}

type RegradeSummary struct {
	AssessmentID uint `json:"assessment_id"`
	Regraded     int  `json:"regraded"`
	Unchanged    int  `json:"unchanged"`
	// Skipped counts attempts still in progress.
	Skipped      int  `json:"skipped"`
}

// ===== SERVICE INTERFACES =====

type AssessmentService interface {
	Create(ctx context.Context, req *models.AssessmentCreateRequest, actor Actor) (*AssessmentResponse, error)
	GetByID(ctx context.Context, id uint, actor Actor) (*AssessmentResponse, error)
	List(ctx context.Context, filters repositories.AssessmentFilters, actor Actor) (*AssessmentListResponse, error)
	Update(ctx context.Context, id uint, req *models.AssessmentUpdateRequest, actor Actor) (*AssessmentResponse, error)
	Deactivate(ctx context.Context, id uint, actor Actor) error

	// Question management, rejected with ErrAssessmentLocked once attempts exist.
	AddQuestion(ctx context.Context, assessmentID uint, req *models.QuestionRequest, actor Actor) (*AssessmentResponse, error)
	UpdateQuestion(ctx context.Context, assessmentID, questionID uint, req *models.QuestionRequest, actor Actor) (*AssessmentResponse, error)
	RemoveQuestion(ctx context.Context, assessmentID, questionID uint, actor Actor) (*AssessmentResponse, error)

	// AmendKeywords is allowed on locked assessments; follow with a regrade.
	AmendKeywords(ctx context.Context, assessmentID, questionID uint, req *models.KeywordsUpdateRequest, actor Actor) (*models.Question, error)
}

type AttemptService interface {
	StartOrResume(ctx context.Context, assessmentID uint, actor Actor) (*AttemptResponse, error)
	GetByID(ctx context.Context, attemptID uint, actor Actor) (*AttemptResponse, error)
	Submit(ctx context.Context, attemptID uint, actor Actor) (*AttemptResult, error)
	// GetResult returns ErrGradingIncomplete together with a non-nil result while essays are pending.
	GetResult(ctx context.Context, attemptID uint, actor Actor) (*AttemptResult, error)
	ListByAssessment(ctx context.Context, assessmentID uint, filters repositories.AttemptFilters, actor Actor) (*AttemptListResponse, error)
}

type AutoSaveService interface {
	RecordAnswer(ctx context.Context, attemptID, questionID uint, value models.AnswerValue, actor Actor) (*AnswerAck, error)
}

type GradingService interface {
	RecordManualScore(ctx context.Context, attemptID, questionID uint, req *models.ManualScoreRequest, actor Actor) (*ManualScoreResponse, error)
	RegradeAttempt(ctx context.Context, attemptID uint, actor Actor) (*AttemptResult, error)
	RegradeAssessment(ctx context.Context, assessmentID uint, actor Actor) (*RegradeSummary, error)
}

type ResultExportService interface {
	// ExportResults renders every attempt of an assessment as an xlsx workbook.
	ExportResults(ctx context.Context, assessmentID uint, actor Actor) ([]byte, string, error)
}

// ===== SERVICE MANAGER =====

type ServiceManager interface {
	Assessment() AssessmentService
	Attempt() AttemptService
	AutoSave() AutoSaveService
	Grading() GradingService
	ResultExport() ResultExportService

	Initialize(ctx context.Context) error
	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}
