package services

import (
	"errors"
	"fmt"
)

var (
	ErrAssessmentNotFound     = errors.New("assessment not found")
	ErrAssessmentNotAvailable = errors.New("assessment is not available")
	ErrAssessmentLocked       = errors.New("assessment has attempts and can no longer be changed")
	ErrQuestionNotFound       = errors.New("question not found in assessment")

	ErrMaxAttemptsExceeded = errors.New("maximum number of attempts reached")
	ErrAttemptNotFound     = errors.New("attempt not found")
	ErrAttemptExpired      = errors.New("time is up for this attempt")
	ErrAnswerRejected      = errors.New("answer rejected")
	ErrAttemptNotSubmitted = errors.New("attempt is still in progress")

	// ErrGradingIncomplete accompanies a non-nil result whose essay scores are still pending.
	ErrGradingIncomplete = errors.New("grading incomplete: manual scores pending")

	// ErrConcurrentUpdate is returned once version conflicts outlast the retry budget.
	ErrConcurrentUpdate = errors.New("attempt was modified concurrently, please retry")
)

// PermissionError reports an actor touching a resource it does not own.
type PermissionError struct {
	UserID       string
	ResourceID   uint
	ResourceType string
	Action       string
	Reason       string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("user %s cannot %s %s %d: %s", e.UserID, e.Action, e.ResourceType, e.ResourceID, e.Reason)
}

func NewPermissionError(userID string, resourceID uint, resourceType, action, reason string) *PermissionError {
	return &PermissionError{
		UserID:       userID,
		ResourceID:   resourceID,
		ResourceType: resourceType,
		Action:       action,
		Reason:       reason,
	}
}

func IsPermissionError(err error) bool {
	var pe *PermissionError
	return errors.As(err, &pe)
}

// rejectAnswer wraps ErrAnswerRejected with the reason shown to the student.
func rejectAnswer(reason string) error {
	return fmt.Errorf("%w: %s", ErrAnswerRejected, reason)
}
