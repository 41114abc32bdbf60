package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/SAP-F-2025/assessment-engine/internal/events"
	"github.com/SAP-F-2025/assessment-engine/internal/models"
	"github.com/SAP-F-2025/assessment-engine/internal/repositories"
	"github.com/SAP-F-2025/assessment-engine/internal/validator"
)

type attemptService struct {
	*lifecycle
}

func NewAttemptService(deps Dependencies) AttemptService {
	return &attemptService{lifecycle: newLifecycle(deps)}
}

// ===== CORE ATTEMPT OPERATIONS =====

func (s *attemptService) StartOrResume(ctx context.Context, assessmentID uint, actor Actor) (*AttemptResponse, error) {
	s.Logger.InfoContext(ctx, "Starting or resuming attempt",
		"assessment_id", assessmentID,
		"student_id", actor.ID)

	assessment, err := s.loadAssessment(ctx, assessmentID)
	if err != nil {
		return nil, err
	}
	if !assessment.IsAvailableAt(s.now()) {
		return nil, ErrAssessmentNotAvailable
	}

	for try := 0; ; try++ {
		active, err := s.Repo.Attempt().GetActive(ctx, assessmentID, actor.ID)
		switch {
		case err == nil:
			active, err = s.expireIfDue(ctx, active, assessment)
			if err != nil {
				return nil, err
			}
			if active.Status == models.AttemptInProgress {
				s.Logger.InfoContext(ctx, "Resuming existing attempt", "attempt_id", active.ID)
				return s.buildAttemptResponse(assessment, active, actor, true), nil
			}
		case !repositories.IsNotFoundError(err):
			return nil, fmt.Errorf("failed to get active attempt: %w", err)
		}

		count, err := s.Repo.Attempt().CountByStudent(ctx, assessmentID, actor.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to count attempts: %w", err)
		}
		if int(count) >= assessment.MaxAttempts {
			return nil, ErrMaxAttemptsExceeded
		}
		if len(assessment.Questions) == 0 {
			return nil, validator.ValidationErrors{*validator.NewValidationError("questions", "assessment has no questions", 0)}
		}

		now := s.now()
		attempt := &models.Attempt{
			AssessmentID:  assessmentID,
			StudentID:     actor.ID,
			AttemptNumber: int(count) + 1,
			Status:        models.AttemptInProgress,
			StartedAt:     now,
			ExpiresAt:     now.Add(assessment.Duration()),
			TotalPoints:   assessment.TotalPoints,
		}

		err = s.Repo.Attempt().Create(ctx, attempt)
		if err == nil {
			s.Metrics.AttemptsStarted.Inc()
			s.Logger.InfoContext(ctx, "Attempt started",
				"attempt_id", attempt.ID,
				"assessment_id", assessmentID,
				"student_id", actor.ID,
				"attempt_number", attempt.AttemptNumber)
			events.Emit(ctx, s.Events, s.Logger, events.AttemptStarted, attemptEvent(attempt, attempt.Status))
			return s.buildAttemptResponse(assessment, attempt, actor, false), nil
		}
		if !repositories.IsDuplicateError(err) || try >= s.MaxRetries {
			return nil, fmt.Errorf("failed to create attempt: %w", err)
		}
		// A concurrent start won the uniqueness check; the next pass resumes its attempt.
		s.Logger.DebugContext(ctx, "Concurrent attempt start detected",
			"assessment_id", assessmentID,
			"student_id", actor.ID)
	}
}

func (s *attemptService) GetByID(ctx context.Context, attemptID uint, actor Actor) (*AttemptResponse, error) {
	attempt, assessment, err := s.loadForActor(ctx, attemptID, actor, "read", true)
	if err != nil {
		return nil, err
	}

	attempt, err = s.expireIfDue(ctx, attempt, assessment)
	if err != nil {
		return nil, err
	}
	return s.buildAttemptResponse(assessment, attempt, actor, false), nil
}

func (s *attemptService) Submit(ctx context.Context, attemptID uint, actor Actor) (*AttemptResult, error) {
	s.Logger.InfoContext(ctx, "Submitting attempt",
		"attempt_id", attemptID,
		"student_id", actor.ID)

	attempt, assessment, err := s.loadForActor(ctx, attemptID, actor, "submit", false)
	if err != nil {
		return nil, err
	}

	attempt, err = s.expireIfDue(ctx, attempt, assessment)
	if err != nil {
		return nil, err
	}

	if attempt.Status == models.AttemptInProgress {
		attempt, err = s.finish(ctx, attemptID, assessment, models.AttemptSubmitted)
		if errors.Is(err, ErrAttemptExpired) {
			// The deadline passed between load and write.
			if _, expErr := s.finish(ctx, attemptID, assessment, models.AttemptExpired); expErr != nil {
				s.Logger.ErrorContext(ctx, "Failed to expire attempt", "attempt_id", attemptID, "error", expErr)
			}
			return nil, ErrAttemptExpired
		}
		if err != nil {
			return nil, err
		}
	}
	if endedByExpiry(attempt) {
		return nil, ErrAttemptExpired
	}

	// Submitting twice returns the stored outcome.
	show := actor.IsStaff() || assessment.Settings.ShowResultsImmediately
	return s.buildResult(assessment, attempt, actor, show), nil
}

func (s *attemptService) GetResult(ctx context.Context, attemptID uint, actor Actor) (*AttemptResult, error) {
	attempt, assessment, err := s.loadForActor(ctx, attemptID, actor, "read_result", true)
	if err != nil {
		return nil, err
	}

	attempt, err = s.expireIfDue(ctx, attempt, assessment)
	if err != nil {
		return nil, err
	}
	if attempt.Status == models.AttemptInProgress {
		return nil, ErrAttemptNotSubmitted
	}

	show := actor.IsStaff() || attempt.GradingComplete || assessment.Settings.ShowResultsImmediately
	result := s.buildResult(assessment, attempt, actor, show)
	if !attempt.GradingComplete {
		return result, ErrGradingIncomplete
	}
	return result, nil
}

func (s *attemptService) ListByAssessment(ctx context.Context, assessmentID uint, filters repositories.AttemptFilters, actor Actor) (*AttemptListResponse, error) {
	assessment, err := s.loadAssessment(ctx, assessmentID)
	if err != nil {
		return nil, err
	}
	if !canManage(actor, assessment) {
		return nil, NewPermissionError(actor.ID, assessmentID, "assessment", "list_attempts", "not the assessment owner")
	}

	filters.AssessmentID = &assessmentID
	filters.Limit, filters.Offset = repositories.NormalizePage(filters.Limit, filters.Offset)

	attempts, total, err := s.Repo.Attempt().List(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}

	summaries := make([]*AttemptSummary, 0, len(attempts))
	for _, attempt := range attempts {
		current, err := s.expireIfDue(ctx, attempt, assessment)
		if err != nil {
			s.Logger.ErrorContext(ctx, "Failed to expire attempt while listing", "attempt_id", attempt.ID, "error", err)
			current = attempt
		}
		summaries = append(summaries, summarize(current))
	}

	return &AttemptListResponse{
		Attempts: summaries,
		Total:    total,
		Limit:    filters.Limit,
		Offset:   filters.Offset,
	}, nil
}
