package services

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/SAP-F-2025/assessment-engine/internal/events"
	"github.com/SAP-F-2025/assessment-engine/internal/models"
	"github.com/SAP-F-2025/assessment-engine/internal/repositories"
	"github.com/SAP-F-2025/assessment-engine/internal/validator"
)

// regradeConcurrency bounds how many attempts of one assessment are regraded at once.
const regradeConcurrency = 4

type gradingService struct {
	*lifecycle
}

func NewGradingService(deps Dependencies) GradingService {
	return &gradingService{lifecycle: newLifecycle(deps)}
}

// ===== MANUAL GRADING =====

func (s *gradingService) RecordManualScore(ctx context.Context, attemptID, questionID uint, req *models.ManualScoreRequest, actor Actor) (*ManualScoreResponse, error) {
	s.Logger.InfoContext(ctx, "Recording manual score",
		"attempt_id", attemptID,
		"question_id", questionID,
		"points", req.Points,
		"grader_id", actor.ID)

	if err := s.Validator.Struct(req); err != nil {
		return nil, err
	}

	attempt, assessment, err := s.loadForGrading(ctx, attemptID, actor, "score")
	if err != nil {
		return nil, err
	}

	q, _ := assessment.FindQuestion(questionID)
	if q == nil {
		return nil, ErrQuestionNotFound
	}
	if q.Type != models.Essay {
		return nil, validator.ValidationErrors{*validator.NewValidationError("question_id", "only essay questions are scored manually", questionID)}
	}
	if req.Points < 0 || req.Points > q.Points {
		return nil, validator.ValidationErrors{*validator.NewValidationError("points", fmt.Sprintf("must be between 0 and %g", q.Points), req.Points)}
	}

	attempt, err = s.expireIfDue(ctx, attempt, assessment)
	if err != nil {
		return nil, err
	}
	if attempt.Status == models.AttemptInProgress {
		return nil, ErrAttemptNotSubmitted
	}

	var becameGraded bool
	updated, err := s.mutateAttempt(ctx, attemptID, "manual_score", func(ctx context.Context, tx repositories.Repository, a *models.Attempt) (bool, error) {
		if a.Status == models.AttemptInProgress {
			return false, ErrAttemptNotSubmitted
		}

		now := s.now()
		score := &models.ManualScore{
			AttemptID:  a.ID,
			QuestionID: questionID,
			Points:     req.Points,
			GradedBy:   actor.ID,
			GradedAt:   now,
			Feedback:   req.Feedback,
		}
		if err := tx.Attempt().UpsertManualScore(ctx, score); err != nil {
			return false, fmt.Errorf("failed to save manual score: %w", err)
		}
		putManualScore(a, *score)

		wasGraded := a.Status == models.AttemptGraded
		s.applyGrade(a, assessment, now)
		becameGraded = !wasGraded && a.Status == models.AttemptGraded
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.InfoContext(ctx, "Manual score recorded",
		"attempt_id", attemptID,
		"question_id", questionID,
		"status", updated.Status,
		"grading_complete", updated.GradingComplete)

	events.Emit(ctx, s.Events, s.Logger, events.AttemptManualScored, events.ManualScoreEvent{
		AttemptID:  attemptID,
		QuestionID: questionID,
		Points:     req.Points,
		GradedBy:   actor.ID,
	})
	if becameGraded {
		events.Emit(ctx, s.Events, s.Logger, events.AttemptGraded, gradeEvent(updated))
	}

	return &ManualScoreResponse{
		AttemptID:       attemptID,
		QuestionID:      questionID,
		Points:          req.Points,
		Status:          updated.Status,
		GradingComplete: updated.GradingComplete,
		Score:           updated.Score,
		Passed:          updated.Passed,
	}, nil
}

// ===== REGRADING =====

func (s *gradingService) RegradeAttempt(ctx context.Context, attemptID uint, actor Actor) (*AttemptResult, error) {
	attempt, assessment, err := s.loadForGrading(ctx, attemptID, actor, "regrade")
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

	updated, _, err := s.regrade(ctx, attemptID, assessment)
	if err != nil {
		return nil, err
	}
	return s.buildResult(assessment, updated, actor, true), nil
}

func (s *gradingService) RegradeAssessment(ctx context.Context, assessmentID uint, actor Actor) (*RegradeSummary, error) {
	s.Logger.InfoContext(ctx, "Regrading assessment",
		"assessment_id", assessmentID,
		"triggered_by", actor.ID)

	assessment, err := s.loadAssessment(ctx, assessmentID)
	if err != nil {
		return nil, err
	}
	if !canManage(actor, assessment) {
		return nil, NewPermissionError(actor.ID, assessmentID, "assessment", "regrade", "not the assessment owner")
	}

	attempts, err := s.allAttempts(ctx, assessmentID)
	if err != nil {
		return nil, err
	}

	summary := &RegradeSummary{AssessmentID: assessmentID}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(regradeConcurrency)
	for _, attempt := range attempts {
		g.Go(func() error {
			outcome, err := s.regradeOne(gctx, attempt, assessment)
			if err != nil {
				return fmt.Errorf("attempt %d: %w", attempt.ID, err)
			}

			mu.Lock()
			defer mu.Unlock()
			switch outcome {
			case regradeChanged:
				summary.Regraded++
			case regradeUnchanged:
				summary.Unchanged++
			case regradeSkipped:
				summary.Skipped++
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	s.Logger.InfoContext(ctx, "Assessment regraded",
		"assessment_id", assessmentID,
		"regraded", summary.Regraded,
		"unchanged", summary.Unchanged,
		"skipped", summary.Skipped)

	events.Emit(ctx, s.Events, s.Logger, events.AssessmentRegraded, events.RegradeEvent{
		AssessmentID: assessmentID,
		Regraded:     summary.Regraded,
		TriggeredBy:  actor.ID,
	})
	return summary, nil
}

type regradeOutcome int

const (
	regradeUnchanged regradeOutcome = iota
	regradeChanged
	regradeSkipped
)

// regradeOne expires overdue attempts on the way; attempts still running are skipped.
func (s *gradingService) regradeOne(ctx context.Context, attempt *models.Attempt, assessment *models.Assessment) (regradeOutcome, error) {
	if attempt.Status == models.AttemptInProgress {
		current, err := s.expireIfDue(ctx, attempt, assessment)
		if err != nil {
			return regradeSkipped, err
		}
		if current.Status == models.AttemptInProgress {
			return regradeSkipped, nil
		}
		return regradeChanged, nil
	}

	_, changed, err := s.regrade(ctx, attempt.ID, assessment)
	if err != nil {
		return regradeUnchanged, err
	}
	if changed {
		return regradeChanged, nil
	}
	return regradeUnchanged, nil
}

// regrade reruns scoring against the current assessment and writes only when the outcome moved.
func (s *gradingService) regrade(ctx context.Context, attemptID uint, assessment *models.Assessment) (*models.Attempt, bool, error) {
	var changed, becameGraded bool
	updated, err := s.mutateAttempt(ctx, attemptID, "regrade", func(ctx context.Context, tx repositories.Repository, a *models.Attempt) (bool, error) {
		if a.Status == models.AttemptInProgress {
			return false, ErrAttemptNotSubmitted
		}
		wasGraded := a.Status == models.AttemptGraded
		changed = s.applyGrade(a, assessment, s.now())
		becameGraded = !wasGraded && a.Status == models.AttemptGraded
		return changed, nil
	})
	if err != nil {
		return nil, false, err
	}

	if changed {
		s.Logger.InfoContext(ctx, "Attempt regraded",
			"attempt_id", attemptID,
			"score", updated.Score,
			"passed", updated.Passed)
		if becameGraded {
			events.Emit(ctx, s.Events, s.Logger, events.AttemptGraded, gradeEvent(updated))
		}
	}
	return updated, changed, nil
}

// allAttempts pages through every attempt of an assessment in id order.
func (l *lifecycle) allAttempts(ctx context.Context, assessmentID uint) ([]*models.Attempt, error) {
	filters := repositories.AttemptFilters{
		AssessmentID: &assessmentID,
		Limit:        repositories.MaxPageSize,
		SortBy:       "id",
		SortOrder:    "asc",
	}

	var all []*models.Attempt
	for {
		batch, total, err := l.Repo.Attempt().List(ctx, filters)
		if err != nil {
			return nil, fmt.Errorf("failed to list attempts: %w", err)
		}
		all = append(all, batch...)
		filters.Offset += len(batch)
		if len(batch) == 0 || int64(filters.Offset) >= total {
			return all, nil
		}
	}
}

// loadForGrading restricts grading to the assessment owner or an admin.
func (s *gradingService) loadForGrading(ctx context.Context, attemptID uint, actor Actor, action string) (*models.Attempt, *models.Assessment, error) {
	attempt, err := s.loadAttempt(ctx, attemptID)
	if err != nil {
		return nil, nil, err
	}
	assessment, err := s.loadAssessment(ctx, attempt.AssessmentID)
	if err != nil {
		return nil, nil, err
	}
	if !canManage(actor, assessment) {
		return nil, nil, NewPermissionError(actor.ID, attemptID, "attempt", action, "not the assessment owner")
	}
	return attempt, assessment, nil
}

func putManualScore(a *models.Attempt, score models.ManualScore) {
	for i := range a.ManualScores {
		if a.ManualScores[i].QuestionID == score.QuestionID {
			a.ManualScores[i] = score
			return
		}
	}
	a.ManualScores = append(a.ManualScores, score)
}
