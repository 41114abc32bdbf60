package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"github.com/SAP-F-2025/assessment-engine/internal/events"
	"github.com/SAP-F-2025/assessment-engine/internal/metrics"
	"github.com/SAP-F-2025/assessment-engine/internal/models"
	"github.com/SAP-F-2025/assessment-engine/internal/repositories"
	"github.com/SAP-F-2025/assessment-engine/internal/scoring"
	"github.com/SAP-F-2025/assessment-engine/internal/shuffle"
	"github.com/SAP-F-2025/assessment-engine/internal/validator"
)

const defaultMaxRetries = 3

// Dependencies are shared by every service. Zero values are replaced by defaults.
type Dependencies struct {
	Repo      repositories.Repository
	Logger    *slog.Logger
	Validator *validator.Validator
	Events    events.EventPublisher
	Metrics   *metrics.Metrics
	Shuffle   *shuffle.Service
	Scoring   *scoring.Engine

	// MaxRetries bounds version-conflict retries of one attempt write.
	MaxRetries int
	Now        func() time.Time
}

func (d Dependencies) withDefaults() Dependencies {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Validator == nil {
		d.Validator = validator.New()
	}
	if d.Metrics == nil {
		d.Metrics = metrics.New()
	}
	if d.Shuffle == nil {
		d.Shuffle = shuffle.NewService()
	}
	if d.Scoring == nil {
		d.Scoring = scoring.NewEngine()
	}
	if d.MaxRetries <= 0 {
		d.MaxRetries = defaultMaxRetries
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

// lifecycle holds the dependencies and the attempt state machine every service builds on.
type lifecycle struct {
	Dependencies
}

func newLifecycle(deps Dependencies) *lifecycle {
	return &lifecycle{Dependencies: deps.withDefaults()}
}

func (l *lifecycle) now() time.Time {
	return l.Now().UTC()
}

// mutation inspects and edits a freshly loaded attempt inside a transaction.
// Returning write=false leaves the stored attempt untouched.
type mutation func(ctx context.Context, tx repositories.Repository, attempt *models.Attempt) (write bool, err error)

// mutateAttempt reloads the attempt and reapplies fn until the version CAS
// succeeds. Each try runs in its own transaction so side writes made by fn
// roll back with a failed CAS.
func (l *lifecycle) mutateAttempt(ctx context.Context, attemptID uint, op string, fn mutation) (*models.Attempt, error) {
	for try := 0; ; try++ {
		var result *models.Attempt
		err := l.Repo.WithTransaction(ctx, func(tx repositories.Repository) error {
			attempt, err := tx.Attempt().GetByID(ctx, attemptID)
			if err != nil {
				if repositories.IsNotFoundError(err) {
					return ErrAttemptNotFound
				}
				return fmt.Errorf("failed to load attempt: %w", err)
			}

			write, err := fn(ctx, tx, attempt)
			if err != nil {
				return err
			}
			if write {
				if err := tx.Attempt().UpdateWithVersion(ctx, attempt); err != nil {
					return err
				}
			}
			result = attempt
			return nil
		})
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, repositories.ErrVersionConflict) {
			return nil, err
		}

		l.Metrics.OptimisticConflicts.WithLabelValues(op).Inc()
		if try >= l.MaxRetries {
			l.Logger.WarnContext(ctx, "Attempt update retries exhausted",
				"attempt_id", attemptID,
				"operation", op,
				"retries", try)
			return nil, ErrConcurrentUpdate
		}
		l.Logger.DebugContext(ctx, "Retrying attempt update after version conflict",
			"attempt_id", attemptID,
			"operation", op,
			"try", try+1)
	}
}

func (l *lifecycle) loadAssessment(ctx context.Context, id uint) (*models.Assessment, error) {
	assessment, err := l.Repo.Assessment().GetByID(ctx, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAssessmentNotFound
		}
		return nil, fmt.Errorf("failed to get assessment: %w", err)
	}
	return assessment, nil
}

func (l *lifecycle) loadAttempt(ctx context.Context, id uint) (*models.Attempt, error) {
	attempt, err := l.Repo.Attempt().GetByID(ctx, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}
	return attempt, nil
}

// loadForActor loads an attempt and its assessment, enforcing that students only
// touch their own attempts. Staff may read any attempt when allowStaff is set.
func (l *lifecycle) loadForActor(ctx context.Context, attemptID uint, actor Actor, action string, allowStaff bool) (*models.Attempt, *models.Assessment, error) {
	attempt, err := l.loadAttempt(ctx, attemptID)
	if err != nil {
		return nil, nil, err
	}
	if attempt.StudentID != actor.ID && !(allowStaff && actor.IsStaff()) {
		return nil, nil, NewPermissionError(actor.ID, attemptID, "attempt", action, "not owned by user")
	}

	assessment, err := l.loadAssessment(ctx, attempt.AssessmentID)
	if err != nil {
		return nil, nil, err
	}
	return attempt, assessment, nil
}

// expireIfDue converts an in-progress attempt past its deadline to expired and grades it.
func (l *lifecycle) expireIfDue(ctx context.Context, attempt *models.Attempt, assessment *models.Assessment) (*models.Attempt, error) {
	if attempt.Status != models.AttemptInProgress || !attempt.IsPastDeadline(l.now()) {
		return attempt, nil
	}
	return l.finish(ctx, attempt.ID, assessment, models.AttemptExpired)
}

// finish moves an in-progress attempt to expired or submitted and grades it.
// An attempt another request already finished is returned as stored.
func (l *lifecycle) finish(ctx context.Context, attemptID uint, assessment *models.Assessment, to models.AttemptStatus) (*models.Attempt, error) {
	var transitioned bool
	attempt, err := l.mutateAttempt(ctx, attemptID, "finish", func(ctx context.Context, tx repositories.Repository, a *models.Attempt) (bool, error) {
		transitioned = false
		if a.Status != models.AttemptInProgress {
			return false, nil
		}

		now := l.now()
		switch to {
		case models.AttemptSubmitted:
			if a.IsPastDeadline(now) {
				return false, ErrAttemptExpired
			}
			a.SubmittedAt = &now
		case models.AttemptExpired:
			if !a.IsPastDeadline(now) {
				return false, nil
			}
		}

		a.Status = to
		l.applyGrade(a, assessment, now)
		transitioned = true
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if !transitioned {
		return attempt, nil
	}

	l.Metrics.AttemptsFinished.WithLabelValues(string(to)).Inc()
	l.Logger.InfoContext(ctx, "Attempt finished",
		"attempt_id", attempt.ID,
		"assessment_id", attempt.AssessmentID,
		"student_id", attempt.StudentID,
		"status", to,
		"grading_complete", attempt.GradingComplete)

	eventType := events.AttemptSubmitted
	if to == models.AttemptExpired {
		eventType = events.AttemptExpired
	}
	events.Emit(ctx, l.Events, l.Logger, eventType, attemptEvent(attempt, to))
	if attempt.Status == models.AttemptGraded {
		events.Emit(ctx, l.Events, l.Logger, events.AttemptGraded, gradeEvent(attempt))
	}
	return attempt, nil
}

// applyGrade stores a fresh grading of attempt and promotes it to graded once no
// manual score is pending. It reports whether anything visible changed.
func (l *lifecycle) applyGrade(attempt *models.Attempt, assessment *models.Assessment, now time.Time) bool {
	start := time.Now()
	res := l.Scoring.Grade(assessment, attempt)
	l.Metrics.ObserveGrading(start)

	before := gradeSnapshot(attempt)

	attempt.Score = res.Score
	attempt.TotalPoints = res.TotalPoints
	attempt.Percentage = res.Percentage
	attempt.Passed = res.Complete() && res.Passed
	attempt.GradingComplete = res.Complete()
	attempt.Results = res.Questions

	if attempt.GradingComplete && attempt.Status.CanTransitionTo(models.AttemptGraded) {
		attempt.Status = models.AttemptGraded
	}

	changed := !reflect.DeepEqual(before, gradeSnapshot(attempt))
	if changed && attempt.Status == models.AttemptGraded {
		attempt.GradedAt = &now
	}
	return changed
}

type gradeState struct {
	Status     models.AttemptStatus
	Score      float64
	Total      float64
	Percentage float64
	Passed     bool
	Complete   bool
	Results    []models.QuestionResult
}

func gradeSnapshot(a *models.Attempt) gradeState {
	results := []models.QuestionResult(a.Results)
	if len(results) == 0 {
		results = nil
	}
	return gradeState{
		Status:     a.Status,
		Score:      a.Score,
		Total:      a.TotalPoints,
		Percentage: a.Percentage,
		Passed:     a.Passed,
		Complete:   a.GradingComplete,
		Results:    results,
	}
}

// remainingSeconds is zero once the deadline has passed.
func (l *lifecycle) remainingSeconds(attempt *models.Attempt) int {
	if attempt.Status != models.AttemptInProgress {
		return 0
	}
	left := attempt.ExpiresAt.Sub(l.now())
	if left <= 0 {
		return 0
	}
	return int(left.Round(time.Second) / time.Second)
}

// endedByExpiry reports whether the attempt stopped at its deadline rather than by submission.
func endedByExpiry(a *models.Attempt) bool {
	return a.Status == models.AttemptExpired || (a.Status == models.AttemptGraded && a.SubmittedAt == nil)
}

func attemptEvent(a *models.Attempt, status models.AttemptStatus) events.AttemptEvent {
	occurred := a.UpdatedAt
	if occurred.IsZero() {
		occurred = time.Now().UTC()
	}
	return events.AttemptEvent{
		AttemptID:     a.ID,
		AssessmentID:  a.AssessmentID,
		StudentID:     a.StudentID,
		AttemptNumber: a.AttemptNumber,
		Status:        string(status),
		OccurredAt:    occurred,
	}
}

func gradeEvent(a *models.Attempt) events.GradeEvent {
	return events.GradeEvent{
		AttemptEvent:    attemptEvent(a, a.Status),
		Score:           a.Score,
		TotalPoints:     a.TotalPoints,
		Percentage:      a.Percentage,
		Passed:          a.Passed,
		GradingComplete: a.GradingComplete,
	}
}
