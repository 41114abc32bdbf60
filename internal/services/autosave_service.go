package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"gorm.io/datatypes"

	"github.com/SAP-F-2025/assessment-engine/internal/models"
	"github.com/SAP-F-2025/assessment-engine/internal/repositories"
)

type autoSaveService struct {
	*lifecycle
}

func NewAutoSaveService(deps Dependencies) AutoSaveService {
	return &autoSaveService{lifecycle: newLifecycle(deps)}
}

// RecordAnswer overwrites the saved answer for one question. Replaying the
// stored value is acknowledged without a write.
func (s *autoSaveService) RecordAnswer(ctx context.Context, attemptID, questionID uint, value models.AnswerValue, actor Actor) (*AnswerAck, error) {
	attempt, assessment, err := s.loadForActor(ctx, attemptID, actor, "answer", false)
	if err != nil {
		return nil, err
	}

	attempt, err = s.expireIfDue(ctx, attempt, assessment)
	if err != nil {
		return nil, err
	}
	if err := acceptingAnswers(attempt); err != nil {
		return nil, err
	}

	q, _ := assessment.FindQuestion(questionID)
	if q == nil {
		return nil, ErrQuestionNotFound
	}
	if verrs := s.Validator.ValidateAnswer(q, value); len(verrs) > 0 {
		return nil, verrs
	}

	page := s.Shuffle.PageIndex(assessment, attempt)[questionID]

	var (
		unchanged bool
		savedAt   time.Time
	)
	updated, err := s.mutateAttempt(ctx, attemptID, "record_answer", func(ctx context.Context, tx repositories.Repository, a *models.Attempt) (bool, error) {
		if err := acceptingAnswers(a); err != nil {
			return false, err
		}
		now := s.now()
		if a.IsPastDeadline(now) {
			return false, ErrAttemptExpired
		}
		if !assessment.Settings.AllowBacktrack && page < a.FurthestPage {
			return false, rejectAnswer("backtracking is disabled for this assessment")
		}

		if prev, ok := savedAnswer(a, questionID); ok && sameAnswer(prev.Value.Data(), value) && page <= a.FurthestPage {
			unchanged, savedAt = true, prev.SavedAt
			return false, nil
		}

		answer := &models.Answer{
			AttemptID:  a.ID,
			QuestionID: questionID,
			Value:      datatypes.NewJSONType(value),
			SavedAt:    now,
		}
		if err := tx.Attempt().UpsertAnswer(ctx, answer); err != nil {
			return false, fmt.Errorf("failed to save answer: %w", err)
		}
		putAnswer(a, *answer)
		if page > a.FurthestPage {
			a.FurthestPage = page
		}
		unchanged, savedAt = false, now
		return true, nil
	})
	if errors.Is(err, ErrAttemptExpired) {
		if _, expErr := s.finish(ctx, attemptID, assessment, models.AttemptExpired); expErr != nil {
			s.Logger.ErrorContext(ctx, "Failed to expire attempt", "attempt_id", attemptID, "error", expErr)
		}
		return nil, ErrAttemptExpired
	}
	if err != nil {
		return nil, err
	}

	if !unchanged {
		s.Metrics.AnswersRecorded.Inc()
	}
	s.Logger.DebugContext(ctx, "Answer recorded",
		"attempt_id", attemptID,
		"question_id", questionID,
		"page", page,
		"unchanged", unchanged)

	return &AnswerAck{
		AttemptID:        attemptID,
		QuestionID:       questionID,
		SavedAt:          savedAt,
		Unchanged:        unchanged,
		FurthestPage:     updated.FurthestPage,
		RemainingSeconds: s.remainingSeconds(updated),
		Version:          updated.Version,
	}, nil
}

// acceptingAnswers maps a finished attempt to the error a late write should see.
func acceptingAnswers(a *models.Attempt) error {
	switch {
	case a.Status == models.AttemptInProgress:
		return nil
	case endedByExpiry(a):
		return ErrAttemptExpired
	default:
		return rejectAnswer("attempt is no longer active")
	}
}

func savedAnswer(a *models.Attempt, questionID uint) (models.Answer, bool) {
	for _, ans := range a.Answers {
		if ans.QuestionID == questionID {
			return ans, true
		}
	}
	return models.Answer{}, false
}

func putAnswer(a *models.Attempt, answer models.Answer) {
	for i := range a.Answers {
		if a.Answers[i].QuestionID == answer.QuestionID {
			a.Answers[i] = answer
			return
		}
	}
	a.Answers = append(a.Answers, answer)
}

// sameAnswer treats selections as sets, matching how they are graded.
func sameAnswer(a, b models.AnswerValue) bool {
	if (a.Text == nil) != (b.Text == nil) {
		return false
	}
	if a.Text != nil && *a.Text != *b.Text {
		return false
	}
	return slices.Equal(selectionSet(a.Selected), selectionSet(b.Selected))
}

func selectionSet(in []int) []int {
	out := slices.Clone(in)
	slices.Sort(out)
	return slices.Compact(out)
}
