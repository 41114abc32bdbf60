package memory

import (
	"context"
	"sort"
	"time"

	"github.com/SAP-F-2025/assessment-engine/internal/models"
	"github.com/SAP-F-2025/assessment-engine/internal/repositories"
)

type attemptStore struct {
	db   *store
	inTx bool
}

func (s *attemptStore) Create(ctx context.Context, attempt *models.Attempt) error {
	defer s.db.exclusive(s.inTx)()
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	for _, existing := range s.db.t.Attempts {
		if existing.AssessmentID != attempt.AssessmentID || existing.StudentID != attempt.StudentID {
			continue
		}
		if existing.AttemptNumber == attempt.AttemptNumber {
			return repositories.ErrDuplicate
		}
		if existing.Status == models.AttemptInProgress && attempt.Status == models.AttemptInProgress {
			return repositories.ErrDuplicate
		}
	}

	now := time.Now()
	s.db.t.NextAttemptID++
	attempt.ID = s.db.t.NextAttemptID
	attempt.CreatedAt, attempt.UpdatedAt = now, now
	if attempt.Version == 0 {
		attempt.Version = 1
	}

	stored, err := clone(attempt)
	if err != nil {
		return err
	}
	stored.Answers, stored.ManualScores = nil, nil
	s.db.t.Attempts[attempt.ID] = stored
	return nil
}

func (s *attemptStore) GetByID(ctx context.Context, id uint) (*models.Attempt, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	return s.load(id)
}

// load assumes the read lock is held.
func (s *attemptStore) load(id uint) (*models.Attempt, error) {
	stored, ok := s.db.t.Attempts[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	out, err := clone(stored)
	if err != nil {
		return nil, err
	}

	for key, ans := range s.db.t.Answers {
		if key.AttemptID != id {
			continue
		}
		cp, err := clone(ans)
		if err != nil {
			return nil, err
		}
		out.Answers = append(out.Answers, *cp)
	}
	sort.Slice(out.Answers, func(i, j int) bool {
		return out.Answers[i].QuestionID < out.Answers[j].QuestionID
	})

	for key, ms := range s.db.t.ManualScores {
		if key.AttemptID != id {
			continue
		}
		cp, err := clone(ms)
		if err != nil {
			return nil, err
		}
		out.ManualScores = append(out.ManualScores, *cp)
	}
	sort.Slice(out.ManualScores, func(i, j int) bool {
		return out.ManualScores[i].QuestionID < out.ManualScores[j].QuestionID
	})
	return out, nil
}

func (s *attemptStore) GetActive(ctx context.Context, assessmentID uint, studentID string) (*models.Attempt, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	for id, a := range s.db.t.Attempts {
		if a.AssessmentID == assessmentID && a.StudentID == studentID && a.Status == models.AttemptInProgress {
			return s.load(id)
		}
	}
	return nil, repositories.ErrNotFound
}

func (s *attemptStore) List(ctx context.Context, filters repositories.AttemptFilters) ([]*models.Attempt, int64, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	var matched []*models.Attempt
	for _, a := range s.db.t.Attempts {
		if filters.AssessmentID != nil && a.AssessmentID != *filters.AssessmentID {
			continue
		}
		if filters.StudentID != nil && a.StudentID != *filters.StudentID {
			continue
		}
		if filters.Status != nil && a.Status != *filters.Status {
			continue
		}
		cp, err := clone(a)
		if err != nil {
			return nil, 0, err
		}
		matched = append(matched, cp)
	}

	sortAttempts(matched, filters.SortBy, filters.SortOrder)
	return page(matched, filters.Limit, filters.Offset), int64(len(matched)), nil
}

func sortAttempts(items []*models.Attempt, sortBy, order string) {
	if !repositories.AttemptSortFields[sortBy] {
		sortBy = "started_at"
	}
	desc := order != "asc"
	less := func(a, b *models.Attempt) bool {
		switch sortBy {
		case "score":
			if a.Score != b.Score {
				return a.Score < b.Score
			}
		case "attempt_number":
			if a.AttemptNumber != b.AttemptNumber {
				return a.AttemptNumber < b.AttemptNumber
			}
		case "started_at":
			if !a.StartedAt.Equal(b.StartedAt) {
				return a.StartedAt.Before(b.StartedAt)
			}
		}
		return a.ID < b.ID
	}
	sort.SliceStable(items, func(i, j int) bool {
		if desc {
			return less(items[j], items[i])
		}
		return less(items[i], items[j])
	})
}

func (s *attemptStore) CountByStudent(ctx context.Context, assessmentID uint, studentID string) (int64, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	var n int64
	for _, a := range s.db.t.Attempts {
		if a.AssessmentID == assessmentID && a.StudentID == studentID {
			n++
		}
	}
	return n, nil
}

func (s *attemptStore) HasAttempts(ctx context.Context, assessmentID uint) (bool, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	for _, a := range s.db.t.Attempts {
		if a.AssessmentID == assessmentID {
			return true, nil
		}
	}
	return false, nil
}

func (s *attemptStore) UpdateWithVersion(ctx context.Context, attempt *models.Attempt) error {
	defer s.db.exclusive(s.inTx)()
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	stored, ok := s.db.t.Attempts[attempt.ID]
	if !ok {
		return repositories.ErrNotFound
	}
	if stored.Version != attempt.Version {
		return repositories.ErrVersionConflict
	}

	next, err := clone(attempt)
	if err != nil {
		return err
	}
	next.Answers, next.ManualScores = nil, nil
	next.Version++
	next.UpdatedAt = time.Now()
	next.CreatedAt = stored.CreatedAt
	s.db.t.Attempts[attempt.ID] = next

	attempt.Version = next.Version
	attempt.UpdatedAt = next.UpdatedAt
	return nil
}

func (s *attemptStore) UpsertAnswer(ctx context.Context, answer *models.Answer) error {
	defer s.db.exclusive(s.inTx)()
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if _, ok := s.db.t.Attempts[answer.AttemptID]; !ok {
		return repositories.ErrNotFound
	}
	stored, err := clone(answer)
	if err != nil {
		return err
	}
	s.db.t.Answers[answerKey{AttemptID: answer.AttemptID, QuestionID: answer.QuestionID}] = stored
	return nil
}

func (s *attemptStore) UpsertManualScore(ctx context.Context, score *models.ManualScore) error {
	defer s.db.exclusive(s.inTx)()
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if _, ok := s.db.t.Attempts[score.AttemptID]; !ok {
		return repositories.ErrNotFound
	}
	stored, err := clone(score)
	if err != nil {
		return err
	}
	s.db.t.ManualScores[answerKey{AttemptID: score.AttemptID, QuestionID: score.QuestionID}] = stored
	return nil
}
