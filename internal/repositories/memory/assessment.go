package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/SAP-F-2025/assessment-engine/internal/models"
	"github.com/SAP-F-2025/assessment-engine/internal/repositories"
)

type assessmentStore struct {
	db   *store
	inTx bool
}

func (s *assessmentStore) Create(ctx context.Context, assessment *models.Assessment) error {
	defer s.db.exclusive(s.inTx)()
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	now := time.Now()
	s.db.t.NextAssessmentID++
	assessment.ID = s.db.t.NextAssessmentID
	if assessment.CreatedAt.IsZero() {
		assessment.CreatedAt = now
	}
	assessment.UpdatedAt = now
	if assessment.Version == 0 {
		assessment.Version = 1
	}
	if assessment.Status == "" {
		assessment.Status = models.StatusActive
	}

	for i := range assessment.Questions {
		q := &assessment.Questions[i]
		s.db.t.NextQuestionID++
		q.ID = s.db.t.NextQuestionID
		q.AssessmentID = assessment.ID
		if q.Order == 0 {
			q.Order = i + 1
		}
		q.CreatedAt, q.UpdatedAt = now, now
		stored, err := clone(q)
		if err != nil {
			return err
		}
		s.db.t.Questions[q.ID] = stored
	}

	header, err := clone(assessment)
	if err != nil {
		return err
	}
	header.Questions = nil
	s.db.t.Assessments[assessment.ID] = header
	assessment.RecomputeTotalPoints()
	return nil
}

func (s *assessmentStore) GetByID(ctx context.Context, id uint) (*models.Assessment, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	return s.load(id)
}

// load assumes the read lock is held.
func (s *assessmentStore) load(id uint) (*models.Assessment, error) {
	stored, ok := s.db.t.Assessments[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	out, err := clone(stored)
	if err != nil {
		return nil, err
	}

	for _, q := range s.db.t.Questions {
		if q.AssessmentID != id {
			continue
		}
		cp, err := clone(q)
		if err != nil {
			return nil, err
		}
		out.Questions = append(out.Questions, *cp)
	}
	sort.Slice(out.Questions, func(i, j int) bool {
		return out.Questions[i].Order < out.Questions[j].Order
	})
	out.RecomputeTotalPoints()
	return out, nil
}

func (s *assessmentStore) List(ctx context.Context, filters repositories.AssessmentFilters) ([]*models.Assessment, int64, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	var matched []*models.Assessment
	for id, a := range s.db.t.Assessments {
		if filters.Status != nil && a.Status != *filters.Status {
			continue
		}
		if filters.Type != nil && a.Type != *filters.Type {
			continue
		}
		if filters.CreatedBy != nil && a.CreatedBy != *filters.CreatedBy {
			continue
		}
		if filters.Search != nil && !strings.Contains(strings.ToLower(a.Title), strings.ToLower(*filters.Search)) {
			continue
		}
		if filters.AvailableAt != nil && !a.IsAvailableAt(*filters.AvailableAt) {
			continue
		}
		full, err := s.load(id)
		if err != nil {
			return nil, 0, err
		}
		matched = append(matched, full)
	}

	sortAssessments(matched, filters.SortBy, filters.SortOrder)
	return page(matched, filters.Limit, filters.Offset), int64(len(matched)), nil
}

func sortAssessments(items []*models.Assessment, sortBy, order string) {
	if !repositories.AssessmentSortFields[sortBy] {
		sortBy = "created_at"
	}
	desc := order != "asc"
	less := func(a, b *models.Assessment) bool {
		switch sortBy {
		case "title":
			return a.Title < b.Title
		case "available_from":
			return timeOrZero(a.AvailableFrom).Before(timeOrZero(b.AvailableFrom))
		case "id":
			return a.ID < b.ID
		}
		if a.CreatedAt.Equal(b.CreatedAt) {
			return a.ID < b.ID
		}
		return a.CreatedAt.Before(b.CreatedAt)
	}
	sort.SliceStable(items, func(i, j int) bool {
		if desc {
			return less(items[j], items[i])
		}
		return less(items[i], items[j])
	})
}

func timeOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

func (s *assessmentStore) Update(ctx context.Context, assessment *models.Assessment) error {
	defer s.db.exclusive(s.inTx)()
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	stored, ok := s.db.t.Assessments[assessment.ID]
	if !ok {
		return repositories.ErrNotFound
	}
	if stored.Version != assessment.Version {
		return repositories.ErrVersionConflict
	}

	assessment.Version++
	assessment.UpdatedAt = time.Now()
	header, err := clone(assessment)
	if err != nil {
		assessment.Version--
		return err
	}
	header.Questions = nil
	header.CreatedAt = stored.CreatedAt
	header.CreatedBy = stored.CreatedBy
	s.db.t.Assessments[assessment.ID] = header
	return nil
}

func (s *assessmentStore) Deactivate(ctx context.Context, id uint) error {
	defer s.db.exclusive(s.inTx)()
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	stored, ok := s.db.t.Assessments[id]
	if !ok {
		return repositories.ErrNotFound
	}
	now := time.Now()
	stored.Status = models.StatusInactive
	stored.DeactivatedAt = &now
	stored.UpdatedAt = now
	stored.Version++
	return nil
}

func (s *assessmentStore) CreateQuestion(ctx context.Context, question *models.Question) error {
	defer s.db.exclusive(s.inTx)()
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if _, ok := s.db.t.Assessments[question.AssessmentID]; !ok {
		return repositories.ErrNotFound
	}
	if question.Order == 0 {
		question.Order = s.nextOrder(question.AssessmentID)
	}
	now := time.Now()
	s.db.t.NextQuestionID++
	question.ID = s.db.t.NextQuestionID
	question.CreatedAt, question.UpdatedAt = now, now

	stored, err := clone(question)
	if err != nil {
		return err
	}
	s.db.t.Questions[question.ID] = stored
	return nil
}

func (s *assessmentStore) nextOrder(assessmentID uint) int {
	last := 0
	for _, q := range s.db.t.Questions {
		if q.AssessmentID == assessmentID && q.Order > last {
			last = q.Order
		}
	}
	return last + 1
}

func (s *assessmentStore) UpdateQuestion(ctx context.Context, question *models.Question) error {
	defer s.db.exclusive(s.inTx)()
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	existing, ok := s.db.t.Questions[question.ID]
	if !ok || existing.AssessmentID != question.AssessmentID {
		return repositories.ErrNotFound
	}
	question.Order = existing.Order
	question.CreatedAt = existing.CreatedAt
	question.UpdatedAt = time.Now()

	stored, err := clone(question)
	if err != nil {
		return err
	}
	s.db.t.Questions[question.ID] = stored
	return nil
}

func (s *assessmentStore) DeleteQuestion(ctx context.Context, assessmentID, questionID uint) error {
	defer s.db.exclusive(s.inTx)()
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	existing, ok := s.db.t.Questions[questionID]
	if !ok || existing.AssessmentID != assessmentID {
		return repositories.ErrNotFound
	}
	delete(s.db.t.Questions, questionID)
	for _, q := range s.db.t.Questions {
		if q.AssessmentID == assessmentID && q.Order > existing.Order {
			q.Order--
		}
	}
	return nil
}
