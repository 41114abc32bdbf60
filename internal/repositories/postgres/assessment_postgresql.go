package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/SAP-F-2025/assessment-engine/internal/cache"
	"github.com/SAP-F-2025/assessment-engine/internal/models"
	"github.com/SAP-F-2025/assessment-engine/internal/repositories"
)

type AssessmentPostgreSQL struct {
	db           *gorm.DB
	helpers      *SharedHelpers
	cacheManager *cache.CacheManager
	invalidate   func(ctx context.Context, id uint)
}

func NewAssessmentPostgreSQL(db *gorm.DB, cacheManager *cache.CacheManager) *AssessmentPostgreSQL {
	return &AssessmentPostgreSQL{
		db:           db,
		helpers:      NewSharedHelpers(db),
		cacheManager: cacheManager,
		invalidate: func(ctx context.Context, id uint) {
			cache.InvalidateAssessmentCache(ctx, cacheManager, id)
		},
	}
}

// Create inserts the assessment together with its questions.
func (a *AssessmentPostgreSQL) Create(ctx context.Context, assessment *models.Assessment) error {
	for i := range assessment.Questions {
		if assessment.Questions[i].Order == 0 {
			assessment.Questions[i].Order = i + 1
		}
	}
	if err := a.db.WithContext(ctx).Create(assessment).Error; err != nil {
		return fmt.Errorf("failed to create assessment: %w", translate(err))
	}
	assessment.RecomputeTotalPoints()
	return nil
}

// GetByID retrieves an assessment with its ordered questions, through the cache.
func (a *AssessmentPostgreSQL) GetByID(ctx context.Context, id uint) (*models.Assessment, error) {
	var assessment models.Assessment
	err := a.cacheManager.Assessment.CacheOrExecute(ctx, cache.AssessmentKey(id), &assessment, cache.AssessmentCacheConfig.TTL, func() (interface{}, error) {
		return a.load(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	assessment.RecomputeTotalPoints()
	return &assessment, nil
}

func (a *AssessmentPostgreSQL) load(ctx context.Context, id uint) (*models.Assessment, error) {
	var assessment models.Assessment
	err := a.db.WithContext(ctx).
		Preload("Questions", func(db *gorm.DB) *gorm.DB {
			return db.Order(`"order" ASC`).Order("id ASC")
		}).
		First(&assessment, id).Error
	if err != nil {
		return nil, translate(err)
	}
	assessment.RecomputeTotalPoints()
	return &assessment, nil
}

// List retrieves assessments with filters and pagination
func (a *AssessmentPostgreSQL) List(ctx context.Context, filters repositories.AssessmentFilters) ([]*models.Assessment, int64, error) {
	query := a.helpers.ApplyAssessmentFilters(a.db.WithContext(ctx).Model(&models.Assessment{}), filters)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count assessments: %w", err)
	}

	query = a.helpers.ApplyPaginationAndSort(query, repositories.AssessmentSortFields, "created_at",
		filters.SortBy, filters.SortOrder, filters.Limit, filters.Offset)

	var assessments []*models.Assessment
	err := query.
		Preload("Questions", func(db *gorm.DB) *gorm.DB {
			return db.Order(`"order" ASC`)
		}).
		Find(&assessments).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list assessments: %w", err)
	}
	for _, item := range assessments {
		item.RecomputeTotalPoints()
	}
	return assessments, total, nil
}

// Update is a compare-and-swap on version. Questions are written through the question methods.
func (a *AssessmentPostgreSQL) Update(ctx context.Context, assessment *models.Assessment) error {
	now := time.Now()
	s := assessment.Settings
	result := a.db.WithContext(ctx).
		Model(&models.Assessment{}).
		Where("id = ? AND version = ?", assessment.ID, assessment.Version).
		Updates(map[string]interface{}{
			"title":                            assessment.Title,
			"instructions":                     assessment.Instructions,
			"type":                             assessment.Type,
			"status":                           assessment.Status,
			"duration_minutes":                 assessment.DurationMinutes,
			"max_attempts":                     assessment.MaxAttempts,
			"passing_score":                    assessment.PassingScore,
			"available_from":                   assessment.AvailableFrom,
			"available_until":                  assessment.AvailableUntil,
			"setting_shuffle_questions":        s.ShuffleQuestions,
			"setting_shuffle_options":          s.ShuffleOptions,
			"setting_show_results_immediately": s.ShowResultsImmediately,
			"setting_show_correct_answers":     s.ShowCorrectAnswers,
			"setting_allow_backtrack":          s.AllowBacktrack,
			"setting_question_per_page":        s.QuestionPerPage,
			"version":                          assessment.Version + 1,
			"updated_at":                       now,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update assessment: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return a.missOrConflict(ctx, assessment.ID)
	}

	assessment.Version++
	assessment.UpdatedAt = now
	a.invalidate(ctx, assessment.ID)
	return nil
}

func (a *AssessmentPostgreSQL) missOrConflict(ctx context.Context, id uint) error {
	var count int64
	if err := a.db.WithContext(ctx).Model(&models.Assessment{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check assessment: %w", err)
	}
	if count == 0 {
		return repositories.ErrNotFound
	}
	return repositories.ErrVersionConflict
}

// Deactivate is a soft delete: the row and its attempts stay for reporting.
func (a *AssessmentPostgreSQL) Deactivate(ctx context.Context, id uint) error {
	now := time.Now()
	result := a.db.WithContext(ctx).
		Model(&models.Assessment{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":         models.StatusInactive,
			"deactivated_at": now,
			"version":        gorm.Expr("version + 1"),
			"updated_at":     now,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to deactivate assessment: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return repositories.ErrNotFound
	}
	a.invalidate(ctx, id)
	return nil
}

// CreateQuestion appends the question after the current last one unless Order is set.
func (a *AssessmentPostgreSQL) CreateQuestion(ctx context.Context, question *models.Question) error {
	db := a.db.WithContext(ctx)

	var exists int64
	if err := db.Model(&models.Assessment{}).Where("id = ?", question.AssessmentID).Count(&exists).Error; err != nil {
		return fmt.Errorf("failed to check assessment: %w", err)
	}
	if exists == 0 {
		return repositories.ErrNotFound
	}

	if question.Order == 0 {
		var last int
		err := db.Model(&models.Question{}).
			Where("assessment_id = ?", question.AssessmentID).
			Select(`COALESCE(MAX("order"), 0)`).
			Scan(&last).Error
		if err != nil {
			return fmt.Errorf("failed to compute question order: %w", err)
		}
		question.Order = last + 1
	}

	if err := db.Create(question).Error; err != nil {
		return fmt.Errorf("failed to create question: %w", translate(err))
	}
	a.invalidate(ctx, question.AssessmentID)
	return nil
}

// UpdateQuestion replaces question content; order and creation time are preserved.
func (a *AssessmentPostgreSQL) UpdateQuestion(ctx context.Context, question *models.Question) error {
	now := time.Now()
	result := a.db.WithContext(ctx).
		Model(&models.Question{}).
		Where("id = ? AND assessment_id = ?", question.ID, question.AssessmentID).
		Updates(map[string]interface{}{
			"type":               question.Type,
			"text":               question.Text,
			"points":             question.Points,
			"time_limit_seconds": question.TimeLimitSeconds,
			"explanation":        question.Explanation,
			"options":            question.Options,
			"max_words":          question.MaxWords,
			"expected_keywords":  question.ExpectedKeywords,
			"case_sensitive":     question.CaseSensitive,
			"updated_at":         now,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update question: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return repositories.ErrNotFound
	}
	question.UpdatedAt = now
	a.invalidate(ctx, question.AssessmentID)
	return nil
}

// DeleteQuestion removes the question and shifts later questions up by one.
func (a *AssessmentPostgreSQL) DeleteQuestion(ctx context.Context, assessmentID, questionID uint) error {
	db := a.db.WithContext(ctx)

	var question models.Question
	if err := db.Where("id = ? AND assessment_id = ?", questionID, assessmentID).First(&question).Error; err != nil {
		return translate(err)
	}
	if err := db.Delete(&models.Question{}, questionID).Error; err != nil {
		return fmt.Errorf("failed to delete question: %w", err)
	}
	err := db.Model(&models.Question{}).
		Where(`assessment_id = ? AND "order" > ?`, assessmentID, question.Order).
		Update("order", gorm.Expr(`"order" - 1`)).Error
	if err != nil {
		return fmt.Errorf("failed to reorder questions: %w", err)
	}
	a.invalidate(ctx, assessmentID)
	return nil
}

// translate maps gorm errors onto the repository sentinels.
func translate(err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return repositories.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return repositories.ErrDuplicate
	}
	return err
}
