package postgres

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/SAP-F-2025/assessment-engine/internal/models"
	"github.com/SAP-F-2025/assessment-engine/internal/repositories"
)

// AttemptPostgreSQL stores attempts uncached: every write is a version CAS and
// readers must observe the latest row.
type AttemptPostgreSQL struct {
	db      *gorm.DB
	helpers *SharedHelpers
}

func NewAttemptPostgreSQL(db *gorm.DB) *AttemptPostgreSQL {
	return &AttemptPostgreSQL{
		db:      db,
		helpers: NewSharedHelpers(db),
	}
}

// Create relies on the partial unique index over in-progress attempts; a
// concurrent start surfaces as ErrDuplicate.
func (a *AttemptPostgreSQL) Create(ctx context.Context, attempt *models.Attempt) error {
	if attempt.Version == 0 {
		attempt.Version = 1
	}
	if err := a.db.WithContext(ctx).Omit(clause.Associations).Create(attempt).Error; err != nil {
		return fmt.Errorf("failed to create attempt: %w", translate(err))
	}
	return nil
}

func (a *AttemptPostgreSQL) GetByID(ctx context.Context, id uint) (*models.Attempt, error) {
	var attempt models.Attempt
	err := a.withDetails(a.db.WithContext(ctx)).First(&attempt, id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &attempt, nil
}

func (a *AttemptPostgreSQL) GetActive(ctx context.Context, assessmentID uint, studentID string) (*models.Attempt, error) {
	var attempt models.Attempt
	err := a.withDetails(a.db.WithContext(ctx)).
		Where("assessment_id = ? AND student_id = ? AND status = ?", assessmentID, studentID, models.AttemptInProgress).
		First(&attempt).Error
	if err != nil {
		return nil, translate(err)
	}
	return &attempt, nil
}

func (a *AttemptPostgreSQL) withDetails(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Answers", func(db *gorm.DB) *gorm.DB {
			return db.Order("question_id ASC")
		}).
		Preload("ManualScores", func(db *gorm.DB) *gorm.DB {
			return db.Order("question_id ASC")
		})
}

// List retrieves attempts with filters and pagination. Answers are not loaded.
func (a *AttemptPostgreSQL) List(ctx context.Context, filters repositories.AttemptFilters) ([]*models.Attempt, int64, error) {
	query := a.helpers.ApplyAttemptFilters(a.db.WithContext(ctx).Model(&models.Attempt{}), filters)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count attempts: %w", err)
	}

	query = a.helpers.ApplyPaginationAndSort(query, repositories.AttemptSortFields, "started_at",
		filters.SortBy, filters.SortOrder, filters.Limit, filters.Offset)

	var attempts []*models.Attempt
	if err := query.Find(&attempts).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list attempts: %w", err)
	}
	return attempts, total, nil
}

func (a *AttemptPostgreSQL) CountByStudent(ctx context.Context, assessmentID uint, studentID string) (int64, error) {
	var count int64
	err := a.db.WithContext(ctx).
		Model(&models.Attempt{}).
		Where("assessment_id = ? AND student_id = ?", assessmentID, studentID).
		Count(&count).Error
	return count, err
}

func (a *AttemptPostgreSQL) HasAttempts(ctx context.Context, assessmentID uint) (bool, error) {
	var found []uint
	err := a.db.WithContext(ctx).
		Model(&models.Attempt{}).
		Where("assessment_id = ?", assessmentID).
		Limit(1).
		Pluck("id", &found).Error
	if err != nil {
		return false, fmt.Errorf("failed to check attempts: %w", err)
	}
	return len(found) > 0, nil
}

// UpdateWithVersion writes status, timing, progress and grading columns in one
// conditional UPDATE and bumps version.
func (a *AttemptPostgreSQL) UpdateWithVersion(ctx context.Context, attempt *models.Attempt) error {
	now := time.Now()
	result := a.db.WithContext(ctx).
		Model(&models.Attempt{}).
		Where("id = ? AND version = ?", attempt.ID, attempt.Version).
		Updates(map[string]interface{}{
			"status":           attempt.Status,
			"submitted_at":     attempt.SubmittedAt,
			"graded_at":        attempt.GradedAt,
			"furthest_page":    attempt.FurthestPage,
			"score":            attempt.Score,
			"total_points":     attempt.TotalPoints,
			"percentage":       attempt.Percentage,
			"passed":           attempt.Passed,
			"grading_complete": attempt.GradingComplete,
			"results":          attempt.Results,
			"version":          attempt.Version + 1,
			"updated_at":       now,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update attempt: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := a.db.WithContext(ctx).Model(&models.Attempt{}).Where("id = ?", attempt.ID).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to check attempt: %w", err)
		}
		if count == 0 {
			return repositories.ErrNotFound
		}
		return repositories.ErrVersionConflict
	}

	attempt.Version++
	attempt.UpdatedAt = now
	return nil
}

func (a *AttemptPostgreSQL) UpsertAnswer(ctx context.Context, answer *models.Answer) error {
	err := a.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "attempt_id"}, {Name: "question_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "saved_at"}),
		}).
		Create(answer).Error
	if err != nil {
		return fmt.Errorf("failed to save answer: %w", translate(err))
	}
	return nil
}

func (a *AttemptPostgreSQL) UpsertManualScore(ctx context.Context, score *models.ManualScore) error {
	err := a.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "attempt_id"}, {Name: "question_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"points", "graded_by", "graded_at", "feedback"}),
		}).
		Create(score).Error
	if err != nil {
		return fmt.Errorf("failed to save manual score: %w", translate(err))
	}
	return nil
}
