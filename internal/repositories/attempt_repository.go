package repositories

import (
	"context"

	"github.com/SAP-F-2025/assessment-engine/internal/models"
)

// AttemptRepository persists attempts, their answers and manual scores.
type AttemptRepository interface {
	// Create returns ErrDuplicate when the student already has an in-progress
	// attempt or the attempt number is taken.
	Create(ctx context.Context, attempt *models.Attempt) error
	// GetByID loads the attempt with answers and manual scores.
	GetByID(ctx context.Context, id uint) (*models.Attempt, error)
	GetActive(ctx context.Context, assessmentID uint, studentID string) (*models.Attempt, error)
	List(ctx context.Context, filters AttemptFilters) ([]*models.Attempt, int64, error)

	CountByStudent(ctx context.Context, assessmentID uint, studentID string) (int64, error)
	HasAttempts(ctx context.Context, assessmentID uint) (bool, error)

	// UpdateWithVersion writes the attempt's scalar fields only if the stored version equals
	// attempt.Version, then increments attempt.Version. Returns ErrVersionConflict otherwise.
	UpdateWithVersion(ctx context.Context, attempt *models.Attempt) error

	UpsertAnswer(ctx context.Context, answer *models.Answer) error
	UpsertManualScore(ctx context.Context, score *models.ManualScore) error
}
