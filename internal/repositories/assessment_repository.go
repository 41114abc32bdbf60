package repositories

import (
	"context"

	"github.com/SAP-F-2025/assessment-engine/internal/models"
)

// AssessmentRepository persists assessment definitions and their questions.
// Reads return snapshots with TotalPoints recomputed from the loaded questions.
type AssessmentRepository interface {
	Create(ctx context.Context, assessment *models.Assessment) error
	GetByID(ctx context.Context, id uint) (*models.Assessment, error)
	List(ctx context.Context, filters AssessmentFilters) ([]*models.Assessment, int64, error)

	// Update writes header and settings when assessment.Version matches the stored row,
	// then increments assessment.Version. Returns ErrVersionConflict otherwise.
	Update(ctx context.Context, assessment *models.Assessment) error
	Deactivate(ctx context.Context, id uint) error

	// Question operations
	CreateQuestion(ctx context.Context, question *models.Question) error
	UpdateQuestion(ctx context.Context, question *models.Question) error
	DeleteQuestion(ctx context.Context, assessmentID, questionID uint) error
}
