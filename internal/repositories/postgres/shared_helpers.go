package postgres

import (
	"strings"

	"gorm.io/gorm"

	"github.com/SAP-F-2025/assessment-engine/internal/models"
	"github.com/SAP-F-2025/assessment-engine/internal/repositories"
)

// SharedHelpers contains query building shared by the stores
type SharedHelpers struct {
	db *gorm.DB
}

func NewSharedHelpers(db *gorm.DB) *SharedHelpers {
	return &SharedHelpers{db: db}
}

// ApplyAssessmentFilters applies common filters to assessment queries
func (h *SharedHelpers) ApplyAssessmentFilters(query *gorm.DB, filters repositories.AssessmentFilters) *gorm.DB {
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if filters.Type != nil {
		query = query.Where("type = ?", *filters.Type)
	}
	if filters.CreatedBy != nil {
		query = query.Where("created_by = ?", *filters.CreatedBy)
	}
	if filters.Search != nil && strings.TrimSpace(*filters.Search) != "" {
		query = query.Where("title ILIKE ?", "%"+strings.TrimSpace(*filters.Search)+"%")
	}
	if filters.AvailableAt != nil {
		at := *filters.AvailableAt
		query = query.
			Where("status = ?", models.StatusActive).
			Where("available_from IS NULL OR available_from <= ?", at).
			Where("available_until IS NULL OR available_until >= ?", at)
	}
	return query
}

// ApplyAttemptFilters applies common filters to attempt queries
func (h *SharedHelpers) ApplyAttemptFilters(query *gorm.DB, filters repositories.AttemptFilters) *gorm.DB {
	if filters.AssessmentID != nil {
		query = query.Where("assessment_id = ?", *filters.AssessmentID)
	}
	if filters.StudentID != nil {
		query = query.Where("student_id = ?", *filters.StudentID)
	}
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	return query
}

// ApplyPaginationAndSort orders by a whitelisted column and clamps the page.
// id is always appended as a tiebreaker so pages are stable.
func (h *SharedHelpers) ApplyPaginationAndSort(query *gorm.DB, allowed map[string]bool, defaultSort, sortBy, sortOrder string, limit, offset int) *gorm.DB {
	if sortBy == "" || !allowed[sortBy] {
		sortBy = defaultSort
	}

	if strings.EqualFold(sortOrder, "asc") {
		sortOrder = "ASC"
	} else {
		sortOrder = "DESC"
	}

	query = query.Order(sortBy + " " + sortOrder)
	if sortBy != "id" {
		query = query.Order("id " + sortOrder)
	}

	limit, offset = repositories.NormalizePage(limit, offset)
	return query.Limit(limit).Offset(offset)
}
