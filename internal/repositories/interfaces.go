package repositories

import (
	"time"

	"github.com/SAP-F-2025/assessment-engine/internal/models"
)

// ===== SHARED FILTER STRUCTS =====

type AssessmentFilters struct {
	Status      *models.AssessmentStatus `json:"status" form:"status"`
	Type        *models.AssessmentType   `json:"type" form:"type"`
	CreatedBy   *string                  `json:"created_by" form:"created_by"`
	Search      *string                  `json:"search" form:"search"`
	// AvailableAt keeps only assessments whose window contains the instant.
	AvailableAt *time.Time               `json:"available_at" form:"available_at"`
	Limit       int                      `json:"limit" form:"limit"`
	Offset      int                      `json:"offset" form:"offset"`
	SortBy      string                   `json:"sort_by" form:"sort_by"`       // "created_at", "title", "available_from"
	SortOrder   string                   `json:"sort_order" form:"sort_order"` // "asc", "desc"
}

type AttemptFilters struct {
	AssessmentID *uint                 `json:"assessment_id" form:"assessment_id"`
	StudentID    *string               `json:"student_id" form:"student_id"`
	Status       *models.AttemptStatus `json:"status" form:"status"`
	Limit        int                   `json:"limit" form:"limit"`
	Offset       int                   `json:"offset" form:"offset"`
	SortBy       string                `json:"sort_by" form:"sort_by"`       // "started_at", "score", "attempt_number"
	SortOrder    string                `json:"sort_order" form:"sort_order"` // "asc", "desc"
}

type UserFilters struct {
	Query  string // Search query for name or email
	Limit  int    // Page size
	Offset int    // Offset for pagination
}

// Sort whitelists shared by every store implementation.
var (
	AssessmentSortFields = map[string]bool{"created_at": true, "title": true, "available_from": true, "id": true}
	AttemptSortFields    = map[string]bool{"started_at": true, "score": true, "attempt_number": true, "id": true}
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// NormalizePage clamps limit/offset into the accepted range.
func NormalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
