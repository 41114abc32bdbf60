package services

import (
	"strings"

	"github.com/SAP-F-2025/assessment-engine/internal/models"
	"github.com/SAP-F-2025/assessment-engine/internal/validator"
)

// ===== PERMISSION CHECKS =====

// canManage reports whether actor may author or grade the assessment.
// Admins manage everything, teachers only what they created.
func canManage(actor Actor, a *models.Assessment) bool {
	switch actor.Role {
	case models.RoleAdmin:
		return true
	case models.RoleTeacher:
		return a.CreatedBy == actor.ID
	}
	return false
}

// ===== UPDATE HELPERS =====

// changesGrading reports whether req touches a field frozen by existing attempts.
// Resending the current value is not a change.
func changesGrading(a *models.Assessment, req *models.AssessmentUpdateRequest) bool {
	if req.DurationMinutes != nil && *req.DurationMinutes != a.DurationMinutes {
		return true
	}
	if req.MaxAttempts != nil && *req.MaxAttempts != a.MaxAttempts {
		return true
	}
	if req.PassingScore != nil && *req.PassingScore != a.PassingScore {
		return true
	}
	if req.Settings != nil {
		next := a.Settings
		req.Settings.ApplyTo(&next)
		return next != a.Settings
	}
	return false
}

func applyUpdate(a *models.Assessment, req *models.AssessmentUpdateRequest) {
	if req.Title != nil {
		a.Title = strings.TrimSpace(*req.Title)
	}
	if req.Instructions != nil {
		a.Instructions = req.Instructions
	}
	if req.Type != nil {
		a.Type = *req.Type
	}
	if req.DurationMinutes != nil {
		a.DurationMinutes = *req.DurationMinutes
	}
	if req.MaxAttempts != nil {
		a.MaxAttempts = *req.MaxAttempts
	}
	if req.PassingScore != nil {
		a.PassingScore = *req.PassingScore
	}
	if req.AvailableFrom != nil {
		a.AvailableFrom = req.AvailableFrom
	}
	if req.AvailableUntil != nil {
		a.AvailableUntil = req.AvailableUntil
	}
	req.Settings.ApplyTo(&a.Settings)
}

func rejectKeywords(q *models.Question) error {
	return validator.ValidationErrors{*validator.NewValidationError("question_id", "keywords apply to short answer questions only", q.Type)}
}

// ===== RESPONSE BUILDERS =====

// buildAssessmentResponse strips questions for anyone who cannot manage the
// assessment; students only see questions through an attempt.
func (s *assessmentService) buildAssessmentResponse(a *models.Assessment, actor Actor, locked bool) *AssessmentResponse {
	a.RecomputeTotalPoints()
	manage := canManage(actor, a)

	view := a
	if !manage {
		header := *a
		header.Questions = []models.Question{}
		view = &header
	}

	return &AssessmentResponse{
		Assessment:    view,
		QuestionCount: len(a.Questions),
		Locked:        locked,
		CanEdit:       manage,
		CanTake:       actor.Role == models.RoleStudent && a.IsAvailableAt(s.now()) && len(a.Questions) > 0,
	}
}
