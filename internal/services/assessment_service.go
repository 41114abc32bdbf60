package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/SAP-F-2025/assessment-engine/internal/models"
	"github.com/SAP-F-2025/assessment-engine/internal/repositories"
)

type assessmentService struct {
	*lifecycle
}

func NewAssessmentService(deps Dependencies) AssessmentService {
	return &assessmentService{lifecycle: newLifecycle(deps)}
}

// ===== CORE CRUD OPERATIONS =====

func (s *assessmentService) Create(ctx context.Context, req *models.AssessmentCreateRequest, actor Actor) (*AssessmentResponse, error) {
	s.Logger.InfoContext(ctx, "Creating assessment", "creator_id", actor.ID, "title", req.Title)

	if !actor.IsStaff() {
		return nil, NewPermissionError(actor.ID, 0, "assessment", "create", "insufficient role permissions")
	}
	if err := s.Validator.Struct(req); err != nil {
		return nil, err
	}

	assessment := &models.Assessment{
		Title:           strings.TrimSpace(req.Title),
		Instructions:    req.Instructions,
		Type:            req.Type,
		Status:          models.StatusActive,
		DurationMinutes: req.DurationMinutes,
		MaxAttempts:     req.MaxAttempts,
		PassingScore:    req.PassingScore,
		AvailableFrom:   req.AvailableFrom,
		AvailableUntil:  req.AvailableUntil,
		Settings:        models.DefaultAssessmentSettings(),
		CreatedBy:       actor.ID,
		Version:         1,
	}
	if assessment.Type == "" {
		assessment.Type = models.TypeQuiz
	}
	req.Settings.ApplyTo(&assessment.Settings)
	for i := range req.Questions {
		assessment.AddQuestion(req.Questions[i].ToModel())
	}

	if err := s.Validator.ValidateAssessment(assessment).Err(); err != nil {
		return nil, err
	}

	if err := s.Repo.Assessment().Create(ctx, assessment); err != nil {
		return nil, fmt.Errorf("failed to create assessment: %w", err)
	}

	s.Logger.InfoContext(ctx, "Assessment created successfully",
		"assessment_id", assessment.ID,
		"questions", len(assessment.Questions),
		"total_points", assessment.TotalPoints)

	return s.buildAssessmentResponse(assessment, actor, false), nil
}

func (s *assessmentService) GetByID(ctx context.Context, id uint, actor Actor) (*AssessmentResponse, error) {
	assessment, err := s.loadAssessment(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsStaff() && assessment.Status != models.StatusActive {
		return nil, ErrAssessmentNotFound
	}

	locked, err := s.isLocked(ctx, assessment, actor)
	if err != nil {
		return nil, err
	}
	return s.buildAssessmentResponse(assessment, actor, locked), nil
}

func (s *assessmentService) List(ctx context.Context, filters repositories.AssessmentFilters, actor Actor) (*AssessmentListResponse, error) {
	if !actor.IsStaff() {
		active := models.StatusActive
		filters.Status = &active
	}
	filters.Limit, filters.Offset = repositories.NormalizePage(filters.Limit, filters.Offset)

	assessments, total, err := s.Repo.Assessment().List(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list assessments: %w", err)
	}

	responses := make([]*AssessmentResponse, 0, len(assessments))
	for _, a := range assessments {
		locked, err := s.isLocked(ctx, a, actor)
		if err != nil {
			return nil, err
		}
		responses = append(responses, s.buildAssessmentResponse(a, actor, locked))
	}

	return &AssessmentListResponse{
		Assessments: responses,
		Total:       total,
		Limit:       filters.Limit,
		Offset:      filters.Offset,
	}, nil
}

// Update edits header fields. Fields that change how attempts are graded or
// presented are frozen once the assessment has attempts.
func (s *assessmentService) Update(ctx context.Context, id uint, req *models.AssessmentUpdateRequest, actor Actor) (*AssessmentResponse, error) {
	s.Logger.InfoContext(ctx, "Updating assessment", "assessment_id", id, "user_id", actor.ID)

	if err := s.Validator.Struct(req); err != nil {
		return nil, err
	}

	assessment, locked, err := s.edit(ctx, id, actor, "update", func(ctx context.Context, tx repositories.Repository, a *models.Assessment, locked bool) error {
		if locked && changesGrading(a, req) {
			return ErrAssessmentLocked
		}
		applyUpdate(a, req)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.InfoContext(ctx, "Assessment updated successfully", "assessment_id", id, "version", assessment.Version)
	return s.buildAssessmentResponse(assessment, actor, locked), nil
}

func (s *assessmentService) Deactivate(ctx context.Context, id uint, actor Actor) error {
	assessment, err := s.loadAssessment(ctx, id)
	if err != nil {
		return err
	}
	if !canManage(actor, assessment) {
		return NewPermissionError(actor.ID, id, "assessment", "deactivate", "not the assessment owner")
	}

	if err := s.Repo.Assessment().Deactivate(ctx, id); err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrAssessmentNotFound
		}
		return fmt.Errorf("failed to deactivate assessment: %w", err)
	}

	s.Logger.InfoContext(ctx, "Assessment deactivated", "assessment_id", id, "user_id", actor.ID)
	return nil
}

// ===== QUESTION MANAGEMENT =====

func (s *assessmentService) AddQuestion(ctx context.Context, assessmentID uint, req *models.QuestionRequest, actor Actor) (*AssessmentResponse, error) {
	if err := s.Validator.Struct(req); err != nil {
		return nil, err
	}
	question := req.ToModel()
	if err := s.Validator.ValidateQuestion(&question).Err(); err != nil {
		return nil, err
	}

	assessment, _, err := s.edit(ctx, assessmentID, actor, "add_question", func(ctx context.Context, tx repositories.Repository, a *models.Assessment, locked bool) error {
		if locked {
			return ErrAssessmentLocked
		}
		stored := a.AddQuestion(question)
		if err := tx.Assessment().CreateQuestion(ctx, stored); err != nil {
			return fmt.Errorf("failed to create question: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.InfoContext(ctx, "Question added",
		"assessment_id", assessmentID,
		"total_points", assessment.TotalPoints)
	return s.buildAssessmentResponse(assessment, actor, false), nil
}

func (s *assessmentService) UpdateQuestion(ctx context.Context, assessmentID, questionID uint, req *models.QuestionRequest, actor Actor) (*AssessmentResponse, error) {
	if err := s.Validator.Struct(req); err != nil {
		return nil, err
	}
	question := req.ToModel()
	question.ID = questionID
	if err := s.Validator.ValidateQuestion(&question).Err(); err != nil {
		return nil, err
	}

	assessment, _, err := s.edit(ctx, assessmentID, actor, "update_question", func(ctx context.Context, tx repositories.Repository, a *models.Assessment, locked bool) error {
		if locked {
			return ErrAssessmentLocked
		}
		stored, err := a.UpdateQuestion(question)
		if err != nil {
			return ErrQuestionNotFound
		}
		if err := tx.Assessment().UpdateQuestion(ctx, stored); err != nil {
			return fmt.Errorf("failed to update question: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.InfoContext(ctx, "Question updated",
		"assessment_id", assessmentID,
		"question_id", questionID,
		"total_points", assessment.TotalPoints)
	return s.buildAssessmentResponse(assessment, actor, false), nil
}

func (s *assessmentService) RemoveQuestion(ctx context.Context, assessmentID, questionID uint, actor Actor) (*AssessmentResponse, error) {
	assessment, _, err := s.edit(ctx, assessmentID, actor, "remove_question", func(ctx context.Context, tx repositories.Repository, a *models.Assessment, locked bool) error {
		if locked {
			return ErrAssessmentLocked
		}
		if err := a.RemoveQuestion(questionID); err != nil {
			return ErrQuestionNotFound
		}
		if err := tx.Assessment().DeleteQuestion(ctx, assessmentID, questionID); err != nil {
			return fmt.Errorf("failed to delete question: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.InfoContext(ctx, "Question removed",
		"assessment_id", assessmentID,
		"question_id", questionID,
		"total_points", assessment.TotalPoints)
	return s.buildAssessmentResponse(assessment, actor, false), nil
}

// AmendKeywords corrects the answer key of a short answer question. It is the one
// question edit allowed after attempts exist; stored grades change only on regrade.
func (s *assessmentService) AmendKeywords(ctx context.Context, assessmentID, questionID uint, req *models.KeywordsUpdateRequest, actor Actor) (*models.Question, error) {
	if err := s.Validator.Struct(req); err != nil {
		return nil, err
	}

	var amended models.Question
	_, locked, err := s.edit(ctx, assessmentID, actor, "amend_keywords", func(ctx context.Context, tx repositories.Repository, a *models.Assessment, _ bool) error {
		q, _ := a.FindQuestion(questionID)
		if q == nil {
			return ErrQuestionNotFound
		}
		if q.Type != models.ShortAnswer {
			return rejectKeywords(q)
		}

		q.ExpectedKeywords = req.ExpectedKeywords
		if req.CaseSensitive != nil {
			q.CaseSensitive = *req.CaseSensitive
		}
		if err := s.Validator.ValidateQuestion(q).Err(); err != nil {
			return err
		}
		if err := tx.Assessment().UpdateQuestion(ctx, q); err != nil {
			return fmt.Errorf("failed to update question: %w", err)
		}
		amended = *q
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.InfoContext(ctx, "Short answer keywords amended",
		"assessment_id", assessmentID,
		"question_id", questionID,
		"keywords", len(amended.ExpectedKeywords),
		"locked", locked)
	return &amended, nil
}

// ===== AUTHORING HELPERS =====

// authoringEdit mutates a freshly loaded assessment inside a transaction.
// locked reports whether any attempt exists.
type authoringEdit func(ctx context.Context, tx repositories.Repository, a *models.Assessment, locked bool) error

// edit applies fn under the owner check, validates the result and writes the
// header with a version check so concurrent edits retry against fresh state.
// The attempt check shares the transaction so a racing start cannot slip past it.
func (s *assessmentService) edit(ctx context.Context, id uint, actor Actor, op string, fn authoringEdit) (*models.Assessment, bool, error) {
	for try := 0; ; try++ {
		var (
			result *models.Assessment
			locked bool
		)
		err := s.Repo.WithTransaction(ctx, func(tx repositories.Repository) error {
			a, err := tx.Assessment().GetByID(ctx, id)
			if err != nil {
				if repositories.IsNotFoundError(err) {
					return ErrAssessmentNotFound
				}
				return fmt.Errorf("failed to get assessment: %w", err)
			}
			if !canManage(actor, a) {
				return NewPermissionError(actor.ID, id, "assessment", op, "not the assessment owner")
			}

			locked, err = tx.Attempt().HasAttempts(ctx, id)
			if err != nil {
				return fmt.Errorf("failed to check attempts: %w", err)
			}
			if err := fn(ctx, tx, a, locked); err != nil {
				return err
			}
			if err := s.Validator.ValidateAssessment(a).Err(); err != nil {
				return err
			}
			if err := tx.Assessment().Update(ctx, a); err != nil {
				return err
			}
			result = a
			return nil
		})
		if err == nil {
			return result, locked, nil
		}
		if !errors.Is(err, repositories.ErrVersionConflict) {
			return nil, false, err
		}
		if try >= s.MaxRetries {
			return nil, false, ErrConcurrentUpdate
		}
		s.Logger.DebugContext(ctx, "Retrying assessment edit after version conflict",
			"assessment_id", id,
			"operation", op)
	}
}

func (s *assessmentService) isLocked(ctx context.Context, a *models.Assessment, actor Actor) (bool, error) {
	if !actor.IsStaff() {
		return false, nil
	}
	locked, err := s.Repo.Attempt().HasAttempts(ctx, a.ID)
	if err != nil {
		return false, fmt.Errorf("failed to check attempts: %w", err)
	}
	return locked, nil
}
