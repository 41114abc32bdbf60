package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/assessment-engine/internal/models"
	"github.com/SAP-F-2025/assessment-engine/internal/repositories"
	"github.com/SAP-F-2025/assessment-engine/internal/services"
	"github.com/SAP-F-2025/assessment-engine/internal/utils"
	"github.com/SAP-F-2025/assessment-engine/internal/validator"
)

type AttemptHandler struct {
	BaseHandler
	attemptService  services.AttemptService
	autoSaveService services.AutoSaveService
	validator       *validator.Validator
}

func NewAttemptHandler(
	attemptService services.AttemptService,
	autoSaveService services.AutoSaveService,
	validator *validator.Validator,
	logger utils.Logger,
) *AttemptHandler {
	return &AttemptHandler{
		BaseHandler:     NewBaseHandler(logger),
		attemptService:  attemptService,
		autoSaveService: autoSaveService,
		validator:       validator,
	}
}

// StartOrResumeAttempt starts an attempt, or returns the running one
// @Summary Start or resume attempt
// @Tags attempts
// @Produce json
// @Param id path uint true "Assessment ID"
// @Success 201 {object} services.AttemptResponse "New attempt"
// @Success 200 {object} services.AttemptResponse "Resumed attempt"
// @Failure 403 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /assessments/{id}/attempts [post]
func (h *AttemptHandler) StartOrResumeAttempt(c *gin.Context) {
	assessmentID, ok := h.parseIDParam(c, "id")
	if !ok {
		return
	}
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	h.LogRequest(c, "Starting attempt", "assessment_id", assessmentID)

	attempt, err := h.attemptService.StartOrResume(c.Request.Context(), assessmentID, actor)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	status := http.StatusCreated
	if attempt.Resumed {
		status = http.StatusOK
	}
	c.JSON(status, attempt)
}

// ListAttempts lists the attempts of an assessment
// @Summary List attempts
// @Tags attempts
// @Produce json
// @Param id path uint true "Assessment ID"
// @Param page query int false "Page number" default(1)
// @Param size query int false "Page size" default(20)
// @Param status query string false "Attempt status"
// @Param student_id query string false "Student ID"
// @Success 200 {object} services.AttemptListResponse
// @Router /assessments/{id}/attempts [get]
func (h *AttemptHandler) ListAttempts(c *gin.Context) {
	assessmentID, ok := h.parseIDParam(c, "id")
	if !ok {
		return
	}
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	page := h.parseIntQuery(c, "page", 1)
	size := h.parseIntQuery(c, "size", repositories.DefaultPageSize)
	if page < 1 {
		page = 1
	}
	filters := repositories.AttemptFilters{
		Limit:     size,
		Offset:    (page - 1) * size,
		SortBy:    c.Query("sort_by"),
		SortOrder: c.Query("sort_order"),
	}
	if status := c.Query("status"); status != "" {
		attemptStatus := models.AttemptStatus(status)
		filters.Status = &attemptStatus
	}
	if studentID := strings.TrimSpace(c.Query("student_id")); studentID != "" {
		filters.StudentID = &studentID
	}

	attempts, err := h.attemptService.ListByAssessment(c.Request.Context(), assessmentID, filters, actor)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, attempts)
}

// GetAttempt returns the attempt as presented to its student
// @Summary Get attempt
// @Tags attempts
// @Produce json
// @Param id path uint true "Attempt ID"
// @Success 200 {object} services.AttemptResponse
// @Router /attempts/{id} [get]
func (h *AttemptHandler) GetAttempt(c *gin.Context) {
	id, ok := h.parseIDParam(c, "id")
	if !ok {
		return
	}
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	attempt, err := h.attemptService.GetByID(c.Request.Context(), id, actor)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, attempt)
}

// RecordAnswer saves the current answer to one question
// @Summary Save answer
// @Tags attempts
// @Accept json
// @Produce json
// @Param id path uint true "Attempt ID"
// @Param question_id path uint true "Question ID"
// @Param answer body models.AnswerRequest true "Answer"
// @Success 200 {object} services.AnswerAck
// @Failure 409 {object} ErrorResponse
// @Failure 410 {object} ErrorResponse
// @Router /attempts/{id}/answers/{question_id} [put]
func (h *AttemptHandler) RecordAnswer(c *gin.Context) {
	id, ok := h.parseIDParam(c, "id")
	if !ok {
		return
	}
	questionID, ok := h.parseIDParam(c, "question_id")
	if !ok {
		return
	}
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var req models.AnswerRequest
	if !h.bindJSON(c, &req) {
		return
	}
	if err := h.validator.Struct(&req); err != nil {
		h.handleServiceError(c, err)
		return
	}

	ack, err := h.autoSaveService.RecordAnswer(c.Request.Context(), id, questionID, req.ToValue(), actor)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, ack)
}

// SubmitAttempt finishes an attempt and scores it
// @Summary Submit attempt
// @Tags attempts
// @Produce json
// @Param id path uint true "Attempt ID"
// @Success 200 {object} services.AttemptResult
// @Failure 410 {object} ErrorResponse
// @Router /attempts/{id}/submit [post]
func (h *AttemptHandler) SubmitAttempt(c *gin.Context) {
	id, ok := h.parseIDParam(c, "id")
	if !ok {
		return
	}
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	h.LogRequest(c, "Submitting attempt", "attempt_id", id)

	result, err := h.attemptService.Submit(c.Request.Context(), id, actor)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetAttemptResult returns the result of a finished attempt.
// While essays await a manual score the provisional result comes back with 202.
// @Summary Get attempt result
// @Tags attempts
// @Produce json
// @Param id path uint true "Attempt ID"
// @Success 200 {object} services.AttemptResult
// @Success 202 {object} services.AttemptResult
// @Failure 409 {object} ErrorResponse
// @Router /attempts/{id}/result [get]
func (h *AttemptHandler) GetAttemptResult(c *gin.Context) {
	id, ok := h.parseIDParam(c, "id")
	if !ok {
		return
	}
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	result, err := h.attemptService.GetResult(c.Request.Context(), id, actor)
	if errors.Is(err, services.ErrGradingIncomplete) && result != nil {
		c.JSON(http.StatusAccepted, result)
		return
	}
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
