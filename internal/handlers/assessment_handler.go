package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/assessment-engine/internal/models"
	"github.com/SAP-F-2025/assessment-engine/internal/repositories"
	"github.com/SAP-F-2025/assessment-engine/internal/services"
	"github.com/SAP-F-2025/assessment-engine/internal/utils"
)

type AssessmentHandler struct {
	BaseHandler
	assessmentService services.AssessmentService
}

func NewAssessmentHandler(assessmentService services.AssessmentService, logger utils.Logger) *AssessmentHandler {
	return &AssessmentHandler{
		BaseHandler:       NewBaseHandler(logger),
		assessmentService: assessmentService,
	}
}

// CreateAssessment creates a new assessment
// @Summary Create assessment
// @Tags assessments
// @Accept json
// @Produce json
// @Param assessment body models.AssessmentCreateRequest true "Assessment data"
// @Success 201 {object} services.AssessmentResponse
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Router /assessments [post]
func (h *AssessmentHandler) CreateAssessment(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var req models.AssessmentCreateRequest
	if !h.bindJSON(c, &req) {
		return
	}

	assessment, err := h.assessmentService.Create(c.Request.Context(), &req, actor)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, assessment)
}

// GetAssessment retrieves an assessment by ID. Students get the header without questions.
// @Summary Get assessment
// @Tags assessments
// @Produce json
// @Param id path uint true "Assessment ID"
// @Success 200 {object} services.AssessmentResponse
// @Failure 404 {object} ErrorResponse
// @Router /assessments/{id} [get]
func (h *AssessmentHandler) GetAssessment(c *gin.Context) {
	id, ok := h.parseIDParam(c, "id")
	if !ok {
		return
	}
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	assessment, err := h.assessmentService.GetByID(c.Request.Context(), id, actor)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, assessment)
}

// ListAssessments lists assessments with pagination
// @Summary List assessments
// @Tags assessments
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param size query int false "Page size" default(20)
// @Param status query string false "active or inactive"
// @Param type query string false "exam, quiz or cat"
// @Param creator_id query string false "Creator ID"
// @Param search query string false "Title search"
// @Success 200 {object} services.AssessmentListResponse
// @Router /assessments [get]
func (h *AssessmentHandler) ListAssessments(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	assessments, err := h.assessmentService.List(c.Request.Context(), h.parseAssessmentFilters(c), actor)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, assessments)
}

// UpdateAssessment updates header fields and settings
// @Summary Update assessment
// @Tags assessments
// @Accept json
// @Produce json
// @Param id path uint true "Assessment ID"
// @Param assessment body models.AssessmentUpdateRequest true "Assessment update data"
// @Success 200 {object} services.AssessmentResponse
// @Failure 409 {object} ErrorResponse
// @Router /assessments/{id} [put]
func (h *AssessmentHandler) UpdateAssessment(c *gin.Context) {
	id, ok := h.parseIDParam(c, "id")
	if !ok {
		return
	}
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var req models.AssessmentUpdateRequest
	if !h.bindJSON(c, &req) {
		return
	}

	h.LogRequest(c, "Updating assessment", "assessment_id", id)

	assessment, err := h.assessmentService.Update(c.Request.Context(), id, &req, actor)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, assessment)
}

// DeactivateAssessment hides an assessment from students. Attempts are kept.
// @Summary Deactivate assessment
// @Tags assessments
// @Param id path uint true "Assessment ID"
// @Success 204
// @Router /assessments/{id} [delete]
func (h *AssessmentHandler) DeactivateAssessment(c *gin.Context) {
	id, ok := h.parseIDParam(c, "id")
	if !ok {
		return
	}
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	h.LogRequest(c, "Deactivating assessment", "assessment_id", id)

	if err := h.assessmentService.Deactivate(c.Request.Context(), id, actor); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// ===== QUESTION MANAGEMENT =====

// AddQuestion appends a question to an assessment without attempts
// @Summary Add question
// @Tags assessments
// @Accept json
// @Produce json
// @Param id path uint true "Assessment ID"
// @Param question body models.QuestionRequest true "Question"
// @Success 201 {object} services.AssessmentResponse
// @Failure 409 {object} ErrorResponse
// @Router /assessments/{id}/questions [post]
func (h *AssessmentHandler) AddQuestion(c *gin.Context) {
	id, ok := h.parseIDParam(c, "id")
	if !ok {
		return
	}
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var req models.QuestionRequest
	if !h.bindJSON(c, &req) {
		return
	}

	assessment, err := h.assessmentService.AddQuestion(c.Request.Context(), id, &req, actor)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, assessment)
}

// UpdateQuestion replaces a question of an assessment without attempts
// @Summary Update question
// @Tags assessments
// @Accept json
// @Produce json
// @Param id path uint true "Assessment ID"
// @Param question_id path uint true "Question ID"
// @Param question body models.QuestionRequest true "Question"
// @Success 200 {object} services.AssessmentResponse
// @Router /assessments/{id}/questions/{question_id} [put]
func (h *AssessmentHandler) UpdateQuestion(c *gin.Context) {
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
	var req models.QuestionRequest
	if !h.bindJSON(c, &req) {
		return
	}

	assessment, err := h.assessmentService.UpdateQuestion(c.Request.Context(), id, questionID, &req, actor)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, assessment)
}

// RemoveQuestion deletes a question from an assessment without attempts
// @Summary Remove question
// @Tags assessments
// @Produce json
// @Param id path uint true "Assessment ID"
// @Param question_id path uint true "Question ID"
// @Success 200 {object} services.AssessmentResponse
// @Router /assessments/{id}/questions/{question_id} [delete]
func (h *AssessmentHandler) RemoveQuestion(c *gin.Context) {
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

	assessment, err := h.assessmentService.RemoveQuestion(c.Request.Context(), id, questionID, actor)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, assessment)
}

// AmendKeywords corrects the keywords of a short answer question, also after attempts exist
// @Summary Amend short answer keywords
// @Tags assessments
// @Accept json
// @Produce json
// @Param id path uint true "Assessment ID"
// @Param question_id path uint true "Question ID"
// @Param keywords body models.KeywordsUpdateRequest true "Keywords"
// @Success 200 {object} models.Question
// @Router /assessments/{id}/questions/{question_id}/keywords [put]
func (h *AssessmentHandler) AmendKeywords(c *gin.Context) {
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
	var req models.KeywordsUpdateRequest
	if !h.bindJSON(c, &req) {
		return
	}

	h.LogRequest(c, "Amending keywords", "assessment_id", id, "question_id", questionID)

	question, err := h.assessmentService.AmendKeywords(c.Request.Context(), id, questionID, &req, actor)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, question)
}

func (h *AssessmentHandler) parseAssessmentFilters(c *gin.Context) repositories.AssessmentFilters {
	page := h.parseIntQuery(c, "page", 1)
	size := h.parseIntQuery(c, "size", repositories.DefaultPageSize)
	if page < 1 {
		page = 1
	}

	filters := repositories.AssessmentFilters{
		Limit:     size,
		Offset:    (page - 1) * size,
		SortBy:    c.Query("sort_by"),
		SortOrder: c.Query("sort_order"),
	}

	if status := c.Query("status"); status != "" {
		assessmentStatus := models.AssessmentStatus(status)
		filters.Status = &assessmentStatus
	}
	if typ := c.Query("type"); typ != "" {
		assessmentType := models.AssessmentType(typ)
		filters.Type = &assessmentType
	}
	if creatorID := strings.TrimSpace(c.Query("creator_id")); creatorID != "" {
		filters.CreatedBy = &creatorID
	}
	if search := strings.TrimSpace(c.Query("search")); search != "" {
		filters.Search = &search
	}

	return filters
}
