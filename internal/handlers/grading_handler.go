package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/assessment-engine/internal/models"
	"github.com/SAP-F-2025/assessment-engine/internal/services"
	"github.com/SAP-F-2025/assessment-engine/internal/utils"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type GradingHandler struct {
	BaseHandler
	gradingService services.GradingService
	exportService  services.ResultExportService
}

func NewGradingHandler(gradingService services.GradingService, exportService services.ResultExportService, logger utils.Logger) *GradingHandler {
	return &GradingHandler{
		BaseHandler:    NewBaseHandler(logger),
		gradingService: gradingService,
		exportService:  exportService,
	}
}

// RecordManualScore scores an essay answer
// @Summary Record manual score
// @Tags grading
// @Accept json
// @Produce json
// @Param id path uint true "Attempt ID"
// @Param question_id path uint true "Question ID"
// @Param score body models.ManualScoreRequest true "Score"
// @Success 200 {object} services.ManualScoreResponse
// @Failure 409 {object} ErrorResponse
// @Router /attempts/{id}/questions/{question_id}/score [post]
func (h *GradingHandler) RecordManualScore(c *gin.Context) {
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
	var req models.ManualScoreRequest
	if !h.bindJSON(c, &req) {
		return
	}

	h.LogRequest(c, "Recording manual score", "attempt_id", id, "question_id", questionID)

	resp, err := h.gradingService.RecordManualScore(c.Request.Context(), id, questionID, &req, actor)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// RegradeAttempt rescores one finished attempt against the current answer key
// @Summary Regrade attempt
// @Tags grading
// @Produce json
// @Param id path uint true "Attempt ID"
// @Success 200 {object} services.AttemptResult
// @Router /attempts/{id}/regrade [post]
func (h *GradingHandler) RegradeAttempt(c *gin.Context) {
	id, ok := h.parseIDParam(c, "id")
	if !ok {
		return
	}
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	result, err := h.gradingService.RegradeAttempt(c.Request.Context(), id, actor)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// RegradeAssessment rescores every finished attempt of an assessment
// @Summary Regrade assessment
// @Tags grading
// @Produce json
// @Param id path uint true "Assessment ID"
// @Success 200 {object} services.RegradeSummary
// @Router /assessments/{id}/regrade [post]
func (h *GradingHandler) RegradeAssessment(c *gin.Context) {
	id, ok := h.parseIDParam(c, "id")
	if !ok {
		return
	}
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	h.LogRequest(c, "Regrading assessment", "assessment_id", id)

	summary, err := h.gradingService.RegradeAssessment(c.Request.Context(), id, actor)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

// ExportResults downloads all attempts of an assessment as a spreadsheet
// @Summary Export results
// @Tags grading
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param id path uint true "Assessment ID"
// @Success 200 {file} file
// @Router /assessments/{id}/results/export [get]
func (h *GradingHandler) ExportResults(c *gin.Context) {
	id, ok := h.parseIDParam(c, "id")
	if !ok {
		return
	}
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	data, filename, err := h.exportService.ExportResults(c.Request.Context(), id, actor)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, xlsxContentType, data)
}
