package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/assessment-engine/internal/models"
	"github.com/SAP-F-2025/assessment-engine/internal/services"
	"github.com/SAP-F-2025/assessment-engine/internal/utils"
	"github.com/SAP-F-2025/assessment-engine/internal/validator"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

type BaseHandler struct {
	logger utils.Logger
}

func NewBaseHandler(logger utils.Logger) BaseHandler {
	return BaseHandler{logger: logger}
}

func (h *BaseHandler) LogRequest(c *gin.Context, msg string, args ...any) {
	utils.GetLogger(c, h.logger).Info(msg, args...)
}

func (h *BaseHandler) LogError(c *gin.Context, err error, msg string, args ...any) {
	args = append(args, "error", err)
	utils.GetLogger(c, h.logger).Error(msg, args...)
}

// actor reads the caller set by the auth middleware. It writes a 401 when missing.
func (h *BaseHandler) actor(c *gin.Context) (services.Actor, bool) {
	userID := c.GetString("user_id")
	role, _ := c.Get("user_role")
	userRole, ok := role.(models.UserRole)
	if userID == "" || !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Code:    "unauthorized",
			Message: "User not authenticated",
		})
		return services.Actor{}, false
	}
	return services.Actor{ID: userID, Role: userRole}, true
}

// parseIDParam writes a 400 and returns false when the path parameter is not a positive id.
func (h *BaseHandler) parseIDParam(c *gin.Context, param string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(param), 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "invalid_request",
			Message: "Invalid " + param,
		})
		return 0, false
	}
	return uint(id), true
}

func (h *BaseHandler) parseIntQuery(c *gin.Context, param string, defaultValue int) int {
	valueStr := c.Query(param)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// bindJSON decodes the body, writing a 400 on malformed input.
func (h *BaseHandler) bindJSON(c *gin.Context, dest interface{}) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "invalid_request",
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return false
	}
	return true
}

// handleServiceError maps service errors onto HTTP statuses.
func (h *BaseHandler) handleServiceError(c *gin.Context, err error) {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "validation_failed",
			Message: "Validation failed",
			Details: validationErrors,
		})
		return
	}

	var permissionError *services.PermissionError
	if errors.As(err, &permissionError) {
		c.JSON(http.StatusForbidden, ErrorResponse{
			Code:    "forbidden",
			Message: "Access denied",
			Details: map[string]interface{}{
				"resource": permissionError.ResourceType,
				"action":   permissionError.Action,
				"reason":   permissionError.Reason,
			},
		})
		return
	}

	switch {
	case errors.Is(err, services.ErrAssessmentNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Code: "not_found", Message: "Assessment not found"})
	case errors.Is(err, services.ErrAttemptNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Code: "not_found", Message: "Attempt not found"})
	case errors.Is(err, services.ErrQuestionNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Code: "not_found", Message: "Question not found in assessment"})
	case errors.Is(err, services.ErrAssessmentNotAvailable):
		c.JSON(http.StatusForbidden, ErrorResponse{Code: "not_available", Message: "Assessment is not available"})
	case errors.Is(err, services.ErrMaxAttemptsExceeded):
		c.JSON(http.StatusConflict, ErrorResponse{Code: "max_attempts_exceeded", Message: "Maximum number of attempts reached"})
	case errors.Is(err, services.ErrAttemptExpired):
		c.JSON(http.StatusGone, ErrorResponse{Code: "attempt_expired", Message: "Time is up for this attempt"})
	case errors.Is(err, services.ErrAnswerRejected):
		c.JSON(http.StatusConflict, ErrorResponse{Code: "answer_rejected", Message: err.Error()})
	case errors.Is(err, services.ErrAssessmentLocked):
		c.JSON(http.StatusConflict, ErrorResponse{Code: "assessment_locked", Message: "Assessment has attempts and can no longer be changed"})
	case errors.Is(err, services.ErrAttemptNotSubmitted):
		c.JSON(http.StatusConflict, ErrorResponse{Code: "attempt_not_submitted", Message: "Attempt is still in progress"})
	case errors.Is(err, services.ErrConcurrentUpdate):
		c.JSON(http.StatusConflict, ErrorResponse{Code: "concurrent_update", Message: "Attempt was modified concurrently, retry the request"})
	case errors.Is(err, services.ErrGradingIncomplete):
		c.JSON(http.StatusAccepted, ErrorResponse{Code: "grading_incomplete", Message: "Grading is not complete yet"})
	default:
		h.LogError(c, err, "Unexpected service error")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:    "internal_error",
			Message: "Internal server error",
		})
	}
}
