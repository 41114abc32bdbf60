package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/assessment-engine/internal/metrics"
	"github.com/SAP-F-2025/assessment-engine/internal/models"
	"github.com/SAP-F-2025/assessment-engine/internal/services"
	"github.com/SAP-F-2025/assessment-engine/internal/utils"
	"github.com/SAP-F-2025/assessment-engine/internal/validator"
)

type HandlerManager struct {
	assessmentHandler *AssessmentHandler
	attemptHandler    *AttemptHandler
	gradingHandler    *GradingHandler
	authMiddleware    *CasdoorAuthMiddleware
	serviceManager    services.ServiceManager
	metrics           *metrics.Metrics
}

// NewHandlerManager builds every handler from an initialized service manager. m may be nil.
func NewHandlerManager(
	serviceManager services.ServiceManager,
	validator *validator.Validator,
	logger utils.Logger,
	authMiddleware *CasdoorAuthMiddleware,
	m *metrics.Metrics,
) *HandlerManager {
	return &HandlerManager{
		assessmentHandler: NewAssessmentHandler(serviceManager.Assessment(), logger),
		attemptHandler:    NewAttemptHandler(serviceManager.Attempt(), serviceManager.AutoSave(), validator, logger),
		gradingHandler:    NewGradingHandler(serviceManager.Grading(), serviceManager.ResultExport(), logger),
		authMiddleware:    authMiddleware,
		serviceManager:    serviceManager,
		metrics:           m,
	}
}

// SetupRoutes sets up all API routes
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	router.GET("/health", hm.health)
	if hm.metrics != nil {
		router.GET("/metrics", hm.metrics.PrometheusHandler())
	}

	staffOnly := hm.authMiddleware.RequireRoleMiddleware(models.RoleTeacher, models.RoleAdmin)
	studentOnly := hm.authMiddleware.RequireRoleMiddleware(models.RoleStudent)

	// API v1 routes with authentication
	v1 := router.Group("/api/v1")
	v1.Use(hm.authMiddleware.AuthMiddleware())
	{
		assessments := v1.Group("/assessments")
		{
			// View assessments - All authenticated users
			assessments.GET("", hm.assessmentHandler.ListAssessments)
			assessments.GET("/:id", hm.assessmentHandler.GetAssessment)

			// Authoring - Teachers and Admins only
			assessments.POST("", staffOnly, hm.assessmentHandler.CreateAssessment)
			assessments.PUT("/:id", staffOnly, hm.assessmentHandler.UpdateAssessment)
			assessments.DELETE("/:id", staffOnly, hm.assessmentHandler.DeactivateAssessment)
			assessments.POST("/:id/questions", staffOnly, hm.assessmentHandler.AddQuestion)
			assessments.PUT("/:id/questions/:question_id", staffOnly, hm.assessmentHandler.UpdateQuestion)
			assessments.DELETE("/:id/questions/:question_id", staffOnly, hm.assessmentHandler.RemoveQuestion)
			assessments.PUT("/:id/questions/:question_id/keywords", staffOnly, hm.assessmentHandler.AmendKeywords)

			// Attempts
			assessments.POST("/:id/attempts", studentOnly, hm.attemptHandler.StartOrResumeAttempt)
			assessments.GET("/:id/attempts", staffOnly, hm.attemptHandler.ListAttempts)

			// Grading and results
			assessments.POST("/:id/regrade", staffOnly, hm.gradingHandler.RegradeAssessment)
			assessments.GET("/:id/results/export", staffOnly, hm.gradingHandler.ExportResults)
		}

		// Ownership of an attempt is checked by the services
		attempts := v1.Group("/attempts")
		{
			attempts.GET("/:id", hm.attemptHandler.GetAttempt)
			attempts.PUT("/:id/answers/:question_id", hm.attemptHandler.RecordAnswer)
			attempts.POST("/:id/submit", hm.attemptHandler.SubmitAttempt)
			attempts.GET("/:id/result", hm.attemptHandler.GetAttemptResult)

			attempts.POST("/:id/questions/:question_id/score", staffOnly, hm.gradingHandler.RecordManualScore)
			attempts.POST("/:id/regrade", staffOnly, hm.gradingHandler.RegradeAttempt)
		}
	}
}

func (hm *HandlerManager) health(c *gin.Context) {
	if err := hm.serviceManager.HealthCheck(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":    "unhealthy",
			"error":     err.Error(),
			"timestamp": time.Now().UTC(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	})
}
