package services

import (
	"context"
	"fmt"
	"sync"
)

// serviceManager implements ServiceManager interface
type serviceManager struct {
	deps Dependencies

	// Service instances
	assessmentService   AssessmentService
	attemptService      AttemptService
	autoSaveService     AutoSaveService
	gradingService      GradingService
	resultExportService ResultExportService

	// Lifecycle management
	initialized bool
	shutdown    bool
	mu          sync.RWMutex
}

// NewServiceManager creates a service manager. Services share one set of
// dependencies, so metrics and the clock are common to all of them.
func NewServiceManager(deps Dependencies) ServiceManager {
	return &serviceManager{deps: deps.withDefaults()}
}

// Initialize sets up all services and their dependencies
func (sm *serviceManager) Initialize(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.initialized {
		return nil
	}
	if sm.deps.Repo == nil {
		return fmt.Errorf("failed to initialize services: repository is required")
	}

	logger := sm.deps.Logger
	logger.InfoContext(ctx, "Initializing service manager")

	sm.assessmentService = NewAssessmentService(sm.deps)
	logger.Info("Assessment service initialized")

	sm.attemptService = NewAttemptService(sm.deps)
	logger.Info("Attempt service initialized")

	sm.autoSaveService = NewAutoSaveService(sm.deps)
	logger.Info("AutoSave service initialized")

	sm.gradingService = NewGradingService(sm.deps)
	logger.Info("Grading service initialized")

	sm.resultExportService = NewResultExportService(sm.deps)
	logger.Info("ResultExport service initialized")

	sm.initialized = true
	logger.InfoContext(ctx, "Service manager initialized successfully")
	return nil
}

// Service getters
func (sm *serviceManager) Assessment() AssessmentService {
	sm.mustBeInitialized()
	return sm.assessmentService
}

func (sm *serviceManager) Attempt() AttemptService {
	sm.mustBeInitialized()
	return sm.attemptService
}

func (sm *serviceManager) AutoSave() AutoSaveService {
	sm.mustBeInitialized()
	return sm.autoSaveService
}

func (sm *serviceManager) Grading() GradingService {
	sm.mustBeInitialized()
	return sm.gradingService
}

func (sm *serviceManager) ResultExport() ResultExportService {
	sm.mustBeInitialized()
	return sm.resultExportService
}

func (sm *serviceManager) mustBeInitialized() {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized {
		panic("service manager not initialized")
	}
}

// Health and lifecycle
func (sm *serviceManager) HealthCheck(ctx context.Context) error {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized {
		return fmt.Errorf("service manager not initialized")
	}
	if sm.shutdown {
		return fmt.Errorf("service manager is shut down")
	}

	if err := sm.deps.Repo.Ping(ctx); err != nil {
		return fmt.Errorf("repository health check failed: %w", err)
	}
	return nil
}

// Shutdown closes the event publisher. The repository belongs to the caller.
func (sm *serviceManager) Shutdown(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.shutdown {
		return nil
	}

	sm.deps.Logger.InfoContext(ctx, "Shutting down service manager")

	if sm.deps.Events != nil {
		if err := sm.deps.Events.Close(); err != nil {
			sm.deps.Logger.ErrorContext(ctx, "Failed to close event publisher", "error", err)
		}
	}

	sm.shutdown = true
	sm.deps.Logger.InfoContext(ctx, "Service manager shut down completed")
	return nil
}
