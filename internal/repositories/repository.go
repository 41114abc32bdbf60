package repositories

import "context"

// Repository groups the stores the engine needs behind one handle.
type Repository interface {
	Assessment() AssessmentRepository
	Attempt() AttemptRepository

	// User is read-only and may be nil when no identity provider is configured.
	User() UserRepository

	// WithTransaction runs fn against a repository bound to a single transaction.
	WithTransaction(ctx context.Context, fn func(Repository) error) error

	Ping(ctx context.Context) error
	Close() error
}

// RepositoryManager interface for managing repository lifecycle
type RepositoryManager interface {
	Initialize() error
	GetRepository() Repository
	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}
