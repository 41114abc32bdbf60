// Package memory is an in-process Repository used by the service and handler
// tests. Every read returns a deep copy, so callers can mutate results freely
// without touching stored state.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/tiendc/go-deepcopy"

	"github.com/SAP-F-2025/assessment-engine/internal/models"
	"github.com/SAP-F-2025/assessment-engine/internal/repositories"
)

type answerKey struct {
	AttemptID  uint
	QuestionID uint
}

type tables struct {
	Assessments  map[uint]*models.Assessment
	Questions    map[uint]*models.Question
	Attempts     map[uint]*models.Attempt
	Answers      map[answerKey]*models.Answer
	ManualScores map[answerKey]*models.ManualScore

	NextAssessmentID uint
	NextQuestionID   uint
	NextAttemptID    uint
}

type store struct {
	// txMu serializes transactions and standalone writes; a rollback restores
	// the whole snapshot and must not discard a write made meanwhile.
	txMu sync.Mutex
	mu   sync.RWMutex
	t    tables
}

// exclusive takes the transaction lock for a write made outside a transaction.
func (s *store) exclusive(inTx bool) func() {
	if inTx {
		return func() {}
	}
	s.txMu.Lock()
	return s.txMu.Unlock
}

func newTables() tables {
	return tables{
		Assessments:  make(map[uint]*models.Assessment),
		Questions:    make(map[uint]*models.Question),
		Attempts:     make(map[uint]*models.Attempt),
		Answers:      make(map[answerKey]*models.Answer),
		ManualScores: make(map[answerKey]*models.ManualScore),
	}
}

// Repository implements repositories.Repository on maps guarded by a RWMutex.
// Transactions are serialized and roll back by restoring a snapshot.
type Repository struct {
	db    *store
	users repositories.UserRepository
	inTx  bool
}

type Option func(*Repository)

// WithUsers attaches a user directory, typically a UserStore.
func WithUsers(users repositories.UserRepository) Option {
	return func(r *Repository) {
		r.users = users
	}
}

func New(opts ...Option) *Repository {
	r := &Repository{
		db: &store{t: newTables()},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Repository) Assessment() repositories.AssessmentRepository {
	return &assessmentStore{db: r.db, inTx: r.inTx}
}

func (r *Repository) Attempt() repositories.AttemptRepository {
	return &attemptStore{db: r.db, inTx: r.inTx}
}

func (r *Repository) User() repositories.UserRepository {
	return r.users
}

// WithTransaction runs fn while holding the transaction lock. A nested call
// joins the outer transaction.
func (r *Repository) WithTransaction(ctx context.Context, fn func(repositories.Repository) error) error {
	if r.inTx {
		return fn(r)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r.db.txMu.Lock()
	defer r.db.txMu.Unlock()

	r.db.mu.RLock()
	snapshot, err := clone(&r.db.t)
	r.db.mu.RUnlock()
	if err != nil {
		return err
	}

	tx := &Repository{db: r.db, users: r.users, inTx: true}
	if err := fn(tx); err != nil {
		r.db.mu.Lock()
		r.db.t = *snapshot
		r.db.mu.Unlock()
		return err
	}
	return nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (r *Repository) Close() error {
	return nil
}

func clone[T any](src *T) (*T, error) {
	var dst T
	if err := deepcopy.Copy(&dst, src); err != nil {
		return nil, fmt.Errorf("memory: copy %T: %w", src, err)
	}
	return &dst, nil
}

func page[T any](items []T, limit, offset int) []T {
	limit, offset = repositories.NormalizePage(limit, offset)
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
