package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/SAP-F-2025/assessment-engine/internal/events"
	"github.com/SAP-F-2025/assessment-engine/internal/metrics"
	"github.com/SAP-F-2025/assessment-engine/internal/models"
	"github.com/SAP-F-2025/assessment-engine/internal/repositories"
	"github.com/SAP-F-2025/assessment-engine/internal/repositories/memory"
)

var (
	teacher      = Actor{ID: "teacher-1", Role: models.RoleTeacher}
	otherTeacher = Actor{ID: "teacher-2", Role: models.RoleTeacher}
	admin        = Actor{ID: "admin-1", Role: models.RoleAdmin}
	student      = Actor{ID: "student-1", Role: models.RoleStudent}
	otherStudent = Actor{ID: "student-2", Role: models.RoleStudent}
)

// fakeClock is a settable clock shared by every service under test.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	ctx       context.Context
	repo      *memory.Repository
	publisher *events.MockEventPublisher
	clock     *fakeClock
	deps      Dependencies

	assessments AssessmentService
	attempts    AttemptService
	autosave    AutoSaveService
	grading     GradingService
	export      ResultExportService
}

func newFixture(t *testing.T, opts ...memory.Option) *fixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := memory.New(opts...)
	publisher := events.NewMockEventPublisher(logger)
	clock := newFakeClock()

	deps := Dependencies{
		Repo:    repo,
		Logger:  logger,
		Events:  publisher,
		Metrics: metrics.New(),
		Now:     clock.Now,
	}
	return newFixtureWith(t, deps, repo, publisher, clock)
}

func newFixtureWith(t *testing.T, deps Dependencies, repo *memory.Repository, publisher *events.MockEventPublisher, clock *fakeClock) *fixture {
	t.Helper()
	return &fixture{
		ctx:         context.Background(),
		repo:        repo,
		publisher:   publisher,
		clock:       clock,
		deps:        deps,
		assessments: NewAssessmentService(deps),
		attempts:    NewAttemptService(deps),
		autosave:    NewAutoSaveService(deps),
		grading:     NewGradingService(deps),
		export:      NewResultExportService(deps),
	}
}

func text(s string) *string { return &s }

func intPtr(n int) *int { return &n }

// mixedQuestions is worth 5 points: mcq (2), true_false (1), short_answer (2).
func mixedQuestions() []models.Question {
	return []models.Question{
		{
			Type:   models.MultipleChoice,
			Text:   "Which are prime?",
			Points: 2,
			Options: []models.QuestionOption{
				{Text: "2", IsCorrect: true},
				{Text: "4"},
				{Text: "5", IsCorrect: true},
			},
		},
		{
			Type:    models.TrueFalse,
			Text:    "The earth orbits the sun.",
			Points:  1,
			Options: []models.QuestionOption{{Text: "True", IsCorrect: true}, {Text: "False"}},
		},
		{
			Type:             models.ShortAnswer,
			Text:             "A function that calls itself uses?",
			Points:           2,
			ExpectedKeywords: []string{"recursion"},
		},
	}
}

func essayQuestion() models.Question {
	return models.Question{Type: models.Essay, Text: "Explain CAP.", Points: 5, MaxWords: intPtr(200)}
}

type assessmentOption func(*models.Assessment)

func withQuestions(qs ...models.Question) assessmentOption {
	return func(a *models.Assessment) { a.Questions = qs }
}

func withSettings(fn func(*models.AssessmentSettings)) assessmentOption {
	return func(a *models.Assessment) { fn(&a.Settings) }
}

func withMaxAttempts(n int) assessmentOption {
	return func(a *models.Assessment) { a.MaxAttempts = n }
}

// seedAssessment stores a 10 minute assessment owned by teacher.
func (f *fixture) seedAssessment(t *testing.T, opts ...assessmentOption) *models.Assessment {
	t.Helper()
	a := &models.Assessment{
		Title:           "Fundamentals",
		Type:            models.TypeQuiz,
		Status:          models.StatusActive,
		DurationMinutes: 10,
		MaxAttempts:     2,
		PassingScore:    50,
		Settings:        models.DefaultAssessmentSettings(),
		CreatedBy:       teacher.ID,
		Questions:       mixedQuestions(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if err := f.repo.Assessment().Create(f.ctx, a); err != nil {
		t.Fatalf("seed assessment: %v", err)
	}
	return a
}

func (f *fixture) start(t *testing.T, assessmentID uint, actor Actor) *AttemptResponse {
	t.Helper()
	resp, err := f.attempts.StartOrResume(f.ctx, assessmentID, actor)
	if err != nil {
		t.Fatalf("StartOrResume() error = %v", err)
	}
	return resp
}

func (f *fixture) answer(t *testing.T, attemptID, questionID uint, value models.AnswerValue, actor Actor) *AnswerAck {
	t.Helper()
	ack, err := f.autosave.RecordAnswer(f.ctx, attemptID, questionID, value, actor)
	if err != nil {
		t.Fatalf("RecordAnswer(q%d) error = %v", questionID, err)
	}
	return ack
}

func (f *fixture) stored(t *testing.T, attemptID uint) *models.Attempt {
	t.Helper()
	a, err := f.repo.Attempt().GetByID(f.ctx, attemptID)
	if err != nil {
		t.Fatalf("load attempt: %v", err)
	}
	return a
}

// conflictingRepo fails every attempt CAS, simulating a writer that always wins.
type conflictingRepo struct {
	repositories.Repository
}

func (r conflictingRepo) Attempt() repositories.AttemptRepository {
	return conflictingAttempts{r.Repository.Attempt()}
}

func (r conflictingRepo) WithTransaction(ctx context.Context, fn func(repositories.Repository) error) error {
	return r.Repository.WithTransaction(ctx, func(tx repositories.Repository) error {
		return fn(conflictingRepo{tx})
	})
}

type conflictingAttempts struct {
	repositories.AttemptRepository
}

func (conflictingAttempts) UpdateWithVersion(context.Context, *models.Attempt) error {
	return repositories.ErrVersionConflict
}

func listAll() repositories.AttemptFilters {
	return repositories.AttemptFilters{SortBy: "id", SortOrder: "asc"}
}
