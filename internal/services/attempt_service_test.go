package services

import (
	"errors"
	"testing"
	"time"

	"github.com/SAP-F-2025/assessment-engine/internal/events"
	"github.com/SAP-F-2025/assessment-engine/internal/models"
	"github.com/SAP-F-2025/assessment-engine/internal/validator"
)

func TestStartOrResume_ResumesActiveAttempt(t *testing.T) {
	f := newFixture(t)
	a := f.seedAssessment(t)

	first := f.start(t, a.ID, student)
	f.clock.Advance(3 * time.Minute)
	second := f.start(t, a.ID, student)

	if first.ID != second.ID {
		t.Fatalf("resume returned attempt %d, want %d", second.ID, first.ID)
	}
	if first.Resumed || !second.Resumed {
		t.Errorf("Resumed flags = %v, %v; want false, true", first.Resumed, second.Resumed)
	}
	if !second.ExpiresAt.Equal(first.ExpiresAt) {
		t.Errorf("resume moved the deadline from %v to %v", first.ExpiresAt, second.ExpiresAt)
	}
	if second.RemainingSeconds != 7*60 {
		t.Errorf("RemainingSeconds = %d, want %d", second.RemainingSeconds, 7*60)
	}
	if got := len(f.publisher.EventsOfType(events.AttemptStarted)); got != 1 {
		t.Errorf("published %d attempt.started events, want 1", got)
	}
}

func TestStartOrResume_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(t *testing.T, f *fixture) uint
		wantErr error
	}{
		{
			name: "unknown assessment",
			setup: func(t *testing.T, f *fixture) uint {
				return 999
			},
			wantErr: ErrAssessmentNotFound,
		},
		{
			name: "deactivated",
			setup: func(t *testing.T, f *fixture) uint {
				a := f.seedAssessment(t)
				if err := f.repo.Assessment().Deactivate(f.ctx, a.ID); err != nil {
					t.Fatal(err)
				}
				return a.ID
			},
			wantErr: ErrAssessmentNotAvailable,
		},
		{
			name: "window not open yet",
			setup: func(t *testing.T, f *fixture) uint {
				from := f.clock.Now().Add(time.Hour)
				return f.seedAssessment(t, func(a *models.Assessment) { a.AvailableFrom = &from }).ID
			},
			wantErr: ErrAssessmentNotAvailable,
		},
		{
			name: "window closed",
			setup: func(t *testing.T, f *fixture) uint {
				until := f.clock.Now().Add(-time.Second)
				return f.seedAssessment(t, func(a *models.Assessment) { a.AvailableUntil = &until }).ID
			},
			wantErr: ErrAssessmentNotAvailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			id := tt.setup(t, f)
			_, err := f.attempts.StartOrResume(f.ctx, id, student)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("StartOrResume() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestStartOrResume_WindowBoundsAreInclusive(t *testing.T) {
	f := newFixture(t)
	now := f.clock.Now()
	a := f.seedAssessment(t, func(a *models.Assessment) {
		a.AvailableFrom = &now
		a.AvailableUntil = &now
	})

	if _, err := f.attempts.StartOrResume(f.ctx, a.ID, student); err != nil {
		t.Fatalf("StartOrResume() at the window edge error = %v", err)
	}
}

func TestStartOrResume_EmptyAssessment(t *testing.T) {
	f := newFixture(t)
	a := f.seedAssessment(t, withQuestions())

	_, err := f.attempts.StartOrResume(f.ctx, a.ID, student)
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("StartOrResume() error = %v, want ValidationErrors", err)
	}
}

func TestStartOrResume_MaxAttempts(t *testing.T) {
	f := newFixture(t)
	a := f.seedAssessment(t, withMaxAttempts(2))

	for n := 1; n <= 2; n++ {
		resp := f.start(t, a.ID, student)
		if resp.AttemptNumber != n {
			t.Fatalf("attempt number = %d, want %d", resp.AttemptNumber, n)
		}
		if _, err := f.attempts.Submit(f.ctx, resp.ID, student); err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
	}

	_, err := f.attempts.StartOrResume(f.ctx, a.ID, student)
	if !errors.Is(err, ErrMaxAttemptsExceeded) {
		t.Fatalf("third StartOrResume() error = %v, want ErrMaxAttemptsExceeded", err)
	}

	// Another student has their own budget.
	f.start(t, a.ID, otherStudent)
}

func TestStartOrResume_ExpiredAttemptIsNotResumed(t *testing.T) {
	f := newFixture(t)
	a := f.seedAssessment(t)

	first := f.start(t, a.ID, student)
	f.clock.Advance(10 * time.Minute)
	second := f.start(t, a.ID, student)

	if second.ID == first.ID || second.AttemptNumber != 2 {
		t.Fatalf("got attempt %d (#%d), want a fresh second attempt", second.ID, second.AttemptNumber)
	}
	if old := f.stored(t, first.ID); old.Status != models.AttemptGraded || old.SubmittedAt != nil {
		t.Errorf("overdue attempt status = %s, submitted_at = %v; want graded by expiry", old.Status, old.SubmittedAt)
	}
}

func TestSubmit_GradesMixedAttempt(t *testing.T) {
	f := newFixture(t)
	a := f.seedAssessment(t)
	resp := f.start(t, a.ID, student)

	f.answer(t, resp.ID, a.Questions[0].ID, models.AnswerValue{Selected: []int{2, 0}}, student)
	f.answer(t, resp.ID, a.Questions[1].ID, models.AnswerValue{Selected: []int{0}}, student)
	f.answer(t, resp.ID, a.Questions[2].ID, models.AnswerValue{Text: text("  It uses RECURSION.  ")}, student)

	result, err := f.attempts.Submit(f.ctx, resp.ID, student)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if result.Status != models.AttemptGraded || !result.GradingComplete {
		t.Fatalf("status = %s complete = %v, want graded and complete", result.Status, result.GradingComplete)
	}
	if result.Score == nil || *result.Score != 5 || result.Passed == nil || !*result.Passed {
		t.Fatalf("score = %v passed = %v, want 5 and passed", result.Score, result.Passed)
	}
	if result.Questions != nil {
		t.Errorf("per-question detail shown although show_correct_answers is off")
	}

	stored := f.stored(t, resp.ID)
	if stored.SubmittedAt == nil || stored.GradedAt == nil {
		t.Errorf("submitted_at = %v graded_at = %v, want both set", stored.SubmittedAt, stored.GradedAt)
	}
	for _, typ := range []string{events.AttemptSubmitted, events.AttemptGraded} {
		if got := len(f.publisher.EventsOfType(typ)); got != 1 {
			t.Errorf("published %d %s events, want 1", got, typ)
		}
	}
}

func TestSubmit_PassingBoundaryIsInclusive(t *testing.T) {
	f := newFixture(t)
	a := f.seedAssessment(t, func(a *models.Assessment) { a.PassingScore = 60 })
	resp := f.start(t, a.ID, student)

	// 3 of 5 points is exactly 60%.
	f.answer(t, resp.ID, a.Questions[0].ID, models.AnswerValue{Selected: []int{0}}, student)
	f.answer(t, resp.ID, a.Questions[1].ID, models.AnswerValue{Selected: []int{0}}, student)
	f.answer(t, resp.ID, a.Questions[2].ID, models.AnswerValue{Text: text("recursion")}, student)

	result, err := f.attempts.Submit(f.ctx, resp.ID, student)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if *result.Score != 3 || *result.Percentage != 60 || !*result.Passed {
		t.Errorf("score = %v (%v%%) passed = %v, want 3 (60%%) passed", *result.Score, *result.Percentage, *result.Passed)
	}
}

func TestSubmit_IsIdempotent(t *testing.T) {
	f := newFixture(t)
	a := f.seedAssessment(t)
	resp := f.start(t, a.ID, student)

	first, err := f.attempts.Submit(f.ctx, resp.ID, student)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	second, err := f.attempts.Submit(f.ctx, resp.ID, student)
	if err != nil {
		t.Fatalf("second Submit() error = %v", err)
	}
	if !second.SubmittedAt.Equal(*first.SubmittedAt) {
		t.Errorf("resubmit moved submitted_at")
	}
	if got := len(f.publisher.EventsOfType(events.AttemptSubmitted)); got != 1 {
		t.Errorf("published %d attempt.submitted events, want 1", got)
	}
}

func TestSubmit_AfterDeadline(t *testing.T) {
	f := newFixture(t)
	a := f.seedAssessment(t)
	resp := f.start(t, a.ID, student)
	f.answer(t, resp.ID, a.Questions[1].ID, models.AnswerValue{Selected: []int{0}}, student)

	f.clock.Advance(10*time.Minute + time.Second)

	if _, err := f.attempts.Submit(f.ctx, resp.ID, student); !errors.Is(err, ErrAttemptExpired) {
		t.Fatalf("Submit() error = %v, want ErrAttemptExpired", err)
	}

	stored := f.stored(t, resp.ID)
	if stored.Status != models.AttemptGraded || stored.Score != 1 {
		t.Errorf("status = %s score = %v, want graded with the saved answer counted", stored.Status, stored.Score)
	}
	if got := len(f.publisher.EventsOfType(events.AttemptExpired)); got != 1 {
		t.Errorf("published %d attempt.expired events, want 1", got)
	}
}

func TestSubmit_OtherStudentsAttempt(t *testing.T) {
	f := newFixture(t)
	a := f.seedAssessment(t)
	resp := f.start(t, a.ID, student)

	_, err := f.attempts.Submit(f.ctx, resp.ID, otherStudent)
	if !IsPermissionError(err) {
		t.Fatalf("Submit() error = %v, want PermissionError", err)
	}
	if _, err := f.attempts.Submit(f.ctx, 999, student); !errors.Is(err, ErrAttemptNotFound) {
		t.Fatalf("Submit(unknown) error = %v, want ErrAttemptNotFound", err)
	}
}

func TestGetByID_LazyExpiry(t *testing.T) {
	f := newFixture(t)
	a := f.seedAssessment(t, withQuestions(append(mixedQuestions(), essayQuestion())...))
	resp := f.start(t, a.ID, student)

	f.clock.Advance(11 * time.Minute)

	got, err := f.attempts.GetByID(f.ctx, resp.ID, student)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Status != models.AttemptExpired || got.RemainingSeconds != 0 {
		t.Errorf("status = %s remaining = %d, want expired with no time left", got.Status, got.RemainingSeconds)
	}
	if got.Result == nil || got.Result.GradingComplete {
		t.Errorf("result = %+v, want a provisional result with the essay pending", got.Result)
	}
}

func TestGetByID_PresentationIsStable(t *testing.T) {
	f := newFixture(t)
	a := f.seedAssessment(t, withSettings(func(s *models.AssessmentSettings) {
		s.ShuffleQuestions = true
		s.ShuffleOptions = true
	}))
	started := f.start(t, a.ID, student)

	for i := 0; i < 3; i++ {
		got, err := f.attempts.GetByID(f.ctx, started.ID, student)
		if err != nil {
			t.Fatalf("GetByID() error = %v", err)
		}
		for pos := range started.Questions {
			want, have := started.Questions[pos], got.Questions[pos]
			if want.ID != have.ID || len(want.Options) != len(have.Options) {
				t.Fatalf("position %d changed from q%d to q%d", pos, want.ID, have.ID)
			}
			for j := range want.Options {
				if want.Options[j].Index != have.Options[j].Index {
					t.Fatalf("option order of q%d changed", want.ID)
				}
			}
		}
	}
}

func TestGetByID_HidesAnswerKey(t *testing.T) {
	f := newFixture(t)
	a := f.seedAssessment(t)
	resp := f.start(t, a.ID, student)

	for _, q := range resp.Questions {
		for _, opt := range q.Options {
			if opt.Text == "" {
				t.Errorf("q%d option %d has no text", q.ID, opt.Index)
			}
		}
		if q.Page != q.Position-1 {
			t.Errorf("q%d on page %d at position %d with one question per page", q.ID, q.Page, q.Position)
		}
	}
}

func TestGetResult_Visibility(t *testing.T) {
	f := newFixture(t)
	a := f.seedAssessment(t,
		withQuestions(append(mixedQuestions(), essayQuestion())...),
		withSettings(func(s *models.AssessmentSettings) { s.ShowResultsImmediately = false }),
	)
	essayID := a.Questions[3].ID
	resp := f.start(t, a.ID, student)

	if _, err := f.attempts.GetResult(f.ctx, resp.ID, student); !errors.Is(err, ErrAttemptNotSubmitted) {
		t.Fatalf("GetResult() before submit error = %v, want ErrAttemptNotSubmitted", err)
	}

	f.answer(t, resp.ID, essayID, models.AnswerValue{Text: text("Consistency, availability, partition tolerance.")}, student)
	submitted, err := f.attempts.Submit(f.ctx, resp.ID, student)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if submitted.Score != nil || submitted.Status != models.AttemptSubmitted {
		t.Fatalf("submit response = %+v, want withheld score and submitted status", submitted)
	}

	pending, err := f.attempts.GetResult(f.ctx, resp.ID, student)
	if !errors.Is(err, ErrGradingIncomplete) || pending == nil {
		t.Fatalf("GetResult() = %v, %v; want a result with ErrGradingIncomplete", pending, err)
	}
	if pending.Score != nil || len(pending.PendingQuestions) != 1 || pending.PendingQuestions[0] != essayID {
		t.Errorf("student view while pending = %+v", pending)
	}

	staffView, err := f.attempts.GetResult(f.ctx, resp.ID, teacher)
	if !errors.Is(err, ErrGradingIncomplete) {
		t.Fatalf("staff GetResult() error = %v", err)
	}
	if staffView.Score == nil || !staffView.Provisional || len(staffView.Questions) != 4 {
		t.Errorf("staff view = %+v, want provisional score with detail", staffView)
	}

	if _, err := f.grading.RecordManualScore(f.ctx, resp.ID, essayID, &models.ManualScoreRequest{Points: 4}, teacher); err != nil {
		t.Fatalf("RecordManualScore() error = %v", err)
	}

	final, err := f.attempts.GetResult(f.ctx, resp.ID, student)
	if err != nil {
		t.Fatalf("GetResult() after grading error = %v", err)
	}
	if final.Score == nil || *final.Score != 4 || final.Passed == nil || final.Provisional {
		t.Errorf("final student view = %+v", final)
	}
	if final.Questions != nil {
		t.Errorf("student saw per-question detail with show_correct_answers off")
	}
}

func TestGetResult_ShowsAnswerKeyWhenEnabled(t *testing.T) {
	f := newFixture(t)
	a := f.seedAssessment(t, withSettings(func(s *models.AssessmentSettings) { s.ShowCorrectAnswers = true }))
	resp := f.start(t, a.ID, student)
	f.answer(t, resp.ID, a.Questions[0].ID, models.AnswerValue{Selected: []int{1}}, student)

	if _, err := f.attempts.Submit(f.ctx, resp.ID, student); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	result, err := f.attempts.GetResult(f.ctx, resp.ID, student)
	if err != nil {
		t.Fatalf("GetResult() error = %v", err)
	}

	detail := result.Questions[0]
	if detail.Status != models.GradeIncorrect || detail.Answer == nil {
		t.Fatalf("mcq detail = %+v", detail)
	}
	if len(detail.CorrectAnswers) != 2 || detail.CorrectAnswers[0] != 0 || detail.CorrectAnswers[1] != 2 {
		t.Errorf("correct answers = %v, want [0 2]", detail.CorrectAnswers)
	}
	if kw := result.Questions[2].ExpectedKeywords; len(kw) != 1 || kw[0] != "recursion" {
		t.Errorf("short answer keywords = %v", kw)
	}
}

func TestListByAssessment(t *testing.T) {
	f := newFixture(t)
	a := f.seedAssessment(t)
	f.start(t, a.ID, student)
	f.start(t, a.ID, otherStudent)

	if _, err := f.attempts.ListByAssessment(f.ctx, a.ID, listAll(), student); !IsPermissionError(err) {
		t.Fatalf("student ListByAssessment() error = %v, want PermissionError", err)
	}
	if _, err := f.attempts.ListByAssessment(f.ctx, a.ID, listAll(), otherTeacher); !IsPermissionError(err) {
		t.Fatalf("non-owner ListByAssessment() error = %v, want PermissionError", err)
	}

	f.clock.Advance(time.Hour)
	list, err := f.attempts.ListByAssessment(f.ctx, a.ID, listAll(), teacher)
	if err != nil {
		t.Fatalf("ListByAssessment() error = %v", err)
	}
	if list.Total != 2 || len(list.Attempts) != 2 {
		t.Fatalf("listed %d of %d attempts, want 2", len(list.Attempts), list.Total)
	}
	for _, s := range list.Attempts {
		if s.Status == models.AttemptInProgress {
			t.Errorf("attempt %d still in progress an hour after its deadline", s.ID)
		}
	}
}
