// Package scoring grades attempts. Grading is a pure computation over an
// assessment snapshot and an attempt's answers and manual scores.
package scoring

import (
	"errors"
	"sort"
	"strings"

	"github.com/SAP-F-2025/assessment-engine/internal/models"
)

// ErrGradingIncomplete is returned by Result.Final while essay scores are pending.
var ErrGradingIncomplete = errors.New("grading incomplete: manual scores pending")

// passEpsilon absorbs float error at the inclusive pass boundary.
const passEpsilon = 1e-9

// Result is the aggregate outcome of grading one attempt.
type Result struct {
	Score       float64                 `json:"score"`
	TotalPoints float64                 `json:"total_points"`
	Percentage  float64                 `json:"percentage"`
	Passed      bool                    `json:"passed"`
	Questions   []models.QuestionResult `json:"questions"`
	Pending     []uint                  `json:"pending,omitempty"`
}

// Complete reports whether every question has a final score.
func (r *Result) Complete() bool {
	return len(r.Pending) == 0
}

// Final returns the released score, or ErrGradingIncomplete while manual grading is outstanding.
func (r *Result) Final() (float64, bool, error) {
	if !r.Complete() {
		return 0, false, ErrGradingIncomplete
	}
	return r.Score, r.Passed, nil
}

// strategy grades one question given the saved answer, if any.
type strategy interface {
	grade(q *models.Question, answer *models.AnswerValue, manual *models.ManualScore) models.QuestionResult
}

// Engine routes each question type to its strategy.
type Engine struct {
	strategies map[models.QuestionType]strategy
}

func NewEngine() *Engine {
	return &Engine{
		strategies: map[models.QuestionType]strategy{
			models.MultipleChoice: choiceStrategy{},
			models.TrueFalse:      choiceStrategy{},
			models.ShortAnswer:    keywordStrategy{},
			models.Essay:          essayStrategy{},
		},
	}
}

// Grade scores attempt against assessment. It does not modify either argument.
func (e *Engine) Grade(assessment *models.Assessment, attempt *models.Attempt) Result {
	res := Result{Questions: make([]models.QuestionResult, 0, len(assessment.Questions))}

	for i := range assessment.Questions {
		q := &assessment.Questions[i]
		res.TotalPoints += q.Points

		var answer *models.AnswerValue
		if v, ok := attempt.AnswerFor(q.ID); ok {
			answer = &v
		}
		manual, _ := attempt.ManualScoreFor(q.ID)

		var qr models.QuestionResult
		if s, ok := e.strategies[q.Type]; ok {
			qr = s.grade(q, answer, manual)
		} else {
			qr = pending(q)
		}

		if qr.Status == models.GradePendingManualGrade {
			res.Pending = append(res.Pending, q.ID)
		}
		res.Score += qr.AwardedPoints
		res.Questions = append(res.Questions, qr)
	}

	if res.TotalPoints > 0 {
		res.Percentage = res.Score / res.TotalPoints * 100
	}
	res.Passed = res.Percentage+passEpsilon >= assessment.PassingScore

	return res
}

type choiceStrategy struct{}

func (choiceStrategy) grade(q *models.Question, answer *models.AnswerValue, _ *models.ManualScore) models.QuestionResult {
	if answer == nil || len(answer.Selected) == 0 {
		return unanswered(q)
	}
	return verdict(q, sameSet(answer.Selected, q.CorrectAnswers()))
}

type keywordStrategy struct{}

func (keywordStrategy) grade(q *models.Question, answer *models.AnswerValue, _ *models.ManualScore) models.QuestionResult {
	if answer == nil || answer.Text == nil || strings.TrimSpace(*answer.Text) == "" {
		return unanswered(q)
	}
	return verdict(q, MatchesKeyword(*answer.Text, q.ExpectedKeywords, q.CaseSensitive))
}

type essayStrategy struct{}

func (essayStrategy) grade(q *models.Question, _ *models.AnswerValue, manual *models.ManualScore) models.QuestionResult {
	if manual == nil {
		return pending(q)
	}
	return models.QuestionResult{
		QuestionID:    q.ID,
		Type:          q.Type,
		Status:        models.GradeManuallyGraded,
		AwardedPoints: manual.Points,
		MaxPoints:     q.Points,
		Feedback:      manual.Feedback,
	}
}

// MatchesKeyword reports whether any keyword occurs in the normalized submission.
// Both sides are trimmed, and lower-cased unless caseSensitive.
func MatchesKeyword(submission string, keywords []string, caseSensitive bool) bool {
	normalized := strings.TrimSpace(submission)
	if !caseSensitive {
		normalized = strings.ToLower(normalized)
	}
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if !caseSensitive {
			kw = strings.ToLower(kw)
		}
		if kw != "" && strings.Contains(normalized, kw) {
			return true
		}
	}
	return false
}

func sameSet(a, b []int) bool {
	x, y := dedupeSorted(a), dedupeSorted(b)
	if len(x) != len(y) {
		return false
	}
	for i := range x {
		if x[i] != y[i] {
			return false
		}
	}
	return true
}

func dedupeSorted(in []int) []int {
	out := append([]int(nil), in...)
	sort.Ints(out)
	n := 0
	for i, v := range out {
		if i == 0 || v != out[n-1] {
			out[n] = v
			n++
		}
	}
	return out[:n]
}

func verdict(q *models.Question, correct bool) models.QuestionResult {
	qr := models.QuestionResult{
		QuestionID: q.ID,
		Type:       q.Type,
		Status:     models.GradeIncorrect,
		MaxPoints:  q.Points,
		IsCorrect:  &correct,
	}
	if correct {
		qr.Status = models.GradeCorrect
		qr.AwardedPoints = q.Points
	}
	return qr
}

func unanswered(q *models.Question) models.QuestionResult {
	correct := false
	return models.QuestionResult{
		QuestionID: q.ID,
		Type:       q.Type,
		Status:     models.GradeUnanswered,
		MaxPoints:  q.Points,
		IsCorrect:  &correct,
	}
}

func pending(q *models.Question) models.QuestionResult {
	return models.QuestionResult{
		QuestionID: q.ID,
		Type:       q.Type,
		Status:     models.GradePendingManualGrade,
		MaxPoints:  q.Points,
	}
}
