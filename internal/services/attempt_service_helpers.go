package services

import (
	"github.com/SAP-F-2025/assessment-engine/internal/models"
)

// buildAttemptResponse renders the attempt in its own presentation order.
// Finished attempts carry the result the actor is allowed to see.
func (l *lifecycle) buildAttemptResponse(assessment *models.Assessment, attempt *models.Attempt, actor Actor, resumed bool) *AttemptResponse {
	resp := &AttemptResponse{
		ID:               attempt.ID,
		AssessmentID:     attempt.AssessmentID,
		StudentID:        attempt.StudentID,
		AttemptNumber:    attempt.AttemptNumber,
		Status:           attempt.Status,
		StartedAt:        attempt.StartedAt,
		ExpiresAt:        attempt.ExpiresAt,
		SubmittedAt:      attempt.SubmittedAt,
		RemainingSeconds: l.remainingSeconds(attempt),
		FurthestPage:     attempt.FurthestPage,
		AllowBacktrack:   assessment.Settings.AllowBacktrack,
		Version:          attempt.Version,
		Resumed:          resumed,
		Questions:        l.presentQuestions(assessment, attempt),
	}

	if len(attempt.Answers) > 0 {
		resp.Answers = make(map[uint]models.AnswerValue, len(attempt.Answers))
		for _, ans := range attempt.Answers {
			resp.Answers[ans.QuestionID] = ans.Value.Data()
		}
	}

	if attempt.Status.IsFinished() {
		show := actor.IsStaff() || attempt.GradingComplete || assessment.Settings.ShowResultsImmediately
		resp.Result = l.buildResult(assessment, attempt, actor, show)
	}
	return resp
}

func (l *lifecycle) presentQuestions(assessment *models.Assessment, attempt *models.Attempt) []PresentedQuestion {
	ordered := l.Shuffle.QuestionOrder(assessment, attempt)
	out := make([]PresentedQuestion, 0, len(ordered))

	for pos := range ordered {
		q := &ordered[pos]
		pq := PresentedQuestion{
			ID:               q.ID,
			Type:             q.Type,
			Text:             q.Text,
			Points:           q.Points,
			Position:         pos + 1,
			Page:             assessment.Settings.PageOf(pos),
			TimeLimitSeconds: q.TimeLimitSeconds,
			MaxWords:         q.MaxWords,
		}
		if q.Type.IsChoice() {
			for _, idx := range l.Shuffle.OptionOrder(assessment, attempt, q) {
				pq.Options = append(pq.Options, PresentedOption{Index: idx, Text: q.Options[idx].Text})
			}
		}
		out = append(out, pq)
	}
	return out
}

// buildResult applies visibility rules: score fields only when show is set,
// per-question detail only for staff or when the assessment reveals answers.
func (l *lifecycle) buildResult(assessment *models.Assessment, attempt *models.Attempt, actor Actor, show bool) *AttemptResult {
	res := &AttemptResult{
		AttemptID:       attempt.ID,
		AssessmentID:    attempt.AssessmentID,
		StudentID:       attempt.StudentID,
		AttemptNumber:   attempt.AttemptNumber,
		Status:          attempt.Status,
		SubmittedAt:     attempt.SubmittedAt,
		GradedAt:        attempt.GradedAt,
		GradingComplete: attempt.GradingComplete,
		TotalPoints:     attempt.TotalPoints,
	}

	for _, qr := range attempt.Results {
		if qr.Status == models.GradePendingManualGrade {
			res.PendingQuestions = append(res.PendingQuestions, qr.QuestionID)
		}
	}

	if !show {
		return res
	}

	score, pct := attempt.Score, attempt.Percentage
	res.Score = &score
	res.Percentage = &pct
	if attempt.GradingComplete {
		passed := attempt.Passed
		res.Passed = &passed
	} else {
		res.Provisional = true
	}

	if actor.IsStaff() || assessment.Settings.ShowCorrectAnswers {
		res.Questions = questionDetails(assessment, attempt)
	}
	return res
}

func questionDetails(assessment *models.Assessment, attempt *models.Attempt) []QuestionResultView {
	views := make([]QuestionResultView, 0, len(attempt.Results))
	for _, qr := range attempt.Results {
		view := QuestionResultView{QuestionResult: qr}
		if v, ok := attempt.AnswerFor(qr.QuestionID); ok {
			view.Answer = &v
		}
		if q, _ := assessment.FindQuestion(qr.QuestionID); q != nil {
			view.Explanation = q.Explanation
			switch {
			case q.Type.IsChoice():
				view.CorrectAnswers = q.CorrectAnswers()
			case q.Type == models.ShortAnswer:
				view.ExpectedKeywords = q.ExpectedKeywords
			}
		}
		views = append(views, view)
	}
	return views
}

func summarize(a *models.Attempt) *AttemptSummary {
	return &AttemptSummary{
		ID:              a.ID,
		StudentID:       a.StudentID,
		AttemptNumber:   a.AttemptNumber,
		Status:          a.Status,
		StartedAt:       a.StartedAt,
		ExpiresAt:       a.ExpiresAt,
		SubmittedAt:     a.SubmittedAt,
		Score:           a.Score,
		TotalPoints:     a.TotalPoints,
		Percentage:      a.Percentage,
		Passed:          a.Passed,
		GradingComplete: a.GradingComplete,
	}
}
