package validator

import (
	"fmt"
	"strings"

	"github.com/SAP-F-2025/assessment-engine/internal/models"
	"github.com/go-playground/validator/v10"
)

// registerBusinessRules registers custom business rule validators
func (v *Validator) registerBusinessRules() {
	// Title validation (1-200 characters)
	v.validate.RegisterValidation("assessment_title", func(fl validator.FieldLevel) bool {
		title := strings.TrimSpace(fl.Field().String())
		return len(title) >= 1 && len(title) <= 200
	})

	// Assessment duration validation (1-600 minutes)
	v.validate.RegisterValidation("assessment_duration", func(fl validator.FieldLevel) bool {
		duration := fl.Field().Int()
		return duration >= 1 && duration <= 600
	})

	// Max attempts validation (1-20)
	v.validate.RegisterValidation("max_attempts", func(fl validator.FieldLevel) bool {
		attempts := fl.Field().Int()
		return attempts >= 1 && attempts <= 20
	})

	// Passing score validation (0-100 percent)
	v.validate.RegisterValidation("passing_score", func(fl validator.FieldLevel) bool {
		score := fl.Field().Float()
		return score >= 0 && score <= 100
	})

	v.validate.RegisterValidation("question_type", func(fl validator.FieldLevel) bool {
		switch models.QuestionType(fl.Field().String()) {
		case models.MultipleChoice, models.TrueFalse, models.Essay, models.ShortAnswer:
			return true
		}
		return false
	})

	v.validate.RegisterValidation("assessment_type", func(fl validator.FieldLevel) bool {
		switch models.AssessmentType(fl.Field().String()) {
		case models.TypeExam, models.TypeQuiz, models.TypeCAT:
			return true
		}
		return false
	})
}

// ValidateAssessment checks an assessment header, its settings and every attached question.
func (v *Validator) ValidateAssessment(a *models.Assessment) ValidationErrors {
	var errors ValidationErrors

	if title := strings.TrimSpace(a.Title); title == "" || len(title) > 200 {
		errors = append(errors, *NewValidationError("title", "must be between 1 and 200 characters", a.Title))
	}
	if a.DurationMinutes < 1 {
		errors = append(errors, *NewValidationError("duration_minutes", "must be at least 1 minute", a.DurationMinutes))
	}
	if a.MaxAttempts < 1 {
		errors = append(errors, *NewValidationError("max_attempts", "must be at least 1", a.MaxAttempts))
	}
	if a.PassingScore < 0 || a.PassingScore > 100 {
		errors = append(errors, *NewValidationError("passing_score", "must be between 0 and 100", a.PassingScore))
	}
	if a.AvailableFrom != nil && a.AvailableUntil != nil && !a.AvailableUntil.After(*a.AvailableFrom) {
		errors = append(errors, *NewValidationError("available_until", "must be after available_from", a.AvailableUntil))
	}
	if a.Settings.QuestionPerPage < 1 {
		errors = append(errors, *NewValidationError("settings.question_per_page", "must be at least 1", a.Settings.QuestionPerPage))
	}

	for i := range a.Questions {
		for _, e := range v.ValidateQuestion(&a.Questions[i]) {
			e.Field = fmt.Sprintf("questions[%d].%s", i, e.Field)
			errors = append(errors, e)
		}
	}

	return errors
}

// ValidateQuestion enforces the shape invariants of each question type.
func (v *Validator) ValidateQuestion(q *models.Question) ValidationErrors {
	var errors ValidationErrors

	if strings.TrimSpace(q.Text) == "" {
		errors = append(errors, *NewValidationError("text", "cannot be empty", nil))
	}
	if q.Points <= 0 {
		errors = append(errors, *NewValidationError("points", "must be positive", q.Points))
	}
	if q.TimeLimitSeconds != nil && *q.TimeLimitSeconds <= 0 {
		errors = append(errors, *NewValidationError("time_limit_seconds", "must be positive", *q.TimeLimitSeconds))
	}

	switch q.Type {
	case models.MultipleChoice:
		errors = append(errors, validateChoiceOptions(q)...)
		if len(q.Options) < 2 {
			errors = append(errors, *NewValidationError("options", "must have at least 2 options", len(q.Options)))
		}
		if len(q.CorrectAnswers()) < 1 {
			errors = append(errors, *NewValidationError("options", "must mark at least one option correct", nil))
		}
	case models.TrueFalse:
		errors = append(errors, validateChoiceOptions(q)...)
		if len(q.Options) != 2 {
			errors = append(errors, *NewValidationError("options", "must have exactly 2 options", len(q.Options)))
		}
		if len(q.CorrectAnswers()) != 1 {
			errors = append(errors, *NewValidationError("options", "must mark exactly one option correct", len(q.CorrectAnswers())))
		}
	case models.Essay:
		errors = append(errors, validateNoOptions(q)...)
		if q.MaxWords == nil || *q.MaxWords < models.MinEssayWords {
			errors = append(errors, *NewValidationError("max_words", fmt.Sprintf("must be at least %d", models.MinEssayWords), q.MaxWords))
		}
	case models.ShortAnswer:
		errors = append(errors, validateNoOptions(q)...)
		if len(q.ExpectedKeywords) == 0 {
			errors = append(errors, *NewValidationError("expected_keywords", "must have at least one keyword", nil))
		}
		for i, kw := range q.ExpectedKeywords {
			if strings.TrimSpace(kw) == "" {
				errors = append(errors, *NewValidationError(fmt.Sprintf("expected_keywords[%d]", i), "keyword cannot be empty", kw))
			}
		}
	default:
		errors = append(errors, *NewValidationError("type", "unsupported question type", q.Type))
	}

	return errors
}

func validateChoiceOptions(q *models.Question) ValidationErrors {
	var errors ValidationErrors
	for i, opt := range q.Options {
		if strings.TrimSpace(opt.Text) == "" {
			errors = append(errors, *NewValidationError(fmt.Sprintf("options[%d].text", i), "option text cannot be empty", nil))
		}
	}
	if q.MaxWords != nil {
		errors = append(errors, *NewValidationError("max_words", "only applies to essay questions", *q.MaxWords))
	}
	if len(q.ExpectedKeywords) > 0 {
		errors = append(errors, *NewValidationError("expected_keywords", "only applies to short answer questions", len(q.ExpectedKeywords)))
	}
	return errors
}

func validateNoOptions(q *models.Question) ValidationErrors {
	var errors ValidationErrors
	if len(q.Options) > 0 {
		errors = append(errors, *NewValidationError("options", "not allowed for this question type", len(q.Options)))
	}
	if q.Type == models.Essay && len(q.ExpectedKeywords) > 0 {
		errors = append(errors, *NewValidationError("expected_keywords", "only applies to short answer questions", len(q.ExpectedKeywords)))
	}
	if q.Type == models.ShortAnswer && q.MaxWords != nil {
		errors = append(errors, *NewValidationError("max_words", "only applies to essay questions", *q.MaxWords))
	}
	return errors
}

// ValidateAnswer checks that a submitted value fits the question it answers.
func (v *Validator) ValidateAnswer(q *models.Question, value models.AnswerValue) ValidationErrors {
	var errors ValidationErrors

	if q.Type.IsChoice() {
		if value.Text != nil {
			errors = append(errors, *NewValidationError("text", "choice questions take selected option indices", nil))
		}
		if q.Type == models.TrueFalse && len(value.Selected) > 1 {
			errors = append(errors, *NewValidationError("selected", "true/false accepts a single option", len(value.Selected)))
		}
		seen := make(map[int]bool, len(value.Selected))
		for i, idx := range value.Selected {
			if idx < 0 || idx >= len(q.Options) {
				errors = append(errors, *NewValidationError(fmt.Sprintf("selected[%d]", i), "option index out of range", idx))
				continue
			}
			if seen[idx] {
				errors = append(errors, *NewValidationError(fmt.Sprintf("selected[%d]", i), "option selected twice", idx))
			}
			seen[idx] = true
		}
		return errors
	}

	if len(value.Selected) > 0 {
		errors = append(errors, *NewValidationError("selected", "free text questions take a text answer", nil))
	}
	if q.Type == models.Essay && value.Text != nil && q.MaxWords != nil {
		if words := len(strings.Fields(*value.Text)); words > *q.MaxWords {
			errors = append(errors, *NewValidationError("text", fmt.Sprintf("exceeds %d words", *q.MaxWords), words))
		}
	}
	return errors
}
