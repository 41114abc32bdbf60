package services

import (
	"context"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/SAP-F-2025/assessment-engine/internal/models"
)

const (
	resultsSheet   = "Results"
	questionsSheet = "Questions"
)

var (
	resultsHeader = []interface{}{
		"Attempt ID", "Student ID", "Student Name", "Attempt", "Status",
		"Score", "Total Points", "Percentage", "Passed", "Grading Complete", "Submitted At",
	}
	questionsHeader = []interface{}{
		"Attempt ID", "Student ID", "Question ID", "Type", "Status", "Awarded", "Max Points",
	}
)

type resultExportService struct {
	*lifecycle
}

func NewResultExportService(deps Dependencies) ResultExportService {
	return &resultExportService{lifecycle: newLifecycle(deps)}
}

// ExportResults writes one row per attempt and one row per graded question.
// Overdue attempts are expired first so the workbook never shows a stale in_progress row.
func (s *resultExportService) ExportResults(ctx context.Context, assessmentID uint, actor Actor) ([]byte, string, error) {
	s.Logger.InfoContext(ctx, "Exporting results", "assessment_id", assessmentID, "user_id", actor.ID)

	assessment, err := s.loadAssessment(ctx, assessmentID)
	if err != nil {
		return nil, "", err
	}
	if !canManage(actor, assessment) {
		return nil, "", NewPermissionError(actor.ID, assessmentID, "assessment", "export", "not the assessment owner")
	}

	attempts, err := s.allAttempts(ctx, assessmentID)
	if err != nil {
		return nil, "", err
	}
	for i, attempt := range attempts {
		current, err := s.expireIfDue(ctx, attempt, assessment)
		if err != nil {
			return nil, "", err
		}
		attempts[i] = current
	}

	names := s.studentNames(ctx, attempts)

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			s.Logger.ErrorContext(ctx, "Failed to close workbook", "error", err)
		}
	}()

	if err := writeResultsSheet(f, attempts, names); err != nil {
		return nil, "", fmt.Errorf("failed to write results sheet: %w", err)
	}
	if err := writeQuestionsSheet(f, attempts); err != nil {
		return nil, "", fmt.Errorf("failed to write questions sheet: %w", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, "", fmt.Errorf("failed to render workbook: %w", err)
	}

	s.Logger.InfoContext(ctx, "Results exported",
		"assessment_id", assessmentID,
		"attempts", len(attempts),
		"bytes", buf.Len())
	return buf.Bytes(), fmt.Sprintf("assessment-%d-results.xlsx", assessmentID), nil
}

// studentNames resolves display names when an identity provider is configured.
// Lookup failures leave the column blank.
func (s *resultExportService) studentNames(ctx context.Context, attempts []*models.Attempt) map[string]string {
	names := make(map[string]string)
	users := s.Repo.User()
	if users == nil || len(attempts) == 0 {
		return names
	}

	seen := make(map[string]bool)
	var ids []string
	for _, a := range attempts {
		if !seen[a.StudentID] {
			seen[a.StudentID] = true
			ids = append(ids, a.StudentID)
		}
	}

	found, err := users.GetByIDs(ctx, ids)
	if err != nil {
		s.Logger.WarnContext(ctx, "Failed to resolve student names", "error", err)
		return names
	}
	for _, u := range found {
		names[u.ID] = u.FullName
	}
	return names
}

func writeResultsSheet(f *excelize.File, attempts []*models.Attempt, names map[string]string) error {
	if err := f.SetSheetName("Sheet1", resultsSheet); err != nil {
		return err
	}
	if err := writeHeader(f, resultsSheet, resultsHeader); err != nil {
		return err
	}

	for i, a := range attempts {
		submitted := ""
		if a.SubmittedAt != nil {
			submitted = a.SubmittedAt.UTC().Format(time.RFC3339)
		}
		row := []interface{}{
			a.ID, a.StudentID, names[a.StudentID], a.AttemptNumber, string(a.Status),
			a.Score, a.TotalPoints, a.Percentage, a.Passed, a.GradingComplete, submitted,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(resultsSheet, cell, &row); err != nil {
			return err
		}
	}
	return f.SetColWidth(resultsSheet, "A", "K", 18)
}

func writeQuestionsSheet(f *excelize.File, attempts []*models.Attempt) error {
	if _, err := f.NewSheet(questionsSheet); err != nil {
		return err
	}
	if err := writeHeader(f, questionsSheet, questionsHeader); err != nil {
		return err
	}

	rowNum := 2
	for _, a := range attempts {
		for _, qr := range a.Results {
			row := []interface{}{
				a.ID, a.StudentID, qr.QuestionID, string(qr.Type), string(qr.Status), qr.AwardedPoints, qr.MaxPoints,
			}
			cell, err := excelize.CoordinatesToCellName(1, rowNum)
			if err != nil {
				return err
			}
			if err := f.SetSheetRow(questionsSheet, cell, &row); err != nil {
				return err
			}
			rowNum++
		}
	}
	return f.SetColWidth(questionsSheet, "A", "G", 16)
}

func writeHeader(f *excelize.File, sheet string, header []interface{}) error {
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return err
	}
	return f.SetCellStyle(sheet, "A1", last, style)
}
