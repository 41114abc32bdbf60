package services

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/SAP-F-2025/assessment-engine/internal/models"
	"github.com/SAP-F-2025/assessment-engine/internal/repositories/memory"
)

func TestExportResults(t *testing.T) {
	users := memory.NewUserStore(
		models.User{ID: student.ID, FullName: "Ada Lovelace", Role: models.RoleStudent},
	)
	f := newFixture(t, memory.WithUsers(users))
	a := f.seedAssessment(t)

	done := f.start(t, a.ID, student)
	f.answerAll(t, a, done.ID, student, "recursion")
	f.submit(t, done.ID, student)

	overdue := f.start(t, a.ID, otherStudent)
	f.clock.Advance(11 * time.Minute)

	data, filename, err := f.export.ExportResults(f.ctx, a.ID, teacher)
	if err != nil {
		t.Fatalf("ExportResults() error = %v", err)
	}
	if want := fmt.Sprintf("assessment-%d-results.xlsx", a.ID); filename != want {
		t.Errorf("filename = %q, want %q", filename, want)
	}

	wb, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer wb.Close()

	rows, err := wb.GetRows(resultsSheet)
	if err != nil {
		t.Fatalf("GetRows(%s) error = %v", resultsSheet, err)
	}
	if len(rows) != 3 {
		t.Fatalf("results rows = %d, want header plus 2 attempts", len(rows))
	}
	if rows[0][0] != "Attempt ID" {
		t.Errorf("header = %v", rows[0])
	}

	byStudent := make(map[string][]string)
	for _, row := range rows[1:] {
		byStudent[row[1]] = row
	}
	if row := byStudent[student.ID]; row[2] != "Ada Lovelace" || row[4] != string(models.AttemptGraded) || row[5] != "5" {
		t.Errorf("submitted row = %v, want named, graded, score 5", row)
	}
	if row := byStudent[otherStudent.ID]; row[2] != "" || row[4] != string(models.AttemptGraded) {
		t.Errorf("overdue row = %v, want unnamed and graded after expiry", row)
	}
	if got := f.stored(t, overdue.ID).Status; got != models.AttemptGraded {
		t.Errorf("overdue attempt stored status = %s, want graded", got)
	}

	questionRows, err := wb.GetRows(questionsSheet)
	if err != nil {
		t.Fatalf("GetRows(%s) error = %v", questionsSheet, err)
	}
	if len(questionRows) != 1+2*len(a.Questions) {
		t.Errorf("question rows = %d, want %d", len(questionRows), 1+2*len(a.Questions))
	}
}

func TestExportResults_Rejections(t *testing.T) {
	f := newFixture(t)
	a := f.seedAssessment(t)

	for _, actor := range []Actor{student, otherTeacher} {
		if _, _, err := f.export.ExportResults(f.ctx, a.ID, actor); !IsPermissionError(err) {
			t.Errorf("ExportResults() as %s error = %v, want permission error", actor.ID, err)
		}
	}
	if _, _, err := f.export.ExportResults(f.ctx, 999, admin); !errors.Is(err, ErrAssessmentNotFound) {
		t.Errorf("ExportResults() unknown error = %v, want ErrAssessmentNotFound", err)
	}

	// An assessment without attempts still yields a workbook with headers.
	data, _, err := f.export.ExportResults(f.ctx, a.ID, admin)
	if err != nil {
		t.Fatalf("ExportResults() error = %v", err)
	}
	wb, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer wb.Close()
	if rows, _ := wb.GetRows(resultsSheet); len(rows) != 1 {
		t.Errorf("results rows = %d, want header only", len(rows))
	}
}
