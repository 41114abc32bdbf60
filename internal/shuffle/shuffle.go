// Package shuffle produces reproducible per-attempt presentation orders.
package shuffle

import (
	"encoding/binary"
	"math/rand"
	"sort"
	"strconv"

	"github.com/cespare/xxhash/v2"

	"github.com/SAP-F-2025/assessment-engine/internal/models"
)

// Seed fully determines a permutation.
type Seed int64

// SeedFor derives the seed of one attempt. Resuming the same attempt number yields the same seed.
func SeedFor(assessmentID uint, studentID string, attemptNumber int) Seed {
	d := xxhash.New()
	_, _ = d.WriteString(strconv.FormatUint(uint64(assessmentID), 10))
	_, _ = d.WriteString(":")
	_, _ = d.WriteString(studentID)
	_, _ = d.WriteString(":")
	_, _ = d.WriteString(strconv.Itoa(attemptNumber))
	return Seed(d.Sum64())
}

// Derive returns an independent seed for a sub-sequence, e.g. one question's options.
func (s Seed) Derive(salt uint64) Seed {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[:8], uint64(s))
	binary.LittleEndian.PutUint64(buf[8:], salt)
	return Seed(xxhash.Sum64(buf[:]))
}

// OrderFor returns a permutation of items determined by seed. The input slice is not modified.
func OrderFor[T any](seed Seed, items []T) []T {
	out := make([]T, len(items))
	copy(out, items)
	r := rand.New(rand.NewSource(int64(seed)))
	r.Shuffle(len(out), func(i, j int) {
		out[i], out[j] = out[j], out[i]
	})
	return out
}

// Service applies an assessment's shuffle settings to one attempt.
type Service struct{}

func NewService() *Service {
	return &Service{}
}

// QuestionOrder returns the questions in the order this attempt presents them.
// Without shuffle_questions the authored order is returned.
func (s *Service) QuestionOrder(assessment *models.Assessment, attempt *models.Attempt) []models.Question {
	authored := make([]models.Question, len(assessment.Questions))
	copy(authored, assessment.Questions)
	sort.SliceStable(authored, func(i, j int) bool { return authored[i].Order < authored[j].Order })

	if !assessment.Settings.ShuffleQuestions {
		return authored
	}
	return OrderFor(seedOf(attempt), authored)
}

// OptionOrder returns original option indices in presentation order for a choice question.
func (s *Service) OptionOrder(assessment *models.Assessment, attempt *models.Attempt, question *models.Question) []int {
	indices := make([]int, len(question.Options))
	for i := range indices {
		indices[i] = i
	}
	if !assessment.Settings.ShuffleOptions || !question.Type.IsChoice() {
		return indices
	}
	return OrderFor(seedOf(attempt).Derive(uint64(question.ID)), indices)
}

// PageIndex maps each question id to its zero-based page in this attempt's presentation.
func (s *Service) PageIndex(assessment *models.Assessment, attempt *models.Attempt) map[uint]int {
	ordered := s.QuestionOrder(assessment, attempt)
	pages := make(map[uint]int, len(ordered))
	for pos, q := range ordered {
		pages[q.ID] = assessment.Settings.PageOf(pos)
	}
	return pages
}

func seedOf(attempt *models.Attempt) Seed {
	return SeedFor(attempt.AssessmentID, attempt.StudentID, attempt.AttemptNumber)
}
