package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/casdoor/casdoor-go-sdk/casdoorsdk"
	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/assessment-engine/internal/events"
	"github.com/SAP-F-2025/assessment-engine/internal/metrics"
	"github.com/SAP-F-2025/assessment-engine/internal/repositories/memory"
	"github.com/SAP-F-2025/assessment-engine/internal/services"
	"github.com/SAP-F-2025/assessment-engine/internal/utils"
	"github.com/SAP-F-2025/assessment-engine/internal/validator"
)

const (
	teacherToken      = "teacher-token"
	studentToken      = "student-token"
	otherStudentToken = "other-student-token"
	adminToken        = "admin-token"
)

// fakeTokens maps bearer tokens to the user Casdoor would have signed into them.
type fakeTokens map[string]casdoorsdk.User

func (f fakeTokens) ParseJwtToken(token string) (*casdoorsdk.Claims, error) {
	u, ok := f[token]
	if !ok {
		return nil, errors.New("token signature is invalid")
	}
	return &casdoorsdk.Claims{User: u}, nil
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testServer struct {
	router *gin.Engine
	clock  *testClock
}

func newTestServer(t *testing.T, limiter *ClientRateLimiter) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	slogLogger := slog.New(slog.NewTextHandler(io.Discard, nil))
	logger := utils.NewSlogLogger(slogLogger)
	clock := &testClock{now: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}
	m := metrics.New()
	v := validator.New()

	sm := services.NewServiceManager(services.Dependencies{
		Repo:      memory.New(),
		Logger:    slogLogger,
		Validator: v,
		Events:    events.NewMockEventPublisher(slogLogger),
		Metrics:   m,
		Now:       clock.Now,
	})
	if err := sm.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	auth := NewAuthMiddleware(fakeTokens{
		teacherToken:      {Id: "teacher-1", Type: "teacher"},
		studentToken:      {Id: "student-1", Type: "student"},
		otherStudentToken: {Id: "student-2", Type: "student"},
		adminToken:        {Id: "admin-1", Type: "admin"},
	}, nil, logger)

	router := gin.New()
	SetupMiddleware(router, logger, m, limiter)
	NewHandlerManager(sm, v, logger, auth, m).SetupRoutes(router)

	return &testServer{router: router, clock: clock}
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return out
}

type createdAssessment struct {
	ID uint `json:"id"`
	Questions []struct {
		ID   uint   `json:"id"`
		Type string `json:"type"`
	} `json:"questions"`
}

type resultBody struct {
	Status          string   `json:"status"`
	GradingComplete bool     `json:"grading_complete"`
	Score           *float64 `json:"score"`
	Passed          *bool    `json:"passed"`
}

func objectiveAssessment() map[string]interface{} {
	return map[string]interface{}{
		"title":            "Networks quiz",
		"type":             "quiz",
		"duration_minutes": 30,
		"max_attempts":     1,
		"passing_score":    50,
		"questions": []map[string]interface{}{
			{
				"type":   "mcq",
				"text":   "Which layers are in the TCP/IP model?",
				"points": 2,
				"options": []map[string]interface{}{
					{"text": "Transport", "is_correct": true},
					{"text": "Presentation", "is_correct": false},
					{"text": "Internet", "is_correct": true},
				},
			},
			{
				"type":   "true_false",
				"text":   "UDP is connectionless.",
				"points": 1,
				"options": []map[string]interface{}{
					{"text": "True", "is_correct": true},
					{"text": "False", "is_correct": false},
				},
			},
		},
	}
}

func essayAssessment() map[string]interface{} {
	return map[string]interface{}{
		"title":            "Design essay",
		"duration_minutes": 60,
		"max_attempts":     2,
		"passing_score":    50,
		"questions": []map[string]interface{}{
			{"type": "essay", "text": "Describe a cache eviction policy.", "points": 5, "max_words": 300},
		},
	}
}

func (s *testServer) createAssessment(t *testing.T, body map[string]interface{}) createdAssessment {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/v1/assessments", teacherToken, body)
	if w.Code != http.StatusCreated {
		t.Fatalf("create assessment status = %d, body %s", w.Code, w.Body.String())
	}
	return decode[createdAssessment](t, w)
}

func (s *testServer) startAttempt(t *testing.T, assessmentID uint, token string) uint {
	t.Helper()
	w := s.do(t, http.MethodPost, fmt.Sprintf("/api/v1/assessments/%d/attempts", assessmentID), token, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("start attempt status = %d, body %s", w.Code, w.Body.String())
	}
	return decode[struct {
		ID uint `json:"id"`
	}](t, w).ID
}

func TestAuthMiddleware(t *testing.T) {
	s := newTestServer(t, nil)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{name: "missing header", header: "", want: http.StatusUnauthorized},
		{name: "not a bearer token", header: "Basic dGVhY2hlcjpzZWNyZXQ=", want: http.StatusUnauthorized},
		{name: "unknown token", header: "Bearer forged", want: http.StatusUnauthorized},
		{name: "valid token", header: "Bearer " + studentToken, want: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/assessments", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			s.router.ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestRoleGuards(t *testing.T) {
	s := newTestServer(t, nil)
	a := s.createAssessment(t, objectiveAssessment())

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		want   int
	}{
		{"student cannot author", http.MethodPost, "/api/v1/assessments", studentToken, http.StatusForbidden},
		{"teacher cannot take", http.MethodPost, fmt.Sprintf("/api/v1/assessments/%d/attempts", a.ID), teacherToken, http.StatusForbidden},
		{"student cannot list attempts", http.MethodGet, fmt.Sprintf("/api/v1/assessments/%d/attempts", a.ID), studentToken, http.StatusForbidden},
		{"student cannot export", http.MethodGet, fmt.Sprintf("/api/v1/assessments/%d/results/export", a.ID), studentToken, http.StatusForbidden},
		{"admin passes staff guard", http.MethodGet, fmt.Sprintf("/api/v1/assessments/%d/attempts", a.ID), adminToken, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body interface{}
			if tt.method == http.MethodPost && tt.path == "/api/v1/assessments" {
				body = objectiveAssessment()
			}
			w := s.do(t, tt.method, tt.path, tt.token, body)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestAttemptFlow(t *testing.T) {
	s := newTestServer(t, nil)
	a := s.createAssessment(t, objectiveAssessment())
	if len(a.Questions) != 2 {
		t.Fatalf("created %d questions, want 2", len(a.Questions))
	}

	attemptID := s.startAttempt(t, a.ID, studentToken)

	w := s.do(t, http.MethodPost, fmt.Sprintf("/api/v1/assessments/%d/attempts", a.ID), studentToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("resume status = %d, want 200 (body %s)", w.Code, w.Body.String())
	}
	resumed := decode[struct {
		ID      uint `json:"id"`
		Resumed bool `json:"resumed"`
	}](t, w)
	if resumed.ID != attemptID || !resumed.Resumed {
		t.Errorf("resume = %+v, want attempt %d resumed", resumed, attemptID)
	}

	answers := map[string][]int{"mcq": {2, 0}, "true_false": {0}}
	for _, q := range a.Questions {
		path := fmt.Sprintf("/api/v1/attempts/%d/answers/%d", attemptID, q.ID)
		w := s.do(t, http.MethodPut, path, studentToken, map[string]interface{}{"selected": answers[q.Type]})
		if w.Code != http.StatusOK {
			t.Fatalf("record %s answer status = %d, body %s", q.Type, w.Code, w.Body.String())
		}
	}

	w = s.do(t, http.MethodGet, fmt.Sprintf("/api/v1/attempts/%d", attemptID), otherStudentToken, nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("foreign GetAttempt status = %d, want 403", w.Code)
	}

	w = s.do(t, http.MethodPost, fmt.Sprintf("/api/v1/attempts/%d/submit", attemptID), studentToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("submit status = %d, body %s", w.Code, w.Body.String())
	}
	submitted := decode[resultBody](t, w)
	if submitted.Score == nil || *submitted.Score != 3 {
		t.Errorf("submit score = %v, want 3", submitted.Score)
	}

	w = s.do(t, http.MethodGet, fmt.Sprintf("/api/v1/attempts/%d/result", attemptID), studentToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("result status = %d, body %s", w.Code, w.Body.String())
	}
	result := decode[resultBody](t, w)
	if result.Status != "graded" || !result.GradingComplete || result.Passed == nil || !*result.Passed {
		t.Errorf("result = %+v, want graded and passed", result)
	}

	w = s.do(t, http.MethodPut, fmt.Sprintf("/api/v1/attempts/%d/answers/%d", attemptID, a.Questions[0].ID), studentToken,
		map[string]interface{}{"selected": []int{1}})
	if w.Code != http.StatusConflict {
		t.Errorf("answer after submit status = %d, want 409", w.Code)
	}

	w = s.do(t, http.MethodPost, fmt.Sprintf("/api/v1/assessments/%d/attempts", a.ID), studentToken, nil)
	if w.Code != http.StatusConflict {
		t.Errorf("second attempt status = %d, want 409 (max attempts)", w.Code)
	}

	w = s.do(t, http.MethodGet, fmt.Sprintf("/api/v1/assessments/%d/attempts", a.ID), teacherToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list attempts status = %d", w.Code)
	}
	if list := decode[services.AttemptListResponse](t, w); list.Total != 1 {
		t.Errorf("list attempts total = %d, want 1", list.Total)
	}
}

func TestEssayGrading(t *testing.T) {
	s := newTestServer(t, nil)
	a := s.createAssessment(t, essayAssessment())
	attemptID := s.startAttempt(t, a.ID, studentToken)

	w := s.do(t, http.MethodPut, fmt.Sprintf("/api/v1/attempts/%d/answers/%d", attemptID, a.Questions[0].ID), studentToken,
		map[string]interface{}{"text": "Least recently used evicts the entry untouched for longest."})
	if w.Code != http.StatusOK {
		t.Fatalf("record essay status = %d, body %s", w.Code, w.Body.String())
	}
	if w := s.do(t, http.MethodPost, fmt.Sprintf("/api/v1/attempts/%d/submit", attemptID), studentToken, nil); w.Code != http.StatusOK {
		t.Fatalf("submit status = %d, body %s", w.Code, w.Body.String())
	}

	resultPath := fmt.Sprintf("/api/v1/attempts/%d/result", attemptID)
	w = s.do(t, http.MethodGet, resultPath, studentToken, nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("pending result status = %d, want 202 (body %s)", w.Code, w.Body.String())
	}
	if pending := decode[resultBody](t, w); pending.GradingComplete || pending.Status != "submitted" {
		t.Errorf("pending result = %+v, want submitted and incomplete", pending)
	}

	scorePath := fmt.Sprintf("/api/v1/attempts/%d/questions/%d/score", attemptID, a.Questions[0].ID)
	if w := s.do(t, http.MethodPost, scorePath, studentToken, map[string]interface{}{"points": 5}); w.Code != http.StatusForbidden {
		t.Errorf("student score status = %d, want 403", w.Code)
	}
	if w := s.do(t, http.MethodPost, scorePath, teacherToken, map[string]interface{}{"points": 9}); w.Code != http.StatusBadRequest {
		t.Errorf("over max score status = %d, want 400", w.Code)
	}

	w = s.do(t, http.MethodPost, scorePath, teacherToken, map[string]interface{}{"points": 4})
	if w.Code != http.StatusOK {
		t.Fatalf("score status = %d, body %s", w.Code, w.Body.String())
	}
	scored := decode[services.ManualScoreResponse](t, w)
	if !scored.GradingComplete || scored.Score != 4 || !scored.Passed {
		t.Errorf("manual score = %+v, want complete with score 4 and passed", scored)
	}

	w = s.do(t, http.MethodGet, resultPath, studentToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("graded result status = %d, body %s", w.Code, w.Body.String())
	}
	if graded := decode[resultBody](t, w); graded.Status != "graded" || graded.Score == nil || *graded.Score != 4 {
		t.Errorf("graded result = %+v, want graded with score 4", graded)
	}
}

func TestRecordAnswer_AfterDeadline(t *testing.T) {
	s := newTestServer(t, nil)
	a := s.createAssessment(t, objectiveAssessment())
	attemptID := s.startAttempt(t, a.ID, studentToken)

	s.clock.Advance(31 * time.Minute)

	w := s.do(t, http.MethodPut, fmt.Sprintf("/api/v1/attempts/%d/answers/%d", attemptID, a.Questions[0].ID), studentToken,
		map[string]interface{}{"selected": []int{0}})
	if w.Code != http.StatusGone {
		t.Fatalf("late answer status = %d, want 410 (body %s)", w.Code, w.Body.String())
	}
	if body := decode[ErrorResponse](t, w); body.Code != "attempt_expired" {
		t.Errorf("error code = %q, want attempt_expired", body.Code)
	}
}

func TestRequestValidation(t *testing.T) {
	s := newTestServer(t, nil)
	a := s.createAssessment(t, objectiveAssessment())
	attemptID := s.startAttempt(t, a.ID, studentToken)

	tests := []struct {
		name     string
		method   string
		path     string
		token    string
		body     interface{}
		want     int
		wantCode string
	}{
		{
			name:     "blank title",
			method:   http.MethodPost,
			path:     "/api/v1/assessments",
			token:    teacherToken,
			body:     map[string]interface{}{"title": "", "duration_minutes": 30, "max_attempts": 1},
			want:     http.StatusBadRequest,
			wantCode: "validation_failed",
		},
		{
			name:     "negative option index",
			method:   http.MethodPut,
			path:     fmt.Sprintf("/api/v1/attempts/%d/answers/%d", attemptID, a.Questions[0].ID),
			token:    studentToken,
			body:     map[string]interface{}{"selected": []int{-1}},
			want:     http.StatusBadRequest,
			wantCode: "validation_failed",
		},
		{
			name:     "malformed id",
			method:   http.MethodGet,
			path:     "/api/v1/attempts/abc",
			token:    studentToken,
			want:     http.StatusBadRequest,
			wantCode: "invalid_request",
		},
		{
			name:     "unknown assessment",
			method:   http.MethodGet,
			path:     "/api/v1/assessments/999",
			token:    teacherToken,
			want:     http.StatusNotFound,
			wantCode: "not_found",
		},
		{
			name:     "locked assessment",
			method:   http.MethodPost,
			path:     fmt.Sprintf("/api/v1/assessments/%d/questions", a.ID),
			token:    teacherToken,
			body:     map[string]interface{}{"type": "essay", "text": "Explain NAT.", "points": 3, "max_words": 200},
			want:     http.StatusConflict,
			wantCode: "assessment_locked",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, tt.method, tt.path, tt.token, tt.body)
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.want, w.Body.String())
			}
			if body := decode[ErrorResponse](t, w); body.Code != tt.wantCode {
				t.Errorf("error code = %q, want %q", body.Code, tt.wantCode)
			}
		})
	}
}

func TestHandleServiceError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewBaseHandler(utils.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	tests := []struct {
		name     string
		err      error
		want     int
		wantCode string
	}{
		{"validation", validator.ValidationErrors{{Field: "title", Message: "is required"}}, http.StatusBadRequest, "validation_failed"},
		{"permission", &services.PermissionError{UserID: "student-2", ResourceType: "attempt", Action: "read"}, http.StatusForbidden, "forbidden"},
		{"assessment not found", fmt.Errorf("load: %w", services.ErrAssessmentNotFound), http.StatusNotFound, "not_found"},
		{"attempt not found", services.ErrAttemptNotFound, http.StatusNotFound, "not_found"},
		{"question not found", services.ErrQuestionNotFound, http.StatusNotFound, "not_found"},
		{"not available", services.ErrAssessmentNotAvailable, http.StatusForbidden, "not_available"},
		{"max attempts", services.ErrMaxAttemptsExceeded, http.StatusConflict, "max_attempts_exceeded"},
		{"expired", services.ErrAttemptExpired, http.StatusGone, "attempt_expired"},
		{"rejected", fmt.Errorf("%w: attempt already submitted", services.ErrAnswerRejected), http.StatusConflict, "answer_rejected"},
		{"locked", services.ErrAssessmentLocked, http.StatusConflict, "assessment_locked"},
		{"not submitted", services.ErrAttemptNotSubmitted, http.StatusConflict, "attempt_not_submitted"},
		{"concurrent update", services.ErrConcurrentUpdate, http.StatusConflict, "concurrent_update"},
		{"grading incomplete", services.ErrGradingIncomplete, http.StatusAccepted, "grading_incomplete"},
		{"unexpected", errors.New("connection reset"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

			h.handleServiceError(c, tt.err)

			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
			if body := decode[ErrorResponse](t, w); body.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", body.Code, tt.wantCode)
			}
		})
	}
}

func TestExportResults(t *testing.T) {
	s := newTestServer(t, nil)
	a := s.createAssessment(t, objectiveAssessment())
	attemptID := s.startAttempt(t, a.ID, studentToken)
	if w := s.do(t, http.MethodPost, fmt.Sprintf("/api/v1/attempts/%d/submit", attemptID), studentToken, nil); w.Code != http.StatusOK {
		t.Fatalf("submit status = %d", w.Code)
	}

	w := s.do(t, http.MethodGet, fmt.Sprintf("/api/v1/assessments/%d/results/export", a.ID), teacherToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("export status = %d, body %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("Content-Type"); got != xlsxContentType {
		t.Errorf("Content-Type = %q, want %q", got, xlsxContentType)
	}
	if got := w.Header().Get("Content-Disposition"); !bytes.HasPrefix([]byte(got), []byte("attachment; filename=")) {
		t.Errorf("Content-Disposition = %q, want an attachment", got)
	}
	// xlsx files are zip archives
	if !bytes.HasPrefix(w.Body.Bytes(), []byte("PK")) {
		t.Error("export body is not a zip archive")
	}
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d", w.Code)
	}
	if body := decode[map[string]interface{}](t, w); body["status"] != "healthy" {
		t.Errorf("health body = %v", body)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header missing")
	}

	w = s.do(t, http.MethodGet, "/metrics", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", w.Code)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte("attempts_started_total")) {
		t.Error("metrics output lacks attempts_started_total")
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	s := newTestServer(t, NewClientRateLimiter(0.01, 1))

	if w := s.do(t, http.MethodGet, "/health", "", nil); w.Code != http.StatusOK {
		t.Fatalf("first request status = %d, want 200", w.Code)
	}
	w := s.do(t, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header missing")
	}
}

func TestClientRateLimiter(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	l := NewClientRateLimiter(1, 2)
	l.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		if ok, _ := l.Reserve("10.0.0.1"); !ok {
			t.Fatalf("request %d within burst rejected", i+1)
		}
	}
	ok, wait := l.Reserve("10.0.0.1")
	if ok || wait <= 0 || wait > time.Second {
		t.Errorf("Reserve() over burst = (%v, %v), want rejection with a wait up to 1s", ok, wait)
	}
	if ok, _ := l.Reserve("10.0.0.2"); !ok {
		t.Error("another client shares the exhausted bucket")
	}

	now = now.Add(time.Second)
	if ok, _ := l.Reserve("10.0.0.1"); !ok {
		t.Error("bucket did not refill after one second")
	}

	now = now.Add(11 * time.Minute)
	l.Reserve("10.0.0.3")
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.clients) != 1 {
		t.Errorf("clients after sweep = %d, want 1", len(l.clients))
	}
}
