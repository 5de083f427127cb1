package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/EliosFinance/elios-backend-sub000/internal/metrics"
	"github.com/EliosFinance/elios-backend-sub000/internal/progress"
	"github.com/EliosFinance/elios-backend-sub000/internal/queue"
)

var (
	testMetrics     *metrics.Metrics
	testMetricsOnce sync.Once
)

func getTestMetrics() *metrics.Metrics {
	testMetricsOnce.Do(func() {
		testMetrics = metrics.NewMetrics()
	})
	return testMetrics
}

type mockEnqueuer struct {
	lastUserID      int64
	lastChallengeID int64
	lastEvent       string
	err             error
}

func (m *mockEnqueuer) Enqueue(ctx context.Context, userID, challengeID int64, event string) (*queue.Job, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.lastUserID = userID
	m.lastChallengeID = challengeID
	m.lastEvent = event
	return &queue.Job{
		ID:          "01HQX7Z9PMRGWKT8HHFQNR3XYZ",
		UserID:      userID,
		ChallengeID: challengeID,
		Event:       event,
		State:       queue.PENDING,
		Attempt:     1,
		MaxAttempts: 5,
	}, nil
}

type mockReader struct {
	record *progress.Progress
	err    error
}

func (m *mockReader) Get(ctx context.Context, userID, challengeID int64) (*progress.Progress, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.record, nil
}

type mockDeadLister struct {
	jobs      []*queue.Job
	lastLimit int
}

func (m *mockDeadLister) ListDead(ctx context.Context, limit int) ([]*queue.Job, error) {
	m.lastLimit = limit
	if limit < len(m.jobs) {
		return m.jobs[:limit], nil
	}
	return m.jobs, nil
}

func newTestRouter(h *Handler) *http.ServeMux {
	router := http.NewServeMux()
	router.HandleFunc("POST /api/v1/progress", h.RequestProgress)
	router.HandleFunc("GET /api/v1/progress/{userID}/{challengeID}", h.GetProgress)
	router.HandleFunc("GET /api/v1/deadletters", h.ListDeadLetters)
	router.HandleFunc("GET /health", h.Health)
	return router
}

func TestRequestProgress_Accepted(t *testing.T) {
	enq := &mockEnqueuer{}
	handler := NewHandler(enq, &mockReader{}, &mockDeadLister{}, getTestMetrics())
	router := newTestRouter(handler)

	body := `{"user_id": 101, "challenge_id": 7, "event": "START"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/progress", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}

	var resp EnqueueResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Accepted || resp.JobID == "" {
		t.Errorf("response = %+v, want accepted with a job id", resp)
	}
	if enq.lastUserID != 101 || enq.lastChallengeID != 7 || enq.lastEvent != "START" {
		t.Errorf("enqueued (%d, %d, %q), want (101, 7, START)",
			enq.lastUserID, enq.lastChallengeID, enq.lastEvent)
	}
}

func TestRequestProgress_Validation(t *testing.T) {
	handler := NewHandler(&mockEnqueuer{}, &mockReader{}, &mockDeadLister{}, getTestMetrics())
	router := newTestRouter(handler)

	tests := []struct {
		name string
		body string
	}{
		{"invalid JSON", `{not json`},
		{"missing user_id", `{"challenge_id": 7}`},
		{"missing challenge_id", `{"user_id": 101}`},
		{"negative user_id", `{"user_id": -1, "challenge_id": 7}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/progress", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestRequestProgress_QueueUnavailable(t *testing.T) {
	enq := &mockEnqueuer{err: errors.New("connection refused")}
	handler := NewHandler(enq, &mockReader{}, &mockDeadLister{}, getTestMetrics())
	router := newTestRouter(handler)

	body := `{"user_id": 101, "challenge_id": 7}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/progress", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestGetProgress(t *testing.T) {
	now := time.Now()
	reader := &mockReader{record: &progress.Progress{
		UserID:       101,
		ChallengeID:  7,
		CurrentState: "IN_PROGRESS",
		Version:      2,
		UpdatedAt:    now,
	}}
	handler := NewHandler(&mockEnqueuer{}, reader, &mockDeadLister{}, getTestMetrics())
	router := newTestRouter(handler)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/progress/101/7", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp ProgressResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.CurrentState != "IN_PROGRESS" {
		t.Errorf("current_state = %q, want IN_PROGRESS", resp.CurrentState)
	}
}

func TestGetProgress_NotFound(t *testing.T) {
	reader := &mockReader{err: progress.ErrNotFound}
	handler := NewHandler(&mockEnqueuer{}, reader, &mockDeadLister{}, getTestMetrics())
	router := newTestRouter(handler)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/progress/101/7", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestGetProgress_BadPath(t *testing.T) {
	handler := NewHandler(&mockEnqueuer{}, &mockReader{}, &mockDeadLister{}, getTestMetrics())
	router := newTestRouter(handler)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/progress/abc/7", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestListDeadLetters(t *testing.T) {
	msg := "challenge definition not found: 999"
	dead := &mockDeadLister{jobs: []*queue.Job{
		{
			ID:          "job_dead_1",
			UserID:      101,
			ChallengeID: 999,
			State:       queue.DEAD,
			Attempt:     1,
			MaxAttempts: 5,
			LastError:   &msg,
			CreatedAt:   time.Now(),
		},
	}}
	handler := NewHandler(&mockEnqueuer{}, &mockReader{}, dead, getTestMetrics())
	router := newTestRouter(handler)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/deadletters", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp ListDeadJobsResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Total != 1 || len(resp.Jobs) != 1 {
		t.Fatalf("response = %+v, want one dead job", resp)
	}
	if resp.Jobs[0].LastError == nil || *resp.Jobs[0].LastError != msg {
		t.Errorf("last_error = %v, want %q", resp.Jobs[0].LastError, msg)
	}
}

func TestListDeadLetters_LimitBounds(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  int
	}{
		{"default", "", defaultDeadLetterLimit},
		{"explicit", "?limit=25", 25},
		{"oversized is clamped", "?limit=10000", maxDeadLetterLimit},
		{"garbage falls back", "?limit=lots", defaultDeadLetterLimit},
		{"non-positive falls back", "?limit=-5", defaultDeadLetterLimit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dead := &mockDeadLister{}
			handler := NewHandler(&mockEnqueuer{}, &mockReader{}, dead, getTestMetrics())
			router := newTestRouter(handler)

			req := httptest.NewRequest(http.MethodGet, "/api/v1/deadletters"+tt.query, nil)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", rec.Code)
			}
			if dead.lastLimit != tt.want {
				t.Errorf("limit passed to store = %d, want %d", dead.lastLimit, tt.want)
			}
		})
	}
}

func TestHealth(t *testing.T) {
	handler := NewHandler(&mockEnqueuer{}, &mockReader{}, &mockDeadLister{}, getTestMetrics())
	router := newTestRouter(handler)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "healthy" {
		t.Errorf("status = %q, want healthy", resp.Status)
	}
}
