package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/EliosFinance/elios-backend-sub000/internal/metrics"
	"github.com/EliosFinance/elios-backend-sub000/internal/progress"
	"github.com/EliosFinance/elios-backend-sub000/internal/queue"
)

// Enqueuer is the slice of the queue the API needs: accept a job and return.
type Enqueuer interface {
	Enqueue(ctx context.Context, userID, challengeID int64, event string) (*queue.Job, error)
}

// DeadLetterLister exposes dead-lettered jobs for operator inspection.
type DeadLetterLister interface {
	ListDead(ctx context.Context, limit int) ([]*queue.Job, error)
}

// ProgressReader is the read-only slice of the progress store the API needs.
type ProgressReader interface {
	Get(ctx context.Context, userID, challengeID int64) (*progress.Progress, error)
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	enqueuer Enqueuer
	reader   ProgressReader
	dead     DeadLetterLister
	metrics  *metrics.Metrics
}

// NewHandler creates a new API handler.
func NewHandler(enqueuer Enqueuer, reader ProgressReader, dead DeadLetterLister, m *metrics.Metrics) *Handler {
	return &Handler{
		enqueuer: enqueuer,
		reader:   reader,
		dead:     dead,
		metrics:  m,
	}
}

// RequestProgress handles POST /api/v1/progress.
// It only enqueues: the response says the request was accepted, not that the
// transition happened. Processing is observable via GetProgress.
func (h *Handler) RequestProgress(w http.ResponseWriter, r *http.Request) {
	var req ProgressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if req.UserID <= 0 {
		respondError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	if req.ChallengeID <= 0 {
		respondError(w, http.StatusBadRequest, "challenge_id is required")
		return
	}

	job, err := h.enqueuer.Enqueue(r.Context(), req.UserID, req.ChallengeID, req.Event)
	if err != nil {
		log.Printf("Failed to enqueue progress job: %v", err)
		respondError(w, http.StatusServiceUnavailable, "failed to enqueue progress job")
		return
	}

	h.metrics.JobsEnqueued.Inc()

	respondJSON(w, http.StatusAccepted, EnqueueResponse{
		JobID:       job.ID,
		UserID:      job.UserID,
		ChallengeID: job.ChallengeID,
		Accepted:    true,
	})
}

// GetProgress handles GET /api/v1/progress/{userID}/{challengeID}.
func (h *Handler) GetProgress(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(r.PathValue("userID"), 10, 64)
	if err != nil || userID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid user ID")
		return
	}
	challengeID, err := strconv.ParseInt(r.PathValue("challengeID"), 10, 64)
	if err != nil || challengeID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid challenge ID")
		return
	}

	p, err := h.reader.Get(r.Context(), userID, challengeID)
	if err != nil {
		if errors.Is(err, progress.ErrNotFound) {
			respondError(w, http.StatusNotFound, "no progress recorded")
			return
		}
		log.Printf("Failed to get progress for user %d challenge %d: %v", userID, challengeID, err)
		respondError(w, http.StatusInternalServerError, "failed to get progress")
		return
	}

	respondJSON(w, http.StatusOK, toProgressResponse(p))
}

const (
	defaultDeadLetterLimit = 50
	maxDeadLetterLimit     = 500
)

// ListDeadLetters handles GET /api/v1/deadletters.
func (h *Handler) ListDeadLetters(w http.ResponseWriter, r *http.Request) {
	limit := defaultDeadLetterLimit
	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		if parsed, err := strconv.Atoi(limitParam); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > maxDeadLetterLimit {
		limit = maxDeadLetterLimit
	}

	jobs, err := h.dead.ListDead(r.Context(), limit)
	if err != nil {
		log.Printf("Failed to list dead-lettered jobs: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to list dead-lettered jobs")
		return
	}

	jobResponses := make([]DeadJobResponse, len(jobs))
	for i, job := range jobs {
		jobResponses[i] = toDeadJobResponse(job)
	}

	respondJSON(w, http.StatusOK, ListDeadJobsResponse{
		Jobs:  jobResponses,
		Total: len(jobResponses),
	})
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, ErrorResponse{Error: message})
}
