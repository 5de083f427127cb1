package api

import (
	"time"

	"github.com/EliosFinance/elios-backend-sub000/internal/progress"
	"github.com/EliosFinance/elios-backend-sub000/internal/queue"
)

// ProgressRequest is the body for POST /api/v1/progress.
type ProgressRequest struct {
	UserID      int64  `json:"user_id"`
	ChallengeID int64  `json:"challenge_id"`
	Event       string `json:"event,omitempty"`
}

// EnqueueResponse acknowledges that a progress job was accepted, not that it
// was processed.
type EnqueueResponse struct {
	JobID       string `json:"job_id"`
	UserID      int64  `json:"user_id"`
	ChallengeID int64  `json:"challenge_id"`
	Accepted    bool   `json:"accepted"`
}

// ProgressResponse is a progress record in API responses.
type ProgressResponse struct {
	UserID       int64     `json:"user_id"`
	ChallengeID  int64     `json:"challenge_id"`
	CurrentState string    `json:"current_state"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// DeadJobResponse is a dead-lettered job in API responses.
type DeadJobResponse struct {
	ID          string    `json:"id"`
	UserID      int64     `json:"user_id"`
	ChallengeID int64     `json:"challenge_id"`
	Event       string    `json:"event,omitempty"`
	Attempt     int       `json:"attempt"`
	MaxAttempts int       `json:"max_attempts"`
	LastError   *string   `json:"last_error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ListDeadJobsResponse is the response for listing dead-lettered jobs.
type ListDeadJobsResponse struct {
	Jobs  []DeadJobResponse `json:"jobs"`
	Total int               `json:"total"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// toProgressResponse converts a progress.Progress to ProgressResponse.
func toProgressResponse(p *progress.Progress) ProgressResponse {
	return ProgressResponse{
		UserID:       p.UserID,
		ChallengeID:  p.ChallengeID,
		CurrentState: p.CurrentState,
		UpdatedAt:    p.UpdatedAt,
	}
}

// toDeadJobResponse converts a queue.Job to DeadJobResponse.
func toDeadJobResponse(job *queue.Job) DeadJobResponse {
	return DeadJobResponse{
		ID:          job.ID,
		UserID:      job.UserID,
		ChallengeID: job.ChallengeID,
		Event:       job.Event,
		Attempt:     job.Attempt,
		MaxAttempts: job.MaxAttempts,
		LastError:   job.LastError,
		CreatedAt:   job.CreatedAt,
	}
}
