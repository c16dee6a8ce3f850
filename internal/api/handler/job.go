package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	mw "github.com/akettlewell/chatqueue/internal/api/middleware"
	"github.com/akettlewell/chatqueue/internal/api/response"
	"github.com/akettlewell/chatqueue/pkg/models"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// JobStore is the store subset the job handlers depend on.
type JobStore interface {
	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	ListJobsForUser(ctx context.Context, userID uuid.UUID) ([]*models.Job, error)
	ResubmitJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	HideJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
}

// NewSubmitJobHandler returns an http.HandlerFunc for POST /job. The
// job is only inserted here; the background worker picks it up and the
// client polls GET /jobs until it reaches a terminal status.
func NewSubmitJobHandler(s JobStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			UserID      string `json:"userid"`
			SessionID   string `json:"sessionid"`
			Prompt      string `json:"prompt"`
			RequestType string `json:"request_type"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		userID, err := uuid.Parse(req.UserID)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "userid must be a valid UUID", nil)
			return
		}
		sessionID, err := uuid.Parse(req.SessionID)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "sessionid must be a valid UUID", nil)
			return
		}
		if req.Prompt == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "prompt is required", nil)
			return
		}

		requestType := req.RequestType
		if requestType == "" {
			requestType = models.RequestTypePlain
		}
		if !models.ValidRequestType(requestType) {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "unknown request_type", nil)
			return
		}

		job := &models.Job{
			ID:          uuid.New(),
			SessionID:   sessionID,
			UserID:      userID,
			ClientIP:    mw.ClientIP(r),
			Status:      models.JobStatusCreated,
			Prompt:      req.Prompt,
			RequestType: requestType,
			CreatedAt:   time.Now().UTC(),
		}
		if err := s.CreateJob(r.Context(), job); err != nil {
			storeError(w, err)
			return
		}

		response.Created(w, job)
	}
}

// NewListJobsHandler returns an http.HandlerFunc for GET /jobs. Hidden
// jobs are excluded.
func NewListJobsHandler(s JobStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := uuid.Parse(r.URL.Query().Get("userid"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "userid must be a valid UUID", nil)
			return
		}

		jobs, err := s.ListJobsForUser(r.Context(), userID)
		if err != nil {
			storeError(w, err)
			return
		}
		if jobs == nil {
			jobs = []*models.Job{}
		}

		response.JSON(w, jobs)
	}
}

// NewGetJobHandler returns an http.HandlerFunc for GET /jobs/{userID}/{jobID}.
func NewGetJobHandler(s JobStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, ok := ownedJob(w, r, s)
		if !ok {
			return
		}
		response.JSON(w, job)
	}
}

// NewResubmitJobHandler returns an http.HandlerFunc for
// POST /jobs/{userID}/{jobID}/resubmit. Only error jobs can go back to
// the queue.
func NewResubmitJobHandler(s JobStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, ok := ownedJob(w, r, s)
		if !ok {
			return
		}

		resubmitted, err := s.ResubmitJob(r.Context(), job.ID)
		if err != nil {
			storeError(w, err)
			return
		}
		response.JSON(w, resubmitted)
	}
}

// NewHideJobHandler returns an http.HandlerFunc for
// DELETE /jobs/{userID}/{jobID}. Hiding is a logical delete and only
// applies to complete jobs.
func NewHideJobHandler(s JobStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, ok := ownedJob(w, r, s)
		if !ok {
			return
		}

		hidden, err := s.HideJob(r.Context(), job.ID)
		if err != nil {
			storeError(w, err)
			return
		}
		response.JSON(w, hidden)
	}
}

// ownedJob resolves the userID/jobID path parameters and loads the job,
// writing the error response itself when the job is missing, hidden, or
// belongs to a different user.
func ownedJob(w http.ResponseWriter, r *http.Request, s JobStore) (*models.Job, bool) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "userID must be a valid UUID", nil)
		return nil, false
	}
	jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "jobID must be a valid UUID", nil)
		return nil, false
	}

	job, err := s.GetJob(r.Context(), jobID)
	if err != nil {
		storeError(w, err)
		return nil, false
	}
	if job.UserID != userID || job.Status == models.JobStatusHidden {
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "Resource not found", nil)
		return nil, false
	}
	return job, true
}
