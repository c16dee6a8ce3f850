package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/akettlewell/chatqueue/internal/api/response"
	"github.com/akettlewell/chatqueue/pkg/models"
	"github.com/google/uuid"
)

// AnalysisStore is the store subset the analysis handlers depend on.
type AnalysisStore interface {
	CreateAnalysisJob(ctx context.Context, analysis *models.AnalysisJob) error
	ListAnalysisJobsForUser(ctx context.Context, userID uuid.UUID) ([]*models.AnalysisJob, error)
}

// NewSubmitAnalysisHandler returns an http.HandlerFunc for POST /analyse.
// The referenced job is not checked here; the worker rejects analyses
// whose target turns out not to exist.
func NewSubmitAnalysisHandler(s AnalysisStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			JobID        string `json:"job_id"`
			UserID       string `json:"userid"`
			Preprompt    string `json:"preprompt"`
			AnalysisType string `json:"analysis_type"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		jobID, err := uuid.Parse(req.JobID)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "job_id must be a valid UUID", nil)
			return
		}
		userID, err := uuid.Parse(req.UserID)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "userid must be a valid UUID", nil)
			return
		}
		if !models.ValidAnalysisType(req.AnalysisType) {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "unknown analysis_type", nil)
			return
		}

		analysis := &models.AnalysisJob{
			ID:           uuid.New(),
			JobID:        jobID,
			UserID:       userID,
			Preprompt:    req.Preprompt,
			AnalysisType: req.AnalysisType,
			Status:       models.JobStatusCreated,
			CreatedAt:    time.Now().UTC(),
		}
		if err := s.CreateAnalysisJob(r.Context(), analysis); err != nil {
			storeError(w, err)
			return
		}

		response.Created(w, analysis)
	}
}

// NewListAnalysesHandler returns an http.HandlerFunc for GET /analyses.
func NewListAnalysesHandler(s AnalysisStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := uuid.Parse(r.URL.Query().Get("userid"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "userid must be a valid UUID", nil)
			return
		}

		analyses, err := s.ListAnalysisJobsForUser(r.Context(), userID)
		if err != nil {
			storeError(w, err)
			return
		}
		if analyses == nil {
			analyses = []*models.AnalysisJob{}
		}

		response.JSON(w, analyses)
	}
}
