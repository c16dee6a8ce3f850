package handler

import (
	"context"
	"net/http"

	"github.com/akettlewell/chatqueue/internal/api/response"
	"github.com/akettlewell/chatqueue/pkg/models"
)

// AdminStore is the store subset the admin handlers depend on.
type AdminStore interface {
	ListAllJobs(ctx context.Context) ([]*models.Job, error)
	ListAllAnalysisJobs(ctx context.Context) ([]*models.AnalysisJob, error)
	ListUsers(ctx context.Context) ([]*models.User, error)
}

// NewAdminListJobsHandler returns an http.HandlerFunc for GET /admin/jobs.
// Hidden jobs are included here.
func NewAdminListJobsHandler(s AdminStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobs, err := s.ListAllJobs(r.Context())
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

// NewAdminListAnalysesHandler returns an http.HandlerFunc for GET /admin/analyses.
func NewAdminListAnalysesHandler(s AdminStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		analyses, err := s.ListAllAnalysisJobs(r.Context())
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

// NewAdminListUsersHandler returns an http.HandlerFunc for GET /admin/users.
func NewAdminListUsersHandler(s AdminStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		users, err := s.ListUsers(r.Context())
		if err != nil {
			storeError(w, err)
			return
		}
		if users == nil {
			users = []*models.User{}
		}
		response.JSON(w, users)
	}
}
