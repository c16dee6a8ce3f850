package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/akettlewell/chatqueue/internal/api/response"
	"github.com/akettlewell/chatqueue/internal/cache"
	"github.com/akettlewell/chatqueue/pkg/models"
)

// pendingCountTTL is how long a computed pending-jobs count is served
// from the cache before the database is asked again.
const pendingCountTTL = 5 * time.Second

// HealthStore is the store subset the health handler depends on.
type HealthStore interface {
	Ping(ctx context.Context) error
	CountJobsByStatus(ctx context.Context, status string) (int, error)
}

// NewHealthHandler returns an http.HandlerFunc for GET /healthcheck. It
// reports database and cache connectivity plus the queue depth.
func NewHealthHandler(s HealthStore, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := s.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		if checks["database"] != "ok" || checks["cache"] != "ok" {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		pending, err := pendingJobs(r.Context(), s, c)
		if err != nil {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":       "ok",
			"services":     checks,
			"pending_jobs": pending,
		})
	}
}

// pendingJobs returns the number of queued jobs, served from the cache
// when a recent count is available.
func pendingJobs(ctx context.Context, s HealthStore, c cache.Cache) (int, error) {
	if count, found, err := c.GetPendingJobs(ctx); err == nil && found {
		return count, nil
	}

	count, err := s.CountJobsByStatus(ctx, models.JobStatusCreated)
	if err != nil {
		return 0, err
	}
	// Cache write is best effort.
	_ = c.SetPendingJobs(ctx, count, pendingCountTTL)
	return count, nil
}
