package store

import (
	"context"
	"errors"

	"github.com/akettlewell/chatqueue/pkg/models"
	"github.com/google/uuid"
)

var ErrNotFound = errors.New("resource not found")
var ErrInvalidTransition = errors.New("invalid job status transition")

// Store is the data access interface. All database operations go through here.
// The poller is the only writer of job status/response/runtime/metadata while
// a job is running; HTTP handlers only insert rows, read, resubmit error
// jobs, and hide complete ones.
type Store interface {
	Ping(ctx context.Context) error

	UpsertUser(ctx context.Context, user *models.User) (*models.User, error)
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	ListUsers(ctx context.Context) ([]*models.User, error)

	CreateSession(ctx context.Context, session *models.Session) error
	ListSessions(ctx context.Context, userID uuid.UUID) ([]*models.Session, error)

	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	ListJobsForUser(ctx context.Context, userID uuid.UUID) ([]*models.Job, error)
	ListAllJobs(ctx context.Context) ([]*models.Job, error)
	// CompletedJobsForUser returns the user's complete jobs ordered oldest
	// first, excluding the given job id. This is the history input.
	CompletedJobsForUser(ctx context.Context, userID uuid.UUID, exclude uuid.UUID) ([]*models.Job, error)
	CountJobsByStatus(ctx context.Context, status string) (int, error)

	// ClaimNextJob atomically selects the oldest created job and marks it
	// running. Returns ErrNotFound when the queue is empty.
	ClaimNextJob(ctx context.Context) (*models.Job, error)
	// UpdateJobResult overwrites the mutable result fields of a running
	// job, keyed by primary key. Every mutable column is listed
	// explicitly so the in-flight and persisted shapes cannot drift apart
	// silently.
	UpdateJobResult(ctx context.Context, job *models.Job) error
	// FailJob finalizes a job to error with a user-facing message.
	FailJob(ctx context.Context, id uuid.UUID, message string) error
	// ResubmitJob moves an error job back to created and clears its prior
	// result fields. Returns ErrInvalidTransition if the job is not in error.
	ResubmitJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	// HideJob logically deletes a complete job. Returns
	// ErrInvalidTransition if the job is not complete.
	HideJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	// RecoverOrphanedJobs sweeps jobs left running by a prior process to
	// error with the given message, returning how many were swept. Called
	// once at startup, before the poller begins claiming.
	RecoverOrphanedJobs(ctx context.Context, message string) (int, error)

	CreateAnalysisJob(ctx context.Context, analysis *models.AnalysisJob) error
	GetAnalysisJob(ctx context.Context, id uuid.UUID) (*models.AnalysisJob, error)
	ListAnalysisJobsForUser(ctx context.Context, userID uuid.UUID) ([]*models.AnalysisJob, error)
	ListAllAnalysisJobs(ctx context.Context) ([]*models.AnalysisJob, error)
	// ListQueuedAnalysisJobs returns created analysis jobs oldest first.
	ListQueuedAnalysisJobs(ctx context.Context) ([]*models.AnalysisJob, error)
	// MarkAnalysisRunning claims a created analysis job. Returns
	// ErrNotFound if it no longer exists or is no longer created.
	MarkAnalysisRunning(ctx context.Context, id uuid.UUID) error
	CompleteAnalysisJob(ctx context.Context, id uuid.UUID, response string) error
	FailAnalysisJob(ctx context.Context, id uuid.UUID, message string) error
}
