package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/akettlewell/chatqueue/pkg/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const jobColumns = `id, session_id, user_id, client_ip, status, prompt, response,
	 request_type, runtime_seconds, result_metadata, created_at, updated_at`

const analysisColumns = `id, job_id, user_id, preprompt, analysis_type, status,
	 response, created_at, updated_at`

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Users ---

func (s *PostgresStore) UpsertUser(ctx context.Context, user *models.User) (*models.User, error) {
	var u models.User
	err := s.pool.QueryRow(ctx,
		`INSERT INTO users (id, name, created_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, updated_at = NOW()
		 RETURNING id, name, created_at, updated_at`,
		user.ID, user.Name, user.CreatedAt,
	).Scan(&u.ID, &u.Name, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	return &u, nil
}

func (s *PostgresStore) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var u models.User
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, created_at, updated_at FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Name, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

func (s *PostgresStore) ListUsers(ctx context.Context) ([]*models.User, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, created_at, updated_at FROM users ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Name, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, &u)
	}
	return users, rows.Err()
}

// --- Sessions ---

func (s *PostgresStore) CreateSession(ctx context.Context, session *models.Session) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sessions (id, user_id, name, created_at) VALUES ($1, $2, $3, $4)`,
		session.ID, session.UserID, session.Name, session.CreatedAt)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListSessions(ctx context.Context, userID uuid.UUID) ([]*models.Session, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, name, created_at FROM sessions
		 WHERE user_id = $1 ORDER BY created_at ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.Session
	for rows.Next() {
		var sess models.Session
		if err := rows.Scan(&sess.ID, &sess.UserID, &sess.Name, &sess.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, &sess)
	}
	return sessions, rows.Err()
}

// --- Jobs ---

func (s *PostgresStore) CreateJob(ctx context.Context, job *models.Job) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (id, session_id, user_id, client_ip, status, prompt, request_type, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		job.ID, job.SessionID, job.UserID, job.ClientIP, job.Status,
		job.Prompt, job.RequestType, job.CreatedAt)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	var j models.Job
	err := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id,
	).Scan(&j.ID, &j.SessionID, &j.UserID, &j.ClientIP, &j.Status, &j.Prompt,
		&j.Response, &j.RequestType, &j.RuntimeSeconds, &j.ResultMetadata,
		&j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return &j, nil
}

func (s *PostgresStore) ListJobsForUser(ctx context.Context, userID uuid.UUID) ([]*models.Job, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM jobs
		 WHERE user_id = $1 AND status != $2 ORDER BY created_at ASC`,
		userID, models.JobStatusHidden)
	if err != nil {
		return nil, fmt.Errorf("list jobs for user: %w", err)
	}
	defer rows.Close()
	return scanJobs(rows)
}

func (s *PostgresStore) ListAllJobs(ctx context.Context) ([]*models.Job, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM jobs ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list all jobs: %w", err)
	}
	defer rows.Close()
	return scanJobs(rows)
}

func (s *PostgresStore) CompletedJobsForUser(ctx context.Context, userID uuid.UUID, exclude uuid.UUID) ([]*models.Job, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM jobs
		 WHERE user_id = $1 AND status = $2 AND id != $3
		 ORDER BY created_at ASC`,
		userID, models.JobStatusComplete, exclude)
	if err != nil {
		return nil, fmt.Errorf("completed jobs for user: %w", err)
	}
	defer rows.Close()
	return scanJobs(rows)
}

func (s *PostgresStore) CountJobsByStatus(ctx context.Context, status string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM jobs WHERE status = $1`, status).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count jobs by status: %w", err)
	}
	return n, nil
}

// ClaimNextJob marks the oldest created job as running in a single
// statement, so the claim and the status write are atomic. The running
// row is durable before the completion call starts, which is what lets
// the startup recovery sweep find orphans after a crash.
func (s *PostgresStore) ClaimNextJob(ctx context.Context) (*models.Job, error) {
	var j models.Job
	err := s.pool.QueryRow(ctx,
		`UPDATE jobs SET status = $1, updated_at = NOW()
		 WHERE id = (
			SELECT id FROM jobs WHERE status = $2
			ORDER BY created_at ASC LIMIT 1
		 )
		 RETURNING `+jobColumns,
		models.JobStatusRunning, models.JobStatusCreated,
	).Scan(&j.ID, &j.SessionID, &j.UserID, &j.ClientIP, &j.Status, &j.Prompt,
		&j.Response, &j.RequestType, &j.RuntimeSeconds, &j.ResultMetadata,
		&j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("claim next job: %w", err)
	}
	return &j, nil
}

func (s *PostgresStore) UpdateJobResult(ctx context.Context, job *models.Job) error {
	now := time.Now().UTC()
	job.UpdatedAt = &now
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $2, response = $3, runtime_seconds = $4,
		        result_metadata = $5, updated_at = $6
		 WHERE id = $1`,
		job.ID, job.Status, job.Response, job.RuntimeSeconds,
		job.ResultMetadata, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update job result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) FailJob(ctx context.Context, id uuid.UUID, message string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $2, response = $3, updated_at = NOW() WHERE id = $1`,
		id, models.JobStatusError, message)
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ResubmitJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	var j models.Job
	err := s.pool.QueryRow(ctx,
		`UPDATE jobs SET status = $2, response = NULL, runtime_seconds = NULL,
		        result_metadata = NULL, updated_at = NOW()
		 WHERE id = $1 AND status = $3
		 RETURNING `+jobColumns,
		id, models.JobStatusCreated, models.JobStatusError,
	).Scan(&j.ID, &j.SessionID, &j.UserID, &j.ClientIP, &j.Status, &j.Prompt,
		&j.Response, &j.RequestType, &j.RuntimeSeconds, &j.ResultMetadata,
		&j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		// Either the job is gone or it is not in error.
		if _, getErr := s.GetJob(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrInvalidTransition
	}
	if err != nil {
		return nil, fmt.Errorf("resubmit job: %w", err)
	}
	return &j, nil
}

func (s *PostgresStore) HideJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	var j models.Job
	err := s.pool.QueryRow(ctx,
		`UPDATE jobs SET status = $2, updated_at = NOW()
		 WHERE id = $1 AND status = $3
		 RETURNING `+jobColumns,
		id, models.JobStatusHidden, models.JobStatusComplete,
	).Scan(&j.ID, &j.SessionID, &j.UserID, &j.ClientIP, &j.Status, &j.Prompt,
		&j.Response, &j.RequestType, &j.RuntimeSeconds, &j.ResultMetadata,
		&j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		if _, getErr := s.GetJob(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrInvalidTransition
	}
	if err != nil {
		return nil, fmt.Errorf("hide job: %w", err)
	}
	return &j, nil
}

func (s *PostgresStore) RecoverOrphanedJobs(ctx context.Context, message string) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $1, response = $2, updated_at = NOW()
		 WHERE status = $3`,
		models.JobStatusError, message, models.JobStatusRunning)
	if err != nil {
		return 0, fmt.Errorf("recover orphaned jobs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// --- Analysis jobs ---

func (s *PostgresStore) CreateAnalysisJob(ctx context.Context, analysis *models.AnalysisJob) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO analysis_jobs (id, job_id, user_id, preprompt, analysis_type, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		analysis.ID, analysis.JobID, analysis.UserID, analysis.Preprompt,
		analysis.AnalysisType, analysis.Status, analysis.CreatedAt)
	if err != nil {
		return fmt.Errorf("create analysis job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAnalysisJob(ctx context.Context, id uuid.UUID) (*models.AnalysisJob, error) {
	var a models.AnalysisJob
	err := s.pool.QueryRow(ctx,
		`SELECT `+analysisColumns+` FROM analysis_jobs WHERE id = $1`, id,
	).Scan(&a.ID, &a.JobID, &a.UserID, &a.Preprompt, &a.AnalysisType,
		&a.Status, &a.Response, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get analysis job: %w", err)
	}
	return &a, nil
}

func (s *PostgresStore) ListAnalysisJobsForUser(ctx context.Context, userID uuid.UUID) ([]*models.AnalysisJob, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+analysisColumns+` FROM analysis_jobs
		 WHERE user_id = $1 ORDER BY created_at ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list analysis jobs for user: %w", err)
	}
	defer rows.Close()
	return scanAnalysisJobs(rows)
}

func (s *PostgresStore) ListAllAnalysisJobs(ctx context.Context) ([]*models.AnalysisJob, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+analysisColumns+` FROM analysis_jobs ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list all analysis jobs: %w", err)
	}
	defer rows.Close()
	return scanAnalysisJobs(rows)
}

func (s *PostgresStore) ListQueuedAnalysisJobs(ctx context.Context) ([]*models.AnalysisJob, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+analysisColumns+` FROM analysis_jobs
		 WHERE status = $1 ORDER BY created_at ASC`, models.JobStatusCreated)
	if err != nil {
		return nil, fmt.Errorf("list queued analysis jobs: %w", err)
	}
	defer rows.Close()
	return scanAnalysisJobs(rows)
}

func (s *PostgresStore) MarkAnalysisRunning(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE analysis_jobs SET status = $2, updated_at = NOW()
		 WHERE id = $1 AND status = $3`,
		id, models.JobStatusRunning, models.JobStatusCreated)
	if err != nil {
		return fmt.Errorf("mark analysis running: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) CompleteAnalysisJob(ctx context.Context, id uuid.UUID, response string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE analysis_jobs SET status = $2, response = $3, updated_at = NOW() WHERE id = $1`,
		id, models.JobStatusComplete, response)
	if err != nil {
		return fmt.Errorf("complete analysis job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) FailAnalysisJob(ctx context.Context, id uuid.UUID, message string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE analysis_jobs SET status = $2, response = $3, updated_at = NOW() WHERE id = $1`,
		id, models.JobStatusError, message)
	if err != nil {
		return fmt.Errorf("fail analysis job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- scan helpers ---

func scanJobs(rows pgx.Rows) ([]*models.Job, error) {
	var jobs []*models.Job
	for rows.Next() {
		var j models.Job
		if err := rows.Scan(&j.ID, &j.SessionID, &j.UserID, &j.ClientIP, &j.Status,
			&j.Prompt, &j.Response, &j.RequestType, &j.RuntimeSeconds,
			&j.ResultMetadata, &j.CreatedAt, &j.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, &j)
	}
	return jobs, rows.Err()
}

func scanAnalysisJobs(rows pgx.Rows) ([]*models.AnalysisJob, error) {
	var analyses []*models.AnalysisJob
	for rows.Next() {
		var a models.AnalysisJob
		if err := rows.Scan(&a.ID, &a.JobID, &a.UserID, &a.Preprompt,
			&a.AnalysisType, &a.Status, &a.Response, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan analysis job: %w", err)
		}
		analyses = append(analyses, &a)
	}
	return analyses, rows.Err()
}

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)
