// Package memory provides a map-backed Store for unit tests of the
// poller and the HTTP handlers. It mirrors the semantics of the
// Postgres implementation, including claim ordering and transition
// guards, but holds everything in process.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/akettlewell/chatqueue/internal/store"
	"github.com/akettlewell/chatqueue/pkg/models"
	"github.com/google/uuid"
)

type Store struct {
	mu       sync.Mutex
	users    map[uuid.UUID]*models.User
	sessions map[uuid.UUID]*models.Session
	jobs     map[uuid.UUID]*models.Job
	analyses map[uuid.UUID]*models.AnalysisJob

	// seq breaks creation-time ties so claim order is deterministic even
	// when rows are inserted within the same clock tick.
	seq    int64
	jobSeq map[uuid.UUID]int64
	anSeq  map[uuid.UUID]int64
}

func New() *Store {
	return &Store{
		users:    make(map[uuid.UUID]*models.User),
		sessions: make(map[uuid.UUID]*models.Session),
		jobs:     make(map[uuid.UUID]*models.Job),
		analyses: make(map[uuid.UUID]*models.AnalysisJob),
		jobSeq:   make(map[uuid.UUID]int64),
		anSeq:    make(map[uuid.UUID]int64),
	}
}

func (s *Store) Ping(_ context.Context) error { return nil }

// --- Users ---

func (s *Store) UpsertUser(_ context.Context, user *models.User) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.users[user.ID]; ok {
		existing.Name = user.Name
		now := time.Now().UTC()
		existing.UpdatedAt = &now
		cp := *existing
		return &cp, nil
	}
	cp := *user
	s.users[user.ID] = &cp
	out := cp
	return &out, nil
}

func (s *Store) GetUser(_ context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *Store) ListUsers(_ context.Context) ([]*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.User, 0, len(s.users))
	for _, u := range s.users {
		cp := *u
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// --- Sessions ---

func (s *Store) CreateSession(_ context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *session
	s.sessions[session.ID] = &cp
	return nil
}

func (s *Store) ListSessions(_ context.Context, userID uuid.UUID) ([]*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Session
	for _, sess := range s.sessions {
		if sess.UserID == userID {
			cp := *sess
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// --- Jobs ---

func (s *Store) CreateJob(_ context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *job
	s.jobs[job.ID] = &cp
	s.seq++
	s.jobSeq[job.ID] = s.seq
	return nil
}

func (s *Store) GetJob(_ context.Context, id uuid.UUID) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (s *Store) ListJobsForUser(_ context.Context, userID uuid.UUID) ([]*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Job
	for _, j := range s.jobs {
		if j.UserID == userID && j.Status != models.JobStatusHidden {
			cp := *j
			out = append(out, &cp)
		}
	}
	s.sortJobs(out)
	return out, nil
}

func (s *Store) ListAllJobs(_ context.Context) ([]*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		cp := *j
		out = append(out, &cp)
	}
	s.sortJobs(out)
	return out, nil
}

func (s *Store) CompletedJobsForUser(_ context.Context, userID uuid.UUID, exclude uuid.UUID) ([]*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Job
	for _, j := range s.jobs {
		if j.UserID == userID && j.Status == models.JobStatusComplete && j.ID != exclude {
			cp := *j
			out = append(out, &cp)
		}
	}
	s.sortJobs(out)
	return out, nil
}

func (s *Store) CountJobsByStatus(_ context.Context, status string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, j := range s.jobs {
		if j.Status == status {
			n++
		}
	}
	return n, nil
}

func (s *Store) ClaimNextJob(_ context.Context) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var oldest *models.Job
	for _, j := range s.jobs {
		if j.Status != models.JobStatusCreated {
			continue
		}
		if oldest == nil || s.jobBefore(j, oldest) {
			oldest = j
		}
	}
	if oldest == nil {
		return nil, store.ErrNotFound
	}
	oldest.Status = models.JobStatusRunning
	now := time.Now().UTC()
	oldest.UpdatedAt = &now
	cp := *oldest
	return &cp, nil
}

func (s *Store) UpdateJobResult(_ context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.jobs[job.ID]
	if !ok {
		return store.ErrNotFound
	}
	now := time.Now().UTC()
	existing.Status = job.Status
	existing.Response = job.Response
	existing.RuntimeSeconds = job.RuntimeSeconds
	existing.ResultMetadata = job.ResultMetadata
	existing.UpdatedAt = &now
	job.UpdatedAt = &now
	return nil
}

func (s *Store) FailJob(_ context.Context, id uuid.UUID, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return store.ErrNotFound
	}
	now := time.Now().UTC()
	j.Status = models.JobStatusError
	j.Response = &message
	j.UpdatedAt = &now
	return nil
}

func (s *Store) ResubmitJob(_ context.Context, id uuid.UUID) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if j.Status != models.JobStatusError {
		return nil, store.ErrInvalidTransition
	}
	now := time.Now().UTC()
	j.Status = models.JobStatusCreated
	j.Response = nil
	j.RuntimeSeconds = nil
	j.ResultMetadata = nil
	j.UpdatedAt = &now
	cp := *j
	return &cp, nil
}

func (s *Store) HideJob(_ context.Context, id uuid.UUID) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if j.Status != models.JobStatusComplete {
		return nil, store.ErrInvalidTransition
	}
	now := time.Now().UTC()
	j.Status = models.JobStatusHidden
	j.UpdatedAt = &now
	cp := *j
	return &cp, nil
}

func (s *Store) RecoverOrphanedJobs(_ context.Context, message string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	swept := 0
	now := time.Now().UTC()
	for _, j := range s.jobs {
		if j.Status == models.JobStatusRunning {
			j.Status = models.JobStatusError
			msg := message
			j.Response = &msg
			j.UpdatedAt = &now
			swept++
		}
	}
	return swept, nil
}

// --- Analysis jobs ---

func (s *Store) CreateAnalysisJob(_ context.Context, analysis *models.AnalysisJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *analysis
	s.analyses[analysis.ID] = &cp
	s.seq++
	s.anSeq[analysis.ID] = s.seq
	return nil
}

func (s *Store) GetAnalysisJob(_ context.Context, id uuid.UUID) (*models.AnalysisJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.analyses[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *Store) ListAnalysisJobsForUser(_ context.Context, userID uuid.UUID) ([]*models.AnalysisJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.AnalysisJob
	for _, a := range s.analyses {
		if a.UserID == userID {
			cp := *a
			out = append(out, &cp)
		}
	}
	s.sortAnalyses(out)
	return out, nil
}

func (s *Store) ListAllAnalysisJobs(_ context.Context) ([]*models.AnalysisJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.AnalysisJob, 0, len(s.analyses))
	for _, a := range s.analyses {
		cp := *a
		out = append(out, &cp)
	}
	s.sortAnalyses(out)
	return out, nil
}

func (s *Store) ListQueuedAnalysisJobs(_ context.Context) ([]*models.AnalysisJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.AnalysisJob
	for _, a := range s.analyses {
		if a.Status == models.JobStatusCreated {
			cp := *a
			out = append(out, &cp)
		}
	}
	s.sortAnalyses(out)
	return out, nil
}

func (s *Store) MarkAnalysisRunning(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.analyses[id]
	if !ok || a.Status != models.JobStatusCreated {
		return store.ErrNotFound
	}
	now := time.Now().UTC()
	a.Status = models.JobStatusRunning
	a.UpdatedAt = &now
	return nil
}

func (s *Store) CompleteAnalysisJob(_ context.Context, id uuid.UUID, response string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.analyses[id]
	if !ok {
		return store.ErrNotFound
	}
	now := time.Now().UTC()
	a.Status = models.JobStatusComplete
	a.Response = &response
	a.UpdatedAt = &now
	return nil
}

func (s *Store) FailAnalysisJob(_ context.Context, id uuid.UUID, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.analyses[id]
	if !ok {
		return store.ErrNotFound
	}
	now := time.Now().UTC()
	a.Status = models.JobStatusError
	a.Response = &message
	a.UpdatedAt = &now
	return nil
}

// --- ordering helpers ---

func (s *Store) jobBefore(a, b *models.Job) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return s.jobSeq[a.ID] < s.jobSeq[b.ID]
}

func (s *Store) sortJobs(jobs []*models.Job) {
	sort.Slice(jobs, func(i, j int) bool { return s.jobBefore(jobs[i], jobs[j]) })
}

func (s *Store) sortAnalyses(analyses []*models.AnalysisJob) {
	sort.Slice(analyses, func(i, j int) bool {
		if !analyses[i].CreatedAt.Equal(analyses[j].CreatedAt) {
			return analyses[i].CreatedAt.Before(analyses[j].CreatedAt)
		}
		return s.anSeq[analyses[i].ID] < s.anSeq[analyses[j].ID]
	})
}

// Compile-time check that Store implements store.Store.
var _ store.Store = (*Store)(nil)
