package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/akettlewell/chatqueue/internal/store/memory"
	"github.com/akettlewell/chatqueue/pkg/models"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- helpers ---

func jsonReq(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	r := httptest.NewRequest(method, target, bytes.NewReader(b))
	r.Header.Set("Content-Type", "application/json")
	return r
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	require.NoError(t, json.Unmarshal(env.Data, out))
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	return env.Error.Code
}

func seedJob(t *testing.T, st *memory.Store, userID uuid.UUID, status string) *models.Job {
	t.Helper()
	job := &models.Job{
		ID:          uuid.New(),
		SessionID:   uuid.New(),
		UserID:      userID,
		ClientIP:    "127.0.0.1",
		Status:      status,
		Prompt:      "a prompt",
		RequestType: models.RequestTypePlain,
		CreatedAt:   time.Now().UTC(),
	}
	require.NoError(t, st.CreateJob(context.Background(), job))
	if status == models.JobStatusComplete {
		resp := "an answer"
		job.Response = &resp
		require.NoError(t, st.UpdateJobResult(context.Background(), job))
	}
	return job
}

// jobRouter mounts the job handlers the way the real router does, so
// chi URL params resolve.
func jobRouter(st *memory.Store) http.Handler {
	r := chi.NewRouter()
	r.Post("/job", NewSubmitJobHandler(st))
	r.Get("/jobs", NewListJobsHandler(st))
	r.Get("/jobs/{userID}/{jobID}", NewGetJobHandler(st))
	r.Post("/jobs/{userID}/{jobID}/resubmit", NewResubmitJobHandler(st))
	r.Delete("/jobs/{userID}/{jobID}", NewHideJobHandler(st))
	return r
}

// --- jobs ---

func TestSubmitJob_Success(t *testing.T) {
	st := memory.New()
	router := jobRouter(st)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, jsonReq(t, http.MethodPost, "/job", map[string]any{
		"userid":       uuid.New().String(),
		"sessionid":    uuid.New().String(),
		"prompt":       "hello",
		"request_type": models.RequestTypeDOS,
	}))

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var job models.Job
	decodeData(t, rec, &job)
	assert.Equal(t, models.JobStatusCreated, job.Status)
	assert.Equal(t, "hello", job.Prompt)
	assert.Equal(t, models.RequestTypeDOS, job.RequestType)
	assert.NotEmpty(t, job.ClientIP)

	stored, err := st.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCreated, stored.Status)
}

func TestSubmitJob_DefaultsRequestType(t *testing.T) {
	st := memory.New()
	rec := httptest.NewRecorder()
	jobRouter(st).ServeHTTP(rec, jsonReq(t, http.MethodPost, "/job", map[string]any{
		"userid":    uuid.New().String(),
		"sessionid": uuid.New().String(),
		"prompt":    "hello",
	}))

	require.Equal(t, http.StatusCreated, rec.Code)
	var job models.Job
	decodeData(t, rec, &job)
	assert.Equal(t, models.RequestTypePlain, job.RequestType)
}

func TestSubmitJob_Validation(t *testing.T) {
	st := memory.New()
	router := jobRouter(st)

	cases := []struct {
		name string
		body map[string]any
	}{
		{"bad userid", map[string]any{"userid": "nope", "sessionid": uuid.New().String(), "prompt": "x"}},
		{"bad sessionid", map[string]any{"userid": uuid.New().String(), "sessionid": "nope", "prompt": "x"}},
		{"empty prompt", map[string]any{"userid": uuid.New().String(), "sessionid": uuid.New().String()}},
		{"unknown request_type", map[string]any{"userid": uuid.New().String(), "sessionid": uuid.New().String(), "prompt": "x", "request_type": "weird"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, jsonReq(t, http.MethodPost, "/job", tc.body))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "INVALID_REQUEST", errorCode(t, rec))
		})
	}
}

func TestListJobs_ExcludesHidden(t *testing.T) {
	st := memory.New()
	userID := uuid.New()
	visible := seedJob(t, st, userID, models.JobStatusComplete)
	hidden := seedJob(t, st, userID, models.JobStatusComplete)
	_, err := st.HideJob(context.Background(), hidden.ID)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	jobRouter(st).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs?userid="+userID.String(), nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var jobs []*models.Job
	decodeData(t, rec, &jobs)
	require.Len(t, jobs, 1)
	assert.Equal(t, visible.ID, jobs[0].ID)
}

func TestGetJob_WrongUser(t *testing.T) {
	st := memory.New()
	job := seedJob(t, st, uuid.New(), models.JobStatusComplete)

	rec := httptest.NewRecorder()
	jobRouter(st).ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/jobs/"+uuid.New().String()+"/"+job.ID.String(), nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestResubmitJob_FromError(t *testing.T) {
	st := memory.New()
	userID := uuid.New()
	job := seedJob(t, st, userID, models.JobStatusRunning)
	require.NoError(t, st.FailJob(context.Background(), job.ID, "boom"))

	rec := httptest.NewRecorder()
	jobRouter(st).ServeHTTP(rec, httptest.NewRequest(http.MethodPost,
		"/jobs/"+userID.String()+"/"+job.ID.String()+"/resubmit", nil))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resubmitted models.Job
	decodeData(t, rec, &resubmitted)
	assert.Equal(t, models.JobStatusCreated, resubmitted.Status)
	assert.Nil(t, resubmitted.Response)
}

func TestResubmitJob_NotInError(t *testing.T) {
	st := memory.New()
	userID := uuid.New()
	job := seedJob(t, st, userID, models.JobStatusComplete)

	rec := httptest.NewRecorder()
	jobRouter(st).ServeHTTP(rec, httptest.NewRequest(http.MethodPost,
		"/jobs/"+userID.String()+"/"+job.ID.String()+"/resubmit", nil))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "INVALID_STATE", errorCode(t, rec))
}

func TestHideJob(t *testing.T) {
	st := memory.New()
	userID := uuid.New()
	job := seedJob(t, st, userID, models.JobStatusComplete)

	rec := httptest.NewRecorder()
	jobRouter(st).ServeHTTP(rec, httptest.NewRequest(http.MethodDelete,
		"/jobs/"+userID.String()+"/"+job.ID.String(), nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var hidden models.Job
	decodeData(t, rec, &hidden)
	assert.Equal(t, models.JobStatusHidden, hidden.Status)

	// A hidden job is gone from the detail endpoint too.
	rec = httptest.NewRecorder()
	jobRouter(st).ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/jobs/"+userID.String()+"/"+job.ID.String(), nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHideJob_NotComplete(t *testing.T) {
	st := memory.New()
	userID := uuid.New()
	job := seedJob(t, st, userID, models.JobStatusCreated)

	rec := httptest.NewRecorder()
	jobRouter(st).ServeHTTP(rec, httptest.NewRequest(http.MethodDelete,
		"/jobs/"+userID.String()+"/"+job.ID.String(), nil))

	assert.Equal(t, http.StatusConflict, rec.Code)
}

// --- analyses ---

func TestSubmitAnalysis_Success(t *testing.T) {
	st := memory.New()
	h := NewSubmitAnalysisHandler(st)
	rec := httptest.NewRecorder()

	// The target job does not have to exist at submission time.
	h.ServeHTTP(rec, jsonReq(t, http.MethodPost, "/analyse", map[string]any{
		"job_id":        uuid.New().String(),
		"userid":        uuid.New().String(),
		"preprompt":     "Critique the following prompt",
		"analysis_type": models.AnalysisTypePrompt,
	}))

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var an models.AnalysisJob
	decodeData(t, rec, &an)
	assert.Equal(t, models.JobStatusCreated, an.Status)
	assert.Equal(t, models.AnalysisTypePrompt, an.AnalysisType)
}

func TestSubmitAnalysis_UnknownType(t *testing.T) {
	st := memory.New()
	h := NewSubmitAnalysisHandler(st)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, jsonReq(t, http.MethodPost, "/analyse", map[string]any{
		"job_id":        uuid.New().String(),
		"userid":        uuid.New().String(),
		"analysis_type": "vibes",
	}))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListAnalyses(t *testing.T) {
	st := memory.New()
	userID := uuid.New()
	require.NoError(t, st.CreateAnalysisJob(context.Background(), &models.AnalysisJob{
		ID:           uuid.New(),
		JobID:        uuid.New(),
		UserID:       userID,
		AnalysisType: models.AnalysisTypePrompt,
		Status:       models.JobStatusCreated,
		CreatedAt:    time.Now().UTC(),
	}))

	rec := httptest.NewRecorder()
	NewListAnalysesHandler(st).ServeHTTP(rec,
		httptest.NewRequest(http.MethodGet, "/analyses?userid="+userID.String(), nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var analyses []*models.AnalysisJob
	decodeData(t, rec, &analyses)
	assert.Len(t, analyses, 1)
}

// --- users and sessions ---

func TestUpsertUser(t *testing.T) {
	st := memory.New()
	h := NewUpsertUserHandler(st)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, jsonReq(t, http.MethodPost, "/user", map[string]any{"name": "alice"}))
	require.Equal(t, http.StatusOK, rec.Code)
	var created models.User
	decodeData(t, rec, &created)
	assert.Equal(t, "alice", created.Name)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, jsonReq(t, http.MethodPost, "/user", map[string]any{
		"userid": created.ID.String(),
		"name":   "alice b",
	}))
	require.Equal(t, http.StatusOK, rec.Code)
	var renamed models.User
	decodeData(t, rec, &renamed)
	assert.Equal(t, created.ID, renamed.ID)
	assert.Equal(t, "alice b", renamed.Name)
}

func TestCreateAndListSessions(t *testing.T) {
	st := memory.New()
	userID := uuid.New()

	rec := httptest.NewRecorder()
	NewCreateSessionHandler(st).ServeHTTP(rec, jsonReq(t, http.MethodPost, "/session", map[string]any{
		"userid": userID.String(),
		"name":   "first chat",
	}))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = httptest.NewRecorder()
	NewListSessionsHandler(st).ServeHTTP(rec,
		httptest.NewRequest(http.MethodGet, "/sessions?userid="+userID.String(), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var sessions []*models.Session
	decodeData(t, rec, &sessions)
	require.Len(t, sessions, 1)
	assert.Equal(t, "first chat", sessions[0].Name)
}

// --- health ---

type fakeCache struct {
	pending      int
	pendingFound bool
	pingErr      error
}

func (f *fakeCache) Ping(_ context.Context) error { return f.pingErr }
func (f *fakeCache) Close() error                 { return nil }
func (f *fakeCache) SetJobStatus(_ context.Context, _ uuid.UUID, _ string, _ time.Duration) error {
	return nil
}
func (f *fakeCache) GetJobStatus(_ context.Context, _ uuid.UUID) (string, bool, error) {
	return "", false, nil
}
func (f *fakeCache) SetPendingJobs(_ context.Context, count int, _ time.Duration) error {
	f.pending = count
	f.pendingFound = true
	return nil
}
func (f *fakeCache) GetPendingJobs(_ context.Context) (int, bool, error) {
	return f.pending, f.pendingFound, nil
}
func (f *fakeCache) IncrWithExpiry(_ context.Context, _ string, _ time.Duration) (int64, error) {
	return 1, nil
}

func TestHealthcheck(t *testing.T) {
	st := memory.New()
	seedJob(t, st, uuid.New(), models.JobStatusCreated)
	seedJob(t, st, uuid.New(), models.JobStatusCreated)
	c := &fakeCache{}

	rec := httptest.NewRecorder()
	NewHealthHandler(st, c).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthcheck", nil))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body map[string]any
	decodeData(t, rec, &body)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(2), body["pending_jobs"])
	// Count now cached for the next call.
	assert.True(t, c.pendingFound)
	assert.Equal(t, 2, c.pending)
}

func TestHealthcheck_Degraded(t *testing.T) {
	st := memory.New()
	c := &fakeCache{pingErr: context.DeadlineExceeded}

	rec := httptest.NewRecorder()
	NewHealthHandler(st, c).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthcheck", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "DEGRADED", errorCode(t, rec))
}

// --- admin ---

func TestAdminListJobs_IncludesHidden(t *testing.T) {
	st := memory.New()
	userID := uuid.New()
	seedJob(t, st, userID, models.JobStatusComplete)
	hidden := seedJob(t, st, userID, models.JobStatusComplete)
	_, err := st.HideJob(context.Background(), hidden.ID)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	NewAdminListJobsHandler(st).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/jobs", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var jobs []*models.Job
	decodeData(t, rec, &jobs)
	assert.Len(t, jobs, 2)
}
