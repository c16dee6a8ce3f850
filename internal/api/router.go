package api

import (
	"net/http"

	mw "github.com/akettlewell/chatqueue/internal/api/middleware"
	"github.com/akettlewell/chatqueue/internal/api/response"
	"github.com/go-chi/chi/v5"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	AdminAuth *mw.AdminAuth
	RateLimit *mw.RateLimit

	HealthHandler http.HandlerFunc

	UpsertUserHandler http.HandlerFunc

	CreateSessionHandler http.HandlerFunc
	ListSessionsHandler  http.HandlerFunc

	SubmitJobHandler   http.HandlerFunc
	ListJobsHandler    http.HandlerFunc
	GetJobHandler      http.HandlerFunc
	ResubmitJobHandler http.HandlerFunc
	HideJobHandler     http.HandlerFunc

	SubmitAnalysisHandler http.HandlerFunc
	ListAnalysesHandler   http.HandlerFunc

	AdminListJobsHandler     http.HandlerFunc
	AdminListAnalysesHandler http.HandlerFunc
	AdminListUsersHandler    http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	r.Get("/healthcheck", orNotImplemented(deps.HealthHandler))

	r.Post("/user", orNotImplemented(deps.UpsertUserHandler))

	r.Post("/session", orNotImplemented(deps.CreateSessionHandler))
	r.Get("/sessions", orNotImplemented(deps.ListSessionsHandler))

	r.Post("/job", orNotImplemented(deps.SubmitJobHandler))
	r.Get("/jobs", orNotImplemented(deps.ListJobsHandler))
	r.Get("/jobs/{userID}/{jobID}", orNotImplemented(deps.GetJobHandler))
	r.Post("/jobs/{userID}/{jobID}/resubmit", orNotImplemented(deps.ResubmitJobHandler))
	r.Delete("/jobs/{userID}/{jobID}", orNotImplemented(deps.HideJobHandler))

	r.Post("/analyse", orNotImplemented(deps.SubmitAnalysisHandler))
	r.Get("/analyses", orNotImplemented(deps.ListAnalysesHandler))

	// Admin routes
	r.Group(func(r chi.Router) {
		r.Use(deps.AdminAuth.Require)
		if deps.RateLimit != nil {
			r.Use(deps.RateLimit.Limit)
		}

		r.Get("/admin/jobs", orNotImplemented(deps.AdminListJobsHandler))
		r.Get("/admin/analyses", orNotImplemented(deps.AdminListAnalysesHandler))
		r.Get("/admin/users", orNotImplemented(deps.AdminListUsersHandler))
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
