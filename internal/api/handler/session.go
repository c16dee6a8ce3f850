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

// SessionStore is the store subset the session handlers depend on.
type SessionStore interface {
	CreateSession(ctx context.Context, session *models.Session) error
	ListSessions(ctx context.Context, userID uuid.UUID) ([]*models.Session, error)
}

// NewCreateSessionHandler returns an http.HandlerFunc for POST /session.
func NewCreateSessionHandler(s SessionStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			UserID string `json:"userid"`
			Name   string `json:"name"`
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

		session := &models.Session{
			ID:        uuid.New(),
			UserID:    userID,
			Name:      req.Name,
			CreatedAt: time.Now().UTC(),
		}
		if err := s.CreateSession(r.Context(), session); err != nil {
			storeError(w, err)
			return
		}

		response.Created(w, session)
	}
}

// NewListSessionsHandler returns an http.HandlerFunc for GET /sessions.
func NewListSessionsHandler(s SessionStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := uuid.Parse(r.URL.Query().Get("userid"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "userid must be a valid UUID", nil)
			return
		}

		sessions, err := s.ListSessions(r.Context(), userID)
		if err != nil {
			storeError(w, err)
			return
		}
		if sessions == nil {
			sessions = []*models.Session{}
		}

		response.JSON(w, sessions)
	}
}
