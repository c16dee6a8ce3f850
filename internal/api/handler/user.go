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

// UserStore is the store subset the user handler depends on.
type UserStore interface {
	UpsertUser(ctx context.Context, user *models.User) (*models.User, error)
}

// NewUpsertUserHandler returns an http.HandlerFunc for POST /user.
// A missing userid creates a new user; a known one renames it.
func NewUpsertUserHandler(s UserStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			UserID string `json:"userid"`
			Name   string `json:"name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		if req.Name == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "name is required", nil)
			return
		}

		id := uuid.New()
		if req.UserID != "" {
			parsed, err := uuid.Parse(req.UserID)
			if err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "userid must be a valid UUID", nil)
				return
			}
			id = parsed
		}

		user, err := s.UpsertUser(r.Context(), &models.User{
			ID:        id,
			Name:      req.Name,
			CreatedAt: time.Now().UTC(),
		})
		if err != nil {
			storeError(w, err)
			return
		}

		response.JSON(w, user)
	}
}
