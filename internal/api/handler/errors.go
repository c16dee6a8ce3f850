package handler

import (
	"errors"
	"net/http"

	"github.com/akettlewell/chatqueue/internal/api/response"
	"github.com/akettlewell/chatqueue/internal/store"
)

// storeError maps store errors onto the response envelope.
func storeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "Resource not found", nil)
	case errors.Is(err, store.ErrInvalidTransition):
		response.Error(w, http.StatusConflict, "INVALID_STATE",
			"The job is not in a state that allows this operation", nil)
	default:
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"An unexpected error occurred", nil)
	}
}
