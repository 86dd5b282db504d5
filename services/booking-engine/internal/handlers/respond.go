package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dmarin-v/slotbook/services/booking-engine/internal/model"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps the domain error taxonomy onto HTTP statuses. Anything
// untyped is a 500 with a generic body; the detail goes to the access log,
// not the client.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case model.IsValidation(err):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, model.ErrNoOperatorAvailable):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case model.IsConflict(err):
		var conflict *model.ConflictError
		_ = errors.As(err, &conflict)
		if conflict.Retryable {
			w.Header().Set("Retry-After", "1")
		}
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case model.IsNotFound(err):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case model.IsAuthorization(err):
		writeJSON(w, http.StatusForbidden, errorResponse{Error: err.Error()})
	case model.IsState(err):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}
