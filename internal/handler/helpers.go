package handler

import (
	"io"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/cathouse/taskmanager/internal/model"
)

// writeJSON serializes v as JSON and writes it to the response with the given
// HTTP status code. The Content-Type header is set to application/json.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes {"detail": message}.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, model.ErrorResponse{Detail: message})
}

// writeValidationError writes a 422 with one entry per failing field.
func writeValidationError(w http.ResponseWriter, errs []model.FieldError) {
	writeJSON(w, http.StatusUnprocessableEntity, model.ValidationErrorResponse{Detail: errs})
}

// readBody reads the request body. The body is closed after reading
// regardless of success or failure.
func readBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(r.Body)
}
