package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/cathouse/taskmanager/internal/command"
)

// ServiceKeyHeader carries the caller's service secret.
const ServiceKeyHeader = "X-Service-Key"

// CommandHandler serves POST /execute.
type CommandHandler struct {
	router *command.Router
	logger *slog.Logger
}

// NewCommandHandler creates a new CommandHandler.
func NewCommandHandler(router *command.Router, logger *slog.Logger) *CommandHandler {
	return &CommandHandler{router: router, logger: logger}
}

// Execute authenticates the service key, then routes the command body.
// POST /execute
func (h *CommandHandler) Execute(w http.ResponseWriter, r *http.Request) {
	secret := r.Header.Get(ServiceKeyHeader)

	body, err := readBody(r)
	if err != nil {
		// Credentials are still checked first.
		if _, out, ok := h.router.Authenticate(r.Context(), secret); !ok {
			writeError(w, out.Status, out.Detail)
			return
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return
		}
		h.logger.Warn("failed to read request body", "error", err)
		writeError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}

	out := h.router.Execute(r.Context(), secret, body)
	switch {
	case out.Response != nil:
		writeJSON(w, out.Status, out.Response)
	case out.Errors != nil:
		writeValidationError(w, out.Errors)
	default:
		writeError(w, out.Status, out.Detail)
	}
}
