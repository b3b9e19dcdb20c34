package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/cathouse/taskmanager/internal/model"
	"github.com/cathouse/taskmanager/internal/service"
	"github.com/cathouse/taskmanager/internal/validation"
)

// AdminHandler serves the service key administration endpoints. Callers
// must already have passed the admin key check.
type AdminHandler struct {
	keys   *service.KeyService
	logger *slog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(keys *service.KeyService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{keys: keys, logger: logger}
}

// IssueKey creates a service key and returns its secret exactly once.
// POST /admin/service-keys
func (h *AdminHandler) IssueKey(w http.ResponseWriter, r *http.Request) {
	var req model.ServiceKeyCreateRequest
	if !h.decode(w, r, &req) {
		return
	}

	issued, err := h.keys.Issue(r.Context(), req.KeyName, req.Environment)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrDuplicateKeyName), errors.Is(err, service.ErrInvalidArgument):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			h.logger.Error("issue service key failed", "key_name", req.KeyName, "error", err)
			writeError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}
	writeJSON(w, http.StatusCreated, issued)
}

// RotateKey replaces the active secret for a key name, keeping the old
// one valid through the grace period.
// POST /admin/rotate-key
func (h *AdminHandler) RotateKey(w http.ResponseWriter, r *http.Request) {
	var req model.ServiceKeyRotateRequest
	if !h.decode(w, r, &req) {
		return
	}

	rotated, err := h.keys.Rotate(r.Context(), req.KeyName)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		h.logger.Error("rotate service key failed", "key_name", req.KeyName, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, rotated)
}

// ListKeys returns every credential record without secrets.
// GET /admin/service-keys
func (h *AdminHandler) ListKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.keys.List(r.Context())
	if err != nil {
		h.logger.Error("list service keys failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, model.ServiceKeyListResponse{Keys: keys, Count: len(keys)})
}

// RevokeKey deactivates a credential record.
// DELETE /admin/service-keys/{key_id}
func (h *AdminHandler) RevokeKey(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "key_id")
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusNotFound, "service key '"+raw+"' not found")
		return
	}

	if err := h.keys.Revoke(r.Context(), id.String()); err != nil {
		if errors.Is(err, service.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		h.logger.Error("revoke service key failed", "key_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// decode reads and validates a JSON body, writing a 422 on failure.
func (h *AdminHandler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	body, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read request body")
		return false
	}
	if errs := validation.DecodeJSON(body, v, "body"); errs != nil {
		writeValidationError(w, errs)
		return false
	}
	if errs := validation.ValidateStruct(v, "body"); errs != nil {
		writeValidationError(w, errs)
		return false
	}
	return true
}
