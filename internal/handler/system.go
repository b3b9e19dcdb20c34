package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/cathouse/taskmanager/internal/model"
)

// Pinger reports whether the backing database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SystemHandler serves liveness and readiness probes.
type SystemHandler struct {
	db      Pinger
	version string
	now     func() time.Time
}

// NewSystemHandler creates a new SystemHandler.
func NewSystemHandler(db Pinger, version string) *SystemHandler {
	return &SystemHandler{db: db, version: version, now: time.Now}
}

// Health is a liveness probe. It never touches the database.
// GET /health
func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, model.HealthResponse{
		Status:    "healthy",
		Version:   h.version,
		Timestamp: h.now().UTC().Format(time.RFC3339Nano),
	})
}

// Readyz is a readiness probe. Returns 503 when the database is unreachable.
// GET /readyz
func (h *SystemHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status": "unavailable",
			"checks": map[string]string{"database": "error: " + err.Error()},
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"checks": map[string]string{"database": "ok"},
	})
}
