package middleware

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/cathouse/taskmanager/internal/metrics"
	"github.com/cathouse/taskmanager/internal/service"
)

// AdminKeyHeader carries the admin credential.
const AdminKeyHeader = "X-Admin-Key"

// RequireAdminKey returns an HTTP middleware that rejects requests whose
// X-Admin-Key header does not match the configured admin key. A missing
// header and a wrong one get different messages; neither reveals the key.
func RequireAdminKey(auth *service.AdminAuth) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented := r.Header.Get(AdminKeyHeader)
			if presented == "" {
				metrics.RecordAuthFailure("admin_key")
				writeDetail(w, http.StatusUnauthorized, "Admin key required")
				return
			}
			if !auth.Check(presented) {
				metrics.RecordAuthFailure("admin_key")
				writeDetail(w, http.StatusUnauthorized, "Invalid admin key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// writeDetail writes {"detail": message}. The handler package has its own
// helper; importing it here would create a cycle.
func writeDetail(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"detail": message})
}
