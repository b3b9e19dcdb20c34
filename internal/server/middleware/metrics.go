package middleware

import (
	"net/http"

	"github.com/cathouse/taskmanager/internal/metrics"
)

// Metrics returns an HTTP middleware that counts requests by method and
// response status.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		metrics.RecordHTTPRequest(r.Method, ww.status)
	})
}
