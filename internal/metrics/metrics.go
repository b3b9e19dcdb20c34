// Package metrics holds the Prometheus collectors for command dispatch,
// credential checks and service-key lifecycle operations. Collectors are
// registered on the default registry at init and served on /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// UnknownAction is the action label used for names that are not registered,
// so arbitrary client input cannot grow label cardinality.
const UnknownAction = "unknown"

// Command outcomes.
const (
	OutcomeSuccess      = "success"
	OutcomeKnownFailure = "known_failure"
	OutcomeSoftFailure  = "soft_failure"
	OutcomeRejected     = "rejected"
)

var (
	CommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskmanager_commands_total",
			Help: "Total number of routed commands by action and outcome",
		},
		[]string{"action", "outcome"},
	)

	CommandDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "taskmanager_command_duration_seconds",
			Help:    "Duration of action handler execution in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"action"},
	)

	AuthFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskmanager_auth_failures_total",
			Help: "Total number of rejected credentials",
		},
		[]string{"credential"}, // "service_key", "admin_key"
	)

	KeyOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskmanager_key_operations_total",
			Help: "Total number of service key lifecycle operations",
		},
		[]string{"operation", "outcome"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskmanager_http_requests_total",
			Help: "Total number of HTTP requests by method and status code",
		},
		[]string{"method", "status"},
	)
)

// RecordCommand records a routed command. Pass UnknownAction for names the
// registry does not know.
func RecordCommand(action, outcome string, duration time.Duration) {
	CommandsTotal.WithLabelValues(action, outcome).Inc()
	if duration > 0 {
		CommandDuration.WithLabelValues(action).Observe(duration.Seconds())
	}
}

// RecordAuthFailure records a rejected credential of the given kind.
func RecordAuthFailure(credential string) {
	AuthFailuresTotal.WithLabelValues(credential).Inc()
}

// RecordKeyOperation records an issue, rotate or revoke.
func RecordKeyOperation(operation string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	KeyOperationsTotal.WithLabelValues(operation, outcome).Inc()
}

// RecordHTTPRequest records a completed HTTP request.
func RecordHTTPRequest(method string, status int) {
	HTTPRequestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
}
