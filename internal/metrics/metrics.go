package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values shared across counters.
const (
	OutcomeSuccess  = "success"
	OutcomeRetained = "retained"
	OutcomeFailure  = "failure"
	OutcomeCached   = "cached"
	OutcomeFetched  = "fetched"
	OutcomeRebuilt  = "rebuilt"
	OutcomeAborted  = "aborted"
	OutcomeSent     = "sent"
	OutcomeEmpty    = "empty"
	OutcomeRejected = "rejected"
)

var (
	// Directory Metrics
	AccountRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_account_refreshes_total",
			Help: "Per-account catalog refreshes by outcome (success, retained)",
		},
		[]string{"account", "outcome"},
	)

	DirectoryMerges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_directory_merges_total",
			Help: "Merged directory requests by outcome (cached, rebuilt, aborted)",
		},
		[]string{"outcome"},
	)

	DirectoryDevices = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_directory_devices",
			Help: "Distinct device IDs in the current merged directory",
		},
	)

	VariableResolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_variable_resolutions_total",
			Help: "Per-binding variable resolutions by outcome (cached, fetched, failure)",
		},
		[]string{"outcome"},
	)

	// Dispatch Metrics
	AccountDispatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_account_dispatches_total",
			Help: "Per-account value updates by outcome (sent, empty, failure)",
		},
		[]string{"account", "outcome"},
	)

	Messages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_messages_total",
			Help: "Processed telemetry messages by status",
		},
		[]string{"status"},
	)

	// Remote API Metrics
	RemoteRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_remote_request_duration_seconds",
			Help:    "Duration of requests to the dashboard service",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "outcome"},
	)

	// Ops API Metrics
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_http_request_duration_seconds",
			Help:    "Duration of ops API requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "status"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "relay_circuit_breaker_state",
			Help: "Per-account circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"account"},
	)
)

// AccountLabel formats an account position as a label value.
func AccountLabel(account int) string {
	return strconv.Itoa(account)
}
