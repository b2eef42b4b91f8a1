package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CompatibilityScores observes overall scores produced by the scorer.
	CompatibilityScores = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "stride_compatibility_score",
			Help:    "Distribution of overall compatibility scores",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		},
	)

	// MatchRequests counts FindMatches invocations by outcome (ok|error).
	MatchRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stride_match_requests_total",
			Help: "Total number of match searches",
		},
		[]string{"result"},
	)

	// MatchSuggestions counts suggestions returned by kind (existing|new).
	MatchSuggestions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stride_match_suggestions_total",
			Help: "Total number of match suggestions returned",
		},
		[]string{"kind"},
	)

	// PodTransitions counts pod status changes by target status.
	PodTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stride_pod_transitions_total",
			Help: "Total number of pod status transitions",
		},
		[]string{"status"},
	)

	// MembershipOperations counts membership mutations by operation and result.
	MembershipOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stride_membership_operations_total",
			Help: "Total number of pod membership operations",
		},
		[]string{"operation", "result"},
	)

	// SessionTransitions counts session state changes by target state.
	SessionTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stride_session_transitions_total",
			Help: "Total number of session state transitions",
		},
		[]string{"status"},
	)

	// WaitlistEvents counts waitlist lifecycle events (requested|warned|matched|expired|cancelled).
	WaitlistEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stride_waitlist_events_total",
			Help: "Total number of waitlist lifecycle events",
		},
		[]string{"event"},
	)

	// ActiveWaitlistEntries tracks entries still waiting for a match.
	ActiveWaitlistEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stride_waitlist_active_entries",
			Help: "Number of active waitlist entries observed by the last sweep",
		},
	)

	// RemindersSent counts reminder fan-outs by window (T-60|T-10).
	RemindersSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stride_reminders_sent_total",
			Help: "Total number of session reminders dispatched",
		},
		[]string{"window"},
	)

	// NotificationDeliveries counts notifier results by kind and outcome (delivered|failed).
	NotificationDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stride_notification_deliveries_total",
			Help: "Total number of notification delivery attempts",
		},
		[]string{"kind", "result"},
	)

	// MaintenanceJobs counts scheduled job runs by job and result.
	MaintenanceJobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stride_maintenance_jobs_total",
			Help: "Total number of maintenance job executions",
		},
		[]string{"job", "result"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stride_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// APIInFlight tracks requests currently being served.
	APIInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stride_api_requests_in_flight",
			Help: "HTTP requests currently being served",
		},
	)
)

// ResultLabel maps an error into the "ok"/"error" label pair used by the counters above.
func ResultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
