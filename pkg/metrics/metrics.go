package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Execution metrics
	ExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "theus_executions_total",
			Help: "Total number of process executions by name and outcome",
		},
		[]string{"process", "outcome"},
	)

	ExecutionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "theus_execution_duration_seconds",
			Help:    "Process execution duration in seconds, start to Success/Failure",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"process"},
	)

	// CAS / retry metrics
	CommitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "theus_commits_total",
			Help: "Total number of successful CompareAndSwap commits",
		},
	)

	CASConflictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "theus_cas_conflicts_total",
			Help: "Total number of CompareAndSwap conflicts by requester",
		},
		[]string{"requester"},
	)

	RetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "theus_retries_total",
			Help: "Total number of Execute retries by process",
		},
		[]string{"process"},
	)

	PriorityTicketsGranted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "theus_priority_tickets_granted_total",
			Help: "Total number of priority tickets granted by the Retry Controller",
		},
	)

	CommitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "theus_commit_duration_seconds",
			Help:    "Time taken for a single CompareAndSwap call",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Audit metrics
	AuditFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "theus_audit_failures_total",
			Help: "Total number of audit failures by key and level",
		},
		[]string{"key", "level"},
	)

	// Guard metrics
	GuardDenialsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "theus_guard_denials_total",
			Help: "Total number of guard access denials by zone",
		},
		[]string{"zone"},
	)

	// Outbox metrics
	OutboxQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "theus_outbox_queue_depth",
			Help: "Current number of outbox messages awaiting delivery",
		},
	)

	OutboxDeliveredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "theus_outbox_delivered_total",
			Help: "Total number of outbox messages delivered to the attached worker",
		},
	)
)

func init() {
	prometheus.MustRegister(ExecutionsTotal)
	prometheus.MustRegister(ExecutionDuration)
	prometheus.MustRegister(CommitsTotal)
	prometheus.MustRegister(CASConflictsTotal)
	prometheus.MustRegister(RetriesTotal)
	prometheus.MustRegister(PriorityTicketsGranted)
	prometheus.MustRegister(CommitDuration)
	prometheus.MustRegister(AuditFailuresTotal)
	prometheus.MustRegister(GuardDenialsTotal)
	prometheus.MustRegister(OutboxQueueDepth)
	prometheus.MustRegister(OutboxDeliveredTotal)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
