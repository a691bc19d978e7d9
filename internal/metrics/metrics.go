package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds counters for session progression and result relaying
type Metrics struct {
	UnitsSubmitted   *prometheus.CounterVec
	UnitsRejected    *prometheus.CounterVec
	SessionsStarted  *prometheus.CounterVec
	RelayAttempts    *prometheus.CounterVec
	RelayDropped     *prometheus.CounterVec
	RelayFailures    *prometheus.CounterVec
	RelayDuration    prometheus.Histogram
	SnapshotFailures prometheus.Counter
	Exports          *prometheus.CounterVec
}

// New creates and registers metrics with the given registry
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		UnitsSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "humanstudy",
			Subsystem: "session",
			Name:      "units_submitted_total",
			Help:      "Evaluation units answered or skipped, by flow and action.",
		}, []string{"flow", "action"}),
		UnitsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "humanstudy",
			Subsystem: "session",
			Name:      "units_rejected_total",
			Help:      "Submissions rejected for missing or invalid answers.",
		}, []string{"flow"}),
		SessionsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "humanstudy",
			Subsystem: "session",
			Name:      "started_total",
			Help:      "Sessions opened, by flow and whether a snapshot was resumed.",
		}, []string{"flow", "resumed"}),
		RelayAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "humanstudy",
			Subsystem: "relay",
			Name:      "attempts_total",
			Help:      "Result batches handed to the sink.",
		}, []string{"sink"}),
		RelayDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "humanstudy",
			Subsystem: "relay",
			Name:      "dropped_total",
			Help:      "Result batches dropped because a relay was already in flight.",
		}, []string{"sink"}),
		RelayFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "humanstudy",
			Subsystem: "relay",
			Name:      "failures_total",
			Help:      "Relay attempts that failed and were swallowed.",
		}, []string{"sink"}),
		RelayDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "humanstudy",
			Subsystem: "relay",
			Name:      "duration_seconds",
			Help:      "Duration of relay attempts.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		SnapshotFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "humanstudy",
			Subsystem: "store",
			Name:      "snapshot_failures_total",
			Help:      "Snapshot writes or clears that failed and were swallowed.",
		}),
		Exports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "humanstudy",
			Subsystem: "export",
			Name:      "generated_total",
			Help:      "Exports generated, by format.",
		}, []string{"format"}),
	}

	reg.MustRegister(
		m.UnitsSubmitted,
		m.UnitsRejected,
		m.SessionsStarted,
		m.RelayAttempts,
		m.RelayDropped,
		m.RelayFailures,
		m.RelayDuration,
		m.SnapshotFailures,
		m.Exports,
	)

	return m
}
