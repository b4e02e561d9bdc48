package service

import "github.com/prometheus/client_golang/prometheus"

// Handoff outcomes recorded on apkrelay_handoffs_total.
const (
	OutcomeCompleted  = "completed"
	OutcomeFailed     = "failed"
	OutcomeDeleted    = "deleted"
	OutcomeSuperseded = "superseded"
	OutcomeLost       = "write_failed"
)

// Metrics groups the handoff pipeline collectors.
type Metrics struct {
	handoffs              *prometheus.CounterVec
	duration              prometheus.Histogram
	terminalWriteFailures prometheus.Counter
	swept                 prometheus.Counter
}

// NewMetrics registers the collectors on reg. A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		handoffs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "apkrelay_handoffs_total",
			Help: "Finished background handoffs by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "apkrelay_handoff_duration_seconds",
			Help:    "Time from dequeue to terminal write.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		}),
		terminalWriteFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "apkrelay_terminal_write_failures_total",
			Help: "Terminal status writes that failed after all retries.",
		}),
		swept: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "apkrelay_stuck_records_failed_total",
			Help: "Records moved to failed by the stuck-record sweep.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.handoffs, m.duration, m.terminalWriteFailures, m.swept)
	}
	return m
}
