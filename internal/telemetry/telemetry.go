package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/3cpo-dev/gluerun/pkg/api"
)

// Metrics records runner activity. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry    *prometheus.Registry
	submissions *prometheus.CounterVec
	polls       *prometheus.CounterVec
	runs        *prometheus.CounterVec
	duration    *prometheus.HistogramVec
}

// NewMetrics creates the runner metrics on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gluerun_submissions_total",
			Help: "Start calls issued to Glue, by result.",
		}, []string{"kind", "result"}),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gluerun_polls_total",
			Help: "Status fetches, by observed remote state.",
		}, []string{"kind", "state"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gluerun_runs_total",
			Help: "Finished runs, by outcome.",
		}, []string{"kind", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gluerun_run_duration_seconds",
			Help:    "Wall time from submission to terminal state.",
			Buckets: prometheus.ExponentialBuckets(30, 2, 10),
		}, []string{"kind", "outcome"}),
	}
	m.registry.MustRegister(m.submissions, m.polls, m.runs, m.duration)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Submission records the result of a start call.
func (m *Metrics) Submission(kind api.Kind, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.submissions.WithLabelValues(string(kind), result).Inc()
}

// Poll records one status fetch.
func (m *Metrics) Poll(kind api.Kind, state string) {
	if m == nil {
		return
	}
	m.polls.WithLabelValues(string(kind), state).Inc()
}

// RunFinished records a terminal outcome and how long the run took.
func (m *Metrics) RunFinished(kind api.Kind, outcome api.Outcome, d time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(string(kind), string(outcome)).Inc()
	m.duration.WithLabelValues(string(kind), string(outcome)).Observe(d.Seconds())
}
