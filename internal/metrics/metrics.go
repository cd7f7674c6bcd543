// Package metrics holds the Prometheus collectors for the classification
// pipeline. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "kiri"

type Metrics struct {
	registry *prometheus.Registry

	Runs         *prometheus.CounterVec
	RunDuration  prometheus.Histogram
	TierAttempts *prometheus.CounterVec
	Corrections  prometheus.Counter
	Artifacts    *prometheus.CounterVec
	LLMCalls     *prometheus.HistogramVec
	Jobs         *prometheus.CounterVec
}

// New registers all collectors on a fresh registry, plus the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "classification_runs_total",
			Help: "Classification runs by terminal state.",
		}, []string{"state"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "classification_run_duration_seconds",
			Help:    "Wall time of one classification run.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 80},
		}),
		TierAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "classification_tier_attempts_total",
			Help: "Classifier tier attempts by tier and result.",
		}, []string{"tier", "result"}),
		Corrections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "classification_validator_corrections_total",
			Help: "Verdicts replaced by the validator.",
		}),
		Artifacts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "artifacts_total",
			Help: "Artifact generation outcomes by lane.",
		}, []string{"lane", "result"}),
		LLMCalls: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "llm_call_duration_seconds",
			Help:    "Remote classifier call latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider", "result"}),
		Jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "jobs_total",
			Help: "Executor job outcomes.",
		}, []string{"executor", "result"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Runs, m.RunDuration, m.TierAttempts, m.Corrections, m.Artifacts, m.LLMCalls, m.Jobs,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveRun(state string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Runs.WithLabelValues(state).Inc()
	m.RunDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveTier(tier string, ok bool) {
	if m == nil {
		return
	}
	m.TierAttempts.WithLabelValues(tier, result(ok)).Inc()
}

func (m *Metrics) ObserveCorrection() {
	if m == nil {
		return
	}
	m.Corrections.Inc()
}

func (m *Metrics) ObserveArtifact(lane string, ok bool) {
	if m == nil {
		return
	}
	m.Artifacts.WithLabelValues(lane, result(ok)).Inc()
}

func (m *Metrics) ObserveLLMCall(provider string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.LLMCalls.WithLabelValues(provider, result(err == nil)).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveJob(executor string, err error) {
	if m == nil {
		return
	}
	m.Jobs.WithLabelValues(executor, result(err == nil)).Inc()
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "fail"
}
