package metrics

import (
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	attemptDuration *prom.HistogramVec
	classified      *prom.CounterVec
	decisions       *prom.CounterVec
	outcomes        *prom.CounterVec
	sessionDuration prom.Histogram
	probeFailures   prom.Counter
	activeSessions  prom.Gauge
}

// NewPrometheusRecorder constructs and registers the session metrics on reg.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	buildBuckets := []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200}
	pr := &PrometheusRecorder{
		attemptDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "autobuild",
			Name:      "attempt_duration_seconds",
			Help:      "Duration of individual build attempts",
			Buckets:   buildBuckets,
		}, []string{"result"}),
		classified: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "autobuild",
			Name:      "classified_errors_total",
			Help:      "Classified build errors by category",
		}, []string{"category"}),
		decisions: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "autobuild",
			Name:      "fix_decisions_total",
			Help:      "Fix strategy decisions by kind",
		}, []string{"kind"}),
		outcomes: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "autobuild",
			Name:      "session_outcomes_total",
			Help:      "Build sessions by final status",
		}, []string{"status"}),
		sessionDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: "autobuild",
			Name:      "session_duration_seconds",
			Help:      "Total build session duration",
			Buckets:   buildBuckets,
		}),
		probeFailures: prom.NewCounter(prom.CounterOpts{
			Namespace: "autobuild",
			Name:      "probe_failures_total",
			Help:      "Build tool availability probe failures",
		}),
		activeSessions: prom.NewGauge(prom.GaugeOpts{
			Namespace: "autobuild",
			Name:      "active_sessions",
			Help:      "Build sessions currently running",
		}),
	}
	reg.MustRegister(pr.attemptDuration, pr.classified, pr.decisions, pr.outcomes,
		pr.sessionDuration, pr.probeFailures, pr.activeSessions)
	return pr
}

func (p *PrometheusRecorder) ObserveAttempt(result AttemptResult, d time.Duration) {
	if p == nil {
		return
	}
	p.attemptDuration.WithLabelValues(string(result)).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncClassifiedError(category string) {
	if p == nil {
		return
	}
	p.classified.WithLabelValues(category).Inc()
}

func (p *PrometheusRecorder) IncDecision(kind string) {
	if p == nil {
		return
	}
	p.decisions.WithLabelValues(kind).Inc()
}

func (p *PrometheusRecorder) IncSessionOutcome(status string) {
	if p == nil {
		return
	}
	p.outcomes.WithLabelValues(status).Inc()
}

func (p *PrometheusRecorder) ObserveSessionDuration(d time.Duration) {
	if p == nil {
		return
	}
	p.sessionDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncProbeFailure() {
	if p == nil {
		return
	}
	p.probeFailures.Inc()
}

func (p *PrometheusRecorder) AddActiveSessions(delta int) {
	if p == nil {
		return
	}
	p.activeSessions.Add(float64(delta))
}

// Handler returns an http.Handler serving the registry in exposition format.
func Handler(reg *prom.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
