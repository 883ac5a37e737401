// Package metrics provides Prometheus metrics export for session integrity.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	enabled         bool
	enabledMutex    sync.RWMutex
	defaultRegistry *Registry
)

// Init initializes the metrics system.
func Init() {
	enabledMutex.Lock()
	defer enabledMutex.Unlock()
	enabled = true
	if defaultRegistry == nil {
		defaultRegistry = NewRegistry()
	}
}

// Enabled returns true if metrics are enabled.
func Enabled() bool {
	enabledMutex.RLock()
	defer enabledMutex.RUnlock()
	return enabled
}

// Default returns the default metrics registry.
func Default() *Registry {
	enabledMutex.RLock()
	r := defaultRegistry
	enabledMutex.RUnlock()
	if r == nil {
		Init()
		return Default()
	}
	return r
}

// Registry holds all proctoring metrics on a private Prometheus registry.
type Registry struct {
	reg *prometheus.Registry

	warnings          *prometheus.CounterVec
	terminations      *prometheus.CounterVec
	detectorFailures  prometheus.Counter
	samplesSkipped    prometheus.Counter
	samples           *prometheus.CounterVec
	ledgerResets      *prometheus.CounterVec
	statusUnavailable prometheus.Counter
	activeSessions    prometheus.Gauge
}

// NewRegistry creates a new metrics registry.
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		warnings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vidyamitra",
			Name:      "proctor_warnings_total",
			Help:      "Warnings surfaced to candidates, by cause and round.",
		}, []string{"cause", "round"}),
		terminations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vidyamitra",
			Name:      "proctor_terminations_total",
			Help:      "Sessions terminated for integrity violations, by cause and round.",
		}, []string{"cause", "round"}),
		detectorFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vidyamitra",
			Name:      "presence_detector_failures_total",
			Help:      "Presence detector calls that failed and were skipped.",
		}),
		samplesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vidyamitra",
			Name:      "presence_ticks_skipped_total",
			Help:      "Sampler ticks skipped because a cycle was still in flight.",
		}),
		samples: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vidyamitra",
			Name:      "presence_samples_total",
			Help:      "Presence samples classified, by classification.",
		}, []string{"classification"}),
		ledgerResets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vidyamitra",
			Name:      "ledger_resets_total",
			Help:      "Round-flow resets, by outcome.",
		}, []string{"outcome"}),
		statusUnavailable: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vidyamitra",
			Name:      "ledger_status_unavailable_total",
			Help:      "Round status reads that failed and closed access.",
		}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "vidyamitra",
			Name:      "active_sessions",
			Help:      "Sessions currently being monitored.",
		}),
	}
	r.reg.MustRegister(
		r.warnings, r.terminations, r.detectorFailures, r.samplesSkipped,
		r.samples, r.ledgerResets, r.statusUnavailable, r.activeSessions,
	)
	return r
}

// Gatherer exposes the underlying registry, mostly for tests.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// Handler returns an HTTP handler serving the registry in Prometheus format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// RecordWarning records a warning surfaced to a candidate.
func (r *Registry) RecordWarning(cause, round string) {
	r.warnings.WithLabelValues(cause, round).Inc()
}

// RecordTermination records a session termination.
func (r *Registry) RecordTermination(cause, round string) {
	r.terminations.WithLabelValues(cause, round).Inc()
}

// RecordDetectorFailure records a skipped detector cycle.
func (r *Registry) RecordDetectorFailure() {
	r.detectorFailures.Inc()
}

// RecordSkippedTick records a tick dropped because a cycle was in flight.
func (r *Registry) RecordSkippedTick() {
	r.samplesSkipped.Inc()
}

// RecordSample records one classified presence sample.
func (r *Registry) RecordSample(classification string) {
	r.samples.WithLabelValues(classification).Inc()
}

// RecordLedgerReset records a ledger reset attempt.
func (r *Registry) RecordLedgerReset(success bool) {
	outcome := "ok"
	if !success {
		outcome = "failed"
	}
	r.ledgerResets.WithLabelValues(outcome).Inc()
}

// RecordStatusUnavailable records a failed status read.
func (r *Registry) RecordStatusUnavailable() {
	r.statusUnavailable.Inc()
}

// SessionStarted and SessionEnded track the active session gauge.
func (r *Registry) SessionStarted() { r.activeSessions.Inc() }

func (r *Registry) SessionEnded() { r.activeSessions.Dec() }
