// Package metrics exposes pipeline counters in the Prometheus text format.
package metrics

import (
	"net/http"

	"ignitiongate/internal/model"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ignitiongate"

// Metrics is safe to use through a nil pointer; every method is then a no-op.
type Metrics struct {
	registry          *prometheus.Registry
	decisions         *prometheus.CounterVec
	inferenceFailures prometheus.Counter
	actuatorFailures  prometheus.Counter
	skippedCycles     prometheus.Counter
	droppedBroadcasts prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Ignition decisions by outcome.",
		}, []string{"outcome"}),
		inferenceFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inference_failures_total",
			Help:      "Classifications replaced by the safe default.",
		}),
		actuatorFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actuator_failures_total",
			Help:      "Decisions the actuator failed to apply.",
		}),
		skippedCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decision_cycles_skipped_total",
			Help:      "Decision cycles skipped because no frame was available.",
		}),
		droppedBroadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "viewer_messages_dropped_total",
			Help:      "Viewer messages dropped because viewers were busy.",
		}),
	}

	m.registry = prometheus.NewRegistry()
	m.registry.MustRegister(
		m.decisions,
		m.inferenceFailures,
		m.actuatorFailures,
		m.skippedCycles,
		m.droppedBroadcasts,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// StatusFunc returns the current snapshot; used to derive gauges at scrape time.
type StatusFunc func() model.SystemStatus

// RegisterStatus exports camera, detector and audit counters read from the
// published snapshot.
func (m *Metrics) RegisterStatus(current StatusFunc) {
	if m == nil {
		return
	}
	counter := func(name, help string, value func(model.SystemStatus) float64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help},
			func() float64 { return value(current()) })
	}
	gauge := func(name, help string, value func(model.SystemStatus) float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help},
			func() float64 { return value(current()) })
	}

	m.registry.MustRegister(
		counter("frames_captured_total", "Frames captured by the camera.",
			func(s model.SystemStatus) float64 { return float64(s.Camera.FramesCaptured) }),
		counter("camera_read_errors_total", "Failed camera reads.",
			func(s model.SystemStatus) float64 { return float64(s.Camera.ReadErrors) }),
		counter("audit_failures_total", "Failed audit appends.",
			func(s model.SystemStatus) float64 { return float64(s.Controller.AuditFailures) }),
		gauge("active", "1 while the pipeline is running.",
			func(s model.SystemStatus) float64 { return boolValue(s.Active) }),
		gauge("ignition_on", "1 while ignition is permitted.",
			func(s model.SystemStatus) float64 { return boolValue(s.Controller.IgnitionOn) }),
		gauge("override_enabled", "1 while the safety override is on.",
			func(s model.SystemStatus) float64 { return boolValue(s.Controller.OverrideEnabled) }),
		gauge("audit_degraded", "1 once an audit append has failed.",
			func(s model.SystemStatus) float64 { return boolValue(s.Controller.AuditDegraded) }),
	)
}

func (m *Metrics) ObserveDecision(d model.ControlDecision) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(string(d.Outcome)).Inc()
}

func (m *Metrics) InferenceFailed() {
	if m == nil {
		return
	}
	m.inferenceFailures.Inc()
}

func (m *Metrics) ActuatorFailed() {
	if m == nil {
		return
	}
	m.actuatorFailures.Inc()
}

func (m *Metrics) CycleSkipped() {
	if m == nil {
		return
	}
	m.skippedCycles.Inc()
}

func (m *Metrics) BroadcastDropped() {
	if m == nil {
		return
	}
	m.droppedBroadcasts.Inc()
}

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
