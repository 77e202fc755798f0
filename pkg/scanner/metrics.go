package scanner

import (
	"github.com/prometheus/client_golang/prometheus"

	"go.goms.io/arc/ArcFleetAudit/pkg/auditor"
)

const metricsNamespace = "arc_fleet_audit"

// Metrics holds the scan counters on a private registry so they can be exported as a
// node_exporter textfile after the run. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	inFlight         prometheus.Gauge
	machines         *prometheus.CounterVec
	recommendations  *prometheus.CounterVec
	agentUpdates     prometheus.Counter
	auditDuration    prometheus.Histogram
	lastScanUnixTime prometheus.Gauge
}

// NewMetrics creates and registers the scan metrics
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "audits_in_flight",
			Help:      "Machine audits currently running.",
		}),
		machines: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "machines_total",
			Help:      "Machines processed by outcome.",
		}, []string{"outcome"}),
		recommendations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "recommendations_total",
			Help:      "Recommendations emitted by kind.",
		}, []string{"kind"}),
		agentUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "agent_updates_available_total",
			Help:      "Machines whose agent is older than the latest published version.",
		}),
		auditDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "audit_duration_seconds",
			Help:      "Time spent auditing a single machine.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		lastScanUnixTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "last_scan_timestamp_seconds",
			Help:      "Unix time the last scan finished.",
		}),
	}

	m.registry.MustRegister(m.inFlight, m.machines, m.recommendations, m.agentUpdates, m.auditDuration, m.lastScanUnixTime)
	return m
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// WriteTextfile writes the current metrics in the node_exporter textfile format
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}

func (m *Metrics) auditStarted() {
	if m == nil {
		return
	}
	m.inFlight.Inc()
}

func (m *Metrics) auditFinished(seconds float64) {
	if m == nil {
		return
	}
	m.inFlight.Dec()
	m.auditDuration.Observe(seconds)
}

func (m *Metrics) recordSuccess(record auditor.Record) {
	if m == nil {
		return
	}
	m.machines.WithLabelValues("success").Inc()
	if record.UpdateAvailable {
		m.agentUpdates.Inc()
	}
	for _, rec := range record.Recommendations {
		m.recommendations.WithLabelValues(string(rec.Kind)).Inc()
	}
}

func (m *Metrics) recordFailure() {
	if m == nil {
		return
	}
	m.machines.WithLabelValues("failure").Inc()
}

func (m *Metrics) scanFinished(unixSeconds float64) {
	if m == nil {
		return
	}
	m.lastScanUnixTime.Set(unixSeconds)
}
