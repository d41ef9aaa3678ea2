package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Build results.
const (
	ResultOK     = "ok"
	ResultFailed = "failed"
)

// Metrics holds the build metrics on a private registry, so several
// sessions in one process never collide on the default registerer.
// All methods are safe on a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	builds        *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	records       prometheus.Counter
	conflicts     prometheus.Counter
	plugins       prometheus.Gauge
	skipped       prometheus.Counter
}

// NewMetrics registers the build metrics on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		builds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bashed_builds_total",
			Help: "Patch builds by result.",
		}, []string{"result"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bashed_stage_duration_seconds",
			Help:    "Duration of each build stage.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"stage"}),
		records: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bashed_records_emitted_total",
			Help: "Records written into built patches.",
		}),
		conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bashed_conflicting_objects_total",
			Help: "Objects with at least one conflicting field.",
		}),
		plugins: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bashed_active_plugins",
			Help: "Active plugins in the last loaded session.",
		}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bashed_plugins_skipped_total",
			Help: "Plugins skipped at load time because they failed to parse.",
		}),
	}
	m.registry.MustRegister(m.builds, m.stageDuration, m.records, m.conflicts, m.plugins, m.skipped)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Stage starts timing stage; call the returned function when it ends.
func (m *Metrics) Stage(stage string) func() {
	if m == nil {
		return func() {}
	}
	start := time.Now()
	return func() {
		m.stageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	}
}

// Loaded records a finished plugin load.
func (m *Metrics) Loaded(active, skipped int) {
	if m == nil {
		return
	}
	m.plugins.Set(float64(active))
	m.skipped.Add(float64(skipped))
}

// Built records a finished build.
func (m *Metrics) Built(records, conflicts int) {
	if m == nil {
		return
	}
	m.builds.WithLabelValues(ResultOK).Inc()
	m.records.Add(float64(records))
	m.conflicts.Add(float64(conflicts))
}

// Failed records a failed build.
func (m *Metrics) Failed() {
	if m == nil {
		return
	}
	m.builds.WithLabelValues(ResultFailed).Inc()
}

// WriteTextfile writes the registry in the text exposition format to path,
// for node_exporter's textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
