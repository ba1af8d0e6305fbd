// Package metrics exposes Prometheus instrumentation for the import pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector provides application metrics collection.
// A nil *Collector is valid and records nothing.
type Collector struct {
	registry *prometheus.Registry

	// API Metrics
	APIRequestsTotal   *prometheus.CounterVec
	APIRequestDuration *prometheus.HistogramVec

	// Import Metrics
	ImportsTotal     *prometheus.CounterVec
	ImportDuration   prometheus.Histogram
	ImportRowsTotal  *prometheus.CounterVec
	ImportsActive    prometheus.Gauge
	ImportBytesTotal prometheus.Counter

	// Store Metrics
	StoreRecords       prometheus.Gauge
	StoreEventsTotal   *prometheus.CounterVec
	StoreSnapshotKind  *prometheus.GaugeVec
	SubscriberNotifies prometheus.Counter

	// Sink Metrics
	SinkPublishTotal *prometheus.CounterVec
}

// snapshotKinds are the label values of StoreSnapshotKind; exactly one is 1.
var snapshotKinds = []string{"none", "full", "compact", "stats-only", "emergency"}

// NewCollector creates a collector on its own registry, so several collectors
// can coexist in one process (tests, multiple servers).
func NewCollector(namespace string) *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Collector{
		registry: reg,

		APIRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_requests_total",
				Help:      "Total number of API requests by route, method, and status",
			},
			[]string{"route", "method", "status"},
		),

		APIRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "api_request_duration_seconds",
				Help:      "API request duration in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
			},
			[]string{"route"},
		),

		ImportsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "imports_total",
				Help:      "Total number of imports by mode and outcome",
			},
			[]string{"mode", "outcome"},
		),

		ImportDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "import_duration_seconds",
				Help:      "Duration of import operations in seconds",
				Buckets:   []float64{0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
			},
		),

		ImportRowsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "import_rows_total",
				Help:      "Rows seen by the parser, by result",
			},
			[]string{"result"}, // "valid", "rejected", "duplicate"
		),

		ImportsActive: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "imports_active",
				Help:      "Imports currently holding a limiter slot",
			},
		),

		ImportBytesTotal: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "import_bytes_total",
				Help:      "Bytes read from import uploads",
			},
		),

		StoreRecords: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "store_records",
				Help:      "Records held in memory by the store",
			},
		),

		StoreEventsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "store_events_total",
				Help:      "Persistence and load events by type",
			},
			[]string{"type"},
		),

		StoreSnapshotKind: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "store_snapshot_kind",
				Help:      "Shape of the last persisted snapshot (1 for the current kind)",
			},
			[]string{"kind"},
		),

		SubscriberNotifies: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "store_notifications_total",
				Help:      "Change notifications delivered to subscribers",
			},
		),

		SinkPublishTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sink_publish_total",
				Help:      "Events published to external sinks by sink and outcome",
			},
			[]string{"sink", "outcome"},
		),
	}
}

// Registry returns the registry the collector's metrics live on.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collector's registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Timer provides timing functionality for operations
type Timer struct {
	start    time.Time
	observer prometheus.Observer
}

// NewTimer creates a new timer
func (c *Collector) NewTimer(histogram prometheus.Observer) *Timer {
	return &Timer{
		start:    time.Now(),
		observer: histogram,
	}
}

// ObserveDuration records the elapsed time since timer creation
func (t *Timer) ObserveDuration() time.Duration {
	duration := time.Since(t.start)
	if t.observer != nil {
		t.observer.Observe(duration.Seconds())
	}
	return duration
}

// RecordAPIRequest increments the request counter and observes latency.
func (c *Collector) RecordAPIRequest(route, method, status string, d time.Duration) {
	if c == nil {
		return
	}
	c.APIRequestsTotal.WithLabelValues(route, method, status).Inc()
	c.APIRequestDuration.WithLabelValues(route).Observe(d.Seconds())
}

// RecordImport records one finished import.
func (c *Collector) RecordImport(mode, outcome string, d time.Duration, valid, rejected, duplicates int) {
	if c == nil {
		return
	}
	c.ImportsTotal.WithLabelValues(mode, outcome).Inc()
	c.ImportDuration.Observe(d.Seconds())
	c.ImportRowsTotal.WithLabelValues("valid").Add(float64(valid))
	c.ImportRowsTotal.WithLabelValues("rejected").Add(float64(rejected))
	c.ImportRowsTotal.WithLabelValues("duplicate").Add(float64(duplicates))
}

// AddImportBytes counts bytes read from an upload.
func (c *Collector) AddImportBytes(n int64) {
	if c == nil || n <= 0 {
		return
	}
	c.ImportBytesTotal.Add(float64(n))
}

// SetActiveImports updates the limiter occupancy gauge.
func (c *Collector) SetActiveImports(n int) {
	if c == nil {
		return
	}
	c.ImportsActive.Set(float64(n))
}

// RecordStoreChange updates the record gauge after a mutation.
func (c *Collector) RecordStoreChange(records int) {
	if c == nil {
		return
	}
	c.StoreRecords.Set(float64(records))
	c.SubscriberNotifies.Inc()
}

// RecordStoreEvent counts a store event and tracks the snapshot kind.
func (c *Collector) RecordStoreEvent(eventType, kind string) {
	if c == nil {
		return
	}
	c.StoreEventsTotal.WithLabelValues(eventType).Inc()
	if kind == "" || kind == "unknown" {
		return
	}
	for _, k := range snapshotKinds {
		v := 0.0
		if k == kind {
			v = 1
		}
		c.StoreSnapshotKind.WithLabelValues(k).Set(v)
	}
}

// RecordSinkPublish counts an external sink delivery attempt.
func (c *Collector) RecordSinkPublish(sink string, err error) {
	if c == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.SinkPublishTotal.WithLabelValues(sink, outcome).Inc()
}
