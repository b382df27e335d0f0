// Package metrics exposes Prometheus metrics for the storage engine:
// log lifecycle counters, compaction counters and retention gauges.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the storage engine.
//
// Each instance carries its own registry so that independent engines
// (and tests) never collide on metric registration.
type Metrics struct {
	registry *prometheus.Registry

	// Log lifecycle
	entriesAppended  prometheus.Counter
	entriesCommitted prometheus.Counter
	entriesEvicted   prometheus.Counter
	checkpoints      prometheus.Counter
	recoveries       prometheus.Counter

	// Compaction
	segmentsAdded prometheus.Counter
	compactions   prometheus.Counter
	tombstones    prometheus.Counter
	lookups       *prometheus.CounterVec

	// Retention gauges
	retainedEntries    prometheus.Gauge
	uncommittedEntries prometheus.Gauge
	segmentCount       prometheus.Gauge

	// Latency
	opDuration *prometheus.HistogramVec
}

// New creates a metrics instance with its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		entriesAppended: factory.NewCounter(prometheus.CounterOpts{
			Name: "driftlake_wal_entries_appended_total",
			Help: "Total number of entries appended to the write-ahead log",
		}),
		entriesCommitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "driftlake_wal_entries_committed_total",
			Help: "Total number of entries committed",
		}),
		entriesEvicted: factory.NewCounter(prometheus.CounterOpts{
			Name: "driftlake_wal_entries_evicted_total",
			Help: "Total number of entries evicted by the capacity bound",
		}),
		checkpoints: factory.NewCounter(prometheus.CounterOpts{
			Name: "driftlake_wal_checkpoints_total",
			Help: "Total number of checkpoints taken",
		}),
		recoveries: factory.NewCounter(prometheus.CounterOpts{
			Name: "driftlake_wal_recoveries_total",
			Help: "Total number of recovery replays served",
		}),

		segmentsAdded: factory.NewCounter(prometheus.CounterOpts{
			Name: "driftlake_compaction_segments_added_total",
			Help: "Total number of segments added to the store",
		}),
		compactions: factory.NewCounter(prometheus.CounterOpts{
			Name: "driftlake_compaction_runs_total",
			Help: "Total number of compaction runs",
		}),
		tombstones: factory.NewCounter(prometheus.CounterOpts{
			Name: "driftlake_compaction_tombstones_total",
			Help: "Total number of tombstones recorded",
		}),
		lookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "driftlake_lookups_total",
			Help: "Total number of point lookups by result",
		}, []string{"result"}),

		retainedEntries: factory.NewGauge(prometheus.GaugeOpts{
			Name: "driftlake_wal_retained_entries",
			Help: "Number of entries currently retained in the log",
		}),
		uncommittedEntries: factory.NewGauge(prometheus.GaugeOpts{
			Name: "driftlake_wal_uncommitted_entries",
			Help: "Number of uncommitted entries in the log",
		}),
		segmentCount: factory.NewGauge(prometheus.GaugeOpts{
			Name: "driftlake_segments",
			Help: "Number of segments across all levels",
		}),

		opDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "driftlake_operation_duration_seconds",
			Help:    "Duration of storage engine operations",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
	}
}

// Registry returns the underlying registry, for exposition or for
// registering additional collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler serving the metrics in Prometheus
// exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) EntryAppended()  { m.entriesAppended.Inc() }
func (m *Metrics) EntryCommitted() { m.entriesCommitted.Inc() }

func (m *Metrics) EntriesEvicted(n int) {
	m.entriesEvicted.Add(float64(n))
}

func (m *Metrics) CheckpointTaken() { m.checkpoints.Inc() }
func (m *Metrics) RecoveryServed()  { m.recoveries.Inc() }

func (m *Metrics) SegmentAdded()      { m.segmentsAdded.Inc() }
func (m *Metrics) CompactionRun()     { m.compactions.Inc() }
func (m *Metrics) TombstoneRecorded() { m.tombstones.Inc() }

// LookupServed records a point lookup and whether it found a value.
func (m *Metrics) LookupServed(found bool) {
	if found {
		m.lookups.WithLabelValues("hit").Inc()
	} else {
		m.lookups.WithLabelValues("miss").Inc()
	}
}

// SetRetention updates the retained and uncommitted entry gauges.
func (m *Metrics) SetRetention(retained, uncommitted int) {
	m.retainedEntries.Set(float64(retained))
	m.uncommittedEntries.Set(float64(uncommitted))
}

// SetSegmentCount updates the segment count gauge.
func (m *Metrics) SetSegmentCount(n int) {
	m.segmentCount.Set(float64(n))
}

// ObserveDuration records an operation duration in seconds.
func (m *Metrics) ObserveDuration(operation string, seconds float64) {
	m.opDuration.WithLabelValues(operation).Observe(seconds)
}
