package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// GCMetrics instruments collection runs.
//
// A nil *GCMetrics is valid and records nothing, so callers never need to
// branch on whether metrics are enabled.
type GCMetrics struct {
	runsTotal        *prometheus.CounterVec
	runDuration      *prometheus.HistogramVec
	chunksDeleted    prometheus.Counter
	chunksSkipped    prometheus.Counter
	bytesReclaimed   prometheus.Counter
	deletionErrors   prometheus.Counter
	pendingChunks    prometheus.Gauge
	reclaimableBytes prometheus.Gauge
}

// NewGCMetrics creates Prometheus-backed collection metrics.
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewGCMetrics() *GCMetrics {
	if !IsEnabled() {
		return nil
	}

	reg := GetRegistry()

	return &GCMetrics{
		runsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "chunkvault_gc_runs_total",
				Help: "Total number of collection runs by strategy and status",
			},
			[]string{"strategy", "status"},
		),
		runDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "chunkvault_gc_run_duration_seconds",
				Help: "Duration of collection runs in seconds",
				Buckets: []float64{
					0.1, // trivial runs
					1,
					10,
					60,   // 1m
					300,  // 5m
					1800, // 30m - full mark-and-sweep territory
					3600, // 1h
				},
			},
			[]string{"strategy"},
		),
		chunksDeleted: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "chunkvault_gc_chunks_deleted_total",
				Help: "Total number of chunks physically deleted",
			},
		),
		chunksSkipped: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "chunkvault_gc_chunks_skipped_total",
				Help: "Total number of candidates skipped at revalidation",
			},
		),
		bytesReclaimed: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "chunkvault_gc_bytes_reclaimed_total",
				Help: "Total bytes reclaimed by collection",
			},
		),
		deletionErrors: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "chunkvault_gc_deletion_errors_total",
				Help: "Total number of per-chunk deletion failures",
			},
		),
		pendingChunks: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "chunkvault_gc_pending_chunks",
				Help: "Number of chunks currently awaiting deletion",
			},
		),
		reclaimableBytes: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "chunkvault_gc_reclaimable_bytes",
				Help: "Bytes eligible for reclamation right now",
			},
		),
	}
}

// ObserveRun records a finished run.
func (m *GCMetrics) ObserveRun(strategy, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(strategy, status).Inc()
	m.runDuration.WithLabelValues(strategy).Observe(duration.Seconds())
}

// ObserveDeletion records one physical chunk deletion.
func (m *GCMetrics) ObserveDeletion(bytes int64) {
	if m == nil {
		return
	}
	m.chunksDeleted.Inc()
	m.bytesReclaimed.Add(float64(bytes))
}

// ObserveSkip records a candidate that failed revalidation.
func (m *GCMetrics) ObserveSkip() {
	if m == nil {
		return
	}
	m.chunksSkipped.Inc()
}

// ObserveError records a per-chunk deletion failure.
func (m *GCMetrics) ObserveError() {
	if m == nil {
		return
	}
	m.deletionErrors.Inc()
}

// SetPending updates the pending-set gauges.
func (m *GCMetrics) SetPending(chunks, reclaimableBytes int64) {
	if m == nil {
		return
	}
	m.pendingChunks.Set(float64(chunks))
	m.reclaimableBytes.Set(float64(reclaimableBytes))
}
