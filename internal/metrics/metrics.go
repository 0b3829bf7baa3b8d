// Package metrics wires spec's Orchestrator operations to
// github.com/prometheus/client_golang, replacing the teacher's hand-rolled
// internal/metrics/collector.go (an in-process slice of OperationMetrics
// structs with no export path) with real counters/histograms an operator
// can scrape. Grounded on the prometheus usage in platinummonkey-spoke and
// cloudnative-pg-cloudnative-pg, the two pack repos that actually wire
// client_golang.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds the Prometheus instruments backing every Orchestrator
// operation's observability, mirroring the fields the teacher's
// OperationMetrics struct tracked per-operation in memory.
type Collector struct {
	OperationDuration *prometheus.HistogramVec
	BytesStreamed     *prometheus.CounterVec
	OperationsTotal   *prometheus.CounterVec
	CompressionRatio  *prometheus.HistogramVec
}

// NewCollector creates and registers the pgbackup metric instruments
// against reg. Pass prometheus.NewRegistry() for an isolated registry in
// tests, or prometheus.DefaultRegisterer in production.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		OperationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pgbackup",
			Name:      "operation_duration_seconds",
			Help:      "Duration of backup/restore/cleanup operations.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12), // 1s .. 2048s (~34m)
		}, []string{"operation", "database", "result"}),

		BytesStreamed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pgbackup",
			Name:      "bytes_streamed_total",
			Help:      "Bytes streamed through the pipeline, by direction.",
		}, []string{"operation", "database"}),

		OperationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pgbackup",
			Name:      "operations_total",
			Help:      "Count of Orchestrator operations, by result.",
		}, []string{"operation", "database", "result"}),

		CompressionRatio: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pgbackup",
			Name:      "compression_ratio",
			Help:      "Ratio of compressed artifact size to pg_dump's uncompressed stream size.",
			Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
		}, []string{"database"}),
	}

	reg.MustRegister(c.OperationDuration, c.BytesStreamed, c.OperationsTotal, c.CompressionRatio)
	return c
}

// RecordOperation mirrors the teacher's collector.RecordOperation, now
// pushed into Prometheus vectors instead of an in-memory slice.
func (c *Collector) RecordOperation(operation, database, result string, durationSeconds float64) {
	c.OperationDuration.WithLabelValues(operation, database, result).Observe(durationSeconds)
	c.OperationsTotal.WithLabelValues(operation, database, result).Inc()
}

// AddBytesStreamed increments the byte counter for a streaming stage.
func (c *Collector) AddBytesStreamed(operation, database string, n int64) {
	c.BytesStreamed.WithLabelValues(operation, database).Add(float64(n))
}

// ObserveCompressionRatio records a backup's compressed/uncompressed size ratio.
func (c *Collector) ObserveCompressionRatio(database string, ratio float64) {
	c.CompressionRatio.WithLabelValues(database).Observe(ratio)
}
