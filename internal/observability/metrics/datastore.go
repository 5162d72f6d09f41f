// Package metrics provides Prometheus metric collectors for the
// isotrace engine components.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DatastoreMetrics contains Prometheus metrics for store operations
type DatastoreMetrics struct {
	operationsTotal     *prometheus.CounterVec
	operationDuration   *prometheus.HistogramVec
	operationErrors     *prometheus.CounterVec
	sessionsSavedTotal  prometheus.Counter
	summariesRecomputed prometheus.Counter
}

// NewDatastoreMetrics creates and registers new datastore metrics
func NewDatastoreMetrics(registry *prometheus.Registry) (*DatastoreMetrics, error) {
	m := &DatastoreMetrics{
		operationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "isotrace_datastore_operations_total",
			Help: "Total number of datastore operations by type",
		}, []string{"operation"}),
		operationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "isotrace_datastore_operation_duration_seconds",
			Help:    "Duration of datastore operations",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		operationErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "isotrace_datastore_operation_errors_total",
			Help: "Total number of failed datastore operations by type",
		}, []string{"operation"}),
		sessionsSavedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "isotrace_sessions_saved_total",
			Help: "Total number of analysis sessions saved",
		}),
		summariesRecomputed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "isotrace_summaries_recomputed_total",
			Help: "Total number of session summaries recomputed",
		}),
	}

	collectors := []prometheus.Collector{
		m.operationsTotal,
		m.operationDuration,
		m.operationErrors,
		m.sessionsSavedTotal,
		m.summariesRecomputed,
	}
	for _, collector := range collectors {
		if err := registry.Register(collector); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// RecordOperation records one store operation with its outcome
func (m *DatastoreMetrics) RecordOperation(operation string, duration time.Duration, err error) {
	m.operationsTotal.WithLabelValues(operation).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		m.operationErrors.WithLabelValues(operation).Inc()
	}
}

// RecordSessionSaved increments the saved session counter
func (m *DatastoreMetrics) RecordSessionSaved() {
	m.sessionsSavedTotal.Inc()
}

// RecordSummaryRecomputed adds to the recomputed summary counter
func (m *DatastoreMetrics) RecordSummaryRecomputed(count int) {
	m.summariesRecomputed.Add(float64(count))
}
