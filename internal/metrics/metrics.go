// Package metrics holds the prometheus collectors for ingestion, change
// detection and the query pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "kiln"

// Metrics groups kiln collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	notesIngested  *prometheus.CounterVec
	blocksTotal    prometheus.Counter
	blocksChanged  prometheus.Counter
	diffDuration   prometheus.Histogram
	queryDuration  *prometheus.HistogramVec
	queryFailures  *prometheus.CounterVec
	queriesRunning prometheus.Gauge
}

// New creates the collectors and registers them on a fresh registry together
// with the Go and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		notesIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "notes_total",
			Help:      "Notes processed by ingestion, by outcome.",
		}, []string{"outcome"}),
		blocksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "blocks_total",
			Help:      "Blocks seen by ingestion.",
		}),
		blocksChanged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "blocks_changed_total",
			Help:      "Blocks reported changed by the change tree.",
		}),
		diffDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "changes",
			Name:      "diff_duration_seconds",
			Help:      "Time spent building and diffing change trees.",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 4, 8),
		}),
		queryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "phase_duration_seconds",
			Help:      "Query pipeline phase duration.",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 4, 8),
		}, []string{"phase"}),
		queryFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "failures_total",
			Help:      "Query pipeline failures by phase.",
		}, []string{"phase"}),
		queriesRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "in_flight",
			Help:      "Queries currently executing.",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.notesIngested,
		m.blocksTotal,
		m.blocksChanged,
		m.diffDuration,
		m.queryDuration,
		m.queryFailures,
		m.queriesRunning,
	)
	return m
}

// Registry is the gatherer served on /metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// NoteIngested counts one note. outcome is "unchanged", "updated", "created",
// "deleted" or "error".
func (m *Metrics) NoteIngested(outcome string, total, changed int) {
	if m == nil {
		return
	}
	m.notesIngested.WithLabelValues(outcome).Inc()
	m.blocksTotal.Add(float64(total))
	m.blocksChanged.Add(float64(changed))
}

func (m *Metrics) ObserveDiff(d time.Duration) {
	if m == nil {
		return
	}
	m.diffDuration.Observe(d.Seconds())
}

// ObservePhase records the duration of a pipeline phase and counts it as a
// failure when failed is set.
func (m *Metrics) ObservePhase(phase string, d time.Duration, failed bool) {
	if m == nil {
		return
	}
	m.queryDuration.WithLabelValues(phase).Observe(d.Seconds())
	if failed {
		m.queryFailures.WithLabelValues(phase).Inc()
	}
}

// Track marks a query in flight until the returned func is called.
func (m *Metrics) Track() func() {
	if m == nil {
		return func() {}
	}
	m.queriesRunning.Inc()
	return m.queriesRunning.Dec
}
