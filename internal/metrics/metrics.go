// Package metrics holds the Prometheus collectors for ingestion, search and deletion.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is nil-safe: every method on a nil *Metrics is a no-op.
type Metrics struct {
	Registry *prometheus.Registry

	IngestResults  *prometheus.CounterVec
	IngestDuration prometheus.Histogram
	IngestChunks   prometheus.Histogram
	Searches       *prometheus.CounterVec
	SearchDuration prometheus.Histogram
	Deletions      *prometheus.CounterVec
	StuckPending   prometheus.Gauge
	SweepRemovals  *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		IngestResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docrag",
			Name:      "ingest_results_total",
			Help:      "Ingestion attempts by result.",
		}, []string{"result"}),
		IngestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "docrag",
			Name:      "ingest_duration_seconds",
			Help:      "Wall time of a successful ingestion.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		IngestChunks: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "docrag",
			Name:      "ingest_chunks",
			Help:      "Chunks produced per ingested document.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		Searches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docrag",
			Name:      "searches_total",
			Help:      "Searches by path taken.",
		}, []string{"path"}),
		SearchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "docrag",
			Name:      "search_duration_seconds",
			Help:      "Latency of vector searches.",
			Buckets:   prometheus.DefBuckets,
		}),
		Deletions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docrag",
			Name:      "deletion_outcomes_total",
			Help:      "Per-document outcomes of scope unlinking.",
		}, []string{"outcome"}),
		StuckPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "docrag",
			Name:      "stuck_pending_documents",
			Help:      "Pending documents with no chunks older than the alert threshold.",
		}),
		SweepRemovals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docrag",
			Name:      "sweep_removals_total",
			Help:      "Objects removed by the orphan sweep.",
		}, []string{"kind"}),
	}
	m.Registry.MustRegister(
		m.IngestResults, m.IngestDuration, m.IngestChunks,
		m.Searches, m.SearchDuration,
		m.Deletions, m.StuckPending, m.SweepRemovals,
		prometheus.NewGoCollector(),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

func (m *Metrics) IngestResult(result string) {
	if m != nil {
		m.IngestResults.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) IngestDone(start time.Time, chunks int) {
	if m != nil {
		m.IngestDuration.Observe(time.Since(start).Seconds())
		m.IngestChunks.Observe(float64(chunks))
	}
}

func (m *Metrics) Search(path string, start time.Time) {
	if m == nil {
		return
	}
	m.Searches.WithLabelValues(path).Inc()
	if path == "vector" {
		m.SearchDuration.Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) Deletion(outcome string) {
	if m != nil {
		m.Deletions.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) SetStuckPending(n int) {
	if m != nil {
		m.StuckPending.Set(float64(n))
	}
}

func (m *Metrics) SweepRemoved(kind string, n int) {
	if m != nil && n > 0 {
		m.SweepRemovals.WithLabelValues(kind).Add(float64(n))
	}
}
