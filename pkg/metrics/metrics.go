// Package metrics defines the Prometheus metric collectors used by the
// engine and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the engine. A nil *Metrics is
// valid everywhere it is accepted and records nothing.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	PostingsAddedTotal  prometheus.Counter
	RecordsStoredTotal  prometheus.Counter
	BlobBytesTotal      *prometheus.CounterVec
	FlushesTotal        *prometheus.CounterVec
	FlushDuration       *prometheus.HistogramVec
	LexiconTerms        prometheus.Gauge
	QueriesTotal        *prometheus.CounterVec
	QueryLatency        *prometheus.HistogramVec
	QueryResultsCount   *prometheus.HistogramVec
	PostingCacheHits    prometheus.Counter
	PostingCacheMisses  prometheus.Counter
	ResultCacheHits     prometheus.Counter
	ResultCacheMisses   prometheus.Counter
}

// New creates all collectors and registers them with reg. Passing
// prometheus.DefaultRegisterer exposes them through Handler.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, route, and status.",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "route"},
		),
		PostingsAddedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "index_postings_added_total",
				Help: "Total postings buffered into the inverted index.",
			},
		),
		RecordsStoredTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "blob_records_stored_total",
				Help: "Total records written to the blob store.",
			},
		),
		BlobBytesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blob_bytes_total",
				Help: "Record bytes before and after compression.",
			},
			[]string{"stage"},
		),
		FlushesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flushes_total",
				Help: "Total flush operations by component and status.",
			},
			[]string{"component", "status"},
		),
		FlushDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "flush_duration_seconds",
				Help:    "Flush latency in seconds by component.",
				Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
			},
			[]string{"component"},
		),
		LexiconTerms: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "lexicon_terms",
				Help: "Number of distinct terms in the lexicon.",
			},
		),
		QueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "queries_total",
				Help: "Total queries by mode (and, or, triple) and result type (hit, empty, error).",
			},
			[]string{"mode", "result_type"},
		),
		QueryLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "query_latency_seconds",
				Help:    "Query latency in seconds.",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"mode"},
		),
		QueryResultsCount: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "query_results_count",
				Help:    "Number of ids returned per query.",
				Buckets: []float64{0, 1, 10, 100, 1000, 10000, 100000},
			},
			[]string{"mode"},
		),
		PostingCacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "posting_cache_hits_total",
				Help: "Posting lists served from the in-process cache.",
			},
		),
		PostingCacheMisses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "posting_cache_misses_total",
				Help: "Posting lists read from the barrel store.",
			},
		),
		ResultCacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "result_cache_hits_total",
				Help: "Query results served from redis.",
			},
		),
		ResultCacheMisses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "result_cache_misses_total",
				Help: "Query results computed because redis had no entry.",
			},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.PostingsAddedTotal,
		m.RecordsStoredTotal,
		m.BlobBytesTotal,
		m.FlushesTotal,
		m.FlushDuration,
		m.LexiconTerms,
		m.QueriesTotal,
		m.QueryLatency,
		m.QueryResultsCount,
		m.PostingCacheHits,
		m.PostingCacheMisses,
		m.ResultCacheHits,
		m.ResultCacheMisses,
	)

	return m
}

// ObserveFlush records one flush of component. status is "ok" or "error".
func (m *Metrics) ObserveFlush(component, status string, seconds float64) {
	if m == nil {
		return
	}
	m.FlushesTotal.WithLabelValues(component, status).Inc()
	m.FlushDuration.WithLabelValues(component).Observe(seconds)
}

// ObserveQuery records one executed query.
func (m *Metrics) ObserveQuery(mode, resultType string, seconds float64, results int) {
	if m == nil {
		return
	}
	m.QueriesTotal.WithLabelValues(mode, resultType).Inc()
	m.QueryLatency.WithLabelValues(mode).Observe(seconds)
	m.QueryResultsCount.WithLabelValues(mode).Observe(float64(results))
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
