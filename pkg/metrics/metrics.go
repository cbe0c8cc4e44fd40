// Package metrics defines the Prometheus metric collectors used across the
// ingestion pipeline and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the pipeline. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	DocumentsTotal       *prometheus.CounterVec
	ChaptersExtracted    prometheus.Counter
	ParagraphsExtracted  prometheus.Counter
	ChunksEmitted        prometheus.Counter
	BulkBatchesTotal     *prometheus.CounterVec
	BulkBatchBytes       prometheus.Histogram
	EmbeddingsTotal      prometheus.Counter
	EmbeddingCacheHits   prometheus.Counter
	EmbeddingCacheMisses prometheus.Counter
	CircuitBreakerState  *prometheus.GaugeVec

	SearchRequestsTotal   *prometheus.CounterVec
	SearchRequestDuration *prometheus.HistogramVec
}

// New creates all collectors and registers them with reg. A nil reg uses the
// process-wide default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		DocumentsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_documents_total",
				Help: "Source documents processed by stage and status (ok, failed).",
			},
			[]string{"stage", "status"},
		),
		ChaptersExtracted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ingest_chapters_extracted_total",
				Help: "Sections with at least one paragraph extracted from sources.",
			},
		),
		ParagraphsExtracted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ingest_paragraphs_extracted_total",
				Help: "Paragraph blocks extracted from sources.",
			},
		),
		ChunksEmitted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ingest_chunks_emitted_total",
				Help: "Chunk records serialized into bulk streams.",
			},
		),
		BulkBatchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_bulk_batches_total",
				Help: "Bulk batches posted to the search engine by status.",
			},
			[]string{"status"},
		),
		BulkBatchBytes: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ingest_bulk_batch_bytes",
				Help:    "Payload size of posted bulk batches in bytes.",
				Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
			},
		),
		EmbeddingsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ingest_embeddings_total",
				Help: "Embedding vectors requested from the model.",
			},
		),
		EmbeddingCacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ingest_embedding_cache_hits_total",
				Help: "Embedding lookups served from cache.",
			},
		),
		EmbeddingCacheMisses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ingest_embedding_cache_misses_total",
				Help: "Embedding lookups not found in cache.",
			},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
		SearchRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_requests_total",
				Help: "HTTP requests sent to the search engine by method and status code.",
			},
			[]string{"method", "status"},
		),
		SearchRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "search_request_duration_seconds",
				Help:    "Search engine request latency in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		),
	}

	reg.MustRegister(
		m.DocumentsTotal,
		m.ChaptersExtracted,
		m.ParagraphsExtracted,
		m.ChunksEmitted,
		m.BulkBatchesTotal,
		m.BulkBatchBytes,
		m.EmbeddingsTotal,
		m.EmbeddingCacheHits,
		m.EmbeddingCacheMisses,
		m.CircuitBreakerState,
		m.SearchRequestsTotal,
		m.SearchRequestDuration,
	)

	return m
}

// ObserveDocument records one processed document for a pipeline stage.
func (m *Metrics) ObserveDocument(stage string, ok bool, chapters, paragraphs int) {
	if m == nil {
		return
	}
	status := "ok"
	if !ok {
		status = "failed"
	}
	m.DocumentsTotal.WithLabelValues(stage, status).Inc()
	m.ChaptersExtracted.Add(float64(chapters))
	m.ParagraphsExtracted.Add(float64(paragraphs))
}

// ObserveChunks records chunk records written to a bulk stream.
func (m *Metrics) ObserveChunks(n int) {
	if m == nil {
		return
	}
	m.ChunksEmitted.Add(float64(n))
}

// ObserveBulkBatch records one posted bulk batch.
func (m *Metrics) ObserveBulkBatch(bytes int, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.BulkBatchesTotal.WithLabelValues(status).Inc()
	m.BulkBatchBytes.Observe(float64(bytes))
}

// ObserveEmbedding records one embedding lookup; cached reports whether it
// was served from the cache.
func (m *Metrics) ObserveEmbedding(cached bool) {
	if m == nil {
		return
	}
	if cached {
		m.EmbeddingCacheHits.Inc()
		return
	}
	m.EmbeddingCacheMisses.Inc()
	m.EmbeddingsTotal.Inc()
}

// SetBreakerState publishes the numeric state of a named circuit breaker.
func (m *Metrics) SetBreakerState(name string, state int) {
	if m == nil {
		return
	}
	m.CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}

// ObserveSearchRequest records one HTTP round trip to the search engine.
// status is "error" when no response was received.
func (m *Metrics) ObserveSearchRequest(method, status string, seconds float64) {
	if m == nil {
		return
	}
	m.SearchRequestsTotal.WithLabelValues(method, status).Inc()
	m.SearchRequestDuration.WithLabelValues(method).Observe(seconds)
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
