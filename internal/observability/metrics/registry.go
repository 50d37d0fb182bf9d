// Package metrics provides centralized Prometheus metrics for the application.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics track HTTP request patterns and performance
var (
	// HTTPRequestsTotal counts total HTTP requests by method, path, and status
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration measures HTTP request duration in seconds
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestSize measures HTTP request body size in bytes
	HTTPRequestSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_size_bytes",
			Help:    "HTTP request size in bytes",
			Buckets: prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	// HTTPResponseSize measures HTTP response body size in bytes
	HTTPResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "HTTP response size in bytes",
			Buckets: prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	// ActiveConnections tracks the number of active HTTP connections
	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_active_connections",
			Help: "Number of active HTTP connections",
		},
	)
)

// Business metrics track application-specific operations
var (
	// ArticlesTotal tracks total number of articles in database
	ArticlesTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "articles_total",
			Help: "Total number of articles in the database",
		},
	)

	// SourcesTotal tracks total number of sources in database
	SourcesTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sources_total",
			Help: "Total number of sources in the database",
		},
	)

	// ArticlesFetchedTotal counts articles fetched from each source
	ArticlesFetchedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "articles_fetched_total",
			Help: "Total number of articles fetched from sources",
		},
		[]string{"source", "source_id"},
	)

	// ArticlesSummarizedTotal counts articles summarized by status
	ArticlesSummarizedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "articles_summarized_total",
			Help: "Total number of articles summarized",
		},
		[]string{"status"},
	)

	// SummarizationDuration measures time to summarize an article
	SummarizationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "summarization_duration_seconds",
			Help:    "Time taken to summarize an article",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		},
	)

	// FeedCrawlDuration measures time to crawl a feed source
	FeedCrawlDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "feed_crawl_duration_seconds",
			Help:    "Time taken to crawl a feed source",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		},
		[]string{"source_id"},
	)

	// FeedCrawlErrors counts errors during feed crawling
	FeedCrawlErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_crawl_errors_total",
			Help: "Total number of feed crawl errors",
		},
		[]string{"source_id", "error_type"},
	)

	// ContentFetchAttemptsTotal counts content fetch attempts by result
	ContentFetchAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "content_fetch_attempts_total",
			Help: "Total number of content fetch attempts",
		},
		[]string{"result"}, // result: success, failure, skipped
	)

	// ContentFetchDuration measures time to fetch article content
	ContentFetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "content_fetch_duration_seconds",
			Help:    "Time taken to fetch article content",
			Buckets: []float64{0.1, 0.2, 0.4, 0.8, 1.6, 3.2, 6.4, 12.8},
		},
	)

	// ContentFetchSize measures fetched content size in bytes
	ContentFetchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "content_fetch_size_bytes",
			Help: "Fetched article content size in bytes",
			Buckets: []float64{
				100, 200, 400, 800, 1600, 3200, 6400, 12800,
				25600, 51200, 102400, 204800, 409600, 819200,
				1638400, 3276800, 6553600, 10485760, // up to 10MB
			},
		},
	)
)

// Database metrics track database performance
var (
	// DBQueryDuration measures database query duration
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 10),
		},
		[]string{"operation"},
	)

	// DBConnectionsActive tracks active database connections
	DBConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_active",
			Help: "Number of active database connections",
		},
	)

	// DBConnectionsIdle tracks idle database connections
	DBConnectionsIdle = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_idle",
			Help: "Number of idle database connections",
		},
	)
)

// Pipeline metrics track the ingestion-to-story pipeline's core stages.
var (
	// FeedPolledTotal counts feed poll attempts by outcome.
	FeedPolledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_polled_total",
			Help: "Total number of feed polls by outcome",
		},
		[]string{"feed_id", "outcome"}, // outcome: ok, not_modified, error
	)

	// ArticlesDedupedTotal counts raw articles dropped by the dedup barrier.
	ArticlesDedupedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "articles_deduped_total",
			Help: "Total number of raw articles dropped as duplicates",
		},
		[]string{"method"}, // method: exact_hash, simhash
	)

	// ArticlesQuarantinedTotal counts articles rejected by validation/policy.
	ArticlesQuarantinedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "articles_quarantined_total",
			Help: "Total number of raw articles quarantined or policy-dropped",
		},
		[]string{"reason"},
	)

	// ClusterAssignmentsTotal counts cluster assignment outcomes.
	ClusterAssignmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cluster_assignments_total",
			Help: "Total number of cluster assignment decisions",
		},
		[]string{"outcome"}, // outcome: fingerprint, fuzzy_title, entity_overlap, new_cluster
	)

	// ClusterCandidateCount measures the candidate set size evaluated per assignment.
	ClusterCandidateCount = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cluster_candidate_count",
			Help:    "Number of candidate clusters evaluated per assignment",
			Buckets: prometheus.LinearBuckets(0, 15, 11), // 0..150
		},
	)

	// StatusTransitionsTotal counts status machine transitions.
	StatusTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "status_transitions_total",
			Help: "Total number of story status transitions",
		},
		[]string{"from", "to"},
	)

	// NotificationsSentTotal counts breaking-news broadcasts dispatched.
	NotificationsSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_sent_total",
			Help: "Total number of breaking-news broadcasts dispatched",
		},
		[]string{"channel"},
	)

	// SummaryGenerationTotal counts summarizer outcomes.
	SummaryGenerationTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "summary_generation_total",
			Help: "Total number of summary generation attempts",
		},
		[]string{"path", "outcome"}, // path: realtime, batch; outcome: ok, refusal, error
	)

	// SummaryCostUSDTotal accumulates estimated spend on summary generation calls.
	SummaryCostUSDTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "summary_cost_usd_total",
			Help: "Estimated cumulative USD cost of summary generation",
		},
		[]string{"path", "model_id"},
	)

	// SummaryTokensTotal counts tokens consumed by summary generation calls.
	SummaryTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "summary_tokens_total",
			Help: "Total tokens consumed generating summaries",
		},
		[]string{"path", "kind"}, // kind: prompt, completion, cached
	)

	// ChangeStreamLag measures the age of the oldest unprocessed change per consumer.
	ChangeStreamLag = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "change_stream_lag_seconds",
			Help: "Age of the oldest unprocessed change-stream entry",
		},
		[]string{"consumer"},
	)

	// ConflictRetriesTotal counts optimistic-concurrency retries on cluster writes.
	ConflictRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conflict_retries_total",
			Help: "Total number of optimistic-concurrency retries",
		},
		[]string{"container"},
	)
)

// RecordHTTPRequest records an HTTP request with its metadata
func RecordHTTPRequest(method, path, status string, duration time.Duration, requestSize, responseSize int) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())

	if requestSize > 0 {
		HTTPRequestSize.WithLabelValues(method, path).Observe(float64(requestSize))
	}
	if responseSize > 0 {
		HTTPResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
	}
}

// RecordOperationDuration records the duration of a named operation
func RecordOperationDuration(operation string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}
