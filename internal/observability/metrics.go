package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MessageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "assistant_message_duration_seconds",
			Help:    "Time from receiving a user message to delivering its results",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"intent", "status"},
	)

	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_messages_total",
			Help: "Total number of user messages handled",
		},
		[]string{"intent", "status"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests by route and status class",
		},
		[]string{"route", "status"},
	)

	SearchBranchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "search_branch_duration_seconds",
			Help:    "Duration of each concurrent search branch",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"branch", "status"},
	)

	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total number of cache hits by store",
		},
		[]string{"store"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total number of cache misses by store",
		},
		[]string{"store"},
	)

	CacheRefreshDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cache_refresh_duration_seconds",
			Help:    "Duration of a cache tier refresh",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"tier", "status"},
	)

	CacheRefreshProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cache_refresh_progress_ratio",
			Help: "Completed fraction of the current full cache refresh",
		},
	)

	ESQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "es_query_duration_seconds",
			Help:    "Elasticsearch query duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.15, 0.2, 0.5, 1},
		},
		[]string{"index", "status"},
	)

	CHQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ch_query_duration_seconds",
			Help:    "ClickHouse query duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"query_type", "status"},
	)

	CacheSyncLag = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cache_sync_lag_seconds",
			Help: "Age of the most recently consumed cache change event",
		},
	)

	CacheSyncEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_sync_events_total",
			Help: "Total number of cache change events processed",
		},
		[]string{"operation", "status"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	SlowSearchCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slow_search_total",
			Help: "Total number of slow provider searches",
		},
		[]string{"severity", "search_type"},
	)

	DuplicateSuppressed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "duplicate_component_suppressed_total",
			Help: "Search components skipped because the same key was already in flight",
		},
	)

	ResultIndexSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "result_index_entries",
			Help: "Number of entries in the result index by list",
		},
		[]string{"list"},
	)
)
