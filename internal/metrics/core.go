package metrics

import "github.com/prometheus/client_golang/prometheus"

// Core Prometheus metrics: search pipeline, tiered cache, circuit breaker,
// and blob fetch counters.
var (
	SearchPhaseDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pricedex",
			Name:      "search_phase_duration_seconds",
			Help:      "Vector search phase duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"phase"}, // "query" / "fetch" / "score" / "rank"
	)

	SearchCandidatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pricedex",
			Name:      "search_candidates_total",
			Help:      "Candidates flowing through the search pipeline",
		},
		[]string{"stage"}, // "queried" / "scored" / "missing_embedding" / "returned"
	)

	CacheRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pricedex",
			Name:      "cache_requests_total",
			Help:      "Tiered cache lookups by outcome",
		},
		[]string{"result"}, // "l1_hit" / "l2_hit" / "miss"
	)

	CacheEvictionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pricedex",
			Name:      "cache_evictions_total",
			Help:      "L1 cache evictions",
		},
	)

	CacheL2WritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pricedex",
			Name:      "cache_l2_writes_total",
			Help:      "Fire-and-forget L2 write completions",
		},
		[]string{"status"}, // "ok" / "error" / "rejected"
	)

	BreakerTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pricedex",
			Name:      "breaker_transitions_total",
			Help:      "Circuit breaker state transitions",
		},
		[]string{"breaker", "from", "to"},
	)

	BlobFetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pricedex",
			Name:      "blob_fetches_total",
			Help:      "Embedding blob fetch outcomes",
		},
		[]string{"status"}, // "ok" / "failed"
	)

	BlobFetchBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pricedex",
			Name:      "blob_fetch_bytes_total",
			Help:      "Bytes transferred fetching embedding blobs",
		},
	)
)

var coreMetricsRegistered bool

// RegisterCoreMetrics registers the metrics above. Must be called once from main.
func RegisterCoreMetrics() {
	if coreMetricsRegistered {
		return
	}
	prometheus.MustRegister(SearchPhaseDuration)
	prometheus.MustRegister(SearchCandidatesTotal)
	prometheus.MustRegister(CacheRequestsTotal)
	prometheus.MustRegister(CacheEvictionsTotal)
	prometheus.MustRegister(CacheL2WritesTotal)
	prometheus.MustRegister(BreakerTransitionsTotal)
	prometheus.MustRegister(BlobFetchesTotal)
	prometheus.MustRegister(BlobFetchBytes)
	coreMetricsRegistered = true
}
