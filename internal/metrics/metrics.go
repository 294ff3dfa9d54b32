package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the service.
// promauto registers every metric with the default registry, which is what
// promhttp.Handler serves on /metrics.

var (
	// ==================== HTTP METRICS ====================

	// HTTPRequestDuration tracks the duration of HTTP requests
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint", "status"},
	)

	// HTTPRequestsTotal counts total HTTP requests
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	// HTTPRequestsInFlight tracks currently processing requests
	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	// ==================== STORE METRICS ====================

	// StoreOperationDuration tracks key-value store latency per node role
	StoreOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shortly_store_operation_duration_seconds",
			Help:    "Duration of key-value store operations in seconds",
			Buckets: []float64{.0001, .0005, .001, .0025, .005, .01, .025, .05, .1, .25},
		},
		[]string{"operation", "role"}, // get/set/incr, write/read
	)

	// StoreErrorsTotal counts failed store calls
	StoreErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shortly_store_errors_total",
			Help: "Total number of failed key-value store operations",
		},
		[]string{"operation", "role"},
	)

	// ReplicaPicksTotal counts how often each read node was chosen
	ReplicaPicksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shortly_replica_picks_total",
			Help: "Total number of times a read replica was selected",
		},
		[]string{"node"},
	)

	// ==================== RATE LIMITING METRICS ====================

	// RateLimitedRequestsTotal counts rate-limited requests
	RateLimitedRequestsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rate_limited_requests_total",
			Help: "Total number of rate-limited requests",
		},
	)

	// RateLimitAllowedRequestsTotal counts allowed requests
	RateLimitAllowedRequestsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rate_limit_allowed_requests_total",
			Help: "Total number of requests allowed by rate limiter",
		},
	)

	// ==================== BUSINESS METRICS ====================

	// LinksCreatedTotal counts newly minted identifiers
	LinksCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "shortly_links_created_total",
			Help: "Total number of short identifiers minted",
		},
	)

	// InsertDedupHitsTotal counts inserts answered from the reverse index
	InsertDedupHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "shortly_insert_dedup_hits_total",
			Help: "Total number of inserts that reused an existing identifier",
		},
	)

	// RedirectsTotal counts successful resolutions
	RedirectsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "shortly_redirects_total",
			Help: "Total number of successful resolutions",
		},
	)

	// ClicksRecordedTotal counts click counter increments
	ClicksRecordedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "shortly_clicks_recorded_total",
			Help: "Total number of clicks recorded",
		},
	)

	// NotFoundTotal counts lookups of unknown identifiers
	NotFoundTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "shortly_not_found_total",
			Help: "Total number of lookups for identifiers with no target",
		},
	)
)

// RecordLinkCreated increments the minted identifier counter
func RecordLinkCreated() {
	LinksCreatedTotal.Inc()
}

// RecordDedupHit increments the reverse index hit counter
func RecordDedupHit() {
	InsertDedupHitsTotal.Inc()
}

// RecordRedirect increments redirect counter
func RecordRedirect() {
	RedirectsTotal.Inc()
}

// RecordClickRecorded increments click recording counter
func RecordClickRecorded() {
	ClicksRecordedTotal.Inc()
}

// RecordNotFound increments the unknown identifier counter
func RecordNotFound() {
	NotFoundTotal.Inc()
}

// RecordReplicaPick increments the pick counter for a read node
func RecordReplicaPick(node string) {
	ReplicaPicksTotal.WithLabelValues(node).Inc()
}

// RecordRateLimited increments rate-limited requests counter
func RecordRateLimited() {
	RateLimitedRequestsTotal.Inc()
}

// RecordRateLimitAllowed increments allowed requests counter
func RecordRateLimitAllowed() {
	RateLimitAllowedRequestsTotal.Inc()
}
