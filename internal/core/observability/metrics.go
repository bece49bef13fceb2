package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"method", "route", "status"},
	)

	upstreamLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_latency_seconds",
			Help:    "Latency of upstream calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		[]string{"upstream", "outcome"},
	)

	adapterResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_adapter_results_total",
			Help: "Feed adapter calls by outcome.",
		},
		[]string{"adapter", "outcome"},
	)

	cacheResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_results_total",
			Help: "Cache results by layer and outcome.",
		},
		[]string{"layer", "outcome"},
	)

	cacheOpTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_op_total",
			Help: "External cache operations by op and result.",
		},
		[]string{"op", "result"},
	)

	cacheOpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redis_operation_duration_seconds",
			Help:    "Duration of external cache operations.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"op"},
	)

	geocodeLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geocode_lookups_total",
			Help: "Geocoding backfill lookups by outcome.",
		},
		[]string{"outcome"},
	)

	hotAreas = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hazard_hot_areas",
			Help: "Number of tracked query areas.",
		},
		[]string{"tier"},
	)

	invalidations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_invalidations_total",
			Help: "Cache flush events by layer and outcome.",
		},
		[]string{"layer", "outcome"},
	)

	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_build_info",
			Help: "Build information for the binary.",
		},
		[]string{"version"},
	)
)

func init() {
	prometheus.MustRegister(Collectors()...)
}

// Collectors returns every collector owned by this package so that a
// dedicated registry can expose them too.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		httpRequestsTotal,
		httpRequestDurationSeconds,
		upstreamLatencySeconds,
		adapterResults,
		cacheResults,
		cacheOpTotal,
		cacheOpDuration,
		geocodeLookups,
		hotAreas,
		invalidations,
		buildInfo,
	}
}

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

func ObserveUpstreamLatency(upstream, outcome string, durationSeconds float64) {
	upstreamLatencySeconds.WithLabelValues(upstream, outcome).Observe(durationSeconds)
}

func ObserveAdapter(adapter, outcome string) {
	adapterResults.WithLabelValues(adapter, outcome).Inc()
}

func IncCacheHit(layer string) {
	cacheResults.WithLabelValues(layer, "hit").Inc()
}

func IncCacheMiss(layer string) {
	cacheResults.WithLabelValues(layer, "miss").Inc()
}

func ObserveCacheOp(op string, err error, durationSeconds float64) {
	res := "ok"
	if err != nil {
		res = "error"
	}
	cacheOpTotal.WithLabelValues(op, res).Inc()
	cacheOpDuration.WithLabelValues(op).Observe(durationSeconds)
}

func ObserveGeocode(outcome string) {
	geocodeLookups.WithLabelValues(outcome).Inc()
}

func SetHotAreas(tier string, n int) {
	hotAreas.WithLabelValues(tier).Set(float64(n))
}

func ExposeBuildInfo(version string) {
	if version == "" {
		version = "dev"
	}
	buildInfo.WithLabelValues(version).Set(1)
}

// ObserveInvalidation counts one flush event; outcome is applied, stale or
// an error kind such as decode.
func ObserveInvalidation(layer, outcome string) {
	invalidations.WithLabelValues(layer, outcome).Inc()
}
