package observability

import (
	"errors"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var variantLabel atomic.Value

func init() {
	variantLabel.Store("basic")
}

func SetVariant(s string) {
	if s == "" {
		s = "basic"
	}
	variantLabel.Store(s)
}

func getVariant() string {
	if v := variantLabel.Load(); v != nil {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return "basic"
}

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status", "variant"},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"method", "route", "status", "variant"},
	)

	renderDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "render_duration_seconds",
			Help:    "Duration of one render pipeline run.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		},
		[]string{"variant", "outcome"},
	)

	tradeAreaBuilds = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trade_area_builds_total",
			Help: "Trade areas built by policy and outcome.",
		},
		[]string{"policy", "outcome"},
	)

	filterMatches = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "spatial_filter_matches",
			Help:    "Records returned by the trade-area filter.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14),
		},
		[]string{"dataset"},
	)

	datasetCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dataset_cache_total",
			Help: "Dataset cache lookups by outcome.",
		},
		[]string{"outcome"},
	)

	datasetLoadSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dataset_load_duration_seconds",
			Help:    "Time spent reading a dataset file.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"format", "result"},
	)

	cacheOpSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "render_cache_op_duration_seconds",
			Help:    "Latency of render cache operations.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"op", "result"},
	)

	cacheResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "render_cache_results_total",
			Help: "Render cache results by outcome.",
		},
		[]string{"outcome", "variant"},
	)

	invalidations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dataset_invalidations_total",
			Help: "Dataset update events applied, by op and result.",
		},
		[]string{"op", "result"},
	)

	invalidatedRenders = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "invalidated_renders_total",
			Help: "Cached renders deleted by dataset update events.",
		},
	)

	invalidationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dataset_invalidation_duration_seconds",
			Help:    "Time to apply one dataset update event.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
	)

	hotKeys = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hotness_tracked_keys",
			Help: "Trade-area center cells currently tracked for cache admission.",
		},
	)

	kafkaConsumerErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_consumer_errors_total",
			Help: "Kafka consumer errors by kind.",
		},
		[]string{"kind"},
	)
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{
		httpRequestsTotal, httpRequestDurationSeconds, renderDurationSeconds,
		tradeAreaBuilds, filterMatches, datasetCache, datasetLoadSeconds,
		cacheOpSeconds, cacheResults,
		invalidations, invalidatedRenders, invalidationSeconds, kafkaConsumerErrors,
		hotKeys,
	}
}

// Init registers the pipeline metrics with r. Registering twice with the
// same registry is a no-op.
func Init(r prometheus.Registerer) error {
	for _, c := range collectors() {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	v := getVariant()
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st, v).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st, v).Observe(durationSeconds)
}

func ObserveRender(err error, durationSeconds float64) {
	renderDurationSeconds.WithLabelValues(getVariant(), outcome(err)).Observe(durationSeconds)
}

func IncTradeArea(policy string, err error) {
	tradeAreaBuilds.WithLabelValues(policy, outcome(err)).Inc()
}

func ObserveFilterMatches(dataset string, n int) {
	filterMatches.WithLabelValues(dataset).Observe(float64(n))
}

func IncDatasetCache(outcome string) {
	datasetCache.WithLabelValues(outcome).Inc()
}

func ObserveDatasetLoad(format string, err error, durationSeconds float64) {
	datasetLoadSeconds.WithLabelValues(format, outcome(err)).Observe(durationSeconds)
}

func ObserveCacheOp(op string, err error, durationSeconds float64) {
	cacheOpSeconds.WithLabelValues(op, outcome(err)).Observe(durationSeconds)
}

func IncCacheHit() {
	cacheResults.WithLabelValues("hit", getVariant()).Inc()
}

func IncCacheMiss() {
	cacheResults.WithLabelValues("miss", getVariant()).Inc()
}

// IncCacheError counts renders served without the cache after a store failure.
func IncCacheError() {
	cacheResults.WithLabelValues("error", getVariant()).Inc()
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func ObserveInvalidation(op string, renders int, took time.Duration, err error) {
	invalidations.WithLabelValues(op, outcome(err)).Inc()
	if renders > 0 {
		invalidatedRenders.Add(float64(renders))
	}
	invalidationSeconds.Observe(took.Seconds())
}

func IncKafkaConsumerError(kind string) {
	kafkaConsumerErrors.WithLabelValues(kind).Inc()
}

func SetHotKeys(n int) {
	hotKeys.Set(float64(n))
}
