package tier

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// getTimerBuckets prepends a sub-millisecond bucket to the default
// Prometheus buckets, matching [0.001] + Histogram.DEFAULT_BUCKETS in
// the original _internal/metrics.py.
var getTimerBuckets = append([]float64{0.001}, prometheus.DefBuckets...)

var sizeHistogramBuckets = []float64{100, 1000, 10_000, 100_000, 1_000_000, 10_000_000}

// Metrics centralizes the Prometheus collectors shared by Controller and
// RemoteTier, mirroring the classmethod-initialized GCacheMetrics in
// _internal/metrics.py. Exactly one Metrics is constructed per Engine
// (see engine.New), parameterized by the configured metrics prefix.
type Metrics struct {
	Disabled        *prometheus.CounterVec
	Miss            *prometheus.CounterVec
	Request         *prometheus.CounterVec
	Error           *prometheus.CounterVec
	Invalidation    *prometheus.CounterVec
	GetTimer        *prometheus.HistogramVec
	FallbackTimer   *prometheus.HistogramVec
	SerializeTimer  *prometheus.HistogramVec
	SizeHistogram   *prometheus.HistogramVec
}

// NewMetrics registers the gcache metric family under reg (pass
// prometheus.DefaultRegisterer for process-wide metrics, or a dedicated
// *prometheus.Registry in tests to avoid collisions across test cases).
func NewMetrics(reg prometheus.Registerer, prefix string) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Disabled: factory.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "gcache_disabled_counter",
			Help: "Cache disabled counter",
		}, []string{"use_case", "key_type", "layer", "reason"}),
		Miss: factory.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "gcache_miss_counter",
			Help: "Cache miss counter",
		}, []string{"use_case", "key_type", "layer"}),
		Request: factory.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "gcache_request_counter",
			Help: "Cache request counter",
		}, []string{"use_case", "key_type", "layer"}),
		Error: factory.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "gcache_error_counter",
			Help: "Cache error counter",
		}, []string{"use_case", "key_type", "layer", "error", "in_fallback"}),
		Invalidation: factory.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "gcache_invalidation_counter",
			Help: "Cache invalidation counter",
		}, []string{"key_type", "layer"}),
		GetTimer: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    prefix + "gcache_get_timer",
			Help:    "Cache get timer",
			Buckets: getTimerBuckets,
		}, []string{"use_case", "key_type", "layer"}),
		FallbackTimer: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    prefix + "gcache_fallback_timer",
			Help:    "Fallback timer",
			Buckets: getTimerBuckets,
		}, []string{"use_case", "key_type", "layer"}),
		SerializeTimer: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    prefix + "gcache_serialization_timer",
			Help:    "Cache serialization timer",
			Buckets: getTimerBuckets,
		}, []string{"use_case", "key_type", "layer", "operation"}),
		SizeHistogram: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    prefix + "gcache_size_histogram",
			Help:    "Cache size histogram",
			Buckets: sizeHistogramBuckets,
		}, []string{"use_case", "key_type", "layer"}),
	}
}
