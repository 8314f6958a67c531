// internal/metrics/collector.go
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricType represents a metric kind tracked by the collector.
type MetricType string

const (
	RequestCounterType   MetricType = "request_counter"
	RPCLatencyType       MetricType = "rpc_latency"
	CacheLookupType      MetricType = "cache_lookups"
	ThrottleTimeoutType  MetricType = "throttle_timeouts"
	QueueDepthType       MetricType = "queue_depth"
	EndpointCooldownType MetricType = "endpoint_cooldown"
)

var registerOnce sync.Once

// Collector owns the Prometheus metric set. A nil collector is valid and
// records nothing, so instrumentation points never need guarding.
type Collector struct {
	metrics sync.Map
}

// NewCollector builds the collector and registers its metrics.
func NewCollector() *Collector {
	c := &Collector{}
	c.initializeMetrics()
	return c
}

func (c *Collector) initializeMetrics() {
	metricsMap := map[MetricType]prometheus.Collector{
		RequestCounterType:   requestCounter,
		RPCLatencyType:       rpcLatency,
		CacheLookupType:      cacheLookups,
		ThrottleTimeoutType:  throttleTimeouts,
		QueueDepthType:       queueDepth,
		EndpointCooldownType: endpointCooldown,
	}

	for metricType, metric := range metricsMap {
		c.metrics.Store(metricType, metric)
	}

	registerOnce.Do(func() {
		for _, metric := range metricsMap {
			prometheus.MustRegister(metric)
		}
	})
}

// Reset clears every metric, useful in tests.
func (c *Collector) Reset() {
	c.metrics.Range(func(_, value interface{}) bool {
		switch m := value.(type) {
		case *prometheus.CounterVec:
			m.Reset()
		case *prometheus.GaugeVec:
			m.Reset()
		case *prometheus.HistogramVec:
			m.Reset()
		}
		return true
	})
}

var (
	requestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rpcmux",
			Name:      "requests_total",
			Help:      "Total upstream requests by endpoint, operation class and outcome",
		},
		[]string{"endpoint", "class", "outcome"},
	)

	rpcLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rpcmux",
			Name:      "rpc_latency_seconds",
			Help:      "RPC request latency in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 10),
		},
		[]string{"method", "endpoint"},
	)

	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rpcmux",
			Name:      "cache_lookups_total",
			Help:      "Cache lookups by result",
		},
		[]string{"result"},
	)

	throttleTimeouts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "rpcmux",
			Name:      "throttle_timeouts_total",
			Help:      "Requests rejected after waiting too long in the admission queue",
		},
	)

	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "rpcmux",
			Name:      "throttle_queue_depth",
			Help:      "Requests currently waiting for admission",
		},
	)

	endpointCooldown = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "rpcmux",
			Name:      "endpoint_cooldown",
			Help:      "1 while the endpoint is excluded from selection",
		},
		[]string{"endpoint"},
	)
)
