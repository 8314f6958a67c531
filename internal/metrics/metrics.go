// internal/metrics/metrics.go
package metrics

import (
	"time"
)

// RecordRequest counts one upstream attempt and its outcome.
func (c *Collector) RecordRequest(endpoint, class string, success bool) {
	if c == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	requestCounter.WithLabelValues(endpoint, class, outcome).Inc()
}

// RecordRPCLatency records how long one upstream request took.
func (c *Collector) RecordRPCLatency(method, endpoint string, duration time.Duration) {
	if c == nil {
		return
	}
	rpcLatency.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordCacheLookup counts a cache hit or miss.
func (c *Collector) RecordCacheLookup(hit bool) {
	if c == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookups.WithLabelValues(result).Inc()
}

// RecordThrottleTimeout counts a request that starved in the admission queue.
func (c *Collector) RecordThrottleTimeout() {
	if c == nil {
		return
	}
	throttleTimeouts.Inc()
}

// UpdateQueueDepth publishes the current admission queue length.
func (c *Collector) UpdateQueueDepth(depth int) {
	if c == nil {
		return
	}
	queueDepth.Set(float64(depth))
}

// UpdateCooldown flags whether the endpoint is currently benched.
func (c *Collector) UpdateCooldown(endpoint string, inCooldown bool) {
	if c == nil {
		return
	}
	v := 0.0
	if inCooldown {
		v = 1.0
	}
	endpointCooldown.WithLabelValues(endpoint).Set(v)
}
