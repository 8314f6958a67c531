// internal/endpoint/health.go
package endpoint

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultProbeInterval = 30 * time.Second
	DefaultProbeTimeout  = 5 * time.Second

	// maxParallelProbes bounds concurrent probe requests so a large pool
	// does not burst against every provider at once.
	maxParallelProbes = 4
)

// ProbeFunc performs one health probe against the endpoint, typically a slot
// read on the endpoint's own client. A nil error means the probe passed.
type ProbeFunc func(ctx context.Context, ep *Endpoint) error

// ProbeFailureHook is called after each failed probe, on top of the pool
// bookkeeping. Implementations must not block.
type ProbeFailureHook func(endpoint string, err error)

// HealthChecker periodically probes every endpoint in the pool. Probe
// traffic is pinned to the endpoint being checked and records outcomes
// through the same bookkeeping as real requests, so passing probes speed up
// recovery and failing ones extend cooldowns.
type HealthChecker struct {
	pool      *Pool
	probe     ProbeFunc
	interval  time.Duration
	timeout   time.Duration
	onFailure ProbeFailureHook
	logger    *zap.Logger
}

// NewHealthChecker wires a checker to the pool. Zero durations fall back to
// the package defaults.
func NewHealthChecker(pool *Pool, probe ProbeFunc, interval, timeout time.Duration, logger *zap.Logger) *HealthChecker {
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	return &HealthChecker{
		pool:     pool,
		probe:    probe,
		interval: interval,
		timeout:  timeout,
		logger:   logger.Named("health"),
	}
}

// OnFailure registers the probe-failure hook. Must be called before Run.
func (h *HealthChecker) OnFailure(hook ProbeFailureHook) {
	h.onFailure = hook
}

// Run probes all endpoints on a fixed interval until ctx is canceled. The
// first sweep starts after one full interval.
func (h *HealthChecker) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.logger.Info("Health checker started",
		zap.Duration("interval", h.interval),
		zap.Duration("timeout", h.timeout),
		zap.Int("endpoints", len(h.pool.Endpoints())))

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("Health checker stopped")
			return
		case <-ticker.C:
			h.CheckAll(ctx)
		}
	}
}

// CheckAll probes every endpoint once, a bounded number in parallel.
func (h *HealthChecker) CheckAll(ctx context.Context) {
	g := new(errgroup.Group)
	g.SetLimit(maxParallelProbes)

	for _, ep := range h.pool.Endpoints() {
		ep := ep
		g.Go(func() error {
			h.checkOne(ctx, ep)
			return nil
		})
	}
	_ = g.Wait()
}

func (h *HealthChecker) checkOne(ctx context.Context, ep *Endpoint) {
	probeCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	start := time.Now()
	err := h.probe(probeCtx, ep)
	elapsed := time.Since(start)

	if err != nil {
		h.logger.Warn("Health probe failed",
			zap.String("endpoint", ep.Name()),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		h.pool.RecordFailure(ep)
		if h.onFailure != nil {
			h.onFailure(ep.Name(), err)
		}
		return
	}

	h.logger.Debug("Health probe passed",
		zap.String("endpoint", ep.Name()),
		zap.Duration("elapsed", elapsed))
	h.pool.RecordProbeSuccess(ep)
}
