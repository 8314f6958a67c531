// internal/dispatch/dispatcher.go
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/rovshanmuradov/solana-rpcmux/internal/cache"
	"github.com/rovshanmuradov/solana-rpcmux/internal/endpoint"
	"github.com/rovshanmuradov/solana-rpcmux/internal/metrics"
	"github.com/rovshanmuradov/solana-rpcmux/internal/opclass"
	"github.com/rovshanmuradov/solana-rpcmux/internal/throttle"
)

const (
	DefaultExecTimeout = 15 * time.Second
	DefaultRetryDelay  = 200 * time.Millisecond
)

// Config tunes per-attempt behavior of the dispatcher.
type Config struct {
	ExecTimeout time.Duration // upper bound for one upstream attempt
	RetryDelay  time.Duration // constant pause between failover attempts
}

func (c Config) withDefaults() Config {
	if c.ExecTimeout <= 0 {
		c.ExecTimeout = DefaultExecTimeout
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	return c
}

// ExecFunc performs the actual RPC call against the chosen endpoint and
// returns a JSON-marshalable result.
type ExecFunc func(ctx context.Context, ep *endpoint.Endpoint) (interface{}, error)

// Uncacheable wraps an exec result that counts as a success but must not be
// written back to the cache, such as a transaction that is not visible yet.
type Uncacheable struct {
	Value interface{}
}

// FailureHook is called with the final error once a call has exhausted its
// retries. Implementations must not block.
type FailureHook func(method string, err error)

// Dispatcher runs every RPC call through the full pipeline: cache lookup,
// in-flight deduplication, throttled admission, endpoint routing, execution
// with a per-attempt timeout, outcome recording and cache write-back.
type Dispatcher struct {
	cache     *cache.Store
	throttler *throttle.Throttler
	router    *endpoint.Router
	pool      *endpoint.Pool
	policies  *opclass.Policies
	collector *metrics.Collector
	onFailure FailureHook
	logger    *zap.Logger
	cfg       Config

	flight singleflight.Group

	calls    uint64
	failures uint64
}

// Stats is a snapshot of dispatcher-level counters.
type Stats struct {
	Calls    uint64 `json:"calls"`
	Failures uint64 `json:"failures"`
}

// New wires the dispatcher. The metrics collector may be nil.
func New(store *cache.Store, throttler *throttle.Throttler, router *endpoint.Router,
	pool *endpoint.Pool, policies *opclass.Policies, collector *metrics.Collector,
	cfg Config, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		cache:     store,
		throttler: throttler,
		router:    router,
		pool:      pool,
		policies:  policies,
		collector: collector,
		cfg:       cfg.withDefaults(),
		logger:    logger.Named("dispatch"),
	}
}

// OnFailure registers the terminal-failure hook. Must be called before the
// dispatcher starts serving.
func (d *Dispatcher) OnFailure(hook FailureHook) {
	d.onFailure = hook
}

// Call executes one RPC method through the pipeline and returns the result as
// raw JSON. Methods outside the known set fail before any network traffic.
func (d *Dispatcher) Call(ctx context.Context, method string, params interface{}, exec ExecFunc) (json.RawMessage, error) {
	class, policy, err := d.policies.ForMethod(method)
	if err != nil {
		return nil, err
	}
	atomic.AddUint64(&d.calls, 1)

	cacheable := policy.Cacheable && policy.TTL > 0
	var key string
	if cacheable {
		key, err = cache.DeriveKey(method, params)
		if err != nil {
			d.logger.Warn("Could not derive cache key, serving uncached",
				zap.String("method", method), zap.Error(err))
			cacheable = false
		}
	}

	if !cacheable {
		raw, err := d.dispatch(ctx, method, class, policy, exec, "")
		if err != nil {
			d.recordFailure(method, err)
		}
		return raw, err
	}

	if payload, ok := d.cache.Get(key, policy.TTL); ok {
		d.collector.RecordCacheLookup(true)
		return json.RawMessage(payload), nil
	}
	d.collector.RecordCacheLookup(false)

	// Concurrent identical misses share one upstream request.
	v, err, _ := d.flight.Do(key, func() (interface{}, error) {
		if payload, ok := d.cache.Get(key, policy.TTL); ok {
			return json.RawMessage(payload), nil
		}
		return d.dispatch(ctx, method, class, policy, exec, key)
	})
	if err != nil {
		d.recordFailure(method, err)
		return nil, err
	}
	return v.(json.RawMessage), nil
}

func (d *Dispatcher) recordFailure(method string, err error) {
	atomic.AddUint64(&d.failures, 1)
	if d.onFailure != nil {
		d.onFailure(method, err)
	}
}

// dispatch runs the attempt loop. Each attempt is admitted through the
// throttler separately, routed to the current best endpoint (excluding ones
// already tried), and bounded by the exec timeout. Failed attempts wait a
// constant delay before trying the next endpoint.
func (d *Dispatcher) dispatch(ctx context.Context, method string, class opclass.Class,
	policy opclass.Policy, exec ExecFunc, cacheKey string) (json.RawMessage, error) {

	skip := make(map[string]struct{})
	var noCache bool

	operation := func() (json.RawMessage, error) {
		raw, skipCache, err := d.attempt(ctx, method, class, exec, skip)
		noCache = skipCache
		if err != nil {
			var pe *ProviderError
			if errors.As(err, &pe) {
				skip[pe.Endpoint] = struct{}{}
				if class == opclass.SubmitTransaction && !IsNetworkError(pe.Err) {
					// The node saw the transaction; resubmitting is
					// not safe on application-level failures.
					return nil, backoff.Permanent(err)
				}
				return nil, err
			}
			return nil, backoff.Permanent(err)
		}
		return raw, nil
	}

	notify := func(err error, wait time.Duration) {
		d.logger.Debug("Retrying on next-best endpoint",
			zap.String("method", method),
			zap.Duration("backoff", wait),
			zap.Error(err))
	}

	raw, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(d.cfg.RetryDelay)),
		backoff.WithMaxTries(uint(policy.MaxRetries+1)),
		backoff.WithNotify(notify))
	if err != nil {
		return nil, err
	}

	if cacheKey != "" && !noCache {
		d.cache.Put(cacheKey, raw, policy.TTL)
	}
	return raw, nil
}

type attemptResult struct {
	payload json.RawMessage
	noCache bool
}

// attempt performs one admitted, routed, timed upstream request.
func (d *Dispatcher) attempt(ctx context.Context, method string, class opclass.Class,
	exec ExecFunc, skip map[string]struct{}) (json.RawMessage, bool, error) {

	result, err := d.throttler.Admit(ctx, func() (interface{}, error) {
		ep, err := d.router.Route(class, skip)
		if err != nil {
			if errors.Is(err, endpoint.ErrNoEndpointForClass) && len(skip) > 0 {
				return nil, fmt.Errorf("%w: %s", ErrAllProvidersCooldown, method)
			}
			return nil, err
		}

		if err := ep.WaitLimiter(ctx); err != nil {
			return nil, err
		}

		execCtx, cancel := context.WithTimeout(ctx, d.cfg.ExecTimeout)
		defer cancel()

		start := time.Now()
		res, err := exec(execCtx, ep)
		elapsed := time.Since(start)
		d.collector.RecordRPCLatency(method, ep.Name(), elapsed)

		if err != nil {
			d.pool.RecordFailure(ep)
			d.collector.RecordRequest(ep.Name(), string(class), false)
			d.logger.Warn("Upstream request failed",
				zap.String("method", method),
				zap.String("endpoint", ep.Name()),
				zap.Duration("elapsed", elapsed),
				zap.Error(err))
			return nil, NewProviderError(err, ep.Name(), method)
		}

		d.pool.RecordSuccess(ep)
		d.collector.RecordRequest(ep.Name(), string(class), true)

		var noCache bool
		if u, ok := res.(Uncacheable); ok {
			res = u.Value
			noCache = true
		}
		payload, err := json.Marshal(res)
		if err != nil {
			return nil, fmt.Errorf("marshal %s result: %w", method, err)
		}
		return attemptResult{payload: json.RawMessage(payload), noCache: noCache}, nil
	})

	if err != nil {
		if errors.Is(err, throttle.ErrThrottleTimeout) {
			d.collector.RecordThrottleTimeout()
		}
		return nil, false, err
	}
	ar := result.(attemptResult)
	return ar.payload, ar.noCache, nil
}

// Stats returns dispatcher-level call counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Calls:    atomic.LoadUint64(&d.calls),
		Failures: atomic.LoadUint64(&d.failures),
	}
}

// Policies exposes the method classification table, mainly so callers can
// validate their method set at startup.
func (d *Dispatcher) Policies() *opclass.Policies {
	return d.policies
}
