// internal/dispatch/dispatcher_test.go
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-rpcmux/internal/cache"
	"github.com/rovshanmuradov/solana-rpcmux/internal/endpoint"
	"github.com/rovshanmuradov/solana-rpcmux/internal/opclass"
	"github.com/rovshanmuradov/solana-rpcmux/internal/throttle"
)

type testRig struct {
	dispatcher *Dispatcher
	pool       *endpoint.Pool
	throttler  *throttle.Throttler
	store      *cache.Store
}

func twoEndpointConfigs() []endpoint.Config {
	all := opclass.All()
	return []endpoint.Config{
		{Name: "alpha", URL: "https://alpha.example.com", Classes: all, Priority: 1, Weight: 1},
		{Name: "beta", URL: "https://beta.example.com", Classes: all, Priority: 2, Weight: 1},
	}
}

func newTestRig(t *testing.T, epCfgs []endpoint.Config, cooldown endpoint.CooldownConfig) *testRig {
	t.Helper()
	logger := zap.NewNop()

	store, err := cache.New(cache.Config{Dir: t.TempDir()}, logger)
	require.NoError(t, err)

	throttler := throttle.New(throttle.Config{
		MaxPerSecond: 1000,
		MaxPerMinute: 60000,
		Tick:         5 * time.Millisecond,
	}, logger)
	t.Cleanup(throttler.Close)

	pool, err := endpoint.NewPool(epCfgs, cooldown, nil, logger)
	require.NoError(t, err)
	router := endpoint.NewRouter(pool, logger)

	dispatcher := New(store, throttler, router, pool, opclass.DefaultPolicies(), nil,
		Config{ExecTimeout: time.Second, RetryDelay: 10 * time.Millisecond}, logger)

	return &testRig{dispatcher: dispatcher, pool: pool, throttler: throttler, store: store}
}

// countingExec returns a canned result and counts invocations per endpoint.
type countingExec struct {
	mu      sync.Mutex
	byEp    map[string]int
	failFor map[string]error
	result  interface{}
}

func newCountingExec(result interface{}) *countingExec {
	return &countingExec{byEp: make(map[string]int), failFor: make(map[string]error), result: result}
}

func (c *countingExec) fn(ctx context.Context, ep *endpoint.Endpoint) (interface{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byEp[ep.Name()]++
	if err, ok := c.failFor[ep.Name()]; ok && err != nil {
		return nil, err
	}
	return c.result, nil
}

func (c *countingExec) calls(ep string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.byEp[ep]
}

func (c *countingExec) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, v := range c.byEp {
		n += v
	}
	return n
}

func TestCacheableReadHitsUpstreamOnce(t *testing.T) {
	rig := newTestRig(t, twoEndpointConfigs(), endpoint.CooldownConfig{})
	exec := newCountingExec(map[string]interface{}{"value": uint64(42)})
	ctx := context.Background()

	first, err := rig.dispatcher.Call(ctx, "getBalance", []interface{}{"wallet-1"}, exec.fn)
	require.NoError(t, err)

	second, err := rig.dispatcher.Call(ctx, "getBalance", []interface{}{"wallet-1"}, exec.fn)
	require.NoError(t, err)

	assert.JSONEq(t, string(first), string(second), "cached payload must match the original")
	assert.Equal(t, 1, exec.total(), "second read within TTL must be served from cache")
}

func TestDistinctParamsDoNotShareCache(t *testing.T) {
	rig := newTestRig(t, twoEndpointConfigs(), endpoint.CooldownConfig{})
	exec := newCountingExec(map[string]interface{}{"value": uint64(1)})
	ctx := context.Background()

	_, err := rig.dispatcher.Call(ctx, "getBalance", []interface{}{"wallet-1"}, exec.fn)
	require.NoError(t, err)
	_, err = rig.dispatcher.Call(ctx, "getBalance", []interface{}{"wallet-2"}, exec.fn)
	require.NoError(t, err)

	assert.Equal(t, 2, exec.total(), "different params are different cache entries")
}

func TestTransactionSubmissionNeverCached(t *testing.T) {
	rig := newTestRig(t, twoEndpointConfigs(), endpoint.CooldownConfig{})
	exec := newCountingExec("signature-xyz")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := rig.dispatcher.Call(ctx, "sendTransaction", []interface{}{"same-raw-tx"}, exec.fn)
		require.NoError(t, err)
	}

	assert.Equal(t, 3, exec.total(), "identical submissions must each reach the network")
	assert.Equal(t, uint64(0), rig.store.Stats().Writes, "submission results must never be written to cache")
}

func TestFailoverToNextBestEndpoint(t *testing.T) {
	rig := newTestRig(t, twoEndpointConfigs(), endpoint.CooldownConfig{})
	exec := newCountingExec(map[string]interface{}{"lamports": uint64(7)})
	exec.failFor["alpha"] = errors.New("node is behind")
	ctx := context.Background()

	raw, err := rig.dispatcher.Call(ctx, "getBalance", []interface{}{"wallet-1"}, exec.fn)
	require.NoError(t, err, "second endpoint should have served the request")
	require.NotEmpty(t, raw)

	assert.Equal(t, 1, exec.calls("alpha"))
	assert.Equal(t, 1, exec.calls("beta"))

	snap := rig.pool.Get("alpha").Snapshot(time.Now())
	assert.Equal(t, uint64(1), snap.ErrorCount, "failed attempt must be recorded against alpha")
}

func TestReadFailureExhaustsAllEndpoints(t *testing.T) {
	rig := newTestRig(t, twoEndpointConfigs(), endpoint.CooldownConfig{})
	exec := newCountingExec(nil)
	exec.failFor["alpha"] = errors.New("boom")
	exec.failFor["beta"] = errors.New("boom")
	ctx := context.Background()

	_, err := rig.dispatcher.Call(ctx, "getBalance", []interface{}{"wallet-1"}, exec.fn)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAllProvidersCooldown,
		"running out of untried endpoints must surface the cooldown error")

	// Default read budget is 2 retries, but only 2 endpoints exist.
	assert.Equal(t, 1, exec.calls("alpha"))
	assert.Equal(t, 1, exec.calls("beta"))
}

// TestFailoverCachingAndCooldownLifecycle walks one read key through the
// whole pipeline: failover on the first miss, cache hits inside the TTL, a
// fresh dispatch after expiry that pushes the bad endpoint into cooldown,
// and the cooled endpoint staying excluded while the healthy one serves.
func TestFailoverCachingAndCooldownLifecycle(t *testing.T) {
	rig := newTestRig(t, twoEndpointConfigs(), endpoint.CooldownConfig{
		Threshold: 2,
		BaseDelay: time.Minute,
		MaxDelay:  time.Minute,
	})
	require.NoError(t, rig.dispatcher.Policies().WithTTL(opclass.ReadBalance, 200*time.Millisecond))

	exec := newCountingExec(map[string]interface{}{"lamports": uint64(99)})
	exec.failFor["alpha"] = errors.New("connection refused")
	ctx := context.Background()
	params := []interface{}{"wallet-e2e"}

	// Miss: alpha fails once, beta serves, result is cached.
	_, err := rig.dispatcher.Call(ctx, "getBalance", params, exec.fn)
	require.NoError(t, err)
	require.Equal(t, 1, exec.calls("alpha"))
	require.Equal(t, 1, exec.calls("beta"))

	// Repeat reads inside the TTL never touch the network.
	for i := 0; i < 4; i++ {
		_, err := rig.dispatcher.Call(ctx, "getBalance", params, exec.fn)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, exec.total(), "reads within the TTL must be cache hits")

	// After expiry the next call dispatches again; alpha's second straight
	// failure crosses the threshold and starts its cooldown.
	time.Sleep(250 * time.Millisecond)
	_, err = rig.dispatcher.Call(ctx, "getBalance", params, exec.fn)
	require.NoError(t, err)
	assert.Equal(t, 2, exec.calls("alpha"))
	assert.Equal(t, 2, exec.calls("beta"))

	alpha := rig.pool.Get("alpha").Snapshot(time.Now())
	require.True(t, alpha.InCooldown, "two straight failures must start the cooldown")
	require.Equal(t, 2, alpha.ConsecutiveErrors)

	// Alpha would succeed now, but it is not asked while cooling, and
	// beta's successes must not touch alpha's streak.
	delete(exec.failFor, "alpha")
	time.Sleep(250 * time.Millisecond)
	_, err = rig.dispatcher.Call(ctx, "getBalance", params, exec.fn)
	require.NoError(t, err)
	assert.Equal(t, 2, exec.calls("alpha"), "cooling endpoint must not be asked")
	assert.Equal(t, 3, exec.calls("beta"))

	alpha = rig.pool.Get("alpha").Snapshot(time.Now())
	assert.True(t, alpha.InCooldown, "cooldown must outlive another endpoint's success")
	assert.Equal(t, 2, alpha.ConsecutiveErrors, "peer successes must not reset the streak")
}

func TestFailureHookSeesFinalError(t *testing.T) {
	rig := newTestRig(t, twoEndpointConfigs(), endpoint.CooldownConfig{})
	exec := newCountingExec(map[string]interface{}{"value": uint64(7)})
	ctx := context.Background()

	var mu sync.Mutex
	var failedMethods []string
	var lastErr error
	rig.dispatcher.OnFailure(func(method string, err error) {
		mu.Lock()
		failedMethods = append(failedMethods, method)
		lastErr = err
		mu.Unlock()
	})

	_, err := rig.dispatcher.Call(ctx, "getBalance", []interface{}{"wallet-1"}, exec.fn)
	require.NoError(t, err)
	assert.Empty(t, failedMethods, "successful calls must not reach the hook")

	exec.failFor["alpha"] = errors.New("boom")
	exec.failFor["beta"] = errors.New("boom")
	_, err = rig.dispatcher.Call(ctx, "getSlot", nil, exec.fn)
	require.Error(t, err)

	require.Equal(t, []string{"getSlot"}, failedMethods)
	assert.ErrorIs(t, lastErr, ErrAllProvidersCooldown,
		"the hook must receive the same error the caller sees")
}

func TestSubmitRetriesOnceOnNetworkFailure(t *testing.T) {
	rig := newTestRig(t, twoEndpointConfigs(), endpoint.CooldownConfig{})
	exec := newCountingExec("sig")
	exec.failFor["alpha"] = errors.New("connection refused")
	ctx := context.Background()

	raw, err := rig.dispatcher.Call(ctx, "sendTransaction", []interface{}{"raw-tx"}, exec.fn)
	require.NoError(t, err)
	require.NotEmpty(t, raw)

	assert.Equal(t, 1, exec.calls("alpha"))
	assert.Equal(t, 1, exec.calls("beta"), "network-level failure allows exactly one resubmission")
}

func TestSubmitNeverRetriesApplicationFailure(t *testing.T) {
	rig := newTestRig(t, twoEndpointConfigs(), endpoint.CooldownConfig{})
	exec := newCountingExec(nil)
	exec.failFor["alpha"] = errors.New("Transaction simulation failed: insufficient funds")
	ctx := context.Background()

	_, err := rig.dispatcher.Call(ctx, "sendTransaction", []interface{}{"raw-tx"}, exec.fn)
	require.Error(t, err)

	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "alpha", pe.Endpoint)
	assert.Equal(t, 0, exec.calls("beta"),
		"an application-level rejection must not trigger resubmission")
}

func TestUnknownMethodFailsBeforeNetwork(t *testing.T) {
	rig := newTestRig(t, twoEndpointConfigs(), endpoint.CooldownConfig{})
	exec := newCountingExec(nil)

	_, err := rig.dispatcher.Call(context.Background(), "getVoteAccounts", nil, exec.fn)
	require.Error(t, err)
	assert.Equal(t, 0, exec.total(), "unclassified methods must fail before any upstream traffic")
}

func TestConcurrentIdenticalReadsCollapse(t *testing.T) {
	rig := newTestRig(t, twoEndpointConfigs(), endpoint.CooldownConfig{})

	var executions int32
	slowExec := func(ctx context.Context, ep *endpoint.Endpoint) (interface{}, error) {
		atomic.AddInt32(&executions, 1)
		time.Sleep(50 * time.Millisecond)
		return map[string]interface{}{"slot": uint64(100)}, nil
	}

	const callers = 8
	var wg sync.WaitGroup
	results := make([]json.RawMessage, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = rig.dispatcher.Call(context.Background(), "getSlot", nil, slowExec)
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.JSONEq(t, string(results[0]), string(results[i]))
	}
	got := atomic.LoadInt32(&executions)
	t.Logf("upstream executions for %d concurrent callers: %d", callers, got)
	assert.LessOrEqual(t, got, int32(2), "concurrent identical reads must collapse to a shared flight")
}

func TestThrottleStarvationSurfacesTimeout(t *testing.T) {
	logger := zap.NewNop()
	store, err := cache.New(cache.Config{Dir: t.TempDir()}, logger)
	require.NoError(t, err)

	throttler := throttle.New(throttle.Config{
		MaxPerSecond: 1,
		MaxPerMinute: 1,
		Tick:         5 * time.Millisecond,
		MaxWait:      60 * time.Millisecond,
	}, logger)
	t.Cleanup(throttler.Close)

	pool, err := endpoint.NewPool(twoEndpointConfigs(), endpoint.CooldownConfig{}, nil, logger)
	require.NoError(t, err)
	router := endpoint.NewRouter(pool, logger)
	dispatcher := New(store, throttler, router, pool, opclass.DefaultPolicies(), nil,
		Config{ExecTimeout: time.Second, RetryDelay: 10 * time.Millisecond}, logger)

	exec := newCountingExec("sig")
	ctx := context.Background()

	_, err = dispatcher.Call(ctx, "sendTransaction", []interface{}{"tx-1"}, exec.fn)
	require.NoError(t, err, "first submission should be admitted immediately")

	_, err = dispatcher.Call(ctx, "sendTransaction", []interface{}{"tx-2"}, exec.fn)
	require.Error(t, err)
	assert.ErrorIs(t, err, throttle.ErrThrottleTimeout,
		"starved request must time out instead of waiting forever")
	assert.Equal(t, 1, exec.total(), "the starved submission must never execute")
}

func TestUncacheableResultSkipsWriteBack(t *testing.T) {
	rig := newTestRig(t, twoEndpointConfigs(), endpoint.CooldownConfig{})
	ctx := context.Background()

	var executions int32
	exec := func(ctx context.Context, ep *endpoint.Endpoint) (interface{}, error) {
		atomic.AddInt32(&executions, 1)
		return Uncacheable{Value: map[string]interface{}{"pending": true}}, nil
	}

	raw, err := rig.dispatcher.Call(ctx, "getTransaction", []interface{}{"sig-1"}, exec)
	require.NoError(t, err)
	assert.JSONEq(t, `{"pending": true}`, string(raw), "the wrapped value is what callers see")

	_, err = rig.dispatcher.Call(ctx, "getTransaction", []interface{}{"sig-1"}, exec)
	require.NoError(t, err)

	assert.Equal(t, int32(2), atomic.LoadInt32(&executions),
		"an uncacheable result must not satisfy the next identical call")
	assert.Equal(t, uint64(0), rig.store.Stats().Writes)
}

func TestDispatcherStatsCountCallsAndFailures(t *testing.T) {
	rig := newTestRig(t, twoEndpointConfigs(), endpoint.CooldownConfig{})
	exec := newCountingExec(map[string]interface{}{"ok": true})
	ctx := context.Background()

	_, err := rig.dispatcher.Call(ctx, "getBalance", []interface{}{"w"}, exec.fn)
	require.NoError(t, err)

	failing := newCountingExec(nil)
	failing.failFor["alpha"] = errors.New("boom")
	failing.failFor["beta"] = errors.New("boom")
	_, err = rig.dispatcher.Call(ctx, "getAccountInfo", []interface{}{"acc"}, failing.fn)
	require.Error(t, err)

	stats := rig.dispatcher.Stats()
	assert.Equal(t, uint64(2), stats.Calls)
	assert.Equal(t, uint64(1), stats.Failures)
}
