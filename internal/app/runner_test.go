// internal/app/runner_test.go
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rovshanmuradov/solana-rpcmux/internal/config"
	"github.com/rovshanmuradov/solana-rpcmux/internal/logger"
	"github.com/rovshanmuradov/solana-rpcmux/internal/opclass"
)

func quietLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(&logger.Config{
		Level: "error",
		File:  filepath.Join(t.TempDir(), "test.log"),
	})
	require.NoError(t, err)
	return log
}

func minimalConfig(t *testing.T, url string) *config.Config {
	t.Helper()
	return &config.Config{
		Endpoints: []config.EndpointConfig{
			{Name: "primary", URL: url, Classes: []string{"read-balance", "read-slot", "submit-transaction"}, Priority: 1, Weight: 1},
		},
		Throttle: config.ThrottleConfig{MaxPerSecond: 100, MaxPerMinute: 1000, MaxWaitMs: 1000},
		Cache:    config.CacheConfig{Dir: filepath.Join(t.TempDir(), "cache"), MemoryEntries: 64, RetentionHours: 1},
		Health:   config.HealthConfig{IntervalSeconds: 30, TimeoutSeconds: 5},
		Cooldown: config.CooldownConfig{Threshold: 3, BaseDelayMs: 2000, MaxDelayMs: 60000},
		Dispatch: config.DispatchConfig{ExecTimeoutMs: 2000, RetryDelayMs: 10, Retries: 2},
		Server:   config.ServerConfig{Enabled: false},
		Logging:  config.LoggingConfig{Level: "error"},
	}
}

// slotNode answers every request as getSlot with a fixed slot number.
func slotNode(t *testing.T, slot uint64) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID json.RawMessage `json:"id"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"result":%d}`, req.ID, slot)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestNewRunnerServesTrafficThroughTheStack(t *testing.T) {
	node := slotNode(t, 2112)
	r, err := NewRunner(minimalConfig(t, node.URL), quietLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Shutdown() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slot, err := r.Client().GetSlot(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2112), slot)

	snapshot := r.Client().Stats()
	require.Len(t, snapshot.Endpoints, 1)
	assert.Equal(t, uint64(1), snapshot.Endpoints[0].RequestCount)
}

func TestRunStopsCleanlyOnContextCancel(t *testing.T) {
	node := slotNode(t, 1)
	r, err := NewRunner(minimalConfig(t, node.URL), quietLogger(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestNewRunnerRejectsBrokenEndpointConfig(t *testing.T) {
	cfg := minimalConfig(t, "https://rpc.example.com")
	cfg.Endpoints[0].Classes = []string{"read-everything"}

	_, err := NewRunner(cfg, quietLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "endpoint config")
}

func TestPoliciesFromConfigAppliesOverrides(t *testing.T) {
	cfg := minimalConfig(t, "https://rpc.example.com")
	cfg.Cache.TTLOverrides = map[string]int{"read-price": 5}
	cfg.Dispatch.Retries = 4

	policies, err := policiesFromConfig(cfg)
	require.NoError(t, err)

	_, pricePolicy, err := policies.ForMethod("getTokenAccountBalance")
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, pricePolicy.TTL)
	assert.Equal(t, 4, pricePolicy.MaxRetries)

	_, submitPolicy, err := policies.ForMethod("sendTransaction")
	require.NoError(t, err)
	assert.Equal(t, 1, submitPolicy.MaxRetries, "submission retry budget is fixed")
	assert.False(t, submitPolicy.Cacheable)
}

func TestEndpointConfigsParseClasses(t *testing.T) {
	cfg := minimalConfig(t, "https://rpc.example.com")

	epConfigs, err := endpointConfigs(cfg)
	require.NoError(t, err)
	require.Len(t, epConfigs, 1)
	assert.Contains(t, epConfigs[0].Classes, opclass.ReadSlot)
	assert.Equal(t, "primary", epConfigs[0].Name)
}
