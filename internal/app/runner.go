// internal/app/runner.go
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-rpcmux/internal/cache"
	"github.com/rovshanmuradov/solana-rpcmux/internal/config"
	"github.com/rovshanmuradov/solana-rpcmux/internal/dispatch"
	"github.com/rovshanmuradov/solana-rpcmux/internal/endpoint"
	"github.com/rovshanmuradov/solana-rpcmux/internal/events"
	"github.com/rovshanmuradov/solana-rpcmux/internal/logger"
	"github.com/rovshanmuradov/solana-rpcmux/internal/metrics"
	"github.com/rovshanmuradov/solana-rpcmux/internal/opclass"
	"github.com/rovshanmuradov/solana-rpcmux/internal/server"
	"github.com/rovshanmuradov/solana-rpcmux/internal/solrpc"
	"github.com/rovshanmuradov/solana-rpcmux/internal/throttle"
)

const (
	shutdownGrace       = 5 * time.Second
	gaugeSampleInterval = 10 * time.Second
)

// Runner owns the lifetime of every subsystem: cache, throttler, endpoint
// pool, dispatcher, health checker, event bus and the admin server.
type Runner struct {
	cfg    *config.Config
	logger *logger.Logger

	bus        *events.Bus
	store      *cache.Store
	throttler  *throttle.Throttler
	pool       *endpoint.Pool
	router     *endpoint.Router
	collector  *metrics.Collector
	dispatcher *dispatch.Dispatcher
	client     *solrpc.Client
	health     *endpoint.HealthChecker
	admin      *server.Server

	shutdownCh   chan os.Signal
	shutdownOnce sync.Once
}

// busSink forwards pool health transitions onto the event bus.
type busSink struct {
	bus *events.Bus
}

func (s *busSink) EndpointCooledDown(name string, until time.Time, consecutive int) {
	_ = s.bus.Publish(events.NewEndpointCooledDown(name, until, consecutive))
}

func (s *busSink) EndpointRecovered(name string) {
	_ = s.bus.Publish(events.NewEndpointRecovered(name))
}

// NewRunner wires every subsystem from the loaded configuration.
func NewRunner(cfg *config.Config, log *logger.Logger) (*Runner, error) {
	zlog := log.Logger

	policies, err := policiesFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("operation policies: %w", err)
	}

	epConfigs, err := endpointConfigs(cfg)
	if err != nil {
		return nil, fmt.Errorf("endpoint config: %w", err)
	}

	store, err := cache.New(cache.Config{
		Dir:           cfg.Cache.Dir,
		MemoryEntries: cfg.Cache.MemoryEntries,
		Retention:     time.Duration(cfg.Cache.RetentionHours) * time.Hour,
	}, zlog)
	if err != nil {
		return nil, fmt.Errorf("response cache: %w", err)
	}

	bus := events.NewBus(zlog, events.DefaultBufferSize)

	pool, err := endpoint.NewPool(epConfigs, endpoint.CooldownConfig{
		Threshold: cfg.Cooldown.Threshold,
		BaseDelay: time.Duration(cfg.Cooldown.BaseDelayMs) * time.Millisecond,
		MaxDelay:  time.Duration(cfg.Cooldown.MaxDelayMs) * time.Millisecond,
	}, &busSink{bus: bus}, zlog)
	if err != nil {
		shutdownQuietly(bus)
		return nil, fmt.Errorf("endpoint pool: %w", err)
	}

	throttler := throttle.New(throttle.Config{
		MaxPerSecond: cfg.Throttle.MaxPerSecond,
		MaxPerMinute: cfg.Throttle.MaxPerMinute,
		Tick:         time.Duration(cfg.Throttle.TickMs) * time.Millisecond,
		Jitter:       time.Duration(cfg.Throttle.JitterMs) * time.Millisecond,
		MaxWait:      time.Duration(cfg.Throttle.MaxWaitMs) * time.Millisecond,
	}, zlog)

	router := endpoint.NewRouter(pool, zlog)
	collector := metrics.NewCollector()

	dispatcher := dispatch.New(store, throttler, router, pool, policies, collector, dispatch.Config{
		ExecTimeout: time.Duration(cfg.Dispatch.ExecTimeoutMs) * time.Millisecond,
		RetryDelay:  time.Duration(cfg.Dispatch.RetryDelayMs) * time.Millisecond,
	}, zlog)
	dispatcher.OnFailure(func(method string, err error) {
		_ = bus.Publish(events.NewDispatchFailed(method, err))
	})

	client, err := solrpc.NewClient(dispatcher, store, throttler, pool, zlog)
	if err != nil {
		throttler.Close()
		shutdownQuietly(bus)
		return nil, fmt.Errorf("rpc facade: %w", err)
	}

	health := endpoint.NewHealthChecker(pool, slotProbe,
		time.Duration(cfg.Health.IntervalSeconds)*time.Second,
		time.Duration(cfg.Health.TimeoutSeconds)*time.Second,
		zlog)
	health.OnFailure(func(name string, err error) {
		_ = bus.Publish(events.NewEndpointProbeFailed(name, err))
	})

	admin := server.New(cfg.Server.Listen, client, zlog)

	r := &Runner{
		cfg:        cfg,
		logger:     log,
		bus:        bus,
		store:      store,
		throttler:  throttler,
		pool:       pool,
		router:     router,
		collector:  collector,
		dispatcher: dispatcher,
		client:     client,
		health:     health,
		admin:      admin,
		shutdownCh: make(chan os.Signal, 1),
	}
	r.subscribe()

	return r, nil
}

// Client returns the typed RPC facade for embedding callers.
func (r *Runner) Client() *solrpc.Client {
	return r.client
}

// Run starts the background loops and blocks until ctx is canceled or a
// termination signal arrives, then shuts everything down in order.
func (r *Runner) Run(ctx context.Context) error {
	signal.Notify(r.shutdownCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(r.shutdownCh)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case sig := <-r.shutdownCh:
			r.logger.Info("📡 Signal received: " + sig.String())
			cancel()
		case <-runCtx.Done():
		}
	}()

	go r.health.Run(runCtx)
	go r.store.RunSweeper(runCtx, cache.DefaultSweepInterval, func(removed int) {
		if removed > 0 {
			_ = r.bus.Publish(events.NewCacheSwept(removed))
		}
	})
	go r.sampleGauges(runCtx)

	if r.cfg.Server.Enabled {
		go func() {
			if err := r.admin.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				r.logger.Error("Admin server failed", zap.Error(err))
				cancel()
			}
		}()
	}

	r.logger.Info(fmt.Sprintf("🚀 RPC mux running with %d endpoints", len(r.pool.Endpoints())))

	<-runCtx.Done()
	return r.Shutdown()
}

// subscribe wires the bus consumers: the cooldown gauge reacts to health
// transitions immediately, and the admin surface keeps the recent history.
func (r *Runner) subscribe() {
	r.bus.SubscribeFunc(events.EndpointCooledDown, func(_ context.Context, e events.Event) error {
		if ev, ok := e.(events.EndpointCooledDownEvent); ok {
			r.collector.UpdateCooldown(ev.Endpoint, true)
			r.admin.RecordEvent(ev)
		}
		return nil
	})
	r.bus.SubscribeFunc(events.EndpointRecovered, func(_ context.Context, e events.Event) error {
		if ev, ok := e.(events.EndpointRecoveredEvent); ok {
			r.collector.UpdateCooldown(ev.Endpoint, false)
			r.admin.RecordEvent(ev)
		}
		return nil
	})
	r.bus.SubscribeFunc(events.EndpointProbeFailed, func(_ context.Context, e events.Event) error {
		r.admin.RecordEvent(e)
		return nil
	})
	r.bus.SubscribeFunc(events.DispatchFailed, func(_ context.Context, e events.Event) error {
		r.admin.RecordEvent(e)
		return nil
	})
	r.bus.SubscribeFunc(events.CacheSwept, func(_ context.Context, e events.Event) error {
		r.admin.RecordEvent(e)
		return nil
	})
}

// sampleGauges reconciles the queue depth and cooldown gauges on a timer.
// Cooldowns can lapse without an event, so the bus alone is not enough.
func (r *Runner) sampleGauges(ctx context.Context) {
	ticker := time.NewTicker(gaugeSampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.collector.UpdateQueueDepth(r.throttler.GetStats().QueueDepth)
			for _, ep := range r.pool.Stats() {
				r.collector.UpdateCooldown(ep.Name, ep.InCooldown)
			}
		}
	}
}

// Shutdown releases every subsystem. Safe to call more than once; Run
// invokes it on its way out.
func (r *Runner) Shutdown() error {
	r.shutdownOnce.Do(func() {
		r.logger.Info("👋 Shutting down")

		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()

		if r.cfg.Server.Enabled {
			if err := r.admin.Shutdown(shutCtx); err != nil {
				r.logger.Warn("Admin server shutdown", zap.Error(err))
			}
		}
		r.throttler.Close()
		if err := r.bus.Shutdown(shutCtx); err != nil {
			r.logger.Warn("Event bus shutdown", zap.Error(err))
		}

		if err := r.logger.Sync(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to sync logger during shutdown: %v\n", err)
		}
	})
	return nil
}

// slotProbe asks an endpoint for the current slot over its own connection.
// Probes bypass the shared throttler so they cannot crowd out real traffic.
func slotProbe(ctx context.Context, ep *endpoint.Endpoint) error {
	_, err := ep.Client().GetSlot(ctx, rpc.CommitmentProcessed)
	return err
}

func policiesFromConfig(cfg *config.Config) (*opclass.Policies, error) {
	policies := opclass.DefaultPolicies()

	if cfg.Dispatch.Retries > 0 {
		if err := policies.WithRetries(cfg.Dispatch.Retries); err != nil {
			return nil, err
		}
	}
	for name, seconds := range cfg.Cache.TTLOverrides {
		class, err := opclass.Parse(name)
		if err != nil {
			return nil, err
		}
		if err := policies.WithTTL(class, time.Duration(seconds)*time.Second); err != nil {
			return nil, err
		}
	}
	return policies, nil
}

func endpointConfigs(cfg *config.Config) ([]endpoint.Config, error) {
	out := make([]endpoint.Config, 0, len(cfg.Endpoints))
	for _, ep := range cfg.Endpoints {
		classes := make([]opclass.Class, 0, len(ep.Classes))
		for _, raw := range ep.Classes {
			class, err := opclass.Parse(raw)
			if err != nil {
				return nil, fmt.Errorf("endpoint %q: %w", ep.Name, err)
			}
			classes = append(classes, class)
		}
		out = append(out, endpoint.Config{
			Name:      ep.Name,
			URL:       ep.URL,
			Classes:   classes,
			Priority:  ep.Priority,
			Weight:    ep.Weight,
			RateLimit: ep.RateLimit,
		})
	}
	return out, nil
}

func shutdownQuietly(bus *events.Bus) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = bus.Shutdown(ctx)
}
