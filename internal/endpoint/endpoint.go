// internal/endpoint/endpoint.go
package endpoint

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"golang.org/x/time/rate"

	"github.com/rovshanmuradov/solana-rpcmux/internal/opclass"
)

// Config describes one upstream provider as given by configuration.
type Config struct {
	Name      string
	URL       string
	Classes   []opclass.Class
	Priority  int
	Weight    float64
	RateLimit float64 // requests per second, 0 means unlimited
}

// Endpoint is one upstream RPC provider together with its live connection
// and health bookkeeping. Counters are guarded by mu, the connection and
// static attributes are immutable after construction.
type Endpoint struct {
	name     string
	url      string
	classes  map[opclass.Class]struct{}
	priority int
	weight   float64
	client   *solanarpc.Client
	limiter  *rate.Limiter

	mu                sync.RWMutex
	requestCount      uint64
	errorCount        uint64
	consecutiveErrors int
	cooldownUntil     time.Time
	lastUsed          time.Time
}

// Stats is a point-in-time snapshot of one endpoint's health state.
type Stats struct {
	Name              string    `json:"name"`
	URL               string    `json:"url"`
	Classes           []string  `json:"classes"`
	Priority          int       `json:"priority"`
	RequestCount      uint64    `json:"request_count"`
	ErrorCount        uint64    `json:"error_count"`
	ConsecutiveErrors int       `json:"consecutive_errors"`
	InCooldown        bool      `json:"in_cooldown"`
	CooldownUntil     time.Time `json:"cooldown_until"`
	LastUsed          time.Time `json:"last_used"`
}

func newEndpoint(cfg Config) (*Endpoint, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("endpoint with URL %q has no name", cfg.URL)
	}
	parsed, err := url.Parse(cfg.URL)
	if err != nil || !strings.HasPrefix(parsed.Scheme, "http") {
		return nil, fmt.Errorf("endpoint %s: invalid RPC URL %q", cfg.Name, cfg.URL)
	}
	if len(cfg.Classes) == 0 {
		return nil, fmt.Errorf("endpoint %s: no operation classes assigned", cfg.Name)
	}
	if cfg.Weight <= 0 {
		cfg.Weight = 1
	}

	classes := make(map[opclass.Class]struct{}, len(cfg.Classes))
	for _, c := range cfg.Classes {
		if !c.Valid() {
			return nil, fmt.Errorf("endpoint %s: unknown operation class %q", cfg.Name, c)
		}
		classes[c] = struct{}{}
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := int(cfg.RateLimit)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return &Endpoint{
		name:     cfg.Name,
		url:      cfg.URL,
		classes:  classes,
		priority: cfg.Priority,
		weight:   cfg.Weight,
		client:   solanarpc.New(cfg.URL),
		limiter:  limiter,
	}, nil
}

// Name returns the unique endpoint name.
func (e *Endpoint) Name() string { return e.name }

// URL returns the endpoint base URL.
func (e *Endpoint) URL() string { return e.url }

// Client returns the live RPC connection for this endpoint.
func (e *Endpoint) Client() *solanarpc.Client { return e.client }

// ServesClass reports whether the endpoint is assigned to the class.
func (e *Endpoint) ServesClass(c opclass.Class) bool {
	_, ok := e.classes[c]
	return ok
}

// InCooldown reports whether the endpoint is excluded from selection at now.
func (e *Endpoint) InCooldown(now time.Time) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cooldownUntil.After(now)
}

// CooldownUntil returns the current cooldown expiry, zero when none was set.
func (e *Endpoint) CooldownUntil() time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cooldownUntil
}

// WaitLimiter blocks until the endpoint's token bucket grants a slot, or ctx
// expires. Endpoints without a configured rate limit pass through.
func (e *Endpoint) WaitLimiter(ctx context.Context) error {
	if e.limiter == nil {
		return nil
	}
	return e.limiter.Wait(ctx)
}

// loadScore is the normalized load used as the last selection tiebreaker.
func (e *Endpoint) loadScore() float64 {
	return float64(e.requestCount) / e.weight
}

// Snapshot returns a copy of the endpoint's current state.
func (e *Endpoint) Snapshot(now time.Time) Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	classes := make([]string, 0, len(e.classes))
	for c := range e.classes {
		classes = append(classes, string(c))
	}
	sort.Strings(classes)

	return Stats{
		Name:              e.name,
		URL:               e.url,
		Classes:           classes,
		Priority:          e.priority,
		RequestCount:      e.requestCount,
		ErrorCount:        e.errorCount,
		ConsecutiveErrors: e.consecutiveErrors,
		InCooldown:        e.cooldownUntil.After(now),
		CooldownUntil:     e.cooldownUntil,
		LastUsed:          e.lastUsed,
	}
}
