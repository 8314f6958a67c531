// internal/endpoint/pool.go
package endpoint

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-rpcmux/internal/opclass"
)

// Cooldown defaults, applied when the corresponding config value is zero.
const (
	DefaultCooldownThreshold = 3
	DefaultCooldownBase      = 2 * time.Second
	DefaultCooldownMax       = 60 * time.Second

	// maxBackoffShift keeps the exponential delay computation from
	// overflowing long before the cap kicks in anyway.
	maxBackoffShift = 20
)

var (
	// ErrNoEndpointForClass means no configured endpoint serves the class.
	ErrNoEndpointForClass = errors.New("no endpoint serves operation class")
)

// CooldownConfig controls when a failing endpoint is benched and for how long.
type CooldownConfig struct {
	Threshold int           // consecutive errors before cooldown starts
	BaseDelay time.Duration // first cooldown delay unit
	MaxDelay  time.Duration // upper bound for any single cooldown
}

func (c CooldownConfig) withDefaults() CooldownConfig {
	if c.Threshold <= 0 {
		c.Threshold = DefaultCooldownThreshold
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = DefaultCooldownBase
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = DefaultCooldownMax
	}
	return c
}

// StateSink receives endpoint health transitions. Implementations must not
// block; the pool calls them while serving requests.
type StateSink interface {
	EndpointCooledDown(name string, until time.Time, consecutive int)
	EndpointRecovered(name string)
}

// Pool owns every configured endpoint and tracks its health. Selection,
// outcome recording and snapshots all go through here.
type Pool struct {
	endpoints []*Endpoint
	byName    map[string]*Endpoint
	cooldown  CooldownConfig
	sink      StateSink
	logger    *zap.Logger
}

// NewPool builds the endpoint set from configuration. Names must be unique
// and every endpoint must parse; sink may be nil.
func NewPool(cfgs []Config, cooldown CooldownConfig, sink StateSink, logger *zap.Logger) (*Pool, error) {
	if len(cfgs) == 0 {
		return nil, errors.New("at least one endpoint must be configured")
	}

	p := &Pool{
		endpoints: make([]*Endpoint, 0, len(cfgs)),
		byName:    make(map[string]*Endpoint, len(cfgs)),
		cooldown:  cooldown.withDefaults(),
		sink:      sink,
		logger:    logger.Named("pool"),
	}

	for _, cfg := range cfgs {
		ep, err := newEndpoint(cfg)
		if err != nil {
			return nil, err
		}
		if _, dup := p.byName[ep.name]; dup {
			return nil, fmt.Errorf("duplicate endpoint name %q", ep.name)
		}
		p.byName[ep.name] = ep
		p.endpoints = append(p.endpoints, ep)
	}

	for _, class := range opclass.All() {
		if len(p.ForClass(class)) == 0 {
			p.logger.Warn("No endpoint serves operation class, requests of this class will fail",
				zap.String("class", string(class)))
		}
	}

	return p, nil
}

// Endpoints returns all endpoints in configuration order.
func (p *Pool) Endpoints() []*Endpoint { return p.endpoints }

// Get returns the endpoint with the given name, or nil.
func (p *Pool) Get(name string) *Endpoint { return p.byName[name] }

// ForClass returns the endpoints assigned to the class, in configuration order.
func (p *Pool) ForClass(class opclass.Class) []*Endpoint {
	var out []*Endpoint
	for _, ep := range p.endpoints {
		if ep.ServesClass(class) {
			out = append(out, ep)
		}
	}
	return out
}

// SelectBest picks the healthiest endpoint from candidates: lowest priority
// value first, then fewest recorded errors, then lowest weighted load. When
// every candidate is cooling down it falls back to the one whose cooldown
// expires soonest, so the caller can still attempt the request rather than
// fail outright. The skip set excludes endpoints already tried this call.
func (p *Pool) SelectBest(candidates []*Endpoint, skip map[string]struct{}) (*Endpoint, error) {
	if len(candidates) == 0 {
		return nil, ErrNoEndpointForClass
	}

	now := time.Now()

	type ranked struct {
		ep       *Endpoint
		priority int
		errors   uint64
		load     float64
	}

	available := make([]ranked, 0, len(candidates))
	var fallback *Endpoint
	var fallbackExpiry time.Time

	for _, ep := range candidates {
		if _, skipped := skip[ep.name]; skipped {
			continue
		}
		ep.mu.RLock()
		until := ep.cooldownUntil
		r := ranked{ep: ep, priority: ep.priority, errors: ep.errorCount, load: ep.loadScore()}
		ep.mu.RUnlock()

		if until.After(now) {
			if fallback == nil || until.Before(fallbackExpiry) {
				fallback = ep
				fallbackExpiry = until
			}
			continue
		}
		available = append(available, r)
	}

	if len(available) == 0 {
		if fallback != nil {
			p.logger.Debug("All candidates cooling down, using soonest to recover",
				zap.String("endpoint", fallback.name),
				zap.Time("cooldown_until", fallbackExpiry))
			return fallback, nil
		}
		// Every candidate was skipped this call.
		return nil, ErrNoEndpointForClass
	}

	sort.SliceStable(available, func(i, j int) bool {
		if available[i].priority != available[j].priority {
			return available[i].priority < available[j].priority
		}
		if available[i].errors != available[j].errors {
			return available[i].errors < available[j].errors
		}
		return available[i].load < available[j].load
	})

	return available[0].ep, nil
}

// RecordSuccess notes a completed request. It increments the request counter
// and clears the consecutive-error streak; the historical error count keeps
// its value so selection still remembers flaky endpoints.
func (p *Pool) RecordSuccess(ep *Endpoint) {
	ep.mu.Lock()
	ep.requestCount++
	recovered := ep.consecutiveErrors > 0
	ep.consecutiveErrors = 0
	ep.lastUsed = time.Now()
	ep.mu.Unlock()

	if recovered && p.sink != nil {
		p.sink.EndpointRecovered(ep.name)
	}
}

// RecordFailure notes a failed request. Once the consecutive-error streak
// reaches the threshold the endpoint cools down for min(max, 2^n * base),
// where n is the streak length. The expiry never moves backwards while the
// streak continues.
func (p *Pool) RecordFailure(ep *Endpoint) {
	now := time.Now()

	ep.mu.Lock()
	ep.requestCount++
	ep.errorCount++
	ep.consecutiveErrors++
	ep.lastUsed = now

	var cooled bool
	var until time.Time
	var streak int
	if ep.consecutiveErrors >= p.cooldown.Threshold {
		until = now.Add(p.cooldownDelay(ep.consecutiveErrors))
		if until.After(ep.cooldownUntil) {
			ep.cooldownUntil = until
			cooled = true
			streak = ep.consecutiveErrors
		}
	}
	ep.mu.Unlock()

	if cooled {
		p.logger.Warn("Endpoint entered cooldown",
			zap.String("endpoint", ep.name),
			zap.Int("consecutive_errors", streak),
			zap.Time("until", until))
		if p.sink != nil {
			p.sink.EndpointCooledDown(ep.name, until, streak)
		}
	}
}

// RecordProbeSuccess notes a passed health probe. Besides clearing the
// streak it halves the historical error count, so an endpoint that stays
// healthy gradually regains selection rank.
func (p *Pool) RecordProbeSuccess(ep *Endpoint) {
	ep.mu.Lock()
	ep.requestCount++
	recovered := ep.consecutiveErrors > 0
	ep.consecutiveErrors = 0
	ep.errorCount /= 2
	ep.lastUsed = time.Now()
	ep.mu.Unlock()

	if recovered && p.sink != nil {
		p.sink.EndpointRecovered(ep.name)
	}
}

func (p *Pool) cooldownDelay(consecutive int) time.Duration {
	shift := uint(consecutive)
	if shift > maxBackoffShift {
		shift = maxBackoffShift
	}
	delay := p.cooldown.BaseDelay << shift
	if delay <= 0 || delay > p.cooldown.MaxDelay {
		delay = p.cooldown.MaxDelay
	}
	return delay
}

// Stats snapshots every endpoint in configuration order.
func (p *Pool) Stats() []Stats {
	now := time.Now()
	out := make([]Stats, 0, len(p.endpoints))
	for _, ep := range p.endpoints {
		out = append(out, ep.Snapshot(now))
	}
	return out
}
