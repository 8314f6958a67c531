// internal/opclass/opclass.go
package opclass

import (
	"fmt"
	"time"
)

// Class is a closed category of RPC calls sharing one caching, routing and
// retry policy. Policy is attached to the class, never to a raw method string.
type Class string

const (
	SubmitTransaction   Class = "submit-transaction"
	ReadBalance         Class = "read-balance"
	ReadAccount         Class = "read-account"
	ReadPrice           Class = "read-price"
	ReadSlot            Class = "read-slot"
	ReadProgramAccounts Class = "read-program-accounts"
)

// All returns every known class in a stable order.
func All() []Class {
	return []Class{
		SubmitTransaction,
		ReadBalance,
		ReadAccount,
		ReadPrice,
		ReadSlot,
		ReadProgramAccounts,
	}
}

// Valid reports whether the class is one of the known set.
func (c Class) Valid() bool {
	switch c {
	case SubmitTransaction, ReadBalance, ReadAccount, ReadPrice, ReadSlot, ReadProgramAccounts:
		return true
	}
	return false
}

// Parse converts a configuration string into a Class, rejecting unknown names.
func Parse(s string) (Class, error) {
	c := Class(s)
	if !c.Valid() {
		return "", fmt.Errorf("unknown operation class %q", s)
	}
	return c, nil
}

// Policy describes how calls of one class behave in the access layer.
type Policy struct {
	// TTL is the cache lifetime of a successful result. Zero disables caching.
	TTL time.Duration
	// Cacheable marks whether results may ever be served from cache.
	Cacheable bool
	// MaxRetries is the number of additional endpoints tried after a failure.
	MaxRetries int
}

// Default TTLs. Balance and account reads stay fresh for tens of seconds,
// slot and blockhash reads shorter since they are time-sensitive, program
// account scans a little longer because they are expensive upstream.
const (
	defaultBalanceTTL  = 30 * time.Second
	defaultAccountTTL  = 30 * time.Second
	defaultPriceTTL    = 10 * time.Second
	defaultSlotTTL     = 15 * time.Second
	defaultProgramTTL  = 60 * time.Second
	historicalReadTTL  = 6 * time.Hour
	defaultReadRetries = 2
)

// methodClasses is the total mapping from RPC method name to class. A method
// missing here is a configuration error surfaced at startup, not at call time.
var methodClasses = map[string]Class{
	"sendTransaction":         SubmitTransaction,
	"simulateTransaction":     SubmitTransaction,
	"getSignatureStatuses":    SubmitTransaction,
	"getBalance":              ReadBalance,
	"getAccountInfo":          ReadAccount,
	"getMultipleAccounts":     ReadAccount,
	"getTokenAccountsByOwner": ReadAccount,
	"getTransaction":          ReadAccount,
	"getTokenAccountBalance":  ReadPrice,
	"getSlot":                 ReadSlot,
	"getLatestBlockhash":      ReadSlot,
	"getProgramAccounts":      ReadProgramAccounts,
}

// methodTTLOverrides carries the few methods whose lifetime diverges from
// their class. Finalized transactions are immutable, so lookups keep for hours.
var methodTTLOverrides = map[string]time.Duration{
	"getTransaction": historicalReadTTL,
}

// Policies resolves classes and policies for the dispatcher and router.
type Policies struct {
	byClass map[Class]Policy
}

// DefaultPolicies builds the built-in policy table. Submission is never
// cached and retried at most once, since resubmitting can have side effects.
func DefaultPolicies() *Policies {
	return &Policies{
		byClass: map[Class]Policy{
			SubmitTransaction:   {TTL: 0, Cacheable: false, MaxRetries: 1},
			ReadBalance:         {TTL: defaultBalanceTTL, Cacheable: true, MaxRetries: defaultReadRetries},
			ReadAccount:         {TTL: defaultAccountTTL, Cacheable: true, MaxRetries: defaultReadRetries},
			ReadPrice:           {TTL: defaultPriceTTL, Cacheable: true, MaxRetries: defaultReadRetries},
			ReadSlot:            {TTL: defaultSlotTTL, Cacheable: true, MaxRetries: defaultReadRetries},
			ReadProgramAccounts: {TTL: defaultProgramTTL, Cacheable: true, MaxRetries: defaultReadRetries},
		},
	}
}

// WithTTL overrides one class's TTL, typically from configuration. Setting a
// TTL on the submit class is rejected because submission must stay uncached.
func (p *Policies) WithTTL(c Class, ttl time.Duration) error {
	if !c.Valid() {
		return fmt.Errorf("unknown operation class %q", c)
	}
	if c == SubmitTransaction && ttl > 0 {
		return fmt.Errorf("class %q cannot be cached", c)
	}
	pol := p.byClass[c]
	pol.TTL = ttl
	pol.Cacheable = ttl > 0
	p.byClass[c] = pol
	return nil
}

// WithRetries overrides the retry budget for every read class. The submit
// class keeps its single idempotency-safe retry regardless.
func (p *Policies) WithRetries(n int) error {
	if n < 0 {
		return fmt.Errorf("negative retry count %d", n)
	}
	for c, pol := range p.byClass {
		if c == SubmitTransaction {
			continue
		}
		pol.MaxRetries = n
		p.byClass[c] = pol
	}
	return nil
}

// ClassOf resolves the class of an RPC method name.
func (p *Policies) ClassOf(method string) (Class, error) {
	c, ok := methodClasses[method]
	if !ok {
		return "", fmt.Errorf("unclassified RPC method %q", method)
	}
	return c, nil
}

// ForMethod resolves both the class and the effective policy of a method,
// applying per-method TTL overrides on top of the class policy.
func (p *Policies) ForMethod(method string) (Class, Policy, error) {
	c, err := p.ClassOf(method)
	if err != nil {
		return "", Policy{}, err
	}
	pol := p.byClass[c]
	if ttl, ok := methodTTLOverrides[method]; ok && pol.Cacheable {
		pol.TTL = ttl
	}
	return c, pol, nil
}

// ForClass returns the policy attached to a class.
func (p *Policies) ForClass(c Class) (Policy, error) {
	pol, ok := p.byClass[c]
	if !ok {
		return Policy{}, fmt.Errorf("unknown operation class %q", c)
	}
	return pol, nil
}

// ValidateMethods checks that every listed method is classified, so an
// unrecognized method fails at startup instead of defaulting silently.
func (p *Policies) ValidateMethods(methods []string) error {
	for _, m := range methods {
		if _, ok := methodClasses[m]; !ok {
			return fmt.Errorf("unclassified RPC method %q", m)
		}
	}
	return nil
}
