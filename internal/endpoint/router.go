// internal/endpoint/router.go
package endpoint

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-rpcmux/internal/opclass"
)

// Router maps operation classes to their eligible endpoints. The mapping is
// fixed at startup; per-call ranking within a class is delegated to the pool.
type Router struct {
	pool   *Pool
	routes map[opclass.Class][]*Endpoint
	logger *zap.Logger
}

// NewRouter precomputes the class routing table from the pool's endpoints.
func NewRouter(pool *Pool, logger *zap.Logger) *Router {
	routes := make(map[opclass.Class][]*Endpoint, len(opclass.All()))
	for _, class := range opclass.All() {
		routes[class] = pool.ForClass(class)
	}
	return &Router{
		pool:   pool,
		routes: routes,
		logger: logger.Named("router"),
	}
}

// Route picks the best endpoint for the class, excluding names in skip.
// Unknown classes and classes with no assigned endpoint fail immediately.
func (r *Router) Route(class opclass.Class, skip map[string]struct{}) (*Endpoint, error) {
	if !class.Valid() {
		return nil, fmt.Errorf("unknown operation class %q", class)
	}
	candidates, ok := r.routes[class]
	if !ok || len(candidates) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoEndpointForClass, class)
	}
	return r.pool.SelectBest(candidates, skip)
}

// Eligible returns how many endpoints serve the class.
func (r *Router) Eligible(class opclass.Class) int {
	return len(r.routes[class])
}
