// internal/endpoint/router_test.go
package endpoint

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-rpcmux/internal/opclass"
)

func TestRouteScopesToAssignedClass(t *testing.T) {
	pool := newTestPool(t, testConfigs(), CooldownConfig{})
	router := NewRouter(pool, zap.NewNop())

	// Only primary serves submit-transaction in the fixture.
	ep, err := router.Route(opclass.SubmitTransaction, nil)
	require.NoError(t, err)
	assert.Equal(t, "primary", ep.Name())

	assert.Equal(t, 2, router.Eligible(opclass.ReadBalance))
	assert.Equal(t, 1, router.Eligible(opclass.SubmitTransaction))
}

func TestRouteRejectsUnknownClass(t *testing.T) {
	pool := newTestPool(t, testConfigs(), CooldownConfig{})
	router := NewRouter(pool, zap.NewNop())

	_, err := router.Route(opclass.Class("read-everything"), nil)
	assert.Error(t, err, "classes outside the fixed set must fail fast")
}

func TestRouteFailsWhenClassHasNoEndpoints(t *testing.T) {
	pool := newTestPool(t, testConfigs(), CooldownConfig{})
	router := NewRouter(pool, zap.NewNop())

	// Nothing in the fixture serves program scans.
	_, err := router.Route(opclass.ReadProgramAccounts, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoEndpointForClass)
}

func TestRoutePrefersHealthyEndpointWithinClass(t *testing.T) {
	pool := newTestPool(t, testConfigs(), CooldownConfig{
		Threshold: 1,
		BaseDelay: 30 * time.Second,
		MaxDelay:  60 * time.Second,
	})
	router := NewRouter(pool, zap.NewNop())

	pool.RecordFailure(pool.Get("primary"))

	ep, err := router.Route(opclass.ReadAccount, nil)
	require.NoError(t, err)
	assert.Equal(t, "backup", ep.Name(), "cooling endpoint must be routed around")
}
