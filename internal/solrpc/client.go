// internal/solrpc/client.go
package solrpc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-rpcmux/internal/cache"
	"github.com/rovshanmuradov/solana-rpcmux/internal/dispatch"
	"github.com/rovshanmuradov/solana-rpcmux/internal/endpoint"
	"github.com/rovshanmuradov/solana-rpcmux/internal/throttle"
)

// Client is the typed Solana RPC surface of the access layer. Every call is
// funneled through the dispatcher, so caching, throttling, endpoint routing
// and failover apply uniformly without the caller knowing about them.
type Client struct {
	dispatcher *dispatch.Dispatcher
	store      *cache.Store
	throttler  *throttle.Throttler
	pool       *endpoint.Pool
	logger     *zap.Logger
}

var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrConfirmationTimeout = errors.New("confirmation timeout")
)

// IsAccountNotFoundError reports whether the error means a missing account.
func IsAccountNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrAccountNotFound) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "not found")
}

// facadeMethods is every RPC method this client can emit. Each one must be
// classified, which NewClient checks once instead of every call site.
var facadeMethods = []string{
	"getBalance",
	"getAccountInfo",
	"getMultipleAccounts",
	"getProgramAccounts",
	"getTokenAccountBalance",
	"getTokenAccountsByOwner",
	"getSlot",
	"getLatestBlockhash",
	"getTransaction",
	"getSignatureStatuses",
	"sendTransaction",
	"simulateTransaction",
}

// NewClient wires the facade over the dispatcher and its collaborators.
func NewClient(dispatcher *dispatch.Dispatcher, store *cache.Store, throttler *throttle.Throttler,
	pool *endpoint.Pool, logger *zap.Logger) (*Client, error) {
	if err := dispatcher.Policies().ValidateMethods(facadeMethods); err != nil {
		return nil, fmt.Errorf("method classification: %w", err)
	}
	return &Client{
		dispatcher: dispatcher,
		store:      store,
		throttler:  throttler,
		pool:       pool,
		logger:     logger.Named("solrpc"),
	}, nil
}

const (
	confirmPollInterval = 500 * time.Millisecond
	confirmTimeout      = 30 * time.Second
)

// ConfirmTransaction polls signature status until the transaction reaches
// confirmed or finalized commitment, the poll budget runs out, or ctx ends.
func (c *Client) ConfirmTransaction(ctx context.Context, signature solana.Signature) error {
	ticker := time.NewTicker(confirmPollInterval)
	defer ticker.Stop()
	timeout := time.After(confirmTimeout)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timeout:
			return ErrConfirmationTimeout
		case <-ticker.C:
			statuses, err := c.GetSignatureStatuses(ctx, signature)
			if err != nil {
				c.logger.Warn("Error getting signature statuses", zap.Error(err))
				continue
			}
			if statuses == nil || len(statuses.Value) == 0 || statuses.Value[0] == nil {
				continue
			}
			status := statuses.Value[0]
			if status.Err != nil {
				return fmt.Errorf("transaction %s failed on-chain: %v", signature, status.Err)
			}
			if status.ConfirmationStatus == rpc.ConfirmationStatusFinalized ||
				status.ConfirmationStatus == rpc.ConfirmationStatusConfirmed {
				return nil
			}
		}
	}
}

// Snapshot aggregates counters from every layer of the access path.
type Snapshot struct {
	Timestamp time.Time        `json:"timestamp"`
	Dispatch  dispatch.Stats   `json:"dispatch"`
	Cache     cache.Stats      `json:"cache"`
	Throttle  throttle.Stats   `json:"throttle"`
	Endpoints []endpoint.Stats `json:"endpoints"`
}

// Stats returns a point-in-time view across dispatcher, cache, throttler and
// the endpoint pool.
func (c *Client) Stats() Snapshot {
	return Snapshot{
		Timestamp: time.Now(),
		Dispatch:  c.dispatcher.Stats(),
		Cache:     c.store.Stats(),
		Throttle:  c.throttler.GetStats(),
		Endpoints: c.pool.Stats(),
	}
}
