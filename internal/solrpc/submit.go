// internal/solrpc/submit.go
package solrpc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-rpcmux/internal/endpoint"
)

// SendTransaction submits a signed transaction. Results are never cached and
// a resubmission happens at most once, only when the first attempt failed at
// the network level before the node could have accepted it.
func (c *Client) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	return c.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{})
}

// SendTransactionWithOpts submits a signed transaction with explicit options.
func (c *Client) SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error) {
	raw, err := c.dispatcher.Call(ctx, "sendTransaction", nil,
		func(ctx context.Context, ep *endpoint.Endpoint) (interface{}, error) {
			return ep.Client().SendTransactionWithOpts(ctx, tx, opts)
		})
	if err != nil {
		c.logger.Error("SendTransaction error", zap.Error(err))
		return solana.Signature{}, err
	}

	var sig solana.Signature
	if err := json.Unmarshal(raw, &sig); err != nil {
		return solana.Signature{}, fmt.Errorf("decode sendTransaction result: %w", err)
	}
	return sig, nil
}

// SimulateTransaction dry-runs the transaction against current state.
func (c *Client) SimulateTransaction(ctx context.Context, tx *solana.Transaction) (*rpc.SimulateTransactionResponse, error) {
	raw, err := c.dispatcher.Call(ctx, "simulateTransaction", nil,
		func(ctx context.Context, ep *endpoint.Endpoint) (interface{}, error) {
			return ep.Client().SimulateTransaction(ctx, tx)
		})
	if err != nil {
		c.logger.Error("SimulateTransaction error", zap.Error(err))
		return nil, err
	}

	var out rpc.SimulateTransactionResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode simulateTransaction result: %w", err)
	}
	return &out, nil
}

// GetSignatureStatuses reads confirmation state for the given signatures. It
// rides the submission route so confirmation polls land on the same provider
// set the transaction went to, and is never served from cache.
func (c *Client) GetSignatureStatuses(ctx context.Context, signatures ...solana.Signature) (*rpc.GetSignatureStatusesResult, error) {
	raw, err := c.dispatcher.Call(ctx, "getSignatureStatuses", nil,
		func(ctx context.Context, ep *endpoint.Endpoint) (interface{}, error) {
			return ep.Client().GetSignatureStatuses(ctx, false, signatures...)
		})
	if err != nil {
		c.logger.Error("GetSignatureStatuses error", zap.Error(err))
		return nil, err
	}

	var out rpc.GetSignatureStatusesResult
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode getSignatureStatuses result: %w", err)
	}
	return &out, nil
}
