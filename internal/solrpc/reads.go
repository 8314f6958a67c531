// internal/solrpc/reads.go
package solrpc

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-rpcmux/internal/dispatch"
	"github.com/rovshanmuradov/solana-rpcmux/internal/endpoint"
)

// GetBalance returns the lamport balance of the account.
func (c *Client) GetBalance(ctx context.Context, pubkey solana.PublicKey) (uint64, error) {
	params := []interface{}{pubkey.String(), string(rpc.CommitmentConfirmed)}
	raw, err := c.dispatcher.Call(ctx, "getBalance", params,
		func(ctx context.Context, ep *endpoint.Endpoint) (interface{}, error) {
			return ep.Client().GetBalance(ctx, pubkey, rpc.CommitmentConfirmed)
		})
	if err != nil {
		c.logger.Error("GetBalance error", zap.String("pubkey", pubkey.String()), zap.Error(err))
		return 0, err
	}

	var out rpc.GetBalanceResult
	if err := json.Unmarshal(raw, &out); err != nil {
		return 0, fmt.Errorf("decode getBalance result: %w", err)
	}
	return out.Value, nil
}

// GetAccountInfo fetches one account. A missing account is reported as
// ErrAccountNotFound rather than an endpoint failure, so it neither triggers
// failover nor dents endpoint health.
func (c *Client) GetAccountInfo(ctx context.Context, pubkey solana.PublicKey) (*rpc.GetAccountInfoResult, error) {
	params := []interface{}{pubkey.String(), string(rpc.CommitmentConfirmed), "base64"}
	raw, err := c.dispatcher.Call(ctx, "getAccountInfo", params,
		func(ctx context.Context, ep *endpoint.Endpoint) (interface{}, error) {
			res, err := ep.Client().GetAccountInfoWithOpts(ctx, pubkey, &rpc.GetAccountInfoOpts{
				Encoding:   solana.EncodingBase64,
				Commitment: rpc.CommitmentConfirmed,
			})
			if err != nil {
				if errors.Is(err, rpc.ErrNotFound) {
					return &rpc.GetAccountInfoResult{}, nil
				}
				return nil, err
			}
			return res, nil
		})
	if err != nil {
		c.logger.Debug("GetAccountInfo error", zap.String("pubkey", pubkey.String()), zap.Error(err))
		return nil, err
	}

	var out rpc.GetAccountInfoResult
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode getAccountInfo result: %w", err)
	}
	if out.Value == nil {
		return nil, ErrAccountNotFound
	}
	return &out, nil
}

// GetAccountDataInto fetches the account and decodes its binary data into dst.
func (c *Client) GetAccountDataInto(ctx context.Context, pubkey solana.PublicKey, dst interface{}) error {
	res, err := c.GetAccountInfo(ctx, pubkey)
	if err != nil {
		return err
	}
	data := res.Value.Data.GetBinary()
	return bin.NewBinDecoder(data).Decode(dst)
}

// GetMultipleAccounts fetches up to a hundred accounts in one request.
func (c *Client) GetMultipleAccounts(ctx context.Context, pubkeys []solana.PublicKey) (*rpc.GetMultipleAccountsResult, error) {
	if len(pubkeys) == 0 {
		return &rpc.GetMultipleAccountsResult{}, nil
	}

	keys := make([]string, len(pubkeys))
	for i, pk := range pubkeys {
		keys[i] = pk.String()
	}
	params := []interface{}{keys, string(rpc.CommitmentConfirmed), "base64"}

	raw, err := c.dispatcher.Call(ctx, "getMultipleAccounts", params,
		func(ctx context.Context, ep *endpoint.Endpoint) (interface{}, error) {
			return ep.Client().GetMultipleAccountsWithOpts(ctx, pubkeys, &rpc.GetMultipleAccountsOpts{
				Commitment: rpc.CommitmentConfirmed,
				Encoding:   solana.EncodingBase64,
			})
		})
	if err != nil {
		c.logger.Debug("GetMultipleAccounts error", zap.Int("count", len(pubkeys)), zap.Error(err))
		return nil, err
	}

	var out rpc.GetMultipleAccountsResult
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode getMultipleAccounts result: %w", err)
	}
	return &out, nil
}

// GetProgramAccounts scans all accounts owned by the program, optionally
// narrowed by a leading discriminator.
func (c *Client) GetProgramAccounts(ctx context.Context, programID solana.PublicKey, discriminator []byte) (rpc.GetProgramAccountsResult, error) {
	opts := rpc.GetProgramAccountsOpts{
		Commitment: rpc.CommitmentConfirmed,
		Encoding:   solana.EncodingBase64,
	}
	if len(discriminator) > 0 {
		opts.Filters = append(opts.Filters, rpc.RPCFilter{
			Memcmp: &rpc.RPCFilterMemcmp{
				Offset: 0,
				Bytes:  discriminator,
			},
		})
	}

	params := []interface{}{programID.String(), hex.EncodeToString(discriminator), string(rpc.CommitmentConfirmed)}
	raw, err := c.dispatcher.Call(ctx, "getProgramAccounts", params,
		func(ctx context.Context, ep *endpoint.Endpoint) (interface{}, error) {
			return ep.Client().GetProgramAccountsWithOpts(ctx, programID, &opts)
		})
	if err != nil {
		c.logger.Debug("GetProgramAccounts error", zap.String("program_id", programID.String()), zap.Error(err))
		return nil, err
	}

	var out rpc.GetProgramAccountsResult
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode getProgramAccounts result: %w", err)
	}
	return out, nil
}

// GetTokenAccountBalance returns the token balance of an SPL token account.
func (c *Client) GetTokenAccountBalance(ctx context.Context, account solana.PublicKey) (*rpc.GetTokenAccountBalanceResult, error) {
	params := []interface{}{account.String(), string(rpc.CommitmentConfirmed)}
	raw, err := c.dispatcher.Call(ctx, "getTokenAccountBalance", params,
		func(ctx context.Context, ep *endpoint.Endpoint) (interface{}, error) {
			return ep.Client().GetTokenAccountBalance(ctx, account, rpc.CommitmentConfirmed)
		})
	if err != nil {
		c.logger.Debug("GetTokenAccountBalance error", zap.String("account", account.String()), zap.Error(err))
		return nil, err
	}

	var out rpc.GetTokenAccountBalanceResult
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode getTokenAccountBalance result: %w", err)
	}
	return &out, nil
}

// GetTokenAccountsByOwner lists the owner's token accounts for one mint.
func (c *Client) GetTokenAccountsByOwner(ctx context.Context, owner, mint solana.PublicKey) (*rpc.GetTokenAccountsResult, error) {
	params := []interface{}{owner.String(), mint.String(), string(rpc.CommitmentConfirmed)}
	raw, err := c.dispatcher.Call(ctx, "getTokenAccountsByOwner", params,
		func(ctx context.Context, ep *endpoint.Endpoint) (interface{}, error) {
			return ep.Client().GetTokenAccountsByOwner(ctx, owner,
				&rpc.GetTokenAccountsConfig{Mint: &mint},
				&rpc.GetTokenAccountsOpts{
					Commitment: rpc.CommitmentConfirmed,
					Encoding:   solana.EncodingBase64,
				})
		})
	if err != nil {
		c.logger.Debug("GetTokenAccountsByOwner error", zap.String("owner", owner.String()), zap.Error(err))
		return nil, err
	}

	var out rpc.GetTokenAccountsResult
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode getTokenAccountsByOwner result: %w", err)
	}
	return &out, nil
}

// GetSlot returns the current slot at confirmed commitment.
func (c *Client) GetSlot(ctx context.Context) (uint64, error) {
	params := []interface{}{string(rpc.CommitmentConfirmed)}
	raw, err := c.dispatcher.Call(ctx, "getSlot", params,
		func(ctx context.Context, ep *endpoint.Endpoint) (interface{}, error) {
			return ep.Client().GetSlot(ctx, rpc.CommitmentConfirmed)
		})
	if err != nil {
		c.logger.Error("GetSlot error", zap.Error(err))
		return 0, err
	}

	var out uint64
	if err := json.Unmarshal(raw, &out); err != nil {
		return 0, fmt.Errorf("decode getSlot result: %w", err)
	}
	return out, nil
}

// GetLatestBlockhash returns the latest finalized blockhash together with its
// last valid block height.
func (c *Client) GetLatestBlockhash(ctx context.Context) (*rpc.GetLatestBlockhashResult, error) {
	params := []interface{}{string(rpc.CommitmentFinalized)}
	raw, err := c.dispatcher.Call(ctx, "getLatestBlockhash", params,
		func(ctx context.Context, ep *endpoint.Endpoint) (interface{}, error) {
			return ep.Client().GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
		})
	if err != nil {
		c.logger.Error("GetLatestBlockhash error", zap.Error(err))
		return nil, err
	}

	var out rpc.GetLatestBlockhashResult
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode getLatestBlockhash result: %w", err)
	}
	return &out, nil
}

// GetTransaction looks up a confirmed transaction by signature. A transaction
// that is not visible yet returns ErrTransactionNotFound and is not cached,
// since it may confirm moments later; found transactions are immutable and
// cache for a long time.
func (c *Client) GetTransaction(ctx context.Context, signature solana.Signature) (*rpc.GetTransactionResult, error) {
	params := []interface{}{signature.String(), string(rpc.CommitmentConfirmed)}
	raw, err := c.dispatcher.Call(ctx, "getTransaction", params,
		func(ctx context.Context, ep *endpoint.Endpoint) (interface{}, error) {
			maxVersion := uint64(0)
			res, err := ep.Client().GetTransaction(ctx, signature, &rpc.GetTransactionOpts{
				Encoding:                       solana.EncodingBase64,
				Commitment:                     rpc.CommitmentConfirmed,
				MaxSupportedTransactionVersion: &maxVersion,
			})
			if err != nil {
				if errors.Is(err, rpc.ErrNotFound) {
					return dispatch.Uncacheable{Value: nil}, nil
				}
				return nil, err
			}
			return res, nil
		})
	if err != nil {
		c.logger.Debug("GetTransaction error", zap.String("signature", signature.String()), zap.Error(err))
		return nil, err
	}

	var out *rpc.GetTransactionResult
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode getTransaction result: %w", err)
	}
	if out == nil {
		return nil, ErrTransactionNotFound
	}
	return out, nil
}
