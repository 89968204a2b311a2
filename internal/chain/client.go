package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
)

// ErrNoSigner is returned by Submit when the client has no private key.
var ErrNoSigner = errors.New("no signer configured")

// Options configures a Client.
type Options struct {
	PrivateKey   string
	LogBatchSize uint64
	MaxRetries   int
	RetryBackoff time.Duration
	Logger       *zap.Logger
}

// Client wraps go-ethereum RPC and implements preview/submit semantics.
type Client struct {
	rpcClient *rpc.Client
	ethClient *ethclient.Client

	key          *ecdsa.PrivateKey
	from         common.Address
	logBatchSize uint64
	retry        retryPolicy
	logger       *zap.Logger

	mu      sync.Mutex
	chainID *big.Int
}

// NewClient creates a new chain client from the RPC URL.
func NewClient(ctx context.Context, rpcURL string, opts Options) (*Client, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	batch := opts.LogBatchSize
	if batch == 0 {
		batch = 2000
	}

	c := &Client{
		logBatchSize: batch,
		retry:        retryPolicy{maxRetries: opts.MaxRetries, baseDelay: opts.RetryBackoff},
		logger:       logger,
	}

	if opts.PrivateKey != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(opts.PrivateKey), "0x"))
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		c.key = key
		c.from = crypto.PubkeyToAddress(key.PublicKey)
	}

	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}
	c.rpcClient = rpcClient
	c.ethClient = ethclient.NewClient(rpcClient)

	return c, nil
}

// Close closes the underlying RPC client.
func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

// Signer returns the signing address, or nil when the client is read-only.
func (c *Client) Signer() *common.Address {
	if c.key == nil {
		return nil
	}
	from := c.from
	return &from
}

// ChainID returns the chain ID, cached after the first successful call.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	c.mu.Lock()
	cached := c.chainID
	c.mu.Unlock()
	if cached != nil {
		return new(big.Int).Set(cached), nil
	}

	var id *big.Int
	err := c.retry.do(ctx, func(ctx context.Context) error {
		var err error
		id, err = c.ethClient.ChainID(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("chain id: %w", err)
	}

	c.mu.Lock()
	c.chainID = id
	c.mu.Unlock()
	return new(big.Int).Set(id), nil
}

// CurrentBlockHeight returns the latest block number.
func (c *Client) CurrentBlockHeight(ctx context.Context) (uint64, error) {
	var height uint64
	err := c.retry.do(ctx, func(ctx context.Context) error {
		var err error
		height, err = c.ethClient.BlockNumber(ctx)
		return err
	})
	return height, err
}

// Preview simulates a call against the latest block without changing state.
// Reverts are returned unmodified so the revert payload stays reachable.
func (c *Client) Preview(ctx context.Context, call Call) ([]byte, error) {
	return c.ethClient.CallContract(ctx, c.callMsg(call), nil)
}

// Submit signs and broadcasts the call, then waits for it to be mined.
// A mined-but-failed transaction yields a *RevertError.
func (c *Client) Submit(ctx context.Context, call Call) (*types.Receipt, error) {
	if c.key == nil {
		return nil, ErrNoSigner
	}

	chainID, err := c.ChainID(ctx)
	if err != nil {
		return nil, err
	}

	msg := c.callMsg(call)
	gasLimit, err := c.ethClient.EstimateGas(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("estimate gas %s: %w", call.Label, err)
	}

	nonce, err := c.ethClient.PendingNonceAt(ctx, c.from)
	if err != nil {
		return nil, fmt.Errorf("pending nonce: %w", err)
	}
	gasPrice, err := c.ethClient.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggest gas price: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gasLimit,
		To:       &call.To,
		Value:    msg.Value,
		Data:     call.Data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), c.key)
	if err != nil {
		return nil, fmt.Errorf("sign %s: %w", call.Label, err)
	}

	if err := c.ethClient.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("send %s: %w", call.Label, err)
	}
	c.logger.Info("transaction sent",
		zap.String("call", call.Label),
		zap.String("tx_hash", signed.Hash().Hex()),
		zap.Uint64("nonce", nonce),
		zap.Uint64("gas", gasLimit),
	)

	receipt, err := bind.WaitMined(ctx, c.ethClient, signed)
	if err != nil {
		return nil, fmt.Errorf("wait mined %s: %w", signed.Hash().Hex(), err)
	}
	if receipt.Status == types.ReceiptStatusFailed {
		return receipt, c.replayRevert(ctx, msg, receipt)
	}

	c.logger.Info("transaction confirmed",
		zap.String("call", call.Label),
		zap.String("tx_hash", receipt.TxHash.Hex()),
		zap.Uint64("block_number", receipt.BlockNumber.Uint64()),
	)
	return receipt, nil
}

// replayRevert re-executes a failed call at its block to recover the revert data.
func (c *Client) replayRevert(ctx context.Context, msg ethereum.CallMsg, receipt *types.Receipt) error {
	revertErr := &RevertError{TxHash: receipt.TxHash}
	if receipt.BlockNumber != nil {
		revertErr.BlockNumber = receipt.BlockNumber.Uint64()
	}

	_, err := c.ethClient.CallContract(ctx, msg, receipt.BlockNumber)
	if err != nil {
		revertErr.Err = err
		revertErr.Data = revertData(err)
	} else {
		revertErr.Err = errors.New("replay succeeded, revert reason unavailable")
	}
	c.logger.Warn("transaction reverted",
		zap.String("tx_hash", receipt.TxHash.Hex()),
		zap.Uint64("block_number", revertErr.BlockNumber),
		zap.Int("revert_data_len", len(revertErr.Data)),
		zap.Error(revertErr.Err),
	)
	return revertErr
}

// EventLogsSince returns logs matching filter from fromHeight to the latest block, in chain order.
func (c *Client) EventLogsSince(ctx context.Context, fromHeight uint64, filter LogFilter) ([]types.Log, error) {
	latest, err := c.CurrentBlockHeight(ctx)
	if err != nil {
		return nil, fmt.Errorf("latest height: %w", err)
	}
	if fromHeight > latest {
		return nil, nil
	}

	ranges, err := SplitHeights(fromHeight, latest, c.logBatchSize)
	if err != nil {
		return nil, err
	}

	var out []types.Log
	for _, r := range ranges {
		query := ethereum.FilterQuery{
			FromBlock: new(big.Int).SetUint64(r.From),
			ToBlock:   new(big.Int).SetUint64(r.To),
			Addresses: filter.Addresses,
			Topics:    filter.Topics,
		}

		var logs []types.Log
		err := c.retry.do(ctx, func(ctx context.Context) error {
			var err error
			logs, err = c.ethClient.FilterLogs(ctx, query)
			if err != nil {
				c.logger.Warn("filter logs failed", zap.Error(err), zap.Uint64("from", r.From), zap.Uint64("to", r.To))
			}
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("filter logs %d-%d: %w", r.From, r.To, err)
		}
		out = append(out, logs...)
	}
	return out, nil
}

func (c *Client) callMsg(call Call) ethereum.CallMsg {
	value := call.Value
	if value == nil {
		value = new(big.Int)
	}
	to := call.To
	return ethereum.CallMsg{
		From:  c.from,
		To:    &to,
		Data:  call.Data,
		Value: value,
	}
}
