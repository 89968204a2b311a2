package contracts

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"fyBorrow/internal/chain"
)

// Previewer executes read-only calls.
type Previewer interface {
	Preview(ctx context.Context, call chain.Call) ([]byte, error)
}

// TokenMeta captures ERC20 metadata.
type TokenMeta struct {
	Address  common.Address
	Decimals uint8
	Symbol   string
}

// TokenMetaCache caches token metadata by address.
type TokenMetaCache struct {
	mu   sync.RWMutex
	data map[common.Address]TokenMeta
}

func NewTokenMetaCache() *TokenMetaCache {
	return &TokenMetaCache{data: make(map[common.Address]TokenMeta)}
}

func (c *TokenMetaCache) Get(address common.Address) (TokenMeta, bool) {
	c.mu.RLock()
	meta, ok := c.data[address]
	c.mu.RUnlock()
	return meta, ok
}

func (c *TokenMetaCache) Set(address common.Address, meta TokenMeta) {
	c.mu.Lock()
	c.data[address] = meta
	c.mu.Unlock()
}

// TokenReader reads ERC20 state needed to validate and skip borrow steps.
type TokenReader struct {
	ledger Previewer
	cache  *TokenMetaCache
	logger *zap.Logger
}

func NewTokenReader(ledger Previewer, cache *TokenMetaCache, logger *zap.Logger) *TokenReader {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cache == nil {
		cache = NewTokenMetaCache()
	}
	return &TokenReader{ledger: ledger, cache: cache, logger: logger}
}

// Meta loads decimals and symbol, caching the result. A missing symbol is not an error.
func (r *TokenReader) Meta(ctx context.Context, token common.Address) (TokenMeta, error) {
	if meta, ok := r.cache.Get(token); ok {
		return meta, nil
	}

	meta := TokenMeta{Address: token}
	values, err := r.call(ctx, token, "decimals")
	if err != nil {
		return meta, err
	}
	decimals, err := asUint8(values[0])
	if err != nil {
		return meta, fmt.Errorf("decimals: %w", err)
	}
	meta.Decimals = decimals

	if values, err := r.call(ctx, token, "symbol"); err == nil {
		if symbol, ok := values[0].(string); ok {
			meta.Symbol = symbol
		}
	} else {
		r.logger.Debug("symbol call failed", zap.String("token", token.Hex()), zap.Error(err))
	}

	r.cache.Set(token, meta)
	return meta, nil
}

// BalanceOf returns the token balance of account.
func (r *TokenReader) BalanceOf(ctx context.Context, token, account common.Address) (*big.Int, error) {
	values, err := r.call(ctx, token, "balanceOf", account)
	if err != nil {
		return nil, err
	}
	return asBigInt(values[0])
}

// Allowance returns how much spender may pull from owner.
func (r *TokenReader) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	values, err := r.call(ctx, token, "allowance", owner, spender)
	if err != nil {
		return nil, err
	}
	return asBigInt(values[0])
}

// Join resolves the address custodying assetID, which is the allowance spender.
func (r *TokenReader) Join(ctx context.Context, helper common.Address, assetID [6]byte) (common.Address, error) {
	call, err := JoinCall(helper, assetID)
	if err != nil {
		return common.Address{}, err
	}
	resp, err := r.ledger.Preview(ctx, call)
	if err != nil {
		return common.Address{}, fmt.Errorf("call joins: %w", err)
	}
	parsed, err := HelperABI()
	if err != nil {
		return common.Address{}, err
	}
	values, err := parsed.Unpack("joins", resp)
	if err != nil {
		return common.Address{}, fmt.Errorf("unpack joins: %w", err)
	}
	return asAddress(values[0])
}

func (r *TokenReader) call(ctx context.Context, token common.Address, method string, args ...interface{}) ([]interface{}, error) {
	parsed, err := ERC20ABI()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	return callMethod(ctx, r.ledger, parsed, token, "erc20", method, args...)
}

func callMethod(ctx context.Context, ledger Previewer, parsed abi.ABI, to common.Address, label, method string, args ...interface{}) ([]interface{}, error) {
	call, err := packCall(parsed, to, label, method, args...)
	if err != nil {
		return nil, err
	}
	resp, err := ledger.Preview(ctx, call)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := parsed.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("unpack %s: empty result", method)
	}
	return values, nil
}

func asAddress(value interface{}) (common.Address, error) {
	switch v := value.(type) {
	case common.Address:
		return v, nil
	case *common.Address:
		return *v, nil
	default:
		return common.Address{}, fmt.Errorf("unsupported address type %T", value)
	}
}

func asBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		return new(big.Int).Set(v), nil
	case big.Int:
		return new(big.Int).Set(&v), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint16:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	default:
		return nil, fmt.Errorf("unsupported int type %T", value)
	}
}

func asUint8(value interface{}) (uint8, error) {
	switch v := value.(type) {
	case uint8:
		return v, nil
	case *big.Int:
		if !v.IsUint64() || v.Uint64() > 255 {
			return 0, fmt.Errorf("uint8 overflow: %s", v)
		}
		return uint8(v.Uint64()), nil
	default:
		return 0, fmt.Errorf("unsupported uint8 type %T", value)
	}
}
