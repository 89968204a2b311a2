package contracts

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"fyBorrow/internal/model"
)

// PoolReader reads reserve snapshots from a pool.
type PoolReader struct {
	ledger Previewer
	pool   common.Address
}

func NewPoolReader(ledger Previewer, pool common.Address) *PoolReader {
	return &PoolReader{ledger: ledger, pool: pool}
}

// Address returns the pool address.
func (r *PoolReader) Address() common.Address {
	return r.pool
}

// ReadState returns live balances, cached reserves and the derived pending amounts.
func (r *PoolReader) ReadState(ctx context.Context) (model.PoolState, error) {
	parsed, err := PoolABI()
	if err != nil {
		return model.PoolState{}, fmt.Errorf("parse pool abi: %w", err)
	}

	baseLive, err := r.readUint(ctx, "getBaseBalance")
	if err != nil {
		return model.PoolState{}, err
	}
	fyLive, err := r.readUint(ctx, "getFYTokenBalance")
	if err != nil {
		return model.PoolState{}, err
	}

	values, err := callMethod(ctx, r.ledger, parsed, r.pool, "pool", "getCache")
	if err != nil {
		return model.PoolState{}, err
	}
	if len(values) < 2 {
		return model.PoolState{}, fmt.Errorf("getCache: expected 2+ values, got %d", len(values))
	}
	baseCached, err := toUint256(values[0])
	if err != nil {
		return model.PoolState{}, fmt.Errorf("base cached: %w", err)
	}
	fyCached, err := toUint256(values[1])
	if err != nil {
		return model.PoolState{}, fmt.Errorf("fy cached: %w", err)
	}

	return model.NewPoolState(baseLive, fyLive, baseCached, fyCached), nil
}

// Maturity returns the pool's maturity as a unix timestamp.
func (r *PoolReader) Maturity(ctx context.Context) (uint32, error) {
	parsed, err := PoolABI()
	if err != nil {
		return 0, err
	}
	values, err := callMethod(ctx, r.ledger, parsed, r.pool, "pool", "maturity")
	if err != nil {
		return 0, err
	}
	maturity, ok := values[0].(uint32)
	if !ok {
		return 0, fmt.Errorf("unexpected maturity type %T", values[0])
	}
	return maturity, nil
}

// FYToken returns the fyToken the pool trades against base.
func (r *PoolReader) FYToken(ctx context.Context) (common.Address, error) {
	parsed, err := PoolABI()
	if err != nil {
		return common.Address{}, err
	}
	values, err := callMethod(ctx, r.ledger, parsed, r.pool, "pool", "fyToken")
	if err != nil {
		return common.Address{}, err
	}
	return asAddress(values[0])
}

func (r *PoolReader) readUint(ctx context.Context, method string) (*uint256.Int, error) {
	parsed, err := PoolABI()
	if err != nil {
		return nil, err
	}
	values, err := callMethod(ctx, r.ledger, parsed, r.pool, "pool", method)
	if err != nil {
		return nil, err
	}
	out, err := toUint256(values[0])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	return out, nil
}

func toUint256(value interface{}) (*uint256.Int, error) {
	v, err := asBigInt(value)
	if err != nil {
		return nil, err
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("negative amount: %s", v)
	}
	out, overflow := uint256.FromBig(v)
	if overflow {
		return nil, fmt.Errorf("amount overflows 256 bits: %s", v)
	}
	return out, nil
}
