package quote

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"fyBorrow/internal/contracts"
)

// U128Max is the largest amount the pool's fixed-point type can carry.
var U128Max = new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), 128), uint256.NewInt(1))

// Sampler observes the pool curve at a single input size. A non-nil error
// means the size is currently unevaluable, not that the output is zero.
type Sampler interface {
	Sample(ctx context.Context, input *uint256.Int) (*uint256.Int, error)
}

// CurveSampler samples the pool's sellFYTokenPreview.
type CurveSampler struct {
	ledger contracts.Previewer
	pool   common.Address
	logger *zap.Logger
}

func NewCurveSampler(ledger contracts.Previewer, pool common.Address, logger *zap.Logger) *CurveSampler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CurveSampler{ledger: ledger, pool: pool, logger: logger}
}

// Sample clamps input into [0, U128Max] before calling; it never retries.
func (s *CurveSampler) Sample(ctx context.Context, input *uint256.Int) (*uint256.Int, error) {
	clamped := clampU128(input)

	call, err := contracts.SellFYTokenPreviewCall(s.pool, clamped.ToBig())
	if err != nil {
		return nil, err
	}
	resp, err := s.ledger.Preview(ctx, call)
	if err != nil {
		s.logger.Debug("preview reverted", zap.Stringer("input", clamped), zap.Error(err))
		return nil, err
	}
	out, err := contracts.UnpackSellFYTokenPreview(resp)
	if err != nil {
		return nil, err
	}
	if out.Sign() < 0 {
		return nil, fmt.Errorf("negative preview output: %s", out)
	}
	value, overflow := uint256.FromBig(out)
	if overflow {
		return nil, fmt.Errorf("preview output overflows: %s", out)
	}
	return value, nil
}

func clampU128(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	if v.Gt(U128Max) {
		return new(uint256.Int).Set(U128Max)
	}
	return new(uint256.Int).Set(v)
}
