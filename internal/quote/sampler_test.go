package quote

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"fyBorrow/internal/chain"
	"fyBorrow/internal/contracts"
)

type previewFunc func(call chain.Call) ([]byte, error)

func (f previewFunc) Preview(_ context.Context, call chain.Call) ([]byte, error) {
	return f(call)
}

func decodePreviewInput(t *testing.T, call chain.Call) *big.Int {
	t.Helper()
	parsed, err := contracts.PoolABI()
	if err != nil {
		t.Fatalf("abi: %v", err)
	}
	method := parsed.Methods["sellFYTokenPreview"]
	values, err := method.Inputs.Unpack(call.Data[4:])
	if err != nil {
		t.Fatalf("unpack input: %v", err)
	}
	return values[0].(*big.Int)
}

func packPreviewOutput(t *testing.T, out *big.Int) []byte {
	t.Helper()
	parsed, _ := contracts.PoolABI()
	data, err := parsed.Methods["sellFYTokenPreview"].Outputs.Pack(out)
	if err != nil {
		t.Fatalf("pack output: %v", err)
	}
	return data
}

func TestCurveSamplerClampsBeforeCalling(t *testing.T) {
	pool := common.HexToAddress("0x1111111111111111111111111111111111111111")
	var seen *big.Int
	sampler := NewCurveSampler(previewFunc(func(call chain.Call) ([]byte, error) {
		if call.To != pool {
			t.Fatalf("preview sent to %s", call.To.Hex())
		}
		seen = decodePreviewInput(t, call)
		return packPreviewOutput(t, big.NewInt(42)), nil
	}), pool, nil)

	tooLarge := new(uint256.Int).Lsh(uint256.NewInt(1), 200)
	out, err := sampler.Sample(context.Background(), tooLarge)
	if err != nil {
		t.Fatalf("sample: %v", err)
	}
	if out.Uint64() != 42 {
		t.Fatalf("output mismatch: %s", out)
	}
	if seen.Cmp(U128Max.ToBig()) != 0 {
		t.Fatalf("input was not clamped: %s", seen)
	}

	if _, err := sampler.Sample(context.Background(), nil); err != nil {
		t.Fatalf("nil input should sample zero: %v", err)
	}
	if seen.Sign() != 0 {
		t.Fatalf("nil input should clamp to zero, got %s", seen)
	}
}

func TestCurveSamplerRevertIsUnevaluable(t *testing.T) {
	calls := 0
	sampler := NewCurveSampler(previewFunc(func(chain.Call) ([]byte, error) {
		calls++
		return nil, errReverted
	}), common.Address{}, nil)

	out, err := sampler.Sample(context.Background(), uint256.NewInt(10))
	if err == nil || out != nil {
		t.Fatalf("expected unevaluable sample, got %v %v", out, err)
	}
	if calls != 1 {
		t.Fatalf("sampler must not retry, got %d calls", calls)
	}
}

func TestCurveSamplerRejectsMalformedOutput(t *testing.T) {
	sampler := NewCurveSampler(previewFunc(func(chain.Call) ([]byte, error) {
		return []byte{0x01}, nil
	}), common.Address{}, nil)

	if _, err := sampler.Sample(context.Background(), uint256.NewInt(10)); err == nil {
		t.Fatalf("expected unpack error")
	}
}
