package quote

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"

	"fyBorrow/internal/contracts"
	"fyBorrow/internal/model"
	"fyBorrow/internal/revert"
)

var errReverted = errors.New("execution reverted")

// curveFunc adapts a function into a Sampler and counts calls.
type curveFunc struct {
	fn    func(x *uint256.Int) (*uint256.Int, error)
	calls int
}

func (c *curveFunc) Sample(_ context.Context, input *uint256.Int) (*uint256.Int, error) {
	c.calls++
	return c.fn(input)
}

// feeCurve returns x*9/10 up to limit and reverts above it.
func feeCurve(limit uint64) *curveFunc {
	max := uint256.NewInt(limit)
	return &curveFunc{fn: func(x *uint256.Int) (*uint256.Int, error) {
		if x.Gt(max) {
			return nil, errReverted
		}
		out := new(uint256.Int).Mul(x, uint256.NewInt(9))
		return out.Div(out, uint256.NewInt(10)), nil
	}}
}

func healthyPool() model.PoolState {
	return model.NewPoolState(uint256.NewInt(10_000_000), uint256.NewInt(11_000_000), uint256.NewInt(10_000_000), uint256.NewInt(11_000_000))
}

func newTestEngine(t *testing.T, sampler Sampler) *Engine {
	t.Helper()
	classifier, err := revert.NewClassifier(common.HexToAddress("0x1111111111111111111111111111111111111111"), common.Address{})
	if err != nil {
		t.Fatalf("classifier: %v", err)
	}
	return NewEngine(sampler, classifier)
}

func expectReason(t *testing.T, err error, want Reason) {
	t.Helper()
	got, ok := ReasonOf(err)
	if !ok {
		t.Fatalf("expected quote error %s, got %v", want, err)
	}
	if got != want {
		t.Fatalf("reason mismatch: got %s want %s", got, want)
	}
}

func TestQuoteFlatFeeExample(t *testing.T) {
	curve := feeCurve(5_000_000)
	q, err := newTestEngine(t, curve).QuoteMinimumInput(context.Background(), big.NewInt(1_000_000), healthyPool())
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if q.InputAmount.Uint64() != 1_111_112 {
		t.Fatalf("input mismatch: %s", q.InputAmount)
	}
	if q.OutputAmount.Uint64() < 1_000_000 {
		t.Fatalf("output below desired: %s", q.OutputAmount)
	}
}

func TestQuoteOutputIsSampledResponse(t *testing.T) {
	curve := feeCurve(5_000_000)
	q, err := newTestEngine(t, curve).QuoteMinimumInput(context.Background(), big.NewInt(777_777), healthyPool())
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	direct, _ := curve.fn(q.InputAmount)
	if !direct.Eq(q.OutputAmount) {
		t.Fatalf("output %s is not the curve response %s", q.OutputAmount, direct)
	}
	below := new(uint256.Int).Sub(q.InputAmount, uint256.NewInt(1))
	if out, _ := curve.fn(below); !out.Lt(uint256.NewInt(777_777)) {
		t.Fatalf("input %s is not minimal", q.InputAmount)
	}
}

func TestQuoteMonotonic(t *testing.T) {
	engine := newTestEngine(t, feeCurve(5_000_000))
	pool := healthyPool()

	var prev *uint256.Int
	for _, desired := range []int64{1, 10, 999, 100_000, 1_000_000, 1_000_001, 3_000_000, 4_400_000} {
		q, err := engine.QuoteMinimumInput(context.Background(), big.NewInt(desired), pool)
		if err != nil {
			t.Fatalf("quote %d: %v", desired, err)
		}
		if q.OutputAmount.Lt(uint256.NewInt(uint64(desired))) {
			t.Fatalf("quote %d: output %s below desired", desired, q.OutputAmount)
		}
		if prev != nil && q.InputAmount.Lt(prev) {
			t.Fatalf("quote %d: input %s decreased from %s", desired, q.InputAmount, prev)
		}
		prev = q.InputAmount
	}
}

func TestQuoteShrinksAfterRevert(t *testing.T) {
	curve := feeCurve(5_000_000)
	q, err := newTestEngine(t, curve).QuoteMinimumInput(context.Background(), big.NewInt(3_000_000), healthyPool())
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if q.InputAmount.Uint64() != 3_333_334 {
		t.Fatalf("input mismatch: %s", q.InputAmount)
	}
}

func TestQuoteInvalidRequestWithoutSampling(t *testing.T) {
	curve := feeCurve(5_000_000)
	engine := newTestEngine(t, curve)

	for _, desired := range []*big.Int{big.NewInt(0), big.NewInt(-5), nil} {
		_, err := engine.QuoteMinimumInput(context.Background(), desired, healthyPool())
		expectReason(t, err, ReasonInvalidRequest)
	}
	if curve.calls != 0 {
		t.Fatalf("expected no samples, got %d", curve.calls)
	}
}

func TestQuoteStaleCacheFailsClosed(t *testing.T) {
	curve := feeCurve(5_000_000)
	engine := newTestEngine(t, curve)

	staleBase := model.NewPoolState(uint256.NewInt(10_000_000), uint256.NewInt(11_000_000), uint256.NewInt(10_000_001), uint256.NewInt(11_000_000))
	staleFY := model.NewPoolState(uint256.NewInt(10_000_000), uint256.NewInt(11_000_000), uint256.NewInt(10_000_000), uint256.NewInt(11_000_001))

	for _, desired := range []int64{1, 1_000_000, 50_000_000} {
		_, err := engine.QuoteMinimumInput(context.Background(), big.NewInt(desired), staleBase)
		expectReason(t, err, ReasonStaleCache)
		_, err = engine.QuoteMinimumInput(context.Background(), big.NewInt(desired), staleFY)
		expectReason(t, err, ReasonStaleCache)
	}
	if curve.calls != 0 {
		t.Fatalf("expected no samples, got %d", curve.calls)
	}
}

func TestQuotePendingSettlement(t *testing.T) {
	pool := model.NewPoolState(uint256.NewInt(10_000_000), uint256.NewInt(11_000_000), uint256.NewInt(9_000_000), uint256.NewInt(11_000_000))
	_, err := newTestEngine(t, feeCurve(5_000_000)).QuoteMinimumInput(context.Background(), big.NewInt(1_000), pool)
	expectReason(t, err, ReasonPendingSettlement)
}

func TestQuoteDesiredAtReserve(t *testing.T) {
	_, err := newTestEngine(t, feeCurve(5_000_000)).QuoteMinimumInput(context.Background(), big.NewInt(10_000_000), healthyPool())
	expectReason(t, err, ReasonInsufficientLiquidity)

	huge := new(big.Int).Lsh(big.NewInt(1), 300)
	_, err = newTestEngine(t, feeCurve(5_000_000)).QuoteMinimumInput(context.Background(), huge, healthyPool())
	expectReason(t, err, ReasonInsufficientLiquidity)
}

func TestQuotePreviewUnavailable(t *testing.T) {
	curve := &curveFunc{fn: func(*uint256.Int) (*uint256.Int, error) { return nil, errReverted }}
	_, err := newTestEngine(t, curve).QuoteMinimumInput(context.Background(), big.NewInt(1_000_000), healthyPool())
	expectReason(t, err, ReasonPreviewUnavailable)
	if curve.calls > MaxBracketSamples {
		t.Fatalf("bracket exceeded bound: %d samples", curve.calls)
	}
}

func TestQuoteInsufficientLiquidityAtCap(t *testing.T) {
	curve := &curveFunc{fn: func(*uint256.Int) (*uint256.Int, error) { return new(uint256.Int), nil }}
	max := new(uint256.Int).Set(U128Max)
	pool := model.NewPoolState(max, max, max, max)
	desired := new(uint256.Int).Sub(U128Max, uint256.NewInt(1)).ToBig()

	_, err := newTestEngine(t, curve).QuoteMinimumInput(context.Background(), desired, pool)
	expectReason(t, err, ReasonInsufficientLiquidity)
	if curve.calls != 2 {
		t.Fatalf("expected 2 samples, got %d", curve.calls)
	}
}

func TestQuoteBracketBound(t *testing.T) {
	// Output is input / 2^40, so the bracket would need ~100 doublings from the guess.
	curve := &curveFunc{fn: func(x *uint256.Int) (*uint256.Int, error) {
		return new(uint256.Int).Rsh(x, 40), nil
	}}
	base := new(uint256.Int).Lsh(uint256.NewInt(1), 127)
	pool := model.NewPoolState(base, uint256.NewInt(1), base, uint256.NewInt(1))
	desired := new(uint256.Int).Lsh(uint256.NewInt(1), 100).ToBig()

	_, err := newTestEngine(t, curve).QuoteMinimumInput(context.Background(), desired, pool)
	expectReason(t, err, ReasonInsufficientLiquidity)
	if curve.calls != MaxBracketSamples {
		t.Fatalf("expected %d bracket samples, got %d", MaxBracketSamples, curve.calls)
	}
}

func TestQuoteBisectionBound(t *testing.T) {
	curve := &curveFunc{fn: func(x *uint256.Int) (*uint256.Int, error) {
		return new(uint256.Int).Rsh(x, 40), nil
	}}
	base := new(uint256.Int).Lsh(uint256.NewInt(1), 61)
	fy := new(uint256.Int).Lsh(uint256.NewInt(1), 96)
	pool := model.NewPoolState(base, fy, base, fy)
	want := new(uint256.Int).Lsh(uint256.NewInt(1), 60)

	q, err := newTestEngine(t, curve).QuoteMinimumInput(context.Background(), want.ToBig(), pool)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	// 6 bracket samples (2^95..2^100), 40 bisection samples, 1 verification.
	if curve.calls != 6+MaxBisectionSamples+1 {
		t.Fatalf("sample count mismatch: %d", curve.calls)
	}
	if q.OutputAmount.Lt(want) {
		t.Fatalf("output below desired: %s", q.OutputAmount)
	}
}

func TestQuoteWideBracketStaysSufficient(t *testing.T) {
	curve := &curveFunc{fn: func(x *uint256.Int) (*uint256.Int, error) {
		return new(uint256.Int).Rsh(x, 40), nil
	}}
	base := new(uint256.Int).Lsh(uint256.NewInt(1), 61)
	fy := new(uint256.Int).Lsh(uint256.NewInt(3), 95)
	pool := model.NewPoolState(base, fy, base, fy)
	want := new(uint256.Int).Lsh(uint256.NewInt(1), 60)

	q, err := newTestEngine(t, curve).QuoteMinimumInput(context.Background(), want.ToBig(), pool)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	// Bracket is [3*2^98, 3*2^99]; the least sufficient input is 2^100.
	minimal := new(uint256.Int).Lsh(uint256.NewInt(1), 100)
	width := new(uint256.Int).Lsh(uint256.NewInt(3), 98)
	if q.OutputAmount.Lt(want) || q.InputAmount.Lt(minimal) {
		t.Fatalf("quote must stay sufficient: in=%s out=%s", q.InputAmount, q.OutputAmount)
	}
	if !q.InputAmount.Gt(minimal) {
		t.Fatalf("a bracket wider than 2^40 should not resolve to unit precision: %s", q.InputAmount)
	}
	excess := new(uint256.Int).Sub(q.InputAmount, minimal)
	if excess.Gt(new(uint256.Int).Rsh(width, MaxBisectionSamples)) {
		t.Fatalf("excess %s above width / 2^%d", excess, MaxBisectionSamples)
	}
	if curve.calls != 6+MaxBisectionSamples+1 {
		t.Fatalf("sample count mismatch: %d", curve.calls)
	}
}

func TestQuoteNegativeRateRejected(t *testing.T) {
	parsed, err := contracts.PoolABI()
	if err != nil {
		t.Fatalf("abi: %v", err)
	}
	e := parsed.Errors["NegativeInterestRatesNotAllowed"]
	args, err := e.Inputs.Pack(big.NewInt(1), big.NewInt(2))
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	payload := append(append([]byte{}, e.ID[:4]...), args...)
	negative := &dataError{msg: "execution reverted", data: hexutil.Encode(payload)}

	inner := feeCurve(5_000_000)
	curve := &curveFunc{fn: func(x *uint256.Int) (*uint256.Int, error) {
		if x.Uint64() == 1_111_112 {
			return nil, negative
		}
		return inner.fn(x)
	}}

	_, err = newTestEngine(t, curve).QuoteMinimumInput(context.Background(), big.NewInt(1_000_000), healthyPool())
	expectReason(t, err, ReasonNegativeRateRejected)

	var qerr *Error
	if !errors.As(err, &qerr) || qerr.Cause == nil || qerr.Cause.MatchedAgainst != revert.SourcePool {
		t.Fatalf("expected classified cause, got %+v", qerr)
	}
}

func TestQuotePreviewReverted(t *testing.T) {
	inner := feeCurve(5_000_000)
	curve := &curveFunc{fn: func(x *uint256.Int) (*uint256.Int, error) {
		if x.Uint64() == 1_111_112 {
			return nil, errReverted
		}
		return inner.fn(x)
	}}

	_, err := newTestEngine(t, curve).QuoteMinimumInput(context.Background(), big.NewInt(1_000_000), healthyPool())
	expectReason(t, err, ReasonPreviewReverted)
}

func TestQuoteBelowDesiredOnVerification(t *testing.T) {
	inner := feeCurve(5_000_000)
	seen := make(map[uint64]int)
	curve := &curveFunc{fn: func(x *uint256.Int) (*uint256.Int, error) {
		seen[x.Uint64()]++
		out, err := inner.fn(x)
		if err == nil && seen[x.Uint64()] > 1 {
			out = new(uint256.Int).Sub(out, uint256.NewInt(1))
		}
		return out, err
	}}

	_, err := newTestEngine(t, curve).QuoteMinimumInput(context.Background(), big.NewInt(1_000_000), healthyPool())
	expectReason(t, err, ReasonQuoteBelowDesired)
}

func TestQuoteHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestEngine(t, feeCurve(5_000_000)).QuoteMinimumInput(ctx, big.NewInt(1_000_000), healthyPool())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
}

type recordingObserver struct {
	reasons []string
	samples []int
}

func (r *recordingObserver) ObserveQuote(reason string, samples int) {
	r.reasons = append(r.reasons, reason)
	r.samples = append(r.samples, samples)
}

func TestQuoteObserver(t *testing.T) {
	observer := &recordingObserver{}
	classifier, _ := revert.NewClassifier(common.Address{}, common.Address{})
	engine := NewEngine(feeCurve(5_000_000), classifier, WithObserver(observer))

	if _, err := engine.QuoteMinimumInput(context.Background(), big.NewInt(1_000_000), healthyPool()); err != nil {
		t.Fatalf("quote: %v", err)
	}
	_, _ = engine.QuoteMinimumInput(context.Background(), big.NewInt(0), healthyPool())

	if len(observer.reasons) != 2 || observer.reasons[0] != "" || observer.reasons[1] != string(ReasonInvalidRequest) {
		t.Fatalf("observed reasons mismatch: %v", observer.reasons)
	}
	if observer.samples[0] == 0 || observer.samples[1] != 0 {
		t.Fatalf("observed samples mismatch: %v", observer.samples)
	}
}

type dataError struct {
	msg  string
	data interface{}
}

func (e *dataError) Error() string          { return e.msg }
func (e *dataError) ErrorData() interface{} { return e.data }
