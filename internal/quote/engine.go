package quote

import (
	"context"
	"math/big"

	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"fyBorrow/internal/model"
	"fyBorrow/internal/revert"
)

const (
	// MaxBracketSamples bounds the bracket expansion phase.
	MaxBracketSamples = 32
	// MaxBisectionSamples bounds the bisection phase.
	MaxBisectionSamples = 40
)

// Quote is the minimal input found for a desired output, with the output the
// curve actually returned for it.
type Quote struct {
	InputAmount  *uint256.Int
	OutputAmount *uint256.Int
}

// Observer receives the outcome of every quote. reason is empty on success.
type Observer interface {
	ObserveQuote(reason string, samples int)
}

// Engine inverts the pool curve: it finds the least fyToken input whose
// preview yields at least the desired base output. It assumes the sampled
// output is non-decreasing in the input and does not verify it.
//
// Bisection stops after MaxBisectionSamples, which reaches unit precision
// only for brackets up to 2^40 wide. A wider bracket yields an input that is
// still sufficient but may exceed the minimum by up to width / 2^40.
type Engine struct {
	sampler    Sampler
	classifier *revert.Classifier
	observer   Observer
	logger     *zap.Logger
}

// EngineOption customises an Engine.
type EngineOption func(*Engine)

func WithObserver(o Observer) EngineOption {
	return func(e *Engine) { e.observer = o }
}

func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

func NewEngine(sampler Sampler, classifier *revert.Classifier, opts ...EngineOption) *Engine {
	e := &Engine{sampler: sampler, classifier: classifier, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// QuoteMinimumInput returns the minimal input whose sampled output is at least
// desired. Failures are *Error values; context cancellation is returned as is.
func (e *Engine) QuoteMinimumInput(ctx context.Context, desired *big.Int, pool model.PoolState) (Quote, error) {
	run := &search{engine: e}
	q, err := run.quote(ctx, desired, pool)

	reason := ""
	if err != nil {
		if r, ok := ReasonOf(err); ok {
			reason = string(r)
		} else {
			reason = "error"
		}
		e.logger.Debug("quote failed", zap.String("reason", reason), zap.Int("samples", run.samples), zap.Error(err))
	} else {
		e.logger.Debug("quote",
			zap.Stringer("desired", desired),
			zap.Stringer("input", q.InputAmount),
			zap.Stringer("output", q.OutputAmount),
			zap.Int("samples", run.samples),
		)
	}
	if e.observer != nil {
		e.observer.ObserveQuote(reason, run.samples)
	}
	return q, err
}

// search holds the state of one quote request.
type search struct {
	engine  *Engine
	want    *uint256.Int
	samples int
}

func (s *search) sample(ctx context.Context, input *uint256.Int) (*uint256.Int, error) {
	s.samples++
	return s.engine.sampler.Sample(ctx, input)
}

func (s *search) quote(ctx context.Context, desired *big.Int, pool model.PoolState) (Quote, error) {
	if desired == nil || desired.Sign() <= 0 {
		return Quote{}, fail(ReasonInvalidRequest)
	}
	switch pool.Consistency() {
	case model.ConsistencyStale:
		return Quote{}, fail(ReasonStaleCache)
	case model.ConsistencyPending:
		return Quote{}, fail(ReasonPendingSettlement)
	}
	want, overflow := uint256.FromBig(desired)
	if overflow || pool.BaseReserveLive == nil || !want.Lt(pool.BaseReserveLive) {
		return Quote{}, fail(ReasonInsufficientLiquidity)
	}
	s.want = want

	low, high, err := s.bracket(ctx, initialGuess(want, pool))
	if err != nil {
		return Quote{}, err
	}
	input, err := s.bisect(ctx, low, high)
	if err != nil {
		return Quote{}, err
	}

	out, err := s.sample(ctx, input)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Quote{}, ctxErr
		}
		cl := s.engine.classifier.Classify(err)
		reason := ReasonPreviewReverted
		if cl.IsNegativeRate() {
			reason = ReasonNegativeRateRejected
		}
		return Quote{}, &Error{Reason: reason, Cause: &cl}
	}
	if out.Lt(want) {
		return Quote{}, fail(ReasonQuoteBelowDesired)
	}
	return Quote{InputAmount: input, OutputAmount: out}, nil
}

// initialGuess is the first-order price estimate desired * fy / base.
func initialGuess(want *uint256.Int, pool model.PoolState) *uint256.Int {
	base, fy := pool.BaseReserveLive, pool.FYReserveLive
	if base == nil || fy == nil || base.IsZero() || fy.IsZero() {
		return clampU128(want)
	}
	guess, overflow := new(uint256.Int).MulDivOverflow(want, fy, base)
	if overflow {
		return new(uint256.Int).Set(U128Max)
	}
	return clampU128(guess)
}

// bracket finds low < high with low insufficient (or unknown) and high sufficient.
func (s *search) bracket(ctx context.Context, guess *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	low := new(uint256.Int)
	high := new(uint256.Int).Set(guess)
	if high.IsZero() {
		high.SetOne()
	}
	one := uint256.NewInt(1)

	lastTooSmall := false
	for i := 0; i < MaxBracketSamples; i++ {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		out, err := s.sample(ctx, high)
		switch {
		case err != nil:
			// A revert means the size is too large to price: shrink towards low.
			lastTooSmall = false
			span := new(uint256.Int).Sub(high, low)
			high = new(uint256.Int).Add(low, span.Rsh(span, 1))
			if !high.Gt(new(uint256.Int).Add(low, one)) {
				return nil, nil, fail(ReasonPreviewUnavailable)
			}
		case out.Lt(s.want):
			lastTooSmall = true
			if high.Eq(U128Max) {
				return nil, nil, fail(ReasonInsufficientLiquidity)
			}
			low = high
			high = new(uint256.Int).Lsh(low, 1)
			if high.Gt(U128Max) {
				high.Set(U128Max)
			}
		default:
			return low, high, nil
		}
	}

	if lastTooSmall {
		return nil, nil, fail(ReasonInsufficientLiquidity)
	}
	return nil, nil, fail(ReasonPreviewUnavailable)
}

// bisect narrows [low, high] to the least sufficient input at integer resolution.
// An unevaluable midpoint moves the upper bound, leaving final verification to
// reject a bound that still cannot be priced.
func (s *search) bisect(ctx context.Context, low, high *uint256.Int) (*uint256.Int, error) {
	if !low.Lt(high) {
		panic("quote: bracket low must be below high")
	}
	left := new(uint256.Int).Set(low)
	right := new(uint256.Int).Set(high)

	for i := 0; i < MaxBisectionSamples; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		mid := new(uint256.Int).Add(left, right)
		mid.Rsh(mid, 1)
		if mid.Eq(left) {
			break
		}
		out, err := s.sample(ctx, mid)
		if err != nil || !out.Lt(s.want) {
			right = mid
		} else {
			left = mid
		}
	}
	return right, nil
}
