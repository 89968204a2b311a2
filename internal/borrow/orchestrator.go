package borrow

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"fyBorrow/internal/chain"
	"fyBorrow/internal/contracts"
	"fyBorrow/internal/model"
	"fyBorrow/internal/position"
	"fyBorrow/internal/quote"
	"fyBorrow/internal/revert"
)

const bpsDenominator = 10000

// Ledger is the remote ledger the flow reads from and submits to.
type Ledger interface {
	Preview(ctx context.Context, call chain.Call) ([]byte, error)
	Submit(ctx context.Context, call chain.Call) (*types.Receipt, error)
	CurrentBlockHeight(ctx context.Context) (uint64, error)
	EventLogsSince(ctx context.Context, fromHeight uint64, filter chain.LogFilter) ([]types.Log, error)
}

// PoolStateReader returns a fresh snapshot of the pool.
type PoolStateReader interface {
	ReadState(ctx context.Context) (model.PoolState, error)
}

// Quoter sizes the fyToken debt for a desired base output.
type Quoter interface {
	QuoteMinimumInput(ctx context.Context, desired *big.Int, pool model.PoolState) (quote.Quote, error)
}

// TransitionObserver is told about every accepted state transition.
type TransitionObserver interface {
	ObserveTransition(submission uint64, state FlowState)
}

// Orchestrator sequences approve, build, pour, transfer and sell into one borrow. At
// most one submission runs at a time.
type Orchestrator struct {
	cfg        Config
	ledger     Ledger
	pool       PoolStateReader
	quoter     Quoter
	classifier *revert.Classifier
	store      position.Store
	observers  []TransitionObserver
	logger     *zap.Logger

	mu    sync.Mutex
	state FlowState
	seq   uint64
	// current is the running submission, zero when none holds the orchestrator.
	current uint64
}

// Option customises an Orchestrator.
type Option func(*Orchestrator)

func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

func WithObservers(observers ...TransitionObserver) Option {
	return func(o *Orchestrator) { o.observers = append(o.observers, observers...) }
}

func New(cfg Config, ledger Ledger, pool PoolStateReader, quoter Quoter, classifier *revert.Classifier, store position.Store, opts ...Option) (*Orchestrator, error) {
	if ledger == nil || pool == nil || quoter == nil || store == nil {
		return nil, fmt.Errorf("ledger, pool, quoter and store are required")
	}
	if cfg.SlippageBps >= bpsDenominator {
		return nil, fmt.Errorf("slippage must be below %d bps", bpsDenominator)
	}
	o := &Orchestrator{
		cfg:        cfg,
		ledger:     ledger,
		pool:       pool,
		quoter:     quoter,
		classifier: classifier,
		store:      store,
		logger:     zap.NewNop(),
		state:      FlowState{Step: StepIdle},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// State returns the state of the current submission.
func (o *Orchestrator) State() FlowState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Abandon detaches the running submission. Its pending remote calls are not
// cancelled but their results are discarded, and a new submission may start.
func (o *Orchestrator) Abandon() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current != 0 {
		o.logger.Info("borrow abandoned", zap.Uint64("submission", o.current), zap.String("step", string(o.state.Step)))
	}
	o.current = 0
	o.state = FlowState{Step: StepIdle}
}

// Quote reads the pool and sizes the fyToken input for desired base out.
func (o *Orchestrator) Quote(ctx context.Context, desired *big.Int) (quote.Quote, error) {
	state, err := o.pool.ReadState(ctx)
	if err != nil {
		return quote.Quote{}, fmt.Errorf("read pool state: %w", err)
	}
	return o.quoter.QuoteMinimumInput(ctx, desired, state)
}

// ClassifyFailure returns the typed hint for err, or nil.
func (o *Orchestrator) ClassifyFailure(err error) *revert.Hint {
	return o.classifier.Hint(err)
}

// MinBaseOut applies the configured slippage to desired.
func (o *Orchestrator) MinBaseOut(desired *big.Int) *big.Int {
	out := new(big.Int).Mul(desired, big.NewInt(int64(bpsDenominator-int(o.cfg.SlippageBps))))
	return out.Quo(out, big.NewInt(bpsDenominator))
}

// SubmitBorrow validates params synchronously, then runs the flow to Done or
// Failed. onState, when set, is called on every transition of this submission.
// Validation failures return before any state changes.
func (o *Orchestrator) SubmitBorrow(ctx context.Context, params Params, session *Session, onState func(FlowState)) (Result, error) {
	v, err := o.validate(params, session)
	if err != nil {
		return Result{}, err
	}

	token, err := o.begin()
	if err != nil {
		return Result{}, err
	}

	f := &flow{o: o, token: token, onState: onState, session: session, v: v}
	f.result = Result{
		Submission: token,
		Collateral: v.collateral,
		Borrow:     v.borrow,
		MinBaseOut: o.MinBaseOut(v.borrow),
	}
	f.logger = o.logger.With(zap.Uint64("submission", token), zap.String("owner", v.owner.Hex()))
	f.logger.Info("borrow started",
		zap.String("collateral", v.collateral.String()),
		zap.String("borrow", v.borrow.String()),
	)
	return f.run(ctx)
}

func (o *Orchestrator) begin() (uint64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current != 0 {
		return 0, ErrFlowInProgress
	}
	o.seq++
	o.current = o.seq
	o.state = FlowState{Step: StepIdle}
	return o.current, nil
}

type flow struct {
	o       *Orchestrator
	token   uint64
	onState func(FlowState)
	session *Session
	v       validated
	logger  *zap.Logger

	lastTx string
	result Result
}

func (f *flow) run(ctx context.Context) (Result, error) {
	steps := []struct {
		step Step
		fn   func(context.Context) error
	}{
		{StepApproving, f.approve},
		{StepOpeningPosition, f.openPosition},
		{StepSupplyingAndBorrowing, f.supplyAndBorrow},
		{StepSwapping, f.swap},
	}
	for _, s := range steps {
		if err := s.fn(ctx); err != nil {
			if errors.Is(err, ErrStaleFlow) {
				f.logger.Info("discarding result of abandoned borrow", zap.String("step", string(s.step)))
				return Result{}, ErrStaleFlow
			}
			return f.fail(s.step, err)
		}
	}

	if !f.transition(FlowState{Step: StepDone, LastTxRef: f.lastTx}) {
		return Result{}, ErrStaleFlow
	}
	f.result.State = FlowState{Step: StepDone, LastTxRef: f.lastTx}
	f.logger.Info("borrow done", zap.String("position", f.result.PositionID.Hex()), zap.String("tx", f.lastTx))
	return f.result, nil
}

// transition publishes state if this submission is still current.
func (f *flow) transition(state FlowState) bool {
	o := f.o
	o.mu.Lock()
	if o.current != f.token {
		o.mu.Unlock()
		return false
	}
	o.state = state
	if !state.Step.Active() {
		// A terminal state releases the orchestrator.
		o.current = 0
	}
	o.mu.Unlock()

	f.logger.Debug("borrow transition", zap.String("step", string(state.Step)), zap.String("tx", state.LastTxRef))
	for _, obs := range o.observers {
		obs.ObserveTransition(f.token, state)
	}
	if f.onState != nil {
		f.onState(state)
	}
	return true
}

func (f *flow) enter(step Step) error {
	if !f.transition(FlowState{Step: step, LastTxRef: f.lastTx}) {
		return ErrStaleFlow
	}
	return nil
}

func (f *flow) stale() bool {
	f.o.mu.Lock()
	defer f.o.mu.Unlock()
	return f.o.current != f.token
}

func (f *flow) fail(step Step, cause error) (Result, error) {
	stepErr := &StepError{Step: step, Cause: cause}
	var qerr *quote.Error
	if !errors.As(cause, &qerr) {
		cl := f.o.classifier.Classify(cause)
		if !cl.IsUnknown() {
			stepErr.Revert = &cl
		}
	}

	state := FlowState{Step: StepFailed, LastTxRef: f.lastTx, LastError: stepErr.Message()}
	if !f.transition(state) {
		return Result{}, ErrStaleFlow
	}
	f.result.State = state
	f.logger.Warn("borrow failed", zap.String("step", string(step)), zap.String("reason", state.LastError), zap.Error(cause))
	return f.result, stepErr
}

// submit sends call and records its hash. A stale flow drops the receipt.
func (f *flow) submit(ctx context.Context, call chain.Call) (*types.Receipt, error) {
	receipt, err := f.o.ledger.Submit(ctx, call)
	if f.stale() {
		return nil, ErrStaleFlow
	}
	if err != nil {
		return nil, err
	}
	f.lastTx = receipt.TxHash.Hex()
	f.logger.Info("transaction confirmed", zap.String("call", call.Label), zap.String("tx", f.lastTx))
	return receipt, nil
}

func (f *flow) approve(ctx context.Context) error {
	allowance := f.session.Allowance
	if allowance != nil && allowance.Cmp(f.v.collateral) >= 0 {
		f.logger.Debug("allowance sufficient, skipping approval", zap.String("allowance", allowance.String()))
		return nil
	}
	if err := f.enter(StepApproving); err != nil {
		return err
	}

	call, err := contracts.ApproveCall(f.o.cfg.CollateralToken, f.o.cfg.Spender, f.v.collateral)
	if err != nil {
		return err
	}
	if _, err := f.submit(ctx, call); err != nil {
		return err
	}
	f.session.Allowance = new(big.Int).Set(f.v.collateral)
	return nil
}

func (f *flow) openPosition(ctx context.Context) error {
	cfg := f.o.cfg
	key := position.Key(f.v.owner, cfg.SeriesID, cfg.IlkID)

	stored, ok, err := f.o.store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("load position id: %w", err)
	}
	if ok {
		id, err := ParsePositionID(stored)
		if err != nil {
			return fmt.Errorf("stored position id %q: %w", stored, err)
		}
		f.logger.Debug("reusing position", zap.String("position", id.Hex()))
		f.result.PositionID = id
		return nil
	}

	if err := f.enter(StepOpeningPosition); err != nil {
		return err
	}
	fromHeight, err := f.o.ledger.CurrentBlockHeight(ctx)
	if err != nil {
		return fmt.Errorf("read block height: %w", err)
	}
	call, err := contracts.BuildCall(cfg.Helper, cfg.SeriesID, cfg.IlkID, 0)
	if err != nil {
		return err
	}
	receipt, err := f.o.ledger.Submit(ctx, call)
	if err != nil {
		if f.stale() {
			return ErrStaleFlow
		}
		return err
	}
	f.lastTx = receipt.TxHash.Hex()

	built, err := f.recoverPosition(ctx, receipt, fromHeight)
	if err != nil {
		if f.stale() {
			return ErrStaleFlow
		}
		return err
	}

	// The position exists on chain whether or not this flow is still current.
	if err := f.o.store.Set(ctx, key, built.PositionID.Hex()); err != nil {
		return fmt.Errorf("persist position id: %w", err)
	}
	f.logger.Info("position opened", zap.String("position", built.PositionID.Hex()), zap.String("tx", f.lastTx))
	if f.stale() {
		return ErrStaleFlow
	}
	f.result.PositionID = built.PositionID
	return nil
}

// recoverPosition reads the new id from the build receipt, falling back to an
// event query from the height observed before submission.
func (f *flow) recoverPosition(ctx context.Context, receipt *types.Receipt, fromHeight uint64) (contracts.PositionBuilt, error) {
	cfg := f.o.cfg
	logs := make([]types.Log, 0, len(receipt.Logs))
	for _, l := range receipt.Logs {
		if l != nil {
			logs = append(logs, *l)
		}
	}
	if built, ok := contracts.FindPositionBuilt(logs, f.v.owner, cfg.SeriesID, cfg.IlkID); ok {
		return built, nil
	}

	filter, err := contracts.PositionBuiltFilter(cfg.Helper, f.v.owner)
	if err != nil {
		return contracts.PositionBuilt{}, err
	}
	logs, err = f.o.ledger.EventLogsSince(ctx, fromHeight, filter)
	if err != nil {
		return contracts.PositionBuilt{}, fmt.Errorf("query PositionBuilt: %w", err)
	}
	if built, ok := contracts.FindPositionBuilt(logs, f.v.owner, cfg.SeriesID, cfg.IlkID); ok {
		return built, nil
	}
	return contracts.PositionBuilt{}, fmt.Errorf("position id not found after build %s", receipt.TxHash.Hex())
}

func (f *flow) supplyAndBorrow(ctx context.Context) error {
	if f.result.PositionID.IsZero() {
		return fmt.Errorf("no position id resolved")
	}
	if err := f.enter(StepSupplyingAndBorrowing); err != nil {
		return err
	}

	q, err := f.o.Quote(ctx, f.v.borrow)
	if f.stale() {
		return ErrStaleFlow
	}
	if err != nil {
		return err
	}
	f.result.Quote = q
	f.logger.Info("debt sized",
		zap.String("fy_in", q.InputAmount.ToBig().String()),
		zap.String("base_out", q.OutputAmount.ToBig().String()),
	)

	cfg := f.o.cfg
	call, err := contracts.PourCall(cfg.Helper, f.result.PositionID, f.v.owner, f.v.collateral, q.InputAmount.ToBig())
	if err != nil {
		return err
	}
	_, err = f.submit(ctx, call)
	return err
}

// swap moves the minted fyToken into the pool and sells it. The sale is
// previewed first so a moved price leaves the fyToken with the owner.
func (f *flow) swap(ctx context.Context) error {
	if err := f.enter(StepSwapping); err != nil {
		return err
	}
	cfg := f.o.cfg
	debt := f.result.Quote.InputAmount.ToBig()

	preview, err := contracts.SellFYTokenPreviewCall(cfg.Pool, debt)
	if err != nil {
		return err
	}
	raw, err := f.o.ledger.Preview(ctx, preview)
	if f.stale() {
		return ErrStaleFlow
	}
	if err != nil {
		return err
	}
	baseOut, err := contracts.UnpackSellFYTokenPreview(raw)
	if err != nil {
		return err
	}
	if baseOut.Cmp(f.result.MinBaseOut) < 0 {
		f.logger.Warn("sale preview below slippage floor",
			zap.String("base_out", baseOut.String()),
			zap.String("min_base_out", f.result.MinBaseOut.String()),
		)
		return fmt.Errorf("%w: pool pays %s, floor %s", ErrPriceMoved, baseOut, f.result.MinBaseOut)
	}

	transfer, err := contracts.TransferCall(cfg.FYToken, cfg.Pool, debt)
	if err != nil {
		return err
	}
	if _, err := f.submit(ctx, transfer); err != nil {
		return err
	}
	sell, err := contracts.SellFYTokenCall(cfg.Pool, f.v.owner, f.result.MinBaseOut)
	if err != nil {
		return err
	}
	_, err = f.submit(ctx, sell)
	return err
}

// ParsePositionID decodes a stored 0x-prefixed 12-byte id.
func ParsePositionID(input string) (contracts.PositionID, error) {
	raw, err := hexutil.Decode(input)
	if err != nil {
		return contracts.PositionID{}, err
	}
	var id contracts.PositionID
	if len(raw) != len(id) {
		return contracts.PositionID{}, fmt.Errorf("expected %d bytes, got %d", len(id), len(raw))
	}
	copy(id[:], raw)
	return id, nil
}
