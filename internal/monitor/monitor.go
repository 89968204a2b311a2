package monitor

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"fyBorrow/internal/model"
)

// PoolStateReader returns a fresh pool snapshot.
type PoolStateReader interface {
	ReadState(ctx context.Context) (model.PoolState, error)
}

// StateObserver receives every successful snapshot.
type StateObserver interface {
	ObservePoolState(pool string, state model.PoolState)
}

// Snapshot is the latest diagnostic result.
type Snapshot struct {
	At          time.Time
	State       model.PoolState
	Consistency model.Consistency
	Err         error
}

// Monitor periodically checks pool consistency. It shares nothing with the
// borrow flow except the read-only ledger, so a slow or failing check never
// delays a submission.
type Monitor struct {
	reader   PoolStateReader
	pool     string
	interval time.Duration
	observer StateObserver
	logger   *zap.Logger

	mu   sync.RWMutex
	last Snapshot
}

func New(reader PoolStateReader, pool string, interval time.Duration, observer StateObserver, logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Monitor{reader: reader, pool: pool, interval: interval, observer: observer, logger: logger}
}

// Last returns the most recent snapshot without blocking on the network.
func (m *Monitor) Last() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last
}

// Check reads the pool once. Each read is bounded by the polling interval.
func (m *Monitor) Check(ctx context.Context) Snapshot {
	readCtx, cancel := context.WithTimeout(ctx, m.interval)
	defer cancel()

	snap := Snapshot{At: time.Now().UTC()}
	state, err := m.reader.ReadState(readCtx)
	if err != nil {
		snap.Err = err
		if !errors.Is(err, context.Canceled) {
			m.logger.Warn("pool state read failed", zap.String("pool", m.pool), zap.Error(err))
		}
	} else {
		snap.State = state
		snap.Consistency = state.Consistency()
		if m.observer != nil {
			m.observer.ObservePoolState(m.pool, state)
		}
		switch snap.Consistency {
		case model.ConsistencyStale:
			m.logger.Warn("pool cache ahead of live reserves",
				zap.String("pool", m.pool),
				zap.String("base_live", state.BaseReserveLive.ToBig().String()),
				zap.String("base_cached", state.BaseReserveCached.ToBig().String()),
				zap.String("fy_live", state.FYReserveLive.ToBig().String()),
				zap.String("fy_cached", state.FYReserveCached.ToBig().String()),
			)
		case model.ConsistencyPending:
			m.logger.Warn("pool has unsettled transfers",
				zap.String("pool", m.pool),
				zap.String("pending_base", state.PendingBase.ToBig().String()),
				zap.String("pending_fy", state.PendingFY.ToBig().String()),
			)
		default:
			m.logger.Debug("pool consistent", zap.String("pool", m.pool))
		}
	}

	m.mu.Lock()
	m.last = snap
	m.mu.Unlock()
	return snap
}

// Run checks immediately and then on every tick until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}

// Start runs the monitor in its own goroutine. The returned function stops it
// and waits for the loop to exit.
func (m *Monitor) Start(ctx context.Context) func() {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.Run(ctx)
	}()
	return func() {
		cancel()
		<-done
	}
}
