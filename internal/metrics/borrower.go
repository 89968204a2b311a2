package metrics

import (
	"math/big"
	"sync"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"

	"fyBorrow/internal/borrow"
	"fyBorrow/internal/model"
)

type BorrowerMetrics struct {
	quoteOutcomes   *prometheus.CounterVec
	quoteSamples    prometheus.Histogram
	flowTransitions *prometheus.CounterVec
	poolConsistency *prometheus.GaugeVec
	poolReserves    *prometheus.GaugeVec
}

var (
	borrowerOnce     sync.Once
	borrowerRegistry *BorrowerMetrics
)

var consistencyStates = []model.Consistency{model.ConsistencyOK, model.ConsistencyStale, model.ConsistencyPending}

func Borrower() *BorrowerMetrics {
	borrowerOnce.Do(func() {
		borrowerRegistry = &BorrowerMetrics{
			quoteOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "borrower_quotes_total",
				Help: "Quotes computed by outcome (ok or failure reason).",
			}, []string{"outcome"}),
			quoteSamples: prometheus.NewHistogram(prometheus.HistogramOpts{
				Name:    "borrower_quote_samples",
				Help:    "Pool preview calls spent per quote.",
				Buckets: []float64{1, 2, 4, 8, 16, 32, 48, 64, 80},
			}),
			flowTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "borrower_flow_transitions_total",
				Help: "Borrow flow transitions by step entered.",
			}, []string{"step"}),
			poolConsistency: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "borrower_pool_consistency",
				Help: "1 for the pool's current consistency state, 0 for the others.",
			}, []string{"pool", "state"}),
			poolReserves: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "borrower_pool_reserves",
				Help: "Pool reserves in smallest units by kind.",
			}, []string{"pool", "kind"}),
		}
		prometheus.MustRegister(
			borrowerRegistry.quoteOutcomes,
			borrowerRegistry.quoteSamples,
			borrowerRegistry.flowTransitions,
			borrowerRegistry.poolConsistency,
			borrowerRegistry.poolReserves,
		)
	})
	return borrowerRegistry
}

// ObserveQuote records a quote outcome; reason is empty on success.
func (m *BorrowerMetrics) ObserveQuote(reason string, samples int) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "ok"
	}
	m.quoteOutcomes.WithLabelValues(reason).Inc()
	m.quoteSamples.Observe(float64(samples))
}

func (m *BorrowerMetrics) ObserveTransition(_ uint64, state borrow.FlowState) {
	if m == nil {
		return
	}
	step := string(state.Step)
	if step == "" {
		step = "unknown"
	}
	m.flowTransitions.WithLabelValues(step).Inc()
}

func (m *BorrowerMetrics) ObservePoolState(pool string, state model.PoolState) {
	if m == nil {
		return
	}
	current := state.Consistency()
	for _, c := range consistencyStates {
		value := 0.0
		if c == current {
			value = 1
		}
		m.poolConsistency.WithLabelValues(pool, string(c)).Set(value)
	}
	m.poolReserves.WithLabelValues(pool, "base_live").Set(toFloat(state.BaseReserveLive))
	m.poolReserves.WithLabelValues(pool, "fy_live").Set(toFloat(state.FYReserveLive))
	m.poolReserves.WithLabelValues(pool, "base_cached").Set(toFloat(state.BaseReserveCached))
	m.poolReserves.WithLabelValues(pool, "fy_cached").Set(toFloat(state.FYReserveCached))
}

func toFloat(v *uint256.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v.ToBig()).Float64()
	return f
}
