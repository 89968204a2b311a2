package model

import "github.com/holiman/uint256"

// PoolState is a snapshot of pool reserves in the pool's smallest unit.
type PoolState struct {
	BaseReserveLive   *uint256.Int `json:"base_reserve_live"`
	FYReserveLive     *uint256.Int `json:"fy_reserve_live"`
	BaseReserveCached *uint256.Int `json:"base_reserve_cached"`
	FYReserveCached   *uint256.Int `json:"fy_reserve_cached"`
	PendingBase       *uint256.Int `json:"pending_base"`
	PendingFY         *uint256.Int `json:"pending_fy"`
}

// Consistency describes how a PoolState relates to its cached reserves.
type Consistency string

const (
	ConsistencyOK      Consistency = "ok"
	ConsistencyStale   Consistency = "stale_cache"
	ConsistencyPending Consistency = "pending_settlement"
)

// Consistency reports whether the snapshot can be quoted against.
func (p PoolState) Consistency() Consistency {
	if gt(p.BaseReserveCached, p.BaseReserveLive) || gt(p.FYReserveCached, p.FYReserveLive) {
		return ConsistencyStale
	}
	if !isZero(p.PendingBase) || !isZero(p.PendingFY) {
		return ConsistencyPending
	}
	return ConsistencyOK
}

// NewPoolState derives pending amounts from live and cached reserves.
func NewPoolState(baseLive, fyLive, baseCached, fyCached *uint256.Int) PoolState {
	return PoolState{
		BaseReserveLive:   orZero(baseLive),
		FYReserveLive:     orZero(fyLive),
		BaseReserveCached: orZero(baseCached),
		FYReserveCached:   orZero(fyCached),
		PendingBase:       pending(baseLive, baseCached),
		PendingFY:         pending(fyLive, fyCached),
	}
}

func pending(live, cached *uint256.Int) *uint256.Int {
	live, cached = orZero(live), orZero(cached)
	if cached.Gt(live) {
		return new(uint256.Int)
	}
	return new(uint256.Int).Sub(live, cached)
}

func gt(a, b *uint256.Int) bool {
	return orZero(a).Gt(orZero(b))
}

func isZero(v *uint256.Int) bool {
	return v == nil || v.IsZero()
}

func orZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v
}
