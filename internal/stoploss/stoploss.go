// Package stoploss implements the stop-loss manager (C11): four
// concurrently-active stop types per open position (fixed, vol-adjusted,
// trailing, time) plus a take-profit, with "first stop hit wins."
package stoploss

import "hftengine/pkg/types"

// Config holds the stop-loss thresholds, with the spec's literal defaults.
type Config struct {
	FixedPct           float64 // 0.03
	VolMultiplier      float64 // 3
	TrailingActivation float64 // fraction of TP at which trailing arms, 0.5
	TakeProfitPct      float64 // 0.005
	MaxHoldMs          int64   // 120_000, 30_000 for microstructure
}

// DefaultConfig returns the spec's literal defaults (120s max hold).
func DefaultConfig() Config {
	return Config{
		FixedPct:           0.03,
		VolMultiplier:      3,
		TrailingActivation: 0.5,
		TakeProfitPct:      0.005,
		MaxHoldMs:          120_000,
	}
}

// MicrostructureConfig returns the shorter 30s max-hold variant used for
// S4 microstructure positions.
func MicrostructureConfig() Config {
	cfg := DefaultConfig()
	cfg.MaxHoldMs = 30_000
	return cfg
}

// State tracks the trailing-stop high/low watermark across ticks for one
// open position. Owned by the position's strategy/tick context.
type State struct {
	MaxFavorable   float64
	TrailingArmed  bool
	favorableIsSet bool
}

// StopType names which stop (if any) fired.
type StopType string

const (
	StopNone       StopType = ""
	StopFixed      StopType = "FIXED"
	StopVolAdjust  StopType = "VOL_ADJUSTED"
	StopTrailing   StopType = "TRAILING"
	StopTime       StopType = "TIME"
	StopTakeProfit StopType = "TAKE_PROFIT"
)

// Check evaluates every active stop for one position and returns the first
// one that fires, in the order fixed, vol-adjusted, trailing, time,
// take-profit.
func Check(p types.TrackedPosition, currentPrice, entryVol float64, cfg Config, st *State, nowMs int64) StopType {
	entry := p.EntryPrice
	if entry == 0 {
		return StopNone
	}
	long := p.Side == types.PositionLong

	if fixedHit(entry, currentPrice, cfg.FixedPct, long) {
		return StopFixed
	}
	if entryVol > 0 && fixedHit(entry, currentPrice, cfg.VolMultiplier*entryVol, long) {
		return StopVolAdjust
	}
	if trailingHit(entry, currentPrice, cfg, st, long) {
		return StopTrailing
	}
	if cfg.MaxHoldMs > 0 && nowMs-p.OpenedAtMs >= cfg.MaxHoldMs {
		return StopTime
	}
	if takeProfitHit(entry, currentPrice, cfg.TakeProfitPct, long) {
		return StopTakeProfit
	}
	return StopNone
}

func fixedHit(entry, current, pct float64, long bool) bool {
	if long {
		return current <= entry*(1-pct)
	}
	return current >= entry*(1+pct)
}

func takeProfitHit(entry, current, pct float64, long bool) bool {
	if long {
		return current >= entry*(1+pct)
	}
	return current <= entry*(1-pct)
}

func trailingHit(entry, current float64, cfg Config, st *State, long bool) bool {
	if st == nil {
		return false
	}
	activation := cfg.TrailingActivation * cfg.TakeProfitPct

	if !st.TrailingArmed {
		if long && current >= entry*(1+activation) {
			st.TrailingArmed = true
		} else if !long && current <= entry*(1-activation) {
			st.TrailingArmed = true
		} else {
			return false
		}
		st.MaxFavorable = current
		st.favorableIsSet = true
	}

	if !st.favorableIsSet {
		st.MaxFavorable = current
		st.favorableIsSet = true
	}
	if long && current > st.MaxFavorable {
		st.MaxFavorable = current
	}
	if !long && current < st.MaxFavorable {
		st.MaxFavorable = current
	}

	if long {
		stopPrice := st.MaxFavorable - 0.5*(st.MaxFavorable-entry)
		return current <= stopPrice
	}
	stopPrice := st.MaxFavorable + 0.5*(entry-st.MaxFavorable)
	return current >= stopPrice
}
