// Package marketmaking implements the Avellaneda-Stoikov quoting engine
// (C8): reservation price and optimal spread from inventory and volatility,
// VPIN-gated toxic-flow widening, inventory-skewed quote sizing, and the
// hedging/daily-loss circuits that bound a single instrument's signed
// exposure.
package marketmaking

import "math"

// Config holds the quoting engine's tunables. All fields have the spec's
// defaults via DefaultConfig.
type Config struct {
	Gamma float64 // risk aversion
	Sigma float64 // estimated volatility (per tick horizon)
	Kappa float64 // order arrival intensity
	T     float64 // time horizon

	MinSpreadBps float64
	MaxSpreadBps float64

	ToxicWidenMultiplier float64 // spread multiplier when VPIN is toxic
	VPINToxicThreshold   float64 // VPIN above this triggers widening

	InventorySkewAlpha float64 // skew strength, applied as -alpha*q*mid*0.01

	BaseSizeUSD float64
	MinQty      float64
	MaxQty      float64
	QMax        float64 // inventory cap in instrument units

	HedgeNormalThreshold float64 // |q|/QMax fraction that triggers a normal hedge
	HedgeUrgentThreshold float64 // |q|/QMax fraction that triggers an urgent hedge

	MaxDailyLossUSD float64
	TickSize        float64
}

// DefaultConfig returns the spec's published parameterization.
func DefaultConfig() Config {
	return Config{
		Gamma:                0.3,
		Sigma:                0.02,
		Kappa:                1.5,
		T:                    1.0,
		MinSpreadBps:         5,
		MaxSpreadBps:         500,
		ToxicWidenMultiplier: 2.5,
		VPINToxicThreshold:   0.70,
		InventorySkewAlpha:   0.3,
		BaseSizeUSD:          3,
		MinQty:               1,
		MaxQty:               8,
		QMax:                 100,
		HedgeNormalThreshold: 0.5,
		HedgeUrgentThreshold: 0.9,
		MaxDailyLossUSD:      50,
		TickSize:             0.01,
	}
}

// Quote is one side of a desired quote.
type Quote struct {
	Price float64
	Size  float64
}

// QuotePair is the engine's desired bid/ask for one tick. A nil side means
// that side should be pulled entirely (e.g. inventory is at the cap on the
// wrong side).
type QuotePair struct {
	Bid              *Quote
	Ask              *Quote
	ReservationPrice float64
	SpreadBps        float64
	ToxicWidened     bool
}

// ComputeQuotes derives the Avellaneda-Stoikov reservation price and
// optimal spread around mid, widened on detected toxic flow, skewed and
// sized by signed inventory normalized to [-1, 1] (q = position / QMax).
//
// reservation = mid - q*gamma*sigma^2*T
// spread      = gamma*sigma^2*T + (2/gamma)*ln(1+gamma/kappa), in bps of
//
//	mid, clamped to [MinSpreadBps, MaxSpreadBps], then multiplied by
//	ToxicWidenMultiplier when vpin > VPINToxicThreshold
//
// skew = -alpha*q*mid*0.01
// bid = reservation - spread/2 + skew, ask = reservation + spread/2 + skew
func ComputeQuotes(mid, q, vpin float64, cfg Config) QuotePair {
	if mid <= 0 {
		return QuotePair{}
	}
	q = clamp(q, -1, 1)

	reservation := mid - q*cfg.Gamma*cfg.Sigma*cfg.Sigma*cfg.T

	deltaStar := cfg.Gamma*cfg.Sigma*cfg.Sigma*cfg.T + (2.0/cfg.Gamma)*math.Log(1+cfg.Gamma/cfg.Kappa)
	spreadBps := deltaStar / mid * 10000
	spreadBps = clamp(spreadBps, cfg.MinSpreadBps, cfg.MaxSpreadBps)

	toxic := vpin > cfg.VPINToxicThreshold
	if toxic {
		spreadBps *= cfg.ToxicWidenMultiplier
	}

	delta := spreadBps / 10000 * mid
	skew := -cfg.InventorySkewAlpha * q * mid * 0.01

	bidPrice := reservation - delta/2 + skew
	askPrice := reservation + delta/2 + skew
	if bidPrice >= askPrice {
		askPrice = bidPrice + cfg.TickSize
	}

	bidSize, askSize := quoteSizes(q, cfg)

	pair := QuotePair{
		ReservationPrice: reservation,
		SpreadBps:        spreadBps,
		ToxicWidened:     toxic,
	}
	if bidSize > 0 {
		pair.Bid = &Quote{Price: roundDownToTick(bidPrice, cfg.TickSize), Size: bidSize}
	}
	if askSize > 0 {
		pair.Ask = &Quote{Price: roundUpToTick(askPrice, cfg.TickSize), Size: askSize}
	}
	return pair
}

// quoteSizes derives bid/ask size from absolute normalized inventory |q|:
// the side that would increase exposure ("wrong side") is scaled down by
// reduce = 1-0.7*|q| and zeroed once |q| >= HedgeUrgentThreshold; the side
// that reduces exposure ("right side") is scaled up by min(2, 2-reduce).
func quoteSizes(q float64, cfg Config) (bidSize, askSize float64) {
	absQ := math.Abs(q)
	reduce := 1 - 0.7*absQ
	rightScale := math.Min(2, 2-reduce)

	wrongSize := clamp(cfg.BaseSizeUSD*reduce, 0, math.MaxFloat64)
	rightSize := cfg.BaseSizeUSD * rightScale

	wrongSize = clampQty(wrongSize, cfg)
	rightSize = clampQty(rightSize, cfg)

	zeroWrongSide := absQ >= cfg.HedgeUrgentThreshold

	switch {
	case q > 0: // long: buying more is wrong, selling is right
		if !zeroWrongSide {
			bidSize = wrongSize
		}
		askSize = rightSize
	case q < 0: // short: selling more is wrong, buying is right
		if !zeroWrongSide {
			askSize = wrongSize
		}
		bidSize = rightSize
	default:
		bidSize = clampQty(cfg.BaseSizeUSD, cfg)
		askSize = clampQty(cfg.BaseSizeUSD, cfg)
	}
	return bidSize, askSize
}

func clampQty(size float64, cfg Config) float64 {
	if size <= 0 {
		return 0
	}
	return clamp(size, cfg.MinQty, cfg.MaxQty)
}

// HedgeAction is the outcome of a hedge evaluation: whether a hedge trade is
// needed, how urgently, and its size in instrument units.
type HedgeAction struct {
	Needed bool
	Urgent bool
	Sell   bool // true = hedge by selling (position is long), false = buy
	Size   float64
}

// ComputeHedge evaluates whether the current position requires a hedging
// trade. At |position| >= HedgeUrgentThreshold*QMax, an urgent hedge trims
// half of the excess over that threshold. Otherwise, at
// |position| >= HedgeNormalThreshold*QMax, a normal hedge brings the
// position back to half of the normal threshold.
func ComputeHedge(position float64, cfg Config) HedgeAction {
	if cfg.QMax <= 0 {
		return HedgeAction{}
	}
	absQ := math.Abs(position) / cfg.QMax
	sell := position > 0

	urgentBound := cfg.HedgeUrgentThreshold * cfg.QMax
	if absQ >= cfg.HedgeUrgentThreshold {
		excess := math.Abs(position) - urgentBound
		return HedgeAction{Needed: true, Urgent: true, Sell: sell, Size: 0.5 * excess}
	}

	if absQ >= cfg.HedgeNormalThreshold {
		target := 0.5 * cfg.HedgeNormalThreshold * cfg.QMax
		size := math.Abs(position) - target
		if size <= 0 {
			return HedgeAction{}
		}
		return HedgeAction{Needed: true, Urgent: false, Sell: sell, Size: size}
	}

	return HedgeAction{}
}

// ShouldHaltQuoting reports whether the daily-loss circuit has tripped:
// dailyPnL at or below -MaxDailyLossUSD stops all new quoting.
func ShouldHaltQuoting(dailyPnL float64, cfg Config) bool {
	return dailyPnL <= -cfg.MaxDailyLossUSD
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func roundDownToTick(v, tick float64) float64 {
	if tick <= 0 {
		return v
	}
	return math.Floor(v/tick) * tick
}

func roundUpToTick(v, tick float64) float64 {
	if tick <= 0 {
		return v
	}
	return math.Ceil(v/tick) * tick
}
