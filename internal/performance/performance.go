// Package performance computes on-demand trade analytics (C14) over a
// bounded ring of closed trades: per-window, per-strategy Sharpe, Sortino,
// profit factor, win rate, and drawdown.
package performance

import (
	"math"
	"sync"

	"hftengine/internal/stats"
	"hftengine/pkg/types"
)

// MaxTrades bounds the closed-trade ring (§4.14).
const MaxTrades = 5000

// HoursPerYear is the annualization constant from trades-per-hour to
// trades-per-year used for the Sharpe/Sortino ratios (§4.14).
const HoursPerYear = 8760

// NoLossesProfitFactor is returned when there is positive gross profit and
// zero gross loss (§4.14).
const NoLossesProfitFactor = 999

// Trade is one closed position's performance record.
type Trade struct {
	Strategy   types.StrategyID
	Asset      string
	PnL        float64
	OpenedAtMs int64
	ClosedAtMs int64
}

func (t Trade) holdMs() int64 { return t.ClosedAtMs - t.OpenedAtMs }

// Tracker owns the bounded trade ring. Safe for concurrent use.
type Tracker struct {
	mu     sync.RWMutex
	trades []Trade
}

// New builds an empty Tracker.
func New() *Tracker {
	return &Tracker{}
}

// RecordClosedPosition appends a trade derived from a closed position,
// evicting the oldest trade once MaxTrades is exceeded.
func (t *Tracker) RecordClosedPosition(p types.TrackedPosition) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.trades = append(t.trades, Trade{
		Strategy:   p.Strategy,
		Asset:      p.Asset,
		PnL:        p.RealizedPnL,
		OpenedAtMs: p.OpenedAtMs,
		ClosedAtMs: p.ClosedAtMs,
	})
	if len(t.trades) > MaxTrades {
		t.trades = t.trades[len(t.trades)-MaxTrades:]
	}
}

// StrategyReturnsWindow bounds how many of each strategy's most recent
// trade PnLs feed the portfolio layer's pairwise correlation check.
const StrategyReturnsWindow = 50

// StrategyReturns groups the last StrategyReturnsWindow trade PnLs per
// strategy, in closing order, for the portfolio layer's pairwise
// correlation check.
func (t *Tracker) StrategyReturns() map[types.StrategyID][]float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[types.StrategyID][]float64)
	for _, tr := range t.trades {
		out[tr.Strategy] = append(out[tr.Strategy], tr.PnL)
	}
	for id, returns := range out {
		if len(returns) > StrategyReturnsWindow {
			out[id] = returns[len(returns)-StrategyReturnsWindow:]
		}
	}
	return out
}

// Stats is the computed analytics for one window/strategy filter, already
// rounded to two decimals in every field meant for external consumption.
type Stats struct {
	Trades           int
	Wins             int
	Losses           int
	PnL              float64
	GrossProfit      float64
	GrossLoss        float64
	ProfitFactor     float64
	WinRate          float64
	SharpeAnnualized float64
	Sortino          float64
	MaxDrawdown      float64
	AvgHoldMs        float64
	LargestWin       float64
	LargestLoss      float64
}

// Compute filters trades to those closed at or after sinceMs (0 = no
// lower bound) and, if strategy is non-empty, to that strategy only, then
// computes the full analytics set, rounding every externally-facing field
// to two decimals.
func (t *Tracker) Compute(sinceMs int64, strategy types.StrategyID) Stats {
	t.mu.RLock()
	trades := make([]Trade, 0, len(t.trades))
	for _, tr := range t.trades {
		if tr.ClosedAtMs < sinceMs {
			continue
		}
		if strategy != "" && tr.Strategy != strategy {
			continue
		}
		trades = append(trades, tr)
	}
	t.mu.RUnlock()

	return computeStats(trades)
}

func computeStats(trades []Trade) Stats {
	var s Stats
	s.Trades = len(trades)
	if s.Trades == 0 {
		return s
	}

	var pnls []float64
	var holdSum int64
	var firstMs, lastMs int64 = math.MaxInt64, math.MinInt64

	for _, tr := range trades {
		s.PnL += tr.PnL
		pnls = append(pnls, tr.PnL)
		holdSum += tr.holdMs()
		if tr.PnL > 0 {
			s.Wins++
			s.GrossProfit += tr.PnL
			if tr.PnL > s.LargestWin {
				s.LargestWin = tr.PnL
			}
		} else if tr.PnL < 0 {
			s.Losses++
			s.GrossLoss += -tr.PnL
			if tr.PnL < s.LargestLoss {
				s.LargestLoss = tr.PnL
			}
		}
		if tr.OpenedAtMs < firstMs {
			firstMs = tr.OpenedAtMs
		}
		if tr.ClosedAtMs > lastMs {
			lastMs = tr.ClosedAtMs
		}
	}

	if s.GrossLoss == 0 {
		if s.GrossProfit > 0 {
			s.ProfitFactor = NoLossesProfitFactor
		}
	} else {
		s.ProfitFactor = s.GrossProfit / s.GrossLoss
	}

	s.WinRate = float64(s.Wins) / float64(s.Trades)
	s.AvgHoldMs = float64(holdSum) / float64(s.Trades)

	spanMs := lastMs - firstMs
	s.SharpeAnnualized = annualizedSharpe(pnls, spanMs)
	s.Sortino = sortino(pnls, spanMs)
	s.MaxDrawdown = maxDrawdown(pnls)

	return round2(s)
}

// annualizedSharpe scales the per-trade Sharpe by sqrt(trades_per_hour *
// HoursPerYear), the trade-frequency annualization from §4.14.
func annualizedSharpe(pnls []float64, spanMs int64) float64 {
	sd := stats.StdDev(pnls)
	if sd == 0 {
		return 0
	}
	mean := stats.Mean(pnls)
	return mean / sd * annualizationFactor(len(pnls), spanMs)
}

func sortino(pnls []float64, spanMs int64) float64 {
	mean := stats.Mean(pnls)
	downside := downsideDeviation(pnls, mean)
	if downside == 0 {
		return 0
	}
	return mean / downside * annualizationFactor(len(pnls), spanMs)
}

func downsideDeviation(pnls []float64, mean float64) float64 {
	var sumSq float64
	var n int
	for _, p := range pnls {
		if p < mean {
			d := p - mean
			sumSq += d * d
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return math.Sqrt(sumSq / float64(n))
}

func annualizationFactor(numTrades int, spanMs int64) float64 {
	if spanMs <= 0 {
		return 0
	}
	hours := float64(spanMs) / 3_600_000
	if hours == 0 {
		return 0
	}
	tradesPerHour := float64(numTrades) / hours
	return math.Sqrt(tradesPerHour * HoursPerYear)
}

// maxDrawdown returns the largest peak-to-trough decline on the cumulative
// PnL curve, in PnL units (non-negative).
func maxDrawdown(pnls []float64) float64 {
	var cum, peak, maxDD float64
	for _, p := range pnls {
		cum += p
		if cum > peak {
			peak = cum
		}
		if dd := peak - cum; dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

func round2(s Stats) Stats {
	s.PnL = roundTo(s.PnL, 2)
	s.GrossProfit = roundTo(s.GrossProfit, 2)
	s.GrossLoss = roundTo(s.GrossLoss, 2)
	s.ProfitFactor = roundTo(s.ProfitFactor, 2)
	s.WinRate = roundTo(s.WinRate, 2)
	s.SharpeAnnualized = roundTo(s.SharpeAnnualized, 2)
	s.Sortino = roundTo(s.Sortino, 2)
	s.MaxDrawdown = roundTo(s.MaxDrawdown, 2)
	s.AvgHoldMs = roundTo(s.AvgHoldMs, 2)
	s.LargestWin = roundTo(s.LargestWin, 2)
	s.LargestLoss = roundTo(s.LargestLoss, 2)
	return s
}

func roundTo(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}
