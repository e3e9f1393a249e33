// Package edgedecay tracks a rolling Sharpe ratio over recent trade PnLs
// and maps it to a position-size multiplier, so a strategy whose edge has
// decayed gets scaled down — or halted — well before the risk gate's hard
// loss limits would otherwise trip.
package edgedecay

import (
	"sync"

	"hftengine/internal/stats"
)

// WindowSize is the number of most recent trades the rolling Sharpe is
// computed over (§4.15).
const WindowSize = 100

// Monitor owns the rolling trade-PnL window. Safe for concurrent use.
type Monitor struct {
	mu   sync.RWMutex
	pnls []float64
}

// New builds an empty Monitor.
func New() *Monitor {
	return &Monitor{}
}

// RecordTrade appends one closed trade's PnL to the rolling window,
// evicting the oldest entry once WindowSize is exceeded.
func (m *Monitor) RecordTrade(pnl float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pnls = append(m.pnls, pnl)
	if len(m.pnls) > WindowSize {
		m.pnls = m.pnls[len(m.pnls)-WindowSize:]
	}
}

// RollingSharpe returns the mean/stddev Sharpe of the trade-PnL window, 0
// on fewer than two trades.
func (m *Monitor) RollingSharpe() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sharpeOf(m.pnls)
}

func sharpeOf(pnls []float64) float64 {
	if len(pnls) < 2 {
		return 0
	}
	sd := stats.StdDev(pnls)
	if sd == 0 {
		return 0
	}
	return stats.Mean(pnls) / sd
}

// Multiplier maps a rolling Sharpe to the edge-decay multiplier ladder
// (§4.15): <-0.5 halts outright, <0.5 -> 0.5x, <1.0 -> 0.75x, else full size.
func Multiplier(sharpe float64) float64 {
	switch {
	case sharpe < -0.5:
		return 0
	case sharpe < 0.5:
		return 0.5
	case sharpe < 1.0:
		return 0.75
	default:
		return 1.0
	}
}

// CurrentMultiplier is a convenience wrapper combining RollingSharpe and
// Multiplier for the monitor's current window.
func (m *Monitor) CurrentMultiplier() float64 {
	return Multiplier(m.RollingSharpe())
}

// Halted reports whether the current window's multiplier is the hard 0
// (Sharpe < -0.5).
func (m *Monitor) Halted() bool {
	return m.CurrentMultiplier() == 0
}
