package hft

import (
	"log/slog"

	"hftengine/internal/history"
	"hftengine/pkg/types"
)

// StrategyFunc is the common shape of a registered strategy.
type StrategyFunc func() []types.Opportunity

// RunAll invokes every enabled strategy, recovering individual panics so a
// bug in one strategy never aborts the tick (§4.13).
func RunAll(logger *slog.Logger, strategies map[types.StrategyID]StrategyFunc) []types.Opportunity {
	var all []types.Opportunity
	for id, fn := range strategies {
		opps := runOne(logger, id, fn)
		all = append(all, opps...)
	}
	return all
}

func runOne(logger *slog.Logger, id types.StrategyID, fn StrategyFunc) (opps []types.Opportunity) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("strategy panicked, tick continues", "strategy", id, "panic", r)
			opps = nil
		}
	}()
	return fn()
}

// MarketHistories bundles every per-market rolling series the strategy set
// reads, owned and mutated only by the tick engine.
type MarketHistories struct {
	YesMid  *history.Buffer
	NoMid   *history.Buffer
	RefMid  *history.Buffer
	Micro   MicroHistories
}
