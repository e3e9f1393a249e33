package tick

import (
	"context"
	"testing"

	"hftengine/pkg/types"
)

func TestSubmitOrderMarketMakingFillUpdatesInventory(t *testing.T) {
	t.Parallel()
	e := newTestEngine()

	e.submitOrder(context.Background(), "mkt", "yes-tok", types.BUY, 0.50, 10, types.StrategyMarketMaking, "", 1000)

	snap := e.mm.Snapshot("mkt")
	if snap.Position != 10 {
		t.Errorf("Position = %v, want 10", snap.Position)
	}
	if snap.EntryVWAP != 0.50 {
		t.Errorf("EntryVWAP = %v, want 0.50", snap.EntryVWAP)
	}
}

func TestSubmitOrderOpensTrackedPositionForHFTStrategy(t *testing.T) {
	t.Parallel()
	e := newTestEngine()

	e.submitOrder(context.Background(), "mkt", "yes-tok", types.BUY, 0.40, 10, types.StrategyArbitrage, "opp1", 1000)

	open := e.positions.Open()
	if len(open) != 1 {
		t.Fatalf("len(Open()) = %d, want 1", len(open))
	}
	if open[0].Side != types.PositionLong || open[0].EntryPrice != 0.40 {
		t.Errorf("opened position = %+v, want long @ 0.40", open[0])
	}
}

func TestApplyFillOpposingSideClosesPosition(t *testing.T) {
	t.Parallel()
	e := newTestEngine()

	e.positions.OnOpeningFill("mkt", "yes-tok", types.PositionLong, 0.40, 10, types.StrategyArbitrage, "o1", 1000)

	order := types.Order{Asset: "mkt", TokenID: "yes-tok", Side: types.SELL, Strategy: types.StrategyArbitrage}
	e.applyFill(order, 0.45, 10, 2000)

	if len(e.positions.Open()) != 0 {
		t.Errorf("len(Open()) after opposing fill = %d, want 0", len(e.positions.Open()))
	}
	closed := e.positions.Closed()
	if len(closed) != 1 {
		t.Fatalf("len(Closed()) = %d, want 1", len(closed))
	}
	if closed[0].RealizedPnL <= 0 {
		t.Errorf("RealizedPnL = %v, want > 0 (bought 0.40, closed 0.45)", closed[0].RealizedPnL)
	}
}

func TestClosePositionFeedsPerformance(t *testing.T) {
	t.Parallel()
	e := newTestEngine()

	p := e.positions.OnOpeningFill("mkt", "yes-tok", types.PositionLong, 0.40, 10, types.StrategyArbitrage, "o1", 1000)

	e.closePosition(*p, 0.35, "test", 2000)

	stats := e.perf.Compute(0, "")
	if stats.Trades != 1 {
		t.Errorf("perf.Compute().Trades = %d, want 1", stats.Trades)
	}
	if stats.Losses != 1 {
		t.Errorf("perf.Compute().Losses = %d, want 1 (bought 0.40, closed 0.35)", stats.Losses)
	}
}

func TestClosePositionFeedsCombinerForQuantSignalStrategy(t *testing.T) {
	t.Parallel()
	e := newTestEngine()

	p := e.positions.OnOpeningFill("mkt", "yes-tok", types.PositionLong, 0.40, 10, types.StrategyQuantSignal, "o1", 1000)
	e.recordAggregateDominant("yes-tok", "momentum")

	e.closePosition(*p, 0.45, "test", 2000)

	if _, stillTracked := e.takeDominant("yes-tok"); stillTracked {
		t.Errorf("dominant-component entry should be consumed on close")
	}
}

func TestSubmitDirectSkipsZeroPrice(t *testing.T) {
	t.Parallel()
	e := newTestEngine()

	e.submitDirect(context.Background(), "mkt", "yes-tok", types.BUY, 0, 10, types.StrategyMarketMaking, 1000)

	if len(e.oms.OpenOrders()) != 0 {
		t.Errorf("OpenOrders() len = %d, want 0 for a zero-price hedge", len(e.oms.OpenOrders()))
	}
}
