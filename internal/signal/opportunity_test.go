package signal

import (
	"testing"

	"hftengine/pkg/types"
)

func TestToOpportunityFlatReturnsNotOK(t *testing.T) {
	t.Parallel()
	agg := types.AggregatedSignal{Direction: types.DirectionFlat}
	_, ok := ToOpportunity(agg, types.TickSnapshot{}, 10, 0)
	if ok {
		t.Errorf("ok = true for a flat signal, want false")
	}
}

func TestToOpportunityLongBuysAtAsk(t *testing.T) {
	t.Parallel()
	agg := types.AggregatedSignal{Direction: types.DirectionLong, Conviction: 0.5, Confidence: 0.6}
	snap := types.TickSnapshot{Asset: "mkt", YesTokenID: "yes", YesBestAsk: 0.62, YesBestBid: 0.60}

	got, ok := ToOpportunity(agg, snap, 10, 1000)
	if !ok {
		t.Fatalf("ok = false, want true")
	}
	if got.Side != types.BUY || got.Price != 0.62 {
		t.Errorf("Side/Price = %v/%v, want BUY/0.62", got.Side, got.Price)
	}
	if got.StrategyID != types.StrategyQuantSignal {
		t.Errorf("StrategyID = %v, want StrategyQuantSignal", got.StrategyID)
	}
}

func TestToOpportunityShortSellsAtBid(t *testing.T) {
	t.Parallel()
	agg := types.AggregatedSignal{Direction: types.DirectionShort, Conviction: -0.5, Confidence: 0.6}
	snap := types.TickSnapshot{Asset: "mkt", YesTokenID: "yes", YesBestAsk: 0.62, YesBestBid: 0.60}

	got, ok := ToOpportunity(agg, snap, 10, 1000)
	if !ok {
		t.Fatalf("ok = false, want true")
	}
	if got.Side != types.SELL || got.Price != 0.60 {
		t.Errorf("Side/Price = %v/%v, want SELL/0.60", got.Side, got.Price)
	}
}

func TestToOpportunityZeroPriceReturnsNotOK(t *testing.T) {
	t.Parallel()
	agg := types.AggregatedSignal{Direction: types.DirectionLong, Conviction: 0.5, Confidence: 0.6}
	snap := types.TickSnapshot{}
	_, ok := ToOpportunity(agg, snap, 10, 0)
	if ok {
		t.Errorf("ok = true with zero ask price, want false")
	}
}
