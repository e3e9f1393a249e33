package tick

import (
	"testing"

	"hftengine/internal/marketmaking"
	"hftengine/pkg/types"
)

func TestMMOpportunityFieldsFromQuote(t *testing.T) {
	t.Parallel()
	snap := types.TickSnapshot{Asset: "mkt", ConditionID: "cond", YesTokenID: "yes-tok"}
	q := &marketmaking.Quote{Price: 0.48, Size: 3}

	got := mmOpportunity(snap, types.BUY, q, 40, 5000)

	if got.StrategyID != types.StrategyMarketMaking || got.Type != types.OppMarketMaking {
		t.Errorf("StrategyID/Type = %v/%v, want MARKET_MAKING/MARKET_MAKING_QUOTE", got.StrategyID, got.Type)
	}
	if got.Price != 0.48 || got.SizeUSD != 3 {
		t.Errorf("Price/SizeUSD = %v/%v, want 0.48/3", got.Price, got.SizeUSD)
	}
	if got.Edge <= 0 {
		t.Errorf("Edge = %v, want > 0 for a positive spread", got.Edge)
	}
}

func TestEvaluateMarketMakingHaltsOnDailyLoss(t *testing.T) {
	t.Parallel()
	e := newTestEngine()
	e.cfg.MM.MaxDailyLossUSD = 10

	p := e.positions.OnOpeningFill("mkt", "yes-tok", types.PositionLong, 0.5, 100, types.StrategyArbitrage, "o1", 0)
	e.positions.CloseFill(p.TokenID, 0.40, 1000) // realizes a loss exceeding MaxDailyLossUSD

	h := e.assetHistory("mkt")
	snap := types.TickSnapshot{Asset: "mkt", YesMid: 0.5}

	opps := e.evaluateMarketMaking(types.MarketInfo{Slug: "mkt"}, snap, h, 2000)
	if len(opps) != 0 {
		t.Errorf("evaluateMarketMaking() len = %d, want 0 while halted on daily loss", len(opps))
	}
}

func TestEvaluateMarketMakingQuotesWhenNotHalted(t *testing.T) {
	t.Parallel()
	e := newTestEngine()

	h := e.assetHistory("mkt")
	snap := types.TickSnapshot{Asset: "mkt", YesMid: 0.5}

	opps := e.evaluateMarketMaking(types.MarketInfo{Slug: "mkt"}, snap, h, 2000)
	if len(opps) != 2 {
		t.Fatalf("evaluateMarketMaking() len = %d, want 2 (bid+ask) for flat inventory", len(opps))
	}
}
