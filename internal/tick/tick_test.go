package tick

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"hftengine/internal/signal"
	"hftengine/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testCombiner() *signal.Combiner {
	return signal.NewCombiner(map[string]float64{
		"momentum": 1, "mean_reversion": 1, "microstructure": 1,
		"cross_asset": 1, "spread_regime": 1, "volume_profile": 1,
	})
}

type fakeProvider struct {
	books map[string]types.OrderBookSnapshot
}

func (f fakeProvider) GetOrderBook(_ context.Context, tokenID string) (types.OrderBookSnapshot, error) {
	return f.books[tokenID], nil
}

func (f fakeProvider) GetMarket(_ context.Context, _ string) (types.MarketInfo, error) {
	return types.MarketInfo{}, nil
}

func TestNewConfigDefaultsAreNonZero(t *testing.T) {
	t.Parallel()
	cfg := NewConfig()
	if cfg.HFT.MaxArbNotional == 0 {
		t.Errorf("HFT config not defaulted")
	}
	if cfg.MM.Gamma == 0 {
		t.Errorf("MM config not defaulted")
	}
	if cfg.Stoploss.MaxHoldMs == 0 {
		t.Errorf("Stoploss config not defaulted")
	}
	if cfg.FeeRate <= 0 {
		t.Errorf("FeeRate = %v, want > 0", cfg.FeeRate)
	}
}

func TestTimeToResolutionMsNoDeadlineIsLarge(t *testing.T) {
	t.Parallel()
	got := timeToResolutionMs(types.MarketInfo{}, 1000)
	if got < 365*24*3600*1000 {
		t.Errorf("timeToResolutionMs() = %v, want a very large sentinel for no deadline", got)
	}
}

func TestTimeToResolutionMsWithDeadline(t *testing.T) {
	t.Parallel()
	end := time.UnixMilli(100_000)
	got := timeToResolutionMs(types.MarketInfo{EndDate: end}, 40_000)
	if got != 60_000 {
		t.Errorf("timeToResolutionMs() = %v, want 60000", got)
	}
}

func newTestEngine() *Engine {
	return New(NewConfig(), fakeProvider{}, nil, nil, nil, testCombiner(), testLogger())
}

func TestSweepStaleOrdersCancelsOldOpenOrders(t *testing.T) {
	t.Parallel()
	e := newTestEngine()

	order := e.oms.Create("asset", "tok", types.BUY, types.OrderTypeGTC, 0.5, 10, types.StrategyMarketMaking, "", 0)
	_ = e.oms.Transition(order.ID, types.StateValidated, "test", 0)

	e.sweepStaleOrders(context.Background(), StaleOrderAgeMs+1)

	got, _ := e.oms.Get(order.ID)
	if got.State != types.StateCancelled {
		t.Errorf("order state after sweep = %v, want CANCELLED", got.State)
	}
}

func TestSweepStaleOrdersLeavesFreshOrders(t *testing.T) {
	t.Parallel()
	e := newTestEngine()

	order := e.oms.Create("asset", "tok", types.BUY, types.OrderTypeGTC, 0.5, 10, types.StrategyMarketMaking, "", 1000)
	_ = e.oms.Transition(order.ID, types.StateValidated, "test", 1000)

	e.sweepStaleOrders(context.Background(), 1000+StaleOrderAgeMs-1)

	got, _ := e.oms.Get(order.ID)
	if got.State == types.StateCancelled {
		t.Errorf("order state after sweep = CANCELLED, want unchanged (too fresh)")
	}
}
