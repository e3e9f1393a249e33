package position

import (
	"io"
	"log/slog"
	"math"
	"testing"

	"hftengine/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOnOpeningFillCreatesThenAveragesVWAP(t *testing.T) {
	t.Parallel()

	tr := New(testLogger())
	tr.OnOpeningFill("asset", "tok", types.PositionLong, 0.50, 10, types.StrategyMarketMaking, "o1", 0)
	p := tr.OnOpeningFill("asset", "tok", types.PositionLong, 0.60, 10, types.StrategyMarketMaking, "o1", 100)

	// VWAP of (0.50*10 + 0.60*10)/20 = 0.55
	if math.Abs(p.EntryPrice-0.55) > 1e-9 {
		t.Errorf("EntryPrice = %v, want 0.55", p.EntryPrice)
	}
	if p.Size != 20 {
		t.Errorf("Size = %v, want 20", p.Size)
	}
}

func TestUpdateMarkUnrealizedLongAndShort(t *testing.T) {
	t.Parallel()

	tr := New(testLogger())
	tr.OnOpeningFill("a", "long-tok", types.PositionLong, 0.50, 10, types.StrategyMarketMaking, "o1", 0)
	tr.OnOpeningFill("a", "short-tok", types.PositionShort, 0.55, 10, types.StrategyMarketMaking, "o2", 0)

	tr.UpdateMark("long-tok", 0.55)
	tr.UpdateMark("short-tok", 0.60)

	open := tr.Open()
	var long, short types.TrackedPosition
	for _, p := range open {
		if p.TokenID == "long-tok" {
			long = p
		}
		if p.TokenID == "short-tok" {
			short = p
		}
	}
	// long: (0.55-0.50)*10/0.50 = 1.0
	if math.Abs(long.UnrealizedPnL-1.0) > 1e-9 {
		t.Errorf("long UnrealizedPnL = %v, want 1.0", long.UnrealizedPnL)
	}
	// short: (0.55-0.60)*10/0.55 ≈ -0.909
	want := (0.55 - 0.60) * 10 / 0.55
	if math.Abs(short.UnrealizedPnL-want) > 1e-6 {
		t.Errorf("short UnrealizedPnL = %v, want %v", short.UnrealizedPnL, want)
	}
}

func TestCloseFillRealizesAndMovesToClosedRing(t *testing.T) {
	t.Parallel()

	tr := New(testLogger())
	tr.OnOpeningFill("a", "tok", types.PositionLong, 0.50, 10, types.StrategyMarketMaking, "o1", 0)

	closedPos, ok := tr.CloseFill("tok", 0.60, 100)
	if !ok {
		t.Fatalf("CloseFill() ok = false, want true")
	}
	want := (0.60 - 0.50) * 10 / 0.50
	if math.Abs(closedPos.RealizedPnL-want) > 1e-9 {
		t.Errorf("RealizedPnL = %v, want %v", closedPos.RealizedPnL, want)
	}
	if len(tr.Open()) != 0 {
		t.Errorf("Open() len = %d, want 0 after close", len(tr.Open()))
	}
	if len(tr.Closed()) != 1 {
		t.Errorf("Closed() len = %d, want 1", len(tr.Closed()))
	}
	if math.Abs(tr.DailyRealizedPnL()-want) > 1e-9 {
		t.Errorf("DailyRealizedPnL() = %v, want %v", tr.DailyRealizedPnL(), want)
	}
}

func TestCloseFillUnknownTokenReturnsFalse(t *testing.T) {
	t.Parallel()

	tr := New(testLogger())
	_, ok := tr.CloseFill("missing", 1, 0)
	if ok {
		t.Errorf("CloseFill(missing) ok = true, want false")
	}
}

func TestExposureInvariantMatchesOpenSum(t *testing.T) {
	t.Parallel()

	tr := New(testLogger())
	tr.OnOpeningFill("assetA", "tok1", types.PositionLong, 0.5, 10, types.StrategyMarketMaking, "o1", 0)
	tr.OnOpeningFill("assetA", "tok2", types.PositionLong, 0.4, 5, types.StrategyMarketMaking, "o2", 0)

	var sum float64
	for _, p := range tr.Open() {
		sum += p.Size * p.EntryPrice
	}
	byAsset := tr.ExposureByAsset()
	if math.Abs(byAsset["assetA"]-sum) > 1e-9 {
		t.Errorf("ExposureByAsset()[assetA] = %v, want %v", byAsset["assetA"], sum)
	}
	if math.Abs(tr.TotalExposure()-sum) > 1e-9 {
		t.Errorf("TotalExposure() = %v, want %v", tr.TotalExposure(), sum)
	}
}

func TestReconcileAdoptsVenueOnlyPosition(t *testing.T) {
	t.Parallel()

	tr := New(testLogger())
	tr.Reconcile([]types.ExternalPosition{
		{Asset: "a", TokenID: "tok", Side: types.PositionLong, Size: 5, EntryPrice: 0.5},
	})
	open := tr.Open()
	if len(open) != 1 || open[0].TokenID != "tok" {
		t.Errorf("Open() after reconcile = %+v, want adopted venue position", open)
	}
}

func TestResetDailyZeroesCounter(t *testing.T) {
	t.Parallel()

	tr := New(testLogger())
	tr.OnOpeningFill("a", "tok", types.PositionLong, 0.5, 10, types.StrategyMarketMaking, "o1", 0)
	tr.CloseFill("tok", 0.6, 0)
	if tr.DailyRealizedPnL() == 0 {
		t.Fatalf("DailyRealizedPnL() = 0, want nonzero before reset")
	}
	tr.ResetDaily()
	if tr.DailyRealizedPnL() != 0 {
		t.Errorf("DailyRealizedPnL() after reset = %v, want 0", tr.DailyRealizedPnL())
	}
}
