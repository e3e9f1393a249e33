package killswitch

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"

	"hftengine/internal/oms"
	"hftengine/internal/position"
	"hftengine/internal/risk"
	"hftengine/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTriggerCancelsOpenOrders(t *testing.T) {
	t.Parallel()

	m := oms.New(testLogger())
	o := m.Create("a", "tok", types.BUY, types.OrderTypeGTC, 0.5, 10, types.StrategyMarketMaking, "", 0)
	tr := position.New(testLogger())

	sw := New(m, tr, nil, nil, nil, nil, testLogger())
	if err := sw.Trigger(context.Background(), "test halt", 100); err != nil {
		t.Fatalf("Trigger() err = %v", err)
	}

	got, _ := m.Get(o.ID)
	if got.State != types.StateCancelled {
		t.Errorf("order state = %v, want CANCELLED", got.State)
	}
}

func TestTriggerClosesOpenPositionsAtLastKnownPrice(t *testing.T) {
	t.Parallel()

	m := oms.New(testLogger())
	tr := position.New(testLogger())
	tr.OnOpeningFill("asset", "tok", types.PositionLong, 0.50, 10, types.StrategyMarketMaking, "o1", 0)

	lastPx := func(tokenID string) (float64, bool) {
		if tokenID == "tok" {
			return 0.55, true
		}
		return 0, false
	}

	sw := New(m, tr, nil, nil, nil, lastPx, testLogger())
	if err := sw.Trigger(context.Background(), "test halt", 100); err != nil {
		t.Fatalf("Trigger() err = %v", err)
	}

	if len(tr.Open()) != 0 {
		t.Errorf("Open() len = %d, want 0 after trigger", len(tr.Open()))
	}
	closed := tr.Closed()
	if len(closed) != 1 {
		t.Fatalf("Closed() len = %d, want 1", len(closed))
	}
	if closed[0].CurrentPrice != 0.55 {
		t.Errorf("closed price = %v, want 0.55", closed[0].CurrentPrice)
	}
}

func TestTriggerSetsHaltedAndIsIdempotent(t *testing.T) {
	t.Parallel()

	m := oms.New(testLogger())
	tr := position.New(testLogger())
	sw := New(m, tr, nil, nil, nil, nil, testLogger())

	if sw.Halted() {
		t.Fatalf("Halted() = true before any trigger")
	}
	sw.Trigger(context.Background(), "first", 100)
	if !sw.Halted() {
		t.Fatalf("Halted() = false after trigger")
	}
	sw.Trigger(context.Background(), "second", 200)
	if sw.LastTrip().Reason != "first" {
		t.Errorf("LastTrip().Reason = %v, want 'first' (second trigger must be a no-op)", sw.LastTrip().Reason)
	}
}

func TestResetClearsHaltedButNotHistory(t *testing.T) {
	t.Parallel()

	m := oms.New(testLogger())
	tr := position.New(testLogger())
	tr.OnOpeningFill("asset", "tok", types.PositionLong, 0.50, 10, types.StrategyMarketMaking, "o1", 0)

	sw := New(m, tr, nil, nil, nil, nil, testLogger())
	sw.Trigger(context.Background(), "halt", 100)
	sw.Reset()

	if sw.Halted() {
		t.Errorf("Halted() = true after Reset()")
	}
	if len(tr.Closed()) != 1 {
		t.Errorf("Closed() len = %d after Reset(), want 1 (past state must be untouched)", len(tr.Closed()))
	}
}

func TestTriggerLatchesRiskGateHalt(t *testing.T) {
	t.Parallel()

	m := oms.New(testLogger())
	tr := position.New(testLogger())
	gate := risk.NewManager(types.RiskLimits{}, testLogger())

	sw := New(m, tr, nil, nil, gate, nil, testLogger())
	sw.Trigger(context.Background(), "portfolio breach", 100)

	if !gate.Halted() {
		t.Errorf("gate.Halted() = false after kill switch trigger")
	}
	if gate.HaltReason() != "portfolio breach" {
		t.Errorf("gate.HaltReason() = %q, want 'portfolio breach'", gate.HaltReason())
	}
}

func TestConcurrentTriggersOnlyHaltOnce(t *testing.T) {
	t.Parallel()

	m := oms.New(testLogger())
	tr := position.New(testLogger())
	sw := New(m, tr, nil, nil, nil, nil, testLogger())

	var successCount atomic.Int32
	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func(n int) {
			sw.Trigger(context.Background(), "concurrent", int64(n))
			successCount.Add(1)
			done <- struct{}{}
		}(i)
	}
	for i := 0; i < 10; i++ {
		<-done
	}
	if !sw.Halted() {
		t.Errorf("Halted() = false after concurrent triggers")
	}
}
