package oms

import (
	"io"
	"log/slog"
	"testing"

	"hftengine/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestIllegalTransitionRefusedAndAudited(t *testing.T) {
	t.Parallel()

	m := New(testLogger())
	o := m.Create("asset", "tok", types.BUY, types.OrderTypeGTC, 0.5, 10, types.StrategyMarketMaking, "", 0)

	err := m.Transition(o.ID, types.StateAcknowledged, "skip ahead", 100)
	if err == nil {
		t.Fatalf("Transition(CREATED->ACKNOWLEDGED) err = nil, want error")
	}

	got, _ := m.Get(o.ID)
	if got.State != types.StateCreated {
		t.Errorf("state after illegal transition = %v, want CREATED", got.State)
	}

	audit := m.Audit()
	if len(audit) == 0 || audit[len(audit)-1].Accepted {
		t.Fatalf("audit = %+v, want a rejected entry", audit)
	}
}

func TestLegalTransitionSequence(t *testing.T) {
	t.Parallel()

	m := New(testLogger())
	o := m.Create("asset", "tok", types.BUY, types.OrderTypeGTC, 0.5, 10, types.StrategyMarketMaking, "", 0)

	steps := []types.OrderState{types.StateValidated, types.StateSubmitted, types.StateAcknowledged}
	for _, s := range steps {
		if err := m.Transition(o.ID, s, "ok", 100); err != nil {
			t.Fatalf("Transition(-> %v) err = %v", s, err)
		}
	}
	got, _ := m.Get(o.ID)
	if got.State != types.StateAcknowledged {
		t.Errorf("state = %v, want ACKNOWLEDGED", got.State)
	}
}

func TestApplyFillPartialThenFull(t *testing.T) {
	t.Parallel()

	m := New(testLogger())
	o := m.Create("asset", "tok", types.BUY, types.OrderTypeGTC, 0.5, 10, types.StrategyMarketMaking, "", 0)
	m.Transition(o.ID, types.StateValidated, "", 0)
	m.Transition(o.ID, types.StateSubmitted, "", 0)
	m.Transition(o.ID, types.StateAcknowledged, "", 0)

	if err := m.ApplyFill(o.ID, 0.5, 4, 0, 10); err != nil {
		t.Fatalf("ApplyFill() err = %v", err)
	}
	got, _ := m.Get(o.ID)
	if got.State != types.StatePartialFill {
		t.Errorf("state after partial fill = %v, want PARTIAL_FILL", got.State)
	}

	if err := m.ApplyFill(o.ID, 0.5, 6, 0, 20); err != nil {
		t.Fatalf("ApplyFill() err = %v", err)
	}
	got, _ = m.Get(o.ID)
	if got.State != types.StateFilled {
		t.Errorf("state after full fill = %v, want FILLED", got.State)
	}
	if got.AvgFillPrice != 0.5 {
		t.Errorf("AvgFillPrice = %v, want 0.5", got.AvgFillPrice)
	}
}

func TestApplyFillToleranceBoundary(t *testing.T) {
	t.Parallel()

	m := New(testLogger())
	o := m.Create("asset", "tok", types.BUY, types.OrderTypeGTC, 0.5, 10, types.StrategyMarketMaking, "", 0)
	m.Transition(o.ID, types.StateValidated, "", 0)
	m.Transition(o.ID, types.StateSubmitted, "", 0)
	m.Transition(o.ID, types.StateAcknowledged, "", 0)

	// 9.99/10 = 0.999 exactly meets the tolerance -> FILLED.
	if err := m.ApplyFill(o.ID, 0.5, 9.99, 0, 10); err != nil {
		t.Fatalf("ApplyFill() err = %v", err)
	}
	got, _ := m.Get(o.ID)
	if got.State != types.StateFilled {
		t.Errorf("state = %v, want FILLED at 0.999 tolerance boundary", got.State)
	}
}

func TestFillRefusedOutsideAckOrPartial(t *testing.T) {
	t.Parallel()

	m := New(testLogger())
	o := m.Create("asset", "tok", types.BUY, types.OrderTypeGTC, 0.5, 10, types.StrategyMarketMaking, "", 0)

	if err := m.ApplyFill(o.ID, 0.5, 1, 0, 10); err == nil {
		t.Errorf("ApplyFill() on CREATED order err = nil, want error")
	}
}

func TestCancelAllTransitionsOnlyNonTerminal(t *testing.T) {
	t.Parallel()

	m := New(testLogger())
	o1 := m.Create("a", "t1", types.BUY, types.OrderTypeGTC, 0.5, 10, types.StrategyMarketMaking, "", 0)
	o2 := m.Create("a", "t2", types.BUY, types.OrderTypeGTC, 0.5, 10, types.StrategyMarketMaking, "", 0)
	m.Transition(o2.ID, types.StateValidated, "", 0)
	m.Transition(o2.ID, types.StateCancelled, "", 0) // already terminal

	cancelled := m.CancelAll("kill switch", 50)
	if len(cancelled) != 1 || cancelled[0] != o1.ID {
		t.Errorf("CancelAll() = %v, want only %v", cancelled, o1.ID)
	}
}

func TestOrderStateMachineStaysWithinTableUnderRandomAttempts(t *testing.T) {
	t.Parallel()

	m := New(testLogger())
	o := m.Create("a", "t", types.BUY, types.OrderTypeGTC, 0.5, 10, types.StrategyMarketMaking, "", 0)

	attempts := []types.OrderState{
		types.StateFilled, types.StateSubmitted, types.StateValidated,
		types.StateSubmitted, types.StateAcknowledged,
	}
	for _, to := range attempts {
		m.Transition(o.ID, to, "fuzz", 0)
		got, _ := m.Get(o.ID)
		if got.State.Terminal() {
			// once terminal, must never move again
			prevState := got.State
			m.Transition(o.ID, types.StateSubmitted, "post-terminal", 0)
			got2, _ := m.Get(o.ID)
			if got2.State != prevState {
				t.Fatalf("terminal state mutated: %v -> %v", prevState, got2.State)
			}
		}
	}
}
