// Package killswitch implements the kill switch (C12): an idempotent,
// last-resort halt that cancels every open order, force-closes every open
// position at last known price, and latches the risk gate's halted flag.
package killswitch

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"hftengine/internal/oms"
	"hftengine/internal/position"
	"hftengine/internal/venue"
)

// LastPriceFunc resolves the last known price for a token, used to mark
// force-closed positions when no live book is available.
type LastPriceFunc func(tokenID string) (price float64, ok bool)

// RiskHalter is the risk gate's explicit-halt latch, set as step 3 of the
// trigger sequence (§4.12). *internal/risk.Manager satisfies this directly
// through its own SetHalted method; the kill switch sets the latch with it.
type RiskHalter interface {
	SetHalted(reason string)
}

// Switch owns the halted latch and the cancel/close machinery. Tripping is
// idempotent: a second Trigger while already halted is a no-op that returns
// immediately without re-cancelling or re-closing.
type Switch struct {
	mu       sync.Mutex
	halted   atomic.Bool
	oms      *oms.Manager
	tracker  *position.Tracker
	router   venue.OrderRouter
	alerts   venue.AlertChannel
	riskGate RiskHalter
	lastPx   LastPriceFunc
	logger   *slog.Logger
	tripInfo atomic.Value // holds TripInfo
}

// TripInfo records the reason and time of the most recent trip.
type TripInfo struct {
	Reason      string
	TimestampMs int64
}

// New builds a Switch. router, alerts, and riskGate may be nil (riskGate
// nil means this switch doesn't own a risk-gate latch, e.g. in tests);
// lastPx resolves closing marks for positions.
func New(omsManager *oms.Manager, tracker *position.Tracker, router venue.OrderRouter, alerts venue.AlertChannel, riskGate RiskHalter, lastPx LastPriceFunc, logger *slog.Logger) *Switch {
	if alerts == nil {
		alerts = venue.NopAlertChannel{}
	}
	s := &Switch{
		oms:      omsManager,
		tracker:  tracker,
		router:   router,
		alerts:   alerts,
		riskGate: riskGate,
		lastPx:   lastPx,
		logger:   logger.With("component", "killswitch"),
	}
	s.tripInfo.Store(TripInfo{})
	return s
}

// Halted reports whether the switch is currently tripped.
func (s *Switch) Halted() bool {
	return s.halted.Load()
}

// LastTrip returns the reason/time of the most recent trip, zero-valued if
// never tripped.
func (s *Switch) LastTrip() TripInfo {
	return s.tripInfo.Load().(TripInfo)
}

// Trigger halts trading: cancels every open order, force-closes every open
// position at last known price, latches halted, and emits a critical alert.
// Idempotent — a concurrent or repeated call while already halted returns
// nil without side effects.
func (s *Switch) Trigger(ctx context.Context, reason string, nowMs int64) error {
	if !s.halted.CompareAndSwap(false, true) {
		return nil
	}
	s.tripInfo.Store(TripInfo{Reason: reason, TimestampMs: nowMs})
	s.logger.Error("kill switch triggered", "reason", reason)

	s.mu.Lock()
	defer s.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.oms.CancelAll(reason, nowMs)
		if s.router != nil {
			_, err := s.router.CancelAll(gctx, "")
			return err
		}
		return nil
	})
	g.Go(func() error {
		s.closeAllPositions(nowMs)
		return nil
	})
	err := g.Wait()

	if s.riskGate != nil {
		s.riskGate.SetHalted(reason)
	}
	s.alerts.Alert(ctx, "CRITICAL", "kill switch triggered: "+reason)
	return err
}

func (s *Switch) closeAllPositions(nowMs int64) {
	for _, p := range s.tracker.Open() {
		price := p.CurrentPrice
		if s.lastPx != nil {
			if px, ok := s.lastPx(p.TokenID); ok {
				price = px
			}
		}
		if price == 0 {
			price = p.EntryPrice
		}
		s.tracker.CloseFill(p.TokenID, price, nowMs)
	}
}

// Reset clears the halted latch, leaving all other state (closed positions,
// cancelled orders, audit trail) exactly as the trip left it. Requires an
// explicit operator call — nothing in the engine unhalts on its own.
func (s *Switch) Reset() {
	s.halted.Store(false)
}
