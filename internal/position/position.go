// Package position implements the position tracker (C10): VWAP entry on
// opening fills, unrealized/realized PnL, a bounded closed-positions ring,
// exposure rollups, and reconciliation against a venue's external position
// view.
package position

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"hftengine/pkg/types"
)

// MaxClosedPositions bounds the closed-positions ring (§4.10).
const MaxClosedPositions = 1000

// Tracker owns every open and recently-closed position. Process-wide
// singleton with the tick thread as the sole writer; external readers use
// the copies returned by Open and Closed.
type Tracker struct {
	mu              sync.RWMutex
	open            map[string]*types.TrackedPosition // keyed by TokenID
	closed          []types.TrackedPosition
	dailyRealizedPnL float64
	logger          *slog.Logger
}

// New builds a Tracker.
func New(logger *slog.Logger) *Tracker {
	return &Tracker{
		open:   make(map[string]*types.TrackedPosition),
		logger: logger.With("component", "position"),
	}
}

// OnOpeningFill creates or adds to a position at the given fill, computing
// VWAP entry across successive same-direction fills.
func (t *Tracker) OnOpeningFill(asset, tokenID string, side types.PositionSide, fillPrice, fillSize float64, strategy types.StrategyID, orderID string, nowMs int64) *types.TrackedPosition {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.open[tokenID]
	if !ok {
		p = &types.TrackedPosition{
			ID:         uuid.NewString(),
			Asset:      asset,
			TokenID:    tokenID,
			Side:       side,
			EntryPrice: fillPrice,
			Size:       fillSize,
			Strategy:   strategy,
			OrderID:    orderID,
			OpenedAtMs: nowMs,
			MaxPrice:   fillPrice,
			MinPrice:   fillPrice,
		}
		t.open[tokenID] = p
		return p
	}

	totalNotional := p.EntryPrice*p.Size + fillPrice*fillSize
	p.Size += fillSize
	if p.Size > 0 {
		p.EntryPrice = totalNotional / p.Size
	}
	return p
}

// UpdateMark recomputes unrealized PnL for the position at tokenID given
// the current price, in return units (scaled by 1/entry).
func (t *Tracker) UpdateMark(tokenID string, currentPrice float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.open[tokenID]
	if !ok || p.EntryPrice == 0 {
		return
	}
	p.CurrentPrice = currentPrice
	if currentPrice > p.MaxPrice {
		p.MaxPrice = currentPrice
	}
	if currentPrice < p.MinPrice || p.MinPrice == 0 {
		p.MinPrice = currentPrice
	}
	if p.Side == types.PositionLong {
		p.UnrealizedPnL = (currentPrice - p.EntryPrice) * p.Size / p.EntryPrice
	} else {
		p.UnrealizedPnL = (p.EntryPrice - currentPrice) * p.Size / p.EntryPrice
	}
}

// CloseFill realizes the signed delta for a closing fill, moves the
// position to the bounded closed-positions ring, and updates the running
// daily realized PnL.
func (t *Tracker) CloseFill(tokenID string, closePrice float64, nowMs int64) (types.TrackedPosition, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.open[tokenID]
	if !ok {
		return types.TrackedPosition{}, false
	}

	var realized float64
	if p.EntryPrice != 0 {
		if p.Side == types.PositionLong {
			realized = (closePrice - p.EntryPrice) * p.Size / p.EntryPrice
		} else {
			realized = (p.EntryPrice - closePrice) * p.Size / p.EntryPrice
		}
	}
	p.RealizedPnL = realized
	p.CurrentPrice = closePrice
	p.ClosedAtMs = nowMs

	delete(t.open, tokenID)
	closedCopy := *p
	t.closed = append(t.closed, closedCopy)
	if len(t.closed) > MaxClosedPositions {
		t.closed = t.closed[len(t.closed)-MaxClosedPositions:]
	}
	t.dailyRealizedPnL += realized

	return closedCopy, true
}

// ResetDaily zeroes the running daily realized PnL counter. The tracker
// never resets the counter on its own, and no other package in the engine
// calls ResetDaily.
func (t *Tracker) ResetDaily() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dailyRealizedPnL = 0
}

// DailyRealizedPnL returns the running total since the last ResetDaily.
func (t *Tracker) DailyRealizedPnL() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.dailyRealizedPnL
}

// Open returns copies of every open position.
func (t *Tracker) Open() []types.TrackedPosition {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]types.TrackedPosition, 0, len(t.open))
	for _, p := range t.open {
		out = append(out, *p)
	}
	return out
}

// Closed returns a copy of the bounded closed-positions ring.
func (t *Tracker) Closed() []types.TrackedPosition {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]types.TrackedPosition, len(t.closed))
	copy(out, t.closed)
	return out
}

// ExposureByAsset sums open position size (in USD notional at entry) per
// asset, the quantity invariant §8.3 checks after every mutation.
func (t *Tracker) ExposureByAsset() map[string]float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]float64)
	for _, p := range t.open {
		out[p.Asset] += p.Size * p.EntryPrice
	}
	return out
}

// TotalExposure sums notional exposure across every open position.
func (t *Tracker) TotalExposure() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var total float64
	for _, p := range t.open {
		total += p.Size * p.EntryPrice
	}
	return total
}

// SetPosition restores a position from persisted state (engine restart
// recovery), bypassing fill bookkeeping.
func (t *Tracker) SetPosition(p types.TrackedPosition) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cp := p
	t.open[p.TokenID] = &cp
}

// Reconcile logs and corrects drift between the tracker's view and the
// venue's authoritative position list. Venue-reported positions the
// tracker doesn't know about are adopted; tracker positions the venue no
// longer reports are logged as drift (the tracker's own fills remain
// authoritative for PnL, since the venue list carries no entry-price
// history beyond what it was given).
func (t *Tracker) Reconcile(external []types.ExternalPosition) {
	t.mu.Lock()
	defer t.mu.Unlock()

	seen := make(map[string]bool, len(external))
	for _, ext := range external {
		seen[ext.TokenID] = true
		local, ok := t.open[ext.TokenID]
		if !ok {
			t.logger.Warn("reconcile: adopting venue-only position", "token_id", ext.TokenID, "size", ext.Size)
			t.open[ext.TokenID] = &types.TrackedPosition{
				ID:         uuid.NewString(),
				Asset:      ext.Asset,
				TokenID:    ext.TokenID,
				Side:       ext.Side,
				Size:       ext.Size,
				EntryPrice: ext.EntryPrice,
			}
			continue
		}
		if local.Size != ext.Size {
			t.logger.Warn("reconcile: size drift", "token_id", ext.TokenID, "local_size", local.Size, "venue_size", ext.Size)
		}
	}
	for tokenID := range t.open {
		if !seen[tokenID] {
			t.logger.Warn("reconcile: local position missing from venue", "token_id", tokenID)
		}
	}
}
