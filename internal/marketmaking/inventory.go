package marketmaking

import (
	"math"
	"sync"

	"hftengine/pkg/types"
)

// Tracker owns the signed, VWAP-averaged inventory for each quoted
// instrument. Unlike the discrete open/close position lifecycle used
// elsewhere, a market maker continuously adds to and trims a single signed
// position, so fills are folded into a running VWAP rather than tracked as
// separate lots.
type Tracker struct {
	mu     sync.RWMutex
	states map[string]*types.InventoryState
}

// New builds an empty Tracker.
func New() *Tracker {
	return &Tracker{states: make(map[string]*types.InventoryState)}
}

func (t *Tracker) stateLocked(asset string) *types.InventoryState {
	s, ok := t.states[asset]
	if !ok {
		s = &types.InventoryState{Asset: asset}
		t.states[asset] = s
	}
	return s
}

// OnFill folds a fill into the asset's signed inventory. A BUY increases
// position (or reduces a short, realizing PnL against the prior VWAP); a
// SELL is the mirror image.
func (t *Tracker) OnFill(asset string, side types.Side, price, size float64, nowMs int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.stateLocked(asset)
	signedSize := size
	if side == types.SELL {
		signedSize = -size
	}

	switch {
	case s.Position == 0 || sameSign(s.Position, signedSize):
		// Adding to (or opening) a position: extend the VWAP.
		totalCost := s.EntryVWAP*math.Abs(s.Position) + price*size
		s.Position += signedSize
		if s.Position != 0 {
			s.EntryVWAP = totalCost / math.Abs(s.Position)
		} else {
			s.EntryVWAP = 0
		}
	default:
		// Reducing (or flipping through) the position: realize PnL on the
		// portion that offsets the existing side.
		closingSize := math.Min(math.Abs(signedSize), math.Abs(s.Position))
		if s.Position > 0 {
			s.RealizedPnL += (price - s.EntryVWAP) * closingSize
		} else {
			s.RealizedPnL += (s.EntryVWAP - price) * closingSize
		}
		s.Position += signedSize
		if math.Abs(s.Position) < 1e-9 {
			s.Position = 0
			s.EntryVWAP = 0
		} else if math.Abs(signedSize) > closingSize {
			// Flipped through flat: the remainder opens a new position at
			// the fill price.
			s.EntryVWAP = price
		}
	}
	if math.Abs(s.Position) > s.MaxPosition {
		s.MaxPosition = math.Abs(s.Position)
	}
}

func sameSign(a, b float64) bool {
	return (a >= 0 && b >= 0) || (a <= 0 && b <= 0)
}

// UpdateMarkToMarket recomputes unrealized PnL against the current mid.
func (t *Tracker) UpdateMarkToMarket(asset string, mid float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.stateLocked(asset)
	s.UnrealizedPnL = s.Position * (mid - s.EntryVWAP)
}

// Snapshot returns a copy of the asset's current inventory state.
func (t *Tracker) Snapshot(asset string) types.InventoryState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if s, ok := t.states[asset]; ok {
		return *s
	}
	return types.InventoryState{Asset: asset}
}

// NormalizedInventory returns Position/qMax clamped to [-1, 1], the q
// parameter the quoting engine uses for skew and reservation price. Returns
// 0 if qMax <= 0.
func (t *Tracker) NormalizedInventory(asset string, qMax float64) float64 {
	if qMax <= 0 {
		return 0
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.states[asset]
	if !ok {
		return 0
	}
	return clamp(s.Position/qMax, -1, 1)
}
