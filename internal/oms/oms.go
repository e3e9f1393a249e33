// Package oms implements the order lifecycle state machine (C9): the
// authoritative transition table, fill application with the 0.999
// tolerance fill rule, and a bounded audit log of every state change,
// fill, and rejected transition attempt.
package oms

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"hftengine/pkg/types"
)

// MaxAuditLog bounds the audit trail (§4.9).
const MaxAuditLog = 10_000

// FillTolerance is the relative tolerance used to decide FILLED vs
// PARTIAL_FILL (§9 numerical-precision note).
const FillTolerance = 0.999

var allowedTransitions = map[types.OrderState]map[types.OrderState]bool{
	types.StateCreated: {
		types.StateValidated: true,
		types.StateCancelled: true,
		types.StateError:     true,
	},
	types.StateValidated: {
		types.StateSubmitted: true,
		types.StateCancelled: true,
		types.StateError:     true,
	},
	types.StateSubmitted: {
		types.StateAcknowledged: true,
		types.StateRejected:     true,
		types.StateCancelled:    true,
		types.StateError:        true,
	},
	types.StateAcknowledged: {
		types.StatePartialFill: true,
		types.StateFilled:      true,
		types.StateCancelled:   true,
		types.StateExpired:     true,
		types.StateError:       true,
	},
	types.StatePartialFill: {
		types.StatePartialFill: true,
		types.StateFilled:      true,
		types.StateCancelled:   true,
		types.StateError:       true,
	},
	types.StateError: {
		types.StateCreated: true,
	},
}

// AuditEntry is one bounded audit-log record.
type AuditEntry struct {
	OrderID     string
	From        types.OrderState
	To          types.OrderState
	Accepted    bool
	Reason      string
	TimestampMs int64
}

// Manager owns every order's lifecycle. It is a process-wide singleton with
// the tick thread as the sole writer (§5); external readers use the
// copies returned by Get and OpenOrders.
type Manager struct {
	mu     sync.RWMutex
	orders map[string]*types.Order
	audit  []AuditEntry
	logger *slog.Logger
}

// New builds a Manager.
func New(logger *slog.Logger) *Manager {
	return &Manager{
		orders: make(map[string]*types.Order),
		logger: logger.With("component", "oms"),
	}
}

// Create builds a new order in the CREATED state.
func (m *Manager) Create(asset, tokenID string, side types.Side, kind types.OrderType, price, size float64, strategy types.StrategyID, opportunityID string, nowMs int64) *types.Order {
	o := &types.Order{
		ID:            uuid.NewString(),
		Asset:         asset,
		TokenID:       tokenID,
		Side:          side,
		Kind:          kind,
		Price:         price,
		Size:          size,
		State:         types.StateCreated,
		Strategy:      strategy,
		OpportunityID: opportunityID,
		CreatedAtMs:   nowMs,
		UpdatedAtMs:   nowMs,
	}
	m.mu.Lock()
	m.orders[o.ID] = o
	m.mu.Unlock()
	return o
}

// Transition attempts to move orderID from its current state to `to`.
// Illegal transitions are refused, logged to the audit trail, and leave
// state unchanged.
func (m *Manager) Transition(orderID string, to types.OrderState, reason string, nowMs int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[orderID]
	if !ok {
		return fmt.Errorf("oms: unknown order %s", orderID)
	}

	from := o.State
	accepted := allowedTransitions[from][to]
	m.appendAudit(AuditEntry{OrderID: orderID, From: from, To: to, Accepted: accepted, Reason: reason, TimestampMs: nowMs})

	if !accepted {
		m.logger.Warn("invalid transition refused", "order_id", orderID, "from", from, "to", to)
		return fmt.Errorf("oms: invalid transition %s -> %s for order %s", from, to, orderID)
	}

	o.State = to
	o.UpdatedAtMs = nowMs
	o.StateHistory = append(o.StateHistory, types.StateTransition{From: from, To: to, TimestampMs: nowMs, Reason: reason, Accepted: true})
	return nil
}

// ApplyFill records a fill against orderID. Only permitted from
// ACKNOWLEDGED or PARTIAL_FILL; recomputes avg_fill_price and transitions
// to FILLED once filled_size >= 0.999*size, else PARTIAL_FILL.
func (m *Manager) ApplyFill(orderID string, price, size, fee float64, nowMs int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[orderID]
	if !ok {
		return fmt.Errorf("oms: unknown order %s", orderID)
	}
	if o.State != types.StateAcknowledged && o.State != types.StatePartialFill {
		m.appendAudit(AuditEntry{OrderID: orderID, From: o.State, To: types.StatePartialFill, Accepted: false, Reason: "fill outside ack/partial", TimestampMs: nowMs})
		return fmt.Errorf("oms: fill refused, order %s in state %s", orderID, o.State)
	}

	fill := types.Fill{ID: uuid.NewString(), OrderID: orderID, Price: price, Size: size, Fee: fee, TimestampMs: nowMs}
	o.Fills = append(o.Fills, fill)

	var notional, totalSize float64
	for _, f := range o.Fills {
		notional += f.Price * f.Size
		totalSize += f.Size
	}
	o.FilledSize = totalSize
	if totalSize > 0 {
		o.AvgFillPrice = notional / totalSize
	}

	from := o.State
	to := types.StatePartialFill
	if o.FilledSize >= FillTolerance*o.Size {
		to = types.StateFilled
	}
	o.State = to
	o.UpdatedAtMs = nowMs
	o.StateHistory = append(o.StateHistory, types.StateTransition{From: from, To: to, TimestampMs: nowMs, Reason: "fill", Accepted: true})
	m.appendAudit(AuditEntry{OrderID: orderID, From: from, To: to, Accepted: true, Reason: "fill", TimestampMs: nowMs})
	return nil
}

// CancelAll transitions every non-terminal order to CANCELLED with a
// common reason string, used by the kill switch.
func (m *Manager) CancelAll(reason string, nowMs int64) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var cancelled []string
	for id, o := range m.orders {
		if o.State.Terminal() {
			continue
		}
		from := o.State
		o.State = types.StateCancelled
		o.UpdatedAtMs = nowMs
		o.StateHistory = append(o.StateHistory, types.StateTransition{From: from, To: types.StateCancelled, TimestampMs: nowMs, Reason: reason, Accepted: true})
		m.appendAudit(AuditEntry{OrderID: id, From: from, To: types.StateCancelled, Accepted: true, Reason: reason, TimestampMs: nowMs})
		cancelled = append(cancelled, id)
	}
	return cancelled
}

// Get returns a copy of the order, if present.
func (m *Manager) Get(orderID string) (types.Order, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[orderID]
	if !ok {
		return types.Order{}, false
	}
	return *o, true
}

// OpenOrders returns copies of every non-terminal order.
func (m *Manager) OpenOrders() []types.Order {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []types.Order
	for _, o := range m.orders {
		if !o.State.Terminal() {
			out = append(out, *o)
		}
	}
	return out
}

// OpenOrderCount returns the number of non-terminal orders.
func (m *Manager) OpenOrderCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, o := range m.orders {
		if !o.State.Terminal() {
			n++
		}
	}
	return n
}

// Audit returns a copy of the bounded audit log.
func (m *Manager) Audit() []AuditEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]AuditEntry, len(m.audit))
	copy(out, m.audit)
	return out
}

// appendAudit bounds the audit log to MaxAuditLog, evicting oldest first.
// Caller must hold m.mu.
func (m *Manager) appendAudit(e AuditEntry) {
	m.audit = append(m.audit, e)
	if len(m.audit) > MaxAuditLog {
		m.audit = m.audit[len(m.audit)-MaxAuditLog:]
	}
}
