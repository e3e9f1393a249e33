package tick

import (
	"context"

	"hftengine/internal/risk"
	"hftengine/internal/venue"
	"hftengine/pkg/types"
)

func (e *Engine) recordAggregateDominant(tokenID, componentName string) {
	if componentName == "" {
		return
	}
	e.dominantMu.Lock()
	e.dominant[tokenID] = componentName
	e.dominantMu.Unlock()
}

func (e *Engine) takeDominant(tokenID string) (string, bool) {
	e.dominantMu.Lock()
	defer e.dominantMu.Unlock()
	name, ok := e.dominant[tokenID]
	if ok {
		delete(e.dominant, tokenID)
	}
	return name, ok
}

// handleOpportunity runs one strategy-emitted opportunity through the
// per-opportunity risk gate and, if approved, submits it.
func (e *Engine) handleOpportunity(ctx context.Context, mkt types.MarketInfo, opp types.Opportunity, edgeMult float64, nowMs int64) {
	cc := risk.CheckContext{
		TimeToResolutionMs:  timeToResolutionMs(mkt, nowMs),
		PerAssetInventory:   e.positions.ExposureByAsset()[opp.Asset],
		TotalExposure:       e.positions.TotalExposure(),
		OpenOrderCount:      e.oms.OpenOrderCount(),
		EdgeDecayMultiplier: edgeMult,
	}
	decision := e.riskMgr.Check(opp, cc, nowMs)
	if !decision.Approved {
		e.logger.Debug("opportunity denied", "strategy", opp.StrategyID, "asset", opp.Asset, "reason", decision.DenyReason)
		return
	}
	if decision.SuggestedSize <= 0 || opp.Price <= 0 {
		return
	}

	size := decision.SuggestedSize / opp.Price
	e.submitOrder(ctx, opp.Asset, opp.TokenID, opp.Side, opp.Price, size, opp.StrategyID, opp.ID, nowMs)
}

func timeToResolutionMs(mkt types.MarketInfo, nowMs int64) int64 {
	if mkt.EndDate.IsZero() {
		return int64(^uint64(0) >> 1) // no resolution deadline known: never the binding constraint
	}
	return mkt.EndDate.UnixMilli() - nowMs
}

// submitDirect places an order without the opportunity risk gate, for
// risk-reducing hedge orders. Stop-loss closes do not come through here;
// closePosition handles them.
func (e *Engine) submitDirect(ctx context.Context, asset, tokenID string, side types.Side, price, sizeUSD float64, strategy types.StrategyID, nowMs int64) {
	if price <= 0 || sizeUSD <= 0 {
		return
	}
	e.submitOrder(ctx, asset, tokenID, side, price, sizeUSD/price, strategy, "", nowMs)
}

// submitOrder creates the order, validates it, and either routes it live
// or simulates a synchronous fill (VALIDATED -> SUBMITTED -> ACKNOWLEDGED
// -> FILLED), in keeping with the paper-trading fill model.
func (e *Engine) submitOrder(ctx context.Context, asset, tokenID string, side types.Side, price, size float64, strategy types.StrategyID, opportunityID string, nowMs int64) {
	order := e.oms.Create(asset, tokenID, side, types.OrderTypeGTC, price, size, strategy, opportunityID, nowMs)
	if err := e.oms.Transition(order.ID, types.StateValidated, "passed risk gate", nowMs); err != nil {
		e.logger.Warn("order validation transition failed", "order_id", order.ID, "err", err)
		return
	}

	if e.cfg.Live && e.router != nil {
		e.submitLive(ctx, order, side, price, size, nowMs)
		return
	}
	e.simulateFill(order, price, size, nowMs)
}

func (e *Engine) submitLive(ctx context.Context, order *types.Order, side types.Side, price, size float64, nowMs int64) {
	_ = e.oms.Transition(order.ID, types.StateSubmitted, "routing to venue", nowMs)

	res, err := e.router.Place(ctx, venue.PlaceRequest{TokenID: order.TokenID, Side: side, Kind: order.Kind, Price: price, Size: size, ClientID: order.ID})
	if err != nil || !res.Success {
		msg := "router error"
		if err != nil {
			msg = err.Error()
		} else {
			msg = res.ErrorMsg
		}
		_ = e.oms.Transition(order.ID, types.StateRejected, msg, nowMs)
		return
	}
	_ = e.oms.Transition(order.ID, types.StateAcknowledged, "venue ack", nowMs)
	// Live fills arrive asynchronously off the user-data stream and are
	// applied via ApplyFill by that stream's own consumer, not modeled here.
}

func (e *Engine) simulateFill(order *types.Order, price, size float64, nowMs int64) {
	if err := e.oms.Transition(order.ID, types.StateSubmitted, "paper mode", nowMs); err != nil {
		return
	}
	if err := e.oms.Transition(order.ID, types.StateAcknowledged, "paper mode", nowMs); err != nil {
		return
	}

	notional := price * size
	fee := notional * e.cfg.FeeRate
	if err := e.oms.ApplyFill(order.ID, price, size, fee, nowMs); err != nil {
		e.logger.Warn("simulated fill rejected", "order_id", order.ID, "err", err)
		return
	}

	e.applyFill(*order, price, size, nowMs)
}

// applyFill folds a fill into either the market maker's continuous VWAP
// inventory or the discrete open/close position lifecycle, depending on
// which book the originating strategy trades out of.
func (e *Engine) applyFill(order types.Order, price, size float64, nowMs int64) {
	if order.Strategy == types.StrategyMarketMaking {
		e.mm.OnFill(order.Asset, order.Side, price, size, nowMs)
		return
	}

	side := types.PositionLong
	if order.Side == types.SELL {
		side = types.PositionShort
	}

	existing, hasOpen := e.findOpenPosition(order.TokenID)
	if !hasOpen || existing.Side == side {
		e.positions.OnOpeningFill(order.Asset, order.TokenID, side, price, size, order.Strategy, order.ID, nowMs)
		return
	}

	e.closePosition(existing, price, "opposing fill", nowMs)
}

func (e *Engine) findOpenPosition(tokenID string) (types.TrackedPosition, bool) {
	for _, p := range e.positions.Open() {
		if p.TokenID == tokenID {
			return p, true
		}
	}
	return types.TrackedPosition{}, false
}

// closePosition realizes PnL against current price and feeds the result
// into every downstream bookkeeping system: the risk gate's rolling-loss
// window, the edge-decay monitor, the trade-analytics tracker, and (for a
// quant-signal position) the combiner's per-component weight feedback.
func (e *Engine) closePosition(p types.TrackedPosition, price float64, reason string, nowMs int64) {
	closed, ok := e.positions.CloseFill(p.TokenID, price, nowMs)
	if !ok {
		return
	}

	e.riskMgr.RecordRealizedPnL(closed.RealizedPnL, nowMs)
	e.edge.RecordTrade(closed.RealizedPnL)
	e.perf.RecordClosedPosition(closed)

	if closed.Strategy == types.StrategyQuantSignal {
		if name, ok := e.takeDominant(p.TokenID); ok {
			e.combiner.RecordTradeOutcome(name, closed.RealizedPnL)
		}
	}

	e.logger.Debug("position closed", "token_id", p.TokenID, "strategy", closed.Strategy, "reason", reason, "realized_pnl", closed.RealizedPnL)

	if e.cfg.Live && e.router != nil {
		side := types.SELL
		if closed.Side == types.PositionShort {
			side = types.BUY
		}
		_, _ = e.submitClosingRouterOrder(side, closed)
	}
}

func (e *Engine) submitClosingRouterOrder(side types.Side, closed types.TrackedPosition) (venue.PlaceResult, error) {
	return e.router.Place(context.Background(), venue.PlaceRequest{
		TokenID: closed.TokenID,
		Side:    side,
		Kind:    types.OrderTypeMKT,
		Price:   closed.CurrentPrice,
		Size:    closed.Size,
	})
}
