package tick

import (
	"context"

	"hftengine/internal/hft"
	"hftengine/internal/marketmaking"
	"hftengine/internal/risk"
	"hftengine/internal/signal"
	"hftengine/internal/stats"
	"hftengine/internal/stoploss"
	"hftengine/pkg/types"
)

// vpinWindow is how many mid samples stats.VPIN needs (20 deltas).
const vpinWindow = 21

// vpinUnitNotional matches the per-delta notional scale the microstructure
// toxicity signal uses, so both consumers agree on what "toxic" means.
const vpinUnitNotional = 100

// processMarket runs the full per-tick pipeline for one market: snapshot,
// history update, signal generation, strategy evaluation, market-making
// quoting, and risk-gated order submission. A panic anywhere in this
// function must never escape to the caller — conc.WaitGroup.Go already
// recovers it for the tick as a whole, but individual HFT strategies get
// their own finer-grained recovery via hft.RunAll.
func (e *Engine) processMarket(ctx context.Context, mkt types.MarketInfo, nowMs int64) {
	h := e.assetHistory(mkt.Slug)
	refPrice := e.referencePrice(mkt.Slug)

	snap, ok := e.snapBuilder.Build(ctx, mkt, h.refMid, refPrice, nowMs)
	if !ok {
		return
	}

	e.updateHistories(h, snap, nowMs)
	e.markStoplossAndMarks(snap, nowMs)

	opps := e.evaluateStrategies(mkt, snap, h)
	opps = append(opps, e.evaluateQuantSignal(snap, h, nowMs)...)
	opps = append(opps, e.evaluateMarketMaking(mkt, snap, h, nowMs)...)

	edgeMult := e.edge.CurrentMultiplier()
	for _, opp := range opps {
		e.handleOpportunity(ctx, mkt, opp, edgeMult, nowMs)
	}

	e.runHedge(ctx, mkt, snap, nowMs)
	e.reportRisk(mkt.Slug, nowMs)

	if refPrice != 0 {
		h.refMid.Push(types.PriceSample{Price: refPrice, TimestampMs: nowMs})
	}
}

// updateHistories pushes this tick's observations into every rolling
// series. Every series here is read by its consumer AFTER this push, with
// one exception handled separately in evaluateQuantSignal: the OFI history
// signal.Microstructure reads, which it expects to receive the new sample
// only on the *next* tick (see that function's doc comment).
func (e *Engine) updateHistories(h *assetHistories, snap types.TickSnapshot, nowMs int64) {
	h.yesMid.Push(types.PriceSample{Price: snap.YesMid, TimestampMs: nowMs})
	h.noMid.Push(types.PriceSample{Price: snap.NoMid, TimestampMs: nowMs})
	h.spread.Push(types.PriceSample{Price: snap.YesSpread, TimestampMs: nowMs})
	h.volume.Push(types.PriceSample{Price: snap.YesBidDepth5 + snap.YesAskDepth5, TimestampMs: nowMs})

	var ratio float64
	denom := snap.YesBidDepth5 + snap.YesAskDepth5
	if denom != 0 {
		ratio = snap.YesBidDepth5 / denom
	}
	h.micro.YesBidRatio.Push(types.PriceSample{Price: ratio, TimestampMs: nowMs})
	h.micro.YesBidLevelCount.Push(types.PriceSample{Price: float64(len(snap.YesBook.Bids)), TimestampMs: nowMs})
	h.micro.YesAskLevelCount.Push(types.PriceSample{Price: float64(len(snap.YesBook.Asks)), TimestampMs: nowMs})
}

func (e *Engine) markStoplossAndMarks(snap types.TickSnapshot, nowMs int64) {
	e.mm.UpdateMarkToMarket(snap.Asset, snap.YesMid)
	e.positions.UpdateMark(snap.YesTokenID, snap.YesMid)
	e.positions.UpdateMark(snap.NoTokenID, snap.NoMid)

	for _, p := range e.positions.Open() {
		if p.TokenID != snap.YesTokenID && p.TokenID != snap.NoTokenID {
			continue
		}
		price := snap.YesMid
		entryVol := stats.StdDev(e.assetHistory(snap.Asset).yesMid.SimpleReturns(21))
		cfg := e.cfg.Stoploss
		if p.Strategy == types.StrategyMicrostructure {
			cfg = stoploss.MicrostructureConfig()
		}
		st := e.stopState(p.TokenID)
		stop := stoploss.Check(p, price, entryVol, cfg, st, nowMs)
		if stop == stoploss.StopNone {
			continue
		}
		e.closePosition(p, price, string(stop), nowMs)
	}
}

func (e *Engine) evaluateStrategies(mkt types.MarketInfo, snap types.TickSnapshot, h *assetHistories) []types.Opportunity {
	q := e.mm.Snapshot(mkt.Slug).Position
	all := map[types.StrategyID]hft.StrategyFunc{
		types.StrategyArbitrage:      func() []types.Opportunity { return hft.StructuralArbitrage(snap, e.cfg.HFT) },
		types.StrategyLatency:        func() []types.Opportunity { return hft.LatencyArbitrage(snap, h.yesMid, e.cfg.HFT) },
		types.StrategySpreadMM:       func() []types.Opportunity { return hft.SpreadCaptureMM(snap, h.yesMid, q, e.cfg.HFT) },
		types.StrategyMicrostructure: func() []types.Opportunity { return hft.MicrostructureConfluence(snap, h.micro, e.cfg.HFT) },
	}
	strategies := make(map[types.StrategyID]hft.StrategyFunc, len(all))
	for id, fn := range all {
		if e.strategyEnabled(id) {
			strategies[id] = fn
		}
	}
	return hft.RunAll(e.logger, strategies)
}

// evaluateQuantSignal assembles the six signal components, combines them,
// and converts a non-flat result into a tradeable opportunity. The OFI
// history is read here (one tick stale, per signal.Microstructure's own
// contract) and only pushed after the call, unlike every other series in
// updateHistories which is pushed before its consumers run.
func (e *Engine) evaluateQuantSignal(snap types.TickSnapshot, h *assetHistories, nowMs int64) []types.Opportunity {
	if !e.strategyEnabled(types.StrategyQuantSignal) {
		return nil
	}
	micro, ofi := signal.Microstructure(snap.YesBook, h.ofi)
	h.ofi.Push(types.PriceSample{Price: ofi, TimestampMs: nowMs})

	components := []types.SignalComponent{
		signal.Momentum(h.yesMid),
		signal.MeanReversion(h.yesMid),
		micro,
		signal.CrossAsset(h.refMid, h.yesMid),
		signal.SpreadRegime(h.spread, snap.YesSpread),
		signal.VolumeProfile(h.volume, h.yesMid),
	}

	agg := e.combiner.Combine(components)
	e.recordAggregateDominant(snap.YesTokenID, agg.Metadata.DominantComponent)

	opp, ok := signal.ToOpportunity(agg, snap, e.cfg.QuantSizeUSD, nowMs)
	if !ok {
		return nil
	}
	return []types.Opportunity{opp}
}

// evaluateMarketMaking prices a two-sided quote and converts it into
// opportunities gated by the same risk ladder as every other strategy. The
// daily-loss circuit halts new quotes but never touches existing
// inventory — unwinding that is runHedge's job, which runs unconditionally.
func (e *Engine) evaluateMarketMaking(mkt types.MarketInfo, snap types.TickSnapshot, h *assetHistories, nowMs int64) []types.Opportunity {
	if !e.strategyEnabled(types.StrategyMarketMaking) {
		return nil
	}
	if marketmaking.ShouldHaltQuoting(e.positions.DailyRealizedPnL(), e.cfg.MM) {
		return nil
	}

	q := e.mm.NormalizedInventory(mkt.Slug, e.cfg.MM.QMax)
	vpin := stats.VPIN(h.yesMid.LastPrices(vpinWindow), vpinUnitNotional)
	quotes := marketmaking.ComputeQuotes(snap.YesMid, q, vpin, e.cfg.MM)

	var opps []types.Opportunity
	if quotes.Bid != nil {
		opps = append(opps, mmOpportunity(snap, types.BUY, quotes.Bid, quotes.SpreadBps, nowMs))
	}
	if quotes.Ask != nil {
		opps = append(opps, mmOpportunity(snap, types.SELL, quotes.Ask, quotes.SpreadBps, nowMs))
	}
	return opps
}

func mmOpportunity(snap types.TickSnapshot, side types.Side, q *marketmaking.Quote, spreadBps float64, nowMs int64) types.Opportunity {
	return types.Opportunity{
		StrategyID:     types.StrategyMarketMaking,
		Type:           types.OppMarketMaking,
		Asset:          snap.Asset,
		ConditionID:    snap.ConditionID,
		TokenID:        snap.YesTokenID,
		Side:           side,
		Price:          q.Price,
		SizeUSD:        q.Size,
		Confidence:     0.8,
		Edge:           spreadBps / 2 / 10_000,
		ExpectedProfit: q.Size * spreadBps / 2 / 10_000,
		OrderType:      types.OrderTypeGTC,
		CreatedAtMs:    nowMs,
	}
}

// reportRisk submits this asset's current exposure/PnL to the background
// risk monitor (non-blocking; a full report channel just drops the tick's
// report rather than stalling market processing).
func (e *Engine) reportRisk(asset string, nowMs int64) {
	exposure := e.positions.ExposureByAsset()[asset]
	var unrealized, realized float64
	for _, p := range e.positions.Open() {
		if p.Asset == asset {
			unrealized += p.UnrealizedPnL
		}
	}
	inv := e.mm.Snapshot(asset)
	exposure += inv.Position * inv.EntryVWAP
	unrealized += inv.UnrealizedPnL
	realized += inv.RealizedPnL

	e.riskMgr.Report(risk.AssetReport{
		Asset:         asset,
		ExposureUSD:   exposure,
		MidPrice:      inv.EntryVWAP,
		UnrealizedPnL: unrealized,
		RealizedPnL:   realized,
		TimestampMs:   nowMs,
	})
}

// runHedge submits a risk-reducing trim/cover directly through the OMS,
// bypassing the opportunity risk gate: a hedge offsets existing exposure
// rather than initiating new risk, so the edge/size checks that gate new
// opportunities do not apply to it.
func (e *Engine) runHedge(ctx context.Context, mkt types.MarketInfo, snap types.TickSnapshot, nowMs int64) {
	position := e.mm.Snapshot(mkt.Slug).Position
	hedge := marketmaking.ComputeHedge(position, e.cfg.MM)
	if !hedge.Needed || snap.YesMid <= 0 {
		return
	}

	side := types.BUY
	price := snap.YesBestAsk
	if hedge.Sell {
		side = types.SELL
		price = snap.YesBestBid
	}
	if price <= 0 {
		return
	}

	e.submitDirect(ctx, snap.Asset, snap.YesTokenID, side, price, hedge.Size*price, types.StrategyMarketMaking, nowMs)
}
