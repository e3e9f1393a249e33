package signal

import "hftengine/pkg/types"

// DefaultNominalSizeUSD is the quant signal's default trade size.
const DefaultNominalSizeUSD = 10

// ToOpportunity converts a non-flat AggregatedSignal into a trade intent on
// the YES token at the current ask/bid, sized at sizeUSD. Returns ok=false
// for a flat signal (below the combiner's conviction/confidence gates) —
// there is nothing to trade.
func ToOpportunity(agg types.AggregatedSignal, snap types.TickSnapshot, sizeUSD float64, nowMs int64) (types.Opportunity, bool) {
	if agg.Direction == types.DirectionFlat {
		return types.Opportunity{}, false
	}

	side := types.BUY
	price := snap.YesBestAsk
	if agg.Direction == types.DirectionShort {
		side = types.SELL
		price = snap.YesBestBid
	}
	if price <= 0 {
		return types.Opportunity{}, false
	}

	edge := absf(agg.Conviction) * agg.Confidence

	return types.Opportunity{
		StrategyID:     types.StrategyQuantSignal,
		Type:           types.OppQuantSignal,
		Asset:          snap.Asset,
		ConditionID:    snap.ConditionID,
		Direction:      agg.Direction,
		TokenID:        snap.YesTokenID,
		Side:           side,
		Price:          price,
		SizeUSD:        sizeUSD,
		Confidence:     agg.Confidence,
		Edge:           edge,
		ExpectedProfit: edge * sizeUSD,
		OrderType:      types.OrderTypeGTC,
		Metadata:       types.OpportunityMetadata{SubSignalsAgreeing: len(agg.Components)},
		CreatedAtMs:    nowMs,
	}, true
}

func absf(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
