package hft

import (
	"fmt"

	"hftengine/pkg/types"
)

// StructuralArbitrage is S1: YES/NO sum-to-one arbitrage plus the
// single-leg cross-book variant.
func StructuralArbitrage(snap types.TickSnapshot, cfg Config) []types.Opportunity {
	var opps []types.Opportunity
	f := cfg.FeePerSide

	if snap.YesBestAsk > 0 && snap.NoBestAsk > 0 && snap.YesBestAsk+snap.NoBestAsk < 1-2*f {
		yesLevel, okY := snap.YesBook.BestAsk()
		noLevel, okN := snap.NoBook.BestAsk()
		if okY && okN {
			size := min(yesLevel.Size, noLevel.Size)
			totalCost := snap.YesBestAsk + snap.NoBestAsk
			if size*totalCost > cfg.MaxArbNotional {
				size = cfg.MaxArbNotional / totalCost
			}
			if size > 0 {
				totalProfit := size * (1 - totalCost - 2*f)
				perLeg := totalProfit / 2
				opps = append(opps,
					newArbLeg(snap, types.BUY, snap.YesTokenID, snap.YesBestAsk, size, perLeg, true),
					newArbLeg(snap, types.BUY, snap.NoTokenID, snap.NoBestAsk, size, perLeg, true),
				)
			}
		}
	}

	if snap.YesBestBid > 0 && snap.NoBestBid > 0 && snap.YesBestBid+snap.NoBestBid > 1+2*f {
		yesLevel, okY := snap.YesBook.BestBid()
		noLevel, okN := snap.NoBook.BestBid()
		if okY && okN {
			size := min(yesLevel.Size, noLevel.Size)
			totalProceeds := snap.YesBestBid + snap.NoBestBid
			if size*totalProceeds > cfg.MaxArbNotional {
				size = cfg.MaxArbNotional / totalProceeds
			}
			if size > 0 {
				totalProfit := size * (totalProceeds - 1 - 2*f)
				perLeg := totalProfit / 2
				opps = append(opps,
					newArbLeg(snap, types.SELL, snap.YesTokenID, snap.YesBestBid, size, perLeg, true),
					newArbLeg(snap, types.SELL, snap.NoTokenID, snap.NoBestBid, size, perLeg, true),
				)
			}
		}
	}

	if snap.YesBestBid > 0 && snap.NoBestAsk > 0 && snap.YesBestBid+snap.NoBestAsk < 1-2*f {
		opps = append(opps, crossBookLeg(snap, types.SELL, snap.YesTokenID, snap.YesBestBid, types.BUY, snap.NoTokenID, snap.NoBestAsk, cfg))
	}
	if snap.NoBestBid > 0 && snap.YesBestAsk > 0 && snap.NoBestBid+snap.YesBestAsk < 1-2*f {
		opps = append(opps, crossBookLeg(snap, types.SELL, snap.NoTokenID, snap.NoBestBid, types.BUY, snap.YesTokenID, snap.YesBestAsk, cfg))
	}

	return opps
}

func newArbLeg(snap types.TickSnapshot, side types.Side, tokenID string, price, size, profit float64, atomic bool) types.Opportunity {
	return types.Opportunity{
		ID:             fmt.Sprintf("s1-%s-%s-%d", snap.ConditionID, tokenID, snap.TimestampMs),
		StrategyID:     types.StrategyArbitrage,
		Type:           types.OppStructuralArb,
		Asset:          snap.Asset,
		ConditionID:    snap.ConditionID,
		TokenID:        tokenID,
		Side:           side,
		Price:          price,
		SizeUSD:        size * price,
		ExpectedProfit: profit,
		Confidence:     0.99,
		OrderType:      types.OrderTypeFOK,
		Metadata:       types.OpportunityMetadata{RequiresAtomicExecution: atomic},
		CreatedAtMs:    snap.TimestampMs,
	}
}

// crossBookLeg emits the single-leg cross-book variant: the opportunity
// takes only the cheaper leg, but is tagged as requiring atomic execution
// since its edge only exists relative to the other token's quote.
func crossBookLeg(snap types.TickSnapshot, _ types.Side, _ string, _ float64, takeSide types.Side, takeToken string, takePrice float64, cfg Config) types.Opportunity {
	return types.Opportunity{
		ID:             fmt.Sprintf("s1x-%s-%s-%d", snap.ConditionID, takeToken, snap.TimestampMs),
		StrategyID:     types.StrategyArbitrage,
		Type:           types.OppCrossBookArb,
		Asset:          snap.Asset,
		ConditionID:    snap.ConditionID,
		TokenID:        takeToken,
		Side:           takeSide,
		Price:          takePrice,
		SizeUSD:        cfg.MaxArbNotional / 2,
		ExpectedProfit: 0,
		Confidence:     0.99,
		OrderType:      types.OrderTypeFOK,
		Metadata:       types.OpportunityMetadata{RequiresAtomicExecution: true},
		CreatedAtMs:    snap.TimestampMs,
	}
}
