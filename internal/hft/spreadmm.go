package hft

import (
	"fmt"

	"hftengine/internal/history"
	"hftengine/pkg/types"
)

// SpreadCaptureMM is S3: post a tight bid/ask around the YES book, skewed
// by current inventory, when the spread is wide enough to be worth
// capturing and the market isn't currently volatile.
func SpreadCaptureMM(snap types.TickSnapshot, midsHistory *history.Buffer, inventoryYes float64, cfg Config) []types.Opportunity {
	f := cfg.FeePerSide
	spread := snap.YesBestAsk - snap.YesBestBid
	if snap.YesBestBid <= 0 || snap.YesBestAsk <= 0 || spread < 2*f+cfg.SpreadMMExtraMin {
		return nil
	}

	invRatio := 0.0
	if cfg.MaxInventory != 0 {
		invRatio = inventoryYes / cfg.MaxInventory
	}

	ourBid := snap.YesBestBid + 0.01 - 0.01*invRatio
	ourAsk := snap.YesBestAsk - 0.01 - 0.005*invRatio
	if ourAsk-ourBid < 2*f+cfg.SpreadMMExtraAfter {
		return nil
	}

	mids := midsHistory.LastPrices(10)
	if len(mids) == 10 {
		lo, hi := mids[0], mids[0]
		for _, m := range mids {
			if m < lo {
				lo = m
			}
			if m > hi {
				hi = m
			}
		}
		if hi-lo > cfg.VolatileMidRange {
			return nil
		}
	}

	var opps []types.Opportunity
	if inventoryYes < cfg.MaxInventory {
		opps = append(opps, types.Opportunity{
			ID:          fmt.Sprintf("s3-bid-%s-%d", snap.ConditionID, snap.TimestampMs),
			StrategyID:  types.StrategySpreadMM,
			Type:        types.OppSpreadCapture,
			Asset:       snap.Asset,
			ConditionID: snap.ConditionID,
			TokenID:     snap.YesTokenID,
			Side:        types.BUY,
			Price:       ourBid,
			SizeUSD:     cfg.NominalSizeUSD,
			Confidence:  0.6,
			OrderType:   types.OrderTypeGTC,
			CreatedAtMs: snap.TimestampMs,
		})
	}
	if inventoryYes > -cfg.MaxInventory {
		opps = append(opps, types.Opportunity{
			ID:          fmt.Sprintf("s3-ask-%s-%d", snap.ConditionID, snap.TimestampMs),
			StrategyID:  types.StrategySpreadMM,
			Type:        types.OppSpreadCapture,
			Asset:       snap.Asset,
			ConditionID: snap.ConditionID,
			TokenID:     snap.YesTokenID,
			Side:        types.SELL,
			Price:       ourAsk,
			SizeUSD:     cfg.NominalSizeUSD,
			Confidence:  0.6,
			OrderType:   types.OrderTypeGTC,
			CreatedAtMs: snap.TimestampMs,
		})
	}
	return opps
}
