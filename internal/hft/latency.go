package hft

import (
	"fmt"
	"math"

	"hftengine/internal/history"
	"hftengine/pkg/types"
)

// LatencyArbitrage is S2: trade the lag between a reference-exchange price
// move and the prediction market's catch-up.
func LatencyArbitrage(snap types.TickSnapshot, yesMidHistory *history.Buffer, cfg Config) []types.Opportunity {
	if math.Abs(snap.RefChange10s) < cfg.LatencyChangeThreshold {
		return nil
	}

	mids := yesMidHistory.LastPrices(6)
	if len(mids) < 6 {
		return nil
	}
	yesMidThen := mids[0]
	yesMidNow := snap.YesMid
	if yesMidNow == 0 {
		yesMidNow = mids[len(mids)-1]
	}
	actual := yesMidNow - yesMidThen

	sensitivity := 1 - 1.5*math.Abs(snap.YesMid-0.5)
	expected := snap.RefChange10s * sensitivity * 0.5

	accel := accelerationBonus(mids)

	var lag float64
	var side types.Side
	var tokenID string
	var price float64

	if snap.RefChange10s >= 0 {
		lag = max(0, expected-actual)
		side, tokenID, price = types.BUY, snap.YesTokenID, snap.YesBestAsk
	} else {
		lag = max(0, actual-expected)
		side, tokenID, price = types.BUY, snap.NoTokenID, snap.NoBestAsk
	}

	if lag <= cfg.LatencyLagThreshold {
		return nil
	}
	if price <= 0 {
		return nil
	}

	var bestSize float64
	if tokenID == snap.YesTokenID {
		if lvl, ok := snap.YesBook.BestAsk(); ok {
			bestSize = lvl.Size
		}
	} else {
		if lvl, ok := snap.NoBook.BestAsk(); ok {
			bestSize = lvl.Size
		}
	}

	sizeUSD := min(bestSize*price, max(cfg.LatencyMinSize, lag*500))
	sizeUSD = min(sizeUSD, cfg.LatencyMaxSize)
	if sizeUSD <= 0 {
		return nil
	}

	confidence := min(0.95, 0.70+3*lag+0.1*accel)

	return []types.Opportunity{{
		ID:             fmt.Sprintf("s2-%s-%s-%d", snap.ConditionID, tokenID, snap.TimestampMs),
		StrategyID:     types.StrategyLatency,
		Type:           types.OppLatencyArb,
		Asset:          snap.Asset,
		ConditionID:    snap.ConditionID,
		TokenID:        tokenID,
		Side:           side,
		Price:          price,
		SizeUSD:        sizeUSD,
		ExpectedProfit: lag * sizeUSD,
		Confidence:     confidence,
		Edge:           lag,
		OrderType:      types.OrderTypeFOK,
		Metadata:       types.OpportunityMetadata{LagMs: lag, AccelerationBonus: accel},
		CreatedAtMs:    snap.TimestampMs,
	}}
}

// accelerationBonus measures whether the mid's recent move is accelerating:
// the most recent 2-tick change versus the preceding 2-tick change,
// clamped to [0,1].
func accelerationBonus(mids []float64) float64 {
	n := len(mids)
	if n < 5 {
		return 0
	}
	recent := mids[n-1] - mids[n-3]
	prior := mids[n-3] - mids[n-5]
	diff := recent - prior
	return clamp(diff*100, 0, 1)
}
