package hft

import (
	"fmt"
	"math"

	"hftengine/internal/history"
	"hftengine/internal/stats"
	"hftengine/pkg/types"
)

// MicroHistories bundles the rolling series S4 needs. The tick engine pushes
// one new sample per tick into each before invoking MicrostructureConfluence,
// so every buffer's newest entry corresponds to the current snapshot.
type MicroHistories struct {
	YesBidRatio      *history.Buffer // yes_bid_depth / (yes_bid_depth+yes_ask_depth)
	YesBidLevelCount *history.Buffer
	YesAskLevelCount *history.Buffer
	YesMid           *history.Buffer
}

type subSignal struct {
	active     bool
	direction  types.Direction
	confidence float64
}

// MicrostructureConfluence is S4: requires at least two of four
// microstructure sub-signals to agree on direction before emitting.
func MicrostructureConfluence(snap types.TickSnapshot, h MicroHistories, cfg Config) []types.Opportunity {
	subs := []subSignal{
		imbalanceMomentum(h.YesBidRatio),
		sweep(h.YesBidLevelCount, h.YesAskLevelCount),
		largeRestingOrder(snap),
		vpinSignal(h.YesMid),
	}

	var longVotes, shortVotes int
	var longConf, shortConf float64
	activeCount := 0
	for _, s := range subs {
		if !s.active {
			continue
		}
		activeCount++
		switch s.direction {
		case types.DirectionLong:
			longVotes++
			longConf += s.confidence
		case types.DirectionShort:
			shortVotes++
			shortConf += s.confidence
		}
	}

	var direction types.Direction
	var votes int
	var sumConf float64
	if longVotes >= 2 && longVotes >= shortVotes {
		direction, votes, sumConf = types.DirectionLong, longVotes, longConf
	} else if shortVotes >= 2 {
		direction, votes, sumConf = types.DirectionShort, shortVotes, shortConf
	} else {
		return nil
	}

	confidence := sumConf / float64(votes)
	if activeCount >= 3 {
		confidence += 0.1
	}
	confidence = math.Min(confidence, 0.95)

	var side types.Side
	var tokenID string
	var ask float64
	if direction == types.DirectionLong {
		side, tokenID, ask = types.BUY, snap.YesTokenID, snap.YesBestAsk
	} else {
		side, tokenID, ask = types.BUY, snap.NoTokenID, snap.NoBestAsk
	}
	if ask <= 0 {
		return nil
	}

	edge := (confidence - ask) * 0.5
	if edge < cfg.MicrostructureMinEdge {
		return nil
	}

	sizeUSD := max(cfg.MicrostructureMinSize, confidence*10)
	if sizeUSD < cfg.MicrostructureMinSize {
		return nil
	}

	return []types.Opportunity{{
		ID:             fmt.Sprintf("s4-%s-%s-%d", snap.ConditionID, tokenID, snap.TimestampMs),
		StrategyID:     types.StrategyMicrostructure,
		Type:           types.OppMicrostructure,
		Asset:          snap.Asset,
		ConditionID:    snap.ConditionID,
		TokenID:        tokenID,
		Side:           side,
		Price:          ask,
		SizeUSD:        sizeUSD,
		Confidence:     confidence,
		Edge:           edge,
		ExpectedProfit: edge * sizeUSD,
		OrderType:      types.OrderTypeFOK,
		Metadata:       types.OpportunityMetadata{SubSignalsAgreeing: votes},
		CreatedAtMs:    snap.TimestampMs,
	}}
}

func imbalanceMomentum(ratioHist *history.Buffer) subSignal {
	if ratioHist == nil {
		return subSignal{}
	}
	ratios := ratioHist.LastPrices(6)
	if len(ratios) < 6 {
		return subSignal{}
	}
	delta := ratios[5] - ratios[0]
	if math.Abs(delta) <= 0.10 {
		return subSignal{}
	}
	dir := types.DirectionShort
	if delta > 0 {
		dir = types.DirectionLong
	}
	return subSignal{active: true, direction: dir, confidence: math.Min(1, math.Abs(delta)*2)}
}

func sweep(bidCounts, askCounts *history.Buffer) subSignal {
	if bidCounts == nil || askCounts == nil {
		return subSignal{}
	}
	bc := bidCounts.LastPrices(2)
	ac := askCounts.LastPrices(2)

	var bidDrop, askDrop float64
	if len(bc) == 2 {
		bidDrop = bc[0] - bc[1]
	}
	if len(ac) == 2 {
		askDrop = ac[0] - ac[1]
	}

	if bidDrop >= 3 && bidDrop >= askDrop {
		return subSignal{active: true, direction: types.DirectionShort, confidence: math.Min(1, bidDrop/10)}
	}
	if askDrop >= 3 {
		return subSignal{active: true, direction: types.DirectionLong, confidence: math.Min(1, askDrop/10)}
	}
	return subSignal{}
}

func largeRestingOrder(snap types.TickSnapshot) subSignal {
	bidTrig := sideHasLargeOrder(snap.YesBook.Bids)
	askTrig := sideHasLargeOrder(snap.YesBook.Asks)
	if bidTrig {
		return subSignal{active: true, direction: types.DirectionLong, confidence: 0.6}
	}
	if askTrig {
		return subSignal{active: true, direction: types.DirectionShort, confidence: 0.6}
	}
	return subSignal{}
}

func sideHasLargeOrder(levels []types.PriceLevel) bool {
	if len(levels) < 2 {
		return false
	}
	sizes := make([]float64, len(levels))
	maxSize := 0.0
	for i, l := range levels {
		sizes[i] = l.Size
		if l.Size > maxSize {
			maxSize = l.Size
		}
	}
	mean := stats.Mean(sizes)
	sd := stats.StdDev(sizes)
	return maxSize > mean+3*sd
}

func vpinSignal(midHist *history.Buffer) subSignal {
	if midHist == nil {
		return subSignal{}
	}
	mids := midHist.LastPrices(21)
	if len(mids) < 21 {
		return subSignal{}
	}
	var buySum, sellSum float64
	for i := 1; i < len(mids); i++ {
		delta := mids[i] - mids[i-1]
		notional := math.Abs(delta) * 100
		if delta > 0 {
			buySum += notional
		} else if delta < 0 {
			sellSum += notional
		}
	}
	total := buySum + sellSum
	if total == 0 {
		return subSignal{}
	}
	vpin := math.Abs(buySum-sellSum) / total
	if vpin <= 0.7 {
		return subSignal{}
	}
	dir := types.DirectionShort
	if buySum > sellSum {
		dir = types.DirectionLong
	}
	return subSignal{active: true, direction: dir, confidence: math.Min(1, vpin)}
}
