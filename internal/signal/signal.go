// Package signal implements the six HFT signal generators (C4) and the
// adaptive-weight combiner (C5). Every generator is a pure function of a
// snapshot plus the relevant rolling histories; none perform I/O or mutate
// the histories they read — the tick engine is the sole writer of history
// buffers, per the single-producer ownership model.
package signal

import (
	"math"

	"hftengine/internal/history"
	"hftengine/internal/stats"
	"hftengine/pkg/types"
)

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// Momentum computes the lookback/skip momentum signal: r = (p[n-1-S] -
// p[n-1-L]) / p[n-1-L], normalized by the stddev of the last 20 returns.
// Returns a zero-value component when the price history is underfilled.
func Momentum(priceHist *history.Buffer) types.SignalComponent {
	const lookback, skip = 40, 2
	prices := priceHist.LastPrices(0)
	n := len(prices)
	if n < lookback+1 {
		return types.SignalComponent{Name: "momentum"}
	}
	pSkip := prices[n-1-skip]
	pLook := prices[n-1-lookback]
	if pLook == 0 {
		return types.SignalComponent{Name: "momentum"}
	}
	r := (pSkip - pLook) / pLook
	sigma := stats.StdDev(priceHist.SimpleReturns(21))
	value := 0.0
	if sigma != 0 {
		value = r / sigma
	}
	return types.SignalComponent{Name: "momentum", Value: value, ZScore: value}
}

// MeanReversion computes the 60-sample z-score mean-reversion signal.
func MeanReversion(priceHist *history.Buffer) types.SignalComponent {
	const window = 60
	prices := priceHist.LastPrices(window)
	if len(prices) < window {
		return types.SignalComponent{Name: "mean_reversion"}
	}
	current := prices[len(prices)-1]
	z := stats.ZScore(current, prices)
	var value float64
	switch {
	case math.Abs(z) > 1.5:
		value = -z
	case math.Abs(z) < 0.5:
		value = 0
	default:
		value = -0.3 * z
	}
	return types.SignalComponent{Name: "mean_reversion", Value: value, ZScore: z}
}

// Microstructure computes the order-flow-imbalance + microprice signal for
// the YES book. Returns the component and the raw OFI value this tick so
// the caller can append it to the OFI history for the next tick's EMA term
// (the generator itself never mutates history).
func Microstructure(yesBook types.OrderBookSnapshot, ofiHistory *history.Buffer) (types.SignalComponent, float64) {
	bidDepth := yesBook.DepthN(types.BUY, 5)
	askDepth := yesBook.DepthN(types.SELL, 5)
	var ofi float64
	if bidDepth+askDepth != 0 {
		ofi = (bidDepth - askDepth) / (bidDepth + askDepth)
	}

	bid, hasBid := yesBook.BestBid()
	ask, hasAsk := yesBook.BestAsk()
	var microprice, mid float64
	if hasBid && hasAsk && (bid.Size+ask.Size) != 0 {
		microprice = (ask.Price*bid.Size + bid.Price*ask.Size) / (bid.Size + ask.Size)
		mid = (bid.Price + ask.Price) / 2
	}

	var emaOFI float64
	if ofiHistory != nil {
		emaOFI = ofiHistory.EMA(20, 10)
	}

	var microTerm float64
	if mid != 0 {
		microTerm = 30 * (microprice - mid) / mid
	}
	value := 0.6*ofi + microTerm + 0.1*emaOFI
	return types.SignalComponent{Name: "microstructure", Value: value, ZScore: ofi}, ofi
}

// CrossAsset correlates perp returns leading prediction-market returns by
// 6 samples (~3s at 500ms cadence).
func CrossAsset(perpHist, predictionMidHist *history.Buffer) types.SignalComponent {
	const lead = 6
	perpReturns := perpHist.SimpleReturns(0)
	predReturns := predictionMidHist.SimpleReturns(0)
	if len(perpReturns) <= lead || len(predReturns) <= lead {
		return types.SignalComponent{Name: "cross_asset"}
	}
	n := len(perpReturns)
	if len(predReturns) < n {
		n = len(predReturns)
	}
	leadingPerp := perpReturns[:n-lead]
	laggingPred := predReturns[lead:n]
	if len(leadingPerp) != len(laggingPred) || len(leadingPerp) < 2 {
		return types.SignalComponent{Name: "cross_asset"}
	}
	corr := stats.Correlation(leadingPerp, laggingPred)

	last6 := perpReturns
	if len(last6) > lead {
		last6 = last6[len(last6)-lead:]
	}
	var sum float64
	for _, r := range last6 {
		sum += r
	}
	value := corr * sum * 100
	return types.SignalComponent{Name: "cross_asset", Value: value, ZScore: corr}
}

// SpreadRegime z-scores the current spread against recent spread history,
// mapping it onto a meta-confidence range of [-0.5, +0.3].
func SpreadRegime(spreadHistory *history.Buffer, currentSpread float64) types.SignalComponent {
	hist := spreadHistory.LastPrices(0)
	if len(hist) < 2 {
		return types.SignalComponent{Name: "spread_regime"}
	}
	z := stats.ZScore(currentSpread, hist)
	value := clamp(-0.15*z, -0.5, 0.3)
	return types.SignalComponent{Name: "spread_regime", Value: value, ZScore: z}
}

// VolumeProfile z-scores recent mean volume against the volume history and
// cross-checks against recent price volatility and volume/price correlation.
func VolumeProfile(volumeHistory, priceHistory *history.Buffer) types.SignalComponent {
	volumes := volumeHistory.LastPrices(0) // volume series stored in Price field
	if len(volumes) < 10 {
		return types.SignalComponent{Name: "volume_profile"}
	}
	recent := volumes[len(volumes)-10:]
	recentMean := stats.Mean(recent)
	z := stats.ZScore(recentMean, volumes)

	priceVol := priceHistory.RealizedVol(20)

	var value float64
	if math.Abs(z) > 2 && priceVol < 0.001 {
		value = 0.3
	}

	priceReturns := priceHistory.SimpleReturns(0)
	n := len(volumes)
	if len(priceReturns) < n {
		n = len(priceReturns)
	}
	if n >= 2 {
		corr := stats.Correlation(volumes[len(volumes)-n:], priceReturns[len(priceReturns)-n:])
		if corr < -0.3 && z > 0 {
			value -= 0.2
		}
	}
	return types.SignalComponent{Name: "volume_profile", Value: value, ZScore: z}
}
