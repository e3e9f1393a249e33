// Package snapshot builds the per-market Tick Snapshot (C3): a best-effort
// parallel fetch of both token order books plus the latest reference price,
// normalized into the fields every signal generator and strategy reads.
// Missing books skip that market silently — the builder never errors the
// whole tick for one bad market.
package snapshot

import (
	"context"
	"log/slog"

	"github.com/sourcegraph/conc"

	"hftengine/internal/history"
	"hftengine/internal/venue"
	"hftengine/pkg/types"
)

// RefHistoryCapacity is the reference-price ring depth per asset
// (≈120 samples at 500ms ≈ one minute).
const RefHistoryCapacity = history.DefaultCapacity

// Builder constructs snapshots from a market-data provider.
type Builder struct {
	provider venue.MarketDataProvider
	logger   *slog.Logger
}

// New creates a Builder.
func New(provider venue.MarketDataProvider, logger *slog.Logger) *Builder {
	return &Builder{provider: provider, logger: logger.With("component", "snapshot")}
}

// Build fetches both token books for market in parallel and, if both come
// back non-empty, returns a populated TickSnapshot. The bool result is
// false when either book fetch failed or returned an empty book, meaning
// the caller should skip this market for the tick.
func (b *Builder) Build(ctx context.Context, market types.MarketInfo, refHistory *history.Buffer, refPrice float64, nowMs int64) (types.TickSnapshot, bool) {
	var yesBook, noBook types.OrderBookSnapshot
	var yesErr, noErr error

	var wg conc.WaitGroup
	wg.Go(func() {
		yesBook, yesErr = b.provider.GetOrderBook(ctx, market.YesTokenID)
	})
	wg.Go(func() {
		noBook, noErr = b.provider.GetOrderBook(ctx, market.NoTokenID)
	})
	wg.Wait()

	if yesErr != nil {
		b.logger.Debug("yes book fetch failed", "market", market.ConditionID, "err", yesErr)
		return types.TickSnapshot{}, false
	}
	if noErr != nil {
		b.logger.Debug("no book fetch failed", "market", market.ConditionID, "err", noErr)
		return types.TickSnapshot{}, false
	}
	if len(yesBook.Bids) == 0 && len(yesBook.Asks) == 0 {
		return types.TickSnapshot{}, false
	}
	if len(noBook.Bids) == 0 && len(noBook.Asks) == 0 {
		return types.TickSnapshot{}, false
	}

	snap := types.TickSnapshot{
		Asset:       market.Slug,
		ConditionID: market.ConditionID,
		YesTokenID:  market.YesTokenID,
		NoTokenID:   market.NoTokenID,
		YesBook:     yesBook,
		NoBook:      noBook,
		TimestampMs: nowMs,
	}

	snap.YesBestBid, snap.YesBestAsk, snap.YesMid, snap.YesSpread = topOfBook(yesBook)
	snap.NoBestBid, snap.NoBestAsk, snap.NoMid, snap.NoSpread = topOfBook(noBook)
	snap.YesBidDepth5 = yesBook.DepthN(types.BUY, 5)
	snap.YesAskDepth5 = yesBook.DepthN(types.SELL, 5)
	snap.NoBidDepth5 = noBook.DepthN(types.BUY, 5)
	snap.NoAskDepth5 = noBook.DepthN(types.SELL, 5)

	snap.ReferencePrice = refPrice
	if refHistory != nil {
		snap.RefChange10s = refHistory.ChangeOverWindow(refPrice, nowMs, 10_000)
		snap.RefChange30s = refHistory.ChangeOverWindow(refPrice, nowMs, 30_000)
	}

	return snap, true
}

func topOfBook(book types.OrderBookSnapshot) (bestBid, bestAsk, mid, spread float64) {
	bid, hasBid := book.BestBid()
	ask, hasAsk := book.BestAsk()
	if hasBid {
		bestBid = bid.Price
	}
	if hasAsk {
		bestAsk = ask.Price
	}
	if hasBid && hasAsk {
		mid = (bestBid + bestAsk) / 2
		spread = bestAsk - bestBid
	} else if hasBid {
		mid = bestBid
	} else if hasAsk {
		mid = bestAsk
	}
	return
}
