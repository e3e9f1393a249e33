package tick

import (
	"hftengine/internal/hft"
	"hftengine/internal/history"
)

// assetHistories bundles every rolling series one traded asset needs across
// the signal generators, HFT strategies, and market-making engine. The tick
// engine is the sole writer; each asset's bundle is only ever touched by
// that asset's own per-tick goroutine, never concurrently.
type assetHistories struct {
	yesMid *history.Buffer
	noMid  *history.Buffer
	refMid *history.Buffer
	spread *history.Buffer
	volume *history.Buffer
	ofi    *history.Buffer
	micro  hft.MicroHistories
}

func newAssetHistories(capacity int) *assetHistories {
	yesMid := history.New(capacity)
	return &assetHistories{
		yesMid: yesMid,
		noMid:  history.New(capacity),
		refMid: history.New(capacity),
		spread: history.New(capacity),
		volume: history.New(capacity),
		ofi:    history.New(capacity),
		micro: hft.MicroHistories{
			YesBidRatio:      history.New(capacity),
			YesBidLevelCount: history.New(capacity),
			YesAskLevelCount: history.New(capacity),
			YesMid:           yesMid,
		},
	}
}
