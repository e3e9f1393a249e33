// Package polygonfeed implements venue.ReferenceFeed backed by Polygon.io's
// REST last-trade endpoint. A perpetual-futures venue's last-price stream
// is the natural reference feed for latency-arbitrage and cross-asset
// signals; Polygon's crypto aggregates stand in for it here since Polygon
// is the reference-market-data source available in this deployment.
package polygonfeed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	polygon "github.com/polygon-io/client-go/rest"
	"github.com/polygon-io/client-go/rest/models"

	"hftengine/internal/history"
	"hftengine/internal/venue"
	"hftengine/pkg/types"
)

// pollInterval governs how often each subscribed asset's last trade is
// polled. Polygon's REST API has no push-streaming transport in the tier
// this client targets, so Subscribe degrades gracefully to polling rather
// than blocking on a feature the free/starter tier doesn't offer.
const pollInterval = 2 * time.Second

// Config configures a Feed.
type Config struct {
	APIKey string
	// Tickers maps an internal asset name (as used in types.MarketInfo.Slug
	// and opportunity Asset fields) to the Polygon ticker symbol to poll
	// for it, e.g. "btc-updown" -> "X:BTCUSD".
	Tickers map[string]string
}

// Feed polls Polygon's last-trade endpoint for every subscribed asset and
// emits venue.PriceUpdate values on a shared channel.
type Feed struct {
	client *polygon.Client
	cfg    Config
	logger *slog.Logger

	hist map[string]*history.Buffer
}

// NewFeed builds a Feed from cfg.
func NewFeed(cfg Config, logger *slog.Logger) *Feed {
	return &Feed{
		client: polygon.New(cfg.APIKey),
		cfg:    cfg,
		logger: logger.With("component", "polygonfeed"),
		hist:   make(map[string]*history.Buffer),
	}
}

// Subscribe polls every asset with a configured ticker mapping on
// pollInterval until ctx is cancelled, satisfying venue.ReferenceFeed.
// Assets with no Tickers entry are silently skipped, not errored, since a
// deployment may mix Polygon-backed and non-Polygon-backed assets.
func (f *Feed) Subscribe(ctx context.Context, assets []string) (<-chan venue.PriceUpdate, error) {
	tracked := make([]string, 0, len(assets))
	for _, a := range assets {
		if _, ok := f.cfg.Tickers[a]; ok {
			tracked = append(tracked, a)
			f.hist[a] = history.New(history.DefaultCapacity)
		}
	}
	if len(tracked) == 0 {
		return nil, fmt.Errorf("polygonfeed: no subscribed asset has a configured ticker mapping")
	}

	updates := make(chan venue.PriceUpdate, len(tracked)*2)
	go f.pollLoop(ctx, tracked, updates)
	return updates, nil
}

func (f *Feed) pollLoop(ctx context.Context, assets []string, updates chan<- venue.PriceUpdate) {
	defer close(updates)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, asset := range assets {
				f.pollOne(ctx, asset, updates)
			}
		}
	}
}

func (f *Feed) pollOne(ctx context.Context, asset string, updates chan<- venue.PriceUpdate) {
	symbol := f.cfg.Tickers[asset]
	resp, err := f.client.GetLastTrade(ctx, &models.GetLastTradeParams{Ticker: symbol})
	if err != nil {
		f.logger.Warn("polygon last trade failed", "asset", asset, "symbol", symbol, "err", err)
		return
	}
	if resp.Results.Price == 0 {
		return
	}

	nowMs := time.Now().UnixMilli()
	h := f.hist[asset]
	change10s := h.ChangeOverWindow(resp.Results.Price, nowMs, 10_000)
	change30s := h.ChangeOverWindow(resp.Results.Price, nowMs, 30_000)
	h.Push(types.PriceSample{Price: resp.Results.Price, TimestampMs: nowMs})

	update := venue.PriceUpdate{
		Asset:       asset,
		Price:       resp.Results.Price,
		Change10s:   change10s,
		Change30s:   change30s,
		TimestampMs: nowMs,
	}
	select {
	case updates <- update:
	default:
		f.logger.Warn("price update channel full, dropping update", "asset", asset)
	}
}
