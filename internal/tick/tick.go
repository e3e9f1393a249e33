// Package tick implements the fixed-cadence tick engine (C13): the 500ms
// scheduler that, for every active market in parallel, builds a snapshot,
// evaluates the signal generators and the four HFT strategies, prices a
// market-making quote, runs every resulting opportunity through the risk
// gate, and drives the resulting orders through the OMS.
package tick

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sourcegraph/conc"

	"hftengine/internal/edgedecay"
	"hftengine/internal/hft"
	"hftengine/internal/history"
	"hftengine/internal/killswitch"
	"hftengine/internal/marketmaking"
	"hftengine/internal/oms"
	"hftengine/internal/performance"
	"hftengine/internal/position"
	"hftengine/internal/risk"
	"hftengine/internal/signal"
	"hftengine/internal/snapshot"
	"hftengine/internal/stoploss"
	"hftengine/internal/venue"
	"hftengine/pkg/types"
)

// Interval is the fixed tick cadence (§4.13).
const Interval = 500 * time.Millisecond

// StaleOrderAgeMs is how long an unfilled order may sit before the
// periodic sweep cancels it.
const StaleOrderAgeMs = 30_000

// StaleOrderSweepEveryNTicks controls how often the stale-order sweep runs.
const StaleOrderSweepEveryNTicks = 10

// HistoryCapacity is the per-series rolling-window depth for every asset's
// history bundle.
const HistoryCapacity = history.DefaultCapacity

// Config bundles every tuning knob the engine's collaborators need. New
// uses the sub-configs exactly as given and does not replace zero values
// with any sub-package's DefaultConfig; only TickInterval and HistoryDepth
// fall back (to Interval and HistoryCapacity) when zero. NewConfig returns
// every package's defaults.
type Config struct {
	HFT          hft.Config
	MM           marketmaking.Config
	Stoploss     stoploss.Config
	Limits       types.RiskLimits
	Live         bool          // true: route orders through the venue; false: simulate fills synchronously
	FeeRate      float64       // simulated-fill fee, fraction of notional
	QuantSizeUSD float64       // nominal size for the C5 quant-signal opportunity
	TickInterval time.Duration // tick cadence; zero falls back to Interval
	HistoryDepth int           // per-series rolling-window depth; zero falls back to HistoryCapacity

	// EnabledStrategies restricts which strategies (by types.StrategyID)
	// the tick loop evaluates; a nil map enables every strategy, matching
	// the zero-value Config{} used by tests.
	EnabledStrategies map[types.StrategyID]bool
}

// strategyEnabled reports whether id should be evaluated this tick. A nil
// EnabledStrategies map enables everything.
func (e *Engine) strategyEnabled(id types.StrategyID) bool {
	if e.cfg.EnabledStrategies == nil {
		return true
	}
	return e.cfg.EnabledStrategies[id]
}

// NewConfig returns the literal defaults from every collaborator package.
func NewConfig() Config {
	return Config{
		HFT:          hft.DefaultConfig(),
		MM:           marketmaking.DefaultConfig(),
		Stoploss:     stoploss.DefaultConfig(),
		Live:         false,
		FeeRate:      0.001,
		QuantSizeUSD: signal.DefaultNominalSizeUSD,
		TickInterval: Interval,
		HistoryDepth: HistoryCapacity,
	}
}

// historyDepth returns the configured per-series rolling-window depth,
// falling back to HistoryCapacity when the engine was built with a zero
// Config{} rather than NewConfig().
func (e *Engine) historyDepth() int {
	if e.cfg.HistoryDepth > 0 {
		return e.cfg.HistoryDepth
	}
	return HistoryCapacity
}

// tickInterval returns the configured tick cadence, falling back to
// Interval when the engine was built with a zero Config{}.
func (e *Engine) tickInterval() time.Duration {
	if e.cfg.TickInterval > 0 {
		return e.cfg.TickInterval
	}
	return Interval
}

// Engine owns every per-tick collaborator and runs the fixed-cadence loop.
// The tick goroutine (and the per-market goroutines it fans out to) is the
// sole writer of every history buffer and inventory/position/order state;
// everything else only reads snapshots.
type Engine struct {
	cfg Config

	provider venue.MarketDataProvider
	refFeed  venue.ReferenceFeed
	router   venue.OrderRouter
	alerts   venue.AlertChannel
	clock    venue.Clock

	snapBuilder *snapshot.Builder
	oms         *oms.Manager
	positions   *position.Tracker
	mm          *marketmaking.Tracker
	combiner    *signal.Combiner
	riskMgr     *risk.Manager
	edge        *edgedecay.Monitor
	perf        *performance.Tracker
	kill        *killswitch.Switch

	logger *slog.Logger

	marketsMu sync.RWMutex
	markets   map[string]types.MarketInfo // keyed by Slug (= TickSnapshot.Asset)

	refPriceMu sync.RWMutex
	refPrices  map[string]float64

	histMu sync.Mutex
	hist   map[string]*assetHistories // keyed by Slug

	stopMu sync.Mutex
	stops  map[string]*stoploss.State // keyed by TokenID

	dominantMu sync.Mutex
	dominant   map[string]string // tokenID -> dominant signal component name, for combiner feedback

	tickCount int64
}

// New wires every collaborator together. combiner and mm are constructed by
// the caller since their configuration (base signal weights, inventory
// limits) is deployment-specific.
func New(cfg Config, provider venue.MarketDataProvider, refFeed venue.ReferenceFeed, router venue.OrderRouter, alerts venue.AlertChannel, combiner *signal.Combiner, logger *slog.Logger) *Engine {
	if alerts == nil {
		alerts = venue.NopAlertChannel{}
	}
	logger = logger.With("component", "tick")

	ordMgr := oms.New(logger)
	posTracker := position.New(logger)
	riskMgr := risk.NewManager(cfg.Limits, logger)

	e := &Engine{
		cfg:         cfg,
		provider:    provider,
		refFeed:     refFeed,
		router:      router,
		alerts:      alerts,
		clock:       venue.SystemClock{},
		snapBuilder: snapshot.New(provider, logger),
		oms:         ordMgr,
		positions:   posTracker,
		mm:          marketmaking.New(),
		combiner:    combiner,
		riskMgr:     riskMgr,
		edge:        edgedecay.New(),
		perf:        performance.New(),
		logger:      logger,
		markets:     make(map[string]types.MarketInfo),
		refPrices:   make(map[string]float64),
		hist:        make(map[string]*assetHistories),
		stops:       make(map[string]*stoploss.State),
		dominant:    make(map[string]string),
	}
	e.kill = killswitch.New(ordMgr, posTracker, router, alerts, riskMgr, e.lastKnownPrice, logger)
	return e
}

// SetMarkets replaces the tradable-market set. Safe to call while Run is
// active; takes effect from the next tick.
func (e *Engine) SetMarkets(markets []types.MarketInfo) {
	e.marketsMu.Lock()
	defer e.marketsMu.Unlock()
	next := make(map[string]types.MarketInfo, len(markets))
	for _, m := range markets {
		next[m.Slug] = m
	}
	e.markets = next

	e.histMu.Lock()
	defer e.histMu.Unlock()
	for slug := range next {
		if _, ok := e.hist[slug]; !ok {
			e.hist[slug] = newAssetHistories(e.historyDepth())
		}
	}
}

func (e *Engine) snapshotMarkets() []types.MarketInfo {
	e.marketsMu.RLock()
	defer e.marketsMu.RUnlock()
	out := make([]types.MarketInfo, 0, len(e.markets))
	for _, m := range e.markets {
		out = append(out, m)
	}
	return out
}

func (e *Engine) assetHistory(slug string) *assetHistories {
	e.histMu.Lock()
	defer e.histMu.Unlock()
	h, ok := e.hist[slug]
	if !ok {
		h = newAssetHistories(e.historyDepth())
		e.hist[slug] = h
	}
	return h
}

func (e *Engine) stopState(tokenID string) *stoploss.State {
	e.stopMu.Lock()
	defer e.stopMu.Unlock()
	st, ok := e.stops[tokenID]
	if !ok {
		st = &stoploss.State{}
		e.stops[tokenID] = st
	}
	return st
}

func (e *Engine) lastKnownPrice(tokenID string) (float64, bool) {
	for _, p := range e.positions.Open() {
		if p.TokenID == tokenID {
			return p.CurrentPrice, true
		}
	}
	return 0, false
}

// Run drives the fixed-cadence loop until ctx is cancelled. If a
// ReferenceFeed is configured, it is subscribed once up front and kept
// current via a background goroutine; Run itself only ever reads the
// latest cached reference price.
func (e *Engine) Run(ctx context.Context) {
	if e.refFeed != nil {
		go e.consumeReferenceFeed(ctx)
	}
	go e.riskMgr.Run(ctx)
	go e.consumeKillSignals(ctx)

	ticker := time.NewTicker(e.tickInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			e.tick(ctx, now.UnixMilli())
		}
	}
}

func (e *Engine) consumeReferenceFeed(ctx context.Context) {
	e.marketsMu.RLock()
	assets := make([]string, 0, len(e.markets))
	for slug := range e.markets {
		assets = append(assets, slug)
	}
	e.marketsMu.RUnlock()

	updates, err := e.refFeed.Subscribe(ctx, assets)
	if err != nil {
		e.logger.Error("reference feed subscribe failed", "err", err)
		return
	}
	for u := range updates {
		e.refPriceMu.Lock()
		e.refPrices[u.Asset] = u.Price
		e.refPriceMu.Unlock()
	}
}

// consumeKillSignals forwards every background-monitor kill signal to the
// kill switch. An empty Asset means a global halt; a per-asset signal still
// trips the whole switch today since the switch's scope is process-wide —
// a narrower per-asset trip is future work (the signal's Asset field is
// preserved in the reason string for the audit trail).
func (e *Engine) consumeKillSignals(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-e.riskMgr.KillCh():
			reason := sig.Reason
			if sig.Asset != "" {
				reason = sig.Asset + ": " + reason
			}
			_ = e.kill.Trigger(ctx, reason, e.clock.Now().UnixMilli())
		}
	}
}

func (e *Engine) referencePrice(asset string) float64 {
	e.refPriceMu.RLock()
	defer e.refPriceMu.RUnlock()
	return e.refPrices[asset]
}

// tick runs one cycle: every market is processed in parallel via
// conc.WaitGroup, and a per-market panic is isolated so it never aborts
// the tick for the rest of the book (§4.13). A bounded deadline keeps one
// slow market from holding the whole tick open indefinitely.
func (e *Engine) tick(ctx context.Context, nowMs int64) {
	e.tickCount++
	tickCtx, cancel := context.WithTimeout(ctx, Interval)
	defer cancel()

	markets := e.snapshotMarkets()

	var wg conc.WaitGroup
	for _, mkt := range markets {
		mkt := mkt
		wg.Go(func() {
			e.processMarket(tickCtx, mkt, nowMs)
		})
	}
	wg.Wait()

	e.runPortfolioCheck(nowMs)

	if e.tickCount%StaleOrderSweepEveryNTicks == 0 {
		e.sweepStaleOrders(tickCtx, nowMs)
	}
}

func (e *Engine) runPortfolioCheck(nowMs int64) {
	strategyReturns := e.perf.StrategyReturns()
	result := e.riskMgr.PortfolioCheck(risk.PortfolioInput{
		Equity:            e.portfolioEquity(),
		StrategyReturns:   strategyReturns,
		BookDepthUSD:      e.positions.TotalExposure(),
		RequestedExposure: e.positions.TotalExposure(),
		NowMs:             nowMs,
	})
	if result.Halted && !result.Approved {
		e.logger.Error("portfolio layer halted trading", "reason", result.HaltReason)
	}
}

func (e *Engine) portfolioEquity() float64 {
	return e.positions.DailyRealizedPnL() + e.positions.TotalExposure()
}

// sweepStaleOrders cancels every open order older than StaleOrderAgeMs.
func (e *Engine) sweepStaleOrders(ctx context.Context, nowMs int64) {
	for _, o := range e.oms.OpenOrders() {
		if nowMs-o.CreatedAtMs < StaleOrderAgeMs {
			continue
		}
		if err := e.oms.Transition(o.ID, types.StateCancelled, "stale order sweep", nowMs); err != nil {
			continue
		}
		if e.cfg.Live && e.router != nil {
			if _, err := e.router.Cancel(ctx, o.ID); err != nil {
				e.logger.Warn("router cancel failed for stale order", "order_id", o.ID, "err", err)
			}
		}
	}
}
