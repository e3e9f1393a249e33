// Package risk enforces trading limits across every asset the engine
// trades: a background exposure/price-movement monitor generalized from a
// single-venue market-maker to many assets, plus the tick engine's
// synchronous per-opportunity gate and a portfolio-wide risk layer.
//
// The per-opportunity gate (Check) runs inline on the tick thread: ordered
// checks, first denial wins. The background monitor (Run/Report) and the
// portfolio layer (PortfolioCheck) run once per tick alongside it and latch
// a harder, explicit-reset-only halt on sustained drawdown.
package risk

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"hftengine/internal/stats"
	"hftengine/pkg/types"
)

// AssetReport is submitted once per tick per traded asset for the
// background exposure/price-movement monitor.
type AssetReport struct {
	Asset         string
	ExposureUSD   float64
	MidPrice      float64
	UnrealizedPnL float64
	RealizedPnL   float64
	TimestampMs   int64
}

// KillSignal tells the tick engine to cancel orders. An empty Asset means
// cancel across every asset (global kill).
type KillSignal struct {
	Asset  string
	Reason string
}

type priceAnchor struct {
	price       float64
	timestampMs int64
}

type pnlEntry struct {
	pnl         float64
	timestampMs int64
}

// Manager is the process-wide risk singleton: the tick thread is the sole
// writer; external readers use GetRiskSnapshot's copy.
type Manager struct {
	limits types.RiskLimits
	logger *slog.Logger

	mu               sync.RWMutex
	reports          map[string]AssetReport // latest report per asset
	totalExposure    float64
	totalRealizedPnL float64
	killSwitchActive bool
	killSwitchUntil  int64 // ms, 0 = not in cooldown
	priceAnchors     map[string]priceAnchor

	haltedFlag bool // explicit-reset-only halt, set by PortfolioCheck on hard drawdown
	haltReason string

	pnlHistory []pnlEntry // realized PnL entries, trimmed to the 1h window

	peakEquity    float64
	dailyResetDay int64 // days since epoch UTC, 0 = uninitialized

	reportCh chan AssetReport
	killCh   chan KillSignal
}

// NewManager builds a Manager from the configured risk limits.
func NewManager(limits types.RiskLimits, logger *slog.Logger) *Manager {
	return &Manager{
		limits:       limits,
		logger:       logger.With("component", "risk"),
		reports:      make(map[string]AssetReport),
		priceAnchors: make(map[string]priceAnchor),
		reportCh:     make(chan AssetReport, 100),
		killCh:       make(chan KillSignal, 10),
	}
}

// Run starts the background monitoring loop: drains reports and clears an
// expired cooldown even when no reports arrive.
func (rm *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case report := <-rm.reportCh:
			rm.processReport(report)
		case <-ticker.C:
			rm.clearExpiredKillSwitch()
		}
	}
}

// Report submits an asset exposure report (non-blocking).
func (rm *Manager) Report(report AssetReport) {
	select {
	case rm.reportCh <- report:
	default:
		rm.logger.Warn("risk report channel full, dropping report", "asset", report.Asset)
	}
}

// KillCh returns the channel the tick engine reads kill signals from.
func (rm *Manager) KillCh() <-chan KillSignal {
	return rm.killCh
}

// RemoveAsset cleans up state for an asset no longer traded.
func (rm *Manager) RemoveAsset(asset string) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	delete(rm.reports, asset)
	delete(rm.priceAnchors, asset)
	rm.recomputeTotals()
}

// IsKillSwitchActive reports whether the cooldown-based kill switch is
// engaged, clearing it in place once expired.
func (rm *Manager) IsKillSwitchActive() bool {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.killSwitchActiveLocked(nowMsOrDefault())
}

func (rm *Manager) killSwitchActiveLocked(nowMs int64) bool {
	if !rm.killSwitchActive {
		return false
	}
	if nowMs >= rm.killSwitchUntil {
		rm.killSwitchActive = false
		rm.logger.Info("kill switch cooldown expired")
		return false
	}
	return true
}

// Halted reports whether the explicit, hard-drawdown latch is set.
func (rm *Manager) Halted() bool {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return rm.haltedFlag
}

// HaltReason returns the reason the explicit halt was set, empty if not halted.
func (rm *Manager) HaltReason() string {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return rm.haltReason
}

// ResetHalt explicitly clears the hard-drawdown halt. Nothing in the engine
// calls this automatically — per §4.7, unhalt is explicit only.
func (rm *Manager) ResetHalt() {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.haltedFlag = false
	rm.haltReason = ""
}

// SetHalted latches the explicit halt with reason, used by the kill switch
// as step 3 of its trigger sequence (§4.12). Idempotent like ResetHalt's
// counterpart: calling it while already halted just overwrites the reason.
func (rm *Manager) SetHalted(reason string) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.haltedFlag = true
	rm.haltReason = reason
}

// RemainingBudget returns the minimum of per-asset and total exposure
// headroom for asset, 0 if either is already exceeded.
func (rm *Manager) RemainingBudget(asset string) float64 {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	var currentExposure float64
	if r, ok := rm.reports[asset]; ok {
		currentExposure = r.ExposureUSD
	}

	perAsset := rm.limits.PerAssetCap - currentExposure
	total := rm.limits.TotalCap - rm.totalExposure

	remaining := perAsset
	if total < remaining {
		remaining = total
	}
	if remaining < 0 {
		return 0
	}
	return remaining
}

// RiskSnapshot is a read-model copy of aggregate risk state.
type RiskSnapshot struct {
	TotalExposure      float64
	TotalCap           float64
	ExposurePct        float64
	KillSwitchActive   bool
	KillSwitchUntilMs  int64
	Halted             bool
	HaltReason         string
	TotalRealizedPnL   float64
	TotalUnrealizedPnL float64
	PerAssetCap        float64
	MaxDailyLoss       float64
	AssetCount         int
}

// GetRiskSnapshot returns a copy of current aggregate risk metrics.
func (rm *Manager) GetRiskSnapshot() RiskSnapshot {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	var totalUnrealized float64
	for _, r := range rm.reports {
		totalUnrealized += r.UnrealizedPnL
	}

	var exposurePct float64
	if rm.limits.TotalCap > 0 {
		exposurePct = (rm.totalExposure / rm.limits.TotalCap) * 100
	}

	return RiskSnapshot{
		TotalExposure:      rm.totalExposure,
		TotalCap:           rm.limits.TotalCap,
		ExposurePct:        exposurePct,
		KillSwitchActive:   rm.killSwitchActive,
		KillSwitchUntilMs:  rm.killSwitchUntil,
		Halted:             rm.haltedFlag,
		HaltReason:         rm.haltReason,
		TotalRealizedPnL:   rm.totalRealizedPnL,
		TotalUnrealizedPnL: totalUnrealized,
		PerAssetCap:        rm.limits.PerAssetCap,
		MaxDailyLoss:       rm.limits.MaxDailyLoss,
		AssetCount:         len(rm.reports),
	}
}

func (rm *Manager) processReport(report AssetReport) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	rm.reports[report.Asset] = report
	rm.recomputeTotals()

	if report.ExposureUSD > rm.limits.PerAssetCap {
		rm.emitKill(report.Asset, "per-asset exposure limit breached")
	}
	if rm.totalExposure > rm.limits.TotalCap {
		rm.emitKill("", "total exposure limit breached")
	}

	var totalUnrealized float64
	for _, r := range rm.reports {
		totalUnrealized += r.UnrealizedPnL
	}
	if rm.totalRealizedPnL+totalUnrealized < -rm.limits.MaxDailyLoss {
		rm.emitKill("", "max daily loss breached")
	}

	rm.checkPriceMovement(report)
}

// recomputeTotals recalculates exposure/PnL aggregates. Caller must hold mu.
func (rm *Manager) recomputeTotals() {
	rm.totalExposure = 0
	rm.totalRealizedPnL = 0
	for _, r := range rm.reports {
		rm.totalExposure += r.ExposureUSD
		rm.totalRealizedPnL += r.RealizedPnL
	}
}

// checkPriceMovement fires the kill switch on a rapid price swing within
// the configured window. Caller must hold mu.
func (rm *Manager) checkPriceMovement(report AssetReport) {
	const windowMs = 60_000
	const dropPct = 0.10

	anchor, ok := rm.priceAnchors[report.Asset]
	if !ok || report.TimestampMs-anchor.timestampMs > windowMs {
		rm.priceAnchors[report.Asset] = priceAnchor{price: report.MidPrice, timestampMs: report.TimestampMs}
		return
	}
	if anchor.price == 0 {
		return
	}

	pctChange := (report.MidPrice - anchor.price) / anchor.price
	if pctChange < 0 {
		pctChange = -pctChange
	}
	if pctChange > dropPct {
		rm.emitKill(report.Asset, fmt.Sprintf("rapid price movement: %.1f%% within %dms", pctChange*100, windowMs))
	}
}

func (rm *Manager) clearExpiredKillSwitch() {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.killSwitchActiveLocked(nowMsOrDefault())
}

// emitKill activates the cooldown kill switch and best-effort delivers a
// KillSignal, draining a stale one first if the channel is full. Caller
// must hold mu.
func (rm *Manager) emitKill(asset, reason string) {
	rm.emitKillFor(asset, reason, 5*time.Minute)
}

func (rm *Manager) emitKillFor(asset, reason string, cooldown time.Duration) {
	rm.killSwitchActive = true
	rm.killSwitchUntil = nowMsOrDefault() + cooldown.Milliseconds()

	rm.logger.Error("KILL SWITCH", "asset", asset, "reason", reason, "cooldown_ms", cooldown.Milliseconds())

	sig := KillSignal{Asset: asset, Reason: reason}
	select {
	case rm.killCh <- sig:
	default:
		select {
		case <-rm.killCh:
		default:
		}
		rm.killCh <- sig
	}
}

// nowMsOrDefault exists so the package never calls time.Now() from pure
// check logic; the background monitor is the one place wall-clock reads are
// unavoidable (it has no per-call timestamp input).
func nowMsOrDefault() int64 {
	return time.Now().UnixMilli()
}

// ————————————————————————————————————————————————————————————————————————
// Per-opportunity gate (§4.7, ordered checks, first denial wins)
// ————————————————————————————————————————————————————————————————————————

// CheckContext carries the per-tick state the gate needs but does not own
// itself (current inventory/exposure/order-count come from the position
// tracker and OMS).
type CheckContext struct {
	TimeToResolutionMs  int64
	PerAssetInventory   float64
	TotalExposure       float64
	OpenOrderCount      int
	EdgeDecayMultiplier float64 // from internal/edgedecay; pass 1.0 when not in use
}

// Decision is the gate's verdict on one opportunity.
type Decision struct {
	Approved            bool
	DenyReason          string
	SuggestedSize       float64
	RemainingCooldownMs int64
}

// Check runs the ordered per-opportunity ladder from §4.7. First denial
// wins; approval carries a suggested size scaled by the caller-supplied
// edge-decay multiplier.
func (rm *Manager) Check(opp types.Opportunity, cc CheckContext, nowMs int64) Decision {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.haltedFlag {
		return Decision{DenyReason: "trading halted: " + rm.haltReason, RemainingCooldownMs: -1}
	}
	if rm.killSwitchActiveLocked(nowMs) {
		return Decision{DenyReason: "kill switch active", RemainingCooldownMs: rm.killSwitchUntil - nowMs}
	}

	minEdge := rm.limits.MinEdgeByStrategy[opp.StrategyID]
	if opp.Edge < minEdge {
		return Decision{DenyReason: fmt.Sprintf("edge %.4f below minimum %.4f for %s", opp.Edge, minEdge, opp.StrategyID)}
	}

	if cc.TimeToResolutionMs < 60_000 {
		return Decision{DenyReason: "time to resolution below 60s"}
	}

	size := opp.SizeUSD
	if size > rm.limits.MaxTradeSize {
		size = rm.limits.MaxTradeSize
	}

	if cc.PerAssetInventory+size > rm.limits.PerAssetCap {
		return Decision{DenyReason: "per-asset cap exceeded"}
	}
	if cc.TotalExposure+size > rm.limits.TotalCap {
		return Decision{DenyReason: "total exposure cap exceeded"}
	}
	if cc.OpenOrderCount >= rm.limits.ConcurrentCap {
		return Decision{DenyReason: "concurrent order cap reached"}
	}

	if pnl := rm.rollingPnLLocked(60_000, nowMs); pnl < -rm.limits.Max1mLoss {
		rm.emitKillFor(opp.Asset, "rolling 1m loss exceeded", 60*time.Second)
		return Decision{DenyReason: "rolling 1m loss exceeded", RemainingCooldownMs: rm.killSwitchUntil - nowMs}
	}
	if pnl := rm.rollingPnLLocked(3_600_000, nowMs); pnl < -rm.limits.Max1hLoss {
		rm.emitKillFor(opp.Asset, "rolling 1h loss exceeded", 300*time.Second)
		return Decision{DenyReason: "rolling 1h loss exceeded", RemainingCooldownMs: rm.killSwitchUntil - nowMs}
	}

	remainingTotal := rm.limits.TotalCap - cc.TotalExposure
	suggested := size
	if remainingTotal < suggested {
		suggested = remainingTotal
	}
	if suggested < 0 {
		suggested = 0
	}
	suggested *= cc.EdgeDecayMultiplier

	return Decision{Approved: true, SuggestedSize: suggested}
}

// RecordRealizedPnL appends one realized-PnL event for the rolling 1m/1h
// loss checks, trimming entries older than the 1h window.
func (rm *Manager) RecordRealizedPnL(pnl float64, nowMs int64) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.pnlHistory = append(rm.pnlHistory, pnlEntry{pnl: pnl, timestampMs: nowMs})
	rm.trimPnLHistoryLocked(nowMs)
}

func (rm *Manager) trimPnLHistoryLocked(nowMs int64) {
	cutoff := nowMs - 3_600_000
	i := 0
	for ; i < len(rm.pnlHistory); i++ {
		if rm.pnlHistory[i].timestampMs >= cutoff {
			break
		}
	}
	rm.pnlHistory = rm.pnlHistory[i:]
}

func (rm *Manager) rollingPnLLocked(windowMs, nowMs int64) float64 {
	cutoff := nowMs - windowMs
	var sum float64
	for _, e := range rm.pnlHistory {
		if e.timestampMs >= cutoff {
			sum += e.pnl
		}
	}
	return sum
}

// ————————————————————————————————————————————————————————————————————————
// Portfolio layer (§4.7 second paragraph)
// ————————————————————————————————————————————————————————————————————————

// PortfolioInput is the per-tick snapshot the portfolio layer checks.
type PortfolioInput struct {
	Equity            float64
	StrategyReturns   map[types.StrategyID][]float64 // last ≤50 returns per strategy
	BookDepthUSD      float64
	RequestedExposure float64
	NowMs             int64
}

// PortfolioResult reports the portfolio layer's findings for one tick.
// Approved is false if any soft check fails; Halted mirrors Manager.Halted
// after this call (a hard-drawdown breach latches it).
type PortfolioResult struct {
	Approved               bool
	DrawdownFromPeak       float64
	LiquidityOK            bool
	MaxPairwiseCorrelation float64
	CorrelationOK          bool
	VaR95                  float64
	VaR95OK                bool
	DailyReset             bool
	Halted                 bool
	HaltReason             string
}

// PortfolioCheck runs the portfolio-wide checks: drawdown-from-peak,
// UTC-midnight daily reset, liquidity ratio, pairwise strategy-return
// correlation, and historical VaR95. A drawdown at or beyond
// MaxDrawdownHard latches the explicit-reset-only halt.
func (rm *Manager) PortfolioCheck(in PortfolioInput) PortfolioResult {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if in.Equity > rm.peakEquity {
		rm.peakEquity = in.Equity
	}
	var drawdown float64
	if rm.peakEquity > 0 {
		drawdown = (rm.peakEquity - in.Equity) / rm.peakEquity
	}

	dailyReset := rm.maybeDailyResetLocked(in.NowMs)

	liquidityOK := true
	if in.BookDepthUSD > 0 {
		liquidityOK = in.RequestedExposure <= rm.limits.MinLiquidityRatio*in.BookDepthUSD
	}

	maxCorr := maxPairwiseCorrelation(in.StrategyReturns)
	correlationOK := maxCorr <= rm.limits.MaxCorrelation

	var pooled []float64
	for _, rets := range in.StrategyReturns {
		pooled = append(pooled, rets...)
	}
	var95 := historicalVaR95(pooled)
	var95OK := var95 <= rm.limits.MaxVaR95

	if rm.limits.MaxDrawdownHard > 0 && drawdown >= rm.limits.MaxDrawdownHard && !rm.haltedFlag {
		rm.haltedFlag = true
		rm.haltReason = fmt.Sprintf("drawdown %.4f reached hard limit %.4f", drawdown, rm.limits.MaxDrawdownHard)
		rm.logger.Error("portfolio drawdown halt", "drawdown", drawdown, "limit", rm.limits.MaxDrawdownHard)
	}

	return PortfolioResult{
		Approved:               liquidityOK && correlationOK && var95OK && !rm.haltedFlag,
		DrawdownFromPeak:       drawdown,
		LiquidityOK:            liquidityOK,
		MaxPairwiseCorrelation: maxCorr,
		CorrelationOK:          correlationOK,
		VaR95:                  var95,
		VaR95OK:                var95OK,
		DailyReset:             dailyReset,
		Halted:                 rm.haltedFlag,
		HaltReason:             rm.haltReason,
	}
}

// maybeDailyResetLocked returns true the first time it is called on a new
// UTC day, resetting the day marker. Caller must hold mu.
func (rm *Manager) maybeDailyResetLocked(nowMs int64) bool {
	day := nowMs / 86_400_000
	if rm.dailyResetDay == 0 {
		rm.dailyResetDay = day
		return false
	}
	if day != rm.dailyResetDay {
		rm.dailyResetDay = day
		return true
	}
	return false
}

func maxPairwiseCorrelation(byStrategy map[types.StrategyID][]float64) float64 {
	keys := make([]types.StrategyID, 0, len(byStrategy))
	for k := range byStrategy {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	var max float64
	for i := 0; i < len(keys); i++ {
		for j := i + 1; j < len(keys); j++ {
			c := stats.Correlation(byStrategy[keys[i]], byStrategy[keys[j]])
			if c < 0 {
				c = -c
			}
			if c > max {
				max = c
			}
		}
	}
	return max
}

// historicalVaR95 returns the magnitude of the 5th-percentile loss in
// returns (historical simulation), 0 if fewer than two samples.
func historicalVaR95(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	sorted := append([]float64(nil), returns...)
	sort.Float64s(sorted)
	idx := int(0.05 * float64(len(sorted)))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	v := sorted[idx]
	if v < 0 {
		return -v
	}
	return 0
}
