// Package config defines all configuration for the trading engine. Config
// is loaded from a YAML file (default: configs/config.yaml) with sensitive
// fields overridable via HFT_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"hftengine/internal/hft"
	"hftengine/internal/marketmaking"
	"hftengine/internal/stoploss"
	"hftengine/internal/tick"
	"hftengine/pkg/types"
)

// Mode selects how orders are routed.
type Mode string

const (
	ModePaper    Mode = "paper"
	ModeLive     Mode = "live"
	ModeBacktest Mode = "backtest"
)

// RiskLevel is a named risk profile; Validate (or a future profile loader)
// may use it to pick limit presets, but every numeric limit below always
// comes from the loaded config, never implied solely by this label.
type RiskLevel string

const (
	RiskConservative RiskLevel = "conservative"
	RiskModerate     RiskLevel = "moderate"
	RiskAggressive   RiskLevel = "aggressive"
)

// strategyIDs is every recognized value for enabled_strategies: the four
// HFT strategy IDs, the quant signal combiner, and market making.
var strategyIDs = map[string]bool{
	string(types.StrategyArbitrage):      true,
	string(types.StrategyLatency):        true,
	string(types.StrategySpreadMM):       true,
	string(types.StrategyMicrostructure): true,
	string(types.StrategyQuantSignal):    true,
	string(types.StrategyMarketMaking):   true,
}

// Config is the top-level configuration. Maps directly to the YAML file structure.
type Config struct {
	Mode              Mode      `mapstructure:"mode" validate:"required,oneof=paper live backtest"`
	RiskLevel         RiskLevel `mapstructure:"risk_level" validate:"required,oneof=conservative moderate aggressive"`
	EnabledStrategies []string  `mapstructure:"enabled_strategies" validate:"required,min=1"`
	MaxTotalExposure  float64   `mapstructure:"max_total_exposure" validate:"gt=0"`
	TickIntervalMs    int       `mapstructure:"tick_interval_ms" validate:"required,gt=0"`
	HistoryDepth      int       `mapstructure:"history_depth" validate:"required,gt=0"`

	// Markets lists the condition IDs to trade at startup, resolved to
	// full MarketInfo via the REST provider's GetMarket.
	Markets []string `mapstructure:"markets" validate:"required_unless=Mode backtest,min=1"`

	Venue         VenueConfig         `mapstructure:"venue"`
	HFT           HFTConfig           `mapstructure:"hft"`
	MarketMaking  MarketMakingConfig  `mapstructure:"market_making"`
	Stoploss      StoplossConfig      `mapstructure:"stoploss"`
	Risk          RiskConfig          `mapstructure:"risk"`
	Store         StoreConfig         `mapstructure:"store"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Discovery     DiscoveryConfig     `mapstructure:"discovery"`
}

// DiscoveryConfig controls the optional market scanner: when enabled, it
// supplements (or replaces) the static Markets list by polling a market
// listing API and ranking candidates by opportunity score.
type DiscoveryConfig struct {
	Enabled             bool          `mapstructure:"enabled"`
	GammaBaseURL        string        `mapstructure:"gamma_base_url" validate:"required_if=Enabled true"`
	PollInterval        time.Duration `mapstructure:"poll_interval"`
	MinLiquidity        float64       `mapstructure:"min_liquidity"`
	MinVolume24h        float64       `mapstructure:"min_volume_24h"`
	MinSpread           float64       `mapstructure:"min_spread"`
	MaxEndDateDays      int           `mapstructure:"max_end_date_days"`
	MaxMarkets          int           `mapstructure:"max_markets"`
	ExcludeSlugs        []string      `mapstructure:"exclude_slugs"`
	IncludeSlugs        []string      `mapstructure:"include_slugs"`
	IncludeConditionIDs []string      `mapstructure:"include_condition_ids"`
	IncludeKeywords     []string      `mapstructure:"include_keywords"`
	ExcludeKeywords     []string      `mapstructure:"exclude_keywords"`
}

// VenueConfig addresses and credentials for the REST, WebSocket, and
// reference-price collaborators. Supersedes the EIP-712 wallet/signature
// fields a single-venue CLOB client needed: auth here is a bearer secret
// handed to the REST adapter, not a signing key.
type VenueConfig struct {
	CLOBBaseURL    string        `mapstructure:"clob_base_url" validate:"required_unless=Mode backtest,omitempty,url"`
	WSMarketURL    string        `mapstructure:"ws_market_url" validate:"required_unless=Mode backtest"`
	BearerSecret   string        `mapstructure:"bearer_secret"`
	BearerIssuer   string        `mapstructure:"bearer_issuer"`
	BearerKeyID    string        `mapstructure:"bearer_key_id"`
	AmountDecimals int32         `mapstructure:"amount_decimals"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`

	PolygonAPIKey  string            `mapstructure:"polygon_api_key"`
	PolygonTickers map[string]string `mapstructure:"polygon_tickers"`
}

// HFTConfig tunes the four tick-driven strategies (S1-S4). Field meanings
// mirror hft.Config exactly; this wrapper exists only to attach
// mapstructure/validator tags without reaching into a collaborator
// package's own type.
type HFTConfig struct {
	FeePerSide             float64 `mapstructure:"fee_per_side" validate:"gte=0"`
	MaxArbNotional         float64 `mapstructure:"max_arb_notional" validate:"gt=0"`
	LatencyChangeThreshold float64 `mapstructure:"latency_change_threshold" validate:"gt=0"`
	LatencyLagThreshold    float64 `mapstructure:"latency_lag_threshold" validate:"gt=0"`
	LatencyMaxSize         float64 `mapstructure:"latency_max_size" validate:"gt=0"`
	LatencyMinSize         float64 `mapstructure:"latency_min_size" validate:"gt=0"`
	SpreadMMExtraMin       float64 `mapstructure:"spread_mm_extra_min" validate:"gte=0"`
	SpreadMMExtraAfter     float64 `mapstructure:"spread_mm_extra_after" validate:"gte=0"`
	MaxInventory           float64 `mapstructure:"max_inventory" validate:"gt=0"`
	VolatileMidRange       float64 `mapstructure:"volatile_mid_range" validate:"gt=0"`
	NominalSizeUSD         float64 `mapstructure:"nominal_size_usd" validate:"gt=0"`
	MicrostructureMinEdge  float64 `mapstructure:"microstructure_min_edge" validate:"gte=0"`
	MicrostructureMinSize  float64 `mapstructure:"microstructure_min_size" validate:"gt=0"`
}

func (c HFTConfig) toCollaborator() hft.Config {
	return hft.Config{
		FeePerSide:             c.FeePerSide,
		MaxArbNotional:         c.MaxArbNotional,
		LatencyChangeThreshold: c.LatencyChangeThreshold,
		LatencyLagThreshold:    c.LatencyLagThreshold,
		LatencyMaxSize:         c.LatencyMaxSize,
		LatencyMinSize:         c.LatencyMinSize,
		SpreadMMExtraMin:       c.SpreadMMExtraMin,
		SpreadMMExtraAfter:     c.SpreadMMExtraAfter,
		MaxInventory:           c.MaxInventory,
		VolatileMidRange:       c.VolatileMidRange,
		NominalSizeUSD:         c.NominalSizeUSD,
		MicrostructureMinEdge:  c.MicrostructureMinEdge,
		MicrostructureMinSize:  c.MicrostructureMinSize,
	}
}

func hftConfigFromCollaborator(c hft.Config) HFTConfig {
	return HFTConfig{
		FeePerSide:             c.FeePerSide,
		MaxArbNotional:         c.MaxArbNotional,
		LatencyChangeThreshold: c.LatencyChangeThreshold,
		LatencyLagThreshold:    c.LatencyLagThreshold,
		LatencyMaxSize:         c.LatencyMaxSize,
		LatencyMinSize:         c.LatencyMinSize,
		SpreadMMExtraMin:       c.SpreadMMExtraMin,
		SpreadMMExtraAfter:     c.SpreadMMExtraAfter,
		MaxInventory:           c.MaxInventory,
		VolatileMidRange:       c.VolatileMidRange,
		NominalSizeUSD:         c.NominalSizeUSD,
		MicrostructureMinEdge:  c.MicrostructureMinEdge,
		MicrostructureMinSize:  c.MicrostructureMinSize,
	}
}

// MarketMakingConfig tunes the Avellaneda-Stoikov quoting engine (C8).
//
//   - Gamma: risk aversion parameter. Higher = tighter spread, less inventory risk.
//   - Sigma: estimated price volatility.
//   - Kappa: order arrival rate. Higher = more aggressive quotes.
//   - T:     time horizon (1.0 for continuous quoting).
type MarketMakingConfig struct {
	Gamma float64 `mapstructure:"gamma" validate:"gt=0"`
	Sigma float64 `mapstructure:"sigma" validate:"gt=0"`
	Kappa float64 `mapstructure:"kappa" validate:"gt=0"`
	T     float64 `mapstructure:"t" validate:"gt=0"`

	MinSpreadBps float64 `mapstructure:"min_spread_bps" validate:"gte=0"`
	MaxSpreadBps float64 `mapstructure:"max_spread_bps" validate:"gtfield=MinSpreadBps"`

	ToxicWidenMultiplier float64 `mapstructure:"toxic_widen_multiplier" validate:"gte=1"`
	VPINToxicThreshold   float64 `mapstructure:"vpin_toxic_threshold" validate:"gt=0,lte=1"`

	InventorySkewAlpha float64 `mapstructure:"inventory_skew_alpha" validate:"gte=0"`

	BaseSizeUSD float64 `mapstructure:"base_size_usd" validate:"gt=0"`
	MinQty      float64 `mapstructure:"min_qty" validate:"gt=0"`
	MaxQty      float64 `mapstructure:"max_qty" validate:"gtfield=MinQty"`
	QMax        float64 `mapstructure:"q_max" validate:"gt=0"`

	HedgeNormalThreshold float64 `mapstructure:"hedge_normal_threshold" validate:"gt=0,lte=1"`
	HedgeUrgentThreshold float64 `mapstructure:"hedge_urgent_threshold" validate:"gtfield=HedgeNormalThreshold,lte=1"`

	MaxDailyLossUSD float64 `mapstructure:"max_daily_loss_usd" validate:"gt=0"`
	TickSize        float64 `mapstructure:"tick_size" validate:"gt=0"`
}

func (c MarketMakingConfig) toCollaborator() marketmaking.Config {
	return marketmaking.Config{
		Gamma:                c.Gamma,
		Sigma:                c.Sigma,
		Kappa:                c.Kappa,
		T:                    c.T,
		MinSpreadBps:         c.MinSpreadBps,
		MaxSpreadBps:         c.MaxSpreadBps,
		ToxicWidenMultiplier: c.ToxicWidenMultiplier,
		VPINToxicThreshold:   c.VPINToxicThreshold,
		InventorySkewAlpha:   c.InventorySkewAlpha,
		BaseSizeUSD:          c.BaseSizeUSD,
		MinQty:               c.MinQty,
		MaxQty:               c.MaxQty,
		QMax:                 c.QMax,
		HedgeNormalThreshold: c.HedgeNormalThreshold,
		HedgeUrgentThreshold: c.HedgeUrgentThreshold,
		MaxDailyLossUSD:      c.MaxDailyLossUSD,
		TickSize:             c.TickSize,
	}
}

func marketMakingConfigFromCollaborator(c marketmaking.Config) MarketMakingConfig {
	return MarketMakingConfig{
		Gamma:                c.Gamma,
		Sigma:                c.Sigma,
		Kappa:                c.Kappa,
		T:                    c.T,
		MinSpreadBps:         c.MinSpreadBps,
		MaxSpreadBps:         c.MaxSpreadBps,
		ToxicWidenMultiplier: c.ToxicWidenMultiplier,
		VPINToxicThreshold:   c.VPINToxicThreshold,
		InventorySkewAlpha:   c.InventorySkewAlpha,
		BaseSizeUSD:          c.BaseSizeUSD,
		MinQty:               c.MinQty,
		MaxQty:               c.MaxQty,
		QMax:                 c.QMax,
		HedgeNormalThreshold: c.HedgeNormalThreshold,
		HedgeUrgentThreshold: c.HedgeUrgentThreshold,
		MaxDailyLossUSD:      c.MaxDailyLossUSD,
		TickSize:             c.TickSize,
	}
}

// StoplossConfig tunes per-position stop-loss/take-profit/max-hold exits.
type StoplossConfig struct {
	FixedPct           float64 `mapstructure:"fixed_pct" validate:"gt=0"`
	VolMultiplier      float64 `mapstructure:"vol_multiplier" validate:"gt=0"`
	TrailingActivation float64 `mapstructure:"trailing_activation" validate:"gt=0,lte=1"`
	TakeProfitPct      float64 `mapstructure:"take_profit_pct" validate:"gt=0"`
	MaxHoldMs          int64   `mapstructure:"max_hold_ms" validate:"gt=0"`
}

func (c StoplossConfig) toCollaborator() stoploss.Config {
	return stoploss.Config{
		FixedPct:           c.FixedPct,
		VolMultiplier:      c.VolMultiplier,
		TrailingActivation: c.TrailingActivation,
		TakeProfitPct:      c.TakeProfitPct,
		MaxHoldMs:          c.MaxHoldMs,
	}
}

func stoplossConfigFromCollaborator(c stoploss.Config) StoplossConfig {
	return StoplossConfig{
		FixedPct:           c.FixedPct,
		VolMultiplier:      c.VolMultiplier,
		TrailingActivation: c.TrailingActivation,
		TakeProfitPct:      c.TakeProfitPct,
		MaxHoldMs:          c.MaxHoldMs,
	}
}

// RiskConfig sets the per-opportunity gate and portfolio-layer limits
// (C7). MinEdgeByStrategy maps a strategy ID string (see strategyIDs) to
// its minimum required edge fraction.
type RiskConfig struct {
	MinEdgeByStrategy    map[string]float64 `mapstructure:"min_edge_by_strategy"`
	MinTimeToResolution  time.Duration      `mapstructure:"min_time_to_resolution" validate:"gt=0"`
	MaxTradeSize         float64            `mapstructure:"max_trade_size" validate:"gt=0"`
	PerAssetCap          float64            `mapstructure:"per_asset_cap" validate:"gt=0"`
	TotalCap             float64            `mapstructure:"total_cap" validate:"gt=0"`
	ConcurrentCap        int                `mapstructure:"concurrent_cap" validate:"gt=0"`
	Max1mLoss            float64            `mapstructure:"max_1m_loss" validate:"gt=0"`
	Max1hLoss            float64            `mapstructure:"max_1h_loss" validate:"gt=0"`
	MaxDailyLoss         float64            `mapstructure:"max_daily_loss" validate:"gt=0"`
	MaxDrawdownHard      float64            `mapstructure:"max_drawdown_hard" validate:"gt=0,lte=1"`
	MaxCorrelation       float64            `mapstructure:"max_correlation" validate:"gt=0,lte=1"`
	MinLiquidityRatio    float64            `mapstructure:"min_liquidity_ratio" validate:"gt=0,lte=1"`
	MaxVaR95             float64            `mapstructure:"max_var_95" validate:"gt=0,lte=1"`
}

func (c RiskConfig) toLimits() types.RiskLimits {
	byStrategy := make(map[types.StrategyID]float64, len(c.MinEdgeByStrategy))
	for k, v := range c.MinEdgeByStrategy {
		byStrategy[types.StrategyID(k)] = v
	}
	return types.RiskLimits{
		MinEdgeByStrategy:   byStrategy,
		MinTimeToResolution: c.MinTimeToResolution,
		MaxTradeSize:        c.MaxTradeSize,
		PerAssetCap:         c.PerAssetCap,
		TotalCap:            c.TotalCap,
		ConcurrentCap:       c.ConcurrentCap,
		Max1mLoss:           c.Max1mLoss,
		Max1hLoss:           c.Max1hLoss,
		MaxDailyLoss:        c.MaxDailyLoss,
		MaxDrawdownHard:     c.MaxDrawdownHard,
		MaxCorrelation:      c.MaxCorrelation,
		MinLiquidityRatio:   c.MinLiquidityRatio,
		MaxVaR95:            c.MaxVaR95,
	}
}

// StoreConfig selects and addresses the position-persistence backend.
// Backend is one of "json", "sqlite", "redis"; only the matching address
// field needs to be set.
type StoreConfig struct {
	Backend  string `mapstructure:"backend" validate:"required,oneof=json sqlite redis"`
	DataDir  string `mapstructure:"data_dir"`
	Path     string `mapstructure:"path"`
	RedisURL string `mapstructure:"redis_url"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"omitempty,oneof=json text"`
}

// Load reads config from a YAML file with env var overrides.
// Sensitive fields use env vars: HFT_BEARER_SECRET, HFT_POLYGON_API_KEY,
// HFT_REDIS_URL.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("HFT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if secret := os.Getenv("HFT_BEARER_SECRET"); secret != "" {
		cfg.Venue.BearerSecret = secret
	}
	if key := os.Getenv("HFT_POLYGON_API_KEY"); key != "" {
		cfg.Venue.PolygonAPIKey = key
	}
	if url := os.Getenv("HFT_REDIS_URL"); url != "" {
		cfg.Store.RedisURL = url
	}
	if mode := os.Getenv("HFT_MODE"); mode != "" {
		cfg.Mode = Mode(mode)
	}

	return &cfg, nil
}

var structValidator = validator.New()

// Validate runs field-level struct-tag validation first (required fields,
// ranges, oneof enums), then the cross-field checks validator tags can't
// express on their own.
func (c *Config) Validate() error {
	if err := structValidator.Struct(c); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}

	for _, s := range c.EnabledStrategies {
		if !strategyIDs[s] {
			return fmt.Errorf("enabled_strategies: unrecognized strategy id %q", s)
		}
	}
	if c.Mode == ModeLive && c.Venue.BearerSecret == "" {
		return fmt.Errorf("venue.bearer_secret is required when mode is live (set HFT_BEARER_SECRET)")
	}
	if c.Store.Backend == "json" && c.Store.DataDir == "" {
		return fmt.Errorf("store.data_dir is required when store.backend is json")
	}
	if c.Store.Backend == "sqlite" && c.Store.Path == "" {
		return fmt.Errorf("store.path is required when store.backend is sqlite")
	}
	if c.Store.Backend == "redis" && c.Store.RedisURL == "" {
		return fmt.Errorf("store.redis_url is required when store.backend is redis (set HFT_REDIS_URL)")
	}
	if c.MarketMaking.QMax < c.HFT.MaxInventory {
		return fmt.Errorf("market_making.q_max must be >= hft.max_inventory so hedging and S3 share one inventory cap")
	}
	return nil
}

// strategyEnabled reports whether id is present in EnabledStrategies.
func (c *Config) strategyEnabled(id types.StrategyID) bool {
	for _, s := range c.EnabledStrategies {
		if s == string(id) {
			return true
		}
	}
	return false
}

// MarketMakingEnabled reports whether the Avellaneda-Stoikov quoting
// engine (C8) should run, as opposed to just the four HFT strategies.
func (c *Config) MarketMakingEnabled() bool {
	return c.strategyEnabled(types.StrategyMarketMaking)
}

// QuantSignalEnabled reports whether the C5 signal combiner opportunity
// should be evaluated.
func (c *Config) QuantSignalEnabled() bool {
	return c.strategyEnabled(types.StrategyQuantSignal)
}

// ToTickConfig assembles the tick engine's Config from this record's
// sub-configs, translating EnabledStrategies into the lookup map the tick
// loop checks per-strategy.
func (c *Config) ToTickConfig() tick.Config {
	enabled := make(map[types.StrategyID]bool, len(c.EnabledStrategies))
	for _, s := range c.EnabledStrategies {
		enabled[types.StrategyID(s)] = true
	}
	return tick.Config{
		HFT:               c.HFT.toCollaborator(),
		MM:                c.MarketMaking.toCollaborator(),
		Stoploss:          c.Stoploss.toCollaborator(),
		Limits:            c.Risk.toLimits(),
		Live:              c.Mode == ModeLive,
		FeeRate:           c.HFT.FeePerSide,
		QuantSizeUSD:      c.HFT.NominalSizeUSD,
		TickInterval:      time.Duration(c.TickIntervalMs) * time.Millisecond,
		HistoryDepth:      c.HistoryDepth,
		EnabledStrategies: enabled,
	}
}

// DefaultConfig returns every collaborator's literal defaults wrapped in a
// Config, for use by tests and as a starting point before a YAML file
// overrides specific fields.
func DefaultConfig() Config {
	return Config{
		Mode:              ModePaper,
		RiskLevel:         RiskModerate,
		EnabledStrategies: []string{"S1_ARBITRAGE", "S2_LATENCY", "S3_SPREAD_MM", "S4_MICROSTRUCTURE", "C5_QUANT_SIGNAL", "MARKET_MAKING"},
		MaxTotalExposure:  1000,
		TickIntervalMs:    500,
		HistoryDepth:      120,
		HFT:               hftConfigFromCollaborator(hft.DefaultConfig()),
		MarketMaking:      marketMakingConfigFromCollaborator(marketmaking.DefaultConfig()),
		Stoploss:          stoplossConfigFromCollaborator(stoploss.DefaultConfig()),
		Risk: RiskConfig{
			MinEdgeByStrategy: map[string]float64{
				"S1_ARBITRAGE":      0.01,
				"S2_LATENCY":        0.02,
				"S3_SPREAD_MM":      0.01,
				"S4_MICROSTRUCTURE": 0.02,
			},
			MinTimeToResolution: 60 * time.Second,
			MaxTradeSize:        50,
			PerAssetCap:         200,
			TotalCap:            1000,
			ConcurrentCap:       20,
			Max1mLoss:           25,
			Max1hLoss:           100,
			MaxDailyLoss:        300,
			MaxDrawdownHard:     0.25,
			MaxCorrelation:      0.70,
			MinLiquidityRatio:   0.30,
			MaxVaR95:            0.15,
		},
		Store: StoreConfig{
			Backend: "json",
			DataDir: "data/positions",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Venue: VenueConfig{
			AmountDecimals: 6,
			RequestTimeout: 10 * time.Second,
		},
	}
}
