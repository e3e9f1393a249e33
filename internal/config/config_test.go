package config

import (
	"os"
	"path/filepath"
	"testing"

	"hftengine/pkg/types"
)

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile() err = %v", err)
	}
	return path
}

const minimalPaperConfig = `
mode: paper
risk_level: moderate
enabled_strategies: ["S1_ARBITRAGE"]
max_total_exposure: 1000
tick_interval_ms: 500
history_depth: 120
markets: ["0xcond1"]
venue:
  clob_base_url: "https://clob.example.com"
  ws_market_url: "wss://ws.example.com"
hft:
  fee_per_side: 0.001
  max_arb_notional: 50
  latency_change_threshold: 0.01
  latency_lag_threshold: 0.005
  latency_max_size: 40
  latency_min_size: 5
  spread_mm_extra_min: 0.001
  spread_mm_extra_after: 0.002
  max_inventory: 100
  volatile_mid_range: 0.02
  nominal_size_usd: 20
  microstructure_min_edge: 0.01
  microstructure_min_size: 5
market_making:
  gamma: 0.1
  sigma: 0.02
  kappa: 1.5
  t: 1.0
  min_spread_bps: 5
  max_spread_bps: 50
  toxic_widen_multiplier: 2
  vpin_toxic_threshold: 0.7
  inventory_skew_alpha: 0.5
  base_size_usd: 20
  min_qty: 5
  max_qty: 100
  q_max: 100
  hedge_normal_threshold: 0.6
  hedge_urgent_threshold: 0.9
  max_daily_loss_usd: 300
  tick_size: 0.01
stoploss:
  fixed_pct: 0.05
  vol_multiplier: 2.5
  trailing_activation: 0.5
  take_profit_pct: 0.08
  max_hold_ms: 3600000
risk:
  min_time_to_resolution: 60s
  max_trade_size: 50
  per_asset_cap: 200
  total_cap: 1000
  concurrent_cap: 20
  max_1m_loss: 25
  max_1h_loss: 100
  max_daily_loss: 300
  max_drawdown_hard: 0.25
  max_correlation: 0.70
  min_liquidity_ratio: 0.30
  max_var_95: 0.15
store:
  backend: json
  data_dir: data/positions
logging:
  level: info
  format: text
`

func TestLoadParsesMinimalConfig(t *testing.T) {
	t.Parallel()
	path := writeConfigFile(t, minimalPaperConfig)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() err = %v", err)
	}
	if cfg.Mode != ModePaper {
		t.Errorf("Mode = %v, want paper", cfg.Mode)
	}
	if cfg.Venue.CLOBBaseURL != "https://clob.example.com" {
		t.Errorf("Venue.CLOBBaseURL = %v", cfg.Venue.CLOBBaseURL)
	}
	if cfg.HFT.MaxArbNotional != 50 {
		t.Errorf("HFT.MaxArbNotional = %v, want 50", cfg.HFT.MaxArbNotional)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() err = %v, want nil", err)
	}
}

func TestLoadBearerSecretEnvOverridesFile(t *testing.T) {
	path := writeConfigFile(t, minimalPaperConfig)
	t.Setenv("HFT_BEARER_SECRET", "env-secret")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() err = %v", err)
	}
	if cfg.Venue.BearerSecret != "env-secret" {
		t.Errorf("Venue.BearerSecret = %q, want env-secret", cfg.Venue.BearerSecret)
	}
}

func TestLoadModeEnvOverridesFile(t *testing.T) {
	path := writeConfigFile(t, minimalPaperConfig)
	t.Setenv("HFT_MODE", "live")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() err = %v", err)
	}
	if cfg.Mode != ModeLive {
		t.Errorf("Mode = %v, want live", cfg.Mode)
	}
}

func TestValidateRejectsUnrecognizedStrategyID(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.EnabledStrategies = []string{"NOT_A_STRATEGY"}

	if err := cfg.Validate(); err == nil {
		t.Error("Validate() err = nil, want error for unrecognized strategy id")
	}
}

func TestValidateRequiresBearerSecretInLiveMode(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.Mode = ModeLive
	cfg.Venue.CLOBBaseURL = "https://clob.example.com"
	cfg.Venue.WSMarketURL = "wss://ws.example.com"
	cfg.Markets = []string{"0xcond1"}

	if err := cfg.Validate(); err == nil {
		t.Error("Validate() err = nil, want error for missing bearer_secret in live mode")
	}
}

func TestValidateAllowsLiveModeWithBearerSecret(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.Mode = ModeLive
	cfg.Venue.CLOBBaseURL = "https://clob.example.com"
	cfg.Venue.WSMarketURL = "wss://ws.example.com"
	cfg.Venue.BearerSecret = "secret"
	cfg.Markets = []string{"0xcond1"}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() err = %v, want nil", err)
	}
}

func TestValidateRequiresStoreAddressForBackend(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.Mode = ModeLive
	cfg.Venue.CLOBBaseURL = "https://clob.example.com"
	cfg.Venue.WSMarketURL = "wss://ws.example.com"
	cfg.Venue.BearerSecret = "secret"
	cfg.Markets = []string{"0xcond1"}
	cfg.Store = StoreConfig{Backend: "sqlite"}

	if err := cfg.Validate(); err == nil {
		t.Error("Validate() err = nil, want error for sqlite backend with no path")
	}

	cfg.Store.Path = "data/positions.db"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() err = %v, want nil once store.path is set", err)
	}
}

func TestValidateRejectsQMaxBelowMaxInventory(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.MarketMaking.QMax = 10
	cfg.HFT.MaxInventory = 100

	if err := cfg.Validate(); err == nil {
		t.Error("Validate() err = nil, want error when market_making.q_max < hft.max_inventory")
	}
}

func TestValidateRejectsMaxSpreadBelowMinSpread(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.MarketMaking.MinSpreadBps = 50
	cfg.MarketMaking.MaxSpreadBps = 5

	if err := cfg.Validate(); err == nil {
		t.Error("Validate() err = nil, want error when market_making.max_spread_bps < min_spread_bps")
	}
}

func TestDefaultConfigIsValid(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.Venue.CLOBBaseURL = "https://clob.example.com"
	cfg.Venue.WSMarketURL = "wss://ws.example.com"
	cfg.Markets = []string{"0xcond1"}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() err = %v, want nil for DefaultConfig() plus required venue/markets fields", err)
	}
}

func TestToTickConfigTranslatesEnabledStrategies(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.EnabledStrategies = []string{"S1_ARBITRAGE", "MARKET_MAKING"}

	tc := cfg.ToTickConfig()
	if !tc.EnabledStrategies[types.StrategyArbitrage] {
		t.Error("EnabledStrategies[StrategyArbitrage] = false, want true")
	}
	if !tc.EnabledStrategies[types.StrategyMarketMaking] {
		t.Error("EnabledStrategies[StrategyMarketMaking] = false, want true")
	}
	if tc.EnabledStrategies[types.StrategyLatency] {
		t.Error("EnabledStrategies[StrategyLatency] = true, want false (not in EnabledStrategies)")
	}
}

func TestToTickConfigTranslatesTickIntervalAndHistoryDepth(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.TickIntervalMs = 250
	cfg.HistoryDepth = 60

	tc := cfg.ToTickConfig()
	if tc.TickInterval.Milliseconds() != 250 {
		t.Errorf("TickInterval = %v, want 250ms", tc.TickInterval)
	}
	if tc.HistoryDepth != 60 {
		t.Errorf("HistoryDepth = %v, want 60", tc.HistoryDepth)
	}
}

func TestMarketMakingEnabledAndQuantSignalEnabled(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.EnabledStrategies = []string{"S1_ARBITRAGE"}

	if cfg.MarketMakingEnabled() {
		t.Error("MarketMakingEnabled() = true, want false")
	}
	if cfg.QuantSignalEnabled() {
		t.Error("QuantSignalEnabled() = true, want false")
	}

	cfg.EnabledStrategies = []string{"MARKET_MAKING", "C5_QUANT_SIGNAL"}
	if !cfg.MarketMakingEnabled() {
		t.Error("MarketMakingEnabled() = false, want true")
	}
	if !cfg.QuantSignalEnabled() {
		t.Error("QuantSignalEnabled() = false, want true")
	}
}
