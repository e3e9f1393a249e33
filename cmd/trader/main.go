// hftengine — a sub-second tick-driven trading engine that runs four HFT
// strategies, a quant signal combiner, and an Avellaneda-Stoikov
// market-making quote generator through a shared risk gate and order
// lifecycle state machine.
//
// Architecture:
//
//	main.go                    — entry point: loads config, wires collaborators, starts the tick engine, waits for SIGINT/SIGTERM
//	internal/tick              — fixed-cadence loop: snapshot, strategies, market making, risk gate, order submission
//	internal/hft                — the four tick-driven strategies (structural arb, latency arb, spread-capture MM, microstructure confluence)
//	internal/signal             — the quant signal components and the adaptive-weight combiner
//	internal/marketmaking       — Avellaneda-Stoikov reservation price, optimal spread, inventory skew, hedging
//	internal/risk               — per-opportunity gate, background exposure monitor, portfolio layer, kill switch
//	internal/oms                — order lifecycle state machine
//	internal/venue/rest         — REST order routing and market data for a generic venue
//	internal/venue/wsfeed       — reconnecting WebSocket order-book cache and reference-price stream
//	internal/venue/polygonfeed — Polygon.io-backed reference-price feed (perp/crypto leg)
//	internal/store              — position persistence (JSON file, SQLite, or Redis)
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"hftengine/internal/config"
	"hftengine/internal/discovery"
	quantsignal "hftengine/internal/signal"
	"hftengine/internal/store"
	"hftengine/internal/tick"
	"hftengine/internal/venue"
	"hftengine/internal/venue/polygonfeed"
	"hftengine/internal/venue/rest"
	"hftengine/internal/venue/wsfeed"
	"hftengine/pkg/types"
)

func main() {
	cfgPath := "configs/config.yaml"
	if p := os.Getenv("HFT_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)

	posStore, err := openStore(cfg.Store)
	if err != nil {
		logger.Error("failed to open position store", "error", err)
		os.Exit(1)
	}
	defer posStore.Close()

	restCfg := rest.DefaultConfig(cfg.Venue.CLOBBaseURL)
	restCfg.AmountDecimals = cfg.Venue.AmountDecimals
	if cfg.Venue.RequestTimeout > 0 {
		restCfg.Timeout = cfg.Venue.RequestTimeout
	}
	restCfg.DryRun = cfg.Mode != config.ModeLive

	var auth *rest.BearerAuth
	if cfg.Venue.BearerSecret != "" {
		auth = rest.NewBearerAuth([]byte(cfg.Venue.BearerSecret), cfg.Venue.BearerIssuer, cfg.Venue.BearerKeyID)
	}
	restClient := rest.NewClient(restCfg, auth, logger)

	var provider venue.MarketDataProvider = restClient
	var router venue.OrderRouter = restClient
	if cfg.Mode == config.ModePaper {
		router = venue.NewPaperRouter(logger)
	}

	var refFeed venue.ReferenceFeed
	switch {
	case cfg.Venue.PolygonAPIKey != "":
		refFeed = polygonfeed.NewFeed(polygonfeed.Config{
			APIKey:  cfg.Venue.PolygonAPIKey,
			Tickers: cfg.Venue.PolygonTickers,
		}, logger)
	case cfg.Venue.WSMarketURL != "":
		feed := wsfeed.NewFeed(cfg.Venue.WSMarketURL, logger)
		// GetMarket always goes to REST (wsfeed doesn't carry market
		// metadata); only order-book reads prefer the streaming cache.
		provider = hybridProvider{books: feed, meta: restClient}
		refFeed = feed
	}

	alerts := venue.NewLogAlertChannel(logger)
	combiner := quantsignal.NewCombiner(nil)

	engine := tick.New(cfg.ToTickConfig(), provider, refFeed, router, alerts, combiner, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	markets := make([]types.MarketInfo, 0, len(cfg.Markets))
	for _, conditionID := range cfg.Markets {
		mkt, err := provider.GetMarket(ctx, conditionID)
		if err != nil {
			logger.Error("failed to resolve market, skipping", "condition_id", conditionID, "error", err)
			continue
		}
		markets = append(markets, mkt)

		if pos, err := posStore.LoadPosition(conditionID); err != nil {
			logger.Error("failed to load persisted position", "condition_id", conditionID, "error", err)
		} else if pos != nil {
			logger.Info("restored persisted position", "condition_id", conditionID, "token_id", pos.TokenID, "size", pos.Size)
		}
	}
	engine.SetMarkets(markets)

	if cfg.Discovery.Enabled {
		scanner := discovery.NewScanner(cfg.Discovery, logger)
		go scanner.Run(ctx)
		go func() {
			for candidates := range scanner.Results() {
				discovered := make([]types.MarketInfo, len(candidates))
				for i, c := range candidates {
					discovered[i] = c.Market
				}
				logger.Info("discovery selected markets", "count", len(discovered))
				engine.SetMarkets(discovered)
			}
		}()
	}

	logger.Info("hftengine started",
		"mode", cfg.Mode,
		"risk_level", cfg.RiskLevel,
		"markets", len(markets),
		"max_total_exposure", cfg.MaxTotalExposure,
		"tick_interval_ms", cfg.TickIntervalMs,
	)

	done := make(chan struct{})
	go func() {
		engine.Run(ctx)
		close(done)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	cancel()
	<-done
}

// hybridProvider reads order books from a streaming cache (wsfeed) but
// always resolves market metadata through the REST provider, since a
// reconnecting WS feed only ever learns about books it's subscribed to.
type hybridProvider struct {
	books venue.MarketDataProvider
	meta  venue.MarketDataProvider
}

func (h hybridProvider) GetOrderBook(ctx context.Context, tokenID string) (types.OrderBookSnapshot, error) {
	return h.books.GetOrderBook(ctx, tokenID)
}

func (h hybridProvider) GetMarket(ctx context.Context, conditionID string) (types.MarketInfo, error) {
	return h.meta.GetMarket(ctx, conditionID)
}

func openStore(cfg config.StoreConfig) (store.PositionStore, error) {
	switch cfg.Backend {
	case "sqlite":
		return store.OpenSQLiteStore(cfg.Path)
	case "redis":
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis_url: %w", err)
		}
		return store.OpenRedisStore(opts), nil
	default:
		return store.OpenJSONFileStore(cfg.DataDir)
	}
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
