package discovery

import (
	"encoding/json"
	"io"
	"log/slog"
	"strconv"
	"testing"
	"time"

	"hftengine/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func tokenIDs(t *testing.T, ids ...string) string {
	t.Helper()
	b, err := json.Marshal(ids)
	if err != nil {
		t.Fatalf("json.Marshal() err = %v", err)
	}
	return string(b)
}

func sampleMarket(t *testing.T, slug string, liquidity, volume24h, spread float64) listedMarket {
	return listedMarket{
		ID:              slug,
		Question:        "Will " + slug + " happen?",
		ConditionID:     "0x" + slug,
		Slug:            slug,
		Active:          true,
		Closed:          false,
		AcceptingOrders: true,
		EnableOrderBook: true,
		EndDate:         time.Now().Add(48 * time.Hour).Format(time.RFC3339),
		Liquidity:       strconv.FormatFloat(liquidity, 'f', -1, 64),
		Volume24hr:      volume24h,
		ClobTokenIds:    tokenIDs(t, "yes-"+slug, "no-"+slug),
		Spread:          spread,
		BestBid:         0.45,
		BestAsk:         0.46,
	}
}

func TestFilterMarketsDropsInactiveClosedAndUnorderable(t *testing.T) {
	t.Parallel()
	s := &Scanner{cfg: config.DiscoveryConfig{MaxEndDateDays: 30}, logger: testLogger()}

	active := sampleMarket(t, "active-market", 5000, 1000, 0.05)
	inactive := sampleMarket(t, "inactive-market", 5000, 1000, 0.05)
	inactive.Active = false
	closed := sampleMarket(t, "closed-market", 5000, 1000, 0.05)
	closed.Closed = true
	noOrders := sampleMarket(t, "no-orders-market", 5000, 1000, 0.05)
	noOrders.AcceptingOrders = false
	noBook := sampleMarket(t, "no-book-market", 5000, 1000, 0.05)
	noBook.EnableOrderBook = false

	result := s.filterMarkets([]listedMarket{active, inactive, closed, noOrders, noBook})
	if len(result) != 1 || result[0].Slug != "active-market" {
		t.Errorf("filterMarkets() = %+v, want only active-market", result)
	}
}

func TestFilterMarketsAppliesLiquidityVolumeAndSpreadThresholds(t *testing.T) {
	t.Parallel()
	s := &Scanner{
		cfg: config.DiscoveryConfig{
			MaxEndDateDays: 30,
			MinLiquidity:   1000,
			MinVolume24h:   500,
			MinSpread:      0.03,
		},
		logger: testLogger(),
	}

	passes := sampleMarket(t, "passes", 2000, 1000, 0.05)
	thinLiquidity := sampleMarket(t, "thin-liquidity", 100, 1000, 0.05)
	lowVolume := sampleMarket(t, "low-volume", 2000, 10, 0.05)
	tightSpread := sampleMarket(t, "tight-spread", 2000, 1000, 0.01)

	result := s.filterMarkets([]listedMarket{passes, thinLiquidity, lowVolume, tightSpread})
	if len(result) != 1 || result[0].Slug != "passes" {
		t.Errorf("filterMarkets() = %+v, want only passes", result)
	}
}

func TestFilterMarketsExcludesBySlugAndKeyword(t *testing.T) {
	t.Parallel()
	s := &Scanner{
		cfg: config.DiscoveryConfig{
			MaxEndDateDays:  30,
			ExcludeSlugs:    []string{"banned-market"},
			ExcludeKeywords: []string{"election"},
		},
		logger: testLogger(),
	}

	kept := sampleMarket(t, "kept-market", 5000, 1000, 0.05)
	bannedSlug := sampleMarket(t, "banned-market", 5000, 1000, 0.05)
	bannedKeyword := sampleMarket(t, "president-election-2028", 5000, 1000, 0.05)

	result := s.filterMarkets([]listedMarket{kept, bannedSlug, bannedKeyword})
	if len(result) != 1 || result[0].Slug != "kept-market" {
		t.Errorf("filterMarkets() = %+v, want only kept-market", result)
	}
}

func TestFilterMarketsIncludeListRestrictsToMatches(t *testing.T) {
	t.Parallel()
	s := &Scanner{
		cfg: config.DiscoveryConfig{
			MaxEndDateDays: 30,
			IncludeSlugs:   []string{"allowed-market"},
		},
		logger: testLogger(),
	}

	allowed := sampleMarket(t, "allowed-market", 5000, 1000, 0.05)
	notListed := sampleMarket(t, "unlisted-market", 5000, 1000, 0.05)

	result := s.filterMarkets([]listedMarket{allowed, notListed})
	if len(result) != 1 || result[0].Slug != "allowed-market" {
		t.Errorf("filterMarkets() = %+v, want only allowed-market", result)
	}
}

func TestFilterMarketsDropsMarketsWithoutTokenIDs(t *testing.T) {
	t.Parallel()
	s := &Scanner{cfg: config.DiscoveryConfig{MaxEndDateDays: 30}, logger: testLogger()}

	noTokens := sampleMarket(t, "no-tokens", 5000, 1000, 0.05)
	noTokens.ClobTokenIds = ""

	result := s.filterMarkets([]listedMarket{noTokens})
	if len(result) != 0 {
		t.Errorf("filterMarkets() = %+v, want none (no clobTokenIds)", result)
	}
}

func TestRankMarketsOrdersByOpportunityScoreDescending(t *testing.T) {
	t.Parallel()
	s := &Scanner{logger: testLogger()}

	low := sampleMarket(t, "low-score", 1000, 100, 0.02)
	high := sampleMarket(t, "high-score", 10000, 10000, 0.10)

	ranked := s.rankMarkets([]listedMarket{low, high})
	if len(ranked) != 2 {
		t.Fatalf("rankMarkets() returned %d candidates, want 2", len(ranked))
	}
	if ranked[0].Market.Slug != "high-score" {
		t.Errorf("ranked[0].Market.Slug = %v, want high-score", ranked[0].Market.Slug)
	}
	if ranked[0].Score <= ranked[1].Score {
		t.Errorf("ranked scores = %v, %v, want descending", ranked[0].Score, ranked[1].Score)
	}
}

func TestToMarketInfoSplitsYesAndNoTokenIDs(t *testing.T) {
	t.Parallel()
	m := sampleMarket(t, "split-market", 5000, 1000, 0.05)

	info := toMarketInfo(m)
	if info.YesTokenID != "yes-split-market" {
		t.Errorf("YesTokenID = %v, want yes-split-market", info.YesTokenID)
	}
	if info.NoTokenID != "no-split-market" {
		t.Errorf("NoTokenID = %v, want no-split-market", info.NoTokenID)
	}
	if info.ConditionID != "0xsplit-market" {
		t.Errorf("ConditionID = %v, want 0xsplit-market", info.ConditionID)
	}
	if info.Liquidity != 5000 {
		t.Errorf("Liquidity = %v, want 5000", info.Liquidity)
	}
}

func TestToMarketInfoHandlesMissingTokenIDsGracefully(t *testing.T) {
	t.Parallel()
	m := sampleMarket(t, "no-tokens", 5000, 1000, 0.05)
	m.ClobTokenIds = ""

	info := toMarketInfo(m)
	if info.YesTokenID != "" || info.NoTokenID != "" {
		t.Errorf("YesTokenID/NoTokenID = %q/%q, want empty when clobTokenIds is absent", info.YesTokenID, info.NoTokenID)
	}
}

func TestToLowerSetAndToLowerSliceTrimAndLowercase(t *testing.T) {
	t.Parallel()
	set := toLowerSet([]string{" Foo ", "BAR", ""})
	if !set["foo"] || !set["bar"] || len(set) != 2 {
		t.Errorf("toLowerSet() = %v, want {foo, bar}", set)
	}

	slice := toLowerSlice([]string{" Foo ", "BAR", ""})
	if len(slice) != 2 || slice[0] != "foo" || slice[1] != "bar" {
		t.Errorf("toLowerSlice() = %v, want [foo bar]", slice)
	}
}
