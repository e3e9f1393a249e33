// Package discovery polls a market-listing API for tradeable markets and
// ranks them by opportunity quality, so the engine can be pointed at a
// venue's whole catalog instead of a hand-maintained list of condition IDs.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"hftengine/internal/config"
	"hftengine/pkg/types"
)

// listedMarket is the JSON shape returned by a Gamma-style market listing
// endpoint.
type listedMarket struct {
	ID                    string  `json:"id"`
	Question              string  `json:"question"`
	ConditionID           string  `json:"conditionId"`
	Slug                  string  `json:"slug"`
	Active                bool    `json:"active"`
	Closed                bool    `json:"closed"`
	AcceptingOrders       bool    `json:"acceptingOrders"`
	EnableOrderBook       bool    `json:"enableOrderBook"`
	EndDate               string  `json:"endDate"`
	Liquidity             string  `json:"liquidity"`
	Volume24hr            float64 `json:"volume24hr"`
	ClobTokenIds          string  `json:"clobTokenIds"`
	Spread                float64 `json:"spread"`
	BestBid               float64 `json:"bestBid"`
	BestAsk               float64 `json:"bestAsk"`
	LastTradePrice        float64 `json:"lastTradePrice"`
	OrderPriceMinTickSize float64 `json:"orderPriceMinTickSize"`
	OrderMinSize          float64 `json:"orderMinSize"`
}

// Candidate is one discovered market ranked by opportunity score.
type Candidate struct {
	Market types.MarketInfo
	Score  float64
}

// Scanner periodically polls a market-listing endpoint for wide-spread,
// liquid markets. Ranks by:
//
//	score = spread * sqrt(volume24h) * min(liquidity/10000, 1)
type Scanner struct {
	httpClient *resty.Client
	cfg        config.DiscoveryConfig
	logger     *slog.Logger
	resultCh   chan []Candidate
}

// NewScanner builds a Scanner from the discovery config.
func NewScanner(cfg config.DiscoveryConfig, logger *slog.Logger) *Scanner {
	client := resty.New().
		SetBaseURL(cfg.GammaBaseURL).
		SetTimeout(15 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(time.Second)

	return &Scanner{
		httpClient: client,
		cfg:        cfg,
		logger:     logger.With("component", "discovery"),
		resultCh:   make(chan []Candidate, 1),
	}
}

// Results returns the channel callers read ranked candidates from.
func (s *Scanner) Results() <-chan []Candidate {
	return s.resultCh
}

// Run polls on cfg.PollInterval until ctx is cancelled, scanning once
// immediately on entry.
func (s *Scanner) Run(ctx context.Context) {
	s.scan(ctx)

	interval := s.cfg.PollInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.scan(ctx)
		}
	}
}

func (s *Scanner) scan(ctx context.Context) {
	markets, err := s.fetchMarkets(ctx)
	if err != nil {
		s.logger.Error("scan failed", "error", err)
		return
	}

	filtered := s.filterMarkets(markets)
	ranked := s.rankMarkets(filtered)

	if s.cfg.MaxMarkets > 0 && len(ranked) > s.cfg.MaxMarkets {
		ranked = ranked[:s.cfg.MaxMarkets]
	}

	s.logger.Info("scan complete", "total", len(markets), "filtered", len(filtered), "selected", len(ranked))

	select {
	case s.resultCh <- ranked:
	default:
		select {
		case <-s.resultCh:
		default:
		}
		s.resultCh <- ranked
	}
}

func (s *Scanner) fetchMarkets(ctx context.Context) ([]listedMarket, error) {
	var all []listedMarket
	const limit = 100
	offset := 0

	for {
		var page []listedMarket
		resp, err := s.httpClient.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"limit":  strconv.Itoa(limit),
				"offset": strconv.Itoa(offset),
				"active": "true",
				"closed": "false",
			}).
			SetResult(&page).
			Get("/markets")
		if err != nil {
			return nil, fmt.Errorf("fetch markets page %d: %w", offset, err)
		}
		if resp.StatusCode() != 200 {
			return nil, fmt.Errorf("fetch markets: status %d", resp.StatusCode())
		}

		all = append(all, page...)
		if len(page) < limit {
			break
		}
		offset += limit
	}

	return all, nil
}

// filterMarkets eliminates inactive/closed/non-orderbook markets, applies
// include/exclude slug and keyword lists, and enforces the liquidity,
// volume, spread, and end-date thresholds.
func (s *Scanner) filterMarkets(markets []listedMarket) []listedMarket {
	excluded := toLowerSet(s.cfg.ExcludeSlugs)
	includeConditionIDs := toLowerSet(s.cfg.IncludeConditionIDs)
	includeSlugs := toLowerSet(s.cfg.IncludeSlugs)
	includeKeywords := toLowerSlice(s.cfg.IncludeKeywords)
	excludeKeywords := toLowerSlice(s.cfg.ExcludeKeywords)
	hasIncludeFilter := len(includeConditionIDs) > 0 || len(includeSlugs) > 0 || len(includeKeywords) > 0

	now := time.Now()
	maxEnd := now.AddDate(0, 0, s.cfg.MaxEndDateDays)

	var result []listedMarket
	for _, m := range markets {
		if !m.Active || m.Closed || !m.AcceptingOrders || !m.EnableOrderBook {
			continue
		}

		slugLower := strings.ToLower(m.Slug)
		questionLower := strings.ToLower(m.Question)
		conditionLower := strings.ToLower(m.ConditionID)

		if hasIncludeFilter {
			matched := includeConditionIDs[conditionLower] || includeSlugs[slugLower]
			if !matched {
				for _, kw := range includeKeywords {
					if strings.Contains(slugLower, kw) || strings.Contains(questionLower, kw) {
						matched = true
						break
					}
				}
			}
			if !matched {
				continue
			}
		}

		if excluded[slugLower] {
			continue
		}
		excludedByKeyword := false
		for _, kw := range excludeKeywords {
			if strings.Contains(slugLower, kw) || strings.Contains(questionLower, kw) {
				excludedByKeyword = true
				break
			}
		}
		if excludedByKeyword {
			continue
		}

		liquidity, _ := strconv.ParseFloat(m.Liquidity, 64)
		if liquidity < s.cfg.MinLiquidity {
			continue
		}
		if m.Volume24hr < s.cfg.MinVolume24h {
			continue
		}
		if m.Spread < s.cfg.MinSpread {
			continue
		}

		if m.EndDate != "" {
			endDate, err := time.Parse(time.RFC3339, m.EndDate)
			if err != nil {
				continue
			}
			if endDate.Before(now) || endDate.After(maxEnd) {
				continue
			}
		}

		if m.ClobTokenIds == "" {
			continue
		}

		result = append(result, m)
	}

	return result
}

// rankMarkets scores and sorts markets by opportunity quality: spread
// weighted by volume and a liquidity factor that saturates at $10k.
func (s *Scanner) rankMarkets(markets []listedMarket) []Candidate {
	type scored struct {
		market listedMarket
		score  float64
	}

	scoredMarkets := make([]scored, 0, len(markets))
	for _, m := range markets {
		liquidity, _ := strconv.ParseFloat(m.Liquidity, 64)
		liquidityFactor := math.Min(liquidity/10000.0, 1.0)
		score := m.Spread * math.Sqrt(m.Volume24hr) * liquidityFactor
		scoredMarkets = append(scoredMarkets, scored{market: m, score: score})
	}

	sort.Slice(scoredMarkets, func(i, j int) bool {
		return scoredMarkets[i].score > scoredMarkets[j].score
	})

	result := make([]Candidate, len(scoredMarkets))
	for i, sm := range scoredMarkets {
		result[i] = Candidate{Market: toMarketInfo(sm.market), Score: sm.score}
	}
	return result
}

func toMarketInfo(m listedMarket) types.MarketInfo {
	liquidity, _ := strconv.ParseFloat(m.Liquidity, 64)

	var tokenIDs []string
	if m.ClobTokenIds != "" {
		_ = json.Unmarshal([]byte(m.ClobTokenIds), &tokenIDs)
	}
	var yesToken, noToken string
	if len(tokenIDs) >= 2 {
		yesToken, noToken = tokenIDs[0], tokenIDs[1]
	}

	endDate, _ := time.Parse(time.RFC3339, m.EndDate)

	return types.MarketInfo{
		ID:              m.ID,
		ConditionID:     m.ConditionID,
		Slug:            m.Slug,
		Question:        m.Question,
		YesTokenID:      yesToken,
		NoTokenID:       noToken,
		TickSize:        m.OrderPriceMinTickSize,
		MinOrderSize:    m.OrderMinSize,
		Active:          m.Active,
		Closed:          m.Closed,
		AcceptingOrders: m.AcceptingOrders,
		EndDate:         endDate,
		Liquidity:       liquidity,
		Volume24h:       m.Volume24hr,
		BestBid:         m.BestBid,
		BestAsk:         m.BestAsk,
		Spread:          m.Spread,
		LastTradePrice:  m.LastTradePrice,
	}
}

func toLowerSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, s := range items {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			set[s] = true
		}
	}
	return set
}

func toLowerSlice(items []string) []string {
	out := make([]string, 0, len(items))
	for _, s := range items {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
