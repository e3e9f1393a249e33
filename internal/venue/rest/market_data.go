package rest

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"hftengine/pkg/types"
)

// wireLevel is one bid/ask level as the venue's JSON wire format represents it.
type wireLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// wireBook is the /book response shape.
type wireBook struct {
	AssetID string      `json:"asset_id"`
	Bids    []wireLevel `json:"bids"`
	Asks    []wireLevel `json:"asks"`
}

// wireMarket is the /markets/{id} response shape.
type wireMarket struct {
	ID              string  `json:"id"`
	ConditionID     string  `json:"condition_id"`
	Slug            string  `json:"slug"`
	Question        string  `json:"question"`
	YesTokenID      string  `json:"yes_token_id"`
	NoTokenID       string  `json:"no_token_id"`
	TickSize        float64 `json:"tick_size"`
	MinOrderSize    float64 `json:"min_order_size"`
	Active          bool    `json:"active"`
	Closed          bool    `json:"closed"`
	AcceptingOrders bool    `json:"accepting_orders"`
	EndDateISO      string  `json:"end_date_iso"`
	Liquidity       float64 `json:"liquidity"`
	Volume24h       float64 `json:"volume_24h"`
	BestBid         float64 `json:"best_bid"`
	BestAsk         float64 `json:"best_ask"`
}

// GetOrderBook fetches the L2 book for one token, satisfying
// venue.MarketDataProvider.
func (c *Client) GetOrderBook(ctx context.Context, tokenID string) (types.OrderBookSnapshot, error) {
	if err := c.rl.Book.Wait(ctx); err != nil {
		return types.OrderBookSnapshot{}, err
	}

	req, err := c.authedRequest(ctx)
	if err != nil {
		return types.OrderBookSnapshot{}, err
	}

	var wire wireBook
	resp, err := c.do(func() (*resty.Response, error) {
		return req.SetQueryParam("token_id", tokenID).SetResult(&wire).Get("/book")
	})
	if err != nil {
		return types.OrderBookSnapshot{}, fmt.Errorf("get book: %w", err)
	}
	if err := checkStatus(resp); err != nil {
		return types.OrderBookSnapshot{}, fmt.Errorf("get book: %w", err)
	}

	return toOrderBookSnapshot(wire), nil
}

// GetMarket fetches a market's metadata, satisfying venue.MarketDataProvider.
func (c *Client) GetMarket(ctx context.Context, conditionID string) (types.MarketInfo, error) {
	req, err := c.authedRequest(ctx)
	if err != nil {
		return types.MarketInfo{}, err
	}

	var wire wireMarket
	resp, err := c.do(func() (*resty.Response, error) {
		return req.SetResult(&wire).Get("/markets/" + conditionID)
	})
	if err != nil {
		return types.MarketInfo{}, fmt.Errorf("get market: %w", err)
	}
	if err := checkStatus(resp); err != nil {
		return types.MarketInfo{}, fmt.Errorf("get market: %w", err)
	}

	return toMarketInfo(wire), nil
}

func toOrderBookSnapshot(w wireBook) types.OrderBookSnapshot {
	return types.OrderBookSnapshot{
		AssetID:   w.AssetID,
		Bids:      toPriceLevels(w.Bids),
		Asks:      toPriceLevels(w.Asks),
		Timestamp: time.Now(),
	}
}

func toPriceLevels(levels []wireLevel) []types.PriceLevel {
	out := make([]types.PriceLevel, 0, len(levels))
	for _, l := range levels {
		price, err := parseDecimalString(l.Price)
		if err != nil {
			continue
		}
		size, err := parseDecimalString(l.Size)
		if err != nil {
			continue
		}
		out = append(out, types.PriceLevel{Price: price, Size: size})
	}
	return out
}

func toMarketInfo(w wireMarket) types.MarketInfo {
	end, _ := time.Parse(time.RFC3339, w.EndDateISO)
	return types.MarketInfo{
		ID:              w.ID,
		ConditionID:     w.ConditionID,
		Slug:            w.Slug,
		Question:        w.Question,
		YesTokenID:      w.YesTokenID,
		NoTokenID:       w.NoTokenID,
		TickSize:        w.TickSize,
		MinOrderSize:    w.MinOrderSize,
		Active:          w.Active,
		Closed:          w.Closed,
		AcceptingOrders: w.AcceptingOrders,
		EndDate:         end,
		Liquidity:       w.Liquidity,
		Volume24h:       w.Volume24h,
		BestBid:         w.BestBid,
		BestAsk:         w.BestAsk,
		Spread:          w.BestAsk - w.BestBid,
	}
}
