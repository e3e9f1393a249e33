package rest

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"hftengine/internal/venue"
	"hftengine/pkg/types"
)

// wireOrderRequest is the venue's /orders POST payload shape.
type wireOrderRequest struct {
	TokenID     string `json:"token_id"`
	Side        string `json:"side"`
	OrderType   string `json:"order_type"`
	MakerAmount string `json:"maker_amount"` // decimal string, scaled to cfg.AmountDecimals
	TakerAmount string `json:"taker_amount"`
	ClientID    string `json:"client_id"`
}

type wireOrderResponse struct {
	Success  bool   `json:"success"`
	OrderID  string `json:"order_id"`
	ErrorMsg string `json:"error_msg"`
}

type wireCancelResponse struct {
	Success bool `json:"success"`
}

type wirePosition struct {
	Asset      string `json:"asset"`
	TokenID    string `json:"token_id"`
	Side       string `json:"side"`
	Size       string `json:"size"`
	EntryPrice string `json:"entry_price"`
}

// parseDecimalString parses a venue wire decimal string into a float64,
// routing through decimal.Decimal so scaling stays exact up to the
// configured precision rather than accumulating binary-float rounding.
func parseDecimalString(s string) (float64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse decimal %q: %w", s, err)
	}
	f, _ := d.Float64()
	return f, nil
}

// toAmounts converts a human-readable price/size into maker/taker amount
// strings scaled to cfg.AmountDecimals, mirroring how a CLOB-style venue
// expects on-wire integer amounts rather than floating-point price/size.
func (c *Client) toAmounts(side types.Side, price, size float64) (maker, taker string) {
	p := decimal.NewFromFloat(price)
	s := decimal.NewFromFloat(size)
	scale := decimal.NewFromInt(10).Pow(decimal.NewFromInt32(c.cfg.AmountDecimals))

	if side == types.BUY {
		cost := s.Mul(p).Mul(scale).Truncate(0)
		tokens := s.Mul(scale).Truncate(0)
		return cost.String(), tokens.String()
	}
	tokens := s.Mul(scale).Truncate(0)
	revenue := s.Mul(p).Mul(scale).Truncate(0)
	return tokens.String(), revenue.String()
}

// Place submits one order, satisfying venue.OrderRouter.
func (c *Client) Place(ctx context.Context, req venue.PlaceRequest) (venue.PlaceResult, error) {
	if c.cfg.DryRun {
		c.logger.Info("DRY-RUN: would place order", "token_id", req.TokenID, "side", req.Side, "price", req.Price, "size", req.Size)
		return venue.PlaceResult{Success: true, OrderID: "dry-run-" + req.ClientID}, nil
	}
	if err := c.rl.Order.Wait(ctx); err != nil {
		return venue.PlaceResult{}, err
	}

	maker, taker := c.toAmounts(req.Side, req.Price, req.Size)
	payload := wireOrderRequest{
		TokenID:     req.TokenID,
		Side:        string(req.Side),
		OrderType:   string(req.Kind),
		MakerAmount: maker,
		TakerAmount: taker,
		ClientID:    req.ClientID,
	}

	httpReq, err := c.authedRequest(ctx)
	if err != nil {
		return venue.PlaceResult{}, err
	}

	var wire wireOrderResponse
	resp, err := c.do(func() (*resty.Response, error) {
		return httpReq.SetBody(payload).SetResult(&wire).Post("/orders")
	})
	if err != nil {
		return venue.PlaceResult{}, fmt.Errorf("place order: %w", err)
	}
	if err := checkStatus(resp); err != nil {
		return venue.PlaceResult{}, fmt.Errorf("place order: %w", err)
	}

	return venue.PlaceResult{Success: wire.Success, OrderID: wire.OrderID, ErrorMsg: wire.ErrorMsg}, nil
}

// Cancel cancels a single order by ID, satisfying venue.OrderRouter.
func (c *Client) Cancel(ctx context.Context, orderID string) (bool, error) {
	if c.cfg.DryRun {
		c.logger.Info("DRY-RUN: would cancel order", "order_id", orderID)
		return true, nil
	}
	if err := c.rl.Cancel.Wait(ctx); err != nil {
		return false, err
	}

	httpReq, err := c.authedRequest(ctx)
	if err != nil {
		return false, err
	}

	var wire wireCancelResponse
	resp, err := c.do(func() (*resty.Response, error) {
		return httpReq.SetBody(map[string]string{"order_id": orderID}).SetResult(&wire).Delete("/orders")
	})
	if err != nil {
		return false, fmt.Errorf("cancel order: %w", err)
	}
	if err := checkStatus(resp); err != nil {
		return false, fmt.Errorf("cancel order: %w", err)
	}
	return wire.Success, nil
}

// CancelAll cancels every open order for one asset, satisfying
// venue.OrderRouter. An empty asset cancels across the whole account.
func (c *Client) CancelAll(ctx context.Context, asset string) (bool, error) {
	if c.cfg.DryRun {
		c.logger.Info("DRY-RUN: would cancel all orders", "asset", asset)
		return true, nil
	}
	if err := c.rl.Cancel.Wait(ctx); err != nil {
		return false, err
	}

	httpReq, err := c.authedRequest(ctx)
	if err != nil {
		return false, err
	}

	path := "/cancel-all"
	body := map[string]string{}
	if asset != "" {
		path = "/cancel-market-orders"
		body["market"] = asset
	}

	var wire wireCancelResponse
	resp, err := c.do(func() (*resty.Response, error) {
		return httpReq.SetBody(body).SetResult(&wire).Delete(path)
	})
	if err != nil {
		return false, fmt.Errorf("cancel all: %w", err)
	}
	if err := checkStatus(resp); err != nil {
		return false, fmt.Errorf("cancel all: %w", err)
	}
	return wire.Success, nil
}

// GetPositions fetches the venue's view of open positions for
// reconciliation, satisfying venue.OrderRouter.
func (c *Client) GetPositions(ctx context.Context) ([]types.ExternalPosition, error) {
	httpReq, err := c.authedRequest(ctx)
	if err != nil {
		return nil, err
	}

	var wire []wirePosition
	resp, err := c.do(func() (*resty.Response, error) {
		return httpReq.SetResult(&wire).Get("/positions")
	})
	if err != nil {
		return nil, fmt.Errorf("get positions: %w", err)
	}
	if err := checkStatus(resp); err != nil {
		return nil, fmt.Errorf("get positions: %w", err)
	}

	out := make([]types.ExternalPosition, 0, len(wire))
	for _, p := range wire {
		size, err := parseDecimalString(p.Size)
		if err != nil {
			continue
		}
		entry, err := parseDecimalString(p.EntryPrice)
		if err != nil {
			continue
		}
		side := types.PositionLong
		if p.Side == "SHORT" {
			side = types.PositionShort
		}
		out = append(out, types.ExternalPosition{
			Asset:      p.Asset,
			TokenID:    p.TokenID,
			Side:       side,
			Size:       size,
			EntryPrice: entry,
		})
	}
	return out, nil
}
