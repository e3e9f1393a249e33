// Package wsfeed implements a venue-neutral streaming market-data feed: a
// single reconnecting WebSocket connection that multiplexes order-book
// updates (caching the latest snapshot per asset) and reference-price
// ticks onto typed channels. It generalizes the teacher's dual
// market/user WS channel into one feed, since the reference-exchange
// price stream and the prediction-market order-book stream share the
// same reconnect/dispatch shape.
package wsfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"hftengine/internal/venue"
	"hftengine/pkg/types"
)

const (
	readTimeout      = 90 * time.Second
	maxReconnectWait = 30 * time.Second
	writeTimeout     = 10 * time.Second
	priceBufferSize  = 256
)

// wireEnvelope lets dispatchMessage peek at the event type before
// unmarshalling into the concrete payload.
type wireEnvelope struct {
	EventType string `json:"event_type"`
}

type wireBookEvent struct {
	AssetID string      `json:"asset_id"`
	Bids    []wireLevel `json:"bids"`
	Asks    []wireLevel `json:"asks"`
}

type wireLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

type wirePriceEvent struct {
	Asset       string  `json:"asset"`
	Price       float64 `json:"price"`
	Change10s   float64 `json:"change_10s"`
	Change30s   float64 `json:"change_30s"`
	TimestampMs int64   `json:"timestamp_ms"`
}

type wireSubscribeMsg struct {
	Operation string   `json:"operation"`
	AssetIDs  []string `json:"asset_ids"`
}

// Feed manages one reconnecting WebSocket connection, caching the latest
// order-book snapshot per asset and forwarding reference-price ticks on a
// channel. Feed implements both venue.ReferenceFeed and
// venue.MarketDataProvider, letting a deployment use the same live
// connection for both without a second subscription.
type Feed struct {
	url    string
	logger *slog.Logger

	connMu sync.Mutex
	conn   *websocket.Conn

	subscribedMu sync.RWMutex
	subscribed   map[string]bool

	bookMu sync.RWMutex
	books  map[string]types.OrderBookSnapshot

	priceCh chan venue.PriceUpdate

	started sync.Once
}

// NewFeed creates a Feed pointed at url. The connection is not opened
// until Subscribe (or Run) is called.
func NewFeed(url string, logger *slog.Logger) *Feed {
	return &Feed{
		url:        url,
		logger:     logger.With("component", "wsfeed"),
		subscribed: make(map[string]bool),
		books:      make(map[string]types.OrderBookSnapshot),
		priceCh:    make(chan venue.PriceUpdate, priceBufferSize),
	}
}

// Subscribe adds assets to the live subscription and returns the shared
// price-update channel, satisfying venue.ReferenceFeed. The underlying
// connection is started on first call and kept alive for the lifetime of
// ctx; repeated calls only add to the subscription set.
func (f *Feed) Subscribe(ctx context.Context, assets []string) (<-chan venue.PriceUpdate, error) {
	f.subscribedMu.Lock()
	for _, a := range assets {
		f.subscribed[a] = true
	}
	f.subscribedMu.Unlock()

	f.started.Do(func() {
		go f.Run(ctx)
	})

	if conn := f.currentConn(); conn != nil {
		_ = f.sendSubscribe(assets)
	}
	return f.priceCh, nil
}

// GetOrderBook returns the most recently cached snapshot for tokenID,
// satisfying venue.MarketDataProvider. It never blocks on the network:
// a cold cache (no book event received yet) is reported as an error so
// the tick engine treats that market as "no snapshot this tick".
func (f *Feed) GetOrderBook(_ context.Context, tokenID string) (types.OrderBookSnapshot, error) {
	f.bookMu.RLock()
	defer f.bookMu.RUnlock()
	book, ok := f.books[tokenID]
	if !ok {
		return types.OrderBookSnapshot{}, fmt.Errorf("wsfeed: no cached book for token %s", tokenID)
	}
	return book, nil
}

// GetMarket is unsupported by a streaming feed; market metadata comes
// from the REST adapter instead.
func (f *Feed) GetMarket(context.Context, string) (types.MarketInfo, error) {
	return types.MarketInfo{}, fmt.Errorf("wsfeed: market metadata lookup not supported, use the REST provider")
}

// Run connects and maintains the WebSocket connection with exponential
// backoff, reconnecting until ctx is cancelled. Safe to call directly if
// a caller wants to start the connection before the first Subscribe.
func (f *Feed) Run(ctx context.Context) {
	backoff := time.Second
	for {
		err := f.connectAndRead(ctx)
		if ctx.Err() != nil {
			close(f.priceCh)
			return
		}

		f.logger.Warn("websocket disconnected, reconnecting", "err", err, "backoff", backoff)
		select {
		case <-ctx.Done():
			close(f.priceCh)
			return
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxReconnectWait {
			backoff = maxReconnectWait
		}
	}
}

func (f *Feed) currentConn() *websocket.Conn {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	return f.conn
}

func (f *Feed) connectAndRead(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	f.connMu.Lock()
	f.conn = conn
	f.connMu.Unlock()
	defer func() {
		f.connMu.Lock()
		conn.Close()
		f.conn = nil
		f.connMu.Unlock()
	}()

	f.subscribedMu.RLock()
	ids := make([]string, 0, len(f.subscribed))
	for id := range f.subscribed {
		ids = append(ids, id)
	}
	f.subscribedMu.RUnlock()
	if err := f.sendSubscribe(ids); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	f.logger.Info("websocket connected")

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		f.dispatchMessage(msg)
	}
}

func (f *Feed) sendSubscribe(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	conn := f.currentConn()
	if conn == nil {
		return nil
	}
	f.connMu.Lock()
	defer f.connMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(wireSubscribeMsg{Operation: "subscribe", AssetIDs: ids})
}

func (f *Feed) dispatchMessage(data []byte) {
	var envelope wireEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		f.logger.Debug("ignoring non-json ws message", "data", string(data))
		return
	}

	switch envelope.EventType {
	case "book":
		var evt wireBookEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			f.logger.Error("unmarshal book event", "err", err)
			return
		}
		f.cacheBook(evt)

	case "price":
		var evt wirePriceEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			f.logger.Error("unmarshal price event", "err", err)
			return
		}
		update := venue.PriceUpdate{
			Asset:       evt.Asset,
			Price:       evt.Price,
			Change10s:   evt.Change10s,
			Change30s:   evt.Change30s,
			TimestampMs: evt.TimestampMs,
		}
		select {
		case f.priceCh <- update:
		default:
			f.logger.Warn("price channel full, dropping update", "asset", evt.Asset)
		}
	}
}

func (f *Feed) cacheBook(evt wireBookEvent) {
	f.bookMu.Lock()
	defer f.bookMu.Unlock()
	f.books[evt.AssetID] = types.OrderBookSnapshot{
		AssetID:   evt.AssetID,
		Bids:      toPriceLevels(evt.Bids),
		Asks:      toPriceLevels(evt.Asks),
		Timestamp: time.Now(),
	}
}

func toPriceLevels(levels []wireLevel) []types.PriceLevel {
	out := make([]types.PriceLevel, 0, len(levels))
	for _, l := range levels {
		price, err := decimal.NewFromString(l.Price)
		if err != nil {
			continue
		}
		size, err := decimal.NewFromString(l.Size)
		if err != nil {
			continue
		}
		pf, _ := price.Float64()
		sf, _ := size.Float64()
		out = append(out, types.PriceLevel{Price: pf, Size: sf})
	}
	return out
}
