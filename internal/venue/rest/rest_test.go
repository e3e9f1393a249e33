package rest

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"hftengine/internal/venue"
	"hftengine/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTokenBucketWaitConsumesAndRefills(t *testing.T) {
	t.Parallel()
	tb := NewTokenBucket(1, 1000) // 1 token burst, fast refill

	ctx := context.Background()
	if err := tb.Wait(ctx); err != nil {
		t.Fatalf("first Wait() err = %v", err)
	}
	if err := tb.Wait(ctx); err != nil {
		t.Fatalf("second Wait() (after refill) err = %v", err)
	}
}

func TestTokenBucketWaitRespectsCancellation(t *testing.T) {
	t.Parallel()
	tb := NewTokenBucket(1, 0.001) // exhausted burst, effectively no refill within the test window
	_ = tb.Wait(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := tb.Wait(ctx); err == nil {
		t.Errorf("Wait() with exhausted bucket and short deadline, want error")
	}
}

func TestBearerAuthTokenIsCachedUntilNearExpiry(t *testing.T) {
	t.Parallel()
	a := NewBearerAuth([]byte("secret"), "hftengine", "key-1")

	tok1, err := a.Token()
	if err != nil {
		t.Fatalf("Token() err = %v", err)
	}
	tok2, err := a.Token()
	if err != nil {
		t.Fatalf("Token() err = %v", err)
	}
	if tok1 != tok2 {
		t.Errorf("Token() minted a new token before expiry, want the cached one reused")
	}
}

func TestToAmountsBuyScalesCostAndTokens(t *testing.T) {
	t.Parallel()
	c := &Client{cfg: Config{AmountDecimals: 6}}

	maker, taker := c.toAmounts(types.BUY, 0.50, 100)
	if maker != "50000000" {
		t.Errorf("maker = %s, want 50000000 (100 * 0.50 USDC at 6 decimals)", maker)
	}
	if taker != "100000000" {
		t.Errorf("taker = %s, want 100000000 (100 tokens at 6 decimals)", taker)
	}
}

func TestToAmountsSellScalesTokensAndRevenue(t *testing.T) {
	t.Parallel()
	c := &Client{cfg: Config{AmountDecimals: 6}}

	maker, taker := c.toAmounts(types.SELL, 0.50, 100)
	if maker != "100000000" {
		t.Errorf("maker = %s, want 100000000 (100 tokens)", maker)
	}
	if taker != "50000000" {
		t.Errorf("taker = %s, want 50000000 (100 * 0.50 USDC)", taker)
	}
}

func TestGetOrderBookParsesWireLevels(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/book" {
			t.Errorf("path = %s, want /book", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(wireBook{
			AssetID: "tok-1",
			Bids:    []wireLevel{{Price: "0.45", Size: "100"}},
			Asks:    []wireLevel{{Price: "0.46", Size: "80"}},
		})
	}))
	defer srv.Close()

	c := NewClient(DefaultConfig(srv.URL), nil, testLogger())
	book, err := c.GetOrderBook(context.Background(), "tok-1")
	if err != nil {
		t.Fatalf("GetOrderBook() err = %v", err)
	}
	if len(book.Bids) != 1 || book.Bids[0].Price != 0.45 || book.Bids[0].Size != 100 {
		t.Errorf("Bids = %+v, want one level at 0.45/100", book.Bids)
	}
	if len(book.Asks) != 1 || book.Asks[0].Price != 0.46 {
		t.Errorf("Asks = %+v, want one level at 0.46", book.Asks)
	}
}

func TestPlaceDryRunReturnsSyntheticSuccessWithoutHTTPCall(t *testing.T) {
	t.Parallel()
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer srv.Close()

	cfg := DefaultConfig(srv.URL)
	cfg.DryRun = true
	c := NewClient(cfg, nil, testLogger())

	req := venue.PlaceRequest{TokenID: "tok-1", Side: types.BUY, Kind: types.OrderTypeGTC, Price: 0.5, Size: 10, ClientID: "o1"}
	result, err := c.Place(context.Background(), req)
	if err != nil {
		t.Fatalf("Place() err = %v", err)
	}
	if !result.Success || result.OrderID != "dry-run-o1" {
		t.Errorf("Place() = %+v, want synthetic dry-run success", result)
	}
	if calls != 0 {
		t.Errorf("HTTP calls = %d, want 0 in dry-run mode", calls)
	}
}
