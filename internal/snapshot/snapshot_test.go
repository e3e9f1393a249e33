package snapshot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"hftengine/internal/history"
	"hftengine/pkg/types"
)

type fakeProvider struct {
	books map[string]types.OrderBookSnapshot
	errs  map[string]error
}

func (f fakeProvider) GetOrderBook(ctx context.Context, tokenID string) (types.OrderBookSnapshot, error) {
	if err, ok := f.errs[tokenID]; ok {
		return types.OrderBookSnapshot{}, err
	}
	return f.books[tokenID], nil
}

func (f fakeProvider) GetMarket(ctx context.Context, conditionID string) (types.MarketInfo, error) {
	return types.MarketInfo{}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuildSkipsOnFetchError(t *testing.T) {
	t.Parallel()

	provider := fakeProvider{errs: map[string]error{"yes": errors.New("timeout")}}
	b := New(provider, testLogger())
	market := types.MarketInfo{YesTokenID: "yes", NoTokenID: "no"}

	_, ok := b.Build(context.Background(), market, nil, 0, 0)
	if ok {
		t.Errorf("Build() ok = true, want false on fetch error")
	}
}

func TestBuildSkipsOnEmptyBook(t *testing.T) {
	t.Parallel()

	provider := fakeProvider{books: map[string]types.OrderBookSnapshot{
		"yes": {},
		"no":  {Bids: []types.PriceLevel{{Price: 0.5, Size: 10}}},
	}}
	b := New(provider, testLogger())
	market := types.MarketInfo{YesTokenID: "yes", NoTokenID: "no"}

	_, ok := b.Build(context.Background(), market, nil, 0, 0)
	if ok {
		t.Errorf("Build() ok = true, want false when yes book empty")
	}
}

func TestBuildPopulatesTopOfBook(t *testing.T) {
	t.Parallel()

	provider := fakeProvider{books: map[string]types.OrderBookSnapshot{
		"yes": {
			Bids: []types.PriceLevel{{Price: 0.44, Size: 20}},
			Asks: []types.PriceLevel{{Price: 0.46, Size: 20}},
		},
		"no": {
			Bids: []types.PriceLevel{{Price: 0.52, Size: 15}},
			Asks: []types.PriceLevel{{Price: 0.54, Size: 15}},
		},
	}}
	b := New(provider, testLogger())
	market := types.MarketInfo{YesTokenID: "yes", NoTokenID: "no", ConditionID: "c1", Slug: "will-x"}

	refHist := history.New(10)
	refHist.Push(types.PriceSample{Price: 100, TimestampMs: 0})

	snap, ok := b.Build(context.Background(), market, refHist, 105, 1000)
	if !ok {
		t.Fatalf("Build() ok = false, want true")
	}
	if snap.YesBestBid != 0.44 || snap.YesBestAsk != 0.46 {
		t.Errorf("yes top of book = (%v,%v), want (0.44,0.46)", snap.YesBestBid, snap.YesBestAsk)
	}
	if snap.YesMid != 0.45 {
		t.Errorf("YesMid = %v, want 0.45", snap.YesMid)
	}
	if snap.YesSpread <= 0 {
		t.Errorf("YesSpread = %v, want > 0", snap.YesSpread)
	}
	if snap.YesBidDepth5 != 20 {
		t.Errorf("YesBidDepth5 = %v, want 20", snap.YesBidDepth5)
	}
}
