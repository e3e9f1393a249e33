// Package rest implements a venue-neutral REST order-router and
// market-data adapter: a generic CLOB-style HTTP API wrapped with retry,
// rate limiting, circuit breaking, and bearer auth. It implements
// venue.MarketDataProvider and venue.OrderRouter so the tick engine never
// depends on a specific venue's wire format.
package rest

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker/v2"

	"hftengine/internal/venue"
)

// Config configures a Client.
type Config struct {
	BaseURL        string
	Timeout        time.Duration
	RetryCount     int
	AmountDecimals int32 // decimal places the venue's amount fields are scaled to (6 for USDC-style venues)
	DryRun         bool  // when true, mutating calls log and return synthetic success without an HTTP round trip
}

// DefaultConfig returns sensible defaults for a generic venue.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:        baseURL,
		Timeout:        10 * time.Second,
		RetryCount:     3,
		AmountDecimals: 6,
	}
}

// Client is the generic REST adapter. A single Client satisfies both
// venue.MarketDataProvider and venue.OrderRouter.
type Client struct {
	http    *resty.Client
	auth    *BearerAuth
	rl      *RateLimiter
	breaker *gobreaker.CircuitBreaker[*resty.Response]
	cfg     Config
	logger  *slog.Logger
}

// NewClient builds a Client. auth may be nil for venues that only expose
// unauthenticated read endpoints.
func NewClient(cfg Config, auth *BearerAuth, logger *slog.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		}).
		SetHeader("Content-Type", "application/json")

	breakerSettings := gobreaker.Settings{
		Name:        "venue-rest",
		MaxRequests: 3,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && (counts.ConsecutiveFailures >= 5 || failureRatio >= 0.6)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from, "to", to)
		},
	}

	return &Client{
		http:    httpClient,
		auth:    auth,
		rl:      DefaultRateLimiter(),
		breaker: gobreaker.NewCircuitBreaker[*resty.Response](breakerSettings),
		cfg:     cfg,
		logger:  logger.With("component", "venue_rest"),
	}
}

// authedRequest returns a resty request pre-populated with a bearer token,
// if this client was built with one.
func (c *Client) authedRequest(ctx context.Context) (*resty.Request, error) {
	req := c.http.R().SetContext(ctx)
	if c.auth == nil {
		return req, nil
	}
	tok, err := c.auth.Token()
	if err != nil {
		return nil, fmt.Errorf("mint bearer token: %w", err)
	}
	return req.SetAuthToken(tok), nil
}

// do runs fn through the circuit breaker, translating breaker-open errors
// into a plain error the caller's venue.OrderRouter/MarketDataProvider
// contract can surface as a transient per-call failure.
func (c *Client) do(fn func() (*resty.Response, error)) (*resty.Response, error) {
	resp, err := c.breaker.Execute(fn)
	if err != nil {
		return nil, fmt.Errorf("venue rest: %w", err)
	}
	return resp, nil
}

func checkStatus(resp *resty.Response) error {
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}
