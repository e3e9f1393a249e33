package rest

import (
	"context"
	"sync"
	"time"
)

// TokenBucket is a continuously-refilling token-bucket rate limiter. Callers
// block in Wait until a token is available or ctx is cancelled.
type TokenBucket struct {
	mu       sync.Mutex
	tokens   float64
	capacity float64
	rate     float64 // tokens per second
	lastTime time.Time
}

// NewTokenBucket creates a bucket with the given burst capacity and refill rate.
func NewTokenBucket(capacity, ratePerSecond float64) *TokenBucket {
	return &TokenBucket{
		tokens:   capacity,
		capacity: capacity,
		rate:     ratePerSecond,
		lastTime: time.Now(),
	}
}

// Wait blocks until a token is available or ctx is cancelled.
func (tb *TokenBucket) Wait(ctx context.Context) error {
	for {
		tb.mu.Lock()
		now := time.Now()
		elapsed := now.Sub(tb.lastTime).Seconds()
		tb.tokens += elapsed * tb.rate
		if tb.tokens > tb.capacity {
			tb.tokens = tb.capacity
		}
		tb.lastTime = now

		if tb.tokens >= 1 {
			tb.tokens--
			tb.mu.Unlock()
			return nil
		}

		wait := time.Duration((1 - tb.tokens) / tb.rate * float64(time.Second))
		tb.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// RateLimiter groups token buckets by REST endpoint category, mirroring the
// burst/sustained limits a typical CLOB-style venue enforces per call type.
type RateLimiter struct {
	Order  *TokenBucket // order placement
	Cancel *TokenBucket // order/batch cancellation
	Book   *TokenBucket // order-book reads
}

// DefaultRateLimiter returns a limiter tuned to a generic venue's published
// per-10-second-window limits, expressed as smooth per-second refill.
func DefaultRateLimiter() *RateLimiter {
	return &RateLimiter{
		Order:  NewTokenBucket(350, 50),
		Cancel: NewTokenBucket(300, 30),
		Book:   NewTokenBucket(150, 15),
	}
}
