// Package history implements the bounded price/volume ring buffer consumed
// by every signal generator and the tick snapshot builder. One Buffer
// tracks a single instrument's trade tape: O(1) push, O(1) amortized
// eviction once capacity is reached, and a set of derived statistics
// (SMA/EMA, log-returns, realized volatility, VWAP) that return 0 rather
// than error when the buffer is underfilled — callers treat 0 as "no
// signal yet."
package history

import (
	"math"

	"hftengine/internal/stats"
	"hftengine/pkg/types"
)

// DefaultCapacity is the reference-price ring depth at 500ms ticks
// (~120 samples covers a one-minute lookback window).
const DefaultCapacity = 120

// Buffer is a fixed-capacity ring of price samples for one instrument.
// Not safe for concurrent use; callers serialize access per-instrument
// (the tick engine owns one buffer per asset on its own goroutine).
type Buffer struct {
	capacity int
	samples  []types.PriceSample // logical order oldest->newest once Len()==capacity use ring indexing
	head     int                 // index of the oldest sample once full
	full     bool
}

// New creates a Buffer with the given capacity. Capacity <= 0 is clamped to 1.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &Buffer{
		capacity: capacity,
		samples:  make([]types.PriceSample, 0, capacity),
	}
}

// Push appends a new sample, evicting the oldest once at capacity.
func (b *Buffer) Push(s types.PriceSample) {
	if !b.full && len(b.samples) < b.capacity {
		b.samples = append(b.samples, s)
		if len(b.samples) == b.capacity {
			b.full = true
		}
		return
	}
	b.samples[b.head] = s
	b.head = (b.head + 1) % b.capacity
}

// Len returns the number of samples currently held.
func (b *Buffer) Len() int {
	return len(b.samples)
}

// ordered returns the samples oldest-first regardless of ring position.
func (b *Buffer) ordered() []types.PriceSample {
	if !b.full {
		return b.samples
	}
	out := make([]types.PriceSample, b.capacity)
	for i := 0; i < b.capacity; i++ {
		out[i] = b.samples[(b.head+i)%b.capacity]
	}
	return out
}

// LastN returns up to the last n samples, oldest-first, fewer if underfilled.
func (b *Buffer) LastN(n int) []types.PriceSample {
	all := b.ordered()
	if n <= 0 || n >= len(all) {
		return all
	}
	return all[len(all)-n:]
}

// LastPrices returns up to the last n prices, oldest-first.
func (b *Buffer) LastPrices(n int) []float64 {
	samples := b.LastN(n)
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = s.Price
	}
	return out
}

// LastVolumes returns up to the last n volumes, oldest-first.
func (b *Buffer) LastVolumes(n int) []float64 {
	samples := b.LastN(n)
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = s.Volume
	}
	return out
}

// At returns the i-th oldest sample held in the buffer (0-indexed, 0 is
// the oldest) and whether it exists.
func (b *Buffer) At(i int) (types.PriceSample, bool) {
	all := b.ordered()
	if i < 0 || i >= len(all) {
		return types.PriceSample{}, false
	}
	return all[i], true
}

// LogReturns returns up to n-1 log-returns computed over the last n prices.
// Underfilled input (< 2 prices) returns nil.
func (b *Buffer) LogReturns(n int) []float64 {
	prices := b.LastPrices(n)
	if len(prices) < 2 {
		return nil
	}
	out := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] == 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, math.Log(prices[i]/prices[i-1]))
	}
	return out
}

// SimpleReturns returns up to n-1 simple returns (p[i]-p[i-1])/p[i-1] over
// the last n prices. Underfilled input (< 2 prices) returns nil.
func (b *Buffer) SimpleReturns(n int) []float64 {
	prices := b.LastPrices(n)
	if len(prices) < 2 {
		return nil
	}
	out := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] == 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, (prices[i]-prices[i-1])/prices[i-1])
	}
	return out
}

// SMA returns the simple moving average over the last n prices. Returns 0
// if the buffer is empty.
func (b *Buffer) SMA(n int) float64 {
	return stats.Mean(b.LastPrices(n))
}

// EMA returns the exponential moving average (seeded from the oldest of
// the last n prices) over the last n prices, with the given period.
// Returns 0 if the buffer is empty; fewer than n prices are averaged as
// they are.
func (b *Buffer) EMA(n, period int) float64 {
	prices := b.LastPrices(n)
	if len(prices) == 0 {
		return 0
	}
	return stats.EMALast(prices, period)
}

// RealizedVol returns the sample standard deviation of simple returns over
// the last n prices (n-1 returns). Returns 0 if underfilled (< 2 returns).
func (b *Buffer) RealizedVol(n int) float64 {
	return stats.StdDev(b.SimpleReturns(n))
}

// VWAP returns the volume-weighted average price over the last n samples.
// Returns 0 if the buffer is empty or total volume is 0.
func (b *Buffer) VWAP(n int) float64 {
	samples := b.LastN(n)
	if len(samples) == 0 {
		return 0
	}
	var pv, v float64
	for _, s := range samples {
		pv += s.Price * s.Volume
		v += s.Volume
	}
	if v == 0 {
		return 0
	}
	return pv / v
}

// ChangeOverWindow scans backward for the oldest sample whose timestamp is
// within windowMs of currentMs and returns (current-that)/that, or 0 if
// there is insufficient history or the reference price is 0.
func (b *Buffer) ChangeOverWindow(currentPrice float64, currentMs, windowMs int64) float64 {
	all := b.ordered()
	if len(all) == 0 {
		return 0
	}
	var ref float64
	found := false
	for i := len(all) - 1; i >= 0; i-- {
		if currentMs-all[i].TimestampMs <= windowMs {
			ref = all[i].Price
			found = true
			continue
		}
		break
	}
	if !found || ref == 0 {
		return 0
	}
	return (currentPrice - ref) / ref
}
