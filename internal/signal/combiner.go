package signal

import (
	"math"
	"sync"

	"hftengine/pkg/types"
)

// DefaultConvictionMin and DefaultConfidenceMin are the combiner's default
// gating thresholds.
const (
	DefaultConvictionMin = 0.15
	DefaultConfidenceMin = 0.40

	pnlWindow = 50
)

// Combiner aggregates signal components into one directional call with an
// adaptive per-component weight: components whose recently-attributed
// trades have been profitable get up-weighted, losers down-weighted.
//
// Avoids the spec's cyclic strategies<->combiner<->performance-tracker
// ownership: the tracker records outcomes into the combiner through
// RecordTradeOutcome rather than the combiner holding a back-reference to
// the tracker.
type Combiner struct {
	mu            sync.Mutex
	baseWeights   map[string]float64
	pnlByName     map[string][]float64
	convictionMin float64
	confidenceMin float64
}

// NewCombiner builds a Combiner with the given base weights (defaulted to
// 1.0 for any component name seen without one) and default gating thresholds.
func NewCombiner(baseWeights map[string]float64) *Combiner {
	if baseWeights == nil {
		baseWeights = map[string]float64{}
	}
	return &Combiner{
		baseWeights:   baseWeights,
		pnlByName:     make(map[string][]float64),
		convictionMin: DefaultConvictionMin,
		confidenceMin: DefaultConfidenceMin,
	}
}

// WithThresholds overrides the conviction/confidence gating thresholds.
func (c *Combiner) WithThresholds(convictionMin, confidenceMin float64) *Combiner {
	c.convictionMin = convictionMin
	c.confidenceMin = confidenceMin
	return c
}

// RecordTradeOutcome appends a realized trade PnL attributed to the named
// signal component, bounding the window to the last 50 entries.
func (c *Combiner) RecordTradeOutcome(componentName string, pnl float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	hist := append(c.pnlByName[componentName], pnl)
	if len(hist) > pnlWindow {
		hist = hist[len(hist)-pnlWindow:]
	}
	c.pnlByName[componentName] = hist
}

func (c *Combiner) adjustedWeight(name string) float64 {
	base, ok := c.baseWeights[name]
	if !ok {
		base = 1.0
	}
	c.mu.Lock()
	hist := c.pnlByName[name]
	c.mu.Unlock()
	if len(hist) == 0 {
		return base
	}
	var sum float64
	for _, p := range hist {
		sum += p
	}
	meanPnL := sum / float64(len(hist))
	return base * (1 + 0.3*math.Tanh(10*meanPnL))
}

// Combine aggregates the given components into one AggregatedSignal.
func (c *Combiner) Combine(components []types.SignalComponent) types.AggregatedSignal {
	if len(components) == 0 {
		return types.AggregatedSignal{Direction: types.DirectionFlat}
	}

	var weightedSum, weightSum float64
	var signSum, absZSum float64
	dominant := ""
	dominantAbsWeighted := -1.0

	for i := range components {
		comp := components[i]
		w := c.adjustedWeight(comp.Name)
		comp.Weight = w
		components[i] = comp

		weightedSum += comp.Value * w
		weightSum += w

		signSum += sign(comp.Value)
		absZSum += math.Abs(comp.ZScore)

		absWeighted := math.Abs(comp.Value * w)
		if absWeighted > dominantAbsWeighted {
			dominantAbsWeighted = absWeighted
			dominant = comp.Name
		}
	}

	var conviction float64
	if weightSum != 0 {
		conviction = weightedSum / weightSum
	}
	conviction = clamp(conviction, -1, 1)

	n := float64(len(components))
	meanSign := signSum / n
	meanAbsZ := absZSum / n
	confidence := 0.6*math.Abs(meanSign) + 0.4*math.Min(1, meanAbsZ/3)

	direction := types.DirectionFlat
	if math.Abs(conviction) >= c.convictionMin && confidence >= c.confidenceMin {
		if conviction > 0 {
			direction = types.DirectionLong
		} else {
			direction = types.DirectionShort
		}
	}

	regime := "normal"
	if meanAbsZ > 2 {
		regime = "high_volatility"
	}

	return types.AggregatedSignal{
		Direction:  direction,
		Conviction: conviction,
		Confidence: confidence,
		Components: components,
		Metadata: types.SignalMetadata{
			DominantComponent: dominant,
			RegimeHint:        regime,
		},
	}
}

func sign(x float64) float64 {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	default:
		return 0
	}
}
