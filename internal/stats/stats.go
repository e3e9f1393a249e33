// Package stats implements the pure numerical kernel shared by the signal
// generators, risk gate, and performance tracker: mean/stddev, Pearson
// correlation, simple linear regression, EMA, and an ADF-like regression
// used for mean-reversion diagnostics.
//
// Every function here is total: degenerate input (too few points, zero
// variance) returns a zero value rather than an error or NaN. Callers treat
// a zero as "no signal," matching the underfill contract of the price
// history buffer.
package stats

import "math"

// Mean returns the arithmetic mean of xs, or 0 if xs is empty.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// StdDev returns the sample standard deviation (N-1 denominator) of xs.
// Returns 0 when len(xs) < 2.
func StdDev(xs []float64) float64 {
	n := len(xs)
	if n < 2 {
		return 0
	}
	mu := Mean(xs)
	var sumSq float64
	for _, x := range xs {
		d := x - mu
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(n-1))
}

// ZScore returns (x - mean(xs)) / stddev(xs), or 0 if stddev is 0.
func ZScore(x float64, xs []float64) float64 {
	sd := StdDev(xs)
	if sd == 0 {
		return 0
	}
	return (x - Mean(xs)) / sd
}

// Correlation returns the Pearson correlation coefficient of xs and ys.
// Returns 0 if len(xs) != len(ys), n < 2, or the denominator is 0.
func Correlation(xs, ys []float64) float64 {
	n := len(xs)
	if n != len(ys) || n < 2 {
		return 0
	}
	mx, my := Mean(xs), Mean(ys)
	var sxy, sxx, syy float64
	for i := 0; i < n; i++ {
		dx := xs[i] - mx
		dy := ys[i] - my
		sxy += dx * dy
		sxx += dx * dx
		syy += dy * dy
	}
	denom := math.Sqrt(sxx * syy)
	if denom == 0 {
		return 0
	}
	return sxy / denom
}

// LinRegResult is the output of a simple linear regression.
type LinRegResult struct {
	Slope     float64
	Intercept float64
	RSquared  float64
}

// LinearRegression fits y = slope*x + intercept by ordinary least squares.
// Returns the zero LinRegResult on degenerate input (n < 2 or zero x-variance).
func LinearRegression(xs, ys []float64) LinRegResult {
	n := len(xs)
	if n != len(ys) || n < 2 {
		return LinRegResult{}
	}
	mx, my := Mean(xs), Mean(ys)
	var sxx, sxy, syy float64
	for i := 0; i < n; i++ {
		dx := xs[i] - mx
		dy := ys[i] - my
		sxx += dx * dx
		sxy += dx * dy
		syy += dy * dy
	}
	if sxx == 0 {
		return LinRegResult{}
	}
	slope := sxy / sxx
	intercept := my - slope*mx

	var r2 float64
	if syy != 0 {
		r2 = (sxy * sxy) / (sxx * syy)
	}
	return LinRegResult{Slope: slope, Intercept: intercept, RSquared: r2}
}

// EMA computes the exponential moving average of values with the given
// period, seeded from values[0], using alpha = 2/(period+1). Returns nil
// for empty input. A period <= 0 is treated as 1 (alpha = 1), so the
// output is a copy of values.
func EMA(values []float64, period int) []float64 {
	if len(values) == 0 {
		return nil
	}
	if period <= 0 {
		period = 1
	}
	alpha := 2.0 / (float64(period) + 1)
	out := make([]float64, len(values))
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}

// EMALast is a convenience wrapper returning only the final EMA value.
func EMALast(values []float64, period int) float64 {
	e := EMA(values, period)
	if len(e) == 0 {
		return 0
	}
	return e[len(e)-1]
}

// VPIN estimates the volume-synchronized probability of informed trading
// from a sequence of mid prices, bucketing each step's notional (price delta
// times unitNotional) into the buy or sell side by the sign of the move.
// Returns 0 for fewer than 2 prices or when total bucketed notional is 0.
func VPIN(mids []float64, unitNotional float64) float64 {
	if len(mids) < 2 {
		return 0
	}
	var buySum, sellSum float64
	for i := 1; i < len(mids); i++ {
		delta := mids[i] - mids[i-1]
		notional := math.Abs(delta) * unitNotional
		if delta > 0 {
			buySum += notional
		} else if delta < 0 {
			sellSum += notional
		}
	}
	total := buySum + sellSum
	if total == 0 {
		return 0
	}
	return math.Abs(buySum-sellSum) / total
}

// ADFLikeResult is the output of the ADF-like diagnostic regression.
type ADFLikeResult struct {
	Slope float64
	SE    float64
}

// OLSADFLike regresses delta-y on lagged y (y[t]-y[t-1] on y[t-1]), the
// simplified diagnostic used to gauge mean-reversion strength without a
// full augmented Dickey-Fuller implementation. Never returns NaN/Inf;
// degenerate input (fewer than 3 points, or singular design matrix) yields
// the zero value.
func OLSADFLike(y []float64) ADFLikeResult {
	n := len(y)
	if n < 3 {
		return ADFLikeResult{}
	}
	lagged := make([]float64, n-1)
	delta := make([]float64, n-1)
	for i := 1; i < n; i++ {
		lagged[i-1] = y[i-1]
		delta[i-1] = y[i] - y[i-1]
	}
	reg := LinearRegression(lagged, delta)
	if reg.Slope == 0 && reg.Intercept == 0 && reg.RSquared == 0 {
		return ADFLikeResult{}
	}

	m := len(lagged)
	mu := Mean(lagged)
	var sxx float64
	for _, x := range lagged {
		d := x - mu
		sxx += d * d
	}
	if sxx == 0 || m < 3 {
		return ADFLikeResult{Slope: reg.Slope}
	}

	var sse float64
	for i := 0; i < m; i++ {
		pred := reg.Slope*lagged[i] + reg.Intercept
		resid := delta[i] - pred
		sse += resid * resid
	}
	dof := float64(m - 2)
	if dof <= 0 {
		return ADFLikeResult{Slope: reg.Slope}
	}
	variance := sse / dof
	se := math.Sqrt(variance / sxx)
	if math.IsNaN(se) || math.IsInf(se, 0) {
		se = 0
	}
	return ADFLikeResult{Slope: reg.Slope, SE: se}
}
