// Package change decides whether a newly observed listing state differs
// materially from the stored one.
package change

import "math"

// Thresholds controls what counts as a material price move. Both conditions
// must hold: the conjunction keeps tiny-base-price swings (which pass the
// percentage test trivially) from generating noise.
type Thresholds struct {
	MinAbsoluteChange   float64
	MinPercentageChange float64
}

// DefaultThresholds returns the stock $1.00 / 5% bar.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinAbsoluteChange:   1.00,
		MinPercentageChange: 5.0,
	}
}

// Observation is the newly fetched listing state.
type Observation struct {
	Price   float64
	InStock bool
}

// Result describes how the observation compares to the stored state.
// Material reports whether anything warrants a history event.
type Result struct {
	PriceChanged      bool
	StockChanged      bool
	PriceDelta        float64
	PriceDeltaPercent float64
}

// Material reports whether the observation should be recorded as a change.
func (r Result) Material() bool {
	return r.PriceChanged || r.StockChanged
}

// Detect compares a stored (price, stock) state against a new observation.
// A price move is material only if it clears both the absolute and the
// percentage threshold; the percentage is computed against the previous
// price and is zero when the previous price was zero. A stock flip is
// always material.
func Detect(prevPrice float64, prevInStock bool, obs Observation, t Thresholds) Result {
	delta := obs.Price - prevPrice

	var deltaPct float64
	if prevPrice != 0 {
		deltaPct = delta / prevPrice * 100
	}

	return Result{
		PriceChanged:      math.Abs(delta) >= t.MinAbsoluteChange && math.Abs(deltaPct) >= t.MinPercentageChange,
		StockChanged:      obs.InStock != prevInStock,
		PriceDelta:        delta,
		PriceDeltaPercent: deltaPct,
	}
}
