// Package profit computes profitability verdicts for marketplace/sourcing
// price pairs against configured thresholds.
package profit

// Thresholds is the immutable profitability bar a pair must clear.
// Both conditions must hold: a high-margin low-absolute-profit item (or the
// reverse) is not alertable.
type Thresholds struct {
	MinMarginPercent float64
	MinProfitAmount  float64
}

// DefaultThresholds returns the stock 15% margin / $5 profit bar.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinMarginPercent: 15.0,
		MinProfitAmount:  5.0,
	}
}

// Input groups the three prices a verdict is derived from.
type Input struct {
	MarketplacePrice float64
	MarketplaceFees  float64
	SourcingPrice    float64
}

// Verdict is the result of evaluating one price pair.
type Verdict struct {
	Profit        float64
	MarginPercent float64
	IsProfitable  bool
}

// Evaluate computes profit and margin for the input and classifies it
// against the thresholds. Margin is zero when the marketplace price is zero
// to avoid division by zero. Threshold comparisons are inclusive: a pair
// sitting exactly on both bars counts as profitable.
func Evaluate(in Input, t Thresholds) Verdict {
	p := in.MarketplacePrice - in.SourcingPrice - in.MarketplaceFees

	var margin float64
	if in.MarketplacePrice > 0 {
		margin = p / in.MarketplacePrice * 100
	}

	return Verdict{
		Profit:        p,
		MarginPercent: margin,
		IsProfitable:  margin >= t.MinMarginPercent && p >= t.MinProfitAmount,
	}
}
