// Package pricing converts a USD list price into a local-currency amount.
//
// The calculation is pure and deterministic:
//
//	appliedRate = Round2(rate * (1 + margin))
//	localAmount = Round2(usdPrice * appliedRate)
//
// Arithmetic runs on shopspring/decimal values built from the shortest decimal
// representation of each float, so 1.005 rounds to 1.01 the way a person
// reading the number expects, without an epsilon fudge on binary floats.
package pricing

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// ErrInvalidInput is returned for NaN or infinite inputs
var ErrInvalidInput = errors.New("invalid_input")

// Places is the number of decimal places every amount is rounded to
const Places = 2

// Price is the result of a pricing computation
type Price struct {
	AppliedRate float64 `json:"applied_rate"`
	LocalAmount float64 `json:"local_amount"`
}

// ComputeLocalPrice applies the margin to rate and converts usdPrice with it.
// A margin of 0.02 is a 2% uplift.
func ComputeLocalPrice(usdPrice, marginFraction, rate float64) (Price, error) {
	for name, v := range map[string]float64{
		"usd price": usdPrice,
		"margin":    marginFraction,
		"rate":      rate,
	} {
		if !finite(v) {
			return Price{}, fmt.Errorf("%w: %s is not finite", ErrInvalidInput, name)
		}
	}

	applied := decimal.NewFromFloat(rate).
		Mul(decimal.NewFromInt(1).Add(decimal.NewFromFloat(marginFraction))).
		Round(Places)
	local := decimal.NewFromFloat(usdPrice).Mul(applied).Round(Places)

	return Price{
		AppliedRate: applied.InexactFloat64(),
		LocalAmount: local.InexactFloat64(),
	}, nil
}

// Round2 rounds x half away from zero to two decimal places.
// Non-finite values are returned unchanged.
func Round2(x float64) float64 {
	if !finite(x) {
		return x
	}
	return decimal.NewFromFloat(x).Round(Places).InexactFloat64()
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
