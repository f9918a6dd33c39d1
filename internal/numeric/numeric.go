// Package numeric holds the fixed-precision money math used everywhere a
// price or quantity touches the exchange. No float64 on monetary values.
package numeric

import (
	"errors"

	"github.com/shopspring/decimal"
)

var ErrInvalidInput = errors.New("numeric: invalid input")

// RoundPriceToTick rounds a price down to the exchange tick size:
// floor(p/tick)*tick.
func RoundPriceToTick(p, tick decimal.Decimal) (decimal.Decimal, error) {
	if tick.IsZero() || tick.IsNegative() {
		return decimal.Zero, ErrInvalidInput
	}
	return p.Div(tick).Floor().Mul(tick), nil
}

// RoundQuantityToStep rounds a quantity down to the exchange lot step:
// floor(q/step)*step.
func RoundQuantityToStep(q, step decimal.Decimal) (decimal.Decimal, error) {
	if step.IsZero() || step.IsNegative() {
		return decimal.Zero, ErrInvalidInput
	}
	return q.Div(step).Floor().Mul(step), nil
}

// MinQtyForNotional returns the smallest step-aligned quantity whose notional
// at price satisfies minNotional. This is the one place rounding goes UP.
func MinQtyForNotional(minNotional, price, step decimal.Decimal) (decimal.Decimal, error) {
	if price.IsZero() || price.IsNegative() || step.IsZero() || step.IsNegative() {
		return decimal.Zero, ErrInvalidInput
	}
	raw := minNotional.Div(price)
	return raw.Div(step).Ceil().Mul(step), nil
}

// BuySlippagePrice returns price * (1 + slip).
func BuySlippagePrice(price, slip decimal.Decimal) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(1).Add(slip))
}

// SellSlippagePrice returns price * (1 - slip).
func SellSlippagePrice(price, slip decimal.Decimal) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(1).Sub(slip))
}

// SafeDiv divides a by b, rejecting division by zero.
func SafeDiv(a, b decimal.Decimal) (decimal.Decimal, error) {
	if b.IsZero() {
		return decimal.Zero, ErrInvalidInput
	}
	return a.Div(b), nil
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi decimal.Decimal) decimal.Decimal {
	if v.LessThan(lo) {
		return lo
	}
	if v.GreaterThan(hi) {
		return hi
	}
	return v
}

// Max returns the larger of the arguments.
func Max(vals ...decimal.Decimal) decimal.Decimal {
	m := vals[0]
	for _, v := range vals[1:] {
		if v.GreaterThan(m) {
			m = v
		}
	}
	return m
}

// Min returns the smaller of the arguments.
func Min(vals ...decimal.Decimal) decimal.Decimal {
	m := vals[0]
	for _, v := range vals[1:] {
		if v.LessThan(m) {
			m = v
		}
	}
	return m
}
