package rules

import (
	"fmt"

	"github.com/shopspring/decimal"

	"dca-trading-btc-binance/internal/model"
	"dca-trading-btc-binance/internal/numeric"
)

// OrderCheck is a quantity/price pair to validate against a symbol's filters.
type OrderCheck struct {
	Qty   decimal.Decimal
	Price decimal.Decimal
}

// ValidationResult reports filter violations plus filter-aligned adjustments
// the caller may retry with.
type ValidationResult struct {
	Valid           bool
	Errors          []string
	AdjustedQty     *decimal.Decimal
	AdjustedPrice   *decimal.Decimal
	SuggestedMinQty *decimal.Decimal
}

// ValidateOrder checks an order against all three filters: price band/tick,
// lot size/step, and min notional.
func (c *Cache) ValidateOrder(symbol string, check OrderCheck) (*ValidationResult, error) {
	r, err := c.GetRules(symbol, false)
	if err != nil {
		return nil, err
	}
	return Validate(r, check), nil
}

// Validate applies a symbol's filters to an order.
func Validate(r *model.SymbolTradingRules, check OrderCheck) *ValidationResult {
	result := &ValidationResult{Valid: true}

	fail := func(format string, args ...any) {
		result.Valid = false
		result.Errors = append(result.Errors, fmt.Sprintf(format, args...))
	}

	// PRICE_FILTER
	if r.MinPrice.IsPositive() && check.Price.LessThan(r.MinPrice) {
		fail("price %s below minPrice %s", check.Price, r.MinPrice)
	}
	if r.MaxPrice.IsPositive() && check.Price.GreaterThan(r.MaxPrice) {
		fail("price %s above maxPrice %s", check.Price, r.MaxPrice)
	}
	if aligned, err := numeric.RoundPriceToTick(check.Price, r.TickSize); err == nil && !aligned.Equal(check.Price) {
		fail("price %s not aligned to tick %s", check.Price, r.TickSize)
		result.AdjustedPrice = &aligned
	}

	// LOT_SIZE
	if r.MinQty.IsPositive() && check.Qty.LessThan(r.MinQty) {
		fail("quantity %s below minQty %s", check.Qty, r.MinQty)
	}
	if r.MaxQty.IsPositive() && check.Qty.GreaterThan(r.MaxQty) {
		fail("quantity %s above maxQty %s", check.Qty, r.MaxQty)
	}
	if aligned, err := numeric.RoundQuantityToStep(check.Qty, r.StepSize); err == nil && !aligned.Equal(check.Qty) {
		fail("quantity %s not aligned to step %s", check.Qty, r.StepSize)
		result.AdjustedQty = &aligned
	}

	// MIN_NOTIONAL
	if r.MinNotional.IsPositive() {
		notional := check.Qty.Mul(check.Price)
		if notional.LessThan(r.MinNotional) {
			fail("notional %s below minNotional %s", notional, r.MinNotional)
			if minQty, err := numeric.MinQtyForNotional(r.MinNotional, check.Price, r.StepSize); err == nil {
				result.SuggestedMinQty = &minQty
			}
		}
	}

	return result
}
