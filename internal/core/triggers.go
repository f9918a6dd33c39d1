// Package core implements the DCA strategy: trigger evaluation, order
// placement, state folding, drift detection, pause handling and the
// candle-driven orchestrator.
package core

import (
	"github.com/shopspring/decimal"

	"dca-trading-btc-binance/internal/config"
	"dca-trading-btc-binance/internal/model"
	"dca-trading-btc-binance/internal/numeric"
)

// ShouldBuy reports whether the buy trigger fires for a closed candle:
// not paused, purchases left, and close at or below the reference dropped by
// dropPct. When flat the reference is the ATH.
func ShouldBuy(state *model.CycleState, cfg *config.StrategyConfig, candle model.Candle) bool {
	if state.Status == model.StatusPaused {
		return false
	}
	if state.PurchasesRemaining <= 0 {
		return false
	}

	ref := referenceFor(state)
	if ref == nil || !ref.IsPositive() {
		return false
	}

	threshold := ref.Mul(decimal.NewFromInt(1).Sub(cfg.DropPct))
	return candle.Close.LessThanOrEqual(threshold)
}

// ShouldSell reports whether the sell trigger fires: holding BTC and close at
// or above the reference raised by risePct.
func ShouldSell(state *model.CycleState, cfg *config.StrategyConfig, candle model.Candle) bool {
	if !state.BtcAccumulated.IsPositive() {
		return false
	}
	ref := referenceFor(state)
	if ref == nil || !ref.IsPositive() {
		return false
	}

	threshold := ref.Mul(decimal.NewFromInt(1).Add(cfg.RisePct))
	return candle.Close.GreaterThanOrEqual(threshold)
}

// referenceFor returns the trigger pivot: the weighted-average cost while
// holding, else the ATH-seeded reference.
func referenceFor(state *model.CycleState) *decimal.Decimal {
	if state.ReferencePrice != nil {
		return state.ReferencePrice
	}
	if state.AthPrice.IsPositive() {
		ath := state.AthPrice
		return &ath
	}
	return nil
}

// BuyAmount computes the USDT slice for the next buy:
// min(capital, max(capital/purchasesRemaining, minBuyUsdt, exchangeMinNotional)).
// Returns ok=false when the affordable amount is below the minimum viable
// order, which drops the trigger for this candle.
func BuyAmount(state *model.CycleState, cfg *config.StrategyConfig, exchangeMinNotional decimal.Decimal) (decimal.Decimal, bool) {
	if state.PurchasesRemaining <= 0 || !state.CapitalAvailable.IsPositive() {
		return decimal.Zero, false
	}

	slice, err := numeric.SafeDiv(state.CapitalAvailable, decimal.NewFromInt(int64(state.PurchasesRemaining)))
	if err != nil {
		return decimal.Zero, false
	}

	floor := numeric.Max(cfg.MinBuyUsdt, exchangeMinNotional)
	amount := numeric.Min(state.CapitalAvailable, numeric.Max(slice, floor))

	if amount.LessThan(floor) {
		return decimal.Zero, false
	}
	return amount, true
}
