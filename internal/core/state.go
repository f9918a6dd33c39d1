package core

import (
	"fmt"

	"github.com/shopspring/decimal"

	"dca-trading-btc-binance/internal/config"
	"dca-trading-btc-binance/internal/model"
	"dca-trading-btc-binance/internal/numeric"
)

// Dust is the BTC remainder below which a sell is considered to have emptied
// the position and the cycle closes.
var Dust = decimal.RequireFromString("0.00000001")

// BuyOutcome is the state delta from one executed buy.
type BuyOutcome struct {
	Update   model.StateUpdate
	CostPaid decimal.Decimal
	NewRef   decimal.Decimal
}

// ApplyBuy folds an executed buy into the cycle state. Fees paid in BTC
// reduce the net accumulation; fees paid in USDT are added to the cost.
func ApplyBuy(state *model.CycleState, result *model.OrderResult) (*BuyOutcome, error) {
	if !result.Filled() {
		return nil, fmt.Errorf("apply buy: nothing executed")
	}

	btcAccumulated := state.BtcAccumulated.Add(result.ExecutedQty)
	btcNet := result.ExecutedQty.Sub(result.FeeBTC)
	btcAccumNet := state.BtcAccumNet.Add(btcNet)

	// BTC-denominated fees are already reflected by btcAccumNet.
	costPaid := result.CummulativeQuoteQty.Add(result.FeeUSDT)
	capital := state.CapitalAvailable.Sub(costPaid)
	costAccum := state.CostAccumUsdt.Add(costPaid)

	if capital.IsNegative() {
		return nil, fmt.Errorf("apply buy: capital would go negative (%s)", capital)
	}

	ref, err := numeric.SafeDiv(costAccum, btcAccumNet)
	if err != nil {
		return nil, fmt.Errorf("apply buy: no net BTC after fees: %w", err)
	}

	remaining := state.PurchasesRemaining - 1
	status := model.StatusHolding

	outcome := &BuyOutcome{
		Update: model.StateUpdate{
			Status:             &status,
			CapitalAvailable:   &capital,
			BtcAccumulated:     &btcAccumulated,
			BtcAccumNet:        &btcAccumNet,
			PurchasesRemaining: &remaining,
			CostAccumUsdt:      &costAccum,
			ReferencePrice:     &ref,
		},
		CostPaid: costPaid,
		NewRef:   ref,
	}
	return outcome, nil
}

// SellOutcome is the state delta from one executed sell.
type SellOutcome struct {
	Update      model.StateUpdate
	NetUsdt     decimal.Decimal
	Principal   decimal.Decimal
	Profit      decimal.Decimal
	ProfitShort bool // arithmetic profit was negative before clamping
	CycleClosed bool
}

// ApplySell folds an executed sell into the cycle state. Profit is clamped to
// zero: a negative raw profit means internal accounting has diverged from the
// venue and the caller escalates it via pause rather than booking a loss.
func ApplySell(state *model.CycleState, cfg *config.StrategyConfig, result *model.OrderResult) (*SellOutcome, error) {
	if !result.Filled() {
		return nil, fmt.Errorf("apply sell: nothing executed")
	}
	if state.ReferencePrice == nil {
		return nil, fmt.Errorf("apply sell: no reference price while holding")
	}

	principal := state.ReferencePrice.Mul(result.ExecutedQty)
	netUsdt := result.CummulativeQuoteQty.
		Sub(result.FeeUSDT).
		Sub(result.FeeBTC.Mul(result.AvgPrice))

	rawProfit := netUsdt.Sub(principal)
	profit := numeric.Max(rawProfit, decimal.Zero)

	btcAccumulated := state.BtcAccumulated.Sub(result.ExecutedQty)
	capital := state.CapitalAvailable.Add(netUsdt)

	outcome := &SellOutcome{
		NetUsdt:     netUsdt,
		Principal:   principal,
		Profit:      profit,
		ProfitShort: rawProfit.IsNegative(),
	}

	if btcAccumulated.LessThan(Dust) {
		// Position emptied: the cycle closes and everything resets.
		zero := decimal.Zero
		status := model.StatusReady
		remaining := cfg.MaxPurchases
		outcome.CycleClosed = true
		outcome.Update = model.StateUpdate{
			Status:             &status,
			CapitalAvailable:   &capital,
			BtcAccumulated:     &zero,
			BtcAccumNet:        &zero,
			PurchasesRemaining: &remaining,
			CostAccumUsdt:      &zero,
			ClearReference:     true,
		}
		return outcome, nil
	}

	// Partial IOC fill: stay HOLDING, keep the reference, bank the proceeds.
	status := model.StatusHolding
	outcome.Update = model.StateUpdate{
		Status:           &status,
		CapitalAvailable: &capital,
		BtcAccumulated:   &btcAccumulated,
	}
	return outcome, nil
}
