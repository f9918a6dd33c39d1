package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dca-trading-btc-binance/internal/model"
)

func buyResult(qty, cumQuote, feeBTC, feeUSDT string) *model.OrderResult {
	r := &model.OrderResult{
		Side:                model.SideBuy,
		Status:              "FILLED",
		ExecutedQty:         d(qty),
		CummulativeQuoteQty: d(cumQuote),
		FeeBTC:              d(feeBTC),
		FeeUSDT:             d(feeUSDT),
	}
	if r.ExecutedQty.IsPositive() {
		r.AvgPrice = r.CummulativeQuoteQty.Div(r.ExecutedQty)
	}
	return r
}

func sellResult(qty, cumQuote, feeBTC, feeUSDT string) *model.OrderResult {
	r := buyResult(qty, cumQuote, feeBTC, feeUSDT)
	r.Side = model.SideSell
	return r
}

// First buy of a cycle: 0.00205 BTC filled at 48645.50 with a 0.1% BTC fee.
func TestApplyFirstBuy(t *testing.T) {
	t.Parallel()
	state := readyState()

	result := buyResult("0.00205", "99.723275", "0.00000205", "0")
	outcome, err := ApplyBuy(state, result)
	require.NoError(t, err)

	outcome.Update.Apply(state)

	assert.Equal(t, model.StatusHolding, state.Status)
	assert.True(t, state.BtcAccumulated.Equal(d("0.00205")))
	assert.True(t, state.BtcAccumNet.Equal(d("0.00204795")))
	assert.True(t, state.CapitalAvailable.Equal(d("900.276725")))
	assert.True(t, state.CostAccumUsdt.Equal(d("99.723275")))
	assert.Equal(t, 9, state.PurchasesRemaining)

	// referencePrice == costAccumUsdt / btcAccumNet
	require.NotNil(t, state.ReferencePrice)
	wantRef := state.CostAccumUsdt.Div(state.BtcAccumNet)
	assert.True(t, state.ReferencePrice.Equal(wantRef))
	assert.True(t, outcome.CostPaid.Equal(d("99.723275")))
}

// A second buy moves the weighted-average reference toward the new price.
func TestApplySecondBuyReweightsReference(t *testing.T) {
	t.Parallel()
	state := readyState()

	first := buyResult("0.00205", "99.723275", "0.00000205", "0")
	outcome, err := ApplyBuy(state, first)
	require.NoError(t, err)
	outcome.Update.Apply(state)

	second := buyResult("0.00210", "98.70", "0.00000210", "0")
	outcome, err = ApplyBuy(state, second)
	require.NoError(t, err)
	outcome.Update.Apply(state)

	assert.True(t, state.BtcAccumulated.Equal(d("0.00415")))
	assert.Equal(t, 8, state.PurchasesRemaining)
	assert.False(t, state.CapitalAvailable.IsNegative())

	wantRef := state.CostAccumUsdt.Div(state.BtcAccumNet)
	assert.True(t, state.ReferencePrice.Equal(wantRef))
}

// USDT-denominated fees go into the cost basis instead of the net BTC.
func TestApplyBuyUsdtFee(t *testing.T) {
	t.Parallel()
	state := readyState()

	result := buyResult("0.00205", "99.723275", "0", "0.0997")
	outcome, err := ApplyBuy(state, result)
	require.NoError(t, err)
	outcome.Update.Apply(state)

	assert.True(t, state.BtcAccumNet.Equal(d("0.00205")), "no BTC fee deducted")
	assert.True(t, state.CostAccumUsdt.Equal(d("99.822975")))
	assert.True(t, state.CapitalAvailable.Equal(d("900.177025")))
}

func TestApplyBuyRejectsUnfilled(t *testing.T) {
	t.Parallel()
	_, err := ApplyBuy(readyState(), buyResult("0", "0", "0", "0"))
	assert.Error(t, err)
}

func TestApplyBuyRejectsOverspend(t *testing.T) {
	t.Parallel()
	state := readyState()
	state.CapitalAvailable = d("50")

	_, err := ApplyBuy(state, buyResult("0.00205", "99.72", "0", "0"))
	assert.Error(t, err)
}

// Full sell closes the cycle and resets everything.
func TestApplySellClosesCycle(t *testing.T) {
	t.Parallel()
	cfg := testStrategy()
	state := readyState()

	buy := buyResult("0.00205", "99.723275", "0.00000205", "0")
	outcome, err := ApplyBuy(state, buy)
	require.NoError(t, err)
	outcome.Update.Apply(state)

	// 0.00205 BTC sold at 50157.00 with a 0.103 USDT fee.
	sell := sellResult("0.00205", "102.82185", "0", "0.103")
	sellOut, err := ApplySell(state, cfg, sell)
	require.NoError(t, err)
	sellOut.Update.Apply(state)

	assert.True(t, sellOut.CycleClosed)
	assert.False(t, sellOut.ProfitShort)
	assert.True(t, sellOut.NetUsdt.Equal(d("102.71885")))
	assert.True(t, sellOut.Profit.IsPositive())

	assert.Equal(t, model.StatusReady, state.Status)
	assert.True(t, state.BtcAccumulated.IsZero())
	assert.True(t, state.BtcAccumNet.IsZero())
	assert.True(t, state.CostAccumUsdt.IsZero())
	assert.Nil(t, state.ReferencePrice)
	assert.Equal(t, cfg.MaxPurchases, state.PurchasesRemaining)
	assert.True(t, state.CapitalAvailable.Equal(d("900.276725").Add(d("102.71885"))))
}

// Partial IOC fill: position shrinks, cycle stays open, reference untouched.
func TestApplySellPartialFill(t *testing.T) {
	t.Parallel()
	cfg := testStrategy()
	state := readyState()

	buy := buyResult("0.00205", "99.723275", "0.00000205", "0")
	outcome, err := ApplyBuy(state, buy)
	require.NoError(t, err)
	outcome.Update.Apply(state)
	refBefore := *state.ReferencePrice

	sell := sellResult("0.00100", "50.15", "0", "0.05")
	sellOut, err := ApplySell(state, cfg, sell)
	require.NoError(t, err)
	sellOut.Update.Apply(state)

	assert.False(t, sellOut.CycleClosed)
	assert.Equal(t, model.StatusHolding, state.Status)
	assert.True(t, state.BtcAccumulated.Equal(d("0.00105")))
	require.NotNil(t, state.ReferencePrice)
	assert.True(t, state.ReferencePrice.Equal(refBefore))
	assert.Equal(t, 9, state.PurchasesRemaining, "purchases untouched by sells")
}

// Profit is clamped at zero; the shortfall is flagged for escalation.
func TestApplySellClampsNegativeProfit(t *testing.T) {
	t.Parallel()
	cfg := testStrategy()
	state := readyState()

	buy := buyResult("0.00205", "99.723275", "0", "0")
	outcome, err := ApplyBuy(state, buy)
	require.NoError(t, err)
	outcome.Update.Apply(state)

	// Sold well below the reference.
	sell := sellResult("0.00205", "90.00", "0", "0.09")
	sellOut, err := ApplySell(state, cfg, sell)
	require.NoError(t, err)

	assert.True(t, sellOut.Profit.IsZero(), "profit must never be negative")
	assert.True(t, sellOut.ProfitShort)
}

// BTC-denominated sell fees reduce the USDT proceeds at the average price.
func TestApplySellBtcFee(t *testing.T) {
	t.Parallel()
	cfg := testStrategy()
	state := readyState()

	buy := buyResult("0.00205", "99.723275", "0", "0")
	outcome, err := ApplyBuy(state, buy)
	require.NoError(t, err)
	outcome.Update.Apply(state)

	sell := sellResult("0.00205", "102.82185", "0.00000205", "0")
	sellOut, err := ApplySell(state, cfg, sell)
	require.NoError(t, err)

	wantNet := d("102.82185").Sub(d("0.00000205").Mul(sell.AvgPrice))
	assert.True(t, sellOut.NetUsdt.Equal(wantNet))
}

func TestCapitalAndPurchasesStayNonNegative(t *testing.T) {
	t.Parallel()
	cfg := testStrategy()
	state := readyState()

	// Walk the full purchase budget down with small buys, then sell out.
	for i := 0; i < cfg.MaxPurchases; i++ {
		result := buyResult("0.00020", "10.00", "0", "0.01")
		outcome, err := ApplyBuy(state, result)
		require.NoError(t, err)
		outcome.Update.Apply(state)

		assert.False(t, state.CapitalAvailable.IsNegative())
		assert.GreaterOrEqual(t, state.PurchasesRemaining, 0)

		ref := state.CostAccumUsdt.Div(state.BtcAccumNet)
		assert.True(t, state.ReferencePrice.Equal(ref))
	}
	assert.Equal(t, 0, state.PurchasesRemaining)

	sell := sellResult(state.BtcAccumulated.String(), "105.00", "0", "0.105")
	sellOut, err := ApplySell(state, cfg, sell)
	require.NoError(t, err)
	sellOut.Update.Apply(state)

	assert.True(t, sellOut.CycleClosed)
	assert.False(t, state.CapitalAvailable.IsNegative())
	assert.Equal(t, cfg.MaxPurchases, state.PurchasesRemaining)
}
