package core

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dca-trading-btc-binance/internal/config"
	"dca-trading-btc-binance/internal/model"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func dp(s string) *decimal.Decimal {
	v := decimal.RequireFromString(s)
	return &v
}

func testStrategy() *config.StrategyConfig {
	return &config.StrategyConfig{
		Timeframe:          "1h",
		DropPct:            d("0.03"),
		RisePct:            d("0.03"),
		MaxPurchases:       10,
		MinBuyUsdt:         d("10"),
		InitialCapitalUsdt: d("1000"),
		SlippageBuyPct:     d("0.003"),
		SlippageSellPct:    d("0.003"),
		IsActive:           true,
	}
}

func readyState() *model.CycleState {
	return &model.CycleState{
		ID:                 1,
		Status:             model.StatusReady,
		CapitalAvailable:   d("1000"),
		BtcAccumulated:     decimal.Zero,
		BtcAccumNet:        decimal.Zero,
		PurchasesRemaining: 10,
		CostAccumUsdt:      decimal.Zero,
		ReferencePrice:     dp("50000"),
		AthPrice:           d("50000"),
		Version:            1,
	}
}

func candleAt(close string) model.Candle {
	return model.Candle{Close: d(close), IsClosed: true}
}

func TestShouldBuyFiresOnDrop(t *testing.T) {
	t.Parallel()
	cfg := testStrategy()
	state := readyState()

	// 3% drop from 50000 is 48500.
	assert.True(t, ShouldBuy(state, cfg, candleAt("48500")))
	assert.True(t, ShouldBuy(state, cfg, candleAt("48000")))
	assert.False(t, ShouldBuy(state, cfg, candleAt("48501")))
	assert.False(t, ShouldBuy(state, cfg, candleAt("50000")))
}

func TestShouldBuyBlockedStates(t *testing.T) {
	t.Parallel()
	cfg := testStrategy()

	paused := readyState()
	paused.Status = model.StatusPaused
	assert.False(t, ShouldBuy(paused, cfg, candleAt("48000")))

	exhausted := readyState()
	exhausted.PurchasesRemaining = 0
	assert.False(t, ShouldBuy(exhausted, cfg, candleAt("48000")))

	noRef := readyState()
	noRef.ReferencePrice = nil
	noRef.AthPrice = decimal.Zero
	assert.False(t, ShouldBuy(noRef, cfg, candleAt("48000")))
}

func TestShouldBuyFallsBackToATH(t *testing.T) {
	t.Parallel()
	cfg := testStrategy()
	state := readyState()
	state.ReferencePrice = nil
	state.AthPrice = d("50000")

	assert.True(t, ShouldBuy(state, cfg, candleAt("48500")))
	assert.False(t, ShouldBuy(state, cfg, candleAt("49000")))
}

func TestShouldSell(t *testing.T) {
	t.Parallel()
	cfg := testStrategy()
	state := readyState()
	state.Status = model.StatusHolding
	state.BtcAccumulated = d("0.00205")
	state.ReferencePrice = dp("48842.77")

	// 3% above reference.
	threshold := d("48842.77").Mul(d("1.03"))
	assert.True(t, ShouldSell(state, cfg, model.Candle{Close: threshold, IsClosed: true}))
	assert.True(t, ShouldSell(state, cfg, candleAt("50500")))
	assert.False(t, ShouldSell(state, cfg, candleAt("50000")))

	flat := readyState()
	assert.False(t, ShouldSell(flat, cfg, candleAt("99999")), "no sell while flat")
}

func TestBuyAmount(t *testing.T) {
	t.Parallel()
	cfg := testStrategy()
	minNotional := d("5")

	tests := []struct {
		name      string
		capital   string
		remaining int
		want      string
		ok        bool
	}{
		{"even slice", "1000", 10, "100", true},
		{"last slice takes everything", "42", 1, "42", true},
		{"slice below floor uses floor", "50", 10, "10", true},
		{"capital below floor drops trigger", "7", 10, "", false},
		{"no purchases left", "1000", 0, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := readyState()
			state.CapitalAvailable = d(tt.capital)
			state.PurchasesRemaining = tt.remaining

			amount, ok := BuyAmount(state, cfg, minNotional)
			require.Equal(t, tt.ok, ok)
			if ok {
				assert.True(t, amount.Equal(d(tt.want)), "got %s want %s", amount, tt.want)
			}
		})
	}
}

func TestBuyAmountRespectsExchangeMinNotional(t *testing.T) {
	t.Parallel()
	cfg := testStrategy()
	state := readyState()
	state.CapitalAvailable = d("100")
	state.PurchasesRemaining = 10

	// Exchange floor above minBuyUsdt wins.
	amount, ok := BuyAmount(state, cfg, d("15"))
	require.True(t, ok)
	assert.True(t, amount.Equal(d("15")))

	// Floor above capital drops the trigger.
	state.CapitalAvailable = d("12")
	_, ok = BuyAmount(state, cfg, d("15"))
	assert.False(t, ok)
}
