package numeric

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestRoundPriceToTick(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		price string
		tick  string
		want  string
	}{
		{"already aligned", "48645.50", "0.01", "48645.5"},
		{"rounds down", "48645.509", "0.01", "48645.5"},
		{"coarse tick", "48645.509", "0.1", "48645.5"},
		{"sub-tick price", "0.009", "0.01", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RoundPriceToTick(d(tt.price), d(tt.tick))
			require.NoError(t, err)
			assert.True(t, got.Equal(d(tt.want)), "got %s want %s", got, tt.want)
		})
	}
}

func TestRoundPriceToTickIdempotent(t *testing.T) {
	t.Parallel()
	prices := []string{"48645.509", "0.013", "99999.999", "50307.94"}
	tick := d("0.01")
	for _, p := range prices {
		once, err := RoundPriceToTick(d(p), tick)
		require.NoError(t, err)
		twice, err := RoundPriceToTick(once, tick)
		require.NoError(t, err)
		assert.True(t, once.Equal(twice), "rounding %s twice moved the value", p)
	}
}

func TestRoundQuantityToStep(t *testing.T) {
	t.Parallel()
	got, err := RoundQuantityToStep(d("0.0020557"), d("0.00001"))
	require.NoError(t, err)
	assert.True(t, got.Equal(d("0.00205")))

	twice, err := RoundQuantityToStep(got, d("0.00001"))
	require.NoError(t, err)
	assert.True(t, got.Equal(twice))
}

func TestRoundRejectsZeroStep(t *testing.T) {
	t.Parallel()
	_, err := RoundPriceToTick(d("100"), decimal.Zero)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = RoundQuantityToStep(d("100"), d("-0.01"))
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestMinQtyForNotionalRoundsUp(t *testing.T) {
	t.Parallel()
	// 10 USDT at 48645.50 needs 0.00020557... BTC; the next step up is 0.00021.
	got, err := MinQtyForNotional(d("10"), d("48645.50"), d("0.00001"))
	require.NoError(t, err)
	assert.True(t, got.Equal(d("0.00021")), "got %s", got)
	assert.True(t, got.Mul(d("48645.50")).GreaterThanOrEqual(d("10")))
}

func TestSlippagePrices(t *testing.T) {
	t.Parallel()
	slip := d("0.003")
	assert.True(t, BuySlippagePrice(d("48500"), slip).Equal(d("48645.5")))
	assert.True(t, SellSlippagePrice(d("48500"), slip).Equal(d("48354.5")))
}

func TestSafeDiv(t *testing.T) {
	t.Parallel()
	got, err := SafeDiv(d("10"), d("4"))
	require.NoError(t, err)
	assert.True(t, got.Equal(d("2.5")))

	_, err = SafeDiv(d("10"), decimal.Zero)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestClampMinMax(t *testing.T) {
	t.Parallel()
	assert.True(t, Clamp(d("5"), d("1"), d("3")).Equal(d("3")))
	assert.True(t, Clamp(d("0"), d("1"), d("3")).Equal(d("1")))
	assert.True(t, Clamp(d("2"), d("1"), d("3")).Equal(d("2")))
	assert.True(t, Max(d("1"), d("3"), d("2")).Equal(d("3")))
	assert.True(t, Min(d("1"), d("3"), d("0.5")).Equal(d("0.5")))
}
