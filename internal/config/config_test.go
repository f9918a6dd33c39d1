package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("BINANCE_API_KEY", "key")
	t.Setenv("BINANCE_SECRET_KEY", "secret")
	t.Setenv("DATABASE_DSN", "user:pass@tcp(localhost:3306)/bot?parseTime=True")
	t.Setenv("INITIAL_CAPITAL_USDT", "1000")
}

func TestLoadRequiredKeys(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "key", cfg.BinanceApiKey)
	assert.True(t, cfg.InitialCapitalUsdt.Equal(decimal.RequireFromString("1000")))
	assert.True(t, cfg.DriftUsdtThresholdPct.Equal(decimal.RequireFromString("0.005")))
	assert.True(t, cfg.DriftBtcDust.Equal(decimal.RequireFromString("0.00000001")))
	assert.Equal(t, 60*time.Second, cfg.HealthCheckInterval)
}

func TestLoadMissingKeyFails(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("BINANCE_API_KEY", "")

	_, err := Load()
	assert.ErrorContains(t, err, "BINANCE_API_KEY")
}

func TestLoadRejectsNonPositiveCapital(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("INITIAL_CAPITAL_USDT", "0")

	_, err := Load()
	assert.ErrorContains(t, err, "INITIAL_CAPITAL_USDT")
}

func TestLoadOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("DRIFT_USDT_THRESHOLD_PCT", "0.01")
	t.Setenv("HEALTH_CHECK_INTERVAL", "30s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.DriftUsdtThresholdPct.Equal(decimal.RequireFromString("0.01")))
	assert.Equal(t, 30*time.Second, cfg.HealthCheckInterval)
}

func TestStrategyConfigValidate(t *testing.T) {
	t.Parallel()
	valid := DefaultStrategyConfig(decimal.RequireFromString("1000"))
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*StrategyConfig)
	}{
		{"timeframe", func(c *StrategyConfig) { c.Timeframe = "7m" }},
		{"drop too small", func(c *StrategyConfig) { c.DropPct = decimal.RequireFromString("0.01") }},
		{"drop too large", func(c *StrategyConfig) { c.DropPct = decimal.RequireFromString("0.09") }},
		{"rise out of range", func(c *StrategyConfig) { c.RisePct = decimal.RequireFromString("0.2") }},
		{"max purchases low", func(c *StrategyConfig) { c.MaxPurchases = 0 }},
		{"max purchases high", func(c *StrategyConfig) { c.MaxPurchases = 31 }},
		{"min buy below floor", func(c *StrategyConfig) { c.MinBuyUsdt = decimal.RequireFromString("5") }},
		{"zero capital", func(c *StrategyConfig) { c.InitialCapitalUsdt = decimal.Zero }},
		{"negative slippage", func(c *StrategyConfig) { c.SlippageBuyPct = decimal.RequireFromString("-0.001") }},
		{"slippage too large", func(c *StrategyConfig) { c.SlippageSellPct = decimal.RequireFromString("0.2") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultStrategyConfig(decimal.RequireFromString("1000"))
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestStrategyConfigBoundariesInclusive(t *testing.T) {
	t.Parallel()
	cfg := DefaultStrategyConfig(decimal.RequireFromString("1000"))
	cfg.DropPct = decimal.RequireFromString("0.02")
	cfg.RisePct = decimal.RequireFromString("0.08")
	cfg.MaxPurchases = 30
	cfg.SlippageBuyPct = decimal.Zero
	cfg.SlippageSellPct = decimal.RequireFromString("0.1")
	assert.NoError(t, cfg.Validate())
}
