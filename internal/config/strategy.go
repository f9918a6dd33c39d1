package config

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Timeframes the candle stream supports.
var validTimeframes = map[string]bool{
	"1m": true, "5m": true, "15m": true, "30m": true,
	"1h": true, "4h": true, "1d": true,
}

var (
	minDropRise = decimal.RequireFromString("0.02")
	maxDropRise = decimal.RequireFromString("0.08")
	minBuyFloor = decimal.RequireFromString("10")
	maxSlippage = decimal.RequireFromString("0.1")
	DefaultSlip = decimal.RequireFromString("0.003")
)

// StrategyConfig is the persisted strategy_config row, immutable per run.
type StrategyConfig struct {
	ID                 int64
	Timeframe          string
	DropPct            decimal.Decimal
	RisePct            decimal.Decimal
	MaxPurchases       int
	MinBuyUsdt         decimal.Decimal
	InitialCapitalUsdt decimal.Decimal
	SlippageBuyPct     decimal.Decimal
	SlippageSellPct    decimal.Decimal
	IsActive           bool
}

// Validate enforces the documented ranges. A violation is fatal at load.
func (c *StrategyConfig) Validate() error {
	if !validTimeframes[c.Timeframe] {
		return fmt.Errorf("invalid timeframe %q", c.Timeframe)
	}
	for name, v := range map[string]decimal.Decimal{"dropPct": c.DropPct, "risePct": c.RisePct} {
		if v.LessThan(minDropRise) || v.GreaterThan(maxDropRise) {
			return fmt.Errorf("%s %s out of range [0.02, 0.08]", name, v)
		}
	}
	if c.MaxPurchases < 1 || c.MaxPurchases > 30 {
		return fmt.Errorf("maxPurchases %d out of range [1, 30]", c.MaxPurchases)
	}
	if c.MinBuyUsdt.LessThan(minBuyFloor) {
		return fmt.Errorf("minBuyUsdt %s below 10", c.MinBuyUsdt)
	}
	if !c.InitialCapitalUsdt.IsPositive() {
		return fmt.Errorf("initialCapitalUsdt %s must be positive", c.InitialCapitalUsdt)
	}
	for name, v := range map[string]decimal.Decimal{"slippageBuyPct": c.SlippageBuyPct, "slippageSellPct": c.SlippageSellPct} {
		if v.IsNegative() || v.GreaterThan(maxSlippage) {
			return fmt.Errorf("%s %s out of range [0, 0.1]", name, v)
		}
	}
	return nil
}

// DefaultStrategyConfig seeds the strategy_config row on first boot.
func DefaultStrategyConfig(initialCapital decimal.Decimal) *StrategyConfig {
	return &StrategyConfig{
		Timeframe:          "1h",
		DropPct:            decimal.RequireFromString("0.03"),
		RisePct:            decimal.RequireFromString("0.03"),
		MaxPurchases:       10,
		MinBuyUsdt:         minBuyFloor,
		InitialCapitalUsdt: initialCapital,
		SlippageBuyPct:     DefaultSlip,
		SlippageSellPct:    DefaultSlip,
		IsActive:           true,
	}
}
