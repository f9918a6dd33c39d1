package core

import (
	"github.com/shopspring/decimal"

	"dca-trading-btc-binance/internal/numeric"
)

type DriftStatus string

const (
	DriftOK       DriftStatus = "ok"
	DriftWarning  DriftStatus = "warning"
	DriftExceeded DriftStatus = "exceeded"
)

// DriftThresholds configures the tolerated divergence between internal and
// exchange balances. USDT drift is relative; BTC drift is absolute because a
// USDT-relative measure is unreliable near zero.
type DriftThresholds struct {
	UsdtPct decimal.Decimal // relative, e.g. 0.005
	BtcDust decimal.Decimal // absolute BTC, e.g. 1e-8
}

// DriftReport is the outcome of one internal-vs-exchange comparison.
type DriftReport struct {
	UsdtDrift     decimal.Decimal
	BtcDrift      decimal.Decimal
	UsdtStatus    DriftStatus
	BtcStatus     DriftStatus
	OverallStatus DriftStatus
}

// CheckDrift compares the internal ledger against exchange spot balances.
func CheckDrift(internalUsdt, internalBtc, usdtSpot, btcSpot decimal.Decimal, th DriftThresholds) *DriftReport {
	denom := numeric.Max(internalUsdt, decimal.NewFromInt(1))
	usdtDrift := usdtSpot.Sub(internalUsdt).Abs().Div(denom)
	btcDrift := btcSpot.Sub(internalBtc).Abs()

	report := &DriftReport{
		UsdtDrift:  usdtDrift,
		BtcDrift:   btcDrift,
		UsdtStatus: classify(usdtDrift, th.UsdtPct),
		BtcStatus:  classify(btcDrift, th.BtcDust),
	}

	report.OverallStatus = report.UsdtStatus
	if rank(report.BtcStatus) > rank(report.OverallStatus) {
		report.OverallStatus = report.BtcStatus
	}
	return report
}

// classify buckets a drift value against its threshold: ok within the
// threshold, warning up to twice it, exceeded beyond.
func classify(drift, threshold decimal.Decimal) DriftStatus {
	if drift.LessThanOrEqual(threshold) {
		return DriftOK
	}
	if drift.LessThanOrEqual(threshold.Mul(decimal.NewFromInt(2))) {
		return DriftWarning
	}
	return DriftExceeded
}

func rank(s DriftStatus) int {
	switch s {
	case DriftWarning:
		return 1
	case DriftExceeded:
		return 2
	default:
		return 0
	}
}
