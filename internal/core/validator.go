package core

import (
	"fmt"
	"time"

	"github.com/jpillora/backoff"
	"github.com/shopspring/decimal"

	"dca-trading-btc-binance/internal/config"
	"dca-trading-btc-binance/internal/logger"
	"dca-trading-btc-binance/internal/model"
)

// ValidatorExchange is the slice of the exchange client the validator needs.
type ValidatorExchange interface {
	Ping() error
	GetBalance(asset string) (*model.Balance, error)
}

// ValidatorStore is the slice of the repository the validator needs.
type ValidatorStore interface {
	Ping() error
}

// ReachabilityChecker is implemented by the notifier; failures are warnings.
type ReachabilityChecker interface {
	CheckReachable() error
}

type CheckLevel string

const (
	CheckOK      CheckLevel = "ok"
	CheckWarning CheckLevel = "warning"
	CheckFatal   CheckLevel = "fatal"
)

// CheckResult is one line of the startup report.
type CheckResult struct {
	Gate    string
	Kind    string
	Level   CheckLevel
	Message string
}

// StartupReport is the structured outcome of the three startup gates.
type StartupReport struct {
	Checks []CheckResult
}

func (r *StartupReport) add(gate, kind string, level CheckLevel, format string, args ...any) {
	r.Checks = append(r.Checks, CheckResult{Gate: gate, Kind: kind, Level: level, Message: fmt.Sprintf(format, args...)})
}

// Fatal returns the first fatal check, if any.
func (r *StartupReport) Fatal() *CheckResult {
	for i := range r.Checks {
		if r.Checks[i].Level == CheckFatal {
			return &r.Checks[i]
		}
	}
	return nil
}

// StartupValidator runs the configuration, connectivity and balance gates
// before the orchestrator starts.
type StartupValidator struct {
	cfg      *config.Config
	strategy *config.StrategyConfig
	exchange ValidatorExchange
	store    ValidatorStore
	notifier ReachabilityChecker

	// sleep is swappable in tests.
	sleep func(time.Duration)
}

func NewStartupValidator(cfg *config.Config, strategy *config.StrategyConfig, exchange ValidatorExchange, store ValidatorStore, notifier ReachabilityChecker) *StartupValidator {
	return &StartupValidator{
		cfg:      cfg,
		strategy: strategy,
		exchange: exchange,
		store:    store,
		notifier: notifier,
		sleep:    time.Sleep,
	}
}

// Validate runs the gates in order and stops at the first fatal check. The
// balance gate also ends early when the BTC balance read fails (a warning),
// in which case the drift comparison is skipped.
func (v *StartupValidator) Validate(lastState *model.CycleState) *StartupReport {
	report := &StartupReport{}

	v.checkConfiguration(report)
	if report.Fatal() != nil {
		return report
	}

	v.checkConnectivity(report)
	if report.Fatal() != nil {
		return report
	}

	v.checkBalances(report, lastState)
	return report
}

func (v *StartupValidator) checkConfiguration(report *StartupReport) {
	if err := v.strategy.Validate(); err != nil {
		report.add("configuration", "strategy_config", CheckFatal, "strategy config invalid: %v", err)
		return
	}
	report.add("configuration", "strategy_config", CheckOK, "strategy config valid (timeframe=%s)", v.strategy.Timeframe)

	if v.cfg.BinanceApiKey == "" || v.cfg.BinanceSecretKey == "" {
		report.add("configuration", "credentials", CheckFatal, "exchange credentials missing")
		return
	}
	report.add("configuration", "credentials", CheckOK, "exchange credentials present")
}

func (v *StartupValidator) checkConnectivity(report *StartupReport) {
	boff := &backoff.Backoff{Min: time.Second, Factor: 2, Jitter: false}
	var err error
	for attempt := 1; attempt <= 3; attempt++ {
		if err = v.exchange.Ping(); err == nil {
			break
		}
		if attempt < 3 {
			wait := boff.Duration()
			logger.Warn("Exchange ping failed, retrying", "attempt", attempt, "wait", wait, "error", err)
			v.sleep(wait)
		}
	}
	if err != nil {
		report.add("connectivity", "exchange", CheckFatal, "exchange unreachable after 3 attempts: %v", err)
		return
	}
	report.add("connectivity", "exchange", CheckOK, "exchange ping ok")

	if err := v.store.Ping(); err != nil {
		report.add("connectivity", "persistence", CheckFatal, "persistence unreachable: %v", err)
		return
	}
	report.add("connectivity", "persistence", CheckOK, "persistence ping ok")

	if v.notifier != nil {
		if err := v.notifier.CheckReachable(); err != nil {
			report.add("connectivity", "notifier", CheckWarning, "notifier unreachable: %v", err)
		} else {
			report.add("connectivity", "notifier", CheckOK, "notifier reachable")
		}
	}
}

func (v *StartupValidator) checkBalances(report *StartupReport, lastState *model.CycleState) {
	usdt, err := v.exchange.GetBalance("USDT")
	if err != nil {
		report.add("balance", "usdt", CheckFatal, "failed to read USDT balance: %v", err)
		return
	}
	if usdt.Free.LessThan(v.strategy.InitialCapitalUsdt) {
		report.add("balance", "usdt", CheckFatal, "USDT free %s below initial capital %s", usdt.Free, v.strategy.InitialCapitalUsdt)
		return
	}
	report.add("balance", "usdt", CheckOK, "USDT free %s covers initial capital %s", usdt.Free, v.strategy.InitialCapitalUsdt)

	btc, err := v.exchange.GetBalance("BTC")
	if err != nil {
		report.add("balance", "btc", CheckWarning, "failed to read BTC balance: %v", err)
		return
	}
	if btc.Free.GreaterThan(Dust) {
		report.add("balance", "btc", CheckWarning, "non-dust BTC balance %s on account", btc.Free)
	}

	// Drift against the persisted state is only a warning here: the per-candle
	// drift check owns the fatal path.
	if lastState != nil {
		onePct := decimal.RequireFromString("0.01")
		drift := CheckDrift(lastState.CapitalAvailable, lastState.BtcAccumulated, usdt.Free, btc.Free, DriftThresholds{
			UsdtPct: onePct,
			BtcDust: Dust,
		})
		if drift.UsdtDrift.GreaterThan(onePct) {
			report.add("balance", "drift", CheckWarning, "USDT drift %s vs persisted state above 1%%", drift.UsdtDrift)
		}
	}
}
