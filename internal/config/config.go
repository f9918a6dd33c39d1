package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Symbol is the only market this bot trades.
const Symbol = "BTCUSDT"

// Config is the process bootstrap configuration from the environment.
// Strategy knobs live in the persisted strategy_config row instead.
type Config struct {
	// Binance API
	BinanceApiKey    string
	BinanceSecretKey string

	// Persistence
	DatabaseDSN string

	// Capital committed to the strategy on first boot
	InitialCapitalUsdt decimal.Decimal

	// Notifier (optional)
	AlertWebhookURL string

	// Metrics endpoint (optional, e.g. ":9100")
	MetricsAddr string

	// Drift thresholds
	DriftUsdtThresholdPct decimal.Decimal
	DriftBtcDust          decimal.Decimal

	HealthCheckInterval time.Duration
}

func Load() (*Config, error) {
	// A missing .env is fine when the environment is set by the supervisor.
	_ = godotenv.Load()

	cfg := &Config{}
	var err error

	cfg.BinanceApiKey = os.Getenv("BINANCE_API_KEY")
	if cfg.BinanceApiKey == "" {
		return nil, fmt.Errorf("BINANCE_API_KEY is required")
	}

	cfg.BinanceSecretKey = os.Getenv("BINANCE_SECRET_KEY")
	if cfg.BinanceSecretKey == "" {
		return nil, fmt.Errorf("BINANCE_SECRET_KEY is required")
	}

	cfg.DatabaseDSN = os.Getenv("DATABASE_DSN")
	if cfg.DatabaseDSN == "" {
		return nil, fmt.Errorf("DATABASE_DSN is required")
	}

	cfg.InitialCapitalUsdt, err = parseDecimal(os.Getenv("INITIAL_CAPITAL_USDT"), "INITIAL_CAPITAL_USDT")
	if err != nil {
		return nil, err
	}
	if !cfg.InitialCapitalUsdt.IsPositive() {
		return nil, fmt.Errorf("INITIAL_CAPITAL_USDT must be positive")
	}

	cfg.AlertWebhookURL = os.Getenv("ALERT_WEBHOOK_URL")
	cfg.MetricsAddr = os.Getenv("METRICS_ADDR")

	cfg.DriftUsdtThresholdPct, err = parseDecimalDefault(os.Getenv("DRIFT_USDT_THRESHOLD_PCT"), "DRIFT_USDT_THRESHOLD_PCT", "0.005")
	if err != nil {
		return nil, err
	}

	cfg.DriftBtcDust, err = parseDecimalDefault(os.Getenv("DRIFT_BTC_DUST"), "DRIFT_BTC_DUST", "0.00000001")
	if err != nil {
		return nil, err
	}

	cfg.HealthCheckInterval = 60 * time.Second
	if v := os.Getenv("HEALTH_CHECK_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid value for HEALTH_CHECK_INTERVAL: %w", err)
		}
		cfg.HealthCheckInterval = d
	}

	return cfg, nil
}

func parseDecimal(value, name string) (decimal.Decimal, error) {
	if value == "" {
		return decimal.Zero, fmt.Errorf("%s is required", name)
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid value for %s: %w", name, err)
	}
	return d, nil
}

func parseDecimalDefault(value, name, fallback string) (decimal.Decimal, error) {
	if value == "" {
		value = fallback
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid value for %s: %w", name, err)
	}
	return d, nil
}
