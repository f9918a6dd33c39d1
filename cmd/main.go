package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dca-trading-btc-binance/internal/api"
	"dca-trading-btc-binance/internal/config"
	"dca-trading-btc-binance/internal/core"
	"dca-trading-btc-binance/internal/logger"
	"dca-trading-btc-binance/internal/market"
	"dca-trading-btc-binance/internal/metrics"
	"dca-trading-btc-binance/internal/repository"
	"dca-trading-btc-binance/internal/rules"
	"dca-trading-btc-binance/internal/service"
)

func main() {
	logger.Init()
	logger.Info("Starting DCA Trading Bot (Production Mode)...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Exchange client
	binanceClient := api.NewBinanceClient(cfg.BinanceApiKey, cfg.BinanceSecretKey)
	if err := binanceClient.SyncTime(); err != nil {
		logger.Warn("⚠️ Failed to synchronize time with Binance, using local time", "error", err)
	}

	// Persistence
	store, err := repository.NewStore(cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("Failed to connect to persistence: %v", err)
	}
	defer store.Close()

	strategyCfg, err := store.LoadActiveConfig(cfg.InitialCapitalUsdt)
	if err != nil {
		log.Fatalf("Failed to load strategy config: %v", err)
	}
	logger.Info("Configuration loaded successfully",
		"symbol", config.Symbol,
		"timeframe", strategyCfg.Timeframe,
		"drop_pct", strategyCfg.DropPct,
		"rise_pct", strategyCfg.RisePct,
		"max_purchases", strategyCfg.MaxPurchases,
		"min_buy_usdt", strategyCfg.MinBuyUsdt,
		"initial_capital", strategyCfg.InitialCapitalUsdt,
	)

	state, err := store.LoadOrCreateState(strategyCfg)
	if err != nil {
		log.Fatalf("Failed to load cycle state: %v", err)
	}

	// Notifier
	notifier := service.NewWebhookNotifier(cfg.AlertWebhookURL)

	// Trading rules cache, warmed before the first order
	rulesCache := rules.NewCache(binanceClient, rules.DefaultTTL)
	if _, err := rulesCache.GetRules(config.Symbol, true); err != nil {
		log.Fatalf("Failed to fetch trading rules: %v", err)
	}
	rulesCache.StartAutoRefresh(config.Symbol, rules.DefaultTTL, func(err error) {
		notifier.SendAlert("Trading rules refresh failed: "+err.Error(), "warning")
	})

	// Startup gates
	validator := core.NewStartupValidator(cfg, strategyCfg, binanceClient, store, notifier)
	report := validator.Validate(state)
	for _, check := range report.Checks {
		switch check.Level {
		case core.CheckWarning:
			logger.Warn("Startup check warning", "gate", check.Gate, "kind", check.Kind, "message", check.Message)
		default:
			logger.Info("Startup check", "gate", check.Gate, "kind", check.Kind, "message", check.Message)
		}
	}
	if fatal := report.Fatal(); fatal != nil {
		log.Fatalf("Startup validation failed [%s/%s]: %s", fatal.Gate, fatal.Kind, fatal.Message)
	}

	// Metrics
	m := metrics.New()
	if cfg.MetricsAddr != "" {
		metrics.Serve(cfg.MetricsAddr)
		logger.Info("📊 Metrics endpoint up", "addr", cfg.MetricsAddr)
	}

	// Pause state machine (picks up a persisted pause across restarts)
	pauseManager, err := core.NewPauseManager(store, notifier)
	if err != nil {
		log.Fatalf("Failed to initialize pause state: %v", err)
	}
	if pauseManager.IsPaused() {
		m.Paused.Set(1)
	}

	// Order placer with lifecycle events into the debug log
	orderEvents := func(event string, details map[string]any) {
		if event == "orderRetry" {
			m.OrderRetries.Inc()
		}
		logger.Debug("Order lifecycle", "event", event, "details", details)
	}
	placer := core.NewOrderPlacer(binanceClient, rulesCache, config.Symbol, orderEvents)

	// Candle window and stream. The reconnect hook is bound after the bot
	// exists so resubscribes trigger missed-candle catch-up.
	window := market.NewCandleWindow(market.ATHLookback)
	var bot *core.Bot
	stream := service.NewKlineStreamService(config.Symbol, strategyCfg.Timeframe, func() {
		if bot != nil {
			bot.CatchUp()
		}
	})

	bot = core.NewBot(cfg, strategyCfg, store, binanceClient, placer, pauseManager, window, stream, notifier, m, state.ID)

	// User-data stream keeps a live balance snapshot
	userStream := service.NewUserStreamService(binanceClient)
	go func() {
		for {
			if err := userStream.Start(); err != nil {
				logger.Error("❌ Failed to start user-data stream, retrying in 10s...", "error", err)
				time.Sleep(10 * time.Second)
				continue
			}
			// Start blocks inside the read loop; returning means disconnect.
			logger.Warn("⚠️ User-data stream disconnected, reconnecting in 5s...")
			time.Sleep(5 * time.Second)
		}
	}()

	if err := bot.Start(); err != nil {
		log.Fatalf("Failed to start bot: %v", err)
	}

	// Block until termination
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("Termination signal received", "signal", sig.String())

	bot.Stop()
	_ = userStream.Stop()
}
