package core

import (
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"dca-trading-btc-binance/internal/config"
	"dca-trading-btc-binance/internal/logger"
	"dca-trading-btc-binance/internal/market"
	"dca-trading-btc-binance/internal/metrics"
	"dca-trading-btc-binance/internal/model"
	"dca-trading-btc-binance/internal/repository"
)

const (
	shutdownWait       = 30 * time.Second
	stalenessAlert     = 5 * time.Minute
	heapAlertBytes     = 512 << 20
	eventRetentionDays = 90
	maxConflictRetries = 3
)

// ExchangeClient is the slice of the exchange the orchestrator needs beyond
// order placement: balances for drift checks and klines for catch-up.
type ExchangeClient interface {
	GetBalance(asset string) (*model.Balance, error)
	GetRecentKlines(symbol, interval string, limit int) ([]model.Candle, error)
	GetKlinesSince(symbol, interval string, startTime time.Time, limit int) ([]model.Candle, error)
}

// StateStore is the slice of the repository the orchestrator needs. The
// concrete implementation is repository.Store.
type StateStore interface {
	LoadState(id int64) (*model.CycleState, error)
	UpdateStateAtomic(id int64, update model.StateUpdate, expectedVersion *int64) (*model.CycleState, error)
	ExecuteWithWAL(id int64, update model.StateUpdate, operation map[string]any) (*model.CycleState, error)
	RecoverIncompleteWAL(id int64) (*repository.RecoveryReport, error)
	RecordTrade(t *model.TradeRecord) error
	LogEvent(eventType model.EventType, severity string, details map[string]any)
	CleanupOldEvents(retentionDays int) (int64, error)
}

// CandleSource delivers closed candles from the exchange stream.
type CandleSource interface {
	Start() error
	Stop()
	Candles() <-chan model.Candle
}

// Health is the rolling health snapshot maintained by the monitor loop.
type Health struct {
	LastCandleAt     time.Time
	CandlesProcessed int64
	RecentErrors     int64
	Degraded         bool
}

// Bot is the orchestrator: it owns the candle queue, enforces the
// sell-before-buy protocol, and wires every subsystem together.
type Bot struct {
	cfg      *config.Config
	strategy *config.StrategyConfig
	store    StateStore
	exchange ExchangeClient
	placer   *OrderPlacer
	pause    *PauseManager
	window   *market.CandleWindow
	source   CandleSource
	notifier Notifier
	metrics  *metrics.Metrics

	stateID int64

	queueMu sync.Mutex
	queue   []model.Candle
	wake    chan struct{}

	stopCh   chan struct{}
	stopping bool
	stopMu   sync.RWMutex
	done     chan struct{}

	healthMu sync.Mutex
	health   Health

	lastCleanup time.Time
}

func NewBot(
	cfg *config.Config,
	strategy *config.StrategyConfig,
	store StateStore,
	exchange ExchangeClient,
	placer *OrderPlacer,
	pause *PauseManager,
	window *market.CandleWindow,
	source CandleSource,
	notifier Notifier,
	m *metrics.Metrics,
	stateID int64,
) *Bot {
	return &Bot{
		cfg:         cfg,
		strategy:    strategy,
		store:       store,
		exchange:    exchange,
		placer:      placer,
		pause:       pause,
		window:      window,
		source:      source,
		notifier:    notifier,
		metrics:     m,
		stateID:     stateID,
		wake:        make(chan struct{}, 1),
		stopCh:      make(chan struct{}),
		done:        make(chan struct{}),
		lastCleanup: time.Now(),
	}
}

// Start recovers the WAL, prefills the candle window, replays missed candles,
// then begins consuming the live stream.
func (b *Bot) Start() error {
	if _, err := b.store.RecoverIncompleteWAL(b.stateID); err != nil {
		return fmt.Errorf("WAL recovery failed: %w", err)
	}

	if err := b.prefillWindow(); err != nil {
		logger.Warn("⚠️ Could not prefill candle window, ATH warms up live", "error", err)
	}

	go b.worker()
	go b.healthLoop()

	if err := b.catchUp(); err != nil {
		logger.Error("Missed-candle catch-up failed", "error", err)
		b.store.LogEvent(model.EventError, "error", map[string]any{"phase": "catch_up", "error": err.Error()})
	}

	if err := b.source.Start(); err != nil {
		return fmt.Errorf("candle stream start failed: %w", err)
	}

	go func() {
		for candle := range b.source.Candles() {
			b.OnCandle(candle)
		}
	}()

	b.store.LogEvent(model.EventStart, "info", map[string]any{"symbol": config.Symbol, "timeframe": b.strategy.Timeframe})
	logger.Info("🚀 Bot started", "symbol", config.Symbol, "timeframe", b.strategy.Timeframe)
	return nil
}

// Stop drains the current candle (bounded) and shuts the collaborators down.
// State is already durable per candle, so nothing needs flushing.
func (b *Bot) Stop() {
	b.stopMu.Lock()
	if b.stopping {
		b.stopMu.Unlock()
		return
	}
	b.stopping = true
	b.stopMu.Unlock()

	logger.Info("🛑 Stopping bot...")
	b.source.Stop()
	close(b.stopCh)

	select {
	case <-b.done:
	case <-time.After(shutdownWait):
		logger.Warn("⚠️ Shutdown wait elapsed with candle still in flight")
	}

	b.store.LogEvent(model.EventStop, "info", nil)
	logger.Info("Bot stopped")
}

func (b *Bot) isStopping() bool {
	b.stopMu.RLock()
	defer b.stopMu.RUnlock()
	return b.stopping
}

// OnCandle enqueues a closed candle for processing. Candles arriving while
// one is in flight queue up and drain in closeTime order; candles arriving
// while paused or stopping are dropped.
func (b *Bot) OnCandle(c model.Candle) {
	if !c.IsClosed {
		return
	}
	if b.isStopping() || b.pause.IsPaused() {
		b.metrics.CandlesDropped.Inc()
		logger.Debug("Candle dropped", "close_time", c.CloseTime, "paused", b.pause.IsPaused())
		return
	}

	b.queueMu.Lock()
	b.queue = append(b.queue, c)
	sort.Slice(b.queue, func(i, j int) bool {
		return b.queue[i].CloseTime.Before(b.queue[j].CloseTime)
	})
	b.metrics.QueueDepth.Set(float64(len(b.queue) - 1))
	b.queueMu.Unlock()

	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// worker is the single-flight candle path: no two candles are ever processed
// simultaneously.
func (b *Bot) worker() {
	defer close(b.done)
	for {
		select {
		case <-b.stopCh:
			return
		case <-b.wake:
		}

		for {
			b.queueMu.Lock()
			if len(b.queue) == 0 {
				b.queueMu.Unlock()
				break
			}
			candle := b.queue[0]
			b.queue = b.queue[1:]
			b.metrics.QueueDepth.Set(float64(len(b.queue)))
			b.queueMu.Unlock()

			if b.isStopping() {
				return
			}
			b.safeHandle(candle)
		}
	}
}

// safeHandle runs one candle through the protocol, catching any error so the
// loop survives: the error is logged, audited and counted, never propagated.
func (b *Bot) safeHandle(candle model.Candle) {
	start := time.Now()
	if err := b.handleCandle(candle); err != nil {
		b.metrics.ErrorsTotal.Inc()
		b.healthMu.Lock()
		b.health.RecentErrors++
		b.healthMu.Unlock()
		logger.Error("❌ Candle handling failed", "close_time", candle.CloseTime, "error", err)
		b.store.LogEvent(model.EventError, "error", map[string]any{
			"closeTime": candle.CloseTime, "error": err.Error(),
		})
	}
	b.metrics.CandleDuration.Observe(time.Since(start).Seconds())

	b.healthMu.Lock()
	b.health.LastCandleAt = time.Now()
	b.health.CandlesProcessed++
	b.healthMu.Unlock()
	b.metrics.CandlesProcessed.Inc()
}

// handleCandle is the candle-close protocol: load state, refresh ATH when
// flat, evaluate sell before buy, persist each application durably.
func (b *Bot) handleCandle(candle model.Candle) error {
	if b.pause.IsPaused() {
		b.metrics.CandlesDropped.Inc()
		return nil
	}

	b.window.Push(candle)

	state, err := b.store.LoadState(b.stateID)
	if err != nil {
		return err
	}

	// ATH updates only happen while flat.
	if !state.IsHolding() {
		state, err = b.refreshATH(state)
		if err != nil {
			return err
		}
	}

	if state.IsHolding() {
		state, err = b.sellPhase(state, candle)
		if err != nil || state == nil {
			return err
		}
	}

	if state.PurchasesRemaining > 0 && !b.pause.IsPaused() {
		if err := b.buyPhase(state, candle); err != nil {
			return err
		}
	}
	return nil
}

// refreshATH recomputes the high-water mark over the window and seeds the
// reference price from it.
func (b *Bot) refreshATH(state *model.CycleState) (*model.CycleState, error) {
	ath, ok := b.window.CalculateATH()
	if !ok {
		return state, nil
	}
	if state.AthPrice.Equal(ath) && state.ReferencePrice != nil && state.ReferencePrice.Equal(ath) {
		return state, nil
	}

	update := model.StateUpdate{AthPrice: &ath, ReferencePrice: &ath}
	version := state.Version
	newState, err := b.store.UpdateStateAtomic(b.stateID, update, &version)
	if err != nil {
		return nil, fmt.Errorf("ATH update failed: %w", err)
	}
	b.store.LogEvent(model.EventAthUpdated, "info", map[string]any{"ath": ath.String()})
	logger.Debug("📈 ATH refreshed", "ath", ath)
	return newState, nil
}

// sellPhase evaluates and executes the sell side. It returns the reloaded
// state for the buy phase, or nil when the bot was paused and the candle is
// finished.
func (b *Bot) sellPhase(state *model.CycleState, candle model.Candle) (*model.CycleState, error) {
	if !ShouldSell(state, b.strategy, candle) {
		return state, nil
	}

	btcSpot, err := b.exchange.GetBalance("BTC")
	if err != nil {
		return nil, fmt.Errorf("BTC balance read failed: %w", err)
	}
	if btcSpot.Free.LessThan(state.BtcAccumulated) {
		b.pauseWith(model.PauseBalanceMismatch, fmt.Sprintf(
			"exchange BTC %s below internal %s", btcSpot.Free, state.BtcAccumulated), nil)
		return nil, nil
	}

	usdtSpot, err := b.exchange.GetBalance("USDT")
	if err != nil {
		return nil, fmt.Errorf("USDT balance read failed: %w", err)
	}
	if !b.driftOK(state, usdtSpot.Free, btcSpot.Free) {
		return nil, nil
	}

	result, err := b.placer.PlaceSell(state.BtcAccumulated, candle.Close, b.strategy.SlippageSellPct)
	if err != nil {
		var vErr *OrderValidationError
		if errors.As(err, &vErr) {
			logger.Warn("Sell rejected by filters", "errors", vErr.Errors)
			return state, nil
		}
		return nil, err
	}
	b.metrics.OrdersTotal.WithLabelValues(string(model.SideSell)).Inc()

	if !result.Filled() {
		logger.Info("Sell IOC expired unfilled", "client_order_id", result.ClientOrderID)
		return state, nil
	}

	var outcome *SellOutcome
	newState, err := b.persistWithRetry("sell", func(s *model.CycleState) (model.StateUpdate, error) {
		var applyErr error
		outcome, applyErr = ApplySell(s, b.strategy, result)
		if applyErr != nil {
			return model.StateUpdate{}, applyErr
		}
		return outcome.Update, nil
	})
	if err != nil {
		return nil, err
	}

	b.recordTrade(state.ID, result)
	b.store.LogEvent(model.EventTradeExecuted, "info", map[string]any{
		"side": "SELL", "qty": result.ExecutedQty.String(), "avgPrice": result.AvgPrice.String(),
		"profit": outcome.Profit.String(),
	})

	if outcome.CycleClosed {
		b.store.LogEvent(model.EventCycleComplete, "info", map[string]any{
			"profit": outcome.Profit.String(), "netUsdt": outcome.NetUsdt.String(),
		})
		b.notify(fmt.Sprintf("Cycle complete: sold %s BTC, profit %s USDT", result.ExecutedQty, outcome.Profit), "info")
		logger.Info("💰 Cycle complete", "qty", result.ExecutedQty, "profit", outcome.Profit, "capital", newState.CapitalAvailable)
	} else {
		logger.Info("Partial sell fill, still holding", "executed", result.ExecutedQty, "remaining", newState.BtcAccumulated)
	}

	if outcome.ProfitShort {
		// Negative arithmetic profit means the books diverged from the venue.
		b.pauseWith(model.PauseCriticalError, fmt.Sprintf(
			"sell settled below principal: net %s vs principal %s", outcome.NetUsdt, outcome.Principal), nil)
		return nil, nil
	}

	return newState, nil
}

// buyPhase evaluates and executes the buy side.
func (b *Bot) buyPhase(state *model.CycleState, candle model.Candle) error {
	if !ShouldBuy(state, b.strategy, candle) {
		return nil
	}

	r, err := b.placer.rules.GetRules(config.Symbol, false)
	if err != nil {
		return err
	}

	amount, ok := BuyAmount(state, b.strategy, r.MinNotional)
	if !ok {
		logger.Debug("Buy trigger dropped, amount below minimum", "capital", state.CapitalAvailable)
		return nil
	}

	usdtSpot, err := b.exchange.GetBalance("USDT")
	if err != nil {
		return fmt.Errorf("USDT balance read failed: %w", err)
	}
	if usdtSpot.Free.LessThan(amount) {
		logger.Warn("Insufficient USDT on exchange for buy", "needed", amount, "have", usdtSpot.Free)
		return nil
	}

	btcSpot, err := b.exchange.GetBalance("BTC")
	if err != nil {
		return fmt.Errorf("BTC balance read failed: %w", err)
	}
	if !b.driftOK(state, usdtSpot.Free, btcSpot.Free) {
		return nil
	}

	result, err := b.placer.PlaceBuy(amount, candle.Close, b.strategy.SlippageBuyPct)
	if err != nil {
		var vErr *OrderValidationError
		if errors.As(err, &vErr) {
			logger.Warn("Buy rejected by filters", "errors", vErr.Errors)
			return nil
		}
		return err
	}
	b.metrics.OrdersTotal.WithLabelValues(string(model.SideBuy)).Inc()

	if !result.Filled() {
		logger.Info("Buy IOC expired unfilled", "client_order_id", result.ClientOrderID)
		return nil
	}

	var outcome *BuyOutcome
	newState, err := b.persistWithRetry("buy", func(s *model.CycleState) (model.StateUpdate, error) {
		var applyErr error
		outcome, applyErr = ApplyBuy(s, result)
		if applyErr != nil {
			return model.StateUpdate{}, applyErr
		}
		outcome.Update.BuyAmount = &amount
		return outcome.Update, nil
	})
	if err != nil {
		return err
	}

	b.recordTrade(state.ID, result)
	b.store.LogEvent(model.EventBuyExecuted, "info", map[string]any{
		"qty": result.ExecutedQty.String(), "avgPrice": result.AvgPrice.String(),
		"cost": outcome.CostPaid.String(), "newRef": outcome.NewRef.String(),
		"remaining": newState.PurchasesRemaining,
	})
	logger.Info("🟢 Buy executed", "qty", result.ExecutedQty, "cost", outcome.CostPaid,
		"ref", outcome.NewRef, "remaining", newState.PurchasesRemaining)
	return nil
}

// driftOK runs the drift check and pauses on exceeded.
func (b *Bot) driftOK(state *model.CycleState, usdtSpot, btcSpot decimal.Decimal) bool {
	report := CheckDrift(state.CapitalAvailable, state.BtcAccumulated, usdtSpot, btcSpot, DriftThresholds{
		UsdtPct: b.cfg.DriftUsdtThresholdPct,
		BtcDust: b.cfg.DriftBtcDust,
	})
	switch report.OverallStatus {
	case DriftExceeded:
		b.store.LogEvent(model.EventDriftHalt, "critical", map[string]any{
			"usdtDrift": report.UsdtDrift.String(), "btcDrift": report.BtcDrift.String(),
		})
		b.pauseWith(model.PauseDriftDetected, fmt.Sprintf(
			"drift exceeded: usdt=%s btc=%s", report.UsdtDrift, report.BtcDrift), map[string]any{
			"usdtDrift": report.UsdtDrift.String(), "btcDrift": report.BtcDrift.String(),
		})
		return false
	case DriftWarning:
		logger.Warn("⚠️ Balance drift warning", "usdt_drift", report.UsdtDrift, "btc_drift", report.BtcDrift)
	}
	return true
}

// persistWithRetry applies a computed update through the WAL, reloading and
// recomputing on version conflicts. Three consecutive conflicts pause the
// strategy.
func (b *Bot) persistWithRetry(op string, compute func(*model.CycleState) (model.StateUpdate, error)) (*model.CycleState, error) {
	var lastErr error
	for attempt := 1; attempt <= maxConflictRetries; attempt++ {
		state, err := b.store.LoadState(b.stateID)
		if err != nil {
			return nil, err
		}
		update, err := compute(state)
		if err != nil {
			return nil, err
		}
		newState, err := b.store.ExecuteWithWAL(b.stateID, update, map[string]any{"operation": op})
		if err == nil {
			return newState, nil
		}
		if !errors.Is(err, repository.ErrVersionConflict) {
			return nil, err
		}
		lastErr = err
		b.metrics.VersionConflicts.Inc()
		logger.Warn("Version conflict, reloading state", "operation", op, "attempt", attempt)
	}

	b.pauseWith(model.PauseCriticalError, fmt.Sprintf("persistent version conflicts during %s", op), nil)
	return nil, lastErr
}

func (b *Bot) recordTrade(cycleID int64, result *model.OrderResult) {
	status := "FILLED"
	switch {
	case result.Status == "EXPIRED" && result.Filled():
		status = "PARTIAL"
	case result.Status == "PARTIALLY_FILLED":
		status = "PARTIAL"
	case !result.Filled():
		status = "CANCELLED"
	}

	feeAsset, feeAmount := result.PrimaryFee()
	trade := &model.TradeRecord{
		CycleID:       cycleID,
		Side:          result.Side,
		OrderID:       result.OrderID,
		ClientOrderID: result.ClientOrderID,
		Status:        status,
		ExecutedPrice: result.AvgPrice,
		ExecutedQty:   result.ExecutedQty,
		QuoteQty:      result.CummulativeQuoteQty,
		FeeAsset:      feeAsset,
		FeeAmount:     feeAmount,
		RawFills:      result.Fills,
	}
	if err := b.store.RecordTrade(trade); err != nil {
		logger.Error("Failed to record trade", "client_order_id", result.ClientOrderID, "error", err)
		b.store.LogEvent(model.EventTradeFailed, "error", map[string]any{
			"clientOrderId": result.ClientOrderID, "error": err.Error(),
		})
	}
}

func (b *Bot) pauseWith(reason model.PauseReason, message string, metadata map[string]any) {
	b.metrics.Paused.Set(1)
	if err := b.pause.Pause(reason, message, metadata); err != nil {
		logger.Error("Pause persistence failed", "error", err)
	}
}

func (b *Bot) notify(message, severity string) {
	if b.notifier != nil {
		b.notifier.SendAlert(message, severity)
	}
}

// prefillWindow seeds the candle window with recent closed candles so the
// ATH is meaningful from the first live candle.
func (b *Bot) prefillWindow() error {
	candles, err := b.exchange.GetRecentKlines(config.Symbol, b.strategy.Timeframe, market.ATHLookback+1)
	if err != nil {
		return err
	}
	for _, c := range candles {
		b.window.Push(c)
	}
	logger.Info("📊 Candle window prefilled", "candles", b.window.Len())
	return nil
}

// CatchUp replays missed candles after a stream reconnection.
func (b *Bot) CatchUp() {
	if err := b.catchUp(); err != nil {
		logger.Error("Missed-candle catch-up failed", "error", err)
	}
}

// catchUp replays closed candles missed since the last persisted update,
// oldest first, through the normal candle protocol.
func (b *Bot) catchUp() error {
	state, err := b.store.LoadState(b.stateID)
	if err != nil {
		return err
	}
	if state.UpdatedAt.IsZero() {
		return nil
	}

	// Klines are selected by open time, so start one candle earlier to include
	// the candle that was still open at the last update.
	since := state.UpdatedAt.Add(-24 * time.Hour)
	if tf, err := time.ParseDuration(b.strategy.Timeframe); err == nil {
		since = state.UpdatedAt.Add(-tf)
	}
	candles, err := b.exchange.GetKlinesSince(config.Symbol, b.strategy.Timeframe, since, 1000)
	if err != nil {
		return err
	}

	var missed []model.Candle
	for _, c := range candles {
		if c.IsClosed && c.CloseTime.After(state.UpdatedAt) {
			missed = append(missed, c)
		}
	}
	sort.Slice(missed, func(i, j int) bool { return missed[i].CloseTime.Before(missed[j].CloseTime) })

	if len(missed) == 0 {
		return nil
	}
	logger.Info("⏪ Catching up missed candles", "count", len(missed), "since", state.UpdatedAt)
	for _, c := range missed {
		if b.isStopping() {
			return nil
		}
		b.safeHandle(c)
	}
	return nil
}

// healthLoop periodically samples heap usage, candle staleness and the error
// rate, and runs the daily event cleanup.
func (b *Bot) healthLoop() {
	ticker := time.NewTicker(b.cfg.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopCh:
			return
		case <-ticker.C:
			b.checkHealth()
		}
	}
}

func (b *Bot) checkHealth() {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	b.metrics.HeapBytes.Set(float64(mem.HeapInuse))

	b.healthMu.Lock()
	health := b.health
	b.health.RecentErrors = 0
	b.healthMu.Unlock()

	degraded := false
	if mem.HeapInuse > heapAlertBytes {
		degraded = true
		logger.Warn("⚠️ Heap above threshold", "heap_bytes", mem.HeapInuse)
	}
	if !health.LastCandleAt.IsZero() && time.Since(health.LastCandleAt) > stalenessAlert && !b.pause.IsPaused() {
		degraded = true
		logger.Warn("⚠️ No candle processed recently", "last_candle_at", health.LastCandleAt)
		b.notify(fmt.Sprintf("No candle processed since %s", health.LastCandleAt.Format(time.RFC3339)), "warning")
	}
	if health.RecentErrors > 0 {
		logger.Warn("Errors since last health check", "count", health.RecentErrors)
		if health.RecentErrors >= 5 {
			degraded = true
		}
	}

	b.healthMu.Lock()
	b.health.Degraded = degraded
	b.healthMu.Unlock()

	if time.Since(b.lastCleanup) > 24*time.Hour {
		b.lastCleanup = time.Now()
		if n, err := b.store.CleanupOldEvents(eventRetentionDays); err != nil {
			logger.Error("Event cleanup failed", "error", err)
		} else if n > 0 {
			logger.Info("🧹 Old events cleaned up", "deleted", n)
		}
	}
}

// HealthSnapshot returns a copy of the current health state.
func (b *Bot) HealthSnapshot() Health {
	b.healthMu.Lock()
	defer b.healthMu.Unlock()
	return b.health
}

// ResumeCheck builds the validation used by a non-forced resume.
func (b *Bot) ResumeCheck(validator *StartupValidator) ResumeCheck {
	return func() error {
		state, err := b.store.LoadState(b.stateID)
		if err != nil {
			return err
		}
		report := validator.Validate(state)
		if fatal := report.Fatal(); fatal != nil {
			return fmt.Errorf("%s/%s: %s", fatal.Gate, fatal.Kind, fatal.Message)
		}
		return nil
	}
}
