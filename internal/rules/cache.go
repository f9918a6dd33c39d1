// Package rules caches per-symbol exchange filters (tick size, lot step,
// min notional) and validates orders against them before submission.
package rules

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"dca-trading-btc-binance/internal/logger"
	"dca-trading-btc-binance/internal/model"
)

const DefaultTTL = 24 * time.Hour

// ExchangeInfoProvider is the slice of the exchange client the cache needs.
type ExchangeInfoProvider interface {
	GetExchangeInfo(symbol string) (*model.ExchangeInfoResponse, error)
}

type Cache struct {
	provider ExchangeInfoProvider
	ttl      time.Duration

	mu    sync.RWMutex
	rules map[string]*model.SymbolTradingRules

	refreshMu sync.Mutex
	refreshes map[string]chan struct{}
}

func NewCache(provider ExchangeInfoProvider, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		provider:  provider,
		ttl:       ttl,
		rules:     make(map[string]*model.SymbolTradingRules),
		refreshes: make(map[string]chan struct{}),
	}
}

// GetRules returns the cached rules for a symbol, refetching when the entry
// is missing, stale, or forceRefresh is set.
func (c *Cache) GetRules(symbol string, forceRefresh bool) (*model.SymbolTradingRules, error) {
	c.mu.RLock()
	cached, ok := c.rules[symbol]
	c.mu.RUnlock()

	if ok && !forceRefresh && time.Since(cached.FetchedAt) < c.ttl {
		return cached, nil
	}

	fresh, err := c.fetch(symbol)
	if err != nil {
		// Stale rules beat no rules when the refresh fails.
		if ok {
			logger.Warn("⚠️ Rules refresh failed, keeping cached filters", "symbol", symbol, "error", err)
			return cached, nil
		}
		return nil, err
	}
	return fresh, nil
}

func (c *Cache) fetch(symbol string) (*model.SymbolTradingRules, error) {
	info, err := c.provider.GetExchangeInfo(symbol)
	if err != nil {
		return nil, fmt.Errorf("exchange info fetch failed: %w", err)
	}
	for _, s := range info.Symbols {
		if s.Symbol != symbol {
			continue
		}
		parsed, err := ParseSymbolInfo(s)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.rules[symbol] = parsed
		c.mu.Unlock()
		return parsed, nil
	}
	return nil, fmt.Errorf("symbol %s not found in exchange info", symbol)
}

// PrefetchAllUsdtPairs warms the cache with every symbol quoted in USDT.
func (c *Cache) PrefetchAllUsdtPairs() (int, error) {
	info, err := c.provider.GetExchangeInfo("")
	if err != nil {
		return 0, fmt.Errorf("exchange info fetch failed: %w", err)
	}

	count := 0
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range info.Symbols {
		if s.QuoteAsset != "USDT" {
			continue
		}
		parsed, err := ParseSymbolInfo(s)
		if err != nil {
			logger.Warn("Skipping symbol with unparseable filters", "symbol", s.Symbol, "error", err)
			continue
		}
		c.rules[s.Symbol] = parsed
		count++
	}
	logger.Info("📋 Trading rules prefetched", "usdt_pairs", count)
	return count, nil
}

// StartAutoRefresh schedules a background refresh for a symbol. Refresh
// failures keep the old entry and are reported through errFn. Stop by closing
// the returned channel.
func (c *Cache) StartAutoRefresh(symbol string, interval time.Duration, errFn func(error)) chan struct{} {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	if stop, ok := c.refreshes[symbol]; ok {
		return stop
	}

	stop := make(chan struct{})
	c.refreshes[symbol] = stop

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if _, err := c.fetch(symbol); err != nil {
					if errFn != nil {
						errFn(err)
					}
					logger.Error("Rules auto-refresh failed", "symbol", symbol, "error", err)
				}
			}
		}
	}()
	return stop
}

// ParseSymbolInfo converts raw string filters into decimal trading rules.
func ParseSymbolInfo(s model.SymbolInfo) (*model.SymbolTradingRules, error) {
	rules := &model.SymbolTradingRules{
		Symbol:         s.Symbol,
		Status:         s.Status,
		BasePrecision:  s.BaseAssetPrecision,
		QuotePrecision: s.QuotePrecision,
		OrderTypes:     s.OrderTypes,
		FetchedAt:      time.Now(),
	}

	parse := func(v string) (decimal.Decimal, error) {
		if v == "" {
			return decimal.Zero, nil
		}
		return decimal.NewFromString(v)
	}

	for _, f := range s.Filters {
		var err error
		switch f.FilterType {
		case "PRICE_FILTER":
			if rules.MinPrice, err = parse(f.MinPrice); err == nil {
				if rules.MaxPrice, err = parse(f.MaxPrice); err == nil {
					rules.TickSize, err = parse(f.TickSize)
				}
			}
		case "LOT_SIZE":
			if rules.MinQty, err = parse(f.MinQty); err == nil {
				if rules.MaxQty, err = parse(f.MaxQty); err == nil {
					rules.StepSize, err = parse(f.StepSize)
				}
			}
		case "MIN_NOTIONAL", "NOTIONAL":
			rules.MinNotional, err = parse(f.MinNotional)
		}
		if err != nil {
			return nil, fmt.Errorf("invalid %s filter for %s: %w", f.FilterType, s.Symbol, err)
		}
	}

	if rules.TickSize.IsZero() || rules.StepSize.IsZero() {
		return nil, fmt.Errorf("symbol %s missing price or lot filters", s.Symbol)
	}
	return rules, nil
}
