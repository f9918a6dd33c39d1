package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExchangeInfoResponse represents the response from /api/v3/exchangeInfo
type ExchangeInfoResponse struct {
	Symbols []SymbolInfo `json:"symbols"`
}

// SymbolInfo represents a single symbol's configuration
type SymbolInfo struct {
	Symbol             string   `json:"symbol"`
	Status             string   `json:"status"`
	BaseAsset          string   `json:"baseAsset"`
	BaseAssetPrecision int      `json:"baseAssetPrecision"`
	QuoteAsset         string   `json:"quoteAsset"`
	QuotePrecision     int      `json:"quoteAssetPrecision"`
	OrderTypes         []string `json:"orderTypes"`
	Filters            []Filter `json:"filters"`
}

// Filter represents a trading rule filter
type Filter struct {
	FilterType  string `json:"filterType"`
	MinPrice    string `json:"minPrice,omitempty"`    // PRICE_FILTER
	MaxPrice    string `json:"maxPrice,omitempty"`    // PRICE_FILTER
	TickSize    string `json:"tickSize,omitempty"`    // PRICE_FILTER
	MinQty      string `json:"minQty,omitempty"`      // LOT_SIZE
	MaxQty      string `json:"maxQty,omitempty"`      // LOT_SIZE
	StepSize    string `json:"stepSize,omitempty"`    // LOT_SIZE
	MinNotional string `json:"minNotional,omitempty"` // MIN_NOTIONAL / NOTIONAL
}

// SymbolTradingRules is the parsed, decimal form of a symbol's filters as
// cached by the rules package.
type SymbolTradingRules struct {
	Symbol         string          `json:"symbol"`
	Status         string          `json:"status"`
	MinPrice       decimal.Decimal `json:"minPrice"`
	MaxPrice       decimal.Decimal `json:"maxPrice"`
	TickSize       decimal.Decimal `json:"tickSize"`
	MinQty         decimal.Decimal `json:"minQty"`
	MaxQty         decimal.Decimal `json:"maxQty"`
	StepSize       decimal.Decimal `json:"stepSize"`
	MinNotional    decimal.Decimal `json:"minNotional"`
	BasePrecision  int             `json:"basePrecision"`
	QuotePrecision int             `json:"quotePrecision"`
	OrderTypes     []string        `json:"orderTypes"`
	FetchedAt      time.Time       `json:"fetchedAt"`
}
