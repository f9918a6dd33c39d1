package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Candle is one kline as delivered by the exchange stream or the
// historical klines endpoint. Only closed candles drive the strategy.
type Candle struct {
	Symbol    string          `json:"symbol"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    decimal.Decimal `json:"volume"`
	OpenTime  time.Time       `json:"openTime"`
	CloseTime time.Time       `json:"closeTime"`
	IsClosed  bool            `json:"isClosed"`
}

// Balance is a single-asset spot balance as reported by the exchange.
type Balance struct {
	Asset  string          `json:"asset"`
	Free   decimal.Decimal `json:"free"`
	Locked decimal.Decimal `json:"locked"`
}
