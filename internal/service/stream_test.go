package service

import (
	"testing"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKlineEvent(t *testing.T) {
	t.Parallel()
	event := &binance.WsKlineEvent{
		Symbol: "BTCUSDT",
		Kline: binance.WsKline{
			StartTime: 1700000000000,
			EndTime:   1700003599999,
			Symbol:    "BTCUSDT",
			Open:      "48000.01",
			High:      "48600.00",
			Low:       "47900.00",
			Close:     "48500.00",
			Volume:    "120.5",
			IsFinal:   true,
		},
	}

	candle, err := parseKlineEvent(event)
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", candle.Symbol)
	assert.True(t, candle.IsClosed)
	assert.True(t, candle.High.Equal(decimal.RequireFromString("48600")))
	assert.True(t, candle.Close.Equal(decimal.RequireFromString("48500")))
	assert.Equal(t, int64(1700003599999), candle.CloseTime.UnixMilli())
	assert.Equal(t, time.UnixMilli(1700000000000), candle.OpenTime)
}

func TestParseKlineEventRejectsBadNumbers(t *testing.T) {
	t.Parallel()
	event := &binance.WsKlineEvent{
		Kline: binance.WsKline{Open: "not-a-number", High: "1", Low: "1", Close: "1", Volume: "1"},
	}
	_, err := parseKlineEvent(event)
	assert.Error(t, err)
}

func TestUserStreamApplyBalances(t *testing.T) {
	t.Parallel()
	s := NewUserStreamService(nil)

	event := accountPositionEvent{
		Event:     "outboundAccountPosition",
		EventTime: 1700000000000,
	}
	event.Balances = append(event.Balances, struct {
		Asset  string `json:"a"`
		Free   string `json:"f"`
		Locked string `json:"l"`
	}{Asset: "USDT", Free: "900.276725", Locked: "0"})

	s.applyBalances(event)

	balance, updated, ok := s.Snapshot("USDT")
	require.True(t, ok)
	assert.True(t, balance.Free.Equal(decimal.RequireFromString("900.276725")))
	assert.Equal(t, int64(1700000000000), updated.UnixMilli())

	_, _, ok = s.Snapshot("BTC")
	assert.False(t, ok)
}
