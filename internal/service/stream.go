// Package service holds the exchange-facing stream services and the alert
// notifier.
package service

import (
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"

	"dca-trading-btc-binance/internal/logger"
	"dca-trading-btc-binance/internal/model"
)

// KlineStreamService delivers closed candles from the Binance kline stream,
// reconnecting with a fixed delay when the connection drops.
type KlineStreamService struct {
	symbol   string
	interval string
	candles  chan model.Candle
	stopCh   chan struct{}

	// onReconnect fires after each resubscribe so the orchestrator can
	// replay candles missed during the gap.
	onReconnect func()
}

func NewKlineStreamService(symbol, interval string, onReconnect func()) *KlineStreamService {
	return &KlineStreamService{
		symbol:      symbol,
		interval:    interval,
		candles:     make(chan model.Candle, 100),
		stopCh:      make(chan struct{}),
		onReconnect: onReconnect,
	}
}

func (s *KlineStreamService) Candles() <-chan model.Candle {
	return s.candles
}

// Start launches the subscribe/reconnect loop and returns immediately.
func (s *KlineStreamService) Start() error {
	go s.monitor()
	return nil
}

func (s *KlineStreamService) monitor() {
	first := true
	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		wsHandler := func(event *binance.WsKlineEvent) {
			if !event.Kline.IsFinal {
				return
			}
			candle, err := parseKlineEvent(event)
			if err != nil {
				logger.Error("Failed to parse kline event", "symbol", s.symbol, "error", err)
				return
			}
			s.candles <- candle
		}

		errHandler := func(err error) {
			logger.Error("Kline stream error", "symbol", s.symbol, "error", err)
		}

		logger.Info("📡 Connecting to Binance kline stream", "symbol", s.symbol, "interval", s.interval)
		doneC, stopC, err := binance.WsKlineServe(s.symbol, s.interval, wsHandler, errHandler)
		if err != nil {
			logger.Error("Failed to connect to kline stream, retrying in 5s...", "symbol", s.symbol, "error", err)
			time.Sleep(5 * time.Second)
			continue
		}

		if !first && s.onReconnect != nil {
			s.onReconnect()
		}
		first = false

		select {
		case <-s.stopCh:
			stopC <- struct{}{}
			return
		case <-doneC:
			logger.Warn("⚠️ Kline stream disconnected, reconnecting in 5s...", "symbol", s.symbol)
			time.Sleep(5 * time.Second)
		}
	}
}

func (s *KlineStreamService) Stop() {
	close(s.stopCh)
}

func parseKlineEvent(event *binance.WsKlineEvent) (model.Candle, error) {
	k := event.Kline

	open, err := decimal.NewFromString(k.Open)
	if err != nil {
		return model.Candle{}, err
	}
	high, err := decimal.NewFromString(k.High)
	if err != nil {
		return model.Candle{}, err
	}
	low, err := decimal.NewFromString(k.Low)
	if err != nil {
		return model.Candle{}, err
	}
	closePrice, err := decimal.NewFromString(k.Close)
	if err != nil {
		return model.Candle{}, err
	}
	volume, err := decimal.NewFromString(k.Volume)
	if err != nil {
		return model.Candle{}, err
	}

	return model.Candle{
		Symbol:    k.Symbol,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closePrice,
		Volume:    volume,
		OpenTime:  time.UnixMilli(k.StartTime),
		CloseTime: time.UnixMilli(k.EndTime),
		IsClosed:  k.IsFinal,
	}, nil
}
