package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"dca-trading-btc-binance/internal/model"
)

// GetRecentKlines fetches the last `limit` candles for symbol/interval. The
// final element may be the still-open candle; callers filter on IsClosed.
func (c *BinanceClient) GetRecentKlines(symbol, interval string, limit int) ([]model.Candle, error) {
	return c.getKlines(symbol, interval, limit, 0)
}

// GetKlinesSince fetches candles whose open time is at or after startTime.
// Used by missed-candle catch-up after a restart or reconnect.
func (c *BinanceClient) GetKlinesSince(symbol, interval string, startTime time.Time, limit int) ([]model.Candle, error) {
	return c.getKlines(symbol, interval, limit, startTime.UnixMilli())
}

func (c *BinanceClient) getKlines(symbol, interval string, limit int, startTimeMs int64) ([]model.Candle, error) {
	req, err := http.NewRequest("GET", fmt.Sprintf("%s/api/v3/klines", c.BaseURL), nil)
	if err != nil {
		return nil, err
	}

	q := req.URL.Query()
	q.Add("symbol", symbol)
	q.Add("interval", interval)
	q.Add("limit", strconv.Itoa(limit))
	if startTimeMs > 0 {
		q.Add("startTime", strconv.FormatInt(startTimeMs, 10))
	}
	req.URL.RawQuery = q.Encode()

	// No signature needed for public data, but sending the API key is good practice
	if c.APIKey != "" {
		req.Header.Add("X-MBX-APIKEY", c.APIKey)
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	logWeight(resp)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read error: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, newAPIError(resp.StatusCode, body)
	}

	var rawKlines [][]interface{}
	if err := json.Unmarshal(body, &rawKlines); err != nil {
		return nil, fmt.Errorf("unmarshal error: %w", err)
	}

	now := time.Now()
	candles := make([]model.Candle, 0, len(rawKlines))
	for _, k := range rawKlines {
		if len(k) < 7 {
			continue
		}
		candle, err := parseKline(symbol, k)
		if err != nil {
			return nil, err
		}
		// A candle is closed once its closeTime is in the past.
		candle.IsClosed = candle.CloseTime.Before(now)
		candles = append(candles, candle)
	}
	return candles, nil
}

// parseKline converts one raw kline array. JSON numbers arrive as float64 in
// interface{}; prices arrive as strings and are parsed into decimals.
func parseKline(symbol string, k []interface{}) (model.Candle, error) {
	openTime, _ := k[0].(float64)
	closeTime, _ := k[6].(float64)

	fields := [5]string{}
	for i, idx := range []int{1, 2, 3, 4, 5} {
		s, ok := k[idx].(string)
		if !ok {
			return model.Candle{}, fmt.Errorf("kline field %d is not a string", idx)
		}
		fields[i] = s
	}

	var parsed [5]decimal.Decimal
	for i, s := range fields {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return model.Candle{}, fmt.Errorf("invalid kline value %q: %w", s, err)
		}
		parsed[i] = d
	}

	return model.Candle{
		Symbol:    symbol,
		Open:      parsed[0],
		High:      parsed[1],
		Low:       parsed[2],
		Close:     parsed[3],
		Volume:    parsed[4],
		OpenTime:  time.UnixMilli(int64(openTime)),
		CloseTime: time.UnixMilli(int64(closeTime)),
	}, nil
}
