package api

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(handler http.HandlerFunc) (*BinanceClient, *httptest.Server) {
	server := httptest.NewServer(handler)
	client := NewBinanceClient("test-key", "test-secret")
	client.BaseURL = server.URL
	return client, server
}

func TestPing(t *testing.T) {
	t.Parallel()
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/ping", r.URL.Path)
		w.Write([]byte(`{}`))
	})
	defer server.Close()

	assert.NoError(t, client.Ping())
}

func TestCreateOrderSignsAndParses(t *testing.T) {
	t.Parallel()
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v3/order", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "test-key", r.Header.Get("X-MBX-APIKEY"))

		q := r.URL.Query()
		assert.Equal(t, "BTCUSDT", q.Get("symbol"))
		assert.Equal(t, "LIMIT", q.Get("type"))
		assert.Equal(t, "IOC", q.Get("timeInForce"))
		assert.Equal(t, "FULL", q.Get("newOrderRespType"))
		assert.NotEmpty(t, q.Get("signature"))
		assert.NotEmpty(t, q.Get("timestamp"))

		w.Write([]byte(`{
			"symbol": "BTCUSDT",
			"orderId": 12345,
			"clientOrderId": "BUY_1700000000000_abcd1234",
			"transactTime": 1700000000123,
			"price": "48645.50000000",
			"origQty": "0.00205000",
			"executedQty": "0.00205000",
			"cummulativeQuoteQty": "99.72327500",
			"status": "FILLED",
			"type": "LIMIT",
			"side": "BUY",
			"fills": [
				{"price": "48645.50000000", "qty": "0.00205000", "commission": "0.00000205", "commissionAsset": "BTC", "tradeId": 998}
			]
		}`))
	})
	defer server.Close()

	resp, err := client.CreateOrder(OrderRequest{
		Symbol:           "BTCUSDT",
		Side:             "BUY",
		Type:             "LIMIT",
		TimeInForce:      "IOC",
		Quantity:         "0.00205",
		Price:            "48645.5",
		NewClientOrderID: "BUY_1700000000000_abcd1234",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(12345), resp.OrderId)
	assert.Equal(t, "FILLED", resp.Status)
	require.Len(t, resp.Fills, 1)
	assert.Equal(t, "BTC", resp.Fills[0].CommissionAsset)
	assert.Equal(t, int64(998), resp.Fills[0].TradeID)
}

func TestCreateOrderErrorTaxonomy(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		status    int
		body      string
		code      int
		transient bool
	}{
		{"rate limit", 429, `{"code":-1003,"msg":"Too many requests"}`, -1003, true},
		{"disconnected", 500, `{"code":-1001,"msg":"Internal error"}`, -1001, true},
		{"unknown", 500, `{"code":-1000,"msg":"Unknown"}`, -1000, true},
		{"insufficient funds", 400, `{"code":-2010,"msg":"Account has insufficient balance"}`, -2010, false},
		{"bad symbol", 400, `{"code":-1121,"msg":"Invalid symbol"}`, -1121, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})
			defer server.Close()

			_, err := client.CreateOrder(OrderRequest{Symbol: "BTCUSDT", Side: "BUY", Type: "LIMIT"})
			require.Error(t, err)

			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.code, apiErr.Code)
			assert.Equal(t, tt.transient, IsTransient(err))
		})
	}
}

func TestGetBalance(t *testing.T) {
	t.Parallel()
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v3/account", r.URL.Path)
		w.Write([]byte(`{"balances": [
			{"asset": "BTC", "free": "0.00205000", "locked": "0.00000000"},
			{"asset": "USDT", "free": "900.27672500", "locked": "0.00000000"}
		]}`))
	})
	defer server.Close()

	usdt, err := client.GetBalance("USDT")
	require.NoError(t, err)
	assert.True(t, usdt.Free.Equal(decimal.RequireFromString("900.276725")))

	missing, err := client.GetBalance("ETH")
	require.NoError(t, err)
	assert.True(t, missing.Free.IsZero(), "untouched assets read as zero")
}

func TestGetKlinesParsesCandles(t *testing.T) {
	t.Parallel()
	closedOpen := time.Now().Add(-2 * time.Hour).UnixMilli()
	closedClose := time.Now().Add(-time.Hour).UnixMilli()
	openOpen := time.Now().Add(-time.Minute).UnixMilli()
	openClose := time.Now().Add(time.Hour).UnixMilli()

	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v3/klines", r.URL.Path)
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		w.Write([]byte(`[
			[` + itoa(closedOpen) + `, "48000.01", "48600.00", "47900.00", "48500.00", "120.5", ` + itoa(closedClose) + `, "0", 100, "0", "0", "0"],
			[` + itoa(openOpen) + `, "48500.00", "48550.00", "48450.00", "48520.00", "10.1", ` + itoa(openClose) + `, "0", 10, "0", "0", "0"]
		]`))
	})
	defer server.Close()

	candles, err := client.GetRecentKlines("BTCUSDT", "1h", 20)
	require.NoError(t, err)
	require.Len(t, candles, 2)

	first := candles[0]
	assert.True(t, first.IsClosed)
	assert.True(t, first.High.Equal(decimal.RequireFromString("48600")))
	assert.True(t, first.Close.Equal(decimal.RequireFromString("48500")))
	assert.Equal(t, closedClose, first.CloseTime.UnixMilli())

	assert.False(t, candles[1].IsClosed, "still-open candle flagged unclosed")
}

func TestGetKlinesSincePassesStartTime(t *testing.T) {
	t.Parallel()
	since := time.Now().Add(-7 * time.Minute).Truncate(time.Millisecond)
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, itoa(since.UnixMilli()), r.URL.Query().Get("startTime"))
		w.Write([]byte(`[]`))
	})
	defer server.Close()

	candles, err := client.GetKlinesSince("BTCUSDT", "1m", since, 1000)
	require.NoError(t, err)
	assert.Empty(t, candles)
}

func TestSyncTimeComputesOffset(t *testing.T) {
	t.Parallel()
	serverTime := time.Now().Add(3 * time.Second).UnixMilli()
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"serverTime": ` + itoa(serverTime) + `}`))
	})
	defer server.Close()

	require.NoError(t, client.SyncTime())
	assert.InDelta(t, 3000, client.TimeOffset, 500)
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
