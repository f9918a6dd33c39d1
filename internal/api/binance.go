package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"dca-trading-btc-binance/internal/logger"
	"dca-trading-btc-binance/internal/model"
)

const (
	BaseURL = "https://api.binance.com"
)

type BinanceClient struct {
	APIKey     string
	SecretKey  string
	BaseURL    string
	Client     *http.Client
	TimeOffset int64
}

func NewBinanceClient(apiKey, secretKey string) *BinanceClient {
	return &BinanceClient{
		APIKey:    apiKey,
		SecretKey: secretKey,
		BaseURL:   BaseURL,
		Client:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Ping checks REST connectivity.
func (c *BinanceClient) Ping() error {
	resp, err := c.Client.Get(fmt.Sprintf("%s/api/v3/ping", c.BaseURL))
	if err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return newAPIError(resp.StatusCode, body)
	}
	return nil
}

// SyncTime synchronizes the local time with Binance server time
func (c *BinanceClient) SyncTime() error {
	resp, err := c.Client.Get(fmt.Sprintf("%s/api/v3/time", c.BaseURL))
	if err != nil {
		return fmt.Errorf("failed to get server time: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read time response: %w", err)
	}

	var timeResp struct {
		ServerTime int64 `json:"serverTime"`
	}
	if err := json.Unmarshal(body, &timeResp); err != nil {
		return fmt.Errorf("failed to parse time response: %w", err)
	}

	localTime := time.Now().UnixMilli()
	c.TimeOffset = timeResp.ServerTime - localTime

	logger.Info("⏰ Time Synchronized", "server_time", timeResp.ServerTime, "local_time", localTime, "offset_ms", c.TimeOffset)
	return nil
}

// serverTime returns the current time adjusted by the offset.
// We subtract 1000ms as a safety bias to ensure we are slightly "behind" the
// server: Binance rejects requests > 1000ms ahead but accepts requests up to
// recvWindow behind.
func (c *BinanceClient) serverTime() int64 {
	return time.Now().UnixMilli() + c.TimeOffset - 1000
}

func (c *BinanceClient) sign(queryString string) string {
	mac := hmac.New(sha256.New, []byte(c.SecretKey))
	mac.Write([]byte(queryString))
	return hex.EncodeToString(mac.Sum(nil))
}

// signedRequest executes a signed request with timestamp/recvWindow added,
// logging the API weight header, and mapping non-2xx bodies to APIError.
func (c *BinanceClient) signedRequest(method, endpoint string, params url.Values) ([]byte, error) {
	params.Set("timestamp", strconv.FormatInt(c.serverTime(), 10))
	params.Set("recvWindow", "60000")
	params.Set("signature", c.sign(params.Encode()))

	req, err := http.NewRequest(method, fmt.Sprintf("%s%s", c.BaseURL, endpoint), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.URL.RawQuery = params.Encode()
	req.Header.Add("X-MBX-APIKEY", c.APIKey)

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	logWeight(resp)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		logger.Error("Binance API Error", "endpoint", endpoint, "status", resp.Status, "body", string(body))
		return nil, newAPIError(resp.StatusCode, body)
	}
	return body, nil
}

// logWeight logs the request-weight header at escalating levels as the
// 6000/min budget runs out.
func logWeight(resp *http.Response) {
	weight := resp.Header.Get("X-MBX-USED-WEIGHT-1M")
	if weight == "" {
		return
	}
	used, err := strconv.Atoi(weight)
	if err != nil {
		return
	}
	const limit = 6000
	switch {
	case used > 5400:
		logger.Error("🚨 CRITICAL API WEIGHT", "used", used, "limit", limit, "remaining", limit-used)
	case used > 3000:
		logger.Warn("⚠️ High API Weight Usage", "used", used, "limit", limit, "remaining", limit-used)
	}
}

type accountResponse struct {
	Balances []struct {
		Asset  string `json:"asset"`
		Free   string `json:"free"`
		Locked string `json:"locked"`
	} `json:"balances"`
}

// GetBalance returns the spot balance for a single asset. Assets the account
// has never touched come back as zero.
func (c *BinanceClient) GetBalance(asset string) (*model.Balance, error) {
	params := url.Values{}
	params.Set("omitZeroBalances", "false")

	body, err := c.signedRequest("GET", "/api/v3/account", params)
	if err != nil {
		return nil, err
	}

	var account accountResponse
	if err := json.Unmarshal(body, &account); err != nil {
		return nil, fmt.Errorf("failed to unmarshal account response: %w", err)
	}

	for _, b := range account.Balances {
		if b.Asset != asset {
			continue
		}
		free, err := decimal.NewFromString(b.Free)
		if err != nil {
			return nil, fmt.Errorf("invalid free balance %q: %w", b.Free, err)
		}
		locked, err := decimal.NewFromString(b.Locked)
		if err != nil {
			return nil, fmt.Errorf("invalid locked balance %q: %w", b.Locked, err)
		}
		return &model.Balance{Asset: asset, Free: free, Locked: locked}, nil
	}
	return &model.Balance{Asset: asset}, nil
}

type OrderRequest struct {
	Symbol           string
	Side             string
	Type             string
	TimeInForce      string
	Quantity         string
	Price            string
	NewClientOrderID string
}

type OrderResponse struct {
	Symbol              string `json:"symbol"`
	OrderId             int64  `json:"orderId"`
	ClientOrderId       string `json:"clientOrderId"`
	TransactTime        int64  `json:"transactTime"`
	Price               string `json:"price"`
	OrigQty             string `json:"origQty"`
	ExecutedQty         string `json:"executedQty"`
	CummulativeQuoteQty string `json:"cummulativeQuoteQty"`
	Status              string `json:"status"`
	Type                string `json:"type"`
	Side                string `json:"side"`
	Fills               []struct {
		Price           string `json:"price"`
		Qty             string `json:"qty"`
		Commission      string `json:"commission"`
		CommissionAsset string `json:"commissionAsset"`
		TradeID         int64  `json:"tradeId"`
	} `json:"fills"`
}

func (c *BinanceClient) CreateOrder(req OrderRequest) (*OrderResponse, error) {
	params := url.Values{}
	params.Set("symbol", req.Symbol)
	params.Set("side", req.Side)
	params.Set("type", req.Type)
	params.Set("newOrderRespType", "FULL")

	if req.TimeInForce != "" {
		params.Set("timeInForce", req.TimeInForce)
	}
	if req.Quantity != "" {
		params.Set("quantity", req.Quantity)
	}
	if req.Price != "" {
		params.Set("price", req.Price)
	}
	if req.NewClientOrderID != "" {
		params.Set("newClientOrderId", req.NewClientOrderID)
	}

	body, err := c.signedRequest("POST", "/api/v3/order", params)
	if err != nil {
		return nil, err
	}

	var orderResp OrderResponse
	if err := json.Unmarshal(body, &orderResp); err != nil {
		return nil, fmt.Errorf("failed to parse order response: %w", err)
	}
	return &orderResp, nil
}

// GetOrder looks an order up by exchange id or client order id.
func (c *BinanceClient) GetOrder(symbol string, orderID int64, clientOrderID string) (*OrderResponse, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	if orderID > 0 {
		params.Set("orderId", strconv.FormatInt(orderID, 10))
	} else if clientOrderID != "" {
		params.Set("origClientOrderId", clientOrderID)
	}

	body, err := c.signedRequest("GET", "/api/v3/order", params)
	if err != nil {
		return nil, err
	}

	var order OrderResponse
	if err := json.Unmarshal(body, &order); err != nil {
		return nil, fmt.Errorf("unmarshal error: %w", err)
	}
	return &order, nil
}

func (c *BinanceClient) GetExchangeInfo(symbol string) (*model.ExchangeInfoResponse, error) {
	reqURL := fmt.Sprintf("%s/api/v3/exchangeInfo", c.BaseURL)
	if symbol != "" {
		reqURL = fmt.Sprintf("%s?symbol=%s", reqURL, symbol)
	}

	resp, err := c.Client.Get(reqURL)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read error: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, newAPIError(resp.StatusCode, body)
	}

	var info model.ExchangeInfoResponse
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("unmarshal error: %w", err)
	}
	return &info, nil
}

type ListenKeyResponse struct {
	ListenKey string `json:"listenKey"`
}

// StartUserStream obtains a listenKey for the user-data websocket.
func (c *BinanceClient) StartUserStream() (string, error) {
	req, err := http.NewRequest("POST", fmt.Sprintf("%s/api/v3/userDataStream", c.BaseURL), nil)
	if err != nil {
		return "", err
	}
	req.Header.Add("X-MBX-APIKEY", c.APIKey)

	resp, err := c.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", newAPIError(resp.StatusCode, body)
	}

	var respKey ListenKeyResponse
	if err := json.Unmarshal(body, &respKey); err != nil {
		return "", err
	}
	return respKey.ListenKey, nil
}

func (c *BinanceClient) KeepAliveUserStream(listenKey string) error {
	return c.userStreamRequest("PUT", listenKey)
}

func (c *BinanceClient) CloseUserStream(listenKey string) error {
	return c.userStreamRequest("DELETE", listenKey)
}

func (c *BinanceClient) userStreamRequest(method, listenKey string) error {
	params := url.Values{}
	params.Set("listenKey", listenKey)

	req, err := http.NewRequest(method, fmt.Sprintf("%s/api/v3/userDataStream", c.BaseURL), nil)
	if err != nil {
		return err
	}
	req.URL.RawQuery = params.Encode()
	req.Header.Add("X-MBX-APIKEY", c.APIKey)

	resp, err := c.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return newAPIError(resp.StatusCode, body)
	}
	return nil
}
