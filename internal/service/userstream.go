package service

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"dca-trading-btc-binance/internal/api"
	"dca-trading-btc-binance/internal/logger"
	"dca-trading-btc-binance/internal/model"
)

const (
	StreamBaseURL = "wss://stream.binance.com:9443/ws"
)

// accountPositionEvent is the outboundAccountPosition payload from the
// user-data stream.
type accountPositionEvent struct {
	Event     string `json:"e"`
	EventTime int64  `json:"E"`
	Balances  []struct {
		Asset  string `json:"a"`
		Free   string `json:"f"`
		Locked string `json:"l"`
	} `json:"B"`
}

// UserStreamService keeps a live snapshot of account balances from the
// user-data stream, exposed through Snapshot. The per-candle drift check,
// the health loop and the startup validator do not read it; they use REST
// balances.
type UserStreamService struct {
	Binance   *api.BinanceClient
	ListenKey string
	WSConn    *websocket.Conn
	StopCh    chan struct{}

	mu       sync.RWMutex
	balances map[string]model.Balance
	updated  time.Time
}

func NewUserStreamService(binance *api.BinanceClient) *UserStreamService {
	return &UserStreamService{
		Binance:  binance,
		balances: make(map[string]model.Balance),
	}
}

// Start acquires a listenKey, connects, and blocks in the read loop until
// the connection drops. Callers run it in a retry loop.
func (s *UserStreamService) Start() error {
	key, err := s.Binance.StartUserStream()
	if err != nil {
		return fmt.Errorf("failed to get listen key: %w", err)
	}
	s.ListenKey = key

	url := fmt.Sprintf("%s/%s", StreamBaseURL, s.ListenKey)
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to websocket: %w", err)
	}
	s.WSConn = c
	logger.Info("📡 User-data stream connected")

	s.StopCh = make(chan struct{})
	go s.keepAliveLoop()

	s.readLoop()
	return nil
}

// keepAliveLoop refreshes the listenKey every 30 minutes; Binance expires
// keys after 60.
func (s *UserStreamService) keepAliveLoop() {
	ticker := time.NewTicker(30 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.StopCh:
			return
		case <-ticker.C:
			if err := s.Binance.KeepAliveUserStream(s.ListenKey); err != nil {
				logger.Error("❌ Failed to keep alive listen key", "error", err)
			} else {
				logger.Debug("💓 ListenKey KeepAlive sent")
			}
		}
	}
}

func (s *UserStreamService) readLoop() {
	defer func() {
		if s.WSConn != nil {
			s.WSConn.Close()
		}
		logger.Warn("🔌 User-data stream closed")
	}()

	for {
		select {
		case <-s.StopCh:
			return
		default:
			_, message, err := s.WSConn.ReadMessage()
			if err != nil {
				logger.Error("❌ User-data stream read error", "error", err)
				return
			}

			var event accountPositionEvent
			if err := json.Unmarshal(message, &event); err != nil {
				logger.Error("❌ Failed to parse user-data message", "error", err)
				continue
			}
			if event.Event != "outboundAccountPosition" {
				continue
			}
			s.applyBalances(event)
		}
	}
}

func (s *UserStreamService) applyBalances(event accountPositionEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, b := range event.Balances {
		free, err := decimal.NewFromString(b.Free)
		if err != nil {
			continue
		}
		locked, err := decimal.NewFromString(b.Locked)
		if err != nil {
			continue
		}
		s.balances[b.Asset] = model.Balance{Asset: b.Asset, Free: free, Locked: locked}
	}
	s.updated = time.UnixMilli(event.EventTime)
}

// Snapshot returns the cached balance for an asset plus the event time of
// the last account update.
func (s *UserStreamService) Snapshot(asset string) (model.Balance, time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.balances[asset]
	return b, s.updated, ok
}

func (s *UserStreamService) Stop() error {
	logger.Info("🛑 Stopping user-data stream...")
	if s.StopCh != nil {
		close(s.StopCh)
	}
	if s.ListenKey != "" {
		_ = s.Binance.CloseUserStream(s.ListenKey)
	}
	if s.WSConn != nil {
		return s.WSConn.Close()
	}
	return nil
}
