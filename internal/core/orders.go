package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jpillora/backoff"
	"github.com/shopspring/decimal"

	"dca-trading-btc-binance/internal/api"
	"dca-trading-btc-binance/internal/logger"
	"dca-trading-btc-binance/internal/model"
	"dca-trading-btc-binance/internal/numeric"
	"dca-trading-btc-binance/internal/rules"
)

// OrderValidationError marks an order that violates exchange filters. Never
// retried; the candle continues.
type OrderValidationError struct {
	Errors []string
}

func (e *OrderValidationError) Error() string {
	return fmt.Sprintf("order validation failed: %s", strings.Join(e.Errors, "; "))
}

const maxOrderAttempts = 3

// OrderClient is the slice of the exchange client the placer needs.
type OrderClient interface {
	CreateOrder(req api.OrderRequest) (*api.OrderResponse, error)
}

// OrderEventFn receives order lifecycle events (orderPlacing, orderRetry,
// orderExecuted, orderCompleted, orderFailed).
type OrderEventFn func(event string, details map[string]any)

// OrderPlacer prepares, validates and submits IOC limit orders and parses
// their fills.
type OrderPlacer struct {
	client OrderClient
	rules  *rules.Cache
	symbol string
	events OrderEventFn

	// sleep is swappable in tests.
	sleep func(time.Duration)
}

func NewOrderPlacer(client OrderClient, rulesCache *rules.Cache, symbol string, events OrderEventFn) *OrderPlacer {
	return &OrderPlacer{
		client: client,
		rules:  rulesCache,
		symbol: symbol,
		events: events,
		sleep:  time.Sleep,
	}
}

// PlaceBuy submits an IOC limit buy for buyUsdt at the candle close price
// guarded by slippage: limit = floor((close * (1+slip)) / tick) * tick.
func (p *OrderPlacer) PlaceBuy(buyUsdt, closePrice, slipPct decimal.Decimal) (*model.OrderResult, error) {
	r, err := p.rules.GetRules(p.symbol, false)
	if err != nil {
		return nil, err
	}

	limit, err := numeric.RoundPriceToTick(numeric.BuySlippagePrice(closePrice, slipPct), r.TickSize)
	if err != nil {
		return nil, err
	}

	rawQty, err := numeric.SafeDiv(buyUsdt, limit)
	if err != nil {
		return nil, err
	}
	qty, err := numeric.RoundQuantityToStep(rawQty, r.StepSize)
	if err != nil {
		return nil, err
	}

	return p.submit(model.SideBuy, qty, limit, r)
}

// PlaceSell submits an IOC limit sell of btcQty at the candle close guarded
// by slippage: limit = floor((close * (1-slip)) / tick) * tick.
func (p *OrderPlacer) PlaceSell(btcQty, closePrice, slipPct decimal.Decimal) (*model.OrderResult, error) {
	r, err := p.rules.GetRules(p.symbol, false)
	if err != nil {
		return nil, err
	}

	limit, err := numeric.RoundPriceToTick(numeric.SellSlippagePrice(closePrice, slipPct), r.TickSize)
	if err != nil {
		return nil, err
	}
	if !limit.IsPositive() {
		return nil, &OrderValidationError{Errors: []string{fmt.Sprintf("sell limit price %s not positive", limit)}}
	}

	qty, err := numeric.RoundQuantityToStep(btcQty, r.StepSize)
	if err != nil {
		return nil, err
	}

	return p.submit(model.SideSell, qty, limit, r)
}

func (p *OrderPlacer) submit(side model.OrderSide, qty, limit decimal.Decimal, r *model.SymbolTradingRules) (*model.OrderResult, error) {
	validation := rules.Validate(r, rules.OrderCheck{Qty: qty, Price: limit})
	if !validation.Valid {
		p.emit("orderFailed", map[string]any{"side": side, "errors": validation.Errors})
		return nil, &OrderValidationError{Errors: validation.Errors}
	}

	clientOrderID := newClientOrderID(side)
	req := api.OrderRequest{
		Symbol:           p.symbol,
		Side:             string(side),
		Type:             "LIMIT",
		TimeInForce:      "IOC",
		Quantity:         qty.String(),
		Price:            limit.String(),
		NewClientOrderID: clientOrderID,
	}

	p.emit("orderPlacing", map[string]any{
		"side": side, "qty": qty.String(), "price": limit.String(), "clientOrderId": clientOrderID,
	})
	logger.Info("📤 Placing IOC order", "side", side, "qty", qty, "limit", limit, "client_order_id", clientOrderID)

	boff := &backoff.Backoff{Min: time.Second, Factor: 2, Jitter: false}
	var resp *api.OrderResponse
	var lastErr error
	for attempt := 1; attempt <= maxOrderAttempts; attempt++ {
		resp, lastErr = p.client.CreateOrder(req)
		if lastErr == nil {
			break
		}
		if !api.IsTransient(lastErr) || attempt == maxOrderAttempts {
			p.emit("orderFailed", map[string]any{"side": side, "clientOrderId": clientOrderID, "error": lastErr.Error()})
			return nil, lastErr
		}
		wait := boff.Duration()
		p.emit("orderRetry", map[string]any{"side": side, "attempt": attempt, "wait": wait.String()})
		logger.Warn("🔁 Transient order error, retrying", "side", side, "attempt", attempt, "wait", wait, "error", lastErr)
		p.sleep(wait)
	}
	if lastErr != nil {
		return nil, lastErr
	}

	result, err := parseOrderResponse(side, limit, resp)
	if err != nil {
		return nil, err
	}

	if result.Filled() {
		p.emit("orderExecuted", map[string]any{
			"side": side, "executedQty": result.ExecutedQty.String(), "avgPrice": result.AvgPrice.String(),
		})
	}
	p.emit("orderCompleted", map[string]any{"side": side, "status": result.Status, "orderId": result.OrderID})
	return result, nil
}

func (p *OrderPlacer) emit(event string, details map[string]any) {
	if p.events != nil {
		p.events(event, details)
	}
}

// newClientOrderID builds SIDE_<unixms>_<random>.
func newClientOrderID(side model.OrderSide) string {
	return fmt.Sprintf("%s_%d_%s", side, time.Now().UnixMilli(), uuid.NewString()[:8])
}

// parseOrderResponse normalizes the venue response: aggregate quantities plus
// fees summed per commission asset.
func parseOrderResponse(side model.OrderSide, limit decimal.Decimal, resp *api.OrderResponse) (*model.OrderResult, error) {
	executedQty, err := decimal.NewFromString(resp.ExecutedQty)
	if err != nil {
		return nil, fmt.Errorf("invalid executedQty %q: %w", resp.ExecutedQty, err)
	}
	cumQuote, err := decimal.NewFromString(resp.CummulativeQuoteQty)
	if err != nil {
		return nil, fmt.Errorf("invalid cummulativeQuoteQty %q: %w", resp.CummulativeQuoteQty, err)
	}

	result := &model.OrderResult{
		OrderID:             resp.OrderId,
		ClientOrderID:       resp.ClientOrderId,
		Status:              resp.Status,
		Side:                side,
		LimitPrice:          limit,
		ExecutedQty:         executedQty,
		CummulativeQuoteQty: cumQuote,
	}

	if executedQty.IsPositive() {
		result.AvgPrice = cumQuote.Div(executedQty)
	}

	for _, f := range resp.Fills {
		price, err := decimal.NewFromString(f.Price)
		if err != nil {
			return nil, fmt.Errorf("invalid fill price %q: %w", f.Price, err)
		}
		qty, err := decimal.NewFromString(f.Qty)
		if err != nil {
			return nil, fmt.Errorf("invalid fill qty %q: %w", f.Qty, err)
		}
		commission, err := decimal.NewFromString(f.Commission)
		if err != nil {
			return nil, fmt.Errorf("invalid fill commission %q: %w", f.Commission, err)
		}

		result.Fills = append(result.Fills, model.Fill{
			Price:           price,
			Qty:             qty,
			Commission:      commission,
			CommissionAsset: f.CommissionAsset,
			TradeID:         f.TradeID,
		})

		switch f.CommissionAsset {
		case "BTC":
			result.FeeBTC = result.FeeBTC.Add(commission)
		case "USDT":
			result.FeeUSDT = result.FeeUSDT.Add(commission)
		default:
			result.FeeOther = result.FeeOther.Add(commission)
			result.FeeOtherAsset = f.CommissionAsset
		}
	}

	return result, nil
}
