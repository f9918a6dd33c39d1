package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// Fill is a single execution inside an order response.
type Fill struct {
	Price           decimal.Decimal `json:"price"`
	Qty             decimal.Decimal `json:"qty"`
	Commission      decimal.Decimal `json:"commission"`
	CommissionAsset string          `json:"commissionAsset"`
	TradeID         int64           `json:"tradeId,omitempty"`
}

// TradeRecord is the append-only record written after each executed order.
type TradeRecord struct {
	ID            int64           `json:"id"`
	CycleID       int64           `json:"cycleId"`
	Side          OrderSide       `json:"side"`
	OrderID       int64           `json:"orderId"`
	ClientOrderID string          `json:"clientOrderId"`
	Status        string          `json:"status"` // FILLED, PARTIAL, CANCELLED
	ExecutedPrice decimal.Decimal `json:"executedPrice"`
	ExecutedQty   decimal.Decimal `json:"executedQty"`
	QuoteQty      decimal.Decimal `json:"quoteQty"`
	FeeAsset      string          `json:"feeAsset"`
	FeeAmount     decimal.Decimal `json:"feeAmount"`
	RawFills      []Fill          `json:"rawFills,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// OrderResult is the normalized outcome of one IOC limit order: aggregate
// quantities plus fees summed per asset.
type OrderResult struct {
	OrderID             int64
	ClientOrderID       string
	Status              string
	Side                OrderSide
	LimitPrice          decimal.Decimal
	ExecutedQty         decimal.Decimal
	CummulativeQuoteQty decimal.Decimal
	AvgPrice            decimal.Decimal
	FeeBTC              decimal.Decimal
	FeeUSDT             decimal.Decimal
	FeeOther            decimal.Decimal
	FeeOtherAsset       string
	Fills               []Fill
}

// Filled reports whether anything executed.
func (r *OrderResult) Filled() bool {
	return r.ExecutedQty.IsPositive()
}

// PrimaryFee returns the dominant fee asset and amount for the trade record.
func (r *OrderResult) PrimaryFee() (string, decimal.Decimal) {
	switch {
	case r.FeeBTC.IsPositive():
		return "BTC", r.FeeBTC
	case r.FeeUSDT.IsPositive():
		return "USDT", r.FeeUSDT
	case r.FeeOther.IsPositive():
		return r.FeeOtherAsset, r.FeeOther
	default:
		return "USDT", decimal.Zero
	}
}
