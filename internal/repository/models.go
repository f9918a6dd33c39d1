package repository

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"dca-trading-btc-binance/internal/config"
	"dca-trading-btc-binance/internal/model"
)

// StrategyConfigRecord is the database model for strategy_config.
type StrategyConfigRecord struct {
	ID                 int64           `gorm:"primaryKey;autoIncrement"`
	Timeframe          string          `gorm:"type:varchar(8);not null"`
	DropPct            decimal.Decimal `gorm:"type:decimal(12,8);not null"`
	RisePct            decimal.Decimal `gorm:"type:decimal(12,8);not null"`
	MaxPurchases       int             `gorm:"not null"`
	MinBuyUsdt         decimal.Decimal `gorm:"type:decimal(30,8);not null"`
	InitialCapitalUsdt decimal.Decimal `gorm:"type:decimal(30,8);not null"`
	SlippageBuyPct     decimal.Decimal `gorm:"type:decimal(12,8);not null"`
	SlippageSellPct    decimal.Decimal `gorm:"type:decimal(12,8);not null"`
	IsActive           bool            `gorm:"not null;index"`
	CreatedAt          time.Time       `gorm:"autoCreateTime"`
	UpdatedAt          time.Time       `gorm:"autoUpdateTime"`
}

func (StrategyConfigRecord) TableName() string { return "strategy_config" }

func (r *StrategyConfigRecord) ToConfig() *config.StrategyConfig {
	return &config.StrategyConfig{
		ID:                 r.ID,
		Timeframe:          r.Timeframe,
		DropPct:            r.DropPct,
		RisePct:            r.RisePct,
		MaxPurchases:       r.MaxPurchases,
		MinBuyUsdt:         r.MinBuyUsdt,
		InitialCapitalUsdt: r.InitialCapitalUsdt,
		SlippageBuyPct:     r.SlippageBuyPct,
		SlippageSellPct:    r.SlippageSellPct,
		IsActive:           r.IsActive,
	}
}

// CycleStateRecord is the database model for cycle_state. Version increases
// on every write and backs the optimistic concurrency check.
type CycleStateRecord struct {
	ID                 int64            `gorm:"primaryKey;autoIncrement"`
	Status             string           `gorm:"type:varchar(16);not null"`
	CapitalAvailable   decimal.Decimal  `gorm:"type:decimal(30,8);not null"`
	BtcAccumulated     decimal.Decimal  `gorm:"type:decimal(30,8);not null"`
	BtcAccumNet        decimal.Decimal  `gorm:"type:decimal(30,8);not null"`
	PurchasesRemaining int              `gorm:"not null"`
	CostAccumUsdt      decimal.Decimal  `gorm:"type:decimal(30,8);not null"`
	ReferencePrice     *decimal.Decimal `gorm:"type:decimal(30,8)"`
	AthPrice           decimal.Decimal  `gorm:"type:decimal(30,8);not null"`
	BuyAmount          decimal.Decimal  `gorm:"type:decimal(30,8);not null"`
	Version            int64            `gorm:"not null"`
	UpdatedAt          time.Time        `gorm:"autoUpdateTime"`
}

func (CycleStateRecord) TableName() string { return "cycle_state" }

func (r *CycleStateRecord) ToState() *model.CycleState {
	s := &model.CycleState{
		ID:                 r.ID,
		Status:             model.CycleStatus(r.Status),
		CapitalAvailable:   r.CapitalAvailable,
		BtcAccumulated:     r.BtcAccumulated,
		BtcAccumNet:        r.BtcAccumNet,
		PurchasesRemaining: r.PurchasesRemaining,
		CostAccumUsdt:      r.CostAccumUsdt,
		AthPrice:           r.AthPrice,
		BuyAmount:          r.BuyAmount,
		Version:            r.Version,
		UpdatedAt:          r.UpdatedAt,
	}
	if r.ReferencePrice != nil {
		ref := *r.ReferencePrice
		s.ReferencePrice = &ref
	}
	return s
}

func (r *CycleStateRecord) fromUpdate(u model.StateUpdate) {
	state := r.ToState()
	u.Apply(state)
	r.Status = string(state.Status)
	r.CapitalAvailable = state.CapitalAvailable
	r.BtcAccumulated = state.BtcAccumulated
	r.BtcAccumNet = state.BtcAccumNet
	r.PurchasesRemaining = state.PurchasesRemaining
	r.CostAccumUsdt = state.CostAccumUsdt
	r.ReferencePrice = state.ReferencePrice
	r.AthPrice = state.AthPrice
	r.BuyAmount = state.BuyAmount
}

// TradeRecordRow is the database model for trades.
type TradeRecordRow struct {
	ID            int64           `gorm:"primaryKey;autoIncrement"`
	CycleID       int64           `gorm:"index;not null"`
	Side          string          `gorm:"type:varchar(8);not null"`
	OrderID       int64           `gorm:"not null"`
	ClientOrderID string          `gorm:"type:varchar(64);not null;index"`
	Status        string          `gorm:"type:varchar(16);not null"`
	ExecutedPrice decimal.Decimal `gorm:"type:decimal(30,8);not null"`
	ExecutedQty   decimal.Decimal `gorm:"type:decimal(30,8);not null"`
	QuoteQty      decimal.Decimal `gorm:"type:decimal(30,8);not null"`
	FeeAsset      string          `gorm:"type:varchar(16)"`
	FeeAmount     decimal.Decimal `gorm:"type:decimal(30,8);not null"`
	RawFills      string          `gorm:"type:json"`
	CreatedAt     time.Time       `gorm:"autoCreateTime;index"`
}

func (TradeRecordRow) TableName() string { return "trades" }

// BotEventRecord is the database model for bot_events, the append-only audit
// log. WAL entries live here under event_type WRITE_AHEAD_LOG.
type BotEventRecord struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	BotID     int64     `gorm:"index;not null"`
	EventType string    `gorm:"type:varchar(32);not null;index"`
	Severity  string    `gorm:"type:varchar(16);not null"`
	Details   string    `gorm:"type:json"`
	CreatedAt time.Time `gorm:"autoCreateTime;index"`
}

func (BotEventRecord) TableName() string { return "bot_events" }

// PauseStateRecord is the database model for pause_states.
type PauseStateRecord struct {
	ID             int64      `gorm:"primaryKey;autoIncrement"`
	BotID          int64      `gorm:"index;not null"`
	Status         string     `gorm:"type:varchar(8);not null;index"`
	ReasonKind     string     `gorm:"type:varchar(32);not null"`
	Message        string     `gorm:"type:text"`
	Metadata       string     `gorm:"type:json"`
	PausedAt       time.Time  `gorm:"not null"`
	ResumedAt      *time.Time `gorm:""`
	ResumeMetadata string     `gorm:"type:json"`
}

func (PauseStateRecord) TableName() string { return "pause_states" }

func (r *PauseStateRecord) ToEntry() (*model.PauseEntry, error) {
	entry := &model.PauseEntry{
		ID:        r.ID,
		BotID:     r.BotID,
		Status:    model.PauseStatus(r.Status),
		Reason:    model.PauseReason(r.ReasonKind),
		Message:   r.Message,
		PausedAt:  r.PausedAt,
		ResumedAt: r.ResumedAt,
	}
	if r.Metadata != "" {
		if err := json.Unmarshal([]byte(r.Metadata), &entry.Metadata); err != nil {
			return nil, fmt.Errorf("invalid pause metadata: %w", err)
		}
	}
	if r.ResumeMetadata != "" {
		if err := json.Unmarshal([]byte(r.ResumeMetadata), &entry.ResumeMetadata); err != nil {
			return nil, fmt.Errorf("invalid resume metadata: %w", err)
		}
	}
	return entry, nil
}

func marshalJSON(v any) string {
	if v == nil {
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
