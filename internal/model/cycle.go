package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type CycleStatus string

const (
	StatusReady   CycleStatus = "READY"
	StatusHolding CycleStatus = "HOLDING"
	StatusPaused  CycleStatus = "PAUSED"
)

// CycleState is the singleton strategy state. It is only ever mutated through
// the repository's transactional updates; everything else works on copies.
//
// Invariants: capitalAvailable >= 0, purchasesRemaining >= 0, and while
// btcAccumNet > 0 the reference price equals costAccumUsdt / btcAccumNet.
type CycleState struct {
	ID                 int64            `json:"id"`
	Status             CycleStatus      `json:"status"`
	CapitalAvailable   decimal.Decimal  `json:"capitalAvailable"`
	BtcAccumulated     decimal.Decimal  `json:"btcAccumulated"`
	BtcAccumNet        decimal.Decimal  `json:"btcAccumNet"`
	PurchasesRemaining int              `json:"purchasesRemaining"`
	CostAccumUsdt      decimal.Decimal  `json:"costAccumUsdt"`
	ReferencePrice     *decimal.Decimal `json:"referencePrice,omitempty"`
	AthPrice           decimal.Decimal  `json:"athPrice"`
	BuyAmount          decimal.Decimal  `json:"buyAmount"`
	Version            int64            `json:"version"`
	UpdatedAt          time.Time        `json:"updatedAt"`
}

// IsHolding reports whether the cycle currently holds BTC.
func (s *CycleState) IsHolding() bool {
	return s.BtcAccumulated.IsPositive()
}

// StateUpdate is a partial update applied to CycleState. Nil fields are left
// untouched. ClearReference distinguishes "set reference to nil" from
// "don't touch reference"; it wins over ReferencePrice when both are set.
type StateUpdate struct {
	Status             *CycleStatus     `json:"status,omitempty"`
	CapitalAvailable   *decimal.Decimal `json:"capitalAvailable,omitempty"`
	BtcAccumulated     *decimal.Decimal `json:"btcAccumulated,omitempty"`
	BtcAccumNet        *decimal.Decimal `json:"btcAccumNet,omitempty"`
	PurchasesRemaining *int             `json:"purchasesRemaining,omitempty"`
	CostAccumUsdt      *decimal.Decimal `json:"costAccumUsdt,omitempty"`
	ReferencePrice     *decimal.Decimal `json:"referencePrice,omitempty"`
	ClearReference     bool             `json:"clearReference,omitempty"`
	AthPrice           *decimal.Decimal `json:"athPrice,omitempty"`
	BuyAmount          *decimal.Decimal `json:"buyAmount,omitempty"`
}

// Apply folds the update into the state. Version and UpdatedAt are owned by
// the repository and not touched here.
func (u StateUpdate) Apply(s *CycleState) {
	if u.Status != nil {
		s.Status = *u.Status
	}
	if u.CapitalAvailable != nil {
		s.CapitalAvailable = *u.CapitalAvailable
	}
	if u.BtcAccumulated != nil {
		s.BtcAccumulated = *u.BtcAccumulated
	}
	if u.BtcAccumNet != nil {
		s.BtcAccumNet = *u.BtcAccumNet
	}
	if u.PurchasesRemaining != nil {
		s.PurchasesRemaining = *u.PurchasesRemaining
	}
	if u.CostAccumUsdt != nil {
		s.CostAccumUsdt = *u.CostAccumUsdt
	}
	if u.ClearReference {
		s.ReferencePrice = nil
	} else if u.ReferencePrice != nil {
		ref := *u.ReferencePrice
		s.ReferencePrice = &ref
	}
	if u.AthPrice != nil {
		s.AthPrice = *u.AthPrice
	}
	if u.BuyAmount != nil {
		s.BuyAmount = *u.BuyAmount
	}
}

// IsEmpty reports whether the update would change nothing.
func (u StateUpdate) IsEmpty() bool {
	return u.Status == nil && u.CapitalAvailable == nil && u.BtcAccumulated == nil &&
		u.BtcAccumNet == nil && u.PurchasesRemaining == nil && u.CostAccumUsdt == nil &&
		u.ReferencePrice == nil && !u.ClearReference && u.AthPrice == nil && u.BuyAmount == nil
}
