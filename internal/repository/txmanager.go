package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"dca-trading-btc-binance/internal/model"
)

// ErrVersionConflict is raised when an optimistic update loses the race:
// the caller supplied expectedVersion but the row has moved on.
var ErrVersionConflict = errors.New("repository: cycle state version conflict")

// ErrInvariantViolation is raised by critical updates that would drive
// capital or purchases negative.
var ErrInvariantViolation = errors.New("repository: update violates state invariants")

// UpdateStateAtomic applies a partial update under a row lock. When
// expectedVersion is non-nil the row's version must match or the update fails
// with ErrVersionConflict. Version is bumped and an audit event written in
// the same transaction.
func (s *Store) UpdateStateAtomic(id int64, update model.StateUpdate, expectedVersion *int64) (*model.CycleState, error) {
	return s.updateState(id, update, expectedVersion, model.EventStateUpdate, nil)
}

// UpdateStateCritical applies a partial update under SERIALIZABLE isolation
// and additionally rejects updates that would make capital or
// purchasesRemaining negative.
func (s *Store) UpdateStateCritical(id int64, update model.StateUpdate) (*model.CycleState, error) {
	opts := &sql.TxOptions{Isolation: sql.LevelSerializable}
	return s.updateState(id, update, nil, model.EventCriticalUpdate, opts)
}

func (s *Store) updateState(id int64, update model.StateUpdate, expectedVersion *int64, event model.EventType, txOpts *sql.TxOptions) (*model.CycleState, error) {
	var updated *model.CycleState

	run := func(tx *gorm.DB) error {
		var record CycleStateRecord
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&record, id).Error; err != nil {
			return fmt.Errorf("failed to lock cycle state %d: %w", id, err)
		}

		if expectedVersion != nil && record.Version != *expectedVersion {
			return fmt.Errorf("%w: expected %d, have %d", ErrVersionConflict, *expectedVersion, record.Version)
		}

		record.fromUpdate(update)

		if event == model.EventCriticalUpdate {
			if record.CapitalAvailable.IsNegative() {
				return fmt.Errorf("%w: capital %s", ErrInvariantViolation, record.CapitalAvailable)
			}
			if record.PurchasesRemaining < 0 {
				return fmt.Errorf("%w: purchasesRemaining %d", ErrInvariantViolation, record.PurchasesRemaining)
			}
		}

		record.Version++
		if err := tx.Save(&record).Error; err != nil {
			return fmt.Errorf("failed to save cycle state: %w", err)
		}

		audit := BotEventRecord{
			BotID:     BotID,
			EventType: string(event),
			Severity:  "info",
			Details:   marshalJSON(map[string]any{"stateId": id, "version": record.Version, "update": update}),
		}
		if err := tx.Create(&audit).Error; err != nil {
			return fmt.Errorf("failed to write audit event: %w", err)
		}

		updated = record.ToState()
		return nil
	}

	var err error
	if txOpts != nil {
		err = s.db.Transaction(run, txOpts)
	} else {
		err = s.db.Transaction(run)
	}
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// BatchItem pairs a state id with its update for BatchUpdate.
type BatchItem struct {
	ID     int64
	Update model.StateUpdate
}

// BatchUpdate applies every item inside one transaction; any failure rolls
// the whole batch back.
func (s *Store) BatchUpdate(items []BatchItem) error {
	if len(items) == 0 {
		return nil
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		for _, item := range items {
			var record CycleStateRecord
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&record, item.ID).Error; err != nil {
				return fmt.Errorf("failed to lock cycle state %d: %w", item.ID, err)
			}
			record.fromUpdate(item.Update)
			record.Version++
			if err := tx.Save(&record).Error; err != nil {
				return fmt.Errorf("failed to save cycle state %d: %w", item.ID, err)
			}
		}
		audit := BotEventRecord{
			BotID:     BotID,
			EventType: string(model.EventBatchUpdate),
			Severity:  "info",
			Details:   marshalJSON(map[string]any{"count": len(items)}),
		}
		return tx.Create(&audit).Error
	})
}
