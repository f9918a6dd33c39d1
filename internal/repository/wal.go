package repository

import (
	"encoding/json"
	"fmt"

	"dca-trading-btc-binance/internal/logger"
	"dca-trading-btc-binance/internal/model"
)

// walPayload is the Details JSON of a WRITE_AHEAD_LOG bot_events row.
// StateVersion is the cycle state version observed when the update was
// proposed; recovery uses it to decide whether the update still applies.
type walPayload struct {
	Status       model.WalStatus   `json:"status"`
	StateID      int64             `json:"stateId"`
	StateVersion int64             `json:"stateVersion"`
	Update       model.StateUpdate `json:"update"`
	Operation    map[string]any    `json:"operation,omitempty"`
	Error        string            `json:"error,omitempty"`
}

// ExecuteWithWAL appends a pending WAL entry, applies the update atomically,
// then marks the entry completed. On failure the entry is marked failed and
// the error propagated; a crash in between leaves the entry pending for
// RecoverIncompleteWAL.
func (s *Store) ExecuteWithWAL(id int64, update model.StateUpdate, operation map[string]any) (*model.CycleState, error) {
	current, err := s.LoadState(id)
	if err != nil {
		return nil, err
	}

	payload := walPayload{
		Status:       model.WalPending,
		StateID:      id,
		StateVersion: current.Version,
		Update:       update,
		Operation:    operation,
	}
	row := BotEventRecord{
		BotID:     BotID,
		EventType: string(model.EventWriteAheadLog),
		Severity:  "info",
		Details:   marshalJSON(payload),
	}
	if err := s.db.Create(&row).Error; err != nil {
		return nil, fmt.Errorf("failed to append WAL entry: %w", err)
	}

	version := current.Version
	updated, err := s.UpdateStateAtomic(id, update, &version)
	if err != nil {
		payload.Status = model.WalFailed
		payload.Error = err.Error()
		s.updateWalRow(row.ID, payload)
		return nil, err
	}

	payload.Status = model.WalCompleted
	s.updateWalRow(row.ID, payload)
	return updated, nil
}

// RecoveryReport summarizes one WAL recovery scan.
type RecoveryReport struct {
	Recovered int
	Failed    int
	Total     int
}

// RecoverIncompleteWAL scans pending WAL entries oldest-first and settles
// each one: reapplied when the state version still matches, marked recovered
// without change when the state has moved past it, or unrecoverable on error.
func (s *Store) RecoverIncompleteWAL(id int64) (*RecoveryReport, error) {
	var rows []BotEventRecord
	err := s.db.
		Where("bot_id = ? AND event_type = ?", BotID, string(model.EventWriteAheadLog)).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to scan WAL entries: %w", err)
	}

	report := &RecoveryReport{}
	for _, row := range rows {
		var payload walPayload
		if err := json.Unmarshal([]byte(row.Details), &payload); err != nil {
			logger.Error("Unparseable WAL entry", "wal_id", row.ID, "error", err)
			continue
		}
		if payload.Status != model.WalPending || payload.StateID != id {
			continue
		}
		report.Total++

		state, err := s.LoadState(id)
		if err != nil {
			return report, err
		}

		switch {
		case state.Version == payload.StateVersion:
			version := payload.StateVersion
			if _, err := s.UpdateStateAtomic(id, payload.Update, &version); err != nil {
				payload.Status = model.WalUnrecoverable
				payload.Error = err.Error()
				s.updateWalRow(row.ID, payload)
				report.Failed++
				logger.Error("❌ WAL entry unrecoverable", "wal_id", row.ID, "error", err)
				continue
			}
			payload.Status = model.WalRecovered
			s.updateWalRow(row.ID, payload)
			report.Recovered++
			logger.Info("♻️ WAL entry reapplied", "wal_id", row.ID, "state_version", version)

		case state.Version > payload.StateVersion:
			// The update landed (or was superseded) before the crash; nothing
			// to reapply.
			payload.Status = model.WalRecovered
			s.updateWalRow(row.ID, payload)
			report.Recovered++
			logger.Info("♻️ WAL entry already applied", "wal_id", row.ID)

		default:
			payload.Status = model.WalUnrecoverable
			payload.Error = fmt.Sprintf("state version %d behind WAL version %d", state.Version, payload.StateVersion)
			s.updateWalRow(row.ID, payload)
			report.Failed++
			logger.Error("❌ WAL entry unrecoverable", "wal_id", row.ID, "error", payload.Error)
		}
	}

	if report.Total > 0 {
		logger.Info("🧹 WAL recovery finished", "recovered", report.Recovered, "failed", report.Failed, "total", report.Total)
	}
	return report, nil
}

func (s *Store) updateWalRow(rowID int64, payload walPayload) {
	err := s.db.Model(&BotEventRecord{}).
		Where("id = ?", rowID).
		Update("details", marshalJSON(payload)).Error
	if err != nil {
		logger.Error("Failed to update WAL entry", "wal_id", rowID, "error", err)
	}
}
