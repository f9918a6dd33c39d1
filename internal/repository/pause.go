package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"dca-trading-btc-binance/internal/model"
)

// ActivePause returns the current paused row, or nil when the bot is active.
func (s *Store) ActivePause() (*model.PauseEntry, error) {
	var row PauseStateRecord
	err := s.db.
		Where("bot_id = ? AND status = ?", BotID, string(model.PauseStatusPaused)).
		Order("id DESC").First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load pause state: %w", err)
	}
	return row.ToEntry()
}

// SavePause records a pause. Idempotent: when a paused row already exists its
// reason and metadata are updated in place instead of stacking a second row.
func (s *Store) SavePause(reason model.PauseReason, message string, metadata map[string]any) (*model.PauseEntry, error) {
	var row PauseStateRecord
	err := s.db.
		Where("bot_id = ? AND status = ?", BotID, string(model.PauseStatusPaused)).
		Order("id DESC").First(&row).Error

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		row = PauseStateRecord{
			BotID:      BotID,
			Status:     string(model.PauseStatusPaused),
			ReasonKind: string(reason),
			Message:    message,
			Metadata:   marshalJSON(metadata),
			PausedAt:   time.Now(),
		}
		if err := s.db.Create(&row).Error; err != nil {
			return nil, fmt.Errorf("failed to create pause state: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to load pause state: %w", err)
	default:
		row.ReasonKind = string(reason)
		row.Message = message
		row.Metadata = marshalJSON(metadata)
		if err := s.db.Save(&row).Error; err != nil {
			return nil, fmt.Errorf("failed to update pause state: %w", err)
		}
	}

	s.LogEvent(model.EventStrategyPaused, "error", map[string]any{
		"reason":  string(reason),
		"message": message,
	})
	return row.ToEntry()
}

// ResolvePause transitions the active paused row back to active.
func (s *Store) ResolvePause(resumeMetadata map[string]any) (*model.PauseEntry, error) {
	var row PauseStateRecord
	err := s.db.
		Where("bot_id = ? AND status = ?", BotID, string(model.PauseStatusPaused)).
		Order("id DESC").First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load pause state: %w", err)
	}

	now := time.Now()
	row.Status = string(model.PauseStatusActive)
	row.ResumedAt = &now
	row.ResumeMetadata = marshalJSON(resumeMetadata)
	if err := s.db.Save(&row).Error; err != nil {
		return nil, fmt.Errorf("failed to resolve pause state: %w", err)
	}

	s.LogEvent(model.EventStrategyResume, "info", resumeMetadata)
	return row.ToEntry()
}
