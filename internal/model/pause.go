package model

import "time"

type PauseReason string

const (
	PauseDriftDetected   PauseReason = "drift_detected"
	PauseCriticalError   PauseReason = "critical_error"
	PauseBalanceMismatch PauseReason = "balance_mismatch"
	PauseManual          PauseReason = "manual"
)

type PauseStatus string

const (
	PauseStatusPaused PauseStatus = "paused"
	PauseStatusActive PauseStatus = "active"
)

// PauseEntry is one row of the pause ledger. At most one entry per bot is in
// status "paused" at any time.
type PauseEntry struct {
	ID             int64          `json:"id"`
	BotID          int64          `json:"botId"`
	Status         PauseStatus    `json:"status"`
	Reason         PauseReason    `json:"reason"`
	Message        string         `json:"message"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	PausedAt       time.Time      `json:"pausedAt"`
	ResumedAt      *time.Time     `json:"resumedAt,omitempty"`
	ResumeMetadata map[string]any `json:"resumeMetadata,omitempty"`
}
