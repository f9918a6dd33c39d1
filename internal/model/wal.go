package model

import "time"

type WalStatus string

const (
	WalPending       WalStatus = "pending"
	WalCompleted     WalStatus = "completed"
	WalFailed        WalStatus = "failed"
	WalRecovered     WalStatus = "recovered"
	WalUnrecoverable WalStatus = "unrecoverable"
)

// WalEntry records an intended state update before it is applied. Entries are
// stored in the event log under the WRITE_AHEAD_LOG event type; a pending
// entry that is never completed is picked up by recovery on the next boot.
type WalEntry struct {
	ID        int64          `json:"id"`
	BotID     int64          `json:"botId"`
	Status    WalStatus      `json:"status"`
	Update    StateUpdate    `json:"update"`
	Operation map[string]any `json:"operation,omitempty"`
	Error     string         `json:"error,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}
