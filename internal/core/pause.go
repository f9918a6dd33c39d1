package core

import (
	"fmt"
	"sync"

	"dca-trading-btc-binance/internal/logger"
	"dca-trading-btc-binance/internal/model"
)

// PauseStore is the slice of the repository the pause manager needs.
type PauseStore interface {
	ActivePause() (*model.PauseEntry, error)
	SavePause(reason model.PauseReason, message string, metadata map[string]any) (*model.PauseEntry, error)
	ResolvePause(resumeMetadata map[string]any) (*model.PauseEntry, error)
}

// Notifier delivers out-of-band alerts. Best-effort: implementations must
// never propagate failures into the candle path.
type Notifier interface {
	SendAlert(message, severity string)
}

// ResumeCheck verifies the world is sane before trading restarts:
// connectivity, balances, config. Skipped on a forced resume.
type ResumeCheck func() error

// PauseManager is the two-state {active, paused} machine. The flag is a
// single shared cell readable by any task and writable only through Pause
// and Resume.
type PauseManager struct {
	store    PauseStore
	notifier Notifier

	mu     sync.RWMutex
	paused bool
}

func NewPauseManager(store PauseStore, notifier Notifier) (*PauseManager, error) {
	m := &PauseManager{store: store, notifier: notifier}

	// Pick up a pause that survived a restart.
	entry, err := store.ActivePause()
	if err != nil {
		return nil, fmt.Errorf("failed to load pause state: %w", err)
	}
	if entry != nil {
		m.paused = true
		logger.Warn("⏸️ Bot starts paused", "reason", entry.Reason, "message", entry.Message)
	}
	return m, nil
}

// IsPaused reports the current flag.
func (m *PauseManager) IsPaused() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.paused
}

// Pause halts trading. Idempotent: a second pause updates the stored reason
// without stacking entries.
func (m *PauseManager) Pause(reason model.PauseReason, message string, metadata map[string]any) error {
	m.mu.Lock()
	m.paused = true
	m.mu.Unlock()

	if _, err := m.store.SavePause(reason, message, metadata); err != nil {
		// The in-memory flag already stops the candle path; losing the
		// persisted row only costs restart continuity.
		logger.Error("Failed to persist pause state", "error", err)
		return err
	}

	logger.Error("⏸️ STRATEGY PAUSED", "reason", reason, "message", message)
	if m.notifier != nil {
		m.notifier.SendAlert(fmt.Sprintf("Strategy paused (%s): %s", reason, message), "critical")
	}
	return nil
}

// Resume transitions back to active after the check passes. Pass a nil check
// (forced resume) to skip validation.
func (m *PauseManager) Resume(check ResumeCheck, resumeMetadata map[string]any) error {
	if !m.IsPaused() {
		return nil
	}

	if check != nil {
		if err := check(); err != nil {
			return fmt.Errorf("resume validation failed: %w", err)
		}
	} else {
		if resumeMetadata == nil {
			resumeMetadata = map[string]any{}
		}
		resumeMetadata["forced"] = true
	}

	if _, err := m.store.ResolvePause(resumeMetadata); err != nil {
		return err
	}

	m.mu.Lock()
	m.paused = false
	m.mu.Unlock()

	logger.Info("▶️ Strategy resumed", "metadata", resumeMetadata)
	if m.notifier != nil {
		m.notifier.SendAlert("Strategy resumed", "info")
	}
	return nil
}
