package model

// EventType enumerates the bot_events audit log types.
type EventType string

const (
	EventStart          EventType = "START"
	EventStop           EventType = "STOP"
	EventError          EventType = "ERROR"
	EventDriftHalt      EventType = "DRIFT_HALT"
	EventTradeExecuted  EventType = "TRADE_EXECUTED"
	EventTradeFailed    EventType = "TRADE_FAILED"
	EventCycleComplete  EventType = "CYCLE_COMPLETE"
	EventConfigUpdated  EventType = "CONFIG_UPDATED"
	EventStateUpdate    EventType = "STATE_UPDATE"
	EventCriticalUpdate EventType = "CRITICAL_UPDATE"
	EventBatchUpdate    EventType = "BATCH_UPDATE"
	EventWriteAheadLog  EventType = "WRITE_AHEAD_LOG"
	EventStrategyPaused EventType = "STRATEGY_PAUSED"
	EventStrategyResume EventType = "STRATEGY_RESUMED"
	EventAthUpdated     EventType = "ATH_UPDATED"
	EventBuyExecuted    EventType = "BUY_EXECUTED"
)
