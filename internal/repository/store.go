// Package repository is the persistence layer: a MySQL store owning the
// strategy config, the singleton cycle state, the trade and event logs, the
// pause ledger, and the transactional state-update operations.
package repository

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"dca-trading-btc-binance/internal/config"
	"dca-trading-btc-binance/internal/logger"
	"dca-trading-btc-binance/internal/model"
)

// BotID identifies the single bot instance in shared tables.
const BotID int64 = 1

type Store struct {
	db *gorm.DB
}

// NewStore connects to MySQL and migrates the schema.
// dsn format: "user:password@tcp(host:port)/dbname?charset=utf8mb4&parseTime=True&loc=UTC"
func NewStore(dsn string) (*Store, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MySQL: %w", err)
	}
	return NewStoreWithDB(db)
}

// NewStoreWithDB wraps an existing GORM DB instance.
func NewStoreWithDB(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(
		&StrategyConfigRecord{},
		&CycleStateRecord{},
		&TradeRecordRow{},
		&BotEventRecord{},
		&PauseStateRecord{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying DB: %w", err)
	}
	return sqlDB.Close()
}

// Ping runs a trivial query, used by the startup validator.
func (s *Store) Ping() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// DB returns the underlying GORM DB instance for advanced queries.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// LoadActiveConfig returns the active strategy_config row, seeding a default
// one on first boot. The returned config is validated.
func (s *Store) LoadActiveConfig(initialCapital decimal.Decimal) (*config.StrategyConfig, error) {
	var record StrategyConfigRecord
	err := s.db.Where("is_active = ?", true).Order("id DESC").First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		seeded := config.DefaultStrategyConfig(initialCapital)
		record = StrategyConfigRecord{
			Timeframe:          seeded.Timeframe,
			DropPct:            seeded.DropPct,
			RisePct:            seeded.RisePct,
			MaxPurchases:       seeded.MaxPurchases,
			MinBuyUsdt:         seeded.MinBuyUsdt,
			InitialCapitalUsdt: seeded.InitialCapitalUsdt,
			SlippageBuyPct:     seeded.SlippageBuyPct,
			SlippageSellPct:    seeded.SlippageSellPct,
			IsActive:           true,
		}
		if err := s.db.Create(&record).Error; err != nil {
			return nil, fmt.Errorf("failed to seed strategy config: %w", err)
		}
		logger.Info("🌱 Seeded default strategy config", "timeframe", record.Timeframe)
		s.LogEvent(model.EventConfigUpdated, "info", map[string]any{"seeded": true})
	} else if err != nil {
		return nil, fmt.Errorf("failed to load strategy config: %w", err)
	}

	cfg := record.ToConfig()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("strategy config invalid: %w", err)
	}
	return cfg, nil
}

// LoadOrCreateState returns the singleton cycle state, creating it from the
// configured initial capital on first boot.
func (s *Store) LoadOrCreateState(cfg *config.StrategyConfig) (*model.CycleState, error) {
	var record CycleStateRecord
	err := s.db.Order("id ASC").First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		record = CycleStateRecord{
			Status:             string(model.StatusReady),
			CapitalAvailable:   cfg.InitialCapitalUsdt,
			BtcAccumulated:     decimal.Zero,
			BtcAccumNet:        decimal.Zero,
			PurchasesRemaining: cfg.MaxPurchases,
			CostAccumUsdt:      decimal.Zero,
			AthPrice:           decimal.Zero,
			BuyAmount:          decimal.Zero,
			Version:            1,
		}
		if err := s.db.Create(&record).Error; err != nil {
			return nil, fmt.Errorf("failed to create cycle state: %w", err)
		}
		logger.Info("🌱 Created initial cycle state", "capital", cfg.InitialCapitalUsdt)
	} else if err != nil {
		return nil, fmt.Errorf("failed to load cycle state: %w", err)
	}
	return record.ToState(), nil
}

// LoadState reloads the persisted authoritative state.
func (s *Store) LoadState(id int64) (*model.CycleState, error) {
	var record CycleStateRecord
	if err := s.db.First(&record, id).Error; err != nil {
		return nil, fmt.Errorf("failed to load cycle state %d: %w", id, err)
	}
	return record.ToState(), nil
}

// RecordTrade appends a trade row. Trades are written once and never updated.
func (s *Store) RecordTrade(t *model.TradeRecord) error {
	row := TradeRecordRow{
		CycleID:       t.CycleID,
		Side:          string(t.Side),
		OrderID:       t.OrderID,
		ClientOrderID: t.ClientOrderID,
		Status:        t.Status,
		ExecutedPrice: t.ExecutedPrice,
		ExecutedQty:   t.ExecutedQty,
		QuoteQty:      t.QuoteQty,
		FeeAsset:      t.FeeAsset,
		FeeAmount:     t.FeeAmount,
		RawFills:      marshalJSON(t.RawFills),
	}
	if err := s.db.Create(&row).Error; err != nil {
		return fmt.Errorf("failed to record trade: %w", err)
	}
	t.ID = row.ID
	return nil
}

// LogEvent appends a bot_events row. Best-effort: failures are logged, not
// propagated, so audit writes never break the candle path.
func (s *Store) LogEvent(eventType model.EventType, severity string, details map[string]any) {
	row := BotEventRecord{
		BotID:     BotID,
		EventType: string(eventType),
		Severity:  severity,
		Details:   marshalJSON(details),
	}
	if err := s.db.Create(&row).Error; err != nil {
		logger.Error("Failed to write bot event", "event_type", eventType, "error", err)
	}
}

// CleanupOldEvents deletes non-WAL events older than retentionDays.
// WAL entries are never deleted, whatever their status.
func (s *Store) CleanupOldEvents(retentionDays int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	res := s.db.
		Where("created_at < ? AND event_type <> ?", cutoff, string(model.EventWriteAheadLog)).
		Delete(&BotEventRecord{})
	if res.Error != nil {
		return 0, fmt.Errorf("event cleanup failed: %w", res.Error)
	}
	return res.RowsAffected, nil
}
