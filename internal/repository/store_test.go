package repository

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"dca-trading-btc-binance/internal/model"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	gormDB, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{})
	require.NoError(t, err)

	// Skip auto-migration for mock-backed tests.
	return &Store{db: gormDB}, mock
}

func TestRecordTrade(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `trades`").
		WillReturnResult(sqlmock.NewResult(11, 1))
	mock.ExpectCommit()

	trade := &model.TradeRecord{
		CycleID:       1,
		Side:          model.SideBuy,
		OrderID:       12345,
		ClientOrderID: "BUY_1700000000000_abcd1234",
		Status:        "FILLED",
		ExecutedPrice: d("48645.50"),
		ExecutedQty:   d("0.00205"),
		QuoteQty:      d("99.723275"),
		FeeAsset:      "BTC",
		FeeAmount:     d("0.00000205"),
		RawFills: []model.Fill{{
			Price: d("48645.50"), Qty: d("0.00205"),
			Commission: d("0.00000205"), CommissionAsset: "BTC", TradeID: 998,
		}},
	}
	require.NoError(t, store.RecordTrade(trade))
	assert.Equal(t, int64(11), trade.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLogEventSwallowsFailures(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `bot_events`").
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	// Must not panic or propagate: audit writes never break the candle path.
	store.LogEvent(model.EventError, "error", map[string]any{"k": "v"})
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCleanupOldEventsKeepsWal(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM `bot_events` WHERE (.+)event_type <> \\?").
		WithArgs(sqlmock.AnyArg(), string(model.EventWriteAheadLog)).
		WillReturnResult(sqlmock.NewResult(0, 42))
	mock.ExpectCommit()

	n, err := store.CleanupOldEvents(90)
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
