package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/talkmeter/server/internal/adapter/outbound/storetest"
	"github.com/talkmeter/server/internal/model"
	"github.com/talkmeter/server/internal/port/outbound"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestDB opens a migrated SQLite database in a temp file.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	// A file instead of :memory: so every pooled connection sees the same data.
	f, err := os.CreateTemp("", "ledger-test-*.db")
	require.NoError(t, err)
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := gorm.Open(sqlite.Open(f.Name()+"?_txlock=immediate&_busy_timeout=5000"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, AutoMigrate(db))
	return db
}

func TestLedgerStore_Contract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) outbound.LedgerStorePort {
		return NewLedgerStore(setupTestDB(t))
	}, storetest.Options{})
}

// TestLedgerStore_ContractPostgres runs against a live server when
// CHATLEDGER_TEST_POSTGRES_DSN is set. Tables are truncated per subtest.
func TestLedgerStore_ContractPostgres(t *testing.T) {
	dsn := os.Getenv("CHATLEDGER_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("CHATLEDGER_TEST_POSTGRES_DSN not set")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))

	storetest.Run(t, func(t *testing.T) outbound.LedgerStorePort {
		require.NoError(t, db.Exec("TRUNCATE accounts, interactions, payments").Error)
		return NewLedgerStore(db)
	}, storetest.Options{})
}

func TestLedgerStore_DriverErrorsAreTransient(t *testing.T) {
	db := setupTestDB(t)
	store := NewLedgerStore(db)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	_, err = store.GetAccount(context.Background(), 1)
	assert.ErrorIs(t, err, outbound.ErrStorageUnavailable)

	err = store.Atomic(context.Background(), 1, func(tx outbound.LedgerTx) error {
		_, err := tx.CreateAccount(&model.Account{ID: 1})
		return err
	})
	assert.ErrorIs(t, err, outbound.ErrStorageUnavailable)
}
