package repository

import (
	"errors"
	"os"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestGormStore connects to TEST_DATABASE_URL (a postgres:// URL), applies
// the migrations and empties every table. Without the variable the test is
// skipped.
func newTestGormStore(t *testing.T) *GormStore {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	m, err := migrate.New("file://../db/migrations", url)
	if err != nil {
		t.Fatalf("init migrations: %v", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		t.Fatalf("run migrations: %v", err)
	}
	_, _ = m.Close()

	db, err := gorm.Open(postgres.Open(url), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.Exec("TRUNCATE balances, deposit_requests, withdrawal_requests, hot_wallets, audit_logs").Error; err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return NewGormStore(db)
}

func TestGormStore(t *testing.T) {
	s := newTestGormStore(t)

	t.Run("rolls back on error", func(t *testing.T) { caseRollsBack(t, s) })
	t.Run("concurrent debits never overdraw", func(t *testing.T) { caseConcurrentDebitsNeverOverdraw(t, s) })
	t.Run("hot wallet upsert keeps id", func(t *testing.T) { caseHotWalletUpsertKeepsID(t, s) })
	t.Run("approved tx hash is unique", func(t *testing.T) { caseApprovedTxHashIsUnique(t, s) })
	t.Run("withdrawal execution marker", func(t *testing.T) { caseWithdrawalExecutionMarker(t, s) })
}
