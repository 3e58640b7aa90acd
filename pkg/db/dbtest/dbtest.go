// Package dbtest opens throwaway sqlite databases for repository tests.
package dbtest

import (
	"fmt"
	"path/filepath"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/eventpass-backend/pkg/db/models"
)

// AllModels lists every table this service owns or reads.
func AllModels() []any {
	return []any{
		&models.Ticket{},
		&models.Addon{},
		&models.Package{},
		&models.SlotPricing{},
		&models.Appointment{},
		&models.InventoryCounter{},
		&models.SnapshotLine{},
		&models.PaymentIntentRecord{},
		&models.ConfirmedPayment{},
		&models.OutboxEvent{},
		&models.OutboxDLQ{},
	}
}

// Open returns a file backed sqlite database migrated with AllModels.
// Transactions begin IMMEDIATE so concurrent writers queue on the busy timeout
// instead of failing, which is what row locks give us on Postgres.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	dsn := fmt.Sprintf("file:%s?_busy_timeout=10000&_txlock=immediate", path)
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(AllModels()...); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := conn.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return conn
}

// IntPtr is a small helper for nullable capacity columns.
func IntPtr(v int) *int {
	return &v
}
