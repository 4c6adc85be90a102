// Package repo implements the data persistence layer for domain entities,
// backed by GORM over the embedded SQLite store. This file contains database
// bootstrapping helpers and schema migrations.
package repo

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/juicyfox/juicybot/internal/domain"
)

// OpenSQLite opens (or creates) the SQLite database and applies PRAGMAs.
// The store is shared by many readers and a serialized writer, so every
// connection runs in WAL mode with synchronous=NORMAL.
func OpenSQLite(path string) (*gorm.DB, error) {
	// Fail early if the parent directory does not exist (instead of a cryptic
	// sqlite "out of memory (14)").
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	// PRAGMAs, applied per pooled connection.
	db.Exec("PRAGMA journal_mode=WAL;")
	db.Exec("PRAGMA synchronous=NORMAL;")
	db.Exec("PRAGMA foreign_keys=ON;")
	db.Exec("PRAGMA busy_timeout=5000;")

	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}

	return db, nil
}

// AutoMigrate creates or extends the schema. Migrations are additive only.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.IdempotencyKey{},
		&domain.RelayUser{},
		&domain.PostingJob{},
		&domain.PaymentEvent{},
		&domain.AccessGrant{},
		&domain.PendingInvoice{},
		&domain.RelayMessage{},
		&domain.Streak{},
	)
}

// isUniqueViolation reports whether err is a UNIQUE constraint failure.
// glebarez/sqlite often returns plain-text errors for these.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if err == gorm.ErrDuplicatedKey {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique")
}
