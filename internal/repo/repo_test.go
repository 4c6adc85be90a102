package repo

import (
	"path/filepath"
	"testing"

	"gorm.io/gorm"
)

// newTestDB opens a fresh migrated SQLite file under t.TempDir so every test
// exercises the real pragmas and unique indexes.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "test.sqlite"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}
