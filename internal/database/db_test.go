package database

import (
	"os"
	"path/filepath"
	"testing"

	"gorm.io/gorm"

	"github.com/charlesng35/formgate/internal/models"
)

func TestOpenSQLiteMemory(t *testing.T) {
	db := openTestDB(t, Config{Driver: "sqlite"})

	if err := db.Exec("SELECT 1").Error; err != nil {
		t.Fatalf("expected health query to succeed: %v", err)
	}
	if err := Ping(db); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestOpenSQLiteMemoryIsolated(t *testing.T) {
	first := openTestDB(t, Config{Driver: "sqlite"})
	second := openTestDB(t, Config{Driver: "sqlite"})

	if err := AutoMigrate(first); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	if second.Migrator().HasTable(&models.Submission{}) {
		t.Fatalf("expected memory databases to be independent")
	}
}

func TestOpenSQLiteFileCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "submissions.db")
	db := openTestDB(t, Config{Driver: "sqlite", Path: path})

	if err := AutoMigrate(db); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected database file to exist: %v", err)
	}
}

func TestAutoMigrateIsIdempotent(t *testing.T) {
	db := openTestDB(t, Config{Driver: "sqlite"})

	for i := 0; i < 2; i++ {
		if err := AutoMigrate(db); err != nil {
			t.Fatalf("auto migrate run %d: %v", i+1, err)
		}
	}

	if !db.Migrator().HasIndex(&models.Submission{}, "Email") {
		t.Fatalf("expected unique email index")
	}
}

func TestAutoMigrateNilHandle(t *testing.T) {
	if err := AutoMigrate(nil); err == nil {
		t.Fatalf("expected error for nil handle")
	}
}

func TestOpenUnsupportedDriver(t *testing.T) {
	if _, err := Open(Config{Driver: "oracle"}); err == nil {
		t.Fatalf("expected unsupported driver error")
	}
}

func openTestDB(t *testing.T, cfg Config) *gorm.DB {
	t.Helper()

	db, err := Open(cfg)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}

	t.Cleanup(func() {
		_ = Close(db)
	})

	return db
}
