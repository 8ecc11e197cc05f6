package database

import (
	"path/filepath"
	"testing"

	"github.com/MarcoPoloResearchLab/keepnote/internal/config"
	"github.com/MarcoPoloResearchLab/keepnote/internal/notes"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestApplyMigrationsBackfillsNoteColors(testContext *testing.T) {
	tempDir := testContext.TempDir()
	databasePath := filepath.Join(tempDir, "migration.db")

	database, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{})
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}

	if err := database.AutoMigrate(&notes.Note{}, &migrationRecord{}); err != nil {
		testContext.Fatalf("failed to migrate schema: %v", err)
	}

	if err := database.Exec("INSERT INTO notes (user_id, title, content, color, email_sent) VALUES (?, ?, ?, ?, ?)",
		"user-1", "legacy", "", "", true).Error; err != nil {
		testContext.Fatalf("failed to insert legacy note: %v", err)
	}

	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("failed to apply migrations: %v", err)
	}

	var stored notes.Note
	if err := database.Where("user_id = ?", "user-1").Take(&stored).Error; err != nil {
		testContext.Fatalf("failed to reload note: %v", err)
	}
	if stored.Color != notes.DefaultColor {
		testContext.Fatalf("expected color to be backfilled, got %q", stored.Color)
	}
	if stored.EmailSent {
		testContext.Fatalf("expected email flag to be cleared for a note without reminder")
	}

	var record migrationRecord
	if err := database.Where("name = ?", migrationBackfillNoteColors).Take(&record).Error; err != nil {
		testContext.Fatalf("expected migration record to be created: %v", err)
	}
	if record.AppliedAtSeconds == 0 {
		testContext.Fatalf("expected migration timestamp to be set")
	}

	var count int64
	if err := database.Model(&migrationRecord{}).Count(&count).Error; err != nil {
		testContext.Fatalf("failed to count migrations: %v", err)
	}
	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("failed to reapply migrations: %v", err)
	}
	var recount int64
	if err := database.Model(&migrationRecord{}).Count(&recount).Error; err != nil {
		testContext.Fatalf("failed to count migrations: %v", err)
	}
	if recount != count {
		testContext.Fatalf("expected migrations to be applied once, got %d then %d", count, recount)
	}
}

func TestOpenRejectsUnknownDriver(testContext *testing.T) {
	if _, err := Open(config.DatabaseConfig{Driver: "oracle"}, nil); err == nil {
		testContext.Fatalf("expected unsupported driver error")
	}
}

func TestOpenSQLiteMigratesSchema(testContext *testing.T) {
	databasePath := filepath.Join(testContext.TempDir(), "keepnote.db")
	database, err := Open(config.DatabaseConfig{Driver: config.DriverSQLite, Path: databasePath}, zap.NewNop())
	if err != nil {
		testContext.Fatalf("failed to open database: %v", err)
	}
	defer func() { _ = Close(database) }()

	for _, table := range []string{"notes", "pro_requests", "user_identities", "db_migrations"} {
		if !database.Migrator().HasTable(table) {
			testContext.Fatalf("expected table %s to exist", table)
		}
	}
}
