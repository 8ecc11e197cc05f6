package database

import (
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/keepnote/internal/notes"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationBackfillNoteColors         = "2026-10-01_backfill_note_colors"
	migrationClearEmailSentWithoutTimer = "2026-10-08_clear_email_sent_without_reminder"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationBackfillNoteColors, apply: backfillNoteColors},
		{name: migrationClearEmailSentWithoutTimer, apply: clearEmailSentWithoutReminder},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// Older clients stored notes without a color.
func backfillNoteColors(db *gorm.DB) error {
	return db.Model(&notes.Note{}).
		Where("color IS NULL OR color = ''").
		Update("color", notes.DefaultColor).Error
}

func clearEmailSentWithoutReminder(db *gorm.DB) error {
	return db.Model(&notes.Note{}).
		Where("reminder IS NULL AND email_sent = ?", true).
		Update("email_sent", false).Error
}
