package database

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationImageTimelineIndexes = "2026-09-14_image_timeline_indexes"

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

// applyMigrations runs each pending data migration together with its record in one
// transaction, so a failed migration is retried on the next start.
func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	migrations := []migrationDefinition{
		{name: migrationImageTimelineIndexes, apply: createImageTimelineIndexes},
	}

	for _, migration := range migrations {
		applied, err := migrationApplied(db, migration.name)
		if err != nil {
			return fmt.Errorf("database: check migration %s: %w", migration.name, err)
		}
		if applied {
			continue
		}
		err = db.Transaction(func(tx *gorm.DB) error {
			if err := migration.apply(tx); err != nil {
				return err
			}
			return tx.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: time.Now().UTC().Unix()}).Error
		})
		if err != nil {
			return fmt.Errorf("database: apply migration %s: %w", migration.name, err)
		}
		logger.Info("database migration applied", zap.String("migration", migration.name))
	}
	return nil
}

func migrationApplied(db *gorm.DB, name string) (bool, error) {
	var record migrationRecord
	err := db.Where("name = ?", name).Take(&record).Error
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return false, nil
	default:
		return false, err
	}
}

// imageTimelineTables are read per image in creation order.
var imageTimelineTables = []string{"reactions", "comments"}

func imageTimelineIndexName(table string) string {
	return "idx_" + table + "_image_created"
}

// createImageTimelineIndexes backs the per-image ordered reads with a composite index,
// so SQLite no longer picks between the two single-column ones.
func createImageTimelineIndexes(db *gorm.DB) error {
	for _, table := range imageTimelineTables {
		statement := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (image_id, created_at_ms)", imageTimelineIndexName(table), table)
		if err := db.Exec(statement).Error; err != nil {
			return err
		}
	}
	return nil
}
