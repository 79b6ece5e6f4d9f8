package database

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

// Migration is a named, run-once schema step.
type Migration struct {
	Name  string
	Apply func(*gorm.DB) error
}

// AutoMigrateStep wraps gorm's AutoMigrate for the given models as a named step.
func AutoMigrateStep(name string, models ...any) Migration {
	return Migration{
		Name: name,
		Apply: func(db *gorm.DB) error {
			return db.AutoMigrate(models...)
		},
	}
}

// ApplyMigrations runs every step that has not been recorded in db_migrations yet.
// It returns the names of the steps applied during this call.
func ApplyMigrations(db *gorm.DB, logger *zap.Logger, migrations []Migration) ([]string, error) {
	if db == nil {
		return nil, fmt.Errorf("database: handle required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := db.AutoMigrate(&migrationRecord{}); err != nil {
		return nil, err
	}

	applied := make([]string, 0, len(migrations))
	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.Name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return applied, err
		}
		if err := migration.Apply(db); err != nil {
			return applied, fmt.Errorf("migration %s: %w", migration.Name, err)
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.Name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return applied, err
		}
		applied = append(applied, migration.Name)
		logger.Info("database migration applied", zap.String("migration", migration.Name))
	}
	return applied, nil
}
