package database

import (
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

type migrationProbe struct {
	ID    uint   `gorm:"primaryKey"`
	Label string `gorm:"size:64"`
}

func TestApplyMigrationsRunsEachStepOnce(testContext *testing.T) {
	databasePath := filepath.Join(testContext.TempDir(), "migration.db")
	database, err := Open(databasePath, OpenOptions{})
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}

	steps := []Migration{AutoMigrateStep("2026-10-19_create_migration_probes", &migrationProbe{})}

	applied, err := ApplyMigrations(database, zap.NewNop(), steps)
	if err != nil {
		testContext.Fatalf("failed to apply migrations: %v", err)
	}
	if len(applied) != 1 || applied[0] != steps[0].Name {
		testContext.Fatalf("unexpected applied steps: %v", applied)
	}
	if !database.Migrator().HasTable(&migrationProbe{}) {
		testContext.Fatalf("expected probe table to exist")
	}

	applied, err = ApplyMigrations(database, zap.NewNop(), steps)
	if err != nil {
		testContext.Fatalf("failed to re-apply migrations: %v", err)
	}
	if len(applied) != 0 {
		testContext.Fatalf("expected recorded steps to be skipped, got %v", applied)
	}

	var record migrationRecord
	if err := database.Where("name = ?", steps[0].Name).Take(&record).Error; err != nil {
		testContext.Fatalf("expected migration record to be created: %v", err)
	}
	if record.AppliedAtSeconds == 0 {
		testContext.Fatalf("expected migration timestamp to be set")
	}
}

func TestApplyMigrationsRequiresHandle(testContext *testing.T) {
	if _, err := ApplyMigrations(nil, nil, nil); err == nil {
		testContext.Fatalf("expected error for nil handle")
	}
}
