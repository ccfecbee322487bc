package database

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestApplyMigrationsCreatesImageTimelineIndexes(testContext *testing.T) {
	databasePath := filepath.Join(testContext.TempDir(), "migration.db")
	database, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{})
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}
	if err := migrateSchema(database); err != nil {
		testContext.Fatalf("failed to migrate schema: %v", err)
	}

	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("failed to apply migrations: %v", err)
	}

	for _, table := range imageTimelineTables {
		var columns []string
		query := fmt.Sprintf("SELECT name FROM pragma_index_info('%s') ORDER BY seqno", imageTimelineIndexName(table))
		if err := database.Raw(query).Scan(&columns).Error; err != nil {
			testContext.Fatalf("failed to inspect index on %s: %v", table, err)
		}
		if len(columns) != 2 || columns[0] != "image_id" || columns[1] != "created_at_ms" {
			testContext.Fatalf("unexpected index columns on %s: %v", table, columns)
		}
	}

	var record migrationRecord
	if err := database.Where("name = ?", migrationImageTimelineIndexes).Take(&record).Error; err != nil {
		testContext.Fatalf("expected migration record to be created: %v", err)
	}
	if record.AppliedAtSeconds == 0 {
		testContext.Fatalf("expected migration timestamp to be set")
	}
}

func TestApplyMigrationsIsIdempotent(testContext *testing.T) {
	databasePath := filepath.Join(testContext.TempDir(), "rerun.db")
	database, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{})
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}
	if err := migrateSchema(database); err != nil {
		testContext.Fatalf("failed to migrate schema: %v", err)
	}

	if err := applyMigrations(database, nil); err != nil {
		testContext.Fatalf("failed to apply migrations: %v", err)
	}
	if err := applyMigrations(database, nil); err != nil {
		testContext.Fatalf("expected reapplying migrations to be a no-op: %v", err)
	}

	var count int64
	if err := database.Model(&migrationRecord{}).Count(&count).Error; err != nil {
		testContext.Fatalf("failed to count migrations: %v", err)
	}
	if count != 1 {
		testContext.Fatalf("expected one migration record, got %d", count)
	}
}

func TestOpenSQLiteRequiresPath(testContext *testing.T) {
	if _, err := OpenSQLite("", nil); err == nil {
		testContext.Fatalf("expected missing path error")
	}
}

func TestOpenSQLiteCreatesSchema(testContext *testing.T) {
	databasePath := filepath.Join(testContext.TempDir(), "galleria.db")
	database, err := OpenSQLite(databasePath, zap.NewNop())
	if err != nil {
		testContext.Fatalf("failed to open database: %v", err)
	}
	for _, table := range []string{"reactions", "comments", "feed_items", "db_migrations"} {
		if !database.Migrator().HasTable(table) {
			testContext.Fatalf("expected table %s", table)
		}
	}
}

func TestOpenSQLiteCreatesMissingDirectory(testContext *testing.T) {
	databasePath := filepath.Join(testContext.TempDir(), "nested", "data", "galleria.db")
	database, err := OpenSQLite(databasePath, nil)
	if err != nil {
		testContext.Fatalf("failed to open database: %v", err)
	}
	sqlDB, err := database.DB()
	if err != nil {
		testContext.Fatalf("failed to access sql db: %v", err)
	}
	defer sqlDB.Close()
	if _, err := os.Stat(databasePath); err != nil {
		testContext.Fatalf("expected database file to exist: %v", err)
	}
}

func TestSQLiteDSN(testContext *testing.T) {
	testCases := []struct {
		name     string
		path     string
		expected string
	}{
		{name: "file path gains pragmas", path: "galleria.db", expected: "galleria.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"},
		{name: "memory untouched", path: ":memory:", expected: ":memory:"},
		{name: "parameterized untouched", path: "file:test?cache=shared", expected: "file:test?cache=shared"},
	}
	for _, testCase := range testCases {
		testContext.Run(testCase.name, func(t *testing.T) {
			if actual := sqliteDSN(testCase.path); actual != testCase.expected {
				t.Fatalf("expected %q, got %q", testCase.expected, actual)
			}
		})
	}
}
