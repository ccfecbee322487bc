package database

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/MarcoPoloResearchLab/galleria/internal/interactions"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var errMissingPath = errors.New("database: path is required")

// sqlitePragmas keep concurrent live re-queries from failing while a write holds the lock.
var sqlitePragmas = []string{"busy_timeout(5000)", "journal_mode(WAL)", "foreign_keys(1)"}

// OpenSQLite opens the interaction database at path, creating its directory when needed,
// and brings the schema up to date.
func OpenSQLite(path string, logger *zap.Logger) (*gorm.DB, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, errMissingPath
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if !inMemory(trimmed) {
		if dir := filepath.Dir(trimmed); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("database: create directory: %w", err)
			}
		}
	}

	db, err := gorm.Open(sqlite.Open(sqliteDSN(trimmed)), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("database: open: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// The store serializes writes; one connection avoids SQLITE_BUSY between them.
	sqlDB.SetMaxOpenConns(1)

	if err := migrateSchema(db); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("database: migrate schema: %w", err)
	}
	if err := applyMigrations(db, logger); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	logger.Info("database initialized", zap.String("path", trimmed))
	return db, nil
}

func migrateSchema(db *gorm.DB) error {
	return db.AutoMigrate(&interactions.Reaction{}, &interactions.Comment{}, &interactions.FeedItem{}, &migrationRecord{})
}

func inMemory(path string) bool {
	return path == ":memory:" || strings.Contains(path, "mode=memory")
}

// sqliteDSN appends connection pragmas to file paths. In-memory and already
// parameterized DSNs are left untouched.
func sqliteDSN(path string) string {
	if inMemory(path) || strings.Contains(path, "?") {
		return path
	}
	params := make([]string, 0, len(sqlitePragmas))
	for _, pragma := range sqlitePragmas {
		params = append(params, "_pragma="+pragma)
	}
	return path + "?" + strings.Join(params, "&")
}
