package database

import (
	"os"
	"path/filepath"

	"efm-go/internal/config"
	"efm-go/internal/efm"
)

// NewDatabaseFromConfig opens the collection database named by cfg without
// migrating it. A file database gets its parent directory created.
func NewDatabaseFromConfig(cfg config.DatabaseConfig, clock efm.Clock) (*SQLiteDatabase, error) {
	path := cfg.Path
	switch cfg.Type {
	case "memory":
		path = ":memory:"
	case "sqlite", "":
		if path == "" {
			return nil, efm.NewSettingsError("database path is not set")
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, efm.NewIOError("creating database directory", err)
		}
	default:
		return nil, efm.NewSettingsError("unknown database type " + cfg.Type)
	}
	return NewSQLiteDatabase(path, clock)
}
