package database

import (
	"errors"
	"path/filepath"
	"testing"

	"efm-go/internal/config"
	"efm-go/internal/efm"
)

func TestNewDatabaseFromConfig(t *testing.T) {
	nested := filepath.Join(t.TempDir(), "nested", "db.sqlite")

	tests := []struct {
		name     string
		cfg      config.DatabaseConfig
		wantPath string
		wantErr  error
	}{
		{"memory", config.DatabaseConfig{Type: "memory", Path: "ignored"}, ":memory:", nil},
		{"sqlite creates parent directory", config.DatabaseConfig{Type: "sqlite", Path: nested}, nested, nil},
		{"sqlite without path", config.DatabaseConfig{Type: "sqlite"}, "", efm.ErrSettings},
		{"unknown type", config.DatabaseConfig{Type: "postgres"}, "", efm.ErrSettings},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewDatabaseFromConfig(tt.cfg, nil)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) || got != nil {
					t.Fatalf("NewDatabaseFromConfig() = %v, %v, want nil, %v", got, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewDatabaseFromConfig() error = %v", err)
			}
			defer got.Close()

			if got.Path() != tt.wantPath {
				t.Errorf("Path() = %q, want %q", got.Path(), tt.wantPath)
			}
			if err := got.CheckMigrations(); !errors.Is(err, efm.ErrDB) {
				t.Errorf("CheckMigrations() before migrating = %v, want db error", err)
			}
			if err := got.MigrateUp(); err != nil {
				t.Fatalf("MigrateUp() error = %v", err)
			}
			st, err := got.SchemaStatus()
			if err != nil || st.Pending() != 0 {
				t.Errorf("SchemaStatus() = %+v, %v", st, err)
			}
		})
	}
}
