package app

import (
	"os"
	"path/filepath"
	"testing"

	"efm-go/internal/config"
)

func TestDefaultPaths(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}

	tests := []struct {
		name       string
		configPath string
		efmHome    string
		want       Paths
	}{
		{
			name:       "env overrides",
			configPath: "/custom/config.toml",
			efmHome:    "/custom/efm",
			want:       Paths{ConfigPath: "/custom/config.toml", BaseDir: "/custom/efm"},
		},
		{
			name: "home defaults",
			want: Paths{
				ConfigPath: filepath.Join(home, ".config", "efm.toml"),
				BaseDir:    filepath.Join(home, ".local", "share", "efm"),
			},
		},
		{
			name:    "mixed",
			efmHome: "/srv/efm",
			want:    Paths{ConfigPath: filepath.Join(home, ".config", "efm.toml"), BaseDir: "/srv/efm"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("EFM_CONFIG_PATH", tt.configPath)
			t.Setenv("EFM_HOME", tt.efmHome)

			got, err := DefaultPaths()
			if err != nil {
				t.Fatalf("DefaultPaths() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("DefaultPaths() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string
	}{
		{"unset keeps config", "", "/base/db.sqlite"},
		{"plain path", "/data/efm.sqlite", "/data/efm.sqlite"},
		{"sqlite scheme", "sqlite:///data/efm.sqlite", "/data/efm.sqlite"},
		{"file scheme", "file:/data/efm.sqlite", "/data/efm.sqlite"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DATABASE_URL", tt.url)
			cfg := config.NewConfig("/base")
			ApplyEnv(cfg)
			if cfg.Database.Path != tt.want {
				t.Errorf("Path = %q, want %q", cfg.Database.Path, tt.want)
			}
		})
	}
}
