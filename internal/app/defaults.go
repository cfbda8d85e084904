package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"efm-go/internal/config"
)

// Paths are the per-user locations efm uses before a config file is read.
type Paths struct {
	ConfigPath string
	BaseDir    string
}

// DefaultPaths resolves Paths from the environment:
//   - EFM_CONFIG_PATH: config file (default ~/.config/efm.toml)
//   - EFM_HOME: data directory holding the database and logs (default ~/.local/share/efm)
func DefaultPaths() (Paths, error) {
	configPath, err := fromEnvOrHome("EFM_CONFIG_PATH", ".config", "efm.toml")
	if err != nil {
		return Paths{}, err
	}
	baseDir, err := fromEnvOrHome("EFM_HOME", ".local", "share", "efm")
	if err != nil {
		return Paths{}, err
	}
	return Paths{ConfigPath: configPath, BaseDir: baseDir}, nil
}

func fromEnvOrHome(env string, rel ...string) (string, error) {
	if v := os.Getenv(env); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory (set %s): %w", env, err)
	}
	return filepath.Join(append([]string{home}, rel...)...), nil
}

// ApplyEnv overrides cfg with DATABASE_URL when it is set. A sqlite:// or
// file: prefix is stripped.
func ApplyEnv(cfg *config.Config) {
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		return
	}
	for _, prefix := range []string{"sqlite://", "file:"} {
		url = strings.TrimPrefix(url, prefix)
	}
	cfg.Database.Type = "sqlite"
	cfg.Database.Path = url
}
