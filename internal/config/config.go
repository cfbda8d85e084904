package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"efm-go/internal/efm"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for efm.
// Collection-scoped settings (collection root, cloud bucket) live in the
// database instead, so that a restored database carries them along.
type Config struct {
	BaseDir  string         `toml:"base_dir"`
	LogDir   string         `toml:"log_dir"`
	Database DatabaseConfig `toml:"database"`
	Cloud    CloudConfig    `toml:"cloud"`
	Import   ImportConfig   `toml:"import"`
	Download DownloadConfig `toml:"download"`
}

// DatabaseConfig represents configuration for the collection database.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type string `toml:"type"`           // "sqlite" or "memory"
	Path string `toml:"path,omitempty"` // only used for type=sqlite
}

// CloudConfig holds client-side cloud settings.
type CloudConfig struct {
	CredentialsPath string `toml:"credentials_path"` // age-encrypted access keys
	TimeoutSeconds  int    `toml:"timeout_seconds"`  // per request; 0 disables
	PartSizeMB      int    `toml:"part_size_mb"`     // multipart chunk size
}

// ImportConfig holds settings for mass import directory walks.
type ImportConfig struct {
	Ignore []string `toml:"ignore"`
}

// DownloadConfig holds export settings.
type DownloadConfig struct {
	ThumbnailSize int `toml:"thumbnail_size"` // longest edge in pixels; 0 disables
}

const (
	DefaultTimeoutSeconds = 300
	DefaultPartSizeMB     = 8
	DefaultThumbnailSize  = 256

	// MinPartSizeMB is the smallest part S3 accepts for all but the last part.
	MinPartSizeMB = 5
)

// NewConfig creates a new Config with default paths under baseDir.
func NewConfig(baseDir string) *Config {
	return &Config{
		BaseDir: baseDir,
		LogDir:  filepath.Join(baseDir, "log"),
		Database: DatabaseConfig{
			Type: "sqlite",
			Path: filepath.Join(baseDir, "db.sqlite"),
		},
		Cloud: CloudConfig{
			CredentialsPath: filepath.Join(baseDir, "credentials.age"),
			TimeoutSeconds:  DefaultTimeoutSeconds,
			PartSizeMB:      DefaultPartSizeMB,
		},
		Import: ImportConfig{
			Ignore: []string{".DS_Store", "Thumbs.db", ".*"},
		},
		Download: DownloadConfig{ThumbnailSize: DefaultThumbnailSize},
	}
}

// fillDefaults sets every zero value to its default under cfg.BaseDir, so a
// config file only needs the keys that differ.
func (cfg *Config) fillDefaults() {
	d := NewConfig(cfg.BaseDir)
	if cfg.LogDir == "" {
		cfg.LogDir = d.LogDir
	}
	if cfg.Database.Type == "" {
		cfg.Database.Type = d.Database.Type
	}
	if cfg.Database.Path == "" && cfg.Database.Type == "sqlite" {
		cfg.Database.Path = d.Database.Path
	}
	if cfg.Cloud.CredentialsPath == "" {
		cfg.Cloud.CredentialsPath = d.Cloud.CredentialsPath
	}
	if cfg.Cloud.PartSizeMB == 0 {
		cfg.Cloud.PartSizeMB = d.Cloud.PartSizeMB
	}
	if cfg.Import.Ignore == nil {
		cfg.Import.Ignore = d.Import.Ignore
	}
}

// Validate reports the first unusable value as a SettingsError.
func (cfg *Config) Validate() error {
	switch {
	case cfg.BaseDir == "":
		return efm.NewSettingsError("base_dir is not set")
	case cfg.Database.Type != "sqlite" && cfg.Database.Type != "memory":
		return efm.NewSettingsError(fmt.Sprintf("database type %q is not sqlite or memory", cfg.Database.Type))
	case cfg.Cloud.TimeoutSeconds < 0:
		return efm.NewSettingsError("cloud timeout_seconds is negative")
	case cfg.Cloud.PartSizeMB < MinPartSizeMB:
		return efm.NewSettingsError(fmt.Sprintf("cloud part_size_mb must be at least %d", MinPartSizeMB))
	case cfg.Download.ThumbnailSize < 0:
		return efm.NewSettingsError("download thumbnail_size is negative")
	}
	return nil
}

// Manager reads and writes configuration files.
type Manager struct{}

// Read decodes a Config, fills in defaults and validates it.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	md, err := toml.NewDecoder(r).Decode(&cfg)
	if err != nil {
		return nil, efm.NewDeserializationError("decoding config", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, efm.NewSettingsError(fmt.Sprintf("unknown config key %q", undecoded[0].String()))
	}
	cfg.fillDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Write encodes cfg as TOML.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return nil
}

// ReadFromFile reads the Config at path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening config (run `efm config init` first): %w", err)
	}
	defer f.Close()

	cfg, err := (&Manager{}).Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// Init writes cfg to a new file at path. An existing file is never replaced.
func Init(path string, cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if os.IsExist(err) {
		return fmt.Errorf("config file already exists at %s", path)
	}
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}
	defer f.Close()

	return (&Manager{}).Write(f, cfg)
}
