package efm

import (
	"path/filepath"
	"sort"
)

// Setting keys stored in the settings table.
const (
	SettingCollectionRootDir = "collection_root_dir"
	SettingTempOutputDir     = "temp_output_dir"
	SettingCloudProvider     = "cloud_provider"
	SettingS3Bucket          = "s3_bucket"
	SettingS3Endpoint        = "s3_endpoint"
	SettingS3Region          = "s3_region"
	SettingS3Prefix          = "s3_prefix"
	SettingCloudFSRoot       = "cloud_fs_root"
)

var knownSettings = map[string]bool{
	SettingCollectionRootDir: true,
	SettingTempOutputDir:     true,
	SettingCloudProvider:     true,
	SettingS3Bucket:          true,
	SettingS3Endpoint:        true,
	SettingS3Region:          true,
	SettingS3Prefix:          true,
	SettingCloudFSRoot:       true,
}

// IsKnownSetting reports whether key is a recognised setting name.
func IsKnownSetting(key string) bool { return knownSettings[key] }

// KnownSettings returns the recognised setting names in sorted order.
func KnownSettings() []string {
	keys := make([]string, 0, len(knownSettings))
	for k := range knownSettings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Settings is a snapshot of the settings table.
type Settings struct {
	values map[string]string
}

// NewSettings wraps a raw key/value map.
func NewSettings(values map[string]string) *Settings {
	copied := make(map[string]string, len(values))
	for k, v := range values {
		copied[k] = v
	}
	return &Settings{values: copied}
}

// Get returns the raw value of key, or "" when unset.
func (s *Settings) Get(key string) string {
	if s == nil {
		return ""
	}
	return s.values[key]
}

// All returns a copy of every stored setting.
func (s *Settings) All() map[string]string {
	out := make(map[string]string, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// CollectionRootDir returns the absolute collection root, or a SettingsError when unset.
func (s *Settings) CollectionRootDir() (string, error) {
	return s.requireAbs(SettingCollectionRootDir)
}

// TempOutputDir returns the absolute working directory for exports, or a SettingsError.
func (s *Settings) TempOutputDir() (string, error) {
	return s.requireAbs(SettingTempOutputDir)
}

func (s *Settings) requireAbs(key string) (string, error) {
	v := s.Get(key)
	if v == "" {
		return "", NewSettingsError(key + " is not set")
	}
	if !filepath.IsAbs(v) {
		return "", NewSettingsError(key + " must be an absolute path: " + v)
	}
	return v, nil
}

// Layout returns the collection layout rooted at collection_root_dir.
func (s *Settings) Layout() (CollectionLayout, error) {
	root, err := s.CollectionRootDir()
	if err != nil {
		return CollectionLayout{}, err
	}
	return NewCollectionLayout(root), nil
}
