package efm

import (
	"errors"
	"testing"
)

func TestSettings_CollectionRootDir(t *testing.T) {
	tests := []struct {
		name    string
		values  map[string]string
		want    string
		wantErr bool
	}{
		{"absolute", map[string]string{SettingCollectionRootDir: "/data/efm"}, "/data/efm", false},
		{"unset", map[string]string{}, "", true},
		{"relative", map[string]string{SettingCollectionRootDir: "data"}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewSettings(tt.values).CollectionRootDir()
			if tt.wantErr {
				if !errors.Is(err, ErrSettings) {
					t.Errorf("error = %v, want SettingsError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("CollectionRootDir() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("CollectionRootDir() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSettings_NilSafe(t *testing.T) {
	var s *Settings
	if s.Get(SettingS3Bucket) != "" {
		t.Error("nil Settings.Get() returned a value")
	}
}

func TestKnownSettings(t *testing.T) {
	if !IsKnownSetting(SettingTempOutputDir) {
		t.Error("temp_output_dir not known")
	}
	if IsKnownSetting("favourite_colour") {
		t.Error("unexpected key reported known")
	}
	keys := KnownSettings()
	for i := 1; i < len(keys); i++ {
		if keys[i-1] > keys[i] {
			t.Fatalf("KnownSettings() not sorted: %v", keys)
		}
	}
}
