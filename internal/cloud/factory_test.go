package cloud

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"efm-go/internal/config"
	"efm-go/internal/credentials"
	"efm-go/internal/efm"
	"efm-go/internal/testutil"
)

func TestNewCloudOpsFromSettings(t *testing.T) {
	fsRoot := filepath.Join(t.TempDir(), "mirror")

	tests := []struct {
		name     string
		settings map[string]string
		wantErr  error
		wantType string
	}{
		{
			name:     "filesystem",
			settings: map[string]string{efm.SettingCloudProvider: "filesystem", efm.SettingCloudFSRoot: fsRoot},
			wantType: "*cloud.FileSystemOps",
		},
		{
			name:     "filesystem without root",
			settings: map[string]string{efm.SettingCloudProvider: "filesystem"},
			wantErr:  efm.ErrSettings,
		},
		{
			name: "s3",
			settings: map[string]string{
				efm.SettingCloudProvider: "s3",
				efm.SettingS3Bucket:      "collection",
				efm.SettingS3Endpoint:    "http://localhost:9000",
			},
			wantType: "*cloud.S3Ops",
		},
		{
			name:     "s3 without bucket",
			settings: map[string]string{efm.SettingCloudProvider: "s3"},
			wantErr:  efm.ErrSettings,
		},
		{
			name:     "provider not set",
			settings: map[string]string{},
			wantErr:  efm.ErrSettings,
		},
		{
			name:     "unknown provider",
			settings: map[string]string{efm.SettingCloudProvider: "tape-robot"},
			wantErr:  efm.ErrSettings,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := Options{
				Credentials: &credentials.Credentials{AccessKeyID: "id", SecretAccessKey: "secret"},
				IDs:         testutil.NewStubIDGenerator(),
			}
			ops, err := NewCloudOpsFromSettings(context.Background(), efm.NewSettings(tt.settings), opts)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewCloudOpsFromSettings() error = %v", err)
			}
			if got := fmt.Sprintf("%T", ops); got != tt.wantType {
				t.Errorf("type = %s, want %s", got, tt.wantType)
			}
		})
	}
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.CloudConfig{TimeoutSeconds: 30, PartSizeMB: 16}
	opts := OptionsFromConfig(cfg, nil)
	if opts.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", opts.Timeout)
	}
	if opts.PartSize != 16*1024*1024 {
		t.Errorf("PartSize = %d, want 16 MiB", opts.PartSize)
	}
}

func TestStaticConnector(t *testing.T) {
	m := NewMemoryOps()
	ops, err := StaticConnector(m)(context.Background(), nil)
	if err != nil || ops != m {
		t.Errorf("StaticConnector() = %v, %v", ops, err)
	}
}
