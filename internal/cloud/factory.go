// Package cloud implements efm.CloudOps for S3, a mirrored directory and memory.
package cloud

import (
	"context"
	"fmt"
	"time"

	"efm-go/internal/config"
	"efm-go/internal/credentials"
	"efm-go/internal/efm"
)

// Options carries the client-side half of the cloud configuration. The
// provider and bucket come from the collection settings.
type Options struct {
	Credentials *credentials.Credentials
	Timeout     time.Duration
	PartSize    int64
	IDs         efm.IDGenerator
}

// OptionsFromConfig converts the [cloud] config section into Options.
func OptionsFromConfig(cfg config.CloudConfig, creds *credentials.Credentials) Options {
	return Options{
		Credentials: creds,
		Timeout:     time.Duration(cfg.TimeoutSeconds) * time.Second,
		PartSize:    int64(cfg.PartSizeMB) * 1024 * 1024,
		IDs:         efm.UUIDGenerator{},
	}
}

// NewCloudOpsFromSettings creates the CloudOps selected by the cloud_provider setting.
func NewCloudOpsFromSettings(ctx context.Context, settings *efm.Settings, opts Options) (efm.CloudOps, error) {
	ids := opts.IDs
	if ids == nil {
		ids = efm.UUIDGenerator{}
	}

	switch provider := settings.Get(efm.SettingCloudProvider); provider {
	case "s3":
		cfg := S3Config{
			Bucket:   settings.Get(efm.SettingS3Bucket),
			Region:   settings.Get(efm.SettingS3Region),
			Endpoint: settings.Get(efm.SettingS3Endpoint),
			Prefix:   settings.Get(efm.SettingS3Prefix),
			Timeout:  opts.Timeout,
			PartSize: opts.PartSize,
		}
		if opts.Credentials != nil {
			cfg.AccessKeyID = opts.Credentials.AccessKeyID
			cfg.SecretAccessKey = opts.Credentials.SecretAccessKey
		}
		return NewS3Ops(ctx, cfg, ids)
	case "filesystem":
		return NewFileSystemOps(settings.Get(efm.SettingCloudFSRoot), ids)
	case "":
		return nil, efm.NewSettingsError(efm.SettingCloudProvider + " is not set")
	default:
		return nil, efm.NewSettingsError(fmt.Sprintf("unknown cloud provider %q", provider))
	}
}

// Connector binds opts into an efm.CloudConnector for the pipelines.
func Connector(opts Options) efm.CloudConnector {
	return func(ctx context.Context, settings *efm.Settings) (efm.CloudOps, error) {
		return NewCloudOpsFromSettings(ctx, settings, opts)
	}
}

// StaticConnector always hands out ops. Use in tests.
func StaticConnector(ops efm.CloudOps) efm.CloudConnector {
	return func(context.Context, *efm.Settings) (efm.CloudOps, error) {
		return ops, nil
	}
}
