package efm

import (
	"context"
)

// CloudOps is a provider-agnostic object store mirroring the collection layout.
// Implementations perform multipart upload internally for large files and
// report PartUploaded / PartUploadFailed events on the progress channel.
// A nil progress channel disables reporting.
type CloudOps interface {
	Upload(ctx context.Context, localPath, key string, progress chan<- ProgressEvent) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Download(ctx context.Context, key, destPath string, progress chan<- ProgressEvent) error
	TestConnection(ctx context.Context) error
}

// CloudMover is implemented by providers that can move objects server-side.
type CloudMover interface {
	Move(ctx context.Context, fromKey, toKey string) error
}

// CloudConnector instantiates cloud ops from the current settings.
type CloudConnector func(ctx context.Context, settings *Settings) (CloudOps, error)
