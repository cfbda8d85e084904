// Package cloudsync mirrors the local collection to a cloud object store.
//
// A sync run uploads every pending-upload blob and removes the remote object
// of every pending-delete FileInfo. Per-file failures never stop a run: the
// FileInfo keeps its state and the next run retries it.
package cloudsync

import (
	"context"
	"os"
	"path/filepath"

	"efm-go/internal/efm"
	"efm-go/internal/pipeline"
)

// DatabaseKey is where database snapshots are stored in the cloud.
const DatabaseKey = "metadata/db.sqlite"

// Deps are the collaborators of a sync run.
type Deps struct {
	Repos   efm.Repositories
	Connect efm.CloudConnector
	Logger  efm.Logger
	// Progress receives sync events. Nil disables reporting.
	Progress chan<- efm.ProgressEvent
}

// Options tune a sync run.
type Options struct {
	// UploadDatabase uploads a snapshot of the database after the files.
	UploadDatabase bool
}

// Result aggregates a sync run.
type Result struct {
	SuccessfulUploads   int
	FailedUploads       int
	SuccessfulDeletions int
	FailedDeletions     int
	// UploadErrors and DeletionErrors are keyed by cloud key.
	UploadErrors     map[string]string
	DeletionErrors   map[string]string
	DatabaseUploaded bool
}

type uploadItem struct {
	info      *efm.FileInfo
	key       string
	localPath string
}

type syncContext struct {
	*Cloud
	Deps
	opts      Options
	layout    efm.CollectionLayout
	uploads   []uploadItem
	deletions []*efm.FileInfo
	result    *Result
}

func (c *syncContext) logger() efm.Logger {
	if c.Logger == nil {
		return efm.NewNopLogger()
	}
	return c.Logger
}

func (c *syncContext) total() int { return len(c.uploads) + len(c.deletions) }

func newSyncPipeline(logger efm.Logger) *pipeline.Pipeline[*syncContext] {
	return pipeline.New[*syncContext](
		"sync-to-cloud", logger,
		pipeline.Func[*syncContext]{StepName: "load-settings", Run: loadSettings},
		pipeline.Func[*syncContext]{StepName: "prepare-files-for-upload", Run: prepareFilesForUpload},
		pipeline.Func[*syncContext]{StepName: "prepare-files-for-deletion", Run: prepareFilesForDeletion},
		pipeline.Func[*syncContext]{
			StepName:  "nothing-to-sync",
			Predicate: func(c *syncContext) bool { return c.total() == 0 && !c.opts.UploadDatabase },
			Run:       nothingToSync,
		},
		ConnectToCloud[*syncContext]{},
		pipeline.Func[*syncContext]{StepName: "upload-pending-files", Run: uploadPendingFiles},
		pipeline.Func[*syncContext]{
			StepName:  "delete-marked-files",
			Predicate: func(c *syncContext) bool { return len(c.deletions) > 0 },
			Run:       deleteMarkedFiles,
		},
		pipeline.Func[*syncContext]{
			StepName:  "upload-database",
			Predicate: func(c *syncContext) bool { return c.opts.UploadDatabase },
			Run:       uploadDatabase,
		},
		pipeline.Func[*syncContext]{StepName: "sync-completed", Run: syncCompleted},
	)
}

func loadSettings(ctx context.Context, c *syncContext) pipeline.Action {
	if c.Settings == nil {
		settings, err := c.Repos.Settings().Get(ctx)
		if err != nil {
			return pipeline.Abort(err)
		}
		c.Settings = settings
	}
	layout, err := c.Settings.Layout()
	if err != nil {
		return pipeline.Abort(err)
	}
	c.layout = layout
	return pipeline.Continue
}

func prepareFilesForUpload(ctx context.Context, c *syncContext) pipeline.Action {
	infos, err := c.Repos.FileInfos().ListBySyncState(ctx, efm.SyncPendingUpload)
	if err != nil {
		return pipeline.Abort(err)
	}
	for _, fi := range infos {
		c.uploads = append(c.uploads, uploadItem{
			info:      fi,
			key:       efm.CloudKeyFor(fi),
			localPath: c.layout.PathFor(fi),
		})
	}
	return pipeline.Continue
}

func prepareFilesForDeletion(ctx context.Context, c *syncContext) pipeline.Action {
	infos, err := c.Repos.FileInfos().ListBySyncState(ctx, efm.SyncPendingDelete)
	if err != nil {
		return pipeline.Abort(err)
	}
	c.deletions = infos
	return pipeline.Continue
}

func nothingToSync(ctx context.Context, c *syncContext) pipeline.Action {
	c.logger().Info("nothing to sync")
	if err := efm.Emit(ctx, c.Progress, efm.SyncStarted{TotalFiles: 0}); err != nil {
		return pipeline.Abort(err)
	}
	if err := efm.Emit(ctx, c.Progress, efm.SyncCompleted{}); err != nil {
		return pipeline.Abort(err)
	}
	return pipeline.Skip
}

// uploadPendingFiles uploads sequentially. A failed file stays pending-upload.
func uploadPendingFiles(ctx context.Context, c *syncContext) pipeline.Action {
	if err := efm.Emit(ctx, c.Progress, efm.SyncStarted{TotalFiles: c.total()}); err != nil {
		return pipeline.Abort(err)
	}

	total := len(c.uploads)
	for i, item := range c.uploads {
		n := i + 1
		if err := efm.Emit(ctx, c.Progress, efm.FileUploadStarted{Key: item.key, FileNumber: n, TotalFiles: total}); err != nil {
			return pipeline.Abort(err)
		}

		err := uploadOne(ctx, c, item)
		if err == nil {
			err = c.Repos.FileInfos().SetSyncState(ctx, item.info.ID, efm.SyncUploaded)
		}
		if err != nil {
			if ctx.Err() != nil {
				return pipeline.Abort(efm.NewOperationCancelledError(ctx.Err()))
			}
			c.logger().Warn("upload failed", "key", item.key, "error", err)
			c.result.FailedUploads++
			c.result.UploadErrors[item.key] = err.Error()
			if err := efm.Emit(ctx, c.Progress, efm.FileUploadFailed{
				Key: item.key, FileNumber: n, TotalFiles: total, Error: err.Error(),
			}); err != nil {
				return pipeline.Abort(err)
			}
			continue
		}

		c.result.SuccessfulUploads++
		if err := efm.Emit(ctx, c.Progress, efm.FileUploadCompleted{Key: item.key, FileNumber: n, TotalFiles: total}); err != nil {
			return pipeline.Abort(err)
		}
	}
	return pipeline.Continue
}

func uploadOne(ctx context.Context, c *syncContext, item uploadItem) error {
	if _, err := os.Stat(item.localPath); err != nil {
		return efm.NewIOError("local file missing: "+item.localPath, err)
	}
	return c.Ops.Upload(ctx, item.localPath, item.key, c.Progress)
}

// deleteMarkedFiles removes remote objects and then the FileInfo rows.
// A missing remote object counts as deleted.
func deleteMarkedFiles(ctx context.Context, c *syncContext) pipeline.Action {
	total := len(c.deletions)
	for i, fi := range c.deletions {
		n := i + 1
		key := efm.CloudKeyFor(fi)
		if err := efm.Emit(ctx, c.Progress, efm.FileDeletionStarted{Key: key, FileNumber: n, TotalFiles: total}); err != nil {
			return pipeline.Abort(err)
		}

		err := c.Ops.Delete(ctx, key)
		if err == nil {
			err = c.Repos.FileInfos().Delete(ctx, fi.ID)
		}
		if err != nil {
			if ctx.Err() != nil {
				return pipeline.Abort(efm.NewOperationCancelledError(ctx.Err()))
			}
			c.logger().Warn("remote deletion failed", "key", key, "error", err)
			c.result.FailedDeletions++
			c.result.DeletionErrors[key] = err.Error()
			if err := efm.Emit(ctx, c.Progress, efm.FileDeletionFailed{
				Key: key, FileNumber: n, TotalFiles: total, Error: err.Error(),
			}); err != nil {
				return pipeline.Abort(err)
			}
			continue
		}

		c.result.SuccessfulDeletions++
		if err := efm.Emit(ctx, c.Progress, efm.FileDeletionCompleted{Key: key, FileNumber: n, TotalFiles: total}); err != nil {
			return pipeline.Abort(err)
		}
	}
	return pipeline.Continue
}

// uploadDatabase uploads a consistent snapshot of the database.
func uploadDatabase(ctx context.Context, c *syncContext) pipeline.Action {
	dir, err := os.MkdirTemp("", "efm-snapshot-")
	if err != nil {
		return pipeline.Abort(efm.NewIOError("creating snapshot directory", err))
	}
	defer os.RemoveAll(dir)

	snapshot := filepath.Join(dir, "db.sqlite")
	if err := c.Repos.BackupTo(snapshot); err != nil {
		return pipeline.Abort(err)
	}
	if err := c.Ops.Upload(ctx, snapshot, DatabaseKey, c.Progress); err != nil {
		return pipeline.Abort(efm.NewCloudSyncError("uploading database snapshot", err))
	}
	c.result.DatabaseUploaded = true
	c.logger().Info("database snapshot uploaded", "key", DatabaseKey)
	return pipeline.Continue
}

func syncCompleted(ctx context.Context, c *syncContext) pipeline.Action {
	c.logger().Info("sync completed",
		"uploaded", c.result.SuccessfulUploads, "upload_failures", c.result.FailedUploads,
		"deleted", c.result.SuccessfulDeletions, "deletion_failures", c.result.FailedDeletions)
	if err := efm.Emit(ctx, c.Progress, efm.SyncCompleted{}); err != nil {
		return pipeline.Abort(err)
	}
	return pipeline.Continue
}

// SyncToCloud runs one sync run. deps.Connect builds the cloud ops from the
// stored settings.
func SyncToCloud(ctx context.Context, deps Deps, opts Options) (*Result, error) {
	c := &syncContext{
		Cloud: &Cloud{Connect: deps.Connect},
		Deps:  deps,
		opts:  opts,
		result: &Result{
			UploadErrors:   map[string]string{},
			DeletionErrors: map[string]string{},
		},
	}
	if err := newSyncPipeline(deps.Logger).Run(ctx, c); err != nil {
		return c.result, err
	}
	return c.result, nil
}

// RestoreDatabase downloads the latest database snapshot to destPath. It
// refuses to overwrite an existing file.
func RestoreDatabase(ctx context.Context, ops efm.CloudOps, destPath string, progress chan<- efm.ProgressEvent) error {
	if _, err := os.Stat(destPath); err == nil {
		return efm.NewInvalidInputError("database already exists: " + destPath)
	}
	ok, err := ops.Exists(ctx, DatabaseKey)
	if err != nil {
		return efm.NewCloudSyncError("checking for database snapshot", err)
	}
	if !ok {
		return efm.NewDownloadError("no database snapshot in the cloud", nil)
	}
	return ops.Download(ctx, DatabaseKey, destPath, progress)
}
