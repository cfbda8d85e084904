// Package deletion removes a file set from the collection.
//
// Deleting a set never removes cloud objects directly. FileInfos that no set
// references any more are tombstoned as pending-delete when the cloud may
// hold them, and the next sync run removes the remote object and the row.
package deletion

import (
	"context"
	"fmt"

	"efm-go/internal/efm"
	"efm-go/internal/pipeline"
)

// Deps are the collaborators of the deletion pipeline.
type Deps struct {
	Repos  efm.Repositories
	Store  efm.BlobStore
	Logger efm.Logger
}

// Result reports what a deletion did.
type Result struct {
	FileSet *efm.FileSet
	// Deletable are the FileInfos no set references after the deletion.
	Deletable []*efm.FileInfo
	// Tombstoned are the deletable FileInfos left for the next sync run.
	Tombstoned []*efm.FileInfo
	// RemovedRows are ids of local-only FileInfos deleted outright.
	RemovedRows []int64
	// DeletedFiles lists archive names removed from disk.
	DeletedFiles []string
	// FailedDeletions maps archive names to the local removal error.
	FailedDeletions map[string]string
}

type deletionContext struct {
	Deps
	fileSetID int64
	infos     []*efm.FileInfo
	result    *Result
}

func (c *deletionContext) logger() efm.Logger {
	if c.Logger == nil {
		return efm.NewNopLogger()
	}
	return c.Logger
}

func newDeletionPipeline(logger efm.Logger) *pipeline.Pipeline[*deletionContext] {
	return pipeline.New[*deletionContext](
		"delete-file-set", logger,
		pipeline.Func[*deletionContext]{StepName: "validate-not-in-use", Run: validateNotInUse},
		pipeline.Func[*deletionContext]{StepName: "fetch-file-infos", Run: fetchFileInfos},
		pipeline.Func[*deletionContext]{StepName: "delete-file-set", Run: deleteFileSet},
		pipeline.Func[*deletionContext]{StepName: "filter-deletable-files", Run: filterDeletableFiles},
		pipeline.Func[*deletionContext]{
			StepName:  "mark-for-cloud-deletion",
			Predicate: hasDeletable,
			Run:       markForCloudDeletion,
		},
		pipeline.Func[*deletionContext]{
			StepName:  "delete-local-files",
			Predicate: hasDeletable,
			Run:       deleteLocalFiles,
		},
	)
}

func hasDeletable(c *deletionContext) bool { return len(c.result.Deletable) > 0 }

func validateNotInUse(ctx context.Context, c *deletionContext) pipeline.Action {
	fs, err := c.Repos.FileSets().Get(ctx, c.fileSetID)
	if err != nil {
		return pipeline.Abort(err)
	}
	if fs == nil {
		return pipeline.Abort(efm.NewInvalidInputError(fmt.Sprintf("file set %d does not exist", c.fileSetID)))
	}
	c.result.FileSet = fs

	inUse, err := c.Repos.FileSets().IsInUse(ctx, c.fileSetID)
	if err != nil {
		return pipeline.Abort(err)
	}
	if inUse {
		return pipeline.Abort(efm.NewInUseError(fmt.Sprintf("file set %q is referenced by a release item", fs.Name)))
	}
	return pipeline.Continue
}

func fetchFileInfos(ctx context.Context, c *deletionContext) pipeline.Action {
	files, err := c.Repos.FileSets().Files(ctx, c.fileSetID)
	if err != nil {
		return pipeline.Abort(err)
	}
	seen := make(map[int64]bool, len(files))
	for _, f := range files {
		if seen[f.FileInfo.ID] {
			continue
		}
		seen[f.FileInfo.ID] = true
		fi := f.FileInfo
		c.infos = append(c.infos, &fi)
	}
	return pipeline.Continue
}

func deleteFileSet(ctx context.Context, c *deletionContext) pipeline.Action {
	if err := c.Repos.FileSets().Delete(ctx, c.fileSetID); err != nil {
		return pipeline.Abort(err)
	}
	c.logger().Info("file set deleted", "file_set", c.result.FileSet.Name, "id", c.fileSetID)
	return pipeline.Continue
}

// filterDeletableFiles keeps the FileInfos whose reference count dropped to zero.
func filterDeletableFiles(ctx context.Context, c *deletionContext) pipeline.Action {
	for _, fi := range c.infos {
		n, err := c.Repos.FileInfos().RefCount(ctx, fi.ID)
		if err != nil {
			return pipeline.Abort(err)
		}
		if n == 0 {
			c.result.Deletable = append(c.result.Deletable, fi)
		}
	}
	return pipeline.Continue
}

// markForCloudDeletion tombstones content the cloud may hold. Local-only rows
// are deleted since no sync run needs them.
func markForCloudDeletion(ctx context.Context, c *deletionContext) pipeline.Action {
	for _, fi := range c.result.Deletable {
		switch fi.CloudSyncState {
		case efm.SyncUploaded, efm.SyncPendingUpload:
			if err := c.Repos.FileInfos().SetSyncState(ctx, fi.ID, efm.SyncPendingDelete); err != nil {
				return pipeline.Abort(err)
			}
			fi.CloudSyncState = efm.SyncPendingDelete
			c.result.Tombstoned = append(c.result.Tombstoned, fi)
		case efm.SyncPendingDelete:
			c.result.Tombstoned = append(c.result.Tombstoned, fi)
		case efm.SyncLocalOnly:
			if err := c.Repos.FileInfos().Delete(ctx, fi.ID); err != nil {
				return pipeline.Abort(err)
			}
			c.result.RemovedRows = append(c.result.RemovedRows, fi.ID)
		}
	}
	return pipeline.Continue
}

// deleteLocalFiles removes the blobs of deletable files, best effort.
func deleteLocalFiles(ctx context.Context, c *deletionContext) pipeline.Action {
	c.result.FailedDeletions = map[string]string{}
	for _, fi := range c.result.Deletable {
		if err := c.Store.Delete(fi.FileType, fi.ArchiveFileName); err != nil {
			c.logger().Warn("removing local file failed", "file", fi.ArchiveFileName, "error", err)
			c.result.FailedDeletions[fi.ArchiveFileName] = err.Error()
			continue
		}
		c.result.DeletedFiles = append(c.result.DeletedFiles, fi.ArchiveFileName)
	}
	return pipeline.Continue
}

// DeleteFileSet runs the deletion pipeline for one file set.
func DeleteFileSet(ctx context.Context, deps Deps, fileSetID int64) (*Result, error) {
	c := &deletionContext{Deps: deps, fileSetID: fileSetID, result: &Result{}}
	if err := newDeletionPipeline(deps.Logger).Run(ctx, c); err != nil {
		return c.result, err
	}
	return c.result, nil
}
