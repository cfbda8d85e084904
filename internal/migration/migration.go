// Package migration folds legacy fine-grained file types into the current
// coarser ones.
//
// Blobs move between typed directories locally and in the cloud before the
// database is retyped, so an interrupted run leaves the database pointing at
// the old paths and the next run completes the moves. Both sides of every move
// are checked, which makes the migration safe to run repeatedly.
package migration

import (
	"context"
	"os"
	"path/filepath"

	"efm-go/internal/cloudsync"
	"efm-go/internal/efm"
	"efm-go/internal/pipeline"
)

// Deps are the collaborators of a migration run.
type Deps struct {
	Repos   efm.Repositories
	Store   efm.BlobStore
	Connect efm.CloudConnector
	Logger  efm.Logger
}

// Result reports a migration run.
type Result struct {
	MovedFiles   int
	MovedObjects int
	// Requeued are uploaded FileInfos whose object was missing in the cloud;
	// they are pending-upload again.
	Requeued        int
	RetypedFileSets int
	RetypedFiles    int
}

type migrationContext struct {
	*cloudsync.Cloud
	deps   Deps
	files  []*efm.FileInfo
	sets   []*efm.FileSet
	result *Result
}

// NeedsCloud is true when legacy content may exist in the cloud.
func (c *migrationContext) NeedsCloud() bool {
	for _, fi := range c.files {
		if inCloud(fi) {
			return true
		}
	}
	return false
}

func (c *migrationContext) logger() efm.Logger {
	if c.deps.Logger == nil {
		return efm.NewNopLogger()
	}
	return c.deps.Logger
}

func inCloud(fi *efm.FileInfo) bool {
	return fi.CloudSyncState == efm.SyncUploaded || fi.CloudSyncState == efm.SyncPendingDelete
}

func target(ft efm.FileType) efm.FileType {
	m, ok := ft.Migration()
	if !ok {
		return ft
	}
	return m.To
}

func newMigrationPipeline(logger efm.Logger) *pipeline.Pipeline[*migrationContext] {
	return pipeline.New[*migrationContext](
		"migrate-file-types", logger,
		pipeline.Func[*migrationContext]{StepName: "collect-legacy-files", Run: collectLegacyFiles},
		cloudsync.ConnectToCloud[*migrationContext]{},
		cloudsync.TestConnectToCloud[*migrationContext]{},
		pipeline.Func[*migrationContext]{StepName: "move-local-files", Run: moveLocalFiles},
		pipeline.Func[*migrationContext]{
			StepName:  "move-cloud-objects",
			Predicate: func(c *migrationContext) bool { return c.NeedsCloud() },
			Run:       moveCloudObjects,
		},
		pipeline.Func[*migrationContext]{StepName: "update-database", Run: updateDatabase},
	)
}

func collectLegacyFiles(ctx context.Context, c *migrationContext) pipeline.Action {
	legacy := efm.LegacyFileTypes()
	files, err := c.deps.Repos.FileInfos().ListByFileTypes(ctx, legacy)
	if err != nil {
		return pipeline.Abort(err)
	}
	sets, err := c.deps.Repos.FileSets().ListByFileTypes(ctx, legacy)
	if err != nil {
		return pipeline.Abort(err)
	}
	c.files, c.sets = files, sets

	if len(files) == 0 && len(sets) == 0 {
		c.logger().Info("no legacy file types left")
		return pipeline.Skip
	}
	c.logger().Info("migrating legacy file types", "files", len(files), "file_sets", len(sets))

	if c.NeedsCloud() {
		settings, err := c.deps.Repos.Settings().Get(ctx)
		if err != nil {
			return pipeline.Abort(err)
		}
		c.Settings = settings
	}
	return pipeline.Continue
}

// moveLocalFiles relocates blobs that are on disk under their legacy slug.
func moveLocalFiles(ctx context.Context, c *migrationContext) pipeline.Action {
	for _, fi := range c.files {
		to := target(fi.FileType)
		ok, err := c.deps.Store.Exists(fi.FileType, fi.ArchiveFileName)
		if err != nil {
			return pipeline.Abort(err)
		}
		if !ok {
			continue
		}
		if err := c.deps.Store.Move(fi.ArchiveFileName, fi.FileType, to); err != nil {
			return pipeline.Abort(err)
		}
		c.result.MovedFiles++
	}
	return pipeline.Continue
}

func moveCloudObjects(ctx context.Context, c *migrationContext) pipeline.Action {
	for _, fi := range c.files {
		if !inCloud(fi) {
			continue
		}
		from := efm.CloudKeyFor(fi)
		to := efm.CloudKey(target(fi.FileType), fi.ArchiveFileName)

		srcExists, err := c.Ops.Exists(ctx, from)
		if err != nil {
			return pipeline.Abort(efm.NewCloudSyncError("checking "+from, err))
		}
		if !srcExists {
			dstExists, err := c.Ops.Exists(ctx, to)
			if err != nil {
				return pipeline.Abort(efm.NewCloudSyncError("checking "+to, err))
			}
			if !dstExists && fi.CloudSyncState == efm.SyncUploaded {
				// the object is gone; upload it again under the new key
				if err := c.deps.Repos.FileInfos().SetSyncState(ctx, fi.ID, efm.SyncPendingUpload); err != nil {
					return pipeline.Abort(err)
				}
				c.logger().Warn("cloud object missing, queued for upload", "key", from)
				c.result.Requeued++
			}
			continue
		}

		if err := moveObject(ctx, c.Ops, from, to); err != nil {
			return pipeline.Abort(err)
		}
		c.result.MovedObjects++
	}
	return pipeline.Continue
}

// moveObject uses a server-side move when the provider has one and falls
// back to download, upload and delete.
func moveObject(ctx context.Context, ops efm.CloudOps, from, to string) error {
	if mover, ok := ops.(efm.CloudMover); ok {
		if err := mover.Move(ctx, from, to); err != nil {
			return efm.NewCloudSyncError("moving "+from, err)
		}
		return nil
	}

	dir, err := os.MkdirTemp("", "efm-migrate-")
	if err != nil {
		return efm.NewIOError("creating temp directory", err)
	}
	defer os.RemoveAll(dir)

	tmp := filepath.Join(dir, "object")
	if err := ops.Download(ctx, from, tmp, nil); err != nil {
		return efm.NewCloudSyncError("copying "+from, err)
	}
	if err := ops.Upload(ctx, tmp, to, nil); err != nil {
		return efm.NewCloudSyncError("copying to "+to, err)
	}
	if err := ops.Delete(ctx, from); err != nil {
		return efm.NewCloudSyncError("deleting "+from, err)
	}
	return nil
}

func updateDatabase(ctx context.Context, c *migrationContext) pipeline.Action {
	plan := efm.MigrationPlan{FileInfoIDs: make(map[int64]efm.FileType, len(c.files))}
	for _, fi := range c.files {
		plan.FileInfoIDs[fi.ID] = target(fi.FileType)
	}
	for _, fs := range c.sets {
		m, ok := fs.FileType.Migration()
		if !ok {
			continue
		}
		plan.FileSets = append(plan.FileSets, efm.FileSetMigration{FileSetID: fs.ID, To: m.To, Item: m.Item})
	}

	if err := c.deps.Repos.FileSets().MigrateFileTypes(ctx, plan); err != nil {
		return pipeline.Abort(err)
	}
	c.result.RetypedFiles = len(plan.FileInfoIDs)
	c.result.RetypedFileSets = len(plan.FileSets)
	c.logger().Info("file types migrated", "files", c.result.RetypedFiles, "file_sets", c.result.RetypedFileSets)
	return pipeline.Continue
}

// Migrate runs the file type migration.
func Migrate(ctx context.Context, deps Deps) (*Result, error) {
	c := &migrationContext{
		Cloud:  &cloudsync.Cloud{Connect: deps.Connect},
		deps:   deps,
		result: &Result{},
	}
	if err := newMigrationPipeline(deps.Logger).Run(ctx, c); err != nil {
		return c.result, err
	}
	return c.result, nil
}
