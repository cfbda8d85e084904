package fileimport

import (
	"context"

	"efm-go/internal/efm"
	"efm-go/internal/pipeline"
)

// UpdateFileSetInput replaces the content of a set with the files of a
// source. Empty attributes keep their current values; a nil SystemIDs keeps
// the current systems.
type UpdateFileSetInput struct {
	FileSetID         int64
	Path              string
	Selected          []string
	Name              string
	CanonicalFileName string
	Source            string
	SystemIDs         []int64
}

type updateContext struct {
	*Source
	in      UpdateFileSetInput
	current *efm.FileSet
	result  *Result
}

func newUpdateFileSetPipeline(logger efm.Logger) *pipeline.Pipeline[*updateContext] {
	return pipeline.New[*updateContext](
		"update-file-set", logger,
		pipeline.Func[*updateContext]{StepName: "fetch-file-set", Run: fetchFileSetForUpdate},
		openSource[*updateContext]{},
		collectFileInfo[*updateContext]{},
		checkExistingFiles[*updateContext]{},
		importFiles[*updateContext]{},
		pipeline.Func[*updateContext]{StepName: "update-database", Run: rewriteFileSet},
		pipeline.Func[*updateContext]{
			StepName:  "remove-orphaned-files",
			Predicate: func(c *updateContext) bool { return len(c.result.Orphans) > 0 },
			Run:       removeOrphanedFiles,
		},
	)
}

func fetchFileSetForUpdate(ctx context.Context, c *updateContext) pipeline.Action {
	fs, err := c.Repos.FileSets().Get(ctx, c.in.FileSetID)
	if err != nil {
		return pipeline.Abort(err)
	}
	if fs == nil {
		return pipeline.Abort(fileSetNotFound(c.in.FileSetID))
	}
	c.current = fs
	c.FileType = fs.FileType
	return pipeline.Continue
}

// rewriteFileSet replaces attributes and membership in one transaction.
// FileInfos dropped from every set are tombstoned in the same transaction.
func rewriteFileSet(ctx context.Context, c *updateContext) pipeline.Action {
	upd := efm.UpdateFileSet{
		Name:              c.current.Name,
		CanonicalFileName: c.current.CanonicalFileName,
		Source:            c.current.Source,
		SystemIDs:         c.current.SystemIDs,
		Members:           Members(c.Records, c.FileType),
	}
	if c.in.Name != "" {
		upd.Name = c.in.Name
	}
	if c.in.CanonicalFileName != "" {
		upd.CanonicalFileName = c.in.CanonicalFileName
	}
	if c.in.Source != "" {
		upd.Source = c.in.Source
	}
	if c.in.SystemIDs != nil {
		upd.SystemIDs = c.in.SystemIDs
	}

	orphans, err := c.Repos.FileSets().Update(ctx, c.current.ID, upd)
	if err != nil {
		return pipeline.Abort(err)
	}
	c.result.Orphans = orphans

	fs, err := c.Repos.FileSets().Get(ctx, c.current.ID)
	if err != nil {
		return pipeline.Abort(err)
	}
	c.result.FileSet = fs
	return pipeline.Continue
}

// removeOrphanedFiles deletes the local blobs of orphaned FileInfos. Failures
// are recorded and do not fail the pipeline.
func removeOrphanedFiles(ctx context.Context, c *updateContext) pipeline.Action {
	removed, failed := RemoveBlobs(c.Store, c.result.Orphans, c.logger())
	c.result.RemovedBlobs = removed
	c.result.FailedRemovals = failed
	return pipeline.Continue
}

// RemoveBlobs deletes the local blobs of infos, best effort. It returns the
// removed archive names and the failures by archive name.
func RemoveBlobs(store efm.BlobStore, infos []*efm.FileInfo, logger efm.Logger) ([]string, map[string]string) {
	var removed []string
	failed := map[string]string{}
	for _, fi := range infos {
		if err := store.Delete(fi.FileType, fi.ArchiveFileName); err != nil {
			logger.Warn("removing local file failed", "file", fi.ArchiveFileName, "error", err)
			failed[fi.ArchiveFileName] = err.Error()
			continue
		}
		removed = append(removed, fi.ArchiveFileName)
	}
	return removed, failed
}

// UpdateFileSet replaces a set's content with the files of a source.
func UpdateFileSet(ctx context.Context, deps Deps, in UpdateFileSetInput) (*Result, error) {
	c := &updateContext{
		Source: &Source{Deps: deps, Path: in.Path, Selected: in.Selected},
		in:     in,
		result: &Result{},
	}
	err := run(ctx, newUpdateFileSetPipeline(deps.Logger), c)
	c.result.Stored = c.Written.Stored
	return c.result, err
}
