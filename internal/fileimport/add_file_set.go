package fileimport

import (
	"context"
	"path/filepath"

	"efm-go/internal/efm"
	"efm-go/internal/pipeline"
	"efm-go/internal/title"
)

// AddFileSetInput describes a new file set imported from one source.
type AddFileSetInput struct {
	Path     string
	FileType efm.FileType
	// Name defaults to the source file name without its extension.
	Name              string
	CanonicalFileName string
	Source            string // provenance shown to the user, e.g. a URL
	SystemIDs         []int64
	Selected          []string
	ReleaseID         int64
	NewRelease        *efm.NewRelease
}

// Result is returned by the pipelines that write a file set.
type Result struct {
	FileSet *efm.FileSet
	Stored  []efm.Checksum
	// Skipped is set when an identical file set already existed.
	Skipped bool
	// Orphans are FileInfos no set references any more.
	Orphans []*efm.FileInfo
	// RemovedBlobs and FailedRemovals report local cleanup of orphans.
	RemovedBlobs   []string
	FailedRemovals map[string]string
}

type addFileSetContext struct {
	*Source
	in     AddFileSetInput
	result *Result
}

func newAddFileSetPipeline(logger efm.Logger) *pipeline.Pipeline[*addFileSetContext] {
	return pipeline.New[*addFileSetContext](
		"add-file-set", logger,
		openSource[*addFileSetContext]{},
		collectFileInfo[*addFileSetContext]{},
		checkExistingFiles[*addFileSetContext]{},
		importFiles[*addFileSetContext]{},
		pipeline.Func[*addFileSetContext]{StepName: "find-existing-file-set", Run: findExistingFileSet},
		pipeline.Func[*addFileSetContext]{StepName: "update-database", Run: createFileSet},
	)
}

// findExistingFileSet ends the pipeline when a set with the same name and
// the same content is already in the collection.
func findExistingFileSet(ctx context.Context, c *addFileSetContext) pipeline.Action {
	sets, err := c.Repos.FileSets().FindByChecksumSet(ctx, Checksums(c.Records))
	if err != nil {
		return pipeline.Abort(err)
	}
	for _, fs := range sets {
		if fs.Name == c.in.Name && fs.FileType == c.FileType {
			c.logger().Info("file set already imported", "file_set", fs.Name, "id", fs.ID)
			c.result.FileSet = fs
			c.result.Skipped = true
			return pipeline.Skip
		}
	}
	return pipeline.Continue
}

func createFileSet(ctx context.Context, c *addFileSetContext) pipeline.Action {
	fs, err := c.Repos.FileSets().Create(ctx, efm.NewFileSet{
		Name:              c.in.Name,
		CanonicalFileName: c.in.CanonicalFileName,
		FileType:          c.FileType,
		Source:            c.in.Source,
		SystemIDs:         c.in.SystemIDs,
		Members:           Members(c.Records, c.FileType),
		ReleaseID:         c.in.ReleaseID,
		NewRelease:        c.in.NewRelease,
	})
	if err != nil {
		return pipeline.Abort(err)
	}
	c.result.FileSet = fs
	c.logger().Info("file set created", "file_set", fs.Name, "id", fs.ID, "files", len(c.Records))
	return pipeline.Continue
}

// AddFileSet imports a source as a new file set.
func AddFileSet(ctx context.Context, deps Deps, in AddFileSetInput) (*Result, error) {
	if in.Name == "" {
		in.Name = title.FileSetName(in.Path)
	}
	if in.CanonicalFileName == "" {
		in.CanonicalFileName = filepath.Base(in.Path)
	}

	c := &addFileSetContext{
		Source: &Source{Deps: deps, Path: in.Path, FileType: in.FileType, Selected: in.Selected},
		in:     in,
		result: &Result{},
	}
	err := run(ctx, newAddFileSetPipeline(deps.Logger), c)
	c.result.Stored = c.Written.Stored
	return c.result, err
}
