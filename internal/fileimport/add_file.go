package fileimport

import (
	"context"

	"efm-go/internal/efm"
	"efm-go/internal/pipeline"
)

// AddFilesInput appends the files of a source to an existing set.
type AddFilesInput struct {
	FileSetID int64
	Path      string
	Selected  []string
}

type addFilesContext struct {
	*Source
	fileSetID int64
	fileSet   *efm.FileSet
	result    *Result
}

func newAddFilesPipeline(logger efm.Logger) *pipeline.Pipeline[*addFilesContext] {
	return pipeline.New[*addFilesContext](
		"add-file-to-file-set", logger,
		pipeline.Func[*addFilesContext]{StepName: "fetch-file-set", Run: fetchFileSetForAdd},
		openSource[*addFilesContext]{},
		collectFileInfo[*addFilesContext]{},
		pipeline.Func[*addFilesContext]{StepName: "validate-new-members", Run: dropExistingMembers},
		checkExistingFiles[*addFilesContext]{},
		importFiles[*addFilesContext]{},
		pipeline.Func[*addFilesContext]{StepName: "append-to-file-set", Run: appendToFileSet},
	)
}

func fetchFileSetForAdd(ctx context.Context, c *addFilesContext) pipeline.Action {
	fs, err := c.Repos.FileSets().Get(ctx, c.fileSetID)
	if err != nil {
		return pipeline.Abort(err)
	}
	if fs == nil {
		return pipeline.Abort(fileSetNotFound(c.fileSetID))
	}
	c.fileSet = fs
	c.FileType = fs.FileType
	return pipeline.Continue
}

// dropExistingMembers removes records whose hash is already a member of the
// set. When nothing is left the pipeline ends without changes.
func dropExistingMembers(ctx context.Context, c *addFilesContext) pipeline.Action {
	files, err := c.Repos.FileSets().Files(ctx, c.fileSetID)
	if err != nil {
		return pipeline.Abort(err)
	}
	members := make(map[efm.Checksum]bool, len(files))
	for _, f := range files {
		members[f.FileInfo.SHA1] = true
	}

	var keep []*Record
	for _, r := range c.Records {
		if members[r.SHA1] {
			c.logger().Info("file already in file set", "file", r.FileName, "file_set", c.fileSet.Name)
			continue
		}
		keep = append(keep, r)
	}
	c.Records = keep
	if len(keep) == 0 {
		c.result.FileSet = c.fileSet
		c.result.Skipped = true
		return pipeline.Skip
	}
	return pipeline.Continue
}

func appendToFileSet(ctx context.Context, c *addFilesContext) pipeline.Action {
	if err := c.Repos.FileSets().AddFiles(ctx, c.fileSetID, Members(c.Records, c.FileType)); err != nil {
		return pipeline.Abort(err)
	}
	c.result.FileSet = c.fileSet
	return pipeline.Continue
}

// AddFilesToFileSet imports a source and appends its files to a set.
func AddFilesToFileSet(ctx context.Context, deps Deps, in AddFilesInput) (*Result, error) {
	c := &addFilesContext{
		Source:    &Source{Deps: deps, Path: in.Path, Selected: in.Selected},
		fileSetID: in.FileSetID,
		result:    &Result{},
	}
	err := run(ctx, newAddFilesPipeline(deps.Logger), c)
	c.result.Stored = c.Written.Stored
	return c.result, err
}
