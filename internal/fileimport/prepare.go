package fileimport

import (
	"context"

	"efm-go/internal/efm"
	"efm-go/internal/pipeline"
	"efm-go/internal/title"
)

// PreparedFile is one logical file of a source as seen before importing.
type PreparedFile struct {
	FileName string
	SHA1     efm.Checksum
	Size     efm.FileSize
	Existing bool // already in the collection
}

// PrepareResult summarises a source so the user can confirm an import.
type PrepareResult struct {
	Path          string
	FileType      efm.FileType
	IsArchive     bool
	SuggestedName string
	Files         []PreparedFile
	NewFiles      int
	ExistingFiles int
	// MatchingFileSets are sets whose members equal the source's content.
	MatchingFileSets []*efm.FileSet
}

type prepareContext struct {
	*Source
	result *PrepareResult
}

// newPreparePipeline reads a source without writing anything.
func newPreparePipeline(logger efm.Logger) *pipeline.Pipeline[*prepareContext] {
	return pipeline.New[*prepareContext](
		"prepare-import", logger,
		openSource[*prepareContext]{},
		collectFileInfo[*prepareContext]{},
		checkExistingFiles[*prepareContext]{},
		pipeline.Func[*prepareContext]{StepName: "find-matching-file-sets", Run: findMatchingFileSets},
		pipeline.Func[*prepareContext]{StepName: "summarise", Run: summarise},
	)
}

func findMatchingFileSets(ctx context.Context, c *prepareContext) pipeline.Action {
	sets, err := c.Repos.FileSets().FindByChecksumSet(ctx, Checksums(c.Records))
	if err != nil {
		return pipeline.Abort(err)
	}
	c.result.MatchingFileSets = sets
	return pipeline.Continue
}

func summarise(ctx context.Context, c *prepareContext) pipeline.Action {
	r := c.result
	r.Path = c.Path
	r.FileType = c.FileType
	r.IsArchive = c.IsArchive
	r.SuggestedName = title.FileSetName(c.Path)
	for _, rec := range c.Records {
		r.Files = append(r.Files, PreparedFile{
			FileName: rec.FileName,
			SHA1:     rec.SHA1,
			Size:     rec.Size,
			Existing: rec.Stored,
		})
		if rec.Stored {
			r.ExistingFiles++
		} else {
			r.NewFiles++
		}
	}
	return pipeline.Continue
}

// Prepare runs the prepare pipeline for path.
func Prepare(ctx context.Context, deps Deps, path string, ft efm.FileType) (*PrepareResult, error) {
	c := &prepareContext{
		Source: &Source{Deps: deps, Path: path, FileType: ft},
		result: &PrepareResult{},
	}
	if err := run(ctx, newPreparePipeline(deps.Logger), c); err != nil {
		return nil, err
	}
	return c.result, nil
}
