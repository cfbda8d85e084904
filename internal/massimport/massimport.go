// Package massimport imports a whole directory of files as file sets.
//
// With a DAT catalog, files are matched to catalog entries by SHA-1 and one
// set is created per entry whose files are all present; the sets are then
// linked to releases and software titles derived from the entry names.
// Without a catalog every source file becomes its own set, named after the
// file.
//
// One FileSetImported event is emitted per set, in the order the sets were
// built, after all sets have been processed.
package massimport

import (
	"context"

	"efm-go/internal/dat"
	"efm-go/internal/efm"
	"efm-go/internal/fileimport"
	"efm-go/internal/fs"
	"efm-go/internal/pipeline"
)

// Deps are the collaborators of a mass import.
type Deps struct {
	Repos      efm.Repositories
	Store      efm.BlobStore
	OpenReader efm.MetadataReaderFactory
	Parser     efm.DatParser
	Logger     efm.Logger
	// Progress receives FileSetImported events. Nil disables reporting.
	Progress chan<- efm.ProgressEvent
}

// Input describes what to import.
type Input struct {
	Dir string
	// DatPath is optional.
	DatPath   string
	FileType  efm.FileType
	SystemID  int64
	Recursive bool
	// ItemType, when set, adds a release item of this type for every linked set.
	ItemType *efm.ReleaseItemType
	// Ignore holds extra ignore patterns on top of the defaults and the
	// directory's ignore file.
	Ignore []string
}

// ItemResult is the outcome for one file set.
type ItemResult struct {
	Name      string
	FileSetID int64
	Status    efm.ImportStatus
}

// Result reports a mass import.
type Result struct {
	Items []ItemResult
	// ReadErrors are sources that could not be read, by path.
	ReadErrors map[string]string
	// Unmatched are sources with no file in any fully present catalog entry.
	Unmatched []string
	DatFile   *efm.DatFile
	// DatFileStored is false when the catalog was already in the database.
	DatFileStored bool
}

// candidate is a readable source file and its logical files.
type candidate struct {
	path    string
	records []*fileimport.Record
}

// member places one logical file of a source into a set.
type member struct {
	source   string
	record   *fileimport.Record
	fileName string // name inside the set
}

// importItem is a file set to be created.
type importItem struct {
	name      string
	canonical string
	game      *efm.DatGame
	members   []member
	warnings  []string

	fileSet  *efm.FileSet
	existing bool
	failed   string
}

type massImportContext struct {
	deps       Deps
	in         Input
	paths      []string
	candidates []*candidate
	dat        *efm.DatFile
	items      []*importItem
	result     *Result
}

func (c *massImportContext) logger() efm.Logger {
	if c.deps.Logger == nil {
		return efm.NewNopLogger()
	}
	return c.deps.Logger
}

func (c *massImportContext) hasDat() bool { return c.in.DatPath != "" }

func newMassImportPipeline(logger efm.Logger) *pipeline.Pipeline[*massImportContext] {
	withDat := func(c *massImportContext) bool { return c.hasDat() }
	withoutDat := func(c *massImportContext) bool { return !c.hasDat() }

	return pipeline.New[*massImportContext](
		"mass-import", logger,
		pipeline.Func[*massImportContext]{StepName: "read-files", Run: readFiles},
		pipeline.Func[*massImportContext]{StepName: "read-file-metadata", Run: readFileMetadata},
		pipeline.Func[*massImportContext]{StepName: "import-dat-file", Predicate: withDat, Run: importDatFile},
		pipeline.Func[*massImportContext]{StepName: "check-existing-dat-file", Predicate: withDat, Run: checkExistingDatFile},
		pipeline.Func[*massImportContext]{
			StepName:  "store-dat-file",
			Predicate: func(c *massImportContext) bool { return c.dat != nil && c.dat.ID == 0 },
			Run:       storeDatFile,
		},
		pipeline.Func[*massImportContext]{StepName: "build-import-items-from-dat", Predicate: withDat, Run: buildItemsFromDat},
		pipeline.Func[*massImportContext]{StepName: "build-import-items-from-file-names", Predicate: withoutDat, Run: buildItemsFromFileNames},
		pipeline.Func[*massImportContext]{StepName: "filter-existing-file-sets", Run: filterExistingFileSets},
		pipeline.Func[*massImportContext]{StepName: "import-file-sets", Run: importFileSets},
		pipeline.Func[*massImportContext]{StepName: "link-existing-file-sets", Predicate: withDat, Run: linkFileSets},
		pipeline.Func[*massImportContext]{StepName: "report", Run: report},
	)
}

func readFiles(ctx context.Context, c *massImportContext) pipeline.Action {
	if c.in.Dir == "" {
		return pipeline.Abort(efm.NewInvalidInputError("source directory is required"))
	}
	if !c.in.FileType.Valid() {
		return pipeline.Abort(efm.NewInvalidInputError("invalid file type"))
	}
	matcher, err := fs.LoadIgnoreMatcher(c.in.Dir, c.in.Ignore)
	if err != nil {
		return pipeline.Abort(efm.NewIOError("loading ignore patterns", err))
	}
	paths, err := fs.FindFiles(c.in.Dir, c.in.Recursive, matcher)
	if err != nil {
		return pipeline.Abort(efm.NewFileImportError("reading "+c.in.Dir, err))
	}
	c.paths = paths
	c.logger().Info("found source files", "dir", c.in.Dir, "files", len(paths))
	return pipeline.Continue
}

// readFileMetadata hashes every source. Unreadable sources are recorded and
// left out.
func readFileMetadata(ctx context.Context, c *massImportContext) pipeline.Action {
	for _, p := range c.paths {
		if err := ctx.Err(); err != nil {
			return pipeline.Abort(efm.NewOperationCancelledError(err))
		}
		records, err := readRecords(c.deps.OpenReader, p)
		if err != nil {
			c.logger().Warn("reading source failed", "path", p, "error", err)
			c.result.ReadErrors[p] = err.Error()
			continue
		}
		if len(records) == 0 {
			continue
		}
		c.candidates = append(c.candidates, &candidate{path: p, records: records})
	}
	return pipeline.Continue
}

func readRecords(open efm.MetadataReaderFactory, path string) ([]*fileimport.Record, error) {
	r, err := open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return fileimport.ReadRecords(r)
}

func importDatFile(ctx context.Context, c *massImportContext) pipeline.Action {
	dat, err := c.deps.Parser.Parse(c.in.DatPath)
	if err != nil {
		return pipeline.Abort(err)
	}
	if c.in.SystemID != 0 {
		dat.SystemID.Int64, dat.SystemID.Valid = c.in.SystemID, true
	}
	c.dat = dat
	return pipeline.Continue
}

// checkExistingDatFile looks the DAT up by the SHA-1 of its text. A DAT that
// is already stored is not stored again but still drives matching, so new
// files can be imported against a catalog seen before.
func checkExistingDatFile(ctx context.Context, c *massImportContext) pipeline.Action {
	stored, err := c.deps.Repos.DatFiles().FindBySHA1(ctx, c.dat.SHA1)
	if err != nil {
		return pipeline.Abort(err)
	}
	if stored != nil {
		c.logger().Info("dat file already stored", "name", stored.Name, "id", stored.ID)
		c.dat.ID = stored.ID
	}
	c.result.DatFile = c.dat
	return pipeline.Continue
}

func storeDatFile(ctx context.Context, c *massImportContext) pipeline.Action {
	stored, err := c.deps.Repos.DatFiles().Add(ctx, c.dat)
	if err != nil {
		return pipeline.Abort(err)
	}
	c.dat.ID = stored.ID
	c.result.DatFileStored = true
	return pipeline.Continue
}

func report(ctx context.Context, c *massImportContext) pipeline.Action {
	for _, it := range c.items {
		res := ItemResult{Name: it.name, Status: it.status()}
		if it.fileSet != nil {
			res.FileSetID = it.fileSet.ID
		}
		c.result.Items = append(c.result.Items, res)
		if err := efm.Emit(ctx, c.deps.Progress, efm.FileSetImported{FileSetName: it.name, Status: res.Status}); err != nil {
			return pipeline.Abort(err)
		}
	}
	return pipeline.Continue
}

func (it *importItem) status() efm.ImportStatus {
	switch {
	case it.failed != "":
		return efm.ImportStatus{Kind: efm.ImportFailed, Error: it.failed, Warnings: it.warnings}
	case len(it.warnings) > 0:
		return efm.ImportStatus{Kind: efm.ImportSuccessWithWarnings, Warnings: it.warnings}
	default:
		return efm.ImportStatus{Kind: efm.ImportSuccess}
	}
}

// Import runs a mass import. Per-set failures are reported in the result and
// do not fail the run.
func Import(ctx context.Context, deps Deps, in Input) (*Result, error) {
	if deps.Parser == nil {
		deps.Parser = dat.NewParser()
	}
	c := &massImportContext{
		deps:   deps,
		in:     in,
		result: &Result{ReadErrors: map[string]string{}},
	}
	if err := newMassImportPipeline(deps.Logger).Run(ctx, c); err != nil {
		return c.result, err
	}
	return c.result, nil
}
