// Package download makes a file set available on the local machine.
//
// Blobs missing from the collection are fetched from the cloud and verified
// into their canonical paths. The set is then exported into a per-set
// directory under the temp output dir, either as the original files or as a
// single zip archive.
package download

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"efm-go/internal/cloudsync"
	"efm-go/internal/efm"
	"efm-go/internal/pipeline"
	"efm-go/internal/thumbnail"
)

// Deps are the collaborators of a download.
type Deps struct {
	Repos   efm.Repositories
	Store   efm.BlobStore
	Connect efm.CloudConnector
	// Thumbnails renders previews of image file sets. Nil disables them.
	Thumbnails *thumbnail.Generator
	Logger     efm.Logger
	// Progress receives download events. Nil disables reporting.
	Progress chan<- efm.ProgressEvent
}

// Input selects the set and the export mode.
type Input struct {
	FileSetID int64
	// ExtractFiles exports the original files instead of a zip archive.
	ExtractFiles bool
	// OutputDir overrides the temp output dir setting.
	OutputDir string
}

// Result reports a download.
type Result struct {
	FileSet *efm.FileSet
	Files   []*efm.FileSetFile

	SuccessfulDownloads int
	FailedDownloads     int
	// DownloadErrors are keyed by cloud key.
	DownloadErrors map[string]string

	// ExportDir holds the exported files.
	ExportDir string
	// ExportedFiles are absolute paths of extracted files, or the archive.
	ExportedFiles []string
	Thumbnails    []string
}

type downloadContext struct {
	*cloudsync.Cloud
	deps    Deps
	in      Input
	missing []*efm.FileInfo
	result  *Result
}

// NeedsCloud limits connecting to runs with missing blobs.
func (c *downloadContext) NeedsCloud() bool { return len(c.missing) > 0 }

func (c *downloadContext) logger() efm.Logger {
	if c.deps.Logger == nil {
		return efm.NewNopLogger()
	}
	return c.deps.Logger
}

func newDownloadPipeline(logger efm.Logger) *pipeline.Pipeline[*downloadContext] {
	return pipeline.New[*downloadContext](
		"download-file-set", logger,
		pipeline.Func[*downloadContext]{StepName: "load-settings", Run: loadSettings},
		pipeline.Func[*downloadContext]{StepName: "fetch-file-set", Run: fetchFileSet},
		pipeline.Func[*downloadContext]{StepName: "fetch-file-set-file-info", Run: fetchFileSetFileInfo},
		pipeline.Func[*downloadContext]{StepName: "prepare-file-for-download", Run: prepareFileForDownload},
		cloudsync.ConnectToCloud[*downloadContext]{},
		cloudsync.TestConnectToCloud[*downloadContext]{},
		pipeline.Func[*downloadContext]{
			StepName:  "download-files",
			Predicate: func(c *downloadContext) bool { return len(c.missing) > 0 },
			Run:       downloadFiles,
		},
		pipeline.Func[*downloadContext]{StepName: "export-files", Run: exportFiles},
		pipeline.Func[*downloadContext]{
			StepName: "prepare-thumbnails",
			Predicate: func(c *downloadContext) bool {
				return c.deps.Thumbnails != nil && c.result.FileSet.FileType.IsImage()
			},
			Run: prepareThumbnails,
		},
	)
}

func loadSettings(ctx context.Context, c *downloadContext) pipeline.Action {
	settings, err := c.deps.Repos.Settings().Get(ctx)
	if err != nil {
		return pipeline.Abort(err)
	}
	c.Settings = settings
	if c.in.OutputDir == "" {
		dir, err := settings.TempOutputDir()
		if err != nil {
			return pipeline.Abort(err)
		}
		c.in.OutputDir = dir
	}
	if err := os.MkdirAll(c.in.OutputDir, 0o755); err != nil {
		return pipeline.Abort(efm.NewIOError("creating output directory", err))
	}
	return pipeline.Continue
}

func fetchFileSet(ctx context.Context, c *downloadContext) pipeline.Action {
	fs, err := c.deps.Repos.FileSets().Get(ctx, c.in.FileSetID)
	if err != nil {
		return pipeline.Abort(err)
	}
	if fs == nil {
		return pipeline.Abort(efm.NewInvalidInputError(fmt.Sprintf("file set %d does not exist", c.in.FileSetID)))
	}
	c.result.FileSet = fs
	return pipeline.Continue
}

func fetchFileSetFileInfo(ctx context.Context, c *downloadContext) pipeline.Action {
	files, err := c.deps.Repos.FileSets().Files(ctx, c.in.FileSetID)
	if err != nil {
		return pipeline.Abort(err)
	}
	if len(files) == 0 {
		return pipeline.Abort(efm.NewDownloadError(fmt.Sprintf("file set %q has no files", c.result.FileSet.Name), nil))
	}
	c.result.Files = files
	return pipeline.Continue
}

// prepareFileForDownload lists the distinct blobs missing from the collection.
func prepareFileForDownload(ctx context.Context, c *downloadContext) pipeline.Action {
	seen := map[int64]bool{}
	for _, f := range c.result.Files {
		fi := f.FileInfo
		if seen[fi.ID] {
			continue
		}
		seen[fi.ID] = true
		ok, err := c.deps.Store.Exists(fi.FileType, fi.ArchiveFileName)
		if err != nil {
			return pipeline.Abort(err)
		}
		if !ok {
			c.missing = append(c.missing, &fi)
		}
	}
	if len(c.missing) > 0 {
		c.logger().Info("files missing locally", "file_set", c.result.FileSet.Name, "missing", len(c.missing))
	}
	return pipeline.Continue
}

// downloadFiles fetches each missing blob into a temp file and stores it
// through the blob store, which verifies the checksum.
func downloadFiles(ctx context.Context, c *downloadContext) pipeline.Action {
	tmp, err := os.MkdirTemp(c.in.OutputDir, ".download-")
	if err != nil {
		return pipeline.Abort(efm.NewIOError("creating download directory", err))
	}
	defer os.RemoveAll(tmp)

	total := len(c.missing)
	if err := efm.Emit(ctx, c.deps.Progress, efm.DownloadStarted{TotalFiles: total}); err != nil {
		return pipeline.Abort(err)
	}
	for i, fi := range c.missing {
		n := i + 1
		key := efm.CloudKeyFor(fi)
		if err := efm.Emit(ctx, c.deps.Progress, efm.FileDownloadStarted{Key: key, FileNumber: n, TotalFiles: total}); err != nil {
			return pipeline.Abort(err)
		}

		if err := fetchOne(ctx, c, tmp, fi, key); err != nil {
			if ctx.Err() != nil {
				return pipeline.Abort(efm.NewOperationCancelledError(ctx.Err()))
			}
			c.logger().Warn("download failed", "key", key, "error", err)
			c.result.FailedDownloads++
			c.result.DownloadErrors[key] = err.Error()
			if err := efm.Emit(ctx, c.deps.Progress, efm.FileDownloadFailed{
				Key: key, FileNumber: n, TotalFiles: total, Error: err.Error(),
			}); err != nil {
				return pipeline.Abort(err)
			}
			continue
		}

		c.result.SuccessfulDownloads++
		if err := efm.Emit(ctx, c.deps.Progress, efm.FileDownloadCompleted{Key: key, FileNumber: n, TotalFiles: total}); err != nil {
			return pipeline.Abort(err)
		}
	}
	if err := efm.Emit(ctx, c.deps.Progress, efm.DownloadCompleted{}); err != nil {
		return pipeline.Abort(err)
	}
	return pipeline.Continue
}

func fetchOne(ctx context.Context, c *downloadContext, tmpDir string, fi *efm.FileInfo, key string) error {
	dest := filepath.Join(tmpDir, fi.ArchiveFileName)
	if err := c.Ops.Download(ctx, key, dest, c.deps.Progress); err != nil {
		return err
	}
	defer os.Remove(dest)

	f, err := os.Open(dest)
	if err != nil {
		return efm.NewIOError("opening downloaded file", err)
	}
	defer f.Close()
	return c.deps.Store.Put(ctx, f, fi.FileType, fi.ArchiveFileName, fi.SHA1)
}

// Download runs the download pipeline.
func Download(ctx context.Context, deps Deps, in Input) (*Result, error) {
	c := &downloadContext{
		Cloud:  &cloudsync.Cloud{Connect: deps.Connect},
		deps:   deps,
		in:     in,
		result: &Result{DownloadErrors: map[string]string{}},
	}
	if err := newDownloadPipeline(deps.Logger).Run(ctx, c); err != nil {
		return c.result, err
	}
	return c.result, nil
}
