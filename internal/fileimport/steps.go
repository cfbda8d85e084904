package fileimport

import (
	"context"
	"fmt"

	"efm-go/internal/efm"
	"efm-go/internal/pipeline"
)

// Source is the state every file-import context shares.
type Source struct {
	Deps
	Path     string
	FileType efm.FileType
	// Selected limits the import to these file names. Empty means all.
	Selected []string

	reader    efm.MetadataReader
	IsArchive bool
	Records   []*Record
	Written   StoreResult
}

// Close releases the metadata reader, if one was opened.
func (s *Source) Close() error {
	if s.reader == nil {
		return nil
	}
	err := s.reader.Close()
	s.reader = nil
	return err
}

// NewRecords returns the records whose blobs are not yet stored.
func (s *Source) NewRecords() []*Record { return PendingRecords(s.Records) }

// sourceContext is satisfied by every context embedding a *Source.
type sourceContext interface {
	source() *Source
}

func (s *Source) source() *Source { return s }

// openSource opens the metadata reader once so later steps reuse it.
type openSource[C sourceContext] struct{}

func (openSource[C]) Name() string { return "collect-metadata" }

func (openSource[C]) ShouldExecute(c C) bool { return c.source().reader == nil }

func (openSource[C]) Execute(ctx context.Context, c C) pipeline.Action {
	s := c.source()
	if s.Path == "" {
		return pipeline.Abort(efm.NewInvalidInputError("source path is required"))
	}
	r, err := s.OpenReader(s.Path)
	if err != nil {
		return pipeline.Abort(efm.NewFileImportError("opening "+s.Path, err))
	}
	s.reader = r
	s.IsArchive = r.IsArchive()
	return pipeline.Continue
}

// collectFileInfo hashes every logical file of the source.
type collectFileInfo[C sourceContext] struct{}

func (collectFileInfo[C]) Name() string { return "collect-file-info" }

func (collectFileInfo[C]) ShouldExecute(c C) bool { return true }

func (collectFileInfo[C]) Execute(ctx context.Context, c C) pipeline.Action {
	s := c.source()
	records, err := ReadRecords(s.reader)
	if err != nil {
		return pipeline.Abort(efm.NewFileImportError("reading "+s.Path, err))
	}
	records, err = FilterRecords(records, s.Selected)
	if err != nil {
		return pipeline.Abort(err)
	}
	if len(records) == 0 {
		return pipeline.Abort(efm.NewFileImportError("no files found in "+s.Path, nil))
	}
	s.Records = records
	s.logger().Debug("collected file info", "source", s.Path, "files", len(records))
	return pipeline.Continue
}

// checkExistingFiles partitions the records into new and already stored.
type checkExistingFiles[C sourceContext] struct{}

func (checkExistingFiles[C]) Name() string { return "check-existing-files" }

func (checkExistingFiles[C]) ShouldExecute(c C) bool { return len(c.source().Records) > 0 }

func (checkExistingFiles[C]) Execute(ctx context.Context, c C) pipeline.Action {
	s := c.source()
	if err := MarkExisting(ctx, s.Repos, s.Store, s.FileType, s.Records); err != nil {
		return pipeline.Abort(err)
	}
	return pipeline.Continue
}

// importFiles writes the blobs of new records.
type importFiles[C sourceContext] struct{}

func (importFiles[C]) Name() string { return "import-files" }

func (importFiles[C]) ShouldExecute(c C) bool { return len(c.source().NewRecords()) > 0 }

func (importFiles[C]) Execute(ctx context.Context, c C) pipeline.Action {
	s := c.source()
	res, err := StoreRecords(ctx, s.Deps, s.reader, s.FileType, s.Records)
	s.Written = res
	if err != nil {
		return pipeline.Abort(err)
	}
	s.logger().Info("stored files", "source", s.Path, "stored", len(res.Stored))
	return pipeline.Continue
}

// run executes p and always closes the source reader.
func run[C sourceContext](ctx context.Context, p *pipeline.Pipeline[C], c C) error {
	defer c.source().Close()
	return p.Run(ctx, c)
}

func fileSetNotFound(id int64) error {
	return efm.NewInvalidInputError(fmt.Sprintf("file set %d does not exist", id))
}
