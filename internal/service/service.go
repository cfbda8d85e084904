// Package service is the entry point used by front-ends. It builds the typed
// pipeline contexts with their dependencies, runs them and returns their
// results.
//
// The blob store is derived from the collection_root_dir setting on every
// call, so changing the setting takes effect without rebuilding the service.
package service

import (
	"context"

	"efm-go/internal/cloudsync"
	"efm-go/internal/dat"
	"efm-go/internal/deletion"
	"efm-go/internal/download"
	"efm-go/internal/efm"
	"efm-go/internal/emulator"
	"efm-go/internal/fileimport"
	"efm-go/internal/fs"
	"efm-go/internal/massimport"
	"efm-go/internal/metadata"
	"efm-go/internal/migration"
	"efm-go/internal/thumbnail"
)

// Options are the service's collaborators. Only Repos is required.
type Options struct {
	Repos      efm.Repositories
	OpenReader efm.MetadataReaderFactory
	Parser     efm.DatParser
	Connect    efm.CloudConnector
	Thumbnails *thumbnail.Generator
	Runner     emulator.Runner
	// Ignore are extra patterns skipped by mass import.
	Ignore []string
	Logger efm.Logger
	IDs    efm.IDGenerator
}

// Service runs the collection operations.
type Service struct {
	opts Options
}

// New creates a Service. Missing optional collaborators get their defaults;
// without a Connect function cloud operations fail with a CloudSyncError.
func New(opts Options) *Service {
	if opts.OpenReader == nil {
		opts.OpenReader = metadata.NewReader
	}
	if opts.Parser == nil {
		opts.Parser = dat.NewParser()
	}
	if opts.Runner == nil {
		opts.Runner = emulator.ExecRunner{}
	}
	if opts.Logger == nil {
		opts.Logger = efm.NewNopLogger()
	}
	if opts.IDs == nil {
		opts.IDs = efm.UUIDGenerator{}
	}
	return &Service{opts: opts}
}

// Repos exposes the repositories for plain CRUD.
func (s *Service) Repos() efm.Repositories { return s.opts.Repos }

// Store returns the blob store of the configured collection.
func (s *Service) Store(ctx context.Context) (efm.BlobStore, error) {
	settings, err := s.opts.Repos.Settings().Get(ctx)
	if err != nil {
		return nil, err
	}
	layout, err := settings.Layout()
	if err != nil {
		return nil, err
	}
	return fs.NewBlobStore(layout, s.opts.IDs), nil
}

func (s *Service) importDeps(ctx context.Context, progress chan<- efm.ProgressEvent) (fileimport.Deps, error) {
	store, err := s.Store(ctx)
	if err != nil {
		return fileimport.Deps{}, err
	}
	return fileimport.Deps{
		Repos:      s.opts.Repos,
		Store:      store,
		OpenReader: s.opts.OpenReader,
		Logger:     s.opts.Logger,
		Progress:   progress,
	}, nil
}

// PrepareImport inspects a source before it is imported.
func (s *Service) PrepareImport(ctx context.Context, path string, ft efm.FileType) (*fileimport.PrepareResult, error) {
	deps, err := s.importDeps(ctx, nil)
	if err != nil {
		return nil, err
	}
	return fileimport.Prepare(ctx, deps, path, ft)
}

// AddFileSet imports a source as a new file set.
func (s *Service) AddFileSet(ctx context.Context, in fileimport.AddFileSetInput, progress chan<- efm.ProgressEvent) (*fileimport.Result, error) {
	deps, err := s.importDeps(ctx, progress)
	if err != nil {
		return nil, err
	}
	return fileimport.AddFileSet(ctx, deps, in)
}

// AddFilesToFileSet appends the files of a source to an existing set.
func (s *Service) AddFilesToFileSet(ctx context.Context, in fileimport.AddFilesInput, progress chan<- efm.ProgressEvent) (*fileimport.Result, error) {
	deps, err := s.importDeps(ctx, progress)
	if err != nil {
		return nil, err
	}
	return fileimport.AddFilesToFileSet(ctx, deps, in)
}

// UpdateFileSet replaces the members and attributes of a set.
func (s *Service) UpdateFileSet(ctx context.Context, in fileimport.UpdateFileSetInput, progress chan<- efm.ProgressEvent) (*fileimport.Result, error) {
	deps, err := s.importDeps(ctx, progress)
	if err != nil {
		return nil, err
	}
	return fileimport.UpdateFileSet(ctx, deps, in)
}

// DeleteFileSet removes a set that no release item uses.
func (s *Service) DeleteFileSet(ctx context.Context, id int64) (*deletion.Result, error) {
	store, err := s.Store(ctx)
	if err != nil {
		return nil, err
	}
	return deletion.DeleteFileSet(ctx, deletion.Deps{Repos: s.opts.Repos, Store: store, Logger: s.opts.Logger}, id)
}

// SyncToCloud uploads pending files and deletes tombstoned ones remotely.
func (s *Service) SyncToCloud(ctx context.Context, opts cloudsync.Options, progress chan<- efm.ProgressEvent) (*cloudsync.Result, error) {
	return cloudsync.SyncToCloud(ctx, cloudsync.Deps{
		Repos:    s.opts.Repos,
		Connect:  s.opts.Connect,
		Logger:   s.opts.Logger,
		Progress: progress,
	}, opts)
}

func (s *Service) downloadDeps(ctx context.Context, progress chan<- efm.ProgressEvent) (download.Deps, error) {
	store, err := s.Store(ctx)
	if err != nil {
		return download.Deps{}, err
	}
	return download.Deps{
		Repos:      s.opts.Repos,
		Store:      store,
		Connect:    s.opts.Connect,
		Thumbnails: s.opts.Thumbnails,
		Logger:     s.opts.Logger,
		Progress:   progress,
	}, nil
}

// DownloadFileSet fetches missing blobs and exports the set.
func (s *Service) DownloadFileSet(ctx context.Context, in download.Input, progress chan<- efm.ProgressEvent) (*download.Result, error) {
	deps, err := s.downloadDeps(ctx, progress)
	if err != nil {
		return nil, err
	}
	return download.Download(ctx, deps, in)
}

// LaunchEmulator downloads a set and runs an emulator on it.
func (s *Service) LaunchEmulator(ctx context.Context, in emulator.LaunchInput, progress chan<- efm.ProgressEvent) (*emulator.LaunchResult, error) {
	deps, err := s.downloadDeps(ctx, progress)
	if err != nil {
		return nil, err
	}
	return emulator.Launch(ctx, emulator.Deps{Download: deps, Runner: s.opts.Runner, Logger: s.opts.Logger}, in)
}

// MigrateFileTypes folds legacy file types into the current ones.
func (s *Service) MigrateFileTypes(ctx context.Context) (*migration.Result, error) {
	store, err := s.Store(ctx)
	if err != nil {
		return nil, err
	}
	return migration.Migrate(ctx, migration.Deps{
		Repos:   s.opts.Repos,
		Store:   store,
		Connect: s.opts.Connect,
		Logger:  s.opts.Logger,
	})
}

// MassImport imports every file of a directory, optionally matched against a
// DAT catalog.
func (s *Service) MassImport(ctx context.Context, in massimport.Input, progress chan<- efm.ProgressEvent) (*massimport.Result, error) {
	store, err := s.Store(ctx)
	if err != nil {
		return nil, err
	}
	in.Ignore = append(append([]string{}, s.opts.Ignore...), in.Ignore...)
	return massimport.Import(ctx, massimport.Deps{
		Repos:      s.opts.Repos,
		Store:      store,
		OpenReader: s.opts.OpenReader,
		Parser:     s.opts.Parser,
		Logger:     s.opts.Logger,
		Progress:   progress,
	}, in)
}
