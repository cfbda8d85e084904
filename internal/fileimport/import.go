// Package fileimport holds the pipelines that bring files into the
// collection: prepare, add-file-set, add-file-to-file-set and update-file-set.
//
// All four share the same first steps. A source (a plain file or a zip
// archive) is opened through the metadata reader, every logical file is
// hashed, and the hashes are checked against the FileInfo table and the blob
// store. Only hashes that are not yet present are written.
package fileimport

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"efm-go/internal/efm"
)

// Deps are the collaborators injected into every file-import context.
type Deps struct {
	Repos      efm.Repositories
	Store      efm.BlobStore
	OpenReader efm.MetadataReaderFactory
	Logger     efm.Logger
	// Progress receives FileStored events. Nil disables reporting.
	Progress chan<- efm.ProgressEvent
}

func (d Deps) logger() efm.Logger {
	if d.Logger == nil {
		return efm.NewNopLogger()
	}
	return d.Logger
}

// Record follows one logical file of the source through the pipeline.
type Record struct {
	SHA1     efm.Checksum
	Size     efm.FileSize
	FileName string        // name inside the source
	Existing *efm.FileInfo // nil until the hash is known to the database
	Stored   bool          // blob present at its canonical path
}

// target returns where the blob for r lives: an existing FileInfo keeps the
// type it was first stored under.
func (r *Record) target(ft efm.FileType) (efm.FileType, string) {
	if r.Existing != nil {
		return r.Existing.FileType, r.Existing.ArchiveFileName
	}
	return ft, efm.ArchiveFileName(r.SHA1)
}

// ReadRecords lists the logical files of an opened source.
func ReadRecords(reader efm.MetadataReader) ([]*Record, error) {
	files, err := reader.Files()
	if err != nil {
		return nil, err
	}
	out := make([]*Record, 0, len(files))
	for _, f := range files {
		out = append(out, &Record{SHA1: f.SHA1, Size: f.Size, FileName: f.Name})
	}
	return out, nil
}

// FilterRecords keeps the records named in selected. An empty selection keeps
// everything; naming a file the source lacks is an InvalidInput error.
func FilterRecords(records []*Record, selected []string) ([]*Record, error) {
	if len(selected) == 0 {
		return records, nil
	}
	want := make(map[string]bool, len(selected))
	for _, name := range selected {
		want[name] = true
	}

	var out []*Record
	for _, r := range records {
		if want[r.FileName] {
			out = append(out, r)
			delete(want, r.FileName)
		}
	}
	if len(want) > 0 {
		missing := make([]string, 0, len(want))
		for name := range want {
			missing = append(missing, name)
		}
		sort.Strings(missing)
		return nil, efm.NewInvalidInputError("not found in source: " + strings.Join(missing, ", "))
	}
	return out, nil
}

// MarkExisting fills Existing and Stored for every record. Stored means the
// blob is on disk where the record would be written; for hashes unknown to
// the database that is the path under ft, left behind by a failed import.
func MarkExisting(ctx context.Context, repos efm.Repositories, store efm.BlobStore, ft efm.FileType, records []*Record) error {
	sums := make([]efm.Checksum, 0, len(records))
	for _, r := range records {
		sums = append(sums, r.SHA1)
	}
	found, err := repos.FileInfos().FindByChecksums(ctx, sums)
	if err != nil {
		return err
	}
	byHash := make(map[efm.Checksum]*efm.FileInfo, len(found))
	for _, fi := range found {
		byHash[fi.SHA1] = fi
	}

	for _, r := range records {
		r.Existing = byHash[r.SHA1]
		targetType, archiveName := r.target(ft)
		ok, err := store.Exists(targetType, archiveName)
		if err != nil {
			return efm.NewIOError("checking blob "+archiveName, err)
		}
		r.Stored = ok
	}
	return nil
}

// PendingRecords returns the records whose blobs still have to be written,
// one per distinct hash.
func PendingRecords(records []*Record) []*Record {
	seen := make(map[efm.Checksum]bool)
	var out []*Record
	for _, r := range records {
		if r.Stored || seen[r.SHA1] {
			continue
		}
		seen[r.SHA1] = true
		out = append(out, r)
	}
	return out
}

// StoreResult reports what StoreRecords wrote.
type StoreResult struct {
	Stored []efm.Checksum
	Failed map[string]error // by file name
}

// StoreRecords writes the blobs of pending records through the blob store,
// emitting FileStored for each. Every pending record is attempted; failures
// are collected and returned together as a FileImportError. Blobs written
// before a failure stay in place, so a retry only writes what is missing.
func StoreRecords(ctx context.Context, deps Deps, reader efm.MetadataReader, ft efm.FileType, records []*Record) (StoreResult, error) {
	res := StoreResult{Failed: map[string]error{}}
	pending := PendingRecords(records)

	for i, r := range pending {
		if err := ctx.Err(); err != nil {
			return res, efm.NewOperationCancelledError(err)
		}

		targetType, archiveName := r.target(ft)
		if err := storeOne(ctx, deps.Store, reader, r, targetType, archiveName); err != nil {
			deps.logger().Warn("storing file failed", "file", r.FileName, "error", err)
			res.Failed[r.FileName] = err
			continue
		}
		markStored(records, r.SHA1)
		res.Stored = append(res.Stored, r.SHA1)

		if err := efm.Emit(ctx, deps.Progress, efm.FileStored{
			FileName:   r.FileName,
			SHA1:       r.SHA1,
			FileNumber: i + 1,
			TotalFiles: len(pending),
		}); err != nil {
			return res, err
		}
	}

	if len(res.Failed) > 0 {
		names := make([]string, 0, len(res.Failed))
		for name := range res.Failed {
			names = append(names, name)
		}
		sort.Strings(names)
		return res, efm.NewFileImportError(
			fmt.Sprintf("%d of %d files could not be stored: %s", len(res.Failed), len(pending), strings.Join(names, ", ")),
			res.Failed[names[0]])
	}
	return res, nil
}

func storeOne(ctx context.Context, store efm.BlobStore, reader efm.MetadataReader, r *Record, ft efm.FileType, archiveName string) error {
	rc, err := reader.Open(r.FileName)
	if err != nil {
		return err
	}
	defer rc.Close()
	return store.Put(ctx, rc, ft, archiveName, r.SHA1)
}

func markStored(records []*Record, sum efm.Checksum) {
	for _, r := range records {
		if r.SHA1 == sum {
			r.Stored = true
		}
	}
}

// Members converts records to file set members. New hashes are typed ft.
func Members(records []*Record, ft efm.FileType) []efm.NewFileSetMember {
	out := make([]efm.NewFileSetMember, 0, len(records))
	for _, r := range records {
		targetType, archiveName := r.target(ft)
		out = append(out, efm.NewFileSetMember{
			SHA1:            r.SHA1,
			FileSize:        r.Size,
			FileName:        r.FileName,
			ArchiveFileName: archiveName,
			FileType:        targetType,
		})
	}
	return out
}

// Checksums returns the distinct hashes of records.
func Checksums(records []*Record) []efm.Checksum {
	seen := make(map[efm.Checksum]bool, len(records))
	var out []efm.Checksum
	for _, r := range records {
		if !seen[r.SHA1] {
			seen[r.SHA1] = true
			out = append(out, r.SHA1)
		}
	}
	return out
}
