package fs

import (
	"context"
	"crypto/sha1"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"efm-go/internal/efm"
)

// OSBlobStore is the on-disk implementation of efm.BlobStore.
//
//	<root>/
//	  <file_type.slug>/
//	    <archive_file_name>
//	    .tmp-<id>            (in-flight writes, never read)
type OSBlobStore struct {
	layout efm.CollectionLayout
	ids    efm.IDGenerator
}

// NewBlobStore creates a store rooted at the collection layout's root.
// A nil generator uses random UUIDs for temp names.
func NewBlobStore(layout efm.CollectionLayout, ids efm.IDGenerator) *OSBlobStore {
	if ids == nil {
		ids = efm.UUIDGenerator{}
	}
	return &OSBlobStore{layout: layout, ids: ids}
}

func (s *OSBlobStore) Layout() efm.CollectionLayout { return s.layout }

// Put writes r to a temp file in the typed directory, verifies its SHA-1 and
// renames it into place. Concurrent writers of the same content each use
// their own temp file; whichever renames last wins with identical bytes.
func (s *OSBlobStore) Put(ctx context.Context, r io.Reader, fileType efm.FileType, archiveFileName string, expected efm.Checksum) error {
	if err := ctx.Err(); err != nil {
		return efm.NewOperationCancelledError(err)
	}

	destPath := s.layout.Path(fileType, archiveFileName)
	if _, err := os.Stat(destPath); err == nil {
		return nil
	}

	dir := s.layout.Dir(fileType)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return efm.NewIOError("creating directory "+dir, err)
	}

	tmpPath := filepath.Join(dir, ".tmp-"+s.ids.New())
	tmpFile, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return efm.NewIOError("creating temp file", err)
	}

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	h := sha1.New()
	buf := make([]byte, efm.HashBufferSize)
	if _, err := io.CopyBuffer(io.MultiWriter(tmpFile, h), &ctxReader{ctx: ctx, r: r}, buf); err != nil {
		tmpFile.Close()
		if ctx.Err() != nil {
			return efm.NewOperationCancelledError(ctx.Err())
		}
		return efm.NewIOError("writing "+archiveFileName, err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return efm.NewIOError("syncing temp file", err)
	}
	if err := tmpFile.Close(); err != nil {
		return efm.NewIOError("closing temp file", err)
	}

	var got efm.Checksum
	copy(got[:], h.Sum(nil))
	if got != expected {
		return efm.NewIOError(fmt.Sprintf("checksum mismatch for %s: got %s", archiveFileName, got), nil)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return efm.NewIOError("renaming into place", err)
	}

	success = true
	return nil
}

func (s *OSBlobStore) Open(fileType efm.FileType, archiveFileName string) (io.ReadCloser, error) {
	f, err := os.Open(s.layout.Path(fileType, archiveFileName))
	if err != nil {
		return nil, efm.NewIOError("opening blob "+archiveFileName, err)
	}
	return f, nil
}

func (s *OSBlobStore) Exists(fileType efm.FileType, archiveFileName string) (bool, error) {
	_, err := os.Stat(s.layout.Path(fileType, archiveFileName))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, efm.NewIOError("checking blob "+archiveFileName, err)
}

func (s *OSBlobStore) Delete(fileType efm.FileType, archiveFileName string) error {
	err := os.Remove(s.layout.Path(fileType, archiveFileName))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return efm.NewIOError("deleting blob "+archiveFileName, err)
	}
	return nil
}

func (s *OSBlobStore) Move(archiveFileName string, from, to efm.FileType) error {
	src := s.layout.Path(from, archiveFileName)
	dst := s.layout.Path(to, archiveFileName)

	srcExists, err := s.Exists(from, archiveFileName)
	if err != nil {
		return err
	}
	dstExists, err := s.Exists(to, archiveFileName)
	if err != nil {
		return err
	}

	switch {
	case !srcExists && dstExists:
		return nil
	case !srcExists:
		return efm.NewIOError(fmt.Sprintf("blob %s missing from %s", archiveFileName, from), os.ErrNotExist)
	case dstExists:
		// same name means same content
		return s.Delete(from, archiveFileName)
	}

	if err := os.MkdirAll(s.layout.Dir(to), 0o755); err != nil {
		return efm.NewIOError("creating directory for "+to.Slug(), err)
	}
	if err := os.Rename(src, dst); err != nil {
		return efm.NewIOError(fmt.Sprintf("moving %s from %s to %s", archiveFileName, from, to), err)
	}
	return nil
}

// ctxReader stops a long copy once the context is cancelled.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

var _ efm.BlobStore = (*OSBlobStore)(nil)
