package efm

import (
	"context"
	"io"
)

// BlobStore reads and writes blobs at their canonical paths in the collection.
// Writes go to a uniquely named temp file in the typed directory and are
// renamed into place only after the content hash has been verified, so a
// canonical path never holds a partial blob.
type BlobStore interface {
	// Layout returns the collection layout the store writes into.
	Layout() CollectionLayout

	// Put streams r into the canonical path for (fileType, archiveFileName).
	// The content must hash to expected; otherwise nothing is written.
	// If the canonical path already exists Put drains nothing and returns nil.
	Put(ctx context.Context, r io.Reader, fileType FileType, archiveFileName string, expected Checksum) error

	// Open opens a stored blob for reading.
	Open(fileType FileType, archiveFileName string) (io.ReadCloser, error)

	// Exists reports whether the blob is present at its canonical path.
	Exists(fileType FileType, archiveFileName string) (bool, error)

	// Delete removes a blob. Removing a missing blob is not an error.
	Delete(fileType FileType, archiveFileName string) error

	// Move relocates a blob between typed directories. Moving is a no-op when
	// the source is gone and the target exists.
	Move(archiveFileName string, from, to FileType) error
}
