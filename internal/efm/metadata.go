package efm

import "io"

// MetadataReader enumerates the logical files inside a source path. A plain
// file yields a single entry named after its basename; an archive yields one
// entry per member.
type MetadataReader interface {
	// Files hashes and lists every logical file. Archive members are hashed
	// one at a time while decompressing.
	Files() ([]ReadFile, error)

	// Open returns the decompressed content of the named logical file.
	Open(name string) (io.ReadCloser, error)

	// IsArchive reports whether the source is a container of several files.
	IsArchive() bool

	Close() error
}

// MetadataReaderFactory opens a reader for path. Tests substitute mock readers.
type MetadataReaderFactory func(path string) (MetadataReader, error)

// DatParser parses a DAT catalog file. The returned DatFile carries the SHA-1
// of the source text and no database ids.
type DatParser interface {
	Parse(path string) (*DatFile, error)
}
