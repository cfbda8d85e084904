package metadata

import (
	"io"
	"os"
	"path/filepath"

	"efm-go/internal/efm"
)

// PlainReader exposes a single file as one logical entry named after its basename.
type PlainReader struct {
	path string
}

func NewPlainReader(path string) *PlainReader {
	return &PlainReader{path: path}
}

func (r *PlainReader) Files() ([]efm.ReadFile, error) {
	sum, size, err := efm.HashFile(r.path)
	if err != nil {
		return nil, efm.NewIOError("hashing "+r.path, err)
	}
	return []efm.ReadFile{{Name: filepath.Base(r.path), Size: size, SHA1: sum}}, nil
}

func (r *PlainReader) Open(name string) (io.ReadCloser, error) {
	if name != filepath.Base(r.path) {
		return nil, efm.NewIOError("no file named "+name+" in "+r.path, os.ErrNotExist)
	}
	f, err := os.Open(r.path)
	if err != nil {
		return nil, efm.NewIOError("opening "+r.path, err)
	}
	return f, nil
}

func (r *PlainReader) IsArchive() bool { return false }

func (r *PlainReader) Close() error { return nil }

var _ efm.MetadataReader = (*PlainReader)(nil)
