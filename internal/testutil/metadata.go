package testutil

import (
	"bytes"
	"fmt"
	"io"
	"sort"

	"efm-go/internal/efm"
)

// MockMetadataReader is an in-memory MetadataReader.
type MockMetadataReader struct {
	files   map[string][]byte
	archive bool
	// FilesErr is returned by Files when set.
	FilesErr error
}

// NewMockMetadataReader creates a reader over the given name -> content map.
// With more than one file it reports itself as an archive.
func NewMockMetadataReader(files map[string][]byte) *MockMetadataReader {
	return &MockMetadataReader{files: files, archive: len(files) > 1}
}

func (m *MockMetadataReader) Files() ([]efm.ReadFile, error) {
	if m.FilesErr != nil {
		return nil, m.FilesErr
	}
	names := make([]string, 0, len(m.files))
	for n := range m.files {
		names = append(names, n)
	}
	sort.Strings(names)

	out := make([]efm.ReadFile, 0, len(names))
	for _, n := range names {
		out = append(out, efm.ReadFile{
			Name: n,
			Size: efm.FileSize(len(m.files[n])),
			SHA1: efm.HashBytes(m.files[n]),
		})
	}
	return out, nil
}

func (m *MockMetadataReader) Open(name string) (io.ReadCloser, error) {
	data, ok := m.files[name]
	if !ok {
		return nil, fmt.Errorf("file not found: %s", name)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *MockMetadataReader) IsArchive() bool { return m.archive }

func (m *MockMetadataReader) Close() error { return nil }

// MockReaderFactory serves readers registered per source path.
type MockReaderFactory map[string]*MockMetadataReader

// New implements efm.MetadataReaderFactory.
func (f MockReaderFactory) New(path string) (efm.MetadataReader, error) {
	r, ok := f[path]
	if !ok {
		return nil, fmt.Errorf("no mock reader for %s", path)
	}
	return r, nil
}

var _ efm.MetadataReader = (*MockMetadataReader)(nil)
