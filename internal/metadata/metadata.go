// Package metadata lists and hashes the logical files inside an import source.
package metadata

import (
	"efm-go/internal/efm"
)

// NewReader picks the reader for path by sniffing its first bytes. Zip
// archives are read member by member; anything else is a single file.
func NewReader(path string) (efm.MetadataReader, error) {
	isZip, err := efm.IsZipArchive(path)
	if err != nil {
		return nil, efm.NewIOError("inspecting "+path, err)
	}
	if isZip {
		return OpenZip(path)
	}
	return NewPlainReader(path), nil
}

// Compile-time check that NewReader satisfies the factory type.
var _ efm.MetadataReaderFactory = NewReader
