package metadata

import (
	"archive/zip"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"efm-go/internal/efm"
)

// ZipReader exposes the regular members of a zip archive. Directory entries
// and macOS resource forks are skipped.
type ZipReader struct {
	path string
	zr   *zip.ReadCloser
}

// OpenZip opens the archive at path.
func OpenZip(path string) (*ZipReader, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, efm.NewIOError("opening archive "+path, err)
	}
	return &ZipReader{path: path, zr: zr}, nil
}

func (r *ZipReader) members() []*zip.File {
	var out []*zip.File
	for _, f := range r.zr.File {
		if f.FileInfo().IsDir() || strings.HasPrefix(f.Name, "__MACOSX/") {
			continue
		}
		out = append(out, f)
	}
	return out
}

// Files hashes each member in turn while decompressing, so memory use is
// bounded by the hash window rather than the archive size. Members are named
// by their cleaned path inside the archive; a path escaping the archive root
// or naming a member twice is rejected.
func (r *ZipReader) Files() ([]efm.ReadFile, error) {
	var out []efm.ReadFile
	seen := map[string]bool{}
	for _, f := range r.members() {
		name, err := memberName(f.Name)
		if err != nil {
			return nil, err
		}
		if seen[name] {
			return nil, efm.NewInvalidInputError("duplicate member " + name + " in " + r.path)
		}
		seen[name] = true

		rc, err := f.Open()
		if err != nil {
			return nil, efm.NewIOError("opening "+f.Name+" in "+r.path, err)
		}
		sum, size, err := efm.HashReader(rc)
		rc.Close()
		if err != nil {
			return nil, efm.NewIOError("reading "+f.Name+" in "+r.path, err)
		}
		out = append(out, efm.ReadFile{Name: name, Size: size, SHA1: sum})
	}
	return out, nil
}

// Open opens the member Files reported as name.
func (r *ZipReader) Open(name string) (io.ReadCloser, error) {
	for _, f := range r.members() {
		if n, err := memberName(f.Name); err != nil || n != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, efm.NewIOError("opening "+name+" in "+r.path, err)
		}
		return rc, nil
	}
	return nil, efm.NewIOError("no member named "+name+" in "+r.path, os.ErrNotExist)
}

func (r *ZipReader) IsArchive() bool { return true }

func (r *ZipReader) Close() error { return r.zr.Close() }

// memberName cleans a member path. The result is slash separated and local.
func memberName(name string) (string, error) {
	clean := path.Clean(strings.ReplaceAll(name, "\\", "/"))
	if !filepath.IsLocal(filepath.FromSlash(clean)) {
		return "", efm.NewInvalidInputError("unsafe member path " + name)
	}
	return clean, nil
}

var _ efm.MetadataReader = (*ZipReader)(nil)
