package efm

import (
	"path"
	"path/filepath"
)

// CollectionLayout maps file types and archive names to locations inside the
// collection root:
//
//	<root>/
//	  <file_type.slug>/
//	    <archive_file_name>   (lowercase hex SHA-1, no extension)
type CollectionLayout struct {
	root string
}

// NewCollectionLayout creates a layout rooted at root.
func NewCollectionLayout(root string) CollectionLayout {
	return CollectionLayout{root: root}
}

// Root returns the collection root directory.
func (l CollectionLayout) Root() string { return l.root }

// Dir returns the directory holding blobs of the given type.
func (l CollectionLayout) Dir(ft FileType) string {
	return filepath.Join(l.root, ft.Slug())
}

// Path returns the canonical location of a blob.
func (l CollectionLayout) Path(ft FileType, archiveFileName string) string {
	return filepath.Join(l.root, ft.Slug(), archiveFileName)
}

// PathFor returns the canonical location of fi's blob.
func (l CollectionLayout) PathFor(fi *FileInfo) string {
	return l.Path(fi.FileType, fi.ArchiveFileName)
}

// CloudKey returns the object key mirroring the on-disk layout. Any bucket
// prefix belongs to the cloud ops configuration, not to the key.
func CloudKey(ft FileType, archiveFileName string) string {
	return path.Join(ft.Slug(), archiveFileName)
}

// CloudKeyFor returns the object key of fi's blob.
func CloudKeyFor(fi *FileInfo) string {
	return CloudKey(fi.FileType, fi.ArchiveFileName)
}

// ArchiveFileName derives the storage name of a blob from its checksum.
func ArchiveFileName(c Checksum) string {
	return c.String()
}
