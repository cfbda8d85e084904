package testutil

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"efm-go/internal/efm"
	"efm-go/internal/fs"
)

// TestCollection is a temporary collection root with a blob store and the
// matching settings stored in a test database.
type TestCollection struct {
	Root    string
	TempDir string
	Store   *fs.OSBlobStore
}

// NewTestCollection creates a collection under t.TempDir() and records its
// directories in the settings of repos.
func NewTestCollection(t *testing.T, repos efm.Repositories) *TestCollection {
	t.Helper()

	base := t.TempDir()
	c := &TestCollection{
		Root:    filepath.Join(base, "collection"),
		TempDir: filepath.Join(base, "tmp"),
	}
	for _, dir := range []string{c.Root, c.TempDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("creating %s: %v", dir, err)
		}
	}
	c.Store = fs.NewBlobStore(efm.NewCollectionLayout(c.Root), NewStubIDGenerator())

	if repos != nil {
		ctx := context.Background()
		if err := repos.Settings().Set(ctx, efm.SettingCollectionRootDir, c.Root); err != nil {
			t.Fatalf("storing collection root: %v", err)
		}
		if err := repos.Settings().Set(ctx, efm.SettingTempOutputDir, c.TempDir); err != nil {
			t.Fatalf("storing temp dir: %v", err)
		}
	}
	return c
}

// BlobPath returns where content of the given type is stored.
func (c *TestCollection) BlobPath(ft efm.FileType, content []byte) string {
	return c.Store.Layout().Path(ft, SHA1Hex(content))
}

// SHA1Hex returns the SHA-1 checksum of data as a lowercase hex string.
// Matches the archive file names used by the blob store.
func SHA1Hex(data []byte) string {
	h := sha1.Sum(data)
	return hex.EncodeToString(h[:])
}

// WriteFile writes content to dir/name and returns the full path.
func WriteFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("creating directory for %s: %v", p, err)
	}
	if err := os.WriteFile(p, content, 0o644); err != nil {
		t.Fatalf("writing %s: %v", p, err)
	}
	return p
}
