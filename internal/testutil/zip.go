package testutil

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"
)

// ZipEntry is one member written by WriteZip.
type ZipEntry struct {
	Name    string
	Content []byte
}

// WriteZip creates dir/name as a zip archive holding entries in order.
func WriteZip(t *testing.T, dir, name string, entries ...ZipEntry) string {
	t.Helper()

	p := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("creating directory for %s: %v", p, err)
	}
	f, err := os.Create(p)
	if err != nil {
		t.Fatalf("creating %s: %v", p, err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	for _, e := range entries {
		w, err := zw.Create(e.Name)
		if err != nil {
			t.Fatalf("adding %s: %v", e.Name, err)
		}
		if _, err := w.Write(e.Content); err != nil {
			t.Fatalf("writing %s: %v", e.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("closing %s: %v", p, err)
	}
	return p
}
