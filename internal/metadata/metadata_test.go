package metadata

import (
	"io"
	"testing"

	"efm-go/internal/efm"
	"efm-go/internal/testutil"
)

func TestNewReader_PlainFile(t *testing.T) {
	dir := t.TempDir()
	path := testutil.WriteFile(t, dir, "game.d64", []byte("disk image"))

	r, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader() error = %v", err)
	}
	defer r.Close()

	if r.IsArchive() {
		t.Error("IsArchive() = true for a plain file")
	}
	files, err := r.Files()
	if err != nil {
		t.Fatalf("Files() error = %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("len(Files()) = %d, want 1", len(files))
	}
	if files[0].Name != "game.d64" || files[0].Size != 10 || files[0].SHA1 != efm.HashBytes([]byte("disk image")) {
		t.Errorf("Files()[0] = %+v", files[0])
	}

	rc, err := r.Open("game.d64")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	got, _ := io.ReadAll(rc)
	rc.Close()
	if string(got) != "disk image" {
		t.Errorf("Open() content = %q", got)
	}

	if _, err := r.Open("other"); err == nil {
		t.Error("Open(other) expected error")
	}
}

func TestNewReader_Zip(t *testing.T) {
	dir := t.TempDir()
	// the .rom extension must not fool the sniffer
	path := testutil.WriteZip(t, dir, "game.rom",
		testutil.ZipEntry{Name: "disk1.d64", Content: []byte("side A")},
		testutil.ZipEntry{Name: "extras/disk2.d64", Content: []byte("side B")},
		testutil.ZipEntry{Name: "__MACOSX/._disk1.d64", Content: []byte("junk")},
	)

	r, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader() error = %v", err)
	}
	defer r.Close()

	if !r.IsArchive() {
		t.Fatal("IsArchive() = false for a zip")
	}
	files, err := r.Files()
	if err != nil {
		t.Fatalf("Files() error = %v", err)
	}

	want := []efm.ReadFile{
		{Name: "disk1.d64", Size: 6, SHA1: efm.HashBytes([]byte("side A"))},
		{Name: "extras/disk2.d64", Size: 6, SHA1: efm.HashBytes([]byte("side B"))},
	}
	if len(files) != len(want) {
		t.Fatalf("Files() = %+v, want %+v", files, want)
	}
	for i := range want {
		if files[i] != want[i] {
			t.Errorf("Files()[%d] = %+v, want %+v", i, files[i], want[i])
		}
	}

	rc, err := r.Open("extras/disk2.d64")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	got, _ := io.ReadAll(rc)
	rc.Close()
	if string(got) != "side B" {
		t.Errorf("Open() content = %q", got)
	}
}

func TestZipReader_SameBaseName(t *testing.T) {
	path := testutil.WriteZip(t, t.TempDir(), "set.zip",
		testutil.ZipEntry{Name: "disk1/game.d64", Content: []byte("side A")},
		testutil.ZipEntry{Name: "disk2/game.d64", Content: []byte("side B")},
	)
	r, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader() error = %v", err)
	}
	defer r.Close()

	files, err := r.Files()
	if err != nil {
		t.Fatalf("Files() error = %v", err)
	}
	want := map[string]string{"disk1/game.d64": "side A", "disk2/game.d64": "side B"}
	if len(files) != len(want) {
		t.Fatalf("Files() = %+v, want %d entries", files, len(want))
	}
	for _, f := range files {
		content, ok := want[f.Name]
		if !ok {
			t.Fatalf("unexpected member %q", f.Name)
		}
		if f.SHA1 != efm.HashBytes([]byte(content)) {
			t.Errorf("%s: SHA1 = %s, want hash of %q", f.Name, f.SHA1, content)
		}
		rc, err := r.Open(f.Name)
		if err != nil {
			t.Fatalf("Open(%q) error = %v", f.Name, err)
		}
		got, _ := io.ReadAll(rc)
		rc.Close()
		if string(got) != content {
			t.Errorf("Open(%q) = %q, want %q", f.Name, got, content)
		}
	}
}

func TestZipReader_RejectedMembers(t *testing.T) {
	tests := []struct {
		name    string
		entries []testutil.ZipEntry
	}{
		{
			name:    "parent directory",
			entries: []testutil.ZipEntry{{Name: "../escape.d64", Content: []byte("x")}},
		},
		{
			name:    "absolute path",
			entries: []testutil.ZipEntry{{Name: "/etc/game.d64", Content: []byte("x")}},
		},
		{
			name: "same name twice",
			entries: []testutil.ZipEntry{
				{Name: "disk/game.d64", Content: []byte("a")},
				{Name: "disk/./game.d64", Content: []byte("b")},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := testutil.WriteZip(t, t.TempDir(), "bad.zip", tt.entries...)
			r, err := NewReader(path)
			if err == nil {
				_, err = r.Files()
				r.Close()
			}
			if err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestNewReader_Missing(t *testing.T) {
	if _, err := NewReader("/nonexistent/file.zip"); err == nil {
		t.Error("NewReader() expected error for missing path")
	}
}
