package fs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"efm-go/internal/efm"
)

type seqIDs struct{ n int }

func (g *seqIDs) New() string {
	g.n++
	return strings.Repeat("x", g.n)
}

func newStore(t *testing.T) *OSBlobStore {
	t.Helper()
	return NewBlobStore(efm.NewCollectionLayout(t.TempDir()), &seqIDs{})
}

func TestOSBlobStore_Put(t *testing.T) {
	ctx := context.Background()
	data := []byte("rom contents")
	sum := efm.HashBytes(data)
	name := efm.ArchiveFileName(sum)

	t.Run("stores at canonical path", func(t *testing.T) {
		s := newStore(t)
		if err := s.Put(ctx, bytes.NewReader(data), efm.FileTypeRom, name, sum); err != nil {
			t.Fatalf("Put() error = %v", err)
		}

		got, err := os.ReadFile(s.Layout().Path(efm.FileTypeRom, name))
		if err != nil {
			t.Fatalf("reading stored blob: %v", err)
		}
		if !bytes.Equal(got, data) {
			t.Errorf("stored %q, want %q", got, data)
		}
		assertNoTempFiles(t, s.Layout().Dir(efm.FileTypeRom))
	})

	t.Run("rejects checksum mismatch", func(t *testing.T) {
		s := newStore(t)
		err := s.Put(ctx, strings.NewReader("tampered"), efm.FileTypeRom, name, sum)
		if !errors.Is(err, efm.ErrIO) {
			t.Fatalf("Put() error = %v, want IO error", err)
		}
		if ok, _ := s.Exists(efm.FileTypeRom, name); ok {
			t.Error("blob present after failed verification")
		}
		assertNoTempFiles(t, s.Layout().Dir(efm.FileTypeRom))
	})

	t.Run("existing blob is left alone", func(t *testing.T) {
		s := newStore(t)
		if err := s.Put(ctx, bytes.NewReader(data), efm.FileTypeRom, name, sum); err != nil {
			t.Fatal(err)
		}
		// a reader that fails proves nothing was read
		if err := s.Put(ctx, iotestErrReader{}, efm.FileTypeRom, name, sum); err != nil {
			t.Errorf("second Put() error = %v", err)
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		s := newStore(t)
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		err := s.Put(cctx, bytes.NewReader(data), efm.FileTypeRom, name, sum)
		if !errors.Is(err, efm.ErrOperationCancelled) {
			t.Errorf("Put() error = %v, want OperationCancelled", err)
		}
	})
}

type iotestErrReader struct{}

func (iotestErrReader) Read([]byte) (int, error) { return 0, io.ErrUnexpectedEOF }

func assertNoTempFiles(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".tmp-") {
			t.Errorf("leftover temp file %s", e.Name())
		}
	}
}

func TestOSBlobStore_DeleteAndExists(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	data := []byte("x")
	sum := efm.HashBytes(data)
	name := efm.ArchiveFileName(sum)

	if err := s.Delete(efm.FileTypeRom, name); err != nil {
		t.Errorf("Delete(missing) error = %v", err)
	}
	if err := s.Put(ctx, bytes.NewReader(data), efm.FileTypeRom, name, sum); err != nil {
		t.Fatal(err)
	}
	if ok, err := s.Exists(efm.FileTypeRom, name); err != nil || !ok {
		t.Fatalf("Exists() = %v, %v", ok, err)
	}
	if err := s.Delete(efm.FileTypeRom, name); err != nil {
		t.Fatal(err)
	}
	if ok, _ := s.Exists(efm.FileTypeRom, name); ok {
		t.Error("blob still present after Delete()")
	}
}

func TestOSBlobStore_Move(t *testing.T) {
	ctx := context.Background()
	data := []byte("manual scan")
	sum := efm.HashBytes(data)
	name := efm.ArchiveFileName(sum)

	t.Run("moves between typed directories", func(t *testing.T) {
		s := newStore(t)
		s.Put(ctx, bytes.NewReader(data), efm.FileTypeManualScan, name, sum)

		if err := s.Move(name, efm.FileTypeManualScan, efm.FileTypeScan); err != nil {
			t.Fatalf("Move() error = %v", err)
		}
		if ok, _ := s.Exists(efm.FileTypeManualScan, name); ok {
			t.Error("source still exists")
		}
		if ok, _ := s.Exists(efm.FileTypeScan, name); !ok {
			t.Error("target missing")
		}

		// re-running is a no-op
		if err := s.Move(name, efm.FileTypeManualScan, efm.FileTypeScan); err != nil {
			t.Errorf("second Move() error = %v", err)
		}
	})

	t.Run("both present drops the source", func(t *testing.T) {
		s := newStore(t)
		s.Put(ctx, bytes.NewReader(data), efm.FileTypeManualScan, name, sum)
		s.Put(ctx, bytes.NewReader(data), efm.FileTypeScan, name, sum)

		if err := s.Move(name, efm.FileTypeManualScan, efm.FileTypeScan); err != nil {
			t.Fatalf("Move() error = %v", err)
		}
		if ok, _ := s.Exists(efm.FileTypeManualScan, name); ok {
			t.Error("source still exists")
		}
	})

	t.Run("neither present fails", func(t *testing.T) {
		s := newStore(t)
		if err := s.Move(name, efm.FileTypeManualScan, efm.FileTypeScan); !errors.Is(err, efm.ErrIO) {
			t.Errorf("Move() error = %v, want IO error", err)
		}
	})
}

func TestFindFiles(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		"b.d64",
		"a.d64",
		filepath.Join("sub", "c.t64"),
		filepath.Join("sub", "notes.txt"),
		filepath.Join("skip", "d.d64"),
		".efmignore",
	}
	for _, f := range files {
		p := filepath.Join(dir, f)
		os.MkdirAll(filepath.Dir(p), 0o755)
		os.WriteFile(p, []byte(f), 0o644)
	}

	matcher, err := LoadIgnoreMatcher(dir, []string{"*.txt", "skip"})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name      string
		recursive bool
		want      []string
	}{
		{"flat", false, []string{"a.d64", "b.d64"}},
		{"recursive", true, []string{"a.d64", "b.d64", filepath.Join("sub", "c.t64")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FindFiles(dir, tt.recursive, matcher)
			if err != nil {
				t.Fatalf("FindFiles() error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("FindFiles() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != filepath.Join(dir, tt.want[i]) {
					t.Errorf("[%d] = %s, want %s", i, got[i], tt.want[i])
				}
			}
		})
	}

	if _, err := FindFiles(filepath.Join(dir, "a.d64"), false, nil); err == nil {
		t.Error("FindFiles() on a file expected error")
	}
}
