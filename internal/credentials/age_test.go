package credentials

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func newTestAgeStore(t *testing.T) *AgeStore {
	t.Helper()
	return NewAgeStore(filepath.Join(t.TempDir(), "keys", "credentials.age"))
}

func TestAgeStore_SaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	s := newTestAgeStore(t)
	if s.IsConfigured() {
		t.Fatal("IsConfigured() = true before Save, want false")
	}

	want := Credentials{AccessKeyID: "AKIAEXAMPLE", SecretAccessKey: "s3cr3t/with+chars"}
	if err := s.Save(want, "passphrase"); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if !s.IsConfigured() {
		t.Error("IsConfigured() = false after Save, want true")
	}

	got, err := s.Load("passphrase")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if *got != want {
		t.Errorf("Load() = %+v, want %+v", *got, want)
	}
}

func TestAgeStore_FileIsEncrypted(t *testing.T) {
	t.Parallel()

	s := newTestAgeStore(t)
	if err := s.Save(Credentials{AccessKeyID: "AKIAEXAMPLE", SecretAccessKey: "plain-secret"}, "pw"); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(data, []byte("plain-secret")) {
		t.Error("credentials file contains the secret in plaintext")
	}

	info, err := os.Stat(s.path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("file mode = %o, want 600", perm)
	}
}

func TestAgeStore_Load(t *testing.T) {
	t.Parallel()

	t.Run("wrong passphrase", func(t *testing.T) {
		t.Parallel()
		s := newTestAgeStore(t)
		if err := s.Save(Credentials{AccessKeyID: "a", SecretAccessKey: "b"}, "right"); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
		if _, err := s.Load("wrong"); err == nil {
			t.Error("Load() with wrong passphrase succeeded")
		}
	})

	t.Run("not configured", func(t *testing.T) {
		t.Parallel()
		s := newTestAgeStore(t)
		if _, err := s.Load("any"); !errors.Is(err, ErrNotConfigured) {
			t.Errorf("Load() error = %v, want ErrNotConfigured", err)
		}
	})

	t.Run("empty passphrase rejected", func(t *testing.T) {
		t.Parallel()
		s := newTestAgeStore(t)
		if err := s.Save(Credentials{}, ""); err == nil {
			t.Error("Save() with empty passphrase succeeded")
		}
	})
}

func TestMemoryStore(t *testing.T) {
	m := NewMemoryStore()
	if _, err := m.Load(""); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Load() error = %v, want ErrNotConfigured", err)
	}
	if err := m.Save(Credentials{AccessKeyID: "id"}, "pw"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Load("nope"); err == nil {
		t.Error("Load() with wrong passphrase succeeded")
	}
	got, err := m.Load("pw")
	if err != nil || got.AccessKeyID != "id" {
		t.Errorf("Load() = %+v, %v", got, err)
	}
}
