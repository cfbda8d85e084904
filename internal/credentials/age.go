// Package credentials keeps cloud access keys encrypted at rest.
package credentials

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"filippo.io/age"
	"github.com/BurntSushi/toml"
)

// Credentials are the access keys handed to the cloud ops factory.
type Credentials struct {
	AccessKeyID     string `toml:"access_key_id"`
	SecretAccessKey string `toml:"secret_access_key"`
}

// Store persists Credentials behind a passphrase.
type Store interface {
	Save(creds Credentials, passphrase string) error
	Load(passphrase string) (*Credentials, error)
	IsConfigured() bool
}

// ErrNotConfigured is returned by Load when nothing has been saved yet.
var ErrNotConfigured = errors.New("cloud credentials are not configured")

// AgeStore writes Credentials as TOML encrypted with age's scrypt-based
// passphrase encryption.
type AgeStore struct {
	path string
}

var _ Store = (*AgeStore)(nil)

// NewAgeStore creates a store backed by the file at path.
func NewAgeStore(path string) *AgeStore {
	return &AgeStore{path: path}
}

// Save encrypts creds with passphrase and replaces the credentials file.
func (s *AgeStore) Save(creds Credentials, passphrase string) error {
	if passphrase == "" {
		return fmt.Errorf("passphrase must not be empty")
	}

	recipient, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return fmt.Errorf("creating scrypt recipient: %w", err)
	}

	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, recipient)
	if err != nil {
		return fmt.Errorf("creating encrypted writer: %w", err)
	}
	if err := toml.NewEncoder(w).Encode(creds); err != nil {
		return fmt.Errorf("encoding credentials: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalizing encrypted credentials: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("creating credentials directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".tmp-credentials-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("writing credentials: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("restricting credentials file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing credentials file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("replacing credentials file: %w", err)
	}
	return nil
}

// Load decrypts the stored credentials.
func (s *AgeStore) Load(passphrase string) (*Credentials, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotConfigured
		}
		return nil, fmt.Errorf("reading credentials file: %w", err)
	}

	identity, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return nil, fmt.Errorf("creating scrypt identity: %w", err)
	}

	r, err := age.Decrypt(bytes.NewReader(data), identity)
	if err != nil {
		return nil, fmt.Errorf("decrypting credentials: %w", err)
	}
	plain, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading decrypted credentials: %w", err)
	}

	var creds Credentials
	if err := toml.Unmarshal(plain, &creds); err != nil {
		return nil, fmt.Errorf("decoding credentials: %w", err)
	}
	return &creds, nil
}

// IsConfigured reports whether a credentials file exists.
func (s *AgeStore) IsConfigured() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// MemoryStore keeps credentials in memory, checking the passphrase verbatim.
// Use in tests.
type MemoryStore struct {
	creds      *Credentials
	passphrase string
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (m *MemoryStore) Save(creds Credentials, passphrase string) error {
	c := creds
	m.creds = &c
	m.passphrase = passphrase
	return nil
}

func (m *MemoryStore) Load(passphrase string) (*Credentials, error) {
	if m.creds == nil {
		return nil, ErrNotConfigured
	}
	if passphrase != m.passphrase {
		return nil, fmt.Errorf("decrypting credentials: wrong passphrase")
	}
	c := *m.creds
	return &c, nil
}

func (m *MemoryStore) IsConfigured() bool { return m.creds != nil }
