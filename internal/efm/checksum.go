package efm

import (
	"bytes"
	"crypto/sha1"
	"database/sql/driver"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// HashBufferSize is the window used when streaming file contents through SHA-1.
const HashBufferSize = 8 * 1024

// Checksum is the SHA-1 of a blob's contents. It is the identity of a FileInfo.
type Checksum [sha1.Size]byte

// FileSize is a blob size in bytes.
type FileSize uint64

// ParseChecksum decodes a 40 character hex string.
func ParseChecksum(s string) (Checksum, error) {
	var c Checksum
	b, err := hex.DecodeString(s)
	if err != nil {
		return c, fmt.Errorf("decoding checksum %q: %w", s, err)
	}
	if len(b) != sha1.Size {
		return c, fmt.Errorf("checksum %q has %d bytes, want %d", s, len(b), sha1.Size)
	}
	copy(c[:], b)
	return c, nil
}

// String returns the lowercase hex form, which is also the canonical archive file name.
func (c Checksum) String() string {
	return hex.EncodeToString(c[:])
}

// IsZero reports whether c was never set.
func (c Checksum) IsZero() bool {
	return c == Checksum{}
}

// Value implements driver.Valuer. Checksums are stored as lowercase hex text.
func (c Checksum) Value() (driver.Value, error) {
	return c.String(), nil
}

// Scan implements sql.Scanner.
func (c *Checksum) Scan(src any) error {
	var s string
	switch v := src.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return fmt.Errorf("cannot scan %T into Checksum", src)
	}
	parsed, err := ParseChecksum(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// HashReader streams r through SHA-1 in HashBufferSize windows.
func HashReader(r io.Reader) (Checksum, FileSize, error) {
	var c Checksum
	h := sha1.New()
	buf := make([]byte, HashBufferSize)
	n, err := io.CopyBuffer(h, r, buf)
	if err != nil {
		return c, 0, fmt.Errorf("hashing content: %w", err)
	}
	copy(c[:], h.Sum(nil))
	return c, FileSize(n), nil
}

// HashFile returns the SHA-1 and size of the file at path.
func HashFile(path string) (Checksum, FileSize, error) {
	f, err := os.Open(path)
	if err != nil {
		return Checksum{}, 0, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	return HashReader(f)
}

// HashBytes is a convenience for small in-memory payloads such as DAT text.
func HashBytes(data []byte) Checksum {
	return Checksum(sha1.Sum(data))
}

var zipSignatures = [][]byte{
	{'P', 'K', 0x03, 0x04}, // local file header
	{'P', 'K', 0x05, 0x06}, // empty archive
}

// IsZipArchive reports whether the file at path starts with a zip signature.
// Extensions are ignored; only the magic bytes count.
func IsZipArchive(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	header := make([]byte, 4)
	n, err := io.ReadFull(f, header)
	if err != nil {
		if err == io.ErrUnexpectedEOF || err == io.EOF {
			return false, nil
		}
		return false, fmt.Errorf("reading header of %s: %w", path, err)
	}
	for _, sig := range zipSignatures {
		if bytes.Equal(header[:n], sig) {
			return true, nil
		}
	}
	return false, nil
}
