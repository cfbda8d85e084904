package dat

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"efm-go/internal/efm"
)

const sampleDat = `<?xml version="1.0" encoding="UTF-8"?>
<datafile>
  <header>
    <name>Commodore - 64</name>
    <description>Commodore 64 cartridges</description>
    <version>20240101</version>
  </header>
  <game name="Boulder Dash">
    <description>Boulder Dash (USA)</description>
    <rom name="Boulder Dash.crt" size="16464" crc="ABCD1234" md5="D41D8CD98F00B204E9800998ECF8427E" sha1="DA39A3EE5E6B4B0D3255BFEF95601890AFD80709"/>
  </game>
  <game name="Boulder Dash (Europe)" cloneof="Boulder Dash">
    <description>Boulder Dash (Europe)</description>
    <rom name="a.bin" size="1"/>
    <rom name="b.bin" size="2"/>
  </game>
</datafile>
`

func TestParseBytes(t *testing.T) {
	dat, err := ParseBytes([]byte(sampleDat))
	if err != nil {
		t.Fatalf("ParseBytes() error = %v", err)
	}

	if dat.Name != "Commodore - 64" || dat.Version != "20240101" {
		t.Errorf("header = %q %q", dat.Name, dat.Version)
	}
	if dat.Description != "Commodore 64 cartridges" {
		t.Errorf("Description = %q", dat.Description)
	}
	if dat.SHA1 != efm.HashBytes([]byte(sampleDat)) {
		t.Error("SHA1 does not match the source text")
	}
	if len(dat.Games) != 2 {
		t.Fatalf("got %d games, want 2", len(dat.Games))
	}

	first := dat.Games[0]
	if len(first.Roms) != 1 {
		t.Fatalf("got %d roms, want 1", len(first.Roms))
	}
	rom := first.Roms[0]
	if rom.Size != 16464 {
		t.Errorf("Size = %d, want 16464", rom.Size)
	}
	if rom.SHA1 != "da39a3ee5e6b4b0d3255bfef95601890afd80709" {
		t.Errorf("SHA1 = %q, want lowercase", rom.SHA1)
	}
	if rom.CRC != "abcd1234" {
		t.Errorf("CRC = %q, want lowercase", rom.CRC)
	}

	clone := dat.Games[1]
	if clone.CloneOf != "Boulder Dash" {
		t.Errorf("CloneOf = %q", clone.CloneOf)
	}
	if len(clone.Roms) != 2 || clone.Roms[1].Name != "b.bin" {
		t.Errorf("clone roms = %+v", clone.Roms)
	}
}

func TestParseBytes_Machines(t *testing.T) {
	src := `<datafile><header><name>arcade</name></header>
<machine name="pacman"><description>Pac-Man</description><rom name="pacman.6e" size="4096"/></machine>
</datafile>`

	dat, err := ParseBytes([]byte(src))
	if err != nil {
		t.Fatalf("ParseBytes() error = %v", err)
	}
	if len(dat.Games) != 1 || dat.Games[0].Name != "pacman" {
		t.Fatalf("games = %+v", dat.Games)
	}
	if dat.Games[0].Description != "Pac-Man" {
		t.Errorf("Description = %q", dat.Games[0].Description)
	}
}

func TestParseBytes_Invalid(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"not xml", "this is not a dat"},
		{"bad size", `<datafile><game name="g"><rom name="r" size="big"/></game></datafile>`},
		{"bad sha1", `<datafile><game name="g"><rom name="r" sha1="zz"/></game></datafile>`},
		{"nameless game", `<datafile><game><rom name="r"/></game></datafile>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseBytes([]byte(tt.src))
			if !errors.Is(err, efm.ErrDeserialization) {
				t.Errorf("error = %v, want deserialization error", err)
			}
		})
	}
}

func TestParser_Parse(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "c64.dat")
	if err := os.WriteFile(path, []byte(sampleDat), 0o644); err != nil {
		t.Fatal(err)
	}

	dat, err := NewParser().Parse(path)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(dat.Games) != 2 {
		t.Errorf("got %d games, want 2", len(dat.Games))
	}

	_, err = NewParser().Parse(filepath.Join(dir, "missing.dat"))
	if !errors.Is(err, efm.ErrIO) {
		t.Errorf("missing file error = %v, want io error", err)
	}
}
