// Package dat parses Logiqx-style XML DAT catalogs.
//
//	<datafile>
//	  <header><name/><description/><version/></header>
//	  <game name="" cloneof="">
//	    <description/>
//	    <rom name="" size="" crc="" md5="" sha1=""/>
//	  </game>
//	</datafile>
//
// MAME-style <machine> elements are accepted in place of <game>.
package dat

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/net/html/charset"

	"efm-go/internal/efm"
)

type xmlDatafile struct {
	XMLName  xml.Name  `xml:"datafile"`
	Header   xmlHeader `xml:"header"`
	Games    []xmlGame `xml:"game"`
	Machines []xmlGame `xml:"machine"`
}

type xmlHeader struct {
	Name        string `xml:"name"`
	Description string `xml:"description"`
	Version     string `xml:"version"`
}

type xmlGame struct {
	Name        string   `xml:"name,attr"`
	CloneOf     string   `xml:"cloneof,attr"`
	Description string   `xml:"description"`
	Roms        []xmlRom `xml:"rom"`
}

type xmlRom struct {
	Name string `xml:"name,attr"`
	Size string `xml:"size,attr"`
	CRC  string `xml:"crc,attr"`
	MD5  string `xml:"md5,attr"`
	SHA1 string `xml:"sha1,attr"`
}

// Parser implements efm.DatParser for files on disk.
type Parser struct{}

func NewParser() *Parser { return &Parser{} }

// Parse reads and parses the DAT file at path.
func (p *Parser) Parse(path string) (*efm.DatFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, efm.NewIOError("reading dat file "+path, err)
	}
	return ParseBytes(data)
}

// ParseBytes parses DAT text held in memory. The SHA-1 of data identifies the result.
func ParseBytes(data []byte) (*efm.DatFile, error) {
	var doc xmlDatafile
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = false
	dec.CharsetReader = func(label string, input io.Reader) (io.Reader, error) {
		return charset.NewReaderLabel(label, input)
	}
	if err := dec.Decode(&doc); err != nil {
		return nil, efm.NewDeserializationError("parsing dat file", err)
	}

	out := &efm.DatFile{
		Name:        strings.TrimSpace(doc.Header.Name),
		Description: strings.TrimSpace(doc.Header.Description),
		Version:     strings.TrimSpace(doc.Header.Version),
		SHA1:        efm.HashBytes(data),
	}

	games := append(doc.Games, doc.Machines...)
	for _, g := range games {
		game := efm.DatGame{
			Name:        strings.TrimSpace(g.Name),
			CloneOf:     strings.TrimSpace(g.CloneOf),
			Description: strings.TrimSpace(g.Description),
		}
		if game.Name == "" {
			return nil, efm.NewDeserializationError("dat game without a name", nil)
		}
		for _, r := range g.Roms {
			rom, err := convertRom(r)
			if err != nil {
				return nil, efm.NewDeserializationError(fmt.Sprintf("game %q", game.Name), err)
			}
			game.Roms = append(game.Roms, rom)
		}
		out.Games = append(out.Games, game)
	}
	return out, nil
}

func convertRom(r xmlRom) (efm.DatRom, error) {
	rom := efm.DatRom{
		Name: r.Name,
		CRC:  strings.ToLower(r.CRC),
		MD5:  strings.ToLower(r.MD5),
		SHA1: strings.ToLower(r.SHA1),
	}
	if r.Size != "" {
		size, err := strconv.ParseUint(r.Size, 10, 64)
		if err != nil {
			return rom, fmt.Errorf("rom %q has invalid size %q: %w", r.Name, r.Size, err)
		}
		rom.Size = efm.FileSize(size)
	}
	if rom.SHA1 != "" {
		if _, err := efm.ParseChecksum(rom.SHA1); err != nil {
			return rom, fmt.Errorf("rom %q: %w", r.Name, err)
		}
	}
	return rom, nil
}

var _ efm.DatParser = (*Parser)(nil)
