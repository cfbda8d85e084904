// Package title derives display names for file sets and software titles from
// file names and catalog entries.
package title

import (
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	tagPattern      = regexp.MustCompile(`\s*[\(\[][^\)\]]*[\)\]]`)
	spacePattern    = regexp.MustCompile(`\s+`)
	articlePattern  = regexp.MustCompile(`(?i)^(.*), (the|a|an)$`)
	nonAlnumPattern = regexp.MustCompile(`[^a-z0-9]+`)
)

// Normalize returns name in NFC with runs of whitespace collapsed.
func Normalize(name string) string {
	name = norm.NFC.String(name)
	name = spacePattern.ReplaceAllString(name, " ")
	return strings.TrimSpace(name)
}

// StripTags removes parenthesised and bracketed groups such as "(USA)" or
// "[cr TRC]" from a catalog or file name.
func StripTags(name string) string {
	return tagPattern.ReplaceAllString(name, "")
}

// FileSetName derives a file set name from a file name: the directory and the
// final extension are dropped, tags are kept.
//
//	"roms/Boulder Dash (1984)(First Star).d64" -> "Boulder Dash (1984)(First Star)"
func FileSetName(fileName string) string {
	base := filepath.Base(fileName)
	if ext := filepath.Ext(base); ext != "" && ext != base {
		base = strings.TrimSuffix(base, ext)
	}
	return Normalize(base)
}

// SoftwareTitle derives the name of the abstract work from a release or
// catalog name. Tags are stripped and a trailing article is moved to the front.
//
//	"Last Ninja, The (Europe)" -> "The Last Ninja"
func SoftwareTitle(name string) string {
	name = Normalize(StripTags(name))
	if m := articlePattern.FindStringSubmatch(name); m != nil {
		name = m[2] + " " + m[1]
	}
	return name
}

// MatchKey folds name for fuzzy comparison: tags and diacritics are removed,
// letters are lowercased, everything except letters and digits is dropped.
func MatchKey(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, SoftwareTitle(name))
	if err != nil {
		folded = name
	}
	return nonAlnumPattern.ReplaceAllString(strings.ToLower(folded), "")
}
