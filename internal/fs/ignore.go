package fs

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"efm-go/internal/efm"
)

// IgnoreFileName is the per-directory ignore file consulted by mass import.
const IgnoreFileName = ".efmignore"

// rule is one line of an ignore list.
//
//	*.txt        any file or directory named like this, at any depth
//	docs/*.pdf   matched against the slash-separated path from the root
//	scans/       directories only
//	!keep.txt    re-includes what an earlier rule excluded
//
// Matching is case-insensitive: dumps copied from FAT media mix "Thumbs.db"
// and "THUMBS.DB".
type rule struct {
	glob    string
	full    bool // glob contains a slash
	dirOnly bool
	negate  bool
}

// IgnoreMatcher decides which entries a directory walk skips. Rules apply in
// order and the last matching rule wins.
type IgnoreMatcher struct {
	rules []rule
}

// NewIgnoreMatcher parses lines into rules, skipping blanks and # comments.
func NewIgnoreMatcher(lines []string) *IgnoreMatcher {
	m := &IgnoreMatcher{}
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		var r rule
		if strings.HasPrefix(line, "!") {
			r.negate = true
			line = line[1:]
		}
		if strings.HasSuffix(line, "/") {
			r.dirOnly = true
			line = strings.TrimRight(line, "/")
		}
		line = strings.TrimPrefix(line, "/")
		if line == "" {
			continue
		}
		r.full = strings.Contains(line, "/")
		r.glob = strings.ToLower(line)
		m.rules = append(m.rules, r)
	}
	return m
}

// Match reports whether rel, a path relative to the walk root, is ignored.
func (m *IgnoreMatcher) Match(rel string, isDir bool) bool {
	path := strings.ToLower(filepath.ToSlash(rel))
	base := path
	if i := strings.LastIndex(path, "/"); i >= 0 {
		base = path[i+1:]
	}

	ignored := false
	for _, r := range m.rules {
		if r.dirOnly && !isDir {
			continue
		}
		subject := base
		if r.full {
			subject = path
		}
		// filepath.Match only fails on malformed globs; such rules never match
		if ok, err := filepath.Match(r.glob, subject); err == nil && ok {
			ignored = !r.negate
		}
	}
	return ignored
}

// ParseIgnoreFile returns the lines of an ignore file, or nil when it does not
// exist.
func ParseIgnoreFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, efm.NewIOError("opening "+path, err)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, efm.NewIOError("reading "+path, err)
	}
	return lines, nil
}

// LoadIgnoreMatcher builds the matcher for a walk of dir: the ignore file
// itself is always skipped, then configured rules apply, then the rules of
// dir's own ignore file.
func LoadIgnoreMatcher(dir string, configured []string) (*IgnoreMatcher, error) {
	fromFile, err := ParseIgnoreFile(filepath.Join(dir, IgnoreFileName))
	if err != nil {
		return nil, err
	}
	lines := append([]string{IgnoreFileName}, configured...)
	return NewIgnoreMatcher(append(lines, fromFile...)), nil
}
