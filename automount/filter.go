package automount

import (
	"bufio"
	"io"
	"path/filepath"
	"strings"

	iradix "github.com/hashicorp/go-immutable-radix"
)

// filterSet holds the set of root-name patterns that refuse a mount attempt,
// loaded from a filter file of one shell glob per line ('#'-prefixed lines
// are comments). Literal entries (no '*'/'?'/'[' metacharacters) are
// additionally indexed in an immutable radix tree, so a filter file
// dominated by plain names -- the common case -- rejects in a tree lookup
// instead of a linear glob scan; only the remaining true globs fall back to
// filepath.Match.
type filterSet struct {
	literals *iradix.Tree
	globs    []string
}

func newFilterSet() *filterSet {
	return &filterSet{literals: iradix.New()}
}

// isGlobPattern reports whether p contains any filepath.Match metacharacter.
func isGlobPattern(p string) bool {
	return strings.ContainsAny(p, "*?[")
}

// Add registers a filter pattern.
func (f *filterSet) Add(pattern string) {
	if pattern == "" {
		return
	}
	if isGlobPattern(pattern) {
		f.globs = append(f.globs, pattern)
		return
	}
	f.literals, _, _ = f.literals.Insert([]byte(pattern), true)
}

// loadFilterFile populates f from r, one pattern per line; blank lines and
// lines starting with '#' are skipped.
func loadFilterFile(f *filterSet, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		f.Add(line)
	}
	return scanner.Err()
}

// Filtered reports whether name is refused by any registered pattern.
func (f *filterSet) Filtered(name string) bool {
	if _, ok := f.literals.Get([]byte(name)); ok {
		return true
	}
	for _, pattern := range f.globs {
		if matched, _ := filepath.Match(pattern, name); matched {
			return true
		}
	}
	return false
}

// Empty reports whether no patterns are registered.
func (f *filterSet) Empty() bool {
	return f.literals.Len() == 0 && len(f.globs) == 0
}
