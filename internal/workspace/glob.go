package workspace

import (
	"path"
	"path/filepath"
	"strings"
)

// Matcher selects workspace files by include and exclude globs. Patterns use
// forward slashes and are matched against paths relative to a root; "**"
// matches any number of path segments, including none.
type Matcher struct {
	include []string
	exclude []string
}

// NewMatcher creates a matcher. An empty include list matches every file.
func NewMatcher(include, exclude []string) *Matcher {
	return &Matcher{include: include, exclude: exclude}
}

// Match reports whether rel, a root-relative path, is selected.
func (m *Matcher) Match(rel string) bool {
	rel = filepath.ToSlash(rel)
	if m.Excluded(rel) {
		return false
	}
	if len(m.include) == 0 {
		return true
	}
	for _, p := range m.include {
		if matchGlob(p, rel) {
			return true
		}
	}
	return false
}

// Excluded reports whether rel matches an exclude pattern. Directories are
// tested with a trailing slash so "**/node_modules/**" prunes the directory
// itself.
func (m *Matcher) Excluded(rel string) bool {
	rel = filepath.ToSlash(rel)
	for _, p := range m.exclude {
		if matchGlob(p, rel) || matchGlob(p, rel+"/") {
			return true
		}
	}
	return false
}

func matchGlob(pattern, name string) bool {
	return matchSegments(strings.Split(pattern, "/"), strings.Split(name, "/"))
}

func matchSegments(pat, segs []string) bool {
	for len(pat) > 0 {
		if pat[0] == "**" {
			rest := pat[1:]
			for i := 0; i <= len(segs); i++ {
				if matchSegments(rest, segs[i:]) {
					return true
				}
			}
			return false
		}
		if len(segs) == 0 {
			return false
		}
		ok, err := path.Match(pat[0], segs[0])
		if err != nil || !ok {
			return false
		}
		pat, segs = pat[1:], segs[1:]
	}
	return len(segs) == 0
}
