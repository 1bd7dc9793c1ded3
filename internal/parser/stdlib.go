package parser

import (
	"embed"
	"path"
	"sort"
	"strings"
)

//go:embed std/*.pf
var stdFS embed.FS

// StdScheme is the URI scheme of embedded standard frame documents.
const StdScheme = "pfstd"

// IsStdImport reports whether an import path names an embedded frame.
func IsStdImport(importPath string) bool {
	return strings.HasPrefix(importPath, "std/")
}

// StdURI returns the document URI of an embedded frame import.
func StdURI(importPath string) string {
	name := path.Base(importPath)
	if !strings.HasSuffix(name, ".pf") {
		name += ".pf"
	}
	return StdScheme + ":///" + name
}

// StdSource returns the source of an embedded frame, e.g. "std/RequiredBehavior.pf".
func StdSource(importPath string) (string, bool) {
	if !IsStdImport(importPath) {
		return "", false
	}
	name := path.Base(importPath)
	if !strings.HasSuffix(name, ".pf") {
		name += ".pf"
	}
	data, err := stdFS.ReadFile("std/" + name)
	if err != nil {
		return "", false
	}
	return string(data), true
}

// StdFrames lists the embedded frame names in sorted order.
func StdFrames() []string {
	entries, err := stdFS.ReadDir("std")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".pf"))
	}
	sort.Strings(names)
	return names
}
