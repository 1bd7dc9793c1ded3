// Package testutil loads the model fixtures under testdata/fixtures and
// compares test output with their golden files.
package testutil

import (
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"testing"

	"pfls/internal/graph"
	"pfls/internal/model"
	"pfls/internal/parser"
)

// FixtureContext is one directory of .pf files plus its expected/ outputs.
type FixtureContext struct {
	Name        string
	Root        string   // absolute fixture directory
	Files       []string // absolute .pf paths, sorted
	ExpectedDir string
}

// LoadFixture resolves testdata/fixtures/<name>. The expected/ directory is
// created on demand so -update can write into a new fixture.
func LoadFixture(t *testing.T, name string) *FixtureContext {
	t.Helper()

	dir := filepath.Join(fixturesRoot(t), name)
	files, err := filepath.Glob(filepath.Join(dir, "*.pf"))
	if err != nil {
		t.Fatalf("list fixture %s: %v", name, err)
	}
	if len(files) == 0 {
		t.Fatalf("fixture %s has no .pf files in %s", name, dir)
	}
	sort.Strings(files)

	f := &FixtureContext{Name: name, Root: dir, Files: files, ExpectedDir: filepath.Join(dir, "expected")}
	if err := os.MkdirAll(f.ExpectedDir, 0o755); err != nil {
		t.Fatalf("create %s: %v", f.ExpectedDir, err)
	}
	return f
}

// URI is the file URI of a fixture file given by base name.
func (f *FixtureContext) URI(file string) string {
	return model.FileURI(filepath.Join(f.Root, file))
}

// Documents parses each fixture file at version 0.
func (f *FixtureContext) Documents(t *testing.T) []*model.Document {
	t.Helper()

	docs := make([]*model.Document, len(f.Files))
	for i, path := range f.Files {
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("read %s: %v", path, err)
		}
		docs[i] = parser.Parse(model.FileURI(path), 0, string(data))
	}
	return docs
}

// Graph is the snapshot built from Documents.
func (f *FixtureContext) Graph(t *testing.T) *graph.Graph {
	t.Helper()
	return graph.NewBuilder(nil).Build(f.Documents(t))
}

// ExpectedPath is expected/<name>; name carries its extension.
func (f *FixtureContext) ExpectedPath(name string) string {
	return filepath.Join(f.ExpectedDir, name)
}

func fixturesRoot(t *testing.T) string {
	t.Helper()

	_, self, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("cannot locate testutil source")
	}
	// internal/testutil/fixture.go -> module root
	root := filepath.Join(filepath.Dir(self), "..", "..", "testdata", "fixtures")
	if _, err := os.Stat(root); err != nil {
		t.Fatalf("fixtures root: %v", err)
	}
	return root
}

// AvailableFixtures lists the fixture directory names, skipping hidden ones.
func AvailableFixtures(t *testing.T) []string {
	t.Helper()

	entries, err := os.ReadDir(fixturesRoot(t))
	if err != nil {
		t.Fatalf("read fixtures root: %v", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}
	return names
}
