package workspace

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"

	pferrors "pfls/internal/errors"
	"pfls/internal/graph"
	"pfls/internal/model"
	"pfls/internal/parser"
)

type recorder struct {
	mu      sync.Mutex
	changes []Change
}

func (r *recorder) record(c Change) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, c)
}

func (r *recorder) last() Change {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.changes) == 0 {
		return Change{}
	}
	return r.changes[len(r.changes)-1]
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.changes)
}

func writeModel(t *testing.T, path, src string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(src), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestOpenIndexesDocument(t *testing.T) {
	s := NewSession(nil)
	s.Open("file:///w/a.pf", 1, "domain Door kind causal\nrequirement \"R1\" { constrains: Door }\n")

	g := s.Snapshot()
	if !g.HasNode(graph.DomainRef("Door")) || !g.HasNode(graph.RequirementRef("R1")) {
		t.Fatalf("expected Door and R1 in snapshot, got %+v", g.Nodes())
	}
	if g.Version() != 1 {
		t.Errorf("expected graph version 1, got %d", g.Version())
	}
	if !s.IsOpen("FILE:///w/a.pf") {
		t.Error("expected document to be open under any URI spelling")
	}
}

func TestDiagnosticsMergeParseErrorsAndWarnings(t *testing.T) {
	s := NewSession(nil)
	s.Open("file:///w/a.pf", 1, "requirement \"R1\" { constrains: Ghost }\n")

	diags := s.Diagnostics("file:///w/a.pf")
	if len(diags) != 1 {
		t.Fatalf("expected one warning, got %+v", diags)
	}
	if diags[0].Severity != model.SeverityWarning || diags[0].Code != string(graph.WarnDanglingReference) {
		t.Errorf("unexpected diagnostic %+v", diags[0])
	}

	s.Change("file:///w/a.pf", 2, "domain {\n")
	diags = s.Diagnostics("file:///w/a.pf")
	if len(diags) == 0 || diags[0].Severity != model.SeverityError {
		t.Errorf("expected a parse error, got %+v", diags)
	}
	if !s.Snapshot().DocumentFailed("file:///w/a.pf") {
		t.Error("expected failed document in snapshot")
	}
}

func TestSubscribersSeeDiagnosticChangesInOtherDocuments(t *testing.T) {
	s := NewSession(nil)
	rec := &recorder{}
	s.Subscribe(rec.record)

	s.Open("file:///w/a.pf", 1, "requirement \"R1\" { constrains: Door }\n")
	if got := rec.last().URIs; !reflect.DeepEqual(got, []string{"file:///w/a.pf"}) {
		t.Fatalf("expected a.pf to change, got %v", got)
	}

	s.Open("file:///w/b.pf", 1, "domain Door kind causal\n")
	if got := rec.last().URIs; !reflect.DeepEqual(got, []string{"file:///w/a.pf"}) {
		t.Errorf("expected a.pf warning to clear, got %v", got)
	}
	if diags := s.Diagnostics("file:///w/a.pf"); len(diags) != 0 {
		t.Errorf("expected no diagnostics left, got %+v", diags)
	}

	before := rec.count()
	s.Change("file:///w/b.pf", 2, "domain Door kind causal\n\n")
	if rec.count() != before {
		t.Errorf("expected no notification when no diagnostics changed, got %+v", rec.last())
	}
}

func TestChangeRejectsOlderVersion(t *testing.T) {
	s := NewSession(nil)
	s.Open("file:///w/a.pf", 5, "domain A kind causal\n")
	v := s.Snapshot().Version()

	err := s.Change("file:///w/a.pf", 4, "domain B kind causal\n")
	if pferrors.CodeOf(err) != pferrors.StaleResult {
		t.Fatalf("expected %s, got %v", pferrors.StaleResult, err)
	}
	if s.Snapshot().Version() != v || !s.Snapshot().HasNode(graph.DomainRef("A")) {
		t.Error("expected snapshot to be untouched by a stale change")
	}
}

func TestStampIsCurrent(t *testing.T) {
	s := NewSession(nil)
	s.Open("file:///w/a.pf", 1, "domain A kind causal\n")
	s.Open("file:///w/b.pf", 1, "domain B kind causal\n")

	st := s.Stamp("file:///w/a.pf")
	if !st.Known || st.DocVersion != 1 {
		t.Fatalf("unexpected stamp %+v", st)
	}

	s.Change("file:///w/b.pf", 2, "domain B2 kind causal\n")
	if !s.IsCurrent(st) {
		t.Error("expected edits to another document to keep the stamp current")
	}

	s.Change("file:///w/a.pf", 2, "domain A2 kind causal\n")
	if s.IsCurrent(st) {
		t.Error("expected an edit to the stamped document to invalidate it")
	}

	missing := s.Stamp("file:///w/none.pf")
	if missing.Known || !s.IsCurrent(missing) {
		t.Errorf("expected unknown document stamp to stay current, got %+v", missing)
	}
}

func TestStampInvalidatedByDiskReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.pf")
	writeModel(t, path, "domain Door kind causal\nrequirement \"R1\" { constrains: Door }\n")

	s := NewSession(nil)
	if !s.ReloadFromDisk(path) {
		t.Fatal("expected reload to index the file")
	}
	st := s.Stamp(model.FileURI(path))
	if !st.Known || !s.IsCurrent(st) {
		t.Fatalf("expected a current stamp, got %+v", st)
	}

	writeModel(t, path, "domain Door kind causal\n")
	s.ReloadFromDisk(path)
	if s.Snapshot().HasNode(graph.RequirementRef("R1")) {
		t.Fatal("expected R1 gone after reload")
	}
	if s.IsCurrent(st) {
		t.Error("expected a disk reload to invalidate the stamp although the version stays 0")
	}

	other := filepath.Join(dir, "b.pf")
	writeModel(t, other, "domain B kind causal\n")
	st = s.Stamp(model.FileURI(path))
	s.ReloadFromDisk(other)
	if !s.IsCurrent(st) {
		t.Error("expected reloading another file to keep the stamp current")
	}
}

func TestCloseFallsBackToDisk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "door.pf")
	writeModel(t, path, "domain OnDisk kind causal\n")
	uri := model.FileURI(path)

	s := NewSession(nil)
	s.Open(uri, 3, "domain InEditor kind causal\n")
	if !s.Snapshot().HasNode(graph.DomainRef("InEditor")) {
		t.Fatal("expected editor content indexed")
	}

	s.Close(uri)
	g := s.Snapshot()
	if g.HasNode(graph.DomainRef("InEditor")) || !g.HasNode(graph.DomainRef("OnDisk")) {
		t.Errorf("expected disk content after close, got %+v", g.Nodes())
	}
	if s.IsOpen(uri) {
		t.Error("expected document to be closed")
	}
}

func TestCloseWithoutFileRemovesAndClearsDiagnostics(t *testing.T) {
	s := NewSession(nil)
	rec := &recorder{}
	s.Subscribe(rec.record)

	uri := "file:///nowhere/untitled.pf"
	s.Open(uri, 1, "requirement \"R\" { constrains: Ghost }\n")
	s.Close(uri)

	if s.Snapshot().HasDocument(uri) {
		t.Error("expected document removed")
	}
	if got := rec.last().URIs; !reflect.DeepEqual(got, []string{uri}) {
		t.Errorf("expected diagnostics cleared for %s, got %v", uri, got)
	}
	if diags := s.Diagnostics(uri); len(diags) != 0 {
		t.Errorf("expected no diagnostics, got %+v", diags)
	}
}

func TestReloadAndForgetSkipOpenDocuments(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "m.pf")
	writeModel(t, path, "domain Disk kind causal\n")

	s := NewSession(nil)
	if !s.ReloadFromDisk(path) {
		t.Fatal("expected reload to index the file")
	}
	if !s.Snapshot().HasNode(graph.DomainRef("Disk")) {
		t.Fatal("expected disk content")
	}

	uri := model.FileURI(path)
	s.Open(uri, 1, "domain Editor kind causal\n")
	writeModel(t, path, "domain Disk2 kind causal\n")
	if s.ReloadFromDisk(path) {
		t.Error("expected reload of an open document to be ignored")
	}
	if s.Forget(path) {
		t.Error("expected forget of an open document to be ignored")
	}
	if !s.Snapshot().HasNode(graph.DomainRef("Editor")) {
		t.Error("expected editor content to survive disk events")
	}

	s.Close(uri)
	if !s.Snapshot().HasNode(graph.DomainRef("Disk2")) {
		t.Error("expected latest disk content after close")
	}
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	if !s.Forget(path) {
		t.Error("expected forget to drop the document")
	}
	if s.Snapshot().HasDocument(uri) {
		t.Error("expected document gone")
	}
	if s.Forget(path) {
		t.Error("expected second forget to be a no-op")
	}
}

func TestImportsResolveStdAndRelative(t *testing.T) {
	dir := t.TempDir()
	main := filepath.Join(dir, "models", "main.pf")
	writeModel(t, filepath.Join(dir, "lib", "common.pf"), "domain Shared kind lexical\n")
	src := `import "std/RequiredBehavior"
import "../lib/common.pf"
import "missing.pf"
requirement "R" { constrains: Shared }
`

	s := NewSession(nil)
	s.Open(model.FileURI(main), 1, src)
	g := s.Snapshot()

	if !g.HasDocument(parser.StdURI("std/RequiredBehavior")) {
		t.Errorf("expected embedded frame loaded, got %v", g.Documents())
	}
	if !g.HasNode(graph.DomainRef("ControlledDomain")) {
		t.Error("expected frame declarations in the graph")
	}
	if !g.HasNode(graph.DomainRef("Shared")) {
		t.Error("expected relative import loaded")
	}

	diags := s.Diagnostics(model.FileURI(main))
	if len(diags) != 1 || diags[0].Code != CodeUnresolvedImport {
		t.Errorf("expected one unresolved-import warning, got %+v", diags)
	}
}

func TestLoadRoots(t *testing.T) {
	dir := t.TempDir()
	writeModel(t, filepath.Join(dir, "a.pf"), "domain A kind causal\n")
	writeModel(t, filepath.Join(dir, "sub", "b.pf"), "requirement \"RB\" { constrains: A }\n")
	writeModel(t, filepath.Join(dir, "node_modules", "x.pf"), "domain Hidden kind causal\n")
	writeModel(t, filepath.Join(dir, "notes.txt"), "domain Text kind causal\n")

	s := NewSession(nil)
	s.Open(model.FileURI(filepath.Join(dir, "a.pf")), 7, "domain Edited kind causal\n")

	n, err := s.LoadRoots(context.Background(), []string{dir}, []string{"**/*.pf"}, []string{"**/node_modules/**"})
	if err != nil {
		t.Fatalf("LoadRoots failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 document loaded besides the open one, got %d", n)
	}

	g := s.Snapshot()
	if !g.HasNode(graph.RequirementRef("RB")) {
		t.Error("expected sub/b.pf indexed")
	}
	if g.HasNode(graph.DomainRef("Hidden")) || g.HasNode(graph.DomainRef("Text")) {
		t.Error("expected excluded files skipped")
	}
	if !g.HasNode(graph.DomainRef("Edited")) || g.HasNode(graph.DomainRef("A")) {
		t.Error("expected open document to keep editor content")
	}
}

func TestLoadRootsErrors(t *testing.T) {
	s := NewSession(nil)
	if _, err := s.LoadRoots(context.Background(), []string{filepath.Join(t.TempDir(), "missing")}, nil, nil); err == nil {
		t.Error("expected error for a missing root")
	}

	dir := t.TempDir()
	writeModel(t, filepath.Join(dir, "a.pf"), "domain A kind causal\n")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.LoadRoots(ctx, []string{dir}, nil, nil); err == nil {
		t.Error("expected error for a cancelled context")
	}
}

func TestConcurrentReadersDuringWrites(t *testing.T) {
	s := NewSession(nil)
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				g := s.Snapshot()
				if err := g.Validate(); err != nil {
					t.Errorf("inconsistent snapshot: %v", err)
					return
				}
			}
		}()
	}
	for v := int32(1); v <= 50; v++ {
		s.Open("file:///w/a.pf", v, "domain A kind causal\nrequirement \"R\" { constrains: A }\n")
	}
	wg.Wait()
}

func TestImportsRetractedWhenUnreferenced(t *testing.T) {
	dir := t.TempDir()
	main := model.FileURI(filepath.Join(dir, "main.pf"))
	lib := filepath.Join(dir, "lib.pf")
	writeModel(t, lib, "import \"nested.pf\"\ndomain Shared kind lexical\n")
	writeModel(t, filepath.Join(dir, "nested.pf"), "domain Deep kind causal\n")
	libURI := model.FileURI(lib)
	nestedURI := model.FileURI(filepath.Join(dir, "nested.pf"))

	s := NewSession(nil)
	s.Open(main, 1, "import \"lib.pf\"\nrequirement \"R\" { constrains: Shared }\n")
	if !s.Snapshot().HasDocument(libURI) || !s.Snapshot().HasDocument(nestedURI) {
		t.Fatalf("expected transitive imports loaded, got %v", s.Snapshot().Documents())
	}

	s.Change(main, 2, "import \"lib.pf\"\nrequirement \"R\" {\n")
	if !s.Snapshot().HasDocument(libURI) {
		t.Error("expected a parse error to keep the last imports")
	}

	s.Change(main, 3, "requirement \"R\" { constrains: Shared }\n")
	g := s.Snapshot()
	if g.HasDocument(libURI) || g.HasDocument(nestedURI) {
		t.Errorf("expected dropped imports retracted, got %v", g.Documents())
	}
	if g.HasNode(graph.DomainRef("Shared")) || g.HasNode(graph.DomainRef("Deep")) {
		t.Error("expected imported declarations gone")
	}
	if st := s.Stamp(libURI); st.Known {
		t.Errorf("expected retracted import to be unknown, got %+v", st)
	}

	s.Change(main, 4, "import \"lib.pf\"\n")
	if !s.Snapshot().HasDocument(libURI) {
		t.Fatal("expected import loaded again")
	}
	s.Close(main)
	g = s.Snapshot()
	if g.HasDocument(main) || g.HasDocument(libURI) || g.HasDocument(nestedURI) {
		t.Errorf("expected closing the only importer to retract its imports, got %v", g.Documents())
	}
}

func TestImportedMembersSurviveImporter(t *testing.T) {
	dir := t.TempDir()
	writeModel(t, filepath.Join(dir, "a.pf"), "import \"b.pf\"\nrequirement \"R\" { constrains: B }\n")
	writeModel(t, filepath.Join(dir, "b.pf"), "domain B kind causal\n")

	s := NewSession(nil)
	if _, err := s.LoadRoots(context.Background(), []string{dir}, []string{"**/*.pf"}, nil); err != nil {
		t.Fatalf("LoadRoots failed: %v", err)
	}
	a := filepath.Join(dir, "a.pf")
	if err := os.Remove(a); err != nil {
		t.Fatal(err)
	}
	if !s.Forget(a) {
		t.Fatal("expected a.pf dropped")
	}
	if !s.Snapshot().HasNode(graph.DomainRef("B")) {
		t.Error("expected a workspace member to stay after its importer is gone")
	}
}
