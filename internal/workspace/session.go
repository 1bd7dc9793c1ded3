// Package workspace owns the documents of one editing session and the graph
// snapshot built from them.
//
// Writers (editor sync, disk reloads, watcher events) are serialized and each
// swaps in a freshly linked snapshot. Readers take a snapshot once and
// traverse it without locks.
package workspace

import (
	"context"
	"log/slog"
	"os"
	"reflect"
	"slices"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	pferrors "pfls/internal/errors"
	"pfls/internal/graph"
	"pfls/internal/model"
	"pfls/internal/parser"
	"pfls/internal/slogutil"
)

// Stamp identifies the document and graph versions a request started from.
type Stamp struct {
	URI          string
	Known        bool // the document was indexed when the stamp was taken
	DocVersion   int32
	Generation   uint64 // bumped on every re-index, including disk reloads
	GraphVersion uint64
}

// Change tells subscribers which documents may have new diagnostics.
type Change struct {
	GraphVersion uint64
	URIs         []string
}

// Session is the workspace state of one language server session.
type Session struct {
	id       string
	builder  *graph.Builder
	logger   *slog.Logger
	readFile func(string) ([]byte, error)

	current atomic.Pointer[graph.Graph]

	mu        sync.Mutex // serializes writers and guards the maps below
	open      map[string]int32
	versions  map[string]int32
	gens      map[string]uint64
	lastGen   uint64
	docDiags  map[string][]model.Diagnostic
	published map[string][]model.Diagnostic

	// members are indexed in their own right. Every other document stays
	// only while an open document or a member imports it.
	members   map[string]bool
	importsOf map[string][]string

	subMu sync.RWMutex
	subs  []func(Change)
}

// NewSession creates an empty session. A nil logger discards output.
func NewSession(logger *slog.Logger) *Session {
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}
	id := uuid.NewString()
	s := &Session{
		id:        id,
		builder:   graph.NewBuilder(logger),
		logger:    logger.With("session", id),
		readFile:  os.ReadFile,
		open:      make(map[string]int32),
		versions:  make(map[string]int32),
		gens:      make(map[string]uint64),
		docDiags:  make(map[string][]model.Diagnostic),
		published: make(map[string][]model.Diagnostic),
		members:   make(map[string]bool),
		importsOf: make(map[string][]string),
	}
	s.current.Store(graph.Empty())
	return s
}

// ID returns the session identifier used in logs.
func (s *Session) ID() string { return s.id }

// Snapshot returns the current graph. The snapshot never changes.
func (s *Session) Snapshot() *graph.Graph { return s.current.Load() }

// Subscribe registers fn to be called after every graph swap.
func (s *Session) Subscribe(fn func(Change)) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.subs = append(s.subs, fn)
}

// IsOpen reports whether the editor currently owns uri.
func (s *Session) IsOpen(uri string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.open[model.NormalizeURI(uri)]
	return ok
}

// Stamp records the current versions for uri.
func (s *Session) Stamp(uri string) Stamp {
	uri = model.NormalizeURI(uri)
	s.mu.Lock()
	v, known := s.versions[uri]
	gen := s.gens[uri]
	s.mu.Unlock()
	return Stamp{URI: uri, Known: known, DocVersion: v, Generation: gen, GraphVersion: s.Snapshot().Version()}
}

// IsCurrent reports whether the stamped document has not been re-indexed
// since the stamp was taken. Edits to other documents do not invalidate a
// stamp.
func (s *Session) IsCurrent(st Stamp) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, known := s.versions[st.URI]
	return known == st.Known && v == st.DocVersion && s.gens[st.URI] == st.Generation
}

// Open indexes a document the editor opened.
func (s *Session) Open(uri string, version int32, text string) {
	uri = model.NormalizeURI(uri)
	s.write("open", func() ([]*model.Document, []string) {
		s.open[uri] = version
		return s.parseLocked(uri, version, text), nil
	})
}

// Change replaces the full text of an open document. Versions older than the
// indexed one are ignored.
func (s *Session) Change(uri string, version int32, text string) error {
	uri = model.NormalizeURI(uri)
	var stale bool
	s.write("change", func() ([]*model.Document, []string) {
		if cur, ok := s.open[uri]; ok && version < cur {
			stale = true
			return nil, nil
		}
		s.open[uri] = version
		return s.parseLocked(uri, version, text), nil
	})
	if stale {
		return pferrors.NewPfError(pferrors.StaleResult, "change older than the indexed version", nil, nil).
			WithDetails(map[string]any{"uri": uri, "version": version})
	}
	return nil
}

// Close hands a document back to the disk. If the file still exists its
// on-disk content is indexed; otherwise the document is removed.
func (s *Session) Close(uri string) {
	uri = model.NormalizeURI(uri)
	s.write("close", func() ([]*model.Document, []string) {
		delete(s.open, uri)
		if docs, ok := s.loadFromDiskLocked(uri); ok {
			if !s.importedLocked(uri) {
				s.members[uri] = true
			}
			return docs, nil
		}
		s.dropLocked(uri)
		return nil, []string{uri}
	})
}

// ReloadFromDisk re-reads path unless the editor owns it. It reports whether
// the graph changed.
func (s *Session) ReloadFromDisk(path string) bool {
	uri := model.FileURI(path)
	changed := false
	s.write("reload", func() ([]*model.Document, []string) {
		if _, open := s.open[uri]; open {
			return nil, nil
		}
		docs, ok := s.loadFromDiskLocked(uri)
		if !ok {
			if !s.Snapshot().HasDocument(uri) {
				return nil, nil
			}
			s.dropLocked(uri)
			changed = true
			return nil, []string{uri}
		}
		s.members[uri] = true
		changed = true
		return docs, nil
	})
	return changed
}

// Forget drops a deleted file unless the editor owns it.
func (s *Session) Forget(path string) bool {
	uri := model.FileURI(path)
	changed := false
	s.write("forget", func() ([]*model.Document, []string) {
		if _, open := s.open[uri]; open {
			return nil, nil
		}
		if !s.Snapshot().HasDocument(uri) {
			return nil, nil
		}
		s.dropLocked(uri)
		changed = true
		return nil, []string{uri}
	})
	return changed
}

// Diagnostics returns the parse diagnostics of uri followed by the builder
// warnings the current snapshot reports for it.
func (s *Session) Diagnostics(uri string) []model.Diagnostic {
	uri = model.NormalizeURI(uri)
	s.mu.Lock()
	parsed := s.docDiags[uri]
	s.mu.Unlock()
	return mergeDiagnostics(parsed, s.Snapshot().WarningsFor(uri))
}

func mergeDiagnostics(parsed []model.Diagnostic, warnings []graph.Warning) []model.Diagnostic {
	out := make([]model.Diagnostic, 0, len(parsed)+len(warnings))
	out = append(out, parsed...)
	for _, w := range warnings {
		out = append(out, model.Diagnostic{
			Span:     w.Span,
			Severity: model.SeverityWarning,
			Code:     string(w.Code),
			Message:  w.Message,
		})
	}
	return out
}

// write runs mutate under the writer lock, applies the documents it returns,
// swaps the snapshot and notifies subscribers of changed diagnostics.
func (s *Session) write(reason string, mutate func() ([]*model.Document, []string)) {
	s.mu.Lock()
	docs, removed := mutate()
	if len(docs) == 0 && len(removed) == 0 {
		s.mu.Unlock()
		return
	}
	docs, removed = s.retractOrphansLocked(docs, removed)
	change := s.applyLocked(reason, docs, removed)
	s.mu.Unlock()

	s.notify(change)
}

func (s *Session) applyLocked(reason string, docs []*model.Document, removed []string) Change {
	prev := s.Snapshot()
	next := s.builder.Apply(prev, docs, removed)
	s.current.Store(next)
	recordRebuild(context.Background(), reason)

	s.logger.Debug("graph updated",
		"reason", reason,
		"version", next.Version(),
		"documents", len(next.Documents()),
		"pending", len(next.Pending()),
	)

	// Diagnostics can change for any document, not just the edited ones:
	// a new declaration resolves other documents' dangling references.
	candidates := make(map[string]struct{})
	for _, uri := range next.Documents() {
		candidates[uri] = struct{}{}
	}
	for uri := range s.published {
		candidates[uri] = struct{}{}
	}

	var changed []string
	for uri := range candidates {
		diags := mergeDiagnostics(s.docDiags[uri], next.WarningsFor(uri))
		prevDiags, seen := s.published[uri]
		if next.HasDocument(uri) {
			s.published[uri] = diags
		} else {
			delete(s.published, uri)
		}
		if seen && reflect.DeepEqual(prevDiags, diags) {
			continue
		}
		if !seen && len(diags) == 0 {
			continue
		}
		changed = append(changed, uri)
	}
	sort.Strings(changed)
	return Change{GraphVersion: next.Version(), URIs: changed}
}

func (s *Session) notify(c Change) {
	if len(c.URIs) == 0 {
		return
	}
	s.subMu.RLock()
	subs := slices.Clone(s.subs)
	s.subMu.RUnlock()
	for _, fn := range subs {
		fn(c)
	}
}

// parseLocked parses text and resolves its imports.
func (s *Session) parseLocked(uri string, version int32, text string) []*model.Document {
	doc := parser.Parse(uri, version, text)
	s.recordLocked(doc)
	return append([]*model.Document{doc}, s.resolveImportsLocked([]*model.Document{doc})...)
}

// loadFromDiskLocked reads uri from disk when it names an existing file.
func (s *Session) loadFromDiskLocked(uri string) ([]*model.Document, bool) {
	path, ok := model.URIToPath(uri)
	if !ok {
		return nil, false
	}
	data, err := s.readFile(path)
	if err != nil {
		return nil, false
	}
	return s.parseLocked(uri, 0, string(data)), true
}

func (s *Session) dropLocked(uri string) {
	delete(s.versions, uri)
	delete(s.gens, uri)
	delete(s.docDiags, uri)
	delete(s.members, uri)
	delete(s.importsOf, uri)
}

// importedLocked reports whether another indexed document imports uri.
func (s *Session) importedLocked(uri string) bool {
	for from, imports := range s.importsOf {
		if from != uri && slices.Contains(imports, uri) {
			return true
		}
	}
	return false
}

// retractOrphansLocked extends removed with every document that would stay
// indexed after the update although no open document or member reaches it
// through imports.
func (s *Session) retractOrphansLocked(docs []*model.Document, removed []string) ([]*model.Document, []string) {
	present := make(map[string]bool)
	for _, uri := range s.Snapshot().Documents() {
		present[uri] = true
	}
	for _, d := range docs {
		present[d.URI] = true
	}
	for _, uri := range removed {
		delete(present, uri)
	}

	reached := make(map[string]bool, len(present))
	var queue []string
	for uri := range present {
		if _, open := s.open[uri]; open || s.members[uri] {
			reached[uri] = true
			queue = append(queue, uri)
		}
	}
	for len(queue) > 0 {
		uri := queue[0]
		queue = queue[1:]
		for _, imp := range s.importsOf[uri] {
			if present[imp] && !reached[imp] {
				reached[imp] = true
				queue = append(queue, imp)
			}
		}
	}

	var orphans []string
	for uri := range present {
		if !reached[uri] {
			orphans = append(orphans, uri)
		}
	}
	if len(orphans) == 0 {
		return docs, removed
	}
	sort.Strings(orphans)
	for _, uri := range orphans {
		s.dropLocked(uri)
	}
	s.logger.Debug("retracting unreferenced imports", "uris", orphans)

	kept := docs[:0:0]
	for _, d := range docs {
		if reached[d.URI] {
			kept = append(kept, d)
		}
	}
	return kept, append(removed, orphans...)
}
