package workspace

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"pfls/internal/model"
	"pfls/internal/parser"
)

// CodeUnresolvedImport marks an import that could not be loaded.
const CodeUnresolvedImport = "unresolved-import"

// LoadRoots indexes every file under roots selected by include and exclude.
// Files are read and parsed in parallel and linked in a single graph update.
// Documents the editor has open keep their editor content. It returns the
// number of documents indexed.
func (s *Session) LoadRoots(ctx context.Context, roots, include, exclude []string) (int, error) {
	paths, err := discover(ctx, roots, NewMatcher(include, exclude))
	if err != nil {
		return 0, err
	}

	parsed := make([]*model.Document, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, p := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, err := s.readFile(p)
			if err != nil {
				s.logger.Warn("skipping unreadable model file", "path", p, "error", err)
				return nil
			}
			parsed[i] = parser.Parse(model.FileURI(p), 0, string(data))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	count := 0
	s.write("load", func() ([]*model.Document, []string) {
		var batch []*model.Document
		for _, doc := range parsed {
			if doc == nil {
				continue
			}
			if _, open := s.open[doc.URI]; open {
				continue
			}
			s.recordLocked(doc)
			s.members[doc.URI] = true
			batch = append(batch, doc)
		}
		count = len(batch)
		return append(batch, s.resolveImportsLocked(batch)...), nil
	})

	s.logger.Info("workspace loaded", "roots", len(roots), "documents", count)
	return count, nil
}

// discover walks roots and returns the selected files, sorted and unique.
func discover(ctx context.Context, roots []string, m *Matcher) ([]string, error) {
	seen := make(map[string]struct{})
	var paths []string
	for _, root := range roots {
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("resolve root %s: %w", root, err)
		}
		err = filepath.WalkDir(abs, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				if p == abs {
					return err
				}
				return nil
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			rel, err := filepath.Rel(abs, p)
			if err != nil {
				return nil
			}
			if d.IsDir() {
				if rel != "." && m.Excluded(rel) {
					return filepath.SkipDir
				}
				return nil
			}
			if !m.Match(rel) {
				return nil
			}
			if _, dup := seen[p]; !dup {
				seen[p] = struct{}{}
				paths = append(paths, p)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", root, err)
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// recordLocked stores the version, generation, imports and parse
// diagnostics of doc. A failed document keeps the imports of its last clean
// parse so a syntax error does not retract them.
func (s *Session) recordLocked(doc *model.Document) {
	s.lastGen++
	s.versions[doc.URI] = doc.Version
	s.gens[doc.URI] = s.lastGen
	s.docDiags[doc.URI] = append([]model.Diagnostic(nil), doc.Diagnostics...)

	if _, had := s.importsOf[doc.URI]; doc.Failed && had {
		return
	}
	var imports []string
	for _, imp := range doc.Imports {
		if uri, err := importURI(doc.URI, imp.Path); err == nil {
			imports = append(imports, uri)
		}
	}
	s.importsOf[doc.URI] = imports
}

// resolveImportsLocked loads, transitively, every import of docs that the
// session does not index yet. An import that cannot be loaded becomes a
// warning on the importing document.
func (s *Session) resolveImportsLocked(docs []*model.Document) []*model.Document {
	snap := s.Snapshot()
	seen := make(map[string]bool, len(docs))
	for _, d := range docs {
		seen[d.URI] = true
	}

	var out []*model.Document
	queue := append([]*model.Document(nil), docs...)
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, imp := range cur.Imports {
			uri, err := importURI(cur.URI, imp.Path)
			if err != nil {
				s.importWarningLocked(cur.URI, imp, err)
				continue
			}
			if seen[uri] || snap.HasDocument(uri) {
				continue
			}
			if _, open := s.open[uri]; open {
				continue
			}
			text, err := s.importSource(uri, imp.Path)
			if err != nil {
				s.importWarningLocked(cur.URI, imp, err)
				continue
			}
			seen[uri] = true
			doc := parser.Parse(uri, 0, text)
			s.recordLocked(doc)
			out = append(out, doc)
			queue = append(queue, doc)
		}
	}
	return out
}

func (s *Session) importWarningLocked(uri string, imp model.Import, err error) {
	s.docDiags[uri] = append(s.docDiags[uri], model.Diagnostic{
		Span:     imp.Span,
		Severity: model.SeverityWarning,
		Code:     CodeUnresolvedImport,
		Message:  err.Error(),
	})
}

// importURI maps an import path to the document URI it names. Relative
// paths resolve against the importing file's directory.
func importURI(from, importPath string) (string, error) {
	if parser.IsStdImport(importPath) {
		if _, ok := parser.StdSource(importPath); !ok {
			return "", fmt.Errorf("unknown standard frame %q", importPath)
		}
		return parser.StdURI(importPath), nil
	}
	if filepath.IsAbs(importPath) {
		return model.FileURI(importPath), nil
	}
	base, ok := model.URIToPath(from)
	if !ok {
		return "", fmt.Errorf("cannot resolve %q relative to %s", importPath, from)
	}
	return model.FileURI(filepath.Join(filepath.Dir(base), filepath.FromSlash(importPath))), nil
}

func (s *Session) importSource(uri, importPath string) (string, error) {
	if parser.IsStdImport(importPath) {
		text, _ := parser.StdSource(importPath)
		return text, nil
	}
	path, _ := model.URIToPath(uri)
	data, err := s.readFile(path)
	if err != nil {
		return "", fmt.Errorf("cannot read import %q: %w", importPath, err)
	}
	return string(data), nil
}
