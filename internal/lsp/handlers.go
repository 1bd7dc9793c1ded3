package lsp

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"pfls/internal/graph"
	"pfls/internal/impact"
	"pfls/internal/model"
	"pfls/internal/parser"
	"pfls/internal/symbols"
	"pfls/internal/workspace"
)

func (s *Server) didOpen(raw json.RawMessage) error {
	var p DidOpenTextDocumentParams
	if err := s.decode(raw, &p); err != nil {
		return err
	}
	s.session.Open(p.TextDocument.URI, p.TextDocument.Version, p.TextDocument.Text)
	return nil
}

// didChange applies a full-sync change. With several content changes the
// last one holds the full text.
func (s *Server) didChange(raw json.RawMessage) error {
	var p DidChangeTextDocumentParams
	if err := s.decode(raw, &p); err != nil {
		return err
	}
	text := p.ContentChanges[len(p.ContentChanges)-1].Text
	return s.session.Change(p.TextDocument.URI, p.TextDocument.Version, text)
}

func (s *Server) didClose(raw json.RawMessage) error {
	var p DidCloseTextDocumentParams
	if err := s.decode(raw, &p); err != nil {
		return err
	}
	s.session.Close(p.TextDocument.URI)
	return nil
}

// didChangeWatchedFiles handles file events from clients that watch the
// workspace themselves.
func (s *Server) didChangeWatchedFiles(raw json.RawMessage) error {
	var p DidChangeWatchedFilesParams
	if err := s.decode(raw, &p); err != nil {
		return err
	}
	for _, change := range p.Changes {
		path, ok := model.URIToPath(change.URI)
		if !ok {
			continue
		}
		if change.Type == FileDeleted {
			s.session.Forget(path)
		} else {
			s.session.ReloadFromDisk(path)
		}
	}
	return nil
}

// publishDiagnostics sends the current diagnostics of every changed document.
func (s *Server) publishDiagnostics(c workspace.Change) {
	for _, uri := range c.URIs {
		diags := s.session.Diagnostics(uri)
		wire := make([]Diagnostic, 0, len(diags))
		for _, d := range diags {
			wire = append(wire, Diagnostic{
				Range:    d.Span,
				Severity: d.Severity,
				Code:     d.Code,
				Source:   DiagnosticSource,
				Message:  d.Message,
			})
		}
		params := PublishDiagnosticsParams{URI: uri, Diagnostics: wire}
		if err := s.conn.Notify(MethodPublishDiagnostics, params); err != nil {
			s.logger.Warn("failed to publish diagnostics", "uri", uri, "error", err)
		}
	}
}

// handleImpact answers problemFrames/impactRequirements. A position outside
// every declaration yields null. A result computed for a document version
// that is no longer current is replaced by ContentModified.
func (s *Server) handleImpact(ctx context.Context, raw json.RawMessage) (any, error) {
	var p ImpactParams
	if err := s.decode(raw, &p); err != nil {
		return nil, err
	}

	stamp := s.session.Stamp(p.TextDocument.URI)
	snap := s.session.Snapshot()

	node, ok := symbols.Resolve(snap, stamp.URI, p.Position)
	if !ok {
		return nil, nil
	}

	q := impact.Query{Seed: node.Ref, MaxHops: p.MaxHops, Policy: impact.Policy(p.Policy)}
	res, err := s.runImpact(ctx, snap, q)
	if err != nil {
		return nil, err
	}

	if !s.session.IsCurrent(stamp) {
		return nil, &RPCError{Code: ContentModified, Message: "document changed while the request was running"}
	}

	return ImpactResult{
		SeedKind:             res.SeedKind.String(),
		SeedID:               res.SeedID,
		ImpactedRequirements: res.RequirementIDs(),
		MaxHops:              res.MaxHops,
	}, nil
}

// runImpact collapses identical concurrent queries against one snapshot.
// The shared traversal is detached from any single caller, so cancelling one
// request does not fail the others waiting on it.
func (s *Server) runImpact(ctx context.Context, snap *graph.Graph, q impact.Query) (*impact.Result, error) {
	engine := s.currentEngine()

	hops := -1
	if q.MaxHops != nil {
		hops = *q.MaxHops
	}
	key := fmt.Sprintf("%d|%s|%d|%s", snap.Version(), q.Seed, hops, q.Policy)

	ch := s.flights.DoChan(key, func() (any, error) {
		return engine.Impact(context.WithoutCancel(ctx), snap, q)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*impact.Result), nil
	}
}

func (s *Server) handleDefinition(_ context.Context, raw json.RawMessage) (any, error) {
	var p TextDocumentPositionParams
	if err := s.decode(raw, &p); err != nil {
		return nil, err
	}
	loc, ok := symbols.Definition(s.session.Snapshot(), p.TextDocument.URI, p.Position)
	if !ok {
		return nil, nil
	}
	return Location{URI: loc.URI, Range: loc.Span}, nil
}

// handleCompletion offers the DSL keywords and every declared name.
func (s *Server) handleCompletion(_ context.Context, raw json.RawMessage) (any, error) {
	var p TextDocumentPositionParams
	if err := s.decode(raw, &p); err != nil {
		return nil, err
	}

	var items []CompletionItem
	for _, kw := range parser.Keywords() {
		items = append(items, CompletionItem{Label: kw, Kind: CompletionKindKeyword, Detail: "keyword"})
	}

	seen := make(map[graph.NodeRef]bool)
	for _, n := range s.session.Snapshot().Nodes() {
		if seen[n.Ref] {
			continue
		}
		seen[n.Ref] = true
		item := CompletionItem{Label: n.Ref.ID}
		if n.Ref.Kind == graph.KindDomain {
			item.Kind = CompletionKindClass
			item.Detail = "domain"
		} else {
			item.Kind = CompletionKindModule
			item.Detail = "requirement"
			item.InsertText = quoteName(n.Ref.ID)
		}
		items = append(items, item)
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Label != items[j].Label {
			return items[i].Label < items[j].Label
		}
		return items[i].Kind < items[j].Kind
	})
	return items, nil
}

// quoteName quotes requirement names that are not plain identifiers.
func quoteName(name string) string {
	if strings.ContainsAny(name, " \t\"") {
		return `"` + strings.ReplaceAll(name, `"`, `\"`) + `"`
	}
	return name
}
