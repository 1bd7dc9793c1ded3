// Package symbols answers position queries against a graph snapshot: which
// domain or requirement the cursor is on, which name reference it is on,
// and where that name is declared.
package symbols

import (
	"pfls/internal/graph"
	"pfls/internal/model"
)

// Resolve returns the node whose declaration span contains pos in uri.
//
// The innermost enclosing declaration wins. When two spans overlap without
// one enclosing the other, the most recently indexed declaration wins. A
// duplicate declaration resolves to the node that owns its name.
func Resolve(g *graph.Graph, uri string, pos model.Position) (graph.Node, bool) {
	if g == nil {
		return graph.Node{}, false
	}
	var best *graph.Node
	decls := g.Declarations(model.NormalizeURI(uri))
	for i := range decls {
		d := &decls[i]
		if !d.Span.Contains(pos) {
			continue
		}
		if best == nil || preferDeclaration(d, best) {
			best = d
		}
	}
	if best == nil {
		return graph.Node{}, false
	}
	return g.Node(best.Ref)
}

// preferDeclaration reports whether cand should replace cur.
func preferDeclaration(cand, cur *graph.Node) bool {
	switch {
	case cur.Span.StrictlyEncloses(cand.Span):
		return true
	case cand.Span.StrictlyEncloses(cur.Span):
		return false
	}
	return cand.Seq > cur.Seq
}

// ReferenceAt returns the name reference written at pos, preferring the
// narrowest span.
func ReferenceAt(g *graph.Graph, uri string, pos model.Position) (graph.Reference, bool) {
	if g == nil {
		return graph.Reference{}, false
	}
	var best *graph.Reference
	refs := g.References(model.NormalizeURI(uri))
	for i := range refs {
		r := &refs[i]
		if !r.Span.Contains(pos) {
			continue
		}
		if best == nil || best.Span.StrictlyEncloses(r.Span) {
			best = r
		}
	}
	if best == nil {
		return graph.Reference{}, false
	}
	return *best, true
}

// Location is a span in a specific document.
type Location struct {
	URI  string     `json:"uri"`
	Span model.Span `json:"span"`
}

// Definition finds the declaration of the name at pos. A position on a
// declaration's own name resolves to that declaration.
func Definition(g *graph.Graph, uri string, pos model.Position) (Location, bool) {
	if ref, ok := ReferenceAt(g, uri, pos); ok {
		return declarationOf(g, ref)
	}
	node, ok := Resolve(g, uri, pos)
	if !ok || !node.NameSpan.Contains(pos) {
		return Location{}, false
	}
	return Location{URI: node.URI, Span: node.NameSpan}, true
}

func declarationOf(g *graph.Graph, ref graph.Reference) (Location, bool) {
	switch ref.Target {
	case graph.TargetDomain, graph.TargetRequirement:
		nodeRef := graph.DomainRef(ref.Name)
		if ref.Target == graph.TargetRequirement {
			nodeRef = graph.RequirementRef(ref.Name)
		}
		n, ok := g.Node(nodeRef)
		if !ok {
			return Location{}, false
		}
		return Location{URI: n.URI, Span: n.NameSpan}, true
	case graph.TargetPhenomenon:
		decls := g.Phenomena(ref.Name)
		if len(decls) == 0 {
			return Location{}, false
		}
		return Location{URI: decls[0].URI, Span: decls[0].Span}, true
	}
	return Location{}, false
}
