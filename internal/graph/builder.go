package graph

import (
	"fmt"
	"io"
	"log/slog"
	"sort"

	"pfls/internal/model"
)

// Builder turns parsed documents into graph snapshots.
//
// Every operation relinks the full set of per-document contributions in URI
// order, so the result depends only on the set of documents, never on the
// order they arrived in. A relationship naming a symbol that no document
// declares stays pending and links on the first relink after it appears.
type Builder struct {
	logger *slog.Logger
}

// NewBuilder creates a builder. A nil logger discards output.
func NewBuilder(logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Builder{logger: logger}
}

// Build links a fresh graph from docs. When two documents share a URI the
// one with the higher version wins. Nil documents are ignored.
func (b *Builder) Build(docs []*model.Document) *Graph {
	contribs := make(map[string]*contribution, len(docs))
	for _, doc := range docs {
		if doc == nil {
			continue
		}
		if prev, ok := contribs[doc.URI]; ok && prev.version > doc.Version {
			continue
		}
		contribs[doc.URI] = extract(doc)
	}
	return b.link(contribs, 1)
}

// Update returns a new graph in which doc replaces every contribution
// previously made by doc.URI. g is left untouched.
func (b *Builder) Update(g *Graph, doc *model.Document) *Graph {
	if doc == nil {
		return b.Apply(g, nil, nil)
	}
	return b.Apply(g, []*model.Document{doc}, nil)
}

// Remove returns a new graph without uri's contributions.
func (b *Builder) Remove(g *Graph, uri string) *Graph {
	return b.Apply(g, nil, []string{uri})
}

// Apply replaces the contributions of every document in docs and drops
// those of removed, relinking once. The result is one version after g.
func (b *Builder) Apply(g *Graph, docs []*model.Document, removed []string) *Graph {
	if g == nil {
		g = Empty()
	}
	contribs := make(map[string]*contribution, len(g.docs)+len(docs))
	for uri, c := range g.docs {
		contribs[uri] = c
	}
	for _, uri := range removed {
		delete(contribs, uri)
	}
	for _, doc := range docs {
		if doc == nil {
			continue
		}
		contribs[doc.URI] = extract(doc)
	}
	return b.link(contribs, g.version+1)
}

type phenomenonUser struct {
	req  NodeRef
	uri  string
	span model.Span
}

func (b *Builder) link(contribs map[string]*contribution, version uint64) *Graph {
	g := Empty()
	g.version = version
	g.docs = contribs
	g.uris = sortedKeys(contribs)

	// Declarations. The first declaration of a ref in URI order owns the node.
	seq := 0
	for _, uri := range g.uris {
		for _, d := range contribs[uri].decls {
			n := Node{
				Ref:      d.ref,
				Name:     d.ref.ID,
				URI:      uri,
				Span:     d.span,
				NameSpan: d.nameSpan,
				Seq:      seq,
			}
			seq++
			g.decls[uri] = append(g.decls[uri], n)
			if owner, dup := g.Node(d.ref); dup {
				g.warn(uri, d.nameSpan, WarnDuplicateDeclaration,
					"%s %q is already declared in %s", lowerKind(d.ref.Kind), d.ref.ID, owner.URI)
				continue
			}
			g.addNode(n)
		}
		for _, ph := range contribs[uri].phenomena {
			g.phenomena[ph.Name] = append(g.phenomena[ph.Name], ph)
		}
	}

	// Explicit relationships.
	for _, uri := range g.uris {
		for _, e := range contribs[uri].relations {
			g.linkEdge(e)
		}
	}

	// Phenomenon uses: observe the sharing domains, and share with every
	// other requirement naming the same phenomenon.
	users := make(map[string][]phenomenonUser)
	for _, uri := range g.uris {
		for _, use := range contribs[uri].uses {
			decls := g.phenomena[use.name]
			if len(decls) == 0 || !g.HasNode(use.req) {
				continue
			}
			for _, ph := range decls {
				for _, d := range []string{ph.From, ph.To} {
					if g.HasNode(DomainRef(d)) {
						g.addEdge(Edge{From: use.req, To: DomainRef(d), Kind: EdgeObserves, URI: uri, Span: use.span})
					}
				}
			}
			users[use.name] = append(users[use.name], phenomenonUser{req: use.req, uri: uri, span: use.span})
		}
	}
	names := make([]string, 0, len(users))
	for name := range users {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		list := uniqueUsers(users[name])
		for i := range list {
			for j := i + 1; j < len(list); j++ {
				g.addEdge(Edge{
					From: list[i].req,
					To:   list[j].req,
					Kind: EdgeSharesPhenomena,
					URI:  list[j].uri,
					Span: list[j].span,
				})
			}
		}
	}

	for _, uri := range g.uris {
		g.danglingRefs(uri, contribs[uri].refs)
	}

	sort.SliceStable(g.warnings, func(i, j int) bool {
		a, c := g.warnings[i], g.warnings[j]
		if a.URI != c.URI {
			return a.URI < c.URI
		}
		return a.Span.Start.Before(c.Span.Start)
	})

	b.logger.Debug("graph linked",
		"version", g.version,
		"documents", len(g.uris),
		"nodes", len(g.nodes),
		"edges", len(g.edges),
		"warnings", len(g.warnings),
		"pending", len(g.pending),
	)
	return g
}

// linkEdge adds e when both endpoints exist and keeps it pending otherwise.
// Undefined names are reported once per written reference by danglingRefs.
func (g *Graph) linkEdge(e Edge) {
	if e.From == e.To {
		g.warn(e.URI, e.Span, WarnSelfReference, "%s %q relates to itself", lowerKind(e.From.Kind), e.From.ID)
		return
	}
	if !g.HasNode(e.From) || !g.HasNode(e.To) {
		g.pending = append(g.pending, e)
		return
	}
	g.addEdge(e)
}

// danglingRefs warns about every name written in uri that resolves to
// nothing in the linked graph.
func (g *Graph) danglingRefs(uri string, refs []Reference) {
	for _, r := range refs {
		var ok bool
		switch r.Target {
		case TargetDomain:
			ok = g.HasNode(DomainRef(r.Name))
		case TargetRequirement:
			ok = g.HasNode(RequirementRef(r.Name))
		case TargetPhenomenon:
			ok = len(g.phenomena[r.Name]) > 0
		}
		if !ok {
			g.warn(uri, r.Span, WarnDanglingReference, "undefined %s %q", r.Target, r.Name)
		}
	}
}

// uniqueUsers keeps the first use per requirement and orders by id.
func uniqueUsers(list []phenomenonUser) []phenomenonUser {
	seen := make(map[NodeRef]bool, len(list))
	out := make([]phenomenonUser, 0, len(list))
	for _, u := range list {
		if seen[u.req] {
			continue
		}
		seen[u.req] = true
		out = append(out, u)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].req.ID < out[j].req.ID })
	return out
}

func (g *Graph) warn(uri string, span model.Span, code WarningCode, format string, args ...any) {
	g.warnings = append(g.warnings, Warning{
		URI:     uri,
		Span:    span,
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	})
}

func lowerKind(k NodeKind) string {
	if k == KindDomain {
		return "domain"
	}
	return "requirement"
}
