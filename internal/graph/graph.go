// Package graph builds the impact graph of a Problem Frames workspace.
//
// Nodes are domains and requirements; edges are the typed relationships the
// model expresses between them. A Graph is an immutable snapshot: the
// Builder never mutates one, it links a new Graph from per-document
// contributions, so readers can traverse a snapshot without locks while a
// writer prepares the next version.
package graph

import (
	"fmt"
	"sort"

	pferrors "pfls/internal/errors"
)

// Graph is an immutable, versioned snapshot of the workspace model.
type Graph struct {
	version uint64
	docs    map[string]*contribution
	uris    []string // sorted keys of docs

	nodes   []Node
	nodeIdx map[NodeRef]int

	edges    []Edge
	edgeSet  map[edgeKey]struct{}
	outEdges [][]int // node index -> indices into edges
	inEdges  [][]int

	decls     map[string][]Node // per document, every declaration including duplicates
	phenomena map[string][]Phenomenon
	warnings  []Warning
	pending   []Edge
}

// Empty returns a graph with no documents at version 0.
func Empty() *Graph {
	return &Graph{
		docs:      make(map[string]*contribution),
		nodeIdx:   make(map[NodeRef]int),
		edgeSet:   make(map[edgeKey]struct{}),
		decls:     make(map[string][]Node),
		phenomena: make(map[string][]Phenomenon),
	}
}

// Version increases by one with every Build, Update or Remove.
func (g *Graph) Version() uint64 { return g.version }

// Documents returns the URIs of every contributing document, sorted.
func (g *Graph) Documents() []string {
	out := make([]string, len(g.uris))
	copy(out, g.uris)
	return out
}

// HasDocument reports whether uri contributed to the snapshot, even if it
// failed to parse.
func (g *Graph) HasDocument(uri string) bool {
	_, ok := g.docs[uri]
	return ok
}

// DocumentVersion returns the version of the parsed document behind uri.
func (g *Graph) DocumentVersion(uri string) (int32, bool) {
	c, ok := g.docs[uri]
	if !ok {
		return 0, false
	}
	return c.version, true
}

// DocumentFailed reports whether uri was loaded but contributed nothing
// because it failed to parse.
func (g *Graph) DocumentFailed(uri string) bool {
	c, ok := g.docs[uri]
	return ok && c.failed
}

// Node returns the node identified by ref.
func (g *Graph) Node(ref NodeRef) (Node, bool) {
	idx, ok := g.nodeIdx[ref]
	if !ok {
		return Node{}, false
	}
	return g.nodes[idx], true
}

// HasNode reports whether ref is a node of the graph.
func (g *Graph) HasNode(ref NodeRef) bool {
	_, ok := g.nodeIdx[ref]
	return ok
}

// Nodes returns every node in declaration order.
func (g *Graph) Nodes() []Node {
	out := make([]Node, len(g.nodes))
	copy(out, g.nodes)
	return out
}

// Edges returns every edge in link order.
func (g *Graph) Edges() []Edge {
	out := make([]Edge, len(g.edges))
	copy(out, g.edges)
	return out
}

// OutEdges returns the edges leaving ref.
func (g *Graph) OutEdges(ref NodeRef) []Edge {
	idx, ok := g.nodeIdx[ref]
	if !ok {
		return nil
	}
	return g.collect(g.outEdges[idx])
}

// InEdges returns the edges arriving at ref.
func (g *Graph) InEdges(ref NodeRef) []Edge {
	idx, ok := g.nodeIdx[ref]
	if !ok {
		return nil
	}
	return g.collect(g.inEdges[idx])
}

func (g *Graph) collect(indices []int) []Edge {
	out := make([]Edge, len(indices))
	for i, ei := range indices {
		out[i] = g.edges[ei]
	}
	return out
}

// Declarations returns every declaration indexed for uri in index order,
// including duplicates that do not own their node.
func (g *Graph) Declarations(uri string) []Node {
	decls := g.decls[uri]
	out := make([]Node, len(decls))
	copy(out, decls)
	return out
}

// References returns the name references written in uri.
func (g *Graph) References(uri string) []Reference {
	c, ok := g.docs[uri]
	if !ok {
		return nil
	}
	out := make([]Reference, len(c.refs))
	copy(out, c.refs)
	return out
}

// Phenomena returns the declarations of the phenomenon called name.
func (g *Graph) Phenomena(name string) []Phenomenon {
	ph := g.phenomena[name]
	out := make([]Phenomenon, len(ph))
	copy(out, ph)
	return out
}

// Warnings returns every builder warning, ordered by document then position.
func (g *Graph) Warnings() []Warning {
	out := make([]Warning, len(g.warnings))
	copy(out, g.warnings)
	return out
}

// WarningsFor returns the builder warnings attached to uri.
func (g *Graph) WarningsFor(uri string) []Warning {
	var out []Warning
	for _, w := range g.warnings {
		if w.URI == uri {
			out = append(out, w)
		}
	}
	return out
}

// Pending returns relationships whose endpoints are not declared yet. They
// are retried on every relink.
func (g *Graph) Pending() []Edge {
	out := make([]Edge, len(g.pending))
	copy(out, g.pending)
	return out
}

// Validate checks that every edge joins two existing nodes and that the
// adjacency index agrees with the edge list.
func (g *Graph) Validate() error {
	for i, e := range g.edges {
		if !g.HasNode(e.From) || !g.HasNode(e.To) {
			return pferrors.NewGraphInconsistentError(fmt.Sprintf("edge %d (%s) has a missing endpoint", i, e))
		}
		if _, ok := e.Kind.Direction(); !ok {
			return pferrors.NewUnknownEdgeKindError(e.Kind.String())
		}
	}
	if len(g.outEdges) != len(g.nodes) || len(g.inEdges) != len(g.nodes) {
		return pferrors.NewGraphInconsistentError("adjacency index does not match node count")
	}
	for _, list := range [][][]int{g.outEdges, g.inEdges} {
		for _, indices := range list {
			for _, ei := range indices {
				if ei < 0 || ei >= len(g.edges) {
					return pferrors.NewGraphInconsistentError(fmt.Sprintf("adjacency references edge %d of %d", ei, len(g.edges)))
				}
			}
		}
	}
	return nil
}

// Stats summarizes a snapshot.
type Stats struct {
	Version      uint64         `json:"version"`
	Documents    int            `json:"documents"`
	Failed       int            `json:"failedDocuments"`
	Nodes        int            `json:"nodes"`
	Domains      int            `json:"domains"`
	Requirements int            `json:"requirements"`
	Edges        int            `json:"edges"`
	EdgesByKind  map[string]int `json:"edgesByKind"`
	Warnings     int            `json:"warnings"`
	Pending      int            `json:"pending"`
}

// Stats returns summary counts for the snapshot.
func (g *Graph) Stats() Stats {
	s := Stats{
		Version:     g.version,
		Documents:   len(g.uris),
		Nodes:       len(g.nodes),
		Edges:       len(g.edges),
		EdgesByKind: make(map[string]int),
		Warnings:    len(g.warnings),
		Pending:     len(g.pending),
	}
	for _, c := range g.docs {
		if c.failed {
			s.Failed++
		}
	}
	for _, n := range g.nodes {
		if n.Ref.Kind == KindDomain {
			s.Domains++
		} else {
			s.Requirements++
		}
	}
	for _, e := range g.edges {
		s.EdgesByKind[e.Kind.String()]++
	}
	return s
}

func sortedKeys(m map[string]*contribution) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// addNode appends a node and its adjacency slots.
func (g *Graph) addNode(n Node) {
	g.nodeIdx[n.Ref] = len(g.nodes)
	g.nodes = append(g.nodes, n)
	g.outEdges = append(g.outEdges, nil)
	g.inEdges = append(g.inEdges, nil)
}

// addEdge inserts e unless an identical (from, to, kind) edge exists.
// Both endpoints must already be nodes.
func (g *Graph) addEdge(e Edge) bool {
	if _, dup := g.edgeSet[e.key()]; dup {
		return false
	}
	from, to := g.nodeIdx[e.From], g.nodeIdx[e.To]
	idx := len(g.edges)
	g.edges = append(g.edges, e)
	g.edgeSet[e.key()] = struct{}{}
	g.outEdges[from] = append(g.outEdges[from], idx)
	g.inEdges[to] = append(g.inEdges[to], idx)
	return true
}
