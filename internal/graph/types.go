package graph

import (
	"fmt"
	"strings"

	"pfls/internal/model"
)

// NodeKind identifies what a node declares.
type NodeKind int

const (
	KindDomain NodeKind = iota
	KindRequirement
)

var nodeKindNames = map[NodeKind]string{
	KindDomain:      "Domain",
	KindRequirement: "Requirement",
}

// String returns "Domain" or "Requirement", the wire form of the kind.
func (k NodeKind) String() string {
	if name, ok := nodeKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("NodeKind(%d)", int(k))
}

// MarshalText implements encoding.TextMarshaler.
func (k NodeKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// ParseNodeKind accepts "domain" or "requirement" in any case.
func ParseNodeKind(s string) (NodeKind, error) {
	switch strings.ToLower(s) {
	case "domain", "d":
		return KindDomain, nil
	case "requirement", "req", "r":
		return KindRequirement, nil
	}
	return 0, fmt.Errorf("unknown node kind %q", s)
}

// NodeRef is the identity of a node: its kind and declared name.
type NodeRef struct {
	Kind NodeKind `json:"kind"`
	ID   string   `json:"id"`
}

// DomainRef returns the reference of the domain named id.
func DomainRef(id string) NodeRef { return NodeRef{Kind: KindDomain, ID: id} }

// RequirementRef returns the reference of the requirement named id.
func RequirementRef(id string) NodeRef { return NodeRef{Kind: KindRequirement, ID: id} }

func (r NodeRef) String() string {
	return strings.ToLower(r.Kind.String()) + ":" + r.ID
}

// Less orders refs by kind, then id.
func (r NodeRef) Less(o NodeRef) bool {
	if r.Kind != o.Kind {
		return r.Kind < o.Kind
	}
	return r.ID < o.ID
}

// ParseNodeRef parses the "kind:id" form produced by String.
func ParseNodeRef(s string) (NodeRef, error) {
	kind, id, ok := strings.Cut(s, ":")
	if !ok || id == "" {
		return NodeRef{}, fmt.Errorf("expected kind:name, got %q", s)
	}
	k, err := ParseNodeKind(kind)
	if err != nil {
		return NodeRef{}, err
	}
	return NodeRef{Kind: k, ID: id}, nil
}

// Node is a declared domain or requirement.
type Node struct {
	Ref      NodeRef    `json:"ref"`
	Name     string     `json:"name"`
	URI      string     `json:"uri"`
	Span     model.Span `json:"span"`
	NameSpan model.Span `json:"nameSpan"`
	Seq      int        `json:"seq"` // global declaration order within the snapshot
}

// EdgeKind is the closed set of relationship kinds.
type EdgeKind int

const (
	// EdgeConstrains: a requirement constrains a domain (R -> D).
	EdgeConstrains EdgeKind = iota + 1
	// EdgeReferences: a requirement refers to a domain (R -> D).
	EdgeReferences
	// EdgeObserves: a requirement names a phenomenon shared by a domain (R -> D).
	EdgeObserves
	// EdgeInvolves: a subproblem realizes a requirement with a domain (R -> D).
	EdgeInvolves
	// EdgeSharesPhenomena: two nodes share a phenomenon.
	EdgeSharesPhenomena
	// EdgeConnects: an interface connects two domains.
	EdgeConnects
	// EdgeControls: a domain controls a phenomenon observed by another.
	EdgeControls
)

var edgeKindNames = map[EdgeKind]string{
	EdgeConstrains:      "constrains",
	EdgeReferences:      "references",
	EdgeObserves:        "observes",
	EdgeInvolves:        "involves",
	EdgeSharesPhenomena: "shares-phenomena",
	EdgeConnects:        "connects",
	EdgeControls:        "controls",
}

func (k EdgeKind) String() string {
	if name, ok := edgeKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("edge(%d)", int(k))
}

// MarshalText implements encoding.TextMarshaler.
func (k EdgeKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// ParseEdgeKind maps a kind name back to its value.
func ParseEdgeKind(s string) (EdgeKind, bool) {
	for k, name := range edgeKindNames {
		if name == s {
			return k, true
		}
	}
	return 0, false
}

// AllEdgeKinds lists every kind in declaration order.
func AllEdgeKinds() []EdgeKind {
	return []EdgeKind{
		EdgeConstrains,
		EdgeReferences,
		EdgeObserves,
		EdgeInvolves,
		EdgeSharesPhenomena,
		EdgeConnects,
		EdgeControls,
	}
}

// Direction is how impact propagates across an edge.
type Direction int

const (
	// Forward: a change to From impacts To.
	Forward Direction = iota
	// Backward: a change to To impacts From.
	Backward
	// Symmetric: a change to either end impacts the other.
	Symmetric
)

func (d Direction) String() string {
	switch d {
	case Forward:
		return "forward"
	case Backward:
		return "backward"
	case Symmetric:
		return "symmetric"
	}
	return fmt.Sprintf("Direction(%d)", int(d))
}

// Direction returns the impact direction of k. The boolean is false for a
// kind outside the closed set.
func (k EdgeKind) Direction() (Direction, bool) {
	switch k {
	case EdgeConstrains, EdgeReferences, EdgeObserves, EdgeInvolves:
		// The requirement depends on the domain; a domain change
		// reaches the requirement.
		return Backward, true
	case EdgeSharesPhenomena, EdgeConnects:
		return Symmetric, true
	case EdgeControls:
		return Forward, true
	}
	return 0, false
}

// Edge is a typed relationship between two nodes.
type Edge struct {
	From NodeRef    `json:"from"`
	To   NodeRef    `json:"to"`
	Kind EdgeKind   `json:"kind"`
	URI  string     `json:"uri"`  // document the relationship was written in
	Span model.Span `json:"span"` // where it was written
}

type edgeKey struct {
	from, to NodeRef
	kind     EdgeKind
}

func (e Edge) key() edgeKey {
	return edgeKey{from: e.From, to: e.To, kind: e.Kind}
}

func (e Edge) String() string {
	return fmt.Sprintf("%s -%s-> %s", e.From, e.Kind, e.To)
}

// WarningCode classifies builder warnings.
type WarningCode string

const (
	WarnDanglingReference    WarningCode = "dangling-reference"
	WarnDuplicateDeclaration WarningCode = "duplicate-declaration"
	WarnSelfReference        WarningCode = "self-reference"
)

// Warning is a builder-level problem. Warnings never abort construction.
type Warning struct {
	URI     string      `json:"uri"`
	Span    model.Span  `json:"span"`
	Code    WarningCode `json:"code"`
	Message string      `json:"message"`
}
