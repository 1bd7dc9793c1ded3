package graph

import (
	"fmt"

	"pfls/internal/model"
)

// TargetKind is what a name reference in source points at.
type TargetKind int

const (
	TargetDomain TargetKind = iota
	TargetRequirement
	TargetPhenomenon
)

// Reference is a name written in a document, kept for go-to-definition.
type Reference struct {
	Name   string     `json:"name"`
	Target TargetKind `json:"target"`
	Span   model.Span `json:"span"`
}

// Phenomenon is a shared phenomenon declaration, indexed by name.
type Phenomenon struct {
	Name string     `json:"name"`
	From string     `json:"from"`
	To   string     `json:"to"`
	URI  string     `json:"uri"`
	Span model.Span `json:"span"`
}

type declaration struct {
	ref      NodeRef
	span     model.Span
	nameSpan model.Span
}

// phenomenonUse is a requirement listing a phenomenon by name. It becomes
// edges only at link time, once every document's phenomena are known.
type phenomenonUse struct {
	req  NodeRef
	name string
	span model.Span
}

// contribution is everything one document adds to the graph. It is built
// once per parsed document and never mutated.
type contribution struct {
	uri       string
	version   int32
	decls     []declaration
	relations []Edge
	phenomena []Phenomenon
	uses      []phenomenonUse
	refs      []Reference
	failed    bool
}

// extract reduces a parsed document to its contribution. Failed documents
// keep their identity but contribute nothing.
func extract(doc *model.Document) *contribution {
	c := &contribution{uri: doc.URI, version: doc.Version}
	if doc.Failed {
		c.failed = true
		return c
	}

	for _, d := range doc.Domains {
		c.decls = append(c.decls, declaration{ref: DomainRef(d.Name), span: d.Span, nameSpan: d.NameSpan})
	}
	for _, r := range doc.Requirements {
		c.decls = append(c.decls, declaration{ref: RequirementRef(r.Name), span: r.Span, nameSpan: r.NameSpan})
	}

	for _, iface := range doc.Interfaces {
		for i, a := range iface.Connects {
			c.ref(a.Name, TargetDomain, a.Span)
			for _, b := range iface.Connects[i+1:] {
				c.relate(EdgeConnects, DomainRef(a.Name), DomainRef(b.Name), b.Span)
			}
		}
		for _, ph := range iface.Phenomena {
			c.phenomena = append(c.phenomena, Phenomenon{
				Name: ph.Name,
				From: ph.From.Name,
				To:   ph.To.Name,
				URI:  doc.URI,
				Span: ph.Span,
			})
			c.ref(ph.From.Name, TargetDomain, ph.From.Span)
			c.ref(ph.To.Name, TargetDomain, ph.To.Span)
			c.relate(EdgeSharesPhenomena, DomainRef(ph.From.Name), DomainRef(ph.To.Name), ph.Span)

			if ctl := ph.ControlledBy; ctl != nil {
				c.ref(ctl.Name, TargetDomain, ctl.Span)
				if ctl.Name != ph.From.Name {
					c.relate(EdgeControls, DomainRef(ctl.Name), DomainRef(ph.From.Name), ctl.Span)
				}
				if ctl.Name != ph.To.Name {
					c.relate(EdgeControls, DomainRef(ctl.Name), DomainRef(ph.To.Name), ctl.Span)
				}
			}
		}
	}

	for _, r := range doc.Requirements {
		req := RequirementRef(r.Name)
		for _, d := range r.Constrains {
			c.ref(d.Name, TargetDomain, d.Span)
			c.relate(EdgeConstrains, req, DomainRef(d.Name), d.Span)
		}
		for _, d := range r.References {
			c.ref(d.Name, TargetDomain, d.Span)
			c.relate(EdgeReferences, req, DomainRef(d.Name), d.Span)
		}
		for _, p := range r.Phenomena {
			c.ref(p.Name, TargetPhenomenon, p.Span)
			c.uses = append(c.uses, phenomenonUse{req: req, name: p.Name, span: p.Span})
		}
	}

	for _, sp := range doc.Subproblems {
		var domains []model.Reference
		if sp.Machine != nil {
			domains = append(domains, *sp.Machine)
		}
		domains = append(domains, sp.Participants...)
		for _, d := range domains {
			c.ref(d.Name, TargetDomain, d.Span)
		}
		for _, r := range sp.Requirements {
			c.ref(r.Name, TargetRequirement, r.Span)
			for _, d := range domains {
				c.relate(EdgeInvolves, RequirementRef(r.Name), DomainRef(d.Name), r.Span)
			}
		}
	}

	return c
}

func (c *contribution) relate(kind EdgeKind, from, to NodeRef, span model.Span) {
	c.relations = append(c.relations, Edge{From: from, To: to, Kind: kind, URI: c.uri, Span: span})
}

func (c *contribution) ref(name string, target TargetKind, span model.Span) {
	c.refs = append(c.refs, Reference{Name: name, Target: target, Span: span})
}

func (t TargetKind) String() string {
	switch t {
	case TargetDomain:
		return "domain"
	case TargetRequirement:
		return "requirement"
	case TargetPhenomenon:
		return "phenomenon"
	}
	return fmt.Sprintf("TargetKind(%d)", int(t))
}
