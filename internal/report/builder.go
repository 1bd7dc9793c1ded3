package report

import (
	"sort"
	"strings"

	"pfls/internal/graph"
	"pfls/internal/impact"
)

// Build assembles a report for g. res, when not nil, becomes the impact
// section; it should have been computed against g.
func Build(title string, g *graph.Graph, res *impact.Result) *Report {
	if g == nil {
		g = graph.Empty()
	}
	if title == "" {
		title = "workspace"
	}

	stats := g.Stats()
	r := &Report{
		Title:        title,
		GraphVersion: g.Version(),
		Summary: Summary{
			Documents:    stats.Documents,
			Nodes:        stats.Nodes,
			Domains:      stats.Domains,
			Requirements: stats.Requirements,
			Edges:        stats.Edges,
			Warnings:     stats.Warnings,
			Pending:      stats.Pending,
		},
		Requirements: make([]RequirementRow, 0, stats.Requirements),
		Relations:    make([]Relation, 0, stats.Edges),
	}

	rows := make(map[string]*RequirementRow)
	var order []string
	for _, n := range g.Nodes() {
		if n.Ref.Kind != graph.KindRequirement {
			continue
		}
		if _, dup := rows[n.Ref.ID]; dup {
			continue
		}
		rows[n.Ref.ID] = &RequirementRow{Requirement: n.Ref.ID}
		order = append(order, n.Ref.ID)
	}
	sort.Strings(order)

	for _, e := range g.Edges() {
		r.Relations = append(r.Relations, Relation{
			FromKind: kindName(e.From.Kind),
			FromID:   e.From.ID,
			Relation: e.Kind.String(),
			ToKind:   kindName(e.To.Kind),
			ToID:     e.To.ID,
		})
		addToMatrix(rows, e)
	}
	sort.SliceStable(r.Relations, func(i, j int) bool {
		a, b := r.Relations[i], r.Relations[j]
		if a.FromKind != b.FromKind {
			return a.FromKind < b.FromKind
		}
		if a.FromID != b.FromID {
			return a.FromID < b.FromID
		}
		if a.Relation != b.Relation {
			return a.Relation < b.Relation
		}
		if a.ToKind != b.ToKind {
			return a.ToKind < b.ToKind
		}
		return a.ToID < b.ToID
	})

	for _, id := range order {
		row := rows[id]
		for _, col := range []*[]string{&row.Constrains, &row.References, &row.Observes, &row.SharesWith, &row.Involves} {
			*col = sortedUnique(*col)
		}
		r.Requirements = append(r.Requirements, *row)
	}

	if res != nil {
		r.Impact = impactSection(res)
	}
	return r
}

func addToMatrix(rows map[string]*RequirementRow, e graph.Edge) {
	from, fromReq := rows[e.From.ID]
	fromReq = fromReq && e.From.Kind == graph.KindRequirement
	to, toReq := rows[e.To.ID]
	toReq = toReq && e.To.Kind == graph.KindRequirement

	switch e.Kind {
	case graph.EdgeConstrains:
		if fromReq {
			from.Constrains = append(from.Constrains, e.To.ID)
		}
	case graph.EdgeReferences:
		if fromReq {
			from.References = append(from.References, e.To.ID)
		}
	case graph.EdgeObserves:
		if fromReq {
			from.Observes = append(from.Observes, e.To.ID)
		}
	case graph.EdgeInvolves:
		if fromReq {
			from.Involves = append(from.Involves, e.To.ID)
		}
	case graph.EdgeSharesPhenomena:
		if fromReq && toReq {
			from.SharesWith = append(from.SharesWith, e.To.ID)
			to.SharesWith = append(to.SharesWith, e.From.ID)
		}
	}
}

func impactSection(res *impact.Result) *ImpactSection {
	s := &ImpactSection{
		SeedKind: kindName(res.SeedKind),
		SeedID:   res.SeedID,
		MaxHops:  res.MaxHops,
		Policy:   string(res.Policy),
		Impacted: make([]ImpactRow, 0, len(res.Impacted)),
	}
	for _, h := range res.Impacted {
		row := ImpactRow{Requirement: h.ID, Hops: h.Hops}
		if h.From != nil {
			row.Via = h.Via.String()
			row.From = h.From.String()
		}
		s.Impacted = append(s.Impacted, row)
	}
	if res.Limits != nil {
		s.Notes = append(s.Notes, res.Limits.Notes...)
	}
	return s
}

func kindName(k graph.NodeKind) string {
	return strings.ToLower(k.String())
}

func sortedUnique(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}
