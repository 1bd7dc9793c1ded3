package impact

import (
	"fmt"
	"strings"

	"pfls/internal/graph"
)

// Policy selects how edges are followed during traversal.
type Policy string

const (
	// PolicySemantic follows each edge kind in its own impact direction.
	PolicySemantic Policy = "semantic"
	// PolicyUndirected follows every edge both ways.
	PolicyUndirected Policy = "undirected"
)

// ParsePolicy accepts a policy name in any case. The empty string selects
// PolicySemantic.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicySemantic:
		return PolicySemantic, nil
	case PolicyUndirected:
		return PolicyUndirected, nil
	}
	return "", fmt.Errorf("unknown traversal policy %q", s)
}

// Query is one impact request. A nil MaxHops uses the engine default; an
// empty Policy uses the engine policy.
type Query struct {
	Seed    graph.NodeRef
	MaxHops *int
	Policy  Policy
}

// Hops returns a pointer to n, for building a Query literal.
func Hops(n int) *int { return &n }

// Hit is one requirement reached by the traversal.
type Hit struct {
	ID   string         `json:"id"`
	Hops int            `json:"hops"`
	Via  graph.EdgeKind `json:"via,omitempty"` // edge kind the hit was first reached through
	From *graph.NodeRef `json:"from,omitempty"` // node the hit was first reached from
}

// Result is the outcome of an impact query.
type Result struct {
	SeedKind     graph.NodeKind  `json:"seedKind"`
	SeedID       string          `json:"seedId"`
	Impacted     []Hit           `json:"impacted"`
	MaxHops      int             `json:"maxHops"`
	Policy       Policy          `json:"policy"`
	GraphVersion uint64          `json:"graphVersion"`
	Visited      int             `json:"visited"` // nodes of any kind enqueued, seed included
	Limits       *AnalysisLimits `json:"limits,omitempty"`
}

// RequirementIDs returns the impacted requirement ids in result order.
func (r *Result) RequirementIDs() []string {
	ids := make([]string, len(r.Impacted))
	for i, h := range r.Impacted {
		ids[i] = h.ID
	}
	return ids
}
