// Package impact answers "which requirements does a change here reach?" over
// a graph snapshot.
//
// The engine runs a breadth-first search from a seed node. The seed is hop 0;
// every node is visited at most once, at its shortest distance, and nodes at
// the hop bound are not expanded, so cycles terminate without special cases.
//
// Basic usage:
//
//	g := graph.NewBuilder(logger).Build(docs)
//	engine := impact.NewEngine(impact.WithDefaultMaxHops(2))
//
//	res, err := engine.Impact(ctx, g, impact.Query{
//	    Seed:    graph.DomainRef("Door"),
//	    MaxHops: impact.Hops(3),
//	})
//	if err != nil {
//	    return err
//	}
//	fmt.Println(res.RequirementIDs())
//
// Traversal Policies:
//
// Each edge kind carries an impact direction (see graph.EdgeKind.Direction):
//
//   - Forward: followed from its source to its target
//   - Backward: followed from its target to its source, so a domain change
//     reaches the requirements that constrain, reference or observe it
//   - Symmetric: followed both ways
//
// PolicySemantic honours those directions. PolicyUndirected treats every edge
// as symmetric, which is what a plain traceability matrix shows.
//
// Hop Bounds:
//
// A query without MaxHops uses the engine default. A negative bound is an
// INVALID_PARAMETER error. A bound above the engine limit is clamped, the
// clamped value is reported in Result.MaxHops and a note is added to
// Result.Limits.
//
// Results:
//
// Result.Impacted lists every visited requirement, the seed included when it
// is one, ordered by hop count and then id. Each hit records the edge kind and
// node it was first reached through. Result.Limits flags snapshots that
// contain failed documents or unresolved references.
package impact
