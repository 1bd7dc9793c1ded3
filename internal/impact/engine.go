package impact

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"pfls/internal/config"
	pferrors "pfls/internal/errors"
	"pfls/internal/graph"
)

const (
	// DefaultMaxHops is the hop bound used when neither the query nor the
	// configuration sets one.
	DefaultMaxHops = 2
	// DefaultMaxHopsLimit caps any requested hop bound.
	DefaultMaxHopsLimit = 32

	// ctxCheckInterval is how many dequeued nodes pass between context checks.
	ctxCheckInterval = 64
)

// Engine runs bounded impact traversals over graph snapshots. It holds no
// per-query state and is safe for concurrent use.
type Engine struct {
	defaultHops int
	hopsLimit   int
	policy      Policy
	logger      *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithDefaultMaxHops sets the hop bound for queries that carry none.
func WithDefaultMaxHops(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.defaultHops = n
		}
	}
}

// WithMaxHopsLimit sets the largest hop bound a query may use.
func WithMaxHopsLimit(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.hopsLimit = n
		}
	}
}

// WithPolicy sets the policy for queries that carry none.
func WithPolicy(p Policy) Option {
	return func(e *Engine) {
		if p != "" {
			e.policy = p
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine creates an engine with the given options applied over the
// defaults.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		defaultHops: DefaultMaxHops,
		hopsLimit:   DefaultMaxHopsLimit,
		policy:      PolicySemantic,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.defaultHops > e.hopsLimit {
		e.defaultHops = e.hopsLimit
	}
	return e
}

// NewEngineFromConfig creates an engine for the impact section of a
// configuration.
func NewEngineFromConfig(cfg config.ImpactConfig, logger *slog.Logger) (*Engine, error) {
	opts := []Option{
		WithDefaultMaxHops(cfg.DefaultMaxHops),
		WithMaxHopsLimit(cfg.MaxHopsLimit),
	}
	if cfg.Policy != "" {
		policy, err := ParsePolicy(cfg.Policy)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithPolicy(policy))
	}
	if logger != nil {
		opts = append(opts, WithLogger(logger))
	}
	return NewEngine(opts...), nil
}

// DefaultMaxHops returns the hop bound applied to queries without one.
func (e *Engine) DefaultMaxHops() int { return e.defaultHops }

// Policy returns the policy applied to queries without one.
func (e *Engine) Policy() Policy { return e.policy }

// MaxHopsLimit returns the configured cap.
func (e *Engine) MaxHopsLimit() int { return e.hopsLimit }

type queued struct {
	ref  graph.NodeRef
	hops int
}

// Impact collects every requirement reachable from the seed within the hop
// bound. The seed is hop 0 and a node is visited when it is enqueued, so each
// node appears at most once at its shortest distance. Hits are ordered by hop,
// then id.
func (e *Engine) Impact(ctx context.Context, g *graph.Graph, q Query) (*Result, error) {
	start := time.Now()
	ctx, span := startImpactSpan(ctx, q.Seed)
	defer span.End()

	res, err := e.impact(ctx, g, q)
	success := err == nil
	if success {
		setImpactSpanResult(span, res)
	} else {
		span.RecordError(err)
	}
	policy := q.Policy
	if policy == "" {
		policy = e.policy
	}
	recordImpactMetrics(ctx, time.Since(start), q.Seed.Kind, policy, res, success)
	return res, err
}

func (e *Engine) impact(ctx context.Context, g *graph.Graph, q Query) (*Result, error) {
	if g == nil {
		return nil, pferrors.NewGraphInconsistentError("no graph snapshot")
	}
	maxHops, limits, err := e.resolveHops(q.MaxHops)
	if err != nil {
		return nil, err
	}
	policy := q.Policy
	if policy == "" {
		policy = e.policy
	}
	if _, err := ParsePolicy(string(policy)); err != nil {
		return nil, pferrors.NewInvalidParameterError("policy", err.Error())
	}
	if !g.HasNode(q.Seed) {
		return nil, pferrors.NewSeedNotFoundError(q.Seed.String())
	}

	completeness, notes := DetermineCompleteness(g)
	limits.Completeness = completeness
	for _, n := range notes {
		limits.AddNote(n)
	}

	visited := map[graph.NodeRef]struct{}{q.Seed: {}}
	queue := []queued{{ref: q.Seed}}
	var hits []Hit
	if q.Seed.Kind == graph.KindRequirement {
		hits = append(hits, Hit{ID: q.Seed.ID})
	}

	for i := 0; i < len(queue); i++ {
		if i%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, pferrors.NewPfError(pferrors.Cancelled, "impact query cancelled", err, nil)
			}
		}
		cur := queue[i]
		if cur.hops >= maxHops {
			continue
		}
		steps, err := neighbours(g, cur.ref, policy)
		if err != nil {
			return nil, err
		}
		for _, st := range steps {
			if _, seen := visited[st.to]; seen {
				continue
			}
			visited[st.to] = struct{}{}
			queue = append(queue, queued{ref: st.to, hops: cur.hops + 1})
			if st.to.Kind == graph.KindRequirement {
				from := cur.ref
				hits = append(hits, Hit{ID: st.to.ID, Hops: cur.hops + 1, Via: st.kind, From: &from})
			}
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Hops != hits[j].Hops {
			return hits[i].Hops < hits[j].Hops
		}
		return hits[i].ID < hits[j].ID
	})
	if hits == nil {
		hits = []Hit{}
	}

	e.logger.Debug("impact traversal complete",
		"seed", q.Seed.String(),
		"maxHops", maxHops,
		"policy", string(policy),
		"visited", len(visited),
		"impacted", len(hits),
		"graphVersion", g.Version(),
	)

	return &Result{
		SeedKind:     q.Seed.Kind,
		SeedID:       q.Seed.ID,
		Impacted:     hits,
		MaxHops:      maxHops,
		Policy:       policy,
		GraphVersion: g.Version(),
		Visited:      len(visited),
		Limits:       limits,
	}, nil
}

// resolveHops applies the default and the cap to a requested bound.
func (e *Engine) resolveHops(requested *int) (int, *AnalysisLimits, error) {
	limits := NewAnalysisLimits()
	if requested == nil {
		return e.defaultHops, limits, nil
	}
	n := *requested
	if n < 0 {
		return 0, nil, pferrors.NewInvalidParameterError("maxHops", fmt.Sprintf("must be non-negative, got %d", n))
	}
	if n > e.hopsLimit {
		limits.AddNote(fmt.Sprintf("maxHops %d clamped to %d", n, e.hopsLimit))
		n = e.hopsLimit
	}
	return n, limits, nil
}

type step struct {
	to   graph.NodeRef
	kind graph.EdgeKind
}

// neighbours lists the nodes a change to ref propagates to in one hop, in
// adjacency order: outgoing edges first, then incoming.
func neighbours(g *graph.Graph, ref graph.NodeRef, policy Policy) ([]step, error) {
	var out []step
	for _, e := range g.OutEdges(ref) {
		dir, ok := e.Kind.Direction()
		if !ok {
			return nil, pferrors.NewUnknownEdgeKindError(e.Kind.String())
		}
		if policy == PolicyUndirected || dir == graph.Forward || dir == graph.Symmetric {
			out = append(out, step{to: e.To, kind: e.Kind})
		}
	}
	for _, e := range g.InEdges(ref) {
		dir, ok := e.Kind.Direction()
		if !ok {
			return nil, pferrors.NewUnknownEdgeKindError(e.Kind.String())
		}
		if policy == PolicyUndirected || dir == graph.Backward || dir == graph.Symmetric {
			out = append(out, step{to: e.From, kind: e.Kind})
		}
	}
	return out, nil
}
