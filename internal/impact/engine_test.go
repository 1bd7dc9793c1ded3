package impact

import (
	"context"
	"fmt"
	"reflect"
	"testing"

	"pfls/internal/config"
	pferrors "pfls/internal/errors"
	"pfls/internal/graph"
	"pfls/internal/model"
	"pfls/internal/parser"
)

// sharedModel: R1 references D1 and shares phenomenon P with R2.
const sharedModel = `domain D1 kind causal
domain D2 kind causal
domain D3 kind causal

interface "D2-D3" {
  shared: {
    phenomenon P : event [D2 -> D3]
  }
}

requirement "R1" {
  references: D1
  phenomena: P
}

requirement "R2" {
  phenomena: P
}
`

// controlModel: C controls Tick shared between A and B.
const controlModel = `domain A kind causal
domain B kind causal
domain C kind causal role machine

interface "A-B" {
  shared: {
    phenomenon Tick : event [A -> B] controlledBy C
  }
}

requirement "RA" { constrains: A }
requirement "RC" { constrains: C }
`

// chainModel: RA -> A -- B -- C -- A cycle, with one requirement per domain.
const chainModel = `domain A kind causal
domain B kind causal
domain C kind causal
domain E kind causal

interface "ring" connects A, B, C {
}
interface "tail" connects C, E {
}

requirement "RA" { constrains: A }
requirement "RB" { reference: B }
requirement "RC" { constrains: C }
requirement "RE" { constrains: E }
requirement "Lonely" { constraint: "stands alone" }
`

func buildGraph(t *testing.T, sources map[string]string) *graph.Graph {
	t.Helper()
	var docs []*model.Document
	for uri, src := range sources {
		doc := parser.Parse(uri, 1, src)
		if doc.Failed {
			t.Fatalf("fixture %s failed to parse: %+v", uri, doc.Diagnostics)
		}
		docs = append(docs, doc)
	}
	return graph.NewBuilder(nil).Build(docs)
}

func runImpact(t *testing.T, e *Engine, g *graph.Graph, seed graph.NodeRef, hops int) *Result {
	t.Helper()
	res, err := e.Impact(context.Background(), g, Query{Seed: seed, MaxHops: Hops(hops)})
	if err != nil {
		t.Fatalf("Impact(%s, %d) failed: %v", seed, hops, err)
	}
	return res
}

func TestImpactSharedPhenomenonExample(t *testing.T) {
	g := buildGraph(t, map[string]string{"file:///shared.pf": sharedModel})
	e := NewEngine()

	tests := []struct {
		hops int
		want []string
	}{
		{1, []string{"R1"}},
		{2, []string{"R1", "R2"}},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("hops=%d", tt.hops), func(t *testing.T) {
			res := runImpact(t, e, g, graph.DomainRef("D1"), tt.hops)
			if got := res.RequirementIDs(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
			if res.SeedKind != graph.KindDomain || res.SeedID != "D1" {
				t.Errorf("expected seed domain D1, got %s %s", res.SeedKind, res.SeedID)
			}
			if res.MaxHops != tt.hops {
				t.Errorf("expected maxHops %d, got %d", tt.hops, res.MaxHops)
			}
		})
	}
}

func TestImpactRecordsProvenance(t *testing.T) {
	g := buildGraph(t, map[string]string{"file:///shared.pf": sharedModel})
	res := runImpact(t, NewEngine(), g, graph.DomainRef("D1"), 2)

	if len(res.Impacted) != 2 {
		t.Fatalf("expected 2 hits, got %+v", res.Impacted)
	}
	r1, r2 := res.Impacted[0], res.Impacted[1]
	if r1.Hops != 1 || r1.Via != graph.EdgeReferences || r1.From == nil || *r1.From != graph.DomainRef("D1") {
		t.Errorf("unexpected provenance for R1: %+v", r1)
	}
	if r2.Hops != 2 || r2.Via != graph.EdgeSharesPhenomena || r2.From == nil || *r2.From != graph.RequirementRef("R1") {
		t.Errorf("unexpected provenance for R2: %+v", r2)
	}
}

func TestImpactZeroHops(t *testing.T) {
	g := buildGraph(t, map[string]string{"file:///shared.pf": sharedModel})
	e := NewEngine()

	if got := runImpact(t, e, g, graph.RequirementRef("R1"), 0).RequirementIDs(); !reflect.DeepEqual(got, []string{"R1"}) {
		t.Errorf("expected requirement seed alone, got %v", got)
	}
	if got := runImpact(t, e, g, graph.DomainRef("D1"), 0).RequirementIDs(); len(got) != 0 {
		t.Errorf("expected no requirements for a domain seed, got %v", got)
	}
}

func TestImpactSeedIsHopZero(t *testing.T) {
	g := buildGraph(t, map[string]string{"file:///shared.pf": sharedModel})
	res := runImpact(t, NewEngine(), g, graph.RequirementRef("R2"), 2)

	if len(res.Impacted) == 0 || res.Impacted[0].ID != "R2" || res.Impacted[0].Hops != 0 {
		t.Fatalf("expected seed first at hop 0, got %+v", res.Impacted)
	}
	if res.Impacted[0].From != nil || res.Impacted[0].Via != 0 {
		t.Errorf("expected seed without provenance, got %+v", res.Impacted[0])
	}
}

func TestImpactDirections(t *testing.T) {
	g := buildGraph(t, map[string]string{"file:///control.pf": controlModel})
	e := NewEngine()

	tests := []struct {
		name   string
		seed   graph.NodeRef
		hops   int
		policy Policy
		want   []string
	}{
		{"controller reaches controlled domains", graph.DomainRef("C"), 2, PolicySemantic, []string{"RC", "RA"}},
		{"controlled domain does not reach controller", graph.DomainRef("A"), 3, PolicySemantic, []string{"RA"}},
		{"undirected reaches controller", graph.DomainRef("A"), 3, PolicyUndirected, []string{"RA", "RC"}},
		{"constrains is not followed from the requirement", graph.RequirementRef("RA"), 3, PolicySemantic, []string{"RA"}},
		{"undirected follows constrains outward", graph.RequirementRef("RA"), 3, PolicyUndirected, []string{"RA", "RC"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := e.Impact(context.Background(), g, Query{Seed: tt.seed, MaxHops: Hops(tt.hops), Policy: tt.policy})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := res.RequirementIDs(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
			if res.Policy != tt.policy {
				t.Errorf("expected policy %s, got %s", tt.policy, res.Policy)
			}
		})
	}
}

func TestImpactIsMonotonicInHops(t *testing.T) {
	g := buildGraph(t, map[string]string{"file:///chain.pf": chainModel})
	e := NewEngine()

	for _, seed := range []graph.NodeRef{graph.DomainRef("A"), graph.RequirementRef("RA"), graph.DomainRef("E")} {
		prev := map[string]bool{}
		for h := 0; h <= 6; h++ {
			res := runImpact(t, e, g, seed, h)
			cur := map[string]bool{}
			for _, id := range res.RequirementIDs() {
				cur[id] = true
			}
			for id := range prev {
				if !cur[id] {
					t.Errorf("seed %s: %s reached at %d hops but not at %d", seed, id, h-1, h)
				}
			}
			prev = cur
		}
	}
}

func TestImpactCyclesProduceNoDuplicates(t *testing.T) {
	g := buildGraph(t, map[string]string{"file:///chain.pf": chainModel})
	res := runImpact(t, NewEngine(), g, graph.DomainRef("A"), 30)

	want := []string{"RA", "RB", "RC", "RE"}
	if got := res.RequirementIDs(); !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
	seen := map[string]bool{}
	for _, h := range res.Impacted {
		if seen[h.ID] {
			t.Errorf("duplicate hit %s", h.ID)
		}
		seen[h.ID] = true
	}
}

func TestImpactOrdersByHopThenID(t *testing.T) {
	g := buildGraph(t, map[string]string{"file:///chain.pf": chainModel})
	res := runImpact(t, NewEngine(), g, graph.DomainRef("A"), 30)

	for i := 1; i < len(res.Impacted); i++ {
		prev, cur := res.Impacted[i-1], res.Impacted[i]
		if prev.Hops > cur.Hops || (prev.Hops == cur.Hops && prev.ID >= cur.ID) {
			t.Errorf("hits out of order: %+v before %+v", prev, cur)
		}
	}
}

func TestImpactIsDeterministicAcrossArrivalOrder(t *testing.T) {
	parts := []struct{ uri, src string }{
		{"file:///a.pf", "domain D1 kind causal\ndomain D2 kind causal\n"},
		{"file:///b.pf", "interface \"I\" connects D1, D2 {\n}\n"},
		{"file:///c.pf", "requirement \"R1\" { constrains: D1 }\nrequirement \"R2\" { reference: D2 }\n"},
	}
	parse := func(order []int) *graph.Graph {
		docs := make([]*model.Document, 0, len(order))
		for _, i := range order {
			docs = append(docs, parser.Parse(parts[i].uri, 1, parts[i].src))
		}
		return graph.NewBuilder(nil).Build(docs)
	}

	e := NewEngine()
	var first *Result
	for _, order := range [][]int{{0, 1, 2}, {2, 1, 0}, {1, 2, 0}} {
		res := runImpact(t, e, parse(order), graph.DomainRef("D1"), 3)
		if first == nil {
			first = res
			continue
		}
		if !reflect.DeepEqual(first, res) {
			t.Errorf("order %v: expected %+v, got %+v", order, first, res)
		}
	}
	if got := first.RequirementIDs(); !reflect.DeepEqual(got, []string{"R1", "R2"}) {
		t.Errorf("expected [R1 R2], got %v", got)
	}
}

func TestImpactIsolatedRequirement(t *testing.T) {
	g := buildGraph(t, map[string]string{"file:///chain.pf": chainModel})
	res := runImpact(t, NewEngine(), g, graph.RequirementRef("Lonely"), 3)

	if got := res.RequirementIDs(); !reflect.DeepEqual(got, []string{"Lonely"}) {
		t.Errorf("expected only the seed, got %v", got)
	}
}

func TestImpactDanglingReference(t *testing.T) {
	src := "domain D kind causal\nrequirement \"R\" {\n  constrains: D\n  reference: Ghost\n}\n"
	g := buildGraph(t, map[string]string{"file:///dangling.pf": src})
	res := runImpact(t, NewEngine(), g, graph.DomainRef("D"), 2)

	if got := res.RequirementIDs(); !reflect.DeepEqual(got, []string{"R"}) {
		t.Errorf("expected [R], got %v", got)
	}
	if res.Limits == nil || res.Limits.Completeness != CompletenessPartial {
		t.Errorf("expected partial completeness, got %+v", res.Limits)
	}
}

func TestImpactHopBounds(t *testing.T) {
	g := buildGraph(t, map[string]string{"file:///chain.pf": chainModel})

	t.Run("default applies when omitted", func(t *testing.T) {
		res, err := NewEngine(WithDefaultMaxHops(1)).Impact(context.Background(), g, Query{Seed: graph.DomainRef("A")})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.MaxHops != 1 {
			t.Errorf("expected default of 1, got %d", res.MaxHops)
		}
	})

	t.Run("built-in default is two", func(t *testing.T) {
		res, err := NewEngine().Impact(context.Background(), g, Query{Seed: graph.DomainRef("A")})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.MaxHops != DefaultMaxHops || DefaultMaxHops != 2 {
			t.Errorf("expected 2, got %d", res.MaxHops)
		}
	})

	t.Run("negative is invalid", func(t *testing.T) {
		_, err := NewEngine().Impact(context.Background(), g, Query{Seed: graph.DomainRef("A"), MaxHops: Hops(-1)})
		if pferrors.CodeOf(err) != pferrors.InvalidParameter {
			t.Errorf("expected %s, got %v", pferrors.InvalidParameter, err)
		}
	})

	t.Run("above limit is clamped", func(t *testing.T) {
		res, err := NewEngine(WithMaxHopsLimit(3)).Impact(context.Background(), g, Query{Seed: graph.DomainRef("A"), MaxHops: Hops(100)})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.MaxHops != 3 {
			t.Errorf("expected clamped bound 3, got %d", res.MaxHops)
		}
		if len(res.Limits.Notes) == 0 {
			t.Error("expected a clamp note")
		}
	})

	t.Run("default above limit is clamped", func(t *testing.T) {
		e := NewEngine(WithDefaultMaxHops(10), WithMaxHopsLimit(4))
		if e.DefaultMaxHops() != 4 {
			t.Errorf("expected default clamped to 4, got %d", e.DefaultMaxHops())
		}
	})
}

func TestImpactErrors(t *testing.T) {
	g := buildGraph(t, map[string]string{"file:///shared.pf": sharedModel})
	e := NewEngine()

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name string
		ctx  context.Context
		g    *graph.Graph
		q    Query
		want pferrors.ErrorCode
	}{
		{"unknown seed", context.Background(), g, Query{Seed: graph.DomainRef("Nope")}, pferrors.SeedNotFound},
		{"nil graph", context.Background(), nil, Query{Seed: graph.DomainRef("D1")}, pferrors.GraphInconsistent},
		{"bad policy", context.Background(), g, Query{Seed: graph.DomainRef("D1"), Policy: "sideways"}, pferrors.InvalidParameter},
		{"cancelled context", cancelled, g, Query{Seed: graph.DomainRef("D1")}, pferrors.Cancelled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := e.Impact(tt.ctx, tt.g, tt.q)
			if err == nil {
				t.Fatalf("expected error, got %+v", res)
			}
			if code := pferrors.CodeOf(err); code != tt.want {
				t.Errorf("expected %s, got %s (%v)", tt.want, code, err)
			}
		})
	}
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    Policy
		wantErr bool
	}{
		{"", PolicySemantic, false},
		{"semantic", PolicySemantic, false},
		{"Undirected", PolicyUndirected, false},
		{"forward", "", true},
	}

	for _, tt := range tests {
		got, err := ParsePolicy(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParsePolicy(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParsePolicy(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNewEngineFromConfig(t *testing.T) {
	e, err := NewEngineFromConfig(config.ImpactConfig{DefaultMaxHops: 5, MaxHopsLimit: 4, Policy: "undirected"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.DefaultMaxHops() != 4 || e.MaxHopsLimit() != 4 {
		t.Errorf("expected default hops clamped to 4, got %d (limit %d)", e.DefaultMaxHops(), e.MaxHopsLimit())
	}
	if e.Policy() != PolicyUndirected {
		t.Errorf("expected undirected policy, got %q", e.Policy())
	}

	if _, err := NewEngineFromConfig(config.ImpactConfig{Policy: "sideways"}, nil); err == nil {
		t.Error("expected an error for an unknown policy")
	}
}

func TestAnalysisLimits(t *testing.T) {
	limits := NewAnalysisLimits()
	if limits.HasLimitations() {
		t.Error("expected a fresh limits value to have no limitations")
	}
	limits.AddNote("first")
	if !limits.HasLimitations() || len(limits.Notes) != 1 {
		t.Errorf("expected one note, got %+v", limits)
	}

	clean := buildGraph(t, map[string]string{"file:///shared.pf": sharedModel})
	if c, notes := DetermineCompleteness(clean); c != CompletenessFull || len(notes) != 0 {
		t.Errorf("expected full completeness, got %s %v", c, notes)
	}

	broken := graph.NewBuilder(nil).Build([]*model.Document{
		parser.Parse("file:///ok.pf", 1, sharedModel),
		parser.Parse("file:///bad.pf", 1, "domain {"),
	})
	if c, notes := DetermineCompleteness(broken); c != CompletenessPartial || len(notes) != 1 {
		t.Errorf("expected partial completeness with one note, got %s %v", c, notes)
	}
}
