package parser

import (
	"sort"
	"strings"
	"testing"

	"pfls/internal/model"
)

const doorModel = `problem: Door

domain Controller kind causal role machine
domain Door kind causal role given
domain Operator [Biddable]

interface "Controller-Door" connects Controller, Door {
  shared: {
    phenomenon Open : command [Controller -> Door] controlledBy Controller
    event Closed [Door -> Controller]
  }
}

requirement "R1" {
  frame: RequiredBehavior
  constraint: "door opens"
  constrains: Door
  reference: Operator
  phenomena: Open, Closed
}

subproblem Opening {
  machine: Controller
  participants: Controller, Door
  requirements: "R1"
}

worldProperties W {
  something: { nested }
}
`

func TestParseFullModel(t *testing.T) {
	doc := Parse("file:///door.pf", 3, doorModel)

	if doc.Failed {
		t.Fatalf("expected clean parse, got diagnostics: %+v", doc.Diagnostics)
	}
	if len(doc.Diagnostics) != 0 {
		t.Errorf("expected no diagnostics, got %+v", doc.Diagnostics)
	}
	if doc.URI != "file:///door.pf" || doc.Version != 3 {
		t.Errorf("unexpected identity %q v%d", doc.URI, doc.Version)
	}
	if doc.Problem != "Door" {
		t.Errorf("expected problem Door, got %q", doc.Problem)
	}

	if len(doc.Domains) != 3 {
		t.Fatalf("expected 3 domains, got %d", len(doc.Domains))
	}
	ctl := doc.Domains[0]
	if ctl.Name != "Controller" || ctl.Kind != model.DomainCausal || ctl.Role != model.RoleMachine {
		t.Errorf("unexpected controller domain %+v", ctl)
	}
	wantSpan := model.Span{Start: model.Position{Line: 2, Character: 0}, End: model.Position{Line: 2, Character: 42}}
	if ctl.Span != wantSpan {
		t.Errorf("expected span %v, got %v", wantSpan, ctl.Span)
	}
	wantName := model.Span{Start: model.Position{Line: 2, Character: 7}, End: model.Position{Line: 2, Character: 17}}
	if ctl.NameSpan != wantName {
		t.Errorf("expected name span %v, got %v", wantName, ctl.NameSpan)
	}
	if op := doc.Domains[2]; op.Kind != model.DomainBiddable || op.Role != model.RoleGiven {
		t.Errorf("expected legacy [Biddable] to map to biddable/given, got %+v", op)
	}

	if len(doc.Interfaces) != 1 {
		t.Fatalf("expected 1 interface, got %d", len(doc.Interfaces))
	}
	iface := doc.Interfaces[0]
	if iface.Name != "Controller-Door" || len(iface.Connects) != 2 {
		t.Errorf("unexpected interface %+v", iface)
	}
	if len(iface.Phenomena) != 2 {
		t.Fatalf("expected 2 phenomena, got %d", len(iface.Phenomena))
	}
	open := iface.Phenomena[0]
	if open.Name != "Open" || open.Type != model.PhenomenonCommand || open.From.Name != "Controller" || open.To.Name != "Door" {
		t.Errorf("unexpected phenomenon %+v", open)
	}
	if open.ControlledBy == nil || open.ControlledBy.Name != "Controller" {
		t.Errorf("expected Open controlled by Controller, got %+v", open.ControlledBy)
	}
	closed := iface.Phenomena[1]
	if closed.Name != "Closed" || closed.Type != model.PhenomenonEvent || closed.From.Name != "Door" || closed.ControlledBy != nil {
		t.Errorf("unexpected legacy phenomenon %+v", closed)
	}

	if len(doc.Requirements) != 1 {
		t.Fatalf("expected 1 requirement, got %d", len(doc.Requirements))
	}
	req := doc.Requirements[0]
	if req.Name != "R1" || req.Frame != "RequiredBehavior" || req.Constraint != "door opens" {
		t.Errorf("unexpected requirement header %+v", req)
	}
	if names(req.Constrains) != "Door" || names(req.References) != "Operator" || names(req.Phenomena) != "Open,Closed" {
		t.Errorf("unexpected requirement relations: constrains=%s references=%s phenomena=%s",
			names(req.Constrains), names(req.References), names(req.Phenomena))
	}
	wantReq := model.Span{Start: model.Position{Line: 13, Character: 0}, End: model.Position{Line: 19, Character: 1}}
	if req.Span != wantReq {
		t.Errorf("expected requirement span %v, got %v", wantReq, req.Span)
	}
	wantReqName := model.Span{Start: model.Position{Line: 13, Character: 12}, End: model.Position{Line: 13, Character: 16}}
	if req.NameSpan != wantReqName {
		t.Errorf("expected requirement name span %v, got %v", wantReqName, req.NameSpan)
	}

	if len(doc.Subproblems) != 1 {
		t.Fatalf("expected 1 subproblem, got %d", len(doc.Subproblems))
	}
	sp := doc.Subproblems[0]
	if sp.Machine == nil || sp.Machine.Name != "Controller" {
		t.Errorf("expected machine Controller, got %+v", sp.Machine)
	}
	if names(sp.Participants) != "Controller,Door" || names(sp.Requirements) != "R1" {
		t.Errorf("unexpected subproblem %+v", sp)
	}
}

func TestParseUTF16Columns(t *testing.T) {
	doc := Parse("file:///u.pf", 1, "requirement \"\U0001F600R\" {}\n")
	if doc.Failed {
		t.Fatalf("unexpected failure: %+v", doc.Diagnostics)
	}
	if len(doc.Requirements) != 1 {
		t.Fatalf("expected 1 requirement, got %d", len(doc.Requirements))
	}
	req := doc.Requirements[0]
	if req.Name != "\U0001F600R" {
		t.Errorf("unexpected name %q", req.Name)
	}
	// quote + surrogate pair + R + quote
	if req.NameSpan.Start.Character != 12 || req.NameSpan.End.Character != 17 {
		t.Errorf("expected name columns 12-17, got %v", req.NameSpan)
	}
}

func TestParseErrorsMarkDocumentFailed(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		wantMsg string
	}{
		{"misspelled keyword", "prob: BadKeyword", "unknown statement"},
		{"missing colon", "requirement \"R\" {\n  constrains A\n}\n", "expected \":\""},
		{"unterminated string", "requirement \"R {\n}\n", "unterminated string"},
		{"unterminated block", "requirement \"R\" {\n  frame: X\n", "unterminated requirement"},
		{"bad phenomenon type", "interface \"I\" {\n shared: { phenomenon P : noise [A -> B] }\n}\n", "unknown phenomenon type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := Parse("file:///bad.pf", 1, tt.src)
			if !doc.Failed {
				t.Fatal("expected document to be marked failed")
			}
			found := false
			for _, d := range doc.Diagnostics {
				if d.Severity == model.SeverityError && strings.Contains(d.Message, tt.wantMsg) {
					found = true
				}
			}
			if !found {
				t.Errorf("expected an error containing %q, got %+v", tt.wantMsg, doc.Diagnostics)
			}
		})
	}
}

func TestParseRecoversAfterError(t *testing.T) {
	src := "domain A kind causal\nrequirement \"R\" {\n  constrains A\n}\ndomain B kind causal\n"
	doc := Parse("file:///r.pf", 1, src)

	if !doc.Failed {
		t.Error("expected failed document")
	}
	if len(doc.Domains) != 2 || doc.Domains[1].Name != "B" {
		t.Errorf("expected parsing to resume at domain B, got %+v", doc.Domains)
	}
	if len(doc.Diagnostics) != 1 {
		t.Fatalf("expected one diagnostic, got %+v", doc.Diagnostics)
	}
	if got := doc.Diagnostics[0].Span.Start; got.Line != 2 || got.Character != 13 {
		t.Errorf("expected error at 2:13, got %v", got)
	}
}

func TestParseWarningsDoNotFail(t *testing.T) {
	doc := Parse("file:///w.pf", 1, "# header\ndomain A kind plasma // odd\n")
	if doc.Failed {
		t.Fatalf("warnings should not fail the document: %+v", doc.Diagnostics)
	}
	if len(doc.Diagnostics) != 1 || doc.Diagnostics[0].Severity != model.SeverityWarning {
		t.Fatalf("expected a single warning, got %+v", doc.Diagnostics)
	}
	if doc.Domains[0].Kind != model.DomainUnknown {
		t.Errorf("expected unknown kind, got %q", doc.Domains[0].Kind)
	}
}

func TestParseImports(t *testing.T) {
	doc := Parse("file:///i.pf", 1, "import \"std/RequiredBehavior.pf\"\nimport \"shared/sensors.pf\"\n")
	if doc.Failed {
		t.Fatalf("unexpected failure: %+v", doc.Diagnostics)
	}
	if len(doc.Imports) != 2 {
		t.Fatalf("expected 2 imports, got %d", len(doc.Imports))
	}
	if !IsStdImport(doc.Imports[0].Path) || IsStdImport(doc.Imports[1].Path) {
		t.Errorf("unexpected std classification for %+v", doc.Imports)
	}
}

func TestStdFramesParseCleanly(t *testing.T) {
	frames := StdFrames()
	if len(frames) != 5 {
		t.Fatalf("expected 5 embedded frames, got %v", frames)
	}
	for _, name := range frames {
		src, ok := StdSource("std/" + name + ".pf")
		if !ok {
			t.Fatalf("missing embedded frame %s", name)
		}
		doc := Parse(StdURI("std/"+name), 0, src)
		if len(doc.Diagnostics) != 0 {
			t.Errorf("frame %s: unexpected diagnostics %+v", name, doc.Diagnostics)
		}
		if doc.Problem != name {
			t.Errorf("frame %s: expected problem name to match, got %q", name, doc.Problem)
		}
		if len(doc.Requirements) != 1 {
			t.Errorf("frame %s: expected one requirement, got %d", name, len(doc.Requirements))
		}
	}
	if got := StdURI("std/Transformation"); got != "pfstd:///Transformation.pf" {
		t.Errorf("unexpected std URI %q", got)
	}
}

func names(refs []model.Reference) string {
	out := make([]string, len(refs))
	for i, r := range refs {
		out[i] = r.Name
	}
	return strings.Join(out, ",")
}

func TestKeywordsSorted(t *testing.T) {
	kw := Keywords()
	if !sort.StringsAreSorted(kw) {
		t.Errorf("expected sorted keywords, got %v", kw)
	}
	for word := range topKeywords {
		i := sort.SearchStrings(kw, word)
		if i == len(kw) || kw[i] != word {
			t.Errorf("expected keyword %q in completion list", word)
		}
	}
}
