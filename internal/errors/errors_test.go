package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestPfErrorText(t *testing.T) {
	tests := []struct {
		name string
		err  *PfError
		want string
	}{
		{
			name: "seed not found",
			err:  NewSeedNotFoundError("domain:Door"),
			want: "[SEED_NOT_FOUND] seed domain:Door is not in the graph",
		},
		{
			name: "parse failure keeps the cause",
			err:  NewParseError("file:///w/a.pf", errors.New("unexpected EOF")),
			want: "[PARSE_FAILED] failed to parse file:///w/a.pf: unexpected EOF",
		},
		{
			name: "unknown edge kind",
			err:  NewUnknownEdgeKindError("edge(9)"),
			want: "[UNKNOWN_EDGE_KIND] edge kind edge(9) has no impact direction",
		},
		{
			name: "invalid parameter",
			err:  NewInvalidParameterError("maxHops", "must be non-negative, got -1"),
			want: `[INVALID_PARAMETER] invalid parameter "maxHops": must be non-negative, got -1`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestPfErrorChain(t *testing.T) {
	root := errors.New("read failed")
	err := fmt.Errorf("rebuild: %w", NewInternalError("snapshot build", root))

	if !errors.Is(err, root) {
		t.Error("expected the cause to be reachable through the chain")
	}
	if !errors.Is(err, &PfError{Code: InternalError}) {
		t.Error("expected a code match through wrapping")
	}
	if errors.Is(err, &PfError{Code: StaleResult}) {
		t.Error("expected no match for a different code")
	}
	if NewSeedNotFoundError("requirement:R1").Unwrap() != nil {
		t.Error("expected no cause")
	}
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorCode
	}{
		{NewGraphInconsistentError("edge 3 has a missing endpoint"), GraphInconsistent},
		{fmt.Errorf("impact: %w", NewPfError(Cancelled, "client cancelled", nil, nil)), Cancelled},
		{errors.New("plain"), InternalError},
		{nil, InternalError},
	}

	for _, tt := range tests {
		if got := CodeOf(tt.err); got != tt.want {
			t.Errorf("CodeOf(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}

func TestPfErrorJSON(t *testing.T) {
	err := NewDocumentNotFoundError("file:///w/missing.pf").WithDetails(map[string]string{"root": "/w"})

	data, mErr := json.Marshal(err)
	if mErr != nil {
		t.Fatalf("marshal: %v", mErr)
	}
	var got struct {
		Code           string            `json:"code"`
		Details        map[string]string `json:"details"`
		SuggestedFixes []FixAction       `json:"suggestedFixes"`
	}
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Code != "DOCUMENT_NOT_FOUND" || got.Details["root"] != "/w" {
		t.Errorf("unexpected payload %s", data)
	}
	if len(got.SuggestedFixes) != 1 || !strings.HasPrefix(got.SuggestedFixes[0].Command, "pfls check") {
		t.Errorf("expected the check command as a fix, got %+v", got.SuggestedFixes)
	}
}

func TestSuggestedFixes(t *testing.T) {
	for code, fixes := range ErrorActions {
		if len(fixes) == 0 {
			t.Errorf("%s has an empty fix list", code)
		}
		for _, f := range fixes {
			if f.Type == RunCommand && f.Command == "" {
				t.Errorf("%s suggests running a command without naming it", code)
			}
		}
	}
	if GetSuggestedFixes(SeedNotFound) != nil {
		t.Error("expected no fixes for a missing seed")
	}
	if fixes := GetSuggestedFixes(ParseFailed); len(fixes) != 1 || fixes[0].Type != EditDocument {
		t.Errorf("expected an edit suggestion for parse failures, got %+v", fixes)
	}
}
