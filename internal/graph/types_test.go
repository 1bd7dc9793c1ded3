package graph

import "testing"

func TestEdgeKindDirections(t *testing.T) {
	tests := []struct {
		kind EdgeKind
		want Direction
	}{
		{EdgeConstrains, Backward},
		{EdgeReferences, Backward},
		{EdgeObserves, Backward},
		{EdgeInvolves, Backward},
		{EdgeSharesPhenomena, Symmetric},
		{EdgeConnects, Symmetric},
		{EdgeControls, Forward},
	}

	if len(tests) != len(AllEdgeKinds()) {
		t.Fatalf("direction table covers %d kinds, AllEdgeKinds has %d", len(tests), len(AllEdgeKinds()))
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			got, ok := tt.kind.Direction()
			if !ok {
				t.Fatalf("expected %s to have a direction", tt.kind)
			}
			if got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestUnknownEdgeKindHasNoDirection(t *testing.T) {
	for _, k := range []EdgeKind{0, EdgeControls + 1, 99} {
		if _, ok := k.Direction(); ok {
			t.Errorf("expected %s to have no direction", k)
		}
	}
}

func TestEdgeKindNamesRoundTrip(t *testing.T) {
	for _, k := range AllEdgeKinds() {
		parsed, ok := ParseEdgeKind(k.String())
		if !ok || parsed != k {
			t.Errorf("ParseEdgeKind(%q) = %v, %v", k.String(), parsed, ok)
		}
	}
	if _, ok := ParseEdgeKind("refines"); ok {
		t.Error("expected unknown name to be rejected")
	}
}

func TestParseNodeRef(t *testing.T) {
	tests := []struct {
		in      string
		want    NodeRef
		wantErr bool
	}{
		{"domain:Door", DomainRef("Door"), false},
		{"Requirement:R1", RequirementRef("R1"), false},
		{"req:Safe Opening", RequirementRef("Safe Opening"), false},
		{"phenomenon:P", NodeRef{}, true},
		{"Door", NodeRef{}, true},
		{"domain:", NodeRef{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseNodeRef(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseNodeRef(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestNodeRefString(t *testing.T) {
	if got := RequirementRef("R1").String(); got != "requirement:R1" {
		t.Errorf("unexpected %q", got)
	}
	if got := KindDomain.String(); got != "Domain" {
		t.Errorf("unexpected %q", got)
	}
}
