package impact

import (
	"fmt"

	"pfls/internal/graph"
)

// Completeness represents how much of the workspace model the analysis could see
type Completeness string

const (
	CompletenessFull    Completeness = "full"    // Every document parsed and every relationship resolved
	CompletenessPartial Completeness = "partial" // Failed documents or unresolved relationships
)

// AnalysisLimits describes the limitations of an impact analysis
type AnalysisLimits struct {
	Completeness Completeness `json:"completeness"`
	Notes        []string     `json:"notes,omitempty"`
}

// NewAnalysisLimits creates a new AnalysisLimits with default values
func NewAnalysisLimits() *AnalysisLimits {
	return &AnalysisLimits{
		Completeness: CompletenessFull,
		Notes:        make([]string, 0),
	}
}

// AddNote adds a limitation note to the analysis
func (al *AnalysisLimits) AddNote(note string) {
	al.Notes = append(al.Notes, note)
}

// HasLimitations returns true if there are any limitations
func (al *AnalysisLimits) HasLimitations() bool {
	return al.Completeness != CompletenessFull || len(al.Notes) > 0
}

// DetermineCompleteness inspects the snapshot for documents that contributed
// nothing and for relationships still waiting on a declaration.
func DetermineCompleteness(g *graph.Graph) (Completeness, []string) {
	var notes []string
	failed := 0
	for _, uri := range g.Documents() {
		if g.DocumentFailed(uri) {
			failed++
		}
	}
	if failed > 0 {
		notes = append(notes, fmt.Sprintf("%d document(s) failed to parse and contribute nothing", failed))
	}
	if pending := len(g.Pending()); pending > 0 {
		notes = append(notes, fmt.Sprintf("%d relationship(s) reference undeclared names", pending))
	}
	if len(notes) > 0 {
		return CompletenessPartial, notes
	}
	return CompletenessFull, nil
}
