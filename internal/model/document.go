// Package model holds the parsed form of a Problem Frames document.
//
// A Document is what the parser hands to the graph builder: declarations
// with their source spans plus the raw, name-based references between them.
// Nothing here is resolved; a Reference only carries the name written in the
// source and where it was written.
package model

// DomainKind classifies a domain.
type DomainKind string

const (
	DomainCausal   DomainKind = "causal"
	DomainBiddable DomainKind = "biddable"
	DomainLexical  DomainKind = "lexical"
	DomainUnknown  DomainKind = "unknown"
)

// DomainRole is the part a domain plays in the problem.
type DomainRole string

const (
	RoleGiven    DomainRole = "given"
	RoleDesigned DomainRole = "designed"
	RoleMachine  DomainRole = "machine"
)

// PhenomenonType classifies a shared phenomenon.
type PhenomenonType string

const (
	PhenomenonEvent   PhenomenonType = "event"
	PhenomenonCommand PhenomenonType = "command"
	PhenomenonState   PhenomenonType = "state"
	PhenomenonValue   PhenomenonType = "value"
)

// Reference is a name used at some location, not yet resolved.
type Reference struct {
	Name string `json:"name"`
	Span Span   `json:"span"`
}

// Domain is a `domain` declaration.
type Domain struct {
	Name     string     `json:"name"`
	Kind     DomainKind `json:"kind"`
	Role     DomainRole `json:"role,omitempty"`
	Span     Span       `json:"span"`     // whole declaration
	NameSpan Span       `json:"nameSpan"` // identifier only
}

// Phenomenon is shared between two domains over an interface.
type Phenomenon struct {
	Name         string         `json:"name"`
	Type         PhenomenonType `json:"type"`
	From         Reference      `json:"from"`
	To           Reference      `json:"to"`
	ControlledBy *Reference     `json:"controlledBy,omitempty"`
	Span         Span           `json:"span"`
}

// Interface connects domains and carries shared phenomena.
type Interface struct {
	Name      string       `json:"name"`
	Connects  []Reference  `json:"connects,omitempty"`
	Phenomena []Phenomenon `json:"phenomena,omitempty"`
	Span      Span         `json:"span"`
}

// Requirement is a `requirement` block.
type Requirement struct {
	Name       string      `json:"name"`
	Frame      string      `json:"frame,omitempty"`
	Constraint string      `json:"constraint,omitempty"`
	Constrains []Reference `json:"constrains,omitempty"`
	References []Reference `json:"references,omitempty"`
	Phenomena  []Reference `json:"phenomena,omitempty"`
	Span       Span        `json:"span"`
	NameSpan   Span        `json:"nameSpan"`
}

// Subproblem groups requirements with the domains that realize them.
type Subproblem struct {
	Name         string      `json:"name"`
	Machine      *Reference  `json:"machine,omitempty"`
	Participants []Reference `json:"participants,omitempty"`
	Requirements []Reference `json:"requirements,omitempty"`
	Span         Span        `json:"span"`
}

// Import is an `import "path"` statement.
type Import struct {
	Path string `json:"path"`
	Span Span   `json:"span"`
}

// Severity mirrors the LSP diagnostic severities.
type Severity int

const (
	SeverityError       Severity = 1
	SeverityWarning     Severity = 2
	SeverityInformation Severity = 3
	SeverityHint        Severity = 4
)

// Diagnostic is a problem found while parsing or linking a document.
type Diagnostic struct {
	Span     Span     `json:"span"`
	Severity Severity `json:"severity"`
	Code     string   `json:"code,omitempty"`
	Message  string   `json:"message"`
}

// Document is the parsed form of a single source file.
type Document struct {
	URI          string        `json:"uri"`
	Version      int32         `json:"version"`
	Problem      string        `json:"problem,omitempty"`
	Imports      []Import      `json:"imports,omitempty"`
	Domains      []Domain      `json:"domains,omitempty"`
	Interfaces   []Interface   `json:"interfaces,omitempty"`
	Requirements []Requirement `json:"requirements,omitempty"`
	Subproblems  []Subproblem  `json:"subproblems,omitempty"`
	Diagnostics  []Diagnostic  `json:"diagnostics,omitempty"`

	// Failed is set when the source could not be parsed cleanly. A failed
	// document contributes nothing to the graph.
	Failed bool `json:"failed,omitempty"`
}

// HasErrors reports whether any diagnostic is an error.
func (d *Document) HasErrors() bool {
	for _, diag := range d.Diagnostics {
		if diag.Severity == SeverityError {
			return true
		}
	}
	return false
}
