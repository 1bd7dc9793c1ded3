// Package report renders traceability reports: every relation in a graph
// snapshot, a per-requirement matrix and, optionally, the impact of one seed.
package report

import (
	"fmt"
	"strings"
)

// Report is the rendered-independent form of a traceability report.
type Report struct {
	Title        string           `json:"title" yaml:"title"`
	GraphVersion uint64           `json:"graphVersion" yaml:"graphVersion"`
	Summary      Summary          `json:"summary" yaml:"summary"`
	Requirements []RequirementRow `json:"requirements" yaml:"requirements"`
	Relations    []Relation       `json:"relations" yaml:"relations"`
	Impact       *ImpactSection   `json:"impact,omitempty" yaml:"impact,omitempty"`
}

// Summary contains counts over the snapshot
type Summary struct {
	Documents    int `json:"documents" yaml:"documents"`
	Nodes        int `json:"nodes" yaml:"nodes"`
	Domains      int `json:"domains" yaml:"domains"`
	Requirements int `json:"requirements" yaml:"requirements"`
	Edges        int `json:"edges" yaml:"edges"`
	Warnings     int `json:"warnings" yaml:"warnings"`
	Pending      int `json:"pending" yaml:"pending"`
}

// RequirementRow lists what one requirement is related to.
type RequirementRow struct {
	Requirement string   `json:"requirement" yaml:"requirement"`
	Constrains  []string `json:"constrains" yaml:"constrains"`
	References  []string `json:"references" yaml:"references"`
	Observes    []string `json:"observes" yaml:"observes"`
	SharesWith  []string `json:"sharesWith" yaml:"sharesWith"`
	Involves    []string `json:"involves" yaml:"involves"`
}

// Relation is one edge of the graph.
type Relation struct {
	FromKind string `json:"fromKind" yaml:"fromKind"`
	FromID   string `json:"fromId" yaml:"fromId"`
	Relation string `json:"relation" yaml:"relation"`
	ToKind   string `json:"toKind" yaml:"toKind"`
	ToID     string `json:"toId" yaml:"toId"`
}

// ImpactSection is the impact of one seed.
type ImpactSection struct {
	SeedKind string      `json:"seedKind" yaml:"seedKind"`
	SeedID   string      `json:"seedId" yaml:"seedId"`
	MaxHops  int         `json:"maxHops" yaml:"maxHops"`
	Policy   string      `json:"policy" yaml:"policy"`
	Impacted []ImpactRow `json:"impacted" yaml:"impacted"`
	Notes    []string    `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// ImpactRow is one impacted requirement with its provenance.
type ImpactRow struct {
	Requirement string `json:"requirement" yaml:"requirement"`
	Hops        int    `json:"hops" yaml:"hops"`
	Via         string `json:"via,omitempty" yaml:"via,omitempty"`
	From        string `json:"from,omitempty" yaml:"from,omitempty"`
}

// Format selects the output encoding
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatCSV      Format = "csv"
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
)

// Formats lists the supported formats.
func Formats() []Format {
	return []Format{FormatMarkdown, FormatCSV, FormatJSON, FormatYAML}
}

// ParseFormat accepts a format name in any case; "md" and "yml" are
// accepted as aliases.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "markdown", "md":
		return FormatMarkdown, nil
	case "csv":
		return FormatCSV, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("unknown report format %q", s)
}
