package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// CSVHeader is the first record of every CSV report.
var CSVHeader = []string{
	"record_type", "from_kind", "from_id", "relation", "to_kind", "to_id",
	"seed_kind", "seed_id", "impacted_requirement", "impacted_target", "max_hops",
}

// Write renders r to w in the given format.
func Write(w io.Writer, r *Report, format Format) error {
	switch format {
	case FormatMarkdown:
		return writeMarkdown(w, r)
	case FormatCSV:
		return writeCSV(w, r)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("unknown report format %q", format)
}

func writeMarkdown(w io.Writer, r *Report) error {
	var b strings.Builder

	fmt.Fprintf(&b, "# Traceability Report: %s\n\n", r.Title)

	b.WriteString("## Relationship Summary\n\n")
	fmt.Fprintf(&b, "- Documents: %d\n", r.Summary.Documents)
	fmt.Fprintf(&b, "- Nodes: %d (%d domains, %d requirements)\n", r.Summary.Nodes, r.Summary.Domains, r.Summary.Requirements)
	fmt.Fprintf(&b, "- Edges: %d\n", r.Summary.Edges)
	if r.Summary.Warnings > 0 {
		fmt.Fprintf(&b, "- Warnings: %d\n", r.Summary.Warnings)
	}
	if r.Summary.Pending > 0 {
		fmt.Fprintf(&b, "- Unresolved relations: %d\n", r.Summary.Pending)
	}
	b.WriteString("\n")

	b.WriteString("## Requirement Relationship Matrix\n\n")
	if len(r.Requirements) == 0 {
		b.WriteString("No requirements declared.\n\n")
	} else {
		b.WriteString("| Requirement | Constrains | References | Observes | Shares With | Involves |\n")
		b.WriteString("| --- | --- | --- | --- | --- | --- |\n")
		for _, row := range r.Requirements {
			fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s |\n",
				mdCell(row.Requirement),
				mdList(row.Constrains),
				mdList(row.References),
				mdList(row.Observes),
				mdList(row.SharesWith),
				mdList(row.Involves))
		}
		b.WriteString("\n")
	}

	b.WriteString("## Impact Analysis\n\n")
	if r.Impact == nil {
		b.WriteString("- No impact seed provided. Use `--seed domain:<name>` or `--seed requirement:<name>`.\n")
	} else {
		fmt.Fprintf(&b, "- Max hops: %d\n", r.Impact.MaxHops)
		fmt.Fprintf(&b, "- Policy: %s\n", r.Impact.Policy)
		ids := make([]string, len(r.Impact.Impacted))
		for i, row := range r.Impact.Impacted {
			ids[i] = row.Requirement
		}
		list := "(none)"
		if len(ids) > 0 {
			list = strings.Join(ids, ", ")
		}
		fmt.Fprintf(&b, "- `%s:%s` -> requirements: %s\n", r.Impact.SeedKind, r.Impact.SeedID, list)
		for _, note := range r.Impact.Notes {
			fmt.Fprintf(&b, "- Note: %s\n", note)
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func mdList(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	cells := make([]string, len(items))
	for i, s := range items {
		cells[i] = mdCell(s)
	}
	return strings.Join(cells, ", ")
}

func mdCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

// writeCSV emits one edge record per relation followed by the impact
// records. A seed with no impacted requirements still gets one impact
// record with an empty requirement column.
func writeCSV(w io.Writer, r *Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}

	for _, rel := range r.Relations {
		rec := []string{"edge", rel.FromKind, rel.FromID, rel.Relation, rel.ToKind, rel.ToID, "", "", "", "", ""}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}

	if r.Impact != nil {
		hops := strconv.Itoa(r.Impact.MaxHops)
		impacted := make([]string, 0, len(r.Impact.Impacted))
		for _, row := range r.Impact.Impacted {
			impacted = append(impacted, row.Requirement)
		}
		if len(impacted) == 0 {
			impacted = append(impacted, "")
		}
		for _, req := range impacted {
			rec := []string{"impact", "", "", "", "", "", r.Impact.SeedKind, r.Impact.SeedID, req, "", hops}
			if err := cw.Write(rec); err != nil {
				return err
			}
		}
	}

	cw.Flush()
	return cw.Error()
}
