package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// OutputFormat selects how command results are printed.
type OutputFormat string

const (
	FormatJSON  OutputFormat = "json"
	FormatYAML  OutputFormat = "yaml"
	FormatHuman OutputFormat = "human"
)

// FormatResponse renders resp. Types without a human rendering fall back to
// JSON.
func FormatResponse(resp any, format OutputFormat) (string, error) {
	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(resp, "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to marshal JSON: %w", err)
		}
		return string(data), nil
	case FormatYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(resp); err != nil {
			return "", fmt.Errorf("failed to marshal YAML: %w", err)
		}
		_ = enc.Close()
		return strings.TrimRight(buf.String(), "\n"), nil
	case FormatHuman:
		if r, ok := resp.(*ImpactResponseCLI); ok {
			return formatImpactHuman(r), nil
		}
		return FormatResponse(resp, FormatJSON)
	}
	return "", fmt.Errorf("unsupported format: %s", format)
}

func formatImpactHuman(resp *ImpactResponseCLI) string {
	var b strings.Builder

	title := fmt.Sprintf("Impact of %s:%s", strings.ToLower(resp.SeedKind), resp.SeedID)
	fmt.Fprintf(&b, "%s\n%s\n", title, strings.Repeat("=", len(title)))
	fmt.Fprintf(&b, "Max hops: %d, policy: %s\n\n", resp.MaxHops, resp.Policy)

	if len(resp.Hits) == 0 {
		b.WriteString("No requirements impacted.\n")
	} else {
		fmt.Fprintf(&b, "Impacted requirements (%d):\n", len(resp.Hits))
	}
	for _, h := range resp.Hits {
		reach := "(seed)"
		if h.From != "" {
			reach = fmt.Sprintf("via %s from %s", h.Via, h.From)
		}
		fmt.Fprintf(&b, "  %-24s hop %d %s\n", h.ID, h.Hops, reach)
	}

	if len(resp.Notes) > 0 {
		b.WriteString("\nNotes:\n")
	}
	for _, n := range resp.Notes {
		fmt.Fprintf(&b, "  - %s\n", n)
	}
	return strings.TrimRight(b.String(), "\n")
}
