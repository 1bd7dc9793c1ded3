package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"pfls/internal/config"
	"pfls/internal/graph"
	"pfls/internal/impact"
	"pfls/internal/model"
	"pfls/internal/symbols"
)

var (
	impactSeed      string
	impactLine      int
	impactCharacter int
	impactHops      int
	impactPolicy    string
	impactFormat    string
)

var impactCmd = &cobra.Command{
	Use:   "impact <file>",
	Short: "Find the requirements affected by changing a domain or requirement",
	Long: `Run an impact query over the workspace.

The seed is either named with --seed or found at a position of <file>.
Positions are 1-based. The workspace under --root is loaded first, so
relationships written in other files are followed.

Examples:
  pfls impact model.pf --seed domain:Door
  pfls impact model.pf --line 12 --character 15 --hops 3
  pfls impact model.pf --seed requirement:R1 --policy undirected --format human`,
	Args: cobra.ExactArgs(1),
	RunE: runImpact,
}

func init() {
	impactCmd.Flags().StringVar(&impactSeed, "seed", "", "Seed node: domain:NAME or requirement:NAME")
	impactCmd.Flags().IntVar(&impactLine, "line", 0, "Line of the seed declaration (1-based)")
	impactCmd.Flags().IntVar(&impactCharacter, "character", 1, "Column of the seed declaration (1-based)")
	impactCmd.Flags().IntVar(&impactHops, "hops", -1, "Maximum hops (default: from config)")
	impactCmd.Flags().StringVar(&impactPolicy, "policy", "", "Traversal policy: semantic or undirected (default: from config)")
	impactCmd.Flags().StringVar(&impactFormat, "format", "json", "Output format (json, yaml, human)")
	rootCmd.AddCommand(impactCmd)
}

// impactRequest is one CLI impact query.
type impactRequest struct {
	File      string
	Seed      string
	Line      int // 1-based; 0 means no position
	Character int // 1-based
	Hops      *int
	Policy    string
}

func runImpact(cmd *cobra.Command, args []string) error {
	root, err := workspaceRoot()
	if err != nil {
		return err
	}
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}

	req := impactRequest{
		File:      args[0],
		Seed:      impactSeed,
		Line:      impactLine,
		Character: impactCharacter,
		Policy:    impactPolicy,
	}
	if cmd.Flags().Changed("hops") {
		req.Hops = &impactHops
	}

	out, err := queryImpact(cmd.Context(), cfg, root, req)
	if err != nil {
		return err
	}

	text, err := FormatResponse(out, OutputFormat(impactFormat))
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), text)
	return nil
}

// queryImpact loads the workspace, resolves the seed and runs the query.
func queryImpact(ctx context.Context, cfg *config.Config, root string, req impactRequest) (*ImpactResponseCLI, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if req.Seed == "" && req.Line <= 0 {
		return nil, fmt.Errorf("either --seed or --line is required")
	}

	path, err := absFile(root, req.File)
	if err != nil {
		return nil, err
	}

	logger := commandLogger(os.Stderr)
	session, err := loadSession(ctx, cfg, root, nil, logger)
	if err != nil {
		return nil, err
	}
	if err := ensureLoaded(session, path); err != nil {
		return nil, err
	}
	snap := session.Snapshot()

	var seed graph.NodeRef
	if req.Seed != "" {
		seed, err = graph.ParseNodeRef(req.Seed)
		if err != nil {
			return nil, fmt.Errorf("invalid --seed: %w", err)
		}
	} else {
		pos := model.Position{Line: uint32(req.Line - 1)}
		if req.Character > 0 {
			pos.Character = uint32(req.Character - 1)
		}
		node, ok := symbols.Resolve(snap, model.FileURI(path), pos)
		if !ok {
			return nil, fmt.Errorf("no domain or requirement declared at %s:%d:%d", req.File, req.Line, req.Character)
		}
		seed = node.Ref
	}

	engine, err := impact.NewEngineFromConfig(cfg.Impact, logger)
	if err != nil {
		return nil, err
	}
	q := impact.Query{Seed: seed, MaxHops: req.Hops}
	if req.Policy != "" {
		policy, err := impact.ParsePolicy(req.Policy)
		if err != nil {
			return nil, err
		}
		q.Policy = policy
	}

	res, err := engine.Impact(ctx, snap, q)
	if err != nil {
		return nil, err
	}
	return convertImpactResult(res), nil
}

// ImpactResponseCLI is the CLI form of an impact result
type ImpactResponseCLI struct {
	SeedKind             string         `json:"seedKind" yaml:"seedKind"`
	SeedID               string         `json:"seedId" yaml:"seedId"`
	ImpactedRequirements []string       `json:"impactedRequirements" yaml:"impactedRequirements"`
	MaxHops              int            `json:"maxHops" yaml:"maxHops"`
	Policy               string         `json:"policy" yaml:"policy"`
	GraphVersion         uint64         `json:"graphVersion" yaml:"graphVersion"`
	Hits                 []ImpactHitCLI `json:"hits" yaml:"hits"`
	Completeness         string         `json:"completeness,omitempty" yaml:"completeness,omitempty"`
	Notes                []string       `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// ImpactHitCLI is one impacted requirement with how it was reached
type ImpactHitCLI struct {
	ID   string `json:"id" yaml:"id"`
	Hops int    `json:"hops" yaml:"hops"`
	Via  string `json:"via,omitempty" yaml:"via,omitempty"`
	From string `json:"from,omitempty" yaml:"from,omitempty"`
}

func convertImpactResult(res *impact.Result) *ImpactResponseCLI {
	out := &ImpactResponseCLI{
		SeedKind:             res.SeedKind.String(),
		SeedID:               res.SeedID,
		ImpactedRequirements: res.RequirementIDs(),
		MaxHops:              res.MaxHops,
		Policy:               string(res.Policy),
		GraphVersion:         res.GraphVersion,
		Hits:                 make([]ImpactHitCLI, 0, len(res.Impacted)),
	}
	for _, h := range res.Impacted {
		hit := ImpactHitCLI{ID: h.ID, Hops: h.Hops}
		if h.From != nil {
			hit.Via = h.Via.String()
			hit.From = h.From.String()
		}
		out.Hits = append(out.Hits, hit)
	}
	if res.Limits != nil {
		out.Completeness = string(res.Limits.Completeness)
		out.Notes = res.Limits.Notes
	}
	return out
}
