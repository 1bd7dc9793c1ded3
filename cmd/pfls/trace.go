package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"pfls/internal/graph"
	"pfls/internal/impact"
	"pfls/internal/report"
)

var (
	traceSeed   string
	traceHops   int
	traceFormat string
	traceOutput string
	traceTitle  string
)

var traceCmd = &cobra.Command{
	Use:   "trace [files...]",
	Short: "Write a traceability report",
	Long: `Write a traceability report: every relationship in the model, a
requirement matrix and, with --seed, the impact of one domain or requirement.

Without files the whole workspace under --root is reported.

Examples:
  pfls trace
  pfls trace --seed domain:Door --hops 3
  pfls trace --format csv -o trace.csv model.pf`,
	RunE: runTrace,
}

func init() {
	traceCmd.Flags().StringVar(&traceSeed, "seed", "", "Impact seed: domain:NAME or requirement:NAME")
	traceCmd.Flags().IntVar(&traceHops, "hops", -1, "Maximum hops for the impact section (default: from config)")
	traceCmd.Flags().StringVar(&traceFormat, "format", "markdown", "Output format (markdown, csv, json, yaml)")
	traceCmd.Flags().StringVarP(&traceOutput, "output", "o", "", "Write the report to a file instead of stdout")
	traceCmd.Flags().StringVar(&traceTitle, "title", "", "Report title (default: workspace directory name)")
	rootCmd.AddCommand(traceCmd)
}

func runTrace(cmd *cobra.Command, args []string) error {
	root, err := workspaceRoot()
	if err != nil {
		return err
	}
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}
	format, err := report.ParseFormat(traceFormat)
	if err != nil {
		return err
	}

	logger := commandLogger(os.Stderr)
	session, err := loadSession(cmd.Context(), cfg, root, args, logger)
	if err != nil {
		return err
	}
	snap := session.Snapshot()

	var res *impact.Result
	if traceSeed != "" {
		seed, err := graph.ParseNodeRef(traceSeed)
		if err != nil {
			return fmt.Errorf("invalid --seed: %w", err)
		}
		engine, err := impact.NewEngineFromConfig(cfg.Impact, logger)
		if err != nil {
			return err
		}
		q := impact.Query{Seed: seed}
		if cmd.Flags().Changed("hops") {
			q.MaxHops = &traceHops
		}
		if res, err = engine.Impact(cmd.Context(), snap, q); err != nil {
			return err
		}
	}

	title := traceTitle
	if title == "" {
		title = filepath.Base(root)
	}
	r := report.Build(title, snap, res)

	var w io.Writer = cmd.OutOrStdout()
	if traceOutput != "" {
		f, err := os.Create(traceOutput)
		if err != nil {
			return fmt.Errorf("failed to create report file: %w", err)
		}
		defer f.Close()
		w = f
	}
	if err := report.Write(w, r, format); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
