package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"pfls/internal/config"
	"pfls/internal/model"
)

var checkCmd = &cobra.Command{
	Use:   "check [files...]",
	Short: "Report parse errors and model warnings",
	Long: `Parse the model and print every diagnostic the language server would
publish: syntax errors, dangling references, duplicate declarations.

Exits with status 1 when any error is found. Warnings alone do not fail.

Examples:
  pfls check
  pfls check model.pf requirements.pf`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

// checkSummary counts what a check found.
type checkSummary struct {
	Files    int
	Errors   int
	Warnings int
}

func runCheck(cmd *cobra.Command, args []string) error {
	root, err := workspaceRoot()
	if err != nil {
		return err
	}
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}

	sum, err := checkWorkspace(cmd.Context(), cfg, root, args, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	if sum.Errors > 0 {
		return &exitError{code: 1}
	}
	return nil
}

// checkWorkspace writes one line per diagnostic as
// path:line:column: severity [code] message, followed by a summary.
func checkWorkspace(ctx context.Context, cfg *config.Config, root string, files []string, w io.Writer) (checkSummary, error) {
	session, err := loadSession(ctx, cfg, root, files, commandLogger(os.Stderr))
	if err != nil {
		return checkSummary{}, err
	}

	var sum checkSummary
	for _, uri := range session.Snapshot().Documents() {
		sum.Files++
		for _, d := range session.Diagnostics(uri) {
			switch d.Severity {
			case model.SeverityError:
				sum.Errors++
			case model.SeverityWarning:
				sum.Warnings++
			}
			fmt.Fprintf(w, "%s:%d:%d: %s [%s] %s\n",
				displayPath(root, uri),
				d.Span.Start.Line+1,
				d.Span.Start.Character+1,
				severityName(d.Severity),
				d.Code,
				d.Message)
		}
	}

	fmt.Fprintf(w, "%d error(s), %d warning(s) in %d file(s)\n", sum.Errors, sum.Warnings, sum.Files)
	return sum, nil
}

func severityName(s model.Severity) string {
	switch s {
	case model.SeverityError:
		return "error"
	case model.SeverityWarning:
		return "warning"
	case model.SeverityInformation:
		return "info"
	default:
		return "hint"
	}
}
