package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"pfls/internal/config"
	"pfls/internal/slogutil"
	"pfls/internal/version"
)

var (
	// configPath is the --config flag: an explicit config file
	configPath string
	// logLevel is the --log-level flag
	logLevel string
	// verbosity counts -v flags
	verbosity int
	// rootDir is the --root flag: the workspace root
	rootDir string
)

var rootCmd = &cobra.Command{
	Use:   "pfls",
	Short: "pfls - Problem Frames language server",
	Long: `pfls is a language server for Problem Frames models. Besides the usual
editor features it answers requirement-impact queries: given a domain or a
requirement, which requirements are affected by changing it.

The commands below run the same analysis from the command line.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate("pfls version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Config file (default: <root>/.pfls/config.json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Log level: debug, info, warn, error (default: from config)")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v",
		"Increase log verbosity (-v, -vv)")
	rootCmd.PersistentFlags().StringVar(&rootDir, "root", ".",
		"Workspace root")
}

// workspaceRoot returns the absolute --root directory.
func workspaceRoot() (string, error) {
	root, err := filepath.Abs(rootDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve workspace root: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return "", fmt.Errorf("workspace root: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("workspace root %s is not a directory", root)
	}
	return root, nil
}

// loadConfig resolves the configuration of root honouring --config.
func loadConfig(root string) (*config.Config, error) {
	cfg, err := config.Resolve(root, configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// newLoggerFactory applies --log-level and -v over the configured level.
// An explicit --log-level wins over -v.
func newLoggerFactory(cfg *config.Config) *slogutil.LoggerFactory {
	factory := slogutil.NewLoggerFactory(cfg)
	switch {
	case logLevel != "":
		factory.WithCLILevel(slogutil.LevelFromString(logLevel))
	case verbosity > 0:
		factory.WithCLILevel(slogutil.LevelFromVerbosity(verbosity, false))
	}
	return factory
}

// commandLogger is the logger of the one-shot commands. It writes to w,
// normally stderr, and only warnings unless asked for more.
func commandLogger(w io.Writer) *slog.Logger {
	level := slogutil.LevelFromVerbosity(verbosity, false)
	if logLevel != "" {
		level = slogutil.LevelFromString(logLevel)
	}
	return slogutil.NewLogger(w, level)
}
