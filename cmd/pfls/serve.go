package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"pfls/internal/config"
	"pfls/internal/lsp"
	"pfls/internal/telemetry"
	"pfls/internal/version"
	"pfls/internal/workspace"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the language server on stdio",
	Long: `Run the language server over stdin and stdout, the transport editors
start it with. Logs go to stderr and, when logging.file is set, to a file.

With telemetry.enabled the server also exposes /metrics, /healthz and
/debug/graph on telemetry.metricsAddr.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	root := ""
	if cmd.Flags().Changed("root") {
		r, err := workspaceRoot()
		if err != nil {
			return err
		}
		root = r
	}

	cfg := serveConfig(root)
	factory := newLoggerFactory(cfg)
	logger := factory.Logger(os.Stderr)
	defer factory.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session := workspace.NewSession(logger)

	if cfg.Telemetry.Enabled {
		shutdown, err := startTelemetry(ctx, cfg, session, logger)
		if err != nil {
			logger.Warn("telemetry disabled", "error", err)
		} else {
			defer shutdown()
		}
	}

	server := lsp.NewServer(os.Stdin, os.Stdout, lsp.Options{
		Version:    version.Info(),
		Root:       root,
		ConfigPath: configPath,
		Session:    session,
		Logger:     logger,
	})

	logger.Info("language server starting", "version", version.Info(), "pid", os.Getpid())
	if err := server.Serve(ctx); err != nil {
		return fmt.Errorf("language server: %w", err)
	}
	if code := server.ExitCode(); code != 0 {
		return &exitError{code: code}
	}
	return nil
}

// serveConfig loads the configuration used before the client names its
// workspace: logging and telemetry. The server resolves the workspace
// configuration again on initialize.
func serveConfig(root string) *config.Config {
	dir := root
	if dir == "" {
		dir = "."
	}
	cfg, err := config.Resolve(dir, configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v; using defaults\n", err)
		return config.DefaultConfig()
	}
	return cfg
}

// startTelemetry installs the metrics provider and serves the telemetry
// endpoint until ctx is done or the returned function is called. That
// function stops the endpoint and flushes the provider.
func startTelemetry(ctx context.Context, cfg *config.Config, session *workspace.Session, logger *slog.Logger) (func(), error) {
	p, err := telemetry.Setup(cfg.Telemetry, version.Version)
	if err != nil {
		return nil, err
	}
	srv, err := telemetry.Listen(cfg.Telemetry.MetricsAddr, telemetry.NewRouter(p, session), logger)
	if err != nil {
		_ = p.Shutdown(context.Background())
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("telemetry endpoint failed", "error", err)
		}
	}()

	return func() {
		cancel()
		<-done
		if err := p.Shutdown(context.Background()); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}, nil
}
