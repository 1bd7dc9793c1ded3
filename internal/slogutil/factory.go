package slogutil

import (
	"io"
	"log/slog"

	"pfls/internal/config"
)

// LoggerFactory creates loggers for the server and the CLI from the logging
// configuration. It respects the precedence: CLI flags > config > default.
type LoggerFactory struct {
	config      *config.Config
	cliLevel    slog.Level
	hasCLILevel bool
	closers     []io.Closer
}

// NewLoggerFactory creates a new logger factory.
func NewLoggerFactory(cfg *config.Config) *LoggerFactory {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &LoggerFactory{config: cfg}
}

// WithCLILevel overrides the configured level.
func (f *LoggerFactory) WithCLILevel(level slog.Level) *LoggerFactory {
	f.cliLevel = level
	f.hasCLILevel = true
	return f
}

// Level returns the effective log level.
func (f *LoggerFactory) Level() slog.Level {
	if f.hasCLILevel {
		return f.cliLevel
	}
	if f.config.Logging.Level != "" {
		return LevelFromString(f.config.Logging.Level)
	}
	return slog.LevelInfo
}

// Logger writes to w and, when logging.file is set, to a rotating log file.
// A log file that cannot be opened is reported on w and skipped.
func (f *LoggerFactory) Logger(w io.Writer) *slog.Logger {
	level := f.Level()
	console := NewLineHandler(w, &slog.HandlerOptions{Level: level})

	path := f.config.Logging.File
	if path == "" {
		return slog.New(console)
	}

	rf, err := OpenRotatingFile(path, rotationSize(f.config.Logging.MaxSizeMB), f.config.Logging.MaxBackups)
	if err != nil {
		logger := slog.New(console)
		logger.Warn("cannot open log file, logging to stderr only", "path", path, "error", err)
		return logger
	}
	f.closers = append(f.closers, rf)
	return slog.New(NewTeeHandler(console, NewLineHandler(rf, &slog.HandlerOptions{Level: level})))
}

func rotationSize(mb int) int64 {
	if mb <= 0 {
		return 0
	}
	return int64(mb) * MB
}

// Close closes all open log files.
func (f *LoggerFactory) Close() error {
	var firstErr error
	for _, c := range f.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	f.closers = nil
	return firstErr
}
