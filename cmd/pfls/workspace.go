package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"pfls/internal/config"
	"pfls/internal/model"
	"pfls/internal/workspace"
)

// loadSession indexes a workspace for a one-shot command. Without files the
// configured roots are loaded; otherwise only the given files and the
// documents they import.
func loadSession(ctx context.Context, cfg *config.Config, root string, files []string, logger *slog.Logger) (*workspace.Session, error) {
	session := workspace.NewSession(logger)

	if len(files) == 0 {
		if _, err := session.LoadRoots(ctx, cfg.RootsFor(root), cfg.Workspace.Include, cfg.Workspace.Exclude); err != nil {
			return nil, fmt.Errorf("failed to load workspace: %w", err)
		}
		return session, nil
	}

	for _, f := range files {
		path, err := absFile(root, f)
		if err != nil {
			return nil, err
		}
		session.ReloadFromDisk(path)
	}
	return session, nil
}

// ensureLoaded adds path to the session when the workspace scan skipped it,
// for instance because it lies outside the roots.
func ensureLoaded(session *workspace.Session, path string) error {
	if session.Snapshot().HasDocument(model.FileURI(path)) {
		return nil
	}
	if !session.ReloadFromDisk(path) {
		return fmt.Errorf("cannot load %s", path)
	}
	return nil
}

// absFile resolves a command-line file argument against root and checks it
// is a regular file.
func absFile(root, f string) (string, error) {
	path := f
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			cwd = root
		}
		path = filepath.Join(cwd, path)
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", f)
	}
	return filepath.Clean(path), nil
}

// displayPath shortens a document URI to a path relative to root when it
// lies inside it.
func displayPath(root, uri string) string {
	path, ok := model.URIToPath(uri)
	if !ok {
		return uri
	}
	if rel, err := filepath.Rel(root, path); err == nil && !strings.HasPrefix(rel, "..") {
		return rel
	}
	return path
}
