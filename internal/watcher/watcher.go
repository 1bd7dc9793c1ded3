// Package watcher keeps the workspace in sync with model files edited outside
// the editor.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"pfls/internal/config"
	"pfls/internal/slogutil"
	"pfls/internal/workspace"
)

// EventType represents the type of file system event
type EventType int

const (
	EventCreate EventType = iota
	EventModify
	EventDelete
	EventRename
)

// String returns a string representation of the event type
func (e EventType) String() string {
	switch e {
	case EventCreate:
		return "create"
	case EventModify:
		return "modify"
	case EventDelete:
		return "delete"
	case EventRename:
		return "rename"
	default:
		return "unknown"
	}
}

// Event represents a file system event
type Event struct {
	Type      EventType
	Path      string
	Timestamp time.Time
}

// Sink receives coalesced disk changes. *workspace.Session implements it;
// documents the editor has open are left alone by the sink.
type Sink interface {
	ReloadFromDisk(path string) bool
	Forget(path string) bool
}

// Config contains watcher configuration
type Config struct {
	Include  []string
	Exclude  []string
	Debounce time.Duration
}

// ConfigFrom derives the watcher settings from the workspace configuration.
func ConfigFrom(ws config.WorkspaceConfig) Config {
	return Config{
		Include:  ws.Include,
		Exclude:  ws.Exclude,
		Debounce: time.Duration(ws.DebounceMs) * time.Millisecond,
	}
}

// Watcher watches workspace roots for model file changes
type Watcher struct {
	config    Config
	sink      Sink
	logger    *slog.Logger
	matcher   *workspace.Matcher
	debouncer *BatchDebouncer

	fs    *fsnotify.Watcher
	roots []string

	mu       sync.Mutex
	started  bool
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a watcher that feeds sink. Start must be called to begin
// watching.
func New(cfg Config, sink Sink, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	w := &Watcher{
		config:  cfg,
		sink:    sink,
		logger:  logger.With("component", "watcher"),
		matcher: workspace.NewMatcher(cfg.Include, cfg.Exclude),
		fs:      fw,
		done:    make(chan struct{}),
	}
	w.debouncer = NewBatchDebouncer(cfg.Debounce, w.apply)
	return w, nil
}

// Start watches every directory below roots that is not excluded.
func (w *Watcher) Start(ctx context.Context, roots []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return fmt.Errorf("watcher already started")
	}

	for _, root := range roots {
		abs, err := filepath.Abs(root)
		if err != nil {
			return fmt.Errorf("resolve root %s: %w", root, err)
		}
		if err := w.addRecursive(abs, abs); err != nil {
			return err
		}
		w.roots = append(w.roots, abs)
	}
	w.started = true

	w.wg.Add(1)
	go w.processEvents(ctx)

	w.logger.Info("watching workspace", "roots", len(w.roots), "debounce", w.config.Debounce)
	return nil
}

// Stop stops watching and drops pending events. It is safe to call more
// than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.fs.Close()
		w.wg.Wait()
		w.debouncer.Cancel()
	})
}

// Roots returns the watched roots as absolute paths.
func (w *Watcher) Roots() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.roots...)
}

func (w *Watcher) addRecursive(root, dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == dir {
				return fmt.Errorf("watch %s: %w", dir, err)
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if rel, ok := relTo(root, p); ok && rel != "." && w.matcher.Excluded(rel) {
			return filepath.SkipDir
		}
		if err := w.fs.Add(p); err != nil {
			w.logger.Warn("cannot watch directory", "path", p, "error", err)
		}
		return nil
	})
}

func (w *Watcher) processEvents(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	root, rel, ok := w.locate(ev.Name)
	if !ok || rel == "." {
		return
	}

	if ev.Has(fsnotify.Create) && isDir(ev.Name) {
		if w.matcher.Excluded(rel) {
			return
		}
		if err := w.addRecursive(root, ev.Name); err != nil {
			w.logger.Warn("cannot watch new directory", "path", ev.Name, "error", err)
		}
		return
	}

	if !w.matcher.Match(rel) {
		return
	}
	w.debouncer.Add(Event{Type: eventType(ev.Op), Path: ev.Name, Timestamp: time.Now()})
}

// locate finds the root that contains path.
func (w *Watcher) locate(path string) (root, rel string, ok bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, r := range w.roots {
		if rel, ok := relTo(r, path); ok {
			return r, rel, true
		}
	}
	return "", "", false
}

// apply hands a coalesced batch to the sink.
func (w *Watcher) apply(events []Event) {
	changed := 0
	for _, e := range events {
		var ok bool
		switch e.Type {
		case EventDelete, EventRename:
			ok = w.sink.Forget(e.Path)
		default:
			ok = w.sink.ReloadFromDisk(e.Path)
		}
		if ok {
			changed++
		}
	}
	w.logger.Debug("disk changes applied", "events", len(events), "changed", changed)
}

func eventType(op fsnotify.Op) EventType {
	switch {
	case op.Has(fsnotify.Remove):
		return EventDelete
	case op.Has(fsnotify.Rename):
		return EventRename
	case op.Has(fsnotify.Create):
		return EventCreate
	default:
		return EventModify
	}
}

func relTo(root, path string) (string, bool) {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return rel, true
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
