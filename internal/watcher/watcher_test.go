package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pfls/internal/config"
	"pfls/internal/model"
	"pfls/internal/workspace"
)

type recordingSink struct {
	mu       sync.Mutex
	reloaded []string
	forgot   []string
}

func (s *recordingSink) ReloadFromDisk(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reloaded = append(s.reloaded, path)
	return true
}

func (s *recordingSink) Forget(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forgot = append(s.forgot, path)
	return true
}

func (s *recordingSink) calls() (reloaded, forgot []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.reloaded...), append([]string(nil), s.forgot...)
}

func testConfig() Config {
	return Config{
		Include:  []string{"**/*.pf"},
		Exclude:  []string{"**/node_modules/**"},
		Debounce: 20 * time.Millisecond,
	}
}

func startWatcher(t *testing.T, sink Sink, root string) *Watcher {
	t.Helper()
	w, err := New(testConfig(), sink, nil)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background(), []string{root}))
	t.Cleanup(w.Stop)
	return w
}

func TestEventTypeString(t *testing.T) {
	tests := []struct {
		eventType EventType
		want      string
	}{
		{EventCreate, "create"},
		{EventModify, "modify"},
		{EventDelete, "delete"},
		{EventRename, "rename"},
		{EventType(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.eventType.String())
		})
	}
}

func TestEventTypeFromOp(t *testing.T) {
	assert.Equal(t, EventDelete, eventType(fsnotify.Remove))
	assert.Equal(t, EventRename, eventType(fsnotify.Rename))
	assert.Equal(t, EventCreate, eventType(fsnotify.Create))
	assert.Equal(t, EventModify, eventType(fsnotify.Write))
	assert.Equal(t, EventModify, eventType(fsnotify.Chmod))
}

func TestConfigFrom(t *testing.T) {
	ws := config.DefaultConfig().Workspace
	ws.DebounceMs = 150

	cfg := ConfigFrom(ws)
	assert.Equal(t, 150*time.Millisecond, cfg.Debounce)
	assert.Equal(t, ws.Include, cfg.Include)
	assert.Equal(t, ws.Exclude, cfg.Exclude)
}

func TestBatchDebouncerCoalescesPerPath(t *testing.T) {
	var mu sync.Mutex
	var received []Event
	b := NewBatchDebouncer(20*time.Millisecond, func(events []Event) {
		mu.Lock()
		received = events
		mu.Unlock()
	})

	b.Add(Event{Type: EventCreate, Path: "b.pf"})
	b.Add(Event{Type: EventModify, Path: "a.pf"})
	b.Add(Event{Type: EventDelete, Path: "b.pf"})
	assert.Equal(t, 2, b.Pending())

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 2
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "a.pf", received[0].Path)
	assert.Equal(t, "b.pf", received[1].Path)
	assert.Equal(t, EventDelete, received[1].Type, "last operation wins")
}

func TestBatchDebouncerReplaceBecomesModify(t *testing.T) {
	var received []Event
	b := NewBatchDebouncer(time.Hour, func(events []Event) { received = events })

	b.Add(Event{Type: EventDelete, Path: "model.pf"})
	b.Add(Event{Type: EventCreate, Path: "model.pf"})
	b.Add(Event{Type: EventCreate, Path: "new.pf"})
	b.Flush()

	require.Len(t, received, 2)
	assert.Equal(t, EventModify, received[0].Type, "delete then create is a replace")
	assert.Equal(t, EventCreate, received[1].Type)
}

func TestBatchDebouncerCancel(t *testing.T) {
	var mu sync.Mutex
	called := false
	b := NewBatchDebouncer(20*time.Millisecond, func([]Event) {
		mu.Lock()
		called = true
		mu.Unlock()
	})

	b.Add(Event{Type: EventCreate, Path: "a.pf"})
	b.Cancel()
	time.Sleep(60 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.False(t, called, "emit should not run after cancel")
	assert.Zero(t, b.Pending())
}

func TestBatchDebouncerFlush(t *testing.T) {
	var received []Event
	b := NewBatchDebouncer(time.Hour, func(events []Event) { received = events })

	b.Flush()
	assert.Nil(t, received, "no events, no emit")

	b.Add(Event{Type: EventModify, Path: "a.pf"})
	b.Flush()
	require.Len(t, received, 1)
	assert.Zero(t, b.Pending())
}

func TestApplyRoutesEvents(t *testing.T) {
	sink := &recordingSink{}
	w, err := New(testConfig(), sink, nil)
	require.NoError(t, err)
	defer w.Stop()

	w.apply([]Event{
		{Type: EventCreate, Path: "/w/a.pf"},
		{Type: EventModify, Path: "/w/b.pf"},
		{Type: EventDelete, Path: "/w/c.pf"},
		{Type: EventRename, Path: "/w/d.pf"},
	})

	reloaded, forgot := sink.calls()
	assert.Equal(t, []string{"/w/a.pf", "/w/b.pf"}, reloaded)
	assert.Equal(t, []string{"/w/c.pf", "/w/d.pf"}, forgot)
}

func TestStartTwiceFails(t *testing.T) {
	w := startWatcher(t, &recordingSink{}, t.TempDir())
	assert.Error(t, w.Start(context.Background(), nil))
}

func TestStartMissingRoot(t *testing.T) {
	w, err := New(testConfig(), &recordingSink{}, nil)
	require.NoError(t, err)
	defer w.Stop()

	assert.Error(t, w.Start(context.Background(), []string{filepath.Join(t.TempDir(), "missing")}))
}

func TestStopIsIdempotent(t *testing.T) {
	w, err := New(testConfig(), &recordingSink{}, nil)
	require.NoError(t, err)
	w.Stop()
	w.Stop()
}

func TestWatcherReloadsModelFiles(t *testing.T) {
	root := t.TempDir()
	sink := &recordingSink{}
	startWatcher(t, sink, root)

	target := filepath.Join(root, "door.pf")
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(target, []byte("problem: Door\n"), 0o644))

	require.Eventually(t, func() bool {
		reloaded, _ := sink.calls()
		return len(reloaded) > 0
	}, 2*time.Second, 10*time.Millisecond)

	reloaded, _ := sink.calls()
	for _, p := range reloaded {
		assert.Equal(t, target, p, "only model files reach the sink")
	}
}

func TestWatcherForgetsRemovedFiles(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "door.pf")
	require.NoError(t, os.WriteFile(target, []byte("problem: Door\n"), 0o644))

	sink := &recordingSink{}
	startWatcher(t, sink, root)
	require.NoError(t, os.Remove(target))

	require.Eventually(t, func() bool {
		_, forgot := sink.calls()
		return len(forgot) == 1 && forgot[0] == target
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWatcherSkipsExcludedDirectories(t *testing.T) {
	root := t.TempDir()
	excluded := filepath.Join(root, "node_modules")
	require.NoError(t, os.Mkdir(excluded, 0o755))

	sink := &recordingSink{}
	startWatcher(t, sink, root)

	require.NoError(t, os.WriteFile(filepath.Join(excluded, "x.pf"), []byte("problem: X\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "y.pf"), []byte("problem: Y\n"), 0o644))

	require.Eventually(t, func() bool {
		reloaded, _ := sink.calls()
		return len(reloaded) > 0
	}, 2*time.Second, 10*time.Millisecond)

	reloaded, _ := sink.calls()
	assert.NotContains(t, reloaded, filepath.Join(excluded, "x.pf"))
}

func TestWatcherFeedsSession(t *testing.T) {
	root := t.TempDir()
	session := workspace.NewSession(nil)
	startWatcher(t, session, root)

	target := filepath.Join(root, "door.pf")
	require.NoError(t, os.WriteFile(target, []byte("problem: Door\n"), 0o644))

	require.Eventually(t, func() bool {
		return session.Snapshot().HasDocument(model.FileURI(target))
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, os.Remove(target))
	require.Eventually(t, func() bool {
		return !session.Snapshot().HasDocument(model.FileURI(target))
	}, 2*time.Second, 10*time.Millisecond)
}
