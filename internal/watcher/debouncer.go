package watcher

import (
	"sort"
	"sync"
	"time"
)

// BatchDebouncer holds file events until the workspace has been quiet for
// delay, then emits them in one path-ordered batch so a burst of saves
// becomes a single graph rebuild.
//
// Per path only the latest event survives, except that a delete followed by
// a create becomes a modify: editors that save by replacing the file would
// otherwise look like a removal to the sink.
type BatchDebouncer struct {
	delay time.Duration
	emit  func([]Event)

	mu      sync.Mutex
	pending map[string]Event
	timer   *time.Timer
}

func NewBatchDebouncer(delay time.Duration, emit func([]Event)) *BatchDebouncer {
	return &BatchDebouncer{delay: delay, emit: emit, pending: make(map[string]Event)}
}

// Add queues event and restarts the quiet period.
func (b *BatchDebouncer) Add(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if prev, ok := b.pending[event.Path]; ok && prev.Type == EventDelete && event.Type == EventCreate {
		event.Type = EventModify
	}
	b.pending[event.Path] = event

	b.stopLocked()
	b.timer = time.AfterFunc(b.delay, b.fire)
}

// Flush emits whatever is queued without waiting for the quiet period.
func (b *BatchDebouncer) Flush() {
	b.mu.Lock()
	b.stopLocked()
	b.mu.Unlock()
	b.fire()
}

// Cancel discards the queue.
func (b *BatchDebouncer) Cancel() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopLocked()
	b.pending = make(map[string]Event)
}

// Pending is the number of distinct paths queued.
func (b *BatchDebouncer) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

func (b *BatchDebouncer) stopLocked() {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
}

func (b *BatchDebouncer) fire() {
	batch := b.take()
	if len(batch) > 0 && b.emit != nil {
		b.emit(batch)
	}
}

func (b *BatchDebouncer) take() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	batch := make([]Event, 0, len(b.pending))
	for _, e := range b.pending {
		batch = append(batch, e)
	}
	b.pending = make(map[string]Event)

	sort.Slice(batch, func(i, j int) bool { return batch[i].Path < batch[j].Path })
	return batch
}
