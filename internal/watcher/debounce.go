package watcher

import (
	"sync"
	"time"
)

// Batcher coalesces raw watcher events into update batches using two
// timers: debounceWindow resets on every incoming event and fires once
// the tree goes quiet, while batchWindow is a ceiling measured from the
// first pending event so a steady stream of changes still flushes
// periodically instead of never going quiet.
type Batcher struct {
	debounceWindow time.Duration
	batchWindow    time.Duration

	mu        sync.Mutex
	pending   map[string]Op
	firstSeen time.Time
	debounce  *time.Timer
	ceiling   *time.Timer
	stopped   bool

	output chan []string
}

// NewBatcher creates a Batcher with the given debounce and batch window
// durations.
func NewBatcher(debounceWindow, batchWindow time.Duration) *Batcher {
	return &Batcher{
		debounceWindow: debounceWindow,
		batchWindow:    batchWindow,
		pending:        make(map[string]Op),
		output:         make(chan []string, 8),
	}
}

// Add records an event for path, (re)starting the debounce timer and,
// if this is the first event in a new batch, the ceiling timer.
func (b *Batcher) Add(path string, op Op) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stopped {
		return
	}

	if len(b.pending) == 0 {
		b.firstSeen = time.Now()
		b.ceiling = time.AfterFunc(b.batchWindow, b.flush)
	}
	b.pending[path] = op

	if b.debounce != nil {
		b.debounce.Stop()
	}
	b.debounce = time.AfterFunc(b.debounceWindow, b.flush)
}

// Flush forces an immediate flush of the pending set, matching
// forceUpdate semantics.
func (b *Batcher) Flush() {
	b.flush()
}

func (b *Batcher) flush() {
	b.mu.Lock()
	if b.stopped || len(b.pending) == 0 {
		b.mu.Unlock()
		return
	}

	paths := make([]string, 0, len(b.pending))
	for p := range b.pending {
		paths = append(paths, p)
	}
	b.pending = make(map[string]Op)

	if b.debounce != nil {
		b.debounce.Stop()
		b.debounce = nil
	}
	if b.ceiling != nil {
		b.ceiling.Stop()
		b.ceiling = nil
	}
	b.mu.Unlock()

	select {
	case b.output <- paths:
	default:
		// Slow consumer: drop rather than block the fsnotify goroutine.
	}
}

// Output returns the channel of flushed path batches.
func (b *Batcher) Output() <-chan []string {
	return b.output
}

// Stop halts pending timers and closes the output channel. Safe to
// call multiple times.
func (b *Batcher) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stopped {
		return
	}
	b.stopped = true
	if b.debounce != nil {
		b.debounce.Stop()
	}
	if b.ceiling != nil {
		b.ceiling.Stop()
	}
	close(b.output)
}
