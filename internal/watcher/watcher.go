// Package watcher watches a repository tree for filesystem changes and
// drives incremental reindexing, combined with an idle-shutdown
// lifecycle manager for long-running watch sessions.
package watcher

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"codesearch/internal/ignore"
)

// Op is the filesystem operation a raw event represents.
type Op int

const (
	OpAdd Op = iota
	OpChange
	OpUnlink
)

func (op Op) String() string {
	switch op {
	case OpAdd:
		return "add"
	case OpChange:
		return "change"
	case OpUnlink:
		return "unlink"
	default:
		return "unknown"
	}
}

// Event is a single filtered filesystem change, relative to the
// watched repository root.
type Event struct {
	Path string
	Op   Op
}

// Watcher recursively watches a repository root via fsnotify, adding
// new directories as they appear and dropping paths the ignore filter
// excludes.
type Watcher struct {
	repoRoot string
	filter   *ignore.Filter
	fsw      *fsnotify.Watcher

	mu       sync.Mutex
	watching map[string]bool

	events chan Event
	errs   chan error
	done   chan struct{}
}

// New creates a Watcher rooted at repoRoot, loading the same ignore
// rules the indexer's scan uses.
func New(repoRoot string) (*Watcher, error) {
	filter, err := ignore.New(repoRoot, ignore.Options{})
	if err != nil {
		return nil, fmt.Errorf("loading ignore rules: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}

	w := &Watcher{
		repoRoot: repoRoot,
		filter:   filter,
		fsw:      fsw,
		watching: make(map[string]bool),
		events:   make(chan Event, 256),
		errs:     make(chan error, 16),
		done:     make(chan struct{}),
	}
	return w, nil
}

// Start begins watching the repository tree in the background. It
// returns once the initial directory set has been registered; events
// are delivered asynchronously on Events().
func (w *Watcher) Start() error {
	if err := w.addTree(w.repoRoot); err != nil {
		return err
	}
	go w.run()
	return nil
}

// Events returns the channel of filtered, repo-relative change events.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Errors returns the channel of non-fatal watcher errors.
func (w *Watcher) Errors() <-chan error {
	return w.errs
}

// Close stops the watcher and releases the underlying fsnotify handle.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fsw.Close()
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(w.repoRoot, path)
		if relErr != nil {
			return nil
		}
		if rel != "." && w.filter.Skip(rel, true) {
			return filepath.SkipDir
		}
		w.mu.Lock()
		already := w.watching[path]
		w.watching[path] = true
		w.mu.Unlock()
		if already {
			return nil
		}
		return w.fsw.Add(path)
	})
}

func (w *Watcher) run() {
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleRaw(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			select {
			case w.errs <- err:
			default:
			}
		}
	}
}

func (w *Watcher) handleRaw(ev fsnotify.Event) {
	rel, err := filepath.Rel(w.repoRoot, ev.Name)
	if err != nil {
		return
	}

	info, statErr := os.Stat(ev.Name)
	isDir := statErr == nil && info.IsDir()

	if w.filter.Skip(rel, isDir) {
		return
	}

	switch {
	case ev.Op&fsnotify.Create != 0:
		if isDir {
			_ = w.addTree(ev.Name)
			return
		}
		w.emit(Event{Path: rel, Op: OpAdd})
	case ev.Op&fsnotify.Write != 0:
		w.emit(Event{Path: rel, Op: OpChange})
	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		w.mu.Lock()
		delete(w.watching, ev.Name)
		w.mu.Unlock()
		w.emit(Event{Path: rel, Op: OpUnlink})
	}
}

func (w *Watcher) emit(ev Event) {
	select {
	case w.events <- ev:
	default:
		select {
		case w.errs <- fmt.Errorf("event buffer full, dropped %s %s", ev.Op, ev.Path):
		default:
		}
	}
}
