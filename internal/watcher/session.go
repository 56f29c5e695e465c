package watcher

import (
	"context"
	"log/slog"
	"time"

	"codesearch/internal/indexer"
)

// SessionConfig configures a watch Session.
type SessionConfig struct {
	DebounceWindow time.Duration // default 500ms
	BatchWindow    time.Duration // default 2000ms
	IdleTimeout    time.Duration // default 5 minutes
}

// DefaultSessionConfig returns the spec-default debounce, batch window,
// and idle timeout.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		DebounceWindow: 500 * time.Millisecond,
		BatchWindow:    2000 * time.Millisecond,
		IdleTimeout:    DefaultIdleTimeout,
	}
}

// Session drives incremental reindexing from filesystem change events:
// it watches the repository tree, coalesces changes with a Batcher, and
// calls Indexer.Index once a batch is ready. Run calls Index on its own
// goroutine, so while an index run is in flight new events wait in the
// Watcher's buffered event channel (events beyond its capacity are
// dropped and reported as errors); once the run returns they reach the
// Batcher and flush on its timers.
type Session struct {
	indexer   *indexer.Indexer
	watcher   *Watcher
	batcher   *Batcher
	lifecycle *Lifecycle
	log       *slog.Logger

	indexing chan struct{} // 1-slot semaphore: only one Index() call at a time
}

// NewSession wires a Watcher, Batcher, and Lifecycle manager around an
// already-initialized Indexer.
func NewSession(idx *indexer.Indexer, cfg SessionConfig, log *slog.Logger) (*Session, error) {
	if log == nil {
		log = slog.Default()
	}

	w, err := New(idx.RepoPath())
	if err != nil {
		return nil, err
	}

	if cfg.DebounceWindow <= 0 {
		cfg.DebounceWindow = 500 * time.Millisecond
	}
	if cfg.BatchWindow <= 0 {
		cfg.BatchWindow = 2000 * time.Millisecond
	}

	s := &Session{
		indexer:   idx,
		watcher:   w,
		batcher:   NewBatcher(cfg.DebounceWindow, cfg.BatchWindow),
		lifecycle: NewLifecycle(cfg.IdleTimeout, log),
		log:       log,
		indexing:  make(chan struct{}, 1),
	}
	s.indexing <- struct{}{}
	return s, nil
}

// Lifecycle exposes the session's idle/signal shutdown manager.
func (s *Session) Lifecycle() *Lifecycle {
	return s.lifecycle
}

// ForceUpdate flushes the pending batch immediately, matching
// forceUpdate() semantics.
func (s *Session) ForceUpdate() {
	s.batcher.Flush()
}

// Run starts the watcher and blocks, triggering a reindex for each
// flushed batch, until the lifecycle manager signals shutdown or ctx is
// cancelled.
func (s *Session) Run(ctx context.Context) error {
	if err := s.watcher.Start(); err != nil {
		return err
	}
	defer s.watcher.Close()
	defer s.batcher.Stop()

	s.lifecycle.WatchSignals(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.lifecycle.Done():
			return nil
		case ev, ok := <-s.watcher.Events():
			if !ok {
				return nil
			}
			s.batcher.Add(ev.Path, ev.Op)
		case err, ok := <-s.watcher.Errors():
			if !ok {
				continue
			}
			s.log.Warn("watcher error", "error", err)
		case batch, ok := <-s.batcher.Output():
			if !ok {
				return nil
			}
			s.runIndex(ctx, batch)
		}
	}
}

// runIndex triggers a reindex for the flushed batch. It doesn't pass
// the batch's specific paths to Index, since the indexer's own Merkle
// diff recomputes exactly what changed; the batch only signals that
// something did.
func (s *Session) runIndex(ctx context.Context, batch []string) {
	select {
	case <-s.indexing:
	default:
		// An index run is already in flight; the batcher already holds
		// any events that arrive in the meantime and will flush again
		// once its own timers fire.
		return
	}
	defer func() { s.indexing <- struct{}{} }()

	s.log.Info("reindexing after filesystem changes", "changed_paths", len(batch))
	if _, err := s.indexer.Index(ctx, false); err != nil {
		s.log.Error("incremental reindex failed", "error", err)
	}
}
