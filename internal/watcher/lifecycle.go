package watcher

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// DefaultIdleTimeout is how long the lifecycle manager waits after the
// last client disconnects before shutting the watch session down.
const DefaultIdleTimeout = 5 * time.Minute

// Lifecycle tracks connected-client count and triggers idle shutdown
// when it drops to zero for IdleTimeout, or immediately on SIGINT/SIGTERM.
type Lifecycle struct {
	IdleTimeout time.Duration

	mu       sync.Mutex
	clients  int
	idleTimer *time.Timer

	shutdown chan struct{}
	once     sync.Once
	log      *slog.Logger
}

// NewLifecycle creates a Lifecycle manager with the given idle timeout.
// A zero timeout uses DefaultIdleTimeout.
func NewLifecycle(idleTimeout time.Duration, log *slog.Logger) *Lifecycle {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &Lifecycle{
		IdleTimeout: idleTimeout,
		shutdown:    make(chan struct{}),
		log:         log,
	}
}

// ClientConnected cancels any pending idle-shutdown timer.
func (l *Lifecycle) ClientConnected() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.clients++
	if l.idleTimer != nil {
		l.idleTimer.Stop()
		l.idleTimer = nil
	}
}

// ClientDisconnected decrements the client count and, if it reaches
// zero, starts the idle-shutdown timer.
func (l *Lifecycle) ClientDisconnected() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.clients > 0 {
		l.clients--
	}
	if l.clients == 0 {
		l.idleTimer = time.AfterFunc(l.IdleTimeout, l.triggerShutdown)
	}
}

// triggerShutdown signals Done(), logging why.
func (l *Lifecycle) triggerShutdown() {
	l.log.Info("idle timeout reached, shutting down")
	l.once.Do(func() { close(l.shutdown) })
}

// WatchSignals begins listening for SIGINT/SIGTERM and triggers
// shutdown on receipt, logging which signal fired.
func (l *Lifecycle) WatchSignals(ctx context.Context) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			l.log.Info("received shutdown signal", "signal", sig.String())
			l.once.Do(func() { close(l.shutdown) })
		case <-ctx.Done():
			signal.Stop(sigCh)
		case <-l.shutdown:
			signal.Stop(sigCh)
		}
	}()
}

// Done returns a channel closed once shutdown has been triggered, by
// idle timeout or by signal.
func (l *Lifecycle) Done() <-chan struct{} {
	return l.shutdown
}

// Shutdown triggers shutdown manually, for callers that want to stop a
// watch session outside of the idle/signal paths.
func (l *Lifecycle) Shutdown() {
	l.once.Do(func() { close(l.shutdown) })
}
