// Package shutdown turns SIGINT/SIGTERM into context cancellation and runs
// registered cleanup in reverse order when the process is done.
package shutdown

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/psantana5/pgobserver/pkg/logging"
)

type cleanup struct {
	name string
	fn   func(context.Context) error
}

// Manager handles graceful shutdown
type Manager struct {
	mu          sync.Mutex
	cleanups    []cleanup
	timeout     time.Duration
	logger      *logging.Logger
	signals     []os.Signal
	interrupted atomic.Bool
}

// New creates a manager whose cleanup phase is bounded by timeout
func New(timeout time.Duration, logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Manager{
		timeout: timeout,
		logger:  logger,
		signals: []os.Signal{syscall.SIGTERM, syscall.SIGINT},
	}
}

// Register adds a cleanup step. Steps run last-registered first.
func (m *Manager) Register(name string, fn func(context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanups = append(m.cleanups, cleanup{name: name, fn: fn})
}

// RegisterCloser registers c.Close as a cleanup step
func (m *Manager) RegisterCloser(name string, c interface{ Close() error }) {
	m.Register(name, func(context.Context) error { return c.Close() })
}

// Context returns a child of parent that is cancelled on SIGINT/SIGTERM.
// The returned stop func releases the signal handler.
func (m *Manager) Context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, m.signals...)

	go func() {
		select {
		case sig := <-sigs:
			m.logger.Info(fmt.Sprintf("Received %v, stopping watch", sig))
			m.interrupted.Store(true)
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigs)
		cancel()
	}
}

// Interrupted reports whether a shutdown signal was received
func (m *Manager) Interrupted() bool {
	return m.interrupted.Load()
}

// Shutdown runs every cleanup step once, newest first. A failing step does not
// stop the others; all failures are returned joined.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	steps := m.cleanups
	m.cleanups = nil
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	var errs []error
	for i := len(steps) - 1; i >= 0; i-- {
		if err := steps[i].fn(ctx); err != nil {
			m.logger.Warn(fmt.Sprintf("Cleanup %s failed: %v", steps[i].name, err))
			errs = append(errs, fmt.Errorf("%s: %w", steps[i].name, err))
		}
	}
	return errors.Join(errs...)
}
