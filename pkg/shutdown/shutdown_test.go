package shutdown

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"
	"testing"
	"time"
)

type closer struct{ closed bool }

func (c *closer) Close() error {
	c.closed = true
	return nil
}

func TestManager_ShutdownRunsLIFO(t *testing.T) {
	m := New(time.Second, nil)

	var order []int
	for i := 0; i < 3; i++ {
		i := i
		m.Register(fmt.Sprintf("step-%d", i), func(ctx context.Context) error {
			order = append(order, i)
			return nil
		})
	}

	if err := m.Shutdown(); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	if len(order) != 3 || order[0] != 2 || order[1] != 1 || order[2] != 0 {
		t.Errorf("Expected LIFO order [2 1 0], got %v", order)
	}
}

func TestManager_ShutdownContinuesOnError(t *testing.T) {
	m := New(time.Second, nil)

	c := &closer{}
	boom := errors.New("boom")
	m.RegisterCloser("logger", c)
	m.Register("metrics", func(ctx context.Context) error { return boom })

	err := m.Shutdown()
	if !errors.Is(err, boom) {
		t.Errorf("Expected joined error to wrap boom, got %v", err)
	}
	if !c.closed {
		t.Error("Expected earlier cleanup to run after a failing one")
	}
}

func TestManager_ShutdownRunsOnce(t *testing.T) {
	m := New(time.Second, nil)

	calls := 0
	m.Register("count", func(ctx context.Context) error {
		calls++
		return nil
	})

	m.Shutdown()
	m.Shutdown()

	if calls != 1 {
		t.Errorf("Expected cleanup to run once, ran %d times", calls)
	}
}

func TestManager_ContextCancelledBySignal(t *testing.T) {
	m := New(time.Second, nil)
	m.signals = []os.Signal{syscall.SIGUSR1}

	ctx, stop := m.Context(context.Background())
	defer stop()

	if err := syscall.Kill(syscall.Getpid(), syscall.SIGUSR1); err != nil {
		t.Fatalf("Failed to signal self: %v", err)
	}

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Context was not cancelled after signal")
	}

	if !m.Interrupted() {
		t.Error("Expected Interrupted() to report the signal")
	}
}

func TestManager_StopDoesNotMarkInterrupted(t *testing.T) {
	m := New(time.Second, nil)

	ctx, stop := m.Context(context.Background())
	stop()
	<-ctx.Done()

	if m.Interrupted() {
		t.Error("Plain cancellation must not count as an interrupt")
	}
}
