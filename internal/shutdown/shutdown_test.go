package shutdown

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/therealutkarshpriyadarshi/journalscope/internal/logging"
)

func newManager(timeout time.Duration) *Manager {
	return New(Config{Timeout: timeout, Logger: logging.Nop()})
}

func TestShutdownReverseOrder(t *testing.T) {
	m := newManager(time.Second)

	var mu sync.Mutex
	var order []string
	for _, name := range []string{"output", "server", "watcher"} {
		name := name
		m.RegisterFunc(name, func(context.Context) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		})
	}

	if err := m.Shutdown(); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	want := []string{"watcher", "server", "output"}
	if strings.Join(order, ",") != strings.Join(want, ",") {
		t.Errorf("order = %v, want %v", order, want)
	}
	if m.Context().Err() == nil {
		t.Error("expected context canceled after shutdown")
	}
	select {
	case <-m.Done():
	default:
		t.Error("expected Done closed")
	}
}

func TestShutdownOnce(t *testing.T) {
	m := newManager(time.Second)
	calls := 0
	m.RegisterFunc("ledger", func(context.Context) error {
		calls++
		return nil
	})

	m.Shutdown()
	m.Shutdown()
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestShutdownErrors(t *testing.T) {
	m := newManager(time.Second)
	flushErr := errors.New("flush failed")
	ran := false

	m.RegisterFunc("after", func(context.Context) error {
		ran = true
		return nil
	})
	m.RegisterFunc("output", func(context.Context) error { return flushErr })

	err := m.Shutdown()
	if !errors.Is(err, flushErr) {
		t.Errorf("Shutdown() error = %v, want %v", err, flushErr)
	}
	if !ran {
		t.Error("later steps should still run after a failure")
	}
}

func TestShutdownTimeoutSkipsRemaining(t *testing.T) {
	m := newManager(20 * time.Millisecond)
	skipped := true

	m.RegisterFunc("fast", func(context.Context) error {
		skipped = false
		return nil
	})
	m.RegisterFunc("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	err := m.Shutdown()
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Shutdown() error = %v, want deadline exceeded", err)
	}
	if !skipped {
		t.Error("expected step after timeout to be skipped")
	}
}

type mockComponent struct {
	stopped bool
}

func (c *mockComponent) Name() string { return "mock" }

func (c *mockComponent) Stop(context.Context) error {
	c.stopped = true
	return nil
}

func TestRegisterComponentAndWait(t *testing.T) {
	m := newManager(time.Second)
	c := &mockComponent{}
	m.RegisterComponent(c)

	result := make(chan error, 1)
	go func() { result <- m.WaitForSignal() }()

	// Shutdown from elsewhere releases the waiter
	go m.Shutdown()

	select {
	case err := <-result:
		if err != nil {
			t.Errorf("WaitForSignal() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("WaitForSignal did not return")
	}
	if !c.stopped {
		t.Error("component was not stopped")
	}
}
