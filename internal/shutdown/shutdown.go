package shutdown

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/therealutkarshpriyadarshi/journalscope/internal/logging"
)

// Func performs cleanup during shutdown
type Func func(context.Context) error

// Component can be gracefully stopped
type Component interface {
	Stop(context.Context) error
	Name() string
}

type step struct {
	name string
	fn   Func
}

// Manager stops registered components in reverse registration order once a
// signal arrives or Shutdown is called. Producers registered after their
// sinks are therefore stopped before the sinks are closed.
type Manager struct {
	logger  *logging.Logger
	timeout time.Duration

	mu    sync.Mutex
	steps []step

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
	done   chan struct{}
	err    error
}

// Config holds shutdown manager configuration
type Config struct {
	Timeout time.Duration
	Logger  *logging.Logger
}

// New creates a new shutdown manager
func New(cfg Config) *Manager {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		logger:  cfg.Logger.WithComponent("shutdown"),
		timeout: cfg.Timeout,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

// Context is canceled as soon as shutdown begins
func (m *Manager) Context() context.Context {
	return m.ctx
}

// RegisterFunc registers a named shutdown step
func (m *Manager) RegisterFunc(name string, fn Func) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.logger.Debug().Str("step", name).Msg("Registered shutdown step")
	m.steps = append(m.steps, step{name: name, fn: fn})
}

// RegisterComponent registers a component for graceful shutdown
func (m *Manager) RegisterComponent(c Component) {
	m.RegisterFunc(c.Name(), c.Stop)
}

// WaitForSignal blocks until a shutdown signal arrives or shutdown starts
// elsewhere, then waits for it to finish
func (m *Manager) WaitForSignal(signals ...os.Signal) error {
	if len(signals) == 0 {
		signals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, signals...)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		m.logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
		return m.Shutdown()
	case <-m.ctx.Done():
		<-m.done
		return m.err
	}
}

// Shutdown runs every step once, newest first, within the timeout
func (m *Manager) Shutdown() error {
	m.once.Do(func() {
		m.cancel()
		m.err = m.run()
		close(m.done)
	})
	<-m.done
	return m.err
}

func (m *Manager) run() error {
	m.mu.Lock()
	steps := make([]step, len(m.steps))
	copy(steps, m.steps)
	m.mu.Unlock()

	m.logger.Info().
		Dur("timeout", m.timeout).
		Int("steps", len(steps)).
		Msg("Starting graceful shutdown")

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	var errs []error
	for i := len(steps) - 1; i >= 0; i-- {
		s := steps[i]
		if ctx.Err() != nil {
			errs = append(errs, fmt.Errorf("%s: skipped: %w", s.name, ctx.Err()))
			continue
		}
		if err := s.fn(ctx); err != nil {
			m.logger.Error().Err(err).Str("step", s.name).Msg("Shutdown step failed")
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
			continue
		}
		m.logger.Debug().Str("step", s.name).Msg("Shutdown step completed")
	}

	if len(errs) > 0 {
		m.logger.Warn().Int("errors", len(errs)).Msg("Graceful shutdown completed with errors")
		return errors.Join(errs...)
	}
	m.logger.Info().Msg("Graceful shutdown completed")
	return nil
}

// Done is closed when shutdown has finished
func (m *Manager) Done() <-chan struct{} {
	return m.done
}
