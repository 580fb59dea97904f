package output

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Failure strategies for a Router
const (
	// FailureContinue delivers to every output and fails only when all outputs fail
	FailureContinue = "continue"
	// FailureStop fails as soon as any output fails
	FailureStop = "stop"
)

// RouterConfig contains configuration for the multi-output router
type RouterConfig struct {
	// FailureStrategy defines how to handle output failures (continue, stop)
	FailureStrategy string `yaml:"failure_strategy,omitempty"`

	// Parallel enables parallel sending to all outputs
	Parallel bool `yaml:"parallel,omitempty"`
}

// DefaultRouterConfig returns default router configuration
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		FailureStrategy: FailureContinue,
		Parallel:        true,
	}
}

// Router fans records out to multiple outputs
type Router struct {
	config  RouterConfig
	outputs []Output
	mu      sync.RWMutex
	closed  atomic.Bool
}

// NewRouter creates a router over outputs
func NewRouter(config RouterConfig, outputs ...Output) (*Router, error) {
	if config.FailureStrategy == "" {
		config.FailureStrategy = FailureContinue
	}
	if config.FailureStrategy != FailureContinue && config.FailureStrategy != FailureStop {
		return nil, fmt.Errorf("unknown failure strategy: %s", config.FailureStrategy)
	}
	return &Router{config: config, outputs: outputs}, nil
}

// AddOutput adds an output to the router
func (r *Router) AddOutput(output Output) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outputs = append(r.outputs, output)
}

// Send sends a record to all configured outputs
func (r *Router) Send(ctx context.Context, record *Record) error {
	return r.dispatch(func(out Output) error { return out.Send(ctx, record) })
}

// SendBatch sends a batch of records to all configured outputs
func (r *Router) SendBatch(ctx context.Context, records []*Record) error {
	return r.dispatch(func(out Output) error { return out.SendBatch(ctx, records) })
}

func (r *Router) dispatch(send func(Output) error) error {
	if r.closed.Load() {
		return fmt.Errorf("router is closed")
	}

	outputs := r.GetOutputs()
	if len(outputs) == 0 {
		return fmt.Errorf("no outputs available")
	}

	var errs []error
	if r.config.Parallel {
		errs = r.sendParallel(outputs, send)
	} else {
		errs = r.sendSequential(outputs, send)
	}

	if len(errs) == 0 {
		return nil
	}
	if r.config.FailureStrategy == FailureStop || len(errs) == len(outputs) {
		return fmt.Errorf("failed to send to %d of %d outputs: %w", len(errs), len(outputs), errors.Join(errs...))
	}
	return nil
}

func (r *Router) sendParallel(outputs []Output, send func(Output) error) []error {
	var wg sync.WaitGroup
	errCh := make(chan error, len(outputs))

	for _, output := range outputs {
		wg.Add(1)
		go func(out Output) {
			defer wg.Done()
			if err := send(out); err != nil {
				errCh <- fmt.Errorf("%s: %w", out.Name(), err)
			}
		}(output)
	}

	wg.Wait()
	close(errCh)

	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	return errs
}

func (r *Router) sendSequential(outputs []Output, send func(Output) error) []error {
	var errs []error
	for _, output := range outputs {
		if err := send(output); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", output.Name(), err))
			if r.config.FailureStrategy == FailureStop {
				break
			}
		}
	}
	return errs
}

// Close closes all outputs
func (r *Router) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil // Already closed
	}

	var errs []error
	for _, output := range r.GetOutputs() {
		if err := output.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", output.Name(), err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("failed to close %d outputs: %w", len(errs), errors.Join(errs...))
	}

	return nil
}

// Name returns the router name
func (r *Router) Name() string {
	return "router"
}

// Metrics returns the aggregate metrics across all outputs
func (r *Router) Metrics() *OutputMetrics {
	outputs := r.GetOutputs()

	agg := &OutputMetrics{}
	var totalLatency time.Duration
	var totalBatchSize float64

	for _, output := range outputs {
		m := output.Metrics()
		agg.RecordsSent += m.RecordsSent
		agg.RecordsFailed += m.RecordsFailed
		agg.BytesSent += m.BytesSent
		agg.BatchesSent += m.BatchesSent
		agg.RetryCount += m.RetryCount
		totalLatency += m.AvgLatency
		totalBatchSize += m.AvgBatchSize

		if m.LastSendTime.After(agg.LastSendTime) {
			agg.LastSendTime = m.LastSendTime
		}
		if m.LastErrorTime.After(agg.LastErrorTime) {
			agg.LastErrorTime = m.LastErrorTime
			agg.LastError = m.LastError
		}
	}

	if n := len(outputs); n > 0 {
		agg.AvgLatency = totalLatency / time.Duration(n)
		agg.AvgBatchSize = totalBatchSize / float64(n)
	}
	return agg
}

// GetOutputs returns all configured outputs
func (r *Router) GetOutputs() []Output {
	r.mu.RLock()
	defer r.mu.RUnlock()

	outputs := make([]Output, len(r.outputs))
	copy(outputs, r.outputs)
	return outputs
}
