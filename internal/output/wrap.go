package output

import (
	"context"
	"time"

	"github.com/therealutkarshpriyadarshi/journalscope/internal/metrics"
	"github.com/therealutkarshpriyadarshi/journalscope/internal/reliability"
)

// RetryingOutput retries failed sends of the wrapped output with backoff
type RetryingOutput struct {
	Output
	config  reliability.RetryConfig
	retries metricsTracker
}

// WithRetry wraps out so every send is retried according to config
func WithRetry(out Output, config reliability.RetryConfig) *RetryingOutput {
	r := &RetryingOutput{Output: out}
	onRetry := config.OnRetry
	config.OnRetry = func(attempt int, err error) {
		r.retries.retried()
		if onRetry != nil {
			onRetry(attempt, err)
		}
	}
	r.config = config
	return r
}

// Send retries a single record
func (r *RetryingOutput) Send(ctx context.Context, record *Record) error {
	return reliability.Retry(ctx, r.config, func(ctx context.Context) error {
		return r.Output.Send(ctx, record)
	})
}

// SendBatch retries a batch
func (r *RetryingOutput) SendBatch(ctx context.Context, records []*Record) error {
	return reliability.Retry(ctx, r.config, func(ctx context.Context) error {
		return r.Output.SendBatch(ctx, records)
	})
}

// Metrics reports the wrapped output's metrics with the retry count added
func (r *RetryingOutput) Metrics() *OutputMetrics {
	m := r.Output.Metrics()
	m.RetryCount += r.retries.snapshot().RetryCount
	return m
}

// InstrumentedOutput mirrors sends of the wrapped output into Prometheus
type InstrumentedOutput struct {
	Output
	collector  *metrics.Collector
	outputType string
}

// Instrument wraps out so its sends are recorded under outputType
func Instrument(out Output, collector *metrics.Collector, outputType string) *InstrumentedOutput {
	return &InstrumentedOutput{Output: out, collector: collector, outputType: outputType}
}

// Send records a single send
func (o *InstrumentedOutput) Send(ctx context.Context, record *Record) error {
	start := time.Now()
	err := o.Output.Send(ctx, record)
	o.observe(1, record.Size(), time.Since(start), err)
	return err
}

// SendBatch records a batch send
func (o *InstrumentedOutput) SendBatch(ctx context.Context, records []*Record) error {
	start := time.Now()
	err := o.Output.SendBatch(ctx, records)
	size := 0
	for _, r := range records {
		size += r.Size()
	}
	o.observe(len(records), size, time.Since(start), err)
	return err
}

func (o *InstrumentedOutput) observe(n, size int, took time.Duration, err error) {
	name := o.Name()
	o.collector.OutputDuration.WithLabelValues(name, o.outputType).Observe(took.Seconds())
	o.collector.OutputBatchSize.WithLabelValues(name, o.outputType).Observe(float64(n))
	if err != nil {
		o.collector.OutputEventsFailed.WithLabelValues(name, o.outputType).Add(float64(n))
		return
	}
	o.collector.OutputEventsSent.WithLabelValues(name, o.outputType).Add(float64(n))
	o.collector.OutputBytesSent.WithLabelValues(name, o.outputType).Add(float64(size))
}
