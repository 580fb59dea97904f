package output

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"
)

// WriterOutput writes records as newline-delimited JSON to a stream
type WriterOutput struct {
	name    string
	mu      sync.Mutex
	w       *bufio.Writer
	closer  io.Closer
	metrics metricsTracker
	closed  atomic.Bool
}

// NewWriterOutput writes to w. Close flushes but does not close w.
func NewWriterOutput(name string, w io.Writer) *WriterOutput {
	return &WriterOutput{name: name, w: bufio.NewWriter(w)}
}

// NewStdoutOutput writes records to standard output
func NewStdoutOutput() *WriterOutput {
	return NewWriterOutput("stdout", os.Stdout)
}

// NewFileOutput appends records to the file at path, creating parent directories
func NewFileOutput(path string) (*WriterOutput, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open output file: %w", err)
	}
	out := NewWriterOutput("file", f)
	out.closer = f
	return out, nil
}

// Send writes one record
func (o *WriterOutput) Send(ctx context.Context, record *Record) error {
	return o.SendBatch(ctx, []*Record{record})
}

// SendBatch writes records and flushes the stream
func (o *WriterOutput) SendBatch(ctx context.Context, records []*Record) error {
	if o.closed.Load() {
		return fmt.Errorf("%s output is closed", o.name)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	start := time.Now()
	o.mu.Lock()
	defer o.mu.Unlock()

	var written int64
	for _, r := range records {
		data, err := encode(r)
		if err != nil {
			o.metrics.failed(1, err)
			return fmt.Errorf("failed to marshal record: %w", err)
		}
		data = append(data, '\n')
		if _, err := o.w.Write(data); err != nil {
			o.metrics.failed(len(records), err)
			return fmt.Errorf("failed to write record: %w", err)
		}
		written += int64(len(data))
	}
	if err := o.w.Flush(); err != nil {
		o.metrics.failed(len(records), err)
		return fmt.Errorf("failed to flush output: %w", err)
	}

	o.metrics.sent(len(records), written, time.Since(start), len(records) > 1)
	return nil
}

// Close flushes buffered output and closes an owned file
func (o *WriterOutput) Close() error {
	if !o.closed.CompareAndSwap(false, true) {
		return nil
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.w.Flush(); err != nil {
		return fmt.Errorf("failed to flush output: %w", err)
	}
	if o.closer != nil {
		return o.closer.Close()
	}
	return nil
}

// Name returns the output name
func (o *WriterOutput) Name() string {
	return o.name
}

// Metrics returns the current metrics
func (o *WriterOutput) Metrics() *OutputMetrics {
	return o.metrics.snapshot()
}
