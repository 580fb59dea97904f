package output

import (
	"context"
	"errors"
	"sync"
	"time"
)

// BatcherConfig configures the batching behavior
type BatcherConfig struct {
	MaxBatchSize  int
	MaxBatchBytes int
	FlushInterval time.Duration
}

// FlushFunc delivers one batch
type FlushFunc func(ctx context.Context, records []*Record) error

// Batcher accumulates records and flushes them in batches
type Batcher struct {
	config  BatcherConfig
	records []*Record
	size    int
	mu      sync.Mutex
	flushFn FlushFunc

	// errors from background flushes, returned by Stop
	errMu sync.Mutex
	errs  []error

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewBatcher creates a new batcher and starts its flush ticker
func NewBatcher(config BatcherConfig, flushFn FlushFunc) *Batcher {
	if config.MaxBatchSize <= 0 {
		config.MaxBatchSize = 100
	}
	if config.FlushInterval <= 0 {
		config.FlushInterval = time.Second
	}

	b := &Batcher{
		config:  config,
		records: make([]*Record, 0, config.MaxBatchSize),
		flushFn: flushFn,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}

	go b.flushLoop()

	return b
}

// Add adds a record, flushing when the batch is full
func (b *Batcher) Add(ctx context.Context, record *Record) error {
	b.mu.Lock()
	b.records = append(b.records, record)
	b.size += record.Size()
	full := len(b.records) >= b.config.MaxBatchSize ||
		(b.config.MaxBatchBytes > 0 && b.size >= b.config.MaxBatchBytes)
	var batch []*Record
	if full {
		batch = b.takeLocked()
	}
	b.mu.Unlock()

	if batch == nil {
		return nil
	}
	return b.flushFn(ctx, batch)
}

// Flush forces a flush of the current batch
func (b *Batcher) Flush(ctx context.Context) error {
	b.mu.Lock()
	batch := b.takeLocked()
	b.mu.Unlock()

	if batch == nil {
		return nil
	}
	return b.flushFn(ctx, batch)
}

// takeLocked detaches the pending batch (must be called with lock held)
func (b *Batcher) takeLocked() []*Record {
	if len(b.records) == 0 {
		return nil
	}
	batch := b.records
	b.records = make([]*Record, 0, b.config.MaxBatchSize)
	b.size = 0
	return batch
}

func (b *Batcher) background() {
	if err := b.Flush(context.Background()); err != nil {
		b.errMu.Lock()
		b.errs = append(b.errs, err)
		b.errMu.Unlock()
	}
}

// flushLoop periodically flushes the batch
func (b *Batcher) flushLoop() {
	ticker := time.NewTicker(b.config.FlushInterval)
	defer ticker.Stop()
	defer close(b.doneCh)

	for {
		select {
		case <-ticker.C:
			b.background()
		case <-b.stopCh:
			// Final flush on shutdown
			b.background()
			return
		}
	}
}

// Stop stops the batcher, flushes remaining records and returns any
// background flush errors.
func (b *Batcher) Stop() error {
	b.stopOnce.Do(func() { close(b.stopCh) })
	<-b.doneCh

	b.errMu.Lock()
	defer b.errMu.Unlock()
	return errors.Join(b.errs...)
}

// Size returns the current number of records in the batch
func (b *Batcher) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.records)
}
