package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/therealutkarshpriyadarshi/journalscope/pkg/types"
)

var (
	ErrPoolClosed = errors.New("worker pool is closed")
	ErrQueueFull  = errors.New("job queue full")
	ErrJobTimeout = errors.New("job execution timeout")
)

// JobFunc processes one discovered file
type JobFunc func(ctx context.Context, file *types.LogFile) error

// PoolConfig holds configuration for the worker pool
type PoolConfig struct {
	NumWorkers int
	QueueSize  int
	JobTimeout time.Duration
}

// WorkerPool runs file jobs on a fixed set of workers
type WorkerPool struct {
	config   PoolConfig
	workers  []*worker
	jobQueue chan *job
	jobFunc  JobFunc

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	// Metrics
	jobsProcessed uint64
	jobsFailed    uint64
	jobsTimeout   uint64
	workersActive uint64
}

type worker struct {
	id   int
	pool *WorkerPool

	jobsProcessed uint64
	jobsFailed    uint64
	lastActive    time.Time
	mu            sync.RWMutex
}

type job struct {
	file     *types.LogFile
	ctx      context.Context
	resultCh chan error
}

// NewWorkerPool creates a new worker pool
func NewWorkerPool(config PoolConfig, jobFunc JobFunc) (*WorkerPool, error) {
	if jobFunc == nil {
		return nil, errors.New("job function is nil")
	}
	if config.NumWorkers <= 0 {
		config.NumWorkers = 4
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 256
	}
	if config.JobTimeout == 0 {
		config.JobTimeout = 30 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	pool := &WorkerPool{
		config:   config,
		workers:  make([]*worker, config.NumWorkers),
		jobQueue: make(chan *job, config.QueueSize),
		jobFunc:  jobFunc,
		ctx:      ctx,
		cancel:   cancel,
	}
	for i := range pool.workers {
		pool.workers[i] = &worker{id: i, pool: pool}
	}

	return pool, nil
}

// Start starts all workers in the pool
func (p *WorkerPool) Start() {
	for _, w := range p.workers {
		p.wg.Add(1)
		go w.run()
	}
}

// Submit queues a file and waits for its job to finish
func (p *WorkerPool) Submit(ctx context.Context, file *types.LogFile) error {
	j := &job{file: file, ctx: ctx, resultCh: make(chan error, 1)}
	if err := p.enqueue(ctx, j, true); err != nil {
		return err
	}

	select {
	case err := <-j.resultCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SubmitAsync queues a file without waiting. It fails when the queue is full.
func (p *WorkerPool) SubmitAsync(file *types.LogFile) error {
	j := &job{file: file, ctx: p.ctx, resultCh: make(chan error, 1)}
	return p.enqueue(p.ctx, j, false)
}

func (p *WorkerPool) enqueue(ctx context.Context, j *job, block bool) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}

	if !block {
		select {
		case p.jobQueue <- j:
			return nil
		default:
			return ErrQueueFull
		}
	}

	select {
	case p.jobQueue <- j:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ctx.Done():
		return ErrPoolClosed
	}
}

// Run submits every file and waits for all of them. The returned slice holds
// each file's error at the file's index.
func (p *WorkerPool) Run(ctx context.Context, files []*types.LogFile) []error {
	errs := make([]error, len(files))
	var wg sync.WaitGroup
	for i, f := range files {
		wg.Add(1)
		go func(i int, f *types.LogFile) {
			defer wg.Done()
			errs[i] = p.Submit(ctx, f)
		}(i, f)
	}
	wg.Wait()
	return errs
}

// Stop drains queued jobs and stops the workers
func (p *WorkerPool) Stop() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.jobQueue)
	p.mu.Unlock()

	p.wg.Wait()
	p.cancel()
	return nil
}

// Metrics returns worker pool statistics
func (p *WorkerPool) Metrics() PoolMetrics {
	workerMetrics := make([]WorkerMetrics, len(p.workers))
	for i, w := range p.workers {
		workerMetrics[i] = w.metrics()
	}

	return PoolMetrics{
		NumWorkers:    len(p.workers),
		JobsProcessed: atomic.LoadUint64(&p.jobsProcessed),
		JobsFailed:    atomic.LoadUint64(&p.jobsFailed),
		JobsTimeout:   atomic.LoadUint64(&p.jobsTimeout),
		WorkersActive: atomic.LoadUint64(&p.workersActive),
		QueueSize:     len(p.jobQueue),
		QueueCapacity: cap(p.jobQueue),
		WorkerMetrics: workerMetrics,
	}
}

func (w *worker) run() {
	defer w.pool.wg.Done()
	for j := range w.pool.jobQueue {
		w.process(j)
	}
}

func (w *worker) process(j *job) {
	atomic.AddUint64(&w.pool.workersActive, 1)
	defer atomic.AddUint64(&w.pool.workersActive, ^uint64(0))

	w.mu.Lock()
	w.lastActive = time.Now()
	w.mu.Unlock()

	ctx, cancel := context.WithTimeout(j.ctx, w.pool.config.JobTimeout)
	defer cancel()

	err := w.pool.jobFunc(ctx, j.file)
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == context.DeadlineExceeded {
		atomic.AddUint64(&w.pool.jobsTimeout, 1)
		err = ErrJobTimeout
	}

	atomic.AddUint64(&w.jobsProcessed, 1)
	atomic.AddUint64(&w.pool.jobsProcessed, 1)
	if err != nil {
		atomic.AddUint64(&w.jobsFailed, 1)
		atomic.AddUint64(&w.pool.jobsFailed, 1)
	}

	j.resultCh <- err
}

func (w *worker) metrics() WorkerMetrics {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return WorkerMetrics{
		ID:            w.id,
		JobsProcessed: atomic.LoadUint64(&w.jobsProcessed),
		JobsFailed:    atomic.LoadUint64(&w.jobsFailed),
		LastActive:    w.lastActive,
	}
}

// PoolMetrics holds worker pool statistics
type PoolMetrics struct {
	NumWorkers    int
	JobsProcessed uint64
	JobsFailed    uint64
	JobsTimeout   uint64
	WorkersActive uint64
	QueueSize     int
	QueueCapacity int
	WorkerMetrics []WorkerMetrics
}

// WorkerMetrics holds individual worker statistics
type WorkerMetrics struct {
	ID            int
	JobsProcessed uint64
	JobsFailed    uint64
	LastActive    time.Time
}

// Utilization returns the queue utilization percentage (0-100)
func (m PoolMetrics) Utilization() float64 {
	if m.QueueCapacity == 0 {
		return 0
	}
	return (float64(m.QueueSize) / float64(m.QueueCapacity)) * 100.0
}

// SuccessRate returns the job success rate percentage (0-100)
func (m PoolMetrics) SuccessRate() float64 {
	total := m.JobsProcessed
	if total == 0 {
		return 100.0
	}
	successful := total - m.JobsFailed
	return (float64(successful) / float64(total)) * 100.0
}
