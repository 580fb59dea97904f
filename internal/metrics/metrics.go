package metrics

import (
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all metrics
const namespace = "journalscope"

// Collector provides a central place for all application metrics
type Collector struct {
	// Classification metrics
	FilesClassified  *prometheus.CounterVec
	FilesFailed      *prometheus.CounterVec
	FilesRouted      *prometheus.CounterVec
	ClassifyDuration prometheus.Histogram

	// Extraction metrics
	TransactionsExtracted *prometheus.CounterVec
	TransactionsDropped   prometheus.Counter
	EndsUnresolved        prometheus.Counter
	TransactionDuration   prometheus.Histogram

	// UI journal metrics
	UIEventsParsed prometheus.Counter
	UILinesSkipped *prometheus.CounterVec

	// Flow metrics
	FlowLength prometheus.Histogram
	FlowsEmpty prometheus.Counter
	Alignments prometheus.Counter

	// Output metrics
	OutputEventsSent   *prometheus.CounterVec
	OutputEventsFailed *prometheus.CounterVec
	OutputBytesSent    *prometheus.CounterVec
	OutputDuration     *prometheus.HistogramVec
	OutputBatchSize    *prometheus.HistogramVec

	// Worker pool metrics
	WorkerPoolSize    *prometheus.GaugeVec
	WorkerPoolJobs    *prometheus.CounterVec
	WorkerJobDuration *prometheus.HistogramVec

	// Run metrics
	RunsTotal   *prometheus.CounterVec
	RunDuration prometheus.Histogram
	WatchEvents *prometheus.CounterVec
	LedgerSkips prometheus.Counter

	// System metrics
	SystemGoroutines prometheus.Gauge
	SystemMemAlloc   prometheus.Gauge
	SystemMemSys     prometheus.Gauge

	// Health metrics
	HealthStatus *prometheus.GaugeVec

	registry *prometheus.Registry
	mu       sync.Mutex
	started  bool
	stop     chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
	}

	c.initClassifierMetrics()
	c.initExtractionMetrics()
	c.initUIMetrics()
	c.initFlowMetrics()
	c.initOutputMetrics()
	c.initWorkerPoolMetrics()
	c.initRunMetrics()
	c.initSystemMetrics()
	c.initHealthMetrics()

	return c
}

func (c *Collector) initClassifierMetrics() {
	c.FilesClassified = promauto.With(c.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "classifier",
			Name:      "files_total",
			Help:      "Total number of files classified by family label",
		},
		[]string{"label"},
	)

	c.FilesFailed = promauto.With(c.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "classifier",
			Name:      "files_failed_total",
			Help:      "Total number of files that could not be classified",
		},
		[]string{"reason"},
	)

	c.FilesRouted = promauto.With(c.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "files_total",
			Help:      "Total number of files routed into each category",
		},
		[]string{"category"},
	)

	c.ClassifyDuration = promauto.With(c.registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "classifier",
			Name:      "duration_seconds",
			Help:      "Time taken to classify a file",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 15), // 100µs to ~3s
		},
	)
}

func (c *Collector) initExtractionMetrics() {
	c.TransactionsExtracted = promauto.With(c.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "extractor",
			Name:      "transactions_total",
			Help:      "Total number of transactions extracted by end state",
		},
		[]string{"end_state"},
	)

	c.TransactionsDropped = promauto.With(c.registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "extractor",
			Name:      "segments_dropped_total",
			Help:      "Total number of unterminated segments dropped",
		},
	)

	c.EndsUnresolved = promauto.With(c.registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "extractor",
			Name:      "ends_unresolved_total",
			Help:      "Total number of closed segments whose end time could not be read",
		},
	)

	c.TransactionDuration = promauto.With(c.registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "extractor",
			Name:      "transaction_duration_seconds",
			Help:      "Duration of extracted transactions",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~34m
		},
	)
}

func (c *Collector) initUIMetrics() {
	c.UIEventsParsed = promauto.With(c.registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ui",
			Name:      "events_total",
			Help:      "Total number of UI events parsed",
		},
	)

	c.UILinesSkipped = promauto.With(c.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ui",
			Name:      "lines_skipped_total",
			Help:      "Total number of UI journal lines skipped",
		},
		[]string{"reason"},
	)
}

func (c *Collector) initFlowMetrics() {
	c.FlowLength = promauto.With(c.registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "flow",
			Name:      "screens",
			Help:      "Number of screens in correlated flows",
			Buckets:   prometheus.LinearBuckets(1, 2, 12),
		},
	)

	c.FlowsEmpty = promauto.With(c.registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "flow",
			Name:      "empty_total",
			Help:      "Total number of transactions with no UI events in their window",
		},
	)

	c.Alignments = promauto.With(c.registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "flow",
			Name:      "alignments_total",
			Help:      "Total number of flow alignments computed",
		},
	)
}

func (c *Collector) initOutputMetrics() {
	c.OutputEventsSent = promauto.With(c.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "output",
			Name:      "records_sent_total",
			Help:      "Total number of records successfully sent to output",
		},
		[]string{"output_name", "output_type"},
	)

	c.OutputEventsFailed = promauto.With(c.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "output",
			Name:      "records_failed_total",
			Help:      "Total number of records that failed to send",
		},
		[]string{"output_name", "output_type"},
	)

	c.OutputBytesSent = promauto.With(c.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "output",
			Name:      "bytes_sent_total",
			Help:      "Total bytes sent to output",
		},
		[]string{"output_name", "output_type"},
	)

	c.OutputDuration = promauto.With(c.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "output",
			Name:      "duration_seconds",
			Help:      "Time taken to send records to output",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"output_name", "output_type"},
	)

	c.OutputBatchSize = promauto.With(c.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "output",
			Name:      "batch_size",
			Help:      "Number of records in each batch sent to output",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12), // 1 to 4096
		},
		[]string{"output_name", "output_type"},
	)
}

func (c *Collector) initWorkerPoolMetrics() {
	c.WorkerPoolSize = promauto.With(c.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "worker_pool",
			Name:      "workers_total",
			Help:      "Current number of workers in the pool",
		},
		[]string{"pool_name"},
	)

	c.WorkerPoolJobs = promauto.With(c.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker_pool",
			Name:      "jobs_total",
			Help:      "Total number of jobs processed",
		},
		[]string{"pool_name", "status"},
	)

	c.WorkerJobDuration = promauto.With(c.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker_pool",
			Name:      "job_duration_seconds",
			Help:      "Time taken to process a job",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"pool_name"},
	)
}

func (c *Collector) initRunMetrics() {
	c.RunsTotal = promauto.With(c.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Total number of analysis runs",
		},
		[]string{"status"},
	)

	c.RunDuration = promauto.With(c.registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "run_duration_seconds",
			Help:      "Time taken by a full analysis run",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~80s
		},
	)

	c.WatchEvents = promauto.With(c.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "watch",
			Name:      "events_total",
			Help:      "Total number of file system events seen by the watcher",
		},
		[]string{"op"},
	)

	c.LedgerSkips = promauto.With(c.registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "watch",
			Name:      "ledger_skips_total",
			Help:      "Total number of files skipped because the ledger already holds them",
		},
	)
}

func (c *Collector) initSystemMetrics() {
	c.SystemGoroutines = promauto.With(c.registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "system",
			Name:      "goroutines_total",
			Help:      "Current number of goroutines",
		},
	)

	c.SystemMemAlloc = promauto.With(c.registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "system",
			Name:      "memory_allocated_bytes",
			Help:      "Bytes of allocated heap objects",
		},
	)

	c.SystemMemSys = promauto.With(c.registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "system",
			Name:      "memory_system_bytes",
			Help:      "Total bytes of memory obtained from the OS",
		},
	)
}

func (c *Collector) initHealthMetrics() {
	c.HealthStatus = promauto.With(c.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "status",
			Help:      "Health status of components (1=healthy, 0=unhealthy)",
		},
		[]string{"component"},
	)
}

// ObserveClassification records one classifier outcome. An empty label with
// a reason counts as a failure.
func (c *Collector) ObserveClassification(label, category, failure string, took time.Duration) {
	c.ClassifyDuration.Observe(took.Seconds())
	if failure != "" {
		c.FilesFailed.WithLabelValues(failure).Inc()
		return
	}
	c.FilesClassified.WithLabelValues(label).Inc()
	if category != "" {
		c.FilesRouted.WithLabelValues(category).Inc()
	}
}

// ObserveExtraction records the outcome of extracting one journal
func (c *Collector) ObserveExtraction(endStates []string, durations []time.Duration, dropped, unresolved int) {
	for _, s := range endStates {
		c.TransactionsExtracted.WithLabelValues(s).Inc()
	}
	for _, d := range durations {
		c.TransactionDuration.Observe(d.Seconds())
	}
	c.TransactionsDropped.Add(float64(dropped))
	c.EndsUnresolved.Add(float64(unresolved))
}

// ObserveUIJournal records the per-line outcomes of one UI journal
func (c *Collector) ObserveUIJournal(events, unmatched, filtered, duplicates, malformed int) {
	c.UIEventsParsed.Add(float64(events))
	c.UILinesSkipped.WithLabelValues("unmatched").Add(float64(unmatched))
	c.UILinesSkipped.WithLabelValues("filtered").Add(float64(filtered))
	c.UILinesSkipped.WithLabelValues("duplicate").Add(float64(duplicates))
	c.UILinesSkipped.WithLabelValues("malformed").Add(float64(malformed))
}

// ObserveFlow records the length of one correlated flow, zero meaning no data
func (c *Collector) ObserveFlow(screens int) {
	if screens == 0 {
		c.FlowsEmpty.Inc()
		return
	}
	c.FlowLength.Observe(float64(screens))
}

// Start begins collecting system metrics periodically
func (c *Collector) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return
	}

	c.started = true
	c.stop = make(chan struct{})
	stop := c.stop

	// Collect system metrics every 15 seconds
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				c.collectSystemMetrics()
			case <-stop:
				return
			}
		}
	}()
}

// Stop stops the metrics collector
func (c *Collector) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started {
		return
	}
	close(c.stop)
	c.started = false
}

// collectSystemMetrics gathers runtime metrics
func (c *Collector) collectSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	c.SystemGoroutines.Set(float64(runtime.NumGoroutine()))
	c.SystemMemAlloc.Set(float64(m.Alloc))
	c.SystemMemSys.Set(float64(m.Sys))
}

// Registry returns the Prometheus registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Global metrics collector
var (
	globalCollector *Collector
	once            sync.Once
)

// GetGlobalCollector returns the global metrics collector
func GetGlobalCollector() *Collector {
	once.Do(func() {
		globalCollector = NewCollector()
		globalCollector.Start()
	})
	return globalCollector
}
