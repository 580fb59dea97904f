package output

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/therealutkarshpriyadarshi/journalscope/pkg/types"
)

// Record is the published form of one extracted transaction
type Record struct {
	RunID       string                  `json:"run_id"`
	Transaction types.TransactionRecord `json:"transaction"`
	Flow        types.ScreenFlow        `json:"ui_flow,omitempty"`
	AnalyzedAt  time.Time               `json:"analyzed_at"`
}

// NewRecord builds the record for txn
func NewRecord(runID string, txn *types.Transaction, flow types.ScreenFlow, at time.Time) *Record {
	return &Record{
		RunID:       runID,
		Transaction: txn.Record(),
		Flow:        flow,
		AnalyzedAt:  at,
	}
}

// Key identifies the transaction across runs
func (r *Record) Key() string {
	return r.Transaction.SourceFile + "/" + r.Transaction.ID
}

// Size approximates the encoded size of the record for batching
func (r *Record) Size() int {
	n := len(r.Transaction.ID) + len(r.Transaction.Type) + len(r.Transaction.Log) + len(r.Transaction.SourceFile)
	for _, s := range r.Flow {
		n += len(s)
	}
	return n
}

func encode(r *Record) ([]byte, error) {
	return json.Marshal(r)
}

// Output defines the interface for all record sinks
type Output interface {
	// Send sends a single record to the output destination
	Send(ctx context.Context, record *Record) error

	// SendBatch sends a batch of records to the output destination
	SendBatch(ctx context.Context, records []*Record) error

	// Close flushes pending records and releases resources
	Close() error

	// Name returns the name of the output
	Name() string

	// Metrics returns a snapshot of the output's metrics
	Metrics() *OutputMetrics
}

// OutputMetrics tracks delivery metrics for an output
type OutputMetrics struct {
	RecordsSent   int64         `json:"records_sent"`
	RecordsFailed int64         `json:"records_failed"`
	BytesSent     int64         `json:"bytes_sent"`
	BatchesSent   int64         `json:"batches_sent"`
	RetryCount    int64         `json:"retry_count"`
	LastSendTime  time.Time     `json:"last_send_time"`
	LastError     string        `json:"last_error,omitempty"`
	LastErrorTime time.Time     `json:"last_error_time,omitempty"`
	AvgBatchSize  float64       `json:"avg_batch_size"`
	AvgLatency    time.Duration `json:"avg_latency"`
}

// metricsTracker guards an OutputMetrics shared by an output's send paths
type metricsTracker struct {
	mu sync.Mutex
	m  OutputMetrics
}

func (t *metricsTracker) sent(records int, bytes int64, latency time.Duration, batch bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.m.RecordsSent += int64(records)
	t.m.BytesSent += bytes
	t.m.LastSendTime = time.Now()
	if batch {
		t.m.BatchesSent++
		t.m.AvgBatchSize = float64(t.m.RecordsSent) / float64(t.m.BatchesSent)
	}
	if t.m.AvgLatency == 0 {
		t.m.AvgLatency = latency
	} else {
		t.m.AvgLatency = (t.m.AvgLatency + latency) / 2
	}
}

func (t *metricsTracker) failed(records int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.m.RecordsFailed += int64(records)
	if err != nil {
		t.m.LastError = err.Error()
		t.m.LastErrorTime = time.Now()
	}
}

func (t *metricsTracker) retried() {
	t.mu.Lock()
	t.m.RetryCount++
	t.mu.Unlock()
}

func (t *metricsTracker) snapshot() *OutputMetrics {
	t.mu.Lock()
	defer t.mu.Unlock()
	m := t.m
	return &m
}

// BaseConfig contains common configuration for all outputs
type BaseConfig struct {
	// Name is a unique identifier for this output instance
	Name string `yaml:"name,omitempty"`

	// BatchSize is the number of records to batch before sending
	BatchSize int `yaml:"batch_size,omitempty"`

	// Compression specifies the compression algorithm
	Compression CompressionType `yaml:"compression,omitempty"`

	// FlushInterval is how often to flush buffered records
	FlushInterval time.Duration `yaml:"flush_interval,omitempty"`
}

// DefaultBaseConfig returns a base config with sensible defaults
func DefaultBaseConfig() BaseConfig {
	return BaseConfig{
		BatchSize:     100,
		Compression:   CompressionNone,
		FlushInterval: 1 * time.Second,
	}
}
