package output

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/elastic/go-elasticsearch/v8"

	"github.com/therealutkarshpriyadarshi/journalscope/internal/pool"
)

// ElasticsearchConfig contains Elasticsearch-specific configuration
type ElasticsearchConfig struct {
	BaseConfig `yaml:",inline"`

	// Addresses is the list of Elasticsearch node URLs
	Addresses []string `yaml:"addresses"`

	// Index is the index name or a pattern with %{+YYYY.MM.dd} style dates
	Index string `yaml:"index"`

	// IndexRotation appends a date suffix (daily, weekly, monthly, yearly, none)
	IndexRotation string `yaml:"index_rotation,omitempty"`

	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	CloudID  string `yaml:"cloud_id,omitempty"`
	APIKey   string `yaml:"api_key,omitempty"`

	// MaxRetries for failed requests, handled by the client transport
	MaxRetries int `yaml:"max_retries,omitempty"`

	// Transport overrides the HTTP transport; nil uses the client default
	Transport http.RoundTripper `yaml:"-"`
}

// DefaultElasticsearchConfig returns default Elasticsearch configuration
func DefaultElasticsearchConfig() ElasticsearchConfig {
	return ElasticsearchConfig{
		BaseConfig:    DefaultBaseConfig(),
		Addresses:     []string{"http://localhost:9200"},
		Index:         "journalscope-transactions",
		IndexRotation: "daily",
		MaxRetries:    3,
	}
}

// ElasticsearchOutput indexes records with the bulk API. Records use their
// Key as document id so a re-analyzed bundle overwrites its earlier documents.
type ElasticsearchOutput struct {
	config  ElasticsearchConfig
	client  *elasticsearch.Client
	batcher *Batcher
	metrics metricsTracker
	closed  atomic.Bool
}

// NewElasticsearchOutput creates a new Elasticsearch output and checks the cluster is reachable
func NewElasticsearchOutput(config ElasticsearchConfig) (*ElasticsearchOutput, error) {
	if len(config.Addresses) == 0 && config.CloudID == "" {
		return nil, fmt.Errorf("no addresses or cloud ID specified")
	}

	if config.Index == "" {
		return nil, fmt.Errorf("no index specified")
	}

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:  config.Addresses,
		CloudID:    config.CloudID,
		Username:   config.Username,
		Password:   config.Password,
		APIKey:     config.APIKey,
		MaxRetries: config.MaxRetries,
		Transport:  config.Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Elasticsearch client: %w", err)
	}

	res, err := client.Info()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch returned error: %s", res.Status())
	}

	output := &ElasticsearchOutput{
		config: config,
		client: client,
	}

	if config.BatchSize > 1 {
		output.batcher = NewBatcher(BatcherConfig{
			MaxBatchSize:  config.BatchSize,
			MaxBatchBytes: 10 * 1024 * 1024, // 10MB default bulk size
			FlushInterval: config.FlushInterval,
		}, output.sendBatchInternal)
	}

	return output, nil
}

// Send queues or indexes a single record
func (e *ElasticsearchOutput) Send(ctx context.Context, record *Record) error {
	if e.closed.Load() {
		return fmt.Errorf("elasticsearch output is closed")
	}

	if e.batcher != nil {
		return e.batcher.Add(ctx, record)
	}

	return e.sendBatchInternal(ctx, []*Record{record})
}

// SendBatch indexes a batch of records
func (e *ElasticsearchOutput) SendBatch(ctx context.Context, records []*Record) error {
	if e.closed.Load() {
		return fmt.Errorf("elasticsearch output is closed")
	}

	return e.sendBatchInternal(ctx, records)
}

type bulkAction struct {
	Index bulkMeta `json:"index"`
}

type bulkMeta struct {
	Index string `json:"_index"`
	ID    string `json:"_id"`
}

func (e *ElasticsearchOutput) sendBatchInternal(ctx context.Context, records []*Record) error {
	if len(records) == 0 {
		return nil
	}

	startTime := time.Now()

	buf := pool.GetBuffer()
	defer pool.PutBuffer(buf)
	var totalBytes int64
	encoded := 0

	for _, record := range records {
		metaJSON, err := json.Marshal(bulkAction{Index: bulkMeta{Index: e.indexName(record), ID: record.Key()}})
		if err != nil {
			e.metrics.failed(1, err)
			continue
		}

		docJSON, err := encode(record)
		if err != nil {
			e.metrics.failed(1, err)
			continue
		}

		buf.Write(metaJSON)
		buf.WriteByte('\n')
		buf.Write(docJSON)
		buf.WriteByte('\n')

		totalBytes += int64(len(docJSON))
		encoded++
	}
	if encoded == 0 {
		return fmt.Errorf("no records could be encoded")
	}

	res, err := e.client.Bulk(bytes.NewReader(buf.Bytes()), e.client.Bulk.WithContext(ctx))
	if err != nil {
		e.metrics.failed(encoded, err)
		return fmt.Errorf("bulk request failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		err := fmt.Errorf("bulk request returned error: %s", res.Status())
		e.metrics.failed(encoded, err)
		return err
	}

	var bulkResp struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			Status int `json:"status"`
			Error  struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"items"`
	}

	if err := json.NewDecoder(res.Body).Decode(&bulkResp); err != nil {
		e.metrics.failed(encoded, err)
		return fmt.Errorf("failed to parse bulk response: %w", err)
	}

	failedCount := 0
	var lastErr error
	if bulkResp.Errors {
		for _, item := range bulkResp.Items {
			for _, doc := range item {
				if doc.Status >= 400 {
					failedCount++
					lastErr = fmt.Errorf("%s: %s", doc.Error.Type, doc.Error.Reason)
				}
			}
		}
	}

	if failedCount > 0 {
		e.metrics.failed(failedCount, lastErr)
	}
	e.metrics.sent(encoded-failedCount, totalBytes, time.Since(startTime), true)

	if failedCount > 0 {
		return fmt.Errorf("%d out of %d records failed to index: %w", failedCount, encoded, lastErr)
	}

	return nil
}

// indexName returns the index for a record, with optional time-based rotation
func (e *ElasticsearchOutput) indexName(record *Record) string {
	index := e.config.Index
	ts := record.AnalyzedAt
	if ts.IsZero() {
		ts = time.Now()
	}

	if strings.Contains(index, "%{") {
		index = strings.ReplaceAll(index, "%{+YYYY.MM.dd}", ts.Format("2006.01.02"))
		index = strings.ReplaceAll(index, "%{+YYYY.MM}", ts.Format("2006.01"))
		index = strings.ReplaceAll(index, "%{+YYYY}", ts.Format("2006"))
		return index
	}

	switch e.config.IndexRotation {
	case "", "none":
		return index
	case "weekly":
		year, week := ts.ISOWeek()
		return fmt.Sprintf("%s-%d.%02d", index, year, week)
	case "monthly":
		return index + "-" + ts.Format("2006.01")
	case "yearly":
		return index + "-" + ts.Format("2006")
	default:
		return index + "-" + ts.Format("2006.01.02")
	}
}

// Close flushes pending records
func (e *ElasticsearchOutput) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil // Already closed
	}

	if e.batcher != nil {
		return e.batcher.Stop()
	}

	return nil
}

// Name returns the output name
func (e *ElasticsearchOutput) Name() string {
	if e.config.Name != "" {
		return e.config.Name
	}
	return "elasticsearch"
}

// Metrics returns the current metrics
func (e *ElasticsearchOutput) Metrics() *OutputMetrics {
	return e.metrics.snapshot()
}
