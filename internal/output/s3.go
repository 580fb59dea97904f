package output

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/therealutkarshpriyadarshi/journalscope/internal/pool"
)

// S3Config contains S3-specific configuration
type S3Config struct {
	BaseConfig `yaml:",inline"`

	// Bucket is the S3 bucket name
	Bucket string `yaml:"bucket"`

	// Region is the AWS region
	Region string `yaml:"region"`

	// Prefix is the key prefix for objects
	Prefix string `yaml:"prefix,omitempty"`

	// KeyTemplate is the object key template. It supports {{.RunID}},
	// {{.Year}}, {{.Month}}, {{.Day}}, {{.Hour}}, {{.Timestamp}} and {{.Seq}}.
	KeyTemplate string `yaml:"key_template,omitempty"`

	// StorageClass is the S3 storage class (STANDARD, GLACIER, etc.)
	StorageClass string `yaml:"storage_class,omitempty"`

	// Static credentials; the default AWS chain is used when empty
	AccessKeyID     string `yaml:"access_key_id,omitempty"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty"`
	SessionToken    string `yaml:"session_token,omitempty"`

	// Endpoint for S3-compatible services (e.g., MinIO)
	Endpoint string `yaml:"endpoint,omitempty"`

	// UsePathStyle forces path-style addressing
	UsePathStyle bool `yaml:"use_path_style,omitempty"`
}

// DefaultS3Config returns default S3 configuration
func DefaultS3Config() S3Config {
	return S3Config{
		BaseConfig:   DefaultBaseConfig(),
		Region:       "us-east-1",
		Prefix:       "journalscope/",
		KeyTemplate:  "{{.Year}}/{{.Month}}/{{.Day}}/{{.RunID}}-{{.Seq}}.ndjson",
		StorageClass: "STANDARD",
	}
}

// putObjectAPI is the part of the S3 client used by the output
type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Output uploads batches of records as NDJSON objects
type S3Output struct {
	config     S3Config
	client     putObjectAPI
	batcher    *Batcher
	compressor Compressor
	metrics    metricsTracker
	seq        atomic.Int64
	closed     atomic.Bool
}

// NewS3Output creates a new S3 output
func NewS3Output(ctx context.Context, s3Config S3Config) (*S3Output, error) {
	if s3Config.Region == "" {
		return nil, fmt.Errorf("no region specified")
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(s3Config.Region)}
	if s3Config.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(s3Config.AccessKeyID, s3Config.SecretAccessKey, s3Config.SessionToken),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if s3Config.Endpoint != "" {
			o.BaseEndpoint = aws.String(s3Config.Endpoint)
		}
		o.UsePathStyle = s3Config.UsePathStyle
	})

	return newS3Output(s3Config, client)
}

func newS3Output(s3Config S3Config, client putObjectAPI) (*S3Output, error) {
	if s3Config.Bucket == "" {
		return nil, fmt.Errorf("no bucket specified")
	}

	compressor, err := GetCompressor(s3Config.Compression)
	if err != nil {
		return nil, err
	}

	output := &S3Output{
		config:     s3Config,
		client:     client,
		compressor: compressor,
	}

	if s3Config.BatchSize > 1 {
		output.batcher = NewBatcher(BatcherConfig{
			MaxBatchSize:  s3Config.BatchSize,
			MaxBatchBytes: 100 * 1024 * 1024, // 100MB
			FlushInterval: s3Config.FlushInterval,
		}, output.sendBatchInternal)
	}

	return output, nil
}

// Send queues or uploads a single record
func (s *S3Output) Send(ctx context.Context, record *Record) error {
	if s.closed.Load() {
		return fmt.Errorf("s3 output is closed")
	}

	if s.batcher != nil {
		return s.batcher.Add(ctx, record)
	}

	return s.sendBatchInternal(ctx, []*Record{record})
}

// SendBatch uploads a batch of records as one object
func (s *S3Output) SendBatch(ctx context.Context, records []*Record) error {
	if s.closed.Load() {
		return fmt.Errorf("s3 output is closed")
	}

	return s.sendBatchInternal(ctx, records)
}

func (s *S3Output) sendBatchInternal(ctx context.Context, records []*Record) error {
	if len(records) == 0 {
		return nil
	}

	startTime := time.Now()

	buf := pool.GetBuffer()
	defer pool.PutBuffer(buf)
	encoded := 0
	for _, record := range records {
		data, err := encode(record)
		if err != nil {
			s.metrics.failed(1, err)
			continue
		}
		buf.Write(data)
		buf.WriteByte('\n')
		encoded++
	}
	if encoded == 0 {
		return fmt.Errorf("no records could be encoded")
	}

	compressed, err := s.compressor.Compress(buf.Bytes())
	if err != nil {
		s.metrics.failed(encoded, err)
		return fmt.Errorf("failed to compress data: %w", err)
	}

	key := s.objectKey(records[0], s.seq.Add(1))
	if err := s.uploadObject(ctx, key, compressed); err != nil {
		s.metrics.failed(encoded, err)
		return err
	}

	s.metrics.sent(encoded, int64(len(compressed)), time.Since(startTime), true)
	return nil
}

func (s *S3Output) uploadObject(ctx context.Context, key string, data []byte) error {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.config.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/x-ndjson"),
	}

	if s.config.StorageClass != "" {
		input.StorageClass = s3types.StorageClass(s.config.StorageClass)
	}

	if s.config.Compression != "" && s.config.Compression != CompressionNone {
		input.ContentEncoding = aws.String(string(s.config.Compression))
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to upload to S3: %w", err)
	}

	return nil
}

// objectKey renders the key template for the batch led by first
func (s *S3Output) objectKey(first *Record, seq int64) string {
	ts := first.AnalyzedAt
	if ts.IsZero() {
		ts = time.Now()
	}

	key := s.config.KeyTemplate
	if key == "" {
		key = "{{.RunID}}-{{.Seq}}.ndjson"
	}

	key = strings.NewReplacer(
		"{{.RunID}}", first.RunID,
		"{{.Year}}", fmt.Sprintf("%04d", ts.Year()),
		"{{.Month}}", fmt.Sprintf("%02d", ts.Month()),
		"{{.Day}}", fmt.Sprintf("%02d", ts.Day()),
		"{{.Hour}}", fmt.Sprintf("%02d", ts.Hour()),
		"{{.Timestamp}}", fmt.Sprintf("%d", ts.Unix()),
		"{{.Seq}}", fmt.Sprintf("%06d", seq),
	).Replace(key)

	return s.config.Prefix + key + s.compressor.Extension()
}

// Close flushes pending records
func (s *S3Output) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil // Already closed
	}

	if s.batcher != nil {
		return s.batcher.Stop()
	}

	return nil
}

// Name returns the output name
func (s *S3Output) Name() string {
	if s.config.Name != "" {
		return s.config.Name
	}
	return "s3"
}

// Metrics returns the current metrics
func (s *S3Output) Metrics() *OutputMetrics {
	return s.metrics.snapshot()
}
