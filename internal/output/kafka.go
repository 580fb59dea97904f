package output

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"
)

// KafkaConfig contains Kafka-specific configuration
type KafkaConfig struct {
	BaseConfig `yaml:",inline"`

	// Brokers is the list of Kafka broker addresses
	Brokers []string `yaml:"brokers"`

	// Topic receives every record, keyed by source file and transaction id
	Topic string `yaml:"topic"`

	// RequiredAcks specifies the number of acknowledgments required (0, 1, -1)
	RequiredAcks int16 `yaml:"required_acks,omitempty"`

	// CompressionCodec specifies the compression codec (none, gzip, snappy, lz4, zstd)
	CompressionCodec string `yaml:"compression_codec,omitempty"`

	// MaxMessageBytes is the maximum size of a single message
	MaxMessageBytes int `yaml:"max_message_bytes,omitempty"`

	EnableTLS bool `yaml:"enable_tls,omitempty"`

	SASLEnabled  bool   `yaml:"sasl_enabled,omitempty"`
	SASLUsername string `yaml:"sasl_username,omitempty"`
	SASLPassword string `yaml:"sasl_password,omitempty"`

	// ClientID is the client identifier
	ClientID string `yaml:"client_id,omitempty"`
}

// DefaultKafkaConfig returns default Kafka configuration
func DefaultKafkaConfig() KafkaConfig {
	return KafkaConfig{
		BaseConfig:       DefaultBaseConfig(),
		Brokers:          []string{"localhost:9092"},
		Topic:            "journalscope.transactions",
		RequiredAcks:     1,
		CompressionCodec: "none",
		MaxMessageBytes:  1000000, // 1MB
		ClientID:         "journalscope",
	}
}

// SaramaConfig translates the configuration into a producer config
func (c KafkaConfig) SaramaConfig() *sarama.Config {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true
	saramaConfig.Producer.RequiredAcks = sarama.RequiredAcks(c.RequiredAcks)
	saramaConfig.Producer.Partitioner = sarama.NewHashPartitioner
	if c.ClientID != "" {
		saramaConfig.ClientID = c.ClientID
	}

	switch c.CompressionCodec {
	case "gzip":
		saramaConfig.Producer.Compression = sarama.CompressionGZIP
	case "snappy":
		saramaConfig.Producer.Compression = sarama.CompressionSnappy
	case "lz4":
		saramaConfig.Producer.Compression = sarama.CompressionLZ4
	case "zstd":
		saramaConfig.Producer.Compression = sarama.CompressionZSTD
	default:
		saramaConfig.Producer.Compression = sarama.CompressionNone
	}

	if c.MaxMessageBytes > 0 {
		saramaConfig.Producer.MaxMessageBytes = c.MaxMessageBytes
	}

	if c.SASLEnabled {
		saramaConfig.Net.SASL.Enable = true
		saramaConfig.Net.SASL.User = c.SASLUsername
		saramaConfig.Net.SASL.Password = c.SASLPassword
		saramaConfig.Net.SASL.Mechanism = sarama.SASLTypePlaintext
	}

	if c.EnableTLS {
		saramaConfig.Net.TLS.Enable = true
	}

	return saramaConfig
}

// KafkaOutput publishes records to a Kafka topic
type KafkaOutput struct {
	config   KafkaConfig
	producer sarama.SyncProducer
	batcher  *Batcher
	metrics  metricsTracker
	closed   atomic.Bool
}

// NewKafkaOutput creates a new Kafka output
func NewKafkaOutput(config KafkaConfig) (*KafkaOutput, error) {
	if len(config.Brokers) == 0 {
		return nil, fmt.Errorf("no brokers specified")
	}

	producer, err := sarama.NewSyncProducer(config.Brokers, config.SaramaConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	return newKafkaOutput(config, producer)
}

func newKafkaOutput(config KafkaConfig, producer sarama.SyncProducer) (*KafkaOutput, error) {
	if config.Topic == "" {
		return nil, fmt.Errorf("no topic specified")
	}

	output := &KafkaOutput{
		config:   config,
		producer: producer,
	}

	if config.BatchSize > 1 {
		output.batcher = NewBatcher(BatcherConfig{
			MaxBatchSize:  config.BatchSize,
			MaxBatchBytes: config.MaxMessageBytes * config.BatchSize,
			FlushInterval: config.FlushInterval,
		}, output.sendBatchInternal)
	}

	return output, nil
}

// Send queues or sends a single record
func (k *KafkaOutput) Send(ctx context.Context, record *Record) error {
	if k.closed.Load() {
		return fmt.Errorf("kafka output is closed")
	}

	if k.batcher != nil {
		return k.batcher.Add(ctx, record)
	}

	return k.sendBatchInternal(ctx, []*Record{record})
}

// SendBatch sends a batch of records
func (k *KafkaOutput) SendBatch(ctx context.Context, records []*Record) error {
	if k.closed.Load() {
		return fmt.Errorf("kafka output is closed")
	}

	return k.sendBatchInternal(ctx, records)
}

func (k *KafkaOutput) sendBatchInternal(ctx context.Context, records []*Record) error {
	if len(records) == 0 {
		return nil
	}

	startTime := time.Now()
	messages := make([]*sarama.ProducerMessage, 0, len(records))
	var totalBytes int64

	for _, record := range records {
		msg, size, err := k.buildMessage(record)
		if err != nil {
			k.metrics.failed(1, err)
			continue
		}
		messages = append(messages, msg)
		totalBytes += int64(size)
	}
	if len(messages) == 0 {
		return fmt.Errorf("no records could be encoded")
	}

	if err := k.producer.SendMessages(messages); err != nil {
		failed := len(messages)
		var perr sarama.ProducerErrors
		if errors.As(err, &perr) {
			failed = len(perr)
		}
		k.metrics.failed(failed, err)
		if sent := len(messages) - failed; sent > 0 {
			k.metrics.sent(sent, 0, time.Since(startTime), true)
		}
		return fmt.Errorf("failed to send %d of %d records to Kafka: %w", failed, len(messages), err)
	}

	k.metrics.sent(len(messages), totalBytes, time.Since(startTime), len(messages) > 1)
	return nil
}

// buildMessage creates a producer message keyed by source file and transaction id
func (k *KafkaOutput) buildMessage(record *Record) (*sarama.ProducerMessage, int, error) {
	value, err := encode(record)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to marshal record: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: k.config.Topic,
		Key:   sarama.StringEncoder(record.Key()),
		Value: sarama.ByteEncoder(value),
		Headers: []sarama.RecordHeader{
			{Key: []byte("run_id"), Value: []byte(record.RunID)},
		},
	}
	return msg, len(value), nil
}

// Close flushes pending records and closes the producer
func (k *KafkaOutput) Close() error {
	if !k.closed.CompareAndSwap(false, true) {
		return nil // Already closed
	}

	var flushErr error
	if k.batcher != nil {
		flushErr = k.batcher.Stop()
	}

	if err := k.producer.Close(); err != nil {
		return fmt.Errorf("failed to close Kafka producer: %w", err)
	}
	return flushErr
}

// Name returns the output name
func (k *KafkaOutput) Name() string {
	if k.config.Name != "" {
		return k.config.Name
	}
	return "kafka"
}

// Metrics returns the current metrics
func (k *KafkaOutput) Metrics() *OutputMetrics {
	return k.metrics.snapshot()
}
