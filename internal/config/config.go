package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the main configuration
type Config struct {
	Logging     LoggingConfig      `yaml:"logging"`
	Boundary    BoundarySource     `yaml:"boundary"`
	Classifier  ClassifierConfig   `yaml:"classifier"`
	UIJournal   UIJournalConfig    `yaml:"ui_journal"`
	Discovery   DiscoveryConfig    `yaml:"discovery"`
	Flow        FlowConfig         `yaml:"flow"`
	Output      OutputConfig       `yaml:"output"`
	WorkerPool  *WorkerPoolConfig  `yaml:"worker_pool,omitempty"`
	Reliability *ReliabilityConfig `yaml:"reliability,omitempty"`
	Metrics     *MetricsConfig     `yaml:"metrics,omitempty"`
	Health      *HealthConfig      `yaml:"health,omitempty"`
	Tracing     *TracingConfig     `yaml:"tracing,omitempty"`
	Watch       *WatchConfig       `yaml:"watch,omitempty"`
}

// LoggingConfig defines logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or console
}

// BoundarySource points at a boundary document or carries the lists inline
type BoundarySource struct {
	Path         string     `yaml:"path,omitempty"`
	StartIDs     []string   `yaml:"start_ids,omitempty"`
	EndIDs       []string   `yaml:"end_ids,omitempty"`
	ChainIDs     []string   `yaml:"chain_ids,omitempty"`
	Transactions []KeyValue `yaml:"transactions,omitempty"`
}

// ClassifierConfig holds file classification thresholds
type ClassifierConfig struct {
	MinLines         int      `yaml:"min_lines,omitempty"`
	MinScore         int      `yaml:"min_score,omitempty"`
	ExtensionScore   int      `yaml:"extension_score,omitempty"`
	StrictScore      int      `yaml:"strict_score,omitempty"`
	HeaderScore      int      `yaml:"header_score,omitempty"`
	NonLogExtensions []string `yaml:"non_log_extensions,omitempty"`
}

// UIJournalConfig holds UI journal parsing options
type UIJournalConfig struct {
	// ModuleFilters restrict the screens accepted from noisy modules
	ModuleFilters []ModuleFilter `yaml:"module_filters,omitempty"`
}

// ModuleFilter keeps lines from Module only when their screen is listed
type ModuleFilter struct {
	Module  string   `yaml:"module"`
	Screens []string `yaml:"screens"`
}

// DiscoveryConfig controls which files of a bundle directory are analyzed
type DiscoveryConfig struct {
	Include []string `yaml:"include,omitempty"`
	Exclude []string `yaml:"exclude,omitempty"`
}

// FlowConfig holds flow correlation options
type FlowConfig struct {
	// MaxLength caps the flows passed to alignment
	MaxLength int `yaml:"max_length,omitempty"`
}

// OutputConfig defines where transaction records are published
type OutputConfig struct {
	Type        string `yaml:"type"` // stdout, file, kafka, elasticsearch, s3, multi
	Path        string `yaml:"path,omitempty"`
	Compression string `yaml:"compression,omitempty"`
	BatchSize   int    `yaml:"batch_size,omitempty"`

	Kafka         *KafkaOutputConfig         `yaml:"kafka,omitempty"`
	Elasticsearch *ElasticsearchOutputConfig `yaml:"elasticsearch,omitempty"`
	S3            *S3OutputConfig            `yaml:"s3,omitempty"`
	Multi         *MultiOutputConfig         `yaml:"multi,omitempty"`
}

// KafkaOutputConfig holds Kafka-specific configuration
type KafkaOutputConfig struct {
	Brokers          []string      `yaml:"brokers"`
	Topic            string        `yaml:"topic"`
	RequiredAcks     int16         `yaml:"required_acks,omitempty"`
	CompressionCodec string        `yaml:"compression_codec,omitempty"`
	MaxMessageBytes  int           `yaml:"max_message_bytes,omitempty"`
	FlushInterval    time.Duration `yaml:"flush_interval,omitempty"`
	SASLEnabled      bool          `yaml:"sasl_enabled,omitempty"`
	SASLUsername     string        `yaml:"sasl_username,omitempty"`
	SASLPassword     string        `yaml:"sasl_password,omitempty"`
	EnableTLS        bool          `yaml:"enable_tls,omitempty"`
}

// ElasticsearchOutputConfig holds Elasticsearch-specific configuration
type ElasticsearchOutputConfig struct {
	Addresses     []string `yaml:"addresses"`
	Index         string   `yaml:"index"`
	IndexRotation string   `yaml:"index_rotation,omitempty"`
	Username      string   `yaml:"username,omitempty"`
	Password      string   `yaml:"password,omitempty"`
	CloudID       string   `yaml:"cloud_id,omitempty"`
	APIKey        string   `yaml:"api_key,omitempty"`
	MaxRetries    int      `yaml:"max_retries,omitempty"`
}

// S3OutputConfig holds S3-specific configuration
type S3OutputConfig struct {
	Bucket       string `yaml:"bucket"`
	Region       string `yaml:"region"`
	Prefix       string `yaml:"prefix,omitempty"`
	StorageClass string `yaml:"storage_class,omitempty"`
	Compression  string `yaml:"compression,omitempty"`
	Endpoint     string `yaml:"endpoint,omitempty"`
	UsePathStyle bool   `yaml:"use_path_style,omitempty"`

	// Static credentials; the default AWS chain is used when empty
	AccessKeyID     string `yaml:"access_key_id,omitempty"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty"`
	SessionToken    string `yaml:"session_token,omitempty"`
}

// MultiOutputConfig holds configuration for multiple outputs
type MultiOutputConfig struct {
	Outputs         []OutputDefinition `yaml:"outputs"`
	FailureStrategy string             `yaml:"failure_strategy,omitempty"`
	Parallel        bool               `yaml:"parallel,omitempty"`
}

// OutputDefinition defines a single output in multi-output mode
type OutputDefinition struct {
	Name          string                     `yaml:"name"`
	Type          string                     `yaml:"type"`
	Path          string                     `yaml:"path,omitempty"`
	Kafka         *KafkaOutputConfig         `yaml:"kafka,omitempty"`
	Elasticsearch *ElasticsearchOutputConfig `yaml:"elasticsearch,omitempty"`
	S3            *S3OutputConfig            `yaml:"s3,omitempty"`
}

// WorkerPoolConfig holds worker pool configuration
type WorkerPoolConfig struct {
	NumWorkers int           `yaml:"num_workers"`
	QueueSize  int           `yaml:"queue_size,omitempty"`
	JobTimeout time.Duration `yaml:"job_timeout,omitempty"`
}

// ReliabilityConfig holds retry configuration for outputs
type ReliabilityConfig struct {
	Retry *RetryConfig `yaml:"retry,omitempty"`
}

// RetryConfig holds retry configuration
type RetryConfig struct {
	MaxRetries     int           `yaml:"max_retries"`
	InitialBackoff time.Duration `yaml:"initial_backoff,omitempty"`
	MaxBackoff     time.Duration `yaml:"max_backoff,omitempty"`
	Multiplier     float64       `yaml:"multiplier,omitempty"`
	Jitter         bool          `yaml:"jitter,omitempty"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
	Path    string `yaml:"path,omitempty"`
}

// HealthConfig holds health check configuration
type HealthConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Address       string        `yaml:"address"`
	LivenessPath  string        `yaml:"liveness_path,omitempty"`
	ReadinessPath string        `yaml:"readiness_path,omitempty"`
	Timeout       time.Duration `yaml:"timeout,omitempty"`
}

// TracingConfig holds tracing configuration
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Endpoint   string  `yaml:"endpoint,omitempty"`
	SampleRate float64 `yaml:"sample_rate,omitempty"`
}

// WatchConfig holds inbox watching configuration
type WatchConfig struct {
	Dir          string        `yaml:"dir"`
	LedgerPath   string        `yaml:"ledger_path,omitempty"`
	Debounce     time.Duration `yaml:"debounce,omitempty"`
	PollInterval time.Duration `yaml:"poll_interval,omitempty"`
}

// Default values
const (
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "json"
	DefaultFlowMaxLength  = 500
	DefaultWatchDebounce  = 2 * time.Second
	DefaultWatchPoll      = 30 * time.Second
	DefaultLedgerFileName = ".journalscope-ledger.json"
	DefaultMetricsAddress = ":9090"
	DefaultHealthAddress  = ":8081"
)

// DefaultModuleFilters drops authorization-module noise except its own screen
func DefaultModuleFilters() []ModuleFilter {
	return []ModuleFilter{{Module: "GUIDM", Screens: []string{"DMAuthorization"}}}
}

var validOutputTypes = map[string]bool{
	"stdout": true, "file": true, "kafka": true, "elasticsearch": true, "s3": true, "multi": true,
}

// Load loads configuration from a YAML file with environment variable overrides
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand environment variables in the YAML content
	expandedData := []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(expandedData, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets default values for unspecified configuration
func (c *Config) applyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
	if c.Output.Type == "" {
		c.Output.Type = "stdout"
	}
	if c.Flow.MaxLength == 0 {
		c.Flow.MaxLength = DefaultFlowMaxLength
	}
	if c.UIJournal.ModuleFilters == nil {
		c.UIJournal.ModuleFilters = DefaultModuleFilters()
	}
	if c.Metrics != nil && c.Metrics.Address == "" {
		c.Metrics.Address = DefaultMetricsAddress
	}
	if c.Metrics != nil && c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Health != nil && c.Health.Address == "" {
		c.Health.Address = DefaultHealthAddress
	}
	if c.Watch != nil {
		if c.Watch.Debounce == 0 {
			c.Watch.Debounce = DefaultWatchDebounce
		}
		if c.Watch.PollInterval == 0 {
			c.Watch.PollInterval = DefaultWatchPoll
		}
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true,
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"json": true, "console": true,
	}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	if !validOutputTypes[c.Output.Type] {
		return fmt.Errorf("invalid output type: %s", c.Output.Type)
	}
	if c.Output.Type == "file" && c.Output.Path == "" {
		return fmt.Errorf("file output requires a path")
	}
	if c.Output.Type == "multi" {
		if c.Output.Multi == nil || len(c.Output.Multi.Outputs) == 0 {
			return fmt.Errorf("multi output requires at least one output")
		}
		for i, def := range c.Output.Multi.Outputs {
			if def.Name == "" {
				return fmt.Errorf("multi output %d has no name configured", i)
			}
			if !validOutputTypes[def.Type] || def.Type == "multi" {
				return fmt.Errorf("multi output %s has invalid type: %s", def.Name, def.Type)
			}
		}
	}

	if c.Flow.MaxLength < 0 {
		return fmt.Errorf("flow max_length must not be negative")
	}
	for i, f := range c.UIJournal.ModuleFilters {
		if f.Module == "" {
			return fmt.Errorf("ui_journal module filter %d has no module configured", i)
		}
	}
	if c.WorkerPool != nil && c.WorkerPool.NumWorkers < 0 {
		return fmt.Errorf("worker_pool num_workers must not be negative")
	}

	return nil
}

// LoadOrDefault loads configuration from file or returns a default configuration
func LoadOrDefault(path string) *Config {
	if path == "" {
		return DefaultConfig()
	}
	cfg, err := Load(path)
	if err != nil {
		return DefaultConfig()
	}
	return cfg
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	cfg := &Config{
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		Output: OutputConfig{
			Type: "stdout",
		},
	}
	cfg.applyDefaults()
	return cfg
}
