package output

import (
	"context"
	"fmt"

	"github.com/therealutkarshpriyadarshi/journalscope/internal/config"
	"github.com/therealutkarshpriyadarshi/journalscope/internal/logging"
	"github.com/therealutkarshpriyadarshi/journalscope/internal/metrics"
	"github.com/therealutkarshpriyadarshi/journalscope/internal/reliability"
)

// Options carries the optional collaborators of New
type Options struct {
	Retry     *config.RetryConfig
	Collector *metrics.Collector
	Logger    *logging.Logger
}

// New builds the output described by cfg. Multi outputs become a Router
// whose members are each wrapped with retry and instrumentation.
func New(ctx context.Context, cfg config.OutputConfig, opts Options) (Output, error) {
	if cfg.Type != "multi" {
		return build(ctx, definition{
			name:          cfg.Type,
			typ:           cfg.Type,
			path:          cfg.Path,
			compression:   cfg.Compression,
			batchSize:     cfg.BatchSize,
			kafka:         cfg.Kafka,
			elasticsearch: cfg.Elasticsearch,
			s3:            cfg.S3,
		}, opts)
	}

	if cfg.Multi == nil || len(cfg.Multi.Outputs) == 0 {
		return nil, fmt.Errorf("multi output requires at least one output")
	}

	routerConfig := DefaultRouterConfig()
	if cfg.Multi.FailureStrategy != "" {
		routerConfig.FailureStrategy = cfg.Multi.FailureStrategy
	}
	routerConfig.Parallel = cfg.Multi.Parallel

	router, err := NewRouter(routerConfig)
	if err != nil {
		return nil, err
	}
	for _, def := range cfg.Multi.Outputs {
		out, err := build(ctx, definition{
			name:          def.Name,
			typ:           def.Type,
			path:          def.Path,
			compression:   cfg.Compression,
			batchSize:     cfg.BatchSize,
			kafka:         def.Kafka,
			elasticsearch: def.Elasticsearch,
			s3:            def.S3,
		}, opts)
		if err != nil {
			router.Close()
			return nil, fmt.Errorf("failed to create output %s: %w", def.Name, err)
		}
		router.AddOutput(out)
	}

	if opts.Logger != nil {
		opts.Logger.Info().
			Int("outputs", len(cfg.Multi.Outputs)).
			Str("failure_strategy", routerConfig.FailureStrategy).
			Bool("parallel", routerConfig.Parallel).
			Msg("Multi output router created")
	}
	return router, nil
}

type definition struct {
	name          string
	typ           string
	path          string
	compression   string
	batchSize     int
	kafka         *config.KafkaOutputConfig
	elasticsearch *config.ElasticsearchOutputConfig
	s3            *config.S3OutputConfig
}

func build(ctx context.Context, def definition, opts Options) (Output, error) {
	var (
		out Output
		err error
	)

	switch def.typ {
	case "stdout":
		w := NewStdoutOutput()
		w.name = def.name
		out = w
	case "file":
		var w *WriterOutput
		if w, err = NewFileOutput(def.path); err == nil {
			w.name = def.name
			out = w
		}
	case "kafka":
		out, err = NewKafkaOutput(kafkaConfig(def))
	case "elasticsearch":
		out, err = NewElasticsearchOutput(elasticsearchConfig(def))
	case "s3":
		out, err = NewS3Output(ctx, s3Config(def))
	default:
		return nil, fmt.Errorf("unknown output type: %s", def.typ)
	}
	if err != nil {
		return nil, err
	}

	if opts.Retry != nil && def.typ != "stdout" && def.typ != "file" {
		out = WithRetry(out, reliability.RetryConfig{
			MaxRetries:     opts.Retry.MaxRetries,
			InitialBackoff: opts.Retry.InitialBackoff,
			MaxBackoff:     opts.Retry.MaxBackoff,
			Multiplier:     opts.Retry.Multiplier,
			Jitter:         opts.Retry.Jitter,
			OnRetry: func(attempt int, err error) {
				if opts.Logger != nil {
					opts.Logger.Warn().
						Err(err).
						Str("output", def.name).
						Int("attempt", attempt).
						Msg("Output send failed, retrying")
				}
			},
		})
	}
	if opts.Collector != nil {
		out = Instrument(out, opts.Collector, def.typ)
	}
	return out, nil
}

func baseConfig(def definition) BaseConfig {
	base := DefaultBaseConfig()
	base.Name = def.name
	if def.batchSize > 0 {
		base.BatchSize = def.batchSize
	}
	if def.compression != "" {
		base.Compression = CompressionType(def.compression)
	}
	return base
}

func kafkaConfig(def definition) KafkaConfig {
	cfg := DefaultKafkaConfig()
	cfg.BaseConfig = baseConfig(def)
	k := def.kafka
	if k == nil {
		return cfg
	}
	if len(k.Brokers) > 0 {
		cfg.Brokers = k.Brokers
	}
	if k.Topic != "" {
		cfg.Topic = k.Topic
	}
	if k.RequiredAcks != 0 {
		cfg.RequiredAcks = k.RequiredAcks
	}
	if k.CompressionCodec != "" {
		cfg.CompressionCodec = k.CompressionCodec
	}
	if k.MaxMessageBytes > 0 {
		cfg.MaxMessageBytes = k.MaxMessageBytes
	}
	if k.FlushInterval > 0 {
		cfg.FlushInterval = k.FlushInterval
	}
	cfg.EnableTLS = k.EnableTLS
	cfg.SASLEnabled = k.SASLEnabled
	cfg.SASLUsername = k.SASLUsername
	cfg.SASLPassword = k.SASLPassword
	return cfg
}

func elasticsearchConfig(def definition) ElasticsearchConfig {
	cfg := DefaultElasticsearchConfig()
	cfg.BaseConfig = baseConfig(def)
	e := def.elasticsearch
	if e == nil {
		return cfg
	}
	if len(e.Addresses) > 0 {
		cfg.Addresses = e.Addresses
	}
	if e.Index != "" {
		cfg.Index = e.Index
	}
	if e.IndexRotation != "" {
		cfg.IndexRotation = e.IndexRotation
	}
	if e.MaxRetries > 0 {
		cfg.MaxRetries = e.MaxRetries
	}
	cfg.Username = e.Username
	cfg.Password = e.Password
	cfg.CloudID = e.CloudID
	cfg.APIKey = e.APIKey
	return cfg
}

func s3Config(def definition) S3Config {
	cfg := DefaultS3Config()
	cfg.BaseConfig = baseConfig(def)
	s := def.s3
	if s == nil {
		return cfg
	}
	cfg.Bucket = s.Bucket
	if s.Region != "" {
		cfg.Region = s.Region
	}
	if s.Prefix != "" {
		cfg.Prefix = s.Prefix
	}
	if s.StorageClass != "" {
		cfg.StorageClass = s.StorageClass
	}
	if s.Compression != "" {
		cfg.Compression = CompressionType(s.Compression)
	}
	cfg.Endpoint = s.Endpoint
	cfg.UsePathStyle = s.UsePathStyle
	cfg.AccessKeyID = s.AccessKeyID
	cfg.SecretAccessKey = s.SecretAccessKey
	cfg.SessionToken = s.SessionToken
	return cfg
}
