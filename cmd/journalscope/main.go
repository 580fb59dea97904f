package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/therealutkarshpriyadarshi/journalscope/internal/config"
	"github.com/therealutkarshpriyadarshi/journalscope/internal/logging"
	"github.com/therealutkarshpriyadarshi/journalscope/internal/metrics"
	"github.com/therealutkarshpriyadarshi/journalscope/internal/pipeline"
	"github.com/therealutkarshpriyadarshi/journalscope/internal/tracing"
)

var version = "0.1.0"

// app holds the global flags and what is loaded from them
type app struct {
	configFile string
	logLevel   string
	logFormat  string

	cfg    *config.Config
	logger *logging.Logger
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "journalscope",
		Short:         "Analyze ATM terminal log bundles",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
	}

	root.PersistentFlags().StringVar(&a.configFile, "config", "", "path to configuration file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&a.logFormat, "log-format", "", "log format (json or console)")

	root.AddCommand(
		a.classifyCmd(),
		a.extractCmd(),
		a.eventsCmd(),
		a.flowsCmd(),
		a.compareCmd(),
		a.analyzeCmd(),
		a.watchCmd(),
		a.boundaryCmd(),
	)
	return root
}

// load reads the configuration file, applies flag overrides and sets up logging
func (a *app) load() error {
	cfg := config.DefaultConfig()
	if a.configFile != "" {
		loaded, err := config.Load(a.configFile)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		cfg = loaded
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Logging.Format = a.logFormat
	}
	a.cfg = cfg

	a.logger = logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	logging.SetGlobal(a.logger)
	return nil
}

// newPipeline builds a pipeline from the loaded configuration. The boundary
// is only required by commands that extract transactions.
func (a *app) newPipeline(needBoundary bool, opts pipeline.Options) (*pipeline.Pipeline, error) {
	boundary, err := a.cfg.LoadBoundary()
	if err != nil {
		if needBoundary {
			return nil, err
		}
		boundary = nil
	}
	if opts.Logger == nil {
		opts.Logger = a.logger
	}
	return pipeline.New(pipeline.FromConfig(a.cfg), boundary, opts), nil
}

// newTracer starts the configured tracing provider
func (a *app) newTracer(ctx context.Context) (*tracing.Provider, error) {
	cfg := tracing.Config{}
	if a.cfg.Tracing != nil {
		cfg = tracing.Config{
			Enabled:    a.cfg.Tracing.Enabled,
			Endpoint:   a.cfg.Tracing.Endpoint,
			SampleRate: a.cfg.Tracing.SampleRate,
		}
	}
	return tracing.NewProvider(ctx, cfg)
}

func (a *app) retryConfig() *config.RetryConfig {
	if a.cfg.Reliability == nil {
		return nil
	}
	return a.cfg.Reliability.Retry
}

func (a *app) newCollector() *metrics.Collector {
	if a.cfg.Metrics != nil && !a.cfg.Metrics.Enabled {
		return nil
	}
	return metrics.NewCollector()
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
