// Package pipeline runs a log bundle through classification, transaction
// extraction, UI journal parsing and flow correlation.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/therealutkarshpriyadarshi/journalscope/internal/checkpoint"
	"github.com/therealutkarshpriyadarshi/journalscope/internal/classifier"
	"github.com/therealutkarshpriyadarshi/journalscope/internal/config"
	"github.com/therealutkarshpriyadarshi/journalscope/internal/decode"
	"github.com/therealutkarshpriyadarshi/journalscope/internal/flow"
	"github.com/therealutkarshpriyadarshi/journalscope/internal/logging"
	"github.com/therealutkarshpriyadarshi/journalscope/internal/metrics"
	"github.com/therealutkarshpriyadarshi/journalscope/internal/output"
	"github.com/therealutkarshpriyadarshi/journalscope/internal/parser"
	"github.com/therealutkarshpriyadarshi/journalscope/internal/router"
	"github.com/therealutkarshpriyadarshi/journalscope/internal/tracing"
	"github.com/therealutkarshpriyadarshi/journalscope/internal/transaction"
	"github.com/therealutkarshpriyadarshi/journalscope/internal/worker"
	"github.com/therealutkarshpriyadarshi/journalscope/pkg/types"
)

// Stage names used in file errors, progress callbacks and metrics
const (
	StageClassify = "classify"
	StageExtract  = "extract"
	StageUI       = "ui"
)

// Config holds pipeline configuration
type Config struct {
	Include       []string
	Exclude       []string
	Workers       int
	QueueSize     int
	JobTimeout    time.Duration
	MaxFlowLength int
	Classifier    classifier.Config
	ModuleFilters []parser.ModuleFilter
}

// FromConfig derives the pipeline configuration from the application config.
// Zero classifier thresholds fall back to the classifier defaults.
func FromConfig(cfg *config.Config) Config {
	c := cfg.Classifier
	pc := Config{
		Include:       cfg.Discovery.Include,
		Exclude:       cfg.Discovery.Exclude,
		MaxFlowLength: cfg.Flow.MaxLength,
		Classifier: classifier.Config{
			MinLines:         c.MinLines,
			MinScore:         c.MinScore,
			ExtensionScore:   c.ExtensionScore,
			StrictScore:      c.StrictScore,
			HeaderScore:      c.HeaderScore,
			NonLogExtensions: c.NonLogExtensions,
		},
	}
	if cfg.WorkerPool != nil {
		pc.Workers = cfg.WorkerPool.NumWorkers
		pc.QueueSize = cfg.WorkerPool.QueueSize
		pc.JobTimeout = cfg.WorkerPool.JobTimeout
	}
	for _, f := range cfg.UIJournal.ModuleFilters {
		pc.ModuleFilters = append(pc.ModuleFilters, parser.ModuleFilter{Module: f.Module, Screens: f.Screens})
	}
	return pc
}

// ProgressFunc is told how many files of a stage are done
type ProgressFunc func(stage string, done, total int)

// Options carries the optional collaborators of a pipeline
type Options struct {
	Output    output.Output
	Collector *metrics.Collector
	Tracer    trace.Tracer
	Ledger    *checkpoint.Ledger
	Logger    *logging.Logger
	Progress  ProgressFunc
}

// FileError is a per-file failure that did not stop the run
type FileError struct {
	Path  string `json:"path"`
	Stage string `json:"stage"`
	Error string `json:"error"`
}

// Pipeline wires the analysis stages together. It is safe to reuse across
// runs but not to run concurrently with itself.
type Pipeline struct {
	config    Config
	boundary  *config.Boundary
	router    *router.Router
	extractor *transaction.Extractor
	uiParser  *parser.UIJournalParser
	aligner   *flow.Aligner

	output    output.Output
	collector *metrics.Collector
	tracer    trace.Tracer
	ledger    *checkpoint.Ledger
	logger    *logging.Logger
	progress  ProgressFunc
}

// New creates a pipeline. boundary may be nil for classification and UI
// parsing; extraction then fails with a configuration error.
func New(cfg Config, boundary *config.Boundary, opts Options) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer("journalscope")
	}
	p := &Pipeline{
		config:    cfg,
		boundary:  boundary,
		uiParser:  parser.NewUIJournalParser(cfg.ModuleFilters),
		aligner:   flow.NewAligner(cfg.MaxFlowLength),
		output:    opts.Output,
		collector: opts.Collector,
		tracer:    tracer,
		ledger:    opts.Ledger,
		logger:    logger.WithComponent("pipeline"),
		progress:  opts.Progress,
	}
	if boundary != nil {
		p.extractor = transaction.NewExtractor(boundary)
	}

	routerConfig := router.Config{
		Workers:    cfg.Workers,
		QueueSize:  cfg.QueueSize,
		Classifier: classifier.New(cfg.Classifier),
	}
	if p.collector != nil {
		routerConfig.OnResult = p.observeRouted
	}
	p.router = router.New(routerConfig, logger)
	return p
}

func (p *Pipeline) observeRouted(fr router.FileResult, took time.Duration) {
	failure := ""
	switch {
	case errors.Is(fr.Err, classifier.ErrNotFound):
		failure = "not_found"
	case fr.Err != nil:
		failure = "read_error"
	}
	p.collector.ObserveClassification(string(fr.Label), string(fr.Category), failure, took)
}

// Classify routes paths into category buckets
func (p *Pipeline) Classify(ctx context.Context, paths []string) (*router.Result, error) {
	files := make([]*types.LogFile, len(paths))
	for i, path := range paths {
		files[i] = types.NewLogFile(path)
	}

	ctx, span := tracing.TraceClassify(ctx, p.tracer, len(files))
	defer span.End()

	res, err := p.router.Route(ctx, files)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("file.classified", res.Stats.Classified),
		attribute.Int("file.unclassified", res.Stats.Unclassified),
	)
	return res, nil
}

// Extraction is the outcome of extracting transactions from customer journals
type Extraction struct {
	Transactions []types.Transaction `json:"transactions"`
	Summary      transaction.Summary `json:"summary"`
	Dropped      int                 `json:"dropped"`
	Unresolved   int                 `json:"unresolved"`
	Errors       []FileError         `json:"errors,omitempty"`
}

// Extract reads each customer journal and extracts its transactions.
// Transactions keep the order of paths, then of lines within each file.
func (p *Pipeline) Extract(ctx context.Context, paths []string) (*Extraction, error) {
	if p.extractor == nil {
		return nil, &config.ConfigurationError{Section: "boundary"}
	}

	results := make([]*transaction.Result, len(paths))
	errs := p.each(ctx, StageExtract, paths, func(ctx context.Context, i int, f *types.LogFile) error {
		_, span := tracing.TraceExtract(ctx, p.tracer, f.Path)
		defer span.End()

		text, err := readText(f)
		if err != nil {
			span.RecordError(err)
			return err
		}
		res := p.extractor.Extract(parser.ParseCustomerJournal(text), f.Path)
		span.SetAttributes(
			attribute.Int("transaction.count", len(res.Transactions)),
			attribute.Int("transaction.dropped", res.Dropped),
		)
		results[i] = res
		p.observeExtraction(res)
		return nil
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ex := &Extraction{Transactions: []types.Transaction{}}
	for i, res := range results {
		if errs[i] != nil {
			ex.Errors = append(ex.Errors, FileError{Path: paths[i], Stage: StageExtract, Error: errs[i].Error()})
			p.logger.Warn().Str("path", paths[i]).Err(errs[i]).Msg("Customer journal skipped")
			continue
		}
		ex.Transactions = append(ex.Transactions, res.Transactions...)
		ex.Dropped += res.Dropped
		ex.Unresolved += res.Unresolved
	}
	ex.Summary = transaction.Summarize(ex.Transactions)

	p.logger.Info().
		Int("files", len(paths)).
		Int("transactions", len(ex.Transactions)).
		Int("dropped", ex.Dropped).
		Int("unresolved", ex.Unresolved).
		Msg("Extraction complete")
	return ex, nil
}

func (p *Pipeline) observeExtraction(res *transaction.Result) {
	if p.collector == nil {
		return
	}
	states := make([]string, 0, len(res.Transactions))
	durations := make([]time.Duration, 0, len(res.Transactions))
	for i := range res.Transactions {
		txn := &res.Transactions[i]
		states = append(states, string(txn.EndState))
		if d, ok := txn.Duration(); ok {
			durations = append(durations, d)
		}
	}
	p.collector.ObserveExtraction(states, durations, res.Dropped, res.Unresolved)
}

// UIParse is the outcome of parsing UI journals
type UIParse struct {
	Events []types.UiEvent `json:"events"`
	Stats  parser.UIStats  `json:"stats"`
	Errors []FileError     `json:"errors,omitempty"`
}

// ParseUI parses each UI journal. Events keep the order of paths.
func (p *Pipeline) ParseUI(ctx context.Context, paths []string) (*UIParse, error) {
	results := make([]*parser.UIResult, len(paths))
	errs := p.each(ctx, StageUI, paths, func(ctx context.Context, i int, f *types.LogFile) error {
		text, err := readText(f)
		if err != nil {
			return err
		}
		res := p.uiParser.Parse(f.Path, text)
		results[i] = res
		if p.collector != nil {
			s := res.Stats
			p.collector.ObserveUIJournal(s.Events, s.Unmatched, s.Filtered, s.Duplicates, s.MalformedPayloads)
		}
		return nil
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := &UIParse{Events: []types.UiEvent{}}
	for i, res := range results {
		if errs[i] != nil {
			out.Errors = append(out.Errors, FileError{Path: paths[i], Stage: StageUI, Error: errs[i].Error()})
			p.logger.Warn().Str("path", paths[i]).Err(errs[i]).Msg("UI journal skipped")
			continue
		}
		out.Events = append(out.Events, res.Events...)
		out.Stats.Lines += res.Stats.Lines
		out.Stats.Unmatched += res.Stats.Unmatched
		out.Stats.Filtered += res.Stats.Filtered
		out.Stats.Duplicates += res.Stats.Duplicates
		out.Stats.MalformedPayloads += res.Stats.MalformedPayloads
		out.Stats.Events += res.Stats.Events
	}
	return out, nil
}

// Flows correlates every transaction with the UI events
func (p *Pipeline) Flows(ctx context.Context, txns []types.Transaction, events []types.UiEvent) []flow.Entry {
	_, span := tracing.TraceFlow(ctx, p.tracer, len(txns), len(events))
	defer span.End()

	entries := flow.BuildReport(txns, events)
	if p.collector != nil {
		for _, e := range entries {
			p.collector.ObserveFlow(len(e.Steps))
		}
	}
	return entries
}

// Compare aligns the flows of the transactions idA and idB
func (p *Pipeline) Compare(txns []types.Transaction, events []types.UiEvent, idA, idB string) (*flow.Comparison, error) {
	a, ok := transaction.Find(txns, idA)
	if !ok {
		return nil, fmt.Errorf("transaction %s not found", idA)
	}
	b, ok := transaction.Find(txns, idB)
	if !ok {
		return nil, fmt.Errorf("transaction %s not found", idB)
	}

	c, err := p.aligner.Compare(a, b, events)
	if err != nil {
		return nil, err
	}
	if p.collector != nil {
		p.collector.Alignments.Inc()
	}
	return c, nil
}

// each runs fn for every path, through the worker pool when more than one
// worker is configured. The returned errors are indexed like paths.
func (p *Pipeline) each(ctx context.Context, stage string, paths []string, fn func(ctx context.Context, i int, f *types.LogFile) error) []error {
	files := make([]*types.LogFile, len(paths))
	index := make(map[*types.LogFile]int, len(paths))
	for i, path := range paths {
		files[i] = types.NewLogFile(path)
		index[files[i]] = i
	}

	var mu sync.Mutex
	done := 0
	job := func(ctx context.Context, f *types.LogFile) error {
		start := time.Now()
		err := fn(ctx, index[f], f)
		if p.collector != nil {
			status := "success"
			if err != nil {
				status = "failed"
			}
			p.collector.WorkerPoolJobs.WithLabelValues(stage, status).Inc()
			p.collector.WorkerJobDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
		}
		if p.progress != nil {
			mu.Lock()
			done++
			p.progress(stage, done, len(paths))
			mu.Unlock()
		}
		return err
	}

	errs := make([]error, len(files))
	if p.config.Workers <= 1 || len(files) < 2 {
		for i, f := range files {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				continue
			}
			errs[i] = job(ctx, f)
		}
		return errs
	}

	pool, err := worker.NewWorkerPool(worker.PoolConfig{
		NumWorkers: p.config.Workers,
		QueueSize:  p.config.QueueSize,
		JobTimeout: p.config.JobTimeout,
	}, job)
	if err != nil {
		for i := range errs {
			errs[i] = err
		}
		return errs
	}
	if p.collector != nil {
		p.collector.WorkerPoolSize.WithLabelValues(stage).Set(float64(p.config.Workers))
	}
	pool.Start()
	defer pool.Stop()

	return pool.Run(ctx, files)
}

func readText(f *types.LogFile) (string, error) {
	data, err := f.Bytes()
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", f.Path, err)
	}
	res, err := decode.BestEffort(data)
	if err != nil {
		return "", fmt.Errorf("failed to decode %s: %w", f.Path, err)
	}
	return res.Text, nil
}
