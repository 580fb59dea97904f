package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/therealutkarshpriyadarshi/journalscope/internal/checkpoint"
	"github.com/therealutkarshpriyadarshi/journalscope/internal/flow"
	"github.com/therealutkarshpriyadarshi/journalscope/internal/output"
	"github.com/therealutkarshpriyadarshi/journalscope/internal/parser"
	"github.com/therealutkarshpriyadarshi/journalscope/internal/router"
	"github.com/therealutkarshpriyadarshi/journalscope/internal/tracing"
	"github.com/therealutkarshpriyadarshi/journalscope/internal/transaction"
	"github.com/therealutkarshpriyadarshi/journalscope/pkg/types"
)

// Run statuses reported in RunsTotal
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// Report is the result of one full analysis run
type Report struct {
	RunID        string              `json:"run_id"`
	Root         string              `json:"root"`
	StartedAt    time.Time           `json:"started_at"`
	FinishedAt   time.Time           `json:"finished_at"`
	Skipped      bool                `json:"skipped,omitempty"`
	Routing      *router.Result      `json:"routing,omitempty"`
	Operations   []string            `json:"operations,omitempty"`
	Transactions []types.Transaction `json:"transactions,omitempty"`
	Summary      transaction.Summary `json:"summary"`
	Events       []types.UiEvent     `json:"-"`
	UIStats      parser.UIStats      `json:"ui_stats"`
	Flows        []flow.Entry        `json:"flows,omitempty"`
	Stats        types.RunStats      `json:"stats"`
	Errors       []FileError         `json:"errors,omitempty"`
	Published    int                 `json:"published"`
}

// Duration returns how long the run took
func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Run analyzes every file under root. With a ledger configured, a run whose
// files are all unchanged since the last successful run is skipped.
func (p *Pipeline) Run(ctx context.Context, root string) (report *Report, err error) {
	report = &Report{
		RunID:     uuid.NewString(),
		Root:      root,
		StartedAt: time.Now(),
	}
	logger := p.logger.WithRun(report.RunID)

	ctx, span := tracing.TraceRun(ctx, p.tracer, report.RunID, root)
	defer func() {
		report.FinishedAt = time.Now()
		status := StatusSuccess
		switch {
		case err != nil:
			status = StatusFailed
			span.RecordError(err)
		case report.Skipped:
			status = StatusSkipped
		}
		if p.collector != nil {
			p.collector.RunsTotal.WithLabelValues(status).Inc()
			if status != StatusSkipped {
				p.collector.RunDuration.Observe(report.Duration().Seconds())
			}
		}
		span.SetAttributes(attribute.String("run.status", status))
		span.End()
	}()

	paths, err := Discover(root, p.config.Include, p.config.Exclude)
	if err != nil {
		return report, err
	}
	logger.Info().Str("root", root).Int("files", len(paths)).Msg("Run started")

	fingerprints, unchanged := p.fingerprint(paths)
	if p.ledger != nil && p.ledger.Len() > 0 && unchanged == len(paths) && !p.removedSince(paths) {
		report.Skipped = true
		if p.collector != nil {
			p.collector.LedgerSkips.Add(float64(unchanged))
		}
		logger.Info().Int("files", unchanged).Msg("Bundle unchanged since last run, skipping")
		return report, nil
	}

	routing, err := p.Classify(ctx, paths)
	if err != nil {
		return report, err
	}
	report.Routing = routing
	report.Operations = router.CombinedOperations(routing.Present())
	report.Stats.FilesClassified = int64(routing.Stats.Classified)
	report.Stats.FilesUnclassified = int64(routing.Stats.Unclassified)
	report.Stats.FilesFailed = int64(routing.Stats.Failed)

	report.Transactions = []types.Transaction{}
	if journals := routing.Bucket(types.CategoryCustomerJournals); len(journals) > 0 {
		ex, err := p.Extract(ctx, journals)
		if err != nil {
			return report, err
		}
		report.Transactions = ex.Transactions
		report.Summary = ex.Summary
		report.Errors = append(report.Errors, ex.Errors...)
		report.Stats.TransactionsExtracted = int64(len(ex.Transactions))
		report.Stats.TransactionsDropped = int64(ex.Dropped)
		report.Stats.TransactionsUnresolved = int64(ex.Unresolved)
	} else {
		report.Summary = transaction.Summarize(nil)
	}

	if journals := routing.Bucket(types.CategoryUIJournals); len(journals) > 0 {
		ui, err := p.ParseUI(ctx, journals)
		if err != nil {
			return report, err
		}
		report.Events = ui.Events
		report.UIStats = ui.Stats
		report.Errors = append(report.Errors, ui.Errors...)
		report.Stats.UIEventsParsed = int64(len(ui.Events))
		report.Stats.MalformedPayloads = int64(ui.Stats.MalformedPayloads)
		report.Flows = p.Flows(ctx, report.Transactions, report.Events)
	}

	if err := p.publish(ctx, report); err != nil {
		return report, err
	}
	if err := p.updateLedger(paths, fingerprints); err != nil {
		return report, err
	}

	logger.Info().
		Int("transactions", len(report.Transactions)).
		Int("ui_events", len(report.Events)).
		Int("published", report.Published).
		Int("errors", len(report.Errors)).
		Dur("duration", time.Since(report.StartedAt)).
		Msg("Run complete")
	return report, nil
}

// fingerprint hashes every path. Files that cannot be hashed count as changed
// and are left out of the ledger.
func (p *Pipeline) fingerprint(paths []string) ([]*checkpoint.Entry, int) {
	if p.ledger == nil {
		return nil, 0
	}
	fps := make([]*checkpoint.Entry, 0, len(paths))
	unchanged := 0
	for _, path := range paths {
		fp, err := checkpoint.Fingerprint(path)
		if err != nil {
			p.logger.Debug().Str("path", path).Err(err).Msg("Failed to fingerprint file")
			continue
		}
		fps = append(fps, fp)
		if !p.ledger.Changed(fp) {
			unchanged++
		}
	}
	return fps, unchanged
}

// removedSince reports whether a file from the last run is no longer present
func (p *Pipeline) removedSince(paths []string) bool {
	current := make(map[string]bool, len(paths))
	for _, path := range paths {
		current[path] = true
	}
	for _, path := range p.ledger.Paths() {
		if !current[path] {
			return true
		}
	}
	return false
}

func (p *Pipeline) updateLedger(paths []string, fps []*checkpoint.Entry) error {
	if p.ledger == nil {
		return nil
	}
	current := make(map[string]bool, len(paths))
	for _, path := range paths {
		current[path] = true
	}
	var removed []string
	for _, path := range p.ledger.Paths() {
		if !current[path] {
			removed = append(removed, path)
		}
	}
	p.ledger.Forget(removed...)
	for _, fp := range fps {
		p.ledger.Mark(fp)
	}
	if err := p.ledger.Save(); err != nil {
		return fmt.Errorf("failed to save ledger: %w", err)
	}
	return nil
}

// publish sends one record per transaction to the configured output
func (p *Pipeline) publish(ctx context.Context, report *Report) error {
	if p.output == nil || len(report.Transactions) == 0 {
		return nil
	}

	ctx, span := tracing.TraceOutput(ctx, p.tracer, p.output.Name(), len(report.Transactions))
	defer span.End()

	at := time.Now()
	records := make([]*output.Record, len(report.Transactions))
	for i := range report.Transactions {
		txn := &report.Transactions[i]
		records[i] = output.NewRecord(report.RunID, txn, flow.ForTransaction(report.Events, txn), at)
	}

	if err := p.output.SendBatch(ctx, records); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to publish to %s: %w", p.output.Name(), err)
	}
	report.Published = len(records)
	return nil
}
