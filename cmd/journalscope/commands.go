package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/therealutkarshpriyadarshi/journalscope/internal/flow"
	"github.com/therealutkarshpriyadarshi/journalscope/internal/output"
	"github.com/therealutkarshpriyadarshi/journalscope/internal/pipeline"
	"github.com/therealutkarshpriyadarshi/journalscope/internal/render"
	"github.com/therealutkarshpriyadarshi/journalscope/internal/router"
	"github.com/therealutkarshpriyadarshi/journalscope/internal/transaction"
	"github.com/therealutkarshpriyadarshi/journalscope/pkg/types"
)

// bundle is a classified directory with its extracted content
type bundle struct {
	routing    *router.Result
	extraction *pipeline.Extraction
	ui         *pipeline.UIParse
}

// discover lists the files of every argument. Directories are expanded with
// the configured discovery patterns.
func (a *app) discover(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		found, err := pipeline.Discover(arg, a.cfg.Discovery.Include, a.cfg.Discovery.Exclude)
		if err != nil {
			return nil, err
		}
		paths = append(paths, found...)
	}
	return paths, nil
}

// loadBundle classifies dir and extracts what its buckets hold
func (a *app) loadBundle(ctx context.Context, p *pipeline.Pipeline, dir string, withUI bool) (*bundle, error) {
	paths, err := a.discover([]string{dir})
	if err != nil {
		return nil, err
	}
	routing, err := p.Classify(ctx, paths)
	if err != nil {
		return nil, err
	}

	b := &bundle{routing: routing}
	b.extraction, err = p.Extract(ctx, routing.Bucket(types.CategoryCustomerJournals))
	if err != nil {
		return nil, err
	}
	if withUI {
		b.ui, err = p.ParseUI(ctx, routing.Bucket(types.CategoryUIJournals))
		if err != nil {
			return nil, err
		}
	}
	return b, nil
}

func (a *app) classifyCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "classify <dir|files...>",
		Short: "Sort the files of a bundle into category buckets",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.newPipeline(false, pipeline.Options{})
			if err != nil {
				return err
			}
			paths, err := a.discover(args)
			if err != nil {
				return err
			}
			res, err := p.Classify(cmd.Context(), paths)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(w, res)
			}
			rows := make([][]string, 0, len(res.Files))
			for _, f := range res.Files {
				note := f.Reason
				if f.Error != "" {
					note = f.Error
				}
				rows = append(rows, []string{f.Path, string(f.Label), note})
			}
			fmt.Fprintln(w, render.Table([]string{"FILE", "LABEL", "REASON"}, rows))
			fmt.Fprintln(w)
			fmt.Fprintln(w, render.Routing(res))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&asJSON, "json", "j", false, "output as JSON")
	return cmd
}

func (a *app) extractCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "extract <dir>",
		Short: "Extract transactions from the customer journals of a bundle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.newPipeline(true, pipeline.Options{})
			if err != nil {
				return err
			}
			b, err := a.loadBundle(cmd.Context(), p, args[0], false)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			ex := b.extraction
			if asJSON {
				return writeJSON(w, struct {
					Transactions []types.TransactionRecord `json:"transactions"`
					Summary      transaction.Summary       `json:"summary"`
					Dropped      int                       `json:"dropped"`
					Errors       []pipeline.FileError      `json:"errors,omitempty"`
				}{transaction.Records(ex.Transactions), ex.Summary, ex.Dropped, ex.Errors})
			}
			fmt.Fprintln(w, render.Transactions(ex.Transactions))
			s := ex.Summary
			fmt.Fprintf(w, "\n%d transactions: %d successful, %d unsuccessful, %d unknown, %d types across %d files\n",
				s.Total, s.Successful, s.Unsuccessful, s.Unknown, s.UniqueTypes, s.UniqueFiles)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&asJSON, "json", "j", false, "output as JSON")
	return cmd
}

func (a *app) eventsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "events <uijournal>",
		Short: "Parse a UI journal into structured events (NDJSON)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.newPipeline(false, pipeline.Options{})
			if err != nil {
				return err
			}
			ui, err := p.ParseUI(cmd.Context(), args)
			if err != nil {
				return err
			}
			if len(ui.Errors) > 0 {
				return fmt.Errorf("%s", ui.Errors[0].Error)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, ev := range ui.Events {
				if err := enc.Encode(ev); err != nil {
					return err
				}
			}
			a.logger.Info().
				Int("events", ui.Stats.Events).
				Int("duplicates", ui.Stats.Duplicates).
				Int("malformed_payloads", ui.Stats.MalformedPayloads).
				Msg("UI journal parsed")
			return nil
		},
	}
}

func (a *app) flowsCmd() *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "flows <dir>",
		Short: "Write the UI flow report of every transaction in a bundle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.newPipeline(true, pipeline.Options{})
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			b, err := a.loadBundle(ctx, p, args[0], true)
			if err != nil {
				return err
			}
			entries := p.Flows(ctx, b.extraction.Transactions, b.ui.Events)

			var w io.Writer = cmd.OutOrStdout()
			if outPath != "" {
				f, err := os.Create(outPath)
				if err != nil {
					return fmt.Errorf("failed to create report: %w", err)
				}
				defer f.Close()
				w = f
			}
			if err := flow.WriteReport(w, entries); err != nil {
				return fmt.Errorf("failed to write report: %w", err)
			}
			if outPath != "" {
				a.logger.Info().Str("path", outPath).Int("transactions", len(entries)).Msg("Flow report written")
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&outPath, "output", "o", "", "write the report to a file")
	return cmd
}

func (a *app) compareCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "compare <dir> <txnA> <txnB>",
		Short: "Compare the UI flows of two transactions",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.newPipeline(true, pipeline.Options{})
			if err != nil {
				return err
			}
			b, err := a.loadBundle(cmd.Context(), p, args[0], true)
			if err != nil {
				return err
			}
			c, err := p.Compare(b.extraction.Transactions, b.ui.Events, args[1], args[2])
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(w, c)
			}
			fmt.Fprintln(w, render.Alignment(c.Alignment,
				fmt.Sprintf("%s (%s)", c.A.ID, c.A.Type),
				fmt.Sprintf("%s (%s)", c.B.ID, c.B.Type)))
			fmt.Fprintln(w)
			return flow.WriteComparison(w, c)
		},
	}
	cmd.Flags().BoolVarP(&asJSON, "json", "j", false, "output as JSON")
	return cmd
}

func (a *app) analyzeCmd() *cobra.Command {
	var (
		asJSON       bool
		showProgress bool
	)
	cmd := &cobra.Command{
		Use:   "analyze <dir>",
		Short: "Run the full analysis and publish transaction records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			tp, err := a.newTracer(ctx)
			if err != nil {
				return err
			}
			defer tp.Shutdown(context.Background())

			collector := a.newCollector()
			out, err := output.New(ctx, a.cfg.Output, output.Options{
				Retry:     a.retryConfig(),
				Collector: collector,
				Logger:    a.logger,
			})
			if err != nil {
				return err
			}
			defer out.Close()

			opts := pipeline.Options{
				Output:    out,
				Collector: collector,
				Tracer:    tp.Tracer(),
			}
			if showProgress {
				opts.Progress = newProgress(os.Stderr)
			}
			p, err := a.newPipeline(true, opts)
			if err != nil {
				return err
			}

			report, err := p.Run(ctx, args[0])
			if err != nil {
				return err
			}

			// Records may be going to stdout, so the summary goes to stderr
			w := cmd.ErrOrStderr()
			if asJSON {
				return writeJSON(w, report)
			}
			fmt.Fprintln(w, render.Routing(report.Routing))
			fmt.Fprintf(w, "\nrun %s: %d transactions, %d UI events, %d published to %s in %s\n",
				report.RunID, len(report.Transactions), len(report.Events), report.Published,
				out.Name(), report.Duration().Round(time.Millisecond))
			for _, fe := range report.Errors {
				fmt.Fprintf(w, "  %s [%s]: %s\n", fe.Path, fe.Stage, fe.Error)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&asJSON, "json", "j", false, "print the run report as JSON")
	cmd.Flags().BoolVar(&showProgress, "progress", false, "show per-stage progress bars")
	return cmd
}

// newProgress draws one progress bar per pipeline stage
func newProgress(w io.Writer) pipeline.ProgressFunc {
	bars := make(map[string]*progressbar.ProgressBar)
	return func(stage string, done, total int) {
		bar, ok := bars[stage]
		if !ok {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetWriter(w),
				progressbar.OptionShowCount(),
				progressbar.OptionSetWidth(40),
				progressbar.OptionSetDescription(stage),
				progressbar.OptionOnCompletion(func() { fmt.Fprintln(w) }),
			)
			bars[stage] = bar
		}
		_ = bar.Set(done)
	}
}
