package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/therealutkarshpriyadarshi/journalscope/internal/checkpoint"
	"github.com/therealutkarshpriyadarshi/journalscope/internal/config"
	"github.com/therealutkarshpriyadarshi/journalscope/internal/health"
	"github.com/therealutkarshpriyadarshi/journalscope/internal/metrics"
	"github.com/therealutkarshpriyadarshi/journalscope/internal/output"
	"github.com/therealutkarshpriyadarshi/journalscope/internal/pipeline"
	"github.com/therealutkarshpriyadarshi/journalscope/internal/server"
	"github.com/therealutkarshpriyadarshi/journalscope/internal/shutdown"
	"github.com/therealutkarshpriyadarshi/journalscope/internal/watcher"
)

func (a *app) watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch [dir]",
		Short: "Watch an inbox directory and rerun the analysis when it changes",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.watch(args)
		},
	}
}

func (a *app) watch(args []string) (err error) {
	wc := config.WatchConfig{
		Debounce:     config.DefaultWatchDebounce,
		PollInterval: config.DefaultWatchPoll,
	}
	if a.cfg.Watch != nil {
		wc = *a.cfg.Watch
	}
	if len(args) == 1 {
		wc.Dir = args[0]
	}
	if wc.Dir == "" {
		return fmt.Errorf("no watch directory specified")
	}
	dir, err := filepath.Abs(wc.Dir)
	if err != nil {
		return fmt.Errorf("failed to resolve watch directory: %w", err)
	}

	ledgerPath := wc.LedgerPath
	if ledgerPath == "" {
		ledgerPath = filepath.Join(dir, config.DefaultLedgerFileName)
	}
	ledgerPath, err = filepath.Abs(ledgerPath)
	if err != nil {
		return fmt.Errorf("failed to resolve ledger path: %w", err)
	}
	// A ledger kept inside the inbox must not be analyzed or trigger reruns
	if rel, err := filepath.Rel(dir, ledgerPath); err == nil && !strings.HasPrefix(rel, "..") {
		a.cfg.Discovery.Exclude = append(a.cfg.Discovery.Exclude, filepath.ToSlash(rel)+"*")
	}

	ledger, err := checkpoint.Open(ledgerPath)
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}

	mgr := shutdown.New(shutdown.Config{Logger: a.logger})
	ctx := mgr.Context()
	defer func() {
		if err != nil {
			mgr.Shutdown()
		}
	}()

	tp, err := a.newTracer(ctx)
	if err != nil {
		return err
	}
	mgr.RegisterFunc("tracing", tp.Shutdown)

	collector := metrics.NewCollector()
	collector.Start()
	mgr.RegisterFunc("metrics", func(context.Context) error {
		collector.Stop()
		return nil
	})

	out, err := output.New(ctx, a.cfg.Output, output.Options{
		Retry:     a.retryConfig(),
		Collector: collector,
		Logger:    a.logger,
	})
	if err != nil {
		return err
	}
	mgr.RegisterFunc("output", func(context.Context) error { return out.Close() })

	p, err := a.newPipeline(true, pipeline.Options{
		Output:    out,
		Collector: collector,
		Tracer:    tp.Tracer(),
		Ledger:    ledger,
	})
	if err != nil {
		return err
	}

	status := &health.RunStatus{}
	if err := a.startServer(mgr, collector, status, out); err != nil {
		return err
	}

	w, err := watcher.New(watcher.Config{
		Dir:          dir,
		Include:      a.cfg.Discovery.Include,
		Exclude:      a.cfg.Discovery.Exclude,
		Debounce:     wc.Debounce,
		PollInterval: wc.PollInterval,
	}, a.logger, collector)
	if err != nil {
		return err
	}

	analyze := func(ctx context.Context, change watcher.Change) error {
		if len(change.Paths) > 0 {
			a.logger.Debug().Strs("paths", change.Paths).Msg("Inbox changed")
		}
		report, err := p.Run(ctx, dir)
		status.Record(report.RunID, len(report.Transactions), err)
		return err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := analyze(ctx, watcher.Change{Poll: true}); err != nil && ctx.Err() == nil {
			a.logger.Error().Err(err).Msg("Initial run failed")
		}
		if err := w.Run(ctx, analyze); err != nil {
			a.logger.Error().Err(err).Msg("Watcher stopped")
		}
	}()
	// Registered last so it stops first and the output drains after it
	mgr.RegisterFunc("watcher", func(ctx context.Context) error {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
		return w.Close()
	})

	a.logger.Info().
		Str("dir", dir).
		Str("ledger", ledgerPath).
		Str("output", out.Name()).
		Dur("debounce", wc.Debounce).
		Dur("poll_interval", wc.PollInterval).
		Msg("Watching inbox")

	return mgr.WaitForSignal()
}

// startServer serves metrics and health endpoints when they are configured
func (a *app) startServer(mgr *shutdown.Manager, collector *metrics.Collector, status *health.RunStatus, out output.Output) error {
	scfg := server.Config{Logger: a.logger}
	if m := a.cfg.Metrics; m != nil && m.Enabled {
		scfg.MetricsAddress = m.Address
		scfg.MetricsPath = m.Path
		scfg.MetricsRegistry = collector.Registry()
	}
	if h := a.cfg.Health; h != nil && h.Enabled {
		timeout := h.Timeout
		if timeout == 0 {
			timeout = 5 * time.Second
		}
		checker := health.NewChecker(timeout)
		checker.Register("last_run", status.Check())
		checker.Register("output", health.OutputCheck(out))

		scfg.HealthAddress = h.Address
		scfg.LivenessPath = h.LivenessPath
		scfg.ReadinessPath = h.ReadinessPath
		scfg.HealthChecker = checker
	}
	if scfg.MetricsRegistry == nil && scfg.HealthChecker == nil {
		return nil
	}

	srv := server.New(scfg)
	if err := srv.Start(); err != nil {
		return err
	}
	mgr.RegisterComponent(srv)
	return nil
}
