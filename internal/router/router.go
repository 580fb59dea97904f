// Package router partitions discovered files into per-family buckets.
package router

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/therealutkarshpriyadarshi/journalscope/internal/classifier"
	"github.com/therealutkarshpriyadarshi/journalscope/internal/logging"
	"github.com/therealutkarshpriyadarshi/journalscope/internal/worker"
	"github.com/therealutkarshpriyadarshi/journalscope/pkg/types"
)

// Config holds router configuration
type Config struct {
	// Workers > 1 classifies files concurrently through a worker pool
	Workers    int
	QueueSize  int
	Classifier *classifier.Classifier

	// OnResult, when set, observes every routed file. It may be called concurrently.
	OnResult func(fr FileResult, took time.Duration)
}

// FileResult is the routing outcome of one file
type FileResult struct {
	Path     string            `json:"path"`
	Label    types.FamilyLabel `json:"label,omitempty"`
	Category types.Category    `json:"category,omitempty"`
	Reason   string            `json:"reason,omitempty"`
	Error    string            `json:"error,omitempty"`
	Err      error             `json:"-"`
}

// Stats holds aggregate routing counts
type Stats struct {
	Total        int `json:"total"`
	Classified   int `json:"classified"`
	Unclassified int `json:"unclassified"`
	Failed       int `json:"failed"`
	Registry     int `json:"registry"`
}

// Result is the output of a routing pass. Unclassified and failed files appear
// in Files but in no bucket.
type Result struct {
	Buckets map[types.Category][]string `json:"buckets"`
	Files   []FileResult                `json:"files"`
	Stats   Stats                       `json:"stats"`
}

// Bucket returns the paths routed to category
func (r *Result) Bucket(c types.Category) []string {
	return r.Buckets[c]
}

// Router routes files using filename short-circuits and the classifier
type Router struct {
	config     Config
	classifier *classifier.Classifier
	logger     *logging.Logger
}

// New creates a router
func New(config Config, logger *logging.Logger) *Router {
	c := config.Classifier
	if c == nil {
		c = classifier.New(classifier.DefaultConfig())
	}
	return &Router{
		config:     config,
		classifier: c,
		logger:     logger.WithComponent("router"),
	}
}

// IsRegistryName reports whether name follows the registry export naming convention
func IsRegistryName(name string) bool {
	lower := strings.ToLower(name)
	if strings.HasSuffix(lower, ".reg") {
		return true
	}
	return strings.HasSuffix(lower, ".txt") && strings.Contains(lower, "reg")
}

// RouteOne routes a single file
func (r *Router) RouteOne(f *types.LogFile) FileResult {
	start := time.Now()
	fr := r.routeOne(f)
	if r.config.OnResult != nil {
		r.config.OnResult(fr, time.Since(start))
	}
	return fr
}

func (r *Router) routeOne(f *types.LogFile) FileResult {
	if IsRegistryName(f.Name()) {
		return FileResult{Path: f.Path, Label: types.FamilyRegistry, Category: types.CategoryRegistryFiles}
	}

	res := r.classifier.ClassifyFile(f)
	fr := FileResult{Path: f.Path, Label: res.Label, Reason: res.Reason, Err: res.Err}
	if res.Err != nil {
		fr.Error = res.Err.Error()
		return fr
	}
	if cat, ok := types.CategoryFor(res.Label); ok {
		fr.Category = cat
	}
	return fr
}

// Route routes every file, preserving input order within each bucket
func (r *Router) Route(ctx context.Context, files []*types.LogFile) (*Result, error) {
	results := make([]FileResult, len(files))

	if r.config.Workers > 1 && len(files) > 1 {
		if err := r.routeParallel(ctx, files, results); err != nil {
			return nil, err
		}
	} else {
		for i, f := range files {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			results[i] = r.RouteOne(f)
		}
	}

	out := &Result{
		Buckets: make(map[types.Category][]string, len(types.Categories)),
		Files:   results,
	}
	for _, c := range types.Categories {
		out.Buckets[c] = []string{}
	}

	for _, fr := range results {
		out.Stats.Total++
		switch {
		case fr.Err != nil:
			out.Stats.Failed++
			r.logger.Warn().Str("path", fr.Path).Err(fr.Err).Msg("File could not be classified")
		case fr.Category == "":
			out.Stats.Unclassified++
			r.logger.Debug().Str("path", fr.Path).Str("reason", fr.Reason).Msg("File unclassified")
		default:
			out.Stats.Classified++
			if fr.Category == types.CategoryRegistryFiles {
				out.Stats.Registry++
			}
			out.Buckets[fr.Category] = append(out.Buckets[fr.Category], fr.Path)
		}
	}

	r.logger.Info().
		Int("total", out.Stats.Total).
		Int("classified", out.Stats.Classified).
		Int("unclassified", out.Stats.Unclassified).
		Int("failed", out.Stats.Failed).
		Msg("Routing complete")

	return out, nil
}

func (r *Router) routeParallel(ctx context.Context, files []*types.LogFile, results []FileResult) error {
	index := make(map[*types.LogFile]int, len(files))
	for i, f := range files {
		index[f] = i
	}

	var mu sync.Mutex
	pool, err := worker.NewWorkerPool(worker.PoolConfig{
		NumWorkers: r.config.Workers,
		QueueSize:  r.config.QueueSize,
	}, func(ctx context.Context, f *types.LogFile) error {
		fr := r.RouteOne(f)
		mu.Lock()
		results[index[f]] = fr
		mu.Unlock()
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to create worker pool: %w", err)
	}
	pool.Start()
	defer pool.Stop()

	for _, err := range pool.Run(ctx, files) {
		if err != nil {
			return fmt.Errorf("routing interrupted: %w", err)
		}
	}
	return nil
}
