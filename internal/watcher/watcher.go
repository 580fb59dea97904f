package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"

	"github.com/therealutkarshpriyadarshi/journalscope/internal/logging"
	"github.com/therealutkarshpriyadarshi/journalscope/internal/metrics"
)

// Config controls what the watcher reacts to and how often
type Config struct {
	// Dir is the inbox root; subdirectories are watched too
	Dir string

	// Include and Exclude are doublestar patterns relative to Dir
	Include []string
	Exclude []string

	// Debounce is the quiet period after the last event before a change fires
	Debounce time.Duration

	// PollInterval fires a rescan even without events; zero disables it
	PollInterval time.Duration

	// PathRate and PathBurst bound how many events one path may contribute
	PathRate  rate.Limit
	PathBurst int
}

// Change is one debounced batch of changed paths
type Change struct {
	Paths []string
	Poll  bool
}

// HandlerFunc is invoked for every change
type HandlerFunc func(ctx context.Context, change Change) error

// Watcher reports debounced changes under an inbox directory
type Watcher struct {
	config    Config
	fsw       *fsnotify.Watcher
	logger    *logging.Logger
	collector *metrics.Collector

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// New creates a watcher over cfg.Dir. collector may be nil.
func New(cfg Config, logger *logging.Logger, collector *metrics.Collector) (*Watcher, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("no watch directory specified")
	}
	dir, err := filepath.Abs(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve watch directory: %w", err)
	}
	cfg.Dir = dir

	info, err := os.Stat(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to stat watch directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", cfg.Dir)
	}
	for _, p := range append(append([]string{}, cfg.Include...), cfg.Exclude...) {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid watch pattern: %s", p)
		}
	}

	if cfg.Debounce <= 0 {
		cfg.Debounce = 2 * time.Second
	}
	if cfg.PathRate <= 0 {
		cfg.PathRate = rate.Every(time.Second)
	}
	if cfg.PathBurst <= 0 {
		cfg.PathBurst = 5
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	w := &Watcher{
		config:    cfg,
		fsw:       fsw,
		logger:    logger.WithComponent("watcher"),
		collector: collector,
		limiters:  make(map[string]*rate.Limiter),
	}

	if err := w.addTree(cfg.Dir); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

// addTree watches dir and every directory below it
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}

// Matches reports whether path, absolute or relative to Dir, passes the filters
func (w *Watcher) Matches(path string) bool {
	rel := path
	if filepath.IsAbs(path) {
		r, err := filepath.Rel(w.config.Dir, path)
		if err != nil {
			return false
		}
		rel = r
	}
	rel = filepath.ToSlash(rel)

	for _, p := range w.config.Exclude {
		if ok, _ := doublestar.Match(p, rel); ok {
			return false
		}
	}
	if len(w.config.Include) == 0 {
		return true
	}
	for _, p := range w.config.Include {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

// allow applies the per-path event budget
func (w *Watcher) allow(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	limiter, ok := w.limiters[path]
	if !ok {
		limiter = rate.NewLimiter(w.config.PathRate, w.config.PathBurst)
		w.limiters[path] = limiter
	}
	return limiter.Allow()
}

// Run delivers changes to handle until ctx is done. Handler errors are
// logged and do not stop the watcher.
func (w *Watcher) Run(ctx context.Context, handle HandlerFunc) error {
	timer := time.NewTimer(w.config.Debounce)
	timer.Stop()
	defer timer.Stop()
	var debounce <-chan time.Time

	var poll <-chan time.Time
	if w.config.PollInterval > 0 {
		ticker := time.NewTicker(w.config.PollInterval)
		defer ticker.Stop()
		poll = ticker.C
	}

	pending := make(map[string]struct{})
	fire := func(change Change) {
		if err := handle(ctx, change); err != nil && ctx.Err() == nil {
			w.logger.Error().Err(err).Int("paths", len(change.Paths)).Msg("Change handler failed")
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if w.accept(event) {
				pending[event.Name] = struct{}{}
				timer.Reset(w.config.Debounce)
				debounce = timer.C
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error().Err(err).Msg("File watcher error")

		case <-debounce:
			debounce = nil
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
			}
			sort.Strings(paths)
			pending = make(map[string]struct{})
			fire(Change{Paths: paths})

		case <-poll:
			fire(Change{Poll: true})
		}
	}
}

// accept filters one filesystem event, watching new subdirectories as they appear
func (w *Watcher) accept(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}

	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(event.Name); err != nil {
				w.logger.Warn().Err(err).Str("path", event.Name).Msg("Failed to watch new directory")
			}
			return false
		}
	}

	if !w.Matches(event.Name) {
		return false
	}
	if w.collector != nil {
		w.collector.WatchEvents.WithLabelValues(opName(event.Op)).Inc()
	}
	if !w.allow(event.Name) {
		w.logger.Debug().Str("path", event.Name).Msg("Event rate limited")
		return false
	}

	w.logger.Debug().Str("path", event.Name).Str("op", event.Op.String()).Msg("File event")
	return true
}

// Close stops watching
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

func opName(op fsnotify.Op) string {
	switch {
	case op&fsnotify.Create != 0:
		return "create"
	case op&fsnotify.Write != 0:
		return "write"
	case op&fsnotify.Remove != 0:
		return "remove"
	case op&fsnotify.Rename != 0:
		return "rename"
	default:
		return "other"
	}
}
