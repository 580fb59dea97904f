package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/therealutkarshpriyadarshi/journalscope/internal/logging"
)

func TestMatches(t *testing.T) {
	dir := t.TempDir()
	w, err := New(Config{
		Dir:     dir,
		Include: []string{"**/*.jrn", "**/*.log"},
		Exclude: []string{"archive/**"},
	}, logging.Nop(), nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer w.Close()

	tests := []struct {
		path string
		want bool
	}{
		{"20240304.jrn", true},
		{"ui/20240304.log", true},
		{"archive/20240101.jrn", false},
		{"notes.txt", false},
		{filepath.Join(dir, "atm", "20240304.jrn"), true},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := w.Matches(tt.path); got != tt.want {
				t.Errorf("Matches(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestNewErrors(t *testing.T) {
	if _, err := New(Config{}, logging.Nop(), nil); err == nil {
		t.Error("expected error without directory")
	}

	file := filepath.Join(t.TempDir(), "file.jrn")
	if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if _, err := New(Config{Dir: file}, logging.Nop(), nil); err == nil {
		t.Error("expected error for non-directory")
	}
	if _, err := New(Config{Dir: t.TempDir(), Include: []string{"[unclosed"}}, logging.Nop(), nil); err == nil {
		t.Error("expected error for invalid pattern")
	}
}

func TestPathRateLimit(t *testing.T) {
	w, err := New(Config{Dir: t.TempDir(), PathRate: rate.Every(time.Hour), PathBurst: 2}, logging.Nop(), nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer w.Close()

	allowed := 0
	for i := 0; i < 5; i++ {
		if w.allow("/inbox/20240304.jrn") {
			allowed++
		}
	}
	if allowed != 2 {
		t.Errorf("expected 2 allowed events, got %d", allowed)
	}
	if !w.allow("/inbox/other.jrn") {
		t.Error("other paths have their own budget")
	}
}

func TestRunDebouncesChanges(t *testing.T) {
	dir := t.TempDir()
	w, err := New(Config{
		Dir:      dir,
		Include:  []string{"**/*.jrn"},
		Debounce: 50 * time.Millisecond,
	}, logging.Nop(), nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan Change, 4)
	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx, func(_ context.Context, c Change) error {
			changes <- c
			return nil
		})
	}()

	journal := filepath.Join(dir, "20240304.jrn")
	if err := os.WriteFile(journal, []byte("10:00:01 START\n"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("x"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	select {
	case c := <-changes:
		if c.Poll {
			t.Error("expected an event change, got a poll")
		}
		if len(c.Paths) != 1 || c.Paths[0] != journal {
			t.Errorf("Paths = %v, want [%s]", c.Paths, journal)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for change")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}

func TestRunPolls(t *testing.T) {
	w, err := New(Config{Dir: t.TempDir(), PollInterval: 20 * time.Millisecond}, logging.Nop(), nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer w.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	polled := make(chan struct{}, 1)
	go w.Run(ctx, func(_ context.Context, c Change) error {
		if c.Poll {
			select {
			case polled <- struct{}{}:
			default:
			}
		}
		return nil
	})

	select {
	case <-polled:
	case <-ctx.Done():
		t.Fatal("timed out waiting for poll")
	}
}
