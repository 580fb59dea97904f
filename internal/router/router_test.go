package router

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/therealutkarshpriyadarshi/journalscope/internal/logging"
	"github.com/therealutkarshpriyadarshi/journalscope/pkg/types"
)

const (
	uiLine       = `09:15:01 12 GUIAPP * [5] - MainMenu result:{"resultDetail":"OK"}`
	customerLine = `09:15:00 3201 Transaction no. '00045'`
	traceLine    = `0001 12/03 10:11:12.34 MOD DEV PID:1a.2b Data:12`
)

func lines(line string, n int) []byte {
	return []byte(strings.Repeat(line+"\n", n))
}

func bundle() []*types.LogFile {
	return []*types.LogFile{
		types.NewLogFileFromBytes("/b/20240304.jrn", lines(customerLine, 6)),
		types.NewLogFileFromBytes("/b/ui/20240304.jrn", lines(uiLine, 6)),
		types.NewLogFileFromBytes("/b/trace.prn", lines(traceLine, 6)),
		types.NewLogFileFromBytes("/b/settings.reg", []byte("x")),
		types.NewLogFileFromBytes("/b/REGdump.TXT", []byte("x")),
		types.NewLogFileFromBytes("/b/notes.txt", lines(customerLine, 20)),
		types.NewLogFileFromBytes("/b/short.jrn", lines(customerLine, 2)),
		types.NewLogFile("/b/does-not-exist.jrn"),
	}
}

func TestIsRegistryName(t *testing.T) {
	tests := map[string]bool{
		"a.reg":         true,
		"A.REG":         true,
		"registry.txt":  true,
		"preg_dump.txt": true,
		"notes.txt":     false,
		"reg.jrn":       false,
	}
	for name, want := range tests {
		if got := IsRegistryName(name); got != want {
			t.Errorf("IsRegistryName(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestRoute(t *testing.T) {
	for _, workers := range []int{1, 4} {
		r := New(Config{Workers: workers}, logging.Nop())

		res, err := r.Route(context.Background(), bundle())
		if err != nil {
			t.Fatalf("Route() error = %v", err)
		}

		want := map[types.Category][]string{
			types.CategoryCustomerJournals: {"/b/20240304.jrn"},
			types.CategoryUIJournals:       {"/b/ui/20240304.jrn"},
			types.CategoryTRCTrace:         {"/b/trace.prn"},
			types.CategoryTRCError:         {},
			types.CategoryRegistryFiles:    {"/b/settings.reg", "/b/REGdump.TXT"},
		}
		for cat, paths := range want {
			got := res.Bucket(cat)
			if len(got) != len(paths) {
				t.Errorf("workers=%d: bucket %s = %v, want %v", workers, cat, got, paths)
				continue
			}
			for i := range paths {
				if got[i] != paths[i] {
					t.Errorf("workers=%d: bucket %s[%d] = %s, want %s", workers, cat, i, got[i], paths[i])
				}
			}
		}

		if len(res.Buckets) != len(types.Categories) {
			t.Errorf("expected %d buckets, got %d", len(types.Categories), len(res.Buckets))
		}

		wantStats := Stats{Total: 8, Classified: 5, Unclassified: 2, Failed: 1, Registry: 2}
		if res.Stats != wantStats {
			t.Errorf("workers=%d: Stats = %+v, want %+v", workers, res.Stats, wantStats)
		}
		if res.Files[7].Err == nil || res.Files[7].Error == "" {
			t.Errorf("missing file should carry an error: %+v", res.Files[7])
		}
	}
}

func TestRouteCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := New(Config{}, logging.Nop())
	if _, err := r.Route(ctx, bundle()); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestRouteFromDisk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "20240101.jrn")
	if err := os.WriteFile(path, lines(customerLine, 8), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	r := New(Config{}, logging.Nop())
	res, err := r.Route(context.Background(), []*types.LogFile{types.NewLogFile(path)})
	if err != nil {
		t.Fatalf("Route() error = %v", err)
	}
	if got := res.Bucket(types.CategoryCustomerJournals); len(got) != 1 || got[0] != path {
		t.Errorf("customer bucket = %v", got)
	}
}

func TestOperations(t *testing.T) {
	if got := Operations(types.CategoryCustomerJournals); len(got) == 0 || got[0] != "extract" {
		t.Errorf("Operations(customer_journals) = %v", got)
	}
	if got := Operations(types.CategoryRegistryFiles); got != nil {
		t.Errorf("Operations(registry_files) = %v, want nil", got)
	}

	res := &Result{Buckets: map[types.Category][]string{
		types.CategoryCustomerJournals: {"a.jrn"},
		types.CategoryUIJournals:       {"b.jrn"},
		types.CategoryTRCTrace:         {},
	}}
	present := res.Present()
	if len(present) != 2 || present[0] != types.CategoryCustomerJournals || present[1] != types.CategoryUIJournals {
		t.Fatalf("Present() = %v", present)
	}
	if got := CombinedOperations(present); len(got) != 2 {
		t.Errorf("CombinedOperations() = %v, want flows and compare", got)
	}
	if got := CombinedOperations(present[:1]); got != nil {
		t.Errorf("CombinedOperations(customer only) = %v, want nil", got)
	}
}
