package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: debug
  format: console

boundary:
  path: /etc/journalscope/dnLogAtConfig.xml

discovery:
  include: ["**/*.jrn"]

worker_pool:
  num_workers: 4
  job_timeout: 10s

output:
  type: file
  path: /tmp/transactions.ndjson

watch:
  dir: /var/spool/bundles
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "console" {
		t.Errorf("logging = %+v", cfg.Logging)
	}
	if cfg.Boundary.Path != "/etc/journalscope/dnLogAtConfig.xml" {
		t.Errorf("boundary path = %s", cfg.Boundary.Path)
	}
	if cfg.WorkerPool.JobTimeout != 10*time.Second {
		t.Errorf("job timeout = %v", cfg.WorkerPool.JobTimeout)
	}
	if cfg.Watch.Debounce != DefaultWatchDebounce {
		t.Errorf("watch debounce = %v, want default", cfg.Watch.Debounce)
	}
	if cfg.Flow.MaxLength != DefaultFlowMaxLength {
		t.Errorf("flow max length = %d", cfg.Flow.MaxLength)
	}
	if len(cfg.UIJournal.ModuleFilters) != 1 || cfg.UIJournal.ModuleFilters[0].Module != "GUIDM" {
		t.Errorf("module filters = %+v", cfg.UIJournal.ModuleFilters)
	}
}

func TestLoadConfigWithEnvVars(t *testing.T) {
	os.Setenv("JOURNALSCOPE_LOG_LEVEL", "warn")
	defer os.Unsetenv("JOURNALSCOPE_LOG_LEVEL")

	path := writeConfig(t, `
logging:
  level: ${JOURNALSCOPE_LOG_LEVEL}
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Expected log level warn, got %s", cfg.Logging.Level)
	}
	if cfg.Output.Type != "stdout" {
		t.Errorf("Expected default output stdout, got %s", cfg.Output.Type)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad level", "logging:\n  level: loud\n"},
		{"bad format", "logging:\n  format: xml\n"},
		{"bad output", "output:\n  type: carrier-pigeon\n"},
		{"file without path", "output:\n  type: file\n"},
		{"empty multi", "output:\n  type: multi\n"},
		{"nested multi", "output:\n  type: multi\n  multi:\n    outputs:\n      - name: a\n        type: multi\n"},
		{"filter without module", "ui_journal:\n  module_filters:\n    - screens: [X]\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.content)); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadOrDefault(t *testing.T) {
	cfg := LoadOrDefault("/nonexistent/config.yaml")
	if cfg.Logging.Level != DefaultLogLevel {
		t.Errorf("Expected default level, got %s", cfg.Logging.Level)
	}
	if cfg.Output.Type != "stdout" {
		t.Errorf("Expected stdout output, got %s", cfg.Output.Type)
	}
}
