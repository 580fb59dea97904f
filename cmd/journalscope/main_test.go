package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/therealutkarshpriyadarshi/journalscope/internal/config"
)

const boundaryConfig = `logging:
  level: error
boundary:
  start_ids: ["3201"]
  end_ids: ["3220"]
  transactions:
    - key: COUT
      value: Withdrawal
`

func writeTestBundle(t *testing.T) (dir, cfgPath string) {
	t.Helper()
	dir = t.TempDir()
	journal := strings.Join([]string{
		"09:15:00 3201 Transaction no. '00045'",
		"09:15:05 3217 Function 'COUT/1'",
		"09:15:30 3220 end-state'N'",
		"09:20:00 3201 Transaction no. '00046'",
		"09:20:04 3217 Function 'COUT/2'",
		"09:20:20 3220 end-state'N'",
	}, "\n") + "\n"
	if err := os.WriteFile(filepath.Join(dir, "20240304.jrn"), []byte(journal), 0644); err != nil {
		t.Fatalf("Failed to write journal: %v", err)
	}

	cfgPath = filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(boundaryConfig), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return dir, cfgPath
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestClassifyJSON(t *testing.T) {
	dir, cfgPath := writeTestBundle(t)

	out, err := execute(t, "--config", cfgPath, "classify", "--json", dir)
	if err != nil {
		t.Fatalf("classify error = %v", err)
	}

	var res struct {
		Buckets map[string][]string `json:"buckets"`
		Stats   struct {
			Total int `json:"total"`
		} `json:"stats"`
	}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("Failed to decode output: %v\n%s", err, out)
	}
	if res.Stats.Total != 1 || len(res.Buckets["customer_journals"]) != 1 {
		t.Errorf("classify = %+v", res)
	}
}

func TestExtractJSON(t *testing.T) {
	dir, cfgPath := writeTestBundle(t)

	out, err := execute(t, "--config", cfgPath, "extract", "-j", dir)
	if err != nil {
		t.Fatalf("extract error = %v", err)
	}

	var res struct {
		Transactions []map[string]interface{} `json:"transactions"`
		Summary      struct {
			Total      int `json:"total_transactions"`
			Successful int `json:"successful"`
		} `json:"summary"`
	}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("Failed to decode output: %v\n%s", err, out)
	}
	if len(res.Transactions) != 2 || res.Summary.Total != 2 || res.Summary.Successful != 2 {
		t.Errorf("extract = %+v", res)
	}
}

func TestExtractRequiresBoundary(t *testing.T) {
	dir, _ := writeTestBundle(t)
	if _, err := execute(t, "--log-level", "error", "extract", dir); err == nil {
		t.Fatal("expected error without boundary configuration")
	}
}

func TestFlowsReportFile(t *testing.T) {
	dir, cfgPath := writeTestBundle(t)
	report := filepath.Join(t.TempDir(), "flows.txt")

	if _, err := execute(t, "--config", cfgPath, "flows", dir, "-o", report); err != nil {
		t.Fatalf("flows error = %v", err)
	}
	data, err := os.ReadFile(report)
	if err != nil {
		t.Fatalf("Failed to read report: %v", err)
	}
	if !strings.Contains(string(data), "TRANSACTION UI FLOW ANALYSIS") {
		t.Errorf("report = %q", data)
	}
}

func TestUnknownConfigFile(t *testing.T) {
	if _, err := execute(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "classify", "."); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestBoundaryAddChain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "boundary.xml")
	doc := `<configuration>
  <customerJournalParsing>
    <starttransaction>3201</starttransaction>
    <endtransaction>3220</endtransaction>
    <chainingtransaction>3207</chainingtransaction>
  </customerJournalParsing>
</configuration>
`
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatalf("Failed to write boundary: %v", err)
	}

	out, err := execute(t, "--log-level", "error", "boundary", "add-chain", path, "3299", "3207")
	if err != nil {
		t.Fatalf("add-chain error = %v", err)
	}
	if !strings.Contains(out, "chaining ids: 3207,3299") {
		t.Errorf("output = %q", out)
	}

	b, err := config.LoadBoundary(path)
	if err != nil {
		t.Fatalf("LoadBoundary() error = %v", err)
	}
	if !b.IsChain("3299") || !b.IsStart("3201") || !b.IsEnd("3220") {
		t.Errorf("boundary = %+v", b)
	}
	if _, err := os.Stat(path + ".bak"); err != nil {
		t.Errorf("backup not written: %v", err)
	}
}
