package output

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/therealutkarshpriyadarshi/journalscope/internal/config"
	"github.com/therealutkarshpriyadarshi/journalscope/internal/metrics"
	"github.com/therealutkarshpriyadarshi/journalscope/internal/reliability"
	"github.com/therealutkarshpriyadarshi/journalscope/pkg/types"
)

// fakeOutput records what it is sent and fails while failures > 0
type fakeOutput struct {
	name     string
	mu       sync.Mutex
	records  []*Record
	calls    int
	failures int
	closed   bool
}

func (f *fakeOutput) Send(ctx context.Context, record *Record) error {
	return f.SendBatch(ctx, []*Record{record})
}

func (f *fakeOutput) SendBatch(_ context.Context, records []*Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failures > 0 {
		f.failures--
		return errors.New("sink unavailable")
	}
	f.records = append(f.records, records...)
	return nil
}

func (f *fakeOutput) Close() error {
	f.closed = true
	return nil
}

func (f *fakeOutput) Name() string { return f.name }

func (f *fakeOutput) Metrics() *OutputMetrics {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &OutputMetrics{RecordsSent: int64(len(f.records))}
}

func TestDefaultBaseConfig(t *testing.T) {
	config := DefaultBaseConfig()

	if config.BatchSize != 100 {
		t.Errorf("expected batch size 100, got %d", config.BatchSize)
	}
	if config.FlushInterval != time.Second {
		t.Errorf("expected flush interval 1s, got %v", config.FlushInterval)
	}
	if config.Compression != CompressionNone {
		t.Errorf("expected compression none, got %v", config.Compression)
	}
}

func TestNewRecord(t *testing.T) {
	txn := &types.Transaction{
		ID:         "00042",
		Type:       "Withdrawal",
		EndState:   types.EndStateSuccessful,
		SourceFile: "20240304.jrn",
	}
	at := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)

	record := NewRecord("run-7", txn, types.ScreenFlow{"Login"}, at)

	if record.Key() != "20240304.jrn/00042" {
		t.Errorf("Key() = %q", record.Key())
	}
	if record.Transaction.Type != "Withdrawal" {
		t.Errorf("Transaction.Type = %q", record.Transaction.Type)
	}

	data, err := encode(record)
	if err != nil {
		t.Fatalf("encode() error = %v", err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if decoded["run_id"] != "run-7" {
		t.Errorf("run_id = %v", decoded["run_id"])
	}
	if _, ok := decoded["ui_flow"]; !ok {
		t.Error("expected ui_flow in encoded record")
	}
}

func TestWriterOutput(t *testing.T) {
	var buf bytes.Buffer
	out := NewWriterOutput("buffer", &buf)

	if err := out.Send(context.Background(), testRecord(1)); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if err := out.SendBatch(context.Background(), []*Record{testRecord(2), testRecord(3)}); err != nil {
		t.Fatalf("SendBatch() error = %v", err)
	}

	var ids []string
	scanner := bufio.NewScanner(&buf)
	for scanner.Scan() {
		var r Record
		if err := json.Unmarshal(scanner.Bytes(), &r); err != nil {
			t.Fatalf("line %q is not a record: %v", scanner.Text(), err)
		}
		ids = append(ids, r.Transaction.ID)
	}
	if len(ids) != 3 || ids[0] != "00001" || ids[2] != "00003" {
		t.Errorf("written ids = %v", ids)
	}

	m := out.Metrics()
	if m.RecordsSent != 3 {
		t.Errorf("RecordsSent = %d, want 3", m.RecordsSent)
	}
	if m.BatchesSent != 1 {
		t.Errorf("BatchesSent = %d, want 1", m.BatchesSent)
	}

	if err := out.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := out.Send(context.Background(), testRecord(4)); err == nil {
		t.Error("expected error sending to closed output")
	}
}

func TestWriterOutputCanceledContext(t *testing.T) {
	var buf bytes.Buffer
	out := NewWriterOutput("buffer", &buf)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := out.Send(ctx, testRecord(1)); !errors.Is(err, context.Canceled) {
		t.Errorf("Send() error = %v, want context.Canceled", err)
	}
	if buf.Len() != 0 {
		t.Errorf("expected nothing written, got %q", buf.String())
	}
}

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "records.ndjson")

	out, err := NewFileOutput(path)
	if err != nil {
		t.Fatalf("NewFileOutput() error = %v", err)
	}
	if err := out.Send(context.Background(), testRecord(1)); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if err := out.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	// A second output appends
	out, err = NewFileOutput(path)
	if err != nil {
		t.Fatalf("NewFileOutput() error = %v", err)
	}
	if err := out.Send(context.Background(), testRecord(2)); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	out.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if lines := bytes.Count(data, []byte("\n")); lines != 2 {
		t.Errorf("expected 2 lines, got %d", lines)
	}
}

func TestRouterFailureStrategies(t *testing.T) {
	tests := []struct {
		name     string
		strategy string
		parallel bool
		failing  int
		wantErr  bool
	}{
		{"continue with one failure", FailureContinue, false, 1, false},
		{"continue with all failing", FailureContinue, false, 2, true},
		{"stop with one failure", FailureStop, false, 1, true},
		{"parallel continue", FailureContinue, true, 1, false},
		{"parallel stop", FailureStop, true, 1, true},
		{"no failures", FailureStop, true, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &fakeOutput{name: "a"}
			b := &fakeOutput{name: "b"}
			if tt.failing >= 1 {
				a.failures = 1
			}
			if tt.failing >= 2 {
				b.failures = 1
			}

			router, err := NewRouter(RouterConfig{FailureStrategy: tt.strategy, Parallel: tt.parallel}, a, b)
			if err != nil {
				t.Fatalf("NewRouter() error = %v", err)
			}

			err = router.Send(context.Background(), testRecord(1))
			if (err != nil) != tt.wantErr {
				t.Errorf("Send() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRouterStopSequentialSkipsRemaining(t *testing.T) {
	a := &fakeOutput{name: "a", failures: 1}
	b := &fakeOutput{name: "b"}

	router, err := NewRouter(RouterConfig{FailureStrategy: FailureStop}, a, b)
	if err != nil {
		t.Fatalf("NewRouter() error = %v", err)
	}
	if err := router.Send(context.Background(), testRecord(1)); err == nil {
		t.Fatal("expected error")
	}
	if b.calls != 0 {
		t.Errorf("expected second output untouched, got %d calls", b.calls)
	}
}

func TestRouterLifecycle(t *testing.T) {
	if _, err := NewRouter(RouterConfig{FailureStrategy: "retry-forever"}); err == nil {
		t.Error("expected error for unknown failure strategy")
	}

	router, err := NewRouter(DefaultRouterConfig())
	if err != nil {
		t.Fatalf("NewRouter() error = %v", err)
	}
	if err := router.Send(context.Background(), testRecord(1)); err == nil {
		t.Error("expected error with no outputs")
	}

	a := &fakeOutput{name: "a"}
	b := &fakeOutput{name: "b"}
	router.AddOutput(a)
	router.AddOutput(b)

	if err := router.SendBatch(context.Background(), []*Record{testRecord(1), testRecord(2)}); err != nil {
		t.Fatalf("SendBatch() error = %v", err)
	}
	if got := router.Metrics().RecordsSent; got != 4 {
		t.Errorf("aggregate RecordsSent = %d, want 4", got)
	}

	if err := router.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !a.closed || !b.closed {
		t.Error("expected all outputs closed")
	}
	if err := router.Send(context.Background(), testRecord(3)); err == nil {
		t.Error("expected error sending to closed router")
	}
}

func TestRetryingOutput(t *testing.T) {
	inner := &fakeOutput{name: "flaky", failures: 2}
	var attempts []int
	out := WithRetry(inner, reliability.RetryConfig{
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		OnRetry:        func(attempt int, _ error) { attempts = append(attempts, attempt) },
	})

	if err := out.Send(context.Background(), testRecord(1)); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if inner.calls != 3 {
		t.Errorf("expected 3 calls, got %d", inner.calls)
	}
	if len(attempts) != 2 || attempts[0] != 1 || attempts[1] != 2 {
		t.Errorf("OnRetry attempts = %v", attempts)
	}

	m := out.Metrics()
	if m.RetryCount != 2 {
		t.Errorf("RetryCount = %d, want 2", m.RetryCount)
	}
	if m.RecordsSent != 1 {
		t.Errorf("RecordsSent = %d, want 1", m.RecordsSent)
	}
	if out.Name() != "flaky" {
		t.Errorf("Name() = %q", out.Name())
	}
}

func TestRetryingOutputExhausted(t *testing.T) {
	inner := &fakeOutput{name: "down", failures: 10}
	out := WithRetry(inner, reliability.RetryConfig{
		MaxRetries:     1,
		InitialBackoff: time.Millisecond,
	})

	err := out.SendBatch(context.Background(), []*Record{testRecord(1)})
	if !errors.Is(err, reliability.ErrMaxRetriesExceeded) {
		t.Errorf("SendBatch() error = %v, want ErrMaxRetriesExceeded", err)
	}
	if inner.calls != 2 {
		t.Errorf("expected 2 calls, got %d", inner.calls)
	}
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	metric := &dto.Metric{}
	if err := c.Write(metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	return metric.Counter.GetValue()
}

func TestInstrumentedOutput(t *testing.T) {
	collector := metrics.NewCollector()
	inner := &fakeOutput{name: "sink"}
	out := Instrument(inner, collector, "file")

	if err := out.SendBatch(context.Background(), []*Record{testRecord(1), testRecord(2)}); err != nil {
		t.Fatalf("SendBatch() error = %v", err)
	}
	inner.failures = 1
	if err := out.Send(context.Background(), testRecord(3)); err == nil {
		t.Fatal("expected error")
	}

	if got := counterValue(t, collector.OutputEventsSent.WithLabelValues("sink", "file")); got != 2 {
		t.Errorf("records sent = %v, want 2", got)
	}
	if got := counterValue(t, collector.OutputEventsFailed.WithLabelValues("sink", "file")); got != 1 {
		t.Errorf("records failed = %v, want 1", got)
	}
	if got := counterValue(t, collector.OutputBytesSent.WithLabelValues("sink", "file")); got <= 0 {
		t.Errorf("bytes sent = %v, want > 0", got)
	}
}

func TestNewFromConfig(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name     string
		cfg      config.OutputConfig
		wantName string
		wantErr  bool
	}{
		{
			name:     "stdout",
			cfg:      config.OutputConfig{Type: "stdout"},
			wantName: "stdout",
		},
		{
			name:     "file",
			cfg:      config.OutputConfig{Type: "file", Path: filepath.Join(dir, "out.ndjson")},
			wantName: "file",
		},
		{
			name: "multi",
			cfg: config.OutputConfig{
				Type: "multi",
				Multi: &config.MultiOutputConfig{
					Outputs: []config.OutputDefinition{
						{Name: "console", Type: "stdout"},
						{Name: "archive", Type: "file", Path: filepath.Join(dir, "archive.ndjson")},
					},
				},
			},
			wantName: "router",
		},
		{
			name:    "unknown",
			cfg:     config.OutputConfig{Type: "carrier-pigeon"},
			wantErr: true,
		},
		{
			name:    "empty multi",
			cfg:     config.OutputConfig{Type: "multi", Multi: &config.MultiOutputConfig{}},
			wantErr: true,
		},
		{
			name: "multi with bad strategy",
			cfg: config.OutputConfig{
				Type: "multi",
				Multi: &config.MultiOutputConfig{
					FailureStrategy: "sometimes",
					Outputs:         []config.OutputDefinition{{Name: "console", Type: "stdout"}},
				},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := New(context.Background(), tt.cfg, Options{})
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			defer out.Close()
			if out.Name() != tt.wantName {
				t.Errorf("Name() = %q, want %q", out.Name(), tt.wantName)
			}
		})
	}
}

func TestNewMultiNamesMembers(t *testing.T) {
	dir := t.TempDir()
	out, err := New(context.Background(), config.OutputConfig{
		Type: "multi",
		Multi: &config.MultiOutputConfig{
			Outputs: []config.OutputDefinition{
				{Name: "archive", Type: "file", Path: filepath.Join(dir, "a.ndjson")},
			},
		},
	}, Options{Collector: metrics.NewCollector()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer out.Close()

	router, ok := out.(*Router)
	if !ok {
		t.Fatalf("expected *Router, got %T", out)
	}
	members := router.GetOutputs()
	if len(members) != 1 {
		t.Fatalf("expected 1 member, got %d", len(members))
	}
	if _, ok := members[0].(*InstrumentedOutput); !ok {
		t.Errorf("expected instrumented member, got %T", members[0])
	}
	if members[0].Name() != "archive" {
		t.Errorf("member name = %q, want archive", members[0].Name())
	}
}
