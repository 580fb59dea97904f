package output

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

func TestKafkaOutputSend(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(value []byte) error {
		var r Record
		if err := json.Unmarshal(value, &r); err != nil {
			return err
		}
		if r.Transaction.ID != "00001" {
			return fmt.Errorf("unexpected transaction %q", r.Transaction.ID)
		}
		return nil
	})

	config := DefaultKafkaConfig()
	config.BatchSize = 1
	out, err := newKafkaOutput(config, producer)
	if err != nil {
		t.Fatalf("newKafkaOutput() error = %v", err)
	}

	if err := out.Send(context.Background(), testRecord(1)); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if m := out.Metrics(); m.RecordsSent != 1 {
		t.Errorf("RecordsSent = %d, want 1", m.RecordsSent)
	}
	if err := out.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := out.Send(context.Background(), testRecord(2)); err == nil {
		t.Error("expected error sending to closed output")
	}
}

// partialProducer fails the messages whose key is listed in fail
type partialProducer struct {
	sarama.SyncProducer
	fail map[string]bool
}

func (p *partialProducer) SendMessages(msgs []*sarama.ProducerMessage) error {
	var errs sarama.ProducerErrors
	for _, m := range msgs {
		key, _ := m.Key.Encode()
		if p.fail[string(key)] {
			errs = append(errs, &sarama.ProducerError{Msg: m, Err: sarama.ErrOutOfBrokers})
		}
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (p *partialProducer) Close() error { return nil }

func TestKafkaOutputPartialFailure(t *testing.T) {
	producer := &partialProducer{fail: map[string]bool{"20240304.jrn/00002": true}}
	out, err := newKafkaOutput(DefaultKafkaConfig(), producer)
	if err != nil {
		t.Fatalf("newKafkaOutput() error = %v", err)
	}
	defer out.Close()

	err = out.SendBatch(context.Background(), []*Record{testRecord(1), testRecord(2)})
	if err == nil {
		t.Fatal("expected error")
	}

	m := out.Metrics()
	if m.RecordsSent != 1 || m.RecordsFailed != 1 {
		t.Errorf("sent/failed = %d/%d, want 1/1", m.RecordsSent, m.RecordsFailed)
	}
	if m.LastError == "" {
		t.Error("expected LastError to be recorded")
	}
}

func TestKafkaOutputBatchFailure(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndSucceed()
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	out, err := newKafkaOutput(DefaultKafkaConfig(), producer)
	if err != nil {
		t.Fatalf("newKafkaOutput() error = %v", err)
	}
	defer out.Close()

	if err := out.SendBatch(context.Background(), []*Record{testRecord(1), testRecord(2)}); err == nil {
		t.Fatal("expected error")
	}
	// A bare producer error fails the whole batch
	if m := out.Metrics(); m.RecordsSent != 0 || m.RecordsFailed != 2 {
		t.Errorf("sent/failed = %d/%d, want 0/2", m.RecordsSent, m.RecordsFailed)
	}
}

func TestKafkaOutputMessage(t *testing.T) {
	config := DefaultKafkaConfig()
	out, err := newKafkaOutput(config, mocks.NewSyncProducer(t, nil))
	if err != nil {
		t.Fatalf("newKafkaOutput() error = %v", err)
	}
	defer out.Close()

	msg, _, err := out.buildMessage(testRecord(9))
	if err != nil {
		t.Fatalf("buildMessage() error = %v", err)
	}
	if msg.Topic != "journalscope.transactions" {
		t.Errorf("Topic = %q", msg.Topic)
	}
	key, _ := msg.Key.Encode()
	if string(key) != "20240304.jrn/00009" {
		t.Errorf("Key = %q", key)
	}
	if len(msg.Headers) != 1 || string(msg.Headers[0].Value) != "run-1" {
		t.Errorf("Headers = %v", msg.Headers)
	}

	if _, err := newKafkaOutput(KafkaConfig{}, mocks.NewSyncProducer(t, nil)); err == nil {
		t.Error("expected error for missing topic")
	}
}

// fakeElasticsearch answers the client's info and bulk requests
type fakeElasticsearch struct {
	mu        sync.Mutex
	bulkLines []string
	bulkReply string
}

func (f *fakeElasticsearch) RoundTrip(req *http.Request) (*http.Response, error) {
	body := `{"version":{"number":"8.19.0"},"tagline":"You Know, for Search"}`
	if strings.HasSuffix(req.URL.Path, "/_bulk") {
		data, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		f.mu.Lock()
		scanner := bufio.NewScanner(bytes.NewReader(data))
		for scanner.Scan() {
			f.bulkLines = append(f.bulkLines, scanner.Text())
		}
		body = f.bulkReply
		f.mu.Unlock()
	}

	header := http.Header{}
	header.Set("Content-Type", "application/json")
	header.Set("X-Elastic-Product", "Elasticsearch")
	return &http.Response{
		StatusCode: http.StatusOK,
		Status:     "200 OK",
		Header:     header,
		Body:       io.NopCloser(strings.NewReader(body)),
		Request:    req,
	}, nil
}

func newTestElasticsearch(t *testing.T, reply string) (*ElasticsearchOutput, *fakeElasticsearch) {
	t.Helper()
	transport := &fakeElasticsearch{bulkReply: reply}
	config := DefaultElasticsearchConfig()
	config.BatchSize = 1
	config.IndexRotation = "none"
	config.Transport = transport

	out, err := NewElasticsearchOutput(config)
	if err != nil {
		t.Fatalf("NewElasticsearchOutput() error = %v", err)
	}
	t.Cleanup(func() { out.Close() })
	return out, transport
}

func TestElasticsearchOutputBulk(t *testing.T) {
	out, transport := newTestElasticsearch(t, `{"errors":false,"items":[{"index":{"status":201}},{"index":{"status":201}}]}`)

	if err := out.SendBatch(context.Background(), []*Record{testRecord(1), testRecord(2)}); err != nil {
		t.Fatalf("SendBatch() error = %v", err)
	}

	if len(transport.bulkLines) != 4 {
		t.Fatalf("expected 4 bulk lines, got %d", len(transport.bulkLines))
	}
	var action struct {
		Index struct {
			Index string `json:"_index"`
			ID    string `json:"_id"`
		} `json:"index"`
	}
	if err := json.Unmarshal([]byte(transport.bulkLines[0]), &action); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if action.Index.Index != "journalscope-transactions" {
		t.Errorf("_index = %q", action.Index.Index)
	}
	if action.Index.ID != "20240304.jrn/00001" {
		t.Errorf("_id = %q", action.Index.ID)
	}

	if m := out.Metrics(); m.RecordsSent != 2 {
		t.Errorf("RecordsSent = %d, want 2", m.RecordsSent)
	}
}

func TestElasticsearchOutputItemErrors(t *testing.T) {
	reply := `{"errors":true,"items":[` +
		`{"index":{"status":201}},` +
		`{"index":{"status":400,"error":{"type":"mapper_parsing_exception","reason":"failed to parse"}}}]}`
	out, _ := newTestElasticsearch(t, reply)

	err := out.SendBatch(context.Background(), []*Record{testRecord(1), testRecord(2)})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "mapper_parsing_exception") {
		t.Errorf("error = %v", err)
	}

	m := out.Metrics()
	if m.RecordsSent != 1 || m.RecordsFailed != 1 {
		t.Errorf("sent/failed = %d/%d, want 1/1", m.RecordsSent, m.RecordsFailed)
	}
}

func TestElasticsearchIndexName(t *testing.T) {
	at := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		index    string
		rotation string
		want     string
	}{
		{"txns", "none", "txns"},
		{"txns", "daily", "txns-2024.03.04"},
		{"txns", "weekly", "txns-2024.10"},
		{"txns", "monthly", "txns-2024.03"},
		{"txns", "yearly", "txns-2024"},
		{"txns-%{+YYYY.MM.dd}", "monthly", "txns-2024.03.04"},
	}

	for _, tt := range tests {
		t.Run(tt.index+"/"+tt.rotation, func(t *testing.T) {
			e := &ElasticsearchOutput{config: ElasticsearchConfig{Index: tt.index, IndexRotation: tt.rotation}}
			record := testRecord(1)
			record.AnalyzedAt = at
			if got := e.indexName(record); got != tt.want {
				t.Errorf("indexName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestElasticsearchConfigValidation(t *testing.T) {
	if _, err := NewElasticsearchOutput(ElasticsearchConfig{Index: "txns"}); err == nil {
		t.Error("expected error without addresses")
	}
	if _, err := NewElasticsearchOutput(ElasticsearchConfig{Addresses: []string{"http://localhost:9200"}}); err == nil {
		t.Error("expected error without index")
	}
}

// fakeS3 keeps uploaded objects in memory
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	inputs  []*s3.PutObjectInput
	err     error
}

func (f *fakeS3) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.objects == nil {
		f.objects = make(map[string][]byte)
	}
	f.objects[aws.ToString(params.Key)] = data
	f.inputs = append(f.inputs, params)
	return &s3.PutObjectOutput{}, nil
}

func TestS3OutputUpload(t *testing.T) {
	client := &fakeS3{}
	config := DefaultS3Config()
	config.Bucket = "journals"
	config.BatchSize = 1
	config.Compression = CompressionGzip
	config.KeyTemplate = "{{.Year}}/{{.Month}}/{{.Day}}/{{.RunID}}-{{.Seq}}.ndjson"

	out, err := newS3Output(config, client)
	if err != nil {
		t.Fatalf("newS3Output() error = %v", err)
	}
	defer out.Close()

	records := []*Record{testRecord(1), testRecord(2)}
	for _, r := range records {
		r.AnalyzedAt = time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	}
	if err := out.SendBatch(context.Background(), records); err != nil {
		t.Fatalf("SendBatch() error = %v", err)
	}

	key := "journalscope/2024/03/04/run-1-000001.ndjson.gz"
	data, ok := client.objects[key]
	if !ok {
		t.Fatalf("object %q not uploaded; have %v", key, client.objects)
	}

	plain, err := (&GzipCompressor{}).Decompress(data)
	if err != nil {
		t.Fatalf("Decompress() error = %v", err)
	}
	if lines := bytes.Count(plain, []byte("\n")); lines != 2 {
		t.Errorf("expected 2 ndjson lines, got %d", lines)
	}

	input := client.inputs[0]
	if aws.ToString(input.Bucket) != "journals" {
		t.Errorf("Bucket = %q", aws.ToString(input.Bucket))
	}
	if aws.ToString(input.ContentEncoding) != "gzip" {
		t.Errorf("ContentEncoding = %q", aws.ToString(input.ContentEncoding))
	}
	if string(input.StorageClass) != "STANDARD" {
		t.Errorf("StorageClass = %q", input.StorageClass)
	}
}

func TestS3OutputFailure(t *testing.T) {
	uploadErr := errors.New("access denied")
	config := DefaultS3Config()
	config.Bucket = "journals"
	config.BatchSize = 1

	out, err := newS3Output(config, &fakeS3{err: uploadErr})
	if err != nil {
		t.Fatalf("newS3Output() error = %v", err)
	}
	defer out.Close()

	if err := out.Send(context.Background(), testRecord(1)); !errors.Is(err, uploadErr) {
		t.Errorf("Send() error = %v, want %v", err, uploadErr)
	}
	if m := out.Metrics(); m.RecordsFailed != 1 {
		t.Errorf("RecordsFailed = %d, want 1", m.RecordsFailed)
	}

	if _, err := newS3Output(S3Config{}, &fakeS3{}); err == nil {
		t.Error("expected error for missing bucket")
	}
}

func TestS3ObjectKeySequence(t *testing.T) {
	config := DefaultS3Config()
	config.Bucket = "journals"
	config.Prefix = ""
	config.KeyTemplate = ""

	out, err := newS3Output(config, &fakeS3{})
	if err != nil {
		t.Fatalf("newS3Output() error = %v", err)
	}
	defer out.Close()

	record := testRecord(1)
	if got := out.objectKey(record, 1); got != "run-1-000001.ndjson" {
		t.Errorf("objectKey() = %q", got)
	}
	if got := out.objectKey(record, 12); got != "run-1-000012.ndjson" {
		t.Errorf("objectKey() = %q", got)
	}
}
