package types

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// FamilyLabel identifies the log family a file belongs to
type FamilyLabel string

const (
	FamilyCustomerJournal FamilyLabel = "CustomerJournal"
	FamilyUIJournal       FamilyLabel = "UiJournal"
	FamilyTRCTrace        FamilyLabel = "TrcTrace"
	FamilyTRCError        FamilyLabel = "TrcError"
	FamilyRegistry        FamilyLabel = "RegistryFile"
	FamilyUnclassified    FamilyLabel = "Unclassified"
)

// Category is the name of a routing bucket
type Category string

const (
	CategoryCustomerJournals Category = "customer_journals"
	CategoryUIJournals       Category = "ui_journals"
	CategoryTRCTrace         Category = "trc_trace"
	CategoryTRCError         Category = "trc_error"
	CategoryRegistryFiles    Category = "registry_files"
)

// Categories lists every bucket in reporting order
var Categories = []Category{
	CategoryCustomerJournals,
	CategoryUIJournals,
	CategoryTRCTrace,
	CategoryTRCError,
	CategoryRegistryFiles,
}

// CategoryFor returns the bucket for a label. Unclassified has no bucket.
func CategoryFor(label FamilyLabel) (Category, bool) {
	switch label {
	case FamilyCustomerJournal:
		return CategoryCustomerJournals, true
	case FamilyUIJournal:
		return CategoryUIJournals, true
	case FamilyTRCTrace:
		return CategoryTRCTrace, true
	case FamilyTRCError:
		return CategoryTRCError, true
	case FamilyRegistry:
		return CategoryRegistryFiles, true
	default:
		return "", false
	}
}

// LogFile is a discovered file whose content is read at most once
type LogFile struct {
	Path string

	once sync.Once
	read func(string) ([]byte, error)
	data []byte
	err  error
}

// NewLogFile creates a LogFile that reads its content from disk on first use
func NewLogFile(path string) *LogFile {
	return &LogFile{Path: path, read: os.ReadFile}
}

// NewLogFileFromBytes creates a LogFile over content that is already in memory
func NewLogFileFromBytes(path string, data []byte) *LogFile {
	f := &LogFile{Path: path, data: data}
	f.once.Do(func() {})
	return f
}

// Bytes returns the file content, reading it on the first call
func (f *LogFile) Bytes() ([]byte, error) {
	f.once.Do(func() {
		f.data, f.err = f.read(f.Path)
	})
	return f.data, f.err
}

// Stat reports whether a disk-backed file exists. In-memory files always do.
func (f *LogFile) Stat() error {
	if f.read == nil {
		return nil
	}
	info, err := os.Stat(f.Path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", f.Path)
	}
	return nil
}

// Name returns the base file name
func (f *LogFile) Name() string {
	return filepath.Base(f.Path)
}

// Ext returns the lower-cased extension including the dot
func (f *LogFile) Ext() string {
	return strings.ToLower(filepath.Ext(f.Path))
}

// Stem returns the file name without its extension
func (f *LogFile) Stem() string {
	name := f.Name()
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// TimeOfDay is a wall-clock time expressed in seconds since midnight
type TimeOfDay int

const secondsPerDay = 24 * 60 * 60

// NewTimeOfDay builds a TimeOfDay from its components
func NewTimeOfDay(hour, minute, second int) TimeOfDay {
	return TimeOfDay(hour*3600 + minute*60 + second)
}

// Clock returns the hour, minute and second components
func (t TimeOfDay) Clock() (hour, minute, second int) {
	s := int(t) % secondsPerDay
	return s / 3600, (s % 3600) / 60, s % 60
}

// String formats the time as HH:MM:SS
func (t TimeOfDay) String() string {
	h, m, s := t.Clock()
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// Compact formats the time as HHMMSS
func (t TimeOfDay) Compact() string {
	h, m, s := t.Clock()
	return fmt.Sprintf("%02d%02d%02d", h, m, s)
}

// Until returns the elapsed time from t to end, wrapping past midnight when end is earlier
func (t TimeOfDay) Until(end TimeOfDay) time.Duration {
	diff := int(end) - int(t)
	if diff < 0 {
		diff += secondsPerDay
	}
	return time.Duration(diff) * time.Second
}

// MarshalText implements encoding.TextMarshaler
func (t TimeOfDay) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (t *TimeOfDay) UnmarshalText(text []byte) error {
	var h, m, s int
	if _, err := fmt.Sscanf(string(text), "%d:%d:%d", &h, &m, &s); err != nil {
		return fmt.Errorf("invalid time of day %q: %w", string(text), err)
	}
	*t = NewTimeOfDay(h, m, s)
	return nil
}

// ParsedLine is one tokenized customer journal line
type ParsedLine struct {
	Time    TimeOfDay `json:"time"`
	HasTime bool      `json:"has_time"`
	TID     string    `json:"tid,omitempty"`
	Message string    `json:"message"`
}

// EndState is the outcome of a transaction
type EndState string

const (
	EndStateSuccessful   EndState = "Successful"
	EndStateUnsuccessful EndState = "Unsuccessful"
	EndStateUnknown      EndState = "Unknown"
)

// UnknownType is the transaction type used when no function code is found
const UnknownType = "Unknown"

// Transaction is a bounded business transaction reconstructed from a customer journal
type Transaction struct {
	ID         string
	Type       string
	Start      TimeOfDay
	HasStart   bool
	End        TimeOfDay
	EndState   EndState
	Log        string
	SourceFile string
	StartIndex int
	EndIndex   int
}

// Duration returns end minus start, wrapped across midnight. It reports false
// when the start time is unknown.
func (t *Transaction) Duration() (time.Duration, bool) {
	if !t.HasStart {
		return 0, false
	}
	return t.Start.Until(t.End), true
}

// DurationText formats the duration as seconds with one decimal, or N/A
func (t *Transaction) DurationText() string {
	d, ok := t.Duration()
	if !ok {
		return "N/A"
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

// StartText formats the start time, or N/A when it is unknown
func (t *Transaction) StartText() string {
	if !t.HasStart {
		return "N/A"
	}
	return t.Start.String()
}

// Record converts the transaction into its serialized form
func (t *Transaction) Record() TransactionRecord {
	return TransactionRecord{
		ID:         t.ID,
		Type:       t.Type,
		StartTime:  t.StartText(),
		EndTime:    t.End.String(),
		Duration:   t.DurationText(),
		EndState:   t.EndState,
		Log:        t.Log,
		SourceFile: t.SourceFile,
	}
}

// TransactionRecord is the stable serialized form of a Transaction
type TransactionRecord struct {
	ID         string   `json:"Transaction ID"`
	Type       string   `json:"Transaction Type"`
	StartTime  string   `json:"Start Time"`
	EndTime    string   `json:"End Time"`
	Duration   string   `json:"Duration"`
	EndState   EndState `json:"End State"`
	Log        string   `json:"Transaction Log"`
	SourceFile string   `json:"Source File"`
}

// EventKind is the kind of a UI event
type EventKind string

const (
	EventResult EventKind = "result"
	EventAction EventKind = "action"
)

// UiEvent is one structured UI journal line
type UiEvent struct {
	Position      int            `json:"position"`
	Date          string         `json:"date,omitempty"`
	DateFormatted string         `json:"date_formatted,omitempty"`
	DayOfWeek     string         `json:"day_of_week,omitempty"`
	Time          TimeOfDay      `json:"timestamp"`
	ID            int            `json:"id"`
	Module        string         `json:"module"`
	Direction     string         `json:"direction"`
	ViewID        int            `json:"viewid"`
	Screen        string         `json:"screen"`
	Kind          EventKind      `json:"event_type"`
	RawPayload    string         `json:"raw_json"`
	Payload       map[string]any `json:"payload,omitempty"`
}

// NoFlowData is the single-element flow used when no events fall in a window
const NoFlowData = "No flow data"

// ScreenFlow is an ordered list of screens with consecutive repeats collapsed
type ScreenFlow []string

// Empty reports whether the flow carries no screens, including the sentinel form
func (f ScreenFlow) Empty() bool {
	return len(f) == 0 || (len(f) == 1 && f[0] == NoFlowData)
}

// FlowStep is a screen in a flow with the time it was first seen and its transition detail
type FlowStep struct {
	Screen string    `json:"screen"`
	Time   TimeOfDay `json:"time"`
	Detail string    `json:"detail"`
}

// AlignmentResult pairs two flows with their LCS match masks
type AlignmentResult struct {
	A     ScreenFlow `json:"flow_a"`
	B     ScreenFlow `json:"flow_b"`
	MaskA []bool     `json:"mask_a"`
	MaskB []bool     `json:"mask_b"`
}

// Matched returns the common subsequence as read from the A side
func (r *AlignmentResult) Matched() []string {
	var out []string
	for i, ok := range r.MaskA {
		if ok {
			out = append(out, r.A[i])
		}
	}
	return out
}

// RunStats holds aggregate counts for a batch run. Dropped transactions never
// reached an end id; unresolved ones closed on a line without a time.
type RunStats struct {
	FilesClassified        int64 `json:"files_classified"`
	FilesUnclassified      int64 `json:"files_unclassified"`
	FilesFailed            int64 `json:"files_failed"`
	TransactionsExtracted  int64 `json:"transactions_extracted"`
	TransactionsDropped    int64 `json:"transactions_dropped"`
	TransactionsUnresolved int64 `json:"transactions_unresolved"`
	UIEventsParsed         int64 `json:"ui_events_parsed"`
	MalformedPayloads      int64 `json:"malformed_payloads"`
}
