package config

import (
	"encoding/xml"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrConfiguration is matched by every boundary configuration failure
var ErrConfiguration = errors.New("configuration error")

// ConfigurationError reports a missing or malformed boundary section
type ConfigurationError struct {
	Section string
	Err     error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration error in %s: %v", e.Section, e.Err)
	}
	return fmt.Sprintf("configuration error: missing %s", e.Section)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// Is matches ErrConfiguration
func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// KeyValue maps a function code to a transaction type name
type KeyValue struct {
	Key   string `yaml:"key" xml:"key"`
	Value string `yaml:"value" xml:"value"`
}

// Boundary holds the transaction boundary markers and function names. It is
// immutable once built and safe to share between goroutines.
type Boundary struct {
	StartIDs  []string
	EndIDs    []string
	ChainIDs  []string
	Functions []KeyValue

	start     map[string]bool
	end       map[string]bool
	chain     map[string]bool
	functions map[string]string
}

// NewBoundary validates and indexes the marker lists
func NewBoundary(start, end, chain []string, functions []KeyValue) (*Boundary, error) {
	b := &Boundary{
		StartIDs:  cleanList(start),
		EndIDs:    cleanList(end),
		ChainIDs:  cleanList(chain),
		Functions: functions,
	}
	if len(b.StartIDs) == 0 {
		return nil, &ConfigurationError{Section: "starttransaction"}
	}
	if len(b.EndIDs) == 0 {
		return nil, &ConfigurationError{Section: "endtransaction"}
	}

	b.start = toSet(b.StartIDs)
	b.end = toSet(b.EndIDs)
	b.chain = toSet(b.ChainIDs)
	b.functions = make(map[string]string, len(functions))
	for _, kv := range functions {
		key := strings.TrimSpace(kv.Key)
		if key == "" {
			continue
		}
		b.functions[key] = strings.TrimSpace(kv.Value)
	}
	return b, nil
}

// IsStart reports whether tid opens a transaction
func (b *Boundary) IsStart(tid string) bool { return tid != "" && b.start[tid] }

// IsEnd reports whether tid closes a transaction
func (b *Boundary) IsEnd(tid string) bool { return tid != "" && b.end[tid] }

// IsChain reports whether tid marks a chained transaction
func (b *Boundary) IsChain(tid string) bool { return tid != "" && b.chain[tid] }

// IsOpening reports whether tid is a start or chaining marker
func (b *Boundary) IsOpening(tid string) bool { return b.IsStart(tid) || b.IsChain(tid) }

// FunctionName maps a function code to its configured name
func (b *Boundary) FunctionName(code string) (string, bool) {
	name, ok := b.functions[code]
	return name, ok
}

// AllIDs returns every configured marker
func (b *Boundary) AllIDs() []string {
	out := make([]string, 0, len(b.StartIDs)+len(b.EndIDs)+len(b.ChainIDs))
	out = append(out, b.StartIDs...)
	out = append(out, b.EndIDs...)
	return append(out, b.ChainIDs...)
}

type boundaryXML struct {
	XMLName         xml.Name `xml:"configuration"`
	TransactionList *struct {
		Transactions []KeyValue `xml:"transaction"`
	} `xml:"transactionList"`
	Parsing *struct {
		Start *string `xml:"starttransaction"`
		End   *string `xml:"endtransaction"`
		Chain *string `xml:"chainingtransaction"`
	} `xml:"customerJournalParsing"`
}

type boundaryYAML struct {
	StartIDs     []string   `yaml:"start_ids"`
	EndIDs       []string   `yaml:"end_ids"`
	ChainIDs     []string   `yaml:"chain_ids"`
	Transactions []KeyValue `yaml:"transactions"`
}

// LoadBoundary reads a boundary document. Files ending in .xml use the
// terminal configuration layout, anything else is read as YAML.
func LoadBoundary(path string) (*Boundary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigurationError{Section: path, Err: err}
	}
	if strings.EqualFold(filepath.Ext(path), ".xml") {
		return ParseBoundaryXML(data)
	}
	return ParseBoundaryYAML(data)
}

// ParseBoundaryXML parses the <configuration> document
func ParseBoundaryXML(data []byte) (*Boundary, error) {
	var doc boundaryXML
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, &ConfigurationError{Section: "configuration", Err: err}
	}
	if doc.Parsing == nil {
		return nil, &ConfigurationError{Section: "customerJournalParsing"}
	}
	if doc.Parsing.Start == nil {
		return nil, &ConfigurationError{Section: "starttransaction"}
	}
	if doc.Parsing.End == nil {
		return nil, &ConfigurationError{Section: "endtransaction"}
	}

	var chain []string
	if doc.Parsing.Chain != nil {
		chain = strings.Split(*doc.Parsing.Chain, ",")
	}
	var functions []KeyValue
	if doc.TransactionList != nil {
		functions = doc.TransactionList.Transactions
	}

	return NewBoundary(
		strings.Split(*doc.Parsing.Start, ","),
		strings.Split(*doc.Parsing.End, ","),
		chain,
		functions,
	)
}

// ParseBoundaryYAML parses the YAML form of the boundary lists
func ParseBoundaryYAML(data []byte) (*Boundary, error) {
	var doc boundaryYAML
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ConfigurationError{Section: "boundary", Err: err}
	}
	return NewBoundary(splitAll(doc.StartIDs), splitAll(doc.EndIDs), splitAll(doc.ChainIDs), doc.Transactions)
}

// MarshalXMLDocument renders the boundary in the <configuration> layout
func (b *Boundary) MarshalXMLDocument() ([]byte, error) {
	start := strings.Join(b.StartIDs, ",")
	end := strings.Join(b.EndIDs, ",")
	chain := strings.Join(b.ChainIDs, ",")

	var doc boundaryXML
	doc.TransactionList = &struct {
		Transactions []KeyValue `xml:"transaction"`
	}{Transactions: b.Functions}
	doc.Parsing = &struct {
		Start *string `xml:"starttransaction"`
		End   *string `xml:"endtransaction"`
		Chain *string `xml:"chainingtransaction"`
	}{Start: &start, End: &end, Chain: &chain}

	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal boundary: %w", err)
	}
	return append([]byte(xml.Header), append(out, '\n')...), nil
}

// AddChainIDs appends chaining markers to the XML document at path, keeping a
// .bak copy of the previous content when backup is set
func AddChainIDs(path string, ids []string, backup bool) (*Boundary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read boundary file: %w", err)
	}
	b, err := ParseBoundaryXML(data)
	if err != nil {
		return nil, err
	}

	chain := append([]string{}, b.ChainIDs...)
	for _, id := range cleanList(ids) {
		if !b.chain[id] {
			chain = append(chain, id)
		}
	}
	updated, err := NewBoundary(b.StartIDs, b.EndIDs, chain, b.Functions)
	if err != nil {
		return nil, err
	}

	out, err := updated.MarshalXMLDocument()
	if err != nil {
		return nil, err
	}
	if backup {
		if err := os.WriteFile(path+".bak", data, 0644); err != nil {
			return nil, fmt.Errorf("failed to write backup: %w", err)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, out, 0644); err != nil {
		return nil, fmt.Errorf("failed to write boundary file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return nil, fmt.Errorf("failed to replace boundary file: %w", err)
	}
	return updated, nil
}

// LoadBoundary resolves the configured boundary source
func (c *Config) LoadBoundary() (*Boundary, error) {
	src := c.Boundary
	if src.Path != "" {
		return LoadBoundary(src.Path)
	}
	if len(src.StartIDs) == 0 && len(src.EndIDs) == 0 {
		return nil, &ConfigurationError{Section: "boundary", Err: errors.New("no boundary path or marker lists configured")}
	}
	return NewBoundary(splitAll(src.StartIDs), splitAll(src.EndIDs), splitAll(src.ChainIDs), src.Transactions)
}

// splitAll allows list entries that are themselves comma separated
func splitAll(items []string) []string {
	var out []string
	for _, item := range items {
		out = append(out, strings.Split(item, ",")...)
	}
	return out
}

func cleanList(items []string) []string {
	out := make([]string, 0, len(items))
	seen := make(map[string]bool, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" || seen[item] {
			continue
		}
		seen[item] = true
		out = append(out, item)
	}
	return out
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, item := range items {
		set[item] = true
	}
	return set
}
