// Package transaction reconstructs business transactions from customer
// journal lines by walking them against boundary markers.
package transaction

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/therealutkarshpriyadarshi/journalscope/internal/config"
	"github.com/therealutkarshpriyadarshi/journalscope/pkg/types"
)

// FunctionTID is the code of the line naming the invoked function
const FunctionTID = "3217"

// lookahead is how many lines past a segment start may contain another
// opening marker before the end search is abandoned
const lookahead = 3

var (
	transactionNoRe = regexp.MustCompile(`Transaction no\. '([^']*)'`)
	functionRe      = regexp.MustCompile(`Function\s+'([^']+)'`)
)

var successMarkers = []string{"end-state'N'", "end-state'n'", "state 'N'", "state 'n'"}

var failureMarkers = []string{
	"end-state'E'", "end-state'e'",
	"state 'E'", "state 'e'", "state 'C'", "state 'c'",
}

// Segment is a closed line range [Start, End] in a parsed line sequence
type Segment struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Result is the outcome of one extraction
type Result struct {
	Transactions []types.Transaction `json:"transactions"`
	// Dropped counts opening markers whose end search was abandoned
	Dropped int `json:"dropped"`
	// Unresolved counts closed segments whose end line carries no time
	Unresolved int `json:"unresolved"`
}

// Extractor walks parsed lines. It holds only the immutable boundary and is
// safe for concurrent use.
type Extractor struct {
	boundary *config.Boundary
}

// NewExtractor creates an extractor for boundary
func NewExtractor(boundary *config.Boundary) *Extractor {
	return &Extractor{boundary: boundary}
}

// Segments finds closed segments in one forward pass and counts the
// unterminated candidates it skipped
func (e *Extractor) Segments(lines []types.ParsedLine) ([]Segment, int) {
	var segments []Segment
	dropped := 0

	i := 0
	for i < len(lines) {
		if !e.boundary.IsOpening(lines[i].TID) {
			i++
			continue
		}

		end := -1
		for j := i + 1; j < len(lines); j++ {
			tid := lines[j].TID
			if e.boundary.IsEnd(tid) {
				end = j
				break
			}
			if e.boundary.IsOpening(tid) && j > i+lookahead {
				break
			}
		}

		if end < 0 {
			dropped++
			i++
			continue
		}
		segments = append(segments, Segment{Start: i, End: end})
		i = end + 1
	}
	return segments, dropped
}

// Extract returns the transactions found in lines. source is the journal path
// or name; its stem seeds synthesized identifiers.
func (e *Extractor) Extract(lines []types.ParsedLine, source string) *Result {
	segments, dropped := e.Segments(lines)
	res := &Result{
		Transactions: make([]types.Transaction, 0, len(segments)),
		Dropped:      dropped,
	}

	name := filepath.Base(source)
	stem := strings.TrimSuffix(name, filepath.Ext(name))

	for _, seg := range segments {
		txn, ok := e.build(lines, seg, stem, name)
		if !ok {
			res.Unresolved++
			continue
		}
		res.Transactions = append(res.Transactions, txn)
	}
	return res
}

func (e *Extractor) build(lines []types.ParsedLine, seg Segment, stem, source string) (types.Transaction, bool) {
	part := lines[seg.Start : seg.End+1]
	txn := types.Transaction{
		Type:       types.UnknownType,
		SourceFile: source,
		StartIndex: seg.Start,
		EndIndex:   seg.End,
	}

	e.resolveStart(part, stem, &txn)

	end, ok := e.lastEnd(part)
	if !ok || !end.HasTime {
		return txn, false
	}
	txn.End = end.Time
	txn.EndState = classifyEndState(end.Message)

	if t, ok := e.resolveType(part); ok {
		txn.Type = t
	}
	txn.Log = renderLog(part)
	return txn, true
}

// resolveStart takes the first regular start line, or the first chaining line
// when the segment has none
func (e *Extractor) resolveStart(part []types.ParsedLine, stem string, txn *types.Transaction) {
	for _, l := range part {
		if !e.boundary.IsStart(l.TID) {
			continue
		}
		txn.Start, txn.HasStart = l.Time, l.HasTime
		if m := transactionNoRe.FindStringSubmatch(l.Message); m != nil && strings.TrimSpace(m[1]) != "" {
			txn.ID = m[1]
		} else if l.HasTime {
			txn.ID = stem + l.Time.Compact()
		} else {
			txn.ID = "START_" + stem
		}
		return
	}

	for _, l := range part {
		if !e.boundary.IsChain(l.TID) {
			continue
		}
		txn.Start, txn.HasStart = l.Time, l.HasTime
		if l.HasTime {
			txn.ID = stem + l.Time.Compact()
		} else {
			txn.ID = "CHAIN_" + stem
		}
		return
	}
}

func (e *Extractor) lastEnd(part []types.ParsedLine) (types.ParsedLine, bool) {
	for k := len(part) - 1; k >= 0; k-- {
		if e.boundary.IsEnd(part[k].TID) {
			return part[k], true
		}
	}
	return types.ParsedLine{}, false
}

// resolveType maps the first quoted function token to its configured name.
// A token such as "COUT/1" falls back to its "COUT" prefix before the raw token.
func (e *Extractor) resolveType(part []types.ParsedLine) (string, bool) {
	for _, l := range part {
		if l.TID != FunctionTID {
			continue
		}
		m := functionRe.FindStringSubmatch(l.Message)
		if m == nil {
			continue
		}
		raw := strings.TrimSpace(m[1])
		if name, ok := e.boundary.FunctionName(raw); ok {
			return name, true
		}
		if code, _, found := strings.Cut(raw, "/"); found {
			if name, ok := e.boundary.FunctionName(strings.TrimSpace(code)); ok {
				return name, true
			}
		}
		return raw, true
	}
	return "", false
}

func classifyEndState(msg string) types.EndState {
	for _, m := range successMarkers {
		if strings.Contains(msg, m) {
			return types.EndStateSuccessful
		}
	}
	for _, m := range failureMarkers {
		if strings.Contains(msg, m) {
			return types.EndStateUnsuccessful
		}
	}
	return types.EndStateUnknown
}

func renderLog(part []types.ParsedLine) string {
	var b strings.Builder
	for k, l := range part {
		if k > 0 {
			b.WriteByte('\n')
		}
		if l.HasTime {
			b.WriteString(l.Time.String())
		} else {
			b.WriteString("??:??:??")
		}
		b.WriteByte(' ')
		b.WriteString(l.TID)
		b.WriteByte(' ')
		b.WriteString(l.Message)
	}
	return b.String()
}
