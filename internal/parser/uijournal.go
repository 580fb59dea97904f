package parser

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/therealutkarshpriyadarshi/journalscope/internal/decode"
	"github.com/therealutkarshpriyadarshi/journalscope/pkg/types"
)

var (
	uiEventRe     = regexp.MustCompile(`^(\d{2}:\d{2}:\d{2})\s+(\d+)\s+(\w+)\s+([<>*])\s+\[(\d+)\]\s+-\s+(\w+)\s+(result|action):(.+)$`)
	uiDatedRe     = regexp.MustCompile(`^(\d{2}/\d{2}/\d{4})\s+(\d{2}:\d{2}:\d{2})\s+(\d+)\s+(\w+)\s+([<>*])\s+\[(\d+)\]\s+-\s+(\w+)\s+(result|action):(.+)$`)
	fileDateRe    = regexp.MustCompile(`(\d{8})`)
	displayLayout = "02/01/2006"
)

// ModuleFilter keeps lines from Module only when their screen is listed
type ModuleFilter struct {
	Module  string
	Screens []string
}

// UIStats counts what happened to each raw line of a UI journal
type UIStats struct {
	Lines             int `json:"lines"`
	Unmatched         int `json:"unmatched"`
	Filtered          int `json:"filtered"`
	Duplicates        int `json:"duplicates"`
	MalformedPayloads int `json:"malformed_payloads"`
	Events            int `json:"events"`
}

// UIResult is the outcome of parsing one UI journal
type UIResult struct {
	Source   string          `json:"source"`
	FileDate string          `json:"file_date"`
	Events   []types.UiEvent `json:"events"`
	Stats    UIStats         `json:"stats"`
}

// UIJournalParser converts UI journal lines into deduplicated events
type UIJournalParser struct {
	filters map[string]map[string]bool
}

// NewUIJournalParser creates a parser applying the module filters
func NewUIJournalParser(filters []ModuleFilter) *UIJournalParser {
	p := &UIJournalParser{filters: make(map[string]map[string]bool, len(filters))}
	for _, f := range filters {
		screens := p.filters[f.Module]
		if screens == nil {
			screens = make(map[string]bool, len(f.Screens))
			p.filters[f.Module] = screens
		}
		for _, s := range f.Screens {
			screens[s] = true
		}
	}
	return p
}

// FileDate derives the event date for a journal from the first 8-digit
// YYYYMMDD token of its file stem, rendered as DD/MM/YYYY. The stem itself is
// returned when no such token parses.
func FileDate(path string) string {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	m := fileDateRe.FindString(stem)
	if m == "" {
		return stem
	}
	t, err := time.Parse("20060102", m)
	if err != nil {
		return stem
	}
	return t.Format(displayLayout)
}

// candidate is a line that survived the first pass
type candidate struct {
	position  int
	date      string
	clock     string
	id        string
	module    string
	direction string
	view      string
	screen    string
	kind      string
	payload   string
}

func (c *candidate) key() string {
	return fmt.Sprintf("%s %s  %s %s %s [%s] - %s %s:%s",
		c.date, c.clock, c.id, c.module, c.direction, c.view, c.screen, c.kind, c.payload)
}

// Parse runs both passes over decoded journal text. source names the file
// and supplies the injected date.
func (p *UIJournalParser) Parse(source, text string) *UIResult {
	res := &UIResult{Source: source, FileDate: FileDate(source)}
	candidates := p.clean(decode.SplitLines(text), res)
	res.Events = p.structure(candidates, &res.Stats)
	res.Stats.Events = len(res.Events)
	return res
}

// clean is the first pass: shape check, module filter, payload syntax
// check, date injection and first-seen deduplication
func (p *UIJournalParser) clean(lines []string, res *UIResult) []candidate {
	seen := make(map[string]bool)
	var out []candidate

	for i, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		res.Stats.Lines++

		c, ok := matchEventLine(line, res.FileDate)
		if !ok {
			res.Stats.Unmatched++
			continue
		}
		c.position = i + 1

		if screens, filtered := p.filters[c.module]; filtered && !screens[c.screen] {
			res.Stats.Filtered++
			continue
		}
		if !ValidPayload(c.payload) {
			res.Stats.MalformedPayloads++
			continue
		}

		key := c.key()
		if seen[key] {
			res.Stats.Duplicates++
			continue
		}
		seen[key] = true
		out = append(out, c)
	}
	return out
}

func matchEventLine(line, fileDate string) (candidate, bool) {
	if m := uiEventRe.FindStringSubmatch(line); m != nil {
		return candidate{
			date: fileDate, clock: m[1], id: m[2], module: m[3], direction: m[4],
			view: m[5], screen: m[6], kind: m[7], payload: m[8],
		}, true
	}
	if m := uiDatedRe.FindStringSubmatch(line); m != nil {
		return candidate{
			date: m[1], clock: m[2], id: m[3], module: m[4], direction: m[5],
			view: m[6], screen: m[7], kind: m[8], payload: m[9],
		}, true
	}
	return candidate{}, false
}

// structure is the second pass: typed fields and decoded payloads. A line
// whose payload does not decode to an object is skipped.
func (p *UIJournalParser) structure(candidates []candidate, stats *UIStats) []types.UiEvent {
	events := make([]types.UiEvent, 0, len(candidates))
	for _, c := range candidates {
		clock, err := ParseTimeOfDay(c.clock)
		if err != nil {
			stats.Unmatched++
			continue
		}
		id, err := strconv.Atoi(c.id)
		if err != nil {
			stats.Unmatched++
			continue
		}
		view, err := strconv.Atoi(c.view)
		if err != nil {
			stats.Unmatched++
			continue
		}
		fields, err := DecodePayload(c.payload)
		if err != nil {
			stats.MalformedPayloads++
			continue
		}

		ev := types.UiEvent{
			Position:   c.position,
			Date:       c.date,
			Time:       clock,
			ID:         id,
			Module:     c.module,
			Direction:  c.direction,
			ViewID:     view,
			Screen:     c.screen,
			Kind:       types.EventKind(c.kind),
			RawPayload: c.payload,
			Payload:    fields,
		}
		if d, err := time.Parse(displayLayout, c.date); err == nil {
			ev.DateFormatted = d.Format("2006-01-02")
			ev.DayOfWeek = d.Weekday().String()
		} else {
			ev.DateFormatted = c.date
		}
		events = append(events, ev)
	}
	return events
}
