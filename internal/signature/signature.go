// Package signature scores a file's lines against the structural signature of
// each known log family.
package signature

import (
	"regexp"
	"strings"

	"github.com/therealutkarshpriyadarshi/journalscope/pkg/types"
)

var (
	directionRe    = regexp.MustCompile(`\s+[<>*]\s+`)
	viewIDRe       = regexp.MustCompile(`\[\d+\]`)
	payloadRe      = regexp.MustCompile(`(result|action):\s*\{.*\}`)
	uiPrefixRe     = regexp.MustCompile(`^\d{2}:\d{2}:\d{2}\s+\d+\s+\w+\s+[<>*]`)
	uiDatePrefixRe = regexp.MustCompile(`^\d{2}/\d{2}/\d{4}\s+\d{2}:\d{2}:\d{2}\s+\d+\s+\w+\s+[<>*]`)
	customerLineRe = regexp.MustCompile(`^(\d{2}:\d{2}:\d{2})\s+(\d+)\s*(.*)`)
	subSecondRe    = regexp.MustCompile(`\d{2}:\d{2}:\d{2}\.\d{2}`)
	pidRe          = regexp.MustCompile(`PID:\w+\.\w+`)
	errorHeaderRe  = regexp.MustCompile(`^\d{2}/\d{2}\s+\d{6}\s+\d{2}:\d{2}:\d{2}\.\d{1,3}\s+\w+\s+\w+\s+PID:\w+\.\w+\s+Data:\d+`)
)

// WellKnownTIDs are customer journal codes that add confidence to a line
var WellKnownTIDs = map[string]bool{
	"3201": true,
	"3202": true,
	"3207": true,
	"3217": true,
	"3220": true,
}

// Indicator is one named boolean test applied to a trimmed, non-empty line
type Indicator struct {
	Name  string
	Match func(line string) bool
}

// Signature is a family's indicator table. A line counts toward the family
// when at least Threshold indicators hold. Lines failing Guard are skipped.
type Signature struct {
	Family     types.FamilyLabel
	Indicators []Indicator
	Threshold  int
	Guard      func(line string) bool
}

// Hits returns how many indicators hold for line
func (s *Signature) Hits(line string) int {
	n := 0
	for _, ind := range s.Indicators {
		if ind.Match(line) {
			n++
		}
	}
	return n
}

// Matches reports whether a single raw line counts toward the family
func (s *Signature) Matches(raw string) bool {
	line := strings.TrimSpace(raw)
	if line == "" {
		return false
	}
	if s.Guard != nil && !s.Guard(line) {
		return false
	}
	return s.Hits(line) >= s.Threshold
}

// Score counts matching lines
func (s *Signature) Score(lines []string) int {
	score := 0
	for _, line := range lines {
		if s.Matches(line) {
			score++
		}
	}
	return score
}

func hasDirection(line string) bool { return directionRe.MatchString(line) }
func hasViewID(line string) bool    { return viewIDRe.MatchString(line) }
func hasSeparator(line string) bool { return strings.Contains(line, " - ") }
func hasPayload(line string) bool   { return payloadRe.MatchString(line) }

func not(f func(string) bool) func(string) bool {
	return func(line string) bool { return !f(line) }
}

func prefix(p string) func(string) bool {
	return func(line string) bool { return strings.HasPrefix(line, p) }
}

// UIJournal matches event lines shaped like
// "HH:MM:SS id module dir [view] - screen kind:{...}"
var UIJournal = &Signature{
	Family:    types.FamilyUIJournal,
	Threshold: 4,
	Indicators: []Indicator{
		{Name: "direction", Match: hasDirection},
		{Name: "view_id", Match: hasViewID},
		{Name: "separator", Match: hasSeparator},
		{Name: "payload", Match: hasPayload},
		{Name: "event_prefix", Match: func(line string) bool {
			return uiPrefixRe.MatchString(line) || uiDatePrefixRe.MatchString(line)
		}},
	},
}

// CustomerJournal matches "HH:MM:SS tid text" lines that carry no UI markers
var CustomerJournal = &Signature{
	Family:    types.FamilyCustomerJournal,
	Threshold: 4,
	Guard: func(line string) bool {
		return strings.Trim(line, "*") != "" && customerLineRe.MatchString(line)
	},
	Indicators: []Indicator{
		{Name: "no_direction", Match: not(hasDirection)},
		{Name: "no_view_id", Match: not(hasViewID)},
		{Name: "no_separator", Match: not(hasSeparator)},
		{Name: "no_payload", Match: not(hasPayload)},
		{Name: "well_known_tid", Match: func(line string) bool {
			m := customerLineRe.FindStringSubmatch(line)
			return m != nil && WellKnownTIDs[m[2]]
		}},
	},
}

// TRCTrace requires a sub-second timestamp, a PID token and a Data token on one line
var TRCTrace = &Signature{
	Family:    types.FamilyTRCTrace,
	Threshold: 3,
	Indicators: []Indicator{
		{Name: "subsecond_time", Match: subSecondRe.MatchString},
		{Name: "pid", Match: pidRe.MatchString},
		{Name: "data", Match: func(line string) bool { return strings.Contains(line, "Data:") }},
	},
}

// TRCError matches the strict error header or one of the section markers
var TRCError = &Signature{
	Family:    types.FamilyTRCError,
	Threshold: 1,
	Indicators: []Indicator{
		{Name: "error_header", Match: errorHeaderRe.MatchString},
		{Name: "running_marker", Match: prefix("*** Running")},
		{Name: "created_by_marker", Match: prefix("Created by")},
		{Name: "process_information", Match: func(line string) bool { return line == "Process Information:" }},
	},
}

// All lists the scored signatures
var All = []*Signature{UIJournal, CustomerJournal, TRCTrace, TRCError}

// For returns the signature of a family, or nil when the family has none
func For(family types.FamilyLabel) *Signature {
	for _, s := range All {
		if s.Family == family {
			return s
		}
	}
	return nil
}

// Score counts the lines matching family's signature
func Score(family types.FamilyLabel, lines []string) int {
	s := For(family)
	if s == nil {
		return 0
	}
	return s.Score(lines)
}

// Scores holds per-family match counts for one file
type Scores struct {
	UIJournal       int `json:"ui_journal"`
	CustomerJournal int `json:"customer_journal"`
	TRCTrace        int `json:"trc_trace"`
	TRCError        int `json:"trc_error"`
}

// Max returns the highest family score
func (s Scores) Max() int {
	return max(s.UIJournal, s.CustomerJournal, s.TRCTrace, s.TRCError)
}

// Of returns the score for family
func (s Scores) Of(family types.FamilyLabel) int {
	switch family {
	case types.FamilyUIJournal:
		return s.UIJournal
	case types.FamilyCustomerJournal:
		return s.CustomerJournal
	case types.FamilyTRCTrace:
		return s.TRCTrace
	case types.FamilyTRCError:
		return s.TRCError
	}
	return 0
}

// ScoreAll scores lines against every family in a single pass
func ScoreAll(lines []string) Scores {
	var s Scores
	for _, line := range lines {
		if UIJournal.Matches(line) {
			s.UIJournal++
		}
		if CustomerJournal.Matches(line) {
			s.CustomerJournal++
		}
		if TRCTrace.Matches(line) {
			s.TRCTrace++
		}
		if TRCError.Matches(line) {
			s.TRCError++
		}
	}
	return s
}

// CountTRCErrorHeaders counts only strict error header lines
func CountTRCErrorHeaders(lines []string) int {
	n := 0
	for _, line := range lines {
		if errorHeaderRe.MatchString(strings.TrimSpace(line)) {
			n++
		}
	}
	return n
}
