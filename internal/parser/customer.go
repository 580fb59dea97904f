package parser

import (
	"regexp"
	"strings"

	"github.com/therealutkarshpriyadarshi/journalscope/internal/decode"
	"github.com/therealutkarshpriyadarshi/journalscope/pkg/types"
)

var customerLineRe = regexp.MustCompile(`^(\d{2}:\d{2}:\d{2})\s+(\d+)\s*(.*)`)

// ParseCustomerLine tokenizes one customer journal line. It reports false for
// lines that carry nothing: blank lines and separator rows of asterisks.
// Lines not shaped like "HH:MM:SS tid text" keep their text as the message.
func ParseCustomerLine(raw string) (types.ParsedLine, bool) {
	line := strings.TrimSpace(raw)
	if line == "" || strings.Trim(line, "*") == "" {
		return types.ParsedLine{}, false
	}

	m := customerLineRe.FindStringSubmatch(line)
	if m == nil {
		return types.ParsedLine{Message: line}, true
	}

	pl := types.ParsedLine{TID: m[2], Message: m[3]}
	if t, err := ParseTimeOfDay(m[1]); err == nil {
		pl.Time = t
		pl.HasTime = true
	}
	return pl, true
}

// ParseCustomerLines tokenizes lines in physical order
func ParseCustomerLines(lines []string) []types.ParsedLine {
	out := make([]types.ParsedLine, 0, len(lines))
	for _, raw := range lines {
		if pl, ok := ParseCustomerLine(raw); ok {
			out = append(out, pl)
		}
	}
	return out
}

// ParseCustomerJournal splits decoded text into lines and tokenizes them
func ParseCustomerJournal(text string) []types.ParsedLine {
	return ParseCustomerLines(decode.SplitLines(text))
}
