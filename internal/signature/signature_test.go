package signature

import (
	"testing"

	"github.com/therealutkarshpriyadarshi/journalscope/pkg/types"
)

const (
	uiLine       = `09:15:01 12 GUIAPP * [5] - MainMenu result:{"resultDetail":"OK"}`
	uiDateLine   = `03/04/2024 09:15:01 12 GUIAPP > [5] - MainMenu action:{"action":"NEXT"}`
	customerLine = `09:15:00 3201 Transaction no. '00045'`
	traceLine    = `0001 12/03 10:11:12.34 MOD DEV PID:1a.2b Data:12`
	errorHeader  = `01/02 230101 10:11:12.123 ErrName ModName PID:ab.cd Data:42`
)

func TestSignatureMatches(t *testing.T) {
	tests := []struct {
		name string
		sig  *Signature
		line string
		want bool
	}{
		{"ui line", UIJournal, uiLine, true},
		{"ui dated line", UIJournal, uiDateLine, true},
		{"ui rejects customer", UIJournal, customerLine, false},
		{"customer line", CustomerJournal, customerLine, true},
		{"customer unknown tid", CustomerJournal, "09:15:00 1234 plain text", true},
		{"customer rejects ui", CustomerJournal, uiLine, false},
		{"customer requires time prefix", CustomerJournal, "plain text line", false},
		{"customer skips asterisks", CustomerJournal, "********", false},
		{"trace line", TRCTrace, traceLine, true},
		{"trace needs data", TRCTrace, "10:11:12.34 PID:1a.2b", false},
		{"error header", TRCError, errorHeader, true},
		{"error running marker", TRCError, "*** Running process dump", true},
		{"error created by", TRCError, "  Created by service", true},
		{"error process information", TRCError, "Process Information:", true},
		{"error process information suffix", TRCError, "Process Information: x", false},
		{"empty line", TRCError, "   ", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.sig.Matches(tt.line); got != tt.want {
				t.Errorf("Matches(%q) = %v, want %v (hits %d)", tt.line, got, tt.want, tt.sig.Hits(tt.line))
			}
		})
	}
}

func TestScoreAllCountsLinesForMultipleFamilies(t *testing.T) {
	lines := []string{errorHeader, errorHeader, traceLine, "", customerLine}

	s := ScoreAll(lines)
	if s.TRCError != 2 {
		t.Errorf("TRCError = %d, want 2", s.TRCError)
	}
	// error headers also satisfy the trace signature
	if s.TRCTrace != 3 {
		t.Errorf("TRCTrace = %d, want 3", s.TRCTrace)
	}
	if s.CustomerJournal != 1 {
		t.Errorf("CustomerJournal = %d, want 1", s.CustomerJournal)
	}
	if s.Max() != 3 {
		t.Errorf("Max() = %d, want 3", s.Max())
	}
	if got := Score(types.FamilyTRCTrace, lines); got != s.TRCTrace {
		t.Errorf("Score(TRCTrace) = %d, want %d", got, s.TRCTrace)
	}
	if got := s.Of(types.FamilyCustomerJournal); got != 1 {
		t.Errorf("Of(CustomerJournal) = %d", got)
	}
}

func TestScoreUnknownFamily(t *testing.T) {
	if got := Score(types.FamilyRegistry, []string{customerLine}); got != 0 {
		t.Errorf("Score(Registry) = %d, want 0", got)
	}
}

func TestCountTRCErrorHeaders(t *testing.T) {
	lines := []string{errorHeader, "*** Running", "  " + errorHeader, traceLine}
	if got := CountTRCErrorHeaders(lines); got != 2 {
		t.Errorf("CountTRCErrorHeaders() = %d, want 2", got)
	}
}
