package parser

import (
	"testing"

	"github.com/therealutkarshpriyadarshi/journalscope/pkg/types"
)

func TestParseTimeOfDay(t *testing.T) {
	tests := []struct {
		input   string
		want    types.TimeOfDay
		wantErr bool
	}{
		{"00:00:00", 0, false},
		{"09:15:30", types.NewTimeOfDay(9, 15, 30), false},
		{"23:59:59", types.NewTimeOfDay(23, 59, 59), false},
		{"24:00:00", 0, true},
		{"12:60:00", 0, true},
		{"9:15:30", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseTimeOfDay(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseTimeOfDay(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseTimeOfDay(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestParseCustomerLine(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   types.ParsedLine
		wantOK bool
	}{
		{
			name:   "full line",
			input:  "  09:15:00 3201 Transaction no. '00045'  ",
			want:   types.ParsedLine{Time: types.NewTimeOfDay(9, 15, 0), HasTime: true, TID: "3201", Message: "Transaction no. '00045'"},
			wantOK: true,
		},
		{
			name:   "no message",
			input:  "09:15:00 3220",
			want:   types.ParsedLine{Time: types.NewTimeOfDay(9, 15, 0), HasTime: true, TID: "3220"},
			wantOK: true,
		},
		{
			name:   "free text",
			input:  "CARD INSERTED",
			want:   types.ParsedLine{Message: "CARD INSERTED"},
			wantOK: true,
		},
		{
			name:   "invalid clock keeps tid",
			input:  "25:00:00 3201 late",
			want:   types.ParsedLine{TID: "3201", Message: "late"},
			wantOK: true,
		},
		{name: "blank", input: "   ", wantOK: false},
		{name: "separator", input: "**********", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseCustomerLine(tt.input)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("ParseCustomerLine(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseCustomerJournalKeepsOrder(t *testing.T) {
	text := "09:15:00 3201 start\r\n\r\n****\r\nfree text\r\n09:15:30 3220 end-state'N'\r\n"

	lines := ParseCustomerJournal(text)
	if len(lines) != 3 {
		t.Fatalf("len(lines) = %d, want 3", len(lines))
	}
	if lines[0].TID != "3201" || lines[1].Message != "free text" || lines[2].TID != "3220" {
		t.Errorf("unexpected lines: %+v", lines)
	}
}
