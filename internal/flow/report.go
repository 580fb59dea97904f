package flow

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/therealutkarshpriyadarshi/journalscope/pkg/types"
)

// Entry is one transaction block of a flow report
type Entry struct {
	Transaction types.Transaction `json:"transaction"`
	Steps       []types.FlowStep  `json:"steps"`
	EventCount  int               `json:"ui_events"`
	Dates       []string          `json:"ui_dates"`
}

// BuildReport correlates every transaction that has a start time with the
// UI events of its window.
func BuildReport(txns []types.Transaction, events []types.UiEvent) []Entry {
	entries := make([]Entry, 0, len(txns))
	for _, txn := range txns {
		if !txn.HasStart {
			continue
		}
		window := Window(events, txn.Start, txn.End)
		entries = append(entries, Entry{
			Transaction: txn,
			Steps:       Steps(window, txn.Start, txn.End),
			EventCount:  len(window),
			Dates:       Dates(window),
		})
	}
	return entries
}

// FlowLine renders steps as "Screen[HH:MM:SS] --detail--> ..."
func FlowLine(steps []types.FlowStep) string {
	if len(steps) == 0 {
		return "No screen data available"
	}
	parts := make([]string, 0, 2*len(steps))
	for _, s := range steps {
		parts = append(parts, fmt.Sprintf("%s[%s]", s.Screen, s.Time), fmt.Sprintf("--%s-->", s.Detail))
	}
	return strings.Join(parts, " ")
}

// WriteReport writes the plain text flow report
func WriteReport(w io.Writer, entries []Entry) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "TRANSACTION UI FLOW ANALYSIS")
	fmt.Fprintf(bw, "%s\n\n", strings.Repeat("=", 80))

	for _, e := range entries {
		fmt.Fprintf(bw, "Transaction ID: %s\n", e.Transaction.ID)
		fmt.Fprintf(bw, "Transaction Type: %s\n", e.Transaction.Type)
		fmt.Fprintf(bw, "Start Time: %s\n", e.Transaction.Start)
		fmt.Fprintf(bw, "End Time: %s\n", e.Transaction.End)
		fmt.Fprintf(bw, "UI Events: %d\n", e.EventCount)
		if len(e.Dates) > 0 {
			fmt.Fprintf(bw, "UI Dates: %s\n", strings.Join(e.Dates, ", "))
		} else {
			fmt.Fprintln(bw, "UI Dates: No date data available")
		}
		fmt.Fprintf(bw, "Flow: %s\n", FlowLine(e.Steps))
		fmt.Fprintf(bw, "\n%s\n\n", strings.Repeat("-", 60))
	}

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to write flow report: %w", err)
	}
	return nil
}

func seconds(d time.Duration) string {
	return fmt.Sprintf("%.1f seconds", d.Seconds())
}

// WriteComparison writes the measured comparison of two transactions
func WriteComparison(w io.Writer, c *Comparison) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintln(bw, "Duration:")
	for _, side := range []struct {
		label string
		s     Side
	}{{"Transaction 1", c.A}, {"Transaction 2", c.B}} {
		if side.s.HasDuration {
			fmt.Fprintf(bw, "   - %s Duration: %s\n", side.label, seconds(side.s.Duration))
		} else {
			fmt.Fprintf(bw, "   - %s Duration: Cannot calculate (missing start/end time)\n", side.label)
		}
	}
	if c.HasDurationDiff {
		switch {
		case c.DurationDiff > 0:
			fmt.Fprintf(bw, "   - Transaction 2 took %s longer\n", seconds(c.DurationDiff))
		case c.DurationDiff < 0:
			fmt.Fprintf(bw, "   - Transaction 1 took %s longer\n", seconds(-c.DurationDiff))
		default:
			fmt.Fprintln(bw, "   - Both transactions took exactly the same time")
		}
	}
	fmt.Fprintln(bw)

	fmt.Fprintln(bw, "Step Counts:")
	fmt.Fprintf(bw, "   - Transaction 1 Steps: %d\n", c.A.Steps)
	fmt.Fprintf(bw, "   - Transaction 2 Steps: %d\n", c.B.Steps)
	switch {
	case c.StepDiff > 0:
		fmt.Fprintf(bw, "   - Transaction 2 has %d more steps\n", c.StepDiff)
	case c.StepDiff < 0:
		fmt.Fprintf(bw, "   - Transaction 1 has %d more steps\n", -c.StepDiff)
	default:
		fmt.Fprintln(bw, "   - Both transactions have identical step counts")
	}
	fmt.Fprintln(bw)

	if c.ScreensCompared {
		fmt.Fprintln(bw, "Screen Usage:")
		fmt.Fprintf(bw, "   - Common Screens: %d\n", len(c.Common))
		fmt.Fprintf(bw, "   - Transaction 1 Only: %d\n", len(c.OnlyA))
		fmt.Fprintf(bw, "   - Transaction 2 Only: %d\n", len(c.OnlyB))
		if len(c.OnlyA) > 0 {
			fmt.Fprintf(bw, "   - Transaction 1 Unique: %s\n", strings.Join(c.OnlyA, ", "))
		}
		if len(c.OnlyB) > 0 {
			fmt.Fprintf(bw, "   - Transaction 2 Unique: %s\n", strings.Join(c.OnlyB, ", "))
		}
		fmt.Fprintf(bw, "   - Total Unique Screens Used: %d\n", c.TotalUnique)
	} else {
		fmt.Fprintln(bw, "Screen Usage: Cannot analyze - insufficient flow data")
	}
	fmt.Fprintln(bw)

	same := "No"
	if c.SameSource {
		same = "Yes"
	}
	fmt.Fprintln(bw, "Data Source:")
	fmt.Fprintf(bw, "   - Transaction 1 Source: %s\n", c.A.SourceFile)
	fmt.Fprintf(bw, "   - Transaction 2 Source: %s\n", c.B.SourceFile)
	fmt.Fprintf(bw, "   - Same Source File: %s\n", same)

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to write comparison: %w", err)
	}
	return nil
}
