package flow

import (
	"sort"

	"github.com/therealutkarshpriyadarshi/journalscope/internal/parser"
	"github.com/therealutkarshpriyadarshi/journalscope/pkg/types"
)

const secondsPerDay = 24 * 60 * 60

// InWindow reports whether t lies in the inclusive window [start, end].
// A window whose start is later than its end wraps past midnight.
func InWindow(t, start, end types.TimeOfDay) bool {
	if start <= end {
		return t >= start && t <= end
	}
	return t >= start || t <= end
}

// offset is the distance from start to t going forward through the day
func offset(t, start types.TimeOfDay) int {
	return ((int(t)-int(start))%secondsPerDay + secondsPerDay) % secondsPerDay
}

// Window returns the events inside [start, end] ordered by time.
// The sort is stable so events sharing a second keep their journal order.
func Window(events []types.UiEvent, start, end types.TimeOfDay) []types.UiEvent {
	out := make([]types.UiEvent, 0)
	for _, ev := range events {
		if InWindow(ev.Time, start, end) {
			out = append(out, ev)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return offset(out[i].Time, start) < offset(out[j].Time, start)
	})
	return out
}

// Screens reduces the events in [start, end] to their screen sequence with
// consecutive repeats collapsed. It returns an empty flow when nothing matches.
func Screens(events []types.UiEvent, start, end types.TimeOfDay) types.ScreenFlow {
	steps := Steps(events, start, end)
	flow := make(types.ScreenFlow, 0, len(steps))
	for _, s := range steps {
		flow = append(flow, s.Screen)
	}
	return flow
}

// Steps is Screens with the time and transition detail of the first event
// of every collapsed run.
func Steps(events []types.UiEvent, start, end types.TimeOfDay) []types.FlowStep {
	steps := make([]types.FlowStep, 0)
	for _, ev := range Window(events, start, end) {
		if n := len(steps); n > 0 && steps[n-1].Screen == ev.Screen {
			continue
		}
		steps = append(steps, types.FlowStep{
			Screen: ev.Screen,
			Time:   ev.Time,
			Detail: Detail(ev),
		})
	}
	return steps
}

// Detail names the transition an event represents
func Detail(ev types.UiEvent) string {
	switch ev.Kind {
	case types.EventResult:
		if v, ok := parser.FieldText(ev.Payload, "resultDetail"); ok && v != "" {
			return v
		}
		return "RESULT"
	case types.EventAction:
		if v, ok := parser.FieldText(ev.Payload, "action"); ok && v != "" {
			return v
		}
		return "ACTION"
	}
	return "OK"
}

// ForTransaction returns the screen flow of a transaction. Transactions
// without a start time, or windows with no events, yield the NoFlowData
// sentinel.
func ForTransaction(events []types.UiEvent, txn *types.Transaction) types.ScreenFlow {
	if txn == nil || !txn.HasStart {
		return types.ScreenFlow{types.NoFlowData}
	}
	flow := Screens(events, txn.Start, txn.End)
	if len(flow) == 0 {
		return types.ScreenFlow{types.NoFlowData}
	}
	return flow
}

// Dates returns the distinct calendar dates of the events in first-seen
// order. Events whose date did not parse are skipped.
func Dates(events []types.UiEvent) []string {
	seen := make(map[string]bool)
	dates := make([]string, 0)
	for _, ev := range events {
		d := ev.DateFormatted
		if ev.DayOfWeek == "" || seen[d] {
			continue
		}
		seen[d] = true
		dates = append(dates, d)
	}
	return dates
}
