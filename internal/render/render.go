package render

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/therealutkarshpriyadarshi/journalscope/internal/router"
	"github.com/therealutkarshpriyadarshi/journalscope/pkg/types"
)

func column(title string, flow types.ScreenFlow, mask []bool) string {
	rows := []string{TitleStyle.Render(title)}
	for i, screen := range flow {
		matched := i < len(mask) && mask[i]
		if matched {
			rows = append(rows, MatchedStyle.Render(fmt.Sprintf("%s %2d. %s", MatchedMarker, i+1, screen)))
		} else {
			rows = append(rows, UnmatchedStyle.Render(fmt.Sprintf("%s %2d. %s", UnmatchedMarker, i+1, screen)))
		}
	}
	return ColumnStyle.Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

// Alignment renders two aligned flows side by side with matched steps highlighted
func Alignment(res *types.AlignmentResult, titleA, titleB string) string {
	left := column(titleA, res.A, res.MaskA)
	right := column(titleB, res.B, res.MaskB)
	matched := SubtleStyle.Render(fmt.Sprintf("%d matched steps", len(res.Matched())))
	return lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.JoinHorizontal(lipgloss.Top, left, "  ", right),
		matched,
	)
}

// Table renders rows under headers with columns padded to their widest cell
func Table(headers []string, rows [][]string) string {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i := range headers {
			if i < len(row) && lipgloss.Width(row[i]) > widths[i] {
				widths[i] = lipgloss.Width(row[i])
			}
		}
	}

	line := func(cells []string, style lipgloss.Style) string {
		parts := make([]string, len(headers))
		for i := range headers {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			parts[i] = CellStyle.Width(widths[i] + 2).Render(cell)
		}
		return style.Render(lipgloss.JoinHorizontal(lipgloss.Top, parts...))
	}

	out := []string{line(headers, HeaderStyle)}
	for _, row := range rows {
		out = append(out, line(row, lipgloss.NewStyle()))
	}
	return strings.Join(out, "\n")
}

// Transactions renders a transaction table
func Transactions(txns []types.Transaction) string {
	rows := make([][]string, 0, len(txns))
	for i := range txns {
		r := txns[i].Record()
		rows = append(rows, []string{r.ID, r.Type, r.StartTime, r.EndTime, r.Duration, string(r.EndState), r.SourceFile})
	}
	return Table([]string{"ID", "TYPE", "START", "END", "DURATION", "STATE", "SOURCE"}, rows)
}

// Routing renders the bucket counts of a routing pass with the commands
// that can consume each bucket.
func Routing(res *router.Result) string {
	rows := make([][]string, 0, len(types.Categories))
	for _, c := range types.Categories {
		ops := router.Operations(c)
		rows = append(rows, []string{string(c), fmt.Sprintf("%d", len(res.Bucket(c))), strings.Join(ops, ", ")})
	}
	table := Table([]string{"CATEGORY", "FILES", "COMMANDS"}, rows)

	summary := fmt.Sprintf("%d files: %d classified, %d unclassified, %d failed",
		res.Stats.Total, res.Stats.Classified, res.Stats.Unclassified, res.Stats.Failed)
	parts := []string{table, SubtleStyle.Render(summary)}
	if combined := router.CombinedOperations(res.Present()); len(combined) > 0 {
		parts = append(parts, SubtleStyle.Render("combined: "+strings.Join(combined, ", ")))
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}
