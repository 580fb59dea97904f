// Package render draws analysis results for a terminal using lipgloss.
package render

import (
	"github.com/charmbracelet/lipgloss"
)

var (
	// AccentColor is used for titles and matched steps
	AccentColor = lipgloss.Color("#4ECDC4")
	// WarnColor marks unmatched steps and failures
	WarnColor = lipgloss.Color("#FFE66D")
	// SubtleColor is used for secondary text
	SubtleColor = lipgloss.Color("#666666")

	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(AccentColor)

	SubtleStyle = lipgloss.NewStyle().
			Foreground(SubtleColor)

	MatchedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(AccentColor)

	UnmatchedStyle = lipgloss.NewStyle().
			Foreground(WarnColor)

	ColumnStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(SubtleColor).
			Padding(0, 1)

	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(SubtleColor)

	CellStyle = lipgloss.NewStyle().
			PaddingRight(2)
)

// Markers prefix each aligned step so matches stay visible without color
const (
	MatchedMarker   = "✓"
	UnmatchedMarker = "·"
)
