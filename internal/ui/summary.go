package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/bamsammich/fcp/internal/config"
	"github.com/bamsammich/fcp/internal/stats"
)

// Catppuccin Mocha defaults, overridable from the [theme] config table.
const (
	defaultGreen  = "#a6e3a1"
	defaultYellow = "#f9e2af"
	defaultRed    = "#f38ba8"
	defaultMuted  = "#5a6278"
)

// SummaryStyle renders the completion summary for a terminal.
type SummaryStyle struct {
	ok     lipgloss.Style
	failed lipgloss.Style
	warn   lipgloss.Style
	label  lipgloss.Style
	value  lipgloss.Style
}

// NewSummaryStyle builds the summary styles from theme, falling back to the
// default palette for unset colors.
func NewSummaryStyle(theme config.ThemeConfig) SummaryStyle {
	color := func(v *string, def string) lipgloss.Color {
		if v != nil && *v != "" {
			return lipgloss.Color(*v)
		}
		return lipgloss.Color(def)
	}
	return SummaryStyle{
		ok:     lipgloss.NewStyle().Bold(true).Foreground(color(theme.Green, defaultGreen)),
		failed: lipgloss.NewStyle().Bold(true).Foreground(color(theme.Red, defaultRed)),
		warn:   lipgloss.NewStyle().Foreground(color(theme.Yellow, defaultYellow)),
		label:  lipgloss.NewStyle().Foreground(color(theme.Muted, defaultMuted)),
		value:  lipgloss.NewStyle().Bold(true),
	}
}

// Render formats snap like CompletionSummary with colors.
func (s SummaryStyle) Render(snap stats.Snapshot) string {
	var b strings.Builder
	if snap.FilesFailed > 0 {
		b.WriteString(s.failed.Render("done ✗"))
	} else {
		b.WriteString(s.ok.Render("done ✓"))
	}

	field := func(label, value string) {
		b.WriteString("  ")
		b.WriteString(s.label.Render(label))
		b.WriteString(" ")
		b.WriteString(s.value.Render(value))
	}
	field("files", FormatCount(snap.FilesCopied))
	field("size", FormatBytes(snap.BytesCopied))
	field("avg", FormatRate(snap.Throughput()))
	field("time", FormatDuration(snap.Elapsed))
	for _, extra := range extras(snap) {
		field(extra.label, FormatCount(extra.n))
	}

	b.WriteString("  ")
	b.WriteString(s.label.Render("errors"))
	b.WriteString(" ")
	if snap.FilesFailed > 0 {
		b.WriteString(s.failed.Render(FormatCount(snap.FilesFailed)))
	} else {
		b.WriteString(s.warn.Render("0"))
	}
	return b.String()
}
