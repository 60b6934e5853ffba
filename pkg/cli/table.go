package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Theme defines the color scheme for table output.
type Theme struct {
	Primary lipgloss.Color // Main accent color
	Dim     lipgloss.Color // Dimmed/help text color
}

// DefaultTheme is the default bright green theme.
var DefaultTheme = Theme{
	Primary: lipgloss.Color("#00ff9f"),
	Dim:     lipgloss.Color("#6e7681"),
}

// Styles holds the styles derived from a Theme.
type Styles struct {
	Header lipgloss.Style
	Row    lipgloss.Style
	Dim    lipgloss.Style
}

// NewStyles creates Styles from a Theme.
func NewStyles(t Theme) Styles {
	return Styles{
		Header: lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		Row:    lipgloss.NewStyle(),
		Dim:    lipgloss.NewStyle().Foreground(t.Dim),
	}
}

// Table renders a simple column-aligned table with a styled header row.
// It is intentionally plain (no box-drawing, no interactivity) — a
// terminal-friendly rendering of result rows, not a dashboard.
func Table(styles Styles, headers []string, rows [][]string) string {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && lipgloss.Width(cell) > widths[i] {
				widths[i] = lipgloss.Width(cell)
			}
		}
	}

	var b strings.Builder
	b.WriteString(styles.Header.Render(padRow(headers, widths)))
	b.WriteByte('\n')
	b.WriteString(styles.Dim.Render(strings.Repeat("-", totalWidth(widths))))
	b.WriteByte('\n')
	for _, row := range rows {
		b.WriteString(styles.Row.Render(padRow(row, widths)))
		b.WriteByte('\n')
	}
	return b.String()
}

func padRow(cells []string, widths []int) string {
	parts := make([]string, len(cells))
	for i, c := range cells {
		w := 0
		if i < len(widths) {
			w = widths[i]
		}
		parts[i] = fmt.Sprintf("%-*s", w, c)
	}
	return strings.Join(parts, "  ")
}

func totalWidth(widths []int) int {
	total := 0
	for _, w := range widths {
		total += w + 2
	}
	if total > 0 {
		total -= 2
	}
	return total
}
