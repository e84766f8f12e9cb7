package render

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

const maxColumnWidth = 32

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#8E4EC6")).
			Padding(0, 1)

	colHeaderStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#8E4EC6")).
			Bold(true).
			MarginRight(1)

	cellStyle = lipgloss.NewStyle().MarginRight(1)
	sepStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).MarginRight(1)
	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// Header renders a section title.
func Header(title string) string {
	return headerStyle.Render(title)
}

// Dim renders secondary text.
func Dim(text string) string {
	return dimStyle.Render(text)
}

// Table renders rows under columns with fixed-width cells. Cells wider than
// the column are cut with an ellipsis.
func Table(columns []string, rows [][]any) string {
	if len(columns) == 0 {
		return Dim("(no columns)")
	}

	cells := make([][]string, len(rows))
	widths := make([]int, len(columns))
	for i, c := range columns {
		widths[i] = lipgloss.Width(c)
	}
	for r, row := range rows {
		cells[r] = make([]string, len(columns))
		for i := range columns {
			text := ""
			if i < len(row) {
				text = cellText(row[i])
			}
			cells[r][i] = text
			if w := lipgloss.Width(text); w > widths[i] {
				widths[i] = w
			}
		}
	}
	for i := range widths {
		if widths[i] > maxColumnWidth {
			widths[i] = maxColumnWidth
		}
	}

	var b strings.Builder
	parts := make([]string, len(columns))
	for i, c := range columns {
		parts[i] = colHeaderStyle.Width(widths[i]).Render(truncate(c, widths[i]))
	}
	b.WriteString("  " + lipgloss.JoinHorizontal(lipgloss.Top, parts...) + "\n")

	for i := range columns {
		parts[i] = sepStyle.Render(strings.Repeat("─", widths[i]))
	}
	b.WriteString("  " + lipgloss.JoinHorizontal(lipgloss.Top, parts...) + "\n")

	for _, row := range cells {
		for i, text := range row {
			parts[i] = cellStyle.Width(widths[i]).Render(truncate(text, widths[i]))
		}
		b.WriteString("  " + lipgloss.JoinHorizontal(lipgloss.Top, parts...) + "\n")
	}
	return b.String()
}

func cellText(v any) string {
	if v == nil {
		return "null"
	}
	return strings.ReplaceAll(fmt.Sprint(v), "\n", " ")
}

func truncate(s string, width int) string {
	if lipgloss.Width(s) <= width {
		return s
	}
	r := []rune(s)
	if width <= 1 || len(r) <= 1 {
		return string(r[:1])
	}
	if len(r) > width-1 {
		r = r[:width-1]
	}
	return string(r) + "…"
}
