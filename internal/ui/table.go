package ui

import (
	"strings"

	"github.com/charmbracelet/x/ansi"
	"github.com/mattn/go-runewidth"
)

// DefaultMaxCellWidth caps a column unless Table.MaxCellWidth overrides it.
const DefaultMaxCellWidth = 60

// Table lays out rows in aligned columns.
type Table struct {
	Headers      []string
	Rows         [][]string
	MaxCellWidth int
	Gap          int
}

// NewTable creates a table with the given headers.
func NewTable(headers ...string) *Table {
	return &Table{Headers: headers, MaxCellWidth: DefaultMaxCellWidth, Gap: 2}
}

// AddRow appends a row. Missing cells render empty; extra cells are dropped.
func (t *Table) AddRow(cells ...string) {
	row := make([]string, len(t.Headers))
	copy(row, cells)
	t.Rows = append(t.Rows, row)
}

// Render returns the table with a styled header line.
func (t *Table) Render() string {
	if len(t.Headers) == 0 {
		return ""
	}
	limit := t.MaxCellWidth
	if limit <= 0 {
		limit = DefaultMaxCellWidth
	}

	widths := make([]int, len(t.Headers))
	for i, h := range t.Headers {
		widths[i] = runewidth.StringWidth(h)
	}
	cells := make([][]string, len(t.Rows))
	for r, row := range t.Rows {
		cells[r] = make([]string, len(row))
		for i, c := range row {
			if ansi.StringWidth(c) > limit {
				c = ansi.Truncate(c, limit, "…")
			}
			cells[r][i] = c
			widths[i] = max(widths[i], ansi.StringWidth(c))
		}
	}

	gap := strings.Repeat(" ", max(t.Gap, 1))
	var b strings.Builder
	for i, h := range t.Headers {
		if i > 0 {
			b.WriteString(gap)
		}
		cell := runewidth.FillRight(h, widths[i])
		if i == len(t.Headers)-1 {
			cell = h
		}
		b.WriteString(HeaderStyle.Render(cell))
	}
	b.WriteString("\n")

	for _, row := range cells {
		for i, c := range row {
			if i > 0 {
				b.WriteString(gap)
			}
			b.WriteString(c)
			if i < len(row)-1 {
				b.WriteString(strings.Repeat(" ", widths[i]-ansi.StringWidth(c)))
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}
