// Package console renders sessions, pending sets and plans for the terminal.
package console

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/tablesmith/tablesmith/internal/rows"
	"github.com/tablesmith/tablesmith/internal/schema"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99")).BorderStyle(lipgloss.NormalBorder()).BorderBottom(true).Padding(0, 1)
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	keyStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	addStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	removeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	changeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	errStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

// Observer prints the pending set every time it changes.
type Observer struct {
	w io.Writer
}

// NewObserver writes to w.
func NewObserver(w io.Writer) *Observer {
	return &Observer{w: w}
}

func (o *Observer) PendingChanged(table string, events []schema.Event) {
	fmt.Fprint(o.w, Pending(table, events))
}

// Pending renders the pending set, one event per line, marked by effect.
func Pending(table string, events []schema.Event) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("Pending changes for %s", table)) + "\n")
	if len(events) == 0 {
		b.WriteString(dimStyle.Render("  nothing pending") + "\n")
		return b.String()
	}
	for i, e := range events {
		fmt.Fprintf(&b, "  %s %s\n", dimStyle.Render(fmt.Sprintf("%2d.", i+1)), marker(e))
	}
	return b.String()
}

func marker(e schema.Event) string {
	switch e.(type) {
	case schema.AddColumn, schema.AddForeignKey, schema.AddPrimaryKey:
		return addStyle.Render("+ " + e.String())
	case schema.RemoveColumn, schema.RemoveForeignKey, schema.RemovePrimaryKey:
		return removeStyle.Render("- " + e.String())
	default:
		return changeStyle.Render("~ " + e.String())
	}
}

// Snapshot renders a table's columns with their types and constraints.
func Snapshot(s schema.TableSnapshot) string {
	header := []string{"Column", "Type", "Key", "References"}
	cells := make([][]string, 0, len(s.Columns))
	for _, c := range s.Columns {
		key, ref := "", ""
		if c.IsPrimaryKey() {
			key = "PK"
		}
		if fk, ok := c.ForeignKey(); ok {
			ref = fk.ReferencedTable + "(" + fk.ReferencedColumn + ")"
		}
		cells = append(cells, []string{c.Name, string(c.DataType), key, ref})
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(s.TableName) + "\n")
	writeGrid(&b, header, cells, func(row []string, line string) string {
		if row[2] != "" {
			return keyStyle.Render(line)
		}
		return line
	})
	return b.String()
}

// Plan renders compiled statements as they will run.
func Plan(stmts []string) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Plan") + "\n")
	if len(stmts) == 0 {
		b.WriteString(dimStyle.Render("  nothing to do") + "\n")
		return b.String()
	}
	for i, s := range stmts {
		fmt.Fprintf(&b, "  %s %s;\n", dimStyle.Render(fmt.Sprintf("%2d.", i+1)), s)
	}
	return b.String()
}

// Tables renders the catalog overview.
func Tables(tables []schema.TableOverview) string {
	header := []string{"Table", "Columns"}
	cells := make([][]string, 0, len(tables))
	for _, t := range tables {
		cols := make([]string, len(t.ColumnNames))
		for i, name := range t.ColumnNames {
			cols[i] = name + " " + strings.ToLower(string(t.DataTypes[i]))
		}
		cells = append(cells, []string{t.TableName, strings.Join(cols, ", ")})
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("Tables (%d)", len(tables))) + "\n")
	writeGrid(&b, header, cells, nil)
	return b.String()
}

// Rows renders a read-back result.
func Rows(r *rows.Result) string {
	var b strings.Builder
	writeGrid(&b, r.Columns, r.Rows, nil)
	b.WriteString(dimStyle.Render(fmt.Sprintf("  (%d rows)", len(r.Rows))) + "\n")
	return b.String()
}

// Success renders a confirmation line.
func Success(msg string) string { return successStyle.Render("✓ "+msg) + "\n" }

// Failure renders an error line.
func Failure(err error) string { return errStyle.Render("✗ "+err.Error()) + "\n" }

// writeGrid writes left-aligned columns sized to their widest cell. style,
// when set, may restyle a rendered line.
func writeGrid(b *strings.Builder, header []string, cells [][]string, style func(row []string, line string) string) {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range cells {
		for i := range widths {
			if i < len(row) {
				widths[i] = max(widths[i], lipgloss.Width(row[i]))
			}
		}
	}

	format := func(row []string) string {
		parts := make([]string, len(widths))
		for i, w := range widths {
			cell := ""
			if i < len(row) {
				cell = row[i]
			}
			parts[i] = cell + strings.Repeat(" ", w-lipgloss.Width(cell))
		}
		return "  " + strings.TrimRight(strings.Join(parts, "  "), " ")
	}

	b.WriteString(dimStyle.Render(format(header)) + "\n")
	total := 0
	for _, w := range widths {
		total += w + 2
	}
	b.WriteString(dimStyle.Render("  "+strings.Repeat("─", max(total-2, 0))) + "\n")
	for _, row := range cells {
		line := format(row)
		if style != nil {
			line = style(row, line)
		}
		b.WriteString(line + "\n")
	}
}
