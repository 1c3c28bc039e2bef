package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/matflow/matflow-cli/internal/columns"
	"github.com/matflow/matflow-cli/internal/models"
)

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	// Column names are data; keep their case.
	t.Style().Format.Header = text.FormatDefault
	t.Style().Format.Footer = text.FormatDefault
	return t
}

// renderRows prints up to limit rows (all when limit <= 0).
func renderRows(w io.Writer, rows models.Rows, limit int) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "(no rows)")
		return
	}
	cols := rows.Columns()

	t := newTable(w)
	header := make(table.Row, len(cols))
	for i, c := range cols {
		header[i] = c
	}
	t.AppendHeader(header)

	shown := rows
	if limit > 0 && len(rows) > limit {
		shown = rows[:limit]
	}
	for _, r := range shown {
		row := make(table.Row, len(cols))
		for i, c := range cols {
			v, _ := r.Get(c)
			row[i] = formatValue(v)
		}
		t.AppendRow(row)
	}
	if len(shown) < len(rows) {
		t.AppendFooter(table.Row{fmt.Sprintf("%d of %d rows", len(shown), len(rows))})
	}
	t.Render()
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case string:
		return val
	case json.Number:
		return val.String()
	case map[string]any, []any:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(data)
	default:
		return fmt.Sprint(val)
	}
}

// renderColumns prints each column with its inferred type.
func renderColumns(w io.Writer, rows models.Rows, summary columns.Summary) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Column", "Type"})
	for _, c := range rows.Columns() {
		kind := "unknown"
		switch {
		case summary.IsNumeric(c) && summary.IsCategorical(c):
			kind = "mixed"
		case summary.IsNumeric(c):
			kind = "numeric"
		case summary.IsCategorical(c):
			kind = "categorical"
		}
		t.AppendRow(table.Row{c, kind})
	}
	t.AppendFooter(table.Row{fmt.Sprintf("%d numeric", len(summary.Numeric)), fmt.Sprintf("%d categorical", len(summary.Categorical))})
	t.Render()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
