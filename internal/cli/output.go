package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/Sternrassler/biofetch/pkg/client"
	"github.com/Sternrassler/biofetch/pkg/metrics"
)

const (
	maxColumns   = 8
	maxCellWidth = 48
)

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.Style().Format.Footer = text.FormatDefault
	return t
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *app) renderPage(page *client.Page) error {
	if a.v.GetString("output") == "json" {
		return writeJSON(a.out, map[string]any{
			"url":      page.URL,
			"status":   page.StatusCode,
			"cached":   page.Cached,
			"empty":    page.Empty,
			"attempts": page.Attempts,
			"next":     page.Marker.String(),
			"items":    page.Items,
		})
	}

	if len(page.Items) == 0 && page.Body != nil && !page.Empty {
		return renderBody(a.out, page.Body)
	}
	summary := fmt.Sprintf("%d items · status %d · %s", len(page.Items), page.StatusCode, page.Marker)
	if page.Cached {
		summary += " · cached"
	}
	renderItems(a.out, page.Items, summary)
	return nil
}

func (a *app) renderResult(result *client.PagedResult) error {
	if a.v.GetString("output") == "json" {
		return writeJSON(a.out, map[string]any{
			"pages":     len(result.Pages),
			"truncated": result.Truncated,
			"items":     result.Items,
		})
	}

	summary := fmt.Sprintf("%d items in %d pages", result.Len(), len(result.Pages))
	if result.Truncated {
		summary += " (truncated)"
	}
	renderItems(a.out, result.Items, summary)
	return nil
}

// renderBody prints a body that yielded no items.
func renderBody(w io.Writer, body any) error {
	switch b := body.(type) {
	case string:
		_, err := io.WriteString(w, b)
		return err
	case []byte:
		_, err := w.Write(b)
		return err
	default:
		return writeJSON(w, b)
	}
}

// renderItems prints items as a table with summary as its caption. Object
// items get one column per key (the union over all items, capped at
// maxColumns); anything else is shown in a single value column.
func renderItems(w io.Writer, items []any, summary string) {
	t := newTable(w)

	columns := itemColumns(items)
	if len(columns) == 0 {
		t.AppendHeader(table.Row{"#", "Value"})
		for i, item := range items {
			t.AppendRow(table.Row{i + 1, cell(item)})
		}
	} else {
		header := table.Row{"#"}
		for _, col := range columns {
			header = append(header, col)
		}
		t.AppendHeader(header)
		for i, item := range items {
			row := table.Row{i + 1}
			obj, _ := item.(map[string]any)
			for _, col := range columns {
				row = append(row, cell(obj[col]))
			}
			t.AppendRow(row)
		}
	}

	t.SetCaption(summary)
	t.Render()
}

func itemColumns(items []any) []string {
	seen := map[string]bool{}
	var columns []string
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil
		}
		keys := make([]string, 0, len(obj))
		for key := range obj {
			if !seen[key] {
				keys = append(keys, key)
			}
		}
		sort.Strings(keys)
		for _, key := range keys {
			seen[key] = true
			columns = append(columns, key)
		}
	}
	if len(columns) > maxColumns {
		columns = columns[:maxColumns]
	}
	return columns
}

func cell(v any) string {
	var s string
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		s = x
	case json.Number:
		s = x.String()
	case bool:
		s = strconv.FormatBool(x)
	default:
		raw, err := json.Marshal(x)
		if err != nil {
			s = fmt.Sprint(x)
		} else {
			s = string(raw)
		}
	}
	return text.Snip(s, maxCellWidth, "…")
}

func renderDownload(w io.Writer, dest string, result *client.DownloadResult) error {
	t := newTable(w)
	t.AppendRows([]table.Row{
		{"URL", result.URL},
		{"Destination", dest},
		{"Status", result.StatusCode},
		{"Bytes", result.Bytes},
		{"Attempts", result.Attempts},
		{"Window wait", result.Waited.String()},
	})
	if result.Advisory != nil {
		t.AppendRow(table.Row{"Advisory", fmt.Sprintf("%s (%d downloads)", result.Advisory.Level, result.Advisory.Count)})
	}
	t.Render()
	return nil
}

func renderMetrics(w io.Writer, samples []metrics.Sample) error {
	t := newTable(w)
	t.AppendHeader(table.Row{"Metric", "Labels", "Value"})
	for _, s := range samples {
		t.AppendRow(table.Row{s.Name, s.Labels, strconv.FormatFloat(s.Value, 'f', -1, 64)})
	}
	t.Render()
	return nil
}
