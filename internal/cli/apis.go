package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/Sternrassler/biofetch/pkg/apis"
	"github.com/Sternrassler/biofetch/pkg/pagination"
)

func (a *app) newAPIsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "apis",
		Short: "List the registered API presets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			presets := apis.All()

			if a.v.GetString("output") == "json" {
				rows := make([]map[string]any, 0, len(presets))
				for _, p := range presets {
					rows = append(rows, map[string]any{
						"name":       p.Name,
						"base_url":   p.BaseURL,
						"pagination": describeShape(p.Shape),
						"throttle":   describeThrottle(p),
						"retry":      describeRetry(p),
						"key":        describeKey(p),
					})
				}
				return writeJSON(a.out, rows)
			}

			t := newTable(a.out)
			t.AppendHeader(table.Row{"Name", "Base URL", "Pagination", "Throttle", "Retry", "Key"})
			for _, p := range presets {
				t.AppendRow(table.Row{p.Name, p.BaseURL, describeShape(p.Shape), describeThrottle(p), describeRetry(p), describeKey(p)})
			}
			t.Render()
			return nil
		},
	}
}

func describeShape(s pagination.Shape) string {
	switch s.Style {
	case pagination.StyleCursorURL:
		return fmt.Sprintf("cursor %s → %s", s.ItemsField, s.NextField)
	case pagination.StyleToken:
		return fmt.Sprintf("token %s → %s", s.TokenField, s.TokenParam)
	case pagination.StyleOffset:
		return fmt.Sprintf("offset %s / %s", s.OffsetParam, s.TotalField)
	default:
		return "single page"
	}
}

func describeThrottle(p apis.Preset) string {
	switch {
	case p.MinInterval > 0 && p.KeyedMinInterval > 0:
		return fmt.Sprintf("%s (%s keyed)", p.MinInterval, p.KeyedMinInterval)
	case p.MinInterval > 0:
		return p.MinInterval.String()
	case p.RequestsPerSecond > 0:
		return fmt.Sprintf("%g rps", p.RequestsPerSecond)
	default:
		return "-"
	}
}

func describeRetry(p apis.Preset) string {
	if p.Retry.MaxRetries == 0 || len(p.Retry.RetryOn) == 0 {
		return "none"
	}
	classes := make([]string, 0, len(p.Retry.RetryOn))
	for _, c := range p.Retry.RetryOn {
		classes = append(classes, string(c))
	}
	return fmt.Sprintf("%s ×%d after %s", strings.Join(classes, "+"), p.Retry.MaxRetries, p.Retry.Backoff.Round(time.Millisecond))
}

func describeKey(p apis.Preset) string {
	switch {
	case p.KeyHeader != "":
		return fmt.Sprintf("header %s ($%s)", p.KeyHeader, p.KeyEnv)
	case p.KeyParam != "":
		return fmt.Sprintf("param %s ($%s)", p.KeyParam, p.KeyEnv)
	default:
		return "-"
	}
}
