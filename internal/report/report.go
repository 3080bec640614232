package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/common/expfmt"
	"gopkg.in/yaml.v3"

	"github.com/psantana5/timinghooks/pkg/metrics"
	"github.com/psantana5/timinghooks/pkg/timers"
)

// Format selects how a summary is rendered
type Format string

const (
	FormatTable      Format = "table"
	FormatJSON       Format = "json"
	FormatYAML       Format = "yaml"
	FormatPrometheus Format = "prometheus"
)

// ParseFormat accepts the names above, case-insensitively. An empty string
// selects the table.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatTable, nil
	case FormatTable, FormatJSON, FormatYAML, FormatPrometheus:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want table, json, yaml or prometheus)", s)
	}
}

// Render writes summary to w in the given format.
func Render(w io.Writer, summary timers.Summary, format Format) error {
	switch format {
	case FormatTable, "":
		return renderTable(w, summary)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(summary); err != nil {
			return err
		}
		return enc.Close()
	case FormatPrometheus:
		return encodeMetrics(w, metrics.NewSummaryCollector("", summary))
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func renderTable(w io.Writer, summary timers.Summary) error {
	if len(summary) == 0 {
		_, err := fmt.Fprintln(w, "No intervals recorded")
		return err
	}

	table := tablewriter.NewWriter(w)
	table.Header("Name", "Count", "Total", "Min", "Max", "Mean", "Median", "StdDev")
	for _, name := range summary.Names() {
		s := summary[name]
		if err := table.Append(
			name,
			fmt.Sprintf("%d", s.Count),
			seconds(s.Total),
			seconds(s.Min),
			seconds(s.Max),
			seconds(s.Mean),
			seconds(s.Median),
			seconds(s.StdDev),
		); err != nil {
			return err
		}
	}
	return table.Render()
}

// PrometheusText renders the metrics of t, including the active intervals
// gauge, in the Prometheus text format.
func PrometheusText(t *timers.Timers) (string, error) {
	var buf bytes.Buffer
	if err := encodeMetrics(&buf, metrics.NewCollector("", t)); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func encodeMetrics(w io.Writer, c *metrics.Collector) error {
	families, err := metrics.NewRegistry(c).Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}

	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("failed to encode %s: %w", mf.GetName(), err)
		}
	}
	return nil
}
