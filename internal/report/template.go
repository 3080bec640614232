package report

import (
	"fmt"
	"io"
	"os"
	"text/template"

	"github.com/psantana5/timinghooks/pkg/timers"
)

// TemplateData is the value a report template executes against.
type TemplateData struct {
	// Summary is keyed by operation name; range over .Names for a stable
	// order.
	Summary timers.Summary
	Names   []string
	// Total is the largest per-name total, usually the outermost interval.
	Total float64
}

var funcs = template.FuncMap{
	"seconds": seconds,
	"ms": func(v float64) string {
		return fmt.Sprintf("%.3f", v*1000)
	},
	// pct formats part as a percentage of whole
	"pct": func(part, whole float64) string {
		if whole == 0 {
			return "0.0"
		}
		return fmt.Sprintf("%.1f", part/whole*100)
	},
}

func seconds(v float64) string {
	return fmt.Sprintf("%.6f", v)
}

// FromTemplate executes the template text tmpl with the summary and writes
// the result to w. Besides the standard functions, templates can call
// seconds, ms and pct.
//
//	{{range .Names}}{{.}}: {{ms (index $.Summary .).Mean}} ms{{"\n"}}{{end}}
func FromTemplate(w io.Writer, tmpl string, summary timers.Summary) error {
	t, err := template.New("report").Funcs(funcs).Parse(tmpl)
	if err != nil {
		return fmt.Errorf("failed to parse report template: %w", err)
	}
	if err := t.Execute(w, newTemplateData(summary)); err != nil {
		return fmt.Errorf("failed to execute report template: %w", err)
	}
	return nil
}

// FromTemplateFile reads the template from path.
func FromTemplateFile(w io.Writer, path string, summary timers.Summary) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read report template: %w", err)
	}
	return FromTemplate(w, string(data), summary)
}

func newTemplateData(summary timers.Summary) TemplateData {
	data := TemplateData{Summary: summary, Names: summary.Names()}
	for _, s := range summary {
		if s.Total > data.Total {
			data.Total = s.Total
		}
	}
	return data
}
