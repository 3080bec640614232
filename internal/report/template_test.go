package report

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psantana5/timinghooks/pkg/timers"
)

func TestFromTemplate(t *testing.T) {
	tests := []struct {
		name     string
		tmpl     string
		expected string
	}{
		{
			name:     "names in order",
			tmpl:     `{{range .Names}}{{.}} {{end}}`,
			expected: "computation reading walltime ",
		},
		{
			name:     "seconds",
			tmpl:     `{{seconds (index .Summary "reading").Total}}`,
			expected: "3.000000",
		},
		{
			name:     "milliseconds",
			tmpl:     `{{ms (index .Summary "computation").Mean}}`,
			expected: "2000.000",
		},
		{
			name:     "percentage of the largest total",
			tmpl:     `{{pct (index .Summary "computation").Total .Total}}`,
			expected: "66.7",
		},
		{
			name:     "percentage of zero",
			tmpl:     `{{pct 1.0 0.0}}`,
			expected: "0.0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, FromTemplate(&buf, tt.tmpl, sampleSummary(t)))
			assert.Equal(t, tt.expected, buf.String())
		})
	}
}

func TestFromTemplate_Errors(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, FromTemplate(&buf, `{{range}`, timers.Summary{}))
	assert.Error(t, FromTemplate(&buf, `{{.Missing}}`, timers.Summary{}))
}

func TestFromTemplateFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.tmpl")
	require.NoError(t, os.WriteFile(path, []byte(`{{len .Names}} operations`), 0644))

	var buf bytes.Buffer
	require.NoError(t, FromTemplateFile(&buf, path, sampleSummary(t)))
	assert.Equal(t, "3 operations", buf.String())

	assert.Error(t, FromTemplateFile(&buf, filepath.Join(t.TempDir(), "missing"), nil))
}
