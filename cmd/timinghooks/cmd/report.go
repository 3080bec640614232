package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/psantana5/timinghooks/internal/report"
	"github.com/psantana5/timinghooks/internal/statefile"
	"github.com/psantana5/timinghooks/pkg/timers"
)

var (
	reportTemplate string
	reportSnapshot string
)

var reportCmd = &cobra.Command{
	Use:   "report [FILE...]",
	Short: "Summarize saved state files",
	Long: `Loads one or more state files (.json, .yaml or .yml), merges them and prints
the summary. With --snapshot the state is fetched from the collector instead.

A Go text/template can replace the built-in formats with --template; it
receives .Summary, .Names and .Total and may call seconds, ms and pct.`,
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().StringVarP(&reportTemplate, "template", "t", "", "render with this template file")
	reportCmd.Flags().StringVar(&reportSnapshot, "snapshot", "", "summarize a snapshot stored on the collector")
}

func runReport(cmd *cobra.Command, args []string) error {
	var summary timers.Summary
	switch {
	case reportSnapshot != "":
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		c, err := newClient(cfg)
		if err != nil {
			return err
		}
		snap, err := c.GetSnapshot(cmd.Context(), reportSnapshot)
		if err != nil {
			return err
		}
		summary = timers.Summarize(snap.State)
	case len(args) > 0:
		merged, err := statefile.LoadAll(args)
		if err != nil {
			return err
		}
		summary = merged.Summary()
	default:
		return fmt.Errorf("no state files given")
	}

	if reportTemplate != "" {
		return report.FromTemplateFile(os.Stdout, reportTemplate, summary)
	}
	format, err := report.ParseFormat(outputFormat)
	if err != nil {
		return err
	}
	return report.Render(os.Stdout, summary, format)
}
