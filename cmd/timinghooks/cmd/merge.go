package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/psantana5/timinghooks/internal/statefile"
)

var mergeOut string

var mergeCmd = &cobra.Command{
	Use:   "merge FILE... ",
	Short: "Merge state files into one",
	Long: `Concatenates the records of every state file per name and writes the result
to --out (format by extension) or to stdout as JSON.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runMerge,
}

func init() {
	rootCmd.AddCommand(mergeCmd)
	mergeCmd.Flags().StringVar(&mergeOut, "out", "", "output file (.json or .yaml)")
}

func runMerge(cmd *cobra.Command, args []string) error {
	merged, err := statefile.LoadAll(args)
	if err != nil {
		return err
	}
	state := merged.Export()

	if mergeOut == "" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(state)
	}
	if err := statefile.Save(mergeOut, state); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Merged %d files (%d records) into %s\n", len(args), state.Records(), mergeOut)
	return nil
}
