package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/psantana5/timinghooks/internal/hostinfo"
	"github.com/psantana5/timinghooks/internal/statefile"
)

var (
	pushLabel string
	pushHost  string
	pushMerge bool
)

var pushCmd = &cobra.Command{
	Use:   "push FILE",
	Short: "Send a state file to the collector",
	Long: `Stores a state file on the collector as a snapshot, or with --merge appends
its records to the collector's live accumulator.`,
	Args: cobra.ExactArgs(1),
	RunE: runPush,
}

func init() {
	rootCmd.AddCommand(pushCmd)

	pushCmd.Flags().StringVar(&pushLabel, "label", "", "snapshot label")
	pushCmd.Flags().StringVar(&pushHost, "host", "", "host recorded with the snapshot (default: this host)")
	pushCmd.Flags().BoolVar(&pushMerge, "merge", false, "merge into the live accumulator instead of storing a snapshot")
}

func runPush(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	state, err := statefile.Load(args[0])
	if err != nil {
		return err
	}
	c, err := newClient(cfg)
	if err != nil {
		return err
	}

	if pushMerge {
		if err := c.MergeState(cmd.Context(), state); err != nil {
			return err
		}
		fmt.Printf("Merged %d records into %s\n", state.Records(), cfg.CollectorURL)
		return nil
	}

	host := pushHost
	if host == "" {
		host = hostinfo.Detect().Hostname
	}
	info, err := c.PushSnapshot(cmd.Context(), pushLabel, host, state)
	if err != nil {
		return err
	}
	fmt.Printf("Snapshot %s stored (%d names, %d records)\n", info.ID, info.Names, info.Records)
	return nil
}
