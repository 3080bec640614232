package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/psantana5/timinghooks/internal/report"
	"github.com/psantana5/timinghooks/pkg/timers"
)

var snapshotsCmd = &cobra.Command{
	Use:   "snapshots",
	Short: "Manage snapshots stored on the collector",
}

var snapshotsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored snapshots",
	RunE:  runSnapshotsList,
}

var snapshotsShowCmd = &cobra.Command{
	Use:   "show <snapshot-id>",
	Short: "Show the summary of a snapshot",
	Args:  cobra.ExactArgs(1),
	RunE:  runSnapshotsShow,
}

var snapshotsDeleteCmd = &cobra.Command{
	Use:   "delete <snapshot-id>",
	Short: "Delete a snapshot",
	Args:  cobra.ExactArgs(1),
	RunE:  runSnapshotsDelete,
}

func init() {
	rootCmd.AddCommand(snapshotsCmd)
	snapshotsCmd.AddCommand(snapshotsListCmd)
	snapshotsCmd.AddCommand(snapshotsShowCmd)
	snapshotsCmd.AddCommand(snapshotsDeleteCmd)
}

func runSnapshotsList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	c, err := newClient(cfg)
	if err != nil {
		return err
	}
	infos, err := c.ListSnapshots(cmd.Context())
	if err != nil {
		return err
	}

	switch outputFormat {
	case "json":
		output, err := json.MarshalIndent(infos, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Println(string(output))
		return nil
	case "yaml":
		return yaml.NewEncoder(os.Stdout).Encode(infos)
	}

	if len(infos) == 0 {
		fmt.Println("No snapshots stored")
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("ID", "Label", "Host", "Created", "Names", "Records")
	for _, info := range infos {
		table.Append(
			info.ID,
			info.Label,
			info.Host,
			info.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			fmt.Sprintf("%d", info.Names),
			fmt.Sprintf("%d", info.Records),
		)
	}
	table.Render()
	fmt.Printf("\nTotal snapshots: %d\n", len(infos))
	return nil
}

func runSnapshotsShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	c, err := newClient(cfg)
	if err != nil {
		return err
	}
	snap, err := c.GetSnapshot(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	format, err := report.ParseFormat(outputFormat)
	if err != nil {
		return err
	}

	if format == report.FormatTable {
		fmt.Printf("Snapshot: %s\n", snap.ID)
		if snap.Label != "" {
			fmt.Printf("Label:    %s\n", snap.Label)
		}
		fmt.Printf("Host:     %s\n", snap.Host)
		fmt.Printf("Created:  %s\n\n", snap.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	}
	return report.Render(os.Stdout, timers.Summarize(snap.State), format)
}

func runSnapshotsDelete(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	c, err := newClient(cfg)
	if err != nil {
		return err
	}
	if err := c.DeleteSnapshot(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Printf("Snapshot %s deleted\n", args[0])
	return nil
}
