package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/psantana5/timinghooks/pkg/auth"
	"github.com/psantana5/timinghooks/pkg/logging"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration helpers",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long:  `Prints the configuration after applying defaults, the config file, environment variables and flags. Secrets are masked.`,
	RunE:  runConfigShow,
}

var configGenKeyCmd = &cobra.Command{
	Use:   "gen-key",
	Short: "Generate an API key and its bcrypt hash",
	Long: `Generates a random API key. Give the key to clients (api_key) and put the
hash in the collector's server.api_key_hash so the key itself never has to be
stored on the server.`,
	RunE: runConfigGenKey,
}

var logrotateUser string

var configLogrotateCmd = &cobra.Command{
	Use:   "logrotate",
	Short: "Print a logrotate configuration for the collector log",
	Long: `Prints a logrotate configuration for the log files written when log_file
is enabled. Install it with:

  timinghooks config logrotate > /etc/logrotate.d/timinghooks`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprint(cmd.OutOrStdout(), logging.GenerateLogrotateConfig(logrotateUser))
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configGenKeyCmd)
	configCmd.AddCommand(configLogrotateCmd)

	configLogrotateCmd.Flags().StringVar(&logrotateUser, "user", "root", "owner of the rotated log files")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if used := viper.ConfigFileUsed(); used != "" {
		fmt.Printf("# config file: %s\n", used)
	}
	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	if err := enc.Encode(cfg.Redacted()); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return enc.Close()
}

func runConfigGenKey(cmd *cobra.Command, args []string) error {
	key, err := auth.GenerateAPIKey()
	if err != nil {
		return err
	}
	hash, err := auth.HashAPIKey(key)
	if err != nil {
		return err
	}
	fmt.Printf("api_key: %s\n", key)
	fmt.Printf("server:\n  api_key_hash: %q\n", hash)
	return nil
}
