package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/psantana5/timinghooks/internal/config"
	"github.com/psantana5/timinghooks/pkg/client"
	tlsutil "github.com/psantana5/timinghooks/pkg/tls"
)

// version is set at build time with -ldflags "-X .../cmd.version=..."
var version = "dev"

var (
	cfgFile      string
	outputFormat string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "timinghooks",
	Short: "Accumulate and summarize named time intervals",
	Long: `timinghooks records named, possibly nested time intervals from any number
of goroutines or processes and reports count, total, min, max, mean, median
and spread per name. State can be saved to files, merged, and collected by a
central server.`,
	Version:       version,
	SilenceUsage:  true,
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.timinghooks/config.yaml)")
	flags.StringVarP(&outputFormat, "output", "o", "table", "output format: table, json, yaml or prometheus")
	flags.String("collector", "", "collector URL (default from config or http://localhost:9464)")
	flags.String("api-key", "", "API key for the collector")
	flags.String("log-level", "", "log level: debug, info, warn, error")

	viper.BindPFlag("collector_url", flags.Lookup("collector"))
	viper.BindPFlag("api_key", flags.Lookup("api-key"))
	viper.BindPFlag("log_level", flags.Lookup("log-level"))
}

// initConfig reads in config file and ENV variables if set
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".timinghooks"))
		}
		viper.AddConfigPath(".")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	config.BindEnv(viper.GetViper())

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || cfgFile != "" {
			fmt.Fprintf(os.Stderr, "Error reading config: %v\n", err)
			os.Exit(1)
		}
	}
}

// loadConfig returns the effective configuration
func loadConfig() (*config.Config, error) {
	return config.Load(viper.GetViper())
}

// newClient creates a collector client from the configuration
func newClient(cfg *config.Config) (*client.Client, error) {
	opts := []client.Option{client.WithAPIKey(cfg.APIKey)}
	if files := cfg.TLSFiles(); files.CAFile != "" || files.Enabled() {
		tlsCfg, err := tlsutil.ClientConfig(files)
		if err != nil {
			return nil, err
		}
		opts = append(opts, client.WithTLS(tlsCfg))
	}
	return client.New(cfg.CollectorURL, opts...), nil
}
