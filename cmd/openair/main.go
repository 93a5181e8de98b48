// Command openair serves a festival program: the signage overview, the
// per-location program lists and the package store behind them.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"openair/internal/codec"
	"openair/internal/config"
	appLog "openair/internal/log"
)

const version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:           "openair",
	Short:         "Festival program engine for stage signage",
	Long:          "openair keeps festival event packages, projects their program onto overview screens and serves it over HTTP.",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig()
	},
}

// cfg is the effective configuration, loaded before any subcommand runs.
var cfg *config.Config

func main() {
	if err := rootCmd.Execute(); err != nil {
		appLog.Error("openair failed", err)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "/etc/openair/config.yaml", "path to config file")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error); overrides config")
	rootCmd.PersistentFlags().String("data-dir", "", "data directory; overrides config")

	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("data_dir", rootCmd.PersistentFlags().Lookup("data-dir"))
	_ = viper.BindEnv("config", "OPENAIR_CONFIG")
}

// loadConfig reads the config file named by --config or OPENAIR_CONFIG and
// applies command-line overrides on top of it.
func loadConfig() error {
	path := viper.GetString("config")
	c, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load config %s: %w", path, err)
	}
	if v := viper.GetString("log_level"); v != "" {
		c.LogLevel = v
	}
	if v := viper.GetString("data_dir"); v != "" {
		c.DataDir = v
	}
	if err := c.Validate(); err != nil {
		return err
	}
	level, _ := appLog.ParseLevel(c.LogLevel)
	appLog.SetLevel(level)

	appLog.Debug("effective config",
		"config_path", path,
		"listen", c.Listen,
		"timezone", c.Timezone,
		"data_dir", c.DataDir,
		"refresh_cron", c.RefreshCron,
		"sources", len(c.Sources),
		"time_shift", c.TimeShift.String(),
		"capture", c.Capture.Enabled,
	)
	cfg = c
	return nil
}

// newCodec returns the package codec for the configured timezone.
func newCodec() (*codec.Codec, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	return &codec.Codec{Location: loc}, nil
}
