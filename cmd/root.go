// Package cmd implements the procwatch command line interface.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Version is set at build time via -ldflags.
var Version = "dev"

var (
	cfgFile string
	verbose bool
)

// rootCmd is the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "procwatch",
	Short: "Snapshot and change tracking for database programmable objects",
	Long: `procwatch scans the stored procedures, views and functions of your
tenants' databases, keeps versioned snapshots of every definition, and
reports what was created, modified or deleted between scans.

Get started:
  procwatch config init   Write a starter config file
  procwatch scan          Scan all configured targets once
  procwatch serve         Run the scheduler daemon with the REST API
  procwatch compare       Compare two targets' object definitions
  procwatch baseline      Freeze and compare named baselines
  procwatch logs          Show recent scan history`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute is the entry point called from main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default: ~/.procwatch/config.json)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"enable verbose/debug output")

	rootCmd.Version = Version
	rootCmd.AddCommand(
		scanCmd,
		serveCmd,
		compareCmd,
		baselineCmd,
		logsCmd,
		configCmd,
	)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
	if verbose {
		slog.SetLogLoggerLevel(slog.LevelDebug)
		slog.Debug("Verbose logging enabled")
	}
}
