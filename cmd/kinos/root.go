package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	version = "0.1.0"

	flagConfig string
	flagRegion string
	flagDebug  bool

	rootCmd = &cobra.Command{
		Use:   "kinos",
		Short: "EBS Snapshot Lifecycle Manager",
		Long: `Kinos - EBS Snapshot Lifecycle Manager

Kinos snapshots tagged EBS volumes, prunes snapshots past their
retention window, and reports each run over SNS.

One cycle is: discover tagged volumes, create a snapshot per volume,
delete that volume's expired snapshots, send a summary notification.`,
		Version: version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging()
		},
	}
)

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// init sets up the root command
func init() {
	rootCmd.SetVersionTemplate(`Kinos {{.Version}} - EBS Snapshot Lifecycle Manager
`)

	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "kinos.yaml", "Config file path")
	rootCmd.PersistentFlags().StringVar(&flagRegion, "region", "", "AWS region (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
}

// setupLogging configures global zerolog output for CLI use
func setupLogging() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if flagDebug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}
