package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "dev"
	// GitCommit is set at build time.
	GitCommit = "unknown"
)

var verbose bool

// rootCmd is the root command for the fedctl CLI.
var rootCmd = &cobra.Command{
	Use:   "fedctl",
	Short: "fedctl federates DNS domains with a cloud directory tenant",
	Long: `fedctl onboards a DNS domain onto an on-premises federation server: it
registers the domain with the cloud directory tenant, verifies DNS ownership
via the required TXT record, and configures the federation trust (issuer URI,
sign-on endpoints, token-signing certificate).`,
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(newFederateCommand())
	rootCmd.AddCommand(newStatusCommand())
	rootCmd.AddCommand(newEndpointsCommand())
	rootCmd.AddCommand(versionCmd)
}

// newLogger builds the CLI logger; debug level when --verbose is set.
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
