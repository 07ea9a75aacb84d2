package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of fedctl",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("fedctl version %s (commit: %s)\n", Version, GitCommit)
	},
}
