package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "strata",
	Short: "Strata filters graphs through a navigable stack of filters",
	Long: `Strata threads a graph through an ordered stack of filters, caching every
intermediate stage. Filters can be pushed, replaced, suspended and reopened
while the filtered graph is recomputed incrementally.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "Config file (default ./strata.yaml when present)")
	flags.String("store", "", "Snapshot store backend: file, redis or memory")
	flags.String("dir", "", "Directory of the file store")
	flags.StringP("session", "s", "", "Session ID ('auto' for a new one)")
	flags.String("log-level", "", "Log level: debug, info, warn or error")
}
