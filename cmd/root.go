// Package cmd defines and implements the CLI commands for the catalogd
// executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalogd",
		Short: "Game catalog ingestion service.",
		Long: `catalogd crawls review sites for game metadata, merges the results into
a deduplicated catalog, and maintains a verified cover image cache. It can run
as a long-lived HTTP service or execute one-shot crawls from the command line.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newCrawlCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
