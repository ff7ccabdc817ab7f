// Package cmd defines and implements the CLI commands for the sitegist
// executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sitegist",
		Short: "Crawl a website and synthesize its content with a language model.",
		Long: `sitegist fetches a site's pages starting from a seed URL, renders the
ones that need JavaScript in headless Chrome, and asks a language model to
perform a task over the combined content (summarize by default).

It runs either as a one-shot foreground crawl (sitegist crawl) or as a
long-lived job service with an HTTP API (sitegist serve).`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (built-in defaults and SITEGIST_* env vars apply when omitted)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newCrawlCmd())
	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
