// Package main provides the entry point for the imagespider CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for imagespider.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "imagespider",
		Short: "Polite concurrent image crawler",
		Long: `imagespider crawls the web from one or more seed URLs, follows links up
to a configurable depth, and archives every image it discovers.

It is deliberately polite: requests to each host are spaced out, backed
off when the host pushes back, and skipped entirely where robots.txt
disallows them.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	// Add subcommands
	cmd.AddCommand(NewCrawlCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
