package main

import (
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// Injected at build time via -ldflags "-X main.version=...".
var (
	version = ""
	commit  = ""
	date    = ""
)

// buildDetails resolves the version, commit, and build date, preferring
// ldflags values and falling back to the binary's embedded build info in
// a single scan.
func buildDetails() (v, rev, built string) {
	v, rev, built = version, commit, date

	if info, ok := debug.ReadBuildInfo(); ok {
		if v == "" {
			v = info.Main.Version
		}
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				if rev == "" {
					rev = shortRevision(s.Value)
				}
			case "vcs.time":
				if built == "" {
					built = s.Value
				}
			}
		}
	}
	if v == "" {
		v = "(devel)"
	}
	if rev == "" {
		rev = "unknown"
	}
	if built == "" {
		built = "unknown"
	}
	return v, rev, built
}

func shortRevision(rev string) string {
	if len(rev) > 7 {
		return rev[:7]
	}
	return rev
}

func getVersion() string {
	v, _, _ := buildDetails()
	return v
}

// NewVersionCmd creates the version command.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long:  `Print the version, commit hash, and build date of imagespider.`,
		Run: func(cmd *cobra.Command, _ []string) {
			v, rev, built := buildDetails()
			fmt.Fprintf(cmd.OutOrStdout(), "imagespider version %s\n", v)
			fmt.Fprintf(cmd.OutOrStdout(), "  commit: %s\n", rev)
			fmt.Fprintf(cmd.OutOrStdout(), "  built:  %s\n", built)
		},
	}
}
