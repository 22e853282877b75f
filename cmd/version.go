package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (injected at build time via ldflags).
var (
	Version   = "development"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, _ []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Sorvx %s\n", Version)
		fmt.Fprintf(out, "Build Time: %s\n", BuildTime)
		fmt.Fprintf(out, "Git Commit: %s\n", GitCommit)

		if key := os.Getenv("GEMINI_API_KEY"); key != "" {
			fmt.Fprintln(out, "GEMINI_API_KEY: configured")
		} else {
			fmt.Fprintln(out, "GEMINI_API_KEY: not set (export GEMINI_API_KEY=your-api-key)")
		}
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
