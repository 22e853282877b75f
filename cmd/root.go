// Package cmd implements the sorvx CLI.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "sorvx",
	Short: "Sorvx - AI code assistant service",
	Long: `Sorvx is a streaming AI code assistant backed by Gemini.

It serves a chat API with code tools (explain, suggest, fix, review, test
generation) and persists conversation transcripts in PostgreSQL.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
