package cmd

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/sorvx/Sorvx-main-ai/internal/auth"
	"github.com/sorvx/Sorvx-main-ai/internal/config"
	"github.com/sorvx/Sorvx-main-ai/internal/log"
)

var tokenCmd = &cobra.Command{
	Use:   "token [user-id]",
	Short: "Issue a signed access token for a user",
	Long: `Issue a signed access token for the given user ID. With no argument
a fresh user ID is generated. The token goes in the Authorization header:

    Authorization: Bearer <token>`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		userID := uuid.NewString()
		if len(args) == 1 && args[0] != "" {
			userID = args[0]
		}

		gate := auth.NewGate([]byte(cfg.AuthSecret), log.NewNop())
		fmt.Fprintf(cmd.OutOrStdout(), "user:  %s\ntoken: %s\n", userID, gate.SignToken(userID))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
}
