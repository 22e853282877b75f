package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sorvx/Sorvx-main-ai/db"
	"github.com/sorvx/Sorvx-main-ai/internal/config"
	"github.com/sorvx/Sorvx-main-ai/internal/log"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(*cobra.Command, []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		logger := log.New(log.Config{
			Level: log.ParseLevel(cfg.LogLevel),
			JSON:  cfg.LogJSON,
		})

		if err := db.Migrate(cfg.PostgresURL(), logger); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
