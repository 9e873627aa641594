package cmd

import (
	"github.com/deploykit/config"
	"github.com/deploykit/database"
	"github.com/deploykit/lib/logger"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		logger.Initialize(cfg.LogLevel, cfg.LogFormat)

		db, err := database.Open(cfg.DatabaseDriver, cfg.DatabaseURL, logger.Get())
		if err != nil {
			return err
		}
		if sqlDB, err := db.DB(); err == nil {
			defer sqlDB.Close()
		}
		if err := database.Migrate(db); err != nil {
			return err
		}
		logger.WithModule("migrate").Info("✅ Database schema is up to date")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
