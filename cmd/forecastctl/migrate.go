package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"finora/internal/storage"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the embedded schema migrations to the configured SQL backend",
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(_ *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	dialect, err := storage.ParseDialect(cfg.DataBackend)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	dsn := cfg.SQLiteDBPath
	if dialect == storage.Postgres {
		dsn = cfg.PostgresDSN
	}
	if err := storage.RunMigrations(dialect, dsn); err != nil {
		return err
	}
	logger.Info("Migrations applied", "backend", dialect)
	return nil
}
