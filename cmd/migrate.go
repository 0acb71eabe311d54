package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/flownode/ragnode/db"
	"github.com/flownode/ragnode/internal/config"
	"github.com/flownode/ragnode/internal/meta"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	Long: `Applies pending migrations to the SQLite metadata store and the
PostgreSQL vector index. Safe to run repeatedly; already-applied
migrations are skipped.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMigrate()
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	sqldb, err := meta.Open(cfg.MetaDBPath)
	if err != nil {
		return fmt.Errorf("opening metadata store: %w", err)
	}
	defer sqldb.Close()

	if err := db.MigrateMeta(sqldb); err != nil {
		return fmt.Errorf("migrating metadata store: %w", err)
	}
	fmt.Println("metadata store migrated")

	if err := db.MigrateVector(cfg.PostgresURL()); err != nil {
		return fmt.Errorf("migrating vector index: %w", err)
	}
	fmt.Println("vector index migrated")
	return nil
}
