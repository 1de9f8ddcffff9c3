package main

import (
	"database/sql"
	"fmt"
	"os"

	"fieldvisit/common/database"
	"fieldvisit/internal/config"

	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate <file.sql>",
		Short: "Apply a SQL migration file to the configured database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sqlContent, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read migration file: %w", err)
			}

			cfg := config.Load()
			db, err := database.NewPostgresDB(&cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			return applyMigration(cmd, db, string(sqlContent))
		},
	}
}

// applyMigration 整个文件作为一次简单查询执行（lib/pq 支持多语句）
func applyMigration(cmd *cobra.Command, db *sql.DB, content string) error {
	if _, err := db.ExecContext(cmd.Context(), content); err != nil {
		return fmt.Errorf("failed to apply migration: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Migration completed successfully")
	return nil
}
