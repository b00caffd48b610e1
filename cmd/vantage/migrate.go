package main

import (
	"github.com/spf13/cobra"

	"github.com/vantagesearch/vantage/internal/storage/postgres"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return postgres.Migrate(cmd.Context(), cfg.Database.ConnString())
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show applied and pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return postgres.MigrationStatus(cmd.Context(), cfg.Database.ConnString())
	},
}

func init() {
	migrateCmd.AddCommand(migrateStatusCmd)
}
