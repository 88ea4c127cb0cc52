package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/stemsi/wellcheck-backend/internal/config"
	"github.com/stemsi/wellcheck-backend/internal/database"
)

var migrateCmd = &cobra.Command{
	Use:       "migrate <up|down|version|force> [version]",
	Short:     "Apply PostgreSQL migrations",
	Args:      cobra.RangeArgs(1, 2),
	ValidArgs: []string{"up", "down", "version", "force"},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig(cmd)
		if cfg.DBDriver == config.DriverSQLite {
			return fmt.Errorf("SQLite stores create their schema on open; migrations target PostgreSQL")
		}
		dir, _ := cmd.Flags().GetString("path")

		msg, err := database.RunMigration(dir, cfg.DatabaseURL, args[0], args[1:])
		if err != nil {
			return err
		}
		fmt.Println(msg)
		return nil
	},
}

func init() {
	migrateCmd.Flags().String("path", "migrations", "Path to migration files")
}
