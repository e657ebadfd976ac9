package main

import (
	"github.com/spf13/cobra"

	"github.com/teamleap/crmauto/internal/app"
	"github.com/teamleap/crmauto/internal/config"
)

var migrateCommand = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations and exit",
	RunE:  runMigrateCmd,
}

var migrateConfigPath string

func init() {
	migrateCommand.Flags().StringVar(&migrateConfigPath, "config", "config.yaml", "Path to the YAML config file")
	rootCmd.AddCommand(migrateCommand)
}

func runMigrateCmd(cmd *cobra.Command, args []string) error {
	cfg, errLoad := config.Load(migrateConfigPath)
	if errLoad != nil {
		return errLoad
	}
	return app.Migrate(cfg)
}
