package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teamleap/crmauto/internal/app"
	"github.com/teamleap/crmauto/internal/config"
)

var serveCommand = &cobra.Command{
	Use:   "serve",
	Short: "Run the automation engine and admin API",
	RunE:  runServeCmd,
}

var serveConfigPath string

func init() {
	serveCommand.Flags().StringVar(&serveConfigPath, "config", "config.yaml", "Path to the YAML config file")
	rootCmd.AddCommand(serveCommand)
}

func runServeCmd(cmd *cobra.Command, args []string) error {
	cfg, errLoad := config.Load(serveConfigPath)
	if errLoad != nil {
		return errLoad
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return app.RunServer(ctx, cfg)
}
