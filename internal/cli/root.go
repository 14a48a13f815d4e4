package cli

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/commentboard/server/internal/config"
	"github.com/commentboard/server/internal/db"
	"github.com/commentboard/server/internal/logger"
)

func Main() {
	var cfgPath string

	root := &cobra.Command{
		Use:   "commentboard",
		Short: "Real-time collaborative comment board server",
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "config file (yaml)")

	root.AddCommand(serveCmd(&cfgPath))
	root.AddCommand(migrateCmd(&cfgPath))

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func migrateCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			logger.InitLogger(cfg.Log)
			log := logger.NewLogger("migrate")

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()

			dbConn, err := db.Open(ctx, cfg.DB.DSN)
			if err != nil {
				return err
			}
			defer dbConn.Close()

			if err := db.ApplyMigrations(ctx, dbConn); err != nil {
				return err
			}
			log.Info("migrations applied")
			return nil
		},
	}
}
