package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/commentboard/server/internal/api"
	"github.com/commentboard/server/internal/auth"
	"github.com/commentboard/server/internal/cache"
	"github.com/commentboard/server/internal/config"
	"github.com/commentboard/server/internal/db"
	"github.com/commentboard/server/internal/hub"
	"github.com/commentboard/server/internal/logger"
	"github.com/commentboard/server/internal/store"
)

func serveCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the comment board server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			logger.InitLogger(cfg.Log)
			log := logger.NewLogger("server")

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			dbConn, err := db.Open(ctx, cfg.DB.DSN)
			if err != nil {
				return err
			}
			defer dbConn.Close()
			if err := db.ApplyMigrations(ctx, dbConn); err != nil {
				return err
			}

			ca := cache.Connect(cfg.Redis.Addr, logger.NewLogger("cache"))
			defer ca.Close()

			relay := hub.ConnectRelay(cfg.NATS.URL, logger.NewLogger("relay"))
			defer relay.Close()

			h := hub.NewHub(relay, logger.NewLogger("hub"))
			go h.Run(ctx)

			st := store.New(dbConn)
			sessions := auth.NewSessions(cfg.Session.Secret)
			a := api.New(st, ca, h, sessions, dbConn, logger.NewLogger("api"))

			srv := &http.Server{
				Addr:    cfg.HTTP.Listen,
				Handler: a.Router(),
			}

			errCh := make(chan error, 1)
			go func() {
				log.Infof("listening on %s", cfg.HTTP.Listen)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case <-ctx.Done():
				log.Info("shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			}
		},
	}
}
