package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/taskion/taskion/internal/api"
	"github.com/taskion/taskion/internal/config"
	"github.com/taskion/taskion/internal/daemon"
	"github.com/taskion/taskion/internal/dashboard"
	tsync "github.com/taskion/taskion/internal/sync"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	GroupID: "sync",
	Short:   "Run the HTTP API, the dashboard and the periodic sync",
	Long: `Start the HTTP API and run a sync pass every sync.interval_seconds.

The first pass runs one interval after startup; use POST /sync or
'taskion sync' to run one immediately. Edits to the config file change the
interval without a restart.

Endpoints:
  GET  /health            database check
  /courses, /tasks        record CRUD, archive and unarchive
  POST /sync              run a pass now
  GET  /sync/runs         sync history
  GET  /ws                dashboard WebSocket

Stop with Ctrl+C; in-flight requests get a few seconds to finish.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		db, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		hubConfig := dashboard.DefaultConfig()
		hubConfig.OriginPatterns = cfg.Server.CORSOrigins
		hubConfig.Logger = logger
		hub := dashboard.NewHub(hubConfig)
		events := dashboard.NewHandler(hub, db, logger)

		engine := newEngine(db, tsync.WithObserver(events))

		scheduler, err := daemon.New(engine, &daemon.Config{
			Interval: cfg.SyncInterval(),
			Logger:   logger,
		})
		if err != nil {
			return err
		}
		loader.Watch(func(c *config.Config) {
			if err := scheduler.SetInterval(c.SyncInterval()); err != nil {
				logger.Warn().Err(err).Msg("ignoring sync interval change")
			}
		})

		gin.SetMode(gin.ReleaseMode)
		server, err := api.New(&api.Config{
			Addr:            cfg.Addr(),
			APIToken:        cfg.Server.APIToken,
			CORSOrigins:     cfg.Server.CORSOrigins,
			ShutdownTimeout: api.DefaultConfig().ShutdownTimeout,
			Logger:          logger,
		}, api.Deps{
			Store:     db,
			Syncer:    engine,
			Notifier:  events,
			Dashboard: hub,
		})
		if err != nil {
			return err
		}

		logger.Info().
			Str("addr", cfg.Addr()).
			Str("database", db.Path()).
			Str("remote", engine.Adapter().Name()).
			Dur("interval", cfg.SyncInterval()).
			Msg("taskion starting")

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return hub.Run(gctx) })
		g.Go(func() error { return scheduler.Start(gctx) })
		g.Go(func() error { return server.Start(gctx) })

		if err := g.Wait(); err != nil {
			logger.Error().Err(err).Msg("taskion stopped")
			return err
		}
		logger.Info().Msg("taskion stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
